package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// HTTPError defines errors that can be mapped to HTTP status codes.
// Implementing this interface enables extensible error handling.
type HTTPError interface {
	error
	StatusCode() int
}

// Sentinel errors - use with errors.Is()
var (
	ErrNotFound               = errors.New("not found")
	ErrConflict               = errors.New("already exists")
	ErrValidation             = errors.New("validation failed")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrForbidden              = errors.New("forbidden")
	ErrInvalidState           = errors.New("invalid state for this action")
	ErrMissingReason          = errors.New("resolution reason required")
	ErrPathTraversal          = errors.New("path escapes allowed root")
	ErrConcurrentModification = errors.New("concurrent modification")
)

type (
	// NotFoundError indicates a resource was not found
	NotFoundError struct {
		Message string
	}

	// ValidationError indicates invalid input
	ValidationError struct {
		Message string
	}

	// UnauthorizedError indicates authentication failure
	UnauthorizedError struct {
		Message string
	}

	// ForbiddenError indicates authorization failure
	ForbiddenError struct {
		Message string
	}

	// InvalidStateError indicates the proposal's current status does not
	// permit the requested action
	InvalidStateError struct {
		Status string
		Action string
	}
)

func (e *NotFoundError) Error() string     { return e.Message }
func (e *ValidationError) Error() string   { return e.Message }
func (e *UnauthorizedError) Error() string { return e.Message }
func (e *ForbiddenError) Error() string    { return e.Message }
func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s a proposal in %s status", e.Action, e.Status)
}

func (e *NotFoundError) StatusCode() int     { return http.StatusNotFound }
func (e *ValidationError) StatusCode() int   { return http.StatusBadRequest }
func (e *UnauthorizedError) StatusCode() int { return http.StatusUnauthorized }
func (e *ForbiddenError) StatusCode() int    { return http.StatusForbidden }
func (e *InvalidStateError) StatusCode() int { return http.StatusConflict }

func (e *NotFoundError) Is(target error) bool     { return target == ErrNotFound }
func (e *ValidationError) Is(target error) bool   { return target == ErrValidation }
func (e *UnauthorizedError) Is(target error) bool { return target == ErrUnauthorized }
func (e *ForbiddenError) Is(target error) bool    { return target == ErrForbidden }
func (e *InvalidStateError) Is(target error) bool { return target == ErrInvalidState }

// ConflictError represents a resource conflict with details about the existing resource
type ConflictError struct {
	Message      string
	ResourceType string
	ResourceID   string
}

func (e *ConflictError) Error() string        { return e.Message }
func (e *ConflictError) StatusCode() int      { return http.StatusConflict }
func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// UnresolvedCommentsError blocks the READY transition while review comments
// are still open. BlockingIDs lists the open comment ids.
type UnresolvedCommentsError struct {
	BlockingIDs []string
}

func (e *UnresolvedCommentsError) Error() string {
	return fmt.Sprintf("cannot mark ready: %d unresolved comments", len(e.BlockingIDs))
}

func (e *UnresolvedCommentsError) StatusCode() int { return http.StatusUnprocessableEntity }

// PathTraversalError indicates a computed file path escaped its allowed root.
type PathTraversalError struct {
	Path string
	Root string
}

func (e *PathTraversalError) Error() string {
	return fmt.Sprintf("path %q is outside allowed root %q", e.Path, e.Root)
}

func (e *PathTraversalError) StatusCode() int      { return http.StatusBadRequest }
func (e *PathTraversalError) Is(target error) bool { return target == ErrPathTraversal }

// ValidationFailedError is a definitive, well-formed rejection from the
// external validator. It is an expected business outcome, not a fault.
type ValidationFailedError struct {
	Errors   []string
	Warnings []string
	Output   string
}

func (e *ValidationFailedError) Error() string {
	return fmt.Sprintf("validation failed with %d errors", len(e.Errors))
}

func (e *ValidationFailedError) StatusCode() int { return http.StatusUnprocessableEntity }

// ValidatorUnavailableError indicates the external validator could not
// produce a definitive outcome after exhausting transient-fault retries.
type ValidatorUnavailableError struct {
	Attempts int
	Last     error
}

func (e *ValidatorUnavailableError) Error() string {
	return fmt.Sprintf("validator unavailable after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ValidatorUnavailableError) StatusCode() int { return http.StatusServiceUnavailable }
func (e *ValidatorUnavailableError) Unwrap() error   { return e.Last }
