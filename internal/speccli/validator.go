// Package speccli wraps the external spec-validation CLI behind a small
// interface so the lifecycle engine never touches process execution
// directly. Each call is independent and safely retryable; there is no
// shared mutable state.
package speccli

import (
	"context"
	"errors"
	"fmt"
)

// Result is the parsed outcome of a validation run. A well-formed result
// with Passed == false is a definitive rejection, never retried.
type Result struct {
	Passed   bool     `json:"passed"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
	Output   string   `json:"output"`
}

// Validator validates a materialized proposal tree. Root is the project
// directory the CLI runs in; name is the proposal directory under the
// change tree.
type Validator interface {
	Validate(ctx context.Context, root, name string) (*Result, error)
	Archive(ctx context.Context, root, name string) error
}

// TransientError marks a validator fault that is eligible for retry:
// process timeout, failure to start, resource contention. A definitive
// negative validation outcome is not transient.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient validator fault: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a retryable validator fault.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
