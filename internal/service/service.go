// Package service implements the proposal lifecycle engine: content
// versioning, review gating, validation, materialization, and the
// lifecycle state machine itself. Services hold no request state and are
// safe for concurrent use.
package service

import (
	"errors"

	"specflow/internal/domain"
)

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
