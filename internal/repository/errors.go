// Package repository implements transaction-aware persistence for feed
// entries, trade attempts, job runs, and ingest checkpoints.
package repository

import (
	"errors"
	"fmt"

	"github.com/codingayam/trading-automation-sub001/internal/database"
)

// DuplicateError is a re-raised unique-constraint violation carrying the
// violated constraint. Callers treat it as "already processed".
type DuplicateError struct {
	Constraint string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate row violates constraint %s", e.Constraint)
}

// IsDuplicate reports whether err is a unique-constraint duplicate.
func IsDuplicate(err error) bool {
	var dup *DuplicateError
	return errors.As(err, &dup)
}

// wrapDup converts unique violations to DuplicateError and wraps everything
// else with the given operation name.
func wrapDup(err error, op string) error {
	if constraint, ok := database.UniqueViolation(err); ok {
		return &DuplicateError{Constraint: constraint}
	}
	return fmt.Errorf("%s: %w", op, err)
}
