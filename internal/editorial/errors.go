package editorial

import (
	"errors"
	"fmt"
)

// ValidationError reports caller-fixable input problems.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// PreconditionError reports an entity that is not in a state that allows the operation.
type PreconditionError struct {
	Entity  string
	ID      string
	Current string
	Reason  string
}

func (e *PreconditionError) Error() string {
	if e.Current != "" {
		return fmt.Sprintf("%s %s (status %s): %s", e.Entity, e.ID, e.Current, e.Reason)
	}
	return fmt.Sprintf("%s %s: %s", e.Entity, e.ID, e.Reason)
}

// IsValidation reports whether err is caller-fixable input.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsPrecondition reports whether err is a PreconditionError.
func IsPrecondition(err error) bool {
	var p *PreconditionError
	return errors.As(err, &p)
}
