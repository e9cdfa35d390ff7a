package store

import (
	"errors"
	"fmt"
)

// Kind classifies persistence failures.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindConnectionUnavailable
	KindSchemaMissing
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindConnectionUnavailable:
		return "connection unavailable"
	case KindSchemaMissing:
		return "schema missing"
	case KindConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Error is a classified persistence error.
type Error struct {
	Kind   Kind
	Entity string
	ID     string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Entity != "" {
		msg = e.Entity + " " + msg
	}
	if e.ID != "" {
		msg += fmt.Sprintf(" (id %s)", e.ID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// NotFound builds a KindNotFound error for entity id.
func NotFound(entity, id string) error {
	return &Error{Kind: KindNotFound, Entity: entity, ID: id}
}

// Conflict builds a KindConflict error for entity id.
func Conflict(entity, id string) error {
	return &Error{Kind: KindConflict, Entity: entity, ID: id}
}

// KindOf returns the Kind of the first store Error in err's chain.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}

func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

func IsConflict(err error) bool { return KindOf(err) == KindConflict }
