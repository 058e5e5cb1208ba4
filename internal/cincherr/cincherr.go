// Package cincherr implements the CinchDB error taxonomy as a tagged
// result variant rather than a panic/exception hierarchy: every error
// the engine returns carries a Kind a caller (CLI, HTTP layer, test)
// can switch on.
package cincherr

import (
	"errors"
	"fmt"
)

// Kind classifies the semantic category of an Error.
type Kind string

const (
	InvalidName     Kind = "invalid_name"
	SQLValidation   Kind = "sql_validation"
	Maintenance     Kind = "maintenance"
	NotFound        Kind = "not_found"
	AlreadyExists   Kind = "already_exists"
	SchemaConflict  Kind = "schema_conflict"
	MergeConflict   Kind = "merge_conflict"
	TenantDivergent Kind = "tenant_divergent"
	Concurrency     Kind = "concurrency"
	Storage         Kind = "storage"
)

// Error is the tagged error value returned by every core operation.
type Error struct {
	Kind    Kind
	Op      string // operation that failed, e.g. "schema.CreateTable"
	Message string
	Err     error // wrapped cause, if any
}

func (e *Error) Error() string {
	if e.Op != "" {
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
		}
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New constructs an Error of the given kind.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap constructs a Storage-kind Error by default, unless kind is given
// explicitly via WrapKind. Wrap always preserves the cause for errors.As
// / errors.Is chains.
func Wrap(op string, err error) *Error {
	return WrapKind(Storage, op, err)
}

// WrapKind wraps err with context (operation) under the given Kind.
func WrapKind(kind Kind, op string, err error) *Error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		// Already a tagged error: keep its Kind, add operation context.
		return &Error{Kind: existing.Kind, Op: op, Message: existing.Message, Err: existing}
	}
	return &Error{Kind: kind, Op: op, Message: err.Error(), Err: err}
}

// Is reports whether err is a *Error with the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
