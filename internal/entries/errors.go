package entries

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a terminal per-call outcome so transports can map it
// without string matching.
type Kind string

const (
	// KindValidation marks malformed or constraint-violating input.
	KindValidation Kind = "validation"
	// KindNotFound marks an entity that is absent, foreign, or soft-deleted.
	KindNotFound Kind = "not_found"
	// KindConflict marks a concurrent modification detected via the version stamp.
	KindConflict Kind = "conflict"
	// KindUnauthorized marks a missing or unusable verified identity.
	KindUnauthorized Kind = "unauthorized"
)

// Error carries a machine-checkable kind plus human-readable detail naming
// the offending field or condition.
type Error struct {
	Kind    Kind
	Field   string
	Message string
	Allowed []string
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func newValidationError(field, message string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: message}
}

func newEnumError(field, offending string, allowed []string) *Error {
	return &Error{
		Kind:    KindValidation,
		Field:   field,
		Message: fmt.Sprintf("unknown value %q, allowed values: %s", offending, strings.Join(allowed, ", ")),
		Allowed: allowed,
	}
}

func newNotFoundError(resource string) *Error {
	return &Error{Kind: KindNotFound, Message: resource + " not found"}
}

func newConflictError(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

// KindOf extracts the outcome kind from an error chain. The second return is
// false for infrastructure faults, which are surfaced undecorated.
func KindOf(err error) (Kind, bool) {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Kind, true
	}
	return "", false
}

// IsKind reports whether the error chain carries the given outcome kind.
func IsKind(err error, kind Kind) bool {
	actual, ok := KindOf(err)
	return ok && actual == kind
}
