// Package apperr defines the error kinds shared by every service.
//
// Callers decide what to do from the kind alone: NotFound is permanent,
// Validation and Conflict mean the request can be retried with different
// input, and a Retryable Conflict means the same request may succeed when
// resubmitted because it lost a race with a concurrent writer.
package apperr

import (
	"errors"
	"fmt"
	"strconv"
)

// Kind classifies an Error.
type Kind string

const (
	KindNotFound   Kind = "not_found"
	KindNoContent  Kind = "no_content"
	KindValidation Kind = "validation"
	KindConflict   Kind = "conflict"
)

// Sentinels for errors.Is checks against a kind.
var (
	ErrNotFound   = &Error{Kind: KindNotFound}
	ErrNoContent  = &Error{Kind: KindNoContent}
	ErrValidation = &Error{Kind: KindValidation}
	ErrConflict   = &Error{Kind: KindConflict}
)

// Error carries the kind plus the offending resource, id or field.
type Error struct {
	Kind      Kind
	Resource  string
	ID        string
	Field     string
	Message   string
	Retryable bool
}

func (e *Error) Error() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Resource != "" && e.ID != "":
		return fmt.Sprintf("%s %s: %s", e.Resource, e.ID, e.Kind)
	case e.Resource != "":
		return fmt.Sprintf("%s: %s", e.Resource, e.Kind)
	default:
		return string(e.Kind)
	}
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound)
// works for every not-found error regardless of resource.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// NotFound reports a missing entity.
func NotFound(resource string, id int64) *Error {
	return &Error{
		Kind:     KindNotFound,
		Resource: resource,
		ID:       strconv.FormatInt(id, 10),
		Message:  fmt.Sprintf("%s %d not found", resource, id),
	}
}

// NoContent reports an empty collection under a parent that exists.
func NoContent(resource string, parentID int64) *Error {
	return &Error{
		Kind:     KindNoContent,
		Resource: resource,
		ID:       strconv.FormatInt(parentID, 10),
		Message:  fmt.Sprintf("no %s for %d", resource, parentID),
	}
}

// Validation reports a business-rule violation on field.
func Validation(field, format string, args ...any) *Error {
	return &Error{
		Kind:    KindValidation,
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	}
}

// Conflict reports a uniqueness or identity clash on resource.
func Conflict(resource, format string, args ...any) *Error {
	return &Error{
		Kind:     KindConflict,
		Resource: resource,
		Message:  fmt.Sprintf(format, args...),
	}
}

// WithID returns a copy of e pointing at the given id.
func (e *Error) WithID(id int64) *Error {
	c := *e
	c.ID = strconv.FormatInt(id, 10)
	return &c
}

// AsRetryable returns a copy of e flagged as safe to resubmit unchanged.
func (e *Error) AsRetryable() *Error {
	c := *e
	c.Retryable = true
	return &c
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
