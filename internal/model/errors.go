package model

import (
	"errors"
	"fmt"
)

// Error kinds. Anything that does not wrap one of these is an infrastructure failure.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
)

// Error is an expected business failure. Code doubles as the message ID used to
// localize the failure for the caller.
type Error struct {
	Kind   error
	Code   string
	Detail string
	Data   any
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%v: %s", e.Kind, e.Code)
	}
	return fmt.Sprintf("%v: %s: %s", e.Kind, e.Code, e.Detail)
}

func (e *Error) Unwrap() error { return e.Kind }

// Validation builds an ErrValidation failure.
func Validation(code, detail string) *Error {
	return &Error{Kind: ErrValidation, Code: code, Detail: detail}
}

// NotFound builds an ErrNotFound failure.
func NotFound(code, detail string) *Error {
	return &Error{Kind: ErrNotFound, Code: code, Detail: detail}
}

// Conflict builds an ErrConflict failure.
func Conflict(code, detail string) *Error {
	return &Error{Kind: ErrConflict, Code: code, Detail: detail}
}

// KindName returns the envelope kind for err, or "" for infrastructure errors.
func KindName(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	}
	return ""
}
