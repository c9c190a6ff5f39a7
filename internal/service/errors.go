package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Error kinds. Match with errors.Is; use errors.As with *Error for the client-facing message.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrValidation   = errors.New("validation failed")
	ErrUpstream     = errors.New("upstream failure")
)

// Error pairs a kind with a short message safe to show to clients. Cause,
// when set, is for logs only.
type Error struct {
	Kind  error
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Msg + ": " + e.Cause.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Kind, e.Cause}
	}
	return []error{e.Kind}
}

func newError(kind error, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

func upstream(op string, err error) error {
	return &Error{Kind: ErrUpstream, Msg: "internal server error", Cause: fmt.Errorf("%s: %w", op, err)}
}

// ValidationError lists the offending fields, keyed by JSON name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Fields[k]
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, msg string) error {
	return &ValidationError{Fields: map[string]string{field: msg}}
}
