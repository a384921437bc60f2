package shared

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates the request failed input validation.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates the request clashes with existing state.
	ErrConflict = errors.New("conflict")
	// ErrForbidden indicates the caller lacks the required role or ownership.
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthorized indicates missing or invalid credentials.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// KindError carries a user facing message while matching one of the sentinel kinds.
type KindError struct {
	Kind    error
	Code    string
	Message string
}

func (e *KindError) Error() string { return e.Message }

func (e *KindError) Unwrap() error { return e.Kind }

// NewError builds a KindError for the provided kind.
func NewError(kind error, message string) error {
	return &KindError{Kind: kind, Message: message}
}

// NewCodedError builds a KindError with a machine readable code.
func NewCodedError(kind error, code, message string) error {
	return &KindError{Kind: kind, Code: code, Message: message}
}

// ErrorCode extracts the machine readable code, if any.
func ErrorCode(err error) string {
	var kerr *KindError
	if errors.As(err, &kerr) {
		return kerr.Code
	}
	return ""
}

// ValidationError aggregates field level validation failures.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Add records a field failure.
func (e *ValidationError) Add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = message
}

// Err returns nil when no field failed.
func (e *ValidationError) Err() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}
