package utils

import (
	"errors"
	"fmt"
)

// Error kinds shared across the pipeline. Match them with errors.Is.
var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrEmptyInput           = errors.New("empty input")
	ErrAlgorithmUnavailable = errors.New("algorithm unavailable")
	ErrAlgorithmFit         = errors.New("algorithm fit failed")
	ErrIO                   = errors.New("io failure")
	ErrNotFound             = errors.New("not found")
)

// AppError wraps an operation, an error kind, a human-facing message, and the underlying error.
type AppError struct {
	Op   string
	Kind error
	Msg  string
	Err  error
}

func (e *AppError) Error() string {
	prefix := e.Op
	if e.Kind != nil {
		prefix = fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", prefix, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", prefix, e.Msg, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the kind of this error.
func (e *AppError) Is(target error) bool {
	return e.Kind != nil && e.Kind == target
}

// NewAppError constructs an AppError.
func NewAppError(op string, kind error, msg string, err error) error {
	return &AppError{Op: op, Kind: kind, Msg: msg, Err: err}
}

// InvalidInput is shorthand for an ErrInvalidInput AppError without a cause.
func InvalidInput(op, format string, args ...any) error {
	return &AppError{Op: op, Kind: ErrInvalidInput, Msg: fmt.Sprintf(format, args...)}
}
