package board

import (
	"errors"
	"fmt"
)

// Error kinds. Match them with errors.Is.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrWrite      = errors.New("write rejected")
	ErrLoad       = errors.New("load failed")
)

// Error describes a failed board operation.
type Error struct {
	Kind  error  // one of the Err* sentinels
	Op    string // operation name, e.g. "create"
	Field string // offending field for validation errors
	Err   error  // underlying cause, may be nil
}

func (e *Error) Error() string {
	msg := e.Op + ": " + e.Kind.Error()
	if e.Field != "" {
		msg += fmt.Sprintf(" (%s)", e.Field)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the kind of this error.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

// Invalid returns a validation error for field.
func Invalid(op, field string) *Error {
	return &Error{Kind: ErrValidation, Op: op, Field: field}
}

// NotFound returns a not-found error for op.
func NotFound(op string, cause error) *Error {
	return &Error{Kind: ErrNotFound, Op: op, Err: cause}
}

// WriteFailed returns a write error for op.
func WriteFailed(op string, cause error) *Error {
	return &Error{Kind: ErrWrite, Op: op, Err: cause}
}

// LoadFailed returns a load error.
func LoadFailed(op string, cause error) *Error {
	return &Error{Kind: ErrLoad, Op: op, Err: cause}
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
