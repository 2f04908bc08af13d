package syncer

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes sync and read failures.
type ErrorCode string

const (
	// ErrCodeConfig indicates missing or invalid configuration, such as
	// absent source credentials or an unknown variant tag.
	ErrCodeConfig ErrorCode = "CONFIG"

	// ErrCodeConnection indicates the source or storage is unreachable.
	ErrCodeConnection ErrorCode = "CONNECTION"

	// ErrCodeFetch indicates the source failed while delivering records.
	ErrCodeFetch ErrorCode = "FETCH"

	// ErrCodeArrange indicates source-specific relationship wiring failed.
	ErrCodeArrange ErrorCode = "ARRANGE"

	// ErrCodePersistence indicates a store failed part way. Types stored
	// before Type remain replaced.
	ErrCodePersistence ErrorCode = "PERSISTENCE"
)

// Error is a failure surfaced by Sync or Content.
type Error struct {
	Code    ErrorCode
	Message string
	// Type names the collection being processed, when known.
	Type string
	Err  error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Type != "" {
		msg += fmt.Sprintf(" (type=%s)", e.Type)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewConfigError creates an Error for invalid configuration.
func NewConfigError(message string) *Error {
	return &Error{Code: ErrCodeConfig, Message: message}
}

// NewPersistenceError creates an Error for a store that failed on typ.
func NewPersistenceError(typ string, err error) *Error {
	return &Error{Code: ErrCodePersistence, Message: "store collection", Type: typ, Err: err}
}

// wrap returns err unchanged when it already is an *Error, so codes set by
// collaborators (config errors at connect time, persistence errors naming
// a type) survive.
func wrap(code ErrorCode, message string, err error) error {
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// IsConfigError reports whether err is a configuration error.
func IsConfigError(err error) bool {
	return CodeOf(err) == ErrCodeConfig
}

// IsConnectionError reports whether err is a connection error.
func IsConnectionError(err error) bool {
	return CodeOf(err) == ErrCodeConnection
}
