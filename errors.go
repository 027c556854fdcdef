package avstor

import (
	"errors"
	"fmt"
)

// Error represents an avstor error with an error code
type Error struct {
	Code    ErrorCode
	Message string
	Err     error // wrapped error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("avstor: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("avstor: %s", e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrorCode partitions failures by cause. The numeric code is authoritative;
// the message carried by an Error is advisory.
type ErrorCode int

const (
	// Success indicates the operation completed successfully
	Success ErrorCode = 0

	// ErrParam indicates a supplied parameter is invalid
	ErrParam ErrorCode = 1

	// ErrMismatch indicates the operation expected a different node type
	ErrMismatch ErrorCode = 2

	// ErrNoMem indicates a memory allocation failed
	ErrNoMem ErrorCode = 3

	// ErrNotFound indicates the node was not found
	ErrNotFound ErrorCode = 4

	// ErrExists indicates a node with the same name already exists
	ErrExists ErrorCode = 5

	// ErrIO indicates an I/O error
	ErrIO ErrorCode = 6

	// ErrCorrupt indicates data file corruption was detected
	ErrCorrupt ErrorCode = 7

	// ErrInvOper indicates an invalid operation (e.g. deleting a key
	// that still has children, or the target of a link)
	ErrInvOper ErrorCode = 8

	// ErrInternal indicates a broken internal invariant
	ErrInternal ErrorCode = 9

	// ErrAbort indicates the operation was aborted (a dirty page had to
	// be evicted but the store was opened without OpenAutosave)
	ErrAbort ErrorCode = 10
)

// Error descriptions
var errorMessages = map[ErrorCode]string{
	Success:     "success",
	ErrParam:    "invalid parameter",
	ErrMismatch: "node type mismatch",
	ErrNoMem:    "out of memory",
	ErrNotFound: "node not found",
	ErrExists:   "node with specified name already exists",
	ErrIO:       "i/o error",
	ErrCorrupt:  "data file corruption detected",
	ErrInvOper:  "invalid operation",
	ErrInternal: "internal error",
	ErrAbort:    "operation aborted",
}

// String returns the symbolic name of the code.
func (c ErrorCode) String() string {
	switch c {
	case Success:
		return "AVSTOR_OK"
	case ErrParam:
		return "AVSTOR_PARAM"
	case ErrMismatch:
		return "AVSTOR_MISMATCH"
	case ErrNoMem:
		return "AVSTOR_NOMEM"
	case ErrNotFound:
		return "AVSTOR_NOTFOUND"
	case ErrExists:
		return "AVSTOR_EXISTS"
	case ErrIO:
		return "AVSTOR_IOERR"
	case ErrCorrupt:
		return "AVSTOR_CORRUPT"
	case ErrInvOper:
		return "AVSTOR_INVOPER"
	case ErrInternal:
		return "AVSTOR_INTERNAL"
	case ErrAbort:
		return "AVSTOR_ABORT"
	}
	return fmt.Sprintf("AVSTOR_ERR(%d)", int(c))
}

// NewError creates a new Error with the given code
func NewError(code ErrorCode) *Error {
	msg, ok := errorMessages[code]
	if !ok {
		msg = fmt.Sprintf("unknown error code %d", code)
	}
	return &Error{Code: code, Message: msg}
}

// NewErrorMsg creates a new Error with the given code and a specific message.
func NewErrorMsg(code ErrorCode, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// WrapError creates a new Error wrapping another error
func WrapError(code ErrorCode, err error) *Error {
	e := NewError(code)
	e.Err = err
	return e
}

// Code returns the error code from an error, or ErrInternal if the error is
// not an avstor error.
func Code(err error) ErrorCode {
	if err == nil {
		return Success
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrInternal
}

// IsNotFound returns true if the error is ErrNotFound
func IsNotFound(err error) bool {
	return Code(err) == ErrNotFound
}

// IsExists returns true if the error is ErrExists
func IsExists(err error) bool {
	return Code(err) == ErrExists
}

// IsCorrupted returns true if the error indicates data file corruption
func IsCorrupted(err error) bool {
	return Code(err) == ErrCorrupt
}
