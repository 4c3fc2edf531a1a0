package transport

import (
	"errors"
	"fmt"
)

// Code is a transport failure code. All codes are negative.
type Code int

// Failure codes.
const (
	CodeTimeout    Code = -1
	CodeGeneric    Code = -2
	CodeMemory     Code = -3
	CodeConnection Code = -4
	CodeTruncated  Code = -5
)

// String returns the code name.
func (c Code) String() string {
	switch c {
	case CodeTimeout:
		return "TIMEOUT"
	case CodeGeneric:
		return "GENERIC"
	case CodeMemory:
		return "MEMORY"
	case CodeConnection:
		return "CONNECTION"
	case CodeTruncated:
		return "TRUNCATED"
	default:
		return fmt.Sprintf("Code(%d)", int(c))
	}
}

// Sentinels matched by errors.Is against any *Error with the same code.
var (
	ErrTimeout    = errors.New("transport: timeout")
	ErrGeneric    = errors.New("transport: generic failure")
	ErrMemory     = errors.New("transport: out of memory")
	ErrConnection = errors.New("transport: connection failure")
	ErrTruncated  = errors.New("transport: response truncated")
)

// Causes wrapped inside an *Error.
var (
	ErrBusy             = errors.New("another exchange is in progress on this handle")
	ErrNotConnected     = errors.New("not connected")
	ErrInvalidTrust     = errors.New("no usable certificate in trust anchor")
	ErrEmptyBuffer      = errors.New("response buffer is empty")
	ErrInvalidTimeout   = errors.New("timeout must be positive")
	ErrConnectionClosed = errors.New("connection closed")
)

// Error is a classified transport failure.
type Error struct {
	Code Code
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for e.Code.
func (e *Error) Is(target error) bool {
	return target == sentinel(e.Code)
}

func sentinel(c Code) error {
	switch c {
	case CodeTimeout:
		return ErrTimeout
	case CodeGeneric:
		return ErrGeneric
	case CodeMemory:
		return ErrMemory
	case CodeConnection:
		return ErrConnection
	case CodeTruncated:
		return ErrTruncated
	default:
		return nil
	}
}

// CodeOf returns the code of the first *Error in err's chain, 0 for nil and
// CodeGeneric for anything else.
func CodeOf(err error) Code {
	if err == nil {
		return 0
	}
	var te *Error
	if errors.As(err, &te) {
		return te.Code
	}
	return CodeGeneric
}

func newError(code Code, op string, err error) *Error {
	return &Error{Code: code, Op: op, Err: err}
}
