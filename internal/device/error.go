package device

import (
	"errors"
	"fmt"
)

// Code classifies a device error, mirroring the codes reported to callers
// through the per-device error slot.
type Code int

const (
	CodeNone Code = iota
	CodeUnknown
	CodeInvalidArgument
	CodeInvalidOperation
	CodeOutOfMemory
	CodeUnsupportedHardware
	CodeCancelled
)

func (c Code) String() string {
	switch c {
	case CodeNone:
		return "none"
	case CodeUnknown:
		return "unknown"
	case CodeInvalidArgument:
		return "invalid argument"
	case CodeInvalidOperation:
		return "invalid operation"
	case CodeOutOfMemory:
		return "out of memory"
	case CodeUnsupportedHardware:
		return "unsupported hardware"
	case CodeCancelled:
		return "cancelled"
	default:
		return "invalid"
	}
}

// Sentinel errors for errors.Is matching. Every *Error unwraps to the
// sentinel of its code.
var (
	ErrUnknown             = errors.New("unknown error")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrInvalidOperation    = errors.New("invalid operation")
	ErrOutOfMemory         = errors.New("out of memory")
	ErrUnsupportedHardware = errors.New("unsupported hardware")
	ErrCancelled           = errors.New("cancelled")
)

func sentinel(c Code) error {
	switch c {
	case CodeInvalidArgument:
		return ErrInvalidArgument
	case CodeInvalidOperation:
		return ErrInvalidOperation
	case CodeOutOfMemory:
		return ErrOutOfMemory
	case CodeUnsupportedHardware:
		return ErrUnsupportedHardware
	case CodeCancelled:
		return ErrCancelled
	default:
		return ErrUnknown
	}
}

// Error is a coded device error.
type Error struct {
	Code Code
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Code.String()
	}
	return e.Code.String() + ": " + e.Msg
}

func (e *Error) Unwrap() error { return sentinel(e.Code) }

// Errorf builds a coded error with a formatted message.
func Errorf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the code from an error, CodeUnknown for foreign errors
// and CodeNone for nil.
func CodeOf(err error) Code {
	if err == nil {
		return CodeNone
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeUnknown
}
