package ymodem

import (
	"errors"
	"fmt"
)

// Error represents a YMODEM protocol error
type Error struct {
	// Type is the error type
	Type ErrorType

	// Message is a human-readable error message
	Message string

	// Seq is the packet sequence number involved, or -1
	Seq int

	// Err is the underlying cause (storage or transport), if any
	Err error
}

// ErrorType categorizes YMODEM errors
type ErrorType int

const (
	// ErrProtocol indicates a framing violation (bad header byte or complement)
	ErrProtocol ErrorType = iota

	// ErrSequence indicates a packet arrived out of sequence
	ErrSequence

	// ErrCRC indicates a CRC mismatch
	ErrCRC

	// ErrTimeout indicates the transport timed out waiting for a byte
	ErrTimeout

	// ErrIO indicates a transport I/O error
	ErrIO

	// ErrCancelled indicates the peer cancelled with two CA bytes
	ErrCancelled

	// ErrAbortRequested indicates the peer requested an abort with 'A' or 'a'
	ErrAbortRequested

	// ErrNoFile indicates the sender opened the session with an empty file name
	ErrNoFile

	// ErrSize indicates the declared file size does not fit the storage region
	ErrSize

	// ErrStorage indicates an erase, program, verify or lock failure
	ErrStorage

	// ErrLocalAbort indicates the caller aborted the session
	ErrLocalAbort
)

func (e *Error) Error() string {
	msg := fmt.Sprintf("ymodem %s: %s", e.Type, e.Message)
	if e.Seq >= 0 {
		msg += fmt.Sprintf(" (packet %d)", e.Seq)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

func (t ErrorType) String() string {
	switch t {
	case ErrProtocol:
		return "protocol error"
	case ErrSequence:
		return "sequence error"
	case ErrCRC:
		return "CRC error"
	case ErrTimeout:
		return "timeout"
	case ErrIO:
		return "I/O error"
	case ErrCancelled:
		return "cancelled"
	case ErrAbortRequested:
		return "abort requested"
	case ErrNoFile:
		return "no file"
	case ErrSize:
		return "size error"
	case ErrStorage:
		return "storage error"
	case ErrLocalAbort:
		return "local abort"
	default:
		return "unknown error"
	}
}

// NewError creates a new YMODEM error
func NewError(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Seq:     -1,
	}
}

// NewPacketError creates a new YMODEM error with packet sequence information
func NewPacketError(errType ErrorType, message string, seq int) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Seq:     seq,
	}
}

// wrapError attaches a cause to a new error.
func wrapError(errType ErrorType, message string, seq int, err error) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Seq:     seq,
		Err:     err,
	}
}

func errorType(err error) (ErrorType, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Type, true
	}
	return 0, false
}

// IsTimeout checks if an error is a timeout error
func IsTimeout(err error) bool {
	t, ok := errorType(err)
	return ok && t == ErrTimeout
}

// IsCRC checks if an error is a CRC error
func IsCRC(err error) bool {
	t, ok := errorType(err)
	return ok && t == ErrCRC
}

// IsCancelled checks if an error means the session was aborted by either side
func IsCancelled(err error) bool {
	t, ok := errorType(err)
	if !ok {
		return false
	}
	switch t {
	case ErrCancelled, ErrAbortRequested, ErrNoFile, ErrLocalAbort:
		return true
	}
	return false
}

// IsStorage checks if an error came from the storage backend
func IsStorage(err error) bool {
	t, ok := errorType(err)
	return ok && t == ErrStorage
}
