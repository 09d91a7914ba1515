package ocppj

import (
	"errors"
	"fmt"
)

// ErrorCode is an OCPP-J CALLERROR code.
type ErrorCode string

const (
	NotImplemented               ErrorCode = "NotImplemented"
	NotSupported                 ErrorCode = "NotSupported"
	InternalError                ErrorCode = "InternalError"
	ProtocolError                ErrorCode = "ProtocolError"
	SecurityError                ErrorCode = "SecurityError"
	FormationViolation           ErrorCode = "FormationViolation"
	PropertyConstraintViolation  ErrorCode = "PropertyConstraintViolation"
	OccurenceConstraintViolation ErrorCode = "OccurenceConstraintViolation"
	TypeConstraintViolation      ErrorCode = "TypeConstraintViolation"
	GenericError                 ErrorCode = "GenericError"
)

// Error is a protocol-level fault. Returned by a Handler it becomes a
// CALLERROR reply; returned by Conn.Call it carries the peer's CALLERROR.
type Error struct {
	Code        ErrorCode
	Description string
	Details     map[string]any
}

func NewError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Description: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	if e.Description == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

var (
	// ErrClosed is returned by Call when the connection is or becomes closed
	// before a reply arrives.
	ErrClosed = errors.New("ocppj: connection closed")
	// ErrTimeout is returned by Call when no reply arrives in time.
	ErrTimeout = errors.New("ocppj: call timed out")
)

// RejectError rejects a handshake with an HTTP status.
type RejectError struct {
	Status int
	Reason string
}

func (e *RejectError) Error() string { return fmt.Sprintf("handshake rejected (%d): %s", e.Status, e.Reason) }
