package centralsystem

import (
	"errors"
	"fmt"
)

// ErrNotConnected means the charge point has no live connection. It is an
// expected outcome for operator commands, not a fault.
var ErrNotConnected = errors.New("charge point not connected")

// ValidationError reports a missing or invalid field of an operator command.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s is required", e.Field)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// AuthenticationError rejects a charge point credential.
type AuthenticationError struct {
	Identity string
	Reason   string
}

func (e *AuthenticationError) Error() string {
	if e.Identity == "" {
		return "authentication failed: " + e.Reason
	}
	return fmt.Sprintf("authentication failed for %s: %s", e.Identity, e.Reason)
}

// PersistenceError wraps a store failure met while handling a charger call.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *PersistenceError) Unwrap() error { return e.Err }

// CommandError wraps a remote command that was sent but did not produce a
// usable confirmation: a CALLERROR, a timeout, a closed connection or an
// undecodable reply.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string { return e.Command + " failed: " + e.Err.Error() }

func (e *CommandError) Unwrap() error { return e.Err }
