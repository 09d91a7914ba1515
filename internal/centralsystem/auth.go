package centralsystem

import (
	"fmt"
	"sync/atomic"

	"csms/internal/ocppj"
	"csms/internal/security"
)

// Authentication modes, selected per deployment with auth.mode.
const (
	// AuthModeHandshake checks the credential before the websocket upgrade.
	AuthModeHandshake = "handshake"
	// AuthModeBoot accepts any identity at the upgrade and checks the
	// credential on the first BootNotification.
	AuthModeBoot = "boot"
)

// Session is attached to a connection at the handshake and lives as long as
// the connection does.
type Session struct {
	Identity   string
	RemoteAddr string

	credential    string
	hasCredential bool
	authenticated atomic.Bool
	// unregistered is set when the disconnect removed this connection's
	// registry entry.
	unregistered atomic.Bool
}

func newSession(h ocppj.Handshake) *Session {
	return &Session{
		Identity:      h.Identity,
		RemoteAddr:    h.RemoteAddr,
		credential:    h.Password,
		hasCredential: h.HasPassword,
	}
}

func (s *Session) Authenticated() bool { return s.authenticated.Load() }

// AuthGate decides whether a charge point may talk to the central system.
type AuthGate interface {
	Mode() string
	// Handshake accepts or rejects a connection attempt. Accepted sessions
	// may still be unauthenticated, in which case Boot decides.
	Handshake(h ocppj.Handshake) (*Session, error)
	// Boot is consulted on every BootNotification. It reports whether this
	// call is the one that authenticated s.
	Boot(s *Session) (bool, error)
}

// NewAuthGate returns the strategy for mode. An unset secret accepts every
// non-empty identity.
func NewAuthGate(mode string, secret security.SharedSecret) (AuthGate, error) {
	switch mode {
	case "", AuthModeHandshake:
		return &HandshakeAuth{secret: secret}, nil
	case AuthModeBoot:
		return &BootAuth{secret: secret}, nil
	default:
		return nil, fmt.Errorf("unknown auth mode %q", mode)
	}
}

type HandshakeAuth struct {
	secret security.SharedSecret
}

func (a *HandshakeAuth) Mode() string { return AuthModeHandshake }

func (a *HandshakeAuth) Handshake(h ocppj.Handshake) (*Session, error) {
	if h.Identity == "" {
		return nil, &AuthenticationError{Reason: "missing identity"}
	}
	if a.secret.Configured() && (!h.HasPassword || !a.secret.Matches(h.Password)) {
		return nil, &AuthenticationError{Identity: h.Identity, Reason: "invalid credential"}
	}
	s := newSession(h)
	s.authenticated.Store(true)
	return s, nil
}

func (a *HandshakeAuth) Boot(*Session) (bool, error) { return false, nil }

type BootAuth struct {
	secret security.SharedSecret
}

func (a *BootAuth) Mode() string { return AuthModeBoot }

func (a *BootAuth) Handshake(h ocppj.Handshake) (*Session, error) {
	if h.Identity == "" {
		return nil, &AuthenticationError{Reason: "missing identity"}
	}
	return newSession(h), nil
}

func (a *BootAuth) Boot(s *Session) (bool, error) {
	if s.Authenticated() {
		return false, nil
	}
	if a.secret.Configured() && (!s.hasCredential || !a.secret.Matches(s.credential)) {
		return false, &AuthenticationError{Identity: s.Identity, Reason: "invalid credential"}
	}
	return s.authenticated.CompareAndSwap(false, true), nil
}
