package chatclient

import (
	"sync/atomic"
)

// AuthState is the login state of a session. AuthUnknown means no login
// attempt has completed since the session was created.
type AuthState int8

const (
	AuthUnknown AuthState = iota
	AuthLoggedIn
	AuthLoggedOut
)

func (a AuthState) String() string {
	switch a {
	case AuthLoggedIn:
		return "logged-in"
	case AuthLoggedOut:
		return "logged-out"
	default:
		return "unknown"
	}
}

// Session holds the observable connection and account state of one client.
//
// Only the dispatcher's connection handlers write Connected, Auth and
// Maintenance; only call results write Identity and Registered. Auth is never
// AuthLoggedIn while Connected is false.
type Session struct {
	connected   *Subject[bool]
	auth        *Subject[AuthState]
	registered  *Subject[bool]
	maintenance *Subject[bool]
	identity    *Subject[string]

	closed atomic.Bool
}

// NewSession creates a disconnected session.
func NewSession() *Session {
	return &Session{
		connected:   NewSubject(false),
		auth:        NewSubject(AuthUnknown),
		registered:  NewSubject(false),
		maintenance: NewSubject(false),
		identity:    NewSubject(""),
	}
}

// Connected reports whether the transport is connected.
func (s *Session) Connected() Observable[bool] { return s.connected }

// Auth reports the login state.
func (s *Session) Auth() Observable[AuthState] { return s.auth }

// Registered reports whether this client registered a user.
func (s *Session) Registered() Observable[bool] { return s.registered }

// Maintenance reports whether the server is in maintenance mode.
func (s *Session) Maintenance() Observable[bool] { return s.maintenance }

// Identity is the address of the logged in user, or "".
func (s *Session) Identity() Observable[string] { return s.identity }

// LoggedIn is shorthand for Auth().Value() == AuthLoggedIn.
func (s *Session) LoggedIn() bool { return s.auth.Value() == AuthLoggedIn }

// Teardown drops every subscriber. The session keeps its last values.
func (s *Session) Teardown() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.connected.close()
	s.auth.close()
	s.registered.close()
	s.maintenance.close()
	s.identity.close()
}

func (s *Session) setConnected(v bool) {
	s.connected.next(v)
	if !v {
		s.auth.next(AuthLoggedOut)
	}
}

func (s *Session) setAuth(a AuthState) {
	if a == AuthLoggedIn && !s.connected.Value() {
		a = AuthLoggedOut
	}
	s.auth.next(a)
}

func (s *Session) setRegistered(v bool) { s.registered.next(v) }

func (s *Session) setMaintenance(v bool) {
	if s.maintenance.Value() == v {
		return
	}
	s.maintenance.next(v)
}

func (s *Session) setIdentity(address string) { s.identity.next(address) }
