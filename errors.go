package chatclient

import (
	"errors"
	"fmt"
)

// ============================================================================
// Errors
// ============================================================================

var (
	// ErrTimeout is the rejection of a call, or a wait, that outlived its budget.
	ErrTimeout = errors.New("Timed out") //nolint:staticcheck // user-visible sentinel text

	// ErrSuperseded rejects a coalesced submission that lost to a newer one.
	ErrSuperseded = errors.New("superseded by a newer submission")

	// ErrNotConnected is returned when writing to a transport with no connection.
	ErrNotConnected = errors.New("not connected")

	// ErrClosed is returned by a client after Close.
	ErrClosed = errors.New("client closed")
)

// TransportError reports a connection-level failure.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return "transport " + e.Op
	}
	return "transport " + e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }

// ValidationError is raised locally, before transmission, when arguments do
// not match an event's declared parameters.
type ValidationError struct {
	Event  string
	Param  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Param == "" {
		return fmt.Sprintf("%s: %s", e.Event, e.Reason)
	}
	return fmt.Sprintf("%s: %s => %s", e.Event, e.Param, e.Reason)
}

// RemoteError is an error message returned by the server for a call.
//
// Messages shaped "<field> => <message>: <suffix>" are split into their parts;
// Translated holds the localized reassembly, which is what Error returns.
type RemoteError struct {
	Event      string
	Raw        string
	Field      string
	Message    string
	Suffix     string
	Translated string
}

func (e *RemoteError) Error() string {
	if e.Translated != "" {
		return e.Translated
	}
	return e.Raw
}

// IsTimeout reports whether err is, or wraps, ErrTimeout.
func IsTimeout(err error) bool { return errors.Is(err, ErrTimeout) }
