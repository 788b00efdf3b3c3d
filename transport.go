package chatclient

import (
	"context"
	"encoding/json"
)

// Local meta-events raised by every Transport.
const (
	EventConnect      = "connect"
	EventDisconnect   = "disconnect"
	EventConnectError = "connect_error"
	EventReconnecting = "reconnecting"
)

// EventHandler receives the JSON arguments of an incoming event. Handlers run
// on the transport's read goroutine in arrival order and must not block.
type EventHandler func(args []json.RawMessage)

// AckFunc is the completion callback of an emitted event. Passed among the
// arguments of Emit, it is called once with the server's callback arguments,
// or with a non-nil err when the transport gave up on the call.
type AckFunc func(args []json.RawMessage, err error)

// Emitter sends a named event. An AckFunc among args requests a server
// callback; its position is preserved.
type Emitter interface {
	Emit(ctx context.Context, event string, args ...any) error
}

// Transport is a bidirectional event connection with socket.io semantics.
// Implementations reconnect on their own after unexpected drops; Disconnect
// is intentional and disables that until the next Connect.
type Transport interface {
	Emitter

	Connect(ctx context.Context) error
	Disconnect() error
	Connected() bool
	On(event string, h EventHandler)
}
