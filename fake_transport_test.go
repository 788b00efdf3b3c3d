package chatclient

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"
)

type sentEvent struct {
	event string
	args  []any
}

// fakeTransport is an in-memory Transport. Emits are recorded and answered
// through reply; returning false from reply leaves the call unanswered.
type fakeTransport struct {
	mu          sync.Mutex
	connected   bool
	handlers    map[string][]EventHandler
	sent        []sentEvent
	connects    int
	disconnects int
	connectErr  error
	maintenance bool
	reply       func(event string, args []any) ([]any, bool)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{handlers: make(map[string][]EventHandler)}
}

func (f *fakeTransport) Connect(context.Context) error {
	f.mu.Lock()
	f.connects++
	if f.connectErr != nil {
		err := f.connectErr
		f.mu.Unlock()
		f.fire(EventConnectError, err.Error())
		return err
	}
	if f.connected {
		f.mu.Unlock()
		return nil
	}
	f.connected = true
	f.mu.Unlock()

	f.fire(EventConnect)
	return nil
}

func (f *fakeTransport) Disconnect() error {
	f.mu.Lock()
	was := f.connected
	f.connected = false
	f.disconnects++
	f.mu.Unlock()

	if was {
		f.fire(EventDisconnect, "io client disconnect")
	}
	return nil
}

// drop simulates the server closing the connection.
func (f *fakeTransport) drop() {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	f.fire(EventDisconnect, "transport close")
}

func (f *fakeTransport) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) On(event string, h EventHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[event] = append(f.handlers[event], h)
}

func (f *fakeTransport) Emit(_ context.Context, event string, args ...any) error {
	var ack AckFunc
	payload := make([]any, 0, len(args))
	for _, a := range args {
		if fn, ok := a.(AckFunc); ok && ack == nil {
			ack = fn
			continue
		}
		payload = append(payload, a)
	}

	f.mu.Lock()
	if !f.connected {
		f.mu.Unlock()
		return &TransportError{Op: "emit", Err: ErrNotConnected}
	}
	f.sent = append(f.sent, sentEvent{event: event, args: payload})
	reply := f.reply
	maintenance := f.maintenance
	f.mu.Unlock()

	if ack == nil {
		return nil
	}
	var (
		res []any
		ok  bool
	)
	if reply != nil {
		res, ok = reply(event, payload)
	} else {
		res, ok = defaultReply(event, maintenance)
	}
	if ok {
		go ack(rawArgs(res...), nil)
	}
	return nil
}

func defaultReply(event string, maintenance bool) ([]any, bool) {
	switch event {
	case EventMaintenanceMode:
		return []any{nil, maintenance}, true
	case EventLogin:
		return []any{nil, []string{"user"}}, true
	case EventIDExists, EventIsUserOnline:
		return []any{nil, false}, true
	}
	return []any{nil, nil}, true
}

// setMaintenance changes the server flag and pushes it to the client.
func (f *fakeTransport) setMaintenance(active bool) {
	f.mu.Lock()
	f.maintenance = active
	f.mu.Unlock()
	f.fire(EventMaintenanceMode, active)
}

func (f *fakeTransport) setReply(fn func(event string, args []any) ([]any, bool)) {
	f.mu.Lock()
	f.reply = fn
	f.mu.Unlock()
}

func (f *fakeTransport) fire(event string, args ...any) {
	f.mu.Lock()
	hs := append([]EventHandler(nil), f.handlers[event]...)
	f.mu.Unlock()

	raw := rawArgs(args...)
	for _, h := range hs {
		h(raw)
	}
}

// sentTo returns the recorded emits of event.
func (f *fakeTransport) sentTo(event string) []sentEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentEvent
	for _, s := range f.sent {
		if s.event == event {
			out = append(out, s)
		}
	}
	return out
}

func (f *fakeTransport) counts() (connects, disconnects int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects, f.disconnects
}

// newTestClient builds a client over f with metadata and the idle timer off
// unless opts say otherwise.
func newTestClient(t *testing.T, f *fakeTransport, opts ...ClientOption) *Client {
	t.Helper()
	base := []ClientOption{
		WithTransport(f),
		WithoutMetadata(),
		WithIdleTimeout(0),
		WithCallTimeout(2 * time.Second),
	}
	c := NewClient("ws://test/ws", append(base, opts...)...)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func ctxWithTimeout(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return b
}
