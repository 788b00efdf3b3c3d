package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"time"
)

// ============================================================================
// Reply
// ============================================================================

// Reply is the outcome of a server callback, built once at the transport
// boundary so nothing downstream re-parses positional arguments.
type Reply struct {
	Values []json.RawMessage
	Err    error
}

// Value returns the single value, a JSON array of all values, or null.
func (r Reply) Value() json.RawMessage {
	switch len(r.Values) {
	case 0:
		return json.RawMessage("null")
	case 1:
		return r.Values[0]
	default:
		b, _ := json.Marshal(r.Values)
		return b
	}
}

// replyFromArgs extracts the error found at errorArg, if any. A negative
// errorArg, or one past the end of args, means there is no error field.
func replyFromArgs(event string, args []json.RawMessage, errorArg int) Reply {
	if errorArg < 0 || errorArg >= len(args) {
		return Reply{Values: args}
	}
	values := make([]json.RawMessage, 0, len(args)-1)
	values = append(values, args[:errorArg]...)
	values = append(values, args[errorArg+1:]...)

	if raw := args[errorArg]; truthy(raw) {
		return Reply{Values: values, Err: &RemoteError{Event: event, Raw: errorText(raw)}}
	}
	return Reply{Values: values}
}

func truthy(raw json.RawMessage) bool {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return len(bytes.TrimSpace(raw)) > 0
	}
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		return x != ""
	default:
		return true
	}
}

func errorText(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &obj) == nil && obj.Message != "" {
		return obj.Message
	}
	return strings.TrimSpace(string(raw))
}

// ============================================================================
// SocketEmitter
// ============================================================================

// SocketEmitter turns callback-style event emission into promises.
type SocketEmitter struct {
	transport   Emitter
	timeout     time.Duration
	errorArg    int
	callbackArg int
}

// EmitterOption configures a SocketEmitter.
type EmitterOption func(*SocketEmitter)

// WithEmitTimeout sets the default per-call timeout. Non-positive disables it.
func WithEmitTimeout(d time.Duration) EmitterOption {
	return func(e *SocketEmitter) { e.timeout = d }
}

// WithErrorArg sets the callback argument position holding the error.
// A negative index means replies carry no error field.
func WithErrorArg(i int) EmitterOption {
	return func(e *SocketEmitter) { e.errorArg = i }
}

// WithCallbackArg sets where the completion callback is inserted among the
// outgoing arguments. A negative index appends it.
func WithCallbackArg(i int) EmitterOption {
	return func(e *SocketEmitter) { e.callbackArg = i }
}

// NewSocketEmitter creates an emitter over t. By default the error is the
// first callback argument, the callback is appended, and calls time out after
// DefaultCallTimeout.
func NewSocketEmitter(t Emitter, opts ...EmitterOption) *SocketEmitter {
	e := &SocketEmitter{
		transport:   t,
		timeout:     DefaultCallTimeout,
		errorArg:    0,
		callbackArg: -1,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EmitRequest describes one emission.
type EmitRequest struct {
	Event string
	Args  []any

	// ResultModifier reshapes a successful result.
	ResultModifier func(json.RawMessage) (json.RawMessage, error)
	// ErrorModifier maps a failure before it is surfaced.
	ErrorModifier func(error) error
	// Timeout overrides the emitter default when non-zero; negative disables.
	Timeout time.Duration
	// WaitBefore must resolve before the event is sent. Its rejection fails
	// the call without sending.
	WaitBefore *Promise[struct{}]
}

// Emit sends req and tracks the reply. The timeout covers WaitBefore too.
func (e *SocketEmitter) Emit(ctx context.Context, req EmitRequest) *Timed[json.RawMessage] {
	timeout := req.Timeout
	if timeout == 0 {
		timeout = e.timeout
	}

	inner := newPromise[json.RawMessage]()
	timed := Timeout(inner, timeout)

	go func() {
		defer recoverInto(inner)
		v, err := e.run(ctx, req, timed.Timer.Done())
		if err != nil && req.ErrorModifier != nil {
			err = req.ErrorModifier(err)
		}
		inner.settle(v, err)
	}()
	return timed
}

func (e *SocketEmitter) run(ctx context.Context, req EmitRequest, abort <-chan struct{}) (json.RawMessage, error) {
	if req.WaitBefore != nil {
		select {
		case <-req.WaitBefore.Done():
			if err := req.WaitBefore.Err(); err != nil {
				return nil, err
			}
		case <-abort:
			return nil, ErrTimeout
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	replies := make(chan Reply, 1)
	ack := AckFunc(func(args []json.RawMessage, err error) {
		r := Reply{Err: err}
		if err == nil {
			r = replyFromArgs(req.Event, args, e.errorArg)
		}
		select {
		case replies <- r:
		default:
		}
	})

	if err := e.transport.Emit(ctx, req.Event, injectAck(req.Args, ack, e.callbackArg)...); err != nil {
		return nil, err
	}

	select {
	case r := <-replies:
		if r.Err != nil {
			return nil, r.Err
		}
		v := r.Value()
		if req.ResultModifier != nil {
			return req.ResultModifier(v)
		}
		return v, nil
	case <-abort:
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func injectAck(args []any, ack AckFunc, at int) []any {
	out := make([]any, 0, len(args)+1)
	if at < 0 || at > len(args) {
		out = append(out, args...)
		return append(out, ack)
	}
	out = append(out, args[:at]...)
	out = append(out, ack)
	return append(out, args[at:]...)
}
