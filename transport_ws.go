package chatclient

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// ============================================================================
// Configuration
// ============================================================================

// TransportConfig configures a WSTransport.
type TransportConfig struct {
	AutoReconnect        bool
	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	HeartbeatInterval    time.Duration
	// AckTTL bounds how long an unanswered ack is kept before it fails with
	// ErrTimeout.
	AckTTL     time.Duration
	ReadLimit  int64
	HTTPClient *http.Client
	Logger     *zap.Logger
}

func (c *TransportConfig) defaults() {
	if c.ReconnectBaseDelay == 0 {
		c.ReconnectBaseDelay = 1 * time.Second
	}
	if c.ReconnectMaxDelay == 0 {
		c.ReconnectMaxDelay = 30 * time.Second
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 25 * time.Second
	}
	if c.AckTTL == 0 {
		c.AckTTL = 2 * DefaultCallTimeout
	}
	if c.ReadLimit == 0 {
		c.ReadLimit = 4 << 20
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// TransportState represents the connection state.
type TransportState string

const (
	StateDisconnected TransportState = "disconnected"
	StateConnecting   TransportState = "connecting"
	StateConnected    TransportState = "connected"
	StateReconnecting TransportState = "reconnecting"
)

// ============================================================================
// Wire format
// ============================================================================

const (
	frameEmit  = "emit"
	frameAck   = "ack"
	frameEvent = "event"
)

// frame is the JSON envelope of every websocket message.
type frame struct {
	Type  string            `json:"type"`
	Event string            `json:"event,omitempty"`
	Args  []json.RawMessage `json:"args,omitempty"`
	AckID string            `json:"ackId,omitempty"`
	// AckIndex is the position the callback held among the arguments.
	AckIndex *int `json:"ackIndex,omitempty"`
}

// encodeArgs marshals args, pulling out the first AckFunc and its position.
func encodeArgs(args []any) ([]json.RawMessage, AckFunc, int, error) {
	out := make([]json.RawMessage, 0, len(args))
	var ack AckFunc
	at := -1
	for _, a := range args {
		if fn, ok := a.(AckFunc); ok && ack == nil {
			ack, at = fn, len(out)
			continue
		}
		b, err := json.Marshal(a)
		if err != nil {
			return nil, nil, -1, fmt.Errorf("argument %d: %w", len(out), err)
		}
		out = append(out, b)
	}
	return out, ack, at, nil
}

func rawArgs(vs ...any) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(vs))
	for _, v := range vs {
		b, _ := json.Marshal(v)
		out = append(out, b)
	}
	return out
}

// ============================================================================
// Handlers
// ============================================================================

type handlerSet struct {
	mu sync.RWMutex
	m  map[string][]EventHandler
}

func (h *handlerSet) add(event string, fn EventHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.m == nil {
		h.m = make(map[string][]EventHandler)
	}
	h.m[event] = append(h.m[event], fn)
}

// dispatch calls the handlers of event in registration order on the calling
// goroutine.
func (h *handlerSet) dispatch(event string, args []json.RawMessage) {
	h.mu.RLock()
	fns := append([]EventHandler(nil), h.m[event]...)
	h.mu.RUnlock()
	for _, fn := range fns {
		fn(args)
	}
}

// ============================================================================
// Reconnector
// ============================================================================

type reconnector struct {
	baseDelay   time.Duration
	maxDelay    time.Duration
	maxAttempts int
	attempt     int
	connectedAt time.Time
}

func newReconnector(config *TransportConfig) *reconnector {
	return &reconnector{
		baseDelay:   config.ReconnectBaseDelay,
		maxDelay:    config.ReconnectMaxDelay,
		maxAttempts: config.MaxReconnectAttempts,
	}
}

func (r *reconnector) shouldReconnect() bool {
	return r.maxAttempts == 0 || r.attempt < r.maxAttempts
}

func (r *reconnector) markConnected() {
	r.connectedAt = time.Now()
}

// nextDelay is exponential with up to 50% jitter, capped at maxDelay. A
// connection that stayed up for a minute resets the attempt count.
func (r *reconnector) nextDelay() time.Duration {
	if !r.connectedAt.IsZero() && time.Since(r.connectedAt) > 60*time.Second {
		r.attempt = 0
	}
	jitter := time.Duration(rand.Float64() * float64(r.baseDelay) * 0.5)
	delay := time.Duration(math.Min(
		float64(r.baseDelay)*math.Pow(2, float64(r.attempt))+float64(jitter),
		float64(r.maxDelay),
	))
	r.attempt++
	return delay
}

func (r *reconnector) reset() {
	r.attempt = 0
	r.connectedAt = time.Time{}
}

// ============================================================================
// WSTransport
// ============================================================================

type pendingAck struct {
	fn      AckFunc
	created time.Time
}

// WSTransport is a Transport over a websocket carrying JSON frames, with
// automatic reconnection and heartbeat.
type WSTransport struct {
	url      string
	config   TransportConfig
	log      *zap.Logger
	handlers handlerSet

	mu     sync.Mutex
	conn   *websocket.Conn
	state  TransportState
	cancel context.CancelFunc
	recon  *reconnector
	// gen changes on every intentional Disconnect so stale reconnect loops stop.
	gen uint64

	pendingMu sync.Mutex
	pending   map[string]pendingAck
}

// NewWSTransport creates a disconnected transport for url.
func NewWSTransport(url string, config TransportConfig) *WSTransport {
	config.defaults()
	return &WSTransport{
		url:     url,
		config:  config,
		log:     config.Logger.With(zap.String("url", url)),
		state:   StateDisconnected,
		recon:   newReconnector(&config),
		pending: make(map[string]pendingAck),
	}
}

// On implements Transport.
func (t *WSTransport) On(event string, h EventHandler) { t.handlers.add(event, h) }

// State returns the current connection state.
func (t *WSTransport) State() TransportState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Connected implements Transport.
func (t *WSTransport) Connected() bool { return t.State() == StateConnected }

// Connect dials the server. ctx bounds the dial only; the connection lives
// until Disconnect or a drop.
func (t *WSTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.state == StateConnected || t.state == StateConnecting {
		t.mu.Unlock()
		return nil
	}
	t.state = StateConnecting
	gen := t.gen
	t.mu.Unlock()

	conn, _, err := websocket.Dial(ctx, t.url, &websocket.DialOptions{HTTPClient: t.config.HTTPClient})
	if err != nil {
		t.setState(StateDisconnected)
		t.log.Debug("dial failed", zap.Error(err))
		t.handlers.dispatch(EventConnectError, rawArgs(err.Error()))
		return &TransportError{Op: "connect", Err: err}
	}
	conn.SetReadLimit(t.config.ReadLimit)

	loopCtx, cancel := context.WithCancel(context.Background())
	t.mu.Lock()
	if t.gen != gen {
		// Disconnect ran while dialing.
		t.mu.Unlock()
		cancel()
		_ = conn.Close(websocket.StatusNormalClosure, "client disconnect")
		return &TransportError{Op: "connect", Err: ErrNotConnected}
	}
	t.conn = conn
	t.state = StateConnected
	t.cancel = cancel
	t.recon.markConnected()
	t.mu.Unlock()

	t.log.Debug("connected")
	t.handlers.dispatch(EventConnect, nil)

	go t.readLoop(loopCtx, conn)
	go t.heartbeatLoop(loopCtx, conn)
	return nil
}

// Disconnect closes the connection and disables reconnection until the next
// Connect. Pending acks fail.
func (t *WSTransport) Disconnect() error {
	t.mu.Lock()
	t.gen++
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	conn := t.conn
	t.conn = nil
	wasUp := t.state == StateConnected
	t.state = StateDisconnected
	t.recon.reset()
	t.mu.Unlock()

	t.failPending(&TransportError{Op: "disconnect", Err: ErrNotConnected})

	if conn != nil {
		// The close handshake may fail on an already broken connection; the
		// socket is released either way.
		if err := conn.Close(websocket.StatusNormalClosure, "client disconnect"); err != nil {
			t.log.Debug("close", zap.Error(err))
		}
	}
	if wasUp {
		t.handlers.dispatch(EventDisconnect, rawArgs("io client disconnect"))
	}
	return nil
}

// Emit implements Transport. An AckFunc among args is called with the
// server's reply arguments, or with an error if the connection drops first.
func (t *WSTransport) Emit(ctx context.Context, event string, args ...any) error {
	payload, ack, at, err := encodeArgs(args)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}

	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return &TransportError{Op: "emit", Err: ErrNotConnected}
	}

	f := frame{Type: frameEmit, Event: event, Args: payload}
	if ack != nil {
		f.AckID = ulid.Make().String()
		f.AckIndex = &at
		t.pendingMu.Lock()
		t.pending[f.AckID] = pendingAck{fn: ack, created: time.Now()}
		t.pendingMu.Unlock()
	}

	data, err := json.Marshal(f)
	if err != nil {
		t.takePending(f.AckID)
		return fmt.Errorf("encode %s: %w", event, err)
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.takePending(f.AckID)
		return &TransportError{Op: "emit", Err: err}
	}
	return nil
}

func (t *WSTransport) setState(s TransportState) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

func (t *WSTransport) takePending(id string) (AckFunc, bool) {
	if id == "" {
		return nil, false
	}
	t.pendingMu.Lock()
	defer t.pendingMu.Unlock()
	p, ok := t.pending[id]
	if ok {
		delete(t.pending, id)
	}
	return p.fn, ok
}

func (t *WSTransport) failPending(err error) {
	t.pendingMu.Lock()
	pending := t.pending
	t.pending = make(map[string]pendingAck)
	t.pendingMu.Unlock()

	for _, p := range pending {
		p.fn(nil, err)
	}
}

func (t *WSTransport) expirePending(now time.Time) {
	var expired []AckFunc
	t.pendingMu.Lock()
	for id, p := range t.pending {
		if now.Sub(p.created) > t.config.AckTTL {
			expired = append(expired, p.fn)
			delete(t.pending, id)
		}
	}
	t.pendingMu.Unlock()

	for _, fn := range expired {
		fn(nil, ErrTimeout)
	}
}

func (t *WSTransport) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			t.dropped(conn, err)
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			t.log.Debug("malformed frame", zap.Error(err))
			continue
		}

		switch f.Type {
		case frameAck:
			if fn, ok := t.takePending(f.AckID); ok {
				fn(f.Args, nil)
			}
		case frameEvent, frameEmit:
			t.handlers.dispatch(f.Event, f.Args)
		default:
			t.log.Debug("unknown frame type", zap.String("type", f.Type))
		}
	}
}

// dropped handles an unexpected loss of conn.
func (t *WSTransport) dropped(conn *websocket.Conn, cause error) {
	t.mu.Lock()
	if t.conn != conn {
		t.mu.Unlock()
		return
	}
	t.conn = nil
	t.state = StateDisconnected
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	gen := t.gen
	t.mu.Unlock()

	t.log.Info("connection lost", zap.Error(cause))
	t.failPending(&TransportError{Op: "read", Err: cause})
	t.handlers.dispatch(EventDisconnect, rawArgs("transport close"))

	if t.config.AutoReconnect {
		go t.reconnectLoop(gen)
	}
}

func (t *WSTransport) reconnectLoop(gen uint64) {
	for {
		t.mu.Lock()
		if t.gen != gen || t.state != StateDisconnected || !t.recon.shouldReconnect() {
			t.mu.Unlock()
			return
		}
		delay := t.recon.nextDelay()
		attempt := t.recon.attempt
		t.state = StateReconnecting
		t.mu.Unlock()

		t.log.Info("reconnecting", zap.Int("attempt", attempt), zap.Duration("delay", delay))
		t.handlers.dispatch(EventReconnecting, rawArgs(attempt, delay.Milliseconds()))
		time.Sleep(delay)

		t.mu.Lock()
		if t.gen != gen || t.state != StateReconnecting {
			t.mu.Unlock()
			return
		}
		t.state = StateDisconnected
		t.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), t.config.ReconnectMaxDelay+10*time.Second)
		err := t.Connect(ctx)
		cancel()
		if err == nil {
			return
		}
	}
}

func (t *WSTransport) heartbeatLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(t.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			t.expirePending(now)

			pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil && ctx.Err() == nil {
				t.log.Warn("heartbeat failed", zap.Error(err))
				_ = conn.Close(websocket.StatusGoingAway, "heartbeat timeout")
				return
			}
		}
	}
}
