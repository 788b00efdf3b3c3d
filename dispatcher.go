package chatclient

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// eventSpec is how the dispatcher treats one event.
type eventSpec struct {
	name string
	// noLogin events go out without waiting for a login.
	noLogin bool
	// maintenanceExempt events go out while maintenance mode is on.
	maintenanceExempt bool
	// skipMeta bypasses metadata lookup (the metadata call itself).
	skipMeta bool
	// fromMeta takes the login and maintenance flags from metadata, when
	// available.
	fromMeta bool
	reshape  func(json.RawMessage) (json.RawMessage, error)
	// onSuccess runs after a successful reply, before the caller sees it.
	onSuccess func(args []any, result json.RawMessage)
	// onError runs after a failure other than a local validation error.
	onError func(err error)
}

// dispatcher turns named events into promises, gating each call on
// connection, login and maintenance state.
type dispatcher struct {
	transport  Transport
	session    *Session
	emitter    *SocketEmitter
	translator Translator
	metrics    *Metrics
	log        *zap.Logger
	meta       *metaRegistry

	timeout     time.Duration
	idleTimeout time.Duration

	// afterConnect runs on its own goroutine after every connect event. It
	// calls known once the maintenance flag of the new connection is settled.
	afterConnect func(known func())

	connecting singleflight.Group

	// maintKnown is true once the maintenance flag has been read from the
	// current connection. gen counts connections.
	syncMu     sync.Mutex
	gen        uint64
	maintKnown *Subject[bool]

	idleMu   sync.Mutex
	idle     *time.Timer
	inflight int
	closed   bool
}

type dispatcherConfig struct {
	transport   Transport
	session     *Session
	translator  Translator
	metrics     *Metrics
	log         *zap.Logger
	timeout     time.Duration
	idleTimeout time.Duration
}

func newDispatcher(cfg dispatcherConfig) *dispatcher {
	if cfg.translator == nil {
		cfg.translator = identityTranslator{}
	}
	if cfg.log == nil {
		cfg.log = zap.NewNop()
	}
	d := &dispatcher{
		transport:   cfg.transport,
		session:     cfg.session,
		emitter:     NewSocketEmitter(cfg.transport, WithEmitTimeout(cfg.timeout)),
		translator:  cfg.translator,
		metrics:     cfg.metrics,
		log:         cfg.log,
		timeout:     cfg.timeout,
		idleTimeout: cfg.idleTimeout,
		maintKnown:  NewSubject(false),
	}

	d.transport.On(EventConnect, d.onConnect)
	d.transport.On(EventDisconnect, d.onDisconnect)
	d.transport.On(EventConnectError, d.onConnectError)
	d.transport.On(EventReconnecting, func(args []json.RawMessage) {
		d.log.Debug("transport reconnecting", zap.Int("args", len(args)))
	})
	d.transport.On(EventMaintenanceMode, func(args []json.RawMessage) {
		if len(args) == 0 {
			return
		}
		var active bool
		if err := json.Unmarshal(args[0], &active); err != nil {
			d.log.Debug("bad maintenance-mode push", zap.Error(err))
			return
		}
		d.session.setMaintenance(active)
		d.syncMu.Lock()
		gen := d.gen
		d.syncMu.Unlock()
		d.maintenanceKnown(gen)
	})
	return d
}

// ============================================================================
// Connection handlers
// ============================================================================

func (d *dispatcher) onConnect([]json.RawMessage) {
	d.log.Info("connected")
	d.syncMu.Lock()
	d.gen++
	gen := d.gen
	d.maintKnown.next(false)
	d.syncMu.Unlock()

	d.session.setConnected(true)
	d.metrics.setConnected(true)
	if d.meta != nil {
		d.meta.reset()
	}
	if d.afterConnect == nil {
		d.maintenanceKnown(gen)
		return
	}
	go d.afterConnect(func() { d.maintenanceKnown(gen) })
}

func (d *dispatcher) onDisconnect(args []json.RawMessage) {
	d.log.Info("disconnected", zap.String("reason", firstString(args)))
	d.lost()
}

func (d *dispatcher) onConnectError(args []json.RawMessage) {
	d.log.Warn("connect error", zap.String("error", firstString(args)))
	d.lost()
}

func (d *dispatcher) lost() {
	d.syncMu.Lock()
	d.gen++
	d.maintKnown.next(false)
	d.syncMu.Unlock()

	d.session.setConnected(false)
	d.metrics.setConnected(false)
	if d.meta != nil {
		d.meta.reset()
	}
}

// maintenanceKnown marks the maintenance flag of connection gen as read. Calls
// for an older connection are ignored.
func (d *dispatcher) maintenanceKnown(gen uint64) {
	d.syncMu.Lock()
	defer d.syncMu.Unlock()
	if gen != d.gen || d.maintKnown.Value() {
		return
	}
	d.maintKnown.next(true)
}

func firstString(args []json.RawMessage) string {
	if len(args) == 0 {
		return ""
	}
	return errorText(args[0])
}

// connect starts a single shared connection attempt and waits for it.
func (d *dispatcher) connect(ctx context.Context) error {
	ch := d.connecting.DoChan("connect", func() (any, error) {
		cctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		return nil, d.transport.Connect(cctx)
	})
	select {
	case r := <-ch:
		if r.Err != nil {
			d.log.Warn("connect failed", zap.Error(r.Err))
		}
		return r.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ============================================================================
// Calls
// ============================================================================

// call sends the event with args. The returned promise settles once with
// the (reshaped) result or the first failure along the way.
func (d *dispatcher) call(ctx context.Context, spec eventSpec, args []any) *Promise[json.RawMessage] {
	out := newPromise[json.RawMessage]()
	start := time.Now()
	d.begin()

	go func() {
		defer d.end()
		defer recoverInto(out)

		v, outcome, err := d.run(ctx, spec, args)
		d.metrics.observeCall(spec.name, outcome, time.Since(start))
		if err != nil {
			d.log.Debug("call failed",
				zap.String("event", spec.name),
				zap.String("outcome", outcome),
				zap.Duration("elapsed", time.Since(start)),
				zap.Error(err))
		} else {
			d.log.Debug("call done",
				zap.String("event", spec.name),
				zap.Duration("elapsed", time.Since(start)))
		}
		out.settle(v, err)
	}()
	return out
}

func (d *dispatcher) run(ctx context.Context, spec eventSpec, args []any) (json.RawMessage, string, error) {
	timeout := d.timeout
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	// PREPARING
	reshape := spec.reshape
	if d.meta != nil && !spec.skipMeta {
		mctx, cancel := ctx, context.CancelFunc(func() {})
		if timeout > 0 {
			mctx, cancel = context.WithDeadline(ctx, deadline)
		}
		meta, ok := d.meta.lookup(mctx, spec.name)
		cancel()
		if ok {
			checked, err := validateArgs(meta, args)
			if err != nil {
				return nil, outcomeInvalid, err
			}
			args = checked
			if reshape == nil && meta.ResultIsMap() {
				reshape = pairsToObject
			}
			if spec.fromMeta {
				spec.noLogin = !meta.RequireLogin
				spec.maintenanceExempt = meta.MaintenanceExempt
			}
		}
	}

	// The rest of the call gets what PREPARING left of the budget.
	if timeout > 0 {
		timeout = time.Until(deadline)
		if timeout <= 0 {
			if spec.onError != nil {
				spec.onError(ErrTimeout)
			}
			return nil, outcomeTimeout, ErrTimeout
		}
	}

	// WAITING_FOR_PRECONDITION and TRANSMITTED
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	timed := d.emitter.Emit(ctx, EmitRequest{
		Event:          spec.name,
		Args:           args,
		ResultModifier: reshape,
		ErrorModifier:  translateErr(d.translator),
		Timeout:        timeout,
		WaitBefore:     d.precondition(waitCtx, spec),
	})

	v, err := timed.Wait()
	if err != nil {
		if spec.onError != nil {
			spec.onError(err)
		}
		if timed.TimedOut() {
			return nil, outcomeTimeout, err
		}
		return nil, outcomeError, err
	}
	if spec.onSuccess != nil {
		spec.onSuccess(args, v)
	}
	return v, outcomeOK, nil
}

// precondition returns a promise that resolves once the event may be transmitted,
// or nil when it may go out right away. The waits run concurrently; the first
// failure rejects the promise and cancels the others.
//
// The maintenance gate of a non-exempt event follows the connection: it waits
// for the connect, then for the new connection's maintenance flag, and only
// then for maintenance to end.
func (d *dispatcher) precondition(ctx context.Context, spec eventSpec) *Promise[struct{}] {
	s := d.session
	var waits []func(context.Context) error

	needConnect := !s.Connected().Value()
	gate := !spec.maintenanceExempt &&
		(needConnect || !d.maintKnown.Value() || s.Maintenance().Value())

	if needConnect || gate {
		waits = append(waits, func(ctx context.Context) error {
			if needConnect {
				if err := d.connect(ctx); err != nil {
					return err
				}
				if err := awaitValue(ctx, s.Connected(), true); err != nil {
					return err
				}
			}
			if !gate {
				return nil
			}
			if err := awaitValue[bool](ctx, d.maintKnown, true); err != nil {
				return err
			}
			return awaitValue(ctx, s.Maintenance(), false)
		})
	}
	if !spec.noLogin && !s.LoggedIn() {
		waits = append(waits, func(ctx context.Context) error {
			return awaitValue(ctx, s.Auth(), AuthLoggedIn)
		})
	}
	if len(waits) == 0 {
		return nil
	}

	d.log.Debug("waiting before emit", zap.String("event", spec.name), zap.Int("conditions", len(waits)))
	return Go(func() (struct{}, error) {
		g, gctx := errgroup.WithContext(ctx)
		for _, wait := range waits {
			wait := wait
			g.Go(func() error { return wait(gctx) })
		}
		return struct{}{}, g.Wait()
	})
}

func awaitValue[T comparable](ctx context.Context, obs Observable[T], want T) error {
	p, _ := WaitForValue(ctx, obs, want, 0)
	_, err := p.Wait()
	return err
}

// ============================================================================
// Idle disconnect
// ============================================================================

func (d *dispatcher) begin() {
	d.idleMu.Lock()
	defer d.idleMu.Unlock()
	d.inflight++
	if d.idle != nil {
		d.idle.Stop()
	}
}

// end restarts the idle timer once a call completes, successful or not.
func (d *dispatcher) end() {
	d.idleMu.Lock()
	defer d.idleMu.Unlock()
	d.inflight--
	if d.closed || d.idleTimeout <= 0 {
		return
	}
	if d.idle == nil {
		d.idle = time.AfterFunc(d.idleTimeout, d.idleFired)
		return
	}
	d.idle.Reset(d.idleTimeout)
}

func (d *dispatcher) idleFired() {
	d.idleMu.Lock()
	busy := d.inflight > 0 || d.closed
	d.idleMu.Unlock()
	if busy || !d.transport.Connected() {
		return
	}

	d.log.Info("idle timeout, disconnecting", zap.Duration("idle", d.idleTimeout))
	d.metrics.idleDisconnect()
	if err := d.transport.Disconnect(); err != nil {
		d.log.Warn("idle disconnect failed", zap.Error(err))
	}
}

func (d *dispatcher) close() {
	d.idleMu.Lock()
	defer d.idleMu.Unlock()
	d.closed = true
	if d.idle != nil {
		d.idle.Stop()
	}
}
