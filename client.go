// Package chatclient is a Go client for the Totem chat server.
//
// Every server event is exposed as a method returning a *Promise. Calls wait
// for a connection, a login and the end of maintenance mode as needed, time
// out on their own, and localize server errors. Connection and account state
// is observable through the client's Session.
//
// Example:
//
//	client := chatclient.NewClient(chatclient.ResolveURL(""),
//		chatclient.WithStore(store),
//		chatclient.WithLogger(logger),
//	)
//	defer client.Close()
//
//	exists, err := client.IDExists(ctx, "alice").Wait()
//
//	client.Session().Maintenance().Subscribe(func(active bool) { ... })
package chatclient

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ============================================================================
// Client
// ============================================================================

type Client struct {
	url       string
	transport Transport
	session   *Session
	store     SettingsStore
	ownsStore bool
	settings  settings
	log       *zap.Logger

	translator  Translator
	errText     *swapTranslator
	metrics     *Metrics
	callTimeout time.Duration
	idleTimeout time.Duration
	metaRetry   time.Duration
	useMeta     bool
	wsConfig    TransportConfig

	d      *dispatcher
	events map[string]eventSpec
	closed atomic.Bool
}

type ClientOption func(*Client)

// WithTransport replaces the default websocket transport.
func WithTransport(t Transport) ClientOption {
	return func(c *Client) { c.transport = t }
}

// WithTransportConfig configures the default websocket transport.
func WithTransportConfig(cfg TransportConfig) ClientOption {
	return func(c *Client) { c.wsConfig = cfg }
}

// WithStore sets where the user record and referral code are kept. The
// client does not close a store it was given.
func WithStore(s SettingsStore) ClientOption {
	return func(c *Client) { c.store = s }
}

func WithLogger(l *zap.Logger) ClientOption {
	return func(c *Client) { c.log = l }
}

// WithTranslator sets the translator applied to server error messages.
func WithTranslator(t Translator) ClientOption {
	return func(c *Client) { c.translator = t }
}

func WithMetrics(m *Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// WithCallTimeout sets the default per-call timeout. Non-positive disables it.
func WithCallTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.callTimeout = d }
}

// WithIdleTimeout sets how long the connection may stay unused before it is
// closed. Non-positive disables idle disconnects.
func WithIdleTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.idleTimeout = d }
}

// WithMetaRetryInterval sets how long a failed events-meta load is remembered
// before it is tried again.
func WithMetaRetryInterval(d time.Duration) ClientOption {
	return func(c *Client) { c.metaRetry = d }
}

// WithoutMetadata disables metadata-driven validation.
func WithoutMetadata() ClientOption {
	return func(c *Client) { c.useMeta = false }
}

// NewClient creates a client for the chat server at url. Nothing is dialed
// until the first call or Connect.
func NewClient(url string, opts ...ClientOption) *Client {
	c := &Client{
		url:         url,
		callTimeout: DefaultCallTimeout,
		idleTimeout: DefaultIdleTimeout,
		metaRetry:   DefaultMetaRetryInterval,
		useMeta:     true,
		wsConfig:    TransportConfig{AutoReconnect: true},
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.log == nil {
		c.log = zap.NewNop()
	}
	if c.store == nil {
		c.store = NewMemoryStore()
		c.ownsStore = true
	}
	if c.transport == nil {
		cfg := c.wsConfig
		if cfg.Logger == nil {
			cfg.Logger = c.log.Named("transport")
		}
		c.transport = NewWSTransport(url, cfg)
	}
	c.settings = settings{store: c.store}
	c.session = NewSession()
	c.errText = newSwapTranslator(c.translator)

	c.d = newDispatcher(dispatcherConfig{
		transport:   c.transport,
		session:     c.session,
		translator:  c.errText,
		metrics:     c.metrics,
		log:         c.log,
		timeout:     c.callTimeout,
		idleTimeout: c.idleTimeout,
	})
	c.d.afterConnect = c.afterConnect
	c.events = c.bindEvents()
	if c.useMeta {
		c.d.meta = newMetaRegistry(c.fetchMeta, c.metaRetry)
	}
	return c
}

// Session returns the observable connection and account state.
func (c *Client) Session() *Session { return c.session }

// URL returns the server URL the client was created for.
func (c *Client) URL() string { return c.url }

// Connect connects right away instead of on the first call.
func (c *Client) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}
	return c.d.connect(ctx)
}

// Disconnect closes the connection. The next call reconnects.
func (c *Client) Disconnect() error { return c.transport.Disconnect() }

// Close disconnects and releases the client. Calls made afterwards fail with
// ErrClosed.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.d.close()
	err := c.transport.Disconnect()
	c.session.Teardown()
	if c.ownsStore {
		if cerr := c.store.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// ============================================================================
// Event table binding
// ============================================================================

func (c *Client) bindEvents() map[string]eventSpec {
	events := make(map[string]eventSpec, len(eventTable))
	for name, spec := range eventTable {
		spec.name = name
		events[name] = spec
	}

	login := events[EventLogin]
	login.onSuccess = c.loggedIn
	login.onError = func(err error) {
		if !IsTimeout(err) {
			c.session.setAuth(AuthLoggedOut)
		}
	}
	events[EventLogin] = login

	register := events[EventRegister]
	register.onSuccess = c.registered
	events[EventRegister] = register

	maintenance := events[EventMaintenanceMode]
	maintenance.onSuccess = func(_ []any, result json.RawMessage) {
		var active bool
		if err := json.Unmarshal(result, &active); err != nil {
			c.log.Debug("unexpected maintenance-mode reply", zap.Error(err))
			return
		}
		c.session.setMaintenance(active)
	}
	events[EventMaintenanceMode] = maintenance

	return events
}

func (c *Client) spec(event string) eventSpec {
	if s, ok := c.events[event]; ok {
		return s
	}
	return eventSpec{name: event, fromMeta: true}
}

// loggedIn records a successful login. args are id, secret.
func (c *Client) loggedIn(args []any, result json.RawMessage) {
	id, _ := argString(args, 0)
	secret, _ := argString(args, 1)

	u, err := c.settings.user()
	if err != nil {
		c.log.Warn("read stored user", zap.Error(err))
	}
	switch {
	case u == nil:
		u = &User{ID: id}
	case u.ID != id:
		// The address is the device identity, not part of the chat account.
		u = &User{ID: id, Address: u.Address}
	}
	u.Secret = secret
	if roles := decodeRoles(result); roles != nil {
		u.Roles = roles
	}

	c.session.setAuth(AuthLoggedIn)
	if u.Address != "" {
		c.session.setIdentity(u.Address)
	}
	if err := c.settings.setUser(*u); err != nil {
		c.log.Warn("persist user", zap.Error(err))
	}
}

// registered records a successful registration. args are id, secret,
// address, referredBy.
func (c *Client) registered(args []any, _ json.RawMessage) {
	u := User{}
	u.ID, _ = argString(args, 0)
	u.Secret, _ = argString(args, 1)
	u.Address, _ = argString(args, 2)

	c.session.setAuth(AuthLoggedIn)
	c.session.setRegistered(true)
	c.session.setIdentity(u.Address)
	if err := c.settings.setUser(u); err != nil {
		c.log.Warn("persist user", zap.Error(err))
	}
}

func argString(args []any, i int) (string, bool) {
	if i >= len(args) {
		return "", false
	}
	s, ok := args[i].(string)
	return s, ok
}

func decodeRoles(raw json.RawMessage) []string {
	var roles []string
	if json.Unmarshal(raw, &roles) == nil {
		return roles
	}
	var obj struct {
		Roles []string `json:"roles"`
	}
	if json.Unmarshal(raw, &obj) == nil {
		return obj.Roles
	}
	return nil
}

// afterConnect refreshes the maintenance flag and logs in with the stored
// user, if any. known is called once the maintenance query is answered or
// has failed.
func (c *Client) afterConnect(known func()) {
	if c.closed.Load() {
		known()
		return
	}
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer known()
		if _, err := c.MaintenanceMode(ctx, nil).Wait(); err != nil {
			c.log.Warn("maintenance query failed", zap.Error(err))
		}
	}()

	u, err := c.settings.user()
	switch {
	case err != nil:
		c.log.Warn("read stored user", zap.Error(err))
	case u.Valid():
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Login(ctx, u.ID, u.Secret).Wait(); err != nil {
				c.log.Warn("auto login failed", zap.String("user", u.ID), zap.Error(err))
			}
		}()
	}
	wg.Wait()
}

func (c *Client) fetchMeta(ctx context.Context) (map[string]EventMeta, error) {
	raw, err := c.d.call(ctx, c.spec(EventEventsMeta), nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("load events meta: %w", err)
	}
	return parseEventsMeta(raw)
}

// LoadErrorMessages fetches the server's error table in English and in lang
// and uses the pair to localize later server errors. "" or "en" restores the
// translator the client was built with.
func (c *Client) LoadErrorMessages(ctx context.Context, lang string) error {
	if lang == "" || lang == "en" {
		c.errText.set(orIdentity(c.translator))
		return nil
	}
	tables, err := All(
		c.LanguageErrorMessages(ctx, "en", ""),
		c.LanguageErrorMessages(ctx, lang, ""),
	).Wait()
	if err != nil {
		return fmt.Errorf("load %s error messages: %w", lang, err)
	}
	t, err := NewCatalogTranslator(lang, errorCatalog(lang, tables[0], tables[1]))
	if err != nil {
		return err
	}
	c.errText.set(t)
	c.log.Debug("error messages loaded", zap.String("lang", lang), zap.Int("count", len(tables[0])))
	return nil
}

func orIdentity(t Translator) Translator {
	if t == nil {
		return identityTranslator{}
	}
	return t
}

// ============================================================================
// Generic calls
// ============================================================================

// Call sends any event. Known events get their usual side effects; others
// take their login and maintenance treatment from the server's metadata.
func (c *Client) Call(ctx context.Context, event string, args ...any) *Promise[json.RawMessage] {
	if c.closed.Load() {
		return Reject[json.RawMessage](ErrClosed)
	}
	return c.d.call(ctx, c.spec(event), args)
}

// callInto sends event and decodes the result into T. A T of struct{}
// discards the result.
func callInto[T any](ctx context.Context, c *Client, event string, args ...any) *Promise[T] {
	return Map(c.Call(ctx, event, args...), func(raw json.RawMessage) (T, error) {
		var v T
		if _, ok := any(v).(struct{}); ok || len(raw) == 0 {
			return v, nil
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return v, fmt.Errorf("failed to decode %s reply: %w", event, err)
		}
		return v, nil
	})
}
