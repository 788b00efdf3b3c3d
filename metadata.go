package chatclient

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/totem-tech/chatclient-go/ss58"
)

// ============================================================================
// Event metadata
// ============================================================================

// ParamMeta describes one positional parameter of an event.
type ParamMeta struct {
	Name     string          `json:"name"`
	Type     string          `json:"type,omitempty"`
	Required bool            `json:"required,omitempty"`
	Default  json.RawMessage `json:"defaultValue,omitempty"`
}

// EventMeta describes an event as published by the server's events-meta call.
type EventMeta struct {
	Name              string      `json:"name"`
	Description       string      `json:"description,omitempty"`
	Params            []ParamMeta `json:"params,omitempty"`
	Result            string      `json:"result,omitempty"`
	RequireLogin      bool        `json:"requireLogin,omitempty"`
	MaintenanceExempt bool        `json:"maintenanceExempt,omitempty"`
}

// ResultIsMap reports whether results arrive as [key, value] pairs to be
// reshaped into an object.
func (m EventMeta) ResultIsMap() bool { return m.Result == "map" }

// parseEventsMeta accepts either an object keyed by event name or a list of
// [name, meta] pairs.
func parseEventsMeta(raw json.RawMessage) (map[string]EventMeta, error) {
	obj, err := pairsToObject(raw)
	if err != nil {
		return nil, err
	}
	var table map[string]EventMeta
	if err := json.Unmarshal(obj, &table); err != nil {
		return nil, fmt.Errorf("failed to decode events meta: %w", err)
	}
	for name, m := range table {
		if m.Name == "" {
			m.Name = name
			table[name] = m
		}
	}
	return table, nil
}

// validateArgs checks args against the declared parameters and fills in
// defaults for missing optional ones.
func validateArgs(meta EventMeta, args []any) ([]any, error) {
	if len(args) > len(meta.Params) {
		return nil, &ValidationError{
			Event:  meta.Name,
			Reason: fmt.Sprintf("expected at most %d arguments, got %d", len(meta.Params), len(args)),
		}
	}

	out := make([]any, len(meta.Params))
	copy(out, args)
	for i, p := range meta.Params {
		if out[i] == nil {
			if len(p.Default) > 0 {
				var v any
				if err := json.Unmarshal(p.Default, &v); err == nil {
					out[i] = v
				}
			}
			if out[i] == nil {
				if p.Required {
					return nil, &ValidationError{Event: meta.Name, Param: p.Name, Reason: "required"}
				}
				continue
			}
		}
		if !checkType(p.Type, out[i]) {
			return nil, &ValidationError{
				Event:  meta.Name,
				Param:  p.Name,
				Reason: fmt.Sprintf("expected %s, got %T", p.Type, out[i]),
			}
		}
	}

	// Trailing optional parameters left unset are not sent.
	n := len(out)
	for n > len(args) && out[n-1] == nil {
		n--
	}
	return out[:n], nil
}

func checkType(typ string, v any) bool {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return false
		}
		rv = rv.Elem()
	}

	switch typ {
	case "", "any":
		return true
	case "string":
		return rv.Kind() == reflect.String
	case "address":
		return rv.Kind() == reflect.String && ss58.Valid(rv.String())
	case "boolean":
		return rv.Kind() == reflect.Bool
	case "number":
		if _, ok := v.(json.Number); ok {
			return true
		}
		return isNumberKind(rv.Kind())
	case "integer":
		switch {
		case rv.CanInt(), rv.CanUint():
			return true
		case rv.CanFloat():
			f := rv.Float()
			return f == math.Trunc(f)
		}
		return false
	case "array":
		return rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array
	case "object", "map":
		return rv.Kind() == reflect.Map || rv.Kind() == reflect.Struct
	case "date":
		if _, ok := v.(time.Time); ok {
			return true
		}
		if rv.Kind() != reflect.String {
			return false
		}
		_, err := time.Parse(time.RFC3339, rv.String())
		return err == nil
	default:
		return true
	}
}

func isNumberKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// ============================================================================
// Registry
// ============================================================================

// metaRegistry loads the events-meta document lazily. A failed load is
// remembered for retry and the next use after that interval tries again;
// until then lookups report no metadata and calls go out unvalidated. The
// dispatcher resets it whenever the connection comes or goes, so a
// restarted server is read again.
type metaRegistry struct {
	fetch func(ctx context.Context) (map[string]EventMeta, error)
	retry time.Duration
	now   func() time.Time

	group singleflight.Group

	mu       sync.RWMutex
	table    map[string]EventMeta
	failedAt time.Time
	lastErr  error
}

func newMetaRegistry(fetch func(ctx context.Context) (map[string]EventMeta, error), retry time.Duration) *metaRegistry {
	return &metaRegistry{fetch: fetch, retry: retry, now: time.Now}
}

func (r *metaRegistry) get(ctx context.Context) (map[string]EventMeta, error) {
	r.mu.RLock()
	table, failedAt, lastErr := r.table, r.failedAt, r.lastErr
	r.mu.RUnlock()

	if table != nil {
		return table, nil
	}
	if !failedAt.IsZero() && r.now().Sub(failedAt) < r.retry {
		return nil, lastErr
	}

	// The shared load outlives any one caller; only its own failure is cached.
	fctx := context.WithoutCancel(ctx)
	ch := r.group.DoChan("events-meta", func() (any, error) {
		t, err := r.fetch(fctx)
		r.mu.Lock()
		defer r.mu.Unlock()
		if err != nil {
			r.failedAt, r.lastErr = r.now(), err
			return nil, err
		}
		r.table, r.failedAt, r.lastErr = t, time.Time{}, nil
		return t, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(map[string]EventMeta), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *metaRegistry) lookup(ctx context.Context, event string) (EventMeta, bool) {
	table, err := r.get(ctx)
	if err != nil {
		return EventMeta{}, false
	}
	m, ok := table[event]
	return m, ok
}

func (r *metaRegistry) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.table, r.failedAt, r.lastErr = nil, time.Time{}, nil
}
