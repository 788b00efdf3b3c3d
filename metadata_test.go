package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEventsMeta(t *testing.T) {
	t.Run("object", func(t *testing.T) {
		table, err := parseEventsMeta(json.RawMessage(`{"login":{"params":[{"name":"userId","required":true}]}}`))
		require.NoError(t, err)
		assert.Equal(t, "login", table["login"].Name)
		require.Len(t, table["login"].Params, 1)
		assert.True(t, table["login"].Params[0].Required)
	})

	t.Run("pairs", func(t *testing.T) {
		table, err := parseEventsMeta(json.RawMessage(`[["countries",{"result":"map"}]]`))
		require.NoError(t, err)
		assert.True(t, table["countries"].ResultIsMap())
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := parseEventsMeta(json.RawMessage(`"nope"`))
		assert.Error(t, err)
	})
}

func TestValidateArgs(t *testing.T) {
	meta := EventMeta{
		Name: "task",
		Params: []ParamMeta{
			{Name: "id", Type: "string", Required: true},
			{Name: "limit", Type: "integer", Default: json.RawMessage(`10`)},
			{Name: "tags", Type: "array"},
		},
	}

	t.Run("fills defaults and trims unset tail", func(t *testing.T) {
		out, err := validateArgs(meta, []any{"t1"})
		require.NoError(t, err)
		assert.Equal(t, []any{"t1", float64(10)}, out)
	})

	t.Run("keeps given values", func(t *testing.T) {
		out, err := validateArgs(meta, []any{"t1", 3, []string{"a"}})
		require.NoError(t, err)
		assert.Equal(t, []any{"t1", 3, []string{"a"}}, out)
	})

	t.Run("missing required", func(t *testing.T) {
		_, err := validateArgs(meta, nil)
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "id", ve.Param)
		assert.Equal(t, "task: id => required", ve.Error())
	})

	t.Run("wrong type", func(t *testing.T) {
		_, err := validateArgs(meta, []any{42})
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "id", ve.Param)
	})

	t.Run("too many", func(t *testing.T) {
		_, err := validateArgs(meta, []any{"a", 1, nil, "extra"})
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Empty(t, ve.Param)
	})
}

func TestCheckType(t *testing.T) {
	s := "x"
	cases := []struct {
		typ  string
		v    any
		want bool
	}{
		{"", struct{}{}, true},
		{"string", "a", true},
		{"string", &s, true},
		{"string", 1, false},
		{"boolean", true, true},
		{"boolean", "true", false},
		{"number", 1.5, true},
		{"number", json.Number("2"), true},
		{"number", "2", false},
		{"integer", 2.0, true},
		{"integer", 2.5, false},
		{"array", []int{1}, true},
		{"object", map[string]any{}, true},
		{"date", "2026-01-02T03:04:05Z", true},
		{"date", time.Now(), true},
		{"date", "yesterday", false},
		{"address", aliceAddress, true},
		{"address", "5Grw", false},
		{"unknown-type", 1, true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, checkType(tc.typ, tc.v), "%s %v", tc.typ, tc.v)
	}
}

func TestMetaRegistryCachesSuccess(t *testing.T) {
	var calls atomic.Int32
	r := newMetaRegistry(func(context.Context) (map[string]EventMeta, error) {
		calls.Add(1)
		return map[string]EventMeta{"login": {Name: "login"}}, nil
	}, time.Minute)

	for i := 0; i < 3; i++ {
		m, ok := r.lookup(context.Background(), "login")
		require.True(t, ok)
		assert.Equal(t, "login", m.Name)
	}
	_, ok := r.lookup(context.Background(), "missing")
	assert.False(t, ok)
	assert.Equal(t, int32(1), calls.Load())

	r.reset()
	_, _ = r.get(context.Background())
	assert.Equal(t, int32(2), calls.Load())
}

func TestMetaRegistryRetriesAfterInterval(t *testing.T) {
	var calls atomic.Int32
	fail := errors.New("unavailable")
	r := newMetaRegistry(func(context.Context) (map[string]EventMeta, error) {
		if calls.Add(1) == 1 {
			return nil, fail
		}
		return map[string]EventMeta{"login": {Name: "login"}}, nil
	}, time.Minute)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	_, err := r.get(context.Background())
	assert.ErrorIs(t, err, fail)

	now = now.Add(30 * time.Second)
	_, ok := r.lookup(context.Background(), "login")
	assert.False(t, ok, "failure is remembered")
	assert.Equal(t, int32(1), calls.Load())

	now = now.Add(31 * time.Second)
	_, ok = r.lookup(context.Background(), "login")
	assert.True(t, ok)
	assert.Equal(t, int32(2), calls.Load())
}

func TestMetaRegistryOutlivesCanceledCaller(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	r := newMetaRegistry(func(ctx context.Context) (map[string]EventMeta, error) {
		calls.Add(1)
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return map[string]EventMeta{"login": {Name: "login"}}, nil
	}, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := r.get(ctx)
		done <- err
	}()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	close(release)
	m, ok := r.lookup(context.Background(), "login")
	require.True(t, ok, "a canceled caller does not fail the shared load")
	assert.Equal(t, "login", m.Name)
	assert.Equal(t, int32(1), calls.Load())
}
