package chatclient

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPairsToObject(t *testing.T) {
	out, err := pairsToObject(json.RawMessage(`[["b",2],["a",{"x":1}],[3,"three"]]`))
	require.NoError(t, err)
	assert.Equal(t, `{"b":2,"a":{"x":1},"3":"three"}`, string(out), "pair order is kept")
}

func TestPairsToObjectDuplicateKeys(t *testing.T) {
	out, err := pairsToObject(json.RawMessage(`[["a",1],["b",2],["a",3]]`))
	require.NoError(t, err)
	assert.Equal(t, `{"a":3,"b":2}`, string(out))
}

func TestPairsToObjectPassThrough(t *testing.T) {
	for _, in := range []string{`{"a":1}`, `null`, ``, `"s"`} {
		out, err := pairsToObject(json.RawMessage(in))
		require.NoError(t, err)
		assert.Equal(t, in, string(out))
	}

	out, err := pairsToObject(json.RawMessage(`[]`))
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(out))
}

func TestPairsToObjectMalformed(t *testing.T) {
	_, err := pairsToObject(json.RawMessage(`[["only-key"]]`))
	assert.Error(t, err)

	_, err = pairsToObject(json.RawMessage(`[1,2]`))
	assert.Error(t, err)
}

func TestReshapeFirstAsObject(t *testing.T) {
	out, err := reshapeFirstAsObject(json.RawMessage(`[[["h1",{"n":1}]],["h2"]]`))
	require.NoError(t, err)
	assert.JSONEq(t, `[{"h1":{"n":1}},["h2"]]`, string(out))

	out, err = reshapeFirstAsObject(json.RawMessage(`{"not":"array"}`))
	require.NoError(t, err)
	assert.Equal(t, `{"not":"array"}`, string(out))
}
