package chatclient

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventTableFlags(t *testing.T) {
	exempt := []string{EventLogin, EventMaintenanceMode, EventLanguageErrorMessages, EventLanguageTranslations, EventEventsMeta}
	for _, name := range exempt {
		spec := eventTable[name]
		assert.True(t, spec.noLogin, name)
		assert.True(t, spec.maintenanceExempt, name)
	}

	for _, name := range []string{EventMessage, EventIsUserOnline, EventProject, EventTask} {
		spec := eventTable[name]
		assert.False(t, spec.noLogin, name)
		assert.False(t, spec.maintenanceExempt, name)
	}
	assert.True(t, eventTable[EventEventsMeta].skipMeta)
}

func TestConvertResult(t *testing.T) {
	var r ConvertResult
	require.NoError(t, json.Unmarshal([]byte(`[12.345, 12.35]`), &r))
	assert.Equal(t, 12.345, r.Amount)
	assert.Equal(t, "12.35", r.Rounded)

	r = ConvertResult{}
	require.NoError(t, json.Unmarshal([]byte(`7`), &r))
	assert.Equal(t, 7.0, r.Amount)
	assert.Empty(t, r.Rounded)
}

func TestProjectsResult(t *testing.T) {
	var r ProjectsResult
	require.NoError(t, json.Unmarshal([]byte(`[{"0x1":{"name":"a"}},["0x2"]]`), &r))
	assert.Contains(t, r.Projects, "0x1")
	assert.Equal(t, []string{"0x2"}, r.Unknown)

	assert.Error(t, json.Unmarshal([]byte(`{"0x1":{}}`), &r))
}

func TestDecodePositional(t *testing.T) {
	var (
		a string
		b int
		c []string
	)
	err := decodePositional(rawArgs("x", nil, []string{"y"}), &a, &b, &c, nil)
	require.NoError(t, err)
	assert.Equal(t, "x", a)
	assert.Zero(t, b)
	assert.Equal(t, []string{"y"}, c)

	err = decodePositional(rawArgs(1), &a)
	assert.Error(t, err)
}
