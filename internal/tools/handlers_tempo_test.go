package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTempoTools_SetIntervalOverridesStatus(t *testing.T) {
	dispatcher, r := newTestSetup(t)
	cc := adminContext(r)

	_, err := dispatcher.Dispatch(cc, "set_tempo_interval", map[string]any{"seconds": 45})
	require.NoError(t, err)

	result, err := dispatcher.Dispatch(cc, "tempo_status", map[string]any{})
	require.NoError(t, err)
	status := result.(map[string]any)
	assert.Equal(t, float64(45), status["current_interval_seconds"])
}

func TestTempoTools_SetIntervalRequiresAdmin(t *testing.T) {
	dispatcher, r := newTestSetup(t)
	cc := adminContext(r)
	cc.Role = "reader"
	cc.Capabilities = RoleCapabilities("reader")

	_, err := dispatcher.Dispatch(cc, "set_tempo_interval", map[string]any{"seconds": 45})
	require.Error(t, err)
}
