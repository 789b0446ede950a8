package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masc-dev/masc/internal/merrors"
	"github.com/masc-dev/masc/internal/ratelimit"
	"github.com/masc-dev/masc/internal/room"
	"github.com/masc-dev/masc/internal/storage/fsstore"
	"github.com/masc-dev/masc/internal/tempo"
)

func TestValidate_RequiredMissing(t *testing.T) {
	schema := Schema{{Name: "title", Type: TypeString, Required: true}}
	err := Validate(schema, map[string]any{})
	assert.True(t, merrors.IsValidation(err))
}

func TestValidate_UnknownField(t *testing.T) {
	schema := Schema{{Name: "title", Type: TypeString, Required: true}}
	err := Validate(schema, map[string]any{"title": "x", "bogus": 1})
	assert.True(t, merrors.IsValidation(err))
}

func TestValidate_EnumViolation(t *testing.T) {
	schema := Schema{{Name: "role", Type: TypeString, Enum: []string{"reader", "worker"}}}
	err := Validate(schema, map[string]any{"role": "superuser"})
	assert.True(t, merrors.IsValidation(err))
}

func TestValidate_Passes(t *testing.T) {
	schema := Schema{
		{Name: "title", Type: TypeString, Required: true},
		{Name: "priority", Type: TypeInt},
	}
	err := Validate(schema, map[string]any{"title": "x", "priority": 3})
	assert.NoError(t, err)
}

func TestModeConfig_EnabledSets(t *testing.T) {
	minimal := ModeConfig{Mode: ModeMinimal}.Enabled()
	assert.True(t, minimal[CategoryCore])
	assert.False(t, minimal[CategoryVoting])

	custom := ModeConfig{Mode: ModeCustom, Custom: []Category{CategoryCost}}.Enabled()
	assert.True(t, custom[CategoryCost])
	assert.False(t, custom[CategoryCore])

	full := ModeConfig{Mode: ModeFull}.Enabled()
	assert.True(t, full[CategoryEncryption])
}

func newTestSetup(t *testing.T) (*Dispatcher, *room.Room) {
	t.Helper()
	backend, err := fsstore.New(t.TempDir())
	require.NoError(t, err)
	r := room.New("test", backend, nil)
	gate := ratelimit.NewGateWithRates(map[string]float64{"general": 6000, "broadcast": 6000, "task-ops": 6000}, 10, ratelimit.DefaultMultipliers)
	loop := tempo.New(r)
	_, dispatcher := Build(gate, loop)
	return dispatcher, r
}

func adminContext(r *room.Room) CallContext {
	return CallContext{
		Ctx:          context.Background(),
		Room:         r,
		Agent:        "claude",
		Role:         room.RoleAdmin,
		Capabilities: RoleCapabilities(room.RoleAdmin),
		Mode:         ModeConfig{Mode: ModeFull},
	}
}

func TestDispatch_UnknownMethod(t *testing.T) {
	dispatcher, r := newTestSetup(t)
	_, err := dispatcher.Dispatch(adminContext(r), "no_such_tool", nil)
	assert.ErrorIs(t, err, merrors.ErrMethodNotFound)
}

func TestDispatch_JoinAndAddTask(t *testing.T) {
	dispatcher, r := newTestSetup(t)
	cc := adminContext(r)

	_, err := dispatcher.Dispatch(cc, "join", map[string]any{"name": "claude"})
	require.NoError(t, err)

	result, err := dispatcher.Dispatch(cc, "add_task", map[string]any{"title": "ship it", "priority": float64(5)})
	require.NoError(t, err)
	task, ok := result.(*room.Task)
	require.True(t, ok)
	assert.Equal(t, "ship it", task.Title)
}

func TestDispatch_PermissionDenied(t *testing.T) {
	dispatcher, r := newTestSetup(t)
	cc := CallContext{
		Ctx:          context.Background(),
		Room:         r,
		Agent:        "reader1",
		Role:         room.RoleReader,
		Capabilities: RoleCapabilities(room.RoleReader),
		Mode:         ModeConfig{Mode: ModeFull},
	}
	_, err := dispatcher.Dispatch(cc, "add_task", map[string]any{"title": "x"})
	var denied *merrors.PermissionDenied
	require.ErrorAs(t, err, &denied)
}

func TestDispatch_ListToolsRespectsMode(t *testing.T) {
	dispatcher, r := newTestSetup(t)
	cc := adminContext(r)
	cc.Mode = ModeConfig{Mode: ModeMinimal}

	result, err := dispatcher.Dispatch(cc, "list_tools", nil)
	require.NoError(t, err)
	names, ok := result.([]map[string]any)
	require.True(t, ok)
	for _, n := range names {
		assert.NotEqual(t, CategoryVoting, n["category"])
	}
}

func TestEncryptionTools_RoundTrip(t *testing.T) {
	dispatcher, r := newTestSetup(t)
	cc := adminContext(r)
	cc.EncryptionKey = make([]byte, 32)

	sealed, err := dispatcher.Dispatch(cc, "encrypt_payload", map[string]any{"plaintext": "secret state"})
	require.NoError(t, err)
	sealedMap := sealed.(map[string]any)

	opened, err := dispatcher.Dispatch(cc, "decrypt_payload", map[string]any{"sealed": sealedMap["sealed"]})
	require.NoError(t, err)
	assert.Equal(t, "secret state", opened.(map[string]any)["plaintext"])
}

func TestDispatch_RateLimitedAfterBurst(t *testing.T) {
	backend, err := fsstore.New(t.TempDir())
	require.NoError(t, err)
	r := room.New("test", backend, nil)
	gate := ratelimit.NewGateWithRates(map[string]float64{"task-ops": 60}, 1, ratelimit.DefaultMultipliers)
	loop := tempo.New(r)
	_, dispatcher := Build(gate, loop)
	cc := adminContext(r)

	_, err = dispatcher.Dispatch(cc, "join", map[string]any{"name": "claude"})
	require.NoError(t, err)

	_, err = dispatcher.Dispatch(cc, "add_task", map[string]any{"title": "first"})
	require.NoError(t, err)

	_, err = dispatcher.Dispatch(cc, "add_task", map[string]any{"title": "second"})
	var limited *merrors.RateLimited
	require.ErrorAs(t, err, &limited)
	assert.Greater(t, limited.RetryAfterSeconds, 0.0)
}
