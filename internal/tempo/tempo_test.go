package tempo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masc-dev/masc/internal/room"
	"github.com/masc-dev/masc/internal/storage/fsstore"
)

func newTestRoom(t *testing.T) *room.Room {
	t.Helper()
	backend, err := fsstore.New(t.TempDir())
	require.NoError(t, err)
	return room.New("test-room", backend, nil)
}

func TestComputeInterval_IdleYieldsSlowTempo(t *testing.T) {
	r := newTestRoom(t)
	l := New(r)
	assert.Equal(t, SlowInterval, l.computeInterval(context.Background()))
}

func TestComputeInterval_NonUrgentTaskYieldsMediumTempo(t *testing.T) {
	ctx := context.Background()
	r := newTestRoom(t)
	_, err := r.AddTask(ctx, "low priority chore", 5, "", "")
	require.NoError(t, err)

	l := New(r)
	assert.Equal(t, MediumInterval, l.computeInterval(ctx))
}

func TestComputeInterval_UrgentTaskYieldsFastTempo(t *testing.T) {
	ctx := context.Background()
	r := newTestRoom(t)
	_, err := r.AddTask(ctx, "fix outage", 1, "", "")
	require.NoError(t, err)

	l := New(r)
	assert.Equal(t, FastInterval, l.computeInterval(ctx))
}

func TestComputeInterval_TerminalTaskIsIgnored(t *testing.T) {
	ctx := context.Background()
	r := newTestRoom(t)
	task, err := r.AddTask(ctx, "fix outage", 1, "", "")
	require.NoError(t, err)
	_, err = r.Claim(ctx, task.ID, "claude")
	require.NoError(t, err)
	_, err = r.Cancel(ctx, task.ID, "no longer needed")
	require.NoError(t, err)

	l := New(r)
	assert.Equal(t, SlowInterval, l.computeInterval(ctx))
}

func TestLoop_SetOverrideConsumedOnce(t *testing.T) {
	ctx := context.Background()
	r := newTestRoom(t)
	l := New(r)

	l.SetOverride(5 * time.Millisecond)
	first := l.nextInterval(ctx)
	assert.Equal(t, 5*time.Millisecond, first)

	second := l.nextInterval(ctx)
	assert.Equal(t, SlowInterval, second)
}

func TestLoop_StartTicksAndStopsCleanly(t *testing.T) {
	ctx := context.Background()
	r := newTestRoom(t)
	l := New(r)
	l.SetOverride(5 * time.Millisecond)

	l.Start(ctx)
	time.Sleep(30 * time.Millisecond)
	l.Stop()

	assert.True(t, l.CurrentInterval() > 0)
}

func TestLoop_StartIsIdempotent(t *testing.T) {
	ctx := context.Background()
	r := newTestRoom(t)
	l := New(r)
	l.SetOverride(time.Millisecond)

	l.Start(ctx)
	l.Start(ctx)
	l.Stop()
}
