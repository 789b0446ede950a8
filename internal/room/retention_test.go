package room

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoom_PruneTasksRemovesOnlyOldTerminalTasks(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRoom(t)
	now := time.Now()
	r.clock = func() time.Time { return now }

	old, err := r.AddTask(ctx, "old", 1, "", "")
	require.NoError(t, err)
	_, err = r.Done(ctx, old.ID, "", "finished")
	require.NoError(t, err)

	fresh, err := r.AddTask(ctx, "fresh", 1, "", "")
	require.NoError(t, err)
	_, err = r.Done(ctx, fresh.ID, "", "finished")
	require.NoError(t, err)

	live, err := r.AddTask(ctx, "live", 1, "", "")
	require.NoError(t, err)

	now = now.Add(48 * time.Hour)

	n, err := r.PruneTasks(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = r.GetTask(ctx, old.ID)
	assert.Error(t, err)
	_, err = r.GetTask(ctx, fresh.ID)
	assert.Error(t, err)
	_, err = r.GetTask(ctx, live.ID)
	assert.NoError(t, err)
}

func TestRoom_PruneCheckpointsRemovesOnlyResolvedPastRetention(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRoom(t)
	now := time.Now()
	r.clock = func() time.Time { return now }

	done, err := r.Save(ctx, "task-1", 1, "action", "state", "claude")
	require.NoError(t, err)
	_, err = r.Interrupt(ctx, done.ID, "review")
	require.NoError(t, err)
	_, err = r.Approve(ctx, "task-1")
	require.NoError(t, err)

	pending, err := r.Save(ctx, "task-2", 1, "action", "state", "claude")
	require.NoError(t, err)

	now = now.Add(48 * time.Hour)

	n, err := r.PruneCheckpoints(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = r.GetCheckpoint(ctx, done.ID)
	assert.Error(t, err)
	_, err = r.GetCheckpoint(ctx, pending.ID)
	assert.NoError(t, err)
}

func TestRoom_PruneMessagesTruncatesOldestBeyondKeep(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRoom(t)

	for i := 0; i < 10; i++ {
		_, err := r.Broadcast(ctx, "claude", "msg")
		require.NoError(t, err)
	}

	n, err := r.PruneMessages(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	remaining, err := r.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, remaining, 4)
	for _, m := range remaining {
		assert.GreaterOrEqual(t, m.Seq, uint64(7))
	}
}
