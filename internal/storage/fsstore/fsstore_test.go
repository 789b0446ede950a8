package fsstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masc-dev/masc/internal/storage"
)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestFSStore_PutGet(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	require.NoError(t, b.Put(ctx, "agents/claude", []byte(`{"status":"joined"}`), 0))

	val, err := b.Get(ctx, "agents/claude")
	require.NoError(t, err)
	assert.Equal(t, `{"status":"joined"}`, string(val))
}

func TestFSStore_GetAbsent(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	_, err := b.Get(ctx, "tasks/nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestFSStore_PutTTLExpires(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	require.NoError(t, b.Put(ctx, "k", []byte("v"), 10*time.Millisecond))
	time.Sleep(30 * time.Millisecond)

	_, err := b.Get(ctx, "k")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestFSStore_CompareAndPut(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	ok, err := b.CompareAndPut(ctx, "seq", nil, []byte("1"))
	require.NoError(t, err)
	assert.True(t, ok, "absent->1 should succeed")

	ok, err = b.CompareAndPut(ctx, "seq", []byte("1"), []byte("2"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.CompareAndPut(ctx, "seq", []byte("1"), []byte("3"))
	require.NoError(t, err)
	assert.False(t, ok, "stale expected value must fail")

	val, err := b.Get(ctx, "seq")
	require.NoError(t, err)
	assert.Equal(t, "2", string(val))
}

func TestFSStore_Scan(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	require.NoError(t, b.Put(ctx, "task:b", []byte("B"), 0))
	require.NoError(t, b.Put(ctx, "task:a", []byte("A"), 0))
	require.NoError(t, b.Put(ctx, "agent:x", []byte("X"), 0))

	entries, err := b.Scan(ctx, "task:")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "task:a", entries[0].Key)
	assert.Equal(t, "task:b", entries[1].Key)
}

// TestFSStore_LockContention exercises spec.md §8 scenario 3: lock,
// contend, wait for TTL, re-acquire.
func TestFSStore_LockContention(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	res, err := b.Lock(ctx, "file:src/main.go", "a", 20*time.Millisecond)
	require.NoError(t, err)
	require.True(t, res.Acquired)

	res, err = b.Lock(ctx, "file:src/main.go", "b", 20*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, res.Acquired)
	assert.Equal(t, "a", res.HeldBy)

	time.Sleep(30 * time.Millisecond)

	res, err = b.Lock(ctx, "file:src/main.go", "b", 20*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, res.Acquired, "expired lock must be reclaimable")
}

func TestFSStore_UnlockRequiresOwner(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	_, err := b.Lock(ctx, "file:x", "a", time.Minute)
	require.NoError(t, err)

	ok, err := b.Unlock(ctx, "file:x", "b")
	require.NoError(t, err)
	assert.False(t, ok, "wrong owner must not release")

	ok, err = b.Unlock(ctx, "file:x", "a")
	require.NoError(t, err)
	assert.True(t, ok)

	res, err := b.Lock(ctx, "file:x", "b", time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Acquired, "lock must be free after correct unlock")
}

func TestFSStore_Tick_SweepsExpiredLocks(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	_, err := b.Lock(ctx, "file:x", "a", 5*time.Millisecond)
	require.NoError(t, err)
	time.Sleep(15 * time.Millisecond)

	require.NoError(t, b.Tick(ctx))

	res, err := b.Lock(ctx, "file:x", "b", time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Acquired)
}
