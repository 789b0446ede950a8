package retention

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

func TestService_RunAllPrunesImmediatelyOnStart(t *testing.T) {
	ctx := context.Background()
	r := newTestRoom(t)

	for i := 0; i < 5; i++ {
		_, err := r.Broadcast(ctx, "claude", "msg")
		require.NoError(t, err)
	}

	svc := New(Config{Interval: time.Hour, MessageKeepCount: 2}, r)
	svc.Start(ctx)
	defer svc.Stop()

	assert.Eventually(t, func() bool {
		remaining, err := r.Recent(ctx, 0)
		require.NoError(t, err)
		return len(remaining) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestService_StartIsIdempotent(t *testing.T) {
	r := newTestRoom(t)
	svc := New(DefaultConfig(), r)
	svc.Start(context.Background())
	svc.Start(context.Background())
	svc.Stop()
}

func TestService_StopWithoutStartIsNoop(t *testing.T) {
	r := newTestRoom(t)
	svc := New(DefaultConfig(), r)
	svc.Stop()
}
