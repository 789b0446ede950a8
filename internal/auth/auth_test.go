package auth

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masc-dev/masc/internal/merrors"
	"github.com/masc-dev/masc/internal/room"
	"github.com/masc-dev/masc/internal/storage/fsstore"
)

func newTestRoom(t *testing.T) *room.Room {
	t.Helper()
	backend, err := fsstore.New(t.TempDir())
	require.NoError(t, err)
	return room.New("test", backend, nil)
}

func TestResolve_AnonymousIsReader(t *testing.T) {
	r := newTestRoom(t)
	id, err := Resolve(context.Background(), r, http.Header{})
	require.NoError(t, err)
	assert.Equal(t, room.RoleReader, id.Role)
	assert.Empty(t, id.Agent)
}

func TestResolve_ValidToken(t *testing.T) {
	ctx := context.Background()
	r := newTestRoom(t)
	require.NoError(t, r.PutCredential(ctx, room.AuthCredential{
		AgentName: "claude",
		TokenHash: HashToken("s3cr3t"),
		Role:      room.RoleWorker,
		ExpiresAt: time.Now().Add(time.Hour),
	}))

	header := http.Header{}
	header.Set(HeaderAgent, "claude")
	header.Set(HeaderToken, "Bearer s3cr3t")

	id, err := Resolve(ctx, r, header)
	require.NoError(t, err)
	assert.Equal(t, "claude", id.Agent)
	assert.Equal(t, room.RoleWorker, id.Role)
}

func TestResolve_WrongTokenUnauthorized(t *testing.T) {
	ctx := context.Background()
	r := newTestRoom(t)
	require.NoError(t, r.PutCredential(ctx, room.AuthCredential{
		AgentName: "claude",
		TokenHash: HashToken("s3cr3t"),
		Role:      room.RoleWorker,
		ExpiresAt: time.Now().Add(time.Hour),
	}))

	header := http.Header{}
	header.Set(HeaderAgent, "claude")
	header.Set(HeaderToken, "Bearer wrong")

	_, err := Resolve(ctx, r, header)
	assert.ErrorIs(t, err, merrors.ErrUnauthorized)
}

func TestResolve_ExpiredToken(t *testing.T) {
	ctx := context.Background()
	r := newTestRoom(t)
	require.NoError(t, r.PutCredential(ctx, room.AuthCredential{
		AgentName: "claude",
		TokenHash: HashToken("s3cr3t"),
		Role:      room.RoleWorker,
		ExpiresAt: time.Now().Add(-time.Hour),
	}))

	header := http.Header{}
	header.Set(HeaderAgent, "claude")
	header.Set(HeaderToken, "Bearer s3cr3t")

	_, err := Resolve(ctx, r, header)
	assert.ErrorIs(t, err, merrors.ErrTokenExpired)
}
