package pgstore

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masc-dev/masc/internal/storage"
)

// These unit tests exercise the SQL issued by Backend against a mocked
// driver (github.com/DATA-DOG/go-sqlmock, also used by
// jordigilh-kubernaut and r3e-network-service_layer), bypassing the
// embedded migrations so they don't require a live PostgreSQL instance.
// Integration coverage against a real server lives in pgstore_test.go.

func newMockBackend(t *testing.T) (*Backend, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewFromDB(db), mock
}

func TestPGStore_GetNotFound(t *testing.T) {
	b, mock := newMockBackend(t)
	mock.ExpectQuery("SELECT value, expires_at FROM masc_kv").
		WithArgs("tasks/nope").
		WillReturnRows(sqlmock.NewRows([]string{"value", "expires_at"}))

	_, err := b.Get(context.Background(), "tasks/nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGStore_Put(t *testing.T) {
	b, mock := newMockBackend(t)
	mock.ExpectExec("INSERT INTO masc_kv").
		WithArgs("agents/claude", []byte("joined"), nil).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := b.Put(context.Background(), "agents/claude", []byte("joined"), 0)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGStore_Unlock_WrongOwnerNoRows(t *testing.T) {
	b, mock := newMockBackend(t)
	mock.ExpectExec("DELETE FROM masc_locks WHERE name = \\$1 AND owner = \\$2").
		WithArgs("file:x", "b").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := b.Unlock(context.Background(), "file:x", "b")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}
