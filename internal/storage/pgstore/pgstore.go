// Package pgstore implements storage.Backend over PostgreSQL, grounded on
// the teacher's pkg/database/client.go: a pgx-backed database/sql
// connection pool, schema applied via embedded golang-migrate
// migrations on startup. The teacher layers entgo.io/ent on top of this
// connection for its domain models; ent's generated package cannot be
// produced without running `ent generate`, which this task forbids, so
// this backend speaks hand-written SQL directly against a key/value
// table (masc_kv) and a lock table (masc_locks), both indexed on
// expires_at, instead (see DESIGN.md).
package pgstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver

	"github.com/masc-dev/masc/internal/storage"
)

//go:embed migrations
var migrationsFS embed.FS

// Config mirrors database.Config in the teacher, minus ent-specific
// fields.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Backend is the PostgreSQL storage.Backend implementation.
type Backend struct {
	db *sql.DB
}

// New opens the connection pool, pings it, and applies embedded
// migrations, exactly mirroring database.NewClient's three steps.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pgstore: open: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pgstore: ping: %w", err)
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pgstore: migrate: %w", err)
	}

	return &Backend{db: db}, nil
}

// NewFromDB wraps an existing *sql.DB, used by tests against
// go-sqlmock or a testcontainers postgres instance.
func NewFromDB(db *sql.DB) *Backend { return &Backend{db: db} }

func runMigrations(db *sql.DB) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create postgres driver: %w", err)
	}
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "masc", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	// Mirrors the teacher's care to close only the source driver, not the
	// shared *sql.DB that m.Close() would also close.
	return sourceDriver.Close()
}

func (b *Backend) Kind() storage.Kind { return storage.KindPostgres }
func (b *Backend) Close() error       { return b.db.Close() }

func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	var expiresAt sql.NullTime
	err := b.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM masc_kv WHERE key = $1`, key,
	).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrTransient, err)
	}
	if expiresAt.Valid && time.Now().After(expiresAt.Time) {
		_ = b.Delete(ctx, key)
		return nil, storage.ErrNotFound
	}
	return value, nil
}

func (b *Backend) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expiresAt any
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO masc_kv (key, value, expires_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at
	`, key, value, expiresAt)
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrTransient, err)
	}
	return nil
}

// CompareAndPut runs inside a single transaction so the read-then-write
// is atomic at the row level, the relational analogue of the fs
// backend's mutex-protected read+rename and the Redis backend's Lua
// script.
func (b *Backend) CompareAndPut(ctx context.Context, key string, expected, newValue []byte) (bool, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("%w: %v", storage.ErrTransient, err)
	}
	defer tx.Rollback()

	var cur []byte
	err = tx.QueryRowContext(ctx, `SELECT value FROM masc_kv WHERE key = $1 FOR UPDATE`, key).Scan(&cur)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if expected != nil {
			return false, nil
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO masc_kv (key, value) VALUES ($1, $2)`, key, newValue); err != nil {
			return false, fmt.Errorf("%w: %v", storage.ErrTransient, err)
		}
	case err != nil:
		return false, fmt.Errorf("%w: %v", storage.ErrTransient, err)
	default:
		if expected == nil || string(cur) != string(expected) {
			return false, nil
		}
		if _, err := tx.ExecContext(ctx, `UPDATE masc_kv SET value = $2, expires_at = NULL WHERE key = $1`, key, newValue); err != nil {
			return false, fmt.Errorf("%w: %v", storage.ErrTransient, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("%w: %v", storage.ErrTransient, err)
	}
	return true, nil
}

func (b *Backend) Delete(ctx context.Context, key string) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM masc_kv WHERE key = $1`, key); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrTransient, err)
	}
	return nil
}

func (b *Backend) Scan(ctx context.Context, prefix string) ([]storage.Entry, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT key, value FROM masc_kv
		WHERE key LIKE $1 AND (expires_at IS NULL OR expires_at > now())
		ORDER BY key ASC
	`, prefix+"%")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrTransient, err)
	}
	defer rows.Close()

	var out []storage.Entry
	for rows.Next() {
		var e storage.Entry
		if err := rows.Scan(&e.Key, &e.Value); err != nil {
			return nil, fmt.Errorf("%w: %v", storage.ErrTransient, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (b *Backend) Lock(ctx context.Context, name, owner string, ttl time.Duration) (storage.LockResult, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return storage.LockResult{}, fmt.Errorf("%w: %v", storage.ErrTransient, err)
	}
	defer tx.Rollback()

	var curOwner string
	var expiresAt time.Time
	err = tx.QueryRowContext(ctx, `SELECT owner, expires_at FROM masc_locks WHERE name = $1 FOR UPDATE`, name).Scan(&curOwner, &expiresAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// free
	case err != nil:
		return storage.LockResult{}, fmt.Errorf("%w: %v", storage.ErrTransient, err)
	case time.Now().Before(expiresAt):
		return storage.LockResult{Acquired: false, HeldBy: curOwner}, nil
	}

	newExpiry := time.Now().Add(ttl)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO masc_locks (name, owner, expires_at) VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET owner = EXCLUDED.owner, expires_at = EXCLUDED.expires_at
	`, name, owner, newExpiry)
	if err != nil {
		return storage.LockResult{}, fmt.Errorf("%w: %v", storage.ErrTransient, err)
	}
	if err := tx.Commit(); err != nil {
		return storage.LockResult{}, fmt.Errorf("%w: %v", storage.ErrTransient, err)
	}
	return storage.LockResult{Acquired: true}, nil
}

// ListLocks returns every non-expired lock row.
func (b *Backend) ListLocks(ctx context.Context) ([]storage.LockEntry, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT name, owner FROM masc_locks WHERE expires_at > now() ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrTransient, err)
	}
	defer rows.Close()

	var out []storage.LockEntry
	for rows.Next() {
		var e storage.LockEntry
		if err := rows.Scan(&e.Name, &e.Owner); err != nil {
			return nil, fmt.Errorf("%w: %v", storage.ErrTransient, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (b *Backend) Unlock(ctx context.Context, name, owner string) (bool, error) {
	res, err := b.db.ExecContext(ctx, `DELETE FROM masc_locks WHERE name = $1 AND owner = $2`, name, owner)
	if err != nil {
		return false, fmt.Errorf("%w: %v", storage.ErrTransient, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: %v", storage.ErrTransient, err)
	}
	return n > 0, nil
}

// Tick deletes expired locks and kv rows in one pass, indexed by the
// expires_at indexes created in the 0001 migration (partial on masc_kv,
// covering only rows with an expiry; full on masc_locks) (the
// relational analogue of the fs backend's lock sweep).
func (b *Backend) Tick(ctx context.Context) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM masc_locks WHERE expires_at <= now()`); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrTransient, err)
	}
	if _, err := b.db.ExecContext(ctx, `DELETE FROM masc_kv WHERE expires_at IS NOT NULL AND expires_at <= now()`); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrTransient, err)
	}
	return nil
}
