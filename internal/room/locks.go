package room

import (
	"context"
	"path"
	"strings"
	"time"

	"github.com/masc-dev/masc/internal/merrors"
)

// DefaultLockTTL is applied when a caller omits a TTL (spec.md §4.4).
const DefaultLockTTL = 10 * time.Minute

// normalizePath rejects absolute paths, parent-directory traversal and
// embedded NUL bytes, then cleans the path, mirroring spec.md §4.4's
// "a lock path must resolve unambiguously inside the workspace".
func normalizePath(p string) (string, error) {
	if p == "" || strings.ContainsRune(p, 0) {
		return "", merrors.InvalidFilePath(p)
	}
	if path.IsAbs(p) {
		return "", merrors.InvalidFilePath(p)
	}
	clean := path.Clean(p)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", merrors.InvalidFilePath(p)
	}
	return clean, nil
}

// AcquireLock grants owner an exclusive hold on path for ttl (or
// DefaultLockTTL if ttl <= 0), failing with FileLocked if another owner
// already holds it (spec.md §4.4).
func (r *Room) AcquireLock(ctx context.Context, rawPath, owner string, ttl time.Duration) (*FileLock, error) {
	clean, err := normalizePath(rawPath)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}

	res, err := r.backend.Lock(ctx, lockName(clean), owner, ttl)
	if err != nil {
		return nil, err
	}
	if !res.Acquired {
		return nil, &merrors.FileLocked{By: res.HeldBy}
	}
	lock := &FileLock{Path: clean, Owner: owner, AcquiredAt: r.now(), TTL: ttl}
	r.publish(ctx, "progress", map[string]any{"event": "lock_acquired", "path": clean, "owner": owner})
	return lock, nil
}

// ReleaseLock releases path if owner currently holds it (spec.md §4.4).
func (r *Room) ReleaseLock(ctx context.Context, rawPath, owner string) error {
	clean, err := normalizePath(rawPath)
	if err != nil {
		return err
	}
	ok, err := r.backend.Unlock(ctx, lockName(clean), owner)
	if err != nil {
		return err
	}
	if !ok {
		return merrors.ErrNotOwner
	}
	r.publish(ctx, "progress", map[string]any{"event": "lock_released", "path": clean, "owner": owner})
	return nil
}
