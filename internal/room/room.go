package room

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/masc-dev/masc/internal/merrors"
	"github.com/masc-dev/masc/internal/storage"
)

// Event is emitted by a mutating operation for any observable change to
// room state, to be forwarded through the session hub (C4) as an SSE
// notification (spec.md §4.2 broadcast, §9 "every domain mutation that
// changes observable room state emits at least one notification").
type Event struct {
	Kind      string    `json:"kind"` // "message" | "mention" | "progress" | "shutdown"
	Room      string    `json:"room"`
	Payload   any       `json:"payload"`
	Targets   []string  `json:"targets,omitempty"` // bound agent names; empty = all subscribers
	Timestamp time.Time `json:"timestamp"`
}

// Publisher forwards events to subscribed sessions. Implemented by
// session.Hub; kept as a narrow interface here so room never imports
// the transport layer (spec.md §9 "a handler must never see backend
// details", generalized to "never see transport details").
type Publisher interface {
	Publish(ctx context.Context, evt Event)
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, Event) {}

// Room is the unit of consistency: a named workspace with its own
// agents, tasks, locks, messages and checkpoints, backed by a single
// storage.Backend (spec.md §3 Glossary).
type Room struct {
	Name      string
	backend   storage.Backend
	publisher Publisher
	clock     func() time.Time

	// Config knobs with spec.md defaults.
	ZombieThreshold time.Duration // last-seen age before "zombie" (default 5m)
	LeftThreshold   time.Duration // last-seen age before GC promotes to "left" (default 30m)
	RetryBound      int
	RetryBackoff    time.Duration
}

// New opens a Room over backend. publisher may be nil, in which case
// events are dropped (used by unit tests that only assert on state).
func New(name string, backend storage.Backend, publisher Publisher) *Room {
	if publisher == nil {
		publisher = noopPublisher{}
	}
	return &Room{
		Name:            name,
		backend:         backend,
		publisher:       publisher,
		clock:           time.Now,
		ZombieThreshold: 5 * time.Minute,
		LeftThreshold:   30 * time.Minute,
		RetryBound:      storage.DefaultRetryBound,
		RetryBackoff:    storage.DefaultRetryBackoff,
	}
}

func (r *Room) now() time.Time { return r.clock() }

func (r *Room) publish(ctx context.Context, kind string, payload any, targets ...string) {
	r.publisher.Publish(ctx, Event{
		Kind:      kind,
		Room:      r.Name,
		Payload:   payload,
		Targets:   targets,
		Timestamp: r.now(),
	})
}

// Key prefixes, mirroring the filesystem backend's subtree layout from
// spec.md §6 ("<base>/.masc/agents/", "tasks/", "locks/", ...).
const (
	prefixAgent      = "agents/"
	prefixTask       = "tasks/"
	prefixMessage    = "messages/"
	prefixCheckpoint = "checkpoints/"
	prefixVote       = "votes/"
	prefixPortal     = "portal/"
	prefixWorktree   = "worktree/"
	prefixAuth       = "auth/"
	prefixCost       = "cache/cost/"
	keyMessageSeq    = "messages/seq"
)

func agentKey(name string) string      { return prefixAgent + name }
func taskKey(id string) string         { return prefixTask + id }
func messageKey(seq uint64) string      { return fmt.Sprintf("%s%020d", prefixMessage, seq) }
func checkpointKey(id string) string   { return prefixCheckpoint + id }
func lockName(path string) string      { return "file:" + path }
func voteKey(id string) string         { return prefixVote + id }
func portalKey(id string) string       { return prefixPortal + id }
func worktreeKey(id string) string     { return prefixWorktree + id }
func authKey(name string) string       { return prefixAuth + name }

// transact implements the read-modify-compare_and_put retry loop shared
// by every mutating operation in this package (spec.md §4.2). fn reads
// the current raw value (nil if absent) and returns the new encoded
// value to commit, or an error to abort without retrying (a domain
// error such as InvalidTransition is not retriable).
func (r *Room) transact(ctx context.Context, key string, fn func(cur []byte) (next []byte, err error)) error {
	backoff := r.RetryBackoff
	for attempt := 0; attempt < r.RetryBound; attempt++ {
		cur, err := r.backend.Get(ctx, key)
		if err != nil && err != storage.ErrNotFound {
			if storage.IsTransient(err) {
				time.Sleep(jitter(backoff))
				backoff *= 2
				continue
			}
			return err
		}
		if err == storage.ErrNotFound {
			cur = nil
		}

		next, ferr := fn(cur)
		if ferr != nil {
			return ferr
		}

		ok, err := r.backend.CompareAndPut(ctx, key, cur, next)
		if err != nil {
			if storage.IsTransient(err) {
				time.Sleep(jitter(backoff))
				backoff *= 2
				continue
			}
			return err
		}
		if ok {
			return nil
		}
		// Lost the race: another writer committed between our read and
		// our compare_and_put. Retry from a fresh read (spec.md §4.2).
		time.Sleep(jitter(backoff))
		backoff *= 2
	}
	return merrors.ErrConflict
}

func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + time.Duration(rand.Int63n(int64(d)))
}

func decodeJSON[T any](data []byte) (*T, error) {
	if data == nil {
		return nil, storage.ErrNotFound
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", merrors.ErrInternal, err)
	}
	return &v, nil
}

func encodeJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		// Encoding a well-typed domain struct never fails; a failure here
		// is a programmer error, matching spec.md §9's "panics reserved
		// for truly unexpected states".
		panic(fmt.Sprintf("room: marshal invariant violated: %v", err))
	}
	return data
}

// Tick runs the C8 tempo-loop sweep against this room: expire locks,
// age agents into zombie/left, expire checkpoint timeouts. Message
// ring expiry is owned by the session hub, not the room (spec.md §4.8).
func (r *Room) Tick(ctx context.Context) error {
	if err := r.backend.Tick(ctx); err != nil {
		return fmt.Errorf("room: backend tick: %w", err)
	}
	if err := r.gcAgents(ctx); err != nil {
		slog.Error("room: agent GC failed", "room", r.Name, "error", err)
	}
	if _, err := r.Pending(ctx, DefaultPendingTimeoutMinutes); err != nil {
		slog.Error("room: checkpoint timeout sweep failed", "room", r.Name, "error", err)
	}
	return nil
}
