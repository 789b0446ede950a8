// Package tempo implements the adaptive per-room background sweep:
// lock expiry, agent aging and checkpoint timeouts, all driven by
// room.Room.Tick on an interval that tightens as task urgency rises
// (spec.md §4.8). The sweep does not trim the session hub's replay ring;
// the hub evicts its oldest events as it publishes new ones. Grounded on pkg/queue/pool.go's
// Start/Stop/sync.Once shutdown shape and pkg/queue/orphan.go's
// ticker-driven background scan in the teacher, adapted from a fixed
// interval to one recomputed after every tick.
package tempo

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/masc-dev/masc/internal/room"
)

// Fixed tempo tiers (spec.md §4.8).
const (
	FastInterval   = 60 * time.Second  // any non-terminal task with priority <= 2
	MediumInterval = 300 * time.Second // any other non-terminal task
	SlowInterval   = 600 * time.Second // idle
)

// UrgentPriorityThreshold is the task priority (inclusive, lower is
// more urgent) that forces the fast tempo tier.
const UrgentPriorityThreshold = 2

// Loop is a single adaptive background task for one room.
type Loop struct {
	room *room.Room

	mu       sync.Mutex
	override *time.Duration
	current  time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	started  bool
}

// New creates a Loop over r. It does not start running until Start is called.
func New(r *room.Room) *Loop {
	return &Loop{
		room:   r,
		stopCh: make(chan struct{}),
	}
}

// Start spawns the loop's goroutine. Safe to call more than once;
// subsequent calls are no-ops (mirrors WorkerPool.Start in the teacher).
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		slog.Warn("tempo: loop already started, ignoring duplicate Start call", "room", l.room.Name)
		return
	}
	l.started = true
	l.mu.Unlock()

	l.wg.Add(1)
	go l.run(ctx)
}

// Stop signals the loop to exit and waits for it to finish. Safe to
// call more than once.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
	l.wg.Wait()
}

func (l *Loop) run(ctx context.Context) {
	defer l.wg.Done()

	timer := time.NewTimer(l.nextInterval(ctx))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stopCh:
			return
		case <-timer.C:
			if err := l.room.Tick(ctx); err != nil {
				slog.Error("tempo: tick failed", "room", l.room.Name, "error", err)
			}
			timer.Reset(l.nextInterval(ctx))
		}
	}
}

// SetOverride forces the next sleep to last d, honoured until the loop's
// next automatic recomputation (spec.md §4.8 "manual override via tool
// call is honoured until the next automatic recomputation").
func (l *Loop) SetOverride(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.override = &d
	l.current = d
}

// CurrentInterval reports the most recently chosen interval: the one
// nextInterval last returned, or a pending override set by SetOverride
// (which takes effect from the next sleep, not the one already running).
func (l *Loop) CurrentInterval() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// nextInterval consumes a pending override if set, otherwise recomputes
// from current task urgency.
func (l *Loop) nextInterval(ctx context.Context) time.Duration {
	l.mu.Lock()
	if l.override != nil {
		d := *l.override
		l.override = nil
		l.current = d
		l.mu.Unlock()
		return d
	}
	l.mu.Unlock()

	d := l.computeInterval(ctx)
	l.mu.Lock()
	l.current = d
	l.mu.Unlock()
	return d
}

// computeInterval implements spec.md §4.8's three-tier urgency rule:
// 60s when any non-terminal task has priority <= UrgentPriorityThreshold,
// 300s when any other task is non-terminal, 600s when the backlog is
// entirely terminal (or empty).
func (l *Loop) computeInterval(ctx context.Context) time.Duration {
	tasks, err := l.room.ListTasks(ctx)
	if err != nil {
		slog.Error("tempo: listing tasks for urgency failed, defaulting to fast tempo", "room", l.room.Name, "error", err)
		return FastInterval
	}

	anyNonTerminal := false
	for _, t := range tasks {
		if t.Status.Terminal() {
			continue
		}
		anyNonTerminal = true
		if t.Priority <= UrgentPriorityThreshold {
			return FastInterval
		}
	}
	if anyNonTerminal {
		return MediumInterval
	}
	return SlowInterval
}
