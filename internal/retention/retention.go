// Package retention implements C12, the cross-room cleanup janitor:
// periodic hard-deletion of terminal tasks and resolved checkpoints past
// a retention window, plus message-log truncation past a configured
// count (SPEC_FULL.md §4.12, a domain expansion grounded on
// pkg/cleanup/service.go's Start/Stop/idempotent-ticker-loop shape in
// the teacher). Distinct from internal/tempo (C8): the tempo loop is the
// fast per-room sweep for liveness/expiry that must run sub-minute; this
// service is an optional, slower janitor with its own interval and
// failure domain, mirroring the teacher's separate cleanup package.
package retention

import (
	"context"
	"log/slog"
	"time"

	"github.com/masc-dev/masc/internal/room"
)

// Config parametrizes one room's retention windows, grounded on
// config.RetentionConfig in the teacher.
type Config struct {
	Interval            time.Duration
	TaskRetention       time.Duration
	CheckpointRetention time.Duration
	MessageKeepCount    int
}

// DefaultConfig mirrors sane production defaults: a month of terminal
// history, an hourly sweep, and the same message floor the session hub
// already guarantees per room.
func DefaultConfig() Config {
	return Config{
		Interval:            time.Hour,
		TaskRetention:       30 * 24 * time.Hour,
		CheckpointRetention: 30 * 24 * time.Hour,
		MessageKeepCount:    room.MaxMessageRing,
	}
}

// Service runs the cleanup loop for one room, mirroring
// cleanup.Service's cancel/done-channel shape.
type Service struct {
	cfg  Config
	room *room.Room

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a cleanup Service for r. Call Start to begin the loop.
func New(cfg Config, r *room.Room) *Service {
	return &Service{cfg: cfg, room: r}
}

// Start launches the background cleanup loop; a second call while
// already running is a no-op (mirrors cleanup.Service.Start).
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.run(ctx)
	slog.Info("retention: service started", "room", s.room.Name,
		"interval", s.cfg.Interval, "task_retention", s.cfg.TaskRetention,
		"checkpoint_retention", s.cfg.CheckpointRetention, "message_keep_count", s.cfg.MessageKeepCount)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	slog.Info("retention: service stopped", "room", s.room.Name)
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.runAll(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runAll(ctx)
		}
	}
}

func (s *Service) runAll(ctx context.Context) {
	if n, err := s.room.PruneTasks(ctx, s.cfg.TaskRetention); err != nil {
		slog.Error("retention: task prune failed", "room", s.room.Name, "error", err)
	} else if n > 0 {
		slog.Info("retention: pruned terminal tasks", "room", s.room.Name, "count", n)
	}
	if n, err := s.room.PruneCheckpoints(ctx, s.cfg.CheckpointRetention); err != nil {
		slog.Error("retention: checkpoint prune failed", "room", s.room.Name, "error", err)
	} else if n > 0 {
		slog.Info("retention: pruned resolved checkpoints", "room", s.room.Name, "count", n)
	}
	if n, err := s.room.PruneMessages(ctx, s.cfg.MessageKeepCount); err != nil {
		slog.Error("retention: message prune failed", "room", s.room.Name, "error", err)
	} else if n > 0 {
		slog.Info("retention: truncated message log", "room", s.room.Name, "count", n)
	}
}
