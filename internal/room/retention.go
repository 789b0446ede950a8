package room

import (
	"context"
	"time"
)

// PruneTasks hard-deletes cancelled/done tasks whose FinishedAt is older
// than olderThan, returning the count removed (SPEC_FULL.md §4.12,
// grounded on pkg/cleanup/service.go's softDeleteOldSessions in the
// teacher). A task without a recorded FinishedAt is never pruned.
func (r *Room) PruneTasks(ctx context.Context, olderThan time.Duration) (int, error) {
	tasks, err := r.ListTasks(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := r.now().Add(-olderThan)
	n := 0
	for _, t := range tasks {
		if !t.Status.Terminal() || t.Status.FinishedAt.IsZero() || t.Status.FinishedAt.After(cutoff) {
			continue
		}
		if err := r.backend.Delete(ctx, taskKey(t.ID)); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// PruneCheckpoints hard-deletes rejected/completed checkpoints whose
// UpdatedAt is older than olderThan, returning the count removed
// (SPEC_FULL.md §4.12).
func (r *Room) PruneCheckpoints(ctx context.Context, olderThan time.Duration) (int, error) {
	entries, err := r.backend.Scan(ctx, prefixCheckpoint)
	if err != nil {
		return 0, err
	}
	cutoff := r.now().Add(-olderThan)
	n := 0
	for _, e := range entries {
		cp, derr := decodeJSON[Checkpoint](e.Value)
		if derr != nil {
			continue
		}
		if cp.Status != CheckpointRejected && cp.Status != CheckpointCompleted {
			continue
		}
		if cp.UpdatedAt.After(cutoff) {
			continue
		}
		if err := r.backend.Delete(ctx, checkpointKey(cp.ID)); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// PruneMessages hard-deletes the oldest broadcast messages beyond the
// most recent keep entries, returning the count removed (SPEC_FULL.md
// §4.12 "truncation of the message log's oldest entries beyond a
// configured count"). A non-positive keep disables truncation.
func (r *Room) PruneMessages(ctx context.Context, keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}
	entries, err := r.backend.Scan(ctx, prefixMessage)
	if err != nil {
		return 0, err
	}
	var msgs []Message
	for _, e := range entries {
		if e.Key == keyMessageSeq {
			continue
		}
		m, derr := decodeJSON[Message](e.Value)
		if derr != nil {
			continue
		}
		msgs = append(msgs, *m)
	}
	sortMessages(msgs)
	if len(msgs) <= keep {
		return 0, nil
	}
	stale := msgs[:len(msgs)-keep]
	for _, m := range stale {
		if err := r.backend.Delete(ctx, messageKey(m.Seq)); err != nil {
			return 0, err
		}
	}
	return len(stale), nil
}
