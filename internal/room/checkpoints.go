package room

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/masc-dev/masc/internal/merrors"
	"github.com/masc-dev/masc/internal/storage"
)

// DefaultPendingTimeoutMinutes bounds how long a checkpoint may sit
// interrupted before the tempo loop auto-rejects it with reason
// "timeout" (spec.md §4.7 "pending(timeout_min)").
const DefaultPendingTimeoutMinutes = 15

// Save records a new pending checkpoint for taskID at step (spec.md §4.7).
func (r *Room) Save(ctx context.Context, taskID string, step int, action, state, author string) (*Checkpoint, error) {
	now := r.now()
	cp := Checkpoint{
		ID:        uuid.NewString(),
		TaskID:    taskID,
		Step:      step,
		Action:    action,
		State:     state,
		Author:    author,
		Status:    CheckpointPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := r.transact(ctx, checkpointKey(cp.ID), func(cur []byte) ([]byte, error) {
		if cur != nil {
			return nil, fmt.Errorf("room: save: %w", merrors.ErrConflict)
		}
		return encodeJSON(cp), nil
	})
	if err != nil {
		return nil, err
	}
	r.publish(ctx, "progress", map[string]any{"event": "checkpoint_saved", "checkpoint_id": cp.ID, "task_id": taskID})
	return &cp, nil
}

// GetCheckpoint fetches a single checkpoint by ID.
func (r *Room) GetCheckpoint(ctx context.Context, id string) (*Checkpoint, error) {
	data, err := r.backend.Get(ctx, checkpointKey(id))
	if err != nil {
		if err == storage.ErrNotFound {
			return nil, merrors.ErrTaskNotFound
		}
		return nil, err
	}
	return decodeJSON[Checkpoint](data)
}

// transitionCheckpoint is the shared transact wrapper for every
// checkpoint state-machine move: it loads the checkpoint, validates
// fromKinds contains its current status, applies mutate, and commits
// (spec.md §4.7).
func (r *Room) transitionCheckpoint(ctx context.Context, id string, fromKinds []CheckpointStatus, to CheckpointStatus, mutate func(*Checkpoint)) (*Checkpoint, error) {
	var result Checkpoint
	err := r.transact(ctx, checkpointKey(id), func(cur []byte) ([]byte, error) {
		cp, derr := decodeJSON[Checkpoint](cur)
		if derr != nil {
			return nil, merrors.ErrTaskNotFound
		}
		if !statusIn(cp.Status, fromKinds) {
			return nil, &merrors.InvalidTransition{From: string(cp.Status), To: string(to)}
		}
		cp.Status = to
		cp.UpdatedAt = r.now()
		if mutate != nil {
			mutate(cp)
		}
		result = *cp
		return encodeJSON(*cp), nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func statusIn(s CheckpointStatus, set []CheckpointStatus) bool {
	for _, c := range set {
		if s == c {
			return true
		}
	}
	return false
}

// Interrupt marks a pending or in-progress checkpoint interrupted with
// a human-readable message (spec.md §4.7).
func (r *Room) Interrupt(ctx context.Context, id, message string) (*Checkpoint, error) {
	cp, err := r.transitionCheckpoint(ctx, id,
		[]CheckpointStatus{CheckpointPending, CheckpointInProgress},
		CheckpointInterrupted,
		func(c *Checkpoint) { c.Message = message })
	if err != nil {
		return nil, err
	}
	r.publish(ctx, "progress", map[string]any{"event": "checkpoint_interrupted", "checkpoint_id": id})
	return cp, nil
}

// latestInterruptedCheckpoint returns taskID's most recent interrupted
// checkpoint (highest Step, ties broken by latest UpdatedAt), or
// InvalidTransition if none exists. approve/reject are keyed by task_id
// rather than an opaque checkpoint id because only "interrupted" may
// ever resolve externally (spec.md §4.7 "only interrupted → completed/
// rejected is permitted for external approve/reject"; §8 scenario 4
// calls approve(task_id), never a checkpoint id).
func (r *Room) latestInterruptedCheckpoint(ctx context.Context, taskID string) (*Checkpoint, error) {
	cps, err := r.ListCheckpoints(ctx, taskID)
	if err != nil {
		return nil, err
	}
	var latest *Checkpoint
	for i := range cps {
		cp := &cps[i]
		if cp.Status != CheckpointInterrupted {
			continue
		}
		if latest == nil || cp.Step > latest.Step ||
			(cp.Step == latest.Step && cp.UpdatedAt.After(latest.UpdatedAt)) {
			latest = cp
		}
	}
	if latest == nil {
		return nil, &merrors.InvalidTransition{From: "none", To: string(CheckpointCompleted)}
	}
	return latest, nil
}

// Approve resolves taskID's latest interrupted checkpoint to completed
// unedited (spec.md §4.7).
func (r *Room) Approve(ctx context.Context, taskID string) (*Checkpoint, error) {
	latest, err := r.latestInterruptedCheckpoint(ctx, taskID)
	if err != nil {
		return nil, err
	}
	cp, err := r.transitionCheckpoint(ctx, latest.ID,
		[]CheckpointStatus{CheckpointInterrupted},
		CheckpointCompleted, nil)
	if err != nil {
		return nil, err
	}
	r.publish(ctx, "progress", map[string]any{"event": "checkpoint_approved", "checkpoint_id": cp.ID, "task_id": taskID})
	return cp, nil
}

// ApproveEdited resolves taskID's latest interrupted checkpoint to
// completed with a human-edited replacement state, recording
// StateEdited so downstream consumers know the committed state differs
// from what the agent proposed (spec.md §4.7, Open Question resolved in
// DESIGN.md).
func (r *Room) ApproveEdited(ctx context.Context, taskID, editedState string) (*Checkpoint, error) {
	latest, err := r.latestInterruptedCheckpoint(ctx, taskID)
	if err != nil {
		return nil, err
	}
	cp, err := r.transitionCheckpoint(ctx, latest.ID,
		[]CheckpointStatus{CheckpointInterrupted},
		CheckpointCompleted,
		func(c *Checkpoint) {
			c.State = editedState
			c.StateEdited = true
		})
	if err != nil {
		return nil, err
	}
	r.publish(ctx, "progress", map[string]any{"event": "checkpoint_approved_edited", "checkpoint_id": cp.ID, "task_id": taskID})
	return cp, nil
}

// Reject terminates taskID's latest interrupted checkpoint with a
// reason, never reaching completed (spec.md §4.7).
func (r *Room) Reject(ctx context.Context, taskID, reason string) (*Checkpoint, error) {
	latest, err := r.latestInterruptedCheckpoint(ctx, taskID)
	if err != nil {
		return nil, err
	}
	cp, err := r.transitionCheckpoint(ctx, latest.ID,
		[]CheckpointStatus{CheckpointInterrupted},
		CheckpointRejected,
		func(c *Checkpoint) { c.Reason = reason })
	if err != nil {
		return nil, err
	}
	r.publish(ctx, "progress", map[string]any{"event": "checkpoint_rejected", "checkpoint_id": cp.ID, "task_id": taskID})
	return cp, nil
}

// Branch creates a new checkpoint that forks from parentID under
// branchName without mutating the parent, which may be in any status
// (spec.md §4.7 "any state may branch").
func (r *Room) Branch(ctx context.Context, parentID, branchName, author string) (*Checkpoint, error) {
	parent, err := r.GetCheckpoint(ctx, parentID)
	if err != nil {
		return nil, err
	}
	now := r.now()
	child := Checkpoint{
		ID:         uuid.NewString(),
		TaskID:     parent.TaskID,
		Step:       parent.Step,
		Action:     parent.Action,
		State:      parent.State,
		Author:     author,
		Status:     CheckpointBranched,
		ParentID:   parentID,
		BranchName: branchName,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err = r.transact(ctx, checkpointKey(child.ID), func(cur []byte) ([]byte, error) {
		if cur != nil {
			return nil, fmt.Errorf("room: branch: %w", merrors.ErrConflict)
		}
		return encodeJSON(child), nil
	})
	if err != nil {
		return nil, err
	}
	r.publish(ctx, "progress", map[string]any{"event": "checkpoint_branched", "checkpoint_id": child.ID, "parent_id": parentID})
	return &child, nil
}

// Revert non-destructively marks every checkpoint of taskID whose Step
// is greater than targetStep as reverted: the records and their history
// are retained, only RevertedAt and Status change, so time-travel
// queries can still read the original state (spec.md §4.7 "revert(task_id,
// target_step) marks every checkpoint with step > target_step as
// reverted", testable invariant 6 in §8).
func (r *Room) Revert(ctx context.Context, taskID string, targetStep int) ([]Checkpoint, error) {
	cps, err := r.ListCheckpoints(ctx, taskID)
	if err != nil {
		return nil, err
	}
	var reverted []Checkpoint
	var firstErr error
	for _, cp := range cps {
		if cp.Step <= targetStep || cp.Status == CheckpointReverted {
			continue
		}
		id := cp.ID
		result, terr := r.transitionCheckpoint(ctx, id,
			[]CheckpointStatus{CheckpointCompleted, CheckpointInterrupted, CheckpointRejected, CheckpointBranched, CheckpointPending, CheckpointInProgress},
			CheckpointReverted,
			func(c *Checkpoint) { c.RevertedAt = r.now() })
		if terr != nil {
			if firstErr == nil {
				firstErr = terr
			}
			continue
		}
		reverted = append(reverted, *result)
		r.publish(ctx, "progress", map[string]any{"event": "checkpoint_reverted", "checkpoint_id": id, "task_id": taskID})
	}
	if len(reverted) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return reverted, nil
}

// ListCheckpoints returns every checkpoint for taskID, ordered by Step
// then CreatedAt (spec.md §4.7).
func (r *Room) ListCheckpoints(ctx context.Context, taskID string) ([]Checkpoint, error) {
	entries, err := r.backend.Scan(ctx, prefixCheckpoint)
	if err != nil {
		return nil, err
	}
	var cps []Checkpoint
	for _, e := range entries {
		cp, derr := decodeJSON[Checkpoint](e.Value)
		if derr != nil {
			continue
		}
		if cp.TaskID == taskID {
			cps = append(cps, *cp)
		}
	}
	for i := 1; i < len(cps); i++ {
		for j := i; j > 0 && (cps[j-1].Step > cps[j].Step ||
			(cps[j-1].Step == cps[j].Step && cps[j-1].CreatedAt.After(cps[j].CreatedAt))); j-- {
			cps[j-1], cps[j] = cps[j], cps[j-1]
		}
	}
	return cps, nil
}

// Pending enumerates every interrupted checkpoint in the room, first
// auto-rejecting (reason "timeout") any that has sat interrupted for at
// least timeoutMin minutes, a C8 tempo-loop duty (spec.md §4.7
// "pending(timeout_min) enumerates interrupted checkpoints; any older
// than timeout_min are first auto-transitioned to rejected{reason:
// timeout}", §4.8). A zero or negative timeoutMin disables auto-reject.
func (r *Room) Pending(ctx context.Context, timeoutMin int) ([]Checkpoint, error) {
	entries, err := r.backend.Scan(ctx, prefixCheckpoint)
	if err != nil {
		return nil, err
	}
	timeout := time.Duration(timeoutMin) * time.Minute
	now := r.now()
	var out []Checkpoint
	for _, e := range entries {
		cp, derr := decodeJSON[Checkpoint](e.Value)
		if derr != nil || cp.Status != CheckpointInterrupted {
			continue
		}
		if timeout > 0 && now.Sub(cp.UpdatedAt) >= timeout {
			rejected, rerr := r.transitionCheckpoint(ctx, cp.ID,
				[]CheckpointStatus{CheckpointInterrupted},
				CheckpointRejected,
				func(c *Checkpoint) { c.Reason = "timeout" })
			if rerr != nil {
				slog.Error("room: checkpoint timeout auto-reject failed", "checkpoint_id", cp.ID, "error", rerr)
				out = append(out, *cp)
				continue
			}
			r.publish(ctx, "progress", map[string]any{"event": "checkpoint_rejected", "checkpoint_id": cp.ID, "task_id": cp.TaskID, "reason": "timeout"})
			continue
		}
		out = append(out, *cp)
	}
	return out, nil
}
