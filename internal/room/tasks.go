package room

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/masc-dev/masc/internal/merrors"
	"github.com/masc-dev/masc/internal/storage"
)

// AddTask appends a new task to the backlog (spec.md §4.2).
func (r *Room) AddTask(ctx context.Context, title string, priority int, plan, deliverable string) (*Task, error) {
	if title == "" {
		return nil, merrors.InvalidParams("title", "must not be empty")
	}
	task := Task{
		ID:          uuid.NewString(),
		Title:       title,
		Priority:    priority,
		Status:      TaskStatus{Kind: TaskBacklog},
		Plan:        plan,
		Deliverable: deliverable,
		CreatedAt:   r.now(),
	}
	err := r.transact(ctx, taskKey(task.ID), func(cur []byte) ([]byte, error) {
		if cur != nil {
			return nil, fmt.Errorf("room: add_task: %w", merrors.ErrConflict)
		}
		return encodeJSON(task), nil
	})
	if err != nil {
		return nil, err
	}
	r.publish(ctx, "progress", map[string]any{"event": "task_added", "task_id": task.ID})
	return &task, nil
}

// GetTask fetches a single task by ID.
func (r *Room) GetTask(ctx context.Context, id string) (*Task, error) {
	data, err := r.backend.Get(ctx, taskKey(id))
	if err != nil {
		if err == storage.ErrNotFound {
			return nil, merrors.ErrTaskNotFound
		}
		return nil, err
	}
	return decodeJSON[Task](data)
}

// ListTasks returns every task in the backlog, ordered by ascending
// priority (lower number is more urgent) then ascending CreatedAt then
// ID as a final tie-break (spec.md §4.2 "claim_next scans backlog in
// ascending priority then ascending creation time").
func (r *Room) ListTasks(ctx context.Context) ([]Task, error) {
	entries, err := r.backend.Scan(ctx, prefixTask)
	if err != nil {
		return nil, err
	}
	tasks := make([]Task, 0, len(entries))
	for _, e := range entries {
		t, derr := decodeJSON[Task](e.Value)
		if derr != nil {
			continue
		}
		tasks = append(tasks, *t)
	}
	sortTasks(tasks)
	return tasks, nil
}

func sortTasks(tasks []Task) {
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].Priority != tasks[j].Priority {
			return tasks[i].Priority < tasks[j].Priority
		}
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
		}
		return tasks[i].ID < tasks[j].ID
	})
}

// Claim assigns a specific task to an agent, failing with
// TaskAlreadyClaimed if another agent already holds it (spec.md §4.2).
func (r *Room) Claim(ctx context.Context, id, agent string) (*Task, error) {
	var claimed Task
	err := r.transact(ctx, taskKey(id), func(cur []byte) ([]byte, error) {
		t, derr := decodeJSON[Task](cur)
		if derr != nil {
			return nil, merrors.ErrTaskNotFound
		}
		if t.Status.Terminal() {
			return nil, &merrors.InvalidTransition{From: string(t.Status.Kind), To: string(TaskClaimed)}
		}
		if t.Status.Kind == TaskClaimed || t.Status.Kind == TaskInProgress {
			if t.Status.Assignee != agent {
				return nil, &merrors.TaskAlreadyClaimed{By: t.Status.Assignee}
			}
		}
		t.Status = TaskStatus{Kind: TaskClaimed, Assignee: agent, ClaimedAt: r.now()}
		claimed = *t
		return encodeJSON(*t), nil
	})
	if err != nil {
		return nil, err
	}
	r.setCurrentTask(ctx, agent, id)
	r.publish(ctx, "progress", map[string]any{"event": "task_claimed", "task_id": id, "agent": agent})
	return &claimed, nil
}

// ClaimNext claims the most urgent (lowest priority number), oldest
// backlog task for agent, retrying against the next candidate if a race
// loses the claim (spec.md §4.2 "claim_next").
func (r *Room) ClaimNext(ctx context.Context, agent string) (*Task, error) {
	tasks, err := r.ListTasks(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range tasks {
		if t.Status.Kind != TaskBacklog {
			continue
		}
		claimed, cerr := r.Claim(ctx, t.ID, agent)
		if cerr == nil {
			return claimed, nil
		}
		if merrors.IsValidation(cerr) {
			return nil, cerr
		}
		// Another agent won the race on this candidate; try the next.
	}
	return nil, fmt.Errorf("room: claim_next: %w", merrors.ErrTaskNotFound)
}

// Start transitions a claimed task into in_progress (spec.md §4.2).
func (r *Room) Start(ctx context.Context, id, agent string) (*Task, error) {
	var started Task
	err := r.transact(ctx, taskKey(id), func(cur []byte) ([]byte, error) {
		t, derr := decodeJSON[Task](cur)
		if derr != nil {
			return nil, merrors.ErrTaskNotFound
		}
		if t.Status.Kind != TaskClaimed || t.Status.Assignee != agent {
			return nil, merrors.NotOwnerTransition(agent, t.Status.Assignee)
		}
		t.Status = TaskStatus{Kind: TaskInProgress, Assignee: agent, ClaimedAt: t.Status.ClaimedAt, StartedAt: r.now()}
		started = *t
		return encodeJSON(*t), nil
	})
	if err != nil {
		return nil, err
	}
	r.publish(ctx, "progress", map[string]any{"event": "task_started", "task_id": id, "agent": agent})
	return &started, nil
}

// Done marks a task complete with a final note (spec.md §4.2).
func (r *Room) Done(ctx context.Context, id, agent, notes string) (*Task, error) {
	var done Task
	err := r.transact(ctx, taskKey(id), func(cur []byte) ([]byte, error) {
		t, derr := decodeJSON[Task](cur)
		if derr != nil {
			return nil, merrors.ErrTaskNotFound
		}
		if t.Status.Assignee != agent {
			return nil, merrors.NotOwnerTransition(agent, t.Status.Assignee)
		}
		if t.Status.Terminal() {
			return nil, &merrors.InvalidTransition{From: string(t.Status.Kind), To: string(TaskDone)}
		}
		t.Status.Kind = TaskDone
		t.Status.FinishedAt = r.now()
		t.Status.Notes = notes
		done = *t
		return encodeJSON(*t), nil
	})
	if err != nil {
		return nil, err
	}
	r.clearCurrentTask(ctx, agent, id)
	r.publish(ctx, "progress", map[string]any{"event": "task_done", "task_id": id, "agent": agent})
	return &done, nil
}

// Cancel marks a task cancelled with a reason, terminal from any
// non-terminal state (spec.md §4.2).
func (r *Room) Cancel(ctx context.Context, id, reason string) (*Task, error) {
	var cancelled Task
	err := r.transact(ctx, taskKey(id), func(cur []byte) ([]byte, error) {
		t, derr := decodeJSON[Task](cur)
		if derr != nil {
			return nil, merrors.ErrTaskNotFound
		}
		if t.Status.Terminal() {
			return nil, &merrors.InvalidTransition{From: string(t.Status.Kind), To: string(TaskCancelled)}
		}
		assignee := t.Status.Assignee
		t.Status = TaskStatus{Kind: TaskCancelled, Assignee: assignee, Reason: reason, FinishedAt: r.now()}
		cancelled = *t
		return encodeJSON(*t), nil
	})
	if err != nil {
		return nil, err
	}
	if cancelled.Status.Assignee != "" {
		r.clearCurrentTask(ctx, cancelled.Status.Assignee, id)
	}
	r.publish(ctx, "progress", map[string]any{"event": "task_cancelled", "task_id": id, "reason": reason})
	return &cancelled, nil
}

func (r *Room) setCurrentTask(ctx context.Context, agent, taskID string) {
	_ = r.transact(ctx, agentKey(agent), func(cur []byte) ([]byte, error) {
		ag, derr := decodeJSON[Agent](cur)
		if derr != nil {
			return nil, derr
		}
		ag.CurrentTask = taskID
		ag.Status = AgentWorking
		return encodeJSON(*ag), nil
	})
}

func (r *Room) clearCurrentTask(ctx context.Context, agent, taskID string) {
	_ = r.transact(ctx, agentKey(agent), func(cur []byte) ([]byte, error) {
		ag, derr := decodeJSON[Agent](cur)
		if derr != nil {
			return nil, derr
		}
		if ag.CurrentTask == taskID {
			ag.CurrentTask = ""
			ag.Status = AgentIdle
		}
		return encodeJSON(*ag), nil
	})
}
