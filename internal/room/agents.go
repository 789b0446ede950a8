package room

import (
	"context"
	"fmt"

	"github.com/masc-dev/masc/internal/merrors"
	"github.com/masc-dev/masc/internal/storage"
)

// Join registers a new agent or re-joins an existing one (spec.md §4.2
// "join is idempotent for an agent already present and not left").
func (r *Room) Join(ctx context.Context, name string, capabilities []string, role AgentRole) (*Agent, error) {
	if name == "" {
		return nil, merrors.InvalidAgentName(name)
	}
	if role == "" {
		role = RoleWorker
	}

	var joined Agent
	key := agentKey(name)
	err := r.transact(ctx, key, func(cur []byte) ([]byte, error) {
		now := r.now()
		if cur == nil {
			joined = Agent{
				Name:         name,
				Capabilities: capabilities,
				Status:       AgentJoined,
				LastSeen:     now,
				Role:         role,
				JoinedAt:     now,
			}
			return encodeJSON(joined), nil
		}
		existing, derr := decodeJSON[Agent](cur)
		if derr != nil {
			return nil, derr
		}
		existing.Capabilities = capabilities
		existing.Status = AgentJoined
		existing.LastSeen = now
		if role != "" {
			existing.Role = role
		}
		joined = *existing
		return encodeJSON(joined), nil
	})
	if err != nil {
		return nil, err
	}
	r.publish(ctx, "progress", map[string]any{"event": "agent_joined", "agent": name})
	return &joined, nil
}

// Heartbeat refreshes LastSeen and, if the agent had gone zombie,
// restores it to idle (spec.md §4.2 zombie recovery).
func (r *Room) Heartbeat(ctx context.Context, name string) error {
	key := agentKey(name)
	return r.transact(ctx, key, func(cur []byte) ([]byte, error) {
		ag, err := decodeJSON[Agent](cur)
		if err != nil {
			return nil, fmt.Errorf("room: heartbeat: %w", merrors.ErrTaskNotFound)
		}
		ag.LastSeen = r.now()
		if ag.Status == AgentZombie {
			ag.Status = AgentIdle
		}
		return encodeJSON(*ag), nil
	})
}

// Leave marks an agent as having left, releasing it from consideration
// for future claims (spec.md §4.2).
func (r *Room) Leave(ctx context.Context, name string) error {
	key := agentKey(name)
	err := r.transact(ctx, key, func(cur []byte) ([]byte, error) {
		ag, derr := decodeJSON[Agent](cur)
		if derr != nil {
			return nil, fmt.Errorf("room: leave: %w", merrors.ErrTaskNotFound)
		}
		ag.Status = AgentLeft
		ag.CurrentTask = ""
		return encodeJSON(*ag), nil
	})
	if err != nil {
		return err
	}
	r.publish(ctx, "progress", map[string]any{"event": "agent_left", "agent": name})
	return nil
}

// GetAgent fetches a single agent by name.
func (r *Room) GetAgent(ctx context.Context, name string) (*Agent, error) {
	data, err := r.backend.Get(ctx, agentKey(name))
	if err != nil {
		if err == storage.ErrNotFound {
			return nil, merrors.ErrTaskNotFound
		}
		return nil, err
	}
	return decodeJSON[Agent](data)
}

// ListAgents returns every agent known to the room, in no particular
// order (the transport layer sorts for presentation if needed).
func (r *Room) ListAgents(ctx context.Context) ([]Agent, error) {
	entries, err := r.backend.Scan(ctx, prefixAgent)
	if err != nil {
		return nil, err
	}
	agents := make([]Agent, 0, len(entries))
	for _, e := range entries {
		ag, derr := decodeJSON[Agent](e.Value)
		if derr != nil {
			continue
		}
		agents = append(agents, *ag)
	}
	return agents, nil
}

// gcAgents ages agents past ZombieThreshold into AgentZombie and past
// LeftThreshold into AgentLeft, per the C8 tempo-loop sweep (spec.md
// §4.8). Promoting an agent to AgentLeft also clears its held resources:
// every lock it owns is released and every non-terminal task assigned to
// it is reassigned back to the backlog (spec.md §4.2 "GC ... clears
// their held resources (release locks, reassign claimed tasks back to
// backlog)"). Each agent is updated independently so one conflict
// doesn't block the sweep of the rest.
func (r *Room) gcAgents(ctx context.Context) error {
	agents, err := r.ListAgents(ctx)
	if err != nil {
		return err
	}
	now := r.now()
	var firstErr error
	note := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, ag := range agents {
		if ag.Status == AgentLeft {
			continue
		}
		age := now.Sub(ag.LastSeen)
		newStatus := ag.Status
		switch {
		case age >= r.LeftThreshold:
			newStatus = AgentLeft
		case age >= r.ZombieThreshold && ag.Status != AgentZombie:
			newStatus = AgentZombie
		default:
			continue
		}
		name := ag.Name
		terr := r.transact(ctx, agentKey(name), func(cur []byte) ([]byte, error) {
			a, derr := decodeJSON[Agent](cur)
			if derr != nil {
				return nil, derr
			}
			a.Status = newStatus
			return encodeJSON(*a), nil
		})
		note(terr)
		if terr != nil {
			continue
		}
		if newStatus == AgentZombie {
			r.publish(ctx, "progress", map[string]any{"event": "agent_zombie", "agent": name})
			continue
		}
		r.publish(ctx, "progress", map[string]any{"event": "agent_left", "agent": name})
		note(r.releaseAgentLocks(ctx, name))
		note(r.reassignAgentTasks(ctx, name))
	}
	return firstErr
}

// releaseAgentLocks unlocks every lock currently held by owner.
func (r *Room) releaseAgentLocks(ctx context.Context, owner string) error {
	locks, err := r.backend.ListLocks(ctx)
	if err != nil {
		return err
	}
	var firstErr error
	for _, l := range locks {
		if l.Owner != owner {
			continue
		}
		if _, uerr := r.backend.Unlock(ctx, l.Name, owner); uerr != nil && firstErr == nil {
			firstErr = uerr
		} else if uerr == nil {
			r.publish(ctx, "progress", map[string]any{"event": "lock_released", "owner": owner})
		}
	}
	return firstErr
}

// reassignAgentTasks returns every non-terminal task assigned to agent
// back to the backlog, unassigned.
func (r *Room) reassignAgentTasks(ctx context.Context, agent string) error {
	tasks, err := r.ListTasks(ctx)
	if err != nil {
		return err
	}
	var firstErr error
	for _, t := range tasks {
		if t.Status.Assignee != agent || t.Status.Terminal() {
			continue
		}
		id := t.ID
		terr := r.transact(ctx, taskKey(id), func(cur []byte) ([]byte, error) {
			cur2, derr := decodeJSON[Task](cur)
			if derr != nil {
				return nil, derr
			}
			if cur2.Status.Assignee != agent || cur2.Status.Terminal() {
				return encodeJSON(*cur2), nil
			}
			cur2.Status = TaskStatus{Kind: TaskBacklog}
			return encodeJSON(*cur2), nil
		})
		if terr != nil {
			if firstErr == nil {
				firstErr = terr
			}
			continue
		}
		r.publish(ctx, "progress", map[string]any{"event": "task_reassigned", "task_id": id, "from_agent": agent})
	}
	return firstErr
}
