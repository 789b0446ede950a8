package room

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/masc-dev/masc/internal/merrors"
	"github.com/masc-dev/masc/internal/storage"
)

// OpenVote creates a new vote on topic (spec.md §3 auxiliary records).
func (r *Room) OpenVote(ctx context.Context, topic string) (*Vote, error) {
	v := Vote{ID: uuid.NewString(), Topic: topic, Ballots: map[string]string{}, CreatedAt: r.now()}
	err := r.transact(ctx, voteKey(v.ID), func(cur []byte) ([]byte, error) {
		if cur != nil {
			return nil, fmt.Errorf("room: open_vote: %w", merrors.ErrConflict)
		}
		return encodeJSON(v), nil
	})
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Ballot records agent's choice on an open vote, overwriting any prior
// ballot from the same agent.
func (r *Room) Ballot(ctx context.Context, voteID, agent, choice string) (*Vote, error) {
	var result Vote
	err := r.transact(ctx, voteKey(voteID), func(cur []byte) ([]byte, error) {
		v, derr := decodeJSON[Vote](cur)
		if derr != nil {
			return nil, merrors.ErrTaskNotFound
		}
		if !v.ClosedAt.IsZero() {
			return nil, &merrors.InvalidTransition{From: "closed", To: "ballot"}
		}
		if v.Ballots == nil {
			v.Ballots = map[string]string{}
		}
		v.Ballots[agent] = choice
		result = *v
		return encodeJSON(*v), nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// CloseVote stops accepting ballots and returns the final tally.
func (r *Room) CloseVote(ctx context.Context, voteID string) (*Vote, error) {
	var result Vote
	err := r.transact(ctx, voteKey(voteID), func(cur []byte) ([]byte, error) {
		v, derr := decodeJSON[Vote](cur)
		if derr != nil {
			return nil, merrors.ErrTaskNotFound
		}
		v.ClosedAt = r.now()
		result = *v
		return encodeJSON(*v), nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Subscribe records a portal subscription for agent to topic (spec.md §3).
func (r *Room) Subscribe(ctx context.Context, agent, topic string) (*PortalSubscription, error) {
	sub := PortalSubscription{ID: uuid.NewString(), Agent: agent, Topic: topic, CreatedAt: r.now()}
	if err := r.backend.Put(ctx, portalKey(sub.ID), encodeJSON(sub), 0); err != nil {
		return nil, err
	}
	return &sub, nil
}

// Unsubscribe removes a portal subscription by ID.
func (r *Room) Unsubscribe(ctx context.Context, id string) error {
	return r.backend.Delete(ctx, portalKey(id))
}

// ListSubscriptions returns every portal subscription for topic (or all,
// if topic is empty).
func (r *Room) ListSubscriptions(ctx context.Context, topic string) ([]PortalSubscription, error) {
	entries, err := r.backend.Scan(ctx, prefixPortal)
	if err != nil {
		return nil, err
	}
	var subs []PortalSubscription
	for _, e := range entries {
		s, derr := decodeJSON[PortalSubscription](e.Value)
		if derr != nil {
			continue
		}
		if topic == "" || s.Topic == topic {
			subs = append(subs, *s)
		}
	}
	return subs, nil
}

// RegisterWorktree records metadata about an externally-created
// isolated worktree (spec.md Glossary "worktree").
func (r *Room) RegisterWorktree(ctx context.Context, agent, path, branch string) (*WorktreeRecord, error) {
	wt := WorktreeRecord{ID: uuid.NewString(), Agent: agent, Path: path, Branch: branch, CreatedAt: r.now()}
	if err := r.backend.Put(ctx, worktreeKey(wt.ID), encodeJSON(wt), 0); err != nil {
		return nil, err
	}
	return &wt, nil
}

// ListWorktrees returns every registered worktree.
func (r *Room) ListWorktrees(ctx context.Context) ([]WorktreeRecord, error) {
	entries, err := r.backend.Scan(ctx, prefixWorktree)
	if err != nil {
		return nil, err
	}
	var wts []WorktreeRecord
	for _, e := range entries {
		wt, derr := decodeJSON[WorktreeRecord](e.Value)
		if derr != nil {
			continue
		}
		wts = append(wts, *wt)
	}
	return wts, nil
}

// PutCredential stores (or replaces) the credential record for an agent
// name, used by internal/auth to look up role and token hash (spec.md §4.9).
func (r *Room) PutCredential(ctx context.Context, cred AuthCredential) error {
	return r.backend.Put(ctx, authKey(cred.AgentName), encodeJSON(cred), 0)
}

// GetCredential fetches the credential record for agent name.
func (r *Room) GetCredential(ctx context.Context, name string) (*AuthCredential, error) {
	data, err := r.backend.Get(ctx, authKey(name))
	if err != nil {
		if err == storage.ErrNotFound {
			return nil, merrors.ErrUnauthorized
		}
		return nil, err
	}
	return decodeJSON[AuthCredential](data)
}

// AppendCostEntry records an opaque cost-ledger line from the external
// token-cost collaborator (SPEC_FULL.md §3). The key embeds the agent
// and a random suffix since entries are never looked up individually,
// only scanned and summed by the caller.
func (r *Room) AppendCostEntry(ctx context.Context, entry CostLedgerEntry) error {
	key := fmt.Sprintf("%s%s/%s", prefixCost, entry.Agent, uuid.NewString())
	return r.backend.Put(ctx, key, encodeJSON(entry), 0)
}

// ListCostEntries returns every cost-ledger entry, optionally filtered
// to a single agent.
func (r *Room) ListCostEntries(ctx context.Context, agent string) ([]CostLedgerEntry, error) {
	prefix := prefixCost
	if agent != "" {
		prefix = prefixCost + agent + "/"
	}
	entries, err := r.backend.Scan(ctx, prefix)
	if err != nil {
		return nil, err
	}
	var out []CostLedgerEntry
	for _, e := range entries {
		c, derr := decodeJSON[CostLedgerEntry](e.Value)
		if derr != nil {
			continue
		}
		out = append(out, *c)
	}
	return out, nil
}
