// Package room implements the transactional domain state machine over
// agents, tasks, file locks, broadcast messages and checkpoints
// (spec.md §3, §4.2). Every mutating operation reads the current state,
// computes a new state plus emitted events, and commits via
// storage.CompareAndPut on a per-entity version key, retrying from a
// fresh read on conflict up to a small bound before failing (spec.md
// §4.2), mirroring the validate-then-transact shape of
// pkg/services/session_service.go in the teacher.
package room

import "time"

// AgentStatus is the lifecycle state of an Agent (spec.md §3).
type AgentStatus string

const (
	AgentJoined  AgentStatus = "joined"
	AgentWorking AgentStatus = "working"
	AgentIdle    AgentStatus = "idle"
	AgentZombie  AgentStatus = "zombie"
	AgentLeft    AgentStatus = "left"
)

// AgentRole grants a capability set; reader ⊂ worker ⊂ admin (spec.md §4.9).
type AgentRole string

const (
	RoleReader AgentRole = "reader"
	RoleWorker AgentRole = "worker"
	RoleAdmin  AgentRole = "admin"
)

// Agent is a unique human name with capabilities, status, current task
// and role (spec.md §3).
type Agent struct {
	Name         string      `json:"name"`
	Capabilities []string    `json:"capabilities,omitempty"`
	Status       AgentStatus `json:"status"`
	CurrentTask  string      `json:"current_task,omitempty"`
	LastSeen     time.Time   `json:"last_seen"`
	Role         AgentRole   `json:"role"`
	JoinedAt     time.Time   `json:"joined_at"`
}

// TaskStatusKind tags the Task status variant (spec.md §3).
type TaskStatusKind string

const (
	TaskBacklog     TaskStatusKind = "backlog"
	TaskClaimed     TaskStatusKind = "claimed"
	TaskInProgress  TaskStatusKind = "in_progress"
	TaskDone        TaskStatusKind = "done"
	TaskCancelled   TaskStatusKind = "cancelled"
)

// TaskStatus is the tagged-variant status of a Task. Only the fields
// relevant to Kind are meaningful, mirroring the teacher's
// ent/schema/alertsession.go status-plus-nullable-detail-columns idiom
// flattened into a single Go struct (no code-generated ORM available,
// see DESIGN.md).
type TaskStatus struct {
	Kind       TaskStatusKind `json:"kind"`
	Assignee   string         `json:"assignee,omitempty"`
	ClaimedAt  time.Time      `json:"claimed_at,omitempty"`
	StartedAt  time.Time      `json:"started_at,omitempty"`
	FinishedAt time.Time      `json:"finished_at,omitempty"`
	Notes      string         `json:"notes,omitempty"`
	Reason     string         `json:"reason,omitempty"`
}

// Task is a unit of work in the shared backlog (spec.md §3).
type Task struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Priority   int        `json:"priority"`
	Status     TaskStatus `json:"status"`
	Plan       string     `json:"plan,omitempty"`
	Notes      []string   `json:"notes,omitempty"`
	Deliverable string    `json:"deliverable,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Terminal reports whether the task can no longer be claimed or
// transitioned (spec.md §4.2 "add_task; cancel is terminal").
func (s TaskStatus) Terminal() bool {
	return s.Kind == TaskDone || s.Kind == TaskCancelled
}

// FileLock is an exclusive hold on a normalized file path (spec.md §3).
type FileLock struct {
	Path       string    `json:"path"`
	Owner      string    `json:"owner"`
	AcquiredAt time.Time `json:"acquired_at"`
	TTL        time.Duration `json:"ttl"`
}

// Message is an append-only broadcast entry with a monotone sequence
// number (spec.md §3). Content is the raw UTF-8 the sender wrote;
// RenderedContent is the HTML-escaped form for any downstream HTML
// viewer, computed once at broadcast time rather than by every reader
// (spec.md §4.2 "Content is HTML-escaped for any downstream HTML
// rendering; storage is raw UTF-8").
type Message struct {
	Seq             uint64    `json:"seq"`
	Sender          string    `json:"sender"`
	Content         string    `json:"content"`
	RenderedContent string    `json:"rendered_content"`
	Mentions        []string  `json:"mentions,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// CheckpointStatus tags the Checkpoint state-machine variant (spec.md §4.7).
type CheckpointStatus string

const (
	CheckpointPending     CheckpointStatus = "pending"
	CheckpointInProgress  CheckpointStatus = "in_progress"
	CheckpointCompleted   CheckpointStatus = "completed"
	CheckpointInterrupted CheckpointStatus = "interrupted"
	CheckpointRejected    CheckpointStatus = "rejected"
	CheckpointBranched    CheckpointStatus = "branched"
	CheckpointReverted    CheckpointStatus = "reverted"
)

// Checkpoint is a durable record of an agent's progress on a task at a
// given step (spec.md §3, §4.7).
type Checkpoint struct {
	ID          string           `json:"id"`
	TaskID      string           `json:"task_id"`
	Step        int              `json:"step"`
	Action      string           `json:"action"`
	State       string           `json:"state,omitempty"` // opaque serialized JSON
	Author      string           `json:"author"`
	Status      CheckpointStatus `json:"status"`
	Message     string           `json:"message,omitempty"`     // interrupted{message}
	Reason      string           `json:"reason,omitempty"`      // rejected{reason}
	StateEdited bool             `json:"state_edited,omitempty"`
	ParentID    string           `json:"parent_id,omitempty"`
	BranchName  string           `json:"branch_name,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	RevertedAt  time.Time        `json:"reverted_at,omitempty"`
}

// Vote is an auxiliary owned record (spec.md §3).
type Vote struct {
	ID        string            `json:"id"`
	Topic     string            `json:"topic"`
	Ballots   map[string]string `json:"ballots,omitempty"` // agent -> choice
	CreatedAt time.Time         `json:"created_at"`
	ClosedAt  time.Time         `json:"closed_at,omitempty"`
}

// PortalSubscription is an auxiliary owned record (spec.md §3).
type PortalSubscription struct {
	ID        string    `json:"id"`
	Agent     string    `json:"agent"`
	Topic     string    `json:"topic"`
	CreatedAt time.Time `json:"created_at"`
}

// WorktreeRecord stores only metadata about an agent-managed worktree;
// the filesystem isolation itself is external (spec.md Glossary).
type WorktreeRecord struct {
	ID        string    `json:"id"`
	Agent     string    `json:"agent"`
	Path      string    `json:"path"`
	Branch    string    `json:"branch,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AuthCredential is an auxiliary owned record (spec.md §3, §4.9).
type AuthCredential struct {
	AgentName  string    `json:"agent_name"`
	TokenHash  string    `json:"token_hash"`
	Role       AgentRole `json:"role"`
	IssuedAt   time.Time `json:"issued_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// CostLedgerEntry is the opaque record appended by the external
// token-cost collaborator (SPEC_FULL.md §3 domain expansion); the core
// never interprets the numeric fields.
type CostLedgerEntry struct {
	Agent     string    `json:"agent"`
	Model     string    `json:"model"`
	TokensIn  int64     `json:"tokens_in"`
	TokensOut int64     `json:"tokens_out"`
	Cost      float64   `json:"cost"`
	Timestamp time.Time `json:"timestamp"`
}
