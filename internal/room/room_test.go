package room

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masc-dev/masc/internal/merrors"
	"github.com/masc-dev/masc/internal/storage/fsstore"
)

// recordingPublisher captures every emitted event for assertions,
// mirroring the fake-collaborator pattern used across the teacher's
// pkg/services tests.
type recordingPublisher struct {
	events []Event
}

func (p *recordingPublisher) Publish(_ context.Context, evt Event) {
	p.events = append(p.events, evt)
}

func newTestRoom(t *testing.T) (*Room, *recordingPublisher) {
	t.Helper()
	backend, err := fsstore.New(t.TempDir())
	require.NoError(t, err)
	pub := &recordingPublisher{}
	return New("test-room", backend, pub), pub
}

func TestRoom_JoinIsIdempotent(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRoom(t)

	a1, err := r.Join(ctx, "claude", []string{"go"}, RoleWorker)
	require.NoError(t, err)
	assert.Equal(t, AgentJoined, a1.Status)

	a2, err := r.Join(ctx, "claude", []string{"go", "python"}, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"go", "python"}, a2.Capabilities)
	assert.Equal(t, RoleWorker, a2.Role)
}

func TestRoom_TaskLifecycle(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRoom(t)

	_, err := r.Join(ctx, "claude", nil, RoleWorker)
	require.NoError(t, err)

	task, err := r.AddTask(ctx, "implement auth", 5, "plan", "deliverable")
	require.NoError(t, err)
	assert.Equal(t, TaskBacklog, task.Status.Kind)

	claimed, err := r.Claim(ctx, task.ID, "claude")
	require.NoError(t, err)
	assert.Equal(t, TaskClaimed, claimed.Status.Kind)

	_, err = r.Claim(ctx, task.ID, "other")
	var alreadyClaimed *merrors.TaskAlreadyClaimed
	require.ErrorAs(t, err, &alreadyClaimed)
	assert.Equal(t, "claude", alreadyClaimed.By)

	started, err := r.Start(ctx, task.ID, "claude")
	require.NoError(t, err)
	assert.Equal(t, TaskInProgress, started.Status.Kind)

	done, err := r.Done(ctx, task.ID, "claude", "shipped")
	require.NoError(t, err)
	assert.Equal(t, TaskDone, done.Status.Kind)

	_, err = r.Done(ctx, task.ID, "claude", "again")
	var invalid *merrors.InvalidTransition
	require.ErrorAs(t, err, &invalid)

	agent, err := r.GetAgent(ctx, "claude")
	require.NoError(t, err)
	assert.Equal(t, AgentIdle, agent.Status)
	assert.Empty(t, agent.CurrentTask)
}

func TestRoom_ClaimNextPicksMostUrgentOldestFirst(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRoom(t)

	low, err := r.AddTask(ctx, "low", 10, "", "")
	require.NoError(t, err)
	_ = low
	urgent, err := r.AddTask(ctx, "urgent", 1, "", "")
	require.NoError(t, err)

	claimed, err := r.ClaimNext(ctx, "claude")
	require.NoError(t, err)
	assert.Equal(t, urgent.ID, claimed.ID)
}

func TestRoom_CancelIsTerminalFromAnyNonTerminalState(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRoom(t)

	task, err := r.AddTask(ctx, "t", 0, "", "")
	require.NoError(t, err)

	cancelled, err := r.Cancel(ctx, task.ID, "no longer needed")
	require.NoError(t, err)
	assert.Equal(t, TaskCancelled, cancelled.Status.Kind)
	assert.Equal(t, "no longer needed", cancelled.Status.Reason)

	_, err = r.Claim(ctx, task.ID, "claude")
	var invalid *merrors.InvalidTransition
	require.ErrorAs(t, err, &invalid)
}

func TestRoom_LockContentionAndRelease(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRoom(t)

	lock, err := r.AcquireLock(ctx, "src/main.go", "claude", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "src/main.go", lock.Path)

	_, err = r.AcquireLock(ctx, "src/main.go", "other", time.Minute)
	var locked *merrors.FileLocked
	require.ErrorAs(t, err, &locked)
	assert.Equal(t, "claude", locked.By)

	err = r.ReleaseLock(ctx, "src/main.go", "other")
	assert.ErrorIs(t, err, merrors.ErrNotOwner)

	err = r.ReleaseLock(ctx, "src/main.go", "claude")
	require.NoError(t, err)

	lock2, err := r.AcquireLock(ctx, "src/main.go", "other", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "other", lock2.Owner)
}

func TestRoom_LockRejectsEscapingPaths(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRoom(t)

	for _, bad := range []string{"/etc/passwd", "../outside", "a/../../b"} {
		_, err := r.AcquireLock(ctx, bad, "claude", time.Minute)
		assert.True(t, merrors.IsValidation(err), "path %q should be rejected", bad)
	}
}

func TestRoom_BroadcastExtractsMentionsAndEscapesHTML(t *testing.T) {
	ctx := context.Background()
	r, pub := newTestRoom(t)

	msg, err := r.Broadcast(ctx, "claude", "hey @alice <script> check this @bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, msg.Mentions)
	assert.Contains(t, msg.Content, "<script>")
	assert.Contains(t, msg.RenderedContent, "&lt;script&gt;")

	var sawMention bool
	for _, e := range pub.events {
		if e.Kind == EventMention {
			sawMention = true
			assert.ElementsMatch(t, []string{"alice", "bob"}, e.Targets)
		}
	}
	assert.True(t, sawMention)
}

func TestRoom_BroadcastSeqIsMonotone(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRoom(t)

	m1, err := r.Broadcast(ctx, "a", "one")
	require.NoError(t, err)
	m2, err := r.Broadcast(ctx, "a", "two")
	require.NoError(t, err)
	assert.Equal(t, m1.Seq+1, m2.Seq)

	recent, err := r.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, m1.Seq, recent[0].Seq)
}

func TestRoom_CheckpointLifecycle(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRoom(t)

	cp, err := r.Save(ctx, "task-1", 1, "wrote tests", `{"ok":true}`, "claude")
	require.NoError(t, err)
	assert.Equal(t, CheckpointPending, cp.Status)

	interrupted, err := r.Interrupt(ctx, cp.ID, "needs human review")
	require.NoError(t, err)
	assert.Equal(t, CheckpointInterrupted, interrupted.Status)

	approved, err := r.ApproveEdited(ctx, "task-1", `{"ok":true,"reviewed":true}`)
	require.NoError(t, err)
	assert.Equal(t, CheckpointCompleted, approved.Status)
	assert.True(t, approved.StateEdited)

	branch, err := r.Branch(ctx, cp.ID, "alt-approach", "claude")
	require.NoError(t, err)
	assert.Equal(t, CheckpointBranched, branch.Status)
	assert.Equal(t, cp.ID, branch.ParentID)

	reverted, err := r.Revert(ctx, "task-1", 0)
	require.NoError(t, err)
	require.NotEmpty(t, reverted)
	for _, rc := range reverted {
		assert.Equal(t, CheckpointReverted, rc.Status)
		assert.False(t, rc.RevertedAt.IsZero())
	}
}

func TestRoom_CheckpointRejectIsTerminal(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRoom(t)

	cp, err := r.Save(ctx, "task-1", 1, "action", "state", "claude")
	require.NoError(t, err)
	_, err = r.Interrupt(ctx, cp.ID, "needs review")
	require.NoError(t, err)

	rejected, err := r.Reject(ctx, "task-1", "wrong approach")
	require.NoError(t, err)
	assert.Equal(t, CheckpointRejected, rejected.Status)

	_, err = r.Approve(ctx, "task-1")
	var invalid *merrors.InvalidTransition
	require.ErrorAs(t, err, &invalid)
}

func TestRoom_ApproveWithNoInterruptedCheckpointIsInvalidTransition(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRoom(t)

	_, err := r.Save(ctx, "task-1", 1, "action", "state", "claude")
	require.NoError(t, err)

	_, err = r.Approve(ctx, "task-1")
	var invalid *merrors.InvalidTransition
	require.ErrorAs(t, err, &invalid)
}

func TestRoom_PendingAutoRejectsStaleInterruptedCheckpoints(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRoom(t)

	now := time.Now()
	r.clock = func() time.Time { return now }

	cp, err := r.Save(ctx, "task-1", 1, "action", "state", "claude")
	require.NoError(t, err)
	_, err = r.Interrupt(ctx, cp.ID, "needs review")
	require.NoError(t, err)

	now = now.Add(20 * time.Minute)
	pending, err := r.Pending(ctx, 15)
	require.NoError(t, err)
	assert.Empty(t, pending)

	stale, err := r.GetCheckpoint(ctx, cp.ID)
	require.NoError(t, err)
	assert.Equal(t, CheckpointRejected, stale.Status)
	assert.Equal(t, "timeout", stale.Reason)
}

func TestRoom_GCAgentsAgesIntoZombieThenLeft(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRoom(t)
	r.ZombieThreshold = time.Minute
	r.LeftThreshold = 2 * time.Minute

	now := time.Now()
	r.clock = func() time.Time { return now }

	_, err := r.Join(ctx, "claude", nil, RoleWorker)
	require.NoError(t, err)

	r.clock = func() time.Time { return now.Add(90 * time.Second) }
	require.NoError(t, r.gcAgents(ctx))
	agent, err := r.GetAgent(ctx, "claude")
	require.NoError(t, err)
	assert.Equal(t, AgentZombie, agent.Status)

	r.clock = func() time.Time { return now.Add(3 * time.Minute) }
	require.NoError(t, r.gcAgents(ctx))
	agent, err = r.GetAgent(ctx, "claude")
	require.NoError(t, err)
	assert.Equal(t, AgentLeft, agent.Status)
}

func TestRoom_GCAgentsReleasesLocksAndReassignsTasksOnLeft(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRoom(t)
	r.ZombieThreshold = time.Minute
	r.LeftThreshold = 2 * time.Minute

	now := time.Now()
	r.clock = func() time.Time { return now }

	_, err := r.Join(ctx, "claude", nil, RoleWorker)
	require.NoError(t, err)

	_, err = r.AcquireLock(ctx, "src/main.go", "claude", time.Hour)
	require.NoError(t, err)

	task, err := r.AddTask(ctx, "do it", 1, "", "")
	require.NoError(t, err)
	_, err = r.Claim(ctx, task.ID, "claude")
	require.NoError(t, err)

	r.clock = func() time.Time { return now.Add(3 * time.Minute) }
	require.NoError(t, r.gcAgents(ctx))

	agent, err := r.GetAgent(ctx, "claude")
	require.NoError(t, err)
	assert.Equal(t, AgentLeft, agent.Status)

	locks, err := r.backend.ListLocks(ctx)
	require.NoError(t, err)
	assert.Empty(t, locks)

	reassigned, err := r.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, TaskBacklog, reassigned.Status.Kind)
	assert.Empty(t, reassigned.Status.Assignee)
}

func TestRoom_VoteLifecycle(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRoom(t)

	v, err := r.OpenVote(ctx, "adopt redis backend?")
	require.NoError(t, err)

	_, err = r.Ballot(ctx, v.ID, "claude", "yes")
	require.NoError(t, err)
	_, err = r.Ballot(ctx, v.ID, "alice", "no")
	require.NoError(t, err)

	closed, err := r.CloseVote(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, "yes", closed.Ballots["claude"])
	assert.Equal(t, "no", closed.Ballots["alice"])

	_, err = r.Ballot(ctx, v.ID, "bob", "yes")
	var invalid *merrors.InvalidTransition
	require.ErrorAs(t, err, &invalid)
}
