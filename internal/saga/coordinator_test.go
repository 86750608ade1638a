package saga

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowplane/internal/dag"
	"flowplane/internal/executor"
	"flowplane/internal/gate"
	"flowplane/internal/ledger"
	"flowplane/internal/scheduler"
)

// scriptedExec returns canned outcomes per node id. failures[n] holds how many
// times node n fails before succeeding; -1 means it fails forever.
type scriptedExec struct {
	mu       sync.Mutex
	failures map[string]int
	calls    map[string]int
	terminal map[string]bool
	executed []string
}

func newScriptedExec() *scriptedExec {
	return &scriptedExec{
		failures: make(map[string]int),
		calls:    make(map[string]int),
		terminal: make(map[string]bool),
	}
}

func (e *scriptedExec) Execute(_ context.Context, task executor.Task) (executor.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls[task.NodeID]++
	e.executed = append(e.executed, task.NodeID)
	if n := e.failures[task.NodeID]; n == -1 || e.calls[task.NodeID] <= n {
		return executor.Result{}, &executor.Error{
			Reason:    "scripted failure",
			Transient: !e.terminal[task.NodeID],
		}
	}
	return executor.Result{Output: json.RawMessage(`{"ok":true}`), Cost: 1}, nil
}

func (e *scriptedExec) callCount(nodeID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[nodeID]
}

func (e *scriptedExec) history() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.executed...)
}

type harness struct {
	coord  *Coordinator
	sched  *scheduler.Scheduler
	led    *ledger.Ledger
	exec   *scriptedExec
	tenant uuid.UUID
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	signer, err := ledger.NewSigner()
	require.NoError(t, err)

	sched := scheduler.New(scheduler.Config{}, nil)
	tenant := uuid.New()
	sched.RegisterTenant(tenant, 1, 0)

	exec := newScriptedExec()
	led := ledger.New(ledger.NewMemStore(), signer)
	coord := New(Config{
		Queue:  sched,
		Ledger: led,
		Exec:   exec,
		Policy: gate.NewRulePolicy(gate.DefaultRules()),
		Budget: gate.NewTrackedBudget(),
	})
	return &harness{coord: coord, sched: sched, led: led, exec: exec, tenant: tenant}
}

// drain dispatches queued nodes until the queue stays empty. Retry timers fire
// asynchronously, so drain polls past momentary emptiness up to the deadline.
func (h *harness) drain(t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	idle := 0
	for time.Now().Before(deadline) {
		item, ok := h.sched.DequeueNext(1)
		if !ok {
			idle++
			if idle > 20 {
				return
			}
			time.Sleep(5 * time.Millisecond)
			continue
		}
		idle = 0
		require.NoError(t, h.coord.Dispatch(context.Background(), item.WorkflowID, item.NodeID))
	}
	t.Fatal("drain did not settle before deadline")
}

func fastRetry(attempts int) dag.RetryPolicy {
	return dag.RetryPolicy{MaxAttempts: attempts, Backoff: []time.Duration{time.Millisecond}}
}

// linearGraph is the canonical three-step rollout: migrate the schema, deploy
// the service, then update routing. Each forward step declares an undo node.
func linearGraph() *dag.Graph {
	return &dag.Graph{
		ID: uuid.New(),
		Nodes: []dag.Node{
			{ID: "migrate-schema", Kind: dag.KindTool, Retry: fastRetry(1), CompensationID: "rollback-schema"},
			{ID: "deploy-service", Kind: dag.KindTool, Retry: fastRetry(1), CompensationID: "remove-service"},
			{ID: "update-routing", Kind: dag.KindTool, Retry: fastRetry(1), CompensationID: "restore-routing"},
			{ID: "rollback-schema", Kind: dag.KindCompensation, Retry: fastRetry(1)},
			{ID: "remove-service", Kind: dag.KindCompensation, Retry: fastRetry(1)},
			{ID: "restore-routing", Kind: dag.KindCompensation, Retry: fastRetry(1)},
		},
		Edges: []dag.Edge{
			{From: "migrate-schema", To: "deploy-service"},
			{From: "deploy-service", To: "update-routing"},
		},
	}
}

func TestCoordinator_LinearHappyPath(t *testing.T) {
	h := newHarness(t)
	wfID, err := h.coord.Submit(context.Background(), linearGraph(), h.tenant)
	require.NoError(t, err)

	h.drain(t)

	snap, err := h.coord.Status(wfID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StateCommitted, snap.State)
	assert.Equal(t, []string{"migrate-schema", "deploy-service", "update-routing"}, snap.CommitOrder)
	assert.False(t, snap.PartiallyCompensated)
}

func TestCoordinator_ReplayMatchesSimulation(t *testing.T) {
	h := newHarness(t)
	g := linearGraph()
	wfID, err := h.coord.Submit(context.Background(), g, h.tenant)
	require.NoError(t, err)
	h.drain(t)

	history, err := h.led.Replay(context.Background(), wfID)
	require.NoError(t, err)

	expected, err := Simulate(g)
	require.NoError(t, err)

	divergences := ledger.Diff(expected, history.Trace())
	assert.Empty(t, divergences, "clean run must match the simulated baseline")
}

func TestCoordinator_FailureCompensatesInReverseOrder(t *testing.T) {
	h := newHarness(t)
	h.exec.failures["update-routing"] = -1

	wfID, err := h.coord.Submit(context.Background(), linearGraph(), h.tenant)
	require.NoError(t, err)
	h.drain(t)

	snap, err := h.coord.Status(wfID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StateRolledBack, snap.State)
	assert.False(t, snap.PartiallyCompensated)

	// The failed node's undo runs first, then committed work unwinds newest
	// to oldest.
	var undos []string
	for _, id := range h.exec.history() {
		switch id {
		case "restore-routing", "remove-service", "rollback-schema":
			undos = append(undos, id)
		}
	}
	assert.Equal(t, []string{"restore-routing", "remove-service", "rollback-schema"}, undos)

	for _, n := range snap.Nodes {
		switch n.NodeID {
		case "migrate-schema", "deploy-service", "update-routing":
			assert.Equal(t, ledger.StateCompensated, n.State, n.NodeID)
		}
	}
}

func TestCoordinator_MissingCompensationRecordedUncompensated(t *testing.T) {
	h := newHarness(t)
	g := &dag.Graph{
		ID: uuid.New(),
		Nodes: []dag.Node{
			{ID: "a", Kind: dag.KindTool, Retry: fastRetry(1)}, // no undo handler
			{ID: "b", Kind: dag.KindTool, Retry: fastRetry(1)},
		},
		Edges: []dag.Edge{{From: "a", To: "b"}},
	}
	h.exec.failures["b"] = -1

	wfID, err := h.coord.Submit(context.Background(), g, h.tenant)
	require.NoError(t, err)
	h.drain(t)

	snap, err := h.coord.Status(wfID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StateRolledBack, snap.State)
	assert.Contains(t, snap.Uncompensated, "a")
	// Skipped undos are visible but do not poison the rollback outcome.
	assert.False(t, snap.PartiallyCompensated)
}

func TestCoordinator_CompensationFailureMarksPartial(t *testing.T) {
	h := newHarness(t)
	h.exec.failures["update-routing"] = -1
	h.exec.failures["remove-service"] = -1
	h.exec.terminal["remove-service"] = true

	wfID, err := h.coord.Submit(context.Background(), linearGraph(), h.tenant)
	require.NoError(t, err)
	h.drain(t)

	snap, err := h.coord.Status(wfID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StateRolledBack, snap.State)
	assert.True(t, snap.PartiallyCompensated)

	// The walk continues past the failing undo.
	assert.Equal(t, 1, h.exec.callCount("rollback-schema"))

	history, err := h.led.Replay(context.Background(), wfID)
	require.NoError(t, err)
	assert.True(t, history.PartiallyCompensated)
}

func TestCoordinator_TransientFailureRetriesThenCommits(t *testing.T) {
	h := newHarness(t)
	g := &dag.Graph{
		ID:    uuid.New(),
		Nodes: []dag.Node{{ID: "flaky", Kind: dag.KindTool, Retry: fastRetry(3)}},
	}
	h.exec.failures["flaky"] = 2

	wfID, err := h.coord.Submit(context.Background(), g, h.tenant)
	require.NoError(t, err)
	h.drain(t)

	snap, err := h.coord.Status(wfID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StateCommitted, snap.State)
	assert.Equal(t, 3, h.exec.callCount("flaky"))

	// Duplicate-free replay still shows three distinct attempts.
	history, err := h.led.Replay(context.Background(), wfID)
	require.NoError(t, err)
	executing := 0
	for _, s := range history.Steps {
		if s.NodeID == "flaky" && s.To == ledger.StateExecuting {
			executing++
		}
	}
	assert.Equal(t, 3, executing)
}

func TestCoordinator_TerminalFailureSkipsRetry(t *testing.T) {
	h := newHarness(t)
	g := &dag.Graph{
		ID:    uuid.New(),
		Nodes: []dag.Node{{ID: "broken", Kind: dag.KindTool, Retry: fastRetry(3)}},
	}
	h.exec.failures["broken"] = -1
	h.exec.terminal["broken"] = true

	wfID, err := h.coord.Submit(context.Background(), g, h.tenant)
	require.NoError(t, err)
	h.drain(t)

	snap, err := h.coord.Status(wfID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StateRolledBack, snap.State)
	assert.Equal(t, 1, h.exec.callCount("broken"), "terminal errors must not burn retries")
}

func TestCoordinator_ReviewOnExhaustionSuspends(t *testing.T) {
	h := newHarness(t)
	g := &dag.Graph{
		ID: uuid.New(),
		Nodes: []dag.Node{
			{ID: "risky", Kind: dag.KindTool, Retry: fastRetry(2), ReviewOnExhaustion: true},
		},
	}
	h.exec.failures["risky"] = -1

	wfID, err := h.coord.Submit(context.Background(), g, h.tenant)
	require.NoError(t, err)
	h.drain(t)

	snap, err := h.coord.Status(wfID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StateHumanReview, snap.State)
	assert.Equal(t, "risky", snap.ReviewNode)
	assert.Equal(t, 2, h.exec.callCount("risky"))
}

func TestCoordinator_ResumeRetryGetsFreshAttemptBudget(t *testing.T) {
	h := newHarness(t)
	g := &dag.Graph{
		ID: uuid.New(),
		Nodes: []dag.Node{
			{ID: "risky", Kind: dag.KindTool, Retry: fastRetry(2), ReviewOnExhaustion: true},
		},
	}
	h.exec.failures["risky"] = 2 // fails both initial attempts, succeeds after review

	wfID, err := h.coord.Submit(context.Background(), g, h.tenant)
	require.NoError(t, err)
	h.drain(t)

	require.NoError(t, h.coord.Resume(context.Background(), wfID, "retry"))
	h.drain(t)

	snap, err := h.coord.Status(wfID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StateCommitted, snap.State)
	assert.Equal(t, 3, h.exec.callCount("risky"))
}

func TestCoordinator_ReplayTracksSecondReviewRound(t *testing.T) {
	h := newHarness(t)
	g := &dag.Graph{
		ID: uuid.New(),
		Nodes: []dag.Node{
			{ID: "risky", Kind: dag.KindTool, Retry: fastRetry(1), ReviewOnExhaustion: true},
		},
	}
	h.exec.failures["risky"] = -1

	wfID, err := h.coord.Submit(context.Background(), g, h.tenant)
	require.NoError(t, err)
	h.drain(t)

	// The operator-approved retry resets the attempt counter, fails again
	// and lands the workflow back in review.
	require.NoError(t, h.coord.Resume(context.Background(), wfID, "retry"))
	h.drain(t)

	snap, err := h.coord.Status(wfID)
	require.NoError(t, err)
	require.Equal(t, ledger.StateHumanReview, snap.State)

	history, err := h.led.Replay(context.Background(), wfID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StateHumanReview, history.WorkflowState, "replay must end where the live workflow is")
	assert.Equal(t, ledger.StateHumanReview, history.NodeStates["risky"])

	reviews := 0
	for _, s := range history.Steps {
		if s.NodeID == "risky" && s.To == ledger.StateHumanReview {
			reviews++
		}
	}
	assert.Equal(t, 2, reviews, "both review rounds must survive replay")
}

func TestCoordinator_AttemptRecordsNameExecutor(t *testing.T) {
	h := newHarness(t)
	h.coord.cfg.ExecutorName = "scripted"
	g := &dag.Graph{
		ID:    uuid.New(),
		Nodes: []dag.Node{{ID: "only", Kind: dag.KindTool, Retry: fastRetry(1)}},
	}

	wfID, err := h.coord.Submit(context.Background(), g, h.tenant)
	require.NoError(t, err)
	h.drain(t)

	snap, err := h.coord.Status(wfID)
	require.NoError(t, err)
	require.Len(t, snap.Nodes, 1)
	require.NotEmpty(t, snap.Nodes[0].Records)
	for _, rec := range snap.Nodes[0].Records {
		assert.Equal(t, "scripted", rec.Executor)
	}
}

func TestCoordinator_ResumeCompensateRollsBack(t *testing.T) {
	h := newHarness(t)
	g := &dag.Graph{
		ID: uuid.New(),
		Nodes: []dag.Node{
			{ID: "step1", Kind: dag.KindTool, Retry: fastRetry(1), CompensationID: "undo1"},
			{ID: "step2", Kind: dag.KindTool, Retry: fastRetry(1), ReviewOnExhaustion: true},
			{ID: "undo1", Kind: dag.KindCompensation, Retry: fastRetry(1)},
		},
		Edges: []dag.Edge{{From: "step1", To: "step2"}},
	}
	h.exec.failures["step2"] = -1

	wfID, err := h.coord.Submit(context.Background(), g, h.tenant)
	require.NoError(t, err)
	h.drain(t)

	require.NoError(t, h.coord.Resume(context.Background(), wfID, "compensate"))

	snap, err := h.coord.Status(wfID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StateRolledBack, snap.State)
	assert.Equal(t, 1, h.exec.callCount("undo1"))
}

func TestCoordinator_CancelQueuedWorkflow(t *testing.T) {
	h := newHarness(t)
	wfID, err := h.coord.Submit(context.Background(), linearGraph(), h.tenant)
	require.NoError(t, err)

	// Nothing dispatched yet; all queued work is dropped without penalty.
	require.NoError(t, h.coord.Cancel(context.Background(), wfID))

	snap, err := h.coord.Status(wfID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StateRolledBack, snap.State)
	assert.Equal(t, 0, h.exec.callCount("migrate-schema"))
	assert.Equal(t, 0, h.sched.Depth())
}

func TestCoordinator_CancelIdempotentOnTerminal(t *testing.T) {
	h := newHarness(t)
	wfID, err := h.coord.Submit(context.Background(), linearGraph(), h.tenant)
	require.NoError(t, err)
	h.drain(t)

	require.NoError(t, h.coord.Cancel(context.Background(), wfID))
	snap, err := h.coord.Status(wfID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StateCommitted, snap.State, "cancel after commit is a no-op")
}

func TestCoordinator_PolicyDenialFailsNode(t *testing.T) {
	h := newHarness(t)
	// Tier 3 is unconditionally denied by the stock rules.
	h.coord.cfg.AccessTier = func(dag.Node) int { return 3 }

	g := &dag.Graph{
		ID:    uuid.New(),
		Nodes: []dag.Node{{ID: "forbidden", Kind: dag.KindTool, Retry: fastRetry(3)}},
	}
	wfID, err := h.coord.Submit(context.Background(), g, h.tenant)
	require.NoError(t, err)
	h.drain(t)

	snap, err := h.coord.Status(wfID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StateRolledBack, snap.State)
	assert.Equal(t, 0, h.exec.callCount("forbidden"), "denied work must never reach the executor")

	history, err := h.led.Replay(context.Background(), wfID)
	require.NoError(t, err)
	var denied bool
	for _, s := range history.Steps {
		if s.NodeID == "forbidden" && s.Reason == ledger.ReasonPolicyDenied {
			denied = true
		}
	}
	assert.True(t, denied, "ledger must record the denial reason")
}

func TestCoordinator_BudgetExhaustionFailsNode(t *testing.T) {
	h := newHarness(t)
	budget := gate.NewTrackedBudget()
	budget.SetLimit(h.tenant, 10)
	budget.Record(h.tenant, 10)
	h.coord.cfg.Budget = budget

	g := &dag.Graph{
		ID:    uuid.New(),
		Nodes: []dag.Node{{ID: "spender", Kind: dag.KindTool, Retry: fastRetry(3)}},
	}
	wfID, err := h.coord.Submit(context.Background(), g, h.tenant)
	require.NoError(t, err)
	h.drain(t)

	snap, err := h.coord.Status(wfID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StateRolledBack, snap.State)
	assert.Equal(t, 0, h.exec.callCount("spender"))
}

func TestCoordinator_InvalidGraphRejected(t *testing.T) {
	h := newHarness(t)
	g := &dag.Graph{
		ID: uuid.New(),
		Nodes: []dag.Node{
			{ID: "a", Kind: dag.KindTool, Retry: fastRetry(1)},
			{ID: "b", Kind: dag.KindTool, Retry: fastRetry(1)},
		},
		Edges: []dag.Edge{{From: "a", To: "b"}, {From: "b", To: "a"}},
	}
	_, err := h.coord.Submit(context.Background(), g, h.tenant)
	require.Error(t, err)
	assert.True(t, dag.IsValidationError(err))
}

func TestCoordinator_StatusUnknownWorkflow(t *testing.T) {
	h := newHarness(t)
	_, err := h.coord.Status(uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCoordinator_RestoreResumesScheduledWork(t *testing.T) {
	h := newHarness(t)
	g := linearGraph()
	wfID, err := h.coord.Submit(context.Background(), g, h.tenant)
	require.NoError(t, err)
	h.drain(t)

	snap, err := h.coord.Status(wfID)
	require.NoError(t, err)

	// A fresh process restores the snapshot and can serve status for it.
	h2 := newHarness(t)
	require.NoError(t, h2.coord.Restore(context.Background(), g, snap))
	got, err := h2.coord.Status(wfID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StateCommitted, got.State)
	assert.Equal(t, snap.CommitOrder, got.CommitOrder)
}

func TestCoordinator_RestoreFailsInFlightNodes(t *testing.T) {
	h := newHarness(t)
	g := &dag.Graph{
		ID:    uuid.New(),
		Nodes: []dag.Node{{ID: "a", Kind: dag.KindTool, Retry: fastRetry(3)}},
	}
	wfID := uuid.New()
	snap := Snapshot{
		WorkflowID: wfID,
		TenantID:   h.tenant,
		State:      ledger.StateRunning,
		Nodes: []NodeSnapshot{
			{NodeID: "a", State: ledger.StateExecuting, Attempts: 1},
		},
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, h.coord.Restore(context.Background(), g, snap))
	h.drain(t)

	got, err := h.coord.Status(wfID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StateCommitted, got.State, "interrupted node retries and commits")
}

func TestSimulate_LinearTrace(t *testing.T) {
	g := linearGraph()
	steps, err := Simulate(g)
	require.NoError(t, err)

	require.Equal(t, ledger.StateRunning, steps[0].To)
	require.Equal(t, ledger.StateCommitted, steps[len(steps)-1].To)

	var commits []string
	for _, s := range steps {
		if s.NodeID != "" && s.To == ledger.StateCommitted {
			commits = append(commits, s.NodeID)
		}
	}
	assert.Equal(t, []string{"migrate-schema", "deploy-service", "update-routing"}, commits)
}

func TestSimulate_RejectsInvalidGraph(t *testing.T) {
	g := &dag.Graph{ID: uuid.New()}
	_, err := Simulate(g)
	require.Error(t, err)
}
