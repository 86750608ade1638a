package saga

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"flowplane/internal/dag"
	"flowplane/internal/executor"
	"flowplane/internal/gate"
	"flowplane/internal/ledger"
	"flowplane/internal/scheduler"
)

// ErrNotFound is returned for unknown workflow ids.
var ErrNotFound = errors.New("saga: workflow not found")

// Queue is the slice of the scheduler the coordinator needs.
// *scheduler.Scheduler satisfies it.
type Queue interface {
	Enqueue(nodeID string, workflowID, tenantID uuid.UUID, prio dag.Priority) error
	Cancel(nodeID string, workflowID uuid.UUID) bool
}

// Persister stores instance snapshots so workflows survive restarts.
type Persister interface {
	SaveSnapshot(ctx context.Context, snap Snapshot) error
}

// Config wires the coordinator's collaborators.
type Config struct {
	Queue   Queue
	Ledger  *ledger.Ledger
	Policy  gate.PolicyGate
	Budget  gate.BudgetGate
	Exec    executor.Executor
	Verify  executor.Verifier
	Persist Persister // optional
	Log     *slog.Logger
	Now     func() time.Time
	// ExecutorName labels attempt records with the adapter that ran them.
	// Defaults to the dynamic type of Exec.
	ExecutorName string
	// Rand feeds retry jitter; injectable for deterministic tests.
	Rand func() float64
	// AccessTier classifies a node for policy evaluation. Nodes at tier 0
	// skip the gate. Defaults to tierByKind.
	AccessTier func(dag.Node) int
	// EstimateCost feeds the budget admission check. Defaults to a flat 1.
	EstimateCost func(dag.Node) float64
	// EnqueueRetryDelay is how long to wait before re-admitting a node that
	// hit scheduler backpressure.
	EnqueueRetryDelay time.Duration
	// OnAttempt receives every finished execution attempt. May be nil.
	OnAttempt func(AttemptNote)
	// OnCompensation receives the outcome of every compensation handler run:
	// "success", "failure" or "skipped". May be nil.
	OnCompensation func(outcome string)
}

// AttemptNote reports one finished execution attempt.
type AttemptNote struct {
	WorkflowID uuid.UUID
	TenantID   uuid.UUID
	NodeID     string
	Record     AttemptRecord
}

// Coordinator owns all workflow instances of a process.
type Coordinator struct {
	cfg Config

	mu        sync.RWMutex
	instances map[uuid.UUID]*Instance
}

// tierByKind is the default access classification: tool and agent nodes go
// through the policy gate, structural nodes do not.
func tierByKind(n dag.Node) int {
	switch n.Kind {
	case dag.KindAgent, dag.KindTool, dag.KindCompensation:
		return 1
	default:
		return 0
	}
}

// New creates a coordinator. Queue, Ledger, Exec are required.
func New(cfg Config) *Coordinator {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.Float64
	}
	if cfg.Verify == nil {
		cfg.Verify = executor.AcceptAll
	}
	if cfg.AccessTier == nil {
		cfg.AccessTier = tierByKind
	}
	if cfg.EstimateCost == nil {
		cfg.EstimateCost = func(dag.Node) float64 { return 1 }
	}
	if cfg.EnqueueRetryDelay <= 0 {
		cfg.EnqueueRetryDelay = 250 * time.Millisecond
	}
	if cfg.ExecutorName == "" && cfg.Exec != nil {
		cfg.ExecutorName = fmt.Sprintf("%T", cfg.Exec)
	}
	return &Coordinator{
		cfg:       cfg,
		instances: make(map[uuid.UUID]*Instance),
	}
}

func (c *Coordinator) instance(id uuid.UUID) (*Instance, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	inst, ok := c.instances[id]
	if !ok {
		return nil, ErrNotFound
	}
	return inst, nil
}

// log appends a transition to the ledger. Transitions are durable only once
// the append succeeds; callers must not advance in-memory state on error.
func (c *Coordinator) log(ctx context.Context, inst *Instance, t ledger.Transition) error {
	t.WorkflowID = inst.id
	if _, err := c.cfg.Ledger.Append(ctx, inst.tenantID, t); err != nil {
		c.cfg.Log.Error("ledger append failed; workflow progress blocked",
			"workflow_id", inst.id, "node_id", t.NodeID, "to", t.To, "error", err)
		return err
	}
	return nil
}

// nodeTransition logs and applies one node state change. Caller holds inst.mu.
func (c *Coordinator) nodeTransition(ctx context.Context, inst *Instance, nodeID string, attempt int, to, reason string) error {
	ns := inst.nodes[nodeID]
	if err := c.log(ctx, inst, ledger.Transition{
		NodeID:  nodeID,
		Attempt: attempt,
		From:    ns.state,
		To:      to,
		Reason:  reason,
	}); err != nil {
		return err
	}
	ns.state = to
	inst.updatedAt = c.cfg.Now().UTC()
	return nil
}

// workflowTransition logs and applies one workflow state change. Caller holds
// inst.mu.
func (c *Coordinator) workflowTransition(ctx context.Context, inst *Instance, to, reason string) error {
	if err := c.log(ctx, inst, ledger.Transition{From: inst.state, To: to, Reason: reason}); err != nil {
		return err
	}
	inst.state = to
	inst.updatedAt = c.cfg.Now().UTC()
	return nil
}

func (c *Coordinator) persist(ctx context.Context, inst *Instance) {
	if c.cfg.Persist == nil {
		return
	}
	if err := c.cfg.Persist.SaveSnapshot(ctx, inst.snapshotLocked()); err != nil {
		c.cfg.Log.Error("persist snapshot failed", "workflow_id", inst.id, "error", err)
	}
}

// Submit validates the graph, creates an instance and enqueues its entry
// nodes. A graph failing validation never creates an instance.
func (c *Coordinator) Submit(ctx context.Context, g *dag.Graph, tenantID uuid.UUID) (uuid.UUID, error) {
	if err := dag.Validate(g); err != nil {
		return uuid.Nil, err
	}

	inst := newInstance(uuid.New(), tenantID, g, c.cfg.Now().UTC())

	inst.mu.Lock()
	defer inst.mu.Unlock()

	if err := c.workflowTransition(ctx, inst, ledger.StateRunning, ""); err != nil {
		return uuid.Nil, err
	}

	c.mu.Lock()
	c.instances[inst.id] = inst
	c.mu.Unlock()

	if err := c.scheduleReadyLocked(ctx, inst); err != nil {
		return inst.id, err
	}
	c.persist(ctx, inst)
	return inst.id, nil
}

// scheduleReadyLocked enqueues every newly ready PENDING node. Caller holds
// inst.mu.
func (c *Coordinator) scheduleReadyLocked(ctx context.Context, inst *Instance) error {
	if inst.cancelled || inst.state != ledger.StateRunning {
		return nil
	}
	committed := inst.committedSet()
	for _, nodeID := range inst.graph.Ready(committed) {
		ns := inst.nodes[nodeID]
		if ns.state != ledger.StatePending {
			continue
		}
		node := inst.graph.Node(nodeID)
		if err := c.enqueueLocked(ctx, inst, node, ns.attempts+1); err != nil {
			return err
		}
	}
	return nil
}

// enqueueLocked admits one node to the scheduler and records the transition.
// Backpressure defers the node rather than dropping it. Caller holds inst.mu.
func (c *Coordinator) enqueueLocked(ctx context.Context, inst *Instance, node *dag.Node, attempt int) error {
	err := c.cfg.Queue.Enqueue(node.ID, inst.id, inst.tenantID, node.Priority)
	if errors.Is(err, scheduler.ErrCapacityExceeded) {
		c.cfg.Log.Warn("scheduler backpressure, deferring node",
			"workflow_id", inst.id, "node_id", node.ID)
		c.deferEnqueue(inst.id, node.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("saga: enqueue %s: %w", node.ID, err)
	}

	ns := inst.nodes[node.ID]
	if ns.state == ledger.StatePending {
		if err := c.nodeTransition(ctx, inst, node.ID, attempt, ledger.StateScheduled, ""); err != nil {
			c.cfg.Queue.Cancel(node.ID, inst.id)
			return err
		}
	}
	return nil
}

// deferEnqueue retries admission after the backpressure delay.
func (c *Coordinator) deferEnqueue(workflowID uuid.UUID, nodeID string) {
	time.AfterFunc(c.cfg.EnqueueRetryDelay, func() {
		inst, err := c.instance(workflowID)
		if err != nil {
			return
		}
		inst.mu.Lock()
		defer inst.mu.Unlock()
		ns, ok := inst.nodes[nodeID]
		if !ok || ns.state != ledger.StatePending || inst.cancelled {
			return
		}
		node := inst.graph.Node(nodeID)
		if err := c.enqueueLocked(context.Background(), inst, node, ns.attempts+1); err != nil {
			c.cfg.Log.Error("deferred enqueue failed", "workflow_id", workflowID, "node_id", nodeID, "error", err)
		}
	})
}

// Status returns the current snapshot of a workflow.
func (c *Coordinator) Status(workflowID uuid.UUID) (Snapshot, error) {
	inst, err := c.instance(workflowID)
	if err != nil {
		return Snapshot{}, err
	}
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.snapshotLocked(), nil
}

// Dispatch runs one scheduled node attempt end to end: gates, executor,
// verification, commit. It is called by a dispatcher worker holding a free
// execution slot; the scheduler guarantees a node is handed to exactly one
// worker.
func (c *Coordinator) Dispatch(ctx context.Context, workflowID uuid.UUID, nodeID string) error {
	inst, err := c.instance(workflowID)
	if err != nil {
		return err
	}

	inst.mu.Lock()
	ns, ok := inst.nodes[nodeID]
	if !ok {
		inst.mu.Unlock()
		return fmt.Errorf("saga: unknown node %s", nodeID)
	}
	if ns.state != ledger.StateScheduled && ns.state != ledger.StateRetrying {
		// Cancelled or already handled; the queue item is stale.
		inst.mu.Unlock()
		return nil
	}
	node := inst.graph.Node(nodeID)
	attempt := ns.attempts + 1

	if err := c.nodeTransition(ctx, inst, nodeID, attempt, ledger.StateExecuting, ""); err != nil {
		inst.mu.Unlock()
		return err
	}
	ns.attempts = attempt
	ns.records = append(ns.records, AttemptRecord{
		Attempt:   attempt,
		StartedAt: c.cfg.Now().UTC(),
		Priority:  node.Priority,
		Executor:  c.cfg.ExecutorName,
	})
	rec := &ns.records[len(ns.records)-1]
	// Runs after the instance lock is released; the dispatch goroutine owns
	// this record until then.
	defer func() {
		if rec.Outcome != "" && c.cfg.OnAttempt != nil {
			c.cfg.OnAttempt(AttemptNote{
				WorkflowID: inst.id,
				TenantID:   inst.tenantID,
				NodeID:     nodeID,
				Record:     *rec,
			})
		}
	}()

	// Gate checks happen before any work is dispatched.
	degrade, gateErr := c.checkGatesLocked(ctx, inst, node)
	if gateErr != "" {
		rec.EndedAt = c.cfg.Now().UTC()
		rec.Outcome = "failure"
		err := c.failLocked(ctx, inst, node, attempt, gateErr, false)
		inst.mu.Unlock()
		return err
	}

	timeout := node.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	inst.cancels[nodeID] = cancel
	inst.mu.Unlock()

	// The executor call runs without the instance lock; the node is owned by
	// this goroutine until the result is applied.
	result, execErr := c.cfg.Exec.Execute(execCtx, executor.Task{
		WorkflowID: inst.id,
		TenantID:   inst.tenantID,
		NodeID:     nodeID,
		Kind:       node.Kind,
		Attempt:    attempt,
		Params:     node.Params,
		Degrade:    degrade,
		Deadline:   c.cfg.Now().Add(timeout),
	})

	inst.mu.Lock()
	defer inst.mu.Unlock()
	delete(inst.cancels, nodeID)
	cancel()
	rec.EndedAt = c.cfg.Now().UTC()

	if reason, killed := inst.killReason[nodeID]; killed {
		delete(inst.killReason, nodeID)
		rec.Outcome = "failure"
		return c.failLocked(ctx, inst, node, attempt, reason, false)
	}
	if inst.cancelled {
		// Result of a cancelled workflow is discarded.
		rec.Outcome = "failure"
		return c.nodeTransition(ctx, inst, nodeID, attempt, ledger.StateCancelled, ledger.ReasonCancelled)
	}

	if execErr != nil {
		if errors.Is(execErr, context.DeadlineExceeded) {
			rec.Outcome = "timeout"
			return c.failLocked(ctx, inst, node, attempt, ledger.ReasonTimeout, true)
		}
		rec.Outcome = "failure"
		return c.failLocked(ctx, inst, node, attempt, ledger.ReasonExecutorError, executor.Transient(execErr))
	}

	if err := c.nodeTransition(ctx, inst, nodeID, attempt, ledger.StateVerifying, ""); err != nil {
		return err
	}
	if err := c.cfg.Verify.Verify(ctx, executor.Task{
		WorkflowID: inst.id, TenantID: inst.tenantID, NodeID: nodeID,
		Kind: node.Kind, Attempt: attempt, Params: node.Params,
	}, result); err != nil {
		rec.Outcome = "failure"
		return c.failLocked(ctx, inst, node, attempt, ledger.ReasonVerificationFailed, true)
	}

	if err := c.nodeTransition(ctx, inst, nodeID, attempt, ledger.StateCommitted, ""); err != nil {
		return err
	}
	rec.Outcome = "success"
	inst.commitOrder = append(inst.commitOrder, nodeID)
	if result.Cost > 0 {
		if tracked, ok := c.cfg.Budget.(*gate.TrackedBudget); ok {
			tracked.Record(inst.tenantID, result.Cost)
		}
	}

	if inst.done() {
		if err := c.workflowTransition(ctx, inst, ledger.StateCommitted, ""); err != nil {
			return err
		}
		c.persist(ctx, inst)
		return nil
	}

	if err := c.scheduleReadyLocked(ctx, inst); err != nil {
		return err
	}
	c.persist(ctx, inst)
	return nil
}

// checkGatesLocked evaluates policy and budget. It returns a failure reason
// ("" when admitted) and whether execution should degrade. Caller holds
// inst.mu.
func (c *Coordinator) checkGatesLocked(ctx context.Context, inst *Instance, node *dag.Node) (degrade bool, reason string) {
	tier := c.cfg.AccessTier(*node)
	if c.cfg.Policy != nil && tier > 0 {
		remaining := 1.0
		if c.cfg.Budget != nil {
			remaining = c.cfg.Budget.Remaining(inst.tenantID)
		}
		decision, err := c.cfg.Policy.Evaluate(ctx, gate.Request{
			TenantID:        inst.tenantID,
			Subject:         node.ID,
			Action:          "execute",
			Resource:        string(node.Kind),
			AccessTier:      tier,
			BudgetRemaining: remaining,
		})
		if err != nil || !decision.Allow {
			return false, ledger.ReasonPolicyDenied
		}
		if decision.Constraints["degrade"] == "true" {
			degrade = true
		}
	}

	if c.cfg.Budget != nil {
		adm, err := c.cfg.Budget.Check(ctx, inst.tenantID, c.cfg.EstimateCost(*node))
		if err != nil || !adm.Admit {
			return false, ledger.ReasonBudgetExceeded
		}
		if adm.Degrade {
			degrade = true
		}
	}
	return degrade, ""
}

// failLocked applies the failure branch for one node: retry while the policy
// allows, otherwise escalate. Caller holds inst.mu.
func (c *Coordinator) failLocked(ctx context.Context, inst *Instance, node *dag.Node, attempt int, reason string, retryable bool) error {
	if err := c.nodeTransition(ctx, inst, node.ID, attempt, ledger.StateFailed, reason); err != nil {
		return err
	}

	if retryable && attempt < node.Retry.MaxAttempts {
		if err := c.nodeTransition(ctx, inst, node.ID, attempt, ledger.StateRetrying, reason); err != nil {
			return err
		}
		c.scheduleRetry(inst.id, node.ID, node.Retry, attempt)
		c.persist(ctx, inst)
		return nil
	}

	if err := c.nodeTransition(ctx, inst, node.ID, attempt, ledger.StateEscalated, ledger.ReasonRetriesExhausted); err != nil {
		return err
	}
	inst.failedNode = node.ID

	if node.ReviewOnExhaustion {
		if err := c.nodeTransition(ctx, inst, node.ID, attempt, ledger.StateHumanReview, ""); err != nil {
			return err
		}
		inst.reviewNode = node.ID
		if err := c.workflowTransition(ctx, inst, ledger.StateHumanReview, reason); err != nil {
			return err
		}
		c.persist(ctx, inst)
		return nil
	}

	return c.compensateLocked(ctx, inst, "")
}

// scheduleRetry re-admits a node after its backoff delay plus bounded jitter.
// The attempt's scheduler priority is identical to the first dispatch.
func (c *Coordinator) scheduleRetry(workflowID uuid.UUID, nodeID string, policy dag.RetryPolicy, failedAttempt int) {
	delay := policy.Delay(failedAttempt)
	if policy.JitterFraction > 0 {
		delay += time.Duration(c.cfg.Rand() * policy.JitterFraction * float64(delay))
	}
	time.AfterFunc(delay, func() {
		inst, err := c.instance(workflowID)
		if err != nil {
			return
		}
		inst.mu.Lock()
		defer inst.mu.Unlock()
		ns := inst.nodes[nodeID]
		if ns.state != ledger.StateRetrying || inst.cancelled {
			return
		}
		node := inst.graph.Node(nodeID)
		if err := c.cfg.Queue.Enqueue(nodeID, workflowID, inst.tenantID, node.Priority); err != nil {
			if errors.Is(err, scheduler.ErrCapacityExceeded) {
				c.scheduleRetry(workflowID, nodeID, dag.RetryPolicy{
					Backoff: []time.Duration{c.cfg.EnqueueRetryDelay},
				}, 1)
				return
			}
			c.cfg.Log.Error("retry enqueue failed", "workflow_id", workflowID, "node_id", nodeID, "error", err)
		}
	})
}

// Cancel cooperatively stops a workflow: queued nodes are removed without
// penalty, executing nodes are asked to stop (their eventual results are
// discarded), and committed nodes are compensated.
func (c *Coordinator) Cancel(ctx context.Context, workflowID uuid.UUID) error {
	inst, err := c.instance(workflowID)
	if err != nil {
		return err
	}

	inst.mu.Lock()
	defer inst.mu.Unlock()

	switch inst.state {
	case ledger.StateCommitted, ledger.StateRolledBack:
		return nil // already terminal
	}
	inst.cancelled = true

	for _, n := range inst.graph.Nodes {
		ns := inst.nodes[n.ID]
		switch ns.state {
		case ledger.StatePending, ledger.StateScheduled, ledger.StateRetrying:
			c.cfg.Queue.Cancel(n.ID, inst.id)
			if err := c.nodeTransition(ctx, inst, n.ID, ns.attempts, ledger.StateCancelled, ledger.ReasonCancelled); err != nil {
				return err
			}
		case ledger.StateExecuting:
			// Best effort: the dispatch goroutine observes the cancel and
			// records the node as cancelled.
			if cancel, ok := inst.cancels[n.ID]; ok {
				cancel()
			}
		}
	}

	return c.compensateLocked(ctx, inst, ledger.ReasonCancelled)
}

// Resume re-enters a workflow. For a workflow in human review, decision is
// "retry" (operator-approved retry with a fresh backoff clock) or
// "compensate". For a suspended workflow, Resume re-admits ready nodes from
// the last committed checkpoint.
func (c *Coordinator) Resume(ctx context.Context, workflowID uuid.UUID, decision string) error {
	inst, err := c.instance(workflowID)
	if err != nil {
		return err
	}

	inst.mu.Lock()
	defer inst.mu.Unlock()

	if inst.state == ledger.StateHumanReview && inst.reviewNode != "" {
		nodeID := inst.reviewNode
		ns := inst.nodes[nodeID]
		switch decision {
		case "compensate":
			return c.compensateLocked(ctx, inst, "")
		case "retry", "":
			if err := c.nodeTransition(ctx, inst, nodeID, ns.attempts, ledger.StateRetrying, "operator approved retry"); err != nil {
				return err
			}
			// Fresh retry budget and backoff clock.
			ns.attempts = 0
			inst.reviewNode = ""
			if err := c.workflowTransition(ctx, inst, ledger.StateRunning, ""); err != nil {
				return err
			}
			node := inst.graph.Node(nodeID)
			if err := c.cfg.Queue.Enqueue(nodeID, inst.id, inst.tenantID, node.Priority); err != nil {
				return fmt.Errorf("saga: resume enqueue: %w", err)
			}
			c.persist(ctx, inst)
			return nil
		default:
			return fmt.Errorf("saga: unknown resume decision %q", decision)
		}
	}

	if inst.state != ledger.StateRunning {
		return fmt.Errorf("saga: workflow %s not resumable from %s", workflowID, inst.state)
	}
	if err := c.scheduleReadyLocked(ctx, inst); err != nil {
		return err
	}
	c.persist(ctx, inst)
	return nil
}

// KillTenant force-fails every executing node of a tenant with
// BudgetExceeded. Driven by the budget gate's async kill signal.
func (c *Coordinator) KillTenant(tenantID uuid.UUID) {
	c.mu.RLock()
	var affected []*Instance
	for _, inst := range c.instances {
		if inst.tenantID == tenantID {
			affected = append(affected, inst)
		}
	}
	c.mu.RUnlock()

	for _, inst := range affected {
		inst.mu.Lock()
		for nodeID, ns := range inst.nodes {
			if ns.state == ledger.StateExecuting {
				inst.killReason[nodeID] = ledger.ReasonBudgetExceeded
				if cancel, ok := inst.cancels[nodeID]; ok {
					cancel()
				}
			}
		}
		inst.mu.Unlock()
	}
}

// Restore rebuilds an instance from a persisted snapshot after a restart and
// re-admits incomplete nodes. Nodes that were mid-execution are failed as
// retryable: delivery to the ledger is at-least-once and replay collapses
// redelivered (node, attempt) transitions, so a crash between execution and
// ledger write cannot double-commit an idempotent node.
func (c *Coordinator) Restore(ctx context.Context, g *dag.Graph, snap Snapshot) error {
	inst := newInstance(snap.WorkflowID, snap.TenantID, g, snap.CreatedAt)
	inst.state = snap.State
	inst.commitOrder = append([]string(nil), snap.CommitOrder...)
	inst.partial = snap.PartiallyCompensated
	inst.reviewNode = snap.ReviewNode
	inst.updatedAt = snap.UpdatedAt
	for _, n := range snap.Nodes {
		inst.nodes[n.NodeID] = &nodeState{
			state:    n.State,
			attempts: n.Attempts,
			records:  append([]AttemptRecord(nil), n.Records...),
		}
	}

	c.mu.Lock()
	c.instances[inst.id] = inst
	c.mu.Unlock()

	if inst.state != ledger.StateRunning {
		return nil
	}

	inst.mu.Lock()
	defer inst.mu.Unlock()
	for _, n := range inst.graph.Nodes {
		ns := inst.nodes[n.ID]
		switch ns.state {
		case ledger.StateScheduled, ledger.StateRetrying:
			if err := c.cfg.Queue.Enqueue(n.ID, inst.id, inst.tenantID, n.Priority); err != nil &&
				!errors.Is(err, scheduler.ErrCapacityExceeded) {
				return fmt.Errorf("saga: restore enqueue %s: %w", n.ID, err)
			}
		case ledger.StateExecuting:
			node := inst.graph.Node(n.ID)
			if err := c.failLocked(ctx, inst, node, ns.attempts, ledger.ReasonExecutorError, true); err != nil {
				return err
			}
		}
	}
	return c.scheduleReadyLocked(ctx, inst)
}

// NodeShed handles a load-shed notification from the scheduler: the node
// failed with LoadShed and retries per its policy.
func (c *Coordinator) NodeShed(workflowID uuid.UUID, nodeID string) {
	inst, err := c.instance(workflowID)
	if err != nil {
		return
	}
	inst.mu.Lock()
	defer inst.mu.Unlock()
	ns, ok := inst.nodes[nodeID]
	if !ok || (ns.state != ledger.StateScheduled && ns.state != ledger.StateRetrying) {
		return
	}
	node := inst.graph.Node(nodeID)
	if err := c.failLocked(context.Background(), inst, node, ns.attempts+1, ledger.ReasonLoadShed, true); err != nil {
		c.cfg.Log.Error("shed handling failed", "workflow_id", workflowID, "node_id", nodeID, "error", err)
	}
}
