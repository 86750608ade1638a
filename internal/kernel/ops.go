package kernel

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"flowplane/internal/dag"
	"flowplane/internal/ledger"
	"flowplane/internal/saga"
	"flowplane/internal/store"
)

// SubmitWorkflow validates and starts a workflow for a tenant.
func (k *Kernel) SubmitWorkflow(ctx context.Context, tenantID uuid.UUID, g *dag.Graph) (uuid.UUID, error) {
	if err := dag.Validate(g); err != nil {
		return uuid.Nil, err
	}
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}

	wfID, err := k.coord.Submit(ctx, g, tenantID)
	if err != nil {
		return uuid.Nil, err
	}

	k.mu.Lock()
	k.graphs[wfID] = g
	k.mu.Unlock()

	if k.metrics != nil {
		k.metrics.WorkflowsSubmitted.Inc()
	}

	graphJSON, err := json.Marshal(g)
	if err != nil {
		return wfID, fmt.Errorf("kernel: encode graph: %w", err)
	}
	snap, err := k.coord.Status(wfID)
	if err != nil {
		return wfID, err
	}
	snapJSON, _ := json.Marshal(snap)
	now := time.Now().UTC()
	if err := k.stores.SaveSnapshot(ctx, nil, &store.WorkflowRecord{
		ID:        wfID,
		TenantID:  tenantID,
		State:     snap.State,
		Graph:     graphJSON,
		Snapshot:  snapJSON,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		k.log.Error("persist workflow failed", "workflow_id", wfID, "error", err)
	}
	return wfID, nil
}

// WorkflowStatus returns the live snapshot of a workflow.
func (k *Kernel) WorkflowStatus(workflowID uuid.UUID) (saga.Snapshot, error) {
	return k.coord.Status(workflowID)
}

// CancelWorkflow cooperatively stops a workflow and compensates committed
// work.
func (k *Kernel) CancelWorkflow(ctx context.Context, workflowID uuid.UUID) error {
	return k.coord.Cancel(ctx, workflowID)
}

// ResumeWorkflow re-enters a suspended workflow. decision applies to
// workflows in human review.
func (k *Kernel) ResumeWorkflow(ctx context.Context, workflowID uuid.UUID, decision string) error {
	return k.coord.Resume(ctx, workflowID, decision)
}

// CreateTenant persists a tenant and adds it to the scheduler rotation and
// budget tracking.
func (k *Kernel) CreateTenant(ctx context.Context, t *store.Tenant, hashedKey string) error {
	if err := k.stores.CreateTenant(ctx, t, hashedKey); err != nil {
		return err
	}
	k.registerTenant(t)
	return nil
}

// VerifyLedger checks one tenant's chain over a sequence range. Zero toSeq
// means up to the chain head.
func (k *Kernel) VerifyLedger(ctx context.Context, tenantID uuid.UUID, fromSeq, toSeq uint64) (ledger.VerifyResult, error) {
	return k.ledger.Verify(ctx, tenantID, fromSeq, toSeq)
}

// AuditLedger verifies every tenant chain.
func (k *Kernel) AuditLedger(ctx context.Context) ([]ledger.VerifyResult, error) {
	return k.ledger.Audit(ctx)
}

// ReplayWorkflow rebuilds a workflow's transition history from the ledger.
func (k *Kernel) ReplayWorkflow(ctx context.Context, workflowID uuid.UUID) (*ledger.History, error) {
	return k.ledger.Replay(ctx, workflowID)
}

// DiffWorkflows compares the replayed histories of two workflows.
func (k *Kernel) DiffWorkflows(ctx context.Context, a, b uuid.UUID) ([]ledger.Divergence, error) {
	ha, err := k.ledger.Replay(ctx, a)
	if err != nil {
		return nil, err
	}
	hb, err := k.ledger.Replay(ctx, b)
	if err != nil {
		return nil, err
	}
	return ledger.Diff(ha.Trace(), hb.Trace()), nil
}

// ListLedgerEntries returns a tenant's chain entries over a sequence range,
// for audit inspection. Zero toSeq means up to the chain head.
func (k *Kernel) ListLedgerEntries(ctx context.Context, tenantID uuid.UUID, fromSeq, toSeq uint64) ([]ledger.Entry, error) {
	if fromSeq == 0 {
		fromSeq = 1
	}
	return k.ledgerStore.EntriesByTenant(ctx, tenantID, fromSeq, toSeq)
}

// SimulateGraph returns the expected failure-free trace of a graph.
func (k *Kernel) SimulateGraph(g *dag.Graph) ([]ledger.Step, error) {
	return saga.Simulate(g)
}

// persister bridges the coordinator's snapshots to the workflow store.
type persister struct {
	k *Kernel
}

func (p *persister) SaveSnapshot(ctx context.Context, snap saga.Snapshot) error {
	p.k.mu.Lock()
	g := p.k.graphs[snap.WorkflowID]
	p.k.mu.Unlock()

	var graphJSON json.RawMessage
	if g != nil {
		graphJSON, _ = json.Marshal(g)
	} else {
		graphJSON = json.RawMessage(`{}`)
	}
	snapJSON, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	if p.k.metrics != nil {
		switch snap.State {
		case ledger.StateCommitted, ledger.StateRolledBack:
			p.k.metrics.WorkflowsFinished.WithLabelValues(snap.State).Inc()
		}
	}

	return p.k.stores.SaveSnapshot(ctx, nil, &store.WorkflowRecord{
		ID:                   snap.WorkflowID,
		TenantID:             snap.TenantID,
		State:                snap.State,
		Graph:                graphJSON,
		Snapshot:             snapJSON,
		PartiallyCompensated: snap.PartiallyCompensated,
		CreatedAt:            snap.CreatedAt,
		UpdatedAt:            snap.UpdatedAt,
	})
}

func decodeGraph(raw json.RawMessage) (*dag.Graph, error) {
	var g dag.Graph
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("decode graph: %w", err)
	}
	return &g, nil
}

func decodeSnapshot(raw json.RawMessage) (saga.Snapshot, error) {
	var snap saga.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return saga.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}
