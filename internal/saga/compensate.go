package saga

import (
	"context"
	"time"

	"flowplane/internal/executor"
	"flowplane/internal/ledger"
)

// compensateLocked walks back a failed workflow. The failed node is handled
// first, then every committed node in reverse commit order. Nodes without a
// compensation handler are recorded as uncompensated and skipped; a failing
// compensation marks the workflow partially compensated but the walk
// continues. Caller holds inst.mu.
func (c *Coordinator) compensateLocked(ctx context.Context, inst *Instance, workflowReason string) error {
	if err := c.workflowTransition(ctx, inst, ledger.StateCompensating, workflowReason); err != nil {
		return err
	}

	walk := make([]string, 0, len(inst.commitOrder)+1)
	if inst.failedNode != "" {
		walk = append(walk, inst.failedNode)
	}
	for i := len(inst.commitOrder) - 1; i >= 0; i-- {
		if inst.commitOrder[i] != inst.failedNode {
			walk = append(walk, inst.commitOrder[i])
		}
	}

	for _, nodeID := range walk {
		node := inst.graph.Node(nodeID)
		ns := inst.nodes[nodeID]

		if node.CompensationID == "" {
			if err := c.nodeTransition(ctx, inst, nodeID, ns.attempts, ledger.StateUncompensated, ""); err != nil {
				return err
			}
			c.noteCompensation("skipped")
			continue
		}

		if err := c.nodeTransition(ctx, inst, nodeID, ns.attempts, ledger.StateCompensating, ""); err != nil {
			return err
		}
		if err := c.runCompensation(ctx, inst, node.CompensationID); err != nil {
			if terr := c.nodeTransition(ctx, inst, nodeID, ns.attempts, ledger.StateCompensationFailed, ledger.ReasonCompensationFailure); terr != nil {
				return terr
			}
			inst.partial = true
			c.cfg.Log.Error("compensation failed, continuing walk",
				"workflow_id", inst.id, "node_id", nodeID, "handler", node.CompensationID, "error", err)
			c.noteCompensation("failure")
			continue
		}
		if err := c.nodeTransition(ctx, inst, nodeID, ns.attempts, ledger.StateCompensated, ""); err != nil {
			return err
		}
		c.noteCompensation("success")
	}

	finalReason := ""
	if inst.partial {
		finalReason = ledger.ReasonPartiallyCompensated
	}
	if err := c.workflowTransition(ctx, inst, ledger.StateRolledBack, finalReason); err != nil {
		return err
	}
	c.persist(ctx, inst)
	return nil
}

func (c *Coordinator) noteCompensation(outcome string) {
	if c.cfg.OnCompensation != nil {
		c.cfg.OnCompensation(outcome)
	}
}

// runCompensation executes one compensation handler with a bounded retry of
// its own. The instance lock stays held: rollback is a serial walk by
// construction.
func (c *Coordinator) runCompensation(ctx context.Context, inst *Instance, handlerID string) error {
	handler := inst.graph.Node(handlerID)
	timeout := handler.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	attempts := handler.Retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		execCtx, cancel := context.WithTimeout(ctx, timeout)
		_, err := c.cfg.Exec.Execute(execCtx, executor.Task{
			WorkflowID: inst.id,
			TenantID:   inst.tenantID,
			NodeID:     handlerID,
			Kind:       handler.Kind,
			Attempt:    attempt,
			Params:     handler.Params,
			Deadline:   c.cfg.Now().Add(timeout),
		})
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if !executor.Transient(err) {
			break
		}
		if attempt < attempts {
			time.Sleep(handler.Retry.Delay(attempt))
		}
	}
	return lastErr
}
