package ledger

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// Step is one reconstructed transition.
type Step struct {
	Seq     uint64 `json:"seq,omitempty"`
	NodeID  string `json:"node_id,omitempty"` // empty for workflow-level steps
	Attempt int    `json:"attempt,omitempty"`
	From    string `json:"from"`
	To      string `json:"to"`
	Reason  string `json:"reason,omitempty"`
}

func (s Step) dedupeKey() string {
	return fmt.Sprintf("%s|%d|%s|%s", s.NodeID, s.Attempt, s.From, s.To)
}

// History is the deterministic reconstruction of a workflow's execution from
// its ledger entries.
type History struct {
	WorkflowID           uuid.UUID         `json:"workflow_id"`
	Steps                []Step            `json:"steps"`
	NodeStates           map[string]string `json:"node_states"`
	WorkflowState        string            `json:"workflow_state"`
	PartiallyCompensated bool              `json:"partially_compensated"`
	Uncompensated        []string          `json:"uncompensated,omitempty"`
}

// Replay rebuilds the full transition sequence for a workflow from the ledger
// read path. Delivery to the ledger is at-least-once and redelivers arrive
// back to back, so only consecutive repeats of the same (node, attempt)
// transition are dropped. A later legitimate recurrence of an identical
// transition, such as a re-failure after an operator-approved retry resets
// the attempt counter, is kept; the result matches the history the live
// coordinator held.
func (l *Ledger) Replay(ctx context.Context, workflowID uuid.UUID) (*History, error) {
	entries, err := l.store.EntriesByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("ledger: load workflow entries: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("ledger: no entries for workflow %s", workflowID)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Seq < entries[j].Seq })

	h := &History{
		WorkflowID: workflowID,
		NodeStates: make(map[string]string),
	}
	var prevKey string

	for i := range entries {
		e := &entries[i]
		step := Step{
			Seq:     e.Seq,
			NodeID:  e.NodeID,
			Attempt: e.Attempt,
			From:    e.FromState,
			To:      e.ToState,
			Reason:  e.Reason,
		}
		key := step.dedupeKey()
		if key == prevKey {
			continue
		}
		prevKey = key
		h.Steps = append(h.Steps, step)

		if e.NodeID == "" {
			h.WorkflowState = e.ToState
			if e.Reason == ReasonPartiallyCompensated {
				h.PartiallyCompensated = true
			}
			continue
		}
		h.NodeStates[e.NodeID] = e.ToState
		if e.ToState == StateUncompensated {
			h.Uncompensated = append(h.Uncompensated, e.NodeID)
		}
	}
	return h, nil
}

// Trace converts a history to bare steps for diffing.
func (h *History) Trace() []Step {
	return h.Steps
}
