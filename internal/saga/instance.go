// Package saga drives workflow instances through their lifecycle state
// machine: dispatching ready nodes, retrying failures with backoff,
// escalating to human review, and compensating committed work in reverse
// order when a workflow fails. Every transition is written to the ledger
// before it is considered durable.
package saga

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"flowplane/internal/dag"
	"flowplane/internal/ledger"
)

// AttemptRecord documents one execution attempt of a node. Records are
// appended, never mutated in place.
type AttemptRecord struct {
	Attempt   int          `json:"attempt"`
	StartedAt time.Time    `json:"started_at"`
	EndedAt   time.Time    `json:"ended_at,omitempty"`
	Outcome   string       `json:"outcome,omitempty"` // success, failure, timeout
	Priority  dag.Priority `json:"priority"`
	Executor  string       `json:"executor,omitempty"`
}

type nodeState struct {
	state    string
	attempts int
	records  []AttemptRecord
}

// Instance is one running workflow. All of its node state is owned by the
// coordinator; callers only see snapshots. The per-instance mutex is the
// single-owner guarantee: no two actors advance the same node concurrently.
type Instance struct {
	mu sync.Mutex

	id       uuid.UUID
	tenantID uuid.UUID
	graph    *dag.Graph

	state       string
	nodes       map[string]*nodeState
	commitOrder []string
	partial     bool // a compensation failed during rollback
	reviewNode  string
	failedNode  string
	cancelled   bool

	createdAt time.Time
	updatedAt time.Time

	// cancels holds the context cancel per executing node so workflow
	// cancellation and budget kills reach in-flight executor calls.
	cancels map[string]context.CancelFunc
	// killReason, when set for a node, overrides the failure reason the
	// dispatch goroutine records after its context is cancelled.
	killReason map[string]string
}

func newInstance(id, tenantID uuid.UUID, g *dag.Graph, now time.Time) *Instance {
	inst := &Instance{
		id:         id,
		tenantID:   tenantID,
		graph:      g,
		state:      ledger.StatePending,
		nodes:      make(map[string]*nodeState, len(g.Nodes)),
		createdAt:  now,
		updatedAt:  now,
		cancels:    make(map[string]context.CancelFunc),
		killReason: make(map[string]string),
	}
	for _, n := range g.Nodes {
		inst.nodes[n.ID] = &nodeState{state: ledger.StatePending}
	}
	return inst
}

func (inst *Instance) committedSet() map[string]bool {
	set := make(map[string]bool)
	for id, ns := range inst.nodes {
		if ns.state == ledger.StateCommitted {
			set[id] = true
		}
	}
	return set
}

// done reports whether every forward-path node reached a terminal-success
// state.
func (inst *Instance) done() bool {
	for _, n := range inst.graph.Nodes {
		if n.Kind == dag.KindCompensation {
			continue
		}
		if inst.nodes[n.ID].state != ledger.StateCommitted {
			return false
		}
	}
	return true
}

// NodeSnapshot is the caller-visible state of one node.
type NodeSnapshot struct {
	NodeID   string          `json:"node_id"`
	State    string          `json:"state"`
	Attempts int             `json:"attempts"`
	Records  []AttemptRecord `json:"records,omitempty"`
}

// Snapshot is the caller-visible state of a workflow instance. Status always
// reflects the true current state, including incomplete-rollback flags.
type Snapshot struct {
	WorkflowID           uuid.UUID      `json:"workflow_id"`
	TenantID             uuid.UUID      `json:"tenant_id"`
	State                string         `json:"state"`
	Nodes                []NodeSnapshot `json:"nodes"`
	CommitOrder          []string       `json:"commit_order,omitempty"`
	PartiallyCompensated bool           `json:"partially_compensated"`
	Uncompensated        []string       `json:"uncompensated,omitempty"`
	ReviewNode           string         `json:"review_node,omitempty"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
}

// snapshotLocked builds a Snapshot; caller holds inst.mu.
func (inst *Instance) snapshotLocked() Snapshot {
	snap := Snapshot{
		WorkflowID:           inst.id,
		TenantID:             inst.tenantID,
		State:                inst.state,
		CommitOrder:          append([]string(nil), inst.commitOrder...),
		PartiallyCompensated: inst.partial,
		ReviewNode:           inst.reviewNode,
		CreatedAt:            inst.createdAt,
		UpdatedAt:            inst.updatedAt,
	}
	for _, n := range inst.graph.Nodes {
		ns := inst.nodes[n.ID]
		snap.Nodes = append(snap.Nodes, NodeSnapshot{
			NodeID:   n.ID,
			State:    ns.state,
			Attempts: ns.attempts,
			Records:  append([]AttemptRecord(nil), ns.records...),
		})
		if ns.state == ledger.StateUncompensated {
			snap.Uncompensated = append(snap.Uncompensated, n.ID)
		}
	}
	return snap
}
