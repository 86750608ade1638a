// Package dag contains the workflow graph model and its validation rules.
package dag

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NodeKind is the closed set of node types a graph may contain.
type NodeKind string

const (
	KindAgent         NodeKind = "agent"
	KindTool          NodeKind = "tool"
	KindCondition     NodeKind = "condition"
	KindLoop          NodeKind = "loop"
	KindHumanApproval NodeKind = "human_approval"
	KindRetry         NodeKind = "retry"
	KindCompensation  NodeKind = "compensation"
)

// Valid reports whether k is a known node kind.
func (k NodeKind) Valid() bool {
	switch k {
	case KindAgent, KindTool, KindCondition, KindLoop, KindHumanApproval, KindRetry, KindCompensation:
		return true
	}
	return false
}

// Priority is the scheduling class of a node. Lower value runs first.
type Priority int

const (
	P0 Priority = iota // critical
	P1
	P2
	P3
)

// Valid reports whether p is within the P0-P3 range.
func (p Priority) Valid() bool { return p >= P0 && p <= P3 }

func (p Priority) String() string {
	if !p.Valid() {
		return fmt.Sprintf("P?(%d)", int(p))
	}
	return fmt.Sprintf("P%d", int(p))
}

// Escalate returns the next higher priority class.
// P0 escalates to itself; escalation is one-directional.
func (p Priority) Escalate() Priority {
	if p <= P0 {
		return P0
	}
	return p - 1
}

// RetryPolicy bounds how a node's failures are retried.
// Backoff holds the exact delay before each retry attempt; if there are more
// attempts than entries, the last entry repeats. JitterFraction bounds the
// random jitter added to each delay (0.2 means up to +20%).
type RetryPolicy struct {
	MaxAttempts    int             `json:"max_attempts"`
	Backoff        []time.Duration `json:"backoff"`
	JitterFraction float64         `json:"jitter_fraction"`
}

// DefaultRetryPolicy matches the documented schedule: 100ms, 500ms, 2000ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		Backoff:        []time.Duration{100 * time.Millisecond, 500 * time.Millisecond, 2 * time.Second},
		JitterFraction: 0.2,
	}
}

// Delay returns the configured backoff before retry attempt n (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if len(p.Backoff) == 0 {
		return 0
	}
	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(p.Backoff) {
		idx = len(p.Backoff) - 1
	}
	return p.Backoff[idx]
}

// Node is a single unit of work in the graph.
type Node struct {
	ID         string          `json:"id"`
	Kind       NodeKind        `json:"kind"`
	Params     json.RawMessage `json:"params,omitempty"`
	Priority   Priority        `json:"priority"`
	Idempotent bool            `json:"idempotent"`
	Timeout    time.Duration   `json:"timeout"`
	Retry      RetryPolicy     `json:"retry"`

	// CompensationID names the node run to undo this node during rollback.
	// Empty means the node is skipped (recorded as uncompensated) in the walk.
	CompensationID string `json:"compensation_id,omitempty"`

	// ReviewOnExhaustion routes the node to human review when retries run out,
	// instead of compensating immediately.
	ReviewOnExhaustion bool `json:"review_on_exhaustion,omitempty"`
}

// Edge is a directed dependency: To cannot start before From commits.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Graph is a validated-on-submission DAG of nodes. Immutable once a workflow
// instance is created from it.
type Graph struct {
	ID    uuid.UUID `json:"id"`
	Nodes []Node    `json:"nodes"`
	Edges []Edge    `json:"edges"`
}

// Node returns the node with the given id, or nil.
func (g *Graph) Node(id string) *Node {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i]
		}
	}
	return nil
}

// Predecessors returns the ids of nodes that must commit before id can run.
func (g *Graph) Predecessors(id string) []string {
	var preds []string
	for _, e := range g.Edges {
		if e.To == id {
			preds = append(preds, e.From)
		}
	}
	return preds
}

// Successors returns the ids of nodes directly depending on id.
func (g *Graph) Successors(id string) []string {
	var succs []string
	for _, e := range g.Edges {
		if e.From == id {
			succs = append(succs, e.To)
		}
	}
	return succs
}

// Entries returns nodes with no predecessors, in declaration order.
// Compensation nodes are excluded; they only run during rollback.
func (g *Graph) Entries() []string {
	indeg := make(map[string]int, len(g.Nodes))
	for _, n := range g.Nodes {
		indeg[n.ID] = 0
	}
	for _, e := range g.Edges {
		indeg[e.To]++
	}
	var entries []string
	for _, n := range g.Nodes {
		if indeg[n.ID] == 0 && n.Kind != KindCompensation {
			entries = append(entries, n.ID)
		}
	}
	return entries
}

// Ready returns the ids of nodes whose predecessors have all committed and
// that are not themselves in the committed set. Order is deterministic:
// declaration order of the graph. Compensation nodes are never ready through
// the forward path.
func (g *Graph) Ready(committed map[string]bool) []string {
	var ready []string
	for _, n := range g.Nodes {
		if committed[n.ID] || n.Kind == KindCompensation {
			continue
		}
		ok := true
		for _, p := range g.Predecessors(n.ID) {
			if !committed[p] {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, n.ID)
		}
	}
	return ready
}
