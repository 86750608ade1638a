package dag

import (
	"errors"
	"fmt"
)

// ValidationError rejects a malformed graph at submission. A graph failing
// validation never enters the state machine and no instance is created for it.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid dag: %s", e.Reason)
}

// IsValidationError reports whether err is a dag validation failure.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func invalid(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// Validate checks the structural invariants of the graph:
// node ids unique and non-empty, kinds and priorities known, edges reference
// existing nodes, compensation refs point at compensation nodes, at least one
// entry node exists, and the graph is acyclic.
func Validate(g *Graph) error {
	if len(g.Nodes) == 0 {
		return invalid("graph has no nodes")
	}

	byID := make(map[string]*Node, len(g.Nodes))
	for i := range g.Nodes {
		n := &g.Nodes[i]
		if n.ID == "" {
			return invalid("node %d has empty id", i)
		}
		if _, dup := byID[n.ID]; dup {
			return invalid("duplicate node id %q", n.ID)
		}
		if !n.Kind.Valid() {
			return invalid("node %q has unknown kind %q", n.ID, n.Kind)
		}
		if !n.Priority.Valid() {
			return invalid("node %q has priority out of range: %d", n.ID, int(n.Priority))
		}
		if n.Retry.MaxAttempts < 1 {
			return invalid("node %q must allow at least one attempt", n.ID)
		}
		byID[n.ID] = n
	}

	for _, e := range g.Edges {
		if _, ok := byID[e.From]; !ok {
			return invalid("edge references unknown node %q", e.From)
		}
		if _, ok := byID[e.To]; !ok {
			return invalid("edge references unknown node %q", e.To)
		}
		if e.From == e.To {
			return invalid("node %q depends on itself", e.From)
		}
	}

	for _, n := range g.Nodes {
		if n.CompensationID == "" {
			continue
		}
		comp, ok := byID[n.CompensationID]
		if !ok {
			return invalid("node %q references unknown compensation %q", n.ID, n.CompensationID)
		}
		if comp.Kind != KindCompensation {
			return invalid("node %q compensation %q is not a compensation node", n.ID, n.CompensationID)
		}
	}

	if len(g.Entries()) == 0 {
		return invalid("graph has no entry node")
	}

	if cycle := findCycle(g); cycle != "" {
		return invalid("cycle detected at node %q", cycle)
	}
	return nil
}

// findCycle runs Kahn's algorithm; a node left with nonzero in-degree after
// the peel is part of a cycle. Returns an offending node id, or "".
func findCycle(g *Graph) string {
	indeg := make(map[string]int, len(g.Nodes))
	for _, n := range g.Nodes {
		indeg[n.ID] = 0
	}
	for _, e := range g.Edges {
		indeg[e.To]++
	}

	var queue []string
	for _, n := range g.Nodes {
		if indeg[n.ID] == 0 {
			queue = append(queue, n.ID)
		}
	}

	seen := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		seen++
		for _, s := range g.Successors(id) {
			indeg[s]--
			if indeg[s] == 0 {
				queue = append(queue, s)
			}
		}
	}

	if seen == len(g.Nodes) {
		return ""
	}
	for _, n := range g.Nodes {
		if indeg[n.ID] > 0 {
			return n.ID
		}
	}
	return ""
}
