package saga

import (
	"flowplane/internal/dag"
	"flowplane/internal/ledger"
)

// Simulate produces the transition trace a workflow would write if every node
// succeeded on its first attempt. No executor runs and nothing touches the
// ledger; the output is the expected baseline to diff a real replay against.
//
// Node order follows the dispatch order of a single-slot run: ready nodes in
// declaration order, each committed before the next becomes ready.
func Simulate(g *dag.Graph) ([]ledger.Step, error) {
	if err := dag.Validate(g); err != nil {
		return nil, err
	}

	steps := []ledger.Step{
		{From: ledger.StatePending, To: ledger.StateRunning},
	}

	committed := make(map[string]bool)
	for {
		ready := g.Ready(committed)
		if len(ready) == 0 {
			break
		}
		for _, nodeID := range ready {
			steps = append(steps,
				ledger.Step{NodeID: nodeID, Attempt: 1, From: ledger.StatePending, To: ledger.StateScheduled},
				ledger.Step{NodeID: nodeID, Attempt: 1, From: ledger.StateScheduled, To: ledger.StateExecuting},
				ledger.Step{NodeID: nodeID, Attempt: 1, From: ledger.StateExecuting, To: ledger.StateVerifying},
				ledger.Step{NodeID: nodeID, Attempt: 1, From: ledger.StateVerifying, To: ledger.StateCommitted},
			)
			committed[nodeID] = true
		}
	}

	steps = append(steps, ledger.Step{From: ledger.StateRunning, To: ledger.StateCommitted})
	return steps, nil
}
