// Package executor defines the boundary to the runtime that performs a
// node's actual work. The core treats it as a long-running, cancellable
// request/response call; adapters decide whether that work happens in a
// local process, a container, or a remote runtime service.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"flowplane/internal/dag"
)

// Task is one execution request for a node attempt.
type Task struct {
	WorkflowID uuid.UUID
	TenantID   uuid.UUID
	NodeID     string
	Kind       dag.NodeKind
	Attempt    int
	Params     json.RawMessage
	// Degrade asks for a cheaper execution mode (budget constraint).
	Degrade bool
	// Deadline is the node timeout; adapters must stop work past it.
	Deadline time.Time
}

// Result is the executor's answer for a successful run.
type Result struct {
	Output json.RawMessage
	// Cost is the actual spend of the attempt, fed back to the budget gate.
	Cost float64
}

// Error classifies executor failures for the retry policy.
type Error struct {
	Reason    string
	Transient bool
}

func (e *Error) Error() string { return e.Reason }

// Transient reports whether err is a retryable executor failure. Context
// cancellation and deadline expiry are handled separately by the caller.
func Transient(err error) bool {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Transient
	}
	// Unknown failures default to retryable; the retry budget bounds them.
	return true
}

// Executor performs the work of one node attempt. Execute must honor ctx
// cancellation: on workflow cancel the context is cancelled and any eventual
// result is discarded.
type Executor interface {
	Execute(ctx context.Context, task Task) (Result, error)
}

// Verifier checks a committed-candidate output against its declared schema
// and post-conditions before the node may commit.
type Verifier interface {
	Verify(ctx context.Context, task Task, result Result) error
}

// VerifierFunc adapts a function to the Verifier interface.
type VerifierFunc func(ctx context.Context, task Task, result Result) error

func (f VerifierFunc) Verify(ctx context.Context, task Task, result Result) error {
	return f(ctx, task, result)
}

// AcceptAll is the no-op verifier for node kinds without declared
// post-conditions.
var AcceptAll = VerifierFunc(func(context.Context, Task, Result) error { return nil })
