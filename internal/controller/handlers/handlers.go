// Package handlers contains HTTP handlers for the controller API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"flowplane/internal/dag"
	"flowplane/internal/ledger"
	"flowplane/internal/saga"
	"flowplane/internal/scheduler"
	"flowplane/internal/store"
	"flowplane/pkg/api"
)

// Core is the orchestration surface the handlers call into.
type Core interface {
	SubmitWorkflow(ctx context.Context, tenantID uuid.UUID, g *dag.Graph) (uuid.UUID, error)
	WorkflowStatus(workflowID uuid.UUID) (saga.Snapshot, error)
	CancelWorkflow(ctx context.Context, workflowID uuid.UUID) error
	ResumeWorkflow(ctx context.Context, workflowID uuid.UUID, decision string) error
	CreateTenant(ctx context.Context, t *store.Tenant, hashedKey string) error
	VerifyLedger(ctx context.Context, tenantID uuid.UUID, fromSeq, toSeq uint64) (ledger.VerifyResult, error)
	AuditLedger(ctx context.Context) ([]ledger.VerifyResult, error)
	ReplayWorkflow(ctx context.Context, workflowID uuid.UUID) (*ledger.History, error)
	DiffWorkflows(ctx context.Context, a, b uuid.UUID) ([]ledger.Divergence, error)
	SimulateGraph(g *dag.Graph) ([]ledger.Step, error)
	ListLedgerEntries(ctx context.Context, tenantID uuid.UUID, fromSeq, toSeq uint64) ([]ledger.Entry, error)
}

// Pinger checks database connectivity for the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers holds all HTTP handlers and their dependencies.
type Handlers struct {
	core Core
	db   Pinger
}

// New creates a new Handlers instance.
func New(core Core, db Pinger) *Handlers {
	return &Handlers{core: core, db: db}
}

// A helper function to write standard JSON responses.
func (h *Handlers) respondJson(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// A helper function to return consistent error messages.
func (h *Handlers) httpError(w http.ResponseWriter, message, code string, status int) {
	h.respondJson(w, status, api.ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// coreError maps orchestration errors onto the API error codes.
func (h *Handlers) coreError(w http.ResponseWriter, err error) {
	switch {
	case dag.IsValidationError(err):
		h.httpError(w, err.Error(), api.CodeValidation, http.StatusBadRequest)
	case errors.Is(err, saga.ErrNotFound):
		h.httpError(w, "Workflow not found", api.CodeNotFound, http.StatusNotFound)
	case errors.Is(err, scheduler.ErrCapacityExceeded):
		h.httpError(w, "Tenant queue is full", api.CodeCapacity, http.StatusTooManyRequests)
	case errors.Is(err, ledger.ErrWriteFailure):
		h.httpError(w, "Ledger write failed", api.CodeLedgerViolation, http.StatusInternalServerError)
	default:
		h.httpError(w, "Internal error", api.CodeInternal, http.StatusInternalServerError)
	}
}
