package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"flowplane/internal/controller/middleware"
	"flowplane/internal/dag"
	"flowplane/internal/ledger"
	"flowplane/internal/saga"
	"flowplane/pkg/api"
)

// CreateWorkflow handles POST /workflows.
// It validates the graph and starts executing it for the authenticated tenant.
func (h *Handlers) CreateWorkflow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.SubmitWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid request body", api.CodeValidation, http.StatusBadRequest)
		return
	}

	tenantID, ok := middleware.TenantIDFromContext(ctx)
	if !ok {
		h.httpError(w, "Unauthorized", api.CodeInternal, http.StatusUnauthorized)
		return
	}

	g := buildGraph(&req)
	wfID, err := h.core.SubmitWorkflow(ctx, tenantID, g)
	if err != nil {
		h.coreError(w, err)
		return
	}

	h.respondJson(w, http.StatusCreated, api.SubmitWorkflowResponse{
		WorkflowID: wfID.String(),
		State:      ledger.StateRunning,
	})
}

// GetWorkflow handles GET /workflows/{id}.
// Returns the live snapshot including per-node attempt history.
func (h *Handlers) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	wfID, tenantID, ok := h.workflowScope(w, r)
	if !ok {
		return
	}

	snap, err := h.core.WorkflowStatus(wfID)
	if err != nil || snap.TenantID != tenantID {
		h.httpError(w, "Workflow not found", api.CodeNotFound, http.StatusNotFound)
		return
	}

	h.respondJson(w, http.StatusOK, statusView(snap))
}

// CancelWorkflow handles POST /workflows/{id}/cancel.
// Queued and executing nodes are stopped and committed work is compensated.
func (h *Handlers) CancelWorkflow(w http.ResponseWriter, r *http.Request) {
	wfID, tenantID, ok := h.workflowScope(w, r)
	if !ok {
		return
	}

	snap, err := h.core.WorkflowStatus(wfID)
	if err != nil || snap.TenantID != tenantID {
		h.httpError(w, "Workflow not found", api.CodeNotFound, http.StatusNotFound)
		return
	}

	if err := h.core.CancelWorkflow(r.Context(), wfID); err != nil {
		h.coreError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// ResumeWorkflow handles POST /workflows/{id}/resume.
// It applies an operator decision to a workflow waiting in human review.
func (h *Handlers) ResumeWorkflow(w http.ResponseWriter, r *http.Request) {
	wfID, tenantID, ok := h.workflowScope(w, r)
	if !ok {
		return
	}

	var req api.ResumeWorkflowRequest
	if r.Body != nil {
		// An empty body means the default decision.
		json.NewDecoder(r.Body).Decode(&req)
	}

	snap, err := h.core.WorkflowStatus(wfID)
	if err != nil || snap.TenantID != tenantID {
		h.httpError(w, "Workflow not found", api.CodeNotFound, http.StatusNotFound)
		return
	}

	if err := h.core.ResumeWorkflow(r.Context(), wfID, req.Decision); err != nil {
		h.coreError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// workflowScope parses the path ID and resolves the caller's tenant.
func (h *Handlers) workflowScope(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	wfID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.httpError(w, "Invalid workflow id", api.CodeValidation, http.StatusBadRequest)
		return uuid.Nil, uuid.Nil, false
	}
	tenantID, ok := middleware.TenantIDFromContext(r.Context())
	if !ok {
		h.httpError(w, "Unauthorized", api.CodeInternal, http.StatusUnauthorized)
		return uuid.Nil, uuid.Nil, false
	}
	return wfID, tenantID, true
}

// buildGraph converts the wire format into the internal graph model.
// Nodes without an explicit retry policy get the default schedule.
func buildGraph(req *api.SubmitWorkflowRequest) *dag.Graph {
	g := &dag.Graph{
		Nodes: make([]dag.Node, 0, len(req.Nodes)),
		Edges: make([]dag.Edge, 0, len(req.Edges)),
	}
	for _, n := range req.Nodes {
		retry := dag.DefaultRetryPolicy()
		if n.MaxAttempts > 0 {
			retry.MaxAttempts = n.MaxAttempts
		}
		if len(n.BackoffMillis) > 0 {
			retry.Backoff = make([]time.Duration, len(n.BackoffMillis))
			for i, ms := range n.BackoffMillis {
				retry.Backoff[i] = time.Duration(ms) * time.Millisecond
			}
		}
		g.Nodes = append(g.Nodes, dag.Node{
			ID:                 n.ID,
			Kind:               dag.NodeKind(n.Kind),
			Params:             n.Params,
			Priority:           dag.Priority(n.Priority),
			Idempotent:         n.Idempotent,
			Timeout:            time.Duration(n.TimeoutSeconds) * time.Second,
			Retry:              retry,
			CompensationID:     n.CompensationID,
			ReviewOnExhaustion: n.ReviewOnExhaustion,
		})
	}
	for _, e := range req.Edges {
		g.Edges = append(g.Edges, dag.Edge{From: e.From, To: e.To})
	}
	return g
}

func statusView(snap saga.Snapshot) api.WorkflowStatusResponse {
	resp := api.WorkflowStatusResponse{
		WorkflowID:           snap.WorkflowID.String(),
		TenantID:             snap.TenantID.String(),
		State:                snap.State,
		Nodes:                make([]api.NodeStatusView, 0, len(snap.Nodes)),
		CommitOrder:          snap.CommitOrder,
		PartiallyCompensated: snap.PartiallyCompensated,
		Uncompensated:        snap.Uncompensated,
		ReviewNode:           snap.ReviewNode,
		CreatedAt:            snap.CreatedAt,
		UpdatedAt:            snap.UpdatedAt,
	}
	for _, ns := range snap.Nodes {
		nv := api.NodeStatusView{
			NodeID:   ns.NodeID,
			State:    ns.State,
			Attempts: ns.Attempts,
		}
		for _, rec := range ns.Records {
			av := api.AttemptView{
				Attempt:   rec.Attempt,
				Outcome:   rec.Outcome,
				Priority:  int(rec.Priority),
				StartedAt: rec.StartedAt,
			}
			if !rec.EndedAt.IsZero() {
				ended := rec.EndedAt
				av.EndedAt = &ended
			}
			nv.History = append(nv.History, av)
		}
		resp.Nodes = append(resp.Nodes, nv)
	}
	return resp
}
