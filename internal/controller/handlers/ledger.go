package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"flowplane/internal/controller/middleware"
	"flowplane/internal/ledger"
	"flowplane/pkg/api"
)

// VerifyLedger handles POST /ledger/verify.
// It recomputes the authenticated tenant's chain over the requested range and
// reports the first broken entry, if any.
func (h *Handlers) VerifyLedger(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.VerifyLedgerRequest
	if r.Body != nil {
		// An empty body verifies the whole chain.
		json.NewDecoder(r.Body).Decode(&req)
	}

	tenantID, ok := middleware.TenantIDFromContext(ctx)
	if !ok {
		h.httpError(w, "Unauthorized", api.CodeInternal, http.StatusUnauthorized)
		return
	}

	res, err := h.core.VerifyLedger(ctx, tenantID, req.FromSeq, req.ToSeq)
	if err != nil {
		h.coreError(w, err)
		return
	}
	h.respondJson(w, http.StatusOK, verifyView(res))
}

// ReplayWorkflow handles GET /ledger/replay/{id}.
// The response is rebuilt purely from ledger entries; it matches what the
// live coordinator reported while the workflow ran.
func (h *Handlers) ReplayWorkflow(w http.ResponseWriter, r *http.Request) {
	wfID, tenantID, ok := h.workflowScope(w, r)
	if !ok {
		return
	}

	snap, err := h.core.WorkflowStatus(wfID)
	if err != nil || snap.TenantID != tenantID {
		h.httpError(w, "Workflow not found", api.CodeNotFound, http.StatusNotFound)
		return
	}

	history, err := h.core.ReplayWorkflow(r.Context(), wfID)
	if err != nil {
		h.coreError(w, err)
		return
	}

	h.respondJson(w, http.StatusOK, api.ReplayResponse{
		WorkflowID:           history.WorkflowID.String(),
		Steps:                stepViews(history.Steps),
		NodeStates:           history.NodeStates,
		WorkflowState:        history.WorkflowState,
		PartiallyCompensated: history.PartiallyCompensated,
		Uncompensated:        history.Uncompensated,
	})
}

// SimulateGraph handles POST /ledger/simulate.
// It returns the trace a failure-free run of the graph would produce, without
// executing anything.
func (h *Handlers) SimulateGraph(w http.ResponseWriter, r *http.Request) {
	var req api.SubmitWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid request body", api.CodeValidation, http.StatusBadRequest)
		return
	}

	steps, err := h.core.SimulateGraph(buildGraph(&req))
	if err != nil {
		h.coreError(w, err)
		return
	}
	h.respondJson(w, http.StatusOK, api.SimulateResponse{Steps: stepViews(steps)})
}

// DiffWorkflows handles GET /ledger/diff/{a}/{b}.
// Both workflows must belong to the caller.
func (h *Handlers) DiffWorkflows(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	aID, err := uuid.Parse(r.PathValue("a"))
	if err != nil {
		h.httpError(w, "Invalid workflow id", api.CodeValidation, http.StatusBadRequest)
		return
	}
	bID, err := uuid.Parse(r.PathValue("b"))
	if err != nil {
		h.httpError(w, "Invalid workflow id", api.CodeValidation, http.StatusBadRequest)
		return
	}

	tenantID, ok := middleware.TenantIDFromContext(ctx)
	if !ok {
		h.httpError(w, "Unauthorized", api.CodeInternal, http.StatusUnauthorized)
		return
	}
	for _, id := range []uuid.UUID{aID, bID} {
		snap, err := h.core.WorkflowStatus(id)
		if err != nil || snap.TenantID != tenantID {
			h.httpError(w, "Workflow not found", api.CodeNotFound, http.StatusNotFound)
			return
		}
	}

	divs, err := h.core.DiffWorkflows(ctx, aID, bID)
	if err != nil {
		h.coreError(w, err)
		return
	}

	resp := api.DiffResponse{Identical: len(divs) == 0}
	for _, d := range divs {
		dv := api.DivergenceView{Position: d.Position}
		if d.A != nil {
			v := stepView(*d.A)
			dv.A = &v
		}
		if d.B != nil {
			v := stepView(*d.B)
			dv.B = &v
		}
		resp.Divergences = append(resp.Divergences, dv)
	}
	h.respondJson(w, http.StatusOK, resp)
}

// ListLedgerEntries handles GET /ledger/entries?from=&to=.
// It returns the caller's raw chain entries for external audit.
func (h *Handlers) ListLedgerEntries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantID, ok := middleware.TenantIDFromContext(ctx)
	if !ok {
		h.httpError(w, "Unauthorized", api.CodeInternal, http.StatusUnauthorized)
		return
	}

	fromSeq, err := seqParam(r, "from")
	if err != nil {
		h.httpError(w, "Invalid from parameter", api.CodeValidation, http.StatusBadRequest)
		return
	}
	toSeq, err := seqParam(r, "to")
	if err != nil {
		h.httpError(w, "Invalid to parameter", api.CodeValidation, http.StatusBadRequest)
		return
	}

	entries, err := h.core.ListLedgerEntries(ctx, tenantID, fromSeq, toSeq)
	if err != nil {
		h.coreError(w, err)
		return
	}

	resp := api.ListEntriesResponse{Entries: make([]api.LedgerEntryView, 0, len(entries))}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, api.LedgerEntryView{
			Seq:         e.Seq,
			Timestamp:   e.Timestamp,
			WorkflowID:  e.WorkflowID.String(),
			NodeID:      e.NodeID,
			Attempt:     e.Attempt,
			From:        e.FromState,
			To:          e.ToState,
			Reason:      e.Reason,
			PayloadHash: e.PayloadHash,
			PrevHash:    e.PrevHash,
			Signature:   e.Signature,
		})
	}
	h.respondJson(w, http.StatusOK, resp)
}

// InternalAuditLedger handles GET /internal/ledger/audit.
// It verifies every tenant chain; operators run this on a schedule.
func (h *Handlers) InternalAuditLedger(w http.ResponseWriter, r *http.Request) {
	results, err := h.core.AuditLedger(r.Context())
	if err != nil {
		h.coreError(w, err)
		return
	}
	views := make([]api.VerifyLedgerResponse, 0, len(results))
	for _, res := range results {
		views = append(views, verifyView(res))
	}
	h.respondJson(w, http.StatusOK, views)
}

func seqParam(r *http.Request, name string) (uint64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseUint(raw, 10, 64)
}

func verifyView(res ledger.VerifyResult) api.VerifyLedgerResponse {
	return api.VerifyLedgerResponse{
		TenantID:    res.TenantID.String(),
		Valid:       res.Valid,
		Checked:     res.Checked,
		CorruptedAt: res.CorruptedAt,
		Reason:      res.Reason,
	}
}

func stepViews(steps []ledger.Step) []api.StepView {
	out := make([]api.StepView, 0, len(steps))
	for _, s := range steps {
		out = append(out, stepView(s))
	}
	return out
}

func stepView(s ledger.Step) api.StepView {
	return api.StepView{
		Seq:     s.Seq,
		NodeID:  s.NodeID,
		Attempt: s.Attempt,
		From:    s.From,
		To:      s.To,
		Reason:  s.Reason,
	}
}
