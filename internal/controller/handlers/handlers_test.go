package handlers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"

	"github.com/google/uuid"

	"flowplane/internal/controller/middleware"
	"flowplane/internal/dag"
	"flowplane/internal/ledger"
	"flowplane/internal/saga"
	"flowplane/internal/store"
)

// mockCore implements Core for handler tests.
type mockCore struct {
	submitID  uuid.UUID
	submitErr error
	submitted *dag.Graph

	snapshot  saga.Snapshot
	statusErr error

	cancelErr error

	resumeErr      error
	resumeDecision string

	createTenantErr error
	createdTenant   *store.Tenant

	verifyRes ledger.VerifyResult
	verifyErr error

	auditRes []ledger.VerifyResult
	auditErr error

	history   *ledger.History
	replayErr error

	diffs   []ledger.Divergence
	diffErr error

	simSteps []ledger.Step
	simErr   error

	entries    []ledger.Entry
	entriesErr error
}

func (m *mockCore) SubmitWorkflow(ctx context.Context, tenantID uuid.UUID, g *dag.Graph) (uuid.UUID, error) {
	m.submitted = g
	return m.submitID, m.submitErr
}

func (m *mockCore) WorkflowStatus(workflowID uuid.UUID) (saga.Snapshot, error) {
	return m.snapshot, m.statusErr
}

func (m *mockCore) CancelWorkflow(ctx context.Context, workflowID uuid.UUID) error {
	return m.cancelErr
}

func (m *mockCore) ResumeWorkflow(ctx context.Context, workflowID uuid.UUID, decision string) error {
	m.resumeDecision = decision
	return m.resumeErr
}

func (m *mockCore) CreateTenant(ctx context.Context, t *store.Tenant, hashedKey string) error {
	m.createdTenant = t
	return m.createTenantErr
}

func (m *mockCore) VerifyLedger(ctx context.Context, tenantID uuid.UUID, fromSeq, toSeq uint64) (ledger.VerifyResult, error) {
	return m.verifyRes, m.verifyErr
}

func (m *mockCore) AuditLedger(ctx context.Context) ([]ledger.VerifyResult, error) {
	return m.auditRes, m.auditErr
}

func (m *mockCore) ReplayWorkflow(ctx context.Context, workflowID uuid.UUID) (*ledger.History, error) {
	return m.history, m.replayErr
}

func (m *mockCore) DiffWorkflows(ctx context.Context, a, b uuid.UUID) ([]ledger.Divergence, error) {
	return m.diffs, m.diffErr
}

func (m *mockCore) SimulateGraph(g *dag.Graph) ([]ledger.Step, error) {
	return m.simSteps, m.simErr
}

func (m *mockCore) ListLedgerEntries(ctx context.Context, tenantID uuid.UUID, fromSeq, toSeq uint64) ([]ledger.Entry, error) {
	return m.entries, m.entriesErr
}

type mockPinger struct {
	pingErr error
}

func (m *mockPinger) Ping(ctx context.Context) error { return m.pingErr }

// authedRequest builds a request carrying an authenticated tenant.
func authedRequest(method, target string, body io.Reader, tenantID uuid.UUID) *http.Request {
	req := httptest.NewRequest(method, target, body)
	tenant := &store.Tenant{ID: tenantID, Name: "Test Tenant", Tier: store.TierFree}
	return req.WithContext(middleware.NewContextWithTenant(req.Context(), tenant))
}
