package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

// DBTransaction defines the methods shared by *sql.DB and *sql.Tx
// This allows us to pass either a connection pool or an active transaction to the repository methods.
type DBTransaction interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type Tx interface {
	DBTransaction
	Commit() error
	Rollback() error
}

// TenantStore handles tenant records and API-key authentication lookups.
type TenantStore interface {
	// CreateTenant inserts a new tenant to the database
	CreateTenant(ctx context.Context, tenant *Tenant, hashedKey string) error

	// GetTenantByID returns a tenant by its ID.
	GetTenantByID(ctx context.Context, id uuid.UUID) (*Tenant, error)

	// GetTenantByAPIKeyHash returns a tenant by its API key hash.
	GetTenantByAPIKeyHash(ctx context.Context, hash string) (*Tenant, error)

	// ListTenants returns all tenants, oldest first. Used to rebuild the
	// scheduler rotation and budget limits at startup.
	ListTenants(ctx context.Context) ([]Tenant, error)
}

// WorkflowStore handles the persistence of workflow instances and their
// attempt history.
type WorkflowStore interface {
	// CreateWorkflow inserts the initial record for a submitted workflow.
	CreateWorkflow(ctx context.Context, tx DBTransaction, wf *WorkflowRecord) error

	// SaveSnapshot upserts the coordinator's current snapshot of a workflow.
	SaveSnapshot(ctx context.Context, tx DBTransaction, wf *WorkflowRecord) error

	// GetWorkflowByID returns a workflow by its ID.
	GetWorkflowByID(ctx context.Context, id uuid.UUID) (*WorkflowRecord, error)

	// ListWorkflowsByState returns workflows of a tenant in the given states,
	// newest first. An empty state list matches everything.
	ListWorkflowsByState(ctx context.Context, tenantID uuid.UUID, states []string, limit int) ([]WorkflowRecord, error)

	// RecordAttempt appends one execution attempt to the history.
	RecordAttempt(ctx context.Context, tx DBTransaction, att *TaskAttempt) error

	// ListAttempts returns the attempt history for a workflow, oldest first.
	ListAttempts(ctx context.Context, workflowID uuid.UUID) ([]TaskAttempt, error)
}
