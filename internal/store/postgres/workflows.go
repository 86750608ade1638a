package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"flowplane/internal/store"
)

// CreateWorkflow inserts the initial record for a submitted workflow.
func (s *Store) CreateWorkflow(ctx context.Context, tx store.DBTransaction, wf *store.WorkflowRecord) error {
	query := `
		INSERT INTO workflows (id, tenant_id, state, graph, snapshot, partially_compensated, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	executor := s.getExecutor(tx)
	_, err := executor.ExecContext(ctx, query,
		wf.ID,
		wf.TenantID,
		wf.State,
		wf.Graph,
		wf.Snapshot,
		wf.PartiallyCompensated,
		wf.CreatedAt,
		wf.UpdatedAt,
	)
	return err
}

// SaveSnapshot upserts the coordinator's current view of a workflow.
func (s *Store) SaveSnapshot(ctx context.Context, tx store.DBTransaction, wf *store.WorkflowRecord) error {
	query := `
		INSERT INTO workflows (id, tenant_id, state, graph, snapshot, partially_compensated, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE
		SET state = EXCLUDED.state,
		    snapshot = EXCLUDED.snapshot,
		    partially_compensated = EXCLUDED.partially_compensated,
		    updated_at = EXCLUDED.updated_at
	`
	executor := s.getExecutor(tx)
	_, err := executor.ExecContext(ctx, query,
		wf.ID,
		wf.TenantID,
		wf.State,
		wf.Graph,
		wf.Snapshot,
		wf.PartiallyCompensated,
		wf.CreatedAt,
		wf.UpdatedAt,
	)
	return err
}

func (s *Store) GetWorkflowByID(ctx context.Context, id uuid.UUID) (*store.WorkflowRecord, error) {
	query := "SELECT id, tenant_id, state, graph, snapshot, partially_compensated, created_at, updated_at FROM workflows WHERE id = $1"

	var wf store.WorkflowRecord
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&wf.ID, &wf.TenantID, &wf.State, &wf.Graph, &wf.Snapshot,
		&wf.PartiallyCompensated, &wf.CreatedAt, &wf.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &wf, nil
}

func (s *Store) ListWorkflowsByState(ctx context.Context, tenantID uuid.UUID, states []string, limit int) ([]store.WorkflowRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	where := []string{"tenant_id = $1"}
	args := []interface{}{tenantID}
	if len(states) > 0 {
		where = append(where, fmt.Sprintf("state = ANY($%d)", len(args)+1))
		args = append(args, pq.Array(states))
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT id, tenant_id, state, graph, snapshot, partially_compensated, created_at, updated_at
		FROM workflows
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d
	`, strings.Join(where, " AND "), len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.WorkflowRecord
	for rows.Next() {
		var wf store.WorkflowRecord
		if err := rows.Scan(
			&wf.ID, &wf.TenantID, &wf.State, &wf.Graph, &wf.Snapshot,
			&wf.PartiallyCompensated, &wf.CreatedAt, &wf.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, wf)
	}
	return out, rows.Err()
}

// RecordAttempt appends one execution attempt to the history.
func (s *Store) RecordAttempt(ctx context.Context, tx store.DBTransaction, att *store.TaskAttempt) error {
	query := `
		INSERT INTO task_attempts (workflow_id, tenant_id, node_id, attempt, outcome, priority, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	executor := s.getExecutor(tx)
	_, err := executor.ExecContext(ctx, query,
		att.WorkflowID,
		att.TenantID,
		att.NodeID,
		att.Attempt,
		att.Outcome,
		att.Priority,
		att.StartedAt,
		att.EndedAt,
	)
	return err
}

func (s *Store) ListAttempts(ctx context.Context, workflowID uuid.UUID) ([]store.TaskAttempt, error) {
	query := `
		SELECT id, workflow_id, tenant_id, node_id, attempt, outcome, priority, started_at, ended_at
		FROM task_attempts
		WHERE workflow_id = $1
		ORDER BY started_at ASC, id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.TaskAttempt
	for rows.Next() {
		var att store.TaskAttempt
		if err := rows.Scan(
			&att.ID, &att.WorkflowID, &att.TenantID, &att.NodeID,
			&att.Attempt, &att.Outcome, &att.Priority, &att.StartedAt, &att.EndedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, att)
	}
	return out, rows.Err()
}
