package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"flowplane/internal/store"
)

func TestCreateWorkflow(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	wf := &store.WorkflowRecord{
		ID:        uuid.New(),
		TenantID:  uuid.New(),
		State:     "RUNNING",
		Graph:     json.RawMessage(`{"nodes":[]}`),
		Snapshot:  json.RawMessage(`{}`),
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	mock.ExpectExec(`INSERT INTO workflows`).
		WithArgs(wf.ID, wf.TenantID, wf.State, []byte(wf.Graph), []byte(wf.Snapshot),
			wf.PartiallyCompensated, wf.CreatedAt, wf.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.CreateWorkflow(context.Background(), nil, wf); err != nil {
		t.Fatalf("CreateWorkflow failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestSaveSnapshot_Upserts(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	wf := &store.WorkflowRecord{
		ID:                   uuid.New(),
		TenantID:             uuid.New(),
		State:                "ROLLED_BACK",
		Graph:                json.RawMessage(`{"nodes":[]}`),
		Snapshot:             json.RawMessage(`{"state":"ROLLED_BACK"}`),
		PartiallyCompensated: true,
		CreatedAt:            time.Now().UTC(),
		UpdatedAt:            time.Now().UTC(),
	}

	mock.ExpectExec(`INSERT INTO workflows .* ON CONFLICT \(id\) DO UPDATE`).
		WithArgs(wf.ID, wf.TenantID, wf.State, []byte(wf.Graph), []byte(wf.Snapshot),
			wf.PartiallyCompensated, wf.CreatedAt, wf.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.SaveSnapshot(context.Background(), nil, wf); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestGetWorkflowByID_Success(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	id := uuid.New()
	tenantID := uuid.New()
	now := time.Now().Truncate(time.Second)

	rows := sqlmock.NewRows([]string{"id", "tenant_id", "state", "graph", "snapshot", "partially_compensated", "created_at", "updated_at"}).
		AddRow(id, tenantID, "COMMITTED", []byte(`{"nodes":[]}`), []byte(`{}`), false, now, now)

	mock.ExpectQuery(`SELECT .* FROM workflows WHERE id = \$1`).
		WithArgs(id).
		WillReturnRows(rows)

	wf, err := s.GetWorkflowByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetWorkflowByID failed: %v", err)
	}
	if wf.State != "COMMITTED" {
		t.Errorf("got state %s, want COMMITTED", wf.State)
	}
	if wf.TenantID != tenantID {
		t.Errorf("got tenant %v, want %v", wf.TenantID, tenantID)
	}
}

func TestGetWorkflowByID_NotFound(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	id := uuid.New()
	mock.ExpectQuery(`SELECT .* FROM workflows WHERE id = \$1`).
		WithArgs(id).
		WillReturnError(sql.ErrNoRows)

	wf, err := s.GetWorkflowByID(context.Background(), id)
	if err != sql.ErrNoRows {
		t.Errorf("expected sql.ErrNoRows, got %v", err)
	}
	if wf != nil {
		t.Error("expected nil workflow")
	}
}

func TestListWorkflowsByState(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	tenantID := uuid.New()
	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "tenant_id", "state", "graph", "snapshot", "partially_compensated", "created_at", "updated_at"}).
		AddRow(uuid.New(), tenantID, "RUNNING", []byte(`{}`), []byte(`{}`), false, now, now).
		AddRow(uuid.New(), tenantID, "HUMAN_REVIEW", []byte(`{}`), []byte(`{}`), false, now, now)

	mock.ExpectQuery(`SELECT .* FROM workflows`).
		WillReturnRows(rows)

	wfs, err := s.ListWorkflowsByState(context.Background(), tenantID, []string{"RUNNING", "HUMAN_REVIEW"}, 10)
	if err != nil {
		t.Fatalf("ListWorkflowsByState failed: %v", err)
	}
	if len(wfs) != 2 {
		t.Fatalf("got %d workflows, want 2", len(wfs))
	}
}

func TestRecordAttempt(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	ended := time.Now().UTC()
	att := &store.TaskAttempt{
		WorkflowID: uuid.New(),
		TenantID:   uuid.New(),
		NodeID:     "deploy-service",
		Attempt:    2,
		Outcome:    "success",
		Priority:   1,
		StartedAt:  ended.Add(-time.Second),
		EndedAt:    &ended,
	}

	mock.ExpectExec(`INSERT INTO task_attempts`).
		WithArgs(att.WorkflowID, att.TenantID, att.NodeID, att.Attempt,
			att.Outcome, att.Priority, att.StartedAt, att.EndedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := s.RecordAttempt(context.Background(), nil, att); err != nil {
		t.Fatalf("RecordAttempt failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestListAttempts(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	wfID := uuid.New()
	tenantID := uuid.New()
	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "workflow_id", "tenant_id", "node_id", "attempt", "outcome", "priority", "started_at", "ended_at"}).
		AddRow(1, wfID, tenantID, "migrate-schema", 1, "failure", 1, now, now).
		AddRow(2, wfID, tenantID, "migrate-schema", 2, "success", 1, now, now)

	mock.ExpectQuery(`SELECT .* FROM task_attempts`).
		WithArgs(wfID).
		WillReturnRows(rows)

	atts, err := s.ListAttempts(context.Background(), wfID)
	if err != nil {
		t.Fatalf("ListAttempts failed: %v", err)
	}
	if len(atts) != 2 {
		t.Fatalf("got %d attempts, want 2", len(atts))
	}
	if atts[1].Attempt != 2 || atts[1].Outcome != "success" {
		t.Errorf("unexpected second attempt: %+v", atts[1])
	}
}
