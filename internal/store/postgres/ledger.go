package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"flowplane/internal/ledger"
)

// The ledger tables are append-only by contract; nothing in this file updates
// or deletes rows. Verification re-derives hashes from stored columns, so a
// row mutated out of band is detected, not repaired.

func (s *Store) AppendEntry(ctx context.Context, e *ledger.Entry) error {
	query := `
		INSERT INTO ledger_entries (id, tenant_id, seq, ts, workflow_id, node_id, attempt, from_state, to_state, reason, payload, payload_hash, prev_hash, signature)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := s.db.ExecContext(ctx, query,
		e.ID, e.TenantID, e.Seq, e.Timestamp, e.WorkflowID, e.NodeID,
		e.Attempt, e.FromState, e.ToState, e.Reason,
		e.Payload, e.PayloadHash, e.PrevHash, e.Signature,
	)
	return err
}

const entryColumns = "id, tenant_id, seq, ts, workflow_id, node_id, attempt, from_state, to_state, reason, payload, payload_hash, prev_hash, signature"

func scanEntry(rows *sql.Rows) (ledger.Entry, error) {
	var e ledger.Entry
	err := rows.Scan(
		&e.ID, &e.TenantID, &e.Seq, &e.Timestamp, &e.WorkflowID, &e.NodeID,
		&e.Attempt, &e.FromState, &e.ToState, &e.Reason,
		&e.Payload, &e.PayloadHash, &e.PrevHash, &e.Signature,
	)
	return e, err
}

func (s *Store) EntriesByTenant(ctx context.Context, tenantID uuid.UUID, fromSeq, toSeq uint64) ([]ledger.Entry, error) {
	query := "SELECT " + entryColumns + " FROM ledger_entries WHERE tenant_id = $1 AND seq >= $2"
	args := []interface{}{tenantID, fromSeq}
	if toSeq > 0 {
		query += " AND seq <= $3"
		args = append(args, toSeq)
	}
	query += " ORDER BY seq ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) EntriesByWorkflow(ctx context.Context, workflowID uuid.UUID) ([]ledger.Entry, error) {
	query := "SELECT " + entryColumns + " FROM ledger_entries WHERE workflow_id = $1 ORDER BY seq ASC"

	rows, err := s.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) LastEntry(ctx context.Context, tenantID uuid.UUID) (*ledger.Entry, error) {
	query := "SELECT " + entryColumns + " FROM ledger_entries WHERE tenant_id = $1 ORDER BY seq DESC LIMIT 1"

	var e ledger.Entry
	err := s.db.QueryRowContext(ctx, query, tenantID).Scan(
		&e.ID, &e.TenantID, &e.Seq, &e.Timestamp, &e.WorkflowID, &e.NodeID,
		&e.Attempt, &e.FromState, &e.ToState, &e.Reason,
		&e.Payload, &e.PayloadHash, &e.PrevHash, &e.Signature,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) AppendBlock(ctx context.Context, b *ledger.Block) error {
	query := `
		INSERT INTO ledger_blocks (id, tenant_id, idx, from_seq, to_seq, merkle_root, prev_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		b.ID, b.TenantID, b.Index, b.FromSeq, b.ToSeq, b.MerkleRoot, b.PrevHash, b.CreatedAt,
	)
	return err
}

func (s *Store) LastBlock(ctx context.Context, tenantID uuid.UUID) (*ledger.Block, error) {
	query := "SELECT id, tenant_id, idx, from_seq, to_seq, merkle_root, prev_hash, created_at FROM ledger_blocks WHERE tenant_id = $1 ORDER BY idx DESC LIMIT 1"

	var b ledger.Block
	err := s.db.QueryRowContext(ctx, query, tenantID).Scan(
		&b.ID, &b.TenantID, &b.Index, &b.FromSeq, &b.ToSeq, &b.MerkleRoot, &b.PrevHash, &b.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *Store) BlocksByTenant(ctx context.Context, tenantID uuid.UUID) ([]ledger.Block, error) {
	query := "SELECT id, tenant_id, idx, from_seq, to_seq, merkle_root, prev_hash, created_at FROM ledger_blocks WHERE tenant_id = $1 ORDER BY idx ASC"

	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Block
	for rows.Next() {
		var b ledger.Block
		if err := rows.Scan(
			&b.ID, &b.TenantID, &b.Index, &b.FromSeq, &b.ToSeq, &b.MerkleRoot, &b.PrevHash, &b.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) TenantsWithEntries(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT tenant_id FROM ledger_entries ORDER BY tenant_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
