package postgres

import (
	"context"

	"github.com/google/uuid"

	"flowplane/internal/store"
)

func (s *Store) CreateTenant(ctx context.Context, tenant *store.Tenant, hashedKey string) error {
	query := `
		INSERT INTO tenants (id, name, tier, api_key_hash, weight, queue_limit, budget_limit, rate_limit, rate_burst, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := s.db.ExecContext(ctx, query,
		tenant.ID,
		tenant.Name,
		tenant.Tier,
		hashedKey,
		tenant.Weight,
		tenant.QueueLimit,
		tenant.BudgetLimit,
		tenant.RateLimit,
		tenant.RateBurst,
		tenant.CreatedAt,
	)
	return err
}

func (s *Store) GetTenantByID(ctx context.Context, id uuid.UUID) (*store.Tenant, error) {
	query := "SELECT id, name, tier, weight, queue_limit, budget_limit, rate_limit, rate_burst, created_at FROM tenants WHERE id = $1"

	var t store.Tenant

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&t.ID,
		&t.Name,
		&t.Tier,
		&t.Weight,
		&t.QueueLimit,
		&t.BudgetLimit,
		&t.RateLimit,
		&t.RateBurst,
		&t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &t, nil
}

func (s *Store) GetTenantByAPIKeyHash(ctx context.Context, hash string) (*store.Tenant, error) {
	query := "SELECT id, name, tier, weight, queue_limit, budget_limit, rate_limit, rate_burst, created_at FROM tenants WHERE api_key_hash = $1"

	var t store.Tenant

	err := s.db.QueryRowContext(ctx, query, hash).Scan(
		&t.ID,
		&t.Name,
		&t.Tier,
		&t.Weight,
		&t.QueueLimit,
		&t.BudgetLimit,
		&t.RateLimit,
		&t.RateBurst,
		&t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &t, nil
}

func (s *Store) ListTenants(ctx context.Context) ([]store.Tenant, error) {
	query := "SELECT id, name, tier, weight, queue_limit, budget_limit, rate_limit, rate_burst, created_at FROM tenants ORDER BY created_at ASC"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []store.Tenant
	for rows.Next() {
		var t store.Tenant
		if err := rows.Scan(
			&t.ID, &t.Name, &t.Tier, &t.Weight, &t.QueueLimit,
			&t.BudgetLimit, &t.RateLimit, &t.RateBurst, &t.CreatedAt,
		); err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}
