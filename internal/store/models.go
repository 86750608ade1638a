// Package store contains the database layer for flowplane.
package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Tier is a tenant's service class. It sets the defaults for scheduling
// weight, queue depth and budget when a tenant is created without explicit
// overrides.
type Tier string

const (
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
	TierInternal   Tier = "internal"
)

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierPro, TierEnterprise, TierInternal:
		return true
	}
	return false
}

// Defaults returns the stock quotas for a tier: scheduling weight, queue
// depth limit, budget limit and API rate limit.
func (t Tier) Defaults() (weight, queueLimit int, budgetLimit float64, rateLimit float64, rateBurst int) {
	switch t {
	case TierPro:
		return 3, 512, 500, 50, 100
	case TierEnterprise:
		return 8, 2048, 5000, 200, 400
	case TierInternal:
		return 10, 4096, 0, 500, 1000 // zero budget limit means untracked
	default: // free
		return 1, 128, 50, 10, 20
	}
}

// Tenant is one isolated customer of the plane. All workflow, ledger and
// scheduling state is scoped by TenantID.
type Tenant struct {
	ID          uuid.UUID
	Name        string
	Tier        Tier
	Weight      int
	QueueLimit  int
	BudgetLimit float64
	RateLimit   float64
	RateBurst   int
	CreatedAt   time.Time
}

// WorkflowRecord is the durable snapshot of a workflow instance: the graph it
// was created from plus the coordinator's last persisted state. Progress
// recovery after a restart starts from here and the ledger.
type WorkflowRecord struct {
	ID                   uuid.UUID
	TenantID             uuid.UUID
	State                string
	Graph                json.RawMessage
	Snapshot             json.RawMessage
	PartiallyCompensated bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// TaskAttempt is one recorded execution attempt of a node, kept for the
// operator-facing attempt history.
type TaskAttempt struct {
	ID         int64
	WorkflowID uuid.UUID
	TenantID   uuid.UUID
	NodeID     string
	Attempt    int
	Outcome    string
	Priority   int
	StartedAt  time.Time
	EndedAt    *time.Time
}
