package gate

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Budget thresholds as fractions of remaining budget.
const (
	alertThreshold   = 0.25
	degradeThreshold = 0.10
	killThreshold    = 0.0
)

// Admission is the budget gate's answer for one task.
type Admission struct {
	Admit bool
	// Degrade asks the executor to use a cheaper execution mode.
	Degrade bool
	// Alert flags that the tenant has crossed the alert threshold.
	Alert  bool
	Reason string
}

// BudgetGate admits tasks by estimated cost and exposes an async kill signal
// that fails every executing node of an overspent tenant.
type BudgetGate interface {
	Check(ctx context.Context, tenantID uuid.UUID, estimatedCost float64) (Admission, error)
	// Kills delivers tenant ids whose budget ran out mid-flight.
	Kills() <-chan uuid.UUID
	// Remaining returns the remaining budget fraction for policy evaluation.
	Remaining(tenantID uuid.UUID) float64
}

// TrackedBudget is the in-process BudgetGate: a per-tenant cost tracker with
// alert/degrade/kill thresholds.
type TrackedBudget struct {
	mu     sync.Mutex
	limits map[uuid.UUID]float64
	spent  map[uuid.UUID]float64
	kills  chan uuid.UUID
}

// NewTrackedBudget creates a gate with no tenants registered. Unregistered
// tenants are admitted unconditionally (no budget configured).
func NewTrackedBudget() *TrackedBudget {
	return &TrackedBudget{
		limits: make(map[uuid.UUID]float64),
		spent:  make(map[uuid.UUID]float64),
		kills:  make(chan uuid.UUID, 64),
	}
}

// SetLimit configures a tenant's budget.
func (b *TrackedBudget) SetLimit(tenantID uuid.UUID, limit float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.limits[tenantID] = limit
}

// Record adds actual spend for a tenant and fires the kill signal when the
// budget runs out.
func (b *TrackedBudget) Record(tenantID uuid.UUID, cost float64) {
	b.mu.Lock()
	limit, tracked := b.limits[tenantID]
	b.spent[tenantID] += cost
	exhausted := tracked && limit-b.spent[tenantID] <= killThreshold
	b.mu.Unlock()

	if exhausted {
		select {
		case b.kills <- tenantID:
		default:
			// Signal already pending; the consumer kills per tenant, not per event.
		}
	}
}

// Check admits the task if the estimated cost fits the remaining budget.
func (b *TrackedBudget) Check(_ context.Context, tenantID uuid.UUID, estimatedCost float64) (Admission, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	limit, tracked := b.limits[tenantID]
	if !tracked {
		return Admission{Admit: true}, nil
	}
	remaining := limit - b.spent[tenantID]
	if remaining-estimatedCost < killThreshold {
		return Admission{Admit: false, Reason: "budget exhausted"}, nil
	}
	frac := remaining / limit
	return Admission{
		Admit:   true,
		Degrade: frac <= degradeThreshold,
		Alert:   frac <= alertThreshold,
	}, nil
}

// Kills returns the async kill channel.
func (b *TrackedBudget) Kills() <-chan uuid.UUID {
	return b.kills
}

// Remaining returns the remaining budget fraction, 1.0 for untracked tenants.
func (b *TrackedBudget) Remaining(tenantID uuid.UUID) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	limit, tracked := b.limits[tenantID]
	if !tracked || limit <= 0 {
		return 1.0
	}
	frac := (limit - b.spent[tenantID]) / limit
	if frac < 0 {
		return 0
	}
	return frac
}
