// Package scheduler decides which ready node a free execution slot runs next.
//
// Each tenant owns four FIFO queues, one per priority class. Selection is
// weighted round-robin across tenants with work queued; within a tenant's
// turn P0 strictly precedes P1, P1 precedes P2, P2 precedes P3, and equal
// priorities break ties by insertion order. Given the same queue contents,
// weights and clock, selection is fully deterministic.
package scheduler

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"flowplane/internal/dag"
)

// ErrCapacityExceeded is returned by Enqueue when the tenant's queue is at
// its depth limit. Callers must defer or shed load; the scheduler does not
// queue past the limit.
var ErrCapacityExceeded = errors.New("scheduler: tenant queue capacity exceeded")

// Item is one ready node waiting for a slot.
type Item struct {
	NodeID     string
	WorkflowID uuid.UUID
	TenantID   uuid.UUID
	Priority   dag.Priority // current class, may have been escalated
	Submitted  dag.Priority // class at enqueue time
	EnqueuedAt time.Time
	seq        uint64
}

// EventKind classifies scheduler events surfaced to the observer.
type EventKind string

const (
	EventEscalated EventKind = "escalated"
	EventLoadShed  EventKind = "load_shed"
)

// Event is emitted on starvation escalation and load shedding.
type Event struct {
	Kind     EventKind
	Item     Item
	NewClass dag.Priority // set for EventEscalated
}

// Config tunes fairness, backpressure and shedding behavior.
type Config struct {
	// DefaultTenantLimit caps queue depth for tenants without an explicit limit.
	DefaultTenantLimit int
	// EscalationSLA maps a priority class to the wait beyond which an item is
	// bumped one class. Zero disables escalation for that class.
	EscalationSLA map[dag.Priority]time.Duration
	// ShedCeiling is the total queued-item count above which the scheduler is
	// considered overloaded. Zero disables shedding.
	ShedCeiling int
	// ShedAfter is how long the overload must be sustained before items are
	// dropped.
	ShedAfter time.Duration
	// OnEvent receives escalation and shed events. May be nil.
	OnEvent func(Event)
	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

type tenantState struct {
	id      uuid.UUID
	weight  int
	limit   int
	classes [4][]*Item
	credits int
	depth   int
}

// Scheduler holds per-tenant priority queues. Safe for concurrent use.
type Scheduler struct {
	mu       sync.Mutex
	cfg      Config
	log      *slog.Logger
	tenants  map[uuid.UUID]*tenantState
	rotation []uuid.UUID // registration order, drives deterministic WRR
	cursor   int
	nextSeq  uint64
	total    int
	overAt   time.Time // when total depth first exceeded the ceiling; zero if not over
}

// New creates a scheduler. Tenants must be registered before they enqueue.
func New(cfg Config, log *slog.Logger) *Scheduler {
	if cfg.DefaultTenantLimit <= 0 {
		cfg.DefaultTenantLimit = 256
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		cfg:     cfg,
		log:     log,
		tenants: make(map[uuid.UUID]*tenantState),
	}
}

// RegisterTenant adds a tenant to the rotation with the given fairness weight
// and queue depth limit. Re-registering updates weight and limit in place.
func (s *Scheduler) RegisterTenant(id uuid.UUID, weight, limit int) {
	if weight <= 0 {
		weight = 1
	}
	if limit <= 0 {
		limit = s.cfg.DefaultTenantLimit
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tenants[id]; ok {
		t.weight = weight
		t.limit = limit
		return
	}
	s.tenants[id] = &tenantState{id: id, weight: weight, limit: limit, credits: weight}
	s.rotation = append(s.rotation, id)
}

// Enqueue admits a ready node for its tenant. Returns ErrCapacityExceeded
// when the tenant queue is full (backpressure) and an error for unregistered
// tenants.
func (s *Scheduler) Enqueue(nodeID string, workflowID, tenantID uuid.UUID, prio dag.Priority) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tenants[tenantID]
	if !ok {
		return fmt.Errorf("scheduler: tenant %s not registered", tenantID)
	}
	if t.depth >= t.limit {
		return ErrCapacityExceeded
	}

	s.nextSeq++
	item := &Item{
		NodeID:     nodeID,
		WorkflowID: workflowID,
		TenantID:   tenantID,
		Priority:   prio,
		Submitted:  prio,
		EnqueuedAt: s.cfg.Now(),
		seq:        s.nextSeq,
	}
	t.classes[prio] = append(t.classes[prio], item)
	t.depth++
	s.total++
	s.checkOverload()
	return nil
}

// DequeueNext returns the next item to dispatch, or false when nothing is
// eligible or no capacity remains. Escalation and shedding sweeps run before
// selection so their effects are visible to the caller immediately.
func (s *Scheduler) DequeueNext(availableCapacity int) (Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if availableCapacity <= 0 || s.total == 0 {
		return Item{}, false
	}

	s.escalateStarved()
	s.shedIfOverloaded()
	if s.total == 0 {
		return Item{}, false
	}

	// Weighted round-robin. A full pass with no credits left anywhere starts
	// a fresh cycle; tenants with empty queues are skipped without consuming
	// a turn.
	for pass := 0; pass < 2; pass++ {
		n := len(s.rotation)
		for i := 0; i < n; i++ {
			idx := (s.cursor + i) % n
			t := s.tenants[s.rotation[idx]]
			if t.depth == 0 || t.credits <= 0 {
				continue
			}
			item := t.pop()
			t.credits--
			s.total--
			s.cursor = idx
			if t.credits == 0 {
				s.cursor = (idx + 1) % n
			}
			return *item, true
		}
		// All queued tenants are out of credits; start a new cycle.
		for _, id := range s.rotation {
			s.tenants[id].credits = s.tenants[id].weight
		}
	}
	return Item{}, false
}

// Cancel removes a queued node and reports whether it was found. Nodes
// already dispatched are unaffected.
func (s *Scheduler) Cancel(nodeID string, workflowID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.tenants {
		for c := range t.classes {
			for i, item := range t.classes[c] {
				if item.NodeID == nodeID && item.WorkflowID == workflowID {
					t.classes[c] = append(t.classes[c][:i], t.classes[c][i+1:]...)
					t.depth--
					s.total--
					return true
				}
			}
		}
	}
	return false
}

// Depth returns the total number of queued items across all tenants.
func (s *Scheduler) Depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// TenantDepth returns the queued-item count for one tenant.
func (s *Scheduler) TenantDepth(id uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tenants[id]; ok {
		return t.depth
	}
	return 0
}

// pop removes the highest-priority, oldest item. Caller holds the lock and
// guarantees depth > 0.
func (t *tenantState) pop() *Item {
	for c := range t.classes {
		if len(t.classes[c]) > 0 {
			item := t.classes[c][0]
			t.classes[c] = t.classes[c][1:]
			t.depth--
			return item
		}
	}
	return nil
}

// escalateStarved bumps items waiting past their class SLA one class up.
// One-directional: an item never moves back down. Caller holds the lock.
func (s *Scheduler) escalateStarved() {
	if len(s.cfg.EscalationSLA) == 0 {
		return
	}
	now := s.cfg.Now()
	for _, id := range s.rotation {
		t := s.tenants[id]
		// P0 cannot escalate; sweep P1..P3.
		for c := int(dag.P1); c <= int(dag.P3); c++ {
			sla := s.cfg.EscalationSLA[dag.Priority(c)]
			if sla <= 0 {
				continue
			}
			kept := t.classes[c][:0]
			for _, item := range t.classes[c] {
				if now.Sub(item.EnqueuedAt) > sla {
					item.Priority = item.Priority.Escalate()
					t.classes[item.Priority] = append(t.classes[item.Priority], item)
					s.log.Info("scheduler: starvation escalation",
						"node_id", item.NodeID, "from", dag.Priority(c).String(), "to", item.Priority.String())
					s.emit(Event{Kind: EventEscalated, Item: *item, NewClass: item.Priority})
					continue
				}
				kept = append(kept, item)
			}
			t.classes[c] = kept
		}
	}
}

// checkOverload stamps the moment total depth first crossed the ceiling.
// Caller holds the lock.
func (s *Scheduler) checkOverload() {
	if s.cfg.ShedCeiling <= 0 {
		return
	}
	if s.total > s.cfg.ShedCeiling {
		if s.overAt.IsZero() {
			s.overAt = s.cfg.Now()
		}
	} else {
		s.overAt = time.Time{}
	}
}

// shedIfOverloaded drops the lowest-priority items, newest first, once the
// overload has been sustained past ShedAfter. P0 items are never shed.
// Caller holds the lock.
func (s *Scheduler) shedIfOverloaded() {
	if s.cfg.ShedCeiling <= 0 || s.overAt.IsZero() {
		return
	}
	if s.cfg.Now().Sub(s.overAt) < s.cfg.ShedAfter {
		return
	}

	for c := int(dag.P3); c >= int(dag.P1) && s.total > s.cfg.ShedCeiling; c-- {
		for _, id := range s.rotation {
			t := s.tenants[id]
			for len(t.classes[c]) > 0 && s.total > s.cfg.ShedCeiling {
				last := len(t.classes[c]) - 1
				item := t.classes[c][last]
				t.classes[c] = t.classes[c][:last]
				t.depth--
				s.total--
				s.log.Warn("scheduler: load shed",
					"node_id", item.NodeID, "tenant_id", item.TenantID, "class", item.Priority.String())
				s.emit(Event{Kind: EventLoadShed, Item: *item})
			}
		}
	}
	s.overAt = time.Time{}
}

func (s *Scheduler) emit(ev Event) {
	if s.cfg.OnEvent != nil {
		s.cfg.OnEvent(ev)
	}
}
