package ledger

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemStore is an in-memory Store. It backs tests and the simulation read
// path; production chains live in postgres.
type MemStore struct {
	mu      sync.RWMutex
	entries map[uuid.UUID][]Entry // per tenant, append order
	blocks  map[uuid.UUID][]Block
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		entries: make(map[uuid.UUID][]Entry),
		blocks:  make(map[uuid.UUID][]Block),
	}
}

func (m *MemStore) AppendEntry(_ context.Context, e *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.TenantID] = append(m.entries[e.TenantID], *e)
	return nil
}

func (m *MemStore) EntriesByTenant(_ context.Context, tenantID uuid.UUID, fromSeq, toSeq uint64) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Entry
	for _, e := range m.entries[tenantID] {
		if e.Seq < fromSeq {
			continue
		}
		if toSeq > 0 && e.Seq > toSeq {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *MemStore) EntriesByWorkflow(_ context.Context, workflowID uuid.UUID) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Entry
	for _, tenant := range m.entries {
		for _, e := range tenant {
			if e.WorkflowID == workflowID {
				out = append(out, e)
			}
		}
	}
	return out, nil
}

func (m *MemStore) LastEntry(_ context.Context, tenantID uuid.UUID) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	chain := m.entries[tenantID]
	if len(chain) == 0 {
		return nil, nil
	}
	e := chain[len(chain)-1]
	return &e, nil
}

func (m *MemStore) AppendBlock(_ context.Context, b *Block) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks[b.TenantID] = append(m.blocks[b.TenantID], *b)
	return nil
}

func (m *MemStore) LastBlock(_ context.Context, tenantID uuid.UUID) (*Block, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	blocks := m.blocks[tenantID]
	if len(blocks) == 0 {
		return nil, nil
	}
	b := blocks[len(blocks)-1]
	return &b, nil
}

func (m *MemStore) BlocksByTenant(_ context.Context, tenantID uuid.UUID) ([]Block, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Block, len(m.blocks[tenantID]))
	copy(out, m.blocks[tenantID])
	return out, nil
}

func (m *MemStore) TenantsWithEntries(_ context.Context) ([]uuid.UUID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]uuid.UUID, 0, len(m.entries))
	for id := range m.entries {
		out = append(out, id)
	}
	return out, nil
}

// Tamper overwrites a stored entry in place. Test helper for corruption
// detection; a real store never mutates.
func (m *MemStore) Tamper(tenantID uuid.UUID, seq uint64, mutate func(*Entry)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	chain := m.entries[tenantID]
	for i := range chain {
		if chain[i].Seq == seq {
			mutate(&chain[i])
			return true
		}
	}
	return false
}
