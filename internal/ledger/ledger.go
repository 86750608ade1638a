// Package ledger provides the append-only, hash-chained record of every
// workflow state transition. Chains are sharded per tenant: sequence numbers
// are monotonic within a tenant and cross-tenant ordering is not guaranteed.
// A cross-tenant audit walks every shard (see Audit).
package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// GenesisHash is the previous-entry hash of the first entry in every chain.
var GenesisHash = strings.Repeat("0", 64)

// ErrWriteFailure wraps storage failures on append. A lost transition is a
// data-loss incident; callers must block progress until the append succeeds.
var ErrWriteFailure = errors.New("ledger: write failure")

// Transition describes one state change to be recorded.
type Transition struct {
	WorkflowID uuid.UUID       `json:"workflow_id"`
	NodeID     string          `json:"node_id,omitempty"` // empty for workflow-level transitions
	Attempt    int             `json:"attempt,omitempty"`
	From       string          `json:"from"`
	To         string          `json:"to"`
	Reason     string          `json:"reason,omitempty"`
	Detail     json.RawMessage `json:"detail,omitempty"`
}

// Entry is one immutable link in a tenant's chain.
type Entry struct {
	ID          uuid.UUID       `json:"id"`
	TenantID    uuid.UUID       `json:"tenant_id"`
	Seq         uint64          `json:"seq"` // monotonic per tenant, starts at 1
	Timestamp   time.Time       `json:"timestamp"`
	WorkflowID  uuid.UUID       `json:"workflow_id"`
	NodeID      string          `json:"node_id,omitempty"`
	Attempt     int             `json:"attempt,omitempty"`
	FromState   string          `json:"from_state"`
	ToState     string          `json:"to_state"`
	Reason      string          `json:"reason,omitempty"`
	Payload     json.RawMessage `json:"payload"`
	PayloadHash string          `json:"payload_hash"`
	PrevHash    string          `json:"prev_hash"`
	Signature   string          `json:"signature"`
}

// CanonicalString is the digest input for hashing and signing:
// {id}|{seq}|{payload_hash}|{prev_hash}.
func (e *Entry) CanonicalString() string {
	return fmt.Sprintf("%s|%d|%s|%s", e.ID, e.Seq, e.PayloadHash, e.PrevHash)
}

// Hash returns the SHA-256 of the canonical string; the next entry chains to it.
func (e *Entry) Hash() string {
	sum := sha256.Sum256([]byte(e.CanonicalString()))
	return hex.EncodeToString(sum[:])
}

// HashPayload returns the SHA-256 hex digest of raw payload bytes.
func HashPayload(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Block seals a batch of entries under a Merkle root and chains to the prior
// block by hash.
type Block struct {
	ID         uuid.UUID `json:"id"`
	TenantID   uuid.UUID `json:"tenant_id"`
	Index      uint64    `json:"index"` // starts at 1
	FromSeq    uint64    `json:"from_seq"`
	ToSeq      uint64    `json:"to_seq"`
	MerkleRoot string    `json:"merkle_root"`
	PrevHash   string    `json:"prev_hash"`
	CreatedAt  time.Time `json:"created_at"`
}

// CanonicalString is the digest input for the block hash.
func (b *Block) CanonicalString() string {
	return fmt.Sprintf("%s|%d|%d|%d|%s|%s", b.ID, b.Index, b.FromSeq, b.ToSeq, b.MerkleRoot, b.PrevHash)
}

// Hash returns the SHA-256 of the canonical string.
func (b *Block) Hash() string {
	sum := sha256.Sum256([]byte(b.CanonicalString()))
	return hex.EncodeToString(sum[:])
}

// Store is the persistence boundary for chains. Implementations must preserve
// append order and keep rows independently re-verifiable.
type Store interface {
	AppendEntry(ctx context.Context, e *Entry) error
	// EntriesByTenant returns entries with fromSeq <= seq <= toSeq ascending.
	// toSeq == 0 means no upper bound.
	EntriesByTenant(ctx context.Context, tenantID uuid.UUID, fromSeq, toSeq uint64) ([]Entry, error)
	EntriesByWorkflow(ctx context.Context, workflowID uuid.UUID) ([]Entry, error)
	LastEntry(ctx context.Context, tenantID uuid.UUID) (*Entry, error) // nil when chain is empty
	AppendBlock(ctx context.Context, b *Block) error
	LastBlock(ctx context.Context, tenantID uuid.UUID) (*Block, error) // nil when no block sealed yet
	BlocksByTenant(ctx context.Context, tenantID uuid.UUID) ([]Block, error)
	TenantsWithEntries(ctx context.Context) ([]uuid.UUID, error)
}

// Ledger appends transitions to per-tenant chains and seals blocks.
type Ledger struct {
	store     Store
	signer    *Signer
	blockSize uint64
	now       func() time.Time

	mu     sync.Mutex
	shards map[uuid.UUID]*shard
}

type shard struct {
	mu       sync.Mutex
	lastSeq  uint64
	lastHash string
	loaded   bool
}

// Option tweaks ledger construction.
type Option func(*Ledger)

// WithBlockSize sets how many entries a sealed block spans. Default 64.
func WithBlockSize(n uint64) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.blockSize = n
		}
	}
}

// WithClock injects the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New creates a ledger over the given store, signing every entry.
func New(store Store, signer *Signer, opts ...Option) *Ledger {
	l := &Ledger{
		store:     store,
		signer:    signer,
		blockSize: 64,
		now:       time.Now,
		shards:    make(map[uuid.UUID]*shard),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) shardFor(tenantID uuid.UUID) *shard {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.shards[tenantID]
	if !ok {
		s = &shard{}
		l.shards[tenantID] = s
	}
	return s
}

// Append records one transition for a tenant. Concurrent appends for the same
// tenant are serialized; an acknowledged entry is immutable and keeps its
// chain position. Storage failures are surfaced as ErrWriteFailure and must
// block the caller's progress.
func (l *Ledger) Append(ctx context.Context, tenantID uuid.UUID, t Transition) (*Entry, error) {
	s := l.shardFor(tenantID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		last, err := l.store.LastEntry(ctx, tenantID)
		if err != nil {
			return nil, fmt.Errorf("%w: load chain head: %v", ErrWriteFailure, err)
		}
		if last != nil {
			s.lastSeq = last.Seq
			s.lastHash = last.Hash()
		} else {
			s.lastHash = GenesisHash
		}
		s.loaded = true
	}

	payload, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("ledger: marshal transition: %w", err)
	}

	e := &Entry{
		ID:          uuid.New(),
		TenantID:    tenantID,
		Seq:         s.lastSeq + 1,
		Timestamp:   l.now().UTC(),
		WorkflowID:  t.WorkflowID,
		NodeID:      t.NodeID,
		Attempt:     t.Attempt,
		FromState:   t.From,
		ToState:     t.To,
		Reason:      t.Reason,
		Payload:     payload,
		PayloadHash: HashPayload(payload),
		PrevHash:    s.lastHash,
	}
	e.Signature = l.signer.Sign(e.CanonicalString())

	if err := l.store.AppendEntry(ctx, e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWriteFailure, err)
	}
	s.lastSeq = e.Seq
	s.lastHash = e.Hash()

	if e.Seq%l.blockSize == 0 {
		if err := l.sealBlock(ctx, tenantID, e.Seq); err != nil {
			// The entries are durable; block sealing retries on the next boundary.
			return e, fmt.Errorf("%w: seal block: %v", ErrWriteFailure, err)
		}
	}
	return e, nil
}

// sealBlock binds the last blockSize entries under a Merkle root.
// Caller holds the shard lock.
func (l *Ledger) sealBlock(ctx context.Context, tenantID uuid.UUID, toSeq uint64) error {
	fromSeq := toSeq - l.blockSize + 1
	entries, err := l.store.EntriesByTenant(ctx, tenantID, fromSeq, toSeq)
	if err != nil {
		return err
	}
	hashes := make([]string, len(entries))
	for i := range entries {
		hashes[i] = entries[i].Hash()
	}

	prevHash := GenesisHash
	var index uint64 = 1
	if last, err := l.store.LastBlock(ctx, tenantID); err != nil {
		return err
	} else if last != nil {
		prevHash = last.Hash()
		index = last.Index + 1
	}

	return l.store.AppendBlock(ctx, &Block{
		ID:         uuid.New(),
		TenantID:   tenantID,
		Index:      index,
		FromSeq:    fromSeq,
		ToSeq:      toSeq,
		MerkleRoot: MerkleRoot(hashes),
		PrevHash:   prevHash,
		CreatedAt:  l.now().UTC(),
	})
}
