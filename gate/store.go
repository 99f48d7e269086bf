package gate

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// ApprovalStore is the approval ledger. The gate is its only mutator; every
// other component reads by identifier. Resolve must be an atomic per-id
// check-and-set so that duplicate deliveries of the same decision are no-ops
// even under concurrent callbacks.
type ApprovalStore interface {
	Create(ctx context.Context, rec ApprovalRecord) (string, error)
	Get(ctx context.Context, id string) (ApprovalRecord, bool, error)
	// Resolve transitions a pending record to the status for d and stamps
	// DecidedAt. It returns the record as stored afterwards and whether this
	// call performed the transition; an already-decided record is returned
	// unchanged with applied=false.
	Resolve(ctx context.Context, id string, d Decision, actor string) (ApprovalRecord, bool, error)
	// Latest returns the most recently resolved record, if any.
	Latest(ctx context.Context) (ApprovalRecord, bool, error)
}

// MemoryStore is the default in-process ledger. A durable store is a drop-in
// substitution as long as read-after-write holds per identifier (see Store in
// package db for the sqlite-backed one).
type MemoryStore struct {
	mu       sync.Mutex
	records  map[string]ApprovalRecord
	latestID string

	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]ApprovalRecord),
		now:     time.Now,
	}
}

func (s *MemoryStore) Create(ctx context.Context, rec ApprovalRecord) (string, error) {
	_ = ctx
	if s == nil {
		return "", fmt.Errorf("nil approval store")
	}
	if strings.TrimSpace(rec.ID) == "" {
		rec.ID = NewApprovalID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now().UTC()
	}
	if rec.Status == "" {
		rec.Status = StatusPending
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[rec.ID]; exists {
		return "", fmt.Errorf("approval already exists: %s", rec.ID)
	}
	s.records[rec.ID] = rec
	if rec.Decided() {
		s.latestID = rec.ID
	}
	return rec.ID, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (ApprovalRecord, bool, error) {
	_ = ctx
	if s == nil {
		return ApprovalRecord{}, false, fmt.Errorf("nil approval store")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return ApprovalRecord{}, false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	return rec, ok, nil
}

func (s *MemoryStore) Resolve(ctx context.Context, id string, d Decision, actor string) (ApprovalRecord, bool, error) {
	_ = ctx
	if s == nil {
		return ApprovalRecord{}, false, fmt.Errorf("nil approval store")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return ApprovalRecord{}, false, fmt.Errorf("missing approval id")
	}
	status, ok := StatusFor(d)
	if !ok {
		return ApprovalRecord{}, false, fmt.Errorf("invalid decision: %q", d)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, found := s.records[id]
	if !found {
		return ApprovalRecord{}, false, ErrNotFound
	}
	if rec.Decided() {
		// First decision wins; duplicate clicks and replayed callbacks land here.
		return rec, false, nil
	}

	now := s.now().UTC()
	rec.Status = status
	rec.Actor = strings.TrimSpace(actor)
	rec.DecidedAt = &now
	s.records[id] = rec
	s.latestID = id
	return rec, true, nil
}

func (s *MemoryStore) Latest(ctx context.Context) (ApprovalRecord, bool, error) {
	_ = ctx
	if s == nil {
		return ApprovalRecord{}, false, fmt.Errorf("nil approval store")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latestID == "" {
		return ApprovalRecord{}, false, nil
	}
	rec, ok := s.records[s.latestID]
	return rec, ok, nil
}
