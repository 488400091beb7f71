// internal/auditor/store.go
package auditor

import (
	"context"
	"fmt"
	"sync"
)

// Store persists audit records. Append-only: no update or delete is exposed.
type Store interface {
	Append(ctx context.Context, record *Record) error
	Get(ctx context.Context, auditID string) (*Record, error)
}

// MemoryStore keeps records in memory, for tests and single-process runs
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

// Append stores a record, refusing to overwrite an existing ID
func (s *MemoryStore) Append(_ context.Context, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[record.AuditID]; exists {
		return fmt.Errorf("store: audit record %s already exists", record.AuditID)
	}
	stored := *record
	stored.Manifest = append([]byte(nil), record.Manifest...)
	s.records[record.AuditID] = &stored
	return nil
}

// Get returns a copy of the record with the given ID
func (s *MemoryStore) Get(_ context.Context, auditID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[auditID]
	if !ok {
		return nil, fmt.Errorf("store: audit record %s not found", auditID)
	}
	out := *record
	out.Manifest = append([]byte(nil), record.Manifest...)
	return &out, nil
}
