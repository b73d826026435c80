package store

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/creditgate/creditgate/internal/core"
)

const driverMemory = "memory"

// MemoryStore keeps approvals in process memory. Nothing survives a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]core.ApprovalRecord
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]core.ApprovalRecord)}
}

func (m *MemoryStore) Driver() string { return driverMemory }

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) Ping(ctx context.Context) error {
	if m == nil {
		return ErrNotInitialized
	}
	return ctx.Err()
}

// Get returns the approval stored for identity, or nil when there is none.
func (m *MemoryStore) Get(ctx context.Context, identity string) (*core.ApprovalRecord, error) {
	if m == nil {
		return nil, ErrNotInitialized
	}
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil, errors.New("identity is required")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.records[identity]
	if !ok {
		return nil, nil
	}
	return &record, nil
}

// Put stores record unless identity already has one, and returns the stored
// record.
func (m *MemoryStore) Put(ctx context.Context, identity string, record core.ApprovalRecord) (*core.ApprovalRecord, error) {
	if m == nil {
		return nil, ErrNotInitialized
	}
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil, errors.New("identity is required")
	}
	if strings.TrimSpace(record.ID) == "" {
		return nil, errors.New("approval id is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.records[identity]; ok {
		return &existing, nil
	}
	record.CreatedAt = record.CreatedAt.UTC()
	m.records[identity] = record
	return &record, nil
}

func (m *MemoryStore) ListApprovals(ctx context.Context, q ApprovalQuery) ([]core.ApprovalEntry, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := []core.ApprovalEntry{}
	for identity, record := range m.records {
		if q.Matches(identity) {
			entries = append(entries, core.ApprovalEntry{Identity: identity, Record: record})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Identity < entries[j].Identity })
	return entries, nil
}

func (m *MemoryStore) CountApprovals(ctx context.Context, q ApprovalQuery) (int, error) {
	entries, err := m.ListApprovals(ctx, q)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// DeleteApprovals removes matching approvals so the identities can apply again.
func (m *MemoryStore) DeleteApprovals(ctx context.Context, q ApprovalQuery) (int64, error) {
	if err := q.Validate(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var deleted int64
	for identity := range m.records {
		if q.Matches(identity) {
			delete(m.records, identity)
			deleted++
		}
	}
	return deleted, nil
}
