// Package replay enforces single-use semantics on protocol values such as launch nonces.
package replay

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// Store marks (kind, value) pairs as consumed.
type Store interface {
	// Use marks (kind, value) as consumed for ttl and returns true if this is the
	// first use (or the previous entry expired). It returns false on reuse.
	Use(ctx context.Context, kind, value string, ttl time.Duration) (bool, error)
}

var errKindValue = errors.New("replay: kind and value are required")

// MemoryStore is a process-local Store. It is safe for concurrent use and
// purges expired entries opportunistically on writes.
type MemoryStore struct {
	mu       sync.Mutex
	entries  map[string]time.Time
	useCount uint64
	purgeN   uint64
	now      func() time.Time
}

// NewMemoryStore creates an in-memory store that purges every purgeEvery calls
// to Use (default 1024 when purgeEvery <= 0).
func NewMemoryStore(purgeEvery int) *MemoryStore {
	if purgeEvery <= 0 {
		purgeEvery = 1024
	}
	return &MemoryStore{
		entries: make(map[string]time.Time, 1024),
		purgeN:  uint64(purgeEvery),
		now:     time.Now,
	}
}

func (m *MemoryStore) Use(_ context.Context, kind, value string, ttl time.Duration) (bool, error) {
	kind, value, err := normalize(kind, value)
	if err != nil {
		return false, err
	}
	now := m.now()
	k := kind + "|" + value

	m.mu.Lock()
	defer m.mu.Unlock()

	m.useCount++
	if m.useCount%m.purgeN == 0 {
		m.purgeLocked(now)
	}
	if until, ok := m.entries[k]; ok && until.After(now) {
		return false, nil
	}
	m.entries[k] = now.Add(ttl)
	return true, nil
}

// Len reports the number of tracked entries, expired or not.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *MemoryStore) purgeLocked(now time.Time) {
	for k, until := range m.entries {
		if !until.After(now) {
			delete(m.entries, k)
		}
	}
}

func normalize(kind, value string) (string, string, error) {
	kind = strings.TrimSpace(strings.ToLower(kind))
	value = strings.TrimSpace(value)
	if kind == "" || value == "" {
		return "", "", errKindValue
	}
	return kind, value, nil
}
