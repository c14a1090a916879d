package metadata

import (
	"context"
	"sync"
	"time"

	"github.com/fleetvis/markerpipe/pkg/core"
)

// MemorySource keeps entity records in memory. Used in tests and in
// deployments where the backend pushes the full entity list on
// connect.
type MemorySource struct {
	mu      sync.RWMutex
	records map[core.EntityID]core.EntityRecord
}

// NewMemorySource creates an empty in-memory metadata source.
func NewMemorySource() *MemorySource {
	return &MemorySource{
		records: make(map[core.EntityID]core.EntityRecord),
	}
}

// List returns all known entity records.
func (m *MemorySource) List(_ context.Context) ([]core.EntityRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]core.EntityRecord, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	return out, nil
}

// Upsert creates or replaces an entity record.
func (m *MemorySource) Upsert(_ context.Context, rec core.EntityRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.ID] = rec
	return nil
}

// UpdateLastPosition persists the last displayed position.
func (m *MemorySource) UpdateLastPosition(_ context.Context, id core.EntityID, lat, lon float64, seen time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil
	}
	rec.LastLat = lat
	rec.LastLon = lon
	rec.LastSeen = seen
	m.records[id] = rec
	return nil
}

// Remove deletes an entity record.
func (m *MemorySource) Remove(_ context.Context, id core.EntityID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
	return nil
}

// Close is a no-op for the in-memory source.
func (m *MemorySource) Close() error {
	return nil
}
