// Package metadata supplies entity records for fallback display and
// persists last-known positions across sessions.
package metadata

import (
	"context"
	"time"

	"github.com/fleetvis/markerpipe/pkg/core"
)

// Source is the entity metadata boundary consumed by the pipeline.
type Source interface {
	// List returns all known entity records.
	List(ctx context.Context) ([]core.EntityRecord, error)

	// Upsert creates or replaces an entity record.
	Upsert(ctx context.Context, rec core.EntityRecord) error

	// UpdateLastPosition persists the last displayed position for an
	// entity after an accepted update cycle.
	UpdateLastPosition(ctx context.Context, id core.EntityID, lat, lon float64, seen time.Time) error

	// Remove deletes an entity record.
	Remove(ctx context.Context, id core.EntityID) error

	Close() error
}
