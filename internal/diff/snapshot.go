// Package diff decides, per tracked entity, whether its marker visual
// must be rebuilt for a new telemetry sample, and produces the minimal
// marker mutation set for each update cycle.
package diff

import (
	"time"

	"github.com/fleetvis/markerpipe/internal/geo"
	"github.com/fleetvis/markerpipe/pkg/core"
)

// Snapshot is the quantized per-entity comparison state. Snapshots are
// replaced wholesale on rebuild, never mutated in place; the engine's
// snapshot table is their only owner.
type Snapshot struct {
	Lat      float64 // quantized to geo.CoordEpsilon
	Lon      float64
	Selected bool
	Speed    float64
	Course   float64
	EngineOn bool
	Timestamp time.Time
}

// snapshotFromSample builds a Snapshot for an entity with a live
// telemetry sample.
func snapshotFromSample(s core.TelemetrySample, selected bool) Snapshot {
	return Snapshot{
		Lat:       geo.Quantize(s.Latitude),
		Lon:       geo.Quantize(s.Longitude),
		Selected:  selected,
		Speed:     s.Speed,
		Course:    s.Course,
		EngineOn:  s.EngineOn,
		Timestamp: s.Timestamp,
	}
}

// snapshotFromRecord builds a Snapshot for an entity displayed at its
// last-known stored position. Motion fields are zero: a fallback entity
// is drawn stationary.
func snapshotFromRecord(r core.EntityRecord, selected bool) Snapshot {
	return Snapshot{
		Lat:       geo.Quantize(r.LastLat),
		Lon:       geo.Quantize(r.LastLon),
		Selected:  selected,
		Timestamp: r.LastSeen,
	}
}
