// pkg/core/entity.go
package core

import "time"

// EntityID identifies a tracked device. IDs are assigned by the backend
// fleet service and are stable for the lifetime of the device.
type EntityID uint32

// Position is a WGS84 coordinate pair in decimal degrees.
type Position struct {
	Lat float64
	Lon float64
}

// EntityRecord is the typed device record supplied by the metadata source.
// LastLat/LastLon hold the last position the backend persisted for the
// device and are used for display when no live telemetry is available.
type EntityRecord struct {
	ID       EntityID
	Name     string
	Category string
	Online   bool
	Compact  bool
	LastLat  float64
	LastLon  float64
	LastSeen time.Time
	Attributes map[string]string
}

// TelemetrySample is a single position report from a device. Samples are
// immutable once created; delivery may be bursty, duplicated, or out of
// order, and no field is trusted until validated.
type TelemetrySample struct {
	EntityID   EntityID
	Latitude   float64
	Longitude  float64
	Speed      float64 // km/h
	Course     float64 // degrees clockwise from north
	EngineOn   bool
	Timestamp  time.Time
	Attributes map[string]string
}

// Position returns the sample coordinates as a Position.
func (s TelemetrySample) Position() Position {
	return Position{Lat: s.Latitude, Lon: s.Longitude}
}
