// Package telemetry supplies TelemetrySample batches from the fleet
// backend: a WebSocket feed client for production and a replay source
// for tests and demos.
package telemetry

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fleetvis/markerpipe/pkg/core"
)

// Message types carried in feed envelopes.
const (
	MsgTelemetry = "telemetry"
	MsgEntities  = "entities"
	MsgPing      = "ping"
)

// Envelope is the wire frame of the feed: a type tag plus a raw
// payload decoded per type.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// sampleMessage is the wire form of one position report.
type sampleMessage struct {
	ID         uint32            `json:"id"`
	Lat        float64           `json:"lat"`
	Lon        float64           `json:"lon"`
	Speed      float64           `json:"speed"`
	Course     float64           `json:"course"`
	EngineOn   bool              `json:"engineOn"`
	Timestamp  int64             `json:"ts"` // unix milliseconds
	Attributes map[string]string `json:"attributes,omitempty"`
}

// telemetryPayload is the payload of a MsgTelemetry envelope.
type telemetryPayload struct {
	Samples []sampleMessage `json:"samples"`
}

// entityMessage is the wire form of one entity record.
type entityMessage struct {
	ID       uint32  `json:"id"`
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Online   bool    `json:"online"`
	Compact  bool    `json:"compact"`
	LastLat  float64 `json:"lastLat"`
	LastLon  float64 `json:"lastLon"`
	LastSeen int64   `json:"lastSeen"` // unix milliseconds
}

// entitiesPayload is the payload of a MsgEntities envelope.
type entitiesPayload struct {
	Entities []entityMessage `json:"entities"`
}

// DecodeSamples decodes a MsgTelemetry envelope into samples.
func DecodeSamples(env Envelope) ([]core.TelemetrySample, error) {
	if env.Type != MsgTelemetry {
		return nil, fmt.Errorf("unexpected envelope type %q", env.Type)
	}
	var payload telemetryPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return nil, fmt.Errorf("decoding telemetry payload: %w", err)
	}
	samples := make([]core.TelemetrySample, 0, len(payload.Samples))
	for _, m := range payload.Samples {
		samples = append(samples, core.TelemetrySample{
			EntityID:   core.EntityID(m.ID),
			Latitude:   m.Lat,
			Longitude:  m.Lon,
			Speed:      m.Speed,
			Course:     m.Course,
			EngineOn:   m.EngineOn,
			Timestamp:  time.UnixMilli(m.Timestamp).UTC(),
			Attributes: m.Attributes,
		})
	}
	return samples, nil
}

// DecodeEntities decodes a MsgEntities envelope into entity records.
func DecodeEntities(env Envelope) ([]core.EntityRecord, error) {
	if env.Type != MsgEntities {
		return nil, fmt.Errorf("unexpected envelope type %q", env.Type)
	}
	var payload entitiesPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return nil, fmt.Errorf("decoding entities payload: %w", err)
	}
	records := make([]core.EntityRecord, 0, len(payload.Entities))
	for _, m := range payload.Entities {
		records = append(records, core.EntityRecord{
			ID:       core.EntityID(m.ID),
			Name:     m.Name,
			Category: m.Category,
			Online:   m.Online,
			Compact:  m.Compact,
			LastLat:  m.LastLat,
			LastLon:  m.LastLon,
			LastSeen: time.UnixMilli(m.LastSeen).UTC(),
		})
	}
	return records, nil
}
