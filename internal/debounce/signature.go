// Package debounce coalesces bursts of telemetry into single evaluation
// passes and drops batches whose change-signature matches the last
// triggered one, so the diff engine never runs for idle noise.
package debounce

import (
	"encoding/binary"
	"hash/fnv"
	"math"
	"sort"
	"strings"

	"github.com/fleetvis/markerpipe/internal/geo"
	"github.com/fleetvis/markerpipe/pkg/core"
)

// motionQuantum quantizes speed and course for signature purposes;
// changes below 0.1 km/h or 0.1 degrees are telemetry noise.
const motionQuantum = 0.1

// BatchSignature hashes the semantic content of a merged sample batch:
// the entity count and, per entity in ID order, the quantized position
// and motion fields. Timestamps are deliberately excluded; a batch that
// differs only in timestamps is a no-op batch.
func BatchSignature(samples []core.TelemetrySample) uint64 {
	ids := make([]core.EntityID, 0, len(samples))
	byID := make(map[core.EntityID]core.TelemetrySample, len(samples))
	for _, s := range samples {
		if _, ok := byID[s.EntityID]; !ok {
			ids = append(ids, s.EntityID)
		}
		byID[s.EntityID] = s
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	h := fnv.New64a()
	writeUint64(h, uint64(len(ids)))
	for _, id := range ids {
		s := byID[id]
		writeUint64(h, uint64(id))
		writeFloat(h, geo.Quantize(s.Latitude))
		writeFloat(h, geo.Quantize(s.Longitude))
		writeFloat(h, quantizeMotion(s.Speed))
		writeFloat(h, quantizeMotion(s.Course))
		if s.EngineOn {
			writeUint64(h, 1)
		} else {
			writeUint64(h, 0)
		}
	}
	return h.Sum64()
}

// SelectionSignature hashes a selection set independent of map
// iteration order.
func SelectionSignature(selected map[core.EntityID]struct{}) uint64 {
	ids := make([]core.EntityID, 0, len(selected))
	for id := range selected {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	h := fnv.New64a()
	writeUint64(h, uint64(len(ids)))
	for _, id := range ids {
		writeUint64(h, uint64(id))
	}
	return h.Sum64()
}

// NormalizeQuery canonicalizes a free-text filter for comparison.
func NormalizeQuery(q string) string {
	return strings.ToLower(strings.TrimSpace(q))
}

func quantizeMotion(v float64) float64 {
	return math.Round(v/motionQuantum) * motionQuantum
}

type hash64 interface {
	Write(p []byte) (int, error)
}

func writeUint64(h hash64, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, _ = h.Write(buf[:]) // fnv.Write never returns an error
}

func writeFloat(h hash64, v float64) {
	writeUint64(h, math.Float64bits(v))
}
