package diff

import "github.com/fleetvis/markerpipe/internal/geo"

// ShouldRebuild reports whether the entity's visual must be rebuilt
// given its previous snapshot (nil on first observation) and the next
// one.
//
// Check order matters: a selection change always forces a rebuild, even
// when the sample is a duplicate delivery with an identical timestamp.
// Only after that does the identical-timestamp short-circuit apply.
func ShouldRebuild(prev *Snapshot, next Snapshot) bool {
	if prev == nil {
		return true
	}
	if prev.Selected != next.Selected {
		return true
	}
	// Duplicate delivery defense: a known, non-zero, bit-equal
	// timestamp means the same sample was delivered twice.
	if !prev.Timestamp.IsZero() && !next.Timestamp.IsZero() && prev.Timestamp.Equal(next.Timestamp) {
		return false
	}
	samePosition := geo.SamePosition(prev.Lat, prev.Lon, next.Lat, next.Lon)
	sameMotion := prev.Speed == next.Speed &&
		prev.Course == next.Course &&
		prev.EngineOn == next.EngineOn
	return !(samePosition && sameMotion)
}
