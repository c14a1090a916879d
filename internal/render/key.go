// Package render owns marker image production: render-key derivation,
// the renderer capability boundary, the bounded image cache, and the
// frame-budgeted warm-up scheduler.
package render

import (
	"fmt"
)

// MovingSpeedThreshold is the speed (km/h) above which a device is
// drawn as moving.
const MovingSpeedThreshold = 1.0

// speedBucketWidth groups speeds into 10 km/h buckets for key
// derivation; sub-bucket speed changes must not force a re-render.
const (
	speedBucketWidth = 10.0
	maxSpeedBucket   = 12
)

// Key identifies one renderable visual state. Two semantically equal
// field sets always derive the same Key; the cache relies on this to
// serve byte-identical images for equal states.
type Key string

// KeyFields is the subset of entity state that affects rendered pixels.
type KeyFields struct {
	Name     string
	Online   bool
	EngineOn bool
	Moving   bool
	// SpeedBucket is int(speed/10) capped at maxSpeedBucket.
	SpeedBucket int
	Compact     bool
}

// SpeedBucket quantizes a speed in km/h into its render bucket.
func SpeedBucket(speed float64) int {
	if speed < 0 {
		return 0
	}
	b := int(speed / speedBucketWidth)
	if b > maxSpeedBucket {
		return maxSpeedBucket
	}
	return b
}

// Key derives the deterministic cache key for the fields.
func (f KeyFields) Key() Key {
	return Key(fmt.Sprintf("%s|%s|%s|%s|%d|%s",
		f.Name,
		boolToken(f.Online),
		boolToken(f.EngineOn),
		boolToken(f.Moving),
		f.SpeedBucket,
		boolToken(f.Compact),
	))
}

// EntityKeyPrefix returns the key prefix shared by every visual state
// of the named entity. Used to invalidate all cached images of one
// entity when it stops being tracked.
func EntityKeyPrefix(name string) string {
	return name + "|"
}

func boolToken(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
