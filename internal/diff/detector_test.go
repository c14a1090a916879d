package diff

import (
	"testing"
	"time"
)

var baseTime = time.Date(2026, 5, 12, 10, 30, 0, 0, time.UTC)

func baseSnapshot() Snapshot {
	return Snapshot{
		Lat:       10.0,
		Lon:       20.0,
		Speed:     42,
		Course:    90,
		EngineOn:  true,
		Timestamp: baseTime,
	}
}

func TestShouldRebuild_FirstObservation(t *testing.T) {
	if !ShouldRebuild(nil, baseSnapshot()) {
		t.Error("first observation must always rebuild")
	}
}

func TestShouldRebuild_SelectionChangeBeatsTimestampShortCircuit(t *testing.T) {
	prev := baseSnapshot()
	next := baseSnapshot()
	next.Selected = true

	// Identical timestamps, but selection changed: the selection check
	// runs first and must force a rebuild.
	if !ShouldRebuild(&prev, next) {
		t.Error("selection change must rebuild even with identical timestamps")
	}
}

func TestShouldRebuild_DuplicateDeliverySkipped(t *testing.T) {
	prev := baseSnapshot()
	next := baseSnapshot()
	// Same timestamp, different motion fields (corrupt duplicate):
	// still skipped, the timestamp identifies the sample.
	next.Speed = 50

	if ShouldRebuild(&prev, next) {
		t.Error("bit-equal non-zero timestamps must skip the rebuild")
	}
}

func TestShouldRebuild_ZeroTimestampsNotTrusted(t *testing.T) {
	prev := baseSnapshot()
	prev.Timestamp = time.Time{}
	next := baseSnapshot()
	next.Timestamp = time.Time{}
	next.Speed = 50

	if !ShouldRebuild(&prev, next) {
		t.Error("zero timestamps must not trigger the duplicate short-circuit")
	}
}

func TestShouldRebuild_TimestampOnlyChange(t *testing.T) {
	prev := baseSnapshot()
	next := baseSnapshot()
	next.Timestamp = baseTime.Add(time.Second)

	// All semantic fields identical: no rebuild.
	if ShouldRebuild(&prev, next) {
		t.Error("timestamp-only change must not rebuild")
	}
}

func TestShouldRebuild_PositionChange(t *testing.T) {
	prev := baseSnapshot()
	next := baseSnapshot()
	next.Timestamp = baseTime.Add(time.Second)
	next.Lat = 10.1

	if !ShouldRebuild(&prev, next) {
		t.Error("position change must rebuild")
	}
}

func TestShouldRebuild_SubEpsilonPositionJitter(t *testing.T) {
	prev := baseSnapshot()
	next := baseSnapshot()
	next.Timestamp = baseTime.Add(time.Second)
	next.Lat = 10.0000001

	if ShouldRebuild(&prev, next) {
		t.Error("sub-epsilon jitter must not rebuild")
	}
}

func TestShouldRebuild_MotionChanges(t *testing.T) {
	for name, mutate := range map[string]func(*Snapshot){
		"speed":  func(s *Snapshot) { s.Speed = 43 },
		"course": func(s *Snapshot) { s.Course = 95 },
		"engine": func(s *Snapshot) { s.EngineOn = false },
	} {
		t.Run(name, func(t *testing.T) {
			prev := baseSnapshot()
			next := baseSnapshot()
			next.Timestamp = baseTime.Add(time.Second)
			mutate(&next)
			if !ShouldRebuild(&prev, next) {
				t.Errorf("%s change must rebuild", name)
			}
		})
	}
}
