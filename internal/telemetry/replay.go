package telemetry

import (
	"sync"
	"time"

	"github.com/fleetvis/markerpipe/pkg/core"
)

// Replay is an in-process telemetry source fed by the caller. Used in
// tests and for replaying recorded routes without a backend.
type Replay struct {
	mu     sync.Mutex
	closed bool

	sampleCh chan []core.TelemetrySample
	entityCh chan []core.EntityRecord
}

// NewReplay creates an empty replay source.
func NewReplay() *Replay {
	return &Replay{
		sampleCh: make(chan []core.TelemetrySample, sampleChSize),
		entityCh: make(chan []core.EntityRecord, entityChSize),
	}
}

// Push enqueues one telemetry batch. Returns false after Close.
func (r *Replay) Push(samples []core.TelemetrySample) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.sampleCh <- samples
	return true
}

// PushEntities enqueues one roster snapshot. Returns false after Close.
func (r *Replay) PushEntities(records []core.EntityRecord) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.entityCh <- records
	return true
}

// PlayBatches pushes batches spaced by interval, blocking until all
// are delivered or the source is closed.
func (r *Replay) PlayBatches(batches [][]core.TelemetrySample, interval time.Duration) {
	for i, batch := range batches {
		if i > 0 && interval > 0 {
			time.Sleep(interval)
		}
		if !r.Push(batch) {
			return
		}
	}
}

// Samples returns the channel carrying telemetry batches.
func (r *Replay) Samples() <-chan []core.TelemetrySample {
	return r.sampleCh
}

// Entities returns the channel carrying roster snapshots.
func (r *Replay) Entities() <-chan []core.EntityRecord {
	return r.entityCh
}

// Close stops the source and closes its channels.
func (r *Replay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	close(r.sampleCh)
	close(r.entityCh)
	return nil
}
