package debounce

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/fleetvis/markerpipe/pkg/core"
)

// DefaultWindow is the default debounce quiet period.
const DefaultWindow = 300 * time.Millisecond

// Trigger is the payload delivered to the trigger callback: the
// last-write-wins merged sample set plus the most recent selection and
// query.
type Trigger struct {
	Samples  []core.TelemetrySample
	Selected map[core.EntityID]struct{}
	Query    string
	Force    bool
}

// TriggerFunc consumes an accepted (non-dropped) batch.
type TriggerFunc func(Trigger)

// Debouncer merges scheduled telemetry batches per entity and fires the
// trigger callback once per quiet period. A batch whose signature,
// selection signature, and normalized query all match the last
// triggered batch is dropped silently.
type Debouncer struct {
	mu        sync.Mutex
	window    time.Duration
	timer     *time.Timer
	armed     bool
	buf       map[core.EntityID]core.TelemetrySample
	selected  map[core.EntityID]struct{}
	query     string
	force     bool
	onTrigger TriggerFunc

	hasLast      bool
	lastBatchSig uint64
	lastSelSig   uint64
	lastQuery    string

	triggered atomic.Uint64
	dropped   atomic.Uint64
}

// New creates a Debouncer firing onTrigger after window of quiet. A
// window <= 0 selects DefaultWindow.
func New(window time.Duration, onTrigger TriggerFunc) *Debouncer {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Debouncer{
		window:    window,
		buf:       make(map[core.EntityID]core.TelemetrySample),
		onTrigger: onTrigger,
	}
}

// Schedule merges a batch into the buffer (last write wins per entity)
// and re-arms the debounce timer.
func (d *Debouncer) Schedule(samples []core.TelemetrySample, selected map[core.EntityID]struct{}, query string) {
	d.schedule(samples, selected, query, false)
}

// ScheduleForce is Schedule with the skip-if-unchanged check disabled
// for the resulting trigger. Used for explicit refreshes (cache clear,
// style change) where a recompute is wanted regardless of signatures.
func (d *Debouncer) ScheduleForce(samples []core.TelemetrySample, selected map[core.EntityID]struct{}, query string) {
	d.schedule(samples, selected, query, true)
}

func (d *Debouncer) schedule(samples []core.TelemetrySample, selected map[core.EntityID]struct{}, query string, force bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, s := range samples {
		d.buf[s.EntityID] = s
	}
	d.selected = selected
	d.query = query
	d.force = d.force || force
	d.rearmLocked(d.window)
}

// rearmLocked cancels any pending timer and arms a fresh one. Caller
// holds d.mu; the stop-then-reset pair under the lock is what makes
// reconfiguration race-free.
func (d *Debouncer) rearmLocked(window time.Duration) {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(window, d.fire)
	d.armed = true
}

// SetWindow changes the debounce window. A pending timer is cancelled
// and re-armed with the new duration atomically: no lost trigger, no
// double trigger.
func (d *Debouncer) SetWindow(window time.Duration) {
	if window <= 0 {
		window = DefaultWindow
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.window = window
	if d.armed {
		d.rearmLocked(window)
	}
}

// Window returns the current debounce window.
func (d *Debouncer) Window() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.window
}

// Flush fires the pending batch immediately, if any.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.mu.Unlock()
	d.fire()
}

// Stop cancels any pending trigger and discards the buffer.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.armed = false
	d.buf = make(map[core.EntityID]core.TelemetrySample)
	d.force = false
}

// Triggered returns the number of batches delivered to the callback.
func (d *Debouncer) Triggered() uint64 {
	return d.triggered.Load()
}

// Dropped returns the number of batches dropped as unchanged.
func (d *Debouncer) Dropped() uint64 {
	return d.dropped.Load()
}

// fire runs on timer expiry. The payload is assembled and the
// signatures compared under the lock; the callback runs outside it so
// it may schedule again.
func (d *Debouncer) fire() {
	d.mu.Lock()
	if !d.armed {
		d.mu.Unlock()
		return
	}
	d.armed = false

	samples := make([]core.TelemetrySample, 0, len(d.buf))
	for _, s := range d.buf {
		samples = append(samples, s)
	}
	d.buf = make(map[core.EntityID]core.TelemetrySample)

	batchSig := BatchSignature(samples)
	selSig := SelectionSignature(d.selected)
	query := NormalizeQuery(d.query)
	force := d.force
	d.force = false

	if !force && d.hasLast &&
		batchSig == d.lastBatchSig && selSig == d.lastSelSig && query == d.lastQuery {
		d.mu.Unlock()
		d.dropped.Add(1)
		return
	}

	d.hasLast = true
	d.lastBatchSig = batchSig
	d.lastSelSig = selSig
	d.lastQuery = query

	trigger := Trigger{
		Samples:  samples,
		Selected: d.selected,
		Query:    d.query,
		Force:    force,
	}
	cb := d.onTrigger
	d.mu.Unlock()

	d.triggered.Add(1)
	if cb != nil {
		cb(trigger)
	}
}
