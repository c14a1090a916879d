// Package motion animates marker positions between discrete telemetry
// samples so markers glide instead of jumping.
package motion

import (
	"context"
	"sync"
	"time"

	"github.com/fleetvis/markerpipe/pkg/core"
)

// Defaults for the interpolation window and tick cadence.
const (
	DefaultDuration = 1200 * time.Millisecond
	DefaultTick     = 200 * time.Millisecond
)

// Easing maps a linear progress t in [0,1] to an eased progress.
type Easing func(t float64) float64

// EaseOutCubic is the default easing curve: fast start, gentle stop.
func EaseOutCubic(t float64) float64 {
	u := 1 - t
	return 1 - u*u*u
}

// Linear easing, mainly for tests.
func Linear(t float64) float64 { return t }

// motionState tracks one entity's in-progress interpolation.
type motionState struct {
	from  core.Position
	to    core.Position
	start time.Time
	end   time.Time
}

// BatchListener is notified after a tick that advanced at least one
// entity. It is never called when nothing is animating.
type BatchListener func(positions map[core.EntityID]core.Position)

// Interpolator produces a continuously updated position per entity.
// Tick handlers are pure arithmetic and never block.
type Interpolator struct {
	mu        sync.Mutex
	states    map[core.EntityID]*motionState
	positions map[core.EntityID]core.Position
	duration  time.Duration
	ease      Easing
	listener  BatchListener
}

// Option configures an Interpolator.
type Option func(*Interpolator)

// WithDuration sets the interpolation window for new targets.
func WithDuration(d time.Duration) Option {
	return func(i *Interpolator) {
		if d >= 0 {
			i.duration = d
		}
	}
}

// WithEasing replaces the easing curve.
func WithEasing(e Easing) Option {
	return func(i *Interpolator) {
		if e != nil {
			i.ease = e
		}
	}
}

// WithBatchListener installs the animation batch listener.
func WithBatchListener(l BatchListener) Option {
	return func(i *Interpolator) {
		i.listener = l
	}
}

// New creates an Interpolator with DefaultDuration and EaseOutCubic
// unless overridden.
func New(opts ...Option) *Interpolator {
	i := &Interpolator{
		states:    make(map[core.EntityID]*motionState),
		positions: make(map[core.EntityID]core.Position),
		duration:  DefaultDuration,
		ease:      EaseOutCubic,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// UpdateTarget starts interpolating the entity from its last emitted
// position toward target. With no prior position, or a zero duration,
// the entity snaps to the target immediately.
func (i *Interpolator) UpdateTarget(id core.EntityID, target core.Position, now time.Time) {
	i.mu.Lock()
	defer i.mu.Unlock()

	from, ok := i.positions[id]
	if !ok || i.duration == 0 {
		i.positions[id] = target
		delete(i.states, id)
		return
	}

	i.states[id] = &motionState{
		from:  from,
		to:    target,
		start: now,
		end:   now.Add(i.duration),
	}
}

// Tick advances every active entity to now. Completed interpolations
// are removed; their entities hold at the target until the next
// UpdateTarget. The batch listener fires only when at least one entity
// moved.
func (i *Interpolator) Tick(now time.Time) {
	i.mu.Lock()

	var moved bool
	for id, st := range i.states {
		t := progress(st, now)
		eased := i.ease(t)
		i.positions[id] = core.Position{
			Lat: st.from.Lat + (st.to.Lat-st.from.Lat)*eased,
			Lon: st.from.Lon + (st.to.Lon-st.from.Lon)*eased,
		}
		moved = true
		if t >= 1.0 {
			delete(i.states, id)
		}
	}

	var snapshot map[core.EntityID]core.Position
	listener := i.listener
	if moved && listener != nil {
		snapshot = make(map[core.EntityID]core.Position, len(i.positions))
		for id, p := range i.positions {
			snapshot[id] = p
		}
	}
	i.mu.Unlock()

	if moved && listener != nil {
		listener(snapshot)
	}
}

// progress computes clamped linear progress, guarding the zero-length
// window against division by zero.
func progress(st *motionState, now time.Time) float64 {
	window := st.end.Sub(st.start)
	if window <= 0 {
		return 1.0
	}
	t := float64(now.Sub(st.start)) / float64(window)
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}

// Position returns the last emitted position for an entity.
func (i *Interpolator) Position(id core.EntityID) (core.Position, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	p, ok := i.positions[id]
	return p, ok
}

// Animating reports whether any entity still has an active
// interpolation.
func (i *Interpolator) Animating() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.states) > 0
}

// Remove drops all motion state for an entity, as when it stops being
// tracked.
func (i *Interpolator) Remove(id core.EntityID) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.states, id)
	delete(i.positions, id)
}

// Run ticks the interpolator at the given cadence until the context is
// cancelled. Tests drive Tick directly instead.
func (i *Interpolator) Run(ctx context.Context, tick time.Duration) {
	if tick <= 0 {
		tick = DefaultTick
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			i.Tick(now)
		}
	}
}
