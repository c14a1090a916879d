package diff

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/fleetvis/markerpipe/internal/geo"
	"github.com/fleetvis/markerpipe/internal/render"
	"github.com/fleetvis/markerpipe/pkg/core"
)

// Input is one update cycle's worth of engine input.
type Input struct {
	Entities  []core.EntityRecord
	Positions map[core.EntityID]core.TelemetrySample
	Selected  map[core.EntityID]struct{}
	Query     string
}

// Result is the outcome of one diff cycle. Changed lists the render
// fields of every created or modified marker, in no particular order,
// for the caller to push through the image cache. RemovedEntities
// identifies entities dropped from tracking this cycle so the caller
// can release their motion state and cached images.
type Result struct {
	core.DiffResult
	Changed         []render.KeyFields
	RemovedEntities []RemovedEntity
}

// RemovedEntity identifies one entity dropped from tracking.
type RemovedEntity struct {
	ID   core.EntityID
	Name string
}

// Engine maintains the per-entity snapshot table and visual cache and
// computes the marker mutation set for each cycle.
//
// Diff is a pure function of its input and the stored snapshots: it
// never throttles or skips on its own. Rate limiting is the debouncing
// caller's responsibility, which keeps the engine always-correct.
// The snapshot and visual tables are single-writer; the mutex exists
// only so DiffAsync can share the instance.
type Engine struct {
	mu        sync.Mutex
	snapshots map[core.EntityID]*Snapshot
	visuals   map[core.EntityID]core.MarkerVisual
	names     map[core.EntityID]string
	logger    *slog.Logger
}

// NewEngine creates an empty diff engine.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		snapshots: make(map[core.EntityID]*Snapshot),
		visuals:   make(map[core.EntityID]core.MarkerVisual),
		names:     make(map[core.EntityID]string),
		logger:    logger,
	}
}

// Diff computes the marker mutation set for the cycle. Entities with a
// live telemetry sample are processed first; entities without one fall
// back to their stored last-known position. An entity is never emitted
// twice. Entities that survived the previous cycle but not this one are
// removed from both tables.
func (e *Engine) Diff(in Input) Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	var res Result
	surviving := make(map[core.EntityID]struct{}, len(in.Entities))

	// Pass 1: live telemetry.
	for _, rec := range in.Entities {
		sample, ok := in.Positions[rec.ID]
		if !ok {
			continue
		}
		e.processEntity(&res, surviving, rec, sample.Latitude, sample.Longitude, &sample, in)
	}

	// Pass 2: stored fallback positions for entities without a sample.
	for _, rec := range in.Entities {
		if _, done := surviving[rec.ID]; done {
			continue
		}
		if _, hasLive := in.Positions[rec.ID]; hasLive {
			// Live sample was invalid or filtered; no fallback retry.
			continue
		}
		e.processEntity(&res, surviving, rec, rec.LastLat, rec.LastLon, nil, in)
	}

	// Removal: anything tracked before but absent now.
	for id := range e.snapshots {
		if _, ok := surviving[id]; !ok {
			res.RemovedEntities = append(res.RemovedEntities, RemovedEntity{
				ID:   id,
				Name: e.names[id],
			})
			delete(e.snapshots, id)
			delete(e.visuals, id)
			delete(e.names, id)
			res.Removed++
		}
	}

	res.Markers = make([]core.MarkerVisual, 0, len(surviving))
	for id := range surviving {
		res.Markers = append(res.Markers, e.visuals[id])
	}
	res.TotalCached = len(e.snapshots)
	return res
}

// processEntity runs validity and filter rules for one entity and, if
// it survives, diffs it against the stored snapshot. sample is nil for
// fallback-position entities.
func (e *Engine) processEntity(
	res *Result,
	surviving map[core.EntityID]struct{},
	rec core.EntityRecord,
	lat, lon float64,
	sample *core.TelemetrySample,
	in Input,
) {
	if !geo.ValidCoordinates(lat, lon) {
		res.Invalid++
		e.logger.Debug("Marker skipped, invalid coordinates",
			"entity", rec.ID, "lat", lat, "lon", lon)
		return
	}

	_, isSelected := in.Selected[rec.ID]

	// Selection is an exclusive visibility filter and takes precedence
	// over the text query.
	if len(in.Selected) > 0 && !isSelected {
		return
	}
	if in.Query != "" && !isSelected && !nameMatches(rec.Name, in.Query) {
		return
	}

	var next Snapshot
	if sample != nil {
		next = snapshotFromSample(*sample, isSelected)
	} else {
		next = snapshotFromRecord(rec, isSelected)
	}

	prev := e.snapshots[rec.ID]
	if !ShouldRebuild(prev, next) {
		surviving[rec.ID] = struct{}{}
		e.names[rec.ID] = rec.Name
		res.Reused++
		return
	}

	visual, fields := buildVisual(rec, next)
	e.snapshots[rec.ID] = &next
	e.visuals[rec.ID] = visual
	e.names[rec.ID] = rec.Name
	surviving[rec.ID] = struct{}{}
	res.Changed = append(res.Changed, fields)
	if prev == nil {
		res.Created++
	} else {
		res.Modified++
	}
}

// buildVisual constructs the marker descriptor and its render fields
// from a surviving snapshot. Projection cannot fail here: coordinates
// were validated before the snapshot was built.
func buildVisual(rec core.EntityRecord, s Snapshot) (core.MarkerVisual, render.KeyFields) {
	fields := render.KeyFields{
		Name:        rec.Name,
		Online:      rec.Online,
		EngineOn:    s.EngineOn,
		Moving:      s.Speed > render.MovingSpeedThreshold,
		SpeedBucket: render.SpeedBucket(s.Speed),
		Compact:     rec.Compact,
	}
	x, y, _ := geo.Mercator(s.Lat, s.Lon)
	return core.MarkerVisual{
		EntityID:   rec.ID,
		Position:   core.Position{Lat: s.Lat, Lon: s.Lon},
		Heading:    s.Course,
		Selected:   s.Selected,
		RenderKey:  string(fields.Key()),
		ProjectedX: x,
		ProjectedY: y,
	}, fields
}

// Snapshot returns a copy of the stored snapshot for an entity, if any.
// Exposed for tests and diagnostics.
func (e *Engine) Snapshot(id core.EntityID) (Snapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.snapshots[id]
	if !ok {
		return Snapshot{}, false
	}
	return *s, true
}

// Reset drops all snapshots and visuals, as on an app cache clear.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.snapshots = make(map[core.EntityID]*Snapshot)
	e.visuals = make(map[core.EntityID]core.MarkerVisual)
	e.names = make(map[core.EntityID]string)
}

func nameMatches(name, query string) bool {
	return strings.Contains(strings.ToLower(name), strings.ToLower(strings.TrimSpace(query)))
}
