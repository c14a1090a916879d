// Package pipeline wires the update path together: debounced telemetry
// batches drive the diff engine, changed markers are pushed through the
// image cache, targets are handed to the motion interpolator, and each
// cycle's result is published to the view channel.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fleetvis/markerpipe/internal/channel"
	"github.com/fleetvis/markerpipe/internal/debounce"
	"github.com/fleetvis/markerpipe/internal/diff"
	"github.com/fleetvis/markerpipe/internal/geo"
	"github.com/fleetvis/markerpipe/internal/metadata"
	"github.com/fleetvis/markerpipe/internal/motion"
	"github.com/fleetvis/markerpipe/internal/render"
	"github.com/fleetvis/markerpipe/internal/stats"
	"github.com/fleetvis/markerpipe/pkg/core"
)

// Defaults for the orchestration knobs not owned by a subsystem.
const (
	DefaultResultBuffer  = 16
	DefaultFrameInterval = 50 * time.Millisecond
	DefaultStatsInterval = 10 * time.Second
)

// Config holds pipeline orchestration settings.
type Config struct {
	DebounceWindow time.Duration
	ResultBuffer   int
	WarmupBudget   int
	FrameInterval  time.Duration // warm-up frame cadence
	MotionTick     time.Duration
	StatsInterval  time.Duration
}

func (c *Config) applyDefaults() {
	if c.ResultBuffer <= 0 {
		c.ResultBuffer = DefaultResultBuffer
	}
	if c.FrameInterval <= 0 {
		c.FrameInterval = DefaultFrameInterval
	}
	if c.MotionTick <= 0 {
		c.MotionTick = motion.DefaultTick
	}
	if c.StatsInterval <= 0 {
		c.StatsInterval = DefaultStatsInterval
	}
}

// Pipeline owns the per-cycle update flow and the shared view state
// (entity roster, selection, search query).
type Pipeline struct {
	cfg      Config
	engine   *diff.Engine
	cache    *render.ImageCache
	renderer render.Renderer
	warmup   *render.WarmupScheduler
	debounce *debounce.Debouncer
	interp   *motion.Interpolator
	meta     metadata.Source
	statsOut stats.Consumer
	results  *channel.Buffered[diff.Result]
	logger   *slog.Logger

	mu       sync.Mutex
	roster   []core.EntityRecord
	selected map[core.EntityID]struct{}
	query    string

	created       atomic.Uint64
	modified      atomic.Uint64
	reused        atomic.Uint64
	removed       atomic.Uint64
	invalid       atomic.Uint64
	cycles        atomic.Uint64
	droppedFrames atomic.Uint64
}

// New assembles a pipeline over the given cache, renderer, interpolator
// and metadata source. statsOut may be nil when no stats consumer is
// configured.
func New(
	cfg Config,
	cache *render.ImageCache,
	renderer render.Renderer,
	interp *motion.Interpolator,
	meta metadata.Source,
	statsOut stats.Consumer,
	logger *slog.Logger,
) *Pipeline {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pipeline{
		cfg:      cfg,
		engine:   diff.NewEngine(logger),
		cache:    cache,
		renderer: renderer,
		warmup:   render.NewWarmupScheduler(cache, renderer, cfg.WarmupBudget, logger),
		interp:   interp,
		meta:     meta,
		statsOut: statsOut,
		results:  channel.NewBuffered[diff.Result](cfg.ResultBuffer),
		logger:   logger,
	}
	p.debounce = debounce.New(cfg.DebounceWindow, p.runCycle)
	return p
}

// Results returns the channel carrying one diff result per completed
// cycle. The channel is never closed; consumers stop via their context.
func (p *Pipeline) Results() channel.Receiver[diff.Result] {
	return p.results
}

// SubmitTelemetry schedules a telemetry batch for the next cycle.
func (p *Pipeline) SubmitTelemetry(samples []core.TelemetrySample) {
	selected, query := p.viewState()
	p.debounce.Schedule(samples, selected, query)
}

// SetEntities replaces the tracked roster and persists it. Roster
// changes always force a cycle: they are invisible to the batch
// signature.
func (p *Pipeline) SetEntities(records []core.EntityRecord) {
	p.mu.Lock()
	p.roster = append([]core.EntityRecord(nil), records...)
	p.mu.Unlock()

	ctx := context.Background()
	for _, rec := range records {
		if err := p.meta.Upsert(ctx, rec); err != nil {
			p.logger.Warn("Entity upsert failed", "entity", rec.ID, "error", err)
		}
	}

	selected, query := p.viewState()
	p.debounce.ScheduleForce(nil, selected, query)
}

// SetSelection replaces the selected entity set and schedules a cycle.
func (p *Pipeline) SetSelection(ids []core.EntityID) {
	sel := make(map[core.EntityID]struct{}, len(ids))
	for _, id := range ids {
		sel[id] = struct{}{}
	}

	p.mu.Lock()
	p.selected = sel
	query := p.query
	p.mu.Unlock()

	p.debounce.Schedule(nil, sel, query)
}

// SetQuery replaces the search query and schedules a cycle.
func (p *Pipeline) SetQuery(query string) {
	p.mu.Lock()
	p.query = query
	selected := p.selected
	p.mu.Unlock()

	p.debounce.Schedule(nil, selected, query)
}

// Refresh drops every cached image and snapshot and forces a full
// rebuild cycle. Used for marker style changes.
func (p *Pipeline) Refresh() {
	p.cache.Clear()
	p.engine.Reset()
	selected, query := p.viewState()
	p.debounce.ScheduleForce(nil, selected, query)
}

// Flush fires any pending debounced batch immediately.
func (p *Pipeline) Flush() {
	p.debounce.Flush()
}

// SetDebounceWindow reconfigures the debounce quiet period at runtime.
func (p *Pipeline) SetDebounceWindow(window time.Duration) {
	p.debounce.SetWindow(window)
}

func (p *Pipeline) viewState() (map[core.EntityID]struct{}, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.selected, p.query
}

// runCycle is the debounce trigger: one accepted batch in, one diff
// result out.
func (p *Pipeline) runCycle(tr debounce.Trigger) {
	p.mu.Lock()
	entities := append([]core.EntityRecord(nil), p.roster...)
	p.mu.Unlock()

	positions := make(map[core.EntityID]core.TelemetrySample, len(tr.Samples))
	for _, s := range tr.Samples {
		positions[s.EntityID] = s
	}

	res := p.engine.Diff(diff.Input{
		Entities:  entities,
		Positions: positions,
		Selected:  tr.Selected,
		Query:     tr.Query,
	})

	ctx := context.Background()
	for _, fields := range res.Changed {
		if _, err := p.cache.GetOrRender(ctx, fields, p.renderer); err != nil {
			p.logger.Warn("Marker render failed", "key", string(fields.Key()), "error", err)
			continue
		}
		// Pre-render the state the entity is most likely to flip into.
		variant := fields
		variant.Moving = !variant.Moving
		p.warmup.Enqueue(variant)
	}

	// Entities dropped from tracking release their motion state and
	// every cached image variant.
	for _, rem := range res.RemovedEntities {
		p.interp.Remove(rem.ID)
		p.cache.Invalidate(render.EntityKeyPrefix(rem.Name))
	}

	now := time.Now()
	for _, m := range res.Markers {
		if pos, ok := p.interp.Position(m.EntityID); ok && pos == m.Position {
			continue
		}
		p.interp.UpdateTarget(m.EntityID, m.Position, now)
	}

	// Live samples become the stored last-known positions, both in the
	// roster used for fallback and in the metadata store.
	valid := make(map[core.EntityID]core.TelemetrySample, len(tr.Samples))
	for _, s := range tr.Samples {
		if !geo.ValidCoordinates(s.Latitude, s.Longitude) {
			continue
		}
		valid[s.EntityID] = s
		if err := p.meta.UpdateLastPosition(ctx, s.EntityID, s.Latitude, s.Longitude, s.Timestamp); err != nil {
			p.logger.Warn("Position persist failed", "entity", s.EntityID, "error", err)
		}
	}
	p.mu.Lock()
	for i := range p.roster {
		if s, ok := valid[p.roster[i].ID]; ok {
			p.roster[i].LastLat = s.Latitude
			p.roster[i].LastLon = s.Longitude
			p.roster[i].LastSeen = s.Timestamp
		}
	}
	p.mu.Unlock()

	p.created.Add(uint64(res.Created))
	p.modified.Add(uint64(res.Modified))
	p.reused.Add(uint64(res.Reused))
	p.removed.Add(uint64(res.Removed))
	p.invalid.Add(uint64(res.Invalid))
	p.cycles.Add(1)

	if !p.results.TrySend(res) {
		p.droppedFrames.Add(1)
		p.logger.Debug("Result dropped, view consumer behind", "markers", len(res.Markers))
	}

	p.logger.Debug("Cycle complete",
		"markers", len(res.Markers),
		"created", res.Created,
		"modified", res.Modified,
		"reused", res.Reused,
		"removed", res.Removed,
		"invalid", res.Invalid,
	)
}

// Stats returns a point-in-time snapshot of pipeline counters.
func (p *Pipeline) Stats() core.PipelineStats {
	cs := p.cache.Stats()
	created := p.created.Load()
	reused := p.reused.Load()

	var efficiency float64
	if created+reused > 0 {
		efficiency = float64(reused) / float64(created+reused)
	}

	return core.PipelineStats{
		Created:     created,
		Modified:    p.modified.Load(),
		Reused:      reused,
		Removed:     p.removed.Load(),
		Invalid:     p.invalid.Load(),
		Cycles:      p.cycles.Load(),
		Dropped:     p.debounce.Dropped(),
		CacheHits:   cs.Hits,
		CacheMisses: cs.Misses,
		Evictions:   cs.Evictions,
		Efficiency:  efficiency,
	}
}

// Run drives the background loops (warm-up frames, motion ticks, stats
// publication) until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) {
	var wg sync.WaitGroup

	frameTicker := time.NewTicker(p.cfg.FrameInterval)
	defer frameTicker.Stop()

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.warmup.Run(ctx, render.TickerFrames{Ticker: frameTicker})
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.interp.Run(ctx, p.cfg.MotionTick)
	}()

	if p.statsOut != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(p.cfg.StatsInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := p.statsOut.Publish(ctx, p.Stats()); err != nil {
						p.logger.Warn("Stats publish failed", "error", err)
					}
				}
			}
		}()
	}

	<-ctx.Done()
	p.debounce.Stop()
	wg.Wait()
}
