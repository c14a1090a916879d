package render

import (
	"context"
	"log/slog"
	"time"

	"github.com/fleetvis/markerpipe/internal/queue"
)

// DefaultFrameBudget is the maximum number of cache-miss renders
// performed per frame callback.
const DefaultFrameBudget = 8

// FrameSource delivers frame callbacks to the warm-up scheduler. In
// production this is driven by the display loop; tests drive it
// manually.
type FrameSource interface {
	Frames() <-chan time.Time
}

// TickerFrames adapts a time.Ticker to FrameSource.
type TickerFrames struct {
	Ticker *time.Ticker
}

func (t TickerFrames) Frames() <-chan time.Time {
	return t.Ticker.C
}

// WarmupScheduler renders likely-needed marker visuals in the
// background, a bounded number per frame, so on-demand requests mostly
// hit the cache. Work units are idempotent: a key that is already
// cached or in flight by the time its turn arrives is skipped without
// consuming budget.
type WarmupScheduler struct {
	cache    *ImageCache
	renderer Renderer
	pending  *queue.Queue[KeyFields]
	budget   int
	logger   *slog.Logger
}

// NewWarmupScheduler creates a scheduler over the given cache and
// renderer. A budget <= 0 selects DefaultFrameBudget.
func NewWarmupScheduler(cache *ImageCache, renderer Renderer, budget int, logger *slog.Logger) *WarmupScheduler {
	if budget <= 0 {
		budget = DefaultFrameBudget
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WarmupScheduler{
		cache:    cache,
		renderer: renderer,
		pending:  queue.New[KeyFields](),
		budget:   budget,
		logger:   logger,
	}
}

// Enqueue adds visual states to the warm-up work list.
func (w *WarmupScheduler) Enqueue(fields ...KeyFields) {
	w.pending.Push(fields...)
}

// Pending returns the number of queued warm-up candidates.
func (w *WarmupScheduler) Pending() int {
	return w.pending.Len()
}

// RunFrame performs one frame's worth of warm-up work: at most budget
// renders, skipping cached and in-flight keys for free. Returns the
// number of renders performed.
func (w *WarmupScheduler) RunFrame(ctx context.Context) int {
	rendered := 0
	for rendered < w.budget {
		fields, ok := w.pending.PopOK()
		if !ok {
			break
		}
		key := fields.Key()
		if w.cache.Contains(key) || w.cache.InFlight(key) {
			continue
		}
		if _, err := w.cache.GetOrRender(ctx, fields, w.renderer); err != nil {
			// Warm-up is advisory: a failed render is dropped and the
			// key retried only if re-enqueued.
			w.logger.Debug("warmup render failed", "key", string(key), "error", err)
		}
		rendered++
		if ctx.Err() != nil {
			break
		}
	}
	return rendered
}

// Run drains the work list on every frame callback until the context is
// cancelled. Intended to be run on its own goroutine.
func (w *WarmupScheduler) Run(ctx context.Context, frames FrameSource) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-frames.Frames():
			w.RunFrame(ctx)
		}
	}
}
