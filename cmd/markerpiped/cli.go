package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/fleetvis/markerpipe/internal/dispatcher"
	"github.com/fleetvis/markerpipe/internal/render"
	"github.com/fleetvis/markerpipe/pkg/core"
)

// badgeDescriptor is the placeholder image payload: a deterministic
// JSON descriptor the view layer rasterizes client-side. Swapped for a
// real raster renderer when one is linked in.
type badgeDescriptor struct {
	Label       string `json:"label"`
	Online      bool   `json:"online"`
	EngineOn    bool   `json:"engineOn"`
	Moving      bool   `json:"moving"`
	SpeedBucket int    `json:"speedBucket"`
	Compact     bool   `json:"compact"`
}

func newBadgeRenderer() render.Renderer {
	return render.RendererFunc(func(_ context.Context, f render.KeyFields) ([]byte, error) {
		return json.Marshal(badgeDescriptor{
			Label:       f.Name,
			Online:      f.Online,
			EngineOn:    f.EngineOn,
			Moving:      f.Moving,
			SpeedBucket: f.SpeedBucket,
			Compact:     f.Compact,
		})
	})
}

// Replay mode: a synthetic fleet circling Tallinn, for running the
// daemon without a backend.
const (
	replayFleetSize = 24
	replayInterval  = time.Second
	replayCenterLat = 59.437
	replayCenterLon = 24.754
	replayRadiusDeg = 0.05
)

func replayFleet() []core.EntityRecord {
	records := make([]core.EntityRecord, 0, replayFleetSize)
	for i := 0; i < replayFleetSize; i++ {
		records = append(records, core.EntityRecord{
			ID:       core.EntityID(i + 1),
			Name:     fmt.Sprintf("truck-%d", i+1),
			Category: "truck",
			Online:   true,
			Compact:  i%5 == 0,
		})
	}
	return records
}

func replayBatch(step int, now time.Time) []core.TelemetrySample {
	samples := make([]core.TelemetrySample, 0, replayFleetSize)
	for i := 0; i < replayFleetSize; i++ {
		phase := 2 * math.Pi * (float64(i)/replayFleetSize + float64(step)/120)
		samples = append(samples, core.TelemetrySample{
			EntityID:  core.EntityID(i + 1),
			Latitude:  replayCenterLat + replayRadiusDeg*math.Sin(phase),
			Longitude: replayCenterLon + replayRadiusDeg*math.Cos(phase),
			Speed:     20 + 10*math.Sin(phase),
			Course:    math.Mod(phase*180/math.Pi+90, 360),
			EngineOn:  true,
			Timestamp: now,
		})
	}
	return samples
}

// runReplay pushes the synthetic fleet through the dispatcher until the
// context is cancelled.
func runReplay(ctx context.Context, disp *dispatcher.Dispatcher) {
	Logger.Info("Replay mode", "fleet", replayFleetSize, "interval", replayInterval)

	if _, err := disp.Dispatch(dispatcher.Event{
		Command:   "entities",
		Payload:   replayFleet(),
		Timestamp: time.Now(),
	}); err != nil {
		Logger.Error("Replay roster dispatch failed", "error", err)
		return
	}

	ticker := time.NewTicker(replayInterval)
	defer ticker.Stop()

	step := 0
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if _, err := disp.Dispatch(dispatcher.Event{
				Command:   "telemetry",
				Payload:   replayBatch(step, now),
				Timestamp: now,
			}); err != nil {
				Logger.Warn("Replay dispatch failed", "error", err)
			}
			step++
		}
	}
}
