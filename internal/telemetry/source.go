package telemetry

import "github.com/fleetvis/markerpipe/pkg/core"

// Source delivers telemetry batches and entity roster updates to the
// pipeline.
type Source interface {
	// Samples returns the channel carrying telemetry batches. Whether
	// the channel closes on shutdown is implementation-defined;
	// consumers should watch a stop signal of their own.
	Samples() <-chan []core.TelemetrySample

	// Entities returns the channel carrying roster snapshots pushed
	// by the backend.
	Entities() <-chan []core.EntityRecord

	// Close stops the source and releases its resources.
	Close() error
}
