package core

// MarkerVisual is the lightweight descriptor of one visible marker.
// It references the rendered image through RenderKey; it never owns
// image bytes itself. The view layer treats the marker list returned
// by a diff cycle as the authoritative current visible state.
type MarkerVisual struct {
	EntityID  EntityID
	Position  Position
	Heading   float64
	Selected  bool
	RenderKey string

	// ProjectedX/ProjectedY are the Web-Mercator (EPSG:3857) projection
	// of Position, filled in for slippy-map consumers.
	ProjectedX float64
	ProjectedY float64
}

// DiffResult is the output of one marker diff cycle.
type DiffResult struct {
	Markers  []MarkerVisual
	Created  int
	Modified int
	Reused   int
	Removed  int
	Invalid  int
	// TotalCached is the number of entities with a live snapshot after
	// this cycle.
	TotalCached int
}

// Efficiency returns reused/(created+reused), the share of markers that
// survived the cycle without a rebuild. Diagnostic only.
func (r DiffResult) Efficiency() float64 {
	denom := r.Created + r.Reused
	if denom == 0 {
		return 0
	}
	return float64(r.Reused) / float64(denom)
}

// PipelineStats aggregates diff and image-cache counters for stats
// consumers. Purely informational; nothing in the pipeline reads these
// back.
type PipelineStats struct {
	Created     uint64
	Modified    uint64
	Reused      uint64
	Removed     uint64
	Invalid     uint64
	Cycles      uint64
	Dropped     uint64 // debounced batches skipped as unchanged
	CacheHits   uint64
	CacheMisses uint64
	Evictions   uint64
	Efficiency  float64
}
