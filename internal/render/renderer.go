package render

import (
	"context"
	"errors"
)

// ErrRenderFailed wraps renderer errors surfaced through the cache.
var ErrRenderFailed = errors.New("marker render failed")

// Renderer turns a visual state into encoded image bytes. It must be a
// pure function of its fields: equal fields produce byte-identical
// output. A failed render returns an error and no partial bytes.
//
// Renders may be slow (raster work, possibly a GPU round trip); callers
// are expected to bound them with the context.
type Renderer interface {
	Render(ctx context.Context, fields KeyFields) ([]byte, error)
}

// RendererFunc adapts a function to the Renderer interface.
type RendererFunc func(ctx context.Context, fields KeyFields) ([]byte, error)

func (f RendererFunc) Render(ctx context.Context, fields KeyFields) ([]byte, error) {
	return f(ctx, fields)
}
