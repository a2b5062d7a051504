package render

import (
	"context"

	geojson "github.com/paulmach/go.geojson"

	"github.com/seuros/geoviz/src/geo"
)

// LayerKind names the drawable layer types the renderer emits. Backends map
// these onto whatever their drawing engine calls them.
type LayerKind string

const (
	LayerCircle  LayerKind = "circle"
	LayerCluster LayerKind = "cluster"
	LayerHeatmap LayerKind = "heatmap"
	LayerLine    LayerKind = "line"
	LayerFill    LayerKind = "fill"
)

// LayerSpec describes one named drawable layer bound to a named source.
// Paint carries mode-specific style parameters passed through opaquely;
// the renderer never interprets a backend's styling format.
type LayerSpec struct {
	ID     string                 `json:"id"`
	Kind   LayerKind              `json:"kind"`
	Source string                 `json:"source"`
	Paint  map[string]interface{} `json:"paint,omitempty"`
}

// ClickEvent is delivered to registered click handlers.
type ClickEvent struct {
	Layer    string
	Location geo.Location
	Feature  *geojson.Feature
}

// ClickHandler receives click events for a layer.
type ClickHandler func(ClickEvent)

// Backend is the opaque rendering engine the renderer drives. It owns the
// actual drawing; the renderer only manages named sources and layers on it.
// All methods may be called from multiple goroutines.
type Backend interface {
	// WaitReady blocks until the backend has finished loading its base map
	// or the context is done.
	WaitReady(ctx context.Context) error
	// AddSource installs or replaces a named feature collection.
	AddSource(ctx context.Context, name string, data *geojson.FeatureCollection) error
	// RemoveSource removes a named source. Removing an unknown source is
	// not an error.
	RemoveSource(ctx context.Context, name string) error
	// AddLayer installs a drawable layer referencing a source.
	AddLayer(ctx context.Context, layer LayerSpec) error
	// RemoveLayer removes a named layer. Removing an unknown layer is not
	// an error.
	RemoveLayer(ctx context.Context, name string) error
	// FitBounds moves the viewport to show the given box.
	FitBounds(ctx context.Context, sw, ne geo.Location) error
	// RegisterClickHandler subscribes to click events on a layer.
	RegisterClickHandler(layer string, handler ClickHandler)
	// Close releases the backend. Further calls fail.
	Close() error
}

// BackendFactory constructs a backend bound to a host-supplied container
// (a DOM element id, a window handle, a headless session name).
type BackendFactory interface {
	Create(ctx context.Context, container string) (Backend, error)
}

// BackendFactoryFunc adapts a function to BackendFactory.
type BackendFactoryFunc func(ctx context.Context, container string) (Backend, error)

func (f BackendFactoryFunc) Create(ctx context.Context, container string) (Backend, error) {
	return f(ctx, container)
}
