package render

import (
	"context"
	"errors"

	"github.com/seuros/geoviz/src/cache"
	"github.com/seuros/geoviz/src/geo"
	"github.com/seuros/geoviz/src/loader"
	"github.com/seuros/geoviz/src/monitor"
)

// Runtime owns the process-wide shared state of the rendering layer: the
// three TTL stores, the capability loader and the performance monitor. It
// replaces the module-level globals of a browser host with an explicit
// instance whose lifetime the application controls; tests construct a fresh
// Runtime per case.
type Runtime struct {
	// Datasets caches raw fetched point sets keyed by data type.
	Datasets *cache.Store[geo.PointSet]
	// Instances caches live renderer instances keyed by container.
	Instances *cache.Store[*Renderer]
	// Visualizations caches computed layer descriptors keyed by
	// (data type, mode, options).
	Visualizations *cache.Store[*Visualization]

	// Loader de-duplicates capability loads across the application.
	Loader *loader.Loader
	// Monitor samples frame rate and memory for the whole process.
	Monitor *monitor.Monitor

	config *Config
}

// NewRuntime builds the shared rendering state. provider materializes
// dynamically loaded capability modules; passing nil leaves the loader
// functional but failing until a provider-backed capability is needed.
func NewRuntime(cfg *Config, provider loader.Provider) *Runtime {
	cfg = cfg.normalize()
	if provider == nil {
		provider = loader.ProviderFunc(func(ctx context.Context, name string) (loader.Module, error) {
			return nil, errors.New("no module provider configured")
		})
	}
	return &Runtime{
		Datasets:       cache.NewStore[geo.PointSet](cfg.Caches.DatasetTTL),
		Instances:      cache.NewStore[*Renderer](cfg.Caches.InstanceTTL),
		Visualizations: cache.NewStore[*Visualization](cfg.Caches.VisualizationTTL),
		Loader:         loader.New(provider),
		Monitor: monitor.New(monitor.Options{
			Logger: cfg.Logging.Logger,
		}),
		config: cfg,
	}
}

// Clear drops all three caches. Hosts call this on explicit user refresh
// before re-fetching, so stale datasets and descriptors cannot satisfy the
// next request.
func (rt *Runtime) Clear() {
	rt.Datasets.Clear()
	rt.Instances.Clear()
	rt.Visualizations.Clear()
}
