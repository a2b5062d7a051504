package render

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/seuros/geoviz/src/geo"
	"github.com/seuros/geoviz/src/logging"
	"github.com/seuros/geoviz/src/monitor"
)

// State is the renderer lifecycle state.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateRendering
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateRendering:
		return "rendering"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// Renderer orchestrates the rendering layer for one backend instance: it
// validates point sets, consults the visualization cache, batch-transforms
// misses into layer descriptors and applies them to the backend. One
// visualization is visible at a time; a new request supersedes the previous
// one.
type Renderer struct {
	runtime       *Runtime
	factory       BackendFactory
	config        *Config
	logger        logging.Logger
	observability *observabilityInstruments

	// seq stamps render attempts. A completed transform is applied and
	// cached only while its stamp is still the newest, so a slow stale
	// request can never overwrite the result of a newer one.
	seq atomic.Uint64

	mu            sync.Mutex
	state         State
	backend       Backend
	container     string
	current       *Visualization
	activeRenders int
}

// NewRenderer creates an uninitialized renderer sharing the runtime's
// caches, loader and monitor.
func NewRenderer(rt *Runtime, factory BackendFactory) *Renderer {
	cfg := rt.config
	r := &Renderer{
		runtime: rt,
		factory: factory,
		config:  cfg,
		logger:  cfg.Logging.Logger,
	}
	if cfg.Observability.EnableTracing || cfg.Observability.EnableMetrics {
		r.observability = initObservability()
	}
	return r
}

// State returns the current lifecycle state.
func (r *Renderer) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Initialize constructs the rendering backend bound to container and waits
// for its ready signal. A failure here is fatal to the attempt: the backend
// is closed and the renderer returns to the uninitialized state, so the
// caller retries Initialize rather than resuming.
func (r *Renderer) Initialize(ctx context.Context, container string) error {
	r.mu.Lock()
	switch r.state {
	case StateDisposed:
		r.mu.Unlock()
		return ErrDisposed
	case StateUninitialized:
		// proceed
	default:
		r.mu.Unlock()
		return ErrNotReady
	}
	r.state = StateInitializing
	r.mu.Unlock()

	start := time.Now()
	r.logger.Info("Initializing renderer", "container", container)

	fail := func(op string, err error) error {
		r.mu.Lock()
		r.state = StateUninitialized
		r.backend = nil
		r.mu.Unlock()
		r.logger.Error("Renderer initialization failed", "container", container, "op", op, "error", err)
		return &BackendError{Op: op, Cause: err}
	}

	backend, err := r.factory.Create(ctx, container)
	if err != nil {
		return fail("create", err)
	}
	if err := backend.WaitReady(ctx); err != nil {
		backend.Close()
		return fail("wait-ready", err)
	}

	r.mu.Lock()
	r.backend = backend
	r.container = container
	r.state = StateReady
	r.mu.Unlock()

	r.runtime.Instances.Set(container, r)
	elapsed := r.runtime.Monitor.MeasureLoadTime(start)
	r.logger.Info("Renderer ready", "container", container, "load_time", elapsed)
	return nil
}

// RenderVisualization builds and applies the visualization for mode over
// ps. Identical (data type, mode, options) requests inside the TTL window
// hit the visualization cache and skip the batch transform. The renderer
// always returns to Ready, whether the render succeeded, failed or was
// superseded by a newer request.
func (r *Renderer) RenderVisualization(ctx context.Context, ps geo.PointSet, mode Mode, opts Options) (*Visualization, error) {
	// Validation happens before any cache or render work; an all-invalid
	// set is an error, never a silent empty render.
	ps, err := geo.ValidateSet(ps)
	if err != nil {
		return nil, err
	}

	if err := r.beginRender(); err != nil {
		return nil, err
	}
	defer r.endRender()

	seq := r.seq.Add(1)
	requestID := uuid.NewString()
	key := cacheKey(ps.DataType, mode, opts)

	ctx, span := r.observability.startRenderSpan(ctx, mode, ps.DataType, requestID, len(ps.Points), r.config.Observability)

	vis, err := r.renderLocked(ctx, ps, mode, opts, key, seq, requestID)
	r.observability.finishRenderSpan(span, vis, err, r.config.Observability)
	return vis, err
}

func (r *Renderer) renderLocked(ctx context.Context, ps geo.PointSet, mode Mode, opts Options, key string, seq uint64, requestID string) (*Visualization, error) {
	if cached, ok := r.runtime.Visualizations.Get(key); ok {
		r.observability.recordCacheLookup(true, r.config.Observability)
		if r.config.Logging.LogCacheEvents {
			r.logger.Debug("Visualization cache hit", "key", key, "request_id", requestID)
		}
		if err := r.apply(ctx, cached, seq); err != nil {
			return nil, err
		}
		return cached, nil
	}
	r.observability.recordCacheLookup(false, r.config.Observability)
	if r.config.Logging.LogCacheEvents {
		r.logger.Debug("Visualization cache miss", "key", key, "request_id", requestID)
	}

	var vis *Visualization
	elapsed, err := r.runtime.Monitor.MeasureRenderTime(func() error {
		var buildErr error
		vis, buildErr = r.build(ctx, ps, mode, opts)
		return buildErr
	})
	if err != nil {
		r.logger.Error("Visualization build failed", "mode", mode, "request_id", requestID, "error", err)
		return nil, err
	}
	vis.Key = key
	vis.RequestID = requestID

	if err := r.apply(ctx, vis, seq); err != nil {
		return nil, err
	}

	// Populate the cache only for the winning request; a superseded
	// result must not overwrite a newer entry (apply already rejected
	// stale sequences).
	r.runtime.Visualizations.Set(key, vis)

	if r.config.Logging.LogRenderTiming {
		r.logger.Info("Visualization rendered", "mode", mode, "points", vis.Rendered,
			"truncated", vis.Truncated, "duration", elapsed, "request_id", requestID)
	}
	return vis, nil
}

// apply tears down the previous visualization and installs vis on the
// backend, provided seq is still the newest render attempt. Stale attempts
// get ErrSuperseded and change nothing.
func (r *Renderer) apply(ctx context.Context, vis *Visualization, seq uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateDisposed {
		return ErrDisposed
	}
	if seq != r.seq.Load() {
		return ErrSuperseded
	}

	backend := r.backend
	if prev := r.current; prev != nil {
		for _, layer := range prev.Layers {
			if err := backend.RemoveLayer(ctx, layer.ID); err != nil {
				return &BackendError{Op: "remove-layer", Cause: err}
			}
		}
		for name := range prev.Sources {
			if err := backend.RemoveSource(ctx, name); err != nil {
				return &BackendError{Op: "remove-source", Cause: err}
			}
		}
		r.current = nil
	}

	for name, fc := range vis.Sources {
		if err := backend.AddSource(ctx, name, fc); err != nil {
			return &BackendError{Op: "add-source", Cause: err}
		}
	}
	for _, layer := range vis.Layers {
		if err := backend.AddLayer(ctx, layer); err != nil {
			return &BackendError{Op: "add-layer", Cause: err}
		}
	}
	if err := backend.FitBounds(ctx, vis.SW, vis.NE); err != nil {
		return &BackendError{Op: "fit-bounds", Cause: err}
	}

	r.current = vis
	return nil
}

// beginRender admits a render while Ready, or while another render is in
// flight (the newer one supersedes it).
func (r *Renderer) beginRender() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.state {
	case StateReady, StateRendering:
		r.activeRenders++
		r.state = StateRendering
		return nil
	case StateDisposed:
		return ErrDisposed
	default:
		return ErrNotReady
	}
}

func (r *Renderer) endRender() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activeRenders--
	if r.activeRenders == 0 && r.state == StateRendering {
		r.state = StateReady
	}
}

// Current returns the visualization now applied to the backend, or nil.
func (r *Renderer) Current() *Visualization {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Metrics returns the shared performance monitor's aggregate view.
func (r *Renderer) Metrics() monitor.Metrics {
	return r.runtime.Monitor.Metrics()
}

// RegisterClickHandler subscribes to clicks on the active point layer.
// Requires an initialized backend.
func (r *Renderer) RegisterClickHandler(handler ClickHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.backend == nil || r.state == StateDisposed {
		return ErrNotReady
	}
	r.backend.RegisterClickHandler(layerPoints, handler)
	return nil
}

// Dispose tears down the backend, clears the runtime's three caches and
// stops the performance monitor. Idempotent.
func (r *Renderer) Dispose() error {
	r.mu.Lock()
	if r.state == StateDisposed {
		r.mu.Unlock()
		return nil
	}
	r.state = StateDisposed
	backend := r.backend
	r.backend = nil
	r.current = nil
	container := r.container
	r.mu.Unlock()

	var err error
	if backend != nil {
		err = backend.Close()
	}
	r.runtime.Clear()
	r.runtime.Monitor.Stop()
	r.logger.Info("Renderer disposed", "container", container)
	if err != nil {
		return &BackendError{Op: "close", Cause: err}
	}
	return nil
}
