package render

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	geojson "github.com/paulmach/go.geojson"
	"github.com/stretchr/testify/require"

	"github.com/seuros/geoviz/src/geo"
)

// stubBackend records every mutation in order and can inject failures.
type stubBackend struct {
	sources map[string]*geojson.FeatureCollection
	layers  map[string]LayerSpec
	ops     []string

	failCreate    error
	failWaitReady error
	failAddLayer  error

	closed   bool
	handlers map[string][]ClickHandler
}

func newStubBackend() *stubBackend {
	return &stubBackend{
		sources:  make(map[string]*geojson.FeatureCollection),
		layers:   make(map[string]LayerSpec),
		handlers: make(map[string][]ClickHandler),
	}
}

func (s *stubBackend) factory() BackendFactory {
	return BackendFactoryFunc(func(ctx context.Context, container string) (Backend, error) {
		if s.failCreate != nil {
			return nil, s.failCreate
		}
		return s, nil
	})
}

func (s *stubBackend) WaitReady(ctx context.Context) error { return s.failWaitReady }

func (s *stubBackend) AddSource(ctx context.Context, name string, data *geojson.FeatureCollection) error {
	s.sources[name] = data
	s.ops = append(s.ops, "add_source:"+name)
	return nil
}

func (s *stubBackend) RemoveSource(ctx context.Context, name string) error {
	delete(s.sources, name)
	s.ops = append(s.ops, "remove_source:"+name)
	return nil
}

func (s *stubBackend) AddLayer(ctx context.Context, layer LayerSpec) error {
	if s.failAddLayer != nil {
		return s.failAddLayer
	}
	s.layers[layer.ID] = layer
	s.ops = append(s.ops, "add_layer:"+layer.ID)
	return nil
}

func (s *stubBackend) RemoveLayer(ctx context.Context, name string) error {
	delete(s.layers, name)
	s.ops = append(s.ops, "remove_layer:"+name)
	return nil
}

func (s *stubBackend) FitBounds(ctx context.Context, sw, ne geo.Location) error {
	s.ops = append(s.ops, "fit_bounds")
	return nil
}

func (s *stubBackend) RegisterClickHandler(layer string, handler ClickHandler) {
	s.handlers[layer] = append(s.handlers[layer], handler)
}

func (s *stubBackend) Close() error {
	s.closed = true
	return nil
}

func testConfig() *Config {
	return &Config{
		Limits: &LimitsConfig{
			MarkerCap:      10,
			ClusterCap:     5,
			ChunkSize:      4,
			TimelineBucket: time.Hour,
		},
		Observability: &ObservabilityConfig{},
	}
}

func newTestRenderer(t *testing.T) (*Renderer, *stubBackend) {
	t.Helper()
	rt := NewRuntime(testConfig(), nil)
	stub := newStubBackend()
	r := NewRenderer(rt, stub.factory())
	require.NoError(t, r.Initialize(context.Background(), "map"))
	t.Cleanup(func() { r.Dispose() })
	return r, stub
}

func makePointSet(n int) geo.PointSet {
	points := make([]geo.Point, n)
	for i := range points {
		points[i] = geo.Point{
			Lat:       float64(i%80) - 40,
			Lon:       float64(i%160) - 80,
			Timestamp: int64(1000 + i*60),
		}
	}
	return geo.PointSet{DataType: "cdr", Points: points, Total: n}
}

func TestRendererLifecycle(t *testing.T) {
	rt := NewRuntime(testConfig(), nil)
	stub := newStubBackend()
	r := NewRenderer(rt, stub.factory())

	require.Equal(t, StateUninitialized, r.State())
	require.NoError(t, r.Initialize(context.Background(), "map"))
	require.Equal(t, StateReady, r.State())

	// Double initialization is rejected while the backend is live.
	require.ErrorIs(t, r.Initialize(context.Background(), "map"), ErrNotReady)

	cached, ok := rt.Instances.Get("map")
	require.True(t, ok)
	require.Same(t, r, cached)

	require.NoError(t, r.Dispose())
	require.Equal(t, StateDisposed, r.State())
	require.True(t, stub.closed)

	// Disposal is terminal and idempotent.
	require.NoError(t, r.Dispose())
	require.ErrorIs(t, r.Initialize(context.Background(), "map"), ErrDisposed)
	_, err := r.RenderVisualization(context.Background(), makePointSet(3), ModeMarkers, Options{})
	require.ErrorIs(t, err, ErrDisposed)
}

func TestInitialize_CreateFailureIsRetriable(t *testing.T) {
	rt := NewRuntime(testConfig(), nil)
	stub := newStubBackend()
	stub.failCreate = errors.New("daemon unreachable")
	r := NewRenderer(rt, stub.factory())

	err := r.Initialize(context.Background(), "map")
	var be *BackendError
	require.ErrorAs(t, err, &be)
	require.Equal(t, "create", be.Op)
	require.Equal(t, StateUninitialized, r.State())

	stub.failCreate = nil
	require.NoError(t, r.Initialize(context.Background(), "map"))
}

func TestInitialize_WaitReadyFailureClosesBackend(t *testing.T) {
	rt := NewRuntime(testConfig(), nil)
	stub := newStubBackend()
	stub.failWaitReady = errors.New("base map never loaded")
	r := NewRenderer(rt, stub.factory())

	err := r.Initialize(context.Background(), "map")
	var be *BackendError
	require.ErrorAs(t, err, &be)
	require.Equal(t, "wait-ready", be.Op)
	require.True(t, stub.closed)
	require.Equal(t, StateUninitialized, r.State())
}

func TestRenderBeforeInitialize(t *testing.T) {
	rt := NewRuntime(testConfig(), nil)
	r := NewRenderer(rt, newStubBackend().factory())

	_, err := r.RenderVisualization(context.Background(), makePointSet(3), ModeMarkers, Options{})
	require.ErrorIs(t, err, ErrNotReady)
}

func TestRenderMarkers(t *testing.T) {
	r, stub := newTestRenderer(t)

	vis, err := r.RenderVisualization(context.Background(), makePointSet(8), ModeMarkers, Options{})
	require.NoError(t, err)
	require.Equal(t, ModeMarkers, vis.Mode)
	require.Equal(t, 8, vis.Rendered)
	require.False(t, vis.Truncated)
	require.NotEmpty(t, vis.RequestID)

	require.Len(t, stub.sources[sourcePoints].Features, 8)
	require.Equal(t, LayerCircle, stub.layers[layerPoints].Kind)
	require.Equal(t, "fit_bounds", stub.ops[len(stub.ops)-1])
	require.Same(t, vis, r.Current())
}

func TestRenderMarkers_CapTruncates(t *testing.T) {
	r, stub := newTestRenderer(t)

	vis, err := r.RenderVisualization(context.Background(), makePointSet(25), ModeMarkers, Options{})
	require.NoError(t, err)
	require.True(t, vis.Truncated)
	require.Equal(t, 10, vis.Rendered)
	require.Len(t, stub.sources[sourcePoints].Features, 10)
}

func TestRenderClusters_MaxPointsOverride(t *testing.T) {
	r, stub := newTestRenderer(t)

	vis, err := r.RenderVisualization(context.Background(), makePointSet(9), ModeClusters, Options{MaxPoints: 3, ClusterRadius: 40})
	require.NoError(t, err)
	require.True(t, vis.Truncated)
	require.Equal(t, 3, vis.Rendered)
	require.Equal(t, LayerCluster, stub.layers[layerPoints].Kind)
	require.Equal(t, 40.0, stub.layers[layerPoints].Paint["cluster-radius"])
}

func TestRenderHeatmap_NoCap(t *testing.T) {
	r, _ := newTestRenderer(t)

	vis, err := r.RenderVisualization(context.Background(), makePointSet(50), ModeHeatmap, Options{HeatmapIntensity: 1.5})
	require.NoError(t, err)
	require.False(t, vis.Truncated)
	require.Equal(t, 50, vis.Rendered)
}

func TestRenderTrajectory(t *testing.T) {
	r, stub := newTestRenderer(t)

	ps := geo.PointSet{DataType: "cdr", Points: []geo.Point{
		{Lat: 2, Lon: 2, Timestamp: 300},
		{Lat: 1, Lon: 1, Timestamp: 100},
		{Lat: 3, Lon: 3, Timestamp: 200},
	}}
	vis, err := r.RenderVisualization(context.Background(), ps, ModeTrajectory, Options{})
	require.NoError(t, err)
	require.Equal(t, LayerLine, stub.layers[layerPoints].Kind)

	line := stub.sources[sourcePoints].Features[0]
	require.Equal(t, [][]float64{{1, 1}, {3, 3}, {2, 2}}, line.Geometry.LineString)
	require.Equal(t, 3, vis.Rendered)
}

func TestRenderGeofence(t *testing.T) {
	r, stub := newTestRenderer(t)

	ps := geo.PointSet{DataType: "cdr", Points: []geo.Point{
		{Lat: 2, Lon: 2},
		{Lat: 5, Lon: 5},
		{Lat: 9, Lon: 9},
		{Lat: 20, Lon: 20},
		{Lat: -5, Lon: 5},
	}}
	vis, err := r.RenderVisualization(context.Background(), ps, ModeGeofence, Options{
		GeofenceWKT: "POLYGON((0 0, 10 0, 10 10, 0 10, 0 0))",
	})
	require.NoError(t, err)
	require.Equal(t, 3, vis.GeofenceCount)

	require.Contains(t, stub.sources, sourceFence)
	require.Equal(t, LayerFill, stub.layers[layerFenceFill].Kind)
	require.Equal(t, LayerCircle, stub.layers[layerPoints].Kind)
}

func TestRenderGeofence_MissingBoundary(t *testing.T) {
	r, _ := newTestRenderer(t)

	_, err := r.RenderVisualization(context.Background(), makePointSet(3), ModeGeofence, Options{})
	require.Error(t, err)
	var ve *geo.ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestRenderTimeline(t *testing.T) {
	r, stub := newTestRenderer(t)

	ps := geo.PointSet{DataType: "cdr", Points: []geo.Point{
		{Lat: 1, Lon: 1, Timestamp: 1000},
		{Lat: 2, Lon: 2, Timestamp: 1000 + 3600},
		{Lat: 3, Lon: 3, Timestamp: 1000 + 2*3600},
	}}
	vis, err := r.RenderVisualization(context.Background(), ps, ModeTimeline, Options{})
	require.NoError(t, err)
	require.Equal(t, 3, vis.TimelineBuckets)

	frames := make([]int64, 0, 3)
	for _, f := range stub.sources[sourcePoints].Features {
		frames = append(frames, f.Properties["frame"].(int64))
	}
	require.Equal(t, []int64{0, 1, 2}, frames)
}

func TestRenderTimeline_BucketOverride(t *testing.T) {
	r, _ := newTestRenderer(t)

	ps := geo.PointSet{DataType: "cdr", Points: []geo.Point{
		{Lat: 1, Lon: 1, Timestamp: 1000},
		{Lat: 2, Lon: 2, Timestamp: 1059},
	}}
	vis, err := r.RenderVisualization(context.Background(), ps, ModeTimeline, Options{TimelineBucketSec: 60})
	require.NoError(t, err)
	require.Equal(t, 1, vis.TimelineBuckets)
}

func TestRenderUnknownMode(t *testing.T) {
	r, _ := newTestRenderer(t)

	_, err := r.RenderVisualization(context.Background(), makePointSet(3), Mode("orbit"), Options{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown visualization mode")
}

func TestRenderRejectsInvalidPoints(t *testing.T) {
	r, _ := newTestRenderer(t)

	ps := geo.PointSet{DataType: "cdr", Points: []geo.Point{{Lat: 95, Lon: 200}}}
	_, err := r.RenderVisualization(context.Background(), ps, ModeMarkers, Options{})
	var ve *geo.ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestRenderCacheHitSkipsRebuild(t *testing.T) {
	r, stub := newTestRenderer(t)
	ps := makePointSet(8)

	first, err := r.RenderVisualization(context.Background(), ps, ModeMarkers, Options{})
	require.NoError(t, err)

	second, err := r.RenderVisualization(context.Background(), ps, ModeMarkers, Options{})
	require.NoError(t, err)

	// The cached descriptor is reapplied as-is; no second transform ran.
	require.Same(t, first, second)
	require.Equal(t, first.RequestID, second.RequestID)

	// Different options produce a different key and a fresh build.
	third, err := r.RenderVisualization(context.Background(), ps, ModeMarkers, Options{MaxPoints: 5})
	require.NoError(t, err)
	require.NotSame(t, first, third)
	require.Len(t, stub.sources[sourcePoints].Features, 5)
}

func TestModeSwitchReplacesLayers(t *testing.T) {
	r, stub := newTestRenderer(t)
	ps := makePointSet(6)

	_, err := r.RenderVisualization(context.Background(), ps, ModeMarkers, Options{})
	require.NoError(t, err)

	_, err = r.RenderVisualization(context.Background(), ps, ModeHeatmap, Options{})
	require.NoError(t, err)

	// One visualization at a time: the marker layer is gone, the heatmap
	// layer replaced it under the same names.
	require.Len(t, stub.layers, 1)
	require.Equal(t, LayerHeatmap, stub.layers[layerPoints].Kind)
	require.Contains(t, stub.ops, "remove_layer:"+layerPoints)
}

func TestStaleRenderIsSuperseded(t *testing.T) {
	r, stub := newTestRenderer(t)
	ps := makePointSet(6)

	vis, err := r.build(context.Background(), ps, ModeMarkers, Options{})
	require.NoError(t, err)

	// A newer request arrived while this one was building.
	stale := r.seq.Add(1)
	r.seq.Add(1)

	err = r.apply(context.Background(), vis, stale)
	require.ErrorIs(t, err, ErrSuperseded)
	require.Empty(t, stub.sources)
	require.Nil(t, r.Current())
}

func TestApplyFailureSurfacesBackendError(t *testing.T) {
	r, stub := newTestRenderer(t)
	stub.failAddLayer = errors.New("layer rejected")

	_, err := r.RenderVisualization(context.Background(), makePointSet(4), ModeMarkers, Options{})
	var be *BackendError
	require.ErrorAs(t, err, &be)
	require.Equal(t, "add-layer", be.Op)
	require.Equal(t, StateReady, r.State())
}

func TestRegisterClickHandler(t *testing.T) {
	rt := NewRuntime(testConfig(), nil)
	stub := newStubBackend()
	r := NewRenderer(rt, stub.factory())

	require.ErrorIs(t, r.RegisterClickHandler(func(ClickEvent) {}), ErrNotReady)

	require.NoError(t, r.Initialize(context.Background(), "map"))
	require.NoError(t, r.RegisterClickHandler(func(ClickEvent) {}))
	require.Len(t, stub.handlers[layerPoints], 1)
}

func TestDisposeClearsRuntimeCaches(t *testing.T) {
	rt := NewRuntime(testConfig(), nil)
	stub := newStubBackend()
	r := NewRenderer(rt, stub.factory())
	require.NoError(t, r.Initialize(context.Background(), "map"))

	_, err := r.RenderVisualization(context.Background(), makePointSet(4), ModeMarkers, Options{})
	require.NoError(t, err)
	require.Equal(t, 1, rt.Visualizations.Len())

	require.NoError(t, r.Dispose())
	require.Zero(t, rt.Visualizations.Len())
	require.Zero(t, rt.Instances.Len())
}

func TestConcurrentRenders(t *testing.T) {
	r, _ := newTestRenderer(t)

	done := make(chan error, 4)
	for i := 0; i < 4; i++ {
		i := i
		go func() {
			ps := makePointSet(6 + i)
			_, err := r.RenderVisualization(context.Background(), ps, ModeMarkers, Options{MaxPoints: 6 + i})
			done <- err
		}()
	}

	superseded := 0
	for i := 0; i < 4; i++ {
		if err := <-done; err != nil {
			require.ErrorIs(t, err, ErrSuperseded)
			superseded++
		}
	}
	// At least the last-stamped render must have won.
	require.Less(t, superseded, 4)
	require.Equal(t, StateReady, r.State())
	require.NotNil(t, r.Current())
}

func TestCacheKeyDisambiguatesRequests(t *testing.T) {
	base := cacheKey("cdr", ModeMarkers, Options{})
	require.Equal(t, base, cacheKey("cdr", ModeMarkers, Options{}))

	distinct := []string{
		cacheKey("ipdr", ModeMarkers, Options{}),
		cacheKey("cdr", ModeHeatmap, Options{}),
		cacheKey("cdr", ModeMarkers, Options{MaxPoints: 5}),
		cacheKey("cdr", ModeMarkers, Options{Paint: map[string]interface{}{"circle-color": "#f00"}}),
	}
	seen := map[string]bool{base: true}
	for _, k := range distinct {
		require.False(t, seen[k], "cache key collision: %s", k)
		seen[k] = true
	}
}

func TestParseMode(t *testing.T) {
	for _, m := range Modes() {
		parsed, err := ParseMode(string(m))
		require.NoError(t, err)
		require.Equal(t, m, parsed)
	}
	_, err := ParseMode("orbit")
	require.Error(t, err)
	require.Contains(t, err.Error(), fmt.Sprintf("%q", "orbit"))
}
