package backend

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	geojson "github.com/paulmach/go.geojson"
	"github.com/stretchr/testify/require"

	"github.com/seuros/geoviz/src/geo"
	"github.com/seuros/geoviz/src/render"
)

// fakeDaemon is a minimal render daemon speaking the wire protocol over a
// real TCP listener, so the pooled client is exercised end to end.
type fakeDaemon struct {
	listener net.Listener

	mu        sync.Mutex
	container string
	readyAfter int
	readyPolls int
	sources   map[string]json.RawMessage
	layers    map[string]render.LayerSpec
	events    []clickEvent
	frames    int64
	closed    bool
	rejectOps map[string]string
}

func newFakeDaemon(t *testing.T) *fakeDaemon {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	d := &fakeDaemon{
		listener:  ln,
		sources:   make(map[string]json.RawMessage),
		layers:    make(map[string]render.LayerSpec),
		rejectOps: make(map[string]string),
	}
	go d.serve()
	t.Cleanup(func() { ln.Close() })
	return d
}

func (d *fakeDaemon) addr() string { return d.listener.Addr().String() }

func (d *fakeDaemon) serve() {
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			return
		}
		go d.handle(conn)
	}
}

func (d *fakeDaemon) handle(conn net.Conn) {
	defer conn.Close()
	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)
	for {
		var req request
		if err := dec.Decode(&req); err != nil {
			return
		}
		if err := enc.Encode(d.respond(req)); err != nil {
			return
		}
	}
}

func (d *fakeDaemon) respond(req request) response {
	d.mu.Lock()
	defer d.mu.Unlock()

	if msg, rejected := d.rejectOps[req.Op]; rejected {
		return response{Error: msg}
	}

	resp := response{OK: true}
	switch req.Op {
	case opCreate:
		d.container = req.Container
	case opReady:
		d.readyPolls++
		resp.Ready = d.readyPolls > d.readyAfter
	case opAddSource:
		d.sources[req.Name] = req.Data
	case opRemoveSource:
		delete(d.sources, req.Name)
	case opAddLayer:
		d.layers[req.Layer.ID] = *req.Layer
	case opRemoveLayer:
		delete(d.layers, req.Name)
	case opFitBounds:
	case opLoadModule:
		resp.Version = "1.2.3"
	case opFrameStats:
		resp.Frames = d.frames
		d.frames = 0
	case opPollEvents:
		resp.Events = d.events
		d.events = nil
	case opCountInFence:
		resp.Count = 7
	case opClose:
		d.closed = true
	default:
		return response{Error: "unknown op " + req.Op}
	}
	return resp
}

func testRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:  5,
		BaseDelay:    time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   2.0,
		JitterFactor: 0,
	}
}

func newTestRemote(t *testing.T, daemon *fakeDaemon) *Remote {
	t.Helper()
	r, err := NewRemote(context.Background(), &RemoteConfig{
		Address: daemon.addr(),
		Retry:   testRetryPolicy(),
	}, "map-container")
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRemote_CreateBindsContainer(t *testing.T) {
	daemon := newFakeDaemon(t)
	newTestRemote(t, daemon)

	daemon.mu.Lock()
	defer daemon.mu.Unlock()
	require.Equal(t, "map-container", daemon.container)
}

func TestRemote_WaitReadyRetriesUntilReady(t *testing.T) {
	daemon := newFakeDaemon(t)
	daemon.mu.Lock()
	daemon.readyAfter = 2
	daemon.mu.Unlock()

	r := newTestRemote(t, daemon)
	require.NoError(t, r.WaitReady(context.Background()))

	daemon.mu.Lock()
	defer daemon.mu.Unlock()
	require.Equal(t, 3, daemon.readyPolls)
}

func TestRemote_SourceAndLayerRoundTrip(t *testing.T) {
	daemon := newFakeDaemon(t)
	r := newTestRemote(t, daemon)
	ctx := context.Background()

	fc := geojson.NewFeatureCollection()
	fc.AddFeature(geojson.NewPointFeature([]float64{2.35, 48.85}))
	require.NoError(t, r.AddSource(ctx, "viz-points", fc))

	require.NoError(t, r.AddLayer(ctx, render.LayerSpec{
		ID:     "viz-layer",
		Kind:   render.LayerCircle,
		Source: "viz-points",
	}))

	daemon.mu.Lock()
	raw := daemon.sources["viz-points"]
	layer := daemon.layers["viz-layer"]
	daemon.mu.Unlock()

	var decoded geojson.FeatureCollection
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Len(t, decoded.Features, 1)
	require.Equal(t, render.LayerCircle, layer.Kind)

	require.NoError(t, r.RemoveLayer(ctx, "viz-layer"))
	require.NoError(t, r.RemoveSource(ctx, "viz-points"))

	daemon.mu.Lock()
	defer daemon.mu.Unlock()
	require.Empty(t, daemon.sources)
	require.Empty(t, daemon.layers)
}

func TestRemote_DaemonRejectionSurfacesError(t *testing.T) {
	daemon := newFakeDaemon(t)
	daemon.mu.Lock()
	daemon.rejectOps[opAddLayer] = "unknown source"
	daemon.mu.Unlock()

	r := newTestRemote(t, daemon)
	err := r.AddLayer(context.Background(), render.LayerSpec{ID: "l", Kind: render.LayerCircle, Source: "missing"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown source")
}

func TestRemote_FitBoundsAndCount(t *testing.T) {
	daemon := newFakeDaemon(t)
	r := newTestRemote(t, daemon)
	ctx := context.Background()

	require.NoError(t, r.FitBounds(ctx, geo.Location{Lat: 48, Lon: 2}, geo.Location{Lat: 49, Lon: 3}))

	count, err := r.CountInPolygon(ctx, "POLYGON((0 0, 1 0, 1 1, 0 1, 0 0))")
	require.NoError(t, err)
	require.Equal(t, 7, count)
}

func TestRemote_ModuleProvider(t *testing.T) {
	daemon := newFakeDaemon(t)
	r := newTestRemote(t, daemon)

	mod, err := r.ModuleProvider().Fetch(context.Background(), "heatmap")
	require.NoError(t, err)
	require.Equal(t, "heatmap", mod.Name())
}

func TestRemote_PumpEventsDispatchesClicks(t *testing.T) {
	daemon := newFakeDaemon(t)
	r := newTestRemote(t, daemon)

	var got []render.ClickEvent
	r.RegisterClickHandler("viz-layer", func(ev render.ClickEvent) {
		got = append(got, ev)
	})

	daemon.mu.Lock()
	daemon.events = []clickEvent{
		{Layer: "viz-layer", At: coordinate{Lat: 48.85, Lon: 2.35}},
		{Layer: "other-layer", At: coordinate{Lat: 1, Lon: 1}},
	}
	daemon.mu.Unlock()

	require.NoError(t, r.PumpEvents(context.Background()))
	require.Len(t, got, 1)
	require.Equal(t, 48.85, got[0].Location.Lat)
}

func TestRemote_FrameStats(t *testing.T) {
	daemon := newFakeDaemon(t)
	r := newTestRemote(t, daemon)

	daemon.mu.Lock()
	daemon.frames = 42
	daemon.mu.Unlock()

	frames, err := r.FrameStats(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(42), frames)

	frames, err = r.FrameStats(context.Background())
	require.NoError(t, err)
	require.Zero(t, frames)
}

func TestRemote_CloseIsIdempotent(t *testing.T) {
	daemon := newFakeDaemon(t)
	r, err := NewRemote(context.Background(), &RemoteConfig{
		Address: daemon.addr(),
		Retry:   testRetryPolicy(),
	}, "c")
	require.NoError(t, err)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	daemon.mu.Lock()
	defer daemon.mu.Unlock()
	require.True(t, daemon.closed)

	err = r.AddSource(context.Background(), "s", geojson.NewFeatureCollection())
	require.Error(t, err)
}
