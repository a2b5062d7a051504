package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	geojson "github.com/paulmach/go.geojson"
	"github.com/yudhasubki/netpool"

	"github.com/seuros/geoviz/src/geo"
	"github.com/seuros/geoviz/src/loader"
	"github.com/seuros/geoviz/src/logging"
	"github.com/seuros/geoviz/src/render"
)

// RemoteConfig configures a remote render daemon connection.
type RemoteConfig struct {
	// Address is the daemon's TCP address, host:port.
	Address string
	// DialTimeout bounds a single dial attempt.
	DialTimeout time.Duration
	// Retry governs dial and ready-handshake retries.
	Retry *RetryPolicy
	// Logger receives connection and protocol events.
	Logger logging.Logger
}

func (c *RemoteConfig) normalize() *RemoteConfig {
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.Retry == nil {
		c.Retry = DefaultRetryPolicy()
	}
	if c.Logger == nil {
		c.Logger = &logging.NoOpLogger{}
	}
	return c
}

// Remote drives a render daemon over a pool of TCP connections. It
// implements the renderer's Backend interface; each call is one
// request/response exchange on a pooled connection.
type Remote struct {
	pool      *netpool.Netpool
	config    *RemoteConfig
	container string
	logger    logging.Logger

	mu       sync.Mutex
	handlers map[string][]render.ClickHandler
	closed   bool
}

// NewRemote opens a connection pool to the daemon and issues the create
// command binding a rendering surface to container.
func NewRemote(ctx context.Context, cfg *RemoteConfig, container string) (*Remote, error) {
	cfg = cfg.normalize()

	dialFn := func() (net.Conn, error) {
		cfg.Logger.Debug("Dialing render daemon", "address", cfg.Address)
		return net.DialTimeout("tcp", cfg.Address, cfg.DialTimeout)
	}

	pool, err := retry(ctx, cfg.Retry, func() (*netpool.Netpool, error) {
		return netpool.New(dialFn)
	})
	if err != nil {
		cfg.Logger.Error("Failed to create daemon connection pool", "address", cfg.Address, "error", err)
		return nil, fmt.Errorf("connecting to render daemon %s: %w", cfg.Address, err)
	}

	r := &Remote{
		pool:      pool,
		config:    cfg,
		container: container,
		logger:    cfg.Logger,
		handlers:  make(map[string][]render.ClickHandler),
	}

	if _, err := r.exchange(ctx, request{Op: opCreate, Container: container}); err != nil {
		pool.Close()
		return nil, err
	}
	r.logger.Info("Render surface created", "address", cfg.Address, "container", container)
	return r, nil
}

// Factory returns a BackendFactory that dials cfg.Address per container.
func Factory(cfg *RemoteConfig) render.BackendFactory {
	return render.BackendFactoryFunc(func(ctx context.Context, container string) (render.Backend, error) {
		return NewRemote(ctx, cfg, container)
	})
}

// exchange performs one request/response round trip on a pooled connection.
func (r *Remote) exchange(ctx context.Context, req request) (*response, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, errors.New("remote backend is closed")
	}
	r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	req.Container = r.container

	conn, err := r.pool.Get()
	defer r.pool.Put(conn, err)
	if err != nil {
		r.logger.Error("Failed to acquire daemon connection", "error", err)
		return nil, err
	}

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
		defer conn.SetDeadline(time.Time{})
	}

	if err = json.NewEncoder(conn).Encode(&req); err != nil {
		return nil, fmt.Errorf("sending %s: %w", req.Op, err)
	}
	var resp response
	if err = json.NewDecoder(conn).Decode(&resp); err != nil {
		return nil, fmt.Errorf("reading %s response: %w", req.Op, err)
	}
	if !resp.OK {
		return nil, fmt.Errorf("daemon rejected %s: %s", req.Op, resp.Error)
	}
	return &resp, nil
}

// WaitReady polls the daemon until the base map reports loaded, with the
// configured backoff between attempts.
func (r *Remote) WaitReady(ctx context.Context) error {
	_, err := retry(ctx, r.config.Retry, func() (struct{}, error) {
		resp, err := r.exchange(ctx, request{Op: opReady})
		if err != nil {
			return struct{}{}, err
		}
		if !resp.Ready {
			return struct{}{}, errors.New("render surface not ready")
		}
		return struct{}{}, nil
	})
	return err
}

func (r *Remote) AddSource(ctx context.Context, name string, data *geojson.FeatureCollection) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encoding source %s: %w", name, err)
	}
	_, err = r.exchange(ctx, request{Op: opAddSource, Name: name, Data: raw})
	return err
}

func (r *Remote) RemoveSource(ctx context.Context, name string) error {
	_, err := r.exchange(ctx, request{Op: opRemoveSource, Name: name})
	return err
}

func (r *Remote) AddLayer(ctx context.Context, layer render.LayerSpec) error {
	_, err := r.exchange(ctx, request{Op: opAddLayer, Layer: &layer})
	return err
}

func (r *Remote) RemoveLayer(ctx context.Context, name string) error {
	_, err := r.exchange(ctx, request{Op: opRemoveLayer, Name: name})
	return err
}

func (r *Remote) FitBounds(ctx context.Context, sw, ne geo.Location) error {
	_, err := r.exchange(ctx, request{
		Op: opFitBounds,
		SW: &coordinate{Lat: sw.Lat, Lon: sw.Lon},
		NE: &coordinate{Lat: ne.Lat, Lon: ne.Lon},
	})
	return err
}

// RegisterClickHandler records a handler; events arrive via PumpEvents.
func (r *Remote) RegisterClickHandler(layer string, handler render.ClickHandler) {
	r.mu.Lock()
	r.handlers[layer] = append(r.handlers[layer], handler)
	r.mu.Unlock()
}

// PumpEvents fetches pending daemon events and dispatches them to the
// registered handlers. Hosts call this from their event loop.
func (r *Remote) PumpEvents(ctx context.Context) error {
	resp, err := r.exchange(ctx, request{Op: opPollEvents})
	if err != nil {
		return err
	}

	r.mu.Lock()
	handlers := make(map[string][]render.ClickHandler, len(r.handlers))
	for layer, hs := range r.handlers {
		handlers[layer] = hs
	}
	r.mu.Unlock()

	for _, ev := range resp.Events {
		for _, h := range handlers[ev.Layer] {
			h(render.ClickEvent{
				Layer:    ev.Layer,
				Location: geo.Location{Lat: ev.At.Lat, Lon: ev.At.Lon},
			})
		}
	}
	return nil
}

// FrameStats returns the frames drawn since the previous call. Hosts feed
// the result to the performance monitor.
func (r *Remote) FrameStats(ctx context.Context) (int64, error) {
	resp, err := r.exchange(ctx, request{Op: opFrameStats})
	if err != nil {
		return 0, err
	}
	return resp.Frames, nil
}

// CountInPolygon asks the daemon's geometry primitive how many currently
// sourced points fall inside the WKT polygon.
func (r *Remote) CountInPolygon(ctx context.Context, wkt string) (int, error) {
	raw, err := json.Marshal(wkt)
	if err != nil {
		return 0, err
	}
	resp, err := r.exchange(ctx, request{Op: opCountInFence, Data: raw})
	if err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// ModuleProvider exposes the daemon's load_module op as a loader.Provider,
// so dynamically loaded capabilities share the renderer's single-flight
// loader.
func (r *Remote) ModuleProvider() loader.Provider {
	return loader.ProviderFunc(func(ctx context.Context, name string) (loader.Module, error) {
		resp, err := r.exchange(ctx, request{Op: opLoadModule, Name: name})
		if err != nil {
			return nil, err
		}
		return &remoteModule{name: name, version: resp.Version}, nil
	})
}

type remoteModule struct {
	name    string
	version string
}

func (m *remoteModule) Name() string    { return m.name }
func (m *remoteModule) Version() string { return m.version }

// Close releases the surface and the connection pool. Idempotent.
func (r *Remote) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := r.exchange(ctx, request{Op: opClose})

	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.pool.Close()
	if err != nil {
		r.logger.Warn("Close exchange failed, pool released anyway", "error", err)
	}
	return nil
}
