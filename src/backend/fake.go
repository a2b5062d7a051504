package backend

import (
	"context"
	"errors"
	"sync"
	"time"

	geojson "github.com/paulmach/go.geojson"

	"github.com/seuros/geoviz/src/geo"
	"github.com/seuros/geoviz/src/render"
)

// Fake is an in-memory Backend for tests and dry runs. It records every
// source and layer mutation and can inject readiness delays and failures.
type Fake struct {
	// ReadyDelay is how long WaitReady blocks before succeeding.
	ReadyDelay time.Duration
	// FailOn makes the named method return FailErr.
	FailOn map[string]bool
	// FailErr is the error injected by FailOn. Defaults to a generic error.
	FailErr error

	mu       sync.Mutex
	sources  map[string]*geojson.FeatureCollection
	layers   map[string]render.LayerSpec
	order    []string
	handlers map[string][]render.ClickHandler
	bounds   [2]geo.Location
	fitted   bool
	closed   bool
	ops      []string
}

// NewFake returns a ready-to-use fake backend.
func NewFake() *Fake {
	return &Fake{
		sources:  make(map[string]*geojson.FeatureCollection),
		layers:   make(map[string]render.LayerSpec),
		handlers: make(map[string][]render.ClickHandler),
	}
}

// FakeFactory returns a BackendFactory handing out the same fake for every
// container, so tests can inspect it after the renderer runs.
func FakeFactory(f *Fake) render.BackendFactory {
	return render.BackendFactoryFunc(func(ctx context.Context, container string) (render.Backend, error) {
		if f.fail("Create") != nil {
			return nil, f.fail("Create")
		}
		return f, nil
	})
}

func (f *Fake) fail(method string) error {
	if f.FailOn != nil && f.FailOn[method] {
		if f.FailErr != nil {
			return f.FailErr
		}
		return errors.New("injected failure: " + method)
	}
	return nil
}

func (f *Fake) record(op string) {
	f.ops = append(f.ops, op)
}

func (f *Fake) WaitReady(ctx context.Context) error {
	if err := f.fail("WaitReady"); err != nil {
		return err
	}
	if f.ReadyDelay > 0 {
		select {
		case <-time.After(f.ReadyDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return ctx.Err()
}

func (f *Fake) AddSource(ctx context.Context, name string, data *geojson.FeatureCollection) error {
	if err := f.fail("AddSource"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("fake backend is closed")
	}
	f.sources[name] = data
	f.record("add_source:" + name)
	return nil
}

func (f *Fake) RemoveSource(ctx context.Context, name string) error {
	if err := f.fail("RemoveSource"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sources, name)
	f.record("remove_source:" + name)
	return nil
}

func (f *Fake) AddLayer(ctx context.Context, layer render.LayerSpec) error {
	if err := f.fail("AddLayer"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("fake backend is closed")
	}
	if _, exists := f.layers[layer.ID]; !exists {
		f.order = append(f.order, layer.ID)
	}
	f.layers[layer.ID] = layer
	f.record("add_layer:" + layer.ID)
	return nil
}

func (f *Fake) RemoveLayer(ctx context.Context, name string) error {
	if err := f.fail("RemoveLayer"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.layers, name)
	for i, id := range f.order {
		if id == name {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
	f.record("remove_layer:" + name)
	return nil
}

func (f *Fake) FitBounds(ctx context.Context, sw, ne geo.Location) error {
	if err := f.fail("FitBounds"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bounds = [2]geo.Location{sw, ne}
	f.fitted = true
	f.record("fit_bounds")
	return nil
}

func (f *Fake) RegisterClickHandler(layer string, handler render.ClickHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[layer] = append(f.handlers[layer], handler)
}

// Click dispatches a synthetic click event to handlers on layer.
func (f *Fake) Click(layer string, at geo.Location) {
	f.mu.Lock()
	handlers := append([]render.ClickHandler(nil), f.handlers[layer]...)
	f.mu.Unlock()
	for _, h := range handlers {
		h(render.ClickEvent{Layer: layer, Location: at})
	}
}

func (f *Fake) Close() error {
	if err := f.fail("Close"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.record("close")
	return nil
}

// Source returns the feature collection currently installed under name.
func (f *Fake) Source(name string) *geojson.FeatureCollection {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sources[name]
}

// Layers returns the installed layer IDs in insertion order.
func (f *Fake) Layers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.order...)
}

// Layer returns the installed layer spec for id.
func (f *Fake) Layer(id string) (render.LayerSpec, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.layers[id]
	return l, ok
}

// Bounds reports the last FitBounds call, if any.
func (f *Fake) Bounds() (sw, ne geo.Location, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bounds[0], f.bounds[1], f.fitted
}

// Ops returns the recorded mutation log.
func (f *Fake) Ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ops...)
}

// Closed reports whether Close has been called.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
