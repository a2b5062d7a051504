// Package loader implements single-flight loading of named capability
// modules. Completed loads are memoized for the lifetime of the Loader;
// concurrent requests for the same name share one underlying fetch; a failed
// load is reported to every waiter and leaves the name retriable.
package loader

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Module is a loaded capability handle.
type Module interface {
	// Name returns the capability name the module was loaded under.
	Name() string
}

// Provider materializes a named module. Implementations decide what loading
// means: asking a remote backend, opening a plugin, returning a local
// registration. Fetch may be called at most once per name at a time.
type Provider interface {
	Fetch(ctx context.Context, name string) (Module, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, name string) (Module, error)

func (f ProviderFunc) Fetch(ctx context.Context, name string) (Module, error) {
	return f(ctx, name)
}

// ModuleLoadError reports a failed load attempt. Failures are not cached;
// a later Load for the same name starts a fresh fetch.
type ModuleLoadError struct {
	Name  string
	Cause error
}

func (e *ModuleLoadError) Error() string {
	return fmt.Sprintf("loading module %q: %v", e.Name, e.Cause)
}

func (e *ModuleLoadError) Unwrap() error {
	return e.Cause
}

// Loader de-duplicates concurrent loads per name and memoizes successes.
type Loader struct {
	provider Provider
	flight   singleflight.Group

	mu     sync.RWMutex
	loaded map[string]Module
}

// New creates a Loader backed by provider.
func New(provider Provider) *Loader {
	return &Loader{
		provider: provider,
		loaded:   make(map[string]Module),
	}
}

// Load returns the module registered under name, fetching it through the
// provider on first use. At most one fetch per name is in flight at any
// time; every concurrent caller receives the result of that single fetch.
func (l *Loader) Load(ctx context.Context, name string) (Module, error) {
	l.mu.RLock()
	mod, ok := l.loaded[name]
	l.mu.RUnlock()
	if ok {
		return mod, nil
	}

	v, err, _ := l.flight.Do(name, func() (interface{}, error) {
		// Re-check: a previous flight may have completed between the
		// read above and this one being scheduled.
		l.mu.RLock()
		mod, ok := l.loaded[name]
		l.mu.RUnlock()
		if ok {
			return mod, nil
		}

		mod, err := l.provider.Fetch(ctx, name)
		if err != nil {
			return nil, &ModuleLoadError{Name: name, Cause: err}
		}

		l.mu.Lock()
		l.loaded[name] = mod
		l.mu.Unlock()
		return mod, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Module), nil
}

// Loaded reports whether name has completed a successful load.
func (l *Loader) Loaded(name string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.loaded[name]
	return ok
}

// Names returns the names of all loaded modules.
func (l *Loader) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.loaded))
	for name := range l.loaded {
		names = append(names, name)
	}
	return names
}

// Reset drops all memoized modules. In-flight loads are unaffected; their
// results will repopulate the loaded set on completion.
func (l *Loader) Reset() {
	l.mu.Lock()
	l.loaded = make(map[string]Module)
	l.mu.Unlock()
}
