package cache

import "time"

// JanitorStore wraps a Store with a background sweep goroutine for hosts
// that want expired entries reclaimed even when keys are never read again.
// The opportunistic sweep on Set already bounds growth for write-active
// stores; the janitor covers write-idle ones.
type JanitorStore[V any] struct {
	*Store[V]
	stop chan struct{}
	done chan struct{}
}

// NewStoreWithJanitor creates a store that sweeps expired entries every
// sweepEvery in addition to the lazy expiration semantics of Store.
// Close must be called to stop the sweep goroutine.
func NewStoreWithJanitor[V any](ttl, sweepEvery time.Duration) *JanitorStore[V] {
	if sweepEvery <= 0 {
		sweepEvery = time.Minute
	}
	j := &JanitorStore[V]{
		Store: NewStore[V](ttl),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go j.run(sweepEvery)
	return j
}

func (j *JanitorStore[V]) run(sweepEvery time.Duration) {
	defer close(j.done)
	ticker := time.NewTicker(sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			j.Cleanup()
		case <-j.stop:
			return
		}
	}
}

// Close stops the sweep goroutine and clears the store. Idempotent.
func (j *JanitorStore[V]) Close() {
	select {
	case <-j.stop:
	default:
		close(j.stop)
	}
	<-j.done
	j.Clear()
}
