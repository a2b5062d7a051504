// Package monitor samples frame rate and memory usage on a recurring basis
// and retains a bounded history for averaged metrics. It is advisory
// instrumentation: nothing in here returns errors to render control flow.
package monitor

import (
	"runtime"
	"sync"
	"time"

	"github.com/seuros/geoviz/src/logging"
)

const (
	// DefaultSampleInterval is the wall-clock period between samples.
	DefaultSampleInterval = time.Second
	// DefaultRingSize bounds the retained sample history.
	DefaultRingSize = 60
	// DefaultLowFPSThreshold triggers a degradation report when the
	// sampled frame rate falls below it while frames are flowing.
	DefaultLowFPSThreshold = 30.0
)

// Sample is one point-in-time measurement.
type Sample struct {
	FPS         float64
	MemoryMB    float64
	MemoryValid bool
	SampledAt   time.Time
}

// Metrics is the aggregate view returned to callers.
type Metrics struct {
	FPS        float64
	AvgFPS     float64
	MemoryMB   float64
	LoadTime   time.Duration
	RenderTime time.Duration
}

// MemorySource reports current memory usage in MB. The ok result is false
// when the host has no memory introspection; the sample then skips the
// field instead of recording zero.
type MemorySource func() (mb float64, ok bool)

// RuntimeMemory reads the Go heap via runtime.ReadMemStats.
func RuntimeMemory() (float64, bool) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return float64(ms.HeapAlloc) / (1024 * 1024), true
}

// Options configure a Monitor.
type Options struct {
	SampleInterval  time.Duration
	RingSize        int
	LowFPSThreshold float64
	Memory          MemorySource
	Logger          logging.Logger
}

// Monitor owns the sampling loop and the bounded sample ring.
type Monitor struct {
	interval     time.Duration
	lowFPS       float64
	memory       MemorySource
	logger       logging.Logger
	instruments  *instruments
	mu           sync.Mutex
	ring         []Sample
	ringHead     int
	ringCount    int
	frameCount   int64
	lastLoadTime time.Duration
	lastRender   time.Duration
	running      bool
	stop         chan struct{}
	done         chan struct{}
}

// New creates a stopped Monitor. Call Start to begin sampling.
func New(opts Options) *Monitor {
	if opts.SampleInterval <= 0 {
		opts.SampleInterval = DefaultSampleInterval
	}
	if opts.RingSize <= 0 {
		opts.RingSize = DefaultRingSize
	}
	if opts.LowFPSThreshold <= 0 {
		opts.LowFPSThreshold = DefaultLowFPSThreshold
	}
	if opts.Memory == nil {
		opts.Memory = RuntimeMemory
	}
	if opts.Logger == nil {
		opts.Logger = &logging.NoOpLogger{}
	}
	return &Monitor{
		interval:    opts.SampleInterval,
		lowFPS:      opts.LowFPSThreshold,
		memory:      opts.Memory,
		logger:      opts.Logger,
		instruments: initInstruments(),
		ring:        make([]Sample, opts.RingSize),
	}
}

// Start launches the recurring sampler. Idempotent.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.running = true
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go m.run(m.stop, m.done)
	m.logger.Debug("Performance monitor started", "interval", m.interval)
}

// Stop halts the sampler. Idempotent; retained samples survive a Stop so
// Metrics stays meaningful across pauses.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	stop, done := m.stop, m.done
	m.mu.Unlock()

	close(stop)
	<-done
	m.logger.Debug("Performance monitor stopped")
}

// Running reports whether the sampler is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Monitor) run(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case now := <-ticker.C:
			m.sample(now, now.Sub(last))
			last = now
		case <-stop:
			return
		}
	}
}

// FrameTick records one rendered frame. The backend client calls this for
// every frame stat it receives; hosts driving their own draw loop call it
// directly.
func (m *Monitor) FrameTick() {
	m.mu.Lock()
	m.frameCount++
	m.mu.Unlock()
}

func (m *Monitor) sample(now time.Time, elapsed time.Duration) {
	if elapsed <= 0 {
		elapsed = m.interval
	}

	m.mu.Lock()
	frames := m.frameCount
	m.frameCount = 0
	m.mu.Unlock()

	s := Sample{
		FPS:       float64(frames) / elapsed.Seconds(),
		SampledAt: now,
	}
	if mb, ok := m.memory(); ok {
		s.MemoryMB = mb
		s.MemoryValid = true
	}

	m.mu.Lock()
	m.ring[m.ringHead] = s
	m.ringHead = (m.ringHead + 1) % len(m.ring)
	if m.ringCount < len(m.ring) {
		m.ringCount++
	}
	m.mu.Unlock()

	m.instruments.recordSample(s)

	if frames > 0 && s.FPS < m.lowFPS {
		m.LogIssue("frame rate dropped", "fps", s.FPS, "threshold", m.lowFPS)
	}
}

// MeasureLoadTime records the elapsed time since start as the most recent
// load measurement and returns it.
func (m *Monitor) MeasureLoadTime(start time.Time) time.Duration {
	elapsed := time.Since(start)
	m.mu.Lock()
	m.lastLoadTime = elapsed
	m.mu.Unlock()
	m.instruments.recordLoadTime(elapsed)
	return elapsed
}

// MeasureRenderTime wraps a single render operation, records its wall-clock
// duration, and passes the operation's error through untouched.
func (m *Monitor) MeasureRenderTime(fn func() error) (time.Duration, error) {
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)

	m.mu.Lock()
	m.lastRender = elapsed
	m.mu.Unlock()
	m.instruments.recordRenderTime(elapsed, err)
	return elapsed, err
}

// Metrics returns the latest sample values plus the mean FPS over the ring.
func (m *Monitor) Metrics() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := Metrics{
		LoadTime:   m.lastLoadTime,
		RenderTime: m.lastRender,
	}
	if m.ringCount == 0 {
		return out
	}

	latest := m.ring[(m.ringHead-1+len(m.ring))%len(m.ring)]
	out.FPS = latest.FPS
	out.MemoryMB = latest.MemoryMB

	var sum float64
	for i := 0; i < m.ringCount; i++ {
		sum += m.ring[(m.ringHead-1-i+2*len(m.ring))%len(m.ring)].FPS
	}
	out.AvgFPS = sum / float64(m.ringCount)
	return out
}

// Samples returns a copy of the retained ring, oldest first.
func (m *Monitor) Samples() []Sample {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Sample, 0, m.ringCount)
	start := (m.ringHead - m.ringCount + len(m.ring)) % len(m.ring)
	for i := 0; i < m.ringCount; i++ {
		out = append(out, m.ring[(start+i)%len(m.ring)])
	}
	return out
}

// LogIssue reports a non-fatal performance degradation. It is a structured
// logging hook, never a control-flow signal: it does not block and cannot
// fail.
func (m *Monitor) LogIssue(issue string, keysAndValues ...interface{}) {
	m.logger.Warn("Performance issue: "+issue, keysAndValues...)
	m.instruments.recordIssue(issue)
}
