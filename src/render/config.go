package render

import (
	"time"

	"github.com/seuros/geoviz/src/logging"
)

// Config holds configuration options for the rendering layer.
type Config struct {
	// Caches holds TTL configuration for the three stores.
	Caches *CacheConfig

	// Limits holds display caps and batching thresholds.
	Limits *LimitsConfig

	// Observability holds telemetry configuration.
	Observability *ObservabilityConfig

	// Logging holds logging configuration.
	Logging *LoggingConfig
}

// CacheConfig sets the TTL per store. The three stores share eviction
// semantics but expire independently.
type CacheConfig struct {
	// DatasetTTL applies to raw fetched point sets.
	DatasetTTL time.Duration
	// InstanceTTL applies to live renderer instances held by the runtime.
	InstanceTTL time.Duration
	// VisualizationTTL applies to computed layer descriptors.
	VisualizationTTL time.Duration
}

// LimitsConfig caps displayed points per mode and tunes batch processing.
type LimitsConfig struct {
	// MarkerCap is the maximum points drawn in markers mode.
	MarkerCap int
	// ClusterCap is the maximum points fed to the cluster layer.
	ClusterCap int
	// ChunkSize is the batch processor chunk size for point transforms.
	ChunkSize int
	// TimelineBucket groups trajectory/timeline points into frames.
	TimelineBucket time.Duration
}

// ObservabilityConfig controls telemetry collection.
type ObservabilityConfig struct {
	// EnableTracing enables OpenTelemetry spans around render operations.
	EnableTracing bool
	// EnableMetrics enables OpenTelemetry metrics collection.
	EnableMetrics bool
}

// LoggingConfig holds logging configuration for the rendering layer.
type LoggingConfig struct {
	// Logger is the pluggable logger implementation.
	Logger logging.Logger
	// LogRenderTiming logs per-render durations at info level.
	LogRenderTiming bool
	// LogCacheEvents logs cache hits/misses at debug level.
	LogCacheEvents bool
	// LogBatchProgress logs chunk progress during large transforms.
	LogBatchProgress bool
}

// DefaultConfig returns a Config with the observed production constants:
// five-minute TTLs, a 5000 point marker cap, a 2000 point cluster cap and
// 1000-point transform chunks.
func DefaultConfig() *Config {
	return &Config{
		Caches: &CacheConfig{
			DatasetTTL:       5 * time.Minute,
			InstanceTTL:      5 * time.Minute,
			VisualizationTTL: 5 * time.Minute,
		},
		Limits: &LimitsConfig{
			MarkerCap:      5000,
			ClusterCap:     2000,
			ChunkSize:      1000,
			TimelineBucket: time.Hour,
		},
		Observability: &ObservabilityConfig{
			EnableTracing: true,
			EnableMetrics: true,
		},
		Logging: &LoggingConfig{
			Logger: &logging.NoOpLogger{},
		},
	}
}

// normalize fills nil sub-configs and zero values with defaults so callers
// can construct partial configs.
func (c *Config) normalize() *Config {
	if c == nil {
		return DefaultConfig()
	}
	def := DefaultConfig()
	if c.Caches == nil {
		c.Caches = def.Caches
	}
	if c.Limits == nil {
		c.Limits = def.Limits
	}
	if c.Limits.MarkerCap <= 0 {
		c.Limits.MarkerCap = def.Limits.MarkerCap
	}
	if c.Limits.ClusterCap <= 0 {
		c.Limits.ClusterCap = def.Limits.ClusterCap
	}
	if c.Limits.ChunkSize <= 0 {
		c.Limits.ChunkSize = def.Limits.ChunkSize
	}
	if c.Limits.TimelineBucket <= 0 {
		c.Limits.TimelineBucket = def.Limits.TimelineBucket
	}
	if c.Observability == nil {
		c.Observability = def.Observability
	}
	if c.Logging == nil {
		c.Logging = def.Logging
	}
	if c.Logging.Logger == nil {
		c.Logging.Logger = &logging.NoOpLogger{}
	}
	return c
}
