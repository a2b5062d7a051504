package render

import (
	"encoding/json"
	"fmt"
	"time"

	geojson "github.com/paulmach/go.geojson"

	"github.com/seuros/geoviz/src/geo"
)

// Mode selects the visualization variant. A renderer shows exactly one
// visualization at a time; requesting a new mode or dataset supersedes the
// previous one, never layers on top of it.
type Mode string

const (
	ModeMarkers    Mode = "markers"
	ModeClusters   Mode = "clusters"
	ModeHeatmap    Mode = "heatmap"
	ModeTrajectory Mode = "trajectory"
	ModeGeofence   Mode = "geofence"
	ModeTimeline   Mode = "timeline"
)

// Modes lists every supported visualization mode.
func Modes() []Mode {
	return []Mode{ModeMarkers, ModeClusters, ModeHeatmap, ModeTrajectory, ModeGeofence, ModeTimeline}
}

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	for _, m := range Modes() {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown visualization mode %q", s)
}

// Options carries the mode-specific parameters of a render request. Only
// the fields relevant to the requested mode are consulted; all fields
// participate in the cache key so option changes miss the cache.
type Options struct {
	// ClusterRadius is the cluster aggregation radius in pixels.
	ClusterRadius float64 `json:"cluster_radius,omitempty"`
	// HeatmapIntensity scales the heatmap density curve.
	HeatmapIntensity float64 `json:"heatmap_intensity,omitempty"`
	// HeatmapRadius is the per-point influence radius in pixels.
	HeatmapRadius float64 `json:"heatmap_radius,omitempty"`
	// GeofenceWKT is the geofence boundary as a WKT POLYGON. Required for
	// ModeGeofence.
	GeofenceWKT string `json:"geofence_wkt,omitempty"`
	// MaxPoints overrides the configured display cap for markers/clusters.
	MaxPoints int `json:"max_points,omitempty"`
	// TimelineBucket overrides the configured bucket width for
	// ModeTimeline, in seconds.
	TimelineBucketSec int64 `json:"timeline_bucket_sec,omitempty"`
	// Paint is passed through to the backend's layer style untouched.
	Paint map[string]interface{} `json:"paint,omitempty"`
}

// Visualization is a computed, backend-ready layer descriptor. It is what
// the visualization cache stores: on a cache hit the descriptor is
// re-applied to the backend without a second batch transform.
type Visualization struct {
	Mode      Mode
	Key       string
	RequestID string

	// Sources and Layers are applied to the backend in order.
	Sources map[string]*geojson.FeatureCollection
	Layers  []LayerSpec

	// SW/NE bound the rendered points for viewport fitting.
	SW, NE geo.Location

	// Rendered is the number of points in the applied layers. Truncated is
	// set when the input exceeded the display cap and was down-sampled.
	Rendered  int
	Truncated bool

	// GeofenceCount is the number of input points inside the fence.
	// Only meaningful for ModeGeofence.
	GeofenceCount int

	// TimelineBuckets is the number of time frames. Only meaningful for
	// ModeTimeline.
	TimelineBuckets int

	BuiltAt time.Time
}

// cacheKey derives the visualization cache key deterministically from the
// request parameters that produce the descriptor: the dataset identifier,
// the mode and the serialized options. Identical requests inside the TTL
// window therefore hit the cache.
func cacheKey(dataType string, mode Mode, opts Options) string {
	serialized, err := json.Marshal(opts)
	if err != nil {
		// Paint may hold unmarshalable host values; fall back to %+v.
		serialized = []byte(fmt.Sprintf("%+v", opts))
	}
	return fmt.Sprintf("%s|%s|%s", dataType, mode, serialized)
}
