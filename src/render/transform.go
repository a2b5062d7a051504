package render

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	geojson "github.com/paulmach/go.geojson"

	"github.com/seuros/geoviz/src/batch"
	"github.com/seuros/geoviz/src/geo"
)

// Source and layer names are fixed per renderer: installing a new
// visualization always replaces the previous one under the same names.
const (
	sourcePoints   = "viz-points"
	sourceFence    = "viz-fence"
	layerPoints    = "viz-layer"
	layerFenceFill = "viz-fence-fill"
)

// pointFeature converts one point to a GeoJSON feature. GeoJSON positions
// are [lon, lat].
func pointFeature(p geo.Point) *geojson.Feature {
	f := geojson.NewPointFeature([]float64{p.Lon, p.Lat})
	if p.Timestamp != 0 {
		f.SetProperty("timestamp", p.Timestamp)
	}
	for k, v := range p.Attrs {
		f.SetProperty(k, v)
	}
	return f
}

// featuresFromPoints runs the points through the batch processor with the
// configured chunk size, yielding periodically so a large transform cannot
// starve interleaved work.
func (r *Renderer) featuresFromPoints(ctx context.Context, points []geo.Point) (*geojson.FeatureCollection, error) {
	transform := batch.Map(func(p geo.Point) (*geojson.Feature, error) {
		return pointFeature(p), nil
	})

	opts := batch.Options{ChunkSize: r.config.Limits.ChunkSize}
	if r.config.Logging.LogBatchProgress {
		logger := r.logger
		opts.OnProgress = func(fraction float64, processed int) {
			logger.Debug("Transform progress", "percent", int(fraction*100), "processed", processed)
		}
	}

	features, err := batch.Process(ctx, points, transform, opts)
	if err != nil {
		return nil, err
	}

	fc := geojson.NewFeatureCollection()
	fc.Features = features
	return fc, nil
}

// build dispatches to the mode-specific descriptor builder. The returned
// Visualization has not been applied to any backend yet.
func (r *Renderer) build(ctx context.Context, ps geo.PointSet, mode Mode, opts Options) (*Visualization, error) {
	switch mode {
	case ModeMarkers:
		return r.buildCapped(ctx, ps, mode, opts, r.config.Limits.MarkerCap, LayerCircle)
	case ModeClusters:
		return r.buildCapped(ctx, ps, mode, opts, r.config.Limits.ClusterCap, LayerCluster)
	case ModeHeatmap:
		return r.buildHeatmap(ctx, ps, opts)
	case ModeTrajectory:
		return r.buildTrajectory(ctx, ps, opts)
	case ModeGeofence:
		return r.buildGeofence(ctx, ps, opts)
	case ModeTimeline:
		return r.buildTimeline(ctx, ps, opts)
	default:
		return nil, fmt.Errorf("unknown visualization mode %q", mode)
	}
}

// buildCapped handles markers and clusters: both cap displayed points and
// down-sample uniformly (reservoir, not prefix) when the input exceeds the
// cap, flagging the truncation for the caller.
func (r *Renderer) buildCapped(ctx context.Context, ps geo.PointSet, mode Mode, opts Options, limit int, kind LayerKind) (*Visualization, error) {
	if opts.MaxPoints > 0 {
		limit = opts.MaxPoints
	}

	points := ps.Points
	truncated := false
	if len(points) > limit {
		points = geo.ReservoirSample(points, limit, rand.New(rand.NewSource(time.Now().UnixNano())))
		truncated = true
		r.logger.Warn("Point count exceeds display cap, down-sampling",
			"mode", mode, "input", len(ps.Points), "cap", limit)
	}

	fc, err := r.featuresFromPoints(ctx, points)
	if err != nil {
		return nil, err
	}

	paint := opts.Paint
	if kind == LayerCluster && opts.ClusterRadius > 0 {
		paint = withPaint(paint, "cluster-radius", opts.ClusterRadius)
	}

	vis := r.newVisualization(mode, points)
	vis.Sources[sourcePoints] = fc
	vis.Layers = []LayerSpec{{ID: layerPoints, Kind: kind, Source: sourcePoints, Paint: paint}}
	vis.Truncated = truncated
	return vis, nil
}

// buildHeatmap applies no point cap: the backend aggregates density. Large
// inputs still go through the chunked transform for responsiveness.
func (r *Renderer) buildHeatmap(ctx context.Context, ps geo.PointSet, opts Options) (*Visualization, error) {
	fc, err := r.featuresFromPoints(ctx, ps.Points)
	if err != nil {
		return nil, err
	}

	paint := opts.Paint
	if opts.HeatmapIntensity > 0 {
		paint = withPaint(paint, "heatmap-intensity", opts.HeatmapIntensity)
	}
	if opts.HeatmapRadius > 0 {
		paint = withPaint(paint, "heatmap-radius", opts.HeatmapRadius)
	}

	vis := r.newVisualization(ModeHeatmap, ps.Points)
	vis.Sources[sourcePoints] = fc
	vis.Layers = []LayerSpec{{ID: layerPoints, Kind: LayerHeatmap, Source: sourcePoints, Paint: paint}}
	return vis, nil
}

// buildTrajectory orders points by timestamp and connects them into a path.
func (r *Renderer) buildTrajectory(ctx context.Context, ps geo.PointSet, opts Options) (*Visualization, error) {
	ordered := geo.OrderByTimestamp(ps.Points, time.Now())

	transform := func(chunk []geo.Point) ([][]float64, error) {
		coords := make([][]float64, len(chunk))
		for i, p := range chunk {
			coords[i] = []float64{p.Lon, p.Lat}
		}
		return coords, nil
	}
	coords, err := batch.Process(ctx, ordered, transform, batch.Options{ChunkSize: r.config.Limits.ChunkSize})
	if err != nil {
		return nil, err
	}

	fc := geojson.NewFeatureCollection()
	fc.AddFeature(geojson.NewLineStringFeature(coords))

	vis := r.newVisualization(ModeTrajectory, ordered)
	vis.Sources[sourcePoints] = fc
	vis.Layers = []LayerSpec{{ID: layerPoints, Kind: LayerLine, Source: sourcePoints, Paint: opts.Paint}}
	return vis, nil
}

// buildGeofence renders the boundary polygon plus the raw points and counts
// how many points fall inside the fence.
func (r *Renderer) buildGeofence(ctx context.Context, ps geo.PointSet, opts Options) (*Visualization, error) {
	if opts.GeofenceWKT == "" {
		return nil, &geo.ValidationError{Reason: "geofence mode requires a boundary polygon"}
	}
	fence, err := geo.ParseWKTPolygon(opts.GeofenceWKT)
	if err != nil {
		return nil, err
	}

	fc, err := r.featuresFromPoints(ctx, ps.Points)
	if err != nil {
		return nil, err
	}

	ring := make([][]float64, 0, len(fence.Ring)+1)
	for _, v := range fence.Ring {
		ring = append(ring, []float64{v.Lon, v.Lat})
	}
	ring = append(ring, []float64{fence.Ring[0].Lon, fence.Ring[0].Lat})
	fenceFC := geojson.NewFeatureCollection()
	fenceFC.AddFeature(geojson.NewPolygonFeature([][][]float64{ring}))

	vis := r.newVisualization(ModeGeofence, ps.Points)
	vis.Sources[sourcePoints] = fc
	vis.Sources[sourceFence] = fenceFC
	vis.Layers = []LayerSpec{
		{ID: layerFenceFill, Kind: LayerFill, Source: sourceFence, Paint: opts.Paint},
		{ID: layerPoints, Kind: LayerCircle, Source: sourcePoints},
	}
	vis.GeofenceCount = fence.CountInside(ps.Points)
	return vis, nil
}

// buildTimeline buckets points into time frames so hosts can animate them.
func (r *Renderer) buildTimeline(ctx context.Context, ps geo.PointSet, opts Options) (*Visualization, error) {
	bucket := r.config.Limits.TimelineBucket
	if opts.TimelineBucketSec > 0 {
		bucket = time.Duration(opts.TimelineBucketSec) * time.Second
	}

	ordered := geo.OrderByTimestamp(ps.Points, time.Now())
	origin := ordered[0].Timestamp
	bucketSec := int64(bucket / time.Second)
	if bucketSec < 1 {
		bucketSec = 1
	}

	transform := batch.Map(func(p geo.Point) (*geojson.Feature, error) {
		f := pointFeature(p)
		f.SetProperty("frame", (p.Timestamp-origin)/bucketSec)
		return f, nil
	})
	features, err := batch.Process(ctx, ordered, transform, batch.Options{ChunkSize: r.config.Limits.ChunkSize})
	if err != nil {
		return nil, err
	}

	fc := geojson.NewFeatureCollection()
	fc.Features = features

	vis := r.newVisualization(ModeTimeline, ordered)
	vis.Sources[sourcePoints] = fc
	vis.Layers = []LayerSpec{{ID: layerPoints, Kind: LayerCircle, Source: sourcePoints, Paint: opts.Paint}}
	last := ordered[len(ordered)-1].Timestamp
	vis.TimelineBuckets = int((last-origin)/bucketSec) + 1
	return vis, nil
}

func (r *Renderer) newVisualization(mode Mode, points []geo.Point) *Visualization {
	sw, ne := geo.Bounds(points)
	return &Visualization{
		Mode:     mode,
		Sources:  make(map[string]*geojson.FeatureCollection),
		SW:       sw,
		NE:       ne,
		Rendered: len(points),
		BuiltAt:  time.Now(),
	}
}

func withPaint(paint map[string]interface{}, key string, value interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(paint)+1)
	for k, v := range paint {
		out[k] = v
	}
	out[key] = value
	return out
}
