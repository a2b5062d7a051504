// Package geo holds the coordinate model shared by the fetch and render
// layers: points, point sets, coordinate validation, reservoir sampling,
// trajectory ordering and polygon containment.
package geo

import (
	"fmt"
	"math/rand"
	"sort"
	"time"
)

// Location is a bare latitude/longitude pair.
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Point is a single geographic observation. Timestamp is unix seconds;
// zero means the source record carried no time information.
type Point struct {
	Lat       float64           `json:"lat"`
	Lon       float64           `json:"lon"`
	Timestamp int64             `json:"timestamp,omitempty"`
	Attrs     map[string]string `json:"attrs,omitempty"`
}

// Valid reports whether the point's coordinates are inside the legal
// latitude/longitude ranges.
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// PointSet is an ordered sequence of points plus the declared total of the
// source dataset and a focal point. Transforms produce new slices; a
// PointSet is never mutated in place after construction.
type PointSet struct {
	DataType string
	Points   []Point
	Total    int
	Center   Location
	// Truncated is set when the source held more rows than Points carries
	// (the dataset endpoint caps raw payloads).
	Truncated bool
}

// ValidationError reports points rejected before entering the pipeline.
type ValidationError struct {
	Reason  string
	Dropped int
}

func (e *ValidationError) Error() string {
	if e.Dropped > 0 {
		return fmt.Sprintf("point validation: %s (%d points rejected)", e.Reason, e.Dropped)
	}
	return "point validation: " + e.Reason
}

// FilterValid returns the points with in-range coordinates, preserving
// order, and the count of rejected points. Out-of-range coordinates are
// rejected outright, never clamped.
func FilterValid(points []Point) ([]Point, int) {
	valid := make([]Point, 0, len(points))
	for _, p := range points {
		if p.Valid() {
			valid = append(valid, p)
		}
	}
	return valid, len(points) - len(valid)
}

// ValidateSet filters ps.Points and fails with a *ValidationError when no
// valid points remain — an empty validated set is an error, not a silent
// zero-point render.
func ValidateSet(ps PointSet) (PointSet, error) {
	valid, dropped := FilterValid(ps.Points)
	if len(valid) == 0 {
		return PointSet{}, &ValidationError{Reason: "no valid coordinates in dataset", Dropped: dropped}
	}
	out := ps
	out.Points = valid
	if out.Total == 0 {
		out.Total = len(valid)
	}
	if out.Center == (Location{}) {
		out.Center = MedianCenter(valid)
	}
	return out, nil
}

// MedianCenter returns the per-axis median of the points, matching the
// dataset service's center estimate. Returns the zero Location for empty
// input.
func MedianCenter(points []Point) Location {
	if len(points) == 0 {
		return Location{}
	}
	lats := make([]float64, len(points))
	lons := make([]float64, len(points))
	for i, p := range points {
		lats[i] = p.Lat
		lons[i] = p.Lon
	}
	sort.Float64s(lats)
	sort.Float64s(lons)
	return Location{Lat: median(lats), Lon: median(lons)}
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// Bounds returns the bounding box of the points as (southwest, northeast).
func Bounds(points []Point) (Location, Location) {
	if len(points) == 0 {
		return Location{}, Location{}
	}
	sw := Location{Lat: points[0].Lat, Lon: points[0].Lon}
	ne := sw
	for _, p := range points[1:] {
		if p.Lat < sw.Lat {
			sw.Lat = p.Lat
		}
		if p.Lat > ne.Lat {
			ne.Lat = p.Lat
		}
		if p.Lon < sw.Lon {
			sw.Lon = p.Lon
		}
		if p.Lon > ne.Lon {
			ne.Lon = p.Lon
		}
	}
	return sw, ne
}

// ReservoirSample selects k points uniformly at random from points without
// bias toward the prefix. When k >= len(points) the input is returned as a
// copy. Passing a nil rng uses a time-seeded source.
func ReservoirSample(points []Point, k int, rng *rand.Rand) []Point {
	if k <= 0 {
		return nil
	}
	if k >= len(points) {
		out := make([]Point, len(points))
		copy(out, points)
		return out
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	reservoir := make([]Point, k)
	copy(reservoir, points[:k])
	for i := k; i < len(points); i++ {
		j := rng.Intn(i + 1)
		if j < k {
			reservoir[j] = points[i]
		}
	}
	return reservoir
}

// OrderByTimestamp returns the points sorted by ascending timestamp for
// trajectory rendering. Points with no timestamp are assigned a synthetic
// monotonically increasing sequence ending at now, so ordering stays stable
// for datasets with partial or absent time data.
func OrderByTimestamp(points []Point, now time.Time) []Point {
	out := make([]Point, len(points))
	copy(out, points)

	missing := 0
	for _, p := range out {
		if p.Timestamp == 0 {
			missing++
		}
	}
	if missing > 0 {
		// Synthetic stamps occupy [now-missing+1, now] in input order.
		next := now.Unix() - int64(missing) + 1
		for i := range out {
			if out[i].Timestamp == 0 {
				out[i].Timestamp = next
				next++
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp < out[j].Timestamp
	})
	return out
}
