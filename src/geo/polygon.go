package geo

import "fmt"

// Polygon is a closed boundary given as an ordered ring of vertices.
// The ring may be supplied open (first != last); containment treats it as
// implicitly closed.
type Polygon struct {
	Ring []Location
}

// NewPolygon validates and builds a polygon from its vertices.
func NewPolygon(ring []Location) (Polygon, error) {
	// A closing vertex equal to the first is tolerated and dropped.
	if n := len(ring); n > 1 && ring[0] == ring[n-1] {
		ring = ring[:n-1]
	}
	if len(ring) < 3 {
		return Polygon{}, fmt.Errorf("polygon needs at least 3 distinct vertices, got %d", len(ring))
	}
	for i, v := range ring {
		if v.Lat < -90 || v.Lat > 90 || v.Lon < -180 || v.Lon > 180 {
			return Polygon{}, fmt.Errorf("polygon vertex %d out of range: lat=%v lon=%v", i, v.Lat, v.Lon)
		}
	}
	return Polygon{Ring: ring}, nil
}

// Contains reports whether the point lies inside the polygon using the
// ray-casting (even-odd) rule. Points exactly on an edge may fall on either
// side; the fence counts are statistical, not cadastral.
func (g Polygon) Contains(p Point) bool {
	inside := false
	n := len(g.Ring)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		vi, vj := g.Ring[i], g.Ring[j]
		if (vi.Lat > p.Lat) != (vj.Lat > p.Lat) {
			cross := (vj.Lon-vi.Lon)*(p.Lat-vi.Lat)/(vj.Lat-vi.Lat) + vi.Lon
			if p.Lon < cross {
				inside = !inside
			}
		}
	}
	return inside
}

// CountInside returns how many of the points fall inside the polygon.
func (g Polygon) CountInside(points []Point) int {
	count := 0
	for _, p := range points {
		if g.Contains(p) {
			count++
		}
	}
	return count
}
