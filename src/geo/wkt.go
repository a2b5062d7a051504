package geo

import (
	"fmt"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// WKT polygon support for geofence boundaries, e.g.
//
//	POLYGON ((72.8 19.0, 72.9 19.0, 72.9 19.1, 72.8 19.1, 72.8 19.0))
//
// Coordinates follow WKT axis order: longitude first, latitude second.
// Only the outer ring is used; polygons with interior rings are rejected.

var wktLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Float", Pattern: `[-+]?\d+(\.\d+)?([eE][-+]?\d+)?`},
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`},
	{Name: "Punct", Pattern: `[(),]`},
	{Name: "whitespace", Pattern: `\s+`},
})

type wktPolygon struct {
	Rings []*wktRing `parser:"'POLYGON' '(' @@ (',' @@)* ')'"`
}

type wktRing struct {
	Coords []*wktCoord `parser:"'(' @@ (',' @@)* ')'"`
}

type wktCoord struct {
	Lon float64 `parser:"@Float"`
	Lat float64 `parser:"@Float"`
}

var wktParser = participle.MustBuild[wktPolygon](
	participle.Lexer(wktLexer),
	participle.CaseInsensitive("Ident"),
)

// ParseWKTPolygon parses a WKT POLYGON string into a Polygon.
func ParseWKTPolygon(input string) (Polygon, error) {
	parsed, err := wktParser.ParseString("", input)
	if err != nil {
		return Polygon{}, fmt.Errorf("parsing WKT polygon: %w", err)
	}
	if len(parsed.Rings) > 1 {
		return Polygon{}, fmt.Errorf("WKT polygon has %d interior rings, only the outer ring is supported", len(parsed.Rings)-1)
	}

	ring := make([]Location, 0, len(parsed.Rings[0].Coords))
	for _, c := range parsed.Rings[0].Coords {
		ring = append(ring, Location{Lat: c.Lat, Lon: c.Lon})
	}
	return NewPolygon(ring)
}

// WKT renders the polygon back to its WKT form with a closed ring.
func (g Polygon) WKT() string {
	out := "POLYGON (("
	for i, v := range g.Ring {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%g %g", v.Lon, v.Lat)
	}
	if len(g.Ring) > 0 {
		out += fmt.Sprintf(", %g %g", g.Ring[0].Lon, g.Ring[0].Lat)
	}
	return out + "))"
}
