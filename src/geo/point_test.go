package geo

import (
	"math/rand"
	"testing"
	"time"
)

func TestFilterValid_RejectsOutOfRange(t *testing.T) {
	points := []Point{
		{Lat: 19.07, Lon: 72.87},
		{Lat: 95, Lon: 10},    // latitude out of range
		{Lat: 10, Lon: 200},   // longitude out of range
		{Lat: -91, Lon: 0},    // latitude below range
		{Lat: 0, Lon: -180.5}, // longitude below range
		{Lat: 90, Lon: 180},   // boundary values are legal
	}

	valid, dropped := FilterValid(points)
	if len(valid) != 2 {
		t.Fatalf("got %d valid points, want 2", len(valid))
	}
	if dropped != 4 {
		t.Errorf("dropped=%d, want 4", dropped)
	}
	if valid[0].Lat != 19.07 || valid[0].Lon != 72.87 {
		t.Error("valid points must keep input order")
	}
}

func TestFilterValid_SpecExample(t *testing.T) {
	// {lat:19.07,lon:72.87} kept, {lat:95,lon:10} rejected.
	valid, _ := FilterValid([]Point{{Lat: 19.07, Lon: 72.87}, {Lat: 95, Lon: 10}})
	if len(valid) != 1 {
		t.Fatalf("got %d valid points, want exactly 1", len(valid))
	}
}

func TestValidateSet_EmptyIsAnError(t *testing.T) {
	_, err := ValidateSet(PointSet{DataType: "cdr", Points: []Point{{Lat: 95, Lon: 200}}})
	if err == nil {
		t.Fatal("expected error for zero valid points")
	}
	var ve *ValidationError
	if !asValidationError(err, &ve) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if ve.Dropped != 1 {
		t.Errorf("Dropped=%d, want 1", ve.Dropped)
	}
}

func asValidationError(err error, target **ValidationError) bool {
	ve, ok := err.(*ValidationError)
	if ok {
		*target = ve
	}
	return ok
}

func TestValidateSet_FillsCenterAndTotal(t *testing.T) {
	ps, err := ValidateSet(PointSet{Points: []Point{
		{Lat: 10, Lon: 20},
		{Lat: 20, Lon: 40},
		{Lat: 30, Lon: 60},
	}})
	if err != nil {
		t.Fatal(err)
	}
	if ps.Total != 3 {
		t.Errorf("Total=%d, want 3", ps.Total)
	}
	if ps.Center.Lat != 20 || ps.Center.Lon != 40 {
		t.Errorf("Center=%+v, want median (20,40)", ps.Center)
	}
}

func TestMedianCenter_EvenCount(t *testing.T) {
	center := MedianCenter([]Point{
		{Lat: 0, Lon: 0},
		{Lat: 10, Lon: 30},
	})
	if center.Lat != 5 || center.Lon != 15 {
		t.Errorf("center=%+v, want (5,15)", center)
	}
}

func TestBounds(t *testing.T) {
	sw, ne := Bounds([]Point{
		{Lat: 5, Lon: -10},
		{Lat: -3, Lon: 40},
		{Lat: 12, Lon: 7},
	})
	if sw.Lat != -3 || sw.Lon != -10 {
		t.Errorf("sw=%+v", sw)
	}
	if ne.Lat != 12 || ne.Lon != 40 {
		t.Errorf("ne=%+v", ne)
	}
}

func TestReservoirSample_ExactSize(t *testing.T) {
	points := make([]Point, 10000)
	for i := range points {
		points[i] = Point{Lat: float64(i % 90), Lon: float64(i % 180), Timestamp: int64(i)}
	}

	sampled := ReservoirSample(points, 2000, rand.New(rand.NewSource(42)))
	if len(sampled) != 2000 {
		t.Fatalf("got %d points, want exactly 2000", len(sampled))
	}
}

func TestReservoirSample_NotPrefixBiased(t *testing.T) {
	// Over many trials, points from the back half of the input should be
	// selected roughly as often as points from the front half.
	const n, k, trials = 1000, 100, 200
	points := make([]Point, n)
	for i := range points {
		points[i] = Point{Timestamp: int64(i)}
	}

	rng := rand.New(rand.NewSource(7))
	backHalf := 0
	for trial := 0; trial < trials; trial++ {
		for _, p := range ReservoirSample(points, k, rng) {
			if p.Timestamp >= n/2 {
				backHalf++
			}
		}
	}

	total := k * trials
	fraction := float64(backHalf) / float64(total)
	if fraction < 0.4 || fraction > 0.6 {
		t.Errorf("back-half fraction %.3f, want ~0.5 (uniform over full input)", fraction)
	}
}

func TestReservoirSample_SmallInputCopied(t *testing.T) {
	points := []Point{{Lat: 1}, {Lat: 2}}
	sampled := ReservoirSample(points, 10, nil)
	if len(sampled) != 2 {
		t.Fatalf("got %d, want all input points", len(sampled))
	}
	sampled[0].Lat = 99
	if points[0].Lat == 99 {
		t.Error("sample must not alias the input")
	}
}

func TestOrderByTimestamp_SortsAscending(t *testing.T) {
	points := []Point{
		{Lat: 3, Timestamp: 300},
		{Lat: 1, Timestamp: 100},
		{Lat: 2, Timestamp: 200},
	}
	ordered := OrderByTimestamp(points, time.Now())
	for i := 1; i < len(ordered); i++ {
		if ordered[i].Timestamp < ordered[i-1].Timestamp {
			t.Fatal("not sorted ascending")
		}
	}
	if ordered[0].Lat != 1 {
		t.Error("sort order wrong")
	}
	// Input must be untouched.
	if points[0].Timestamp != 300 {
		t.Error("input mutated")
	}
}

func TestOrderByTimestamp_SynthesizesMissing(t *testing.T) {
	now := time.Unix(1_000_000, 0)
	points := []Point{
		{Lat: 1}, // missing
		{Lat: 2, Timestamp: 500},
		{Lat: 3}, // missing
	}
	ordered := OrderByTimestamp(points, now)

	// The two synthetic stamps end at now and increase monotonically.
	var synth []int64
	for _, p := range ordered {
		if p.Timestamp != 500 {
			synth = append(synth, p.Timestamp)
		}
	}
	if len(synth) != 2 {
		t.Fatalf("expected 2 synthesized stamps, got %d", len(synth))
	}
	if synth[len(synth)-1] != now.Unix() {
		t.Errorf("last synthetic stamp %d, want %d", synth[len(synth)-1], now.Unix())
	}
	if synth[0] >= synth[1] {
		t.Error("synthetic stamps must be strictly increasing")
	}
	// Explicit stamp 500 is far in the past, so it sorts first.
	if ordered[0].Timestamp != 500 {
		t.Error("stamped point should order before synthetic ones")
	}
}
