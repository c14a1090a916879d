package geo

import (
	"math"
	"testing"
)

func TestValidCoordinates(t *testing.T) {
	cases := []struct {
		name string
		lat  float64
		lon  float64
		want bool
	}{
		{"origin", 0, 0, true},
		{"typical", 59.437, 24.7536, true},
		{"lat north pole", 90, 0, true},
		{"lat south pole", -90, 0, true},
		{"lon date line", 0, 180, true},
		{"lon negative date line", 0, -180, true},
		{"lat too big", 90.0001, 0, false},
		{"lat too small", -90.0001, 0, false},
		{"lon too big", 0, 180.0001, false},
		{"lon too small", 0, -180.0001, false},
		{"nan lat", math.NaN(), 0, false},
		{"nan lon", 0, math.NaN(), false},
		{"inf lat", math.Inf(1), 0, false},
		{"inf lon", 0, math.Inf(-1), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ValidCoordinates(tc.lat, tc.lon); got != tc.want {
				t.Errorf("ValidCoordinates(%v, %v) = %v, want %v", tc.lat, tc.lon, got, tc.want)
			}
		})
	}
}

func TestSamePosition(t *testing.T) {
	if !SamePosition(10.0, 20.0, 10.0000001, 20.0) {
		t.Error("sub-epsilon delta should compare equal")
	}
	if SamePosition(10.0, 20.0, 10.1, 20.0) {
		t.Error("0.1 degree delta should compare different")
	}
	if SamePosition(10.0, 20.0, 10.0, 20.000002) {
		t.Error("2e-6 lon delta should compare different")
	}
}

func TestQuantize(t *testing.T) {
	a := Quantize(10.0000001)
	b := Quantize(10.0000004)
	if a != b {
		t.Errorf("sub-epsilon jitter should quantize to the same value: %v vs %v", a, b)
	}
	c := Quantize(10.000002)
	if a == c {
		t.Error("2e-6 delta should quantize to a different value")
	}
}

func TestMercator(t *testing.T) {
	x, y, err := Mercator(0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(x) > 1e-6 || math.Abs(y) > 1e-6 {
		t.Errorf("origin should project to (0,0), got (%v,%v)", x, y)
	}

	// Equator, 90E projects to a quarter of the mercator circumference.
	x, _, err = Mercator(0, 90)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(x-10018754.17) > 100 {
		t.Errorf("unexpected X for 90E: %v", x)
	}

	if _, _, err := Mercator(math.NaN(), 0); err == nil {
		t.Error("expected error for NaN latitude")
	}
	if _, _, err := Mercator(91, 0); err == nil {
		t.Error("expected error for out-of-range latitude")
	}
}

func TestMercatorPoint(t *testing.T) {
	p, err := MercatorPoint(0, 90)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	xy, ok := p.XY()
	if !ok {
		t.Fatal("expected non-empty point")
	}
	if math.Abs(xy.X-10018754.17) > 100 {
		t.Errorf("unexpected projected X: %v", xy.X)
	}

	if _, err := MercatorPoint(100, 0); err == nil {
		t.Error("expected error for invalid coordinates")
	}
}
