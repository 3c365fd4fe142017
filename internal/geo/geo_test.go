package geo

import (
	"math"
	"testing"
)

func TestDistanceKm_IdenticalPoints(t *testing.T) {
	if d := DistanceKm(35.0, 139.0, 35.0, 139.0); d != 0 {
		t.Errorf("expected 0 for identical points, got %f", d)
	}
}

func TestDistanceKm_KnownDistance(t *testing.T) {
	// Tokyo to Osaka, roughly 400 km
	d := DistanceKm(35.6762, 139.6503, 34.6937, 135.5023)
	if d < 390 || d > 410 {
		t.Errorf("expected Tokyo-Osaka around 400 km, got %f", d)
	}
}

func TestDistanceKm_Symmetric(t *testing.T) {
	a := DistanceKm(37.77, -122.42, 51.51, -0.13)
	b := DistanceKm(51.51, -0.13, 37.77, -122.42)
	if math.Abs(a-b) > 1e-9 {
		t.Errorf("distance not symmetric: %f vs %f", a, b)
	}
}

func TestBearingDegrees(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		want                   float64
	}{
		{"due north", 0, 0, 10, 0, 0},
		{"due east", 0, 0, 0, 10, 90},
		{"due south", 10, 0, 0, 0, 180},
		{"due west", 0, 10, 0, 0, 270},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BearingDegrees(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			if math.Abs(got-tt.want) > 0.5 {
				t.Errorf("expected bearing %f, got %f", tt.want, got)
			}
		})
	}
}

func TestBearingDegrees_Normalized(t *testing.T) {
	// A westward bearing comes out of atan2 negative; it must be
	// wrapped into [0, 360).
	got := BearingDegrees(0, 0, 10, -10)
	if got < 0 || got >= 360 {
		t.Errorf("bearing %f outside [0,360)", got)
	}
}

func TestCompassDirection(t *testing.T) {
	tests := []struct {
		bearing float64
		want    string
	}{
		{0, "N"},
		{22.4, "N"},
		{22.5, "NE"},
		{45, "NE"},
		{90, "E"},
		{135, "SE"},
		{180, "S"},
		{225, "SW"},
		{270, "W"},
		{315, "NW"},
		{337.5, "N"},
		{359.9, "N"},
	}

	for _, tt := range tests {
		if got := CompassDirection(tt.bearing); got != tt.want {
			t.Errorf("CompassDirection(%f) = %s, want %s", tt.bearing, got, tt.want)
		}
	}
}
