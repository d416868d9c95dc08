package geo

import (
	"math"
	"testing"

	"github.com/ausocean/aerialtrack/internal/klv"
)

func f(v float64) *float64 { return &v }

func TestNadirConsistency(t *testing.T) {
	tel := klv.Record{
		Latitude:       f(40.0),
		Longitude:      f(-74.0),
		Altitude:       f(100.0),
		Heading:        f(0.0),
		GimbalPitchAbs: f(-90.0),
		GimbalYawAbs:   f(0.0),
	}
	// Bbox at image center with a pure-nadir camera should land within a
	// few centimeters of the platform's own position.
	bbox := BBox{X1: 960, Y1: 540, X2: 960, Y2: 540}
	coords, ok := Locate(bbox, tel, 1920, 1080)
	if !ok {
		t.Fatal("expected coordinates to be available")
	}
	if math.Abs(coords.Latitude-40.0) > 1e-6 || math.Abs(coords.Longitude-(-74.0)) > 1e-6 {
		t.Fatalf("expected target near platform position, got (%v, %v)", coords.Latitude, coords.Longitude)
	}
}

func TestNominalGeoref(t *testing.T) {
	tel := klv.Record{
		Latitude:       f(40.0),
		Longitude:      f(-74.0),
		Altitude:       f(100.0),
		Heading:        f(0.0),
		GimbalPitchAbs: f(-90.0),
		GimbalYawAbs:   f(0.0),
		SensorHFOV:     f(60.0),
		SensorVFOV:     f(33.75),
	}
	bbox := BBox{X1: 950, Y1: 530, X2: 970, Y2: 550}
	coords, ok := Locate(bbox, tel, 1920, 1080)
	if !ok {
		t.Fatal("expected coordinates to be available")
	}
	if coords.CameraElevationDeg > -89.5 || coords.CameraElevationDeg < -90 {
		t.Fatalf("expected elevation close to -89.7, got %v", coords.CameraElevationDeg)
	}
	if coords.EstimatedGroundDistanceM >= 1.0 {
		t.Fatalf("expected sub-meter ground distance near nadir, got %v", coords.EstimatedGroundDistanceM)
	}
}

func TestLookForward(t *testing.T) {
	tel := klv.Record{
		Latitude:       f(40.0),
		Longitude:      f(-74.0),
		Altitude:       f(100.0),
		Heading:        f(0.0),
		GimbalPitchAbs: f(-30.0),
		GimbalYawAbs:   f(0.0),
		SensorHFOV:     f(60.0),
		SensorVFOV:     f(33.75),
	}
	bbox := BBox{X1: 960, Y1: 540, X2: 960, Y2: 540}
	coords, ok := Locate(bbox, tel, 1920, 1080)
	if !ok {
		t.Fatal("expected coordinates to be available")
	}
	if math.Abs(coords.CameraElevationDeg-(-30)) > 1e-6 {
		t.Fatalf("expected elevation of -30, got %v", coords.CameraElevationDeg)
	}
	wantDist := 100.0 * math.Tan(60*math.Pi/180)
	if math.Abs(coords.EstimatedGroundDistanceM-wantDist) > 0.1 {
		t.Fatalf("expected distance ~%v, got %v", wantDist, coords.EstimatedGroundDistanceM)
	}
	if coords.Latitude <= 40.0 {
		t.Fatalf("expected target north of platform, got lat=%v", coords.Latitude)
	}
}

func TestAboveHorizonUnavailable(t *testing.T) {
	tel := klv.Record{
		Latitude:       f(40.0),
		Longitude:      f(-74.0),
		Altitude:       f(100.0),
		GimbalPitchAbs: f(10.0),
		GimbalYawAbs:   f(0.0),
	}
	bbox := BBox{X1: 960, Y1: 540, X2: 960, Y2: 540}
	_, ok := Locate(bbox, tel, 1920, 1080)
	if ok {
		t.Fatal("expected unavailable for camera pointed above horizon")
	}
}

func TestMissingTelemetryUnavailable(t *testing.T) {
	tel := klv.Record{Latitude: f(40.0)} // longitude, altitude missing
	bbox := BBox{X1: 960, Y1: 540, X2: 960, Y2: 540}
	_, ok := Locate(bbox, tel, 1920, 1080)
	if ok {
		t.Fatal("expected unavailable when lat/lon/alt incomplete")
	}
}

func TestElevationBoundary(t *testing.T) {
	// Exactly -5 degrees should be accepted (boundary is inclusive at the
	// spec's >= / < comparisons: camera_elevation_deg == -5 passes the
	// abs(elevation) < 5 rejection test since 5 < 5 is false).
	tel := klv.Record{
		Latitude:       f(0.0),
		Longitude:      f(0.0),
		Altitude:       f(100.0),
		GimbalPitchAbs: f(-5.0),
		GimbalYawAbs:   f(0.0),
	}
	bbox := BBox{X1: 960, Y1: 540, X2: 960, Y2: 540}
	_, ok := Locate(bbox, tel, 1920, 1080)
	if !ok {
		t.Fatal("expected exactly -5 degrees to be available")
	}

	tel.GimbalPitchAbs = f(-4.999)
	_, ok = Locate(bbox, tel, 1920, 1080)
	if ok {
		t.Fatal("expected -4.999 degrees to be unavailable (grazing)")
	}
}

func TestRelativeGimbalApproxFlag(t *testing.T) {
	tel := klv.Record{
		Latitude:        f(40.0),
		Longitude:       f(-74.0),
		Altitude:        f(100.0),
		Heading:         f(10.0),
		Pitch:           f(0.0),
		GimbalPitchRel:  f(-90.0),
		GimbalYawRel:    f(0.0),
	}
	bbox := BBox{X1: 960, Y1: 540, X2: 960, Y2: 540}
	coords, ok := Locate(bbox, tel, 1920, 1080)
	if !ok {
		t.Fatal("expected coordinates to be available")
	}
	if coords.GimbalMethod != GimbalRelativeApprox {
		t.Fatalf("expected relative_approx_transform, got %v", coords.GimbalMethod)
	}
}
