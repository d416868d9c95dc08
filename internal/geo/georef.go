/*
NAME
  georef.go

DESCRIPTION
  georef.go projects a pixel-space bounding box to a geodetic target point by
  fusing platform/gimbal pose with camera intrinsics, under a flat-earth
  ground-plane assumption.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package geo computes geodetic target coordinates for image-space
// detections using photogrammetry over a flat-earth ground plane.
package geo

import (
	"fmt"
	"math"

	"github.com/ausocean/aerialtrack/internal/klv"
)

// GimbalMethod records how camera world-frame pointing was derived.
type GimbalMethod string

const (
	// GimbalAbsolute means an absolute (world-frame) gimbal tag was present.
	GimbalAbsolute GimbalMethod = "absolute_world_frame"
	// GimbalRelativeApprox means only relative (body-frame) gimbal tags were
	// present, and world pose was approximated by a scalar Euler-angle sum.
	GimbalRelativeApprox GimbalMethod = "relative_approx_transform"
	// GimbalFallbackNadir means no gimbal tags were present and a
	// straight-down camera was assumed.
	GimbalFallbackNadir GimbalMethod = "fallback_nadir"
)

// Coordinates is the geo-referencing result for one detection.
type Coordinates struct {
	Latitude                 float64      `json:"latitude"`
	Longitude                float64      `json:"longitude"`
	EstimatedGroundDistanceM float64      `json:"estimated_ground_distance_m"`
	CameraAzimuthDeg         float64      `json:"camera_azimuth_deg"`
	CameraElevationDeg       float64      `json:"camera_elevation_deg"`
	CalculationMethod        string       `json:"calculation_method"`
	GimbalMethod             GimbalMethod `json:"gimbal_method"`
	HasCameraSpecs           bool         `json:"has_camera_specs"`
}

// BBox is a pixel-space bounding box [x1, y1, x2, y2].
type BBox struct {
	X1, Y1, X2, Y2 float64
}

// MarshalJSON renders BBox as the [x1, y1, x2, y2] array form used on the
// wire, matching the Detection.bbox shape in spec.md §3.
func (b BBox) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("[%v,%v,%v,%v]", b.X1, b.Y1, b.X2, b.Y2)), nil
}

// minElevationDeg is the minimum look-down angle magnitude below which the
// ground intersection is considered too grazing to trust (§4.2).
const minElevationDeg = 5.0

const metersPerDegreeLat = 111320.0

// Locate projects bbox to a geodetic point using tel and the frame
// dimensions. It returns ok=false ("unavailable") when lat/lon/alt are
// missing, the camera points at or above the horizon, or the look-down
// angle is too shallow to trust.
//
// Locate is a pure function: it never mutates its inputs and runs in O(1).
func Locate(bbox BBox, tel klv.Record, frameWidth, frameHeight float64) (Coordinates, bool) {
	if tel.Latitude == nil || tel.Longitude == nil || tel.Altitude == nil {
		return Coordinates{}, false
	}
	platformLat := *tel.Latitude
	platformLon := *tel.Longitude
	platformAlt := *tel.Altitude

	platformRoll := deref(tel.Roll, 0)
	platformPitch := deref(tel.Pitch, 0)
	platformHeading := deref(tel.Heading, 0)

	yawWorld, pitchWorld, _, method := gimbalWorldPose(tel, platformRoll, platformPitch, platformHeading)

	cx := (bbox.X1+bbox.X2)/2 - frameWidth/2
	cy := (bbox.Y1+bbox.Y2)/2 - frameHeight/2

	alphaX, alphaY, hasSpecs := angularOffset(tel, cx, cy, frameWidth, frameHeight)

	cameraAzimuth := math.Mod(yawWorld+radToDeg(alphaX), 360)
	if cameraAzimuth < 0 {
		cameraAzimuth += 360
	}
	cameraElevation := pitchWorld + radToDeg(alphaY)

	if cameraElevation >= 0 {
		return Coordinates{}, false
	}
	lookDown := math.Abs(cameraElevation)
	if lookDown < minElevationDeg {
		return Coordinates{}, false
	}

	horizontalDistance := platformAlt * math.Tan(degToRad(90-lookDown))

	metersPerDegreeLon := metersPerDegreeLat * math.Cos(degToRad(platformLat))
	north := horizontalDistance * math.Cos(degToRad(cameraAzimuth))
	east := horizontalDistance * math.Sin(degToRad(cameraAzimuth))

	return Coordinates{
		Latitude:                 platformLat + north/metersPerDegreeLat,
		Longitude:                platformLon + east/metersPerDegreeLon,
		EstimatedGroundDistanceM: horizontalDistance,
		CameraAzimuthDeg:         cameraAzimuth,
		CameraElevationDeg:       cameraElevation,
		CalculationMethod:        "photogrammetry",
		GimbalMethod:             method,
		HasCameraSpecs:           hasSpecs,
	}, true
}

// gimbalWorldPose selects the world-frame gimbal orientation per §4.2:
// absolute tags win if present, else relative tags are approximately
// transformed, else fall back to nadir.
func gimbalWorldPose(tel klv.Record, platformRoll, platformPitch, platformHeading float64) (yaw, pitch, roll float64, method GimbalMethod) {
	hasAbsolute := tel.GimbalYawAbs != nil || tel.GimbalPitchAbs != nil || tel.GimbalRollAbs != nil
	hasRelative := tel.GimbalYawRel != nil || tel.GimbalPitchRel != nil || tel.GimbalRollRel != nil

	switch {
	case hasAbsolute:
		return deref(tel.GimbalYawAbs, 0), deref(tel.GimbalPitchAbs, -90), deref(tel.GimbalRollAbs, 0), GimbalAbsolute
	case hasRelative:
		yawRel := deref(tel.GimbalYawRel, 0)
		pitchRel := deref(tel.GimbalPitchRel, -90)
		rollRel := deref(tel.GimbalRollRel, 0)
		return platformHeading + yawRel, pitchRel + platformPitch, rollRel + platformRoll, GimbalRelativeApprox
	default:
		return platformHeading, -90, 0, GimbalFallbackNadir
	}
}

// angularOffset computes the per-axis angular offset of a pixel displacement
// (cx, cy) from image center, choosing the best available camera model per
// §4.2: true intrinsics, then FOV tags, then a fixed fallback FOV.
func angularOffset(tel klv.Record, cx, cy, frameWidth, frameHeight float64) (alphaX, alphaY float64, hasSpecs bool) {
	switch {
	case tel.SensorWidthMM != nil && tel.SensorHeightMM != nil && tel.FocalLengthMM != nil:
		anglePerPixelX := 2 * math.Atan(*tel.SensorWidthMM/(2**tel.FocalLengthMM)) / frameWidth
		anglePerPixelY := 2 * math.Atan(*tel.SensorHeightMM/(2**tel.FocalLengthMM)) / frameHeight
		return cx * anglePerPixelX, cy * anglePerPixelY, true

	case tel.SensorHFOV != nil && tel.SensorVFOV != nil:
		hFovRad := degToRad(*tel.SensorHFOV)
		vFovRad := degToRad(*tel.SensorVFOV)
		return (cx / frameWidth) * hFovRad, (cy / frameHeight) * vFovRad, true

	default:
		hFovRad := degToRad(60.0)
		vFovRad := hFovRad * (frameHeight / frameWidth)
		return (cx / frameWidth) * hFovRad, (cy / frameHeight) * vFovRad, false
	}
}

func deref(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

func degToRad(d float64) float64 { return d * math.Pi / 180 }
func radToDeg(r float64) float64 { return r * 180 / math.Pi }
