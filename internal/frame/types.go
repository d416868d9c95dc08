/*
NAME
  types.go

DESCRIPTION
  types.go defines the per-frame work unit that flows through the pipeline
  stages, and the detection/metadata shapes attached to it along the way.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package frame defines the FrameData work unit and the detection and
// metadata shapes that accumulate on it as it moves through the pipeline.
package frame

import (
	"time"

	"gocv.io/x/gocv"

	"github.com/ausocean/aerialtrack/internal/geo"
	"github.com/ausocean/aerialtrack/internal/klv"
)

// Detection is one object found by the external detector/tracker.
type Detection struct {
	ClassID    int     `json:"class_id"`
	ClassName  string  `json:"class_name"`
	Confidence float64 `json:"confidence"`
	BBox       geo.BBox `json:"bbox"`

	// TrackID is non-nil iff the tracker assigned a persistent identity to
	// this detection. Equal TrackIDs across frames denote the same physical
	// object.
	TrackID *int `json:"track_id,omitempty"`
}

// EnrichedDetection is a Detection plus the georeferencing result, if any.
type EnrichedDetection struct {
	Detection
	GeoCoordinates *geo.Coordinates `json:"geo_coordinates,omitempty"`
}

// Timings holds per-stage duration counters for one frame, in milliseconds.
type Timings struct {
	CaptureStart time.Time
	InferenceMS  float64
	DrawingMS    float64
	WriteMS      float64
}

// Data is the unit of work passed between pipeline stages: a decoded frame,
// the telemetry snapshot at capture time, and the detections attached as
// later stages run.
//
// Data is created exclusively by the capture stage, mutated exclusively by
// each stage in turn, and dropped after the output stage or when displaced
// from a bounded queue by a newer frame.
type Data struct {
	Image      gocv.Mat
	Timestamp  time.Time
	Telemetry  klv.Record
	FrameIndex uint64

	Detections []Detection
	Enriched   []EnrichedDetection
	Annotated  gocv.Mat

	Timings Timings
}

// Close releases the Mats held by Data. Safe to call more than once.
func (d *Data) Close() {
	if !d.Image.Empty() {
		d.Image.Close()
	}
	if !d.Annotated.Empty() && d.Annotated.Ptr() != d.Image.Ptr() {
		d.Annotated.Close()
	}
}

// MetadataPacket is the structured, per-frame payload emitted to the UDP,
// SSE, and disk sinks.
type MetadataPacket struct {
	Frame          uint64              `json:"frame"`
	Timestamp      string              `json:"timestamp"`
	Telemetry      klv.Record          `json:"telemetry"`
	Detections     []EnrichedDetection `json:"detections"`
	DetectionCount int                 `json:"detection_count"`
}

// NewMetadataPacket builds the packet emitted for one processed frame.
func NewMetadataPacket(d *Data) MetadataPacket {
	return MetadataPacket{
		Frame:          d.FrameIndex,
		Timestamp:      d.Timestamp.UTC().Format(time.RFC3339Nano),
		Telemetry:      d.Telemetry,
		Detections:     d.Enriched,
		DetectionCount: len(d.Enriched),
	}
}
