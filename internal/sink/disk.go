/*
NAME
  disk.go

DESCRIPTION
  disk.go implements the disk logger: a periodic (wall-clock interval)
  JSON metadata dump plus, when enabled, a per-detection cropped JPEG of
  each frame's bounding boxes, grounded on cmd/rv/probe.go's gocv image
  I/O idiom.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package sink

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/ausocean/utils/logging"

	"github.com/ausocean/aerialtrack/internal/frame"
)

// DiskLogger writes metadata packets as JSON and, optionally, cropped
// per-detection JPEGs, no more often than once every Interval.
type DiskLogger struct {
	Dir       string
	Interval  time.Duration
	SaveCrops bool

	log logging.Logger

	mu   sync.Mutex
	last time.Time
}

// NewDiskLogger returns a DiskLogger writing under dir.
func NewDiskLogger(dir string, interval time.Duration, saveCrops bool, log logging.Logger) *DiskLogger {
	return &DiskLogger{Dir: dir, Interval: interval, SaveCrops: saveCrops, log: log}
}

// Log writes meta (and, if due and enabled, per-detection crops from d) if
// Interval has elapsed since the last write.
func (l *DiskLogger) Log(d *frame.Data, meta frame.MetadataPacket, payload []byte) {
	l.mu.Lock()
	due := time.Since(l.last) >= l.Interval
	if due {
		l.last = time.Now()
	}
	l.mu.Unlock()
	if !due {
		return
	}

	if err := os.MkdirAll(l.Dir, 0o755); err != nil {
		l.log.Warning(pkg+"could not create detections directory", "error", err.Error())
		return
	}

	ts := time.Now().UTC()
	jsonPath := filepath.Join(l.Dir, fmt.Sprintf("detections_%s.json", ts.Format("20060102_150405.000")))
	if err := os.WriteFile(jsonPath, payload, 0o644); err != nil {
		l.log.Warning(pkg+"could not write detections json", "error", err.Error())
	}

	if l.SaveCrops && len(meta.Detections) > 0 {
		l.saveCrops(d, meta, ts)
	}
}

func (l *DiskLogger) saveCrops(d *frame.Data, meta frame.MetadataPacket, ts time.Time) {
	cropDir := filepath.Join(l.Dir, fmt.Sprintf("crops_%s", ts.Format("20060102_150405.000")))
	if err := os.MkdirAll(cropDir, 0o755); err != nil {
		l.log.Warning(pkg+"could not create crops directory", "error", err.Error())
		return
	}

	for i, det := range meta.Detections {
		rect := image.Rect(int(det.BBox.X1), int(det.BBox.Y1), int(det.BBox.X2), int(det.BBox.Y2)).
			Intersect(image.Rect(0, 0, d.Image.Cols(), d.Image.Rows()))
		if rect.Empty() {
			continue
		}

		crop := d.Image.Region(rect)
		buf, err := gocv.IMEncode(gocv.JPEGFileExt, crop)
		crop.Close()
		if err != nil {
			l.log.Warning(pkg+"crop encode failed", "error", err.Error())
			continue
		}

		name := fmt.Sprintf("%03d_%s_%.2f", i, det.ClassName, det.Confidence)
		if det.GeoCoordinates != nil {
			name += fmt.Sprintf("_lat%.6f_lon%.6f", det.GeoCoordinates.Latitude, det.GeoCoordinates.Longitude)
		}
		path := filepath.Join(cropDir, name+".jpg")
		if err := os.WriteFile(path, buf.GetBytes(), 0o644); err != nil {
			l.log.Warning(pkg+"could not write crop", "error", err.Error())
		}
		buf.Close()
	}
}
