/*
NAME
  batch.go

DESCRIPTION
  batch.go implements the batch encoder sink: a single MJPEG-packetized
  MPEG-TS file plus a JSON sidecar collecting every frame's metadata
  packet, grounded on revid/senders.go's OutputFile/OutputFiles single-file
  writer.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package writer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ausocean/utils/logging"

	"github.com/ausocean/aerialtrack/container/mts"
	"github.com/ausocean/aerialtrack/container/mts/meta"
	"github.com/ausocean/aerialtrack/internal/frame"
)

// BatchWriter writes one MJPEG-packetized MPEG-TS file and accumulates
// every metadata packet, flushed to a JSON sidecar array on Close.
type BatchWriter struct {
	log logging.Logger

	mu   sync.Mutex
	f    *os.File
	enc  *mts.Encoder
	meta []frame.MetadataPacket

	sidecarPath string
}

// NewBatchWriter creates dir if needed and opens "output.ts" for MJPEG
// packetization at fps frames per second; the matching sidecar is written
// to "output.json" on Close.
func NewBatchWriter(dir string, fps int, log logging.Logger) (*BatchWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create batch dir: %w", err)
	}
	if mts.Meta == nil {
		mts.Meta = meta.New()
	}

	f, err := os.Create(filepath.Join(dir, "output.ts"))
	if err != nil {
		return nil, fmt.Errorf("create batch file: %w", err)
	}
	enc, err := mts.NewEncoder(f, log, mts.MediaType(mts.EncodeMJPEG), mts.Rate(float64(fps)))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("new mts encoder: %w", err)
	}

	return &BatchWriter{
		log:         log,
		f:           f,
		enc:         enc,
		sidecarPath: filepath.Join(dir, "output.json"),
	}, nil
}

// WriteFrame JPEG-encodes the annotated frame and appends it as one MTS
// access unit.
func (w *BatchWriter) WriteFrame(d *frame.Data) error {
	jpg, err := encodeJPEG(d.Annotated)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err = w.enc.Write(jpg)
	return err
}

// InjectMetadata both stores meta in the shared mts.Meta table and appends
// it to the in-memory sidecar list flushed on Close.
func (w *BatchWriter) InjectMetadata(m frame.MetadataPacket) error {
	mts.Meta.Add("frame", fmt.Sprintf("%d", m.Frame))
	mts.Meta.Add("detections", fmt.Sprintf("%d", m.DetectionCount))

	w.mu.Lock()
	w.meta = append(w.meta, m)
	w.mu.Unlock()
	return nil
}

// Close flushes the JSON sidecar and closes the output file.
func (w *BatchWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	payload, err := json.Marshal(w.meta)
	if err != nil {
		w.log.Warning(pkg+"sidecar marshal failed", "error", err.Error())
	} else if err := os.WriteFile(w.sidecarPath, payload, 0o644); err != nil {
		w.log.Warning(pkg+"sidecar write failed", "error", err.Error())
	}

	return w.f.Close()
}
