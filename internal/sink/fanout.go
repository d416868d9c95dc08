/*
NAME
  fanout.go

DESCRIPTION
  fanout.go implements the Sink Fan-out: a thin, non-blocking dispatcher
  that forwards each output-stage result to zero or more configured
  sinks (encoder, UDP metadata, SSE, disk logger), grounded on
  revid.go's multi-sender wiring in senders.go.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package sink fans out annotated frames and metadata packets to the
// encoder, UDP, SSE, and disk-logger sinks without blocking the output
// stage.
package sink

import (
	"encoding/json"

	"github.com/ausocean/utils/logging"

	"github.com/ausocean/aerialtrack/internal/frame"
)

const pkg = "sink: "

// Encoder is the single configured encoder sink (RTSP/HLS/MJPEG/WebRTC/
// batch). Exactly one is wired per run.
type Encoder interface {
	WriteFrame(d *frame.Data) error
	InjectMetadata(meta frame.MetadataPacket) error
}

// Publisher receives metadata payloads for SSE broadcast.
type Publisher interface {
	Publish(payload []byte)
}

// Fanout dispatches each output-stage result to its configured sinks.
// The UDP and SSE sinks never block (UDP best-effort, SSE drop-on-full).
// The encoder sink's WriteFrame and InjectMetadata, and the disk logger,
// run synchronously on the caller's goroutine; the encoder writers keep no
// internal queue of their own.
type Fanout struct {
	log         logging.Logger
	encoder     Encoder
	udp         *UDPSender  // nil disables UDP metadata
	sse         Publisher   // nil disables SSE broadcast
	disk        *DiskLogger // nil disables disk logging
	id3Interval uint        // frames between encoder metadata injections; 0 and 1 both mean every frame

	frames uint
}

// New returns a Fanout. Any of encoder, udp, sse, disk may be nil to
// disable that sink. id3Interval throttles how often meta is injected into
// the encoder sink (spec.md §6's "id3-interval"); 0 means every frame.
func New(log logging.Logger, encoder Encoder, udp *UDPSender, sse Publisher, disk *DiskLogger, id3Interval uint) *Fanout {
	return &Fanout{log: log, encoder: encoder, udp: udp, sse: sse, disk: disk, id3Interval: id3Interval}
}

// Dispatch forwards the annotated frame and metadata packet to every
// configured sink.
func (f *Fanout) Dispatch(d *frame.Data, meta frame.MetadataPacket) {
	f.frames++

	if f.encoder != nil {
		if err := f.encoder.WriteFrame(d); err != nil {
			f.log.Warning(pkg+"encoder write failed", "error", err.Error())
		}
		if f.id3Interval <= 1 || f.frames%f.id3Interval == 0 {
			if err := f.encoder.InjectMetadata(meta); err != nil {
				f.log.Warning(pkg+"encoder metadata injection failed", "error", err.Error())
			}
		}
	}

	payload, err := json.Marshal(meta)
	if err != nil {
		f.log.Warning(pkg+"metadata marshal failed", "error", err.Error())
		return
	}

	if f.udp != nil {
		f.udp.Send(payload)
	}
	if f.sse != nil {
		f.sse.Publish(payload)
	}
	if f.disk != nil {
		f.disk.Log(d, meta, payload)
	}
}
