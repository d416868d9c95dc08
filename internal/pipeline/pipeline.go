/*
NAME
  pipeline.go

DESCRIPTION
  pipeline.go implements the three-stage concurrent orchestrator: capture,
  inference, and output, connected by bounded FrameQueues, grounded on
  revid.go's goroutine-per-stage + stop-channel orchestration.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package pipeline wires the Stream Source, detector, georeferencer,
// overlay drawer, and sinks into the three-stage capture/inference/output
// pipeline described by this system's design.
package pipeline

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/ausocean/utils/logging"

	"github.com/ausocean/aerialtrack/internal/detect"
	"github.com/ausocean/aerialtrack/internal/frame"
	"github.com/ausocean/aerialtrack/internal/geo"
	"github.com/ausocean/aerialtrack/internal/overlay"
)

const pkg = "pipeline: "

const queueCapacity = 2

// Mode selects the capture stage's queueing policy.
type Mode int

const (
	// Live drops the oldest queued frame under load, favoring freshness.
	Live Mode = iota
	// Batch blocks the producer instead of dropping, so every input frame
	// is processed exactly once and in order.
	Batch
)

// Sink receives the output stage's per-frame results. Implementations must
// not block; a slow sink should apply its own internal backpressure policy
// (e.g. drop-oldest), never the output stage's.
type Sink interface {
	Dispatch(annotated *frame.Data, meta frame.MetadataPacket)
}

// Dispatcher forwards a georeferenced detection toward a tactical consumer.
// It must not block the output stage.
type Dispatcher interface {
	Submit(trackID string, class string, confidence float64, coords geo.Coordinates)
}

// Source produces FrameData for the capture stage. It is satisfied by
// *source.Stream; declared here as a narrow interface to keep this package
// independent of the transport implementation.
type Source interface {
	Run(ctx context.Context, emit func(*frame.Data)) error
}

// Config controls pipeline behavior independent of any one stage.
type Config struct {
	Mode             Mode
	SkipFrames       int     // deliver every (SkipFrames+1)th captured frame to inference
	ConfThreshold    float64
	Classes          []int
	FrameWidth       float64
	FrameHeight      float64
}

// Pipeline owns the capture -> inference -> output stage goroutines and
// the queues between them.
type Pipeline struct {
	cfg      Config
	log      logging.Logger
	source   Source
	detector detect.Detector
	drawer   overlay.Drawer
	sink     Sink
	tak      Dispatcher // optional; nil disables tactical forwarding

	inferenceQ *FrameQueue
	outputQ    *FrameQueue

	stop   chan struct{}
	stopOnce sync.Once
	wg     sync.WaitGroup
}

// New returns a Pipeline wiring the given collaborators. tak may be nil.
func New(cfg Config, log logging.Logger, src Source, det detect.Detector, drawer overlay.Drawer, sink Sink, tak Dispatcher) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		log:        log,
		source:     src,
		detector:   det,
		drawer:     drawer,
		sink:       sink,
		tak:        tak,
		inferenceQ: NewFrameQueue(queueCapacity),
		outputQ:    NewFrameQueue(queueCapacity),
		stop:       make(chan struct{}),
	}
}

// Run starts all three stages and blocks until ctx is cancelled or the
// capture stage ends (source exhausted, or failed fatally, e.g. Stream Source
// reconnection exhausted), then waits for every stage to drain.
func (p *Pipeline) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var captureErr error
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		captureErr = p.captureStage(ctx)
		cancel()
	}()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.inferenceStage()
	}()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.outputStage()
	}()

	<-ctx.Done()
	p.Stop()
	p.wg.Wait()
	return captureErr
}

// Stop signals all stages to drain and close their downstream queues. Safe
// to call multiple times.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() {
		close(p.stop)
		p.inferenceQ.Close()
	})
}

// captureStage runs the Stream Source, applying skip_frames and the
// configured queueing policy before each frame reaches the inference
// queue.
func (p *Pipeline) captureStage(ctx context.Context) error {
	captured := uint64(0)
	emit := func(d *frame.Data) {
		captured++
		if p.cfg.SkipFrames > 0 && (captured-1)%uint64(p.cfg.SkipFrames+1) != 0 {
			d.Close()
			return
		}
		switch p.cfg.Mode {
		case Batch:
			p.inferenceQ.Put(d)
		default:
			if displaced := p.inferenceQ.PutDropOldest(d); displaced != nil {
				displaced.Close()
			}
		}
	}
	err := p.source.Run(ctx, emit)
	p.inferenceQ.Close()
	return err
}

// inferenceStage invokes the external detector and forwards enriched
// FrameData to the output queue: drop-oldest in live mode, blocking in batch
// mode. It closes the output queue once the inference queue is drained.
func (p *Pipeline) inferenceStage() {
	defer p.outputQ.Close()
	for {
		d, ok := p.inferenceQ.Get()
		if !ok {
			return
		}
		start := time.Now()
		dets, err := p.detector.Detect(context.Background(), d.Image, p.cfg.ConfThreshold, p.cfg.Classes)
		d.Timings.InferenceMS = float64(time.Since(start).Microseconds()) / 1000.0
		if err != nil {
			p.log.Warning(pkg+"detector error", "error", err.Error())
		} else {
			d.Detections = dets
		}

		if p.cfg.Mode == Batch {
			p.outputQ.Put(d)
		} else if displaced := p.outputQ.PutDropOldest(d); displaced != nil {
			displaced.Close()
		}
	}
}

// outputStage georeferences detections, forwards enriched detections to the
// tactical dispatcher, draws the overlay, dispatches to sinks, and closes
// each frame's Mats once done.
func (p *Pipeline) outputStage() {
	for {
		d, ok := p.outputQ.Get()
		if !ok {
			return
		}
		p.enrich(d)

		drawStart := time.Now()
		if p.drawer != nil {
			d.Annotated = p.drawer.Draw(d.Image, d.Enriched)
		} else {
			d.Annotated = d.Image
		}
		d.Timings.DrawingMS = float64(time.Since(drawStart).Microseconds()) / 1000.0

		meta := frame.NewMetadataPacket(d)
		if p.sink != nil {
			p.sink.Dispatch(d, meta)
		}
		d.Close()
	}
}

func (p *Pipeline) enrich(d *frame.Data) {
	d.Enriched = make([]frame.EnrichedDetection, 0, len(d.Detections))
	for _, det := range d.Detections {
		enriched := frame.EnrichedDetection{Detection: det}
		if coords, ok := geo.Locate(det.BBox, d.Telemetry, p.cfg.FrameWidth, p.cfg.FrameHeight); ok {
			c := coords
			enriched.GeoCoordinates = &c
			if p.tak != nil {
				trackID := ""
				if det.TrackID != nil {
					trackID = strconv.Itoa(*det.TrackID)
				}
				p.tak.Submit(trackID, det.ClassName, det.Confidence, c)
			}
		}
		d.Enriched = append(d.Enriched, enriched)
	}
}
