/*
NAME
  source.go

DESCRIPTION
  source.go implements the Stream Source: it opens a transport URL, demuxes
  video frames and MISB KLV telemetry, maintains the latest-telemetry slot,
  and reconnects with exponential backoff on stream-level failure. Grounded
  on device/webcam.Webcam's subprocess-pipe device and revid's input loop.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package source opens a stream transport (file or ffmpeg-piped SRT/RTSP
// URL), decodes video frames and MISB ST 0601 telemetry, and hands
// timestamped frame.Data to the caller, reconnecting on failure.
package source

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"os/exec"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/ausocean/aerialtrack/internal/frame"
	"github.com/ausocean/aerialtrack/internal/klv"
	"github.com/ausocean/aerialtrack/internal/mpegts"
	"github.com/ausocean/utils/logging"
)

const pkg = "source: "

// Config controls how a Stream connects to and reconnects from its
// transport.
type Config struct {
	URL string

	// Width and Height, when known ahead of time, are passed to ffmpeg as
	// the output frame size and take precedence over the probed values; the
	// probe still runs. Probe fills them in if zero.
	Width, Height int

	// BaseBackoff is the reconnection backoff unit: wait is BaseBackoff *
	// 2^attempt. Defaults to 1s.
	BaseBackoff time.Duration

	// TimeoutBackoffMultiplier scales BaseBackoff for timeout-classified
	// errors, which wait longer than ordinary decode errors. Defaults to 4.
	TimeoutBackoffMultiplier int

	// MaxRetries is the number of reconnection attempts before giving up.
	// Defaults to 5.
	MaxRetries int

	// MaxConsecutiveErrors is the number of consecutive per-frame decode
	// errors that triggers a reconnection. Defaults to 5.
	MaxConsecutiveErrors int
}

func (c *Config) setDefaults() {
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = time.Second
	}
	if c.TimeoutBackoffMultiplier <= 0 {
		c.TimeoutBackoffMultiplier = 4
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	if c.MaxConsecutiveErrors <= 0 {
		c.MaxConsecutiveErrors = 5
	}
}

// Stream is a single connection lifecycle over a (possibly reconnecting)
// transport, demuxing video and KLV substreams.
type Stream struct {
	cfg Config
	log logging.Logger

	telemetry LatestTelemetry

	FrameRate float64 // probed, rounded to nearest integer
	Width     int
	Height    int

	frameIndex uint64
}

// NewStream returns a Stream ready to Run against cfg.URL.
func NewStream(cfg Config, log logging.Logger) *Stream {
	cfg.setDefaults()
	return &Stream{cfg: cfg, log: log}
}

// Telemetry returns the most recently observed telemetry record, if any.
func (s *Stream) Telemetry() (klv.Record, bool) { return s.telemetry.Load() }

// Run opens the transport and feeds decoded frames to emit until ctx is
// cancelled or reconnection is exhausted, in which case it returns a
// non-nil error. emit is called synchronously from the demux loop: a slow
// emit backs the whole capture stage up to the transport, which is
// acceptable since emit itself applies the live/batch queueing policy.
func (s *Stream) Run(ctx context.Context, emit func(*frame.Data)) error {
	if err := s.probe(); err != nil {
		s.log.Warning(pkg+"probe failed, proceeding with defaults", "error", err.Error())
	}

	attempt := 0
	for {
		err := s.runOnce(ctx, emit)
		if err == nil {
			return nil // transport reached clean EOF (batch file input).
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt >= s.cfg.MaxRetries {
			return errors.Wrapf(err, "exhausted %d reconnection attempts", s.cfg.MaxRetries)
		}

		wait := backoff(s.cfg.BaseBackoff, attempt)
		if isTimeout(err) {
			wait *= time.Duration(s.cfg.TimeoutBackoffMultiplier)
		}
		s.log.Error(pkg+"stream error, reconnecting", "error", err.Error(),
			"attempt", attempt+1, "wait", wait.String())

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
		attempt++
	}
}

func backoff(base time.Duration, attempt int) time.Duration {
	return base * time.Duration(math.Pow(2, float64(attempt)))
}

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	var t timeouter
	return errors.As(err, &t) && t.Timeout()
}

// runOnce opens a single transport connection and demuxes it until EOF or
// error. A nil return means clean EOF (end of input, not a failure).
func (s *Stream) runOnce(ctx context.Context, emit func(*frame.Data)) error {
	tr, err := openTransport(s.cfg.URL, s.Width, s.Height)
	if err != nil {
		return errors.Wrap(err, "open transport")
	}
	defer tr.Close()

	klvDone := make(chan struct{})
	if tr.klv != nil {
		go func() {
			defer close(klvDone)
			s.runKLV(ctx, tr.klv)
		}()
	} else {
		close(klvDone)
	}

	err = s.runVideo(ctx, tr.video)
	<-klvDone
	return err
}

// runKLV demuxes the parallel MPEG-TS KLV pipe and updates the latest
// telemetry slot for every successfully decoded record.
func (s *Stream) runKLV(ctx context.Context, r io.ReadCloser) {
	dmx := mpegts.NewDemuxer(r)
	done := make(chan error, 1)
	go func() { done <- dmx.Run() }()

	dec := klv.NewDecoder()
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-done:
			if err != nil {
				s.log.Warning(pkg+"klv demux ended", "error", err.Error())
			}
			return
		case raw, ok := <-dmx.KLV():
			if !ok {
				return
			}
			rec, ok := dec.Decode(raw)
			if ok {
				s.telemetry.Store(rec)
			}
		}
	}
}

// runVideo reads fixed-size raw BGR24 frames from r, builds frame.Data, and
// hands each to emit. A run of consecutive frame errors beyond
// MaxConsecutiveErrors is treated as a stream-level failure.
func (s *Stream) runVideo(ctx context.Context, r io.Reader) error {
	if s.Width == 0 || s.Height == 0 {
		return errors.New("unknown frame geometry; probe failed and no explicit size configured")
	}
	frameSize := s.Width * s.Height * 3
	buf := make([]byte, frameSize)

	// ffmpeg itself resyncs on the next keyframe before emitting the first
	// rawvideo frame of a connection, so no separate gate is needed here;
	// consecutiveErrs is the per-connection failure counter that triggers
	// reconnection instead.
	consecutiveErrs := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, err := io.ReadFull(r, buf)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			consecutiveErrs++
			if consecutiveErrs >= s.cfg.MaxConsecutiveErrors {
				return errors.Wrap(err, "repeated frame read failures")
			}
			continue
		}
		consecutiveErrs = 0

		mat, err := gocv.NewMatFromBytes(s.Height, s.Width, gocv.MatTypeCV8UC3, buf)
		if err != nil {
			continue // corrupted frame; skip without logging spam.
		}
		img := mat.Clone()
		mat.Close()

		tel, _ := s.telemetry.Load()
		s.frameIndex++
		d := &frame.Data{
			Image:      img,
			Annotated:  gocv.NewMat(),
			Timestamp:  time.Now(),
			Telemetry:  tel,
			FrameIndex: s.frameIndex,
		}
		emit(d)
	}
}

// probe uses ffprobe to determine frame width, height, and frame rate,
// rounding the frame rate to the nearest integer (29.97 -> 30, 25.00 -> 25)
// for downstream encoder configuration.
func (s *Stream) probe() error {
	if !needsProbe(s.cfg.URL) {
		return nil
	}

	out, err := exec.Command("ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,r_frame_rate",
		"-of", "json",
		s.cfg.URL,
	).Output()
	if err != nil {
		return errors.Wrap(err, "run ffprobe")
	}

	var parsed struct {
		Streams []struct {
			Width     int    `json:"width"`
			Height    int    `json:"height"`
			FrameRate string `json:"r_frame_rate"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(out, &parsed); err != nil {
		return errors.Wrap(err, "parse ffprobe output")
	}
	if len(parsed.Streams) == 0 {
		return errors.New("ffprobe returned no video streams")
	}
	st := parsed.Streams[0]

	if s.cfg.Width == 0 {
		s.Width = st.Width
	} else {
		s.Width = s.cfg.Width
	}
	if s.cfg.Height == 0 {
		s.Height = st.Height
	} else {
		s.Height = s.cfg.Height
	}
	s.FrameRate = math.Round(parseFrameRate(st.FrameRate))
	return nil
}

func needsProbe(url string) bool { return !isLocalFile(url) }

// parseFrameRate parses ffprobe's "num/den" r_frame_rate form.
func parseFrameRate(s string) float64 {
	for i := 0; i < len(s); i++ {
		if s[i] == '/' {
			num, err1 := strconv.ParseFloat(s[:i], 64)
			den, err2 := strconv.ParseFloat(s[i+1:], 64)
			if err1 == nil && err2 == nil && den != 0 {
				return num / den
			}
			return 0
		}
	}
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
