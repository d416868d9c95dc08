/*
NAME
  hls.go

DESCRIPTION
  hls.go implements the HLS encoder sink: a rotating sequence of MPEG-TS
  segment files plus a generated .m3u8 playlist, grounded on
  revid/senders.go's OutputFiles rotation (its MaxFileSize-triggered file
  rotation, here driven by a segment frame count instead of a byte count).

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
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ausocean/utils/logging"

	"github.com/ausocean/aerialtrack/container/mts"
	"github.com/ausocean/aerialtrack/container/mts/meta"
	"github.com/ausocean/aerialtrack/internal/frame"
)

const (
	hlsSegmentDuration = 4 // seconds
	hlsPlaylistSize    = 5 // segments retained in the playlist
)

// HLSWriter rotates a new .ts segment every SegmentFrames frames and
// rewrites playlist.m3u8 to reference a sliding window of the most recent
// segments.
type HLSWriter struct {
	dir           string
	fps           int
	segmentFrames int

	log logging.Logger

	mu       sync.Mutex
	seq      int
	frames   int
	segments []string
	cur      *os.File
	enc      *mts.Encoder
}

// NewHLSWriter creates dir if needed and returns an HLSWriter encoding at
// fps frames per second.
func NewHLSWriter(dir string, fps int, log logging.Logger) (*HLSWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create hls dir: %w", err)
	}
	if mts.Meta == nil {
		mts.Meta = meta.New()
	}
	w := &HLSWriter{
		dir:           dir,
		fps:           fps,
		segmentFrames: fps * hlsSegmentDuration,
		log:           log,
	}
	if err := w.rotate(); err != nil {
		return nil, err
	}
	return w, nil
}

// WriteFrame JPEG-encodes the annotated frame, rotating to a new segment
// file first if the current one has reached its frame budget.
func (w *HLSWriter) WriteFrame(d *frame.Data) error {
	jpg, err := encodeJPEG(d.Annotated)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.frames >= w.segmentFrames {
		if err := w.rotateLocked(); err != nil {
			return err
		}
	}
	w.frames++
	_, err = w.enc.Write(jpg)
	return err
}

// InjectMetadata stores meta in the shared mts.Meta table ahead of the next
// PSI write.
func (w *HLSWriter) InjectMetadata(m frame.MetadataPacket) error {
	mts.Meta.Add("frame", fmt.Sprintf("%d", m.Frame))
	mts.Meta.Add("detections", fmt.Sprintf("%d", m.DetectionCount))
	return nil
}

func (w *HLSWriter) rotate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rotateLocked()
}

func (w *HLSWriter) rotateLocked() error {
	if w.cur != nil {
		w.cur.Close()
	}

	name := fmt.Sprintf("segment_%05d.ts", w.seq)
	w.seq++
	f, err := os.Create(filepath.Join(w.dir, name))
	if err != nil {
		return fmt.Errorf("create hls segment: %w", err)
	}
	enc, err := mts.NewEncoder(f, w.log, mts.MediaType(mts.EncodeMJPEG), mts.Rate(float64(w.fps)))
	if err != nil {
		f.Close()
		return fmt.Errorf("new mts encoder for segment: %w", err)
	}

	w.cur = f
	w.enc = enc
	w.frames = 0
	w.segments = append(w.segments, name)
	if len(w.segments) > hlsPlaylistSize {
		w.segments = w.segments[len(w.segments)-hlsPlaylistSize:]
	}
	return w.writePlaylistLocked()
}

func (w *HLSWriter) writePlaylistLocked() error {
	var b strings.Builder
	b.WriteString("#EXTM3U\n#EXT-X-VERSION:3\n")
	fmt.Fprintf(&b, "#EXT-X-TARGETDURATION:%d\n", hlsSegmentDuration)
	fmt.Fprintf(&b, "#EXT-X-MEDIA-SEQUENCE:%d\n", w.seq-len(w.segments))
	for _, s := range w.segments {
		fmt.Fprintf(&b, "#EXTINF:%.1f,\n%s\n", float64(hlsSegmentDuration), s)
	}
	return os.WriteFile(filepath.Join(w.dir, "playlist.m3u8"), []byte(b.String()), 0o644)
}

// Close closes the current segment file.
func (w *HLSWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cur == nil {
		return nil
	}
	return w.cur.Close()
}
