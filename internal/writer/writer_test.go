package writer

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gocv.io/x/gocv"

	"github.com/ausocean/aerialtrack/internal/frame"
)

type fakeLogger struct{}

func (fakeLogger) SetLevel(int8)                  {}
func (fakeLogger) Debug(string, ...interface{})   {}
func (fakeLogger) Info(string, ...interface{})    {}
func (fakeLogger) Warning(string, ...interface{}) {}
func (fakeLogger) Error(string, ...interface{})   {}
func (fakeLogger) Fatal(string, ...interface{})   {}

func blankFrame(frameIndex uint64) *frame.Data {
	img := gocv.NewMatWithSize(16, 16, gocv.MatTypeCV8UC3)
	return &frame.Data{FrameIndex: frameIndex, Annotated: img}
}

func TestEncodeJPEG(t *testing.T) {
	img := gocv.NewMatWithSize(8, 8, gocv.MatTypeCV8UC3)
	defer img.Close()

	jpg, err := encodeJPEG(img)
	if err != nil {
		t.Fatalf("encodeJPEG failed: %v", err)
	}
	if len(jpg) == 0 {
		t.Fatal("encodeJPEG returned empty payload")
	}
	// JPEG files start with the SOI marker 0xFFD8.
	if jpg[0] != 0xFF || jpg[1] != 0xD8 {
		t.Errorf("missing JPEG SOI marker, got %x %x", jpg[0], jpg[1])
	}
}

func TestHLSWriterRotatesAndWritesPlaylist(t *testing.T) {
	dir := t.TempDir()
	w, err := NewHLSWriter(dir, 2, fakeLogger{})
	if err != nil {
		t.Fatalf("NewHLSWriter failed: %v", err)
	}
	defer w.Close()

	// segmentFrames = fps * hlsSegmentDuration = 2*4 = 8; write enough
	// frames to force at least one rotation.
	for i := uint64(0); i < 10; i++ {
		d := blankFrame(i)
		if err := w.WriteFrame(d); err != nil {
			t.Fatalf("WriteFrame(%d) failed: %v", i, err)
		}
		d.Close()
	}

	playlist, err := os.ReadFile(filepath.Join(dir, "playlist.m3u8"))
	if err != nil {
		t.Fatalf("playlist not written: %v", err)
	}
	if !strings.Contains(string(playlist), "#EXTM3U") {
		t.Errorf("playlist missing #EXTM3U header: %s", playlist)
	}
	if !strings.Contains(string(playlist), "segment_00001.ts") {
		t.Errorf("playlist does not reference the rotated segment: %s", playlist)
	}
}

func TestBatchWriterSidecar(t *testing.T) {
	dir := t.TempDir()
	w, err := NewBatchWriter(dir, 5, fakeLogger{})
	if err != nil {
		t.Fatalf("NewBatchWriter failed: %v", err)
	}

	d := blankFrame(1)
	defer d.Close()
	if err := w.WriteFrame(d); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}
	meta := frame.NewMetadataPacket(d)
	if err := w.InjectMetadata(meta); err != nil {
		t.Fatalf("InjectMetadata failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	sidecar, err := os.ReadFile(filepath.Join(dir, "output.json"))
	if err != nil {
		t.Fatalf("sidecar not written: %v", err)
	}
	var packets []frame.MetadataPacket
	if err := json.Unmarshal(sidecar, &packets); err != nil {
		t.Fatalf("sidecar not valid JSON: %v", err)
	}
	if len(packets) != 1 || packets[0].Frame != 1 {
		t.Errorf("sidecar = %+v, want one packet with Frame=1", packets)
	}

	if _, err := os.Stat(filepath.Join(dir, "output.ts")); err != nil {
		t.Errorf("output.ts not created: %v", err)
	}
}
