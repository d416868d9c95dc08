package sink

import (
	"encoding/json"
	"testing"

	"github.com/ausocean/aerialtrack/internal/frame"
)

type fakeLogger struct{}

func (fakeLogger) SetLevel(int8)                  {}
func (fakeLogger) Debug(string, ...interface{})   {}
func (fakeLogger) Info(string, ...interface{})    {}
func (fakeLogger) Warning(string, ...interface{}) {}
func (fakeLogger) Error(string, ...interface{})   {}
func (fakeLogger) Fatal(string, ...interface{})   {}

type fakeEncoder struct {
	frames int
	metas  int
}

func (e *fakeEncoder) WriteFrame(d *frame.Data) error {
	e.frames++
	return nil
}

func (e *fakeEncoder) InjectMetadata(meta frame.MetadataPacket) error {
	e.metas++
	return nil
}

type fakePublisher struct {
	payloads [][]byte
}

func (p *fakePublisher) Publish(payload []byte) {
	p.payloads = append(p.payloads, payload)
}

func TestFanoutDispatchesToAllSinks(t *testing.T) {
	enc := &fakeEncoder{}
	pub := &fakePublisher{}

	f := New(fakeLogger{}, enc, nil, pub, nil, 0)
	d := &frame.Data{FrameIndex: 1}
	meta := frame.NewMetadataPacket(d)

	f.Dispatch(d, meta)

	if enc.frames != 1 || enc.metas != 1 {
		t.Errorf("encoder calls = (%d frames, %d metas), want (1, 1)", enc.frames, enc.metas)
	}
	if len(pub.payloads) != 1 {
		t.Fatalf("publisher received %d payloads, want 1", len(pub.payloads))
	}

	var decoded frame.MetadataPacket
	if err := json.Unmarshal(pub.payloads[0], &decoded); err != nil {
		t.Fatalf("published payload not valid JSON: %v", err)
	}
	if decoded.Frame != 1 {
		t.Errorf("decoded.Frame = %d, want 1", decoded.Frame)
	}
}

func TestFanoutToleratesNilSinks(t *testing.T) {
	f := New(fakeLogger{}, nil, nil, nil, nil, 0)
	d := &frame.Data{FrameIndex: 2}
	f.Dispatch(d, frame.NewMetadataPacket(d)) // must not panic
}

func TestFanoutThrottlesID3Interval(t *testing.T) {
	enc := &fakeEncoder{}
	f := New(fakeLogger{}, enc, nil, nil, nil, 3)

	for i := uint64(1); i <= 6; i++ {
		d := &frame.Data{FrameIndex: i}
		f.Dispatch(d, frame.NewMetadataPacket(d))
	}

	if enc.frames != 6 {
		t.Errorf("enc.frames = %d, want 6", enc.frames)
	}
	if enc.metas != 2 {
		t.Errorf("enc.metas = %d, want 2 (every 3rd frame)", enc.metas)
	}
}
