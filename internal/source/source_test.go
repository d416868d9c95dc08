package source

import (
	"errors"
	"net"
	"testing"
	"time"
)

func TestBackoff(t *testing.T) {
	base := time.Second
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
	}
	for _, c := range cases {
		if got := backoff(base, c.attempt); got != c.want {
			t.Errorf("backoff(%v, %d) = %v, want %v", base, c.attempt, got, c.want)
		}
	}
}

func TestParseFrameRate(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"30000/1001", 29.97002997002997},
		{"25/1", 25},
		{"30", 30},
	}
	for _, c := range cases {
		if got := parseFrameRate(c.in); got != c.want {
			t.Errorf("parseFrameRate(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestIsTimeout(t *testing.T) {
	if isTimeout(errors.New("plain error")) {
		t.Error("plain error misclassified as timeout")
	}
	if !isTimeout(&net.DNSError{IsTimeout: true}) {
		t.Error("net.DNSError with IsTimeout=true not classified as timeout")
	}
}

func TestIsLocalFile(t *testing.T) {
	cases := []struct {
		url  string
		want bool
	}{
		{"/tmp/clip.ts", true},
		{"file:///tmp/clip.ts", true},
		{"srt://192.168.1.1:8890", false},
		{"rtsp://camera.local/stream", false},
	}
	for _, c := range cases {
		if got := isLocalFile(c.url); got != c.want {
			t.Errorf("isLocalFile(%q) = %v, want %v", c.url, got, c.want)
		}
	}
}
