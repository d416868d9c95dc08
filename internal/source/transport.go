/*
NAME
  transport.go

DESCRIPTION
  transport.go opens a stream URL as two ffmpeg subprocess pipes: one
  emitting raw BGR24 video frames for decoding into gocv.Mat, the other
  emitting an MPEG-TS stream carrying just the KLV data PID for
  internal/mpegts.Demuxer, grounded on device/webcam.Webcam's exec.Cmd +
  io.ReadCloser pattern.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package source

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
)

// transport is a live ffmpeg-backed connection to a stream URL: a raw BGR24
// video pipe and a parallel MPEG-TS pipe carrying the KLV data PID.
type transport struct {
	cmd   *exec.Cmd
	video io.ReadCloser // raw BGR24 frames, width*height*3 bytes each
	klv   io.ReadCloser // MPEG-TS, data PID only
}

// openTransport dispatches on url's scheme: a bare path or file:// URL is
// opened directly with os.Open (no ffmpeg needed, no KLV substream); any
// other scheme (srt://, rtsp://, udp://) is piped through ffmpeg.
func openTransport(url string, width, height int) (*transport, error) {
	if isLocalFile(url) {
		path := strings.TrimPrefix(url, "file://")
		f, err := os.Open(path)
		if err != nil {
			return nil, errors.Wrap(err, "open local file")
		}
		return &transport{video: f}, nil
	}
	return openFFmpegTransport(url, width, height)
}

func isLocalFile(url string) bool {
	return !strings.Contains(url, "://") || strings.HasPrefix(url, "file://")
}

// openFFmpegTransport starts ffmpeg with two outputs: stdout carries raw
// BGR24 video frames, and a third fd (via ExtraFiles) carries an MPEG-TS
// remux of just the data stream for KLV extraction.
func openFFmpegTransport(url string, width, height int) (*transport, error) {
	klvRead, klvWrite, err := os.Pipe()
	if err != nil {
		return nil, errors.Wrap(err, "create klv pipe")
	}

	args := []string{
		"-loglevel", "error",
		"-i", url,
		"-map", "0:v:0",
		"-f", "rawvideo",
		"-pix_fmt", "bgr24",
	}
	if width > 0 && height > 0 {
		args = append(args, "-s", fmt.Sprintf("%dx%d", width, height))
	}
	args = append(args, "-",
		"-map", "0:d:0?",
		"-c", "copy",
		"-f", "mpegts",
		"pipe:3",
	)

	cmd := exec.Command("ffmpeg", args...)
	cmd.ExtraFiles = []*os.File{klvWrite}

	videoOut, err := cmd.StdoutPipe()
	if err != nil {
		klvRead.Close()
		klvWrite.Close()
		return nil, errors.Wrap(err, "create video pipe")
	}

	if err := cmd.Start(); err != nil {
		klvRead.Close()
		klvWrite.Close()
		return nil, errors.Wrap(err, "start ffmpeg")
	}
	klvWrite.Close() // parent's copy of the write end; ffmpeg holds the other.

	return &transport{cmd: cmd, video: videoOut, klv: klvRead}, nil
}

// Close terminates the underlying transport, releasing both pipes.
func (t *transport) Close() error {
	if t.klv != nil {
		t.klv.Close()
	}
	if t.video != nil {
		t.video.Close()
	}
	if t.cmd != nil && t.cmd.Process != nil {
		return t.cmd.Process.Kill()
	}
	return nil
}
