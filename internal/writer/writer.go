/*
NAME
  writer.go

DESCRIPTION
  writer.go provides the shared JPEG-encode helper used by every writer
  variant below. Each variant satisfies internal/sink.Encoder
  (WriteFrame/InjectMetadata) without importing the sink package, mirroring
  revid/senders.go's pattern of several independent sender types behind
  one dispatch point.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package writer implements the encoder sink variants: RTSP (MPEG-TS over
// RTP), HLS, MJPEG, WebRTC, and batch file output. Every variant packetizes
// gocv.IMEncode'd JPEG access units rather than a real H.264 bytestream,
// since no codec package in this tree encodes raw pixels to H.264; the
// MPEG-TS layer (container/mts) supports this directly via its EncodeMJPEG
// media type.
package writer

import (
	"fmt"

	"gocv.io/x/gocv"
)

const pkg = "writer: "

func encodeJPEG(img gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
	if err != nil {
		return nil, fmt.Errorf("jpeg encode failed: %w", err)
	}
	defer buf.Close()
	out := make([]byte, len(buf.GetBytes()))
	copy(out, buf.GetBytes())
	return out, nil
}
