/*
NAME
  rtsp.go

DESCRIPTION
  rtsp.go implements the RTSP encoder sink as MPEG-TS over RTP to a
  configured UDP destination, grounded on revid/senders.go's OutputRTP
  sender (an MPEG-TS encoder chained into an RTP encoder writing to a
  dialed net.Conn). Full RTSP signalling (DESCRIBE/SETUP/PLAY) is not
  implemented; this writer supplies the media transport a real RTSP
  server would relay.

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
	"net"

	"github.com/ausocean/utils/logging"

	"github.com/ausocean/aerialtrack/container/mts"
	"github.com/ausocean/aerialtrack/container/mts/meta"
	"github.com/ausocean/aerialtrack/internal/frame"
	"github.com/ausocean/aerialtrack/protocol/rtp"
)

// RTSPWriter packetizes annotated frames as MJPEG-in-MPEG-TS, wraps each
// MTS packet in RTP, and writes the result to a dialed UDP destination.
type RTSPWriter struct {
	conn *net.UDPConn
	rtp  *rtp.Encoder
	mts  *mts.Encoder
	log  logging.Logger
}

// NewRTSPWriter dials addr ("host:port") over UDP and returns an RTSPWriter
// packetizing at fps frames per second.
func NewRTSPWriter(addr string, fps int, log logging.Logger) (*RTSPWriter, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve rtsp destination: %w", err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("dial rtsp destination: %w", err)
	}

	if mts.Meta == nil {
		mts.Meta = meta.New()
	}

	rtpEnc := rtp.NewEncoder(conn, fps)
	mtsEnc, err := mts.NewEncoder(nopCloser{conn: conn, w: rtpEnc}, log,
		mts.MediaType(mts.EncodeMJPEG), mts.Rate(float64(fps)))
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("new mts encoder: %w", err)
	}

	return &RTSPWriter{conn: conn, rtp: rtpEnc, mts: mtsEnc, log: log}, nil
}

// WriteFrame JPEG-encodes the annotated frame and packetizes it as one MTS
// access unit.
func (w *RTSPWriter) WriteFrame(d *frame.Data) error {
	jpg, err := encodeJPEG(d.Annotated)
	if err != nil {
		return err
	}
	_, err = w.mts.Write(jpg)
	return err
}

// InjectMetadata stores meta in the shared mts.Meta table, picked up by the
// next PSI write the same way MISB ID3 tags ride alongside H.264 access
// units in revid's MTS output.
func (w *RTSPWriter) InjectMetadata(m frame.MetadataPacket) error {
	mts.Meta.Add("frame", fmt.Sprintf("%d", m.Frame))
	mts.Meta.Add("detections", fmt.Sprintf("%d", m.DetectionCount))
	return nil
}

// Close releases the underlying UDP socket.
func (w *RTSPWriter) Close() error {
	return w.conn.Close()
}

// nopCloser adapts an io.Writer destination that already owns its Close
// (the net.UDPConn) into the io.WriteCloser mts.NewEncoder requires,
// without double-closing the connection from the encoder's own Close path.
type nopCloser struct {
	conn *net.UDPConn
	w    interface{ Write([]byte) (int, error) }
}

func (n nopCloser) Write(p []byte) (int, error) { return n.w.Write(p) }
func (n nopCloser) Close() error                { return nil }
