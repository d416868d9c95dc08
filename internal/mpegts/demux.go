/*
NAME
  demux.go

DESCRIPTION
  demux.go walks an MPEG-TS transport stream's PAT/PMT to find the H.264
  video PID and the KLV/private-data PID, reassembles PES packets per PID,
  and exposes the two elementary streams as channels.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package mpegts demuxes an MPEG-TS transport stream into its H.264 video
// and MISB KLV data elementary streams, grounded on
// github.com/ausocean/av/container/mts's use of github.com/Comcast/gots.
package mpegts

import (
	"io"

	"github.com/Comcast/gots/packet"
	gotspsi "github.com/Comcast/gots/psi"
	"github.com/pkg/errors"
)

// KLVStreamType is the PMT stream type this system expects MISB ST 0601
// data to be carried under (private/unspecified data, per MISB RP 0605).
const KLVStreamType = gotspsi.PmtStreamTypePrivateData

// packetSize is the fixed MPEG-TS transport packet size.
const packetSize = 188

// Demuxer reads raw MPEG-TS bytes from an underlying reader and reassembles
// the video and KLV elementary streams.
type Demuxer struct {
	src io.Reader

	videoPID uint16
	klvPID   uint16
	havePIDs bool

	videoAU chan []byte
	klvAU   chan []byte

	videoBuf []byte
	klvBuf   []byte
}

// NewDemuxer returns a Demuxer reading MPEG-TS packets from src.
func NewDemuxer(src io.Reader) *Demuxer {
	return &Demuxer{
		src:     src,
		videoAU: make(chan []byte, 4),
		klvAU:   make(chan []byte, 4),
	}
}

// Video returns the channel of reassembled H.264 access units (Annex-B).
func (d *Demuxer) Video() <-chan []byte { return d.videoAU }

// KLV returns the channel of reassembled raw KLV blobs.
func (d *Demuxer) KLV() <-chan []byte { return d.klvAU }

// Run reads transport packets until src is exhausted or returns an error,
// dispatching complete PES payloads to the Video/KLV channels as they are
// reassembled. Run closes both channels before returning.
func (d *Demuxer) Run() error {
	defer close(d.videoAU)
	defer close(d.klvAU)

	buf := make([]byte, packetSize)
	var pat map[uint16]uint16 // program number -> PMT PID
	var pmtPID uint16
	havePMT := false

	for {
		if _, err := io.ReadFull(d.src, buf); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil
			}
			return errors.Wrap(err, "read transport packet")
		}

		var pkt packet.Packet
		copy(pkt[:], buf)
		pid := pkt.PID()

		switch {
		case pid == 0: // PAT
			m, err := programsFromPAT(buf)
			if err == nil && len(m) > 0 {
				pat = m
				for _, p := range pat {
					pmtPID = p
				}
				havePMT = false
			}

		case pat != nil && pid == pmtPID && !havePMT:
			streams, err := streamsFromPMT(buf)
			if err == nil {
				for _, s := range streams {
					switch s.StreamType() {
					case gotspsi.PmtStreamTypeH264:
						d.videoPID = s.ElementaryPid()
					case KLVStreamType:
						d.klvPID = s.ElementaryPid()
					}
				}
				havePMT = d.videoPID != 0 || d.klvPID != 0
				d.havePIDs = havePMT
			}

		case d.havePIDs && pid == d.videoPID:
			d.feed(&pkt, &d.videoBuf, d.videoAU)

		case d.havePIDs && pid == d.klvPID:
			d.feed(&pkt, &d.klvBuf, d.klvAU)
		}
	}
}

// feed accumulates payload bytes for one PID across packets, flushing the
// previous PES payload to out whenever a new payload-unit-start (PUSI)
// packet begins a fresh one.
func (d *Demuxer) feed(pkt *packet.Packet, acc *[]byte, out chan<- []byte) {
	payload, err := packet.Payload(pkt)
	if err != nil {
		return
	}
	if pkt.PayloadUnitStartIndicator() {
		if len(*acc) > 0 {
			flushed := stripPESHeader(*acc)
			if len(flushed) > 0 {
				select {
				case out <- flushed:
				default:
					// Downstream stalled; drop this access unit rather than
					// block the demux loop.
				}
			}
		}
		*acc = append([]byte(nil), payload...)
		return
	}
	*acc = append(*acc, payload...)
}

func programsFromPAT(tsPacket []byte) (map[uint16]uint16, error) {
	var pkt packet.Packet
	copy(pkt[:], tsPacket)
	payload, err := packet.Payload(&pkt)
	if err != nil {
		return nil, err
	}
	pat, err := gotspsi.NewPAT(payload)
	if err != nil {
		return nil, err
	}
	m := make(map[uint16]uint16)
	for k, v := range pat.ProgramMap() {
		m[uint16(k)] = uint16(v)
	}
	return m, nil
}

func streamsFromPMT(tsPacket []byte) ([]gotspsi.PmtElementaryStream, error) {
	var pkt packet.Packet
	copy(pkt[:], tsPacket)
	payload, err := packet.Payload(&pkt)
	if err != nil {
		return nil, err
	}
	pmt, err := gotspsi.NewPMT(payload)
	if err != nil {
		return nil, err
	}
	return pmt.ElementaryStreams(), nil
}

// stripPESHeader removes the PES packet header (start code, stream ID,
// packet length, and optional header fields) leaving the raw elementary
// stream payload. It returns nil if acc is too short to contain a header.
func stripPESHeader(acc []byte) []byte {
	const minPESHeader = 9
	if len(acc) < minPESHeader {
		return nil
	}
	if acc[0] != 0x00 || acc[1] != 0x00 || acc[2] != 0x01 {
		return nil
	}
	headerDataLen := int(acc[8])
	start := minPESHeader + headerDataLen
	if start > len(acc) {
		return nil
	}
	return acc[start:]
}
