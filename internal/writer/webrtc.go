/*
NAME
  webrtc.go

DESCRIPTION
  webrtc.go implements the WebRTC encoder sink: an HTTP "/offer" endpoint
  accepting a browser SDP offer, answering with a video track and adopting
  the browser-created "metadata" data channel, if any, to carry the
  per-frame JSON packet in place of the source's MISB ID3 tags, grounded on
  the pion/webrtc PeerConnection/
  TrackLocalStaticSample/DataChannel idiom seen across the pack's WebRTC
  reference files (e.g. the camsRelay bridge and the livekit SFU receivers).
  Full SDP/ICE protocol compliance (TURN relay, codec renegotiation, etc.)
  is out of scope per spec.md's non-goal on wire-level protocol
  completeness; this writer supports exactly one fixed, non-standard
  "video/mjpeg" track capability.

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
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	"github.com/ausocean/utils/logging"

	"github.com/ausocean/aerialtrack/internal/frame"
)

const mjpegTrackMimeType = "video/mjpeg"

type webrtcPeer struct {
	pc    *webrtc.PeerConnection
	track *webrtc.TrackLocalStaticSample
	dc    *webrtc.DataChannel
}

// WebRTCWriter serves one PeerConnection per browser that POSTs an offer to
// "/offer", streaming annotated frames as MJPEG samples and metadata over a
// data channel.
type WebRTCWriter struct {
	api            *webrtc.API
	frameDuration  time.Duration
	log            logging.Logger
	srv            *http.Server

	mu    sync.Mutex
	peers []*webrtcPeer
}

// NewWebRTCWriter starts an HTTP server on addr (":PORT") serving the
// offer/answer endpoint at "/offer" for fps-rate MJPEG samples.
func NewWebRTCWriter(addr string, fps int, log logging.Logger) (*WebRTCWriter, error) {
	m := &webrtc.MediaEngine{}
	err := m.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: mjpegTrackMimeType, ClockRate: 90000},
		PayloadType:        96,
	}, webrtc.RTPCodecTypeVideo)
	if err != nil {
		return nil, fmt.Errorf("register mjpeg codec: %w", err)
	}

	w := &WebRTCWriter{
		api:           webrtc.NewAPI(webrtc.WithMediaEngine(m)),
		frameDuration: time.Second / time.Duration(fps),
		log:           log,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/offer", w.handleOffer)
	w.srv = &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := w.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warning(pkg+"webrtc server stopped", "error", err.Error())
		}
	}()

	return w, nil
}

type sdpMessage struct {
	SDP  string `json:"sdp"`
	Type string `json:"type"`
}

func (w *WebRTCWriter) handleOffer(rw http.ResponseWriter, r *http.Request) {
	var offer sdpMessage
	if err := json.NewDecoder(r.Body).Decode(&offer); err != nil {
		http.Error(rw, err.Error(), http.StatusBadRequest)
		return
	}

	config := webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}},
	}
	pc, err := w.api.NewPeerConnection(config)
	if err != nil {
		http.Error(rw, err.Error(), http.StatusInternalServerError)
		return
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: mjpegTrackMimeType, ClockRate: 90000}, "video", "aerialtrack")
	if err != nil {
		pc.Close()
		http.Error(rw, err.Error(), http.StatusInternalServerError)
		return
	}
	if _, err := pc.AddTrack(track); err != nil {
		pc.Close()
		http.Error(rw, err.Error(), http.StatusInternalServerError)
		return
	}

	peer := &webrtcPeer{pc: pc, track: track}
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() == "metadata" {
			peer.dc = dc
		}
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		if state == webrtc.PeerConnectionStateClosed || state == webrtc.PeerConnectionStateFailed ||
			state == webrtc.PeerConnectionStateDisconnected {
			w.removePeer(peer)
		}
	})

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer, SDP: offer.SDP,
	}); err != nil {
		pc.Close()
		http.Error(rw, err.Error(), http.StatusBadRequest)
		return
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		http.Error(rw, err.Error(), http.StatusInternalServerError)
		return
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		pc.Close()
		http.Error(rw, err.Error(), http.StatusInternalServerError)
		return
	}
	select {
	case <-gatherComplete:
	case <-time.After(10 * time.Second):
	}

	w.mu.Lock()
	w.peers = append(w.peers, peer)
	w.mu.Unlock()

	rw.Header().Set("Content-Type", "application/json")
	json.NewEncoder(rw).Encode(sdpMessage{SDP: pc.LocalDescription().SDP, Type: "answer"})
}

func (w *WebRTCWriter) removePeer(p *webrtcPeer) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, q := range w.peers {
		if q == p {
			w.peers = append(w.peers[:i], w.peers[i+1:]...)
			break
		}
	}
}

// WriteFrame JPEG-encodes the annotated frame and writes it as one media
// sample to every connected peer's video track.
func (w *WebRTCWriter) WriteFrame(d *frame.Data) error {
	jpg, err := encodeJPEG(d.Annotated)
	if err != nil {
		return err
	}

	w.mu.Lock()
	peers := make([]*webrtcPeer, len(w.peers))
	copy(peers, w.peers)
	w.mu.Unlock()

	for _, p := range peers {
		if err := p.track.WriteSample(media.Sample{Data: jpg, Duration: w.frameDuration}); err != nil {
			w.log.Warning(pkg+"webrtc sample write failed", "error", err.Error())
		}
	}
	return nil
}

// InjectMetadata sends meta as JSON over each peer's open "metadata" data
// channel.
func (w *WebRTCWriter) InjectMetadata(m frame.MetadataPacket) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, p := range w.peers {
		if p.dc != nil && p.dc.ReadyState() == webrtc.DataChannelStateOpen {
			_ = p.dc.Send(payload)
		}
	}
	return nil
}

// Close shuts down the HTTP server and every open peer connection.
func (w *WebRTCWriter) Close() error {
	w.mu.Lock()
	for _, p := range w.peers {
		p.pc.Close()
	}
	w.peers = nil
	w.mu.Unlock()
	return w.srv.Close()
}
