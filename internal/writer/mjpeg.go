/*
NAME
  mjpeg.go

DESCRIPTION
  mjpeg.go implements the MJPEG encoder sink: a multipart/x-mixed-replace
  HTTP stream of JPEG frames, grounded on revid/senders.go's net/http
  output path, with each frame delimited by a multipart boundary instead
  of revid's MTS framing.

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
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ausocean/utils/logging"

	"github.com/ausocean/aerialtrack/internal/frame"
)

const mjpegBoundary = "aerialtrack-frame"

// MJPEGWriter serves the latest annotated frame as a multipart HTTP stream.
// Each subscriber gets its own drop-on-full queue, matching
// internal/sse.Broadcaster's non-blocking fan-out policy.
type MJPEGWriter struct {
	log logging.Logger
	srv *http.Server

	mu   sync.Mutex
	subs map[chan []byte]struct{}

	metaMu sync.Mutex
	meta   frame.MetadataPacket
}

// NewMJPEGWriter starts an HTTP server on addr (":PORT") serving the
// multipart MJPEG stream at "/" and the latest metadata packet at
// "/metadata".
func NewMJPEGWriter(addr string, log logging.Logger) *MJPEGWriter {
	w := &MJPEGWriter{
		log:  log,
		subs: make(map[chan []byte]struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", w.serveStream)
	mux.HandleFunc("/metadata", w.serveMetadata)
	w.srv = &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := w.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warning(pkg+"mjpeg server stopped", "error", err.Error())
		}
	}()

	return w
}

// WriteFrame JPEG-encodes the annotated frame and publishes it to every
// connected subscriber, dropping it for any subscriber whose queue is full.
func (w *MJPEGWriter) WriteFrame(d *frame.Data) error {
	jpg, err := encodeJPEG(d.Annotated)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for ch := range w.subs {
		select {
		case ch <- jpg:
		default:
		}
	}
	return nil
}

// InjectMetadata stores meta for the /metadata endpoint.
func (w *MJPEGWriter) InjectMetadata(m frame.MetadataPacket) error {
	w.metaMu.Lock()
	w.meta = m
	w.metaMu.Unlock()
	return nil
}

func (w *MJPEGWriter) serveStream(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", fmt.Sprintf("multipart/x-mixed-replace; boundary=%s", mjpegBoundary))

	ch := make(chan []byte, 4)
	w.mu.Lock()
	w.subs[ch] = struct{}{}
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		delete(w.subs, ch)
		w.mu.Unlock()
	}()

	flusher, _ := rw.(http.Flusher)
	for {
		select {
		case <-r.Context().Done():
			return
		case jpg := <-ch:
			fmt.Fprintf(rw, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", mjpegBoundary, len(jpg))
			rw.Write(jpg)
			fmt.Fprint(rw, "\r\n")
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

func (w *MJPEGWriter) serveMetadata(rw http.ResponseWriter, r *http.Request) {
	w.metaMu.Lock()
	m := w.meta
	w.metaMu.Unlock()
	rw.Header().Set("Content-Type", "application/json")
	json.NewEncoder(rw).Encode(m)
}

// Close shuts down the HTTP server.
func (w *MJPEGWriter) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return w.srv.Shutdown(ctx)
}
