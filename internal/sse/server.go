package sse

import (
	"fmt"
	"net/http"
)

// Handler returns the net/http handler serving GET /events: permissive
// CORS, text/event-stream, and one `data: {json}\n\n` write per published
// payload.
func Handler(b *Broadcaster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("Access-Control-Allow-Origin", "*")

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		id, events := b.Subscribe()
		defer b.Unsubscribe(id)

		w.Write([]byte(":\n\n"))
		flusher.Flush()

		for {
			select {
			case payload, ok := <-events:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	}
}

// ListenAndServe starts an HTTP server on addr serving only the SSE
// endpoint at /events. It blocks until the server stops or errors.
func ListenAndServe(addr string, b *Broadcaster) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/events", Handler(b))
	return http.ListenAndServe(addr, mux)
}
