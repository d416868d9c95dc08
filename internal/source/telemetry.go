package source

import (
	"sync/atomic"

	"github.com/ausocean/aerialtrack/internal/klv"
)

// LatestTelemetry is a single-writer/multi-reader snapshot slot: the capture
// stage replaces it atomically on every KLV arrival, and readers snapshot an
// immutable copy with Load. It is monotonically non-nil once the first valid
// packet is seen (the zero value reports ok=false until then).
type LatestTelemetry struct {
	ptr atomic.Pointer[klv.Record]
}

// Store atomically replaces the latest telemetry record.
func (l *LatestTelemetry) Store(rec klv.Record) {
	l.ptr.Store(&rec)
}

// Load returns the most recently stored record. ok is false only if no
// record has ever been stored.
func (l *LatestTelemetry) Load() (klv.Record, bool) {
	p := l.ptr.Load()
	if p == nil {
		return klv.Record{}, false
	}
	return *p, true
}
