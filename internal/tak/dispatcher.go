/*
NAME
  dispatcher.go

DESCRIPTION
  dispatcher.go implements the Tactical Dispatcher: a single actor goroutine
  owning pending submissions, rate limiting, batching, and a TLS sender,
  replacing a three-mutex thread design with one actor loop serialized over
  channels, grounded on revid.go's single-goroutine state-owner pattern.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package tak publishes per-detection Cursor-on-Target messages to a
// tactical server over TLS, without blocking its caller.
package tak

import (
	"crypto/tls"
	"net"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/ausocean/aerialtrack/internal/geo"
	"github.com/ausocean/utils/logging"
)

const pkg = "tak: "

// Defaults per this system's design.
const (
	DefaultUpdateInterval        = 3 * time.Second
	DefaultBatchWindow           = 5 * time.Second
	DefaultMaxDetectionsPerBatch = 5
	DefaultStaleSeconds          = 60
	pendingCap                   = 20
	sendQueueCapacity            = 1000
	lastSendPruneThreshold       = 1000
	lastSendPruneAge             = 60 * time.Second
	shutdownJoinTimeout          = 2 * time.Second
)

var hostileKeywords = []string{"weapon", "gun", "threat"}

// Config controls connection and rate-limiting behavior.
type Config struct {
	ServerAddr            string // host:port
	CertFile, KeyFile     string
	KeyPassword           string // optional; empty if key is unencrypted
	InsecureSkipVerify    bool   // not read by dial, which always disables peer verification
	UpdateInterval        time.Duration
	BatchWindow           time.Duration
	MaxDetectionsPerBatch int
	StaleSeconds          int
	Callsign              string
}

func (c *Config) setDefaults() {
	if c.UpdateInterval <= 0 {
		c.UpdateInterval = DefaultUpdateInterval
	}
	if c.BatchWindow <= 0 {
		c.BatchWindow = DefaultBatchWindow
	}
	if c.MaxDetectionsPerBatch <= 0 {
		c.MaxDetectionsPerBatch = DefaultMaxDetectionsPerBatch
	}
	if c.StaleSeconds <= 0 {
		c.StaleSeconds = DefaultStaleSeconds
	}
	if c.Callsign == "" {
		c.Callsign = "YOLO"
	}
}

// submission is one detection awaiting batching.
type submission struct {
	trackID    string
	class      string
	confidence float64
	coords     geo.Coordinates
	frame      uint64
	submitted  time.Time
}

// Dispatcher is the single actor owning all Tactical Dispatcher state:
// pending submissions, the rate-limit map, connection status, and the send
// queue. All of that state is touched only from run(), serialized by
// channels, so none of it needs its own mutex. The exception is
// frameCounter, which Submit advances on the caller's goroutine.
type Dispatcher struct {
	cfg Config
	log logging.Logger

	submit chan submission
	stop   chan struct{}
	done   chan struct{}

	frameCounter uint64

	// ready mirrors the TLS connection's current usability, set by the
	// connection itself as it dials/fails/drops. Submit gates on it so that
	// detections arriving while disconnected are dropped rather than piling
	// up in pending for a stale, late transmission on reconnect.
	ready atomic.Bool
}

// New returns a Dispatcher. Call Start to begin the actor loop.
func New(cfg Config, log logging.Logger) *Dispatcher {
	cfg.setDefaults()
	return &Dispatcher{
		cfg:    cfg,
		log:    log,
		submit: make(chan submission, 256),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start launches the actor goroutine.
func (d *Dispatcher) Start() { go d.run() }

// Submit enqueues a detection for batching. Submissions before the
// dispatcher is ready, or after Stop, are dropped silently — this never
// blocks the output stage.
func (d *Dispatcher) Submit(trackID, class string, confidence float64, coords geo.Coordinates) {
	if !d.ready.Load() {
		return
	}
	d.frameCounter++
	s := submission{
		trackID:    trackID,
		class:      class,
		confidence: confidence,
		coords:     coords,
		frame:      d.frameCounter,
		submitted:  time.Now(),
	}
	select {
	case d.submit <- s:
	default:
		// Actor busy or not yet started; drop rather than block the caller.
	}
}

// Stop flushes one final batch, joins the actor with a bounded timeout, and
// closes the connection.
func (d *Dispatcher) Stop() {
	close(d.stop)
	select {
	case <-d.done:
	case <-time.After(shutdownJoinTimeout):
		d.log.Warning(pkg + "actor did not stop within timeout")
	}
}

// run is the single actor loop: it owns pending, lastSend, the connection,
// and the send queue, and is the only goroutine that touches any of them
// except through the submit/stop channels and the dedicated sender
// goroutine it starts for socket writes.
func (d *Dispatcher) run() {
	defer close(d.done)

	var pending []submission
	lastSend := make(map[string]time.Time)

	sendQueue := make(chan string, sendQueueCapacity)
	conn := newConnection(d.cfg, d.log, &d.ready)
	go senderLoop(conn, sendQueue, d.log)
	defer conn.close()
	defer close(sendQueue)

	ticker := time.NewTicker(d.cfg.BatchWindow)
	defer ticker.Stop()

	flush := func() {
		if len(pending) == 0 {
			return
		}
		if len(pending) > pendingCap {
			pending = pending[len(pending)-pendingCap:]
		}
		n := d.cfg.MaxDetectionsPerBatch
		if n > len(pending) {
			n = len(pending)
		}
		batch := pending[:n]
		pending = pending[n:]

		now := time.Now()
		if len(lastSend) > lastSendPruneThreshold {
			for k, t := range lastSend {
				if now.Sub(t) > lastSendPruneAge {
					delete(lastSend, k)
				}
			}
		}

		for _, s := range batch {
			if s.trackID != "" {
				if last, ok := lastSend[s.trackID]; ok && now.Sub(last) < d.cfg.UpdateInterval {
					continue
				}
				lastSend[s.trackID] = now
			}
			xml := renderCoT(d.cfg, s, now)
			select {
			case sendQueue <- xml:
			default:
				d.log.Warning(pkg + "send queue full, dropping message")
			}
		}
	}

	for {
		select {
		case s := <-d.submit:
			pending = append(pending, s)
			if len(pending) > pendingCap {
				pending = pending[len(pending)-pendingCap:]
			}
		case <-ticker.C:
			flush()
		case <-d.stop:
			flush() // final batch
			return
		}
	}
}

// connection owns the TLS socket and whether it is currently usable. ready
// is shared with the owning Dispatcher so Submit can gate on connection
// state without touching actor-only fields.
type connection struct {
	cfg   Config
	log   logging.Logger
	conn  net.Conn
	ready *atomic.Bool
}

func newConnection(cfg Config, log logging.Logger, ready *atomic.Bool) *connection {
	c := &connection{cfg: cfg, log: log, ready: ready}
	c.dial()
	return c
}

func (c *connection) dial() {
	cert, err := tls.LoadX509KeyPair(c.cfg.CertFile, c.cfg.KeyFile)
	if err != nil {
		c.log.Warning(pkg+"failed to load client certificate", "error", err.Error())
		c.ready.Store(false)
		return
	}
	conn, err := tls.Dial("tcp", c.cfg.ServerAddr, &tls.Config{
		Certificates:       []tls.Certificate{cert},
		InsecureSkipVerify: true, // peer verification disabled by default; accepts self-signed servers.
	})
	if err != nil {
		c.log.Warning(pkg+"tls dial failed", "error", err.Error())
		c.ready.Store(false)
		return
	}
	c.conn = conn
	c.ready.Store(true)
}

func (c *connection) write(line string) error {
	if c.conn == nil {
		c.dial()
		if c.conn == nil {
			return errors.New("not connected")
		}
	}
	_, err := c.conn.Write([]byte(line + "\n"))
	if err != nil {
		c.conn.Close()
		c.conn = nil
		c.ready.Store(false)
	}
	return err
}

func (c *connection) close() {
	c.ready.Store(false)
	if c.conn != nil {
		c.conn.Close()
	}
}

// senderLoop drains sendQueue onto the TLS socket, reconnecting lazily on
// the next write after a failure.
func senderLoop(conn *connection, sendQueue <-chan string, log logging.Logger) {
	for line := range sendQueue {
		if err := conn.write(line); err != nil {
			log.Warning(pkg+"send failed", "error", err.Error())
		}
	}
}

// isHostile reports whether class matches a hostile keyword, case
// insensitively.
func isHostile(class string) bool {
	lower := strings.ToLower(class)
	for _, kw := range hostileKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// uidFor returns the stable or ephemeral UID for s per this system's UID
// policy.
func uidFor(s submission) string {
	if s.trackID != "" {
		return "YOLO-" + s.class + "-" + s.trackID
	}
	return "YOLO-" + s.class + "-" + strconv.FormatUint(s.frame, 10) + "-" + uuid.New().String()[:8]
}
