/*
NAME
  queue.go

DESCRIPTION
  queue.go provides FrameQueue, a fixed-capacity ring buffer supporting both
  a blocking Put (batch mode) and a non-blocking, displace-oldest Put (live
  mode), per DESIGN NOTES §9 of spec.md.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package pipeline

import (
	"sync"

	"github.com/ausocean/aerialtrack/internal/frame"
)

// FrameQueue is a bounded, single-writer/single-reader queue of *frame.Data.
// In live mode PutDropOldest never blocks: a full queue displaces its oldest
// element. In batch mode Put blocks until space is available so that every
// input frame is processed exactly once and in order.
type FrameQueue struct {
	mu     sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	buf      []*frame.Data
	cap      int
	closed   bool
}

// NewFrameQueue returns a FrameQueue with the given fixed capacity.
func NewFrameQueue(capacity int) *FrameQueue {
	q := &FrameQueue{buf: make([]*frame.Data, 0, capacity), cap: capacity}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// PutDropOldest appends d, displacing the oldest queued frame if the queue
// is already at capacity. Never blocks. The frame that was displaced (if
// any) is returned so the caller can release its resources.
func (q *FrameQueue) PutDropOldest(d *frame.Data) (displaced *frame.Data) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return d
	}
	if len(q.buf) >= q.cap {
		displaced = q.buf[0]
		q.buf = q.buf[1:]
	}
	q.buf = append(q.buf, d)
	q.notEmpty.Signal()
	return displaced
}

// Put appends d, blocking until space is available or the queue is closed.
// Used by batch mode, which must never drop a frame.
func (q *FrameQueue) Put(d *frame.Data) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.buf) >= q.cap && !q.closed {
		q.notFull.Wait()
	}
	if q.closed {
		return
	}
	q.buf = append(q.buf, d)
	q.notEmpty.Signal()
}

// Get blocks until a frame is available or the queue is closed and drained,
// in which case it returns ok=false.
func (q *FrameQueue) Get() (d *frame.Data, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.buf) == 0 && !q.closed {
		q.notEmpty.Wait()
	}
	if len(q.buf) == 0 {
		return nil, false
	}
	d = q.buf[0]
	q.buf = q.buf[1:]
	q.notFull.Signal()
	return d, true
}

// Len returns the number of frames currently queued.
func (q *FrameQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}

// Close marks the queue closed: blocked Puts and Gets are released, and
// future Gets on a drained queue return ok=false.
func (q *FrameQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
}
