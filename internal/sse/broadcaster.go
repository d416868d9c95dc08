/*
NAME
  broadcaster.go

DESCRIPTION
  broadcaster.go implements a single-publisher, multi-subscriber
  broadcaster for Server-Sent Events: each subscriber owns a bounded,
  drop-on-full queue so one slow client can never back up another,
  grounded on the subscriber-map pattern in
  internal/serialmux.SerialMux.Subscribe/Unsubscribe.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package sse broadcasts JSON metadata packets to any number of HTTP
// Server-Sent-Events subscribers.
package sse

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
)

// subscriberQueueCapacity is the bound on each subscriber's pending-event
// queue; once full, new events for that subscriber are dropped rather
// than blocking the publisher or disconnecting the subscriber.
const subscriberQueueCapacity = 1000

// Broadcaster fans out published payloads to every current subscriber.
type Broadcaster struct {
	mu          sync.Mutex
	subscribers map[string]chan []byte
}

// NewBroadcaster returns an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subscribers: make(map[string]chan []byte)}
}

// Subscribe registers a new subscriber and returns its ID and event
// channel. Call Unsubscribe with the same ID when the subscriber
// disconnects.
func (b *Broadcaster) Subscribe() (string, <-chan []byte) {
	id := randomID()
	ch := make(chan []byte, subscriberQueueCapacity)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes and closes a subscriber's channel. Safe to call more
// than once for the same id.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
}

// Publish enqueues payload onto every current subscriber's queue,
// dropping it for any subscriber whose queue is full. Overflowing
// subscribers are not removed — they simply miss events.
func (b *Broadcaster) Publish(payload []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- payload:
		default:
		}
	}
}

// Count returns the current subscriber count, for diagnostics.
func (b *Broadcaster) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

func randomID() string {
	buf := make([]byte, 8)
	rand.Read(buf)
	return hex.EncodeToString(buf)
}
