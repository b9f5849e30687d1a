// Package events fans import job events out to in-process subscribers
// (websocket clients, metrics) and to NATS.
package events

import (
	"log/slog"
	"sync"

	"github.com/rickgao/fmp-data/internal/model"
)

// DefaultBufferSize is the per-subscriber channel capacity.
const DefaultBufferSize = 256

// HubStats contains runtime statistics.
type HubStats struct {
	Subscribers int
	Published   int64
	Delivered   int64
	Dropped     int64 // Events not delivered to a full subscriber
}

// Hub delivers every published event to every subscriber. Publish never
// blocks: a subscriber whose buffer is full misses the event.
type Hub struct {
	bufferSize int
	logger     *slog.Logger

	mu     sync.RWMutex
	subs   map[uint64]chan model.JobEvent
	nextID uint64
	closed bool

	statsMu   sync.Mutex
	published int64
	delivered int64
	dropped   int64
}

// NewHub creates a Hub. bufferSize < 1 uses DefaultBufferSize.
func NewHub(bufferSize int, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if bufferSize < 1 {
		bufferSize = DefaultBufferSize
	}
	return &Hub{
		bufferSize: bufferSize,
		logger:     logger,
		subs:       make(map[uint64]chan model.JobEvent),
	}
}

// Publish implements importer.Sink.
func (h *Hub) Publish(ev model.JobEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return
	}

	var delivered, dropped int64
	for id, ch := range h.subs {
		select {
		case ch <- ev:
			delivered++
		default:
			dropped++
			h.logger.Debug("event dropped for slow subscriber",
				"subscriber", id,
				"entity", ev.Job.Entity,
				"status", ev.Job.Status,
			)
		}
	}

	h.statsMu.Lock()
	h.published++
	h.delivered += delivered
	h.dropped += dropped
	h.statsMu.Unlock()
}

// Subscribe registers a subscriber. The returned function unsubscribes
// and closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe() (<-chan model.JobEvent, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan model.JobEvent, h.bufferSize)
	if h.closed {
		close(ch)
		return ch, func() {}
	}

	id := h.nextID
	h.nextID++
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(c)
			}
		})
	}
}

// Close closes every subscriber channel. Later publishes are ignored.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}

// Stats returns current statistics.
func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	subs := len(h.subs)
	h.mu.RUnlock()

	h.statsMu.Lock()
	defer h.statsMu.Unlock()
	return HubStats{
		Subscribers: subs,
		Published:   h.published,
		Delivered:   h.delivered,
		Dropped:     h.dropped,
	}
}
