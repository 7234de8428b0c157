package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/efebarandurmaz/callsight/internal/store"
)

// EventGraphPublished is sent after every successful rebuild.
const EventGraphPublished = "graph.published"

// clientBuffer is how many events a slow client may fall behind before
// events are dropped for it.
const clientBuffer = 16

// Event is one Server-Sent Event payload.
type Event struct {
	Type      string        `json:"type"`
	Timestamp time.Time     `json:"timestamp"`
	Version   uint64        `json:"version"`
	Source    string        `json:"source"`
	Nodes     int           `json:"nodes"`
	Edges     int           `json:"edges"`
	Duration  time.Duration `json:"build_duration"`
}

// EventHub fans graph events out to Server-Sent Events subscribers.
type EventHub struct {
	mu        sync.RWMutex
	clients   map[chan []byte]struct{}
	keepAlive time.Duration
	done      chan struct{}
	closeOnce sync.Once
}

// NewEventHub creates a hub that pings idle connections every keepAlive.
func NewEventHub(keepAlive time.Duration) *EventHub {
	if keepAlive <= 0 {
		keepAlive = 30 * time.Second
	}
	return &EventHub{
		clients:   make(map[chan []byte]struct{}),
		keepAlive: keepAlive,
		done:      make(chan struct{}),
	}
}

// Close ends every open stream. http.Server.Shutdown does not cancel
// in-flight requests, so streams must be closed separately.
func (h *EventHub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// Clients returns the number of connected subscribers.
func (h *EventHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues ev for every subscriber. Subscribers whose buffer is full
// miss the event.
func (h *EventHub) Broadcast(ev *Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.clients {
		select {
		case ch <- data:
		default:
		}
	}
}

// PublishHook broadcasts every published snapshot.
func (h *EventHub) PublishHook() store.PublishHook {
	return func(_ context.Context, snap *store.Snapshot) {
		stats := snap.Graph.Stats()
		h.Broadcast(&Event{
			Type:      EventGraphPublished,
			Timestamp: snap.BuiltAt,
			Version:   snap.Version,
			Source:    snap.Source,
			Nodes:     stats.TotalNodes,
			Edges:     stats.EdgeCount,
			Duration:  snap.BuildDuration,
		})
	}
}

// ServeHTTP streams events until the client disconnects. The handler
// goroutine is the only writer to w.
func (h *EventHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "streaming not supported"})
		return
	}

	// Streams outlive the server's write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := make(chan []byte, clientBuffer)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.clients, ch)
		h.mu.Unlock()
	}()

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-h.done:
			return
		case data := <-ch:
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", EventGraphPublished, data)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}
