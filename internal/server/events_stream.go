package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/treasury/internal/events"
)

// EventsStreamHandler fans pipeline events out to Server-Sent Events clients
type EventsStreamHandler struct {
	mu      sync.RWMutex
	clients map[chan events.EventWithData]struct{}
	closed  bool
	log     zerolog.Logger
}

// NewEventsStreamHandler creates a new events stream handler
func NewEventsStreamHandler(log zerolog.Logger) *EventsStreamHandler {
	return &EventsStreamHandler{
		clients: make(map[chan events.EventWithData]struct{}),
		log:     log.With().Str("component", "events_stream").Logger(),
	}
}

// Publish delivers an event to every connected client without blocking
func (h *EventsStreamHandler) Publish(e events.EventWithData) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.clients {
		select {
		case ch <- e:
		default:
			h.log.Warn().
				Str("event_type", string(e.Type)).
				Msg("Event channel full, dropping event")
		}
	}
}

// Clients returns the number of connected clients
func (h *EventsStreamHandler) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client
func (h *EventsStreamHandler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		close(ch)
		delete(h.clients, ch)
	}
	h.closed = true
}

func (h *EventsStreamHandler) add() (chan events.EventWithData, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	ch := make(chan events.EventWithData, 100)
	h.clients[ch] = struct{}{}
	return ch, true
}

func (h *EventsStreamHandler) remove(ch chan events.EventWithData) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[ch]; ok {
		delete(h.clients, ch)
		close(ch)
	}
}

// ServeHTTP handles GET /api/events/stream?types=RUN_FINISHED,PERIOD_COMMITTED
func (h *EventsStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	var allowed map[events.EventType]bool
	if filter := r.URL.Query().Get("types"); filter != "" {
		allowed = make(map[events.EventType]bool)
		for _, t := range strings.Split(filter, ",") {
			allowed[events.EventType(strings.TrimSpace(t))] = true
		}
	}

	ch, ok := h.add()
	if !ok {
		http.Error(w, "Server shutting down", http.StatusServiceUnavailable)
		return
	}
	defer h.remove(ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	h.log.Debug().Int("clients", h.Clients()).Msg("Client connected to event stream")

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		case e, open := <-ch:
			if !open {
				return
			}
			if allowed != nil && !allowed[e.Type] {
				continue
			}
			data, err := json.Marshal(&e)
			if err != nil {
				h.log.Warn().Err(err).Msg("Failed to encode event")
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Type, data)
			flusher.Flush()
		}
	}
}
