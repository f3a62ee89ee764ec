package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// recentLimit bounds the in-memory event history served by the API
const recentLimit = 200

// Handler receives emitted events
type Handler func(EventWithData)

// Manager handles event emission, logging and fan-out to subscribers
type Manager struct {
	mu       sync.RWMutex
	handlers []Handler
	recent   []EventWithData
	log      zerolog.Logger
	now      func() time.Time
}

// NewManager creates a new event manager
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		log: log.With().Str("service", "events").Logger(),
		now: time.Now,
	}
}

// Subscribe registers a handler for every subsequent event
func (m *Manager) Subscribe(h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, h)
}

// Emit records, logs and dispatches an event. A nil manager discards events.
func (m *Manager) Emit(module string, data EventData) {
	if m == nil || data == nil {
		return
	}

	event := EventWithData{
		Type:      data.EventType(),
		Timestamp: m.now().UTC(),
		Module:    module,
		Data:      data,
	}

	level := m.log.Debug()
	if event.Type == NotificationFailed || event.Type == RunFailed || event.Type == BackupFailed {
		level = m.log.Warn()
	}
	if eventJSON, err := json.Marshal(&event); err == nil {
		level = level.RawJSON("event", eventJSON)
	}
	level.
		Str("event_type", string(event.Type)).
		Str("module", module).
		Msg("Event emitted")

	m.mu.Lock()
	m.recent = append(m.recent, event)
	if len(m.recent) > recentLimit {
		m.recent = m.recent[len(m.recent)-recentLimit:]
	}
	handlers := append([]Handler(nil), m.handlers...)
	m.mu.Unlock()

	for _, h := range handlers {
		h(event)
	}
}

// Recent returns up to limit of the latest events, newest first
func (m *Manager) Recent(limit int) []EventWithData {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > len(m.recent) {
		limit = len(m.recent)
	}
	out := make([]EventWithData, 0, limit)
	for i := len(m.recent) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.recent[i])
	}
	return out
}
