package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Handler receives events synchronously on the emitting goroutine. Handlers must not block.
type Handler func(Event)

// Bus fans events out to subscribers.
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	all      []Handler
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[EventType][]Handler)}
}

// Subscribe registers h for one event type.
func (b *Bus) Subscribe(eventType EventType, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], h)
}

// SubscribeAll registers h for every event type.
func (b *Bus) SubscribeAll(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, h)
}

func (b *Bus) publish(event Event) {
	b.mu.RLock()
	handlers := append(append([]Handler(nil), b.handlers[event.Type]...), b.all...)
	b.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
}

// Manager handles event emission and logging
type Manager struct {
	bus *Bus
	log zerolog.Logger
	now func() time.Time
}

// NewManager creates a new event manager. A nil bus only logs.
func NewManager(bus *Bus, log zerolog.Logger) *Manager {
	return &Manager{
		bus: bus,
		log: log.With().Str("service", "events").Logger(),
		now: time.Now,
	}
}

// Emit publishes an event to the bus and logs it.
func (m *Manager) Emit(eventType EventType, module string, data interface{}) {
	if m == nil {
		return
	}
	event := Event{
		Type:      eventType,
		Timestamp: m.now(),
		Module:    module,
		Data:      data,
	}

	if m.bus != nil {
		m.bus.publish(event)
	}

	eventJSON, err := json.Marshal(event)
	if err != nil {
		m.log.Warn().Err(err).Str("event_type", string(eventType)).Msg("Failed to encode event")
		return
	}
	m.log.Info().
		Str("event_type", string(eventType)).
		Str("module", module).
		RawJSON("event", eventJSON).
		Msg("Event emitted")
}

// Recorder collects events in memory. Used by tests and the HTTP API's recent-events view.
type Recorder struct {
	mu     sync.Mutex
	limit  int
	events []Event
}

// NewRecorder keeps at most limit events, dropping the oldest.
func NewRecorder(limit int) *Recorder {
	return &Recorder{limit: limit}
}

// Record is a Handler.
func (r *Recorder) Record(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	if r.limit > 0 && len(r.events) > r.limit {
		r.events = r.events[len(r.events)-r.limit:]
	}
}

// Events returns a copy of the recorded events, oldest first.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType returns the recorded events of one type.
func (r *Recorder) OfType(eventType EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}
