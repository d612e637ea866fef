package event

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type tags a lifecycle event emitted by the plugin subsystem.
type Type string

const (
	TypePluginLoaded      Type = "plugin-loaded"
	TypePluginsLoaded     Type = "plugins-loaded"
	TypePluginsError      Type = "plugins-error"
	TypePluginInstalled   Type = "plugin-installed"
	TypePluginUninstalled Type = "plugin-uninstalled"
	TypePluginUpdated     Type = "plugin-updated"
	TypeHealthReport      Type = "health-report"
)

// Event is one lifecycle notification. PluginKey is the "name@version"
// identity key where the event concerns a single plugin; Payload carries the
// type-specific detail (a load report, a health report, a descriptor).
type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	PluginKey string    `json:"plugin_key,omitempty"`
	Payload   any       `json:"payload,omitempty"`
}

// New creates an event with a generated ID and the current timestamp.
func New(t Type, pluginKey string, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		Timestamp: time.Now(),
		PluginKey: pluginKey,
		Payload:   payload,
	}
}

// Bus fans lifecycle events out to subscribers over bounded channels. A slow
// subscriber loses events rather than blocking the publisher.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	buffer int
	closed bool
}

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 64

// NewBus creates a bus with the given per-subscriber buffer. A buffer of
// zero or less falls back to DefaultBuffer.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Bus{
		subs:   make(map[int]chan Event),
		buffer: buffer,
	}
}

// Subscribe registers a new subscriber and returns its channel together with
// a cancel function that must be called when the subscriber is done.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, b.buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber without blocking. Events
// are dropped for subscribers whose buffer is full.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Close shuts down the bus and closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
