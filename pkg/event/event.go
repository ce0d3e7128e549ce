// Package event is the in-process event bus. Plugins emit events
// ("updater://progress", "app://exit-requested") and the websocket hub
// forwards every event to the webview.
package event

import (
	"sync"
)

// All subscribes a handler to every event.
const All = "*"

// Event is what listeners receive and what the webview sees on /events.
type Event struct {
	Name    string `json:"event"`
	Payload any    `json:"payload,omitempty"`
}

// Handler receives an event.
type Handler func(Event)

type sub struct {
	id int
	h  Handler
}

// Bus dispatches events to listeners.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]sub
	nextID   int
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{handlers: map[string][]sub{}}
}

// Listen registers handler for name, or for every event when name is All.
// The returned func removes the registration.
func (b *Bus) Listen(name string, handler Handler) (unlisten func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.handlers[name] = append(b.handlers[name], sub{id: id, h: handler})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			subs := b.handlers[name]
			for i, s := range subs {
				if s.id == id {
					b.handlers[name] = append(subs[:i:i], subs[i+1:]...)
					break
				}
			}
		})
	}
}

func (b *Bus) snapshot(name string) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Handler, 0, len(b.handlers[name])+len(b.handlers[All]))
	for _, s := range b.handlers[name] {
		out = append(out, s.h)
	}
	if name != All {
		for _, s := range b.handlers[All] {
			out = append(out, s.h)
		}
	}
	return out
}

// Emit dispatches synchronously to all listeners of name and of All.
func (b *Bus) Emit(name string, payload any) {
	ev := Event{Name: name, Payload: payload}
	for _, h := range b.snapshot(name) {
		h(ev)
	}
}

// EmitAsync dispatches to each listener on its own goroutine and returns
// immediately.
func (b *Bus) EmitAsync(name string, payload any) {
	ev := Event{Name: name, Payload: payload}
	for _, h := range b.snapshot(name) {
		go h(ev)
	}
}

// Flush removes all listeners (useful in tests).
func (b *Bus) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = map[string][]sub{}
}

// Default is the process-wide bus.
var Default = New()

// Listen registers handler on Default.
func Listen(name string, handler Handler) func() { return Default.Listen(name, handler) }

// Emit dispatches on Default.
func Emit(name string, payload any) { Default.Emit(name, payload) }

// EmitAsync dispatches on Default without waiting.
func EmitAsync(name string, payload any) { Default.EmitAsync(name, payload) }
