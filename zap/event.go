package zap

import (
	"context"
	"sync"

	"github.com/hazyhaar/darkzap/selector"
)

// EventType names a user-interaction event delivered to a session.
type EventType string

const (
	PointerMove EventType = "pointermove"
	Click       EventType = "click"
	KeyDown     EventType = "keydown"
	Scroll      EventType = "scroll"

	Input       EventType = "input"
	Specificity EventType = "specificity"
	Submit      EventType = "submit"
	Close       EventType = "close"
	Drag        EventType = "drag"
)

// Event is one user interaction. Which fields matter depends on Type:
// pointer events use X/Y, scroll and drag use DX/DY, keydown uses Key, input
// uses Text and specificity uses Level.
type Event struct {
	Type  EventType      `json:"type"`
	X     float64        `json:"x,omitempty"`
	Y     float64        `json:"y,omitempty"`
	DX    float64        `json:"dx,omitempty"`
	DY    float64        `json:"dy,omitempty"`
	Key   string         `json:"key,omitempty"`
	Text  string         `json:"text,omitempty"`
	Level selector.Level `json:"level,omitempty"`
}

// Handler reacts to an event.
type Handler func(ctx context.Context, ev Event) error

// bus fans events out to the handlers registered for their type, in
// registration order.
type bus struct {
	mu       sync.Mutex
	nextID   int
	handlers map[EventType][]listener
}

type listener struct {
	id int
	fn Handler
}

func newBus() *bus {
	return &bus{handlers: make(map[EventType][]listener)}
}

// on registers fn for t and returns the function that removes it. Calling the
// release function more than once is a no-op.
func (b *bus) on(t EventType, fn Handler) (release func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.handlers[t] = append(b.handlers[t], listener{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.off(t, id) })
	}
}

func (b *bus) off(t EventType, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ls := b.handlers[t]
	for i, l := range ls {
		if l.id == id {
			b.handlers[t] = append(ls[:i:i], ls[i+1:]...)
			break
		}
	}
	if len(b.handlers[t]) == 0 {
		delete(b.handlers, t)
	}
}

// emit runs the handlers registered for ev.Type at the time of the call.
// Handlers may release listeners, including their own. The first error stops
// delivery.
func (b *bus) emit(ctx context.Context, ev Event) error {
	b.mu.Lock()
	ls := append([]listener(nil), b.handlers[ev.Type]...)
	b.mu.Unlock()

	for _, l := range ls {
		if !b.live(ev.Type, l.id) {
			continue
		}
		if err := l.fn(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

func (b *bus) live(t EventType, id int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, l := range b.handlers[t] {
		if l.id == id {
			return true
		}
	}
	return false
}

func (b *bus) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, ls := range b.handlers {
		n += len(ls)
	}
	return n
}

// scope groups listeners acquired together so they are released together.
type scope struct {
	bus      *bus
	releases []func()
}

func (b *bus) scope() *scope { return &scope{bus: b} }

func (s *scope) on(t EventType, fn Handler) *scope {
	s.releases = append(s.releases, s.bus.on(t, fn))
	return s
}

// Release removes every listener of the scope. Safe on a nil scope.
func (s *scope) Release() {
	if s == nil {
		return
	}
	for _, r := range s.releases {
		r()
	}
	s.releases = nil
}
