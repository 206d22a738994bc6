package highlight

import (
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/hazyhaar/darkzap/dom"
	"github.com/hazyhaar/darkzap/idgen"
)

// MemoryOverlay keeps boxes in memory. Used for file-backed pages and tests.
type MemoryOverlay struct {
	mu      sync.Mutex
	live    []*MemoryBox
	created int
}

// NewMemoryOverlay returns an empty overlay.
func NewMemoryOverlay() *MemoryOverlay { return &MemoryOverlay{} }

// NewBox implements Overlay.
func (o *MemoryOverlay) NewBox(kind Kind) Box {
	o.mu.Lock()
	defer o.mu.Unlock()
	b := &MemoryBox{overlay: o, kind: kind}
	o.live = append(o.live, b)
	o.created++
	return b
}

// Live returns the boxes of the given kind that were not removed, in creation
// order.
func (o *MemoryOverlay) Live(kind Kind) []*MemoryBox {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []*MemoryBox
	for _, b := range o.live {
		if b.kind == kind {
			out = append(out, b)
		}
	}
	return out
}

// Created returns how many boxes were ever created.
func (o *MemoryOverlay) Created() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.created
}

func (o *MemoryOverlay) drop(b *MemoryBox) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, l := range o.live {
		if l == b {
			o.live = append(o.live[:i], o.live[i+1:]...)
			return
		}
	}
}

// MemoryBox is a Box of a MemoryOverlay.
type MemoryBox struct {
	overlay *MemoryOverlay
	kind    Kind

	mu   sync.Mutex
	rect dom.Rect
}

// SetRect implements Box.
func (b *MemoryBox) SetRect(r dom.Rect) {
	b.mu.Lock()
	b.rect = r
	b.mu.Unlock()
}

// Rect implements Box.
func (b *MemoryBox) Rect() dom.Rect {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rect
}

// Remove implements Box.
func (b *MemoryBox) Remove() { b.overlay.drop(b) }

// Stream writes box lifecycle events as JSON lines to an io.Writer (default
// os.Stdout), one envelope per create, move or remove.
type Stream struct {
	mu    sync.Mutex
	enc   *json.Encoder
	newID idgen.Generator
}

// NewStream creates a Stream overlay. If w is nil, os.Stdout is used.
func NewStream(w io.Writer) *Stream {
	if w == nil {
		w = os.Stdout
	}
	return &Stream{enc: json.NewEncoder(w), newID: idgen.Prefixed("box_", idgen.NanoID(8))}
}

// NewBox implements Overlay.
func (s *Stream) NewBox(kind Kind) Box {
	b := &streamBox{stream: s, id: s.newID(), kind: kind}
	s.emit("create", b)
	return b
}

func (s *Stream) emit(op string, b *streamBox) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Encoding a fixed struct cannot fail; write errors are the reader's problem.
	_ = s.enc.Encode(envelope{Type: "box", Data: boxEvent{
		Op:   op,
		ID:   b.id,
		Kind: b.kind.String(),
		Rect: b.rect,
	}})
}

type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type boxEvent struct {
	Op   string   `json:"op"`
	ID   string   `json:"id"`
	Kind string   `json:"kind"`
	Rect dom.Rect `json:"rect"`
}

type streamBox struct {
	stream *Stream
	id     string
	kind   Kind
	rect   dom.Rect
}

func (b *streamBox) SetRect(r dom.Rect) {
	b.rect = r
	b.stream.emit("move", b)
}

func (b *streamBox) Rect() dom.Rect { return b.rect }

func (b *streamBox) Remove() { b.stream.emit("remove", b) }
