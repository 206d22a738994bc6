package zap

import (
	"sync"

	"github.com/hazyhaar/darkzap/dom"
	"github.com/hazyhaar/darkzap/highlight"
	"github.com/hazyhaar/darkzap/selector"
)

// Surface is the UI layer a session draws on: the overlay holding highlight
// boxes, the hover label and the selector editor.
type Surface interface {
	highlight.Overlay

	Mount()
	Unmount()
	SetLabel(text string, at dom.Point)
	ShowEditor(at dom.Point, text string, level selector.Level)
	SetEditorText(text string, level selector.Level)
	MoveEditor(at dom.Point)
	HideEditor()
	SetMatchCount(n int)
}

// MemorySurface records surface state in memory. It backs file pages and
// tests, and is what the HTTP and MCP views report from.
type MemorySurface struct {
	*highlight.MemoryOverlay

	mu         sync.Mutex
	mounted    bool
	label      string
	labelAt    dom.Point
	editorOpen bool
	editorAt   dom.Point
	editorText string
	level      selector.Level
	matchCount int
}

// NewMemorySurface returns an unmounted surface.
func NewMemorySurface() *MemorySurface {
	return &MemorySurface{MemoryOverlay: highlight.NewMemoryOverlay()}
}

func (s *MemorySurface) Mount() {
	s.mu.Lock()
	s.mounted = true
	s.mu.Unlock()
}

func (s *MemorySurface) Unmount() {
	s.mu.Lock()
	s.mounted = false
	s.label = ""
	s.mu.Unlock()
}

func (s *MemorySurface) SetLabel(text string, at dom.Point) {
	s.mu.Lock()
	s.label, s.labelAt = text, at
	s.mu.Unlock()
}

func (s *MemorySurface) ShowEditor(at dom.Point, text string, level selector.Level) {
	s.mu.Lock()
	s.editorOpen = true
	s.editorAt, s.editorText, s.level = at, text, level
	s.mu.Unlock()
}

func (s *MemorySurface) SetEditorText(text string, level selector.Level) {
	s.mu.Lock()
	s.editorText, s.level = text, level
	s.mu.Unlock()
}

func (s *MemorySurface) MoveEditor(at dom.Point) {
	s.mu.Lock()
	s.editorAt = at
	s.mu.Unlock()
}

func (s *MemorySurface) HideEditor() {
	s.mu.Lock()
	s.editorOpen = false
	s.editorText = ""
	s.matchCount = 0
	s.mu.Unlock()
}

func (s *MemorySurface) SetMatchCount(n int) {
	s.mu.Lock()
	s.matchCount = n
	s.mu.Unlock()
}

// SurfaceState is a snapshot of a MemorySurface.
type SurfaceState struct {
	Mounted    bool           `json:"mounted"`
	Label      string         `json:"label,omitempty"`
	LabelAt    dom.Point      `json:"label_at"`
	EditorOpen bool           `json:"editor_open"`
	EditorAt   dom.Point      `json:"editor_at"`
	EditorText string         `json:"editor_text,omitempty"`
	Level      selector.Level `json:"level"`
	MatchCount int            `json:"match_count"`
}

// State returns a copy of the surface state.
func (s *MemorySurface) State() SurfaceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SurfaceState{
		Mounted:    s.mounted,
		Label:      s.label,
		LabelAt:    s.labelAt,
		EditorOpen: s.editorOpen,
		EditorAt:   s.editorAt,
		EditorText: s.editorText,
		Level:      s.level,
		MatchCount: s.matchCount,
	}
}
