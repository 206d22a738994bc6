// CLAUDE:SUMMARY Zap mode session: Inactive/Hovering/Editing state machine driving picker, ladder, validator and highlighter.
package zap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/darkzap/dom"
	"github.com/hazyhaar/darkzap/highlight"
	"github.com/hazyhaar/darkzap/selector"
	"golang.org/x/net/html"
)

// State is the zap mode state of a session.
type State int

const (
	Inactive State = iota
	Hovering
	Editing
)

func (s State) String() string {
	switch s {
	case Hovering:
		return "hovering"
	case Editing:
		return "editing"
	}
	return "inactive"
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Tree is the page a session picks from.
type Tree interface {
	QueryAll(sel string) ([]*html.Node, error)
	BoundingBox(n *html.Node) dom.Rect
	ElementAt(x, y float64) *html.Node
}

// scrollable trees move their layout on scroll events.
type scrollable interface {
	ScrollBy(dx, dy float64) bool
}

// BlacklistStore persists the per-host selector blacklist.
type BlacklistStore interface {
	Blacklist(ctx context.Context, host string) ([]string, error)
	SaveBlacklist(ctx context.Context, host string, list []string) error
}

// ErrNoStore is returned by Submit when the session has no BlacklistStore.
var ErrNoStore = errors.New("zap: no blacklist store")

// Default geometry when the caller does not configure one.
var (
	DefaultViewport   = dom.Size{Width: 1280, Height: 800}
	DefaultEditorSize = dom.Size{Width: 320, Height: 180}
)

// Session is the context of one page in zap mode. It is not safe for
// concurrent use; Host serializes access.
type Session struct {
	id      string
	host    string
	tree    Tree
	surface Surface
	store   BlacklistStore
	logger  *slog.Logger
	hl      *highlight.Highlighter

	viewport     dom.Size
	editorSize   dom.Size
	defaultLevel selector.Level

	bus    *bus
	mode   *scope
	editor *scope

	state     State
	hovered   *html.Node
	picked    *html.Node
	level     selector.Level
	text      string
	repaired  bool
	editorPos dom.Point
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithHost sets the page host used as blacklist key.
func WithHost(host string) SessionOption {
	return func(s *Session) { s.host = host }
}

// WithStore sets the blacklist store used on submit.
func WithStore(store BlacklistStore) SessionOption {
	return func(s *Session) { s.store = store }
}

// WithViewport sets the viewport size used for editor placement.
func WithViewport(size dom.Size) SessionOption {
	return func(s *Session) { s.viewport = size }
}

// WithEditorSize sets the editor panel size used for placement.
func WithEditorSize(size dom.Size) SessionOption {
	return func(s *Session) { s.editorSize = size }
}

// WithDefaultLevel sets the level a fresh pick starts at. Default: 8.
func WithDefaultLevel(l selector.Level) SessionOption {
	return func(s *Session) { s.defaultLevel = l.Clamp() }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) SessionOption {
	return func(s *Session) { s.logger = l }
}

// NewSession creates an inactive session over tree drawing on surface.
func NewSession(id string, tree Tree, surface Surface, opts ...SessionOption) *Session {
	s := &Session{
		id:           id,
		tree:         tree,
		surface:      surface,
		logger:       slog.Default(),
		viewport:     DefaultViewport,
		editorSize:   DefaultEditorSize,
		defaultLevel: selector.DefaultLevel,
		bus:          newBus(),
	}
	for _, o := range opts {
		o(s)
	}
	s.level = s.defaultLevel
	s.hl = highlight.New(tree, surface, highlight.WithLogger(s.logger))
	return s
}

// ID returns the page id.
func (s *Session) ID() string { return s.id }

// Host returns the page host.
func (s *Session) Host() string { return s.host }

// State returns the current state.
func (s *Session) State() State { return s.state }

// Active reports whether zap mode is on (hovering or editing).
func (s *Session) Active() bool { return s.state != Inactive }

// Picked returns the picked element, nil outside of editing.
func (s *Session) Picked() *html.Node { return s.picked }

// Hovered returns the element under the primary box while hovering.
func (s *Session) Hovered() *html.Node { return s.hovered }

// Level returns the current specificity level.
func (s *Session) Level() selector.Level { return s.level }

// Text returns the current selector text of the editor.
func (s *Session) Text() string { return s.text }

// Repaired reports whether the last synthesized selector was replaced by the
// positional fallback.
func (s *Session) Repaired() bool { return s.repaired }

// Matches returns the current match set.
func (s *Session) Matches() []*html.Node { return s.hl.Matches() }

// EditorPosition returns the top-left corner of the editor.
func (s *Session) EditorPosition() dom.Point { return s.editorPos }

// Listeners returns the number of registered event handlers.
func (s *Session) Listeners() int { return s.bus.count() }

// Tree returns the current document.
func (s *Session) Tree() Tree { return s.tree }

// Toggle flips zap mode and returns the new activity.
func (s *Session) Toggle() bool {
	s.SetActive(!s.Active())
	return s.Active()
}

// SetActive enters or leaves zap mode. Entering mounts the surface and
// acquires the mode listeners; leaving closes the editor first, releases every
// listener and unmounts the surface.
func (s *Session) SetActive(on bool) {
	switch {
	case on && s.state == Inactive:
		s.surface.Mount()
		s.mode = s.bus.scope().
			on(PointerMove, s.onPointerMove).
			on(Click, s.onClick).
			on(KeyDown, s.onKeyDown).
			on(Scroll, s.onScroll)
		s.state = Hovering
		s.logger.Debug("zap: mode on", "page", s.id)

	case !on && s.state != Inactive:
		s.CloseEditor()
		s.mode.Release()
		s.mode = nil
		s.hl.Reset()
		s.hovered = nil
		s.surface.Unmount()
		s.state = Inactive
		s.logger.Debug("zap: mode off", "page", s.id)
	}
}

// Dispatch delivers ev to the listeners currently registered. Events with no
// listener are dropped.
func (s *Session) Dispatch(ctx context.Context, ev Event) error {
	return s.bus.emit(ctx, ev)
}

// Reload replaces the document. An open editor is closed since its element
// belongs to the old tree.
func (s *Session) Reload(tree Tree) {
	s.CloseEditor()
	s.hl.SetTree(tree)
	s.tree = tree
	s.hovered = nil
}

// CloseEditor leaves editing: the pick is cleared, the level reset, the
// secondary boxes removed and the editor listeners released.
func (s *Session) CloseEditor() {
	if s.state != Editing {
		return
	}
	s.editor.Release()
	s.editor = nil
	s.picked = nil
	s.level = s.defaultLevel
	s.text = ""
	s.repaired = false
	s.hl.Clear()
	s.surface.HideEditor()
	s.state = Hovering
}

func (s *Session) onPointerMove(_ context.Context, ev Event) error {
	if s.picked != nil {
		return nil
	}
	el := s.tree.ElementAt(ev.X, ev.Y)
	if el == nil {
		return nil
	}
	s.hovered = el
	s.hl.Track(el)
	r := s.tree.BoundingBox(el)
	s.surface.SetLabel(dom.Label(el), dom.Point{X: r.X, Y: r.Bottom()})
	return nil
}

func (s *Session) onClick(_ context.Context, ev Event) error {
	if s.picked != nil {
		return nil
	}
	el := s.tree.ElementAt(ev.X, ev.Y)
	if el == nil {
		return nil
	}
	s.pick(el)
	return nil
}

func (s *Session) pick(el *html.Node) {
	s.picked = el
	s.hovered = el
	s.hl.Track(el)
	s.state = Editing
	s.level = s.defaultLevel

	s.editor = s.bus.scope().
		on(Input, s.onInput).
		on(Specificity, s.onSpecificity).
		on(Submit, s.onSubmit).
		on(Close, s.onClose).
		on(Drag, s.onDrag)

	s.synthesize()
	s.editorPos = PlaceEditor(s.tree.BoundingBox(el), s.editorSize, s.viewport)
	s.surface.ShowEditor(s.editorPos, s.text, s.level)
	s.recompute()
	s.logger.Debug("zap: picked", "page", s.id, "element", dom.Label(el), "selector", s.text)
}

func (s *Session) synthesize() {
	res := selector.Commit(s.tree, s.picked, s.level)
	s.text = res.Selector
	s.repaired = res.Repaired
	if res.Repaired {
		s.logger.Debug("zap: candidate repaired", "page", s.id, "level", res.Level, "candidate", res.Candidate, "selector", res.Selector)
	}
}

func (s *Session) recompute() {
	n := s.hl.Recompute(s.text)
	s.surface.SetMatchCount(n)
}

func (s *Session) onKeyDown(_ context.Context, ev Event) error {
	if ev.Key != "Escape" {
		return nil
	}
	if s.picked != nil {
		s.CloseEditor()
		return nil
	}
	s.SetActive(false)
	return nil
}

func (s *Session) onScroll(_ context.Context, ev Event) error {
	if sc, ok := s.tree.(scrollable); ok && (ev.DX != 0 || ev.DY != 0) {
		sc.ScrollBy(ev.DX, ev.DY)
	}
	s.hl.Reposition()
	return nil
}

func (s *Session) onInput(_ context.Context, ev Event) error {
	s.text = ev.Text
	s.repaired = false
	s.recompute()
	return nil
}

func (s *Session) onSpecificity(_ context.Context, ev Event) error {
	s.level = ev.Level.Clamp()
	s.synthesize()
	s.surface.SetEditorText(s.text, s.level)
	s.recompute()
	return nil
}

func (s *Session) onSubmit(ctx context.Context, _ Event) error {
	if err := s.Submit(ctx); err != nil {
		s.logger.Error("zap: submit failed", "page", s.id, "host", s.host, "error", err)
		return err
	}
	return nil
}

// Submit appends the current selector text to the host blacklist: the full
// list is read, extended and written back.
func (s *Session) Submit(ctx context.Context) error {
	if s.store == nil {
		return fmt.Errorf("zap: submit: %w", ErrNoStore)
	}
	list, err := s.store.Blacklist(ctx, s.host)
	if err != nil {
		return fmt.Errorf("zap: submit: %w", err)
	}
	list = append(list, s.text)
	if err := s.store.SaveBlacklist(ctx, s.host, list); err != nil {
		return fmt.Errorf("zap: submit: %w", err)
	}
	s.logger.Info("zap: blacklisted", "page", s.id, "host", s.host, "selector", s.text)
	return nil
}

func (s *Session) onClose(_ context.Context, _ Event) error {
	s.CloseEditor()
	return nil
}

func (s *Session) onDrag(_ context.Context, ev Event) error {
	s.editorPos.X += ev.DX
	s.editorPos.Y += ev.DY
	s.surface.MoveEditor(s.editorPos)
	return nil
}
