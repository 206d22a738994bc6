// Package highlight keeps overlay boxes in sync with the elements a selector
// matches: one primary box that follows the hovered or picked element and a
// pool of secondary boxes, one per match.
//
// Recompute re-runs the query and resizes the pool; Reposition only moves the
// existing boxes and is what scroll handlers call.
package highlight

import (
	"log/slog"

	"github.com/hazyhaar/darkzap/dom"
	"golang.org/x/net/html"
)

// Kind tells an Overlay which style a box gets.
type Kind int

const (
	Primary Kind = iota
	Secondary
)

func (k Kind) String() string {
	if k == Primary {
		return "primary"
	}
	return "secondary"
}

// Box is a single rectangle drawn by an Overlay.
type Box interface {
	SetRect(r dom.Rect)
	Rect() dom.Rect
	Remove()
}

// Overlay creates boxes on the highlight layer. The highlighter never touches
// anything an Overlay did not hand it.
type Overlay interface {
	NewBox(kind Kind) Box
}

// Tree is the part of a document the highlighter needs.
type Tree interface {
	QueryAll(sel string) ([]*html.Node, error)
	BoundingBox(n *html.Node) dom.Rect
}

// Highlighter owns the primary box and the secondary pool.
type Highlighter struct {
	tree    Tree
	overlay Overlay
	logger  *slog.Logger

	primary Box
	tracked *html.Node

	text      string
	matches   []*html.Node
	secondary []Box
}

// Option configures a Highlighter.
type Option func(*Highlighter)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(h *Highlighter) { h.logger = l }
}

// New creates a Highlighter drawing on overlay for tree.
func New(tree Tree, overlay Overlay, opts ...Option) *Highlighter {
	h := &Highlighter{tree: tree, overlay: overlay, logger: slog.Default()}
	for _, o := range opts {
		o(h)
	}
	return h
}

// SetTree swaps the document. Boxes are dropped since their nodes are gone.
func (h *Highlighter) SetTree(tree Tree) {
	h.Reset()
	h.tree = tree
}

// Track moves the primary box onto n. A nil n removes the primary box.
func (h *Highlighter) Track(n *html.Node) {
	if n == nil {
		h.removePrimary()
		return
	}
	if h.primary == nil {
		h.primary = h.overlay.NewBox(Primary)
	}
	h.tracked = n
	h.primary.SetRect(h.tree.BoundingBox(n))
}

// Tracked returns the node under the primary box, nil when none.
func (h *Highlighter) Tracked() *html.Node { return h.tracked }

// Primary returns the primary box, nil when nothing is tracked.
func (h *Highlighter) Primary() Box { return h.primary }

// Recompute queries text against the whole tree and resizes the secondary
// pool to the match count. Syntax errors yield zero matches. It returns the
// number of matches.
func (h *Highlighter) Recompute(text string) int {
	h.text = text
	matches, err := h.tree.QueryAll(text)
	if err != nil {
		h.logger.Debug("highlight: query failed", "selector", text, "error", err)
		matches = nil
	}
	h.matches = matches

	for len(h.secondary) > len(matches) {
		last := len(h.secondary) - 1
		h.secondary[last].Remove()
		h.secondary[last] = nil
		h.secondary = h.secondary[:last]
	}
	for len(h.secondary) < len(matches) {
		h.secondary = append(h.secondary, h.overlay.NewBox(Secondary))
	}
	for i, n := range matches {
		h.secondary[i].SetRect(h.tree.BoundingBox(n))
	}
	return len(matches)
}

// Reposition moves the primary and secondary boxes to the current geometry of
// their nodes without querying again.
func (h *Highlighter) Reposition() {
	if h.primary != nil && h.tracked != nil {
		h.primary.SetRect(h.tree.BoundingBox(h.tracked))
	}
	for i, n := range h.matches {
		h.secondary[i].SetRect(h.tree.BoundingBox(n))
	}
}

// Clear removes the secondary pool and forgets the match set.
func (h *Highlighter) Clear() {
	for _, b := range h.secondary {
		b.Remove()
	}
	h.secondary = nil
	h.matches = nil
	h.text = ""
}

// Reset removes every box.
func (h *Highlighter) Reset() {
	h.Clear()
	h.removePrimary()
}

func (h *Highlighter) removePrimary() {
	if h.primary != nil {
		h.primary.Remove()
	}
	h.primary = nil
	h.tracked = nil
}

// Text returns the selector of the last Recompute.
func (h *Highlighter) Text() string { return h.text }

// Matches returns the current match set in document order.
func (h *Highlighter) Matches() []*html.Node { return h.matches }

// Secondary returns the secondary boxes, parallel to Matches.
func (h *Highlighter) Secondary() []Box { return h.secondary }
