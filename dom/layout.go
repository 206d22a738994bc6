package dom

import (
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Rect is a viewport-relative box, the shape of getBoundingClientRect.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Right returns the x coordinate of the right edge.
func (r Rect) Right() float64 { return r.X + r.Width }

// Bottom returns the y coordinate of the bottom edge.
func (r Rect) Bottom() float64 { return r.Y + r.Height }

// Empty reports whether the rect has no area.
func (r Rect) Empty() bool { return r.Width <= 0 || r.Height <= 0 }

// Contains reports whether (x, y) lies inside r. Empty rects contain nothing.
func (r Rect) Contains(x, y float64) bool {
	if r.Empty() {
		return false
	}
	return x >= r.X && x < r.Right() && y >= r.Y && y < r.Bottom()
}

// Point is a viewport position.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size is a width/height pair (viewport, editor panel).
type Size struct {
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// Layout positions elements in the viewport.
type Layout interface {
	Rect(n *html.Node) Rect
}

// Scroller is a layout whose viewport can move.
type Scroller interface {
	ScrollBy(dx, dy float64)
}

// StaticLayout maps nodes to fixed rectangles. Nodes without an entry have a
// zero rect. Used in tests and for pre-measured pages.
type StaticLayout map[*html.Node]Rect

// Rect implements Layout.
func (l StaticLayout) Rect(n *html.Node) Rect { return l[n] }

// ScrollableLayout wraps a StaticLayout with a scroll offset.
type ScrollableLayout struct {
	Boxes StaticLayout

	mu     sync.Mutex
	offset Point
}

// Rect implements Layout.
func (l *ScrollableLayout) Rect(n *html.Node) Rect {
	r, ok := l.Boxes[n]
	if !ok {
		return Rect{}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	r.X -= l.offset.X
	r.Y -= l.offset.Y
	return r
}

// ScrollBy implements Scroller.
func (l *ScrollableLayout) ScrollBy(dx, dy float64) {
	l.mu.Lock()
	l.offset.X += dx
	l.offset.Y += dy
	l.mu.Unlock()
}

// FlowLayout is a deterministic block layout for documents that were never
// rendered: every rendered element gets one row of RowHeight, children are
// indented by Indent and an element's box spans its whole subtree. Head
// content, scripts, styles and templates are not rendered.
type FlowLayout struct {
	Width     float64
	RowHeight float64
	Indent    float64

	mu     sync.Mutex
	root   *html.Node
	boxes  map[*html.Node]Rect
	offset Point
}

// NewFlowLayout returns a FlowLayout for a viewport of the given width.
func NewFlowLayout(width float64) *FlowLayout {
	return &FlowLayout{Width: width, RowHeight: 20, Indent: 16}
}

// Rect implements Layout.
func (l *FlowLayout) Rect(n *html.Node) Rect {
	l.mu.Lock()
	defer l.mu.Unlock()

	top := n
	for top.Parent != nil {
		top = top.Parent
	}
	if top != l.root || l.boxes == nil {
		l.root = top
		l.boxes = l.measure(top)
	}

	r, ok := l.boxes[n]
	if !ok {
		return Rect{}
	}
	r.X -= l.offset.X
	r.Y -= l.offset.Y
	return r
}

// ScrollBy implements Scroller.
func (l *FlowLayout) ScrollBy(dx, dy float64) {
	l.mu.Lock()
	l.offset.X += dx
	l.offset.Y += dy
	l.mu.Unlock()
}

// Invalidate drops measured boxes; the next Rect call re-measures.
func (l *FlowLayout) Invalidate() {
	l.mu.Lock()
	l.boxes = nil
	l.mu.Unlock()
}

func (l *FlowLayout) measure(root *html.Node) map[*html.Node]Rect {
	boxes := make(map[*html.Node]Rect)
	row := 0

	var place func(n *html.Node, depth int) int
	place = func(n *html.Node, depth int) int {
		if n.Type == html.ElementNode && !rendered(n) {
			return 0
		}
		start := row
		childDepth := depth
		if n.Type == html.ElementNode {
			row++
			childDepth = depth + 1
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			place(c, childDepth)
		}
		if n.Type == html.ElementNode {
			x := float64(depth) * l.Indent
			w := l.Width - 2*x
			if w < 0 {
				w = 0
			}
			boxes[n] = Rect{
				X:      x,
				Y:      float64(start) * l.RowHeight,
				Width:  w,
				Height: float64(row-start) * l.RowHeight,
			}
		}
		return row - start
	}
	place(root, 0)
	return boxes
}

func rendered(n *html.Node) bool {
	switch n.DataAtom {
	case atom.Head, atom.Script, atom.Style, atom.Template, atom.Noscript,
		atom.Title, atom.Meta, atom.Link, atom.Base:
		return false
	}
	if _, hidden := Attr(n, "hidden"); hidden {
		return false
	}
	return true
}
