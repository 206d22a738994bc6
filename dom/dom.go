// Package dom is the tree query capability the selector engine runs against:
// query-by-selector, bounding boxes, parent/children/attributes and hit testing
// over a parsed HTML document.
//
// Selectors are matched with cascadia, so anything a browser's querySelectorAll
// would reject for syntax reasons surfaces here as ErrInvalidSelector instead of
// a panic. Geometry is delegated to a Layout: a measured browser layout for live
// pages, FlowLayout for files, StaticLayout for tests.
package dom

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// ErrInvalidSelector wraps every selector parse failure.
var ErrInvalidSelector = errors.New("dom: invalid selector")

// maxCachedSelectors bounds the compiled selector cache. Free-text editing
// produces a new entry per keystroke.
const maxCachedSelectors = 256

// Document is a parsed HTML tree paired with the layout that positions it.
type Document struct {
	root   *html.Node
	layout Layout

	mu    sync.Mutex
	cache map[string]cascadia.SelectorGroup
}

// Parse reads HTML from r and returns a Document laid out by layout.
// A nil layout yields zero rectangles everywhere.
func Parse(r io.Reader, layout Layout) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("dom: parse: %w", err)
	}
	return NewDocument(root, layout), nil
}

// NewDocument wraps an already parsed tree. root should be the document node.
func NewDocument(root *html.Node, layout Layout) *Document {
	if layout == nil {
		layout = StaticLayout{}
	}
	lowerTags(root)
	return &Document{
		root:   root,
		layout: layout,
		cache:  make(map[string]cascadia.SelectorGroup),
	}
}

// Root returns the document node.
func (d *Document) Root() *html.Node { return d.root }

// Layout returns the layout used for bounding boxes.
func (d *Document) Layout() Layout { return d.layout }

// QueryAll returns every element of the document matching sel, in document
// order. Syntax errors are reported as ErrInvalidSelector.
func (d *Document) QueryAll(sel string) (nodes []*html.Node, err error) {
	group, err := d.compile(sel)
	if err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			nodes = nil
			err = fmt.Errorf("%w: %q: %v", ErrInvalidSelector, sel, r)
		}
	}()
	return cascadia.QueryAll(d.root, group), nil
}

func (d *Document) compile(sel string) (group cascadia.SelectorGroup, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if g, ok := d.cache[sel]; ok {
		return g, nil
	}

	defer func() {
		if r := recover(); r != nil {
			group = nil
			err = fmt.Errorf("%w: %q: %v", ErrInvalidSelector, sel, r)
		}
	}()

	g, err := cascadia.ParseGroup(sel)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidSelector, sel, err)
	}
	if len(d.cache) >= maxCachedSelectors {
		d.cache = make(map[string]cascadia.SelectorGroup)
	}
	d.cache[sel] = g
	return g, nil
}

// BoundingBox returns the current viewport rectangle of n.
func (d *Document) BoundingBox(n *html.Node) Rect {
	if n == nil {
		return Rect{}
	}
	return d.layout.Rect(n)
}

// ElementAt returns the element painted at viewport point (x, y): the last
// element in document order whose box contains the point. Nil when the point
// hits nothing.
func (d *Document) ElementAt(x, y float64) *html.Node {
	var hit *html.Node
	Walk(d.root, func(n *html.Node) {
		if d.layout.Rect(n).Contains(x, y) {
			hit = n
		}
	})
	return hit
}

// ScrollBy scrolls the layout when it supports scrolling. It reports whether
// the layout moved.
func (d *Document) ScrollBy(dx, dy float64) bool {
	s, ok := d.layout.(Scroller)
	if !ok {
		return false
	}
	s.ScrollBy(dx, dy)
	return true
}

// lowerTags folds foreign-content tag names (foreignObject, clipPath, ...) to
// lower case so type selectors, which cascadia lower-cases, match every element.
func lowerTags(root *html.Node) {
	Walk(root, func(n *html.Node) {
		if l := strings.ToLower(n.Data); l != n.Data {
			n.Data = l
		}
	})
}
