// CLAUDE:SUMMARY Live page tree: parses the rendered DOM and binds each element to its measured getBoundingClientRect.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/darkzap/dom"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// measureScript returns every element's client rect in document order and,
// when asked, the serialised document. The overlay is detached while
// measuring so neither the rects nor the HTML contain it. The managed
// stylesheet comes and goes between snapshots, so it never gets a rect; bind
// skips it on the parsed side.
const measureScript = `(withHTML) => {
	const overlay = document.getElementById("` + OverlayID + `");
	const parent = overlay && overlay.parentNode;
	const next = overlay && overlay.nextSibling;
	if (overlay) overlay.remove();
	const rects = Array.from(document.querySelectorAll("*"))
		.filter((el) => !el.closest("#` + StyleID + `"))
		.map((el) => {
			const r = el.getBoundingClientRect();
			return [r.x, r.y, r.width, r.height];
		});
	const html = withHTML ? document.documentElement.outerHTML : "";
	if (overlay) parent.insertBefore(overlay, next);
	return JSON.stringify({html: html, rects: rects});
}`

type measurement struct {
	HTML  string       `json:"html"`
	Rects [][4]float64 `json:"rects"`
}

func decodeMeasurement(s string) (measurement, error) {
	var m measurement
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return m, fmt.Errorf("browser: decode measurement: %w", err)
	}
	return m, nil
}

// measuredLayout holds the rects of the last measurement. Rects are already
// viewport-relative, so scrolling means measuring again.
type measuredLayout struct {
	mu    sync.RWMutex
	boxes dom.StaticLayout
}

func (l *measuredLayout) Rect(n *html.Node) dom.Rect {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.boxes[n]
}

func (l *measuredLayout) set(boxes dom.StaticLayout) {
	l.mu.Lock()
	l.boxes = boxes
	l.mu.Unlock()
}

// bind pairs the elements under root, in document order, with rects. Elements
// darkzap injects (overlay, managed stylesheet) are skipped with their
// subtrees, matching measureScript. It returns how many elements were
// counted; a count different from len(rects) means the parsed tree and the
// live DOM disagree and only the common prefix was bound.
func bind(root *html.Node, rects [][4]float64) (dom.StaticLayout, int) {
	boxes := make(dom.StaticLayout, len(rects))
	i := 0
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if injected(n) {
				return
			}
			if i < len(rects) {
				r := rects[i]
				boxes[n] = dom.Rect{X: r[0], Y: r[1], Width: r[2], Height: r[3]}
			}
			i++
			// querySelectorAll does not enter template contents.
			if n.DataAtom == atom.Template {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return boxes, i
}

func injected(n *html.Node) bool {
	id := dom.ID(n)
	return id == OverlayID || id == StyleID
}

// Page is the zap tree of a live tab: the parsed DOM of the last snapshot
// laid out with the rects the browser measured.
type Page struct {
	tab     *Tab
	logger  *slog.Logger
	timeout time.Duration

	doc    *dom.Document
	layout *measuredLayout
}

// Snapshot parses the current DOM of tab and measures every element.
func Snapshot(ctx context.Context, tab *Tab) (*Page, error) {
	m, err := tab.measure(ctx, true)
	if err != nil {
		return nil, err
	}
	root, err := html.Parse(strings.NewReader(m.HTML))
	if err != nil {
		return nil, fmt.Errorf("browser: parse DOM: %w", err)
	}

	p := &Page{
		tab:     tab,
		logger:  tab.logger,
		timeout: tab.timeout,
		layout:  &measuredLayout{},
	}
	p.bindRects(root, m.Rects)
	p.doc = dom.NewDocument(root, p.layout)
	p.logger.Debug("browser: snapshot", "url", tab.PageURL, "elements", len(m.Rects))
	return p, nil
}

func (t *Tab) measure(ctx context.Context, withHTML bool) (measurement, error) {
	res, err := t.Page.Context(ctx).Eval(measureScript, withHTML)
	if err != nil {
		return measurement{}, fmt.Errorf("browser: measure: %w", err)
	}
	return decodeMeasurement(res.Value.Str())
}

func (p *Page) bindRects(root *html.Node, rects [][4]float64) {
	boxes, n := bind(root, rects)
	if n != len(rects) {
		p.logger.Warn("browser: parsed and live DOM differ", "url", p.tab.PageURL, "parsed", n, "live", len(rects))
	}
	p.layout.set(boxes)
}

// Refresh re-measures the elements of the snapshot. Structural changes to the
// live DOM need a new Snapshot.
func (p *Page) Refresh(ctx context.Context) error {
	m, err := p.tab.measure(ctx, false)
	if err != nil {
		return err
	}
	p.bindRects(p.doc.Root(), m.Rects)
	return nil
}

// Document returns the parsed document.
func (p *Page) Document() *dom.Document { return p.doc }

// Tab returns the tab the page lives in.
func (p *Page) Tab() *Tab { return p.tab }

func (p *Page) QueryAll(sel string) ([]*html.Node, error) { return p.doc.QueryAll(sel) }

func (p *Page) BoundingBox(n *html.Node) dom.Rect { return p.doc.BoundingBox(n) }

func (p *Page) ElementAt(x, y float64) *html.Node { return p.doc.ElementAt(x, y) }

// ScrollBy scrolls the browser window and re-measures. Zero deltas only
// re-measure, which is what scrolls started by the user need.
func (p *Page) ScrollBy(dx, dy float64) bool {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if dx != 0 || dy != 0 {
		if _, err := p.tab.Page.Context(ctx).Eval(`(dx, dy) => window.scrollBy(dx, dy)`, dx, dy); err != nil {
			p.logger.Warn("browser: scroll failed", "url", p.tab.PageURL, "error", err)
			return false
		}
	}
	if err := p.Refresh(ctx); err != nil {
		p.logger.Warn("browser: refresh failed", "url", p.tab.PageURL, "error", err)
		return false
	}
	return true
}
