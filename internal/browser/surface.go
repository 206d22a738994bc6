// CLAUDE:SUMMARY In-page zap surface: draws highlight boxes, hover label and selector editor inside the live tab.
package browser

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/darkzap/dom"
	"github.com/hazyhaar/darkzap/highlight"
	"github.com/hazyhaar/darkzap/idgen"
	"github.com/hazyhaar/darkzap/selector"
)

// OverlayID is the id of the overlay host element. The dark mode stylesheet
// exempts it so the zap UI keeps its colours.
const OverlayID = "darkzap-overlay"

// overlayScript installs window.__darkzap, the page half of the surface.
// Methods are no-ops until mount.
const overlayScript = `() => {
	if (window.__darkzap) return;
	const z = {root: null, label: null, editor: null, input: null, range: null, count: null, boxes: {}};
	const send = (ev) => { if (window.` + bindingName + `) window.` + bindingName + `(JSON.stringify(ev)); };
	const place = (el, x, y) => { el.style.left = x + "px"; el.style.top = y + "px"; };
	let drag = null;
	window.addEventListener("pointerup", () => { drag = null; }, true);
	window.addEventListener("pointermove", (e) => {
		if (!drag) return;
		send({type: "drag", dx: e.clientX - drag.x, dy: e.clientY - drag.y});
		drag = {x: e.clientX, y: e.clientY};
	}, true);
	z.mount = () => {
		if (z.root) return;
		const root = document.createElement("div");
		root.id = "` + OverlayID + `";
		root.style.cssText = "position:fixed;inset:0;pointer-events:none;z-index:2147483647;font:12px monospace";
		const label = document.createElement("div");
		label.style.cssText = "position:fixed;display:none;padding:1px 4px;background:#222;color:#fff";
		const editor = document.createElement("div");
		editor.style.cssText = "position:fixed;display:none;pointer-events:auto;width:320px;padding:6px;background:#fff;color:#000;border:1px solid #888;box-shadow:0 2px 8px #0006";
		editor.innerHTML = '<div data-drag style="cursor:move;font-weight:bold">zap</div>' +
			'<input data-text style="width:100%;box-sizing:border-box">' +
			'<input data-level type="range" min="0" max="9" style="width:100%">' +
			'<span data-count></span> <button data-submit>Blacklist</button> <button data-close>Close</button>';
		root.append(label, editor);
		document.documentElement.appendChild(root);
		z.root = root; z.label = label; z.editor = editor;
		z.input = editor.querySelector("[data-text]");
		z.range = editor.querySelector("[data-level]");
		z.count = editor.querySelector("[data-count]");
		z.input.addEventListener("input", () => send({type: "input", text: z.input.value}));
		z.range.addEventListener("input", () => send({type: "specificity", level: Number(z.range.value)}));
		editor.querySelector("[data-submit]").addEventListener("click", () => send({type: "submit"}));
		editor.querySelector("[data-close]").addEventListener("click", () => send({type: "close"}));
		editor.querySelector("[data-drag]").addEventListener("pointerdown", (e) => { drag = {x: e.clientX, y: e.clientY}; });
	};
	z.unmount = () => {
		if (z.root) z.root.remove();
		z.root = null; z.boxes = {};
	};
	z.setLabel = (text, x, y) => {
		if (!z.root) return;
		z.label.textContent = text;
		z.label.style.display = text ? "block" : "none";
		place(z.label, x, y);
	};
	z.showEditor = (x, y, text, level) => {
		if (!z.root) return;
		z.editor.style.display = "block";
		place(z.editor, x, y);
		z.input.value = text; z.range.value = level;
	};
	z.setEditorText = (text, level) => { if (z.root) { z.input.value = text; z.range.value = level; } };
	z.moveEditor = (x, y) => { if (z.root) place(z.editor, x, y); };
	z.hideEditor = () => { if (z.root) { z.editor.style.display = "none"; z.count.textContent = ""; } };
	z.setCount = (n) => { if (z.root) z.count.textContent = n + (n === 1 ? " match" : " matches"); };
	z.box = (id, kind) => {
		if (!z.root) return;
		const b = document.createElement("div");
		b.style.cssText = kind === "primary" ?
			"position:fixed;border:2px solid #e33;background:#e333" :
			"position:fixed;border:1px dashed #36f;background:#36f2";
		z.root.insertBefore(b, z.label);
		z.boxes[id] = b;
	};
	z.rect = (id, x, y, w, h) => {
		const b = z.boxes[id];
		if (!b) return;
		b.style.left = x + "px"; b.style.top = y + "px";
		b.style.width = w + "px"; b.style.height = h + "px";
	};
	z.drop = (id) => { const b = z.boxes[id]; if (b) { b.remove(); delete z.boxes[id]; } };
	window.__darkzap = z;
}`

var boxID = idgen.Prefixed("box_", idgen.NanoID(8))

// Surface draws the zap UI inside a live tab. Surface calls cannot fail from
// the session's point of view; CDP errors are logged.
type Surface struct {
	tab     *Tab
	logger  *slog.Logger
	timeout time.Duration

	once sync.Once
}

// NewSurface returns the surface of tab. The page script is installed lazily
// on first use; a tab that navigated away needs a new Surface.
func NewSurface(tab *Tab) *Surface {
	return &Surface{
		tab:     tab,
		logger:  tab.logger,
		timeout: tab.timeout,
	}
}

func (s *Surface) eval(js string, args ...any) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	page := s.tab.Page.Context(ctx)
	s.once.Do(func() {
		if _, err := page.Eval(overlayScript); err != nil {
			s.logger.Warn("browser: install overlay", "url", s.tab.PageURL, "error", err)
		}
	})
	if _, err := page.Eval(js, args...); err != nil {
		s.logger.Warn("browser: overlay call failed", "url", s.tab.PageURL, "error", err)
	}
}

func (s *Surface) Mount() {
	s.eval(`() => { window.__darkzapActive = true; window.__darkzap.mount(); }`)
}

func (s *Surface) Unmount() {
	s.eval(`() => { window.__darkzapActive = false; window.__darkzap.unmount(); }`)
}

func (s *Surface) SetLabel(text string, at dom.Point) {
	s.eval(`(t, x, y) => window.__darkzap.setLabel(t, x, y)`, text, at.X, at.Y)
}

func (s *Surface) ShowEditor(at dom.Point, text string, level selector.Level) {
	s.eval(`(x, y, t, l) => window.__darkzap.showEditor(x, y, t, l)`, at.X, at.Y, text, int(level))
}

func (s *Surface) SetEditorText(text string, level selector.Level) {
	s.eval(`(t, l) => window.__darkzap.setEditorText(t, l)`, text, int(level))
}

func (s *Surface) MoveEditor(at dom.Point) {
	s.eval(`(x, y) => window.__darkzap.moveEditor(x, y)`, at.X, at.Y)
}

func (s *Surface) HideEditor() {
	s.eval(`() => window.__darkzap.hideEditor()`)
}

func (s *Surface) SetMatchCount(n int) {
	s.eval(`(n) => window.__darkzap.setCount(n)`, n)
}

// NewBox implements highlight.Overlay.
func (s *Surface) NewBox(kind highlight.Kind) highlight.Box {
	b := &box{surface: s, id: boxID()}
	s.eval(`(id, kind) => window.__darkzap.box(id, kind)`, b.id, kind.String())
	return b
}

type box struct {
	surface *Surface
	id      string

	mu   sync.Mutex
	rect dom.Rect
}

func (b *box) SetRect(r dom.Rect) {
	b.mu.Lock()
	b.rect = r
	b.mu.Unlock()
	b.surface.eval(`(id, x, y, w, h) => window.__darkzap.rect(id, x, y, w, h)`, b.id, r.X, r.Y, r.Width, r.Height)
}

func (b *box) Rect() dom.Rect {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rect
}

func (b *box) Remove() {
	b.surface.eval(`(id) => window.__darkzap.drop(id)`, b.id)
}
