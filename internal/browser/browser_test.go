package browser

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/net/html"

	"github.com/hazyhaar/darkzap/dom"
	"github.com/hazyhaar/darkzap/zap"
)

const bindHTML = `<html><head><title>t</title></head><body><div><p>a</p><template><span>x</span></template><p>b</p></div></body></html>`

func rects(n int) [][4]float64 {
	out := make([][4]float64, n)
	for i := range out {
		out[i] = [4]float64{float64(i), float64(10 * i), 100, 20}
	}
	return out
}

func TestBind_DocumentOrder(t *testing.T) {
	root, err := html.Parse(strings.NewReader(bindHTML))
	if err != nil {
		t.Fatal(err)
	}
	// html head title body div p template p
	boxes, n := bind(root, rects(8))
	if n != 8 {
		t.Fatalf("bound %d elements, want 8", n)
	}

	doc := dom.NewDocument(root, boxes)
	ps, _ := doc.QueryAll("p")
	if got := doc.BoundingBox(ps[1]); got != (dom.Rect{X: 7, Y: 70, Width: 100, Height: 20}) {
		t.Errorf("second p: %+v", got)
	}
	spans, _ := doc.QueryAll("span")
	for _, s := range spans {
		if _, ok := boxes[s]; ok {
			t.Error("template content must not consume a rect")
		}
	}
}

// The managed stylesheet may be present in the parsed tree and gone from the
// page, or the other way round; neither shifts the rects of later elements.
func TestBind_SkipsInjectedElements(t *testing.T) {
	const styled = `<html><head><title>t</title><style id="` + StyleID + `">html{filter:invert(1)}</style></head>` +
		`<body><div id="a"><p id="b">x</p></div><div id="` + OverlayID + `"><span>l</span></div></body></html>`
	const plain = `<html><head><title>t</title></head><body><div id="a"><p id="b">x</p></div></body></html>`

	// html head title body div#a p#b, measured without the injected elements.
	live := [][4]float64{{0, 0, 0, 0}, {10, 0, 0, 0}, {20, 0, 0, 0}, {30, 0, 0, 0}, {40, 0, 0, 0}, {50, 0, 0, 0}}
	for name, src := range map[string]string{"styled": styled, "plain": plain} {
		t.Run(name, func(t *testing.T) {
			root, err := html.Parse(strings.NewReader(src))
			if err != nil {
				t.Fatal(err)
			}
			boxes, n := bind(root, live)
			if n != len(live) {
				t.Fatalf("counted %d elements, want %d", n, len(live))
			}
			doc := dom.NewDocument(root, boxes)
			for sel, x := range map[string]float64{"body": 30, "div#a": 40, "p#b": 50} {
				nodes, _ := doc.QueryAll(sel)
				if len(nodes) != 1 {
					t.Fatalf("%s: %d nodes", sel, len(nodes))
				}
				if got := doc.BoundingBox(nodes[0]).X; got != x {
					t.Errorf("%s: x = %v, want %v", sel, got, x)
				}
			}
			for _, sel := range []string{"#" + StyleID, "#" + OverlayID, "#" + OverlayID + " span"} {
				nodes, _ := doc.QueryAll(sel)
				for _, n := range nodes {
					if _, ok := boxes[n]; ok {
						t.Errorf("%s got a rect", sel)
					}
				}
			}
		})
	}
	if !strings.Contains(measureScript, "#"+StyleID) {
		t.Error("measureScript does not exclude the managed stylesheet")
	}
}

func TestBind_Mismatch(t *testing.T) {
	root, _ := html.Parse(strings.NewReader(bindHTML))
	boxes, n := bind(root, rects(3))
	if n != 8 || len(boxes) != 3 {
		t.Errorf("n=%d boxes=%d", n, len(boxes))
	}
}

func TestDecodeMeasurement(t *testing.T) {
	m, err := decodeMeasurement(`{"html":"<html></html>","rects":[[1,2,3,4],[0,0,0,0]]}`)
	if err != nil {
		t.Fatal(err)
	}
	want := measurement{HTML: "<html></html>", Rects: [][4]float64{{1, 2, 3, 4}, {0, 0, 0, 0}}}
	if diff := cmp.Diff(want, m); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if _, err := decodeMeasurement("not json"); err == nil {
		t.Error("expected error")
	}
}

func TestDecodeEvent(t *testing.T) {
	ev, err := decodeEvent(`{"type":"pointermove","x":12.5,"y":40}`)
	if err != nil {
		t.Fatal(err)
	}
	if ev != (zap.Event{Type: zap.PointerMove, X: 12.5, Y: 40}) {
		t.Errorf("got %+v", ev)
	}
	ev, _ = decodeEvent(`{"type":"specificity","level":3}`)
	if ev.Level != 3 {
		t.Errorf("level: %d", ev.Level)
	}
	if _, err := decodeEvent(`{}`); err == nil {
		t.Error("missing type should fail")
	}
}

func TestShouldBlock(t *testing.T) {
	set := newBlockSet([]string{"Images", " font ", "media"})
	tests := map[string]bool{
		"Image":      true,
		"Font":       true,
		"Media":      true,
		"Stylesheet": false,
		"Document":   false,
		"Script":     false,
	}
	for typ, want := range tests {
		if got := shouldBlock(set, typ); got != want {
			t.Errorf("shouldBlock(%q) = %v, want %v", typ, got, want)
		}
	}
	if !shouldBlock(newBlockSet([]string{"scripts"}), "Script") {
		t.Error("plural config name should block scripts")
	}
}

type fakeDispatcher struct {
	events  []zap.Event
	toggles int
	err     error
}

func (f *fakeDispatcher) Dispatch(_ context.Context, _ string, ev zap.Event) (zap.Status, error) {
	f.events = append(f.events, ev)
	return zap.Status{}, f.err
}

func (f *fakeDispatcher) Toggle(string) (bool, error) {
	f.toggles++
	return f.toggles%2 == 1, f.err
}

func TestDeliver(t *testing.T) {
	p := &Page{logger: slog.Default()}
	d := &fakeDispatcher{}
	ctx := context.Background()

	p.deliver(ctx, d, "p1", zap.Event{Type: toggleEvent})
	p.deliver(ctx, d, "p1", zap.Event{Type: zap.Click, X: 5, Y: 6})
	p.deliver(ctx, d, "p1", zap.Event{Type: zap.KeyDown, Key: "Escape"})

	if d.toggles != 1 {
		t.Errorf("toggles: %d", d.toggles)
	}
	want := []zap.Event{{Type: zap.Click, X: 5, Y: 6}, {Type: zap.KeyDown, Key: "Escape"}}
	if diff := cmp.Diff(want, d.events); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}

	// Dispatch errors are logged, not propagated.
	d.err = errors.New("boom")
	p.deliver(ctx, d, "p1", zap.Event{Type: zap.Submit})
	if len(d.events) != 3 {
		t.Errorf("events: %d", len(d.events))
	}
}

func TestManager_OpenAfterClose(t *testing.T) {
	m := NewManager(Config{RemoteURL: "ws://127.0.0.1:1/devtools/browser/x"})
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Open(context.Background(), "https://example.com"); !errors.Is(err, ErrClosed) {
		t.Fatalf("got %v, want ErrClosed", err)
	}
}

func TestRedact(t *testing.T) {
	tests := map[string]string{
		"ws://127.0.0.1:9222/devtools/browser/0b1c-secret": "ws://127.0.0.1:9222/devtools/...",
		"ws://chrome:9222":                                  "ws://chrome:9222",
	}
	for in, want := range tests {
		if got := redact(in); got != want {
			t.Errorf("redact(%q) = %q, want %q", in, got, want)
		}
	}
}
