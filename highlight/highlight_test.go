package highlight

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/hazyhaar/darkzap/dom"
)

const list = `<html><body><div><p class="a">1</p><p class="a">2</p><p>3</p></div></body></html>`

func setup(t *testing.T) (*dom.Document, *MemoryOverlay, *Highlighter) {
	t.Helper()
	doc, err := dom.Parse(strings.NewReader(list), dom.NewFlowLayout(800))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	ov := NewMemoryOverlay()
	return doc, ov, New(doc, ov)
}

func rects(boxes []*MemoryBox) []dom.Rect {
	out := make([]dom.Rect, len(boxes))
	for i, b := range boxes {
		out[i] = b.Rect()
	}
	return out
}

func TestRecompute_PoolTracksMatches(t *testing.T) {
	doc, ov, h := setup(t)

	if n := h.Recompute("p.a"); n != 2 {
		t.Fatalf("p.a: got %d matches, want 2", n)
	}
	if got := len(ov.Live(Secondary)); got != 2 {
		t.Fatalf("secondary boxes: got %d, want 2", got)
	}

	if n := h.Recompute("p"); n != 3 {
		t.Fatalf("p: got %d matches, want 3", n)
	}
	if got := len(ov.Live(Secondary)); got != 3 {
		t.Fatalf("secondary boxes: got %d, want 3", got)
	}
	if got := ov.Created(); got != 3 {
		t.Errorf("boxes should be reused: created %d, want 3", got)
	}

	for i, n := range h.Matches() {
		if got, want := h.Secondary()[i].Rect(), doc.BoundingBox(n); got != want {
			t.Errorf("box %d: got %v, want %v", i, got, want)
		}
	}

	if n := h.Recompute("p.a"); n != 2 || len(ov.Live(Secondary)) != 2 {
		t.Errorf("shrink: got %d matches, %d boxes", n, len(ov.Live(Secondary)))
	}
}

func TestRecompute_InvalidSelector(t *testing.T) {
	_, ov, h := setup(t)

	for _, text := range []string{"[x=", "", "div >", "nonexistent"} {
		if n := h.Recompute("p"); n != 3 {
			t.Fatalf("Recompute(p): got %d", n)
		}
		if n := h.Recompute(text); n != 0 {
			t.Errorf("Recompute(%q): got %d, want 0", text, n)
		}
		if got := len(ov.Live(Secondary)); got != 0 {
			t.Errorf("Recompute(%q): %d boxes left", text, got)
		}
		if len(h.Matches()) != 0 {
			t.Errorf("Recompute(%q): matches %v", text, h.Matches())
		}
	}
}

func TestRecompute_Idempotent(t *testing.T) {
	_, ov, h := setup(t)

	h.Recompute("p")
	first := rects(ov.Live(Secondary))
	h.Recompute("p")
	second := rects(ov.Live(Secondary))

	if len(first) != len(second) {
		t.Fatalf("lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("box %d moved: %v -> %v", i, first[i], second[i])
		}
	}
}

func TestReposition_FollowsScroll(t *testing.T) {
	doc, ov, h := setup(t)
	h.Recompute("p")
	before := rects(ov.Live(Secondary))
	created := ov.Created()

	doc.ScrollBy(0, 10)
	h.Reposition()

	after := rects(ov.Live(Secondary))
	for i := range before {
		if after[i].Y != before[i].Y-10 {
			t.Errorf("box %d: Y %v -> %v, want shift of 10", i, before[i].Y, after[i].Y)
		}
	}
	if ov.Created() != created {
		t.Error("Reposition must not create boxes")
	}
}

func TestTrack(t *testing.T) {
	doc, ov, h := setup(t)
	ps, _ := doc.QueryAll("p")

	h.Track(ps[0])
	h.Track(ps[1])
	live := ov.Live(Primary)
	if len(live) != 1 {
		t.Fatalf("primary boxes: got %d, want 1", len(live))
	}
	if live[0].Rect() != doc.BoundingBox(ps[1]) {
		t.Error("primary box should follow the tracked node")
	}

	doc.ScrollBy(0, 5)
	h.Reposition()
	if live[0].Rect() != doc.BoundingBox(ps[1]) {
		t.Error("primary box should follow scroll")
	}

	h.Track(nil)
	if len(ov.Live(Primary)) != 0 || h.Tracked() != nil {
		t.Error("Track(nil) should remove the primary box")
	}
}

func TestReset(t *testing.T) {
	doc, ov, h := setup(t)
	ps, _ := doc.QueryAll("p")
	h.Track(ps[0])
	h.Recompute("p")

	h.Clear()
	if len(ov.Live(Secondary)) != 0 || len(h.Matches()) != 0 {
		t.Error("Clear should drop the secondary pool")
	}
	if len(ov.Live(Primary)) != 1 {
		t.Error("Clear should keep the primary box")
	}

	h.Reset()
	if len(ov.Live(Primary)) != 0 {
		t.Error("Reset should drop the primary box")
	}
}

func TestStream(t *testing.T) {
	var buf bytes.Buffer
	s := NewStream(&buf)

	b := s.NewBox(Secondary)
	b.SetRect(dom.Rect{X: 1, Y: 2, Width: 3, Height: 4})
	b.Remove()

	var ops []string
	sc := bufio.NewScanner(&buf)
	for sc.Scan() {
		var env struct {
			Type string   `json:"type"`
			Data boxEvent `json:"data"`
		}
		if err := json.Unmarshal(sc.Bytes(), &env); err != nil {
			t.Fatalf("decode %q: %v", sc.Text(), err)
		}
		if env.Type != "box" || env.Data.Kind != "secondary" || !strings.HasPrefix(env.Data.ID, "box_") {
			t.Errorf("unexpected envelope %+v", env)
		}
		ops = append(ops, env.Data.Op)
	}
	if strings.Join(ops, ",") != "create,move,remove" {
		t.Errorf("ops: %v", ops)
	}
}
