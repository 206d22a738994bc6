package zap

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/darkzap/dom"
	"github.com/hazyhaar/darkzap/selector"
)

// statusView mirrors Status with the state as its JSON name.
type statusView struct {
	Page      string `json:"page"`
	Host      string `json:"host"`
	State     string `json:"state"`
	Active    bool   `json:"active"`
	Picked    string `json:"picked"`
	Level     int    `json:"level"`
	Selector  string `json:"selector"`
	Matches   int    `json:"matches"`
	Listeners int    `json:"listeners"`
}

func newTestHost(t *testing.T) (*Host, *memStore) {
	t.Helper()
	store := newMemStore()
	h := NewHost(store, WithSessionOptions(
		WithViewport(dom.Size{Width: 800, Height: 600}),
		WithEditorSize(dom.Size{Width: 300, Height: 100}),
	))
	h.Open("a", "example.com", parsePage(t, page), nil)
	h.Open("b", "example.com", parsePage(t, page), nil)
	h.Open("c", "other.org", parsePage(t, page), nil)
	return h, store
}

func pickOn(t *testing.T, h *Host, id string) {
	t.Helper()
	ctx := context.Background()
	if err := h.SetActive(id, true); err != nil {
		t.Fatal(err)
	}
	st, err := h.Dispatch(ctx, id, Event{Type: Click, X: p1At.X, Y: p1At.Y})
	if err != nil {
		t.Fatal(err)
	}
	if st.State != Editing {
		t.Fatalf("%s: state %s", id, st.State)
	}
}

func TestHost_PagesAndMode(t *testing.T) {
	h, _ := newTestHost(t)

	if got := strings.Join(h.Pages(), ","); got != "a,b,c" {
		t.Errorf("pages: %s", got)
	}

	on, err := h.Toggle("a")
	if err != nil || !on {
		t.Fatalf("toggle: %v %v", on, err)
	}
	if active, _ := h.Mode("a"); !active {
		t.Error("a should be active")
	}
	if active, _ := h.Mode("b"); active {
		t.Error("b should stay inactive")
	}

	if _, err := h.Mode("missing"); !errors.Is(err, ErrUnknownPage) {
		t.Errorf("unknown page: %v", err)
	}
}

func TestHost_OpenReplaces(t *testing.T) {
	h, _ := newTestHost(t)
	pickOn(t, h, "a")
	old, _ := h.Surface("a")

	h.Open("a", "example.com", parsePage(t, page), nil)

	if old.(*MemorySurface).State().Mounted {
		t.Error("replaced page should be switched off")
	}
	if active, _ := h.Mode("a"); active {
		t.Error("new page starts inactive")
	}
}

func TestHost_Close(t *testing.T) {
	h, _ := newTestHost(t)
	pickOn(t, h, "c")
	surface, _ := h.Surface("c")

	if err := h.Close("c"); err != nil {
		t.Fatal(err)
	}
	if surface.(*MemorySurface).State().Mounted {
		t.Error("closed page should be unmounted")
	}
	if err := h.Close("c"); !errors.Is(err, ErrUnknownPage) {
		t.Errorf("second close: %v", err)
	}
}

func TestHost_Commit(t *testing.T) {
	h, _ := newTestHost(t)

	res, err := h.Commit("a", "span", selector.DefaultLevel)
	if err != nil {
		t.Fatal(err)
	}
	if res.Selector != "body > div#main > span:nth-child(3)" || res.Repaired {
		t.Errorf("commit: %+v", res)
	}

	res, err = h.CommitAt("a", p2At.X, p2At.Y, 0)
	if err != nil || res.Selector != "p" {
		t.Errorf("commit at: %+v %v", res, err)
	}

	if _, err := h.Commit("a", "table", 0); !errors.Is(err, ErrNoTarget) {
		t.Errorf("no target: %v", err)
	}
	if _, err := h.Commit("a", "[", 0); !errors.Is(err, dom.ErrInvalidSelector) {
		t.Errorf("invalid target: %v", err)
	}
	if _, err := h.CommitAt("a", -5, -5, 0); !errors.Is(err, ErrNoTarget) {
		t.Errorf("no element at point: %v", err)
	}

	if st, _ := h.Status("a"); st.State != Inactive {
		t.Error("commit must not touch the session")
	}
}

func TestHost_Matches(t *testing.T) {
	h, _ := newTestHost(t)

	ms, err := h.Matches("a", "p", true)
	if err != nil {
		t.Fatal(err)
	}
	if len(ms) != 2 {
		t.Fatalf("got %d matches", len(ms))
	}
	if ms[0].Label != "p.x" || ms[0].Rect != (dom.Rect{X: 48, Y: 60, Width: 704, Height: 20}) {
		t.Errorf("first match: %+v", ms[0])
	}
	if ms[0].Preview != "one" || ms[1].Preview != "two" {
		t.Errorf("previews: %q %q", ms[0].Preview, ms[1].Preview)
	}

	ms, _ = h.Matches("a", "[", false)
	if len(ms) != 0 {
		t.Error("invalid selectors match nothing")
	}

	pickOn(t, h, "a")
	ms, _ = h.Matches("a", "", false)
	if len(ms) != 1 || ms[0].Preview != "" {
		t.Errorf("current matches: %+v", ms)
	}
}

func TestPreview_Sanitizes(t *testing.T) {
	doc := parsePage(t, `<html><body><div id="x"><h2>Title</h2><p>one <b>bold</b>`+
		`<a href="/next" onclick="steal()">link</a></p><script>alert(1)</script></div></body></html>`)
	n := queryOne(t, doc, "div#x")

	md, err := NewPreviewer("example.com").Preview(n)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"## Title", "**bold**", "example.com/next)"} {
		if !strings.Contains(md, want) {
			t.Errorf("preview %q lacks %q", md, want)
		}
	}
	for _, bad := range []string{"alert", "steal", "<"} {
		if strings.Contains(md, bad) {
			t.Errorf("preview %q contains %q", md, bad)
		}
	}
}

func TestPreview_Truncates(t *testing.T) {
	doc := parsePage(t, `<html><body><p>`+strings.Repeat("é", 400)+`</p></body></html>`)

	md, err := NewPreviewer("").Preview(queryOne(t, doc, "p"))
	if err != nil {
		t.Fatal(err)
	}
	if got := len([]rune(md)); got != maxPreview+1 || !strings.HasSuffix(md, "…") {
		t.Errorf("got %d runes", got)
	}
}

func TestHost_NotifyBlacklistUpdate(t *testing.T) {
	h, _ := newTestHost(t)
	for _, id := range []string{"a", "b", "c"} {
		pickOn(t, h, id)
	}

	h.NotifyBlacklistUpdate("example.com")

	for id, want := range map[string]State{"a": Hovering, "b": Hovering, "c": Editing} {
		if st, _ := h.Status(id); st.State != want {
			t.Errorf("%s: got %s, want %s", id, st.State, want)
		}
	}

	h.NotifyBlacklistUpdate("")
	if st, _ := h.Status("c"); st.State != Hovering {
		t.Errorf("empty host should close every editor, c is %s", st.State)
	}
}

func TestHost_SubmitThenFollow(t *testing.T) {
	h, store := newTestHost(t)
	pickOn(t, h, "a")
	pickOn(t, h, "b")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates := make(chan string, 1)
	done := make(chan struct{})
	go func() {
		h.Follow(ctx, updates)
		close(done)
	}()

	st, err := h.Dispatch(ctx, "a", Event{Type: Submit})
	if err != nil {
		t.Fatal(err)
	}
	if st.State != Editing {
		t.Error("submit leaves the editor open until the store reports the update")
	}
	if got := store.lists["example.com"]; len(got) != 1 || got[0] != "body > div#main > p.x:nth-child(1)" {
		t.Fatalf("stored: %v", got)
	}

	updates <- "example.com"
	deadline := time.Now().Add(2 * time.Second)
	for {
		a, _ := h.Status("a")
		b, _ := h.Status("b")
		if a.State == Hovering && b.State == Hovering {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("editors still open: a=%s b=%s", a.State, b.State)
		}
		time.Sleep(5 * time.Millisecond)
	}

	close(updates)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Follow should return when updates is closed")
	}
}

func TestHost_Reload(t *testing.T) {
	h, _ := newTestHost(t)
	pickOn(t, h, "a")

	if err := h.Reload("a", parsePage(t, `<html><body><h1>x</h1></body></html>`)); err != nil {
		t.Fatal(err)
	}
	st, _ := h.Status("a")
	if st.State != Hovering || st.Picked != "" {
		t.Errorf("after reload: %+v", st)
	}
	if _, err := h.Commit("a", "h1", 0); err != nil {
		t.Errorf("commit on reloaded page: %v", err)
	}
}

// --- MCP ---

func mcpSession(t *testing.T, h *Host) *mcp.ClientSession {
	t.Helper()
	srv := mcp.NewServer(&mcp.Implementation{Name: "zap-test", Version: "0.1.0"}, nil)
	h.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	session, err := mcp.NewClient(&mcp.Implementation{Name: "zap-client", Version: "0.1.0"}, nil).Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func callTool(t *testing.T, session *mcp.ClientSession, name string, args map[string]any, out any) {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	if err := result.GetError(); err != nil {
		t.Fatalf("%s: tool error: %v", name, err)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("%s: expected TextContent", name)
	}
	if err := json.Unmarshal([]byte(tc.Text), out); err != nil {
		t.Fatalf("%s: decode %s: %v", name, tc.Text, err)
	}
}

func TestMCP_Tools(t *testing.T) {
	h, store := newTestHost(t)
	session := mcpSession(t, h)

	var pages []statusView
	callTool(t, session, "zap_pages", map[string]any{}, &pages)
	if len(pages) != 3 || pages[2].Host != "other.org" {
		t.Errorf("pages: %+v", pages)
	}

	var st statusView
	callTool(t, session, "zap_toggle", map[string]any{"page": "a"}, &st)
	if !st.Active || st.State != "hovering" || st.Listeners != 4 {
		t.Errorf("toggle: %+v", st)
	}

	var mode modeResponse
	callTool(t, session, "zap_mode", map[string]any{"page": "a"}, &mode)
	if !mode.Active {
		t.Error("mode should be active")
	}

	callTool(t, session, "zap_dispatch", map[string]any{
		"page": "a",
		"events": []map[string]any{
			{"type": "pointermove", "x": p1At.X, "y": p1At.Y},
			{"type": "click", "x": p1At.X, "y": p1At.Y},
			{"type": "specificity", "level": 1},
			{"type": "submit"},
		},
	}, &st)
	if st.State != "editing" || st.Picked != "p.x" || st.Selector != "p.x" || st.Matches != 2 {
		t.Errorf("dispatch: %+v", st)
	}
	if got := store.lists["example.com"]; len(got) != 1 || got[0] != "p.x" {
		t.Errorf("stored: %v", got)
	}

	var res selector.Result
	callTool(t, session, "zap_synthesize", map[string]any{"page": "b", "target": "span", "level": 0}, &res)
	if res.Selector != "span" || res.Level != 0 {
		t.Errorf("synthesize: %+v", res)
	}
	callTool(t, session, "zap_synthesize", map[string]any{"page": "b", "x": p2At.X, "y": p2At.Y}, &res)
	if res.Selector != "body > div#main > p.x:nth-child(2)" || res.Level != selector.DefaultLevel {
		t.Errorf("synthesize at point: %+v", res)
	}

	var ms []Match
	callTool(t, session, "zap_match", map[string]any{"page": "b", "selector": "p", "preview": true}, &ms)
	if len(ms) != 2 || ms[1].Preview != "two" {
		t.Errorf("match: %+v", ms)
	}

	callTool(t, session, "zap_toggle", map[string]any{"page": "a", "active": false}, &st)
	if st.Active || st.Listeners != 0 {
		t.Errorf("forced off: %+v", st)
	}
}

func TestMCP_UnknownPage(t *testing.T) {
	h, _ := newTestHost(t)
	session := mcpSession(t, h)

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "zap_mode",
		Arguments: map[string]any{"page": "nope"},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if result.GetError() == nil {
		t.Error("unknown page should be a tool error")
	}
}

// --- HTTP ---

func newTestServer(t *testing.T) (*Host, *httptest.Server) {
	t.Helper()
	h, _ := newTestHost(t)
	r := chi.NewRouter()
	h.RegisterHTTP(r)
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return h, ts
}

func doJSON(t *testing.T, method, url, body string, wantCode int, out any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantCode {
		t.Fatalf("%s %s: status %d, want %d", method, url, resp.StatusCode, wantCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
}

func TestHTTP_Flow(t *testing.T) {
	_, ts := newTestServer(t)

	var st statusView
	doJSON(t, "POST", ts.URL+"/zap/a/toggle", "", http.StatusOK, &st)
	if !st.Active {
		t.Fatalf("toggle: %+v", st)
	}

	doJSON(t, "POST", ts.URL+"/zap/a/events", `{"type":"click","x":60,"y":65}`, http.StatusOK, &st)
	if st.State != "editing" || st.Level != 8 {
		t.Fatalf("single event: %+v", st)
	}

	doJSON(t, "POST", ts.URL+"/zap/a/events",
		`[{"type":"input","text":"p, span"},{"type":"drag","dx":1}]`, http.StatusOK, &st)
	if st.Selector != "p, span" || st.Matches != 3 {
		t.Errorf("batch: %+v", st)
	}

	var surface SurfaceState
	doJSON(t, "GET", ts.URL+"/zap/a/surface", "", http.StatusOK, &surface)
	if !surface.EditorOpen || surface.MatchCount != 3 || surface.EditorAt.X != 49 {
		t.Errorf("surface: %+v", surface)
	}

	var ms []Match
	doJSON(t, "GET", ts.URL+"/zap/a/matches", "", http.StatusOK, &ms)
	if len(ms) != 3 || ms[2].Label != "span" {
		t.Errorf("matches: %+v", ms)
	}

	var mode modeResponse
	doJSON(t, "POST", ts.URL+"/zap/a/toggle", `{"active":false}`, http.StatusOK, nil)
	doJSON(t, "GET", ts.URL+"/zap/a/mode", "", http.StatusOK, &mode)
	if mode.Active {
		t.Error("page should be off")
	}
}

func TestHTTP_Synthesize(t *testing.T) {
	_, ts := newTestServer(t)

	var res selector.Result
	doJSON(t, "POST", ts.URL+"/zap/c/synthesize", `{"target":"#main","level":3}`, http.StatusOK, &res)
	if res.Selector != "div#main" {
		t.Errorf("synthesize: %+v", res)
	}

	doJSON(t, "POST", ts.URL+"/zap/c/synthesize", `{"target":"table"}`, http.StatusUnprocessableEntity, nil)
	doJSON(t, "POST", ts.URL+"/zap/c/synthesize", `{"target":"["}`, http.StatusBadRequest, nil)
	doJSON(t, "POST", ts.URL+"/zap/c/synthesize", `{`, http.StatusBadRequest, nil)
}

func TestHTTP_Errors(t *testing.T) {
	_, ts := newTestServer(t)

	var body map[string]string
	doJSON(t, "GET", ts.URL+"/zap/nope/mode", "", http.StatusNotFound, &body)
	if !strings.Contains(body["error"], "unknown page") {
		t.Errorf("error body: %v", body)
	}
	doJSON(t, "POST", ts.URL+"/zap/a/events", `not json`, http.StatusBadRequest, nil)

	var pages []statusView
	doJSON(t, "GET", ts.URL+"/zap/pages", "", http.StatusOK, &pages)
	if len(pages) != 3 {
		t.Errorf("pages: %d", len(pages))
	}
}
