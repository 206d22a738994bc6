// CLAUDE:SUMMARY Multi-page zap host: one session per page id behind a mutex, mode toggle/query, commit, blacklist-update fan-out.
package zap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/hazyhaar/darkzap/dom"
	"github.com/hazyhaar/darkzap/selector"
	"golang.org/x/net/html"
)

// ErrUnknownPage is returned for page ids that were never opened.
var ErrUnknownPage = errors.New("zap: unknown page")

// ErrNoTarget is returned by Commit when the target resolves to no element.
var ErrNoTarget = errors.New("zap: target matches no element")

// Host owns the sessions of every open page. All session access goes through
// the host mutex, so events from HTTP, MCP and reload goroutines run one at a
// time and to completion.
type Host struct {
	mu       sync.Mutex
	sessions map[string]*Session
	surfaces map[string]Surface

	store   BlacklistStore
	opts    []SessionOption
	preview *Previewer
	logger  *slog.Logger
}

// HostOption configures a Host.
type HostOption func(*Host)

// WithSessionOptions applies opts to every session the host opens.
func WithSessionOptions(opts ...SessionOption) HostOption {
	return func(h *Host) { h.opts = append(h.opts, opts...) }
}

// WithHostLogger sets the logger. Default: slog.Default().
func WithHostLogger(l *slog.Logger) HostOption {
	return func(h *Host) { h.logger = l }
}

// NewHost creates a Host persisting blacklists to store. store may be nil, in
// which case submit events fail with ErrNoStore.
func NewHost(store BlacklistStore, opts ...HostOption) *Host {
	h := &Host{
		sessions: make(map[string]*Session),
		surfaces: make(map[string]Surface),
		store:    store,
		preview:  NewPreviewer(""),
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Open registers a page. An existing page with the same id is switched off
// and replaced. A nil surface gets a MemorySurface.
func (h *Host) Open(id, host string, tree Tree, surface Surface) *Session {
	if surface == nil {
		surface = NewMemorySurface()
	}
	opts := append([]SessionOption{
		WithHost(host),
		WithStore(h.store),
		WithLogger(h.logger),
	}, h.opts...)

	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.sessions[id]; ok {
		old.SetActive(false)
	}
	s := NewSession(id, tree, surface, opts...)
	h.sessions[id] = s
	h.surfaces[id] = surface
	h.logger.Info("zap: page opened", "page", id, "host", host)
	return s
}

// Close switches a page off and forgets it.
func (h *Host) Close(id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPage, id)
	}
	s.SetActive(false)
	delete(h.sessions, id)
	delete(h.surfaces, id)
	return nil
}

// Pages returns the open page ids, sorted.
func (h *Host) Pages() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]string, 0, len(h.sessions))
	for id := range h.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// With runs fn on the session of page id under the host lock.
func (h *Host) With(id string, fn func(*Session) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPage, id)
	}
	return fn(s)
}

// Toggle flips zap mode on page id and returns the new activity.
func (h *Host) Toggle(id string) (bool, error) {
	var active bool
	err := h.With(id, func(s *Session) error {
		active = s.Toggle()
		return nil
	})
	return active, err
}

// SetActive forces zap mode on or off.
func (h *Host) SetActive(id string, on bool) error {
	return h.With(id, func(s *Session) error {
		s.SetActive(on)
		return nil
	})
}

// Mode reports whether zap mode is on for page id.
func (h *Host) Mode(id string) (bool, error) {
	var active bool
	err := h.With(id, func(s *Session) error {
		active = s.Active()
		return nil
	})
	return active, err
}

// Status is the externally visible state of a session.
type Status struct {
	Page      string         `json:"page"`
	Host      string         `json:"host"`
	State     State          `json:"state"`
	Active    bool           `json:"active"`
	Hovered   string         `json:"hovered,omitempty"`
	Picked    string         `json:"picked,omitempty"`
	Level     selector.Level `json:"level"`
	Selector  string         `json:"selector,omitempty"`
	Repaired  bool           `json:"repaired,omitempty"`
	Matches   int            `json:"matches"`
	Editor    *dom.Point     `json:"editor,omitempty"`
	Listeners int            `json:"listeners"`
}

func statusOf(s *Session) Status {
	st := Status{
		Page:      s.ID(),
		Host:      s.Host(),
		State:     s.State(),
		Active:    s.Active(),
		Level:     s.Level(),
		Selector:  s.Text(),
		Repaired:  s.Repaired(),
		Matches:   len(s.Matches()),
		Listeners: s.Listeners(),
	}
	if n := s.Hovered(); n != nil {
		st.Hovered = dom.Label(n)
	}
	if n := s.Picked(); n != nil {
		st.Picked = dom.Label(n)
		p := s.EditorPosition()
		st.Editor = &p
	}
	return st
}

// Status returns the state of page id.
func (h *Host) Status(id string) (Status, error) {
	var st Status
	err := h.With(id, func(s *Session) error {
		st = statusOf(s)
		return nil
	})
	return st, err
}

// Dispatch delivers ev to page id and returns the resulting status.
func (h *Host) Dispatch(ctx context.Context, id string, ev Event) (Status, error) {
	var st Status
	err := h.With(id, func(s *Session) error {
		err := s.Dispatch(ctx, ev)
		st = statusOf(s)
		return err
	})
	return st, err
}

// Commit synthesizes and validates the selector for the first element
// matching target on page id, without touching the session state.
func (h *Host) Commit(id, target string, level selector.Level) (selector.Result, error) {
	var res selector.Result
	err := h.With(id, func(s *Session) error {
		nodes, err := s.Tree().QueryAll(target)
		if err != nil {
			return fmt.Errorf("zap: commit: %w", err)
		}
		if len(nodes) == 0 {
			return fmt.Errorf("zap: commit: %q: %w", target, ErrNoTarget)
		}
		res = selector.Commit(s.Tree(), nodes[0], level)
		return nil
	})
	return res, err
}

// CommitAt is Commit for the element painted at (x, y).
func (h *Host) CommitAt(id string, x, y float64, level selector.Level) (selector.Result, error) {
	var res selector.Result
	err := h.With(id, func(s *Session) error {
		el := s.Tree().ElementAt(x, y)
		if el == nil {
			return fmt.Errorf("zap: commit at (%g, %g): %w", x, y, ErrNoTarget)
		}
		res = selector.Commit(s.Tree(), el, level)
		return nil
	})
	return res, err
}

// Matches returns the elements sel matches on page id. An empty sel returns
// the session's current match set. Invalid selectors match nothing.
func (h *Host) Matches(id, sel string, preview bool) ([]Match, error) {
	var out []Match
	err := h.With(id, func(s *Session) error {
		var nodes []*html.Node
		if sel == "" {
			nodes = s.Matches()
		} else {
			nodes, _ = s.Tree().QueryAll(sel)
		}
		var p *Previewer
		if preview {
			p = h.preview
		}
		out = Describe(s.Tree(), nodes, p)
		return nil
	})
	return out, err
}

// Reload replaces the document of page id.
func (h *Host) Reload(id string, tree Tree) error {
	return h.With(id, func(s *Session) error {
		s.Reload(tree)
		h.logger.Info("zap: page reloaded", "page", id)
		return nil
	})
}

// NotifyBlacklistUpdate closes the editor of every page of host. An empty host
// closes every editor.
func (h *Host) NotifyBlacklistUpdate(host string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.sessions {
		if host == "" || s.Host() == host {
			s.CloseEditor()
		}
	}
}

// Follow calls NotifyBlacklistUpdate for every host received on updates until
// ctx is done or updates is closed.
func (h *Host) Follow(ctx context.Context, updates <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case host, ok := <-updates:
			if !ok {
				return
			}
			h.logger.Debug("zap: blacklist updated", "host", host)
			h.NotifyBlacklistUpdate(host)
		}
	}
}

// Surface returns the surface of page id.
func (h *Host) Surface(id string) (Surface, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.surfaces[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPage, id)
	}
	return s, nil
}
