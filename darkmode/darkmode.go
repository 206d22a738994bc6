// CLAUDE:SUMMARY Dark-mode preferences service — site allow-list, per-host selector blacklist, stylesheet composition, change fan-out.
// Package darkmode persists the dark-mode preferences darkzap works against:
// the hosts dark mode is enabled on and, per host, the selectors exempted
// from the inversion filter. Zap mode appends to those blacklists.
//
//	svc, err := darkmode.Open("darkzap.db")
//	defer svc.Close()
//	host := zap.NewHost(svc)
//	go svc.Watch(ctx, time.Second)
//	updates, cancel := svc.Subscribe(16)
//	defer cancel()
//	go host.Follow(ctx, darkmode.Hosts(ctx, updates, darkmode.KindBlacklist))
package darkmode

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/darkzap/darkmode/internal/store"
)

// ErrInvalidHost is returned for empty hosts or hosts with whitespace or a
// path in them.
var ErrInvalidHost = errors.New("darkmode: invalid host")

// Kind names what a change touched.
type Kind = store.Kind

const (
	KindSites     = store.KindSites
	KindBlacklist = store.KindBlacklist
)

// Change is a committed preference write.
type Change = store.Change

// Service is the preference store.
type Service struct {
	store  *store.Store
	logger *slog.Logger

	// writeMu orders writes against Poll: Poll never reads the log between a
	// local commit and its publishLocal.
	writeMu sync.Mutex

	mu      sync.Mutex
	subs    map[int]chan Change
	nextID  int
	cursor  int64
	local   map[int64]bool
	polling bool
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// Open opens the preference database at path.
func Open(path string, opts ...Option) (*Service, error) {
	st, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("darkmode: open: %w", err)
	}
	svc, err := newService(st, opts...)
	if err != nil {
		st.Close()
		return nil, err
	}
	return svc, nil
}

// changeRetention is how long change rows survive; older ones are pruned on
// open.
const changeRetention = 24 * time.Hour

func newService(st *store.Store, opts ...Option) (*Service, error) {
	s := &Service{
		store:  st,
		logger: slog.Default(),
		subs:   make(map[int]chan Change),
		local:  make(map[int64]bool),
	}
	for _, o := range opts {
		o(s)
	}
	ctx := context.Background()
	if n, err := st.PruneChanges(ctx, time.Now().Add(-changeRetention).UnixMilli()); err != nil {
		s.logger.Warn("darkmode: prune change log", "error", err)
	} else if n > 0 {
		s.logger.Debug("darkmode: pruned change log", "rows", n)
	}
	seq, err := st.LastSeq(ctx)
	if err != nil {
		return nil, fmt.Errorf("darkmode: read change log: %w", err)
	}
	s.cursor = seq
	return s, nil
}

// Close closes the database.
func (s *Service) Close() error {
	return s.store.Close()
}

// ValidHost checks host the way every write does.
func ValidHost(host string) error {
	if host == "" || strings.ContainsAny(host, " \t\r\n/") {
		return fmt.Errorf("%w: %q", ErrInvalidHost, host)
	}
	return nil
}

// HostOf returns the host (with port) of a page URL.
func HostOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("darkmode: parse url: %w", err)
	}
	if err := ValidHost(u.Host); err != nil {
		return "", err
	}
	return u.Host, nil
}

// ParseList splits text-area content into entries: one per line, trimmed,
// empty lines dropped.
func ParseList(text string) []string {
	out := []string{}
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// FormatList is the inverse of ParseList.
func FormatList(list []string) string {
	return strings.Join(list, "\n")
}

// --- sites ---

// ToggleSite flips dark mode for host and returns whether it is now enabled.
func (s *Service) ToggleSite(ctx context.Context, host string) (bool, error) {
	if err := ValidHost(host); err != nil {
		return false, err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	enabled, c, err := s.store.ToggleSite(ctx, host)
	if err != nil {
		return false, fmt.Errorf("darkmode: toggle site: %w", err)
	}
	s.logger.Info("darkmode: site toggled", "host", host, "enabled", enabled)
	s.publishLocal(c)
	return enabled, nil
}

// Sites returns the hosts dark mode is enabled on.
func (s *Service) Sites(ctx context.Context) ([]string, error) {
	sites, err := s.store.Sites(ctx)
	if err != nil {
		return nil, fmt.Errorf("darkmode: sites: %w", err)
	}
	return sites, nil
}

// SiteEnabled reports whether dark mode is enabled on host.
func (s *Service) SiteEnabled(ctx context.Context, host string) (bool, error) {
	ok, err := s.store.SiteEnabled(ctx, host)
	if err != nil {
		return false, fmt.Errorf("darkmode: site enabled: %w", err)
	}
	return ok, nil
}

// SaveSitesFromText replaces the allow-list with the hosts listed in text and
// returns the stored list. Every line must be a valid host.
func (s *Service) SaveSitesFromText(ctx context.Context, text string) ([]string, error) {
	hosts := ParseList(text)
	for _, h := range hosts {
		if err := ValidHost(h); err != nil {
			return nil, err
		}
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	c, err := s.store.ReplaceSites(ctx, hosts)
	if err != nil {
		return nil, fmt.Errorf("darkmode: save sites: %w", err)
	}
	s.publishLocal(c)
	return s.Sites(ctx)
}

// --- blacklist ---

// Blacklist returns the selectors exempted on host. It never returns nil on
// success.
func (s *Service) Blacklist(ctx context.Context, host string) ([]string, error) {
	list, err := s.store.Blacklist(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("darkmode: blacklist: %w", err)
	}
	return list, nil
}

// SaveBlacklist overwrites the list of host. The stored list is
// de-duplicated, keeping the first occurrence of each selector.
func (s *Service) SaveBlacklist(ctx context.Context, host string, list []string) error {
	if err := ValidHost(host); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	c, err := s.store.ReplaceBlacklist(ctx, host, list)
	if err != nil {
		return fmt.Errorf("darkmode: save blacklist: %w", err)
	}
	s.logger.Info("darkmode: blacklist saved", "host", host, "count", len(store.Dedupe(list)))
	s.publishLocal(c)
	return nil
}

// AppendBlacklist adds sel to the end of the list of host. Selectors already
// listed are left in place and nothing is written.
func (s *Service) AppendBlacklist(ctx context.Context, host, sel string) (bool, error) {
	if err := ValidHost(host); err != nil {
		return false, err
	}
	sel = strings.TrimSpace(sel)
	if sel == "" {
		return false, nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	added, c, err := s.store.AppendBlacklist(ctx, host, sel)
	if err != nil {
		return false, fmt.Errorf("darkmode: append blacklist: %w", err)
	}
	if added {
		s.publishLocal(c)
	}
	return added, nil
}

// SaveBlacklistFromText replaces the list of host with the lines of text and
// returns the stored list.
func (s *Service) SaveBlacklistFromText(ctx context.Context, host, text string) ([]string, error) {
	if err := s.SaveBlacklist(ctx, host, ParseList(text)); err != nil {
		return nil, err
	}
	return s.Blacklist(ctx, host)
}

// BlacklistHosts returns the hosts with a non-empty blacklist.
func (s *Service) BlacklistHosts(ctx context.Context) ([]string, error) {
	hosts, err := s.store.BlacklistHosts(ctx)
	if err != nil {
		return nil, fmt.Errorf("darkmode: blacklist hosts: %w", err)
	}
	return hosts, nil
}

// DB exposes the database for watchers and admin tooling.
func (s *Service) DB() *sql.DB { return s.store.DB }
