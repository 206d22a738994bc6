package darkmode

import (
	"context"
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
)

// invertFilter is applied to the page and applied again to exempted elements,
// which cancels it out.
const invertFilter = "filter: invert(1) hue-rotate(180deg) !important;"

// mediaSelectors are always exempted so pictures and video keep their colors.
var mediaSelectors = []string{"img", "picture", "video", "iframe"}

// Stylesheet returns the dark-mode CSS for host: an inversion of the whole
// page and a second inversion for media, the zap overlay (overlayID, may be
// empty) and every blacklisted selector. It is empty when dark mode is not
// enabled on host. Selectors that do not parse are left out, since a single
// bad entry would void the whole rule.
func (s *Service) Stylesheet(ctx context.Context, host, overlayID string) (string, error) {
	enabled, err := s.SiteEnabled(ctx, host)
	if err != nil || !enabled {
		return "", err
	}
	list, err := s.Blacklist(ctx, host)
	if err != nil {
		return "", err
	}

	exempt := append([]string(nil), mediaSelectors...)
	if overlayID != "" {
		exempt = append(exempt, "#"+overlayID)
	}
	for _, sel := range list {
		if err := parseSelector(sel); err != nil {
			s.logger.Warn("darkmode: skipping invalid selector", "host", host, "selector", sel, "error", err)
			continue
		}
		exempt = append(exempt, sel)
	}
	return ComposeStylesheet(exempt), nil
}

// ComposeStylesheet renders the two inversion rules for the given exempted
// selectors.
func ComposeStylesheet(exempt []string) string {
	var b strings.Builder
	b.WriteString("html {\n  ")
	b.WriteString(invertFilter)
	b.WriteString("\n}\n")
	if len(exempt) > 0 {
		b.WriteString(strings.Join(exempt, ", "))
		b.WriteString(" {\n  ")
		b.WriteString(invertFilter)
		b.WriteString("\n}\n")
	}
	return b.String()
}

func parseSelector(sel string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("darkmode: parse selector: %v", r)
		}
	}()
	_, err = cascadia.ParseGroup(sel)
	return err
}
