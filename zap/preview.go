package zap

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/hazyhaar/darkzap/dom"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

// maxPreview caps the markdown preview of one match, in runes.
const maxPreview = 280

// Match describes one element of a match set for remote clients.
type Match struct {
	Label   string   `json:"label"`
	Rect    dom.Rect `json:"rect"`
	Preview string   `json:"preview,omitempty"`
}

// Previewer renders matched elements as short markdown snippets. Markup is
// sanitized before conversion, so scripts and handlers never reach clients.
type Previewer struct {
	policy *bluemonday.Policy
	conv   *converter.Converter
	domain string
}

// NewPreviewer creates a Previewer. domain resolves relative links, may be "".
func NewPreviewer(domain string) *Previewer {
	return &Previewer{
		policy: bluemonday.UGCPolicy(),
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		domain: domain,
	}
}

// Preview returns the markdown rendering of n, truncated.
func (p *Previewer) Preview(n *html.Node) (string, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return "", fmt.Errorf("zap: preview: render: %w", err)
	}
	clean := p.policy.Sanitize(buf.String())

	var md string
	var err error
	if p.domain != "" {
		md, err = p.conv.ConvertString(clean, converter.WithDomain(p.domain))
	} else {
		md, err = p.conv.ConvertString(clean)
	}
	if err != nil {
		return "", fmt.Errorf("zap: preview: convert: %w", err)
	}
	return truncate(strings.TrimSpace(md), maxPreview), nil
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "…"
}

// Describe builds the Match list for nodes. Preview failures leave the preview
// empty rather than failing the list.
func Describe(tree Tree, nodes []*html.Node, p *Previewer) []Match {
	out := make([]Match, 0, len(nodes))
	for _, n := range nodes {
		m := Match{Label: dom.Label(n), Rect: tree.BoundingBox(n)}
		if p != nil {
			m.Preview, _ = p.Preview(n)
		}
		out = append(out, m)
	}
	return out
}
