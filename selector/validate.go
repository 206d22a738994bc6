package selector

import (
	"github.com/hazyhaar/darkzap/dom"
	"golang.org/x/net/html"
)

// Querier runs a selector against a whole document. *dom.Document satisfies it.
type Querier interface {
	QueryAll(sel string) ([]*html.Node, error)
}

// Result is a validated selector for a picked element.
type Result struct {
	Selector  string `json:"selector"`
	Candidate string `json:"candidate"`
	Level     Level  `json:"level"`
	Repaired  bool   `json:"repaired"`
}

// Fallback returns tag:nth-child(n), the positional selector used when a
// candidate fails to match its element. The root element gets its bare tag.
func Fallback(el *html.Node) string {
	return dom.Tag(el) + nthChild(el)
}

// Validate checks that candidate matches el in q. When the query fails or el
// is not among the matches, Fallback(el) is returned instead and repaired is
// true. Syntax errors never escape.
func Validate(q Querier, candidate string, el *html.Node) (sel string, repaired bool) {
	matches, err := q.QueryAll(candidate)
	if err == nil && dom.Contains(matches, el) {
		return candidate, false
	}
	return Fallback(el), true
}

// Commit synthesizes the selector for el at level and validates it.
func Commit(q Querier, el *html.Node, level Level) Result {
	level = level.Clamp()
	candidate := Synthesize(el, level)
	sel, repaired := Validate(q, candidate, el)
	return Result{
		Selector:  sel,
		Candidate: candidate,
		Level:     level,
		Repaired:  repaired,
	}
}
