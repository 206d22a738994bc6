package selector

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hazyhaar/darkzap/dom"
	"golang.org/x/net/html"
)

// Level is a specificity level of the ladder, 0 (bare tag) to 9 (full path).
type Level int

const (
	MinLevel     Level = 0
	MaxLevel     Level = 9
	DefaultLevel Level = 8
)

// Clamp forces l into [MinLevel, MaxLevel].
func (l Level) Clamp() Level {
	switch {
	case l < MinLevel:
		return MinLevel
	case l > MaxLevel:
		return MaxLevel
	}
	return l
}

// ParseLevel reads a decimal level. Out-of-range values are clamped; only
// non-numeric input is an error.
func ParseLevel(s string) (Level, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return DefaultLevel, fmt.Errorf("selector: parse level %q: %w", s, err)
	}
	return Level(n).Clamp(), nil
}

const joiner = " > "

// Synthesize builds the selector for el at the given level. The result is
// deterministic and never empty for an element; it is not checked against the
// document, see Validate for that.
func Synthesize(el *html.Node, level Level) string {
	if el == nil || el.Type != html.ElementNode {
		return ""
	}

	var sel string
	switch level.Clamp() {
	case 0:
		sel = dom.Tag(el)
	case 1:
		sel = compound(el, firstN(dom.Classes(el), 1))
	case 2:
		sel = compound(el, dom.Classes(el))
	case 3:
		sel = withID(el)
		if sel == "" {
			sel = dom.Tag(el) + classChain(UniqueClasses(el)) + firstAttr(el)
		}
	case 4:
		sel = compound(el, firstN(UniqueClasses(el), 1)) + nthChild(el)
	case 5:
		sel = compound(el, firstN(UniqueClasses(el), 1))
		if p := dom.Parent(el); p != nil {
			sel = compound(p, firstN(dom.Classes(p), 1)) + joiner + sel
		}
	case 6:
		sel = withID(el)
		if sel == "" {
			if uc := UniqueClasses(el); len(uc) > 0 {
				sel = dom.Tag(el) + classChain(uc[:1])
			} else {
				sel = dom.Tag(el) + nthChild(el)
			}
		}
		if p := dom.Parent(el); p != nil {
			parent := withID(p)
			if parent == "" {
				parent = dom.Tag(p)
			}
			sel = parent + joiner + sel
		}
	case 7:
		sel = pathSelector(tail(AncestorPath(el), 2), func(n *html.Node, _ bool) string {
			return compound(n, firstN(dom.Classes(n), 1))
		})
	case 8:
		sel = pathSelector(tail(AncestorPath(el), 3), func(n *html.Node, leaf bool) string {
			s := compound(n, firstN(dom.Classes(n), 2))
			if leaf && dom.ID(n) == "" {
				s += nthChild(n)
			}
			return s
		})
	case 9:
		sel = pathSelector(AncestorPath(el), func(n *html.Node, _ bool) string {
			if s := withID(n); s != "" {
				return s
			}
			return dom.Tag(n) + classChain(dom.Classes(n)) + firstAttr(n) +
				nthChild(n) + nthOfType(n)
		})
	}

	if sel == "" {
		sel = dom.Tag(el)
	}
	return sel
}

// withID returns tag#id, or "" when el has no id.
func withID(el *html.Node) string {
	id := dom.ID(el)
	if id == "" {
		return ""
	}
	return dom.Tag(el) + "#" + Escape(id)
}

// compound returns tag#id when el has an id, otherwise the tag followed by the
// given classes.
func compound(el *html.Node, classes []string) string {
	if s := withID(el); s != "" {
		return s
	}
	return dom.Tag(el) + classChain(classes)
}

func classChain(classes []string) string {
	var b strings.Builder
	for _, c := range classes {
		b.WriteByte('.')
		b.WriteString(Escape(c))
	}
	return b.String()
}

func firstAttr(el *html.Node) string {
	attrs := UniqueAttributes(el)
	if len(attrs) == 0 {
		return ""
	}
	a := attrs[0]
	return "[" + Escape(a.Key) + `="` + Escape(a.Val) + `"]`
}

// nthChild and nthOfType return the positional pseudo-class for el, or "" for
// the root element, which cascadia never matches positionally.
func nthChild(el *html.Node) string {
	if dom.Parent(el) == nil {
		return ""
	}
	return ":nth-child(" + strconv.Itoa(NthChild(el)) + ")"
}

func nthOfType(el *html.Node) string {
	if dom.Parent(el) == nil {
		return ""
	}
	return ":nth-of-type(" + strconv.Itoa(NthOfType(el)) + ")"
}

func pathSelector(path []*html.Node, part func(n *html.Node, leaf bool) string) string {
	parts := make([]string, len(path))
	for i, n := range path {
		parts[i] = part(n, i == len(path)-1)
	}
	return strings.Join(parts, joiner)
}

func firstN(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func tail(path []*html.Node, n int) []*html.Node {
	if len(path) > n {
		return path[len(path)-n:]
	}
	return path
}
