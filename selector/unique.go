// Package selector turns a picked element into a CSS selector: uniqueness
// facts about the element, a ten-step specificity ladder, and a validator that
// guarantees the committed selector matches the element it was built for.
package selector

import (
	"strings"

	"github.com/hazyhaar/darkzap/dom"
	"golang.org/x/net/html"
)

// NthChild returns the 1-based position of el among its parent's element
// children. Text and comment nodes are skipped, as :nth-child does.
func NthChild(el *html.Node) int {
	n := 1
	for s := el.PrevSibling; s != nil; s = s.PrevSibling {
		if s.Type == html.ElementNode {
			n++
		}
	}
	return n
}

// NthOfType returns the 1-based position of el among same-tag siblings.
func NthOfType(el *html.Node) int {
	tag := dom.Tag(el)
	n := 1
	for s := el.PrevSibling; s != nil; s = s.PrevSibling {
		if s.Type == html.ElementNode && dom.Tag(s) == tag {
			n++
		}
	}
	return n
}

// UniqueClasses returns the classes of el that no sibling carries, in
// class-list order. Elements without an element parent have none.
func UniqueClasses(el *html.Node) []string {
	if dom.Parent(el) == nil {
		return []string{}
	}
	taken := make(map[string]bool)
	for _, s := range dom.Siblings(el) {
		for _, c := range dom.Classes(s) {
			taken[c] = true
		}
	}
	out := []string{}
	for _, c := range dom.Classes(el) {
		if !taken[c] {
			out = append(out, c)
		}
	}
	return out
}

// UniqueAttributes returns the attributes of el, other than class, id and
// style, whose name=value pair no sibling repeats. Without an element parent
// every candidate attribute is unique.
func UniqueAttributes(el *html.Node) []html.Attribute {
	var sibs []*html.Node
	if dom.Parent(el) != nil {
		sibs = dom.Siblings(el)
	}
	out := []html.Attribute{}
	for _, a := range dom.Attributes(el) {
		if a.Namespace != "" || skipAttr(a.Key) {
			continue
		}
		shared := false
		for _, s := range sibs {
			if v, ok := dom.Attr(s, a.Key); ok && v == a.Val {
				shared = true
				break
			}
		}
		if !shared {
			out = append(out, a)
		}
	}
	return out
}

func skipAttr(key string) bool {
	switch key {
	case "class", "id", "style":
		return true
	}
	return false
}

// AncestorPath returns the element chain from the root element down to and
// including el.
func AncestorPath(el *html.Node) []*html.Node {
	var path []*html.Node
	for n := el; n != nil && n.Type == html.ElementNode; n = n.Parent {
		path = append(path, n)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

const metaChars = "!\"#$%&'()*+,./:;<=>?@[\\]^`{|}~"

// Escape backslash-prefixes every CSS metacharacter in token so it can be used
// as an identifier or inside a quoted attribute value.
func Escape(token string) string {
	if !strings.ContainsAny(token, metaChars) {
		return token
	}
	var b strings.Builder
	b.Grow(len(token) + 4)
	for _, r := range token {
		if strings.ContainsRune(metaChars, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
