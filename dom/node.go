package dom

import (
	"strings"

	"golang.org/x/net/html"
)

// Parent returns the element parent of n, or nil when n is the root element
// or detached. The document node is not an element.
func Parent(n *html.Node) *html.Node {
	if n == nil || n.Parent == nil || n.Parent.Type != html.ElementNode {
		return nil
	}
	return n.Parent
}

// Children returns the element children of n in document order.
func Children(n *html.Node) []*html.Node {
	if n == nil {
		return nil
	}
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, c)
		}
	}
	return out
}

// Siblings returns the element siblings of n, excluding n itself. The parent
// may be the document node.
func Siblings(n *html.Node) []*html.Node {
	if n == nil || n.Parent == nil {
		return nil
	}
	var out []*html.Node
	for c := n.Parent.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c != n {
			out = append(out, c)
		}
	}
	return out
}

// Attributes returns the attributes of n in source order.
func Attributes(n *html.Node) []html.Attribute {
	if n == nil {
		return nil
	}
	return n.Attr
}

// Attr returns the value of attribute key and whether it is present.
func Attr(n *html.Node, key string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// Tag returns the lower-cased tag name of an element.
func Tag(n *html.Node) string {
	if n == nil {
		return ""
	}
	return strings.ToLower(n.Data)
}

// ID returns the id attribute, empty when absent.
func ID(n *html.Node) string {
	v, _ := Attr(n, "id")
	return v
}

// Classes returns the class list of n in attribute order, without duplicates.
func Classes(n *html.Node) []string {
	v, ok := Attr(n, "class")
	if !ok {
		return nil
	}
	fields := strings.Fields(v)
	out := fields[:0]
	seen := make(map[string]struct{}, len(fields))
	for _, c := range fields {
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// HasClass reports whether n carries class c.
func HasClass(n *html.Node, c string) bool {
	for _, have := range Classes(n) {
		if have == c {
			return true
		}
	}
	return false
}

// Contains reports whether n is one of nodes.
func Contains(nodes []*html.Node, n *html.Node) bool {
	for _, m := range nodes {
		if m == n {
			return true
		}
	}
	return false
}

// Walk calls fn for every element under root in document order.
func Walk(root *html.Node, fn func(*html.Node)) {
	if root == nil {
		return
	}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			fn(n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
}

// Label renders n as tag.class1.class2, the hover caption of the picker.
func Label(n *html.Node) string {
	parts := append([]string{Tag(n)}, Classes(n)...)
	return strings.Join(parts, ".")
}
