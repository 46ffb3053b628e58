// Package dom is the narrow document query surface that district
// configurations and the grade parser are written against.
package dom

import (
	"io"
	"strings"

	"gradespeed-backend/pkg/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// Node is an element (or the whole document) that can be queried.
//
// note: fault injection point
type Node interface {
	// Find returns every descendant matching a css selector, in document order.
	Find(selector string) []Node
	// FindClass returns every descendant with the given class.
	FindClass(class string) []Node
	// FindTag returns every descendant with the given tag name.
	FindTag(tag string) []Node
	// Children returns the direct element children.
	Children() []Node
	// Attr returns the value of an attribute, ok is false when it is not set.
	Attr(name string) (value string, ok bool)
	// Text returns the whitespace-normalized text content.
	Text() string
	// RawText returns the text content as it appears in the document.
	RawText() string
}

type gqNode struct {
	sel *goquery.Selection
}

// Parse reads an html document.
func Parse(r io.Reader) (Node, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}
	return gqNode{sel: doc.Selection}, nil
}

// ParseString is Parse on a string.
func ParseString(s string) (Node, error) {
	return Parse(strings.NewReader(s))
}

// FromSelection wraps the first node of a goquery selection.
func FromSelection(sel *goquery.Selection) Node {
	return gqNode{sel: sel.First()}
}

func wrap(sel *goquery.Selection) []Node {
	out := make([]Node, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, gqNode{sel: s})
	})
	return out
}

func (n gqNode) Find(selector string) []Node {
	return wrap(n.sel.Find(selector))
}

func (n gqNode) FindClass(class string) []Node {
	return wrap(n.sel.Find("." + class))
}

func (n gqNode) FindTag(tag string) []Node {
	return wrap(n.sel.Find(tag))
}

func (n gqNode) Children() []Node {
	return wrap(n.sel.Children())
}

func (n gqNode) Attr(name string) (string, bool) {
	return n.sel.Attr(name)
}

func (n gqNode) Text() string {
	return htmlutil.NormalizeText(n.RawText())
}

func (n gqNode) RawText() string {
	var sb strings.Builder
	for _, node := range n.sel.Nodes {
		sb.WriteString(htmlutil.GetText(node))
	}
	return sb.String()
}

// AttrOr returns the attribute value or fallback when it is not set.
func AttrOr(n Node, name, fallback string) string {
	v, ok := n.Attr(name)
	if !ok {
		return fallback
	}
	return v
}

// Exists reports whether the selector matches anything under n.
func Exists(n Node, selector string) bool {
	return len(n.Find(selector)) > 0
}

// First returns the first match of selector under n, or nil.
func First(n Node, selector string) Node {
	found := n.Find(selector)
	if len(found) == 0 {
		return nil
	}
	return found[0]
}

// HasClass reports whether n carries the given class.
func HasClass(n Node, class string) bool {
	classes, ok := n.Attr("class")
	if !ok {
		return false
	}
	for _, c := range strings.Fields(classes) {
		if c == class {
			return true
		}
	}
	return false
}
