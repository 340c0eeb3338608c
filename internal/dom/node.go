// Package dom models the host page as an opaque tree. The filter only relies on the
// Node capability set; HTMLNode implements it over golang.org/x/net/html.
package dom

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Node is the capability set the filter needs from a host tree: child enumeration,
// class and attribute access, descendant queries, a single structural insertion,
// event listeners and node-attached metadata. Nothing can remove a node.
type Node interface {
	// IsElement reports whether the node is an element (text and comment nodes are not).
	IsElement() bool
	// TagName returns the lowercase element name, or "" for non-elements.
	TagName() string
	// Children returns the element children in document order.
	Children() []Node
	// Parent returns the parent node, or nil for detached nodes and the root.
	Parent() Node

	// Matches reports whether the node itself matches a CSS selector.
	Matches(selector string) bool
	// Query returns the first descendant matching selector, or nil.
	Query(selector string) Node
	// QueryAll returns every descendant matching selector in document order.
	QueryAll(selector string) []Node

	HasClass(name string) bool
	AddClass(name string)
	// ToggleClass flips a class and reports whether it is now present.
	ToggleClass(name string) bool
	HasAttr(name string) bool
	Attr(name string) (string, bool)
	SetAttr(name, value string)

	// TextContent returns the concatenated text of all descendant text nodes.
	TextContent() string
	// SetTextContent replaces the node's children with a single text node.
	// Only meant for elements the filter created itself.
	SetTextContent(text string)
	// Href returns the node's href attribute resolved against the document base URL.
	Href() string

	// Prepend inserts child as the first child of the node.
	Prepend(child Node)
	// CreateElement returns a detached element owned by the same document.
	CreateElement(tag string) Node
	// AddEventListener registers fn for events of the given type on this node.
	AddEventListener(event string, fn func())

	// Value and SetValue carry metadata attached to the node identity.
	Value(key any) any
	SetValue(key, value any)
}

// HTMLNode is the Node implementation backed by an x/net/html tree.
type HTMLNode struct {
	doc       *Document
	n         *html.Node
	listeners map[string][]func()
	meta      map[any]any
}

var _ Node = (*HTMLNode)(nil)

// Raw exposes the underlying html node.
func (e *HTMLNode) Raw() *html.Node { return e.n }

func (e *HTMLNode) IsElement() bool { return e.n.Type == html.ElementNode }

func (e *HTMLNode) TagName() string {
	if !e.IsElement() {
		return ""
	}
	return e.n.Data
}

func (e *HTMLNode) Children() []Node {
	var out []Node
	for c := e.n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, e.doc.wrap(c))
		}
	}
	return out
}

func (e *HTMLNode) Parent() Node {
	if e.n.Parent == nil {
		return nil
	}
	return e.doc.wrap(e.n.Parent)
}

func (e *HTMLNode) Matches(selector string) bool {
	if !e.IsElement() {
		return false
	}
	m := compile(selector)
	return m != nil && m.Match(e.n)
}

func (e *HTMLNode) Query(selector string) Node {
	m := compile(selector)
	if m == nil {
		return nil
	}
	var found *html.Node
	walkDescendants(e.n, func(c *html.Node) bool {
		if c.Type == html.ElementNode && m.Match(c) {
			found = c
			return false
		}
		return true
	})
	if found == nil {
		return nil
	}
	return e.doc.wrap(found)
}

func (e *HTMLNode) QueryAll(selector string) []Node {
	m := compile(selector)
	if m == nil {
		return nil
	}
	var out []Node
	walkDescendants(e.n, func(c *html.Node) bool {
		if c.Type == html.ElementNode && m.Match(c) {
			out = append(out, e.doc.wrap(c))
		}
		return true
	})
	return out
}

func (e *HTMLNode) HasClass(name string) bool {
	for _, c := range e.classes() {
		if c == name {
			return true
		}
	}
	return false
}

func (e *HTMLNode) AddClass(name string) {
	if !e.IsElement() || e.HasClass(name) {
		return
	}
	e.SetAttr("class", strings.Join(append(e.classes(), name), " "))
}

func (e *HTMLNode) ToggleClass(name string) bool {
	if !e.IsElement() {
		return false
	}
	classes := e.classes()
	kept := make([]string, 0, len(classes))
	for _, c := range classes {
		if c != name {
			kept = append(kept, c)
		}
	}
	if len(kept) == len(classes) {
		e.SetAttr("class", strings.Join(append(kept, name), " "))
		return true
	}
	e.SetAttr("class", strings.Join(kept, " "))
	return false
}

func (e *HTMLNode) classes() []string {
	v, _ := e.Attr("class")
	return strings.Fields(v)
}

func (e *HTMLNode) HasAttr(name string) bool {
	_, ok := e.Attr(name)
	return ok
}

func (e *HTMLNode) Attr(name string) (string, bool) {
	for _, a := range e.n.Attr {
		if a.Namespace == "" && a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

func (e *HTMLNode) SetAttr(name, value string) {
	if !e.IsElement() {
		return
	}
	for i, a := range e.n.Attr {
		if a.Namespace == "" && a.Key == name {
			e.n.Attr[i].Val = value
			return
		}
	}
	e.n.Attr = append(e.n.Attr, html.Attribute{Key: name, Val: value})
}

func (e *HTMLNode) TextContent() string {
	if e.n.Type == html.TextNode {
		return e.n.Data
	}
	var b strings.Builder
	walkDescendants(e.n, func(c *html.Node) bool {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
		return true
	})
	return b.String()
}

func (e *HTMLNode) SetTextContent(text string) {
	if e.n.Type == html.TextNode {
		e.n.Data = text
		return
	}
	for c := e.n.FirstChild; c != nil; {
		next := c.NextSibling
		e.n.RemoveChild(c)
		c = next
	}
	e.n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
}

func (e *HTMLNode) Href() string {
	raw, ok := e.Attr("href")
	if !ok {
		return ""
	}
	raw = strings.TrimSpace(raw)
	if e.doc.base == nil {
		return raw
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return e.doc.base.ResolveReference(ref).String()
}

func (e *HTMLNode) Prepend(child Node) {
	e.doc.InsertBefore(e, child, e.firstChild())
}

func (e *HTMLNode) firstChild() Node {
	if e.n.FirstChild == nil {
		return nil
	}
	return e.doc.wrap(e.n.FirstChild)
}

func (e *HTMLNode) CreateElement(tag string) Node {
	return e.doc.CreateElement(tag)
}

func (e *HTMLNode) AddEventListener(event string, fn func()) {
	if e.listeners == nil {
		e.listeners = make(map[string][]func())
	}
	e.listeners[event] = append(e.listeners[event], fn)
}

func (e *HTMLNode) Value(key any) any {
	return e.meta[key]
}

func (e *HTMLNode) SetValue(key, value any) {
	if e.meta == nil {
		e.meta = make(map[any]any)
	}
	e.meta[key] = value
}

// walkDescendants visits every descendant of root (not root itself) in document
// order until visit returns false. Iterative so deep trees cannot exhaust the stack.
func walkDescendants(root *html.Node, visit func(*html.Node) bool) {
	stack := make([]*html.Node, 0, 16)
	for c := root.LastChild; c != nil; c = c.PrevSibling {
		stack = append(stack, c)
	}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !visit(n) {
			return
		}
		for c := n.LastChild; c != nil; c = c.PrevSibling {
			stack = append(stack, c)
		}
	}
}

func newElement(tag string) *html.Node {
	tag = strings.ToLower(tag)
	return &html.Node{
		Type:     html.ElementNode,
		Data:     tag,
		DataAtom: atom.Lookup([]byte(tag)),
	}
}
