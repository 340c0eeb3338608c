package dom

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// Document owns an HTML tree and the HTMLNode wrappers for it. Wrappers are cached
// per html node so listeners and metadata stay attached to node identity.
//
// A Document is not safe for concurrent use; callers serialize access the way a
// browser's UI thread does (see the session package).
type Document struct {
	root         *html.Node
	nodes        map[*html.Node]*HTMLNode
	base         *url.URL
	observations []*Observation
}

// Parse reads a full HTML document.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return newDocument(root), nil
}

// NewDocument returns an empty document with <head> and <body>.
func NewDocument() *Document {
	doc, err := Parse(strings.NewReader("<!DOCTYPE html><html><head></head><body></body></html>"))
	if err != nil {
		// html.Parse only fails on reader errors.
		panic(err)
	}
	return doc
}

// ParseShell reads a full HTML document and returns it with an empty <body>, plus
// the body's original top-level nodes, detached and in order. Appending them back
// replays the page load as insertions that observers can see.
func ParseShell(r io.Reader) (*Document, []Node, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, nil, fmt.Errorf("parse html: %w", err)
	}
	doc := newDocument(root)
	body, ok := doc.Body().(*HTMLNode)
	if !ok || body == nil {
		return doc, nil, nil
	}
	var content []Node
	for c := body.n.FirstChild; c != nil; {
		next := c.NextSibling
		body.n.RemoveChild(c)
		content = append(content, doc.wrap(c))
		c = next
	}
	return doc, content, nil
}

func newDocument(root *html.Node) *Document {
	return &Document{
		root:  root,
		nodes: make(map[*html.Node]*HTMLNode),
	}
}

// SetBaseURL sets the URL link targets are resolved against.
func (d *Document) SetBaseURL(raw string) error {
	if raw == "" {
		d.base = nil
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse base url: %w", err)
	}
	d.base = u
	return nil
}

func (d *Document) wrap(n *html.Node) *HTMLNode {
	if w, ok := d.nodes[n]; ok {
		return w
	}
	w := &HTMLNode{doc: d, n: n}
	d.nodes[n] = w
	return w
}

// Root returns the document node.
func (d *Document) Root() Node { return d.wrap(d.root) }

// Head returns the <head> element, creating one if the tree has none.
func (d *Document) Head() Node {
	if head := d.Query("head"); head != nil {
		return head
	}
	htmlEl := d.Query("html")
	if htmlEl == nil {
		htmlEl = d.wrap(d.root)
	}
	head := d.CreateElement("head")
	d.InsertBefore(htmlEl, head, htmlEl.(*HTMLNode).firstChild())
	return head
}

// Body returns the <body> element, or nil.
func (d *Document) Body() Node { return d.Query("body") }

// Query returns the first element in the document matching selector, or nil.
func (d *Document) Query(selector string) Node {
	return d.wrap(d.root).Query(selector)
}

// QueryAll returns every element in the document matching selector.
func (d *Document) QueryAll(selector string) []Node {
	return d.wrap(d.root).QueryAll(selector)
}

// CreateElement returns a detached element owned by the document.
func (d *Document) CreateElement(tag string) Node {
	return d.wrap(newElement(tag))
}

// ParseFragment parses markup in the context of the given element (body when nil)
// and returns the resulting detached nodes.
func (d *Document) ParseFragment(context Node, markup string) ([]Node, error) {
	ctx := d.contextNode(context)
	parsed, err := html.ParseFragment(strings.NewReader(markup), ctx)
	if err != nil {
		return nil, fmt.Errorf("parse fragment: %w", err)
	}
	out := make([]Node, 0, len(parsed))
	for _, n := range parsed {
		out = append(out, d.wrap(n))
	}
	return out, nil
}

func (d *Document) contextNode(context Node) *html.Node {
	if h, ok := context.(*HTMLNode); ok && h != nil && h.IsElement() {
		return h.n
	}
	if body, ok := d.Body().(*HTMLNode); ok && body != nil {
		return body.n
	}
	return newElement("body")
}

// InjectStyle appends <style id="id"> with css to <head>. Returns false when a style
// element with that id is already present.
func (d *Document) InjectStyle(id, css string) bool {
	if d.Query("style#"+id) != nil {
		return false
	}
	style := d.CreateElement("style")
	style.SetAttr("id", id)
	style.SetTextContent(css)
	d.AppendChild(d.Head(), style)
	return true
}

// Render writes the document as HTML.
func (d *Document) Render(w io.Writer) error {
	return html.Render(w, d.root)
}

// Dispatch fires an event at target and bubbles it up through the ancestors.
// Returns the number of listeners invoked.
func (d *Document) Dispatch(target Node, event string) int {
	h, ok := target.(*HTMLNode)
	if !ok || h == nil {
		return 0
	}
	calls := 0
	for n := h.n; n != nil; n = n.Parent {
		w, ok := d.nodes[n]
		if !ok {
			continue
		}
		for _, fn := range w.listeners[event] {
			fn()
			calls++
		}
	}
	return calls
}

var selectorCache sync.Map // string -> cascadia.Selector (nil when invalid)

// compile returns the compiled selector, or nil when it does not parse.
func compile(selector string) cascadia.Matcher {
	if v, ok := selectorCache.Load(selector); ok {
		if v == nil {
			return nil
		}
		return v.(cascadia.Selector)
	}
	sel, err := cascadia.Compile(selector)
	if err != nil {
		selectorCache.Store(selector, nil)
		return nil
	}
	selectorCache.Store(selector, sel)
	return sel
}
