// Package dom provides the page document the observer works on: an HTML
// tree parsed with golang.org/x/net/html, a small CSS selector matcher, and
// a mutation feed that plays the role of a MutationObserver.
//
// All access to the tree goes through the Document so that the mutation
// source and the observer's annotations never touch the tree at the same
// time.
package dom

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Mutation is one structural change record.
type Mutation struct {
	// Added is the number of top-level nodes inserted.
	Added int
}

// Document is a parsed page plus its location.
type Document struct {
	mu   sync.Mutex
	root *html.Node
	url  *url.URL

	subMu       sync.Mutex
	subscribers []chan Mutation
}

// Parse reads an HTML document located at pageURL.
func Parse(r io.Reader, pageURL string) (*Document, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page URL: %w", err)
	}

	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}

	return &Document{root: root, url: u}, nil
}

// ParseString is Parse for an in-memory document.
func ParseString(s, pageURL string) (*Document, error) {
	return Parse(strings.NewReader(s), pageURL)
}

// URL returns the document location.
func (d *Document) URL() string {
	return d.url.String()
}

// ResolveURL resolves href against the document location the same way an
// anchor's href property does. It returns "" for unparsable values.
func (d *Document) ResolveURL(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return d.url.ResolveReference(u).String()
}

// Update runs fn with exclusive access to the tree.
func (d *Document) Update(fn func(root *html.Node)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(d.root)
}

// Query returns every element matching sel in document order.
func (d *Document) Query(sel *Selector) []*html.Node {
	d.mu.Lock()
	defer d.mu.Unlock()
	return sel.MatchAll(d.root)
}

// Render writes the current tree as HTML.
func (d *Document) Render(w io.Writer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return html.Render(w, d.root)
}

// String renders the document, returning "" on failure.
func (d *Document) String() string {
	var sb strings.Builder
	if err := d.Render(&sb); err != nil {
		return ""
	}
	return sb.String()
}

// Observe subscribes to structural mutations. The channel holds at most one
// undelivered record: a pending record already means "something changed".
func (d *Document) Observe() <-chan Mutation {
	ch := make(chan Mutation, 1)
	d.subMu.Lock()
	d.subscribers = append(d.subscribers, ch)
	d.subMu.Unlock()
	return ch
}

func (d *Document) notify(m Mutation) {
	d.subMu.Lock()
	defer d.subMu.Unlock()
	for _, ch := range d.subscribers {
		select {
		case ch <- m:
		default:
		}
	}
}

// AppendHTML parses fragment and appends it to the first element matching
// target ("body" when empty), emitting a mutation record. It models content
// loaded by infinite scroll or pagination.
func (d *Document) AppendHTML(target, fragment string) error {
	if target == "" {
		target = "body"
	}
	sel, err := Compile(target)
	if err != nil {
		return err
	}

	d.mu.Lock()
	parent := sel.MatchFirst(d.root)
	if parent == nil {
		d.mu.Unlock()
		return fmt.Errorf("no element matches %q", target)
	}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), parent)
	if err != nil {
		d.mu.Unlock()
		return fmt.Errorf("failed to parse fragment: %w", err)
	}
	for _, n := range nodes {
		parent.AppendChild(n)
	}
	d.mu.Unlock()

	if len(nodes) > 0 {
		d.notify(Mutation{Added: len(nodes)})
	}
	return nil
}

// Body returns the body element. Callers must hold the tree via Update.
func Body(root *html.Node) *html.Node {
	return FindFirst(root, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.DataAtom == atom.Body
	})
}

// FindFirst returns the first node under n (inclusive) satisfying match.
func FindFirst(n *html.Node, match func(*html.Node) bool) *html.Node {
	if match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := FindFirst(c, match); found != nil {
			return found
		}
	}
	return nil
}

// FirstElement returns the first descendant element of n with tag name.
func FirstElement(n *html.Node, tag string) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		found := FindFirst(c, func(x *html.Node) bool {
			return x.Type == html.ElementNode && x.Data == tag
		})
		if found != nil {
			return found
		}
	}
	return nil
}

// GetAttr retrieves an attribute value from an HTML node.
func GetAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

// SetAttr sets or replaces an attribute on an HTML node.
func SetAttr(n *html.Node, key, val string) {
	for i, attr := range n.Attr {
		if attr.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// NewElement builds an element node with attributes given as key/value pairs.
func NewElement(tag string, attrs ...string) *html.Node {
	n := &html.Node{
		Type:     html.ElementNode,
		Data:     tag,
		DataAtom: atom.Lookup([]byte(tag)),
	}
	for i := 0; i+1 < len(attrs); i += 2 {
		n.Attr = append(n.Attr, html.Attribute{Key: attrs[i], Val: attrs[i+1]})
	}
	return n
}

// NewText builds a text node.
func NewText(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

// Text returns the concatenated text content of n.
func Text(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(x *html.Node) {
		if x.Type == html.TextNode {
			sb.WriteString(x.Data)
		}
		for c := x.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

// Detach removes n from its parent. It is a no-op for detached nodes.
func Detach(n *html.Node) {
	if n != nil && n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// ErrEmptySelector is returned when compiling an empty selector.
var ErrEmptySelector = errors.New("empty selector")
