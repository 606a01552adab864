package dom

import (
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// Selector is a compiled CSS selector group such as "div.g a" or
// "div.g > a[href^=http]".
type Selector struct {
	source string
	sel    cascadia.Selector
}

// Compile parses a selector.
func Compile(s string) (*Selector, error) {
	if strings.TrimSpace(s) == "" {
		return nil, ErrEmptySelector
	}
	sel, err := cascadia.Compile(s)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", s, err)
	}
	return &Selector{source: s, sel: sel}, nil
}

// MustCompile is Compile that panics on error, for package-level selectors.
func MustCompile(s string) *Selector {
	sel, err := Compile(s)
	if err != nil {
		panic(err)
	}
	return sel
}

// String returns the selector source.
func (s *Selector) String() string {
	return s.source
}

// Match reports whether n matches the selector.
func (s *Selector) Match(n *html.Node) bool {
	return s.sel.Match(n)
}

// MatchAll returns every matching element under root in document order.
func (s *Selector) MatchAll(root *html.Node) []*html.Node {
	return s.sel.MatchAll(root)
}

// MatchFirst returns the first matching element under root, or nil.
func (s *Selector) MatchFirst(root *html.Node) *html.Node {
	return s.sel.MatchFirst(root)
}
