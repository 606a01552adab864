package observer

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nao1215/cyberbuddy/internal/dom"
	"github.com/nao1215/cyberbuddy/internal/model"
)

const (
	// BadgeClass is set on every injected badge.
	BadgeClass = "cb-badge"

	badgeSafeText      = "🛡️ Safe"
	badgeDangerousText = "🚫 Dangerous"

	badgeBaseStyle = "display:inline-flex;align-items:center;margin-left:10px;padding:2px 6px;" +
		"border-radius:4px;font-size:12px;font-weight:bold;z-index:9999;vertical-align:middle;"
	badgeSafeStyle      = "background-color:#d1fae5;color:#065f46;border:1px solid #34d399;"
	badgeDangerousStyle = "background-color:#fee2e2;color:#991b1b;border:1px solid #f87171;"
)

var upper = cases.Upper(language.Und)

// BadgeText returns the badge label for a verdict.
func BadgeText(v model.ScanVerdict) string {
	if v.IsSafe() {
		return badgeSafeText
	}
	return badgeDangerousText
}

// Tooltip returns the badge hover text, e.g.
// "CyberBuddy Analysis: PHISHING (92% Confidence)".
func Tooltip(v model.ScanVerdict) string {
	return fmt.Sprintf("CyberBuddy Analysis: %s (%s Confidence)",
		upper.String(string(v.Prediction)), v.ConfidenceLabel())
}

func newBadge(v model.ScanVerdict) *html.Node {
	style := badgeBaseStyle + badgeDangerousStyle
	if v.IsSafe() {
		style = badgeBaseStyle + badgeSafeStyle
	}
	badge := dom.NewElement("span",
		"class", BadgeClass,
		"style", style,
		"title", Tooltip(v),
	)
	badge.AppendChild(dom.NewText(BadgeText(v)))
	return badge
}

// attachBadge appends the badge to the anchor's title heading, or to the
// anchor itself when it has none. Callers hold the document.
func attachBadge(anchor *html.Node, v model.ScanVerdict) {
	parent := dom.FirstElement(anchor, "h3")
	if parent == nil {
		parent = anchor
	}
	parent.AppendChild(newBadge(v))
}

// FindBadge returns the badge injected under anchor, or nil.
func FindBadge(anchor *html.Node) *html.Node {
	for c := anchor.FirstChild; c != nil; c = c.NextSibling {
		found := dom.FindFirst(c, func(n *html.Node) bool {
			return n.Type == html.ElementNode && n.Data == "span" &&
				strings.Contains(" "+dom.GetAttr(n, "class")+" ", " "+BadgeClass+" ")
		})
		if found != nil {
			return found
		}
	}
	return nil
}
