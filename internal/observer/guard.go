package observer

import (
	"context"
	"fmt"
	"net/url"

	"golang.org/x/net/html"

	"github.com/nao1215/cyberbuddy/internal/dom"
	"github.com/nao1215/cyberbuddy/internal/messaging"
	"github.com/nao1215/cyberbuddy/internal/model"
)

// OverlayID is the id of the threat overlay element.
const OverlayID = "cb-overlay"

// ProceedButtonID is the id of the overlay's bypass button.
const ProceedButtonID = "cb-proceed-btn"

// DefaultThreatMessage is shown when the verdict carries no message.
const DefaultThreatMessage = "Phishing heuristics matched high-risk patterns."

// GuardOutcome describes what the page guard did.
type GuardOutcome int

const (
	// GuardNotRun means the guard has not finished yet.
	GuardNotRun GuardOutcome = iota
	// GuardDisabled means web protection is switched off.
	GuardDisabled
	// GuardSkipped means the page is on a known-harmless host or not http(s).
	GuardSkipped
	// GuardSafe means the page was classified legitimate.
	GuardSafe
	// GuardThreat means the overlay was shown.
	GuardThreat
	// GuardFailed means no verdict was obtained.
	GuardFailed
)

// String returns the outcome name.
func (g GuardOutcome) String() string {
	switch g {
	case GuardNotRun:
		return "not_run"
	case GuardDisabled:
		return "disabled"
	case GuardSkipped:
		return "skipped"
	case GuardSafe:
		return "safe"
	case GuardThreat:
		return "threat"
	case GuardFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// GuardResult is the outcome plus the verdict when one was received.
type GuardResult struct {
	Outcome GuardOutcome
	Verdict *model.ScanVerdict
}

// Guard classifies the page itself and shows the overlay for a
// non-legitimate verdict. It runs at most once per Observer; later calls
// return the first result.
func (o *Observer) Guard(ctx context.Context) GuardResult {
	o.guardRun.Do(func() {
		res := o.runGuard(ctx)
		o.mu.Lock()
		o.guard = res
		o.mu.Unlock()
	})
	return o.GuardResult()
}

// GuardResult returns the guard outcome so far.
func (o *Observer) GuardResult() GuardResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.guard
}

func (o *Observer) runGuard(ctx context.Context) GuardResult {
	protection := o.settings.Protection(ctx)
	if !protection.WebProtection {
		o.logger.Info("page guard paused by user", "page", o.doc.URL())
		return GuardResult{Outcome: GuardDisabled}
	}

	pageURL := o.doc.URL()
	if !isHTTP(pageURL) {
		return GuardResult{Outcome: GuardSkipped}
	}
	if u, err := url.Parse(pageURL); err != nil || hostIn(u.Hostname(), o.skipHosts) {
		return GuardResult{Outcome: GuardSkipped}
	}

	resp, err := o.sender.Send(ctx, messaging.NewScanRequest(pageURL, model.SourceWeb))
	if err != nil || !resp.HasPrediction() {
		o.logger.Debug("page guard got no verdict", "page", pageURL, "error", err, "reply_error", resp.Error)
		return GuardResult{Outcome: GuardFailed}
	}

	verdict := *resp.Verdict
	if verdict.IsSafe() {
		return GuardResult{Outcome: GuardSafe, Verdict: &verdict}
	}

	o.showOverlay(verdict)
	o.logger.Warn("threat intercepted",
		"page", pageURL,
		"prediction", verdict.Prediction,
		"confidence", verdict.ConfidenceLabel(),
	)

	if protection.Notifications && o.notifier != nil {
		if err := o.notifier.Notify(ctx, pageURL, verdict); err != nil {
			o.logger.Debug("notification failed", "page", pageURL, "error", err)
		}
	}
	return GuardResult{Outcome: GuardThreat, Verdict: &verdict}
}

func (o *Observer) showOverlay(v model.ScanVerdict) {
	overlay := buildOverlay(v)
	o.doc.Update(func(root *html.Node) {
		parent := dom.Body(root)
		if parent == nil {
			parent = root
		}
		parent.AppendChild(overlay)
	})

	o.mu.Lock()
	o.overlay = overlay
	o.mu.Unlock()
}

// OverlayVisible reports whether the threat overlay is on the page.
func (o *Observer) OverlayVisible() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.overlay != nil
}

// Proceed removes the overlay and leaves the user on the page.
func (o *Observer) Proceed() bool {
	o.mu.Lock()
	overlay := o.overlay
	o.overlay = nil
	o.mu.Unlock()

	if overlay == nil {
		return false
	}
	o.doc.Update(func(*html.Node) {
		dom.Detach(overlay)
	})
	o.logger.Info("user bypassed threat overlay", "page", o.doc.URL())
	return true
}

// GoBack performs the overlay's retreat action.
func (o *Observer) GoBack(ctx context.Context) error {
	if o.navigator == nil {
		return errNoNavigator
	}
	if err := o.navigator.Back(ctx); err != nil {
		return fmt.Errorf("failed to navigate back: %w", err)
	}
	return nil
}

const overlayStyle = "position:fixed;top:0;left:0;width:100vw;height:100vh;" +
	"background-color:rgba(2,6,23,0.98);backdrop-filter:blur(10px);z-index:2147483647;" +
	"display:flex;flex-direction:column;justify-content:center;align-items:center;"

func buildOverlay(v model.ScanVerdict) *html.Node {
	msg := v.Message
	if msg == "" {
		msg = DefaultThreatMessage
	}

	overlay := dom.NewElement("div", "id", OverlayID, "style", overlayStyle)
	card := dom.NewElement("div", "class", "cb-overlay-card")
	overlay.AppendChild(card)

	icon := dom.NewElement("div", "class", "cb-overlay-icon")
	icon.AppendChild(dom.NewText("🚫"))
	card.AppendChild(icon)

	title := dom.NewElement("h1")
	title.AppendChild(dom.NewText("THREAT INTERCEPTED"))
	card.AppendChild(title)

	lead := dom.NewElement("p")
	lead.AppendChild(dom.NewText("CyberBuddy Shield has neutralized a potential connection to this endpoint. " +
		"Usage of this site may compromise system integrity."))
	card.AppendChild(lead)

	report := dom.NewElement("div", "class", "cb-overlay-report")
	label := dom.NewElement("strong")
	label.AppendChild(dom.NewText("Analysis Report:"))
	report.AppendChild(label)
	text := dom.NewElement("span", "class", "cb-overlay-message")
	text.AppendChild(dom.NewText(msg))
	report.AppendChild(text)
	card.AppendChild(report)

	actions := dom.NewElement("div", "class", "cb-overlay-actions")
	back := dom.NewElement("button", "data-cb-action", "back")
	back.AppendChild(dom.NewText("RETREAT TO SAFETY"))
	actions.AppendChild(back)
	proceed := dom.NewElement("button", "id", ProceedButtonID, "data-cb-action", "proceed")
	proceed.AppendChild(dom.NewText("Proceed (Unsafe)"))
	actions.AppendChild(proceed)
	card.AppendChild(actions)

	return overlay
}
