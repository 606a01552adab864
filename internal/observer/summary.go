package observer

import (
	"context"
	"log/slog"

	"github.com/nao1215/cyberbuddy/internal/model"
)

// LinkResult is one discovered link and what became of it.
type LinkResult struct {
	URL     string
	State   AnchorState
	Verdict *model.ScanVerdict
}

// Summary is a point-in-time report of a page observation.
type Summary struct {
	PageURL string
	Links   []LinkResult
	Guard   GuardResult
	Overlay bool
}

// Count returns how many links are in state s.
func (s Summary) Count(state AnchorState) int {
	n := 0
	for _, l := range s.Links {
		if l.State == state {
			n++
		}
	}
	return n
}

// Dangerous returns the annotated links whose verdict is not legitimate.
func (s Summary) Dangerous() []LinkResult {
	var out []LinkResult
	for _, l := range s.Links {
		if l.Verdict != nil && !l.Verdict.IsSafe() {
			out = append(out, l)
		}
	}
	return out
}

// Summary reports every requested link in discovery order.
func (o *Observer) Summary() Summary {
	o.mu.Lock()
	defer o.mu.Unlock()

	s := Summary{
		PageURL: o.doc.URL(),
		Guard:   o.guard,
		Overlay: o.overlay != nil,
		Links:   make([]LinkResult, 0, len(o.order)),
	}
	for _, n := range o.order {
		rec := o.anchors[n]
		lr := LinkResult{URL: rec.url, State: rec.state}
		if rec.verdict != nil {
			v := *rec.verdict
			lr.Verdict = &v
		}
		s.Links = append(s.Links, lr)
	}
	return s
}

// LogNotifier reports intercepted pages through a logger.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify implements Notifier.
func (n LogNotifier) Notify(ctx context.Context, pageURL string, v model.ScanVerdict) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.WarnContext(ctx, "CyberBuddy blocked a dangerous page",
		"page", pageURL,
		"tooltip", Tooltip(v),
	)
	return nil
}
