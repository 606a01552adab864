package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/nao1215/cyberbuddy/internal/observer"
	"github.com/nao1215/cyberbuddy/internal/panel"
)

// SimpleWriter outputs human-readable text for terminal display.
type SimpleWriter struct {
	baseWriter

	verbose bool

	safe   *color.Color
	threat *color.Color
	muted  *color.Color
	title  *color.Color
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithColor turns ANSI colors on or off. Colors are off by default.
func WithColor(enabled bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		for _, c := range []*color.Color{w.safe, w.threat, w.muted, w.title} {
			if enabled {
				c.EnableColor()
			} else {
				c.DisableColor()
			}
		}
	}
}

// WithVerbose includes every verdict detail, not just the headline.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
		safe:       color.New(color.FgGreen, color.Bold),
		threat:     color.New(color.FgRed, color.Bold),
		muted:      color.New(color.FgHiBlack),
		title:      color.New(color.FgCyan, color.Bold),
	}
	WithColor(false)(w)

	for _, opt := range opts {
		opt(w)
	}
	return w
}

// WriteVerdicts implements Writer.
func (w *SimpleWriter) WriteVerdicts(entries []VerdictEntry) (int, error) {
	var sb strings.Builder

	w.writeTitle(&sb, "CYBERBUDDY SCAN REPORT")
	for _, e := range entries {
		w.writeEntry(&sb, e)
	}
	if len(entries) == 0 {
		sb.WriteString("No URLs scanned.\n")
	}

	return io.WriteString(w.output, sb.String())
}

func (w *SimpleWriter) writeTitle(sb *strings.Builder, title string) {
	sb.WriteString(w.title.Sprint(title))
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", len(title)))
	sb.WriteString("\n\n")
}

func (w *SimpleWriter) writeEntry(sb *strings.Builder, e VerdictEntry) {
	if e.Result.Failed() {
		fmt.Fprintf(sb, "%s  %s\n", e.URL, w.threat.Sprint(panel.ConnectionFailed))
		fmt.Fprintf(sb, "  %s\n\n", w.muted.Sprint(panel.ConnectionFailedDetail))
		return
	}

	v := *e.Result.Verdict
	status := w.safe.Sprint("SAFE 🛡️")
	if !v.IsSafe() {
		status = w.threat.Sprint("THREAT 🚨")
	}
	fmt.Fprintf(sb, "%s  %s  %s (%s)\n", e.URL, status, v.Prediction, v.ConfidenceLabel())

	d := DetailsOf(v)
	fmt.Fprintf(sb, "  🤖 %q\n", d.Explanation)
	if w.verbose {
		fmt.Fprintf(sb, "  %-12s %s\n", "Host/ISP:", d.ASN)
		fmt.Fprintf(sb, "  %-12s %s\n", "IP Address:", d.IPAddress)
		fmt.Fprintf(sb, "  %-12s %s\n", "Location:", d.ServerLocation)
		fmt.Fprintf(sb, "  %-12s %s\n", "Domain Age:", d.DomainAge)
		if d.Message != "" {
			fmt.Fprintf(sb, "  %-12s %s\n", "Report:", d.Message)
		}
	}
	sb.WriteString("\n")
}

// WritePage implements Writer.
func (w *SimpleWriter) WritePage(page *PageReport) (int, error) {
	var sb strings.Builder

	w.writeTitle(&sb, "CYBERBUDDY PAGE REPORT")
	fmt.Fprintf(&sb, "Page:  %s\n", page.PageURL)
	fmt.Fprintf(&sb, "Guard: %s\n", w.guardText(page))
	if page.Overlay {
		msg := observer.DefaultThreatMessage
		if page.GuardVerdict != nil && page.GuardVerdict.Message != "" {
			msg = page.GuardVerdict.Message
		}
		fmt.Fprintf(&sb, "       %s\n", w.threat.Sprint("THREAT INTERCEPTED: "+msg))
	}
	fmt.Fprintf(&sb, "Links: %d annotated, %d ignored, %d dangerous\n\n",
		page.Annotated, page.Ignored, page.Dangerous)

	for _, l := range page.Links {
		switch {
		case l.Details == nil:
			fmt.Fprintf(&sb, "  %s  %s\n", w.muted.Sprint(l.State), l.URL)
		case l.Details.Prediction.IsSafe():
			fmt.Fprintf(&sb, "  %s  %s\n", w.safe.Sprint(l.Badge), l.URL)
		default:
			fmt.Fprintf(&sb, "  %s  %s\n", w.threat.Sprint(l.Badge), l.URL)
		}
		if w.verbose && l.Tooltip != "" {
			fmt.Fprintf(&sb, "      %s\n", w.muted.Sprint(l.Tooltip))
		}
	}

	return io.WriteString(w.output, sb.String())
}

func (w *SimpleWriter) guardText(page *PageReport) string {
	switch page.Guard {
	case "threat":
		return w.threat.Sprint("threat")
	case "safe":
		return w.safe.Sprint("safe")
	default:
		return page.Guard
	}
}
