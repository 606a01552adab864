package report

import (
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/cyberbuddy/internal/observer"
	"github.com/nao1215/cyberbuddy/internal/panel"
)

// MarkdownWriter outputs reports in Markdown for sharing.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output)}
}

// WriteVerdicts implements Writer.
func (w *MarkdownWriter) WriteVerdicts(entries []VerdictEntry) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("CyberBuddy Scan Report")
	md.PlainText("")

	rows := make([][]string, 0, len(entries))
	threats, failed := 0, 0
	for _, e := range entries {
		status := e.Status()
		prediction, confidence := "-", "-"
		switch status {
		case "FAILED":
			failed++
			status = "❌ " + panel.ConnectionFailed
		case "THREAT":
			threats++
			status = "🚨 THREAT"
		default:
			status = "🛡️ SAFE"
		}
		if !e.Result.Failed() {
			prediction = string(e.Result.Verdict.Prediction)
			confidence = e.Result.Verdict.ConfidenceLabel()
		}
		rows = append(rows, []string{"`" + e.URL + "`", status, prediction, confidence})
	}

	md.Table(markdown.TableSet{
		Header: []string{"URL", "Status", "Prediction", "Confidence"},
		Rows:   rows,
	})
	md.PlainText("")

	switch {
	case threats > 0:
		md.Cautionf("%d of %d URL(s) look dangerous.", threats, len(entries))
	case failed > 0:
		md.Warningf("%d scan(s) failed. %s", failed, panel.ConnectionFailedDetail)
	default:
		md.Tip("No threats detected.")
	}
	md.PlainText("")

	for _, e := range entries {
		if e.Result.Failed() {
			continue
		}
		w.writeDetails(md, e.URL, DetailsOf(*e.Result.Verdict))
	}

	w.writeFooter(md)
	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeDetails(md *markdown.Markdown, target string, d Details) {
	md.H3(target)
	md.PlainText("")
	md.Blockquote("🤖 " + d.Explanation)
	md.PlainText("")
	rows := [][]string{
		{"Confidence", d.Confidence},
		{"Host/ISP", d.ASN},
		{"IP Address", d.IPAddress},
		{"Location", d.ServerLocation},
		{"Domain Age", d.DomainAge},
	}
	if d.Message != "" {
		rows = append(rows, []string{"Report", d.Message})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")
}

// WritePage implements Writer.
func (w *MarkdownWriter) WritePage(page *PageReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("CyberBuddy Page Report")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Page", "`" + page.PageURL + "`"},
			{"Observed", page.ObservedAt.Format("2006-01-02 15:04:05 MST")},
			{"Guard", page.Guard},
			{"Annotated Links", strconv.Itoa(page.Annotated)},
			{"Ignored Links", strconv.Itoa(page.Ignored)},
			{"Dangerous Links", strconv.Itoa(page.Dangerous)},
		},
	})
	md.PlainText("")

	if page.Overlay {
		msg := observer.DefaultThreatMessage
		if page.GuardVerdict != nil && page.GuardVerdict.Message != "" {
			msg = page.GuardVerdict.Message
		}
		md.Cautionf("THREAT INTERCEPTED: %s", msg)
	} else if page.Dangerous > 0 {
		md.Warningf("%d result link(s) were marked dangerous.", page.Dangerous)
	} else {
		md.Tip("No threats detected on this page.")
	}
	md.PlainText("")

	if page.Annotated > 0 {
		w.writePieChart(md, page)
	}

	md.H2("Links")
	md.PlainText("")
	if len(page.Links) == 0 {
		md.PlainText("No result links discovered.")
		md.PlainText("")
	} else {
		rows := make([][]string, 0, len(page.Links))
		for _, l := range page.Links {
			badge, tooltip := "-", "-"
			if l.Badge != "" {
				badge, tooltip = l.Badge, l.Tooltip
			}
			rows = append(rows, []string{"`" + l.URL + "`", l.State, badge, tooltip})
		}
		md.Table(markdown.TableSet{
			Header: []string{"URL", "State", "Badge", "Analysis"},
			Rows:   rows,
		})
		md.PlainText("")
	}

	w.writeFooter(md)
	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, page *PageReport) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Link Verdicts"),
		piechart.WithShowData(true),
	)
	if safe := page.Annotated - page.Dangerous; safe > 0 {
		chart.LabelAndIntValue("Safe", uint64(safe))
	}
	if page.Dangerous > 0 {
		chart.LabelAndIntValue("Dangerous", uint64(page.Dangerous))
	}
	if page.Ignored > 0 {
		chart.LabelAndIntValue("No verdict", uint64(page.Ignored))
	}

	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by CyberBuddy*")
}
