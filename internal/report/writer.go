package report

import (
	"io"
	"time"

	"github.com/nao1215/cyberbuddy/internal/model"
	"github.com/nao1215/cyberbuddy/internal/observer"
)

// Placeholders for verdict fields the backend left out.
const (
	DefaultASN            = "Hidden"
	DefaultIPAddress      = "Hidden"
	DefaultServerLocation = "Cloud"
	DefaultDomainAge      = "Unknown"
	DefaultExplanation    = "I've analyzed this site and it appears consistent with known safe patterns."
)

// Writer outputs reports in one format.
type Writer interface {
	// WriteVerdicts outputs the results of URL scans.
	WriteVerdicts(entries []VerdictEntry) (int, error)

	// WritePage outputs the result of observing one page.
	WritePage(page *PageReport) (int, error)
}

// VerdictEntry is one scanned URL.
type VerdictEntry struct {
	URL       string           `json:"url"`
	Source    model.Source     `json:"source,omitempty"`
	ScannedAt time.Time        `json:"scanned_at"`
	Result    model.ScanResult `json:"-"`
}

// Status returns SAFE, THREAT or the failure reason.
func (e VerdictEntry) Status() string {
	switch {
	case e.Result.Failed():
		return "FAILED"
	case e.Result.Verdict.IsSafe():
		return "SAFE"
	default:
		return "THREAT"
	}
}

// Details is a verdict with placeholders filled in for display.
type Details struct {
	Prediction     model.Prediction `json:"prediction"`
	Confidence     string           `json:"confidence"`
	Explanation    string           `json:"explanation"`
	ASN            string           `json:"asn"`
	IPAddress      string           `json:"ip_address"`
	ServerLocation string           `json:"server_location"`
	DomainAge      string           `json:"domain_age"`
	Message        string           `json:"message,omitempty"`
}

// DetailsOf fills in display placeholders for v.
func DetailsOf(v model.ScanVerdict) Details {
	return Details{
		Prediction:     v.Prediction,
		Confidence:     v.ConfidenceLabel(),
		Explanation:    orDefault(v.Explanation, DefaultExplanation),
		ASN:            orDefault(v.ASN, DefaultASN),
		IPAddress:      orDefault(v.IPAddress, DefaultIPAddress),
		ServerLocation: orDefault(v.ServerLocation, DefaultServerLocation),
		DomainAge:      orDefault(v.DomainAge, DefaultDomainAge),
		Message:        v.Message,
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// LinkEntry is one discovered link on an observed page.
type LinkEntry struct {
	URL     string   `json:"url"`
	State   string   `json:"state"`
	Badge   string   `json:"badge,omitempty"`
	Tooltip string   `json:"tooltip,omitempty"`
	Details *Details `json:"details,omitempty"`
}

// PageReport summarizes an observed page.
type PageReport struct {
	PageURL      string      `json:"page_url"`
	ObservedAt   time.Time   `json:"observed_at"`
	Guard        string      `json:"guard"`
	GuardVerdict *Details    `json:"guard_verdict,omitempty"`
	Overlay      bool        `json:"overlay"`
	Links        []LinkEntry `json:"links"`
	Annotated    int         `json:"annotated"`
	Ignored      int         `json:"ignored"`
	Dangerous    int         `json:"dangerous"`
}

// NewPageReport builds a PageReport from an observer summary.
func NewPageReport(s observer.Summary, observedAt time.Time) *PageReport {
	p := &PageReport{
		PageURL:    s.PageURL,
		ObservedAt: observedAt,
		Guard:      s.Guard.Outcome.String(),
		Overlay:    s.Overlay,
		Links:      make([]LinkEntry, 0, len(s.Links)),
		Annotated:  s.Count(observer.StateAnnotated),
		Ignored:    s.Count(observer.StateIgnored),
		Dangerous:  len(s.Dangerous()),
	}
	if s.Guard.Verdict != nil {
		d := DetailsOf(*s.Guard.Verdict)
		p.GuardVerdict = &d
	}
	for _, l := range s.Links {
		entry := LinkEntry{URL: l.URL, State: l.State.String()}
		if l.Verdict != nil {
			d := DetailsOf(*l.Verdict)
			entry.Details = &d
			entry.Badge = observer.BadgeText(*l.Verdict)
			entry.Tooltip = observer.Tooltip(*l.Verdict)
		}
		p.Links = append(p.Links, entry)
	}
	return p
}

// MultiWriter writes to several Writers, stopping at the first error.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// WriteVerdicts implements Writer.
func (m *MultiWriter) WriteVerdicts(entries []VerdictEntry) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WriteVerdicts(entries)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WritePage implements Writer.
func (m *MultiWriter) WritePage(page *PageReport) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WritePage(page)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// New returns the writer for format: "text", "json" or "markdown".
func New(format string, output io.Writer, colored bool) (Writer, error) {
	switch format {
	case FormatText, "":
		return NewSimpleWriter(output, WithColor(colored)), nil
	case FormatJSON:
		return NewJSONWriter(output, WithPrettyPrint()), nil
	case FormatMarkdown:
		return NewMarkdownWriter(output), nil
	default:
		return nil, &UnknownFormatError{Format: format}
	}
}

// Output formats accepted by New.
const (
	FormatText     = "text"
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
)

// UnknownFormatError is returned by New for unsupported formats.
type UnknownFormatError struct {
	Format string
}

func (e *UnknownFormatError) Error() string {
	return "unknown report format: " + e.Format
}

type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}
