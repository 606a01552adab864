package report

import (
	"encoding/json"
	"io"
	"time"

	"github.com/nao1215/cyberbuddy/internal/model"
)

// JSONWriter outputs reports in JSON for tool integration.
type JSONWriter struct {
	baseWriter

	indent       bool
	indentPrefix string
	indentString string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint is WithIndent("", "  ").
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// jsonVerdict is the wire form of a VerdictEntry.
type jsonVerdict struct {
	URL       string       `json:"url"`
	Source    model.Source `json:"source,omitempty"`
	ScannedAt time.Time    `json:"scanned_at"`
	Status    string       `json:"status"`
	Verdict   *Details     `json:"verdict,omitempty"`
	Error     string       `json:"error,omitempty"`
}

// WriteVerdicts implements Writer.
func (w *JSONWriter) WriteVerdicts(entries []VerdictEntry) (int, error) {
	out := make([]jsonVerdict, 0, len(entries))
	for _, e := range entries {
		jv := jsonVerdict{
			URL:       e.URL,
			Source:    e.Source,
			ScannedAt: e.ScannedAt,
			Status:    e.Status(),
		}
		if e.Result.Failed() {
			jv.Error = model.ReasonScanFailed
			if e.Result.Err != nil && e.Result.Err.Reason != "" {
				jv.Error = e.Result.Err.Reason
			}
		} else {
			d := DetailsOf(*e.Result.Verdict)
			jv.Verdict = &d
		}
		out = append(out, jv)
	}
	return w.writeJSON(out)
}

// WritePage implements Writer.
func (w *JSONWriter) WritePage(page *PageReport) (int, error) {
	return w.writeJSON(page)
}

func (w *JSONWriter) writeJSON(v any) (int, error) {
	var (
		data []byte
		err  error
	)
	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return 0, err
	}

	data = append(data, '\n')
	return w.output.Write(data)
}
