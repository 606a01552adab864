package model

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/net/html"
)

// Prediction is the classification outcome returned by the backend.
type Prediction string

// Known predictions. The backend may return other values; anything that is
// not PredictionLegitimate is treated as unsafe.
const (
	PredictionLegitimate Prediction = "legitimate"
	PredictionSuspicious Prediction = "suspicious"
	PredictionPhishing   Prediction = "phishing"
)

// IsSafe reports whether the prediction is the legitimate outcome.
func (p Prediction) IsSafe() bool {
	return p == PredictionLegitimate
}

// Source tags where a scan request originated.
type Source string

const (
	// SourceGoogleSearch marks links discovered in search results.
	SourceGoogleSearch Source = "google_search"

	// SourceExtension marks scans started from the control panel.
	SourceExtension Source = "extension"

	// SourceURL marks scans submitted as a raw URL (dashboard scanner).
	SourceURL Source = "url"

	// SourceWeb marks full-page guard scans of the current document.
	SourceWeb Source = "web"
)

// Valid reports whether s is one of the known source tags.
func (s Source) Valid() bool {
	switch s {
	case SourceGoogleSearch, SourceExtension, SourceURL, SourceWeb:
		return true
	default:
		return false
	}
}

// ScanTarget identifies one unit of scan work.
type ScanTarget struct {
	// URL is the absolute http(s) URL to classify.
	URL string

	// Source is the tag sent to the backend along with the URL.
	Source Source

	// Element is the anchor that receives the verdict badge.
	// It is nil for page-level and panel scans.
	Element *html.Node
}

// ScanVerdict is the classification of a single URL.
// Verdicts are produced by the backend and never mutated afterwards.
type ScanVerdict struct {
	Prediction     Prediction `json:"prediction"`
	Confidence     float64    `json:"confidence"`
	Explanation    string     `json:"explanation,omitempty"`
	IPAddress      string     `json:"ip_address,omitempty"`
	ASN            string     `json:"asn,omitempty"`
	ServerLocation string     `json:"server_location,omitempty"`
	DomainAge      string     `json:"domain_age,omitempty"`
	Message        string     `json:"message,omitempty"`
}

// IsSafe reports whether the verdict allows the page without warning.
func (v ScanVerdict) IsSafe() bool {
	return v.Prediction.IsSafe()
}

// ConfidencePercent returns the confidence as a whole percentage, rounded
// the same way the extension UI shows it (0.92 -> 92).
func (v ScanVerdict) ConfidencePercent() int {
	return int(math.Round(v.Confidence * 100))
}

// ConfidenceLabel returns the confidence formatted as "92%".
func (v ScanVerdict) ConfidenceLabel() string {
	return fmt.Sprintf("%d%%", v.ConfidencePercent())
}

// Validate checks the fields the pipeline depends on.
func (v ScanVerdict) Validate() error {
	if strings.TrimSpace(string(v.Prediction)) == "" {
		return fmt.Errorf("%w: missing prediction", ErrMalformedVerdict)
	}
	if math.IsNaN(v.Confidence) || v.Confidence < 0 || v.Confidence > 1 {
		return fmt.Errorf("%w: confidence %v outside [0,1]", ErrMalformedVerdict, v.Confidence)
	}
	return nil
}

// ReasonScanFailed is the only ScanError reason the broker produces.
const ReasonScanFailed = "scan_failed"

// ScanError is the error-shaped reply delivered instead of a verdict.
type ScanError struct {
	Reason string `json:"error"`
}

// Error implements the error interface.
func (e *ScanError) Error() string {
	return "scan error: " + e.Reason
}

// ScanResult is what crosses a context boundary for one scan: exactly one
// of Verdict and Err is set.
type ScanResult struct {
	Verdict *ScanVerdict
	Err     *ScanError
}

// Failed reports whether the result carries an error instead of a verdict.
func (r ScanResult) Failed() bool {
	return r.Verdict == nil
}

// VerdictResult wraps a verdict as a ScanResult.
func VerdictResult(v ScanVerdict) ScanResult {
	return ScanResult{Verdict: &v}
}

// FailedResult returns the scan_failed result.
func FailedResult() ScanResult {
	return ScanResult{Err: &ScanError{Reason: ReasonScanFailed}}
}
