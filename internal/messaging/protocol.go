// Package messaging implements the cross-context message protocol between
// the page/popup contexts and the background context.
//
// A requester opens a Port on the Bus and calls Send. Send assigns a
// generated request id, records it in the bus's pending-request table and
// waits for the background handler to reply. The entry is removed on reply,
// expiry, caller cancellation or port close, whichever comes first. A reply
// that arrives after its entry is gone is dropped, never surfaced.
package messaging

import (
	"encoding/json"
	"errors"

	"github.com/nao1215/cyberbuddy/internal/model"
)

// ActionScan is the only action the background context serves.
const ActionScan = "scan"

// ErrorUnknownAction is the reply error for unsupported actions.
const ErrorUnknownAction = "unknown_action"

// Request is a message sent to the background context.
type Request struct {
	ID     string       `json:"id,omitempty"`
	Action string       `json:"action"`
	URL    string       `json:"url"`
	Source model.Source `json:"source,omitempty"`
}

// NewScanRequest builds a scan request for url tagged with source.
func NewScanRequest(url string, source model.Source) Request {
	return Request{Action: ActionScan, URL: url, Source: source}
}

// Response is the reply to a Request: either a verdict or an error string.
// On the wire it is the bare verdict object or {"error": "..."}.
type Response struct {
	Verdict *model.ScanVerdict
	Error   string
}

// ResponseFromResult converts a broker result into a protocol reply.
func ResponseFromResult(r model.ScanResult) Response {
	if r.Verdict != nil {
		v := *r.Verdict
		return Response{Verdict: &v}
	}
	reason := model.ReasonScanFailed
	if r.Err != nil && r.Err.Reason != "" {
		reason = r.Err.Reason
	}
	return Response{Error: reason}
}

// HasPrediction reports whether the reply carries a usable verdict.
func (r Response) HasPrediction() bool {
	return r.Error == "" && r.Verdict != nil && r.Verdict.Prediction != ""
}

// Result converts the reply back into a ScanResult.
func (r Response) Result() model.ScanResult {
	if r.HasPrediction() {
		return model.VerdictResult(*r.Verdict)
	}
	return model.ScanResult{Err: &model.ScanError{Reason: r.errorReason()}}
}

func (r Response) errorReason() string {
	if r.Error != "" {
		return r.Error
	}
	return model.ReasonScanFailed
}

// MarshalJSON encodes the reply in its wire shape.
func (r Response) MarshalJSON() ([]byte, error) {
	if r.HasPrediction() {
		return json.Marshal(r.Verdict)
	}
	return json.Marshal(model.ScanError{Reason: r.errorReason()})
}

// UnmarshalJSON decodes either wire shape.
func (r *Response) UnmarshalJSON(data []byte) error {
	var raw struct {
		Error      *string          `json:"error"`
		Prediction model.Prediction `json:"prediction"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Error != nil {
		*r = Response{Error: *raw.Error}
		return nil
	}
	if raw.Prediction == "" {
		return errors.New("reply has neither prediction nor error")
	}
	var v model.ScanVerdict
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*r = Response{Verdict: &v}
	return nil
}
