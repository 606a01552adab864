package model

import "errors"

// Pipeline error taxonomy.
// NetworkError and MalformedVerdict are downgraded to a scan_failed reply by
// the broker. AuthError reaches the control panel verbatim. StoreUnavailable
// is logged and read as "no data".
var (
	// ErrNetwork is returned when the backend is unreachable or answers with
	// a non-2xx status.
	ErrNetwork = errors.New("backend request failed")

	// ErrMalformedVerdict is returned when the backend response is not JSON
	// or lacks the prediction/confidence fields.
	ErrMalformedVerdict = errors.New("malformed verdict")

	// ErrStoreUnavailable is returned when the shared state store has been
	// torn down before the operation completed.
	ErrStoreUnavailable = errors.New("shared state store unavailable")
)

// DefaultLoginFailure is the message used when the backend rejects a login
// without a detail field.
const DefaultLoginFailure = "Login failed"

// AuthError is returned when the backend rejects a login.
// Message carries the server-provided text unchanged.
type AuthError struct {
	StatusCode int
	Message    string
}

// Error returns the server message verbatim so it can be shown as-is.
func (e *AuthError) Error() string {
	return e.Message
}
