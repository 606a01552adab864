package model

// Persisted keys in the shared state store.
const (
	KeyToken         = "token"
	KeyUser          = "user"
	KeyWebProtection = "webProtection"
	KeyNotifications = "notifications"
	KeyDataSharing   = "dataSharing"
	KeyCurrentURL    = "currentUrl"
)

// AllKeys lists every key the pipeline persists.
var AllKeys = []string{
	KeyToken,
	KeyUser,
	KeyWebProtection,
	KeyNotifications,
	KeyDataSharing,
	KeyCurrentURL,
}

// SessionState is the login session. A nil Token means logged out.
type SessionState struct {
	Token *string
	User  *string
}

// LoggedIn reports whether a non-empty token is present.
func (s SessionState) LoggedIn() bool {
	return s.Token != nil && *s.Token != ""
}

// TokenValue returns the token or "" when logged out.
func (s SessionState) TokenValue() string {
	if s.Token == nil {
		return ""
	}
	return *s.Token
}

// UserValue returns the user or "" when unknown.
func (s SessionState) UserValue() string {
	if s.User == nil {
		return ""
	}
	return *s.User
}

// NewSession builds a logged-in session.
func NewSession(token, user string) SessionState {
	return SessionState{Token: &token, User: &user}
}

// Protection setting defaults, applied only when the key is absent.
const (
	DefaultWebProtection = true
	DefaultNotifications = true
	DefaultDataSharing   = false
)

// ProtectionConfig holds the user-togglable protection settings.
type ProtectionConfig struct {
	WebProtection bool
	Notifications bool
	DataSharing   bool
}

// DefaultProtectionConfig returns the settings used when nothing is stored.
func DefaultProtectionConfig() ProtectionConfig {
	return ProtectionConfig{
		WebProtection: DefaultWebProtection,
		Notifications: DefaultNotifications,
		DataSharing:   DefaultDataSharing,
	}
}

// StateSnapshot is one batched read of every persisted key.
type StateSnapshot struct {
	Session    SessionState
	Protection ProtectionConfig
	CurrentURL string
}
