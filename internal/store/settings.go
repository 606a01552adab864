package store

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/nao1215/cyberbuddy/internal/model"
)

// Settings is the typed accessor over a Store. Every component receives one
// instead of touching the store directly.
//
// Reads never fail: an unavailable store, a missing key or an undecodable
// value all read as "no data" and fall back to the documented defaults.
// Writes return their error so callers may choose to ignore it.
type Settings struct {
	store  Store
	logger *slog.Logger
}

// SettingsOption configures Settings.
type SettingsOption func(*Settings)

// WithLogger sets the logger used to report store failures.
func WithLogger(logger *slog.Logger) SettingsOption {
	return func(s *Settings) {
		s.logger = logger
	}
}

// NewSettings wraps st.
func NewSettings(st Store, opts ...SettingsOption) *Settings {
	s := &Settings{store: st}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Store returns the underlying store.
func (s *Settings) Store() Store {
	return s.store
}

// read fetches keys and swallows failures.
func (s *Settings) read(ctx context.Context, keys ...string) map[string]json.RawMessage {
	values, err := s.store.Get(ctx, keys...)
	if err != nil {
		s.logFailure("read", err, keys)
		return map[string]json.RawMessage{}
	}
	return values
}

// write stores values and logs failures.
func (s *Settings) write(ctx context.Context, values map[string]any) error {
	if err := s.store.Set(ctx, values); err != nil {
		keys := make([]string, 0, len(values))
		for k := range values {
			keys = append(keys, k)
		}
		s.logFailure("write", err, keys)
		return err
	}
	return nil
}

func (s *Settings) logFailure(op string, err error, keys []string) {
	if errors.Is(err, model.ErrStoreUnavailable) || errors.Is(err, context.Canceled) {
		s.logger.Debug("state store unavailable", "op", op, "keys", keys, "error", err)
		return
	}
	s.logger.Warn("state store operation failed", "op", op, "keys", keys, "error", err)
}

// Session returns the persisted login session.
func (s *Settings) Session(ctx context.Context) model.SessionState {
	return decodeSession(s.read(ctx, model.KeyToken, model.KeyUser))
}

// Token returns the bearer token or "" when logged out.
func (s *Settings) Token(ctx context.Context) string {
	return decodeString(s.read(ctx, model.KeyToken)[model.KeyToken])
}

// SaveSession persists token and user together.
func (s *Settings) SaveSession(ctx context.Context, token, user string) error {
	return s.write(ctx, map[string]any{
		model.KeyToken: token,
		model.KeyUser:  user,
	})
}

// ClearSession removes token and user.
func (s *Settings) ClearSession(ctx context.Context) error {
	if err := s.store.Remove(ctx, model.KeyToken, model.KeyUser); err != nil {
		s.logFailure("remove", err, []string{model.KeyToken, model.KeyUser})
		return err
	}
	return nil
}

// Protection returns the protection settings with defaults for absent keys.
func (s *Settings) Protection(ctx context.Context) model.ProtectionConfig {
	return decodeProtection(s.read(ctx,
		model.KeyWebProtection,
		model.KeyNotifications,
		model.KeyDataSharing,
	))
}

// SetWebProtection writes only the webProtection key.
func (s *Settings) SetWebProtection(ctx context.Context, enabled bool) error {
	return s.write(ctx, map[string]any{model.KeyWebProtection: enabled})
}

// SetNotifications writes only the notifications key.
func (s *Settings) SetNotifications(ctx context.Context, enabled bool) error {
	return s.write(ctx, map[string]any{model.KeyNotifications: enabled})
}

// SetDataSharing writes only the dataSharing key.
func (s *Settings) SetDataSharing(ctx context.Context, enabled bool) error {
	return s.write(ctx, map[string]any{model.KeyDataSharing: enabled})
}

// CurrentURL returns the URL of the last fully loaded active tab.
func (s *Settings) CurrentURL(ctx context.Context) string {
	return decodeString(s.read(ctx, model.KeyCurrentURL)[model.KeyCurrentURL])
}

// SetCurrentURL records the URL of a fully loaded tab.
func (s *Settings) SetCurrentURL(ctx context.Context, u string) error {
	return s.write(ctx, map[string]any{model.KeyCurrentURL: u})
}

// Snapshot reads every persisted key in one batch.
func (s *Settings) Snapshot(ctx context.Context) model.StateSnapshot {
	values := s.read(ctx, model.AllKeys...)
	return model.StateSnapshot{
		Session:    decodeSession(values),
		Protection: decodeProtection(values),
		CurrentURL: decodeString(values[model.KeyCurrentURL]),
	}
}

func decodeSession(values map[string]json.RawMessage) model.SessionState {
	var session model.SessionState
	if token := decodeString(values[model.KeyToken]); token != "" {
		session.Token = &token
	}
	if user := decodeString(values[model.KeyUser]); user != "" {
		session.User = &user
	}
	return session
}

func decodeProtection(values map[string]json.RawMessage) model.ProtectionConfig {
	return model.ProtectionConfig{
		WebProtection: decodeBool(values[model.KeyWebProtection], model.DefaultWebProtection),
		Notifications: decodeBool(values[model.KeyNotifications], model.DefaultNotifications),
		DataSharing:   decodeBool(values[model.KeyDataSharing], model.DefaultDataSharing),
	}
}

// decodeBool returns the stored boolean, or def when the key is absent or
// holds anything other than a JSON boolean.
func decodeBool(raw json.RawMessage, def bool) bool {
	if len(raw) == 0 {
		return def
	}
	var b *bool
	if err := json.Unmarshal(raw, &b); err != nil || b == nil {
		return def
	}
	return *b
}

// decodeString returns the stored string, or "" for absent, null or
// non-string values.
func decodeString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var str string
	if err := json.Unmarshal(raw, &str); err != nil {
		return ""
	}
	return str
}
