package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/nao1215/cyberbuddy/internal/model"
)

// setupSQLite creates a temporary SQLite store for testing.
func setupSQLite(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := OpenSQLite(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// storeFactories runs the contract tests against every implementation.
func storeFactories() map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"memory": func(_ *testing.T) Store { return NewMemoryStore() },
		"sqlite": func(t *testing.T) Store { return setupSQLite(t) },
	}
}

func TestStoreContract(t *testing.T) {
	t.Parallel()

	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			t.Run("missing keys are absent, not errors", func(t *testing.T) {
				t.Parallel()
				s := factory(t)

				values, err := s.Get(context.Background(), "token", "user")
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if len(values) != 0 {
					t.Errorf("expected empty result, got %v", values)
				}
			})

			t.Run("set merges without clobbering other keys", func(t *testing.T) {
				t.Parallel()
				s := factory(t)
				ctx := context.Background()

				if err := s.Set(ctx, map[string]any{"token": "abc", "user": "alice"}); err != nil {
					t.Fatalf("set failed: %v", err)
				}
				if err := s.Set(ctx, map[string]any{"webProtection": false}); err != nil {
					t.Fatalf("set failed: %v", err)
				}

				values, err := s.Get(ctx, "token", "user", "webProtection")
				if err != nil {
					t.Fatalf("get failed: %v", err)
				}
				if string(values["token"]) != `"abc"` {
					t.Errorf("token = %s", values["token"])
				}
				if string(values["user"]) != `"alice"` {
					t.Errorf("user = %s", values["user"])
				}
				if string(values["webProtection"]) != "false" {
					t.Errorf("webProtection = %s", values["webProtection"])
				}
			})

			t.Run("last write wins per key", func(t *testing.T) {
				t.Parallel()
				s := factory(t)
				ctx := context.Background()

				_ = s.Set(ctx, map[string]any{"currentUrl": "https://a.example"})
				_ = s.Set(ctx, map[string]any{"currentUrl": "https://b.example"})

				values, _ := s.Get(ctx, "currentUrl")
				if string(values["currentUrl"]) != `"https://b.example"` {
					t.Errorf("currentUrl = %s", values["currentUrl"])
				}
			})

			t.Run("remove deletes only named keys", func(t *testing.T) {
				t.Parallel()
				s := factory(t)
				ctx := context.Background()

				_ = s.Set(ctx, map[string]any{"token": "abc", "user": "alice", "dataSharing": true})
				if err := s.Remove(ctx, "token", "user", "never-set"); err != nil {
					t.Fatalf("remove failed: %v", err)
				}

				values, _ := s.Get(ctx, "token", "user", "dataSharing")
				if _, ok := values["token"]; ok {
					t.Error("token should be removed")
				}
				if _, ok := values["user"]; ok {
					t.Error("user should be removed")
				}
				if string(values["dataSharing"]) != "true" {
					t.Errorf("dataSharing = %s", values["dataSharing"])
				}
			})

			t.Run("operations after close report unavailable", func(t *testing.T) {
				t.Parallel()
				s := factory(t)
				ctx := context.Background()
				_ = s.Close()

				if _, err := s.Get(ctx, "token"); !errors.Is(err, model.ErrStoreUnavailable) {
					t.Errorf("Get: expected ErrStoreUnavailable, got %v", err)
				}
				if err := s.Set(ctx, map[string]any{"token": "x"}); !errors.Is(err, model.ErrStoreUnavailable) {
					t.Errorf("Set: expected ErrStoreUnavailable, got %v", err)
				}
				if err := s.Remove(ctx, "token"); !errors.Is(err, model.ErrStoreUnavailable) {
					t.Errorf("Remove: expected ErrStoreUnavailable, got %v", err)
				}
			})

			t.Run("concurrent multi-key sets never interleave", func(t *testing.T) {
				t.Parallel()
				s := factory(t)
				ctx := context.Background()

				var wg sync.WaitGroup
				for i := range 20 {
					wg.Add(1)
					go func() {
						defer wg.Done()
						v := fmt.Sprintf("writer-%d", i)
						_ = s.Set(ctx, map[string]any{"token": v, "user": v})
					}()
				}
				wg.Wait()

				values, err := s.Get(ctx, "token", "user")
				if err != nil {
					t.Fatalf("get failed: %v", err)
				}
				if string(values["token"]) != string(values["user"]) {
					t.Errorf("token %s and user %s come from different writes", values["token"], values["user"])
				}
			})
		})
	}
}

func TestOpenSQLite(t *testing.T) {
	t.Parallel()

	t.Run("creates database in new directory", func(t *testing.T) {
		t.Parallel()

		dir := filepath.Join(t.TempDir(), "nested", "data")
		s, err := OpenSQLite(dir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open store: %v", err)
		}
		defer s.Close()

		if _, err := os.Stat(filepath.Join(dir, DBFileName)); os.IsNotExist(err) {
			t.Error("database file was not created")
		}
	})

	t.Run("CreateIfNotExists=false returns error when database does not exist", func(t *testing.T) {
		t.Parallel()

		dir := filepath.Join(t.TempDir(), "missing")
		_, err := OpenSQLite(dir, Options{CreateIfNotExists: false})
		if err == nil {
			t.Fatal("expected error")
		}
		if !strings.Contains(err.Error(), "state store not found") {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("state survives reopen", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		ctx := context.Background()

		s1, err := OpenSQLite(dir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open store: %v", err)
		}
		if err := s1.Set(ctx, map[string]any{"webProtection": false}); err != nil {
			t.Fatalf("set failed: %v", err)
		}
		_ = s1.Close()

		s2, err := OpenSQLite(dir, Options{CreateIfNotExists: false})
		if err != nil {
			t.Fatalf("failed to reopen store: %v", err)
		}
		defer s2.Close()

		values, err := s2.Get(ctx, "webProtection")
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if string(values["webProtection"]) != "false" {
			t.Errorf("webProtection = %s", values["webProtection"])
		}
	})

	t.Run("close is idempotent", func(t *testing.T) {
		t.Parallel()

		s := setupSQLite(t)
		if err := s.Close(); err != nil {
			t.Fatalf("first close failed: %v", err)
		}
		if err := s.Close(); err != nil {
			t.Fatalf("second close failed: %v", err)
		}
	})
}

func TestSettings(t *testing.T) {
	t.Parallel()

	t.Run("defaults apply when keys are absent", func(t *testing.T) {
		t.Parallel()

		settings := NewSettings(NewMemoryStore())
		got := settings.Protection(context.Background())
		want := model.DefaultProtectionConfig()
		if got != want {
			t.Errorf("Protection() = %+v, want %+v", got, want)
		}
	})

	t.Run("explicit values are honored, not coerced to defaults", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		settings := NewSettings(NewMemoryStore())
		_ = settings.SetWebProtection(ctx, false)
		_ = settings.SetNotifications(ctx, false)
		_ = settings.SetDataSharing(ctx, true)

		got := settings.Protection(ctx)
		if got.WebProtection || got.Notifications || !got.DataSharing {
			t.Errorf("Protection() = %+v", got)
		}
	})

	t.Run("non-boolean values fall back to defaults", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		st := NewMemoryStore()
		_ = st.Set(ctx, map[string]any{
			model.KeyWebProtection: nil,
			model.KeyDataSharing:   "yes",
		})

		got := NewSettings(st).Protection(ctx)
		if !got.WebProtection {
			t.Error("null webProtection should default to true")
		}
		if got.DataSharing {
			t.Error("non-boolean dataSharing should default to false")
		}
	})

	t.Run("session round trip", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		settings := NewSettings(NewMemoryStore())

		if settings.Session(ctx).LoggedIn() {
			t.Fatal("expected logged out session")
		}
		if err := settings.SaveSession(ctx, "tok-1", "alice@example.com"); err != nil {
			t.Fatalf("save failed: %v", err)
		}
		if got := settings.Token(ctx); got != "tok-1" {
			t.Errorf("Token() = %q", got)
		}
		if got := settings.Session(ctx).UserValue(); got != "alice@example.com" {
			t.Errorf("user = %q", got)
		}
		if err := settings.ClearSession(ctx); err != nil {
			t.Fatalf("clear failed: %v", err)
		}
		if settings.Session(ctx).LoggedIn() {
			t.Error("expected logged out after clear")
		}
	})

	t.Run("snapshot reads every key", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		settings := NewSettings(NewMemoryStore())
		_ = settings.SaveSession(ctx, "tok", "bob")
		_ = settings.SetCurrentURL(ctx, "https://example.com")
		_ = settings.SetWebProtection(ctx, false)

		snap := settings.Snapshot(ctx)
		if snap.Session.TokenValue() != "tok" || snap.Session.UserValue() != "bob" {
			t.Errorf("session = %+v", snap.Session)
		}
		if snap.CurrentURL != "https://example.com" {
			t.Errorf("currentUrl = %q", snap.CurrentURL)
		}
		if snap.Protection.WebProtection {
			t.Error("webProtection should be false")
		}
	})

	t.Run("unavailable store reads as no data", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		st := NewMemoryStore()
		settings := NewSettings(st)
		_ = settings.SetWebProtection(ctx, false)
		_ = settings.SaveSession(ctx, "tok", "bob")
		_ = st.Close()

		if settings.Token(ctx) != "" {
			t.Error("token should read as empty")
		}
		if !settings.Protection(ctx).WebProtection {
			t.Error("protection should read as defaults")
		}
		if err := settings.SetDataSharing(ctx, true); !errors.Is(err, model.ErrStoreUnavailable) {
			t.Errorf("expected ErrStoreUnavailable, got %v", err)
		}
	})
}

func TestDecodeBool(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		def  bool
		want bool
	}{
		{"", true, true},
		{"false", true, false},
		{"true", false, true},
		{"null", true, true},
		{`"false"`, true, true},
		{"0", false, false},
	}

	for _, tt := range tests {
		if got := decodeBool(json.RawMessage(tt.raw), tt.def); got != tt.want {
			t.Errorf("decodeBool(%q, %v) = %v, want %v", tt.raw, tt.def, got, tt.want)
		}
	}
}
