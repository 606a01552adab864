package broker

import (
	"context"
	"log/slog"

	"github.com/nao1215/cyberbuddy/internal/store"
)

// TabStatusComplete is the status reported once a navigation has finished.
const TabStatusComplete = "complete"

// TabUpdate is one tab lifecycle event.
type TabUpdate struct {
	TabID  int
	Status string
	URL    string
}

// TabTracker persists the URL of every tab that finishes loading so the
// control panel can seed its scan form.
type TabTracker struct {
	settings *store.Settings
	logger   *slog.Logger
}

// NewTabTracker creates a TabTracker.
func NewTabTracker(settings *store.Settings, logger *slog.Logger) *TabTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &TabTracker{settings: settings, logger: logger}
}

// OnUpdated records u.URL when the tab reports a completed load. It returns
// true when the current URL was written.
func (t *TabTracker) OnUpdated(ctx context.Context, u TabUpdate) bool {
	if u.Status != TabStatusComplete || u.URL == "" {
		return false
	}
	if err := t.settings.SetCurrentURL(ctx, u.URL); err != nil {
		return false
	}
	t.logger.Debug("tab navigation complete", "tab", u.TabID, "url", u.URL)
	return true
}
