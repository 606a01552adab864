// Package broker implements the background context: the scan broker, which
// is the only component allowed to call the classification endpoint and
// attach the bearer credential, and the tab tracker, which records the URL
// of the last fully loaded tab.
package broker

import (
	"context"
	"errors"
	"log/slog"

	"github.com/nao1215/cyberbuddy/internal/backend"
	"github.com/nao1215/cyberbuddy/internal/messaging"
	"github.com/nao1215/cyberbuddy/internal/model"
	"github.com/nao1215/cyberbuddy/internal/store"
)

// Scanner is the backend operation the broker needs.
type Scanner interface {
	Scan(ctx context.Context, req backend.ScanRequest, token string) (model.ScanVerdict, error)
}

// Broker brokers scan requests from the page and popup contexts to the
// backend. It keeps no mutable state between calls.
type Broker struct {
	scanner  Scanner
	settings *store.Settings
	logger   *slog.Logger

	// defaultSource tags messages that do not name a source.
	defaultSource model.Source
}

// Option configures a Broker.
type Option func(*Broker)

// WithLogger sets the broker logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Broker) {
		b.logger = logger
	}
}

// WithDefaultSource sets the source used for messages without one.
func WithDefaultSource(s model.Source) Option {
	return func(b *Broker) {
		b.defaultSource = s
	}
}

// New creates a Broker.
func New(scanner Scanner, settings *store.Settings, opts ...Option) *Broker {
	b := &Broker{
		scanner:       scanner,
		settings:      settings,
		defaultSource: model.SourceGoogleSearch,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	return b
}

// Scan classifies url. Failures never escape as errors: they come back as
// the scan_failed result so the requester's wait always completes.
func (b *Broker) Scan(ctx context.Context, url string, source model.Source) model.ScanResult {
	token := b.settings.Token(ctx)

	verdict, err := b.scanner.Scan(ctx, backend.ScanRequest{URL: url, Source: source}, token)
	if err != nil {
		level := slog.LevelWarn
		if errors.Is(err, context.Canceled) {
			level = slog.LevelDebug
		}
		b.logger.Log(ctx, level, "scan failed",
			"url", url,
			"source", source,
			"logged_in", token != "",
			"error", err,
		)
		return model.FailedResult()
	}

	b.logger.Debug("scan completed",
		"url", url,
		"source", source,
		"prediction", verdict.Prediction,
		"confidence", verdict.Confidence,
	)
	return model.VerdictResult(verdict)
}

// HandleMessage implements messaging.Handler.
func (b *Broker) HandleMessage(ctx context.Context, req messaging.Request) messaging.Response {
	if req.Action != messaging.ActionScan {
		b.logger.Debug("ignoring unknown action", "action", req.Action)
		return messaging.Response{Error: messaging.ErrorUnknownAction}
	}

	source := req.Source
	if source == "" {
		source = b.defaultSource
	}
	return messaging.ResponseFromResult(b.Scan(ctx, req.URL, source))
}
