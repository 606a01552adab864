// Package extension assembles the three CyberBuddy contexts around one
// shared state store: the background context (message bus, scan broker and
// tab tracker), page observers and control panels.
package extension

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/nao1215/cyberbuddy/internal/backend"
	"github.com/nao1215/cyberbuddy/internal/broker"
	"github.com/nao1215/cyberbuddy/internal/config"
	"github.com/nao1215/cyberbuddy/internal/dom"
	"github.com/nao1215/cyberbuddy/internal/messaging"
	"github.com/nao1215/cyberbuddy/internal/observer"
	"github.com/nao1215/cyberbuddy/internal/panel"
	"github.com/nao1215/cyberbuddy/internal/store"
)

// ErrNotStarted is returned by Start when the event loop exits before it
// accepts requests.
var ErrNotStarted = errors.New("background context not started")

// Runtime owns the shared store and the background context.
type Runtime struct {
	cfg    *config.Config
	logger *slog.Logger

	store    store.Store
	settings *store.Settings
	client   *backend.Client
	bus      *messaging.Bus
	broker   *broker.Broker
	tabs     *broker.TabTracker

	httpClient *http.Client

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithLogger sets the logger shared by every context.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runtime) {
		r.logger = logger
	}
}

// WithStore injects a store instead of opening the configured one.
func WithStore(st store.Store) Option {
	return func(r *Runtime) {
		r.store = st
	}
}

// WithHTTPClient sets the HTTP client used to reach the backend.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Runtime) {
		r.httpClient = c
	}
}

// New opens the state store and builds the background context. Call Start
// to begin serving requests and Close to release the store.
func New(cfg *config.Config, opts ...Option) (*Runtime, error) {
	r := &Runtime{cfg: cfg}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}

	if r.store == nil {
		st, err := OpenStore(cfg)
		if err != nil {
			return nil, err
		}
		r.store = st
	}

	clientOpts := []backend.ClientOption{
		backend.WithTimeout(cfg.Timeout),
		backend.WithUserAgent(cfg.UserAgent),
		backend.WithMaxBodySize(cfg.MaxBodySize),
	}
	if r.httpClient != nil {
		clientOpts = append(clientOpts, backend.WithHTTPClient(r.httpClient))
	}
	client, err := backend.NewClient(cfg.BackendURL, clientOpts...)
	if err != nil {
		_ = r.store.Close()
		return nil, err
	}
	r.client = client

	r.settings = store.NewSettings(r.store, store.WithLogger(r.logger))
	r.bus = messaging.NewBus(
		messaging.WithRequestTTL(cfg.RequestTTL),
		messaging.WithLogger(r.logger),
	)
	r.broker = broker.New(r.client, r.settings, broker.WithLogger(r.logger))
	r.tabs = broker.NewTabTracker(r.settings, r.logger)
	return r, nil
}

// OpenStore opens the store selected by cfg.Store.
func OpenStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Store {
	case config.StoreMemory:
		return store.NewMemoryStore(), nil
	case config.StoreSQLite, "":
		st, err := store.OpenSQLite(cfg.DataDir, store.DefaultOptions())
		if err != nil {
			return nil, fmt.Errorf("failed to open state store: %w", err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownStore, cfg.Store)
	}
}

// Start runs the background event loop until Close or ctx ends. It returns
// once requests are being accepted.
func (r *Runtime) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.started = true
	ready := r.bus.Ready()

	go func() {
		defer close(r.done)
		if err := r.bus.Serve(ctx, r.broker); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Error("background context stopped", "error", err)
		}
	}()

	select {
	case <-ready:
		return nil
	case <-r.done:
		return ErrNotStarted
	}
}

// Close stops the background context and closes the store.
func (r *Runtime) Close() error {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.started = false
	r.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	return r.store.Close()
}

// Settings returns the typed store accessor.
func (r *Runtime) Settings() *store.Settings {
	return r.settings
}

// Client returns the backend client.
func (r *Runtime) Client() *backend.Client {
	return r.client
}

// Broker returns the scan broker.
func (r *Runtime) Broker() *broker.Broker {
	return r.broker
}

// Tabs returns the tab tracker.
func (r *Runtime) Tabs() *broker.TabTracker {
	return r.tabs
}

// Bus returns the message bus.
func (r *Runtime) Bus() *messaging.Bus {
	return r.bus
}

// OpenPage attaches an observer to doc through a new port. Closing the
// returned port tears the page context down.
func (r *Runtime) OpenPage(doc *dom.Document, opts ...observer.Option) (*observer.Observer, *messaging.Port, error) {
	sel, err := dom.Compile(r.cfg.ResultSelector)
	if err != nil {
		return nil, nil, err
	}

	port := r.bus.Connect("page:" + doc.URL())
	base := []observer.Option{
		observer.WithLogger(r.logger),
		observer.WithSelector(sel),
		observer.WithSearchDomains(r.cfg.SearchDomains...),
		observer.WithSkipHosts(r.cfg.SkipHosts...),
		observer.WithDebounce(r.cfg.Debounce),
		observer.WithNotifier(observer.LogNotifier{Logger: r.logger}),
	}
	return observer.New(doc, port, r.settings, append(base, opts...)...), port, nil
}

// OpenPanel opens a control panel through a new port and loads its state.
func (r *Runtime) OpenPanel(ctx context.Context, opts ...panel.Option) (*panel.Panel, *messaging.Port) {
	port := r.bus.Connect("popup")
	base := []panel.Option{
		panel.WithLogger(r.logger),
		panel.WithScanLimit(r.cfg.ScanLimit),
	}
	p := panel.New(r.settings, port, r.client, append(base, opts...)...)
	p.Open(ctx)
	return p, port
}

// TrackNavigation records a completed navigation of tab to url.
func (r *Runtime) TrackNavigation(ctx context.Context, tabID int, url string) bool {
	return r.tabs.OnUpdated(ctx, broker.TabUpdate{
		TabID:  tabID,
		Status: broker.TabStatusComplete,
		URL:    strings.TrimSpace(url),
	})
}
