package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
)

// ErrBrowserClosed is returned after Close.
var ErrBrowserClosed = errors.New("browser closed")

// Browser is one headless Chrome tab.
type Browser struct {
	execPath string
	headless bool
	timeout  time.Duration
	logger   *slog.Logger

	mu          sync.Mutex
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	closed      bool
}

// Option configures a Browser.
type Option func(*Browser)

// WithExecPath sets the Chrome binary. Chrome is looked up on PATH otherwise.
func WithExecPath(path string) Option {
	return func(b *Browser) {
		b.execPath = path
	}
}

// WithHeadless toggles headless mode. Headless is the default.
func WithHeadless(headless bool) Option {
	return func(b *Browser) {
		b.headless = headless
	}
}

// WithPageTimeout bounds a single navigation.
func WithPageTimeout(d time.Duration) Option {
	return func(b *Browser) {
		b.timeout = d
	}
}

// WithLogger sets the logger that receives Chrome's log output.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Browser) {
		b.logger = logger
	}
}

// NewBrowser starts Chrome. The process lives until Close or ctx ends.
func NewBrowser(ctx context.Context, opts ...Option) (*Browser, error) {
	b := &Browser{
		headless: true,
		timeout:  DefaultTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", b.headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if b.execPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(b.execPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(format string, args ...any) {
		b.logger.Debug(fmt.Sprintf(format, args...))
	}))

	// An empty Run launches the browser so startup failures surface here.
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	b.allocCancel = allocCancel
	b.tabCtx = tabCtx
	b.tabCancel = tabCancel
	return b, nil
}

func (b *Browser) run(ctx context.Context, actions ...chromedp.Action) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBrowserClosed
	}
	tabCtx := b.tabCtx
	b.mu.Unlock()

	runCtx, cancel := context.WithTimeout(tabCtx, b.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

// Load navigates to url and returns the rendered HTML.
func (b *Browser) Load(ctx context.Context, url string) (Page, error) {
	var html, location string
	err := b.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.Location(&location),
	)
	if err != nil {
		return Page{}, fmt.Errorf("failed to load %s: %w", url, err)
	}
	b.logger.Debug("page rendered", "url", location, "bytes", len(html))
	return Page{URL: location, HTML: html}, nil
}

// Back navigates one entry back in the tab history.
func (b *Browser) Back(ctx context.Context) error {
	if err := b.run(ctx, chromedp.NavigateBack()); err != nil {
		return fmt.Errorf("failed to navigate back: %w", err)
	}
	return nil
}

// Close shuts Chrome down.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	b.tabCancel()
	b.allocCancel()
	return nil
}
