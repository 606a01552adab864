// Package observer implements the page context: it discovers result links
// in a dom.Document, asks the background context to classify them, and
// annotates each with a verdict badge. It also runs the full-page guard,
// which may cover the page with an advisory overlay.
package observer

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/sync/singleflight"

	"github.com/nao1215/cyberbuddy/internal/dom"
	"github.com/nao1215/cyberbuddy/internal/messaging"
	"github.com/nao1215/cyberbuddy/internal/model"
	"github.com/nao1215/cyberbuddy/internal/store"
)

const (
	// ScannedAttr marks anchors that already had a scan requested.
	ScannedAttr = "data-cb-scanned"
	// DefaultResultSelector matches search-result anchors.
	DefaultResultSelector = "div.g a"
	// DefaultDebounce is the quiet period before re-running discovery.
	DefaultDebounce = 300 * time.Millisecond
)

// DefaultSearchDomains are hosts whose own links are never scanned.
var DefaultSearchDomains = []string{"google.com"}

// DefaultSkipHosts are pages the guard does not scan.
var DefaultSkipHosts = []string{"localhost", "google.com"}

// Sender delivers a request to the background context.
type Sender interface {
	Send(ctx context.Context, req messaging.Request) (messaging.Response, error)
}

// Navigator performs the overlay's back action.
type Navigator interface {
	Back(ctx context.Context) error
}

// Notifier is told about intercepted pages.
type Notifier interface {
	Notify(ctx context.Context, pageURL string, verdict model.ScanVerdict) error
}

// AnchorState is the lifecycle of one discovered anchor.
type AnchorState int

const (
	// StateUnscanned is an anchor that has not been requested.
	StateUnscanned AnchorState = iota
	// StateRequested is an anchor waiting for its verdict.
	StateRequested
	// StateAnnotated is an anchor carrying a badge.
	StateAnnotated
	// StateIgnored is an anchor whose scan produced no verdict. It is never retried.
	StateIgnored
)

// String returns the state name.
func (s AnchorState) String() string {
	switch s {
	case StateUnscanned:
		return "UNSCANNED"
	case StateRequested:
		return "REQUESTED"
	case StateAnnotated:
		return "ANNOTATED"
	case StateIgnored:
		return "IGNORED"
	default:
		return "UNKNOWN"
	}
}

// Observer watches one page load.
type Observer struct {
	doc       *dom.Document
	sender    Sender
	settings  *store.Settings
	navigator Navigator
	notifier  Notifier
	logger    *slog.Logger

	selector      *dom.Selector
	searchDomains []string
	skipHosts     []string
	debounce      time.Duration

	inflight singleflight.Group

	busy    sync.Mutex
	pending int
	idle    *sync.Cond

	mu       sync.Mutex
	anchors  map[*html.Node]*anchorRecord
	order    []*html.Node
	guard    GuardResult
	overlay  *html.Node
	guardRun sync.Once
}

type anchorRecord struct {
	url     string
	state   AnchorState
	verdict *model.ScanVerdict
}

// Option configures an Observer.
type Option func(*Observer)

// WithLogger sets the observer logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Observer) {
		o.logger = logger
	}
}

// WithSelector replaces the result-anchor selector.
func WithSelector(sel *dom.Selector) Option {
	return func(o *Observer) {
		o.selector = sel
	}
}

// WithSearchDomains replaces the excluded search-engine domains.
func WithSearchDomains(domains ...string) Option {
	return func(o *Observer) {
		o.searchDomains = domains
	}
}

// WithSkipHosts replaces the hosts the guard never scans.
func WithSkipHosts(hosts ...string) Option {
	return func(o *Observer) {
		o.skipHosts = hosts
	}
}

// WithDebounce sets the mutation quiet period.
func WithDebounce(d time.Duration) Option {
	return func(o *Observer) {
		o.debounce = d
	}
}

// WithNavigator sets the back-action handler.
func WithNavigator(n Navigator) Option {
	return func(o *Observer) {
		o.navigator = n
	}
}

// WithNotifier sets the threat notifier.
func WithNotifier(n Notifier) Option {
	return func(o *Observer) {
		o.notifier = n
	}
}

// New creates an Observer for doc.
func New(doc *dom.Document, sender Sender, settings *store.Settings, opts ...Option) *Observer {
	o := &Observer{
		doc:           doc,
		sender:        sender,
		settings:      settings,
		selector:      dom.MustCompile(DefaultResultSelector),
		searchDomains: DefaultSearchDomains,
		skipHosts:     DefaultSkipHosts,
		debounce:      DefaultDebounce,
		anchors:       make(map[*html.Node]*anchorRecord),
	}
	o.idle = sync.NewCond(&o.busy)
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// Document returns the observed document.
func (o *Observer) Document() *dom.Document {
	return o.doc
}

// Start runs the initial discovery pass and the page guard.
func (o *Observer) Start(ctx context.Context) {
	o.Discover(ctx)
	o.spawn(func() {
		o.Guard(ctx)
	})
}

// Discover requests a scan for every candidate anchor not yet marked and
// returns how many were requested. Repeated calls never request an anchor
// twice.
func (o *Observer) Discover(ctx context.Context) int {
	var targets []model.ScanTarget

	o.doc.Update(func(root *html.Node) {
		for _, a := range o.selector.MatchAll(root) {
			if dom.GetAttr(a, ScannedAttr) == "true" {
				continue
			}
			target := o.doc.ResolveURL(dom.GetAttr(a, "href"))
			if !o.eligible(target) {
				continue
			}
			dom.SetAttr(a, ScannedAttr, "true")
			targets = append(targets, model.ScanTarget{
				URL:     target,
				Source:  model.SourceGoogleSearch,
				Element: a,
			})
		}
	})

	if len(targets) == 0 {
		return 0
	}

	var urls []string
	groups := make(map[string][]model.ScanTarget)
	o.mu.Lock()
	for _, t := range targets {
		o.anchors[t.Element] = &anchorRecord{url: t.URL, state: StateRequested}
		o.order = append(o.order, t.Element)
		if _, ok := groups[t.URL]; !ok {
			urls = append(urls, t.URL)
		}
		groups[t.URL] = append(groups[t.URL], t)
	}
	o.mu.Unlock()

	for _, u := range urls {
		group := groups[u]
		o.spawn(func() {
			o.scanAnchors(ctx, group)
		})
	}

	o.logger.Debug("discovery pass", "page", o.doc.URL(), "requested", len(targets))
	return len(targets)
}

func (o *Observer) eligible(target string) bool {
	if !isHTTP(target) {
		return false
	}
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	return !hostIn(u.Hostname(), o.searchDomains)
}

// scanAnchors classifies one URL and annotates every anchor in group, all of
// which point at it. Passes that overlap in time share the round trip too.
func (o *Observer) scanAnchors(ctx context.Context, group []model.ScanTarget) {
	t := group[0]
	v, err, _ := o.inflight.Do(t.URL, func() (any, error) {
		return o.sender.Send(ctx, messaging.NewScanRequest(t.URL, t.Source))
	})
	if err != nil {
		o.logger.Debug("background not ready", "url", t.URL, "error", err)
		o.setStates(group, StateIgnored, nil)
		return
	}

	resp, _ := v.(messaging.Response)
	if !resp.HasPrediction() {
		o.logger.Debug("no verdict for link", "url", t.URL, "error", resp.Error)
		o.setStates(group, StateIgnored, nil)
		return
	}

	verdict := *resp.Verdict
	o.doc.Update(func(*html.Node) {
		for _, g := range group {
			attachBadge(g.Element, verdict)
		}
	})
	o.setStates(group, StateAnnotated, &verdict)
}

func (o *Observer) setStates(group []model.ScanTarget, s AnchorState, v *model.ScanVerdict) {
	for _, g := range group {
		o.setState(g.Element, s, v)
	}
}

func (o *Observer) setState(n *html.Node, s AnchorState, v *model.ScanVerdict) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if rec, ok := o.anchors[n]; ok {
		rec.state = s
		rec.verdict = v
	}
}

// State returns the lifecycle state of anchor n.
func (o *Observer) State(n *html.Node) AnchorState {
	o.mu.Lock()
	defer o.mu.Unlock()
	if rec, ok := o.anchors[n]; ok {
		return rec.state
	}
	return StateUnscanned
}

// Watch re-runs discovery after mutation bursts settle. It returns when ctx
// is done or mutations is closed. The guard is never re-run.
func (o *Observer) Watch(ctx context.Context, mutations <-chan dom.Mutation) {
	var (
		timer *time.Timer
		fire  = make(chan struct{}, 1)
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-mutations:
			if !ok {
				return
			}
			if m.Added == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(o.debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case <-fire:
			o.Discover(ctx)
		}
	}
}

// spawn runs fn on its own goroutine and counts it as in flight until it
// returns.
func (o *Observer) spawn(fn func()) {
	o.busy.Lock()
	o.pending++
	o.busy.Unlock()

	go func() {
		defer func() {
			o.busy.Lock()
			o.pending--
			if o.pending == 0 {
				o.idle.Broadcast()
			}
			o.busy.Unlock()
		}()
		fn()
	}()
}

// Wait blocks until no scan is in flight. It is safe to call while Watch is
// running; a pass that starts after Wait returns is not waited for.
func (o *Observer) Wait() {
	o.busy.Lock()
	defer o.busy.Unlock()
	for o.pending > 0 {
		o.idle.Wait()
	}
}

func isHTTP(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// hostIn reports whether host equals, or is a subdomain of, any domain.
func hostIn(host string, domains []string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	for _, d := range domains {
		d = strings.ToLower(d)
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

var errNoNavigator = errors.New("no navigator configured")
