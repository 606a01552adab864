// Package panel implements the popup context: the control panel that shows
// the protection switches, the login state and the manual scan form.
//
// Panel methods mirror the popup's event handlers. The panel keeps a View
// that a front end renders; it never reads state from the store except in
// Open.
package panel

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/nao1215/cyberbuddy/internal/messaging"
	"github.com/nao1215/cyberbuddy/internal/model"
	"github.com/nao1215/cyberbuddy/internal/store"
)

// Labels shown by the panel.
const (
	AuthLabelLogin  = "LOGIN"
	AuthLabelLogout = "LOGOUT"

	LoginButtonIdle = "ESTABLISH CONNECTION"
	LoginButtonBusy = "AUTHENTICATING..."

	ScanButtonIdle = "SCAN NOW"
	ScanButtonBusy = "Scanning..."

	StatusSecureTitle  = "System Secure"
	StatusSecureDetail = "Real-time heuristics enabled"
	StatusPausedTitle  = "Protection Paused"
	StatusPausedDetail = "You are vulnerable to threats"

	UnknownURL = "Unknown URL"

	ConnectionFailed       = "Connection Failed"
	ConnectionFailedDetail = "Please make sure the CyberBuddy backend is running."
)

// ErrNoScanTarget is returned by ManualScan when the current URL is not a
// web page.
var ErrNoScanTarget = errors.New("current URL is not an http(s) page")

// Sender delivers a request to the background context.
type Sender interface {
	Send(ctx context.Context, req messaging.Request) (messaging.Response, error)
}

// Authenticator exchanges credentials for a bearer token.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (string, error)
}

// View is everything the popup renders.
type View struct {
	WebProtection bool
	Notifications bool
	DataSharing   bool

	StatusTitle  string
	StatusDetail string

	AuthLabel   string
	User        string
	LoginButton string
	LoginBusy   bool
	LoginError  string

	URLDisplay string
	ScanButton string
	ScanBusy   bool
	Result     *model.ScanVerdict
	Notice     string
}

// Panel is one open popup.
type Panel struct {
	settings *store.Settings
	sender   Sender
	auth     Authenticator
	logger   *slog.Logger

	scanLimit int

	writes    sync.WaitGroup
	writeMu   sync.Mutex
	lastWrite chan struct{}

	mu         sync.Mutex
	view       View
	currentURL string
}

// Option configures a Panel.
type Option func(*Panel)

// WithLogger sets the panel logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Panel) {
		p.logger = logger
	}
}

// WithScanLimit bounds the concurrency of ScanMany.
func WithScanLimit(n int) Option {
	return func(p *Panel) {
		p.scanLimit = n
	}
}

// DefaultScanLimit is the ScanMany concurrency when none is set.
const DefaultScanLimit = 4

// New creates a Panel. Call Open before using it.
func New(settings *store.Settings, sender Sender, auth Authenticator, opts ...Option) *Panel {
	p := &Panel{
		settings:  settings,
		sender:    sender,
		auth:      auth,
		scanLimit: DefaultScanLimit,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	p.view = p.render(model.StateSnapshot{Protection: model.DefaultProtectionConfig()})
	return p
}

// Open loads the persisted state in one batch and returns the initial view.
func (p *Panel) Open(ctx context.Context) View {
	snap := p.settings.Snapshot(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.currentURL = snap.CurrentURL
	p.view = p.render(snap)
	return p.view
}

func (p *Panel) render(snap model.StateSnapshot) View {
	v := View{
		WebProtection: snap.Protection.WebProtection,
		Notifications: snap.Protection.Notifications,
		DataSharing:   snap.Protection.DataSharing,
		LoginButton:   LoginButtonIdle,
		ScanButton:    ScanButtonIdle,
		URLDisplay:    snap.CurrentURL,
	}
	if v.URLDisplay == "" {
		v.URLDisplay = UnknownURL
	}
	setStatus(&v)
	setAuth(&v, snap.Session)
	return v
}

func setStatus(v *View) {
	if v.WebProtection {
		v.StatusTitle, v.StatusDetail = StatusSecureTitle, StatusSecureDetail
		return
	}
	v.StatusTitle, v.StatusDetail = StatusPausedTitle, StatusPausedDetail
}

func setAuth(v *View, s model.SessionState) {
	if s.LoggedIn() {
		v.AuthLabel = AuthLabelLogout
		v.User = s.UserValue()
		return
	}
	v.AuthLabel = AuthLabelLogin
	v.User = ""
}

// View returns the current view.
func (p *Panel) View() View {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.view
}

// CurrentURL returns the URL the scan form targets.
func (p *Panel) CurrentURL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentURL
}

// SetWebProtection flips the page guard switch.
func (p *Panel) SetWebProtection(ctx context.Context, enabled bool) {
	p.mu.Lock()
	p.view.WebProtection = enabled
	setStatus(&p.view)
	p.mu.Unlock()

	p.persist(ctx, model.KeyWebProtection, func(ctx context.Context) error {
		return p.settings.SetWebProtection(ctx, enabled)
	})
}

// SetNotifications flips the threat notification switch.
func (p *Panel) SetNotifications(ctx context.Context, enabled bool) {
	p.mu.Lock()
	p.view.Notifications = enabled
	p.mu.Unlock()

	p.persist(ctx, model.KeyNotifications, func(ctx context.Context) error {
		return p.settings.SetNotifications(ctx, enabled)
	})
}

// SetDataSharing flips the data sharing switch.
func (p *Panel) SetDataSharing(ctx context.Context, enabled bool) {
	p.mu.Lock()
	p.view.DataSharing = enabled
	p.mu.Unlock()

	p.persist(ctx, model.KeyDataSharing, func(ctx context.Context) error {
		return p.settings.SetDataSharing(ctx, enabled)
	})
}

// persist runs a fire-and-forget write. Writes land in call order: each
// one waits for its predecessor, so the last toggle is the stored value.
func (p *Panel) persist(ctx context.Context, key string, write func(context.Context) error) {
	ctx = context.WithoutCancel(ctx)

	p.writeMu.Lock()
	prev := p.lastWrite
	done := make(chan struct{})
	p.lastWrite = done
	p.writes.Add(1)
	p.writeMu.Unlock()

	go func() {
		defer p.writes.Done()
		defer close(done)
		if prev != nil {
			<-prev
		}
		if err := write(ctx); err != nil {
			p.logger.Warn("failed to save setting", "key", key, "error", err)
		}
	}()
}

// Flush waits for outstanding setting writes.
func (p *Panel) Flush() {
	p.writes.Wait()
}

// Login submits credentials. On success the session is stored and the auth
// label switches to LOGOUT; on failure the server's message is shown as is.
func (p *Panel) Login(ctx context.Context, email, password string) error {
	p.mu.Lock()
	p.view.LoginError = ""
	p.view.LoginButton = LoginButtonBusy
	p.view.LoginBusy = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.view.LoginButton = LoginButtonIdle
		p.view.LoginBusy = false
		p.mu.Unlock()
	}()

	token, err := p.auth.Login(ctx, email, password)
	if err == nil {
		err = p.settings.SaveSession(ctx, token, email)
	}
	if err != nil {
		msg := err.Error()
		var authErr *model.AuthError
		if errors.As(err, &authErr) {
			msg = authErr.Message
		}
		p.mu.Lock()
		p.view.LoginError = msg
		p.mu.Unlock()
		p.logger.Info("login failed", "user", email, "error", err)
		return err
	}

	p.mu.Lock()
	setAuth(&p.view, model.NewSession(token, email))
	p.mu.Unlock()
	p.logger.Info("logged in", "user", email)
	return nil
}

// Logout forgets the session. The backend is not contacted.
func (p *Panel) Logout(ctx context.Context) error {
	if err := p.settings.ClearSession(ctx); err != nil {
		return err
	}
	p.mu.Lock()
	setAuth(&p.view, model.SessionState{})
	p.mu.Unlock()
	return nil
}

// ManualScan classifies the current URL regardless of the web protection
// switch. A failed scan yields the connection-failed notice, not an error.
func (p *Panel) ManualScan(ctx context.Context) (model.ScanResult, error) {
	target := p.CurrentURL()
	if !strings.HasPrefix(target, "http") {
		return model.ScanResult{}, ErrNoScanTarget
	}

	p.mu.Lock()
	p.view.ScanBusy = true
	p.view.ScanButton = ScanButtonBusy
	p.view.Result = nil
	p.view.Notice = ""
	p.mu.Unlock()

	result := p.scan(ctx, target)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.view.ScanBusy = false
	p.view.ScanButton = ScanButtonIdle
	if result.Failed() {
		p.view.Notice = ConnectionFailed
	} else {
		v := *result.Verdict
		p.view.Result = &v
	}
	return result, nil
}

func (p *Panel) scan(ctx context.Context, target string) model.ScanResult {
	resp, err := p.sender.Send(ctx, messaging.NewScanRequest(target, model.SourceExtension))
	if err != nil {
		p.logger.Debug("manual scan got no reply", "url", target, "error", err)
		return model.FailedResult()
	}
	if !resp.HasPrediction() {
		return model.FailedResult()
	}
	return resp.Result()
}
