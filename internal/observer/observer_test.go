package observer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/net/html"

	"github.com/nao1215/cyberbuddy/internal/dom"
	"github.com/nao1215/cyberbuddy/internal/messaging"
	"github.com/nao1215/cyberbuddy/internal/model"
	"github.com/nao1215/cyberbuddy/internal/store"
)

type fakeSender struct {
	mu     sync.Mutex
	reqs   []messaging.Request
	answer func(req messaging.Request) (messaging.Response, error)
}

func (f *fakeSender) Send(_ context.Context, req messaging.Request) (messaging.Response, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	return f.answer(req)
}

func (f *fakeSender) Requests() []messaging.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]messaging.Request(nil), f.reqs...)
}

func (f *fakeSender) count(source model.Source) int {
	n := 0
	for _, r := range f.Requests() {
		if r.Source == source {
			n++
		}
	}
	return n
}

type fakeNavigator struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeNavigator) Back(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	pages []string
}

func (f *fakeNotifier) Notify(_ context.Context, pageURL string, _ model.ScanVerdict) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages = append(f.pages, pageURL)
	return nil
}

func (f *fakeNotifier) Pages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.pages...)
}

func verdictReply(p model.Prediction, confidence float64) messaging.Response {
	return messaging.Response{Verdict: &model.ScanVerdict{Prediction: p, Confidence: confidence}}
}

// byURL answers phishing for URLs containing "paypal" and legitimate otherwise.
func byURL(req messaging.Request) (messaging.Response, error) {
	if strings.Contains(req.URL, "paypal") {
		return verdictReply(model.PredictionPhishing, 0.92), nil
	}
	return verdictReply(model.PredictionLegitimate, 0.97), nil
}

const searchPage = `<html><body><div id="rso">
<div class="g"><a href="https://paypal-secure-login.net/verify"><h3>PayPal</h3></a></div>
<div class="g"><a href="https://example.com/"><h3>Example</h3></a></div>
<div class="g"><a href="https://maps.google.com/place">Maps</a></div>
<div class="g"><a href="/search?q=more">More results</a></div>
<div class="g"><a href="javascript:void(0)">Menu</a></div>
<div class="ad"><a href="https://not-a-result.example/">Ad</a></div>
</div></body></html>`

func newSearchDoc(t *testing.T) *dom.Document {
	t.Helper()
	doc, err := dom.ParseString(searchPage, "https://www.google.com/search?q=paypal")
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func anchorFor(t *testing.T, doc *dom.Document, href string) *html.Node {
	t.Helper()
	for _, a := range doc.Query(dom.MustCompile("a")) {
		if dom.GetAttr(a, "href") == href {
			return a
		}
	}
	t.Fatalf("anchor %q not found", href)
	return nil
}

func badgeCount(doc *dom.Document) int {
	return len(doc.Query(dom.MustCompile("span." + BadgeClass)))
}

func overlayCount(doc *dom.Document) int {
	return len(doc.Query(dom.MustCompile("#" + OverlayID)))
}

func TestObserver_Discover(t *testing.T) {
	t.Parallel()

	t.Run("filters candidates and is idempotent", func(t *testing.T) {
		t.Parallel()

		doc := newSearchDoc(t)
		sender := &fakeSender{answer: byURL}
		obs := New(doc, sender, store.NewSettings(store.NewMemoryStore()))
		ctx := context.Background()

		if got := obs.Discover(ctx); got != 2 {
			t.Fatalf("first pass requested %d, want 2", got)
		}
		obs.Wait()
		for range 3 {
			if got := obs.Discover(ctx); got != 0 {
				t.Fatalf("repeat pass requested %d, want 0", got)
			}
		}
		obs.Wait()

		reqs := sender.Requests()
		if len(reqs) != 2 {
			t.Fatalf("requests = %d, want 2", len(reqs))
		}
		for _, r := range reqs {
			if r.Action != messaging.ActionScan || r.Source != model.SourceGoogleSearch {
				t.Errorf("unexpected request %+v", r)
			}
		}
		if got := badgeCount(doc); got != 2 {
			t.Errorf("badges = %d, want 2", got)
		}

		if s := obs.State(anchorFor(t, doc, "https://maps.google.com/place")); s != StateUnscanned {
			t.Errorf("search-engine link state = %v", s)
		}
		if s := obs.State(anchorFor(t, doc, "/search?q=more")); s != StateUnscanned {
			t.Errorf("relative self link state = %v", s)
		}
		if s := obs.State(anchorFor(t, doc, "https://not-a-result.example/")); s != StateUnscanned {
			t.Errorf("non-result link state = %v", s)
		}
	})

	t.Run("paypal result is badged dangerous", func(t *testing.T) {
		t.Parallel()

		doc := newSearchDoc(t)
		obs := New(doc, &fakeSender{answer: byURL}, store.NewSettings(store.NewMemoryStore()))
		obs.Discover(context.Background())
		obs.Wait()

		a := anchorFor(t, doc, "https://paypal-secure-login.net/verify")
		if s := obs.State(a); s != StateAnnotated {
			t.Fatalf("state = %v, want ANNOTATED", s)
		}

		var text, title, parent string
		doc.Update(func(*html.Node) {
			b := FindBadge(a)
			if b == nil {
				return
			}
			text = dom.Text(b)
			title = dom.GetAttr(b, "title")
			parent = b.Parent.Data
		})
		if text != "🚫 Dangerous" {
			t.Errorf("badge text = %q", text)
		}
		if title != "CyberBuddy Analysis: PHISHING (92% Confidence)" {
			t.Errorf("tooltip = %q", title)
		}
		if parent != "h3" {
			t.Errorf("badge parent = %q, want h3", parent)
		}
	})

	t.Run("legitimate result is badged safe without overlay", func(t *testing.T) {
		t.Parallel()

		doc := newSearchDoc(t)
		obs := New(doc, &fakeSender{answer: byURL}, store.NewSettings(store.NewMemoryStore()))
		obs.Start(context.Background())
		obs.Wait()

		a := anchorFor(t, doc, "https://example.com/")
		var text string
		doc.Update(func(*html.Node) {
			if b := FindBadge(a); b != nil {
				text = dom.Text(b)
			}
		})
		if text != "🛡️ Safe" {
			t.Errorf("badge text = %q", text)
		}
		if overlayCount(doc) != 0 {
			t.Error("no overlay expected on a search page")
		}
	})

	t.Run("error replies and transport failures leave anchors ignored", func(t *testing.T) {
		t.Parallel()

		doc := newSearchDoc(t)
		sender := &fakeSender{answer: func(req messaging.Request) (messaging.Response, error) {
			if strings.Contains(req.URL, "paypal") {
				return messaging.Response{Error: model.ReasonScanFailed}, nil
			}
			return messaging.Response{}, messaging.ErrNotReady
		}}
		obs := New(doc, sender, store.NewSettings(store.NewMemoryStore()))
		ctx := context.Background()
		obs.Discover(ctx)
		obs.Wait()
		obs.Discover(ctx)
		obs.Wait()

		for _, href := range []string{"https://paypal-secure-login.net/verify", "https://example.com/"} {
			if s := obs.State(anchorFor(t, doc, href)); s != StateIgnored {
				t.Errorf("%s state = %v, want IGNORED", href, s)
			}
		}
		if badgeCount(doc) != 0 {
			t.Error("no badge expected")
		}
		if got := len(sender.Requests()); got != 2 {
			t.Errorf("requests = %d, ignored anchors must not be retried", got)
		}
	})

	t.Run("badge goes on the anchor without a heading", func(t *testing.T) {
		t.Parallel()

		doc, err := dom.ParseString(`<div class="g"><a href="https://plain.example/">plain</a></div>`, "https://www.google.com/search")
		if err != nil {
			t.Fatal(err)
		}
		obs := New(doc, &fakeSender{answer: byURL}, store.NewSettings(store.NewMemoryStore()))
		obs.Discover(context.Background())
		obs.Wait()

		if !strings.Contains(doc.String(), `plain<span class="cb-badge"`) {
			t.Errorf("badge not appended to anchor:\n%s", doc.String())
		}
	})
}

func TestObserver_Guard(t *testing.T) {
	t.Parallel()

	phishingPage := func(t *testing.T) *dom.Document {
		t.Helper()
		doc, err := dom.ParseString(`<html><body><p>Verify your account</p></body></html>`,
			"https://paypal-secure-login.net/verify")
		if err != nil {
			t.Fatal(err)
		}
		return doc
	}

	t.Run("overlay shown exactly once with both escapes", func(t *testing.T) {
		t.Parallel()

		doc := phishingPage(t)
		sender := &fakeSender{answer: byURL}
		nav := &fakeNavigator{}
		obs := New(doc, sender, store.NewSettings(store.NewMemoryStore()), WithNavigator(nav))
		ctx := context.Background()

		for range 3 {
			res := obs.Guard(ctx)
			if res.Outcome != GuardThreat {
				t.Fatalf("outcome = %v, want threat", res.Outcome)
			}
		}
		if got := sender.count(model.SourceWeb); got != 1 {
			t.Errorf("guard scans = %d, want 1", got)
		}
		if got := overlayCount(doc); got != 1 {
			t.Fatalf("overlays = %d, want 1", got)
		}

		out := doc.String()
		for _, want := range []string{
			"THREAT INTERCEPTED",
			"RETREAT TO SAFETY",
			`id="cb-proceed-btn"`,
			"Proceed (Unsafe)",
			DefaultThreatMessage,
		} {
			if !strings.Contains(out, want) {
				t.Errorf("overlay missing %q", want)
			}
		}

		if err := obs.GoBack(ctx); err != nil {
			t.Errorf("GoBack() error = %v", err)
		}
		if nav.calls != 1 {
			t.Errorf("navigator calls = %d", nav.calls)
		}

		if !obs.Proceed() {
			t.Fatal("Proceed() = false")
		}
		if obs.OverlayVisible() || overlayCount(doc) != 0 {
			t.Error("overlay should be removed after proceed")
		}
		if obs.Proceed() {
			t.Error("second Proceed() should be a no-op")
		}
	})

	t.Run("verdict message replaces default text", func(t *testing.T) {
		t.Parallel()

		doc := phishingPage(t)
		sender := &fakeSender{answer: func(messaging.Request) (messaging.Response, error) {
			return messaging.Response{Verdict: &model.ScanVerdict{
				Prediction: model.PredictionSuspicious,
				Confidence: 0.6,
				Message:    "Lookalike domain registered 2 days ago.",
			}}, nil
		}}
		obs := New(doc, sender, store.NewSettings(store.NewMemoryStore()))
		if res := obs.Guard(context.Background()); res.Outcome != GuardThreat {
			t.Fatalf("outcome = %v, want threat for suspicious", res.Outcome)
		}
		if !strings.Contains(doc.String(), "Lookalike domain registered 2 days ago.") {
			t.Error("verdict message not rendered")
		}
	})

	t.Run("legitimate page is left alone", func(t *testing.T) {
		t.Parallel()

		doc, err := dom.ParseString(`<html><body></body></html>`, "https://example.com/")
		if err != nil {
			t.Fatal(err)
		}
		obs := New(doc, &fakeSender{answer: byURL}, store.NewSettings(store.NewMemoryStore()))
		res := obs.Guard(context.Background())
		if res.Outcome != GuardSafe {
			t.Errorf("outcome = %v, want safe", res.Outcome)
		}
		if res.Verdict == nil || res.Verdict.ConfidenceLabel() != "97%" {
			t.Errorf("verdict = %+v", res.Verdict)
		}
		if obs.OverlayVisible() || overlayCount(doc) != 0 {
			t.Error("overlay must not be shown")
		}
	})

	t.Run("web protection off suppresses guard but not badges", func(t *testing.T) {
		t.Parallel()

		settings := store.NewSettings(store.NewMemoryStore())
		if err := settings.SetWebProtection(context.Background(), false); err != nil {
			t.Fatal(err)
		}
		doc, err := dom.ParseString(
			`<html><body><div class="g"><a href="https://paypal-secure-login.net/x"><h3>p</h3></a></div></body></html>`,
			"https://paypal-secure-login.net/landing")
		if err != nil {
			t.Fatal(err)
		}
		sender := &fakeSender{answer: byURL}
		obs := New(doc, sender, settings)
		obs.Start(context.Background())
		obs.Wait()

		if res := obs.GuardResult(); res.Outcome != GuardDisabled {
			t.Errorf("outcome = %v, want disabled", res.Outcome)
		}
		if sender.count(model.SourceWeb) != 0 {
			t.Error("guard must not scan when disabled")
		}
		if badgeCount(doc) != 1 {
			t.Error("link badge expected with protection off")
		}
	})

	t.Run("skip hosts and non-http pages", func(t *testing.T) {
		t.Parallel()

		for _, page := range []string{
			"http://localhost:3000/",
			"https://mail.google.com/inbox",
			"file:///tmp/x.html",
		} {
			doc, err := dom.ParseString(`<html><body></body></html>`, page)
			if err != nil {
				t.Fatal(err)
			}
			sender := &fakeSender{answer: byURL}
			obs := New(doc, sender, store.NewSettings(store.NewMemoryStore()))
			if res := obs.Guard(context.Background()); res.Outcome != GuardSkipped {
				t.Errorf("%s outcome = %v, want skipped", page, res.Outcome)
			}
			if len(sender.Requests()) != 0 {
				t.Errorf("%s was scanned", page)
			}
		}
	})

	t.Run("failed scan shows nothing", func(t *testing.T) {
		t.Parallel()

		doc := phishingPage(t)
		sender := &fakeSender{answer: func(messaging.Request) (messaging.Response, error) {
			return messaging.Response{Error: model.ReasonScanFailed}, nil
		}}
		obs := New(doc, sender, store.NewSettings(store.NewMemoryStore()))
		if res := obs.Guard(context.Background()); res.Outcome != GuardFailed {
			t.Errorf("outcome = %v, want failed", res.Outcome)
		}
		if overlayCount(doc) != 0 {
			t.Error("overlay must only follow a verdict")
		}
	})

	t.Run("notifications follow the setting", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()

		notifier := &fakeNotifier{}
		obs := New(phishingPage(t), &fakeSender{answer: byURL},
			store.NewSettings(store.NewMemoryStore()), WithNotifier(notifier))
		obs.Guard(ctx)
		if got := notifier.Pages(); len(got) != 1 || got[0] != "https://paypal-secure-login.net/verify" {
			t.Errorf("notified pages = %v", got)
		}

		quiet := store.NewSettings(store.NewMemoryStore())
		if err := quiet.SetNotifications(ctx, false); err != nil {
			t.Fatal(err)
		}
		silent := &fakeNotifier{}
		New(phishingPage(t), &fakeSender{answer: byURL}, quiet, WithNotifier(silent)).Guard(ctx)
		if len(silent.Pages()) != 0 {
			t.Error("notifier called with notifications off")
		}
	})

	t.Run("go back without navigator", func(t *testing.T) {
		t.Parallel()

		obs := New(phishingPage(t), &fakeSender{answer: byURL}, store.NewSettings(store.NewMemoryStore()))
		if err := obs.GoBack(context.Background()); !errors.Is(err, errNoNavigator) {
			t.Errorf("GoBack() error = %v", err)
		}
	})
}

func TestObserver_Watch(t *testing.T) {
	t.Parallel()

	const article = `<html><body><div id="rso">
<div class="g"><a href="https://example.com/"><h3>Example</h3></a></div>
</div></body></html>`
	doc, err := dom.ParseString(article, "https://news.example/article")
	if err != nil {
		t.Fatal(err)
	}
	sender := &fakeSender{answer: byURL}
	obs := New(doc, sender, store.NewSettings(store.NewMemoryStore()), WithDebounce(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mutations := doc.Observe()
	obs.Start(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		obs.Watch(ctx, mutations)
	}()

	for i := range 3 {
		frag := `<div class="g"><a href="https://page2.example/` + string(rune('a'+i)) + `">next</a></div>`
		if err := doc.AppendHTML("#rso", frag); err != nil {
			t.Fatal(err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		// Wait is safe to call while Watch may start new passes.
		obs.Wait()
		if obs.Summary().Count(StateAnnotated) == 4 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("annotated = %d, want 4", obs.Summary().Count(StateAnnotated))
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watch did not return after cancel")
	}
	obs.Wait()

	if got := obs.GuardResult().Outcome; got != GuardSafe {
		t.Errorf("guard outcome = %v, want GuardSafe", got)
	}
	if got := sender.count(model.SourceWeb); got != 1 {
		t.Errorf("page scans = %d, want 1: mutations must not re-run the guard", got)
	}
	if got := sender.count(model.SourceGoogleSearch); got != 4 {
		t.Errorf("link scans = %d, want 4", got)
	}
	if got := badgeCount(doc); got != 4 {
		t.Errorf("badges = %d, want 4", got)
	}
}

func TestObserver_IdenticalURLsShareOneScan(t *testing.T) {
	t.Parallel()

	const page = `<html><body>
<div class="g"><a href="https://dup.example/"><h3>First</h3></a></div>
<div class="g"><a href="https://dup.example/"><h3>Second</h3></a></div>
</body></html>`
	doc, err := dom.ParseString(page, "https://www.google.com/search?q=dup")
	if err != nil {
		t.Fatal(err)
	}

	entered := make(chan struct{}, 2)
	release := make(chan struct{})
	sender := &fakeSender{answer: func(req messaging.Request) (messaging.Response, error) {
		entered <- struct{}{}
		<-release
		return byURL(req)
	}}
	obs := New(doc, sender, store.NewSettings(store.NewMemoryStore()))

	if got := obs.Discover(context.Background()); got != 2 {
		t.Fatalf("requested %d anchors, want 2", got)
	}
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("no scan was sent")
	}

	anchors := doc.Query(dom.MustCompile("div.g a"))
	for i, a := range anchors {
		if s := obs.State(a); s != StateRequested {
			t.Errorf("anchor %d state while in flight = %v, want REQUESTED", i, s)
		}
	}

	close(release)
	obs.Wait()

	if got := len(sender.Requests()); got != 1 {
		t.Errorf("requests = %d, want 1 for two anchors with one URL", got)
	}
	for i, a := range anchors {
		if s := obs.State(a); s != StateAnnotated {
			t.Errorf("anchor %d state = %v, want ANNOTATED", i, s)
		}
	}
	if got := badgeCount(doc); got != 2 {
		t.Errorf("badges = %d, want 2", got)
	}
}

func TestObserver_Summary(t *testing.T) {
	t.Parallel()

	doc := newSearchDoc(t)
	obs := New(doc, &fakeSender{answer: byURL}, store.NewSettings(store.NewMemoryStore()))
	obs.Start(context.Background())
	obs.Wait()

	s := obs.Summary()
	if s.PageURL != "https://www.google.com/search?q=paypal" {
		t.Errorf("PageURL = %q", s.PageURL)
	}
	if len(s.Links) != 2 || s.Links[0].URL != "https://paypal-secure-login.net/verify" {
		t.Fatalf("links = %+v", s.Links)
	}
	if d := s.Dangerous(); len(d) != 1 || d[0].Verdict.Prediction != model.PredictionPhishing {
		t.Errorf("dangerous = %+v", d)
	}
	if s.Overlay {
		t.Error("overlay should not be shown")
	}
}

func TestHostIn(t *testing.T) {
	t.Parallel()

	tests := []struct {
		host string
		want bool
	}{
		{host: "google.com", want: true},
		{host: "www.google.com", want: true},
		{host: "WWW.Google.COM.", want: true},
		{host: "notgoogle.com", want: false},
		{host: "google.com.evil.example", want: false},
		{host: "example.com", want: false},
	}
	for _, tt := range tests {
		if got := hostIn(tt.host, []string{"google.com"}); got != tt.want {
			t.Errorf("hostIn(%q) = %v, want %v", tt.host, got, tt.want)
		}
	}
}

func TestTooltip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		v    model.ScanVerdict
		want string
	}{
		{v: model.ScanVerdict{Prediction: model.PredictionPhishing, Confidence: 0.92}, want: "CyberBuddy Analysis: PHISHING (92% Confidence)"},
		{v: model.ScanVerdict{Prediction: model.PredictionLegitimate, Confidence: 0.976}, want: "CyberBuddy Analysis: LEGITIMATE (98% Confidence)"},
		{v: model.ScanVerdict{Prediction: model.PredictionSuspicious, Confidence: 0}, want: "CyberBuddy Analysis: SUSPICIOUS (0% Confidence)"},
	}
	for _, tt := range tests {
		if got := Tooltip(tt.v); got != tt.want {
			t.Errorf("Tooltip() = %q, want %q", got, tt.want)
		}
	}
}
