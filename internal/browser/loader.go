// Package browser loads pages into a dom.Document for a page observer.
//
// Two sources are provided. HTTPLoader fetches the raw HTML over plain HTTP,
// optionally through a SOCKS5 proxy. Browser drives a headless Chrome with
// chromedp so scripted pages are observed after they render, and it can go
// back in history when a user retreats from a threat overlay.
package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"golang.org/x/net/proxy"

	"github.com/nao1215/cyberbuddy/internal/dom"
)

const (
	// DefaultTimeout bounds one page fetch.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxPageSize caps the HTML read from a page.
	DefaultMaxPageSize = 10 * 1024 * 1024

	// DefaultUserAgent is sent when no user agent is configured.
	DefaultUserAgent = "Mozilla/5.0 (compatible; CyberBuddy)"
)

var (
	// ErrInvalidProxyAddress is returned for a proxy address that is not host:port.
	ErrInvalidProxyAddress = errors.New("invalid proxy address")

	// ErrNotHTML is returned when a page is served with a non-HTML content type.
	ErrNotHTML = errors.New("page is not HTML")

	// ErrPageTooLarge is returned when a page exceeds the configured size.
	ErrPageTooLarge = errors.New("page exceeds maximum size")
)

// StatusError is returned when a page answers with a non-2xx status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
}

// Page is a loaded page.
type Page struct {
	// URL is the final URL after redirects.
	URL string
	// HTML is the page source.
	HTML string
}

// Document parses the page into a dom.Document.
func (p Page) Document() (*dom.Document, error) {
	return dom.ParseString(p.HTML, p.URL)
}

// Loader loads a page by URL.
type Loader interface {
	Load(ctx context.Context, url string) (Page, error)
}

// HTTPLoader fetches pages with net/http.
type HTTPLoader struct {
	client      *http.Client
	userAgent   string
	maxPageSize int64
	proxyAddr   string
	timeout     time.Duration
}

// HTTPOption configures an HTTPLoader.
type HTTPOption func(*HTTPLoader)

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) HTTPOption {
	return func(l *HTTPLoader) {
		l.userAgent = ua
	}
}

// WithMaxPageSize caps the number of bytes read from a page.
func WithMaxPageSize(n int64) HTTPOption {
	return func(l *HTTPLoader) {
		l.maxPageSize = n
	}
}

// WithTimeout sets the per-page timeout.
func WithTimeout(d time.Duration) HTTPOption {
	return func(l *HTTPLoader) {
		l.timeout = d
	}
}

// WithProxy routes requests through the SOCKS5 proxy at addr ("host:port").
func WithProxy(addr string) HTTPOption {
	return func(l *HTTPLoader) {
		l.proxyAddr = addr
	}
}

// WithHTTPClient replaces the HTTP client. WithProxy is ignored when set.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(l *HTTPLoader) {
		l.client = c
	}
}

// NewHTTPLoader creates an HTTPLoader.
func NewHTTPLoader(opts ...HTTPOption) (*HTTPLoader, error) {
	l := &HTTPLoader{
		userAgent:   DefaultUserAgent,
		maxPageSize: DefaultMaxPageSize,
		timeout:     DefaultTimeout,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.client != nil {
		return l, nil
	}

	// Each loader gets its own jar so cookie-gated redirects complete.
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	transport := &http.Transport{
		MaxIdleConns:        10,
		IdleConnTimeout:     30 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	if l.proxyAddr != "" {
		dialer, err := socksDialer(l.proxyAddr)
		if err != nil {
			return nil, err
		}
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			if cd, ok := dialer.(proxy.ContextDialer); ok {
				return cd.DialContext(ctx, network, addr)
			}
			return dialer.Dial(network, addr)
		}
	}
	l.client = &http.Client{
		Transport: transport,
		Jar:       jar,
		Timeout:   l.timeout,
	}
	return l, nil
}

func socksDialer(addr string) (proxy.Dialer, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil || host == "" || port == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidProxyAddress, addr)
	}
	dialer, err := proxy.SOCKS5("tcp", addr, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}
	return dialer, nil
}

// Load fetches url and returns its HTML with the post-redirect URL.
func (l *HTTPLoader) Load(ctx context.Context, url string) (Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Page{}, fmt.Errorf("failed to build request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", l.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := l.client.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Page{}, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !isHTML(ct) {
		return Page{}, fmt.Errorf("%w: %s", ErrNotHTML, ct)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, l.maxPageSize+1))
	if err != nil {
		return Page{}, fmt.Errorf("failed to read %s: %w", url, err)
	}
	if int64(len(body)) > l.maxPageSize {
		return Page{}, ErrPageTooLarge
	}

	return Page{URL: resp.Request.URL.String(), HTML: string(body)}, nil
}

func isHTML(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml")
}
