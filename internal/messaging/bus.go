package messaging

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultRequestTTL bounds how long a pending request waits for its reply.
const DefaultRequestTTL = 30 * time.Second

// Messaging errors. None of them is fatal to a caller: each one means
// "no reply" and the caller moves on.
var (
	// ErrNotReady is returned when no background handler is serving.
	ErrNotReady = errors.New("background context not ready")

	// ErrNoReply is returned when the pending entry expires first.
	ErrNoReply = errors.New("no reply before the request expired")

	// ErrPortClosed is returned when the requesting port is torn down.
	ErrPortClosed = errors.New("port closed")

	// ErrAlreadyServing is returned by Serve when another loop is running.
	ErrAlreadyServing = errors.New("bus is already being served")
)

// Handler serves requests in the background context.
type Handler interface {
	HandleMessage(ctx context.Context, req Request) Response
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req Request) Response

// HandleMessage calls f.
func (f HandlerFunc) HandleMessage(ctx context.Context, req Request) Response {
	return f(ctx, req)
}

// pendingEntry is one row of the pending-request table.
type pendingEntry struct {
	port  *Port
	reply chan Response
}

// Bus connects requester ports to the background handler.
type Bus struct {
	mu      sync.Mutex
	pending map[string]*pendingEntry
	inbox   chan Request
	serving bool
	ready   chan struct{}

	ttl    time.Duration
	logger *slog.Logger
}

// Option configures a Bus.
type Option func(*Bus)

// WithRequestTTL sets the lifetime of pending entries.
func WithRequestTTL(ttl time.Duration) Option {
	return func(b *Bus) {
		if ttl > 0 {
			b.ttl = ttl
		}
	}
}

// WithLogger sets the bus logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) {
		b.logger = logger
	}
}

// NewBus creates a Bus with nothing serving yet.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		pending: make(map[string]*pendingEntry),
		inbox:   make(chan Request, 64),
		ready:   make(chan struct{}),
		ttl:     DefaultRequestTTL,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	return b
}

// Serve runs the background event loop until ctx is done. Each request is
// handled on its own goroutine; there is no bound on outstanding requests.
func (b *Bus) Serve(ctx context.Context, h Handler) error {
	b.mu.Lock()
	if b.serving {
		b.mu.Unlock()
		return ErrAlreadyServing
	}
	b.serving = true
	close(b.ready)
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.serving = false
		b.ready = make(chan struct{})
		b.mu.Unlock()
	}()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-b.inbox:
			wg.Add(1)
			go func() {
				defer wg.Done()
				b.deliver(req.ID, h.HandleMessage(ctx, req))
			}()
		}
	}
}

// Serving reports whether a background loop is running.
func (b *Bus) Serving() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.serving
}

// Ready returns a channel that is closed once a background loop is
// serving. After that loop exits, Ready hands out a new open channel.
func (b *Bus) Ready() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ready
}

// Pending returns the number of requests awaiting a reply.
func (b *Bus) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Connect opens a port for one requesting context.
func (b *Bus) Connect(name string) *Port {
	return &Port{
		name: name,
		bus:  b,
		done: make(chan struct{}),
	}
}

// register adds a pending entry for id owned by p.
func (b *Bus) register(p *Port, id string) (*pendingEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.serving {
		return nil, ErrNotReady
	}
	select {
	case <-p.done:
		return nil, ErrPortClosed
	default:
	}

	entry := &pendingEntry{
		port:  p,
		reply: make(chan Response, 1),
	}
	b.pending[id] = entry
	return entry, nil
}

// remove drops id from the pending table if it is still there.
func (b *Bus) remove(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.pending, id)
}

// deliver routes a reply to the entry registered under id.
func (b *Bus) deliver(id string, resp Response) {
	b.mu.Lock()
	entry, ok := b.pending[id]
	if ok {
		delete(b.pending, id)
	}
	b.mu.Unlock()

	if !ok {
		b.logger.Debug("dropping reply for expired request", "request_id", id)
		return
	}

	select {
	case entry.reply <- resp:
	default:
	}
}

// dropPort removes every pending entry owned by p.
func (b *Bus) dropPort(p *Port) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	dropped := 0
	for id, entry := range b.pending {
		if entry.port == p {
			delete(b.pending, id)
			dropped++
		}
	}
	return dropped
}

// Port is the requesting end of one context (a tab or the popup).
type Port struct {
	name      string
	bus       *Bus
	done      chan struct{}
	closeOnce sync.Once
}

// Name returns the port name given to Connect.
func (p *Port) Name() string {
	return p.name
}

// Send delivers req to the background context and waits for its reply.
// A non-nil error always means "no reply"; callers treat it as a soft
// failure.
func (p *Port) Send(ctx context.Context, req Request) (Response, error) {
	req.ID = uuid.NewString()

	entry, err := p.bus.register(p, req.ID)
	if err != nil {
		return Response{}, err
	}
	defer p.bus.remove(req.ID)

	timer := time.NewTimer(p.bus.ttl)
	defer timer.Stop()

	select {
	case p.bus.inbox <- req:
	case <-ctx.Done():
		return Response{}, ctx.Err()
	case <-p.done:
		return Response{}, ErrPortClosed
	case <-timer.C:
		return Response{}, ErrNoReply
	}

	select {
	case resp := <-entry.reply:
		return resp, nil
	case <-ctx.Done():
		return Response{}, ctx.Err()
	case <-p.done:
		return Response{}, ErrPortClosed
	case <-timer.C:
		p.bus.logger.Debug("request expired without reply",
			"port", p.name,
			"request_id", req.ID,
			"url", req.URL,
		)
		return Response{}, ErrNoReply
	}
}

// Close tears the port down. Pending requests of this port return
// ErrPortClosed and their late replies are discarded.
func (p *Port) Close() {
	p.closeOnce.Do(func() {
		close(p.done)
		if n := p.bus.dropPort(p); n > 0 {
			p.bus.logger.Debug("port closed with pending requests", "port", p.name, "dropped", n)
		}
	})
}
