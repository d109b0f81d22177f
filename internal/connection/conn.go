package connection

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jpillora/backoff"
)

// SendFunc writes one frame to the underlying connection.
type SendFunc func(data []byte) error

// Adapter is the per-exchange protocol contract a managed Conn drives.
type Adapter interface {
	// HandleMessage processes one inbound frame. Called serially from the
	// receive pump.
	HandleMessage(data []byte, receivedAt time.Time)

	// Resubscribe restores the connection's subscriptions. Called after
	// every successful connect, including the first. send writes directly
	// to the fresh link.
	Resubscribe(ctx context.Context, send SendFunc) error

	// Heartbeat returns the application-level ping payload and interval.
	// A nil payload disables the client ping loop for venues that ping
	// from the server side.
	Heartbeat() ([]byte, time.Duration)

	// OnDisconnect runs when the link drops, before reconnection starts.
	// Adapters reset readiness gates here.
	OnDisconnect()
}

// Conn is a managed WebSocket connection: it owns a raw Client, feeds
// inbound frames to its Adapter, heartbeats, reconnects with exponential
// backoff, and correlates request/response commands by ID.
type Conn struct {
	cfg     ConnConfig
	adapter Adapter
	logger  *slog.Logger

	mu       sync.Mutex
	client   Client
	connGate chan struct{} // closed while connected
	closed   bool

	pendingMu sync.Mutex
	pending   map[string]chan []byte

	pingFails atomic.Int32

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewConn creates a managed connection. Start must be called before use.
func NewConn(cfg ConnConfig, adapter Adapter, logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.Default()
	}
	return &Conn{
		cfg:      cfg,
		adapter:  adapter,
		logger:   logger,
		connGate: make(chan struct{}),
		pending:  make(map[string]chan []byte),
		done:     make(chan struct{}),
	}
}

// Start dials the first connection and runs Resubscribe. A rate-limited
// handshake is retried for a bounded number of attempts, waiting the
// server's Retry-After when given and a jittered backoff step otherwise.
// Any other failure is returned immediately; reconnection only takes
// over after a link that was once up drops.
func (c *Conn) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrAlreadyClosed
	}
	if c.ctx == nil {
		c.ctx, c.cancel = context.WithCancel(context.WithoutCancel(ctx))
	}
	c.mu.Unlock()

	attempts := c.cfg.ConnectAttempts
	if attempts <= 0 {
		attempts = 1
	}
	b := &backoff.Backoff{
		Min:    c.cfg.ReconnectBaseWait,
		Max:    c.cfg.ReconnectMaxWait,
		Jitter: true,
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		err = c.connectOnce(ctx)
		if err == nil {
			return nil
		}

		var he *HandshakeError
		if !errors.As(err, &he) || he.StatusCode != http.StatusTooManyRequests {
			return err
		}
		if attempt == attempts-1 {
			break
		}

		wait := he.RetryAfter
		if wait <= 0 {
			wait = b.Duration()
		}
		c.logger.Warn("handshake rate limited",
			"attempt", attempt+1,
			"wait", wait,
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return ErrAlreadyClosed
		case <-time.After(wait):
		}
	}
	return err
}

// connectOnce establishes a fresh client, resubscribes, and spawns the
// pump and ping loops for it.
func (c *Conn) connectOnce(ctx context.Context) error {
	cl := NewClient(c.cfg.Client, c.logger)
	if err := cl.Connect(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		cl.Close()
		return ErrAlreadyClosed
	}
	c.client = cl
	select {
	case <-c.connGate:
	default:
		close(c.connGate)
	}
	c.mu.Unlock()

	c.pingFails.Store(0)

	if err := c.adapter.Resubscribe(ctx, cl.Send); err != nil {
		c.logger.Warn("resubscribe failed", "error", err)
		cl.Close()
		c.markDisconnected()
		return err
	}

	c.wg.Add(1)
	go c.pump(cl)

	if payload, interval := c.adapter.Heartbeat(); payload != nil && interval > 0 {
		c.wg.Add(1)
		go c.pingLoop(cl, payload, interval)
	}

	return nil
}

// pump feeds inbound frames to the adapter and owns disconnect detection
// for its client. Exactly one pump runs per live client, so reconnection
// is naturally single flight.
func (c *Conn) pump(cl Client) {
	defer c.wg.Done()

	for {
		select {
		case <-c.done:
			return

		case err := <-cl.Errors():
			c.logger.Warn("connection lost", "url", c.cfg.Client.URL, "error", err)
			c.markDisconnected()
			cl.Close()
			c.wg.Add(1)
			go c.reconnectLoop()
			return

		case msg, ok := <-cl.Messages():
			if !ok {
				return
			}
			c.pingFails.Store(0)
			c.adapter.HandleMessage(msg.Data, msg.ReceivedAt)
		}
	}
}

// pingLoop sends the adapter's heartbeat payload on a fixed cadence.
// Consecutive send failures beyond the limit kill the client, which the
// pump observes as a connection error.
func (c *Conn) pingLoop(cl Client, payload []byte, interval time.Duration) {
	defer c.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if !cl.IsConnected() {
				return
			}
			if err := cl.Send(payload); err != nil {
				fails := c.pingFails.Add(1)
				c.logger.Warn("heartbeat send failed",
					"fails", fails,
					"limit", c.cfg.PingFailLimit,
					"error", err,
				)
				if int(fails) >= c.cfg.PingFailLimit {
					cl.Close()
					return
				}
			}
		}
	}
}

// reconnectLoop redials with exponential backoff until the link is back or
// the Conn is closed. A 429 handshake rejection waits the server-requested
// duration instead of the backoff step.
func (c *Conn) reconnectLoop() {
	defer c.wg.Done()

	b := &backoff.Backoff{
		Min:    c.cfg.ReconnectBaseWait,
		Max:    c.cfg.ReconnectMaxWait,
		Jitter: true,
	}

	for {
		wait := b.Duration()

		select {
		case <-c.done:
			return
		case <-time.After(wait):
		}

		c.logger.Info("attempting reconnection", "url", c.cfg.Client.URL, "attempt", int(b.Attempt()))

		err := c.connectOnce(c.ctx)
		if err == nil {
			c.logger.Info("reconnected", "url", c.cfg.Client.URL)
			return
		}
		if errors.Is(err, ErrAlreadyClosed) {
			return
		}

		var he *HandshakeError
		if errors.As(err, &he) && he.RetryAfter > 0 {
			c.logger.Warn("handshake rate limited", "retry_after", he.RetryAfter)
			select {
			case <-c.done:
				return
			case <-time.After(he.RetryAfter):
			}
			b.Reset()
			continue
		}

		c.logger.Warn("reconnection failed", "error", err)
	}
}

// markDisconnected closes the gate, notifies the adapter, and fails every
// pending request.
func (c *Conn) markDisconnected() {
	c.mu.Lock()
	select {
	case <-c.connGate:
		c.connGate = make(chan struct{})
	default:
	}
	c.mu.Unlock()

	c.adapter.OnDisconnect()

	c.pendingMu.Lock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()
}

// awaitClient blocks until the connection is up, bounded by timeout.
func (c *Conn) awaitClient(timeout time.Duration) (Client, error) {
	deadline := time.Now().Add(timeout)
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return nil, ErrAlreadyClosed
		}
		gate := c.connGate
		cl := c.client
		c.mu.Unlock()

		select {
		case <-gate:
			if cl != nil && cl.IsConnected() {
				return cl, nil
			}
			// Gate closed but client already gone again; re-check.
			time.Sleep(10 * time.Millisecond)
		case <-c.done:
			return nil, ErrAlreadyClosed
		case <-time.After(time.Until(deadline)):
			return nil, ErrNotConnected
		}

		if time.Now().After(deadline) {
			return nil, ErrNotConnected
		}
	}
}

// Send writes one frame, waiting out an in-flight reconnect up to
// SendWaitTimeout.
func (c *Conn) Send(data []byte) error {
	cl, err := c.awaitClient(c.cfg.SendWaitTimeout)
	if err != nil {
		return err
	}
	return cl.Send(data)
}

// Request sends a correlated command and blocks for the response the
// adapter resolves under id. The pending slot is removed on every exit
// path.
func (c *Conn) Request(ctx context.Context, id string, payload []byte) ([]byte, error) {
	respCh := make(chan []byte, 1)

	c.pendingMu.Lock()
	c.pending[id] = respCh
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	if err := c.Send(payload); err != nil {
		return nil, err
	}

	timeout := c.cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(timeout):
		return nil, ErrTimeout
	case resp, ok := <-respCh:
		if !ok {
			return nil, ErrNotConnected
		}
		return resp, nil
	}
}

// Resolve delivers a response payload to the request waiting under id.
// It reports whether a waiter existed. Adapters call this from their
// message handlers.
func (c *Conn) Resolve(id string, data []byte) bool {
	c.pendingMu.Lock()
	ch, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()

	if ok {
		ch <- data
	}
	return ok
}

// IsConnected reports whether the underlying link is currently up.
func (c *Conn) IsConnected() bool {
	c.mu.Lock()
	cl := c.client
	c.mu.Unlock()
	return cl != nil && cl.IsConnected()
}

// Close shuts the connection down and stops reconnection. Idempotent.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cl := c.client
	c.mu.Unlock()

	close(c.done)
	if c.cancel != nil {
		c.cancel()
	}
	if cl != nil {
		cl.Close()
	}

	// Bounded wait so a stuck handler cannot hang shutdown.
	waited := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(5 * time.Second):
		c.logger.Warn("close timed out waiting for loops")
	}

	return nil
}
