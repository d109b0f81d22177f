// Package dispatch sends signed trading actions over a primary low-latency
// path with bounded retries and an optional fallback transport. Definitive
// venue rejections stop the retry loop immediately; only transport-level
// failures are retried.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Poster delivers one action payload and returns the raw response.
type Poster interface {
	Post(ctx context.Context, payload []byte) ([]byte, error)
}

// PosterFunc adapts a function to the Poster interface.
type PosterFunc func(ctx context.Context, payload []byte) ([]byte, error)

func (f PosterFunc) Post(ctx context.Context, payload []byte) ([]byte, error) {
	return f(ctx, payload)
}

// ErrExhausted wraps the last failure after every attempt on every
// transport failed.
var ErrExhausted = errors.New("all dispatch attempts failed")

// Dispatcher routes actions primary-first with retry and fallback.
type Dispatcher struct {
	primary  Poster
	fallback Poster // nil disables fallback
	terminal func(error) bool
	attempts int
	backoff  time.Duration
	logger   *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithFallback installs the secondary transport tried after the primary is
// exhausted.
func WithFallback(p Poster) Option {
	return func(d *Dispatcher) { d.fallback = p }
}

// WithAttempts sets per-transport attempts and the initial backoff between
// them. Backoff doubles each retry.
func WithAttempts(n int, backoff time.Duration) Option {
	return func(d *Dispatcher) {
		d.attempts = n
		d.backoff = backoff
	}
}

// WithTerminal sets the predicate for errors that must not be retried,
// typically venue order rejections.
func WithTerminal(fn func(error) bool) Option {
	return func(d *Dispatcher) { d.terminal = fn }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// New creates a Dispatcher with primary as the first-choice transport.
func New(primary Poster, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		primary:  primary,
		attempts: 3,
		backoff:  250 * time.Millisecond,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Do delivers payload. The primary transport gets the configured attempts
// with doubling backoff; if all fail on transport errors the fallback gets
// the same treatment. A terminal error on either path returns immediately.
func (d *Dispatcher) Do(ctx context.Context, payload []byte) ([]byte, error) {
	resp, err := d.post(ctx, d.primary, "primary", payload)
	if err == nil || d.isTerminal(err) || d.fallback == nil {
		return resp, err
	}

	d.logger.Warn("primary transport exhausted, falling back", "error", err)

	resp, err = d.post(ctx, d.fallback, "fallback", payload)
	if err == nil || d.isTerminal(err) {
		return resp, err
	}
	return nil, err
}

func (d *Dispatcher) isTerminal(err error) bool {
	return d.terminal != nil && d.terminal(err)
}

func (d *Dispatcher) post(ctx context.Context, p Poster, name string, payload []byte) ([]byte, error) {
	var lastErr error
	wait := d.backoff

	for attempt := 1; attempt <= d.attempts; attempt++ {
		if attempt > 1 {
			d.logger.Debug("retrying action",
				"transport", name,
				"attempt", attempt,
				"backoff", wait,
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
			wait *= 2
		}

		resp, err := p.Post(ctx, payload)
		if err == nil {
			return resp, nil
		}
		if d.isTerminal(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		lastErr = err
	}

	return nil, errors.Join(ErrExhausted, lastErr)
}
