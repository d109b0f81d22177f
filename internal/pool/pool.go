package pool

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/taehong0-0/mpdex/internal/exchange"
)

// entry is one pooled client with its interest count.
type entry struct {
	client exchange.Client
	refs   int
}

// Pool caches venue clients by account identity.
type Pool struct {
	mu      sync.Mutex
	entries map[string]*entry
	logger  *slog.Logger

	// construct is swappable for tests; defaults to exchange.New.
	construct func(context.Context, exchange.Kind, exchange.Config) (exchange.Client, error)
}

// New creates an empty pool.
func New(logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		entries:   make(map[string]*entry),
		logger:    logger,
		construct: exchange.New,
	}
}

// key derives the pool identity: venue plus lowercased account, or a
// shared public slot when no account is configured.
func key(kind exchange.Kind, cfg exchange.Config) string {
	account := strings.ToLower(cfg.Account)
	if account == "" {
		account = "public"
	}
	return string(kind) + "/" + account
}

// Acquire returns the pooled client for the identity in cfg, constructing
// and connecting one on first use. Concurrent acquires for the same
// identity return the same instance.
func (p *Pool) Acquire(ctx context.Context, kind exchange.Kind, cfg exchange.Config) (exchange.Client, error) {
	k := key(kind, cfg)

	p.mu.Lock()
	defer p.mu.Unlock()

	if e, ok := p.entries[k]; ok {
		e.refs++
		return e.client, nil
	}

	c, err := p.construct(ctx, kind, cfg)
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", k, err)
	}
	p.entries[k] = &entry{client: c, refs: 1}
	p.logger.Info("pooled new client", "key", k)
	return c, nil
}

// Release drops one interest in the identity. The socket stays warm for
// the next Acquire; only CloseAll tears connections down.
func (p *Pool) Release(kind exchange.Kind, cfg exchange.Config) {
	k := key(kind, cfg)

	p.mu.Lock()
	defer p.mu.Unlock()

	if e, ok := p.entries[k]; ok && e.refs > 0 {
		e.refs--
	}
}

// Len returns the number of pooled clients.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// CloseAll closes every pooled client concurrently and empties the pool,
// returning the first close error.
func (p *Pool) CloseAll() error {
	p.mu.Lock()
	entries := p.entries
	p.entries = make(map[string]*entry)
	p.mu.Unlock()

	var g errgroup.Group
	for k, e := range entries {
		g.Go(func() error {
			if err := e.client.Close(); err != nil {
				return fmt.Errorf("close %s: %w", k, err)
			}
			return nil
		})
	}
	return g.Wait()
}
