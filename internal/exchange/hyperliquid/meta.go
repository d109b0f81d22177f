package hyperliquid

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/taehong0-0/mpdex/internal/api"
	"github.com/taehong0-0/mpdex/internal/exchange"
	"github.com/taehong0-0/mpdex/internal/symbol"
)

// Asset is one tradeable perp's listing metadata.
type Asset struct {
	Coin        string
	Wire        string // Listing name as published, case preserved for subscriptions
	ID          int    // Wire asset id, offset for builder-deployed universes
	SzDecimals  int
	PxDecimals  int
	MaxLeverage int
}

// builderDexBase is the asset id offset for builder-deployed perp
// universes: 100000 + dexIndex*10000 + universe index.
const builderDexBase = 100000

// Catalog resolves coins to asset metadata, fetched once per universe and
// shared by every lookup. Concurrent cold lookups collapse into a single
// fetch.
type Catalog struct {
	rest   *api.Client
	logger *slog.Logger

	mu        sync.RWMutex
	assets    map[string]Asset // key "COIN" or "dex:COIN"
	dexLoaded map[string]bool  // universes already fetched ("" = default)

	sf singleflight.Group
}

// Shared catalogs, one per REST endpoint. Every client against the same
// endpoint references one copy of the listing metadata instead of
// refetching it per connection.
var (
	sharedMu       sync.Mutex
	sharedCatalogs = make(map[string]*Catalog)
)

// SharedCatalog returns the process-wide catalog for rest's endpoint,
// creating it on first use.
func SharedCatalog(rest *api.Client, logger *slog.Logger) *Catalog {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	c, ok := sharedCatalogs[rest.BaseURL()]
	if !ok {
		c = NewCatalog(rest, logger)
		sharedCatalogs[rest.BaseURL()] = c
	}
	return c
}

// NewCatalog creates an empty catalog backed by rest.
func NewCatalog(rest *api.Client, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{
		rest:      rest,
		logger:    logger,
		assets:    make(map[string]Asset),
		dexLoaded: make(map[string]bool),
	}
}

// Lookup resolves symbol ("COIN" or "dex:COIN") to its asset metadata,
// fetching the owning universe on first miss.
func (c *Catalog) Lookup(ctx context.Context, symbol string) (Asset, error) {
	key := normalizeSymbol(symbol)

	c.mu.RLock()
	a, ok := c.assets[key]
	loaded := c.dexLoaded[dexOf(key)]
	c.mu.RUnlock()
	if ok {
		return a, nil
	}
	if loaded {
		return Asset{}, fmt.Errorf("%w: %s", exchange.ErrUnknownSymbol, symbol)
	}

	dex := dexOf(key)
	if _, err, _ := c.sf.Do("meta:"+dex, func() (any, error) {
		return nil, c.loadUniverse(ctx, dex)
	}); err != nil {
		return Asset{}, err
	}

	c.mu.RLock()
	a, ok = c.assets[key]
	c.mu.RUnlock()
	if !ok {
		return Asset{}, fmt.Errorf("%w: %s", exchange.ErrUnknownSymbol, symbol)
	}
	return a, nil
}

// WireName returns the case-sensitive coin name the venue expects on the
// wire for a normalized symbol, falling back to the key itself before the
// owning universe is loaded.
func (c *Catalog) WireName(key string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if a, ok := c.assets[key]; ok && a.Wire != "" {
		return a.Wire
	}
	return key
}

// ForceRefresh refetches every universe previously loaded. Used after
// listings change.
func (c *Catalog) ForceRefresh(ctx context.Context) error {
	c.mu.RLock()
	dexes := make([]string, 0, len(c.dexLoaded))
	for d := range c.dexLoaded {
		dexes = append(dexes, d)
	}
	c.mu.RUnlock()

	for _, d := range dexes {
		if _, err, _ := c.sf.Do("refresh:"+d, func() (any, error) {
			return nil, c.loadUniverse(ctx, d)
		}); err != nil {
			return err
		}
	}
	return nil
}

// loadUniverse fetches the meta for one universe and installs its assets.
func (c *Catalog) loadUniverse(ctx context.Context, dex string) error {
	offset := 0
	if dex != "" {
		idx, err := c.dexIndex(ctx, dex)
		if err != nil {
			return err
		}
		offset = builderDexBase + idx*10000
	}

	var meta metaResponse
	req := map[string]string{"type": "meta"}
	if dex != "" {
		req["dex"] = dex
	}
	if err := c.rest.Post(ctx, "/info", req, &meta); err != nil {
		return fmt.Errorf("fetch meta: %w", err)
	}

	c.mu.Lock()
	for i, u := range meta.Universe {
		if u.IsDelisted {
			continue
		}
		coin := strings.ToUpper(u.Name)
		key := coin
		if dex != "" {
			key = dex + ":" + coin
		}
		c.assets[key] = Asset{
			Coin:        coin,
			Wire:        u.Name,
			ID:          offset + i,
			SzDecimals:  u.SzDecimals,
			PxDecimals:  maxPerpDecimals - u.SzDecimals,
			MaxLeverage: u.MaxLeverage,
		}
	}
	c.dexLoaded[dex] = true
	c.mu.Unlock()

	c.logger.Debug("universe loaded",
		"dex", dex,
		"assets", len(meta.Universe),
		"at", time.Now(),
	)
	return nil
}

// dexIndex resolves a builder dex name to its position in the perpDexs
// list.
func (c *Catalog) dexIndex(ctx context.Context, dex string) (int, error) {
	var dexes []*perpDex
	if err := c.rest.Post(ctx, "/info", map[string]string{"type": "perpDexs"}, &dexes); err != nil {
		return 0, fmt.Errorf("fetch perp dexs: %w", err)
	}
	for i, d := range dexes {
		if d != nil && strings.EqualFold(d.Name, dex) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: dex %q", exchange.ErrUnknownSymbol, dex)
}

// normalizeSymbol lowercases the dex part and uppercases the coin.
func normalizeSymbol(raw string) string {
	return symbol.Normalize(raw)
}

// dexOf returns the dex part of a normalized symbol, empty for the
// default universe.
func dexOf(key string) string {
	return symbol.Parse(key).Venue
}
