package backpack

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/taehong0-0/mpdex/internal/api"
	"github.com/taehong0-0/mpdex/internal/book"
	"github.com/taehong0-0/mpdex/internal/cache"
	"github.com/taehong0-0/mpdex/internal/connection"
	"github.com/taehong0-0/mpdex/internal/exchange"
	"github.com/taehong0-0/mpdex/internal/model"
	"github.com/taehong0-0/mpdex/internal/quant"
)

func init() {
	exchange.Register(exchange.KindBackpack, New)
}

const defaultReadyTimeout = 10 * time.Second

// marketSpec is one perp listing's grid metadata from /markets.
type marketSpec struct {
	Symbol   string // wire symbol, e.g. SOL_USDC_PERP
	TickSize string
	StepSize string
}

type client struct {
	cfg     exchange.Config
	logger  *slog.Logger
	rest    *api.Client
	conn    *connection.Conn
	keypair *Keypair

	prices     *cache.Store[model.Price]
	priceSubs  map[string]*cache.Gate // display symbol -> gate
	positions  *cache.Store[model.Position]
	priceMu    sync.Mutex
	posGate    *cache.Gate
	ordersGate *cache.Gate

	ordersMu   sync.RWMutex
	openOrders map[string]model.OpenOrder // order id -> order

	booksMu    sync.Mutex
	books      map[string]*book.Book
	bookGates  map[string]*cache.Gate
	refetching map[string]bool

	specsMu sync.RWMutex
	specs   map[string]marketSpec
	sf      singleflight.Group
}

// New creates a connected Backpack client. An API key and base64 secret
// in cfg enable the private streams and trading; without them the client
// serves public data only.
func New(ctx context.Context, cfg exchange.Config) (exchange.Client, error) {
	if cfg.WSURL == "" {
		cfg.WSURL = DefaultWSURL
	}
	if cfg.RestURL == "" {
		cfg.RestURL = DefaultRestURL
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = defaultReadyTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("venue", exchange.KindBackpack)

	var kp *Keypair
	if cfg.PrivateKey != "" {
		var err error
		kp, err = KeypairFromBase64(cfg.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("backpack keypair: %w", err)
		}
	}

	restOpts := []api.ClientOption{
		api.WithLogger(logger),
		api.WithProxy(cfg.Proxy),
		api.WithRateLimit(10, 20),
	}
	if kp != nil {
		base, err := url.Parse(cfg.RestURL)
		if err != nil {
			return nil, fmt.Errorf("parse rest url: %w", err)
		}
		restOpts = append(restOpts, api.WithHeaderFunc(kp.headerFunc(cfg.Account, base.Path)))
	}

	c := &client{
		cfg:        cfg,
		logger:     logger,
		keypair:    kp,
		rest:       api.NewClient(cfg.RestURL, restOpts...),
		prices:     cache.NewStore[model.Price](nil),
		priceSubs:  make(map[string]*cache.Gate),
		positions:  cache.NewStore[model.Position](nil),
		posGate:    cache.NewGate(),
		ordersGate: cache.NewGate(),
		openOrders: make(map[string]model.OpenOrder),
		books:      make(map[string]*book.Book),
		bookGates:  make(map[string]*cache.Gate),
		refetching: make(map[string]bool),
		specs:      make(map[string]marketSpec),
	}

	connCfg := connection.DefaultConnConfig()
	connCfg.Client.URL = cfg.WSURL
	connCfg.Client.Proxy = cfg.Proxy
	// The server pings every 60s; allow one missed interval.
	connCfg.Client.StaleTimeout = 90 * time.Second
	c.conn = connection.NewConn(connCfg, c, logger)

	if err := c.conn.Start(ctx); err != nil {
		return nil, fmt.Errorf("connect backpack: %w", err)
	}

	return c, nil
}

func (c *client) Kind() exchange.Kind { return exchange.KindBackpack }

// wireSymbol maps a display coin to the venue's perp market symbol.
func wireSymbol(coin string) string {
	return strings.ToUpper(coin) + "_" + quoteAsset + "_PERP"
}

// displaySymbol maps a wire market symbol back to the coin.
func displaySymbol(market string) string {
	coin, _, _ := strings.Cut(market, "_")
	return strings.ToUpper(coin)
}

// -----------------------------------------------------------------------------
// Accessors
// -----------------------------------------------------------------------------

func (c *client) GetMarkPrice(ctx context.Context, symbol string) (model.Price, error) {
	key := strings.ToUpper(symbol)

	gate, fresh := c.ensurePriceSub(key)
	if fresh {
		if err := c.subscribe("markPrice." + wireSymbol(key)); err != nil {
			c.logger.Warn("price subscribe failed", "symbol", key, "error", err)
		}
	}

	if gate.Wait(ctx, c.cfg.ReadyTimeout) {
		if p, ok := c.prices.Get(key); ok {
			return p, nil
		}
	}

	var rows []wireMarkPrice
	if err := c.rest.Get(ctx, "/markPrices", url.Values{"symbol": {wireSymbol(key)}}, &rows); err != nil {
		return model.Price{}, fmt.Errorf("fetch mark price: %w", err)
	}
	if len(rows) == 0 {
		return model.Price{}, fmt.Errorf("%w: %s", exchange.ErrUnknownSymbol, symbol)
	}
	r := rows[0]
	p := model.Price{
		Symbol:    key,
		Mark:      f64(r.MarkPrice),
		Mid:       f64(r.MarkPrice),
		Oracle:    f64(r.IndexPrice),
		Funding:   f64(r.FundingRate),
		Timestamp: time.Now().UnixMilli(),
	}
	c.prices.Set(key, p)
	return p, nil
}

func (c *client) GetOrderbook(ctx context.Context, symbol string, depth int) (model.BookSnapshot, error) {
	key := strings.ToUpper(symbol)

	b, gate, fresh := c.ensureBook(key)
	if fresh {
		if err := c.subscribe("depth." + wireSymbol(key)); err != nil {
			c.logger.Warn("depth subscribe failed", "symbol", key, "error", err)
		}
		c.refetchSnapshot(key)
	}

	if gate.Wait(ctx, c.cfg.ReadyTimeout) {
		if snap, ok := b.Snapshot(depth); ok {
			return snap, nil
		}
	}

	if err := c.fetchSnapshot(ctx, key); err != nil {
		return model.BookSnapshot{}, err
	}
	if snap, ok := b.Snapshot(depth); ok {
		return snap, nil
	}
	return model.BookSnapshot{}, exchange.ErrNotReady
}

func (c *client) GetPosition(ctx context.Context, symbol string) (model.Position, error) {
	if err := c.requireCredentials(); err != nil {
		return model.Position{}, err
	}
	key := strings.ToUpper(symbol)

	if !c.posGate.Wait(ctx, c.cfg.ReadyTimeout) {
		var rows []wirePosition
		if err := c.rest.Get(ctx, "/position", nil, &rows); err != nil {
			return model.Position{}, fmt.Errorf("fetch positions: %w", err)
		}
		for _, row := range rows {
			c.storeRESTPosition(row)
		}
	}

	if p, ok := c.positions.Get(key); ok {
		return p, nil
	}
	return model.Position{Symbol: key, Side: model.SideFlat}, nil
}

func (c *client) GetOpenOrders(ctx context.Context, symbol string) ([]model.OpenOrder, error) {
	if err := c.requireCredentials(); err != nil {
		return nil, err
	}
	key := strings.ToUpper(symbol)

	if c.ordersGate.Wait(ctx, c.cfg.ReadyTimeout) {
		c.ordersMu.RLock()
		defer c.ordersMu.RUnlock()
		out := make([]model.OpenOrder, 0, len(c.openOrders))
		for _, o := range c.openOrders {
			if symbol == "" || o.Symbol == key {
				out = append(out, o)
			}
		}
		return out, nil
	}

	query := url.Values{"marketType": {"PERP"}}
	if symbol != "" {
		query.Set("symbol", wireSymbol(key))
	}
	var rows []wireOrder
	if err := c.rest.Get(ctx, "/orders", query, &rows); err != nil {
		return nil, fmt.Errorf("fetch orders: %w", err)
	}
	out := make([]model.OpenOrder, 0, len(rows))
	for _, row := range rows {
		out = append(out, orderFromWire(row))
	}
	return out, nil
}

func (c *client) GetCollateral(ctx context.Context) (model.Collateral, error) {
	if err := c.requireCredentials(); err != nil {
		return model.Collateral{}, err
	}

	var coll wireCollateral
	if err := c.rest.Get(ctx, "/capital/collateral", nil, &coll); err != nil {
		return model.Collateral{}, fmt.Errorf("fetch collateral: %w", err)
	}

	out := model.Collateral{
		Total:     f64(coll.AssetsValue),
		Available: f64(coll.NetEquityAvailable),
		Timestamp: time.Now().UnixMilli(),
	}
	for _, a := range coll.Collateral {
		out.Assets = append(out.Assets, model.AssetBalance{
			Asset:     a.Symbol,
			Total:     f64(a.TotalQuantity),
			Available: f64(a.AvailableValue),
		})
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Trading (REST only; the venue has no socket trading path)
// -----------------------------------------------------------------------------

func (c *client) CreateOrder(ctx context.Context, req model.OrderRequest) (model.OrderAck, error) {
	if err := c.requireCredentials(); err != nil {
		return model.OrderAck{}, err
	}
	key := strings.ToUpper(req.Symbol)

	spec, err := c.lookupSpec(ctx, key)
	if err != nil {
		return model.OrderAck{}, err
	}

	side := "Ask"
	if req.Side == model.SideLong {
		side = "Bid"
	}
	clientID, err := clientIDFrom(req.ClientOrderID)
	if err != nil {
		return model.OrderAck{}, err
	}

	body := map[string]any{
		"clientId": clientID,
		"symbol":   spec.Symbol,
		"side":     side,
		"quantity": formatToGrid(req.Size, spec.StepSize, quant.RoundDown),
	}
	if req.Type == model.OrderTypeMarket {
		body["orderType"] = "Market"
	} else {
		body["orderType"] = "Limit"
		body["price"] = formatToGrid(req.Price, spec.TickSize, quant.RoundNearest)
		if req.TimeInForce != "" {
			body["timeInForce"] = req.TimeInForce
		}
	}
	if req.ReduceOnly {
		body["reduceOnly"] = true
	}

	var placed wireOrder
	if err := c.rest.Post(ctx, "/order", body, &placed); err != nil {
		return model.OrderAck{}, rejectionFrom(err)
	}

	o := orderFromWire(placed)
	return model.OrderAck{
		OrderID:       placed.ID,
		ClientOrderID: strconv.FormatUint(uint64(clientID), 10),
		Symbol:        key,
		Status:        o.Status,
		FilledSize:    o.FilledSize,
	}, nil
}

func (c *client) CancelOrders(ctx context.Context, symbol string, orderIDs []string) ([]model.CancelResult, error) {
	if err := c.requireCredentials(); err != nil {
		return nil, err
	}
	key := strings.ToUpper(symbol)
	wire := wireSymbol(key)

	results := make([]model.CancelResult, len(orderIDs))
	for i, id := range orderIDs {
		results[i] = model.CancelResult{OrderID: id, Symbol: key}

		body := map[string]any{"orderId": id, "symbol": wire}
		if err := c.rest.Delete(ctx, "/order", body, nil); err != nil {
			results[i].Err = rejectionFrom(err).Error()
			continue
		}
		results[i].OK = true
	}
	return results, nil
}

// UpdateLeverage is unsupported: the venue margins at the account level
// and exposes no per-symbol leverage endpoint.
func (c *client) UpdateLeverage(ctx context.Context, symbol string, leverage int, cross bool) error {
	return fmt.Errorf("%w: leverage on backpack", exchange.ErrUnsupported)
}

func (c *client) Close() error {
	return c.conn.Close()
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func (c *client) requireCredentials() error {
	if c.cfg.Account == "" || c.keypair == nil {
		return exchange.ErrNoCredentials
	}
	return nil
}

// lookupSpec resolves a coin's perp grid metadata, fetching the market
// list once.
func (c *client) lookupSpec(ctx context.Context, coin string) (marketSpec, error) {
	c.specsMu.RLock()
	spec, ok := c.specs[coin]
	loaded := len(c.specs) > 0
	c.specsMu.RUnlock()
	if ok {
		return spec, nil
	}
	if loaded {
		return marketSpec{}, fmt.Errorf("%w: %s", exchange.ErrUnknownSymbol, coin)
	}

	if _, err, _ := c.sf.Do("markets", func() (any, error) {
		var rows []wireMarket
		if err := c.rest.Get(ctx, "/markets", nil, &rows); err != nil {
			return nil, fmt.Errorf("fetch markets: %w", err)
		}
		c.specsMu.Lock()
		for _, m := range rows {
			if m.MarketType != "PERP" {
				continue
			}
			c.specs[strings.ToUpper(m.BaseSymbol)] = marketSpec{
				Symbol:   m.Symbol,
				TickSize: m.Filters.Price.TickSize,
				StepSize: m.Filters.Quantity.StepSize,
			}
		}
		c.specsMu.Unlock()
		return nil, nil
	}); err != nil {
		return marketSpec{}, err
	}

	c.specsMu.RLock()
	spec, ok = c.specs[coin]
	c.specsMu.RUnlock()
	if !ok {
		return marketSpec{}, fmt.Errorf("%w: %s", exchange.ErrUnknownSymbol, coin)
	}
	return spec, nil
}

// rejectionFrom converts a definitive REST refusal into a RejectedError;
// transport-level failures pass through unchanged.
func rejectionFrom(err error) error {
	var apiErr *api.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 && apiErr.StatusCode != 429 {
		return &exchange.RejectedError{
			Venue:  exchange.KindBackpack,
			Code:   fmt.Sprintf("%d", apiErr.StatusCode),
			Reason: strings.TrimSpace(string(apiErr.Body)),
		}
	}
	return err
}

func orderFromWire(row wireOrder) model.OpenOrder {
	side := model.SideShort
	if row.Side == "Bid" {
		side = model.SideLong
	}
	return model.OpenOrder{
		OrderID:       row.ID,
		ClientOrderID: row.ClientID.String(),
		Symbol:        displaySymbol(row.Symbol),
		Side:          side,
		Price:         f64(row.Price),
		Size:          f64(row.Quantity),
		FilledSize:    f64(row.ExecutedQuantity),
		Status:        statusFromWire(row.Status),
		Timestamp:     row.CreatedAt,
	}
}

func statusFromWire(s string) model.OrderStatus {
	switch s {
	case "Filled":
		return model.OrderStatusFilled
	case "Cancelled":
		return model.OrderStatusCancelled
	case "Expired":
		return model.OrderStatusExpired
	case "PartiallyFilled":
		return model.OrderStatusPartiallyFilled
	default:
		return model.OrderStatusNew
	}
}

// clientIDFrom parses or derives the 32-bit numeric client order id the
// venue's clientId field accepts. Numeric ids pass through; other ids
// hash to a stable value so a retried request reuses the same clientId.
func clientIDFrom(s string) (uint32, error) {
	if s == "" {
		id := uuid.New()
		return uint32(id[0])<<24 | uint32(id[1])<<16 | uint32(id[2])<<8 | uint32(id[3]), nil
	}
	if n, err := strconv.ParseUint(s, 10, 32); err == nil {
		return uint32(n), nil
	}
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32(), nil
}

// formatToGrid quantizes v onto the grid given by a decimal step string
// and renders it.
func formatToGrid(v float64, step string, r quant.Rounding) string {
	tick, err := decimal.NewFromString(step)
	if err != nil || tick.Sign() <= 0 {
		return decimal.NewFromFloat(v).String()
	}
	return quant.Quantize(v, tick, r).String()
}
