package pacifica

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/singleflight"

	"github.com/taehong0-0/mpdex/internal/api"
	"github.com/taehong0-0/mpdex/internal/book"
	"github.com/taehong0-0/mpdex/internal/cache"
	"github.com/taehong0-0/mpdex/internal/connection"
	"github.com/taehong0-0/mpdex/internal/dispatch"
	"github.com/taehong0-0/mpdex/internal/exchange"
	"github.com/taehong0-0/mpdex/internal/model"
	"github.com/taehong0-0/mpdex/internal/quant"
)

func init() {
	exchange.Register(exchange.KindPacifica, New)
}

const defaultReadyTimeout = 10 * time.Second

// marketSpec is one listing's grid metadata from /info.
type marketSpec struct {
	Symbol      string `json:"symbol"`
	TickSize    string `json:"tick_size"`
	LotSize     string `json:"lot_size"`
	MaxLeverage int    `json:"max_leverage"`
}

type client struct {
	cfg     exchange.Config
	logger  *slog.Logger
	rest    *api.Client
	conn    *connection.Conn
	keypair *Keypair
	actions *dispatch.Dispatcher

	prices    *cache.Store[model.Price]
	positions *cache.Store[model.Position]

	ordersMu   sync.RWMutex
	openOrders []model.OpenOrder
	collMu     sync.RWMutex
	collateral model.Collateral

	pricesGate    *cache.Gate
	positionsGate *cache.Gate
	ordersGate    *cache.Gate
	accountGate   *cache.Gate

	booksMu   sync.Mutex
	books     map[string]*book.Book
	bookGates map[string]*cache.Gate

	specsMu sync.RWMutex
	specs   map[string]marketSpec
	sf      singleflight.Group
}

// New creates a connected Pacifica client. A PrivateKey in cfg enables
// signed trading; without one the client serves data only.
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
	logger = logger.With("venue", exchange.KindPacifica)

	var kp *Keypair
	if cfg.PrivateKey != "" {
		var err error
		kp, err = KeypairFromBase58(cfg.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("pacifica keypair: %w", err)
		}
	}

	c := &client{
		cfg:     cfg,
		logger:  logger,
		keypair: kp,
		rest: api.NewClient(cfg.RestURL,
			api.WithLogger(logger),
			api.WithProxy(cfg.Proxy),
			api.WithRateLimit(10, 20),
		),
		prices:        cache.NewStore[model.Price](nil),
		positions:     cache.NewStore[model.Position](nil),
		pricesGate:    cache.NewGate(),
		positionsGate: cache.NewGate(),
		ordersGate:    cache.NewGate(),
		accountGate:   cache.NewGate(),
		books:         make(map[string]*book.Book),
		bookGates:     make(map[string]*cache.Gate),
		specs:         make(map[string]marketSpec),
	}

	connCfg := connection.DefaultConnConfig()
	connCfg.Client.URL = cfg.WSURL
	connCfg.Client.Proxy = cfg.Proxy
	c.conn = connection.NewConn(connCfg, c, logger)

	if err := c.conn.Start(ctx); err != nil {
		return nil, fmt.Errorf("connect pacifica: %w", err)
	}

	c.actions = dispatch.New(
		dispatch.PosterFunc(c.postTradeWS),
		dispatch.WithFallback(dispatch.PosterFunc(c.postTradeREST)),
		dispatch.WithTerminal(exchange.IsRejected),
		dispatch.WithLogger(logger),
	)

	return c, nil
}

func (c *client) Kind() exchange.Kind { return exchange.KindPacifica }

// -----------------------------------------------------------------------------
// Accessors
// -----------------------------------------------------------------------------

func (c *client) GetMarkPrice(ctx context.Context, symbol string) (model.Price, error) {
	key := strings.ToUpper(symbol)

	if c.pricesGate.Wait(ctx, c.cfg.ReadyTimeout) {
		if p, ok := c.prices.Get(key); ok {
			return p, nil
		}
	}

	var items []priceItem
	if err := c.restData(ctx, "/info/prices", nil, &items); err != nil {
		return model.Price{}, fmt.Errorf("fetch prices: %w", err)
	}
	c.storePrices(items)

	if p, ok := c.prices.Get(key); ok {
		return p, nil
	}
	return model.Price{}, fmt.Errorf("%w: %s", exchange.ErrUnknownSymbol, symbol)
}

func (c *client) GetOrderbook(ctx context.Context, symbol string, depth int) (model.BookSnapshot, error) {
	key := strings.ToUpper(symbol)

	b, gate, fresh := c.ensureBook(key)
	if fresh {
		if err := c.subscribeBook(key); err != nil {
			c.logger.Warn("book subscribe failed", "symbol", key, "error", err)
		}
	}

	if gate.Wait(ctx, c.cfg.ReadyTimeout) {
		if snap, ok := b.Snapshot(depth); ok {
			return snap, nil
		}
	}

	var bd bookData
	if err := c.restData(ctx, "/book", url.Values{"symbol": {key}}, &bd); err != nil {
		return model.BookSnapshot{}, fmt.Errorf("fetch book: %w", err)
	}
	c.applyBook(bd)

	if snap, ok := b.Snapshot(depth); ok {
		return snap, nil
	}
	return model.BookSnapshot{}, exchange.ErrNotReady
}

func (c *client) GetPosition(ctx context.Context, symbol string) (model.Position, error) {
	if err := c.requireAccount(); err != nil {
		return model.Position{}, err
	}
	key := strings.ToUpper(symbol)

	if !c.positionsGate.Wait(ctx, c.cfg.ReadyTimeout) {
		var items []positionItem
		if err := c.restData(ctx, "/positions", url.Values{"account": {c.cfg.Account}}, &items); err != nil {
			return model.Position{}, fmt.Errorf("fetch positions: %w", err)
		}
		c.storePositions(items)
	}

	if p, ok := c.positions.Get(key); ok {
		return p, nil
	}
	return model.Position{Symbol: key, Side: model.SideFlat}, nil
}

func (c *client) GetOpenOrders(ctx context.Context, symbol string) ([]model.OpenOrder, error) {
	if err := c.requireAccount(); err != nil {
		return nil, err
	}

	if !c.ordersGate.Wait(ctx, c.cfg.ReadyTimeout) {
		var items []orderItem
		if err := c.restData(ctx, "/orders", url.Values{"account": {c.cfg.Account}}, &items); err != nil {
			return nil, fmt.Errorf("fetch orders: %w", err)
		}
		c.storeOrders(items)
	}

	key := strings.ToUpper(symbol)
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

func (c *client) GetCollateral(ctx context.Context) (model.Collateral, error) {
	if err := c.requireAccount(); err != nil {
		return model.Collateral{}, err
	}

	if c.accountGate.Wait(ctx, c.cfg.ReadyTimeout) {
		c.collMu.RLock()
		defer c.collMu.RUnlock()
		return c.collateral, nil
	}

	var info accountInfo
	if err := c.restData(ctx, "/account", url.Values{"account": {c.cfg.Account}}, &info); err != nil {
		return model.Collateral{}, fmt.Errorf("fetch account: %w", err)
	}
	c.storeAccountInfo(info)

	c.collMu.RLock()
	defer c.collMu.RUnlock()
	return c.collateral, nil
}

// -----------------------------------------------------------------------------
// Trading
// -----------------------------------------------------------------------------

func (c *client) CreateOrder(ctx context.Context, req model.OrderRequest) (model.OrderAck, error) {
	if err := c.requireTrading(); err != nil {
		return model.OrderAck{}, err
	}

	key := strings.ToUpper(req.Symbol)
	spec, err := c.lookupSpec(ctx, key)
	if err != nil {
		return model.OrderAck{}, err
	}

	side := "ask"
	if req.Side == model.SideLong {
		side = "bid"
	}
	cloid := req.ClientOrderID
	if cloid == "" {
		cloid = uuid.NewString()
	}
	amount := formatToGrid(req.Size, spec.LotSize, quant.RoundDown)

	var opType string
	var payload map[string]any
	if req.Type == model.OrderTypeMarket {
		opType = "create_market_order"
		slip := req.Slippage
		if slip <= 0 {
			slip = 0.05
		}
		payload = map[string]any{
			"symbol":           key,
			"side":             side,
			"amount":           amount,
			"reduce_only":      req.ReduceOnly,
			"slippage_percent": strconv.FormatFloat(slip*100, 'f', -1, 64),
			"client_order_id":  cloid,
		}
	} else {
		opType = "create_order"
		tif := req.TimeInForce
		if tif == "" {
			tif = "GTC"
		}
		payload = map[string]any{
			"symbol":          key,
			"side":            side,
			"amount":          amount,
			"price":           formatToGrid(req.Price, spec.TickSize, quant.RoundNearest),
			"reduce_only":     req.ReduceOnly,
			"tif":             tif,
			"client_order_id": cloid,
		}
	}

	resp, err := c.sendSigned(ctx, opType, payload)
	if err != nil {
		return model.OrderAck{}, err
	}

	ack := model.OrderAck{
		ClientOrderID: cloid,
		Symbol:        key,
		Status:        model.OrderStatusNew,
	}
	if oid := gjson.GetBytes(resp, "order_id"); oid.Exists() {
		ack.OrderID = oid.String()
	}
	return ack, nil
}

func (c *client) CancelOrders(ctx context.Context, symbol string, orderIDs []string) ([]model.CancelResult, error) {
	if err := c.requireTrading(); err != nil {
		return nil, err
	}
	key := strings.ToUpper(symbol)

	results := make([]model.CancelResult, len(orderIDs))
	for i, id := range orderIDs {
		results[i] = model.CancelResult{OrderID: id, Symbol: key}

		oid, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			results[i].Err = "invalid order id"
			continue
		}
		_, err = c.sendSigned(ctx, "cancel_order", map[string]any{
			"symbol":   key,
			"order_id": oid,
		})
		if err != nil {
			results[i].Err = err.Error()
			continue
		}
		results[i].OK = true
	}
	return results, nil
}

func (c *client) UpdateLeverage(ctx context.Context, symbol string, leverage int, _ bool) error {
	if err := c.requireTrading(); err != nil {
		return err
	}
	key := strings.ToUpper(symbol)

	spec, err := c.lookupSpec(ctx, key)
	if err != nil {
		return err
	}
	if leverage < 1 || (spec.MaxLeverage > 0 && leverage > spec.MaxLeverage) {
		return fmt.Errorf("leverage %d outside 1..%d for %s", leverage, spec.MaxLeverage, key)
	}

	_, err = c.sendSigned(ctx, "update_leverage", map[string]any{
		"symbol":   key,
		"leverage": leverage,
	})
	return err
}

func (c *client) Close() error {
	return c.conn.Close()
}

// -----------------------------------------------------------------------------
// Signed request plumbing
// -----------------------------------------------------------------------------

// actionPayload is the dispatcher-internal envelope carrying the operation
// type alongside the fully signed operation object.
type actionPayload struct {
	Type string          `json:"type"`
	Op   json.RawMessage `json:"op"`
}

// sendSigned signs payload for opType and dispatches it WS-first. It
// returns the response data on success.
func (c *client) sendSigned(ctx context.Context, opType string, payload map[string]any) (json.RawMessage, error) {
	ts := time.Now().UnixMilli()
	sig, err := c.keypair.signOperation(opType, ts, payload)
	if err != nil {
		return nil, fmt.Errorf("sign %s: %w", opType, err)
	}

	op := map[string]any{
		"account":       c.cfg.Account,
		"signature":     sig,
		"timestamp":     ts,
		"expiry_window": signatureExpiryMS,
	}
	if c.cfg.Agent != "" {
		op["agent_wallet"] = c.cfg.Agent
	}
	for k, v := range payload {
		op[k] = v
	}
	opRaw, err := json.Marshal(op)
	if err != nil {
		return nil, err
	}

	env, err := json.Marshal(actionPayload{Type: opType, Op: opRaw})
	if err != nil {
		return nil, err
	}
	return c.actions.Do(ctx, env)
}

// postTradeWS sends the operation over the socket and waits for the
// uuid-correlated response.
func (c *client) postTradeWS(ctx context.Context, env []byte) ([]byte, error) {
	var ap actionPayload
	if err := json.Unmarshal(env, &ap); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	frame, err := json.Marshal(tradeRequest{
		ID:     id,
		Params: map[string]json.RawMessage{ap.Type: ap.Op},
	})
	if err != nil {
		return nil, err
	}

	respRaw, err := c.conn.Request(ctx, id, frame)
	if err != nil {
		return nil, err
	}

	var resp tradeResponse
	if err := json.Unmarshal(respRaw, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal trade response: %w", err)
	}
	if resp.Err != "" {
		return nil, &exchange.RejectedError{
			Venue:  exchange.KindPacifica,
			Code:   strconv.Itoa(resp.Code),
			Reason: resp.Err,
		}
	}
	return resp.Data, nil
}

// postTradeREST delivers the same signed operation to the REST endpoint
// for its type.
func (c *client) postTradeREST(ctx context.Context, env []byte) ([]byte, error) {
	var ap actionPayload
	if err := json.Unmarshal(env, &ap); err != nil {
		return nil, err
	}

	path, ok := restPathFor(ap.Type)
	if !ok {
		return nil, fmt.Errorf("%w: %s over REST", exchange.ErrUnsupported, ap.Type)
	}

	body, err := c.rest.PostRaw(ctx, path, ap.Op)
	if err != nil {
		return nil, err
	}
	if ok := gjson.GetBytes(body, "success"); ok.Exists() && !ok.Bool() {
		return nil, &exchange.RejectedError{
			Venue:  exchange.KindPacifica,
			Reason: gjson.GetBytes(body, "error").String(),
		}
	}
	return []byte(gjson.GetBytes(body, "data").Raw), nil
}

func restPathFor(opType string) (string, bool) {
	switch opType {
	case "create_order":
		return "/orders/create", true
	case "create_market_order":
		return "/orders/create_market", true
	case "cancel_order":
		return "/orders/cancel", true
	case "cancel_all_orders":
		return "/orders/cancel_all", true
	case "update_leverage":
		return "/account/leverage", true
	}
	return "", false
}

// -----------------------------------------------------------------------------
// Specs and helpers
// -----------------------------------------------------------------------------

// lookupSpec resolves a symbol's grid metadata, fetching the market list
// once.
func (c *client) lookupSpec(ctx context.Context, symbol string) (marketSpec, error) {
	c.specsMu.RLock()
	spec, ok := c.specs[symbol]
	loaded := len(c.specs) > 0
	c.specsMu.RUnlock()
	if ok {
		return spec, nil
	}
	if loaded {
		return marketSpec{}, fmt.Errorf("%w: %s", exchange.ErrUnknownSymbol, symbol)
	}

	if _, err, _ := c.sf.Do("specs", func() (any, error) {
		var items []marketSpec
		if err := c.restData(ctx, "/info", nil, &items); err != nil {
			return nil, fmt.Errorf("fetch market info: %w", err)
		}
		c.specsMu.Lock()
		for _, s := range items {
			c.specs[strings.ToUpper(s.Symbol)] = s
		}
		c.specsMu.Unlock()
		return nil, nil
	}); err != nil {
		return marketSpec{}, err
	}

	c.specsMu.RLock()
	spec, ok = c.specs[symbol]
	c.specsMu.RUnlock()
	if !ok {
		return marketSpec{}, fmt.Errorf("%w: %s", exchange.ErrUnknownSymbol, symbol)
	}
	return spec, nil
}

// restData unwraps the venue's {"success","data"} envelope.
func (c *client) restData(ctx context.Context, path string, query url.Values, out any) error {
	var env struct {
		Success bool            `json:"success"`
		Error   string          `json:"error"`
		Data    json.RawMessage `json:"data"`
	}
	if err := c.rest.Get(ctx, path, query, &env); err != nil {
		return err
	}
	if !env.Success {
		return fmt.Errorf("pacifica api: %s", env.Error)
	}
	return json.Unmarshal(env.Data, out)
}

func (c *client) requireAccount() error {
	if c.cfg.Account == "" {
		return exchange.ErrNoCredentials
	}
	return nil
}

func (c *client) requireTrading() error {
	if c.cfg.Account == "" || c.keypair == nil {
		return exchange.ErrNoCredentials
	}
	return nil
}

// formatToGrid quantizes v onto the grid given by a decimal step string
// and renders it.
func formatToGrid(v float64, step string, r quant.Rounding) string {
	tick, err := decimal.NewFromString(step)
	if err != nil || tick.Sign() <= 0 {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return quant.Quantize(v, tick, r).String()
}
