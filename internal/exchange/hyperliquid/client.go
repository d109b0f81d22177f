package hyperliquid

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

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
	exchange.Register(exchange.KindHyperliquid, func(ctx context.Context, cfg exchange.Config) (exchange.Client, error) {
		var signer Signer
		key := cfg.Agent
		if key == "" {
			key = cfg.PrivateKey
		}
		if key != "" {
			testnet := strings.Contains(cfg.RestURL, "testnet") || strings.Contains(cfg.WSURL, "testnet")
			ws, err := NewWalletSigner(key, testnet)
			if err != nil {
				return nil, fmt.Errorf("hyperliquid signer: %w", err)
			}
			signer = ws
		}
		return New(ctx, cfg, signer)
	})
}

const defaultReadyTimeout = 10 * time.Second

type client struct {
	cfg     exchange.Config
	logger  *slog.Logger
	rest    *api.Client
	catalog *Catalog
	conn    *connection.Conn
	signer  Signer
	actions *dispatch.Dispatcher

	prices     *cache.Store[model.Price]
	positions  *cache.Store[model.Position]
	ordersMu   sync.RWMutex
	openOrders []model.OpenOrder
	collMu     sync.RWMutex
	collateral model.Collateral

	midsGate    *cache.Gate
	accountGate *cache.Gate

	booksMu   sync.Mutex
	books     map[string]*book.Book // key: normalized symbol
	bookGates map[string]*cache.Gate

	leverageMu  sync.Mutex
	leverageSet map[string]int

	builderAddr string

	postID atomic.Int64
}

// New creates a connected Hyperliquid client. signer may be nil for a
// data-only client; trading operations then fail with ErrNoCredentials.
func New(ctx context.Context, cfg exchange.Config, signer Signer) (exchange.Client, error) {
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
	logger = logger.With("venue", exchange.KindHyperliquid)

	rest := api.NewClient(cfg.RestURL,
		api.WithLogger(logger),
		api.WithProxy(cfg.Proxy),
		api.WithRateLimit(10, 20),
	)

	c := &client{
		cfg:         cfg,
		logger:      logger,
		rest:        rest,
		catalog:     SharedCatalog(rest, logger),
		signer:      signer,
		prices:      cache.NewStore[model.Price](nil),
		positions:   cache.NewStore[model.Position](nil),
		midsGate:    cache.NewGate(),
		accountGate: cache.NewGate(),
		books:       make(map[string]*book.Book),
		bookGates:   make(map[string]*cache.Gate),
		leverageSet: make(map[string]int),
		builderAddr: resolveBuilderCode(cfg.BuilderCode),
	}

	connCfg := connection.DefaultConnConfig()
	connCfg.Client.URL = cfg.WSURL
	connCfg.Client.Proxy = cfg.Proxy
	c.conn = connection.NewConn(connCfg, c, logger)

	if err := c.conn.Start(ctx); err != nil {
		return nil, fmt.Errorf("connect hyperliquid: %w", err)
	}

	c.actions = dispatch.New(
		dispatch.PosterFunc(c.postActionWS),
		dispatch.WithFallback(dispatch.PosterFunc(c.postActionREST)),
		dispatch.WithTerminal(exchange.IsRejected),
		dispatch.WithLogger(logger),
	)

	return c, nil
}

func (c *client) Kind() exchange.Kind { return exchange.KindHyperliquid }

// -----------------------------------------------------------------------------
// Accessors
// -----------------------------------------------------------------------------

func (c *client) GetMarkPrice(ctx context.Context, symbol string) (model.Price, error) {
	key := normalizeSymbol(symbol)

	if c.midsGate.Wait(ctx, c.cfg.ReadyTimeout) {
		if p, ok := c.prices.Get(key); ok {
			return p, nil
		}
	}

	// Stream has nothing for this symbol yet; ask REST directly.
	req := map[string]string{"type": "allMids"}
	if dex := dexOf(key); dex != "" {
		req["dex"] = dex
	}
	var mids map[string]string
	if err := c.rest.Post(ctx, "/info", req, &mids); err != nil {
		return model.Price{}, fmt.Errorf("fetch mids: %w", err)
	}
	c.storeMids(mids, time.Now().UnixMilli())

	if p, ok := c.prices.Get(key); ok {
		return p, nil
	}
	return model.Price{}, fmt.Errorf("%w: %s", exchange.ErrUnknownSymbol, symbol)
}

func (c *client) GetOrderbook(ctx context.Context, symbol string, depth int) (model.BookSnapshot, error) {
	key := normalizeSymbol(symbol)

	b, gate, fresh := c.ensureBook(key)
	if fresh {
		// Resolve the listing first: subscriptions need the original
		// case-sensitive name.
		if _, err := c.catalog.Lookup(ctx, key); err != nil {
			return model.BookSnapshot{}, err
		}
		if err := c.subscribeBook(key); err != nil {
			c.logger.Warn("book subscribe failed", "symbol", key, "error", err)
		}
	}

	if gate.Wait(ctx, c.cfg.ReadyTimeout) {
		if snap, ok := b.Snapshot(depth); ok {
			return snap, nil
		}
	}

	// REST snapshot while the stream warms up.
	var data l2BookData
	req := map[string]string{"type": "l2Book", "coin": c.wireCoin(key)}
	if err := c.rest.Post(ctx, "/info", req, &data); err != nil {
		return model.BookSnapshot{}, fmt.Errorf("fetch l2 book: %w", err)
	}
	c.applyBook(key, data)

	if snap, ok := b.Snapshot(depth); ok {
		return snap, nil
	}
	return model.BookSnapshot{}, exchange.ErrNotReady
}

func (c *client) GetPosition(ctx context.Context, symbol string) (model.Position, error) {
	key := normalizeSymbol(symbol)

	if err := c.requireAccount(); err != nil {
		return model.Position{}, err
	}
	if !c.accountGate.Wait(ctx, c.cfg.ReadyTimeout) {
		if err := c.refreshAccountREST(ctx); err != nil {
			return model.Position{}, err
		}
	}

	if p, ok := c.positions.Get(key); ok {
		return p, nil
	}
	// Known account, no entry: the position is flat.
	return model.Position{Symbol: key, Side: model.SideFlat}, nil
}

func (c *client) GetOpenOrders(ctx context.Context, symbol string) ([]model.OpenOrder, error) {
	if err := c.requireAccount(); err != nil {
		return nil, err
	}
	if !c.accountGate.Wait(ctx, c.cfg.ReadyTimeout) {
		if err := c.refreshAccountREST(ctx); err != nil {
			return nil, err
		}
	}

	key := normalizeSymbol(symbol)
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

	// Aggregate REST clearinghouse state across the universes in use.
	return c.fetchCollateralREST(ctx)
}

// fetchCollateralREST sums account value and withdrawable across the
// default universe and the configured builder dex, fetched in parallel.
func (c *client) fetchCollateralREST(ctx context.Context) (model.Collateral, error) {
	dexes := []string{""}
	if c.cfg.Dex != "" {
		dexes = append(dexes, c.cfg.Dex)
	}

	states := make([]clearinghouseState, len(dexes))
	var spot spotClearinghouseState
	g, gctx := errgroup.WithContext(ctx)
	for i, dex := range dexes {
		g.Go(func() error {
			req := map[string]string{"type": "clearinghouseState", "user": c.cfg.Account}
			if dex != "" {
				req["dex"] = dex
			}
			return c.rest.Post(gctx, "/info", req, &states[i])
		})
	}
	g.Go(func() error {
		req := map[string]string{"type": "spotClearinghouseState", "user": c.cfg.Account}
		return c.rest.Post(gctx, "/info", req, &spot)
	})
	if err := g.Wait(); err != nil {
		return model.Collateral{}, fmt.Errorf("fetch clearinghouse state: %w", err)
	}

	var coll model.Collateral
	for _, st := range states {
		coll.Total += f64(st.MarginSummary.AccountValue)
		coll.Available += f64(st.Withdrawable)
	}
	coll.Assets = []model.AssetBalance{{
		Asset:     "USDC",
		Total:     coll.Total,
		Available: coll.Available,
	}}
	for _, b := range spot.Balances {
		total := f64(b.Total)
		if total == 0 {
			continue
		}
		coll.Assets = append(coll.Assets, model.AssetBalance{
			Asset:     displayCoin(b.Coin),
			Total:     total,
			Available: total - f64(b.Hold),
		})
	}
	coll.Timestamp = time.Now().UnixMilli()
	return coll, nil
}

// displayCoin maps wire coin names to their display aliases.
func displayCoin(coin string) string {
	if coin == "USDT0" {
		return "USDT"
	}
	return coin
}

// -----------------------------------------------------------------------------
// Trading
// -----------------------------------------------------------------------------

func (c *client) CreateOrder(ctx context.Context, req model.OrderRequest) (model.OrderAck, error) {
	if c.signer == nil {
		return model.OrderAck{}, exchange.ErrNoCredentials
	}

	key := normalizeSymbol(req.Symbol)
	asset, err := c.catalog.Lookup(ctx, key)
	if err != nil {
		return model.OrderAck{}, err
	}

	isBuy := req.Side == model.SideLong
	px := req.Price
	tif := req.TimeInForce
	if tif == "" {
		tif = "Gtc"
	}

	if req.Type == model.OrderTypeMarket {
		// Marketable limit: cross the spread by the slippage fraction.
		mark, err := c.GetMarkPrice(ctx, key)
		if err != nil {
			return model.OrderAck{}, fmt.Errorf("market order pricing: %w", err)
		}
		slip := req.Slippage
		if slip <= 0 {
			slip = 0.05
		}
		if isBuy {
			px = mark.Mid * (1 + slip)
		} else {
			px = mark.Mid * (1 - slip)
		}
		px, _ = quant.QuantizeDecimals(px, asset.PxDecimals, quant.MarketableRounding(isBuy)).Float64()
		tif = "Ioc"
	}

	cloid := req.ClientOrderID
	if cloid == "" {
		cloid = newCloid()
	}

	action := orderAction{
		Type: "order",
		Orders: []wireOrder{{
			Asset:      asset.ID,
			IsBuy:      isBuy,
			Price:      quant.FormatPrice(px, asset.PxDecimals),
			Size:       quant.FormatSize(req.Size, asset.SzDecimals),
			ReduceOnly: req.ReduceOnly,
			Type:       orderKind{Limit: &limitKind{Tif: tif}},
			Cloid:      cloid,
		}},
		Grouping: "na",
	}
	if c.builderAddr != "" {
		action.Builder = &builderFee{
			Builder: c.builderAddr,
			Fee:     pickBuilderFee(c.cfg.BuilderFeeRates, c.cfg.BuilderFeeRate, dexOf(key)),
		}
	}

	resp, err := c.sendAction(ctx, action)
	if err != nil {
		return model.OrderAck{}, err
	}

	if len(resp.Response.Data.Statuses) == 0 {
		return model.OrderAck{}, fmt.Errorf("order response carried no status")
	}
	st := resp.Response.Data.Statuses[0]
	switch {
	case st.Error != "":
		return model.OrderAck{}, &exchange.RejectedError{
			Venue:  exchange.KindHyperliquid,
			Reason: st.Error,
		}
	case st.Filled != nil:
		return model.OrderAck{
			OrderID:       strconv.FormatInt(st.Filled.Oid, 10),
			ClientOrderID: cloid,
			Symbol:        key,
			Status:        model.OrderStatusFilled,
			FilledSize:    f64(st.Filled.TotalSz),
			AvgPrice:      f64(st.Filled.AvgPx),
		}, nil
	case st.Resting != nil:
		return model.OrderAck{
			OrderID:       strconv.FormatInt(st.Resting.Oid, 10),
			ClientOrderID: cloid,
			Symbol:        key,
			Status:        model.OrderStatusNew,
		}, nil
	}
	return model.OrderAck{}, fmt.Errorf("order response not understood")
}

func (c *client) CancelOrders(ctx context.Context, symbol string, orderIDs []string) ([]model.CancelResult, error) {
	if c.signer == nil {
		return nil, exchange.ErrNoCredentials
	}

	key := normalizeSymbol(symbol)
	asset, err := c.catalog.Lookup(ctx, key)
	if err != nil {
		return nil, err
	}

	cancels := make([]wireCancel, 0, len(orderIDs))
	results := make([]model.CancelResult, len(orderIDs))
	for i, id := range orderIDs {
		oid, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			results[i] = model.CancelResult{OrderID: id, Symbol: key, Err: "invalid order id"}
			continue
		}
		cancels = append(cancels, wireCancel{Asset: asset.ID, Oid: oid})
		results[i] = model.CancelResult{OrderID: id, Symbol: key}
	}
	if len(cancels) == 0 {
		return results, nil
	}

	resp, err := c.sendAction(ctx, cancelAction{Type: "cancel", Cancels: cancels})
	if err != nil {
		return nil, err
	}

	// Statuses align positionally with the cancels slice.
	si := 0
	for i := range results {
		if results[i].Err != "" {
			continue
		}
		if si < len(resp.Response.Data.Statuses) {
			st := resp.Response.Data.Statuses[si]
			si++
			if st.Error != "" {
				results[i].Err = st.Error
				continue
			}
		}
		results[i].OK = true
	}
	return results, nil
}

func (c *client) UpdateLeverage(ctx context.Context, symbol string, leverage int, cross bool) error {
	if c.signer == nil {
		return exchange.ErrNoCredentials
	}

	key := normalizeSymbol(symbol)
	asset, err := c.catalog.Lookup(ctx, key)
	if err != nil {
		return err
	}
	if leverage < 1 || (asset.MaxLeverage > 0 && leverage > asset.MaxLeverage) {
		return fmt.Errorf("leverage %d outside 1..%d for %s", leverage, asset.MaxLeverage, key)
	}

	// Re-sending the same leverage is a wasted signed action.
	c.leverageMu.Lock()
	if c.leverageSet[key] == leverage {
		c.leverageMu.Unlock()
		return nil
	}
	c.leverageMu.Unlock()

	_, err = c.sendAction(ctx, leverageAction{
		Type:     "updateLeverage",
		Asset:    asset.ID,
		IsCross:  cross,
		Leverage: leverage,
	})
	if err != nil {
		return err
	}

	c.leverageMu.Lock()
	c.leverageSet[key] = leverage
	c.leverageMu.Unlock()
	return nil
}

func (c *client) Close() error {
	return c.conn.Close()
}

// -----------------------------------------------------------------------------
// Action plumbing
// -----------------------------------------------------------------------------

// sendAction signs and dispatches one action, preferring the WS post
// channel with REST fallback, and parses the venue response.
func (c *client) sendAction(ctx context.Context, action any) (*exchangeResponse, error) {
	raw, err := json.Marshal(action)
	if err != nil {
		return nil, fmt.Errorf("marshal action: %w", err)
	}

	nonce := time.Now().UnixMilli()
	sig, err := c.signer.Sign(raw, nonce, "")
	if err != nil {
		return nil, fmt.Errorf("sign action: %w", err)
	}

	env, err := json.Marshal(actionEnvelope{
		Action:       raw,
		Nonce:        nonce,
		Signature:    sig,
		VaultAddress: nil,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}

	respRaw, err := c.actions.Do(ctx, env)
	if err != nil {
		return nil, err
	}

	var resp exchangeResponse
	if err := json.Unmarshal(respRaw, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal action response: %w", err)
	}
	return &resp, nil
}

// postActionWS sends a signed envelope over the WS post channel.
func (c *client) postActionWS(ctx context.Context, envelope []byte) ([]byte, error) {
	id := c.postID.Add(1)
	msg, err := json.Marshal(postMsg{
		Method:  "post",
		ID:      id,
		Request: postRequest{Type: "action", Payload: envelope},
	})
	if err != nil {
		return nil, err
	}

	payload, err := c.conn.Request(ctx, strconv.FormatInt(id, 10), msg)
	if err != nil {
		return nil, err
	}
	return c.checkActionPayload(payload)
}

// postActionREST sends a signed envelope to the exchange endpoint.
func (c *client) postActionREST(ctx context.Context, envelope []byte) ([]byte, error) {
	body, err := c.rest.PostRaw(ctx, "/exchange", envelope)
	if err != nil {
		return nil, err
	}
	return c.checkActionPayload(body)
}

// checkActionPayload turns a venue-level "err" status into a terminal
// rejection so the dispatcher stops retrying.
func (c *client) checkActionPayload(payload []byte) ([]byte, error) {
	var res struct {
		Status   string          `json:"status"`
		Response json.RawMessage `json:"response"`
	}
	if err := json.Unmarshal(payload, &res); err != nil {
		return nil, fmt.Errorf("unmarshal action payload: %w", err)
	}
	if res.Status == "err" {
		return nil, &exchange.RejectedError{
			Venue:  exchange.KindHyperliquid,
			Reason: strings.Trim(string(res.Response), `"`),
		}
	}
	return payload, nil
}

func (c *client) requireAccount() error {
	if c.cfg.Account == "" {
		return exchange.ErrNoCredentials
	}
	return nil
}

// newCloid returns a 16-byte 0x-hex client order id.
func newCloid() string {
	u := uuid.New()
	return "0x" + strings.ReplaceAll(u.String(), "-", "")[:32]
}

// wireCoin maps a normalized symbol to the coin name used on the wire.
// Listing names are case sensitive in subscriptions.
func (c *client) wireCoin(key string) string {
	return c.catalog.WireName(key)
}

// f64 parses a wire decimal string, returning 0 on absence.
func f64(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
