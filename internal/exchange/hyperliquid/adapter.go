package hyperliquid

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/taehong0-0/mpdex/internal/book"
	"github.com/taehong0-0/mpdex/internal/cache"
	"github.com/taehong0-0/mpdex/internal/connection"
	"github.com/taehong0-0/mpdex/internal/model"
)

// wsPingInterval keeps the stream alive; the venue drops idle sockets
// after 60 seconds.
const wsPingInterval = 50 * time.Second

// HandleMessage routes one inbound frame by channel.
func (c *client) HandleMessage(data []byte, receivedAt time.Time) {
	switch gjson.GetBytes(data, "channel").String() {
	case "allMids":
		var env wsEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			return
		}
		var mids allMidsData
		if err := json.Unmarshal(env.Data, &mids); err != nil {
			return
		}
		c.storeMids(mids.Mids, receivedAt.UnixMilli())
		c.midsGate.Set()

	case "l2Book":
		var env wsEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			return
		}
		var bd l2BookData
		if err := json.Unmarshal(env.Data, &bd); err != nil {
			return
		}
		c.applyBook(normalizeSymbol(bd.Coin), bd)

	case "webData2":
		var env wsEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			return
		}
		var wd webData2
		if err := json.Unmarshal(env.Data, &wd); err != nil {
			return
		}
		c.applyAccount(wd)
		c.accountGate.Set()

	case "post":
		id := gjson.GetBytes(data, "data.id")
		if !id.Exists() {
			return
		}
		var pr postResponse
		if err := json.Unmarshal([]byte(gjson.GetBytes(data, "data").Raw), &pr); err != nil {
			return
		}
		c.conn.Resolve(strconv.FormatInt(pr.ID, 10), pr.Response.Payload)

	case "subscriptionResponse", "pong":
		// Acknowledgments carry no state.

	case "error":
		c.logger.Warn("stream error frame", "data", string(data))
	}
}

// Resubscribe restores every stream this client depends on: mids, the
// account feed when configured, and each orderbook subscribed so far.
func (c *client) Resubscribe(ctx context.Context, send connection.SendFunc) error {
	subs := []subscription{{Type: "allMids", Dex: c.cfg.Dex}}
	if c.cfg.Account != "" {
		subs = append(subs, subscription{Type: "webData2", User: c.cfg.Account})
	}

	c.booksMu.Lock()
	for key := range c.books {
		subs = append(subs, subscription{Type: "l2Book", Coin: c.wireCoin(key)})
	}
	c.booksMu.Unlock()

	for _, sub := range subs {
		frame, err := json.Marshal(subscribeMsg{Method: "subscribe", Subscription: sub})
		if err != nil {
			return err
		}
		if err := send(frame); err != nil {
			return fmt.Errorf("subscribe %s: %w", sub.Type, err)
		}
	}
	return nil
}

func (c *client) Heartbeat() ([]byte, time.Duration) {
	return []byte(`{"method":"ping"}`), wsPingInterval
}

// OnDisconnect resets readiness so accessors block or fall back until the
// streams are warm again.
func (c *client) OnDisconnect() {
	c.midsGate.Reset()
	c.accountGate.Reset()

	c.booksMu.Lock()
	for key, g := range c.bookGates {
		g.Reset()
		c.books[key].Invalidate()
	}
	c.booksMu.Unlock()
}

// -----------------------------------------------------------------------------
// State application
// -----------------------------------------------------------------------------

// storeMids installs one mids map. Mid doubles as the mark reference; the
// venue pushes the full map on every tick.
func (c *client) storeMids(mids map[string]string, ts int64) {
	for coin, mid := range mids {
		// Internal per-asset ids like "@123" index spot pairs; skip them.
		if strings.HasPrefix(coin, "@") {
			continue
		}
		key := normalizeSymbol(coin)
		px := f64(mid)
		c.prices.Set(key, model.Price{
			Symbol:    key,
			Mark:      px,
			Mid:       px,
			Timestamp: ts,
		})
	}
}

// ensureBook returns the book and gate for key, creating them on first
// use. fresh reports whether the caller must subscribe the stream.
func (c *client) ensureBook(key string) (*book.Book, *cache.Gate, bool) {
	c.booksMu.Lock()
	defer c.booksMu.Unlock()

	b, ok := c.books[key]
	if ok {
		return b, c.bookGates[key], false
	}
	b = book.New(key)
	c.books[key] = b
	g := cache.NewGate()
	c.bookGates[key] = g
	return b, g, true
}

func (c *client) subscribeBook(key string) error {
	frame, err := json.Marshal(subscribeMsg{
		Method:       "subscribe",
		Subscription: subscription{Type: "l2Book", Coin: c.wireCoin(key)},
	})
	if err != nil {
		return err
	}
	return c.conn.Send(frame)
}

// applyBook installs a wholesale l2Book snapshot.
func (c *client) applyBook(key string, bd l2BookData) {
	b, gate, _ := c.ensureBook(key)

	bids := make([]book.Level, len(bd.Levels[0]))
	for i, lv := range bd.Levels[0] {
		bids[i] = book.Level{Price: lv.Px, Size: lv.Sz}
	}
	asks := make([]book.Level, len(bd.Levels[1]))
	for i, lv := range bd.Levels[1] {
		asks[i] = book.Level{Price: lv.Px, Size: lv.Sz}
	}

	b.ApplySnapshot(bids, asks, 0, bd.Time)
	gate.Set()
}

// applyAccount replaces positions, open orders, and collateral from one
// webData2 push.
func (c *client) applyAccount(wd webData2) {
	ts := wd.ServerTime
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}

	seen := make(map[string]bool)
	for _, ap := range wd.ClearinghouseState.AssetPositions {
		key := normalizeSymbol(ap.Position.Coin)
		szi := f64(ap.Position.Szi)
		seen[key] = true
		c.positions.Set(key, model.Position{
			Symbol:        key,
			Side:          model.SideFromSigned(szi),
			Size:          abs(szi),
			EntryPrice:    f64(ap.Position.EntryPx),
			UnrealizedPnL: f64(ap.Position.UnrealizedPnl),
		})
	}
	// Positions closed since the last push report flat.
	for key := range c.positions.All() {
		if !seen[key] {
			c.positions.Set(key, model.Position{Symbol: key, Side: model.SideFlat})
		}
	}

	orders := make([]model.OpenOrder, 0, len(wd.OpenOrders))
	for _, o := range wd.OpenOrders {
		side := model.SideShort
		if o.Side == "B" {
			side = model.SideLong
		}
		orig := f64(o.OrigSz)
		remaining := f64(o.Sz)
		orders = append(orders, model.OpenOrder{
			OrderID:       strconv.FormatInt(o.Oid, 10),
			ClientOrderID: o.Cloid,
			Symbol:        normalizeSymbol(o.Coin),
			Side:          side,
			Price:         f64(o.LimitPx),
			Size:          orig,
			FilledSize:    orig - remaining,
			ReduceOnly:    o.ReduceOnly,
			Status:        orderStatusFor(orig, remaining),
			Timestamp:     o.Timestamp,
		})
	}
	c.ordersMu.Lock()
	c.openOrders = orders
	c.ordersMu.Unlock()

	c.collMu.Lock()
	c.collateral = model.Collateral{
		Total:     f64(wd.ClearinghouseState.MarginSummary.AccountValue),
		Available: f64(wd.ClearinghouseState.Withdrawable),
		Assets: []model.AssetBalance{{
			Asset:     "USDC",
			Total:     f64(wd.ClearinghouseState.MarginSummary.AccountValue),
			Available: f64(wd.ClearinghouseState.Withdrawable),
		}},
		Timestamp: ts,
	}
	c.collMu.Unlock()
}

func orderStatusFor(orig, remaining float64) model.OrderStatus {
	if remaining < orig {
		return model.OrderStatusPartiallyFilled
	}
	return model.OrderStatusNew
}

// refreshAccountREST pulls the account snapshot when the stream has not
// warmed up within the ready timeout.
func (c *client) refreshAccountREST(ctx context.Context) error {
	var st clearinghouseState
	req := map[string]string{"type": "clearinghouseState", "user": c.cfg.Account}
	if c.cfg.Dex != "" {
		req["dex"] = c.cfg.Dex
	}
	if err := c.rest.Post(ctx, "/info", req, &st); err != nil {
		return fmt.Errorf("fetch clearinghouse state: %w", err)
	}

	var orders []wireOpenOrder
	oreq := map[string]string{"type": "frontendOpenOrders", "user": c.cfg.Account}
	if err := c.rest.Post(ctx, "/info", oreq, &orders); err != nil {
		return fmt.Errorf("fetch open orders: %w", err)
	}

	c.applyAccount(webData2{
		ClearinghouseState: st,
		OpenOrders:         orders,
		ServerTime:         time.Now().UnixMilli(),
	})
	return nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
