package pacifica

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

// wsPingInterval keeps the stream alive; the venue expects a ping at
// least every 60 seconds.
const wsPingInterval = 50 * time.Second

// HandleMessage routes one inbound frame. Signed trading responses carry
// the request's uuid and resolve the waiting caller; everything else is
// channel-keyed state.
func (c *client) HandleMessage(data []byte, receivedAt time.Time) {
	if id := gjson.GetBytes(data, "id"); id.Exists() {
		if c.conn.Resolve(id.String(), data) {
			return
		}
	}

	switch gjson.GetBytes(data, "channel").String() {
	case "prices":
		var env wsEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			return
		}
		var items []priceItem
		if err := json.Unmarshal(env.Data, &items); err != nil {
			return
		}
		c.storePrices(items)
		c.pricesGate.Set()

	case "book":
		var env wsEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			return
		}
		var bd bookData
		if err := json.Unmarshal(env.Data, &bd); err != nil {
			return
		}
		c.applyBook(bd)

	case "account_info":
		var env wsEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			return
		}
		var info accountInfo
		if err := json.Unmarshal(env.Data, &info); err != nil {
			return
		}
		c.storeAccountInfo(info)
		c.accountGate.Set()

	case "account_positions":
		var env wsEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			return
		}
		var items []positionItem
		if err := json.Unmarshal(env.Data, &items); err != nil {
			return
		}
		c.storePositions(items)
		c.positionsGate.Set()

	case "account_orders":
		var env wsEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			return
		}
		var items []orderItem
		if err := json.Unmarshal(env.Data, &items); err != nil {
			return
		}
		c.storeOrders(items)
		c.ordersGate.Set()

	case "subscribe", "pong":
		// Acknowledgments carry no state.

	case "error":
		c.logger.Warn("stream error frame", "data", string(data))
	}
}

// Resubscribe restores every stream this client depends on: prices
// always, the account feeds when configured, and each book subscribed so
// far.
func (c *client) Resubscribe(ctx context.Context, send connection.SendFunc) error {
	params := []subscribeParams{{Source: "prices"}}
	if c.cfg.Account != "" {
		params = append(params,
			subscribeParams{Source: "account_info", Account: c.cfg.Account},
			subscribeParams{Source: "account_positions", Account: c.cfg.Account},
			subscribeParams{Source: "account_orders", Account: c.cfg.Account},
		)
	}

	c.booksMu.Lock()
	for key := range c.books {
		params = append(params, subscribeParams{Source: "book", Symbol: key, AggLevel: 1})
	}
	c.booksMu.Unlock()

	for _, p := range params {
		frame, err := json.Marshal(subscribeMsg{Method: "subscribe", Params: p})
		if err != nil {
			return err
		}
		if err := send(frame); err != nil {
			return fmt.Errorf("subscribe %s: %w", p.Source, err)
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
	c.pricesGate.Reset()
	c.positionsGate.Reset()
	c.ordersGate.Reset()
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

func (c *client) storePrices(items []priceItem) {
	for _, it := range items {
		key := strings.ToUpper(it.Symbol)
		c.prices.Set(key, model.Price{
			Symbol:    key,
			Mark:      f64(it.Mark),
			Mid:       f64(it.Mid),
			Oracle:    f64(it.Oracle),
			Funding:   f64(it.Funding),
			Timestamp: it.Timestamp,
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
		Method: "subscribe",
		Params: subscribeParams{Source: "book", Symbol: key, AggLevel: 1},
	})
	if err != nil {
		return err
	}
	return c.conn.Send(frame)
}

// applyBook installs a wholesale book snapshot.
func (c *client) applyBook(bd bookData) {
	key := strings.ToUpper(bd.Symbol)
	b, gate, _ := c.ensureBook(key)

	bids := make([]book.Level, len(bd.Levels[0]))
	for i, lv := range bd.Levels[0] {
		bids[i] = book.Level{Price: lv.P, Size: lv.A}
	}
	asks := make([]book.Level, len(bd.Levels[1]))
	for i, lv := range bd.Levels[1] {
		asks[i] = book.Level{Price: lv.P, Size: lv.A}
	}

	b.ApplySnapshot(bids, asks, 0, bd.Time)
	gate.Set()
}

// storePositions replaces the position set from one snapshot push. The
// feed omits flat symbols, so the whole map is swapped rather than
// merged.
func (c *client) storePositions(items []positionItem) {
	next := make(map[string]model.Position, len(items))
	for _, it := range items {
		size := f64(it.Amount)
		if size == 0 {
			continue
		}
		side := model.SideShort
		if it.Side == "bid" {
			side = model.SideLong
		}
		key := strings.ToUpper(it.Symbol)
		next[key] = model.Position{
			Symbol:     key,
			Side:       side,
			Size:       size,
			EntryPrice: f64(it.EntryPrice),
		}
	}
	c.positions.ReplaceAll(next)
}

func (c *client) storeOrders(items []orderItem) {
	orders := make([]model.OpenOrder, 0, len(items))
	for _, it := range items {
		side := model.SideShort
		if it.Side == "bid" {
			side = model.SideLong
		}
		size := f64(it.Amount)
		filled := f64(it.Filled)
		status := model.OrderStatusNew
		if filled > 0 {
			status = model.OrderStatusPartiallyFilled
		}
		orders = append(orders, model.OpenOrder{
			OrderID:       strconv.FormatInt(it.OrderID, 10),
			ClientOrderID: it.ClientOrderID,
			Symbol:        strings.ToUpper(it.Symbol),
			Side:          side,
			Price:         f64(it.Price),
			Size:          size,
			FilledSize:    filled,
			ReduceOnly:    it.ReduceOnly,
			Status:        status,
			Timestamp:     it.Timestamp,
		})
	}
	c.ordersMu.Lock()
	c.openOrders = orders
	c.ordersMu.Unlock()
}

func (c *client) storeAccountInfo(info accountInfo) {
	ts := info.Timestamp
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}
	equity := f64(info.AccountEquity)
	avail := f64(info.AvailToSpend)

	c.collMu.Lock()
	c.collateral = model.Collateral{
		Total:     equity,
		Available: avail,
		Assets: []model.AssetBalance{{
			Asset:     "USD",
			Total:     f64(info.Balance),
			Available: avail,
		}},
		Timestamp: ts,
	}
	c.collMu.Unlock()
}

func f64(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
