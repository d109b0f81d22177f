package backpack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/taehong0-0/mpdex/internal/book"
	"github.com/taehong0-0/mpdex/internal/cache"
	"github.com/taehong0-0/mpdex/internal/connection"
	"github.com/taehong0-0/mpdex/internal/model"
)

// HandleMessage routes one inbound frame by stream name.
func (c *client) HandleMessage(data []byte, receivedAt time.Time) {
	stream := gjson.GetBytes(data, "stream").String()

	switch {
	case strings.HasPrefix(stream, "depth."):
		var env wsEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			return
		}
		var du depthUpdate
		if err := json.Unmarshal(env.Data, &du); err != nil {
			return
		}
		c.applyDepth(du)

	case strings.HasPrefix(stream, "markPrice."):
		var env wsEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			return
		}
		var mp markPriceUpdate
		if err := json.Unmarshal(env.Data, &mp); err != nil {
			return
		}
		c.storeMarkPrice(mp, receivedAt.UnixMilli())

	case strings.HasPrefix(stream, "account.positionUpdate"):
		var env wsEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			return
		}
		var pu positionUpdate
		if err := json.Unmarshal(env.Data, &pu); err != nil {
			return
		}
		c.applyPosition(pu)

	case strings.HasPrefix(stream, "account.orderUpdate"):
		var env wsEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			return
		}
		var ou orderUpdate
		if err := json.Unmarshal(env.Data, &ou); err != nil {
			return
		}
		c.applyOrder(ou)
	}
}

// Resubscribe restores every stream subscribed so far. Caches were
// cleared on disconnect, so each depth stream also reseeds its snapshot.
func (c *client) Resubscribe(ctx context.Context, send connection.SendFunc) error {
	var streams []string

	c.priceMu.Lock()
	for key := range c.priceSubs {
		streams = append(streams, "markPrice."+wireSymbol(key))
	}
	c.priceMu.Unlock()

	var bookKeys []string
	c.booksMu.Lock()
	for key := range c.books {
		streams = append(streams, "depth."+wireSymbol(key))
		bookKeys = append(bookKeys, key)
	}
	c.booksMu.Unlock()

	for _, stream := range streams {
		frame, err := json.Marshal(subscribeMsg{Method: "SUBSCRIBE", Params: []string{stream}})
		if err != nil {
			return err
		}
		if err := send(frame); err != nil {
			return fmt.Errorf("subscribe %s: %w", stream, err)
		}
	}

	if c.keypair != nil && c.cfg.Account != "" {
		for _, stream := range []string{"account.positionUpdate", "account.orderUpdate"} {
			frame, err := json.Marshal(subscribeMsg{
				Method:    "SUBSCRIBE",
				Params:    []string{stream},
				Signature: c.keypair.subscribeSignature(),
			})
			if err != nil {
				return err
			}
			if err := send(frame); err != nil {
				return fmt.Errorf("subscribe %s: %w", stream, err)
			}
		}
	}

	for _, key := range bookKeys {
		c.refetchSnapshot(key)
	}
	return nil
}

// Heartbeat returns nil: the server pings and the transport pongs.
func (c *client) Heartbeat() ([]byte, time.Duration) {
	return nil, 0
}

// OnDisconnect resets readiness so accessors block or fall back until the
// streams are warm again.
func (c *client) OnDisconnect() {
	c.posGate.Reset()
	c.ordersGate.Reset()

	c.priceMu.Lock()
	for _, g := range c.priceSubs {
		g.Reset()
	}
	c.priceMu.Unlock()

	c.booksMu.Lock()
	for key, g := range c.bookGates {
		g.Reset()
		c.books[key].Invalidate()
	}
	c.booksMu.Unlock()

	c.ordersMu.Lock()
	c.openOrders = make(map[string]model.OpenOrder)
	c.ordersMu.Unlock()
}

// subscribe sends one public SUBSCRIBE frame.
func (c *client) subscribe(stream string) error {
	frame, err := json.Marshal(subscribeMsg{Method: "SUBSCRIBE", Params: []string{stream}})
	if err != nil {
		return err
	}
	return c.conn.Send(frame)
}

// -----------------------------------------------------------------------------
// State application
// -----------------------------------------------------------------------------

// ensurePriceSub returns the readiness gate for key, creating it on first
// use. fresh reports whether the caller must subscribe the stream.
func (c *client) ensurePriceSub(key string) (*cache.Gate, bool) {
	c.priceMu.Lock()
	defer c.priceMu.Unlock()

	g, ok := c.priceSubs[key]
	if ok {
		return g, false
	}
	g = cache.NewGate()
	c.priceSubs[key] = g
	return g, true
}

func (c *client) storeMarkPrice(mp markPriceUpdate, ts int64) {
	key := displaySymbol(mp.Symbol)
	c.prices.Set(key, model.Price{
		Symbol:    key,
		Mark:      f64(mp.MarkPrice),
		Mid:       f64(mp.MarkPrice),
		Oracle:    f64(mp.IndexPrice),
		Funding:   f64(mp.FundingRate),
		Timestamp: ts,
	})

	c.priceMu.Lock()
	if g, ok := c.priceSubs[key]; ok {
		g.Set()
	}
	c.priceMu.Unlock()
}

// ensureBook returns the book and gate for key, creating them on first
// use. fresh reports whether the caller must subscribe and seed the
// stream.
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

// applyDepth applies one incremental delta. A sequence gap invalidates
// the book and triggers a single snapshot refetch; deltas keep arriving
// meanwhile and stay rejected until the snapshot lands.
func (c *client) applyDepth(du depthUpdate) {
	key := displaySymbol(du.Symbol)
	b, gate, _ := c.ensureBook(key)

	bids := levelsFromPairs(du.Bids)
	asks := levelsFromPairs(du.Asks)

	ts := du.Time
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}
	if err := b.ApplyDelta(du.FirstID, du.FinalID, bids, asks, ts); err != nil {
		if errors.Is(err, book.ErrGap) {
			c.refetchSnapshot(key)
		}
		return
	}
	gate.Set()
}

func levelsFromPairs(pairs [][2]string) []book.Level {
	out := make([]book.Level, len(pairs))
	for i, p := range pairs {
		out[i] = book.Level{Price: p[0], Size: p[1]}
	}
	return out
}

// refetchSnapshot fetches the REST book snapshot in the background, at
// most once in flight per symbol.
func (c *client) refetchSnapshot(key string) {
	c.booksMu.Lock()
	if c.refetching[key] {
		c.booksMu.Unlock()
		return
	}
	c.refetching[key] = true
	c.booksMu.Unlock()

	go func() {
		defer func() {
			c.booksMu.Lock()
			delete(c.refetching, key)
			c.booksMu.Unlock()
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.fetchSnapshot(ctx, key); err != nil {
			c.logger.Warn("book snapshot refetch failed", "symbol", key, "error", err)
		}
	}()
}

// fetchSnapshot seeds the book for key from the REST depth endpoint.
func (c *client) fetchSnapshot(ctx context.Context, key string) error {
	var snap depthSnapshot
	if err := c.rest.Get(ctx, "/depth", url.Values{"symbol": {wireSymbol(key)}}, &snap); err != nil {
		return fmt.Errorf("fetch depth snapshot: %w", err)
	}

	lastID, _ := strconv.ParseInt(snap.LastUpdateID, 10, 64)
	b, gate, _ := c.ensureBook(key)
	b.ApplySnapshot(levelsFromPairs(snap.Bids), levelsFromPairs(snap.Asks), lastID, time.Now().UnixMilli())
	gate.Set()
	return nil
}

// applyPosition applies one position event. Closed positions report flat
// rather than disappearing.
func (c *client) applyPosition(pu positionUpdate) {
	if pu.Symbol == "" {
		return
	}
	key := displaySymbol(pu.Symbol)

	if pu.Event == "positionClosed" {
		c.positions.Set(key, model.Position{Symbol: key, Side: model.SideFlat})
	} else {
		qty, _ := pu.NetQuantity.Float64()
		c.positions.Set(key, model.Position{
			Symbol:        key,
			Side:          model.SideFromSigned(qty),
			Size:          abs(qty),
			EntryPrice:    f64(pu.EntryPrice),
			UnrealizedPnL: f64(pu.UnrealizedPnL),
		})
	}
	c.posGate.Set()
}

func (c *client) storeRESTPosition(row wirePosition) {
	key := displaySymbol(row.Symbol)
	qty := f64(row.NetQuantity)
	c.positions.Set(key, model.Position{
		Symbol:        key,
		Side:          model.SideFromSigned(qty),
		Size:          abs(qty),
		EntryPrice:    f64(row.EntryPrice),
		UnrealizedPnL: f64(row.PnLRealized),
	})
}

// applyOrder applies one order event. Terminal events remove the order
// from the open set; fills remove it only once fully executed.
func (c *client) applyOrder(ou orderUpdate) {
	if ou.OrderID == "" {
		return
	}

	c.ordersMu.Lock()
	switch ou.Event {
	case "orderCancelled", "orderExpired":
		delete(c.openOrders, ou.OrderID)
	case "orderFill":
		if f64(ou.ExecutedQty) >= f64(ou.Quantity) {
			delete(c.openOrders, ou.OrderID)
		} else {
			c.openOrders[ou.OrderID] = orderFromUpdate(ou)
		}
	default:
		// orderAccepted, orderModified, and the initial snapshot rows.
		c.openOrders[ou.OrderID] = orderFromUpdate(ou)
	}
	c.ordersMu.Unlock()

	c.ordersGate.Set()
}

func orderFromUpdate(ou orderUpdate) model.OpenOrder {
	side := model.SideShort
	if ou.Side == "Bid" {
		side = model.SideLong
	}
	filled := f64(ou.ExecutedQty)
	status := model.OrderStatusNew
	if filled > 0 {
		status = model.OrderStatusPartiallyFilled
	}
	return model.OpenOrder{
		OrderID:       ou.OrderID,
		ClientOrderID: ou.ClientID.String(),
		Symbol:        displaySymbol(ou.Symbol),
		Side:          side,
		Price:         f64(ou.Price),
		Size:          f64(ou.Quantity),
		FilledSize:    filled,
		Status:        status,
		Timestamp:     ou.Timestamp,
	}
}

func f64(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
