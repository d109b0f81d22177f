package model

// -----------------------------------------------------------------------------
// Market Data Types
// -----------------------------------------------------------------------------

// Price is the latest price record for one symbol. Each update replaces the
// whole record (last write wins).
type Price struct {
	Symbol    string  // Normalized symbol
	Mark      float64 // Mark price (margin/liquidation reference)
	Mid       float64 // Mid price, 0 if the exchange does not publish one
	Oracle    float64 // Oracle/index price, 0 if absent
	Funding   float64 // Current funding rate
	Timestamp int64   // Exchange timestamp (ms)
}

// BookLevel is a single price level of an orderbook.
type BookLevel struct {
	Price float64
	Size  float64
}

// BookSnapshot is a point-in-time view of one symbol's orderbook.
// Bids are sorted descending by price, asks ascending.
type BookSnapshot struct {
	Symbol       string
	Bids         []BookLevel
	Asks         []BookLevel
	LastUpdateID int64 // Last applied update id, 0 for exchanges without ids
	Timestamp    int64 // Exchange timestamp (ms)
}

// -----------------------------------------------------------------------------
// Account Types
// -----------------------------------------------------------------------------

// Side is the direction of a position or order.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
	SideFlat  Side = "flat"
)

// SideFromSigned derives a side from a signed position size.
func SideFromSigned(size float64) Side {
	switch {
	case size > 0:
		return SideLong
	case size < 0:
		return SideShort
	default:
		return SideFlat
	}
}

// Position is a normalized perp position. Size is always >= 0; direction is
// carried by Side. A missing position and a flat position are distinct:
// lookups return (Position, false) when the symbol is unknown.
type Position struct {
	Symbol        string
	Side          Side
	Size          float64
	EntryPrice    float64
	UnrealizedPnL float64
}

// OrderStatus classifies an open order's lifecycle state.
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "new"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCancelled       OrderStatus = "cancelled"
	OrderStatusExpired         OrderStatus = "expired"
)

// Terminal reports whether the status removes the order from the open set.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusExpired:
		return true
	}
	return false
}

// OpenOrder is a normalized resting order.
type OpenOrder struct {
	OrderID       string
	ClientOrderID string
	Symbol        string
	Side          Side
	Price         float64
	Size          float64
	FilledSize    float64
	ReduceOnly    bool
	Status        OrderStatus
	Timestamp     int64
}

// AssetBalance is one asset's share of the account balance.
type AssetBalance struct {
	Asset     string
	Total     float64
	Available float64
}

// Collateral is the account-level margin summary, replaced wholesale on every
// snapshot.
type Collateral struct {
	Total     float64 // Account value across all venues
	Available float64 // Withdrawable / spendable
	Assets    []AssetBalance
	Timestamp int64
}

// -----------------------------------------------------------------------------
// Trading Request Types
// -----------------------------------------------------------------------------

// OrderType selects limit vs market semantics.
type OrderType string

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"
)

// OrderRequest describes an order to place. Price is ignored for market
// orders; the adapter derives a marketable limit from the mark price and
// Slippage. ClientOrderID gives at-least-once delivery idempotency and is
// generated when empty.
type OrderRequest struct {
	Symbol        string
	Side          Side // SideLong = buy, SideShort = sell
	Size          float64
	Price         float64
	Type          OrderType
	TimeInForce   string // Exchange-specific, e.g. "Gtc"; adapter default when empty
	ReduceOnly    bool
	Slippage      float64 // Market-order slippage fraction, e.g. 0.05
	ClientOrderID string
}

// OrderAck is the venue's acknowledgment of a placed order. Resting orders
// carry a zero FilledSize; immediately filled orders report the fill.
type OrderAck struct {
	OrderID       string
	ClientOrderID string
	Symbol        string
	Status        OrderStatus
	FilledSize    float64
	AvgPrice      float64
}

// CancelResult reports the outcome of cancelling one order.
type CancelResult struct {
	OrderID string
	Symbol  string
	OK      bool
	Err     string
}
