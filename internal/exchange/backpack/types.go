package backpack

import "encoding/json"

// Default endpoints.
const (
	DefaultWSURL   = "wss://ws.backpack.exchange"
	DefaultRestURL = "https://api.backpack.exchange/api/v1"
)

// signatureWindow is the request validity window in milliseconds,
// stamped into every signed request and subscription.
const signatureWindow = "5000"

// quoteAsset is the settlement currency for every perp listing.
const quoteAsset = "USDC"

// wsEnvelope is the outer shape of every inbound stream frame.
type wsEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// subscribeMsg is the outbound subscription frame. Signature is only set
// for private streams: [verifyingKey, signature, timestamp, window].
type subscribeMsg struct {
	Method    string   `json:"method"`
	Params    []string `json:"params"`
	Signature []string `json:"signature,omitempty"`
}

// depthUpdate is one incremental book delta. Levels are [price, size]
// string pairs; size "0" removes the level.
type depthUpdate struct {
	Symbol  string      `json:"s"`
	Bids    [][2]string `json:"b"`
	Asks    [][2]string `json:"a"`
	FirstID int64       `json:"U"`
	FinalID int64       `json:"u"`
	Time    int64       `json:"T"`
}

// depthSnapshot is the REST book snapshot that seeds delta application.
type depthSnapshot struct {
	LastUpdateID string      `json:"lastUpdateId"`
	Bids         [][2]string `json:"bids"`
	Asks         [][2]string `json:"asks"`
}

// markPriceUpdate is one markPrice stream tick.
type markPriceUpdate struct {
	Symbol          string `json:"s"`
	MarkPrice       string `json:"p"`
	IndexPrice      string `json:"i"`
	FundingRate     string `json:"f"`
	NextFundingTime int64  `json:"n"`
}

// positionUpdate is one account.positionUpdate event. The event type
// distinguishes opened/adjusted/closed; the initial snapshot rows carry
// no event type.
type positionUpdate struct {
	Event         string      `json:"e"`
	Symbol        string      `json:"s"`
	NetQuantity   json.Number `json:"q"`
	EntryPrice    string      `json:"B"`
	MarkPrice     string      `json:"M"`
	UnrealizedPnL string      `json:"P"`
}

// orderUpdate is one account.orderUpdate event.
type orderUpdate struct {
	Event       string      `json:"e"`
	Symbol      string      `json:"s"`
	OrderID     string      `json:"i"`
	ClientID    json.Number `json:"c"`
	Side        string      `json:"S"` // "Bid" or "Ask"
	Quantity    string      `json:"q"`
	Price       string      `json:"p"`
	OrderType   string      `json:"o"`
	Status      string      `json:"X"`
	ExecutedQty string      `json:"z"`
	Timestamp   int64       `json:"T"`
}

// wireMarket is one /markets listing with its price and quantity grids.
type wireMarket struct {
	Symbol     string `json:"symbol"`
	BaseSymbol string `json:"baseSymbol"`
	MarketType string `json:"marketType"`
	Filters    struct {
		Price struct {
			TickSize string `json:"tickSize"`
		} `json:"price"`
		Quantity struct {
			StepSize string `json:"stepSize"`
		} `json:"quantity"`
	} `json:"filters"`
}

// wireOrder is an order as returned by the REST order endpoints.
type wireOrder struct {
	ID               string      `json:"id"`
	ClientID         json.Number `json:"clientId"`
	Symbol           string      `json:"symbol"`
	Side             string      `json:"side"`
	OrderType        string      `json:"orderType"`
	Price            string      `json:"price"`
	Quantity         string      `json:"quantity"`
	ExecutedQuantity string      `json:"executedQuantity"`
	Status           string      `json:"status"`
	CreatedAt        int64       `json:"createdAt"`
}

// wirePosition is one row of the REST position query.
type wirePosition struct {
	Symbol      string `json:"symbol"`
	NetQuantity string `json:"netQuantity"`
	EntryPrice  string `json:"entryPrice"`
	PnLRealized string `json:"pnlRealized"`
}

// wireCollateral is the REST collateral summary.
type wireCollateral struct {
	AssetsValue        string `json:"assetsValue"`
	NetEquityAvailable string `json:"netEquityAvailable"`
	Collateral         []struct {
		Symbol         string `json:"symbol"`
		TotalQuantity  string `json:"totalQuantity"`
		AvailableValue string `json:"availableQuantity"`
	} `json:"collateral"`
}

// wireMarkPrice is one row of the REST /markPrices response.
type wireMarkPrice struct {
	Symbol      string `json:"symbol"`
	MarkPrice   string `json:"markPrice"`
	IndexPrice  string `json:"indexPrice"`
	FundingRate string `json:"fundingRate"`
}
