package pacifica

import "encoding/json"

// Default endpoints.
const (
	DefaultWSURL   = "wss://ws.pacifica.fi/ws"
	DefaultRestURL = "https://api.pacifica.fi/api/v1"
)

// signatureExpiryMS is the validity window stamped into every signed
// request.
const signatureExpiryMS = 5000

// wsEnvelope is the outer shape of every inbound frame.
type wsEnvelope struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// subscribeMsg is the outbound subscription frame.
type subscribeMsg struct {
	Method string          `json:"method"`
	Params subscribeParams `json:"params"`
}

type subscribeParams struct {
	Source   string `json:"source"`
	Symbol   string `json:"symbol,omitempty"`
	AggLevel int    `json:"agg_level,omitempty"`
	Account  string `json:"account,omitempty"`
}

// priceItem is one entry of the prices channel payload.
type priceItem struct {
	Symbol    string `json:"symbol"`
	Mark      string `json:"mark"`
	Mid       string `json:"mid"`
	Oracle    string `json:"oracle"`
	Funding   string `json:"funding"`
	Timestamp int64  `json:"timestamp"`
}

// bookLevel is one orderbook level: price and amount.
type bookLevel struct {
	P string `json:"p"`
	A string `json:"a"`
	N int    `json:"n"`
}

// bookData is a wholesale book snapshot: levels[0] bids, levels[1] asks.
type bookData struct {
	Symbol string         `json:"s"`
	Levels [2][]bookLevel `json:"l"`
	Time   int64          `json:"t"`
}

// accountInfo is the account_info channel payload.
type accountInfo struct {
	AccountEquity string `json:"ae"`
	AvailToSpend  string `json:"as"`
	Balance       string `json:"b"`
	MarginUsed    string `json:"mu"`
	Timestamp     int64  `json:"t"`
}

// positionItem is one entry of the account_positions snapshot.
type positionItem struct {
	Symbol     string `json:"s"`
	Side       string `json:"d"` // "bid" or "ask"
	Amount     string `json:"a"`
	EntryPrice string `json:"p"`
	Timestamp  int64  `json:"t"`
}

// orderItem is one entry of the account_orders snapshot.
type orderItem struct {
	OrderID       int64  `json:"i"`
	ClientOrderID string `json:"I"`
	Symbol        string `json:"s"`
	Side          string `json:"d"`
	Price         string `json:"p"`
	Amount        string `json:"a"`
	Filled        string `json:"f"`
	Cancelled     string `json:"c"`
	Timestamp     int64  `json:"t"`
	OrderType     string `json:"ot"`
	ReduceOnly    bool   `json:"ro"`
}

// tradeRequest is the outbound signed trading frame: params holds exactly
// one operation keyed by its type.
type tradeRequest struct {
	ID     string                     `json:"id"`
	Params map[string]json.RawMessage `json:"params"`
}

// tradeResponse is the venue's answer to a signed request.
type tradeResponse struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Code int             `json:"code"`
	Err  string          `json:"error"`
	Data json.RawMessage `json:"data"`
}
