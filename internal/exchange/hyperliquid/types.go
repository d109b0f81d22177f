package hyperliquid

import "encoding/json"

// Default endpoints.
const (
	DefaultWSURL   = "wss://api.hyperliquid.xyz/ws"
	DefaultRestURL = "https://api.hyperliquid.xyz"
)

// maxPerpDecimals bounds price precision: perp prices carry at most
// 6 - szDecimals fractional digits.
const maxPerpDecimals = 6

// wsEnvelope is the outer shape of every inbound frame.
type wsEnvelope struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// subscribeMsg is the outbound subscription frame.
type subscribeMsg struct {
	Method       string       `json:"method"`
	Subscription subscription `json:"subscription"`
}

type subscription struct {
	Type string `json:"type"`
	Coin string `json:"coin,omitempty"`
	User string `json:"user,omitempty"`
	Dex  string `json:"dex,omitempty"`
}

// postMsg is the outbound request frame for the post channel.
type postMsg struct {
	Method  string      `json:"method"`
	ID      int64       `json:"id"`
	Request postRequest `json:"request"`
}

type postRequest struct {
	Type    string          `json:"type"` // "action" or "info"
	Payload json.RawMessage `json:"payload"`
}

// postResponse is the data of a "post" channel frame.
type postResponse struct {
	ID       int64 `json:"id"`
	Response struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	} `json:"response"`
}

// allMidsData carries mid prices for every listed coin.
type allMidsData struct {
	Mids map[string]string `json:"mids"`
}

// l2Level is one book level.
type l2Level struct {
	Px string `json:"px"`
	Sz string `json:"sz"`
	N  int    `json:"n"`
}

// l2BookData is a wholesale book snapshot.
type l2BookData struct {
	Coin   string       `json:"coin"`
	Time   int64        `json:"time"`
	Levels [2][]l2Level `json:"levels"` // [bids, asks]
}

// webData2 carries the account state pushed on every change.
type webData2 struct {
	ClearinghouseState clearinghouseState `json:"clearinghouseState"`
	OpenOrders         []wireOpenOrder    `json:"openOrders"`
	ServerTime         int64              `json:"serverTime"`
}

type clearinghouseState struct {
	MarginSummary struct {
		AccountValue    string `json:"accountValue"`
		TotalMarginUsed string `json:"totalMarginUsed"`
	} `json:"marginSummary"`
	Withdrawable   string          `json:"withdrawable"`
	AssetPositions []assetPosition `json:"assetPositions"`
	Time           int64           `json:"time"`
}

// spotClearinghouseState holds the account's spot balances.
type spotClearinghouseState struct {
	Balances []struct {
		Coin  string `json:"coin"`
		Total string `json:"total"`
		Hold  string `json:"hold"`
	} `json:"balances"`
}

type assetPosition struct {
	Position struct {
		Coin          string `json:"coin"`
		Szi           string `json:"szi"`
		EntryPx       string `json:"entryPx"`
		UnrealizedPnl string `json:"unrealizedPnl"`
		Leverage      struct {
			Type  string `json:"type"`
			Value int    `json:"value"`
		} `json:"leverage"`
	} `json:"position"`
}

type wireOpenOrder struct {
	Coin       string `json:"coin"`
	Side       string `json:"side"` // "B" or "A"
	LimitPx    string `json:"limitPx"`
	Sz         string `json:"sz"`
	OrigSz     string `json:"origSz"`
	Oid        int64  `json:"oid"`
	Cloid      string `json:"cloid,omitempty"`
	ReduceOnly bool   `json:"reduceOnly"`
	Timestamp  int64  `json:"timestamp"`
}

// metaResponse is the /info {"type":"meta"} payload.
type metaResponse struct {
	Universe []struct {
		Name        string `json:"name"`
		SzDecimals  int    `json:"szDecimals"`
		MaxLeverage int    `json:"maxLeverage"`
		IsDelisted  bool   `json:"isDelisted,omitempty"`
	} `json:"universe"`
}

// perpDex is one entry of the /info {"type":"perpDexs"} payload. The
// default universe is represented by a null entry at index 0.
type perpDex struct {
	Name string `json:"name"`
}

// Action payloads for the exchange endpoint.

type orderAction struct {
	Type     string      `json:"type"` // "order"
	Orders   []wireOrder `json:"orders"`
	Grouping string      `json:"grouping"` // "na"
	Builder  *builderFee `json:"builder,omitempty"`
}

type wireOrder struct {
	Asset      int       `json:"a"`
	IsBuy      bool      `json:"b"`
	Price      string    `json:"p"`
	Size       string    `json:"s"`
	ReduceOnly bool      `json:"r"`
	Type       orderKind `json:"t"`
	Cloid      string    `json:"c,omitempty"`
}

type orderKind struct {
	Limit *limitKind `json:"limit,omitempty"`
}

type limitKind struct {
	Tif string `json:"tif"` // "Gtc", "Ioc", "Alo"
}

type builderFee struct {
	Builder string `json:"b"`
	Fee     int    `json:"f"` // tenths of a basis point
}

type cancelAction struct {
	Type    string       `json:"type"` // "cancel"
	Cancels []wireCancel `json:"cancels"`
}

type wireCancel struct {
	Asset int   `json:"a"`
	Oid   int64 `json:"o"`
}

type leverageAction struct {
	Type     string `json:"type"` // "updateLeverage"
	Asset    int    `json:"asset"`
	IsCross  bool   `json:"isCross"`
	Leverage int    `json:"leverage"`
}

// actionEnvelope wraps a signed action for both transports.
type actionEnvelope struct {
	Action       json.RawMessage `json:"action"`
	Nonce        int64           `json:"nonce"`
	Signature    Signature       `json:"signature"`
	VaultAddress *string         `json:"vaultAddress"`
}

// exchangeResponse is the venue's answer to an action.
type exchangeResponse struct {
	Status   string `json:"status"` // "ok" or "err"
	Response struct {
		Type string `json:"type"`
		Data struct {
			Statuses []orderStatusEntry `json:"statuses"`
		} `json:"data"`
	} `json:"response"`
}

type orderStatusEntry struct {
	Resting *struct {
		Oid   int64  `json:"oid"`
		Cloid string `json:"cloid,omitempty"`
	} `json:"resting,omitempty"`
	Filled *struct {
		Oid     int64  `json:"oid"`
		TotalSz string `json:"totalSz"`
		AvgPx   string `json:"avgPx"`
		Cloid   string `json:"cloid,omitempty"`
	} `json:"filled,omitempty"`
	Error string `json:"error,omitempty"`
}
