package pacifica

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mr-tron/base58"

	"github.com/taehong0-0/mpdex/internal/exchange"
	"github.com/taehong0-0/mpdex/internal/model"
)

// testKeypair generates a throwaway ed25519 key in the base58 wallet
// encoding the client expects.
func testKeypair(t *testing.T) (account, privB58 string) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return base58.Encode(pub), base58.Encode(priv)
}

// mockVenue runs paired WS and REST servers speaking enough of the
// protocol for the client under test.
type mockVenue struct {
	ws        *httptest.Server
	rest      *httptest.Server
	restCalls atomic.Int32

	// tradeError, when set, turns signed requests into rejections.
	tradeError string

	// muteAccount suppresses account stream responses to force the REST
	// fallback paths.
	muteAccount bool
}

func newMockVenue(t *testing.T) *mockVenue {
	v := &mockVenue{}

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	v.ws = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var frame struct {
				ID     string          `json:"id"`
				Method string          `json:"method"`
				Params json.RawMessage `json:"params"`
			}
			if err := json.Unmarshal(msg, &frame); err != nil {
				continue
			}

			if frame.ID != "" {
				if v.tradeError != "" {
					conn.WriteMessage(websocket.TextMessage,
						[]byte(`{"id":"`+frame.ID+`","code":422,"error":"`+v.tradeError+`"}`))
					continue
				}
				conn.WriteMessage(websocket.TextMessage,
					[]byte(`{"id":"`+frame.ID+`","code":200,"data":{"order_id":4242}}`))
				continue
			}

			if frame.Method != "subscribe" {
				continue
			}
			var p subscribeParams
			if err := json.Unmarshal(frame.Params, &p); err != nil {
				continue
			}
			switch p.Source {
			case "prices":
				conn.WriteMessage(websocket.TextMessage,
					[]byte(`{"channel":"prices","data":[{"symbol":"BTC","mark":"50000.5","mid":"50000.4","oracle":"50000.6","funding":"0.0001","timestamp":1700000000000},{"symbol":"SOL","mark":"150.25","mid":"150.2","oracle":"150.3","funding":"0.00005","timestamp":1700000000000}]}`))
			case "book":
				conn.WriteMessage(websocket.TextMessage,
					[]byte(`{"channel":"book","data":{"s":"`+p.Symbol+`","t":1700000000000,"l":[[{"p":"50000.0","a":"1.5","n":3},{"p":"49999.5","a":"2.0","n":1}],[{"p":"50000.5","a":"1.0","n":2},{"p":"50001.0","a":"0.5","n":1}]]}}`))
			case "account_positions":
				if v.muteAccount {
					continue
				}
				conn.WriteMessage(websocket.TextMessage,
					[]byte(`{"channel":"account_positions","data":[{"s":"BTC","d":"bid","a":"0.5","p":"48000","t":1700000000000}]}`))
			case "account_orders":
				if v.muteAccount {
					continue
				}
				conn.WriteMessage(websocket.TextMessage,
					[]byte(`{"channel":"account_orders","data":[{"i":9001,"I":"cli-1","s":"BTC","d":"ask","p":"52000","a":"0.2","f":"0.05","c":"0","t":1700000000000,"ot":"limit","ro":false}]}`))
			case "account_info":
				if v.muteAccount {
					continue
				}
				conn.WriteMessage(websocket.TextMessage,
					[]byte(`{"channel":"account_info","data":{"ae":"2500.75","as":"2000.5","b":"2400","mu":"500.25","t":1700000000000}}`))
			}
		}
	}))

	v.rest = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v.restCalls.Add(1)
		switch r.URL.Path {
		case "/info":
			w.Write([]byte(`{"success":true,"data":[{"symbol":"BTC","tick_size":"0.5","lot_size":"0.001","max_leverage":50},{"symbol":"SOL","tick_size":"0.01","lot_size":"0.1","max_leverage":20}]}`))
		case "/info/prices":
			w.Write([]byte(`{"success":true,"data":[{"symbol":"BTC","mark":"50001","mid":"50000.9","oracle":"50001.1","funding":"0.0001","timestamp":1700000000000}]}`))
		case "/account":
			w.Write([]byte(`{"success":true,"data":{"ae":"2500.75","as":"2000.5","b":"2400","mu":"500.25","t":1700000000000}}`))
		case "/positions":
			w.Write([]byte(`{"success":true,"data":[{"s":"SOL","d":"ask","a":"10","p":"155","t":1700000000000}]}`))
		case "/orders":
			w.Write([]byte(`{"success":true,"data":[]}`))
		default:
			w.Write([]byte(`{"success":true,"data":{}}`))
		}
	}))

	t.Cleanup(func() {
		v.ws.Close()
		v.rest.Close()
	})
	return v
}

func (v *mockVenue) config() exchange.Config {
	return exchange.Config{
		WSURL:        "ws" + strings.TrimPrefix(v.ws.URL, "http"),
		RestURL:      v.rest.URL,
		ReadyTimeout: 2 * time.Second,
	}
}

func TestGetMarkPriceFromStream(t *testing.T) {
	v := newMockVenue(t)
	c, err := New(context.Background(), v.config())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	p, err := c.GetMarkPrice(context.Background(), "btc")
	if err != nil {
		t.Fatalf("GetMarkPrice: %v", err)
	}
	if p.Mark != 50000.5 || p.Mid != 50000.4 {
		t.Errorf("price = %+v", p)
	}
	if got := v.restCalls.Load(); got != 0 {
		t.Errorf("REST called %d times for streamed price", got)
	}
}

func TestGetOrderbookSorted(t *testing.T) {
	v := newMockVenue(t)
	c, err := New(context.Background(), v.config())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	snap, err := c.GetOrderbook(context.Background(), "BTC", 0)
	if err != nil {
		t.Fatalf("GetOrderbook: %v", err)
	}
	if len(snap.Bids) != 2 || len(snap.Asks) != 2 {
		t.Fatalf("levels = %d/%d, want 2/2", len(snap.Bids), len(snap.Asks))
	}
	if snap.Bids[0].Price != 50000.0 || snap.Asks[0].Price != 50000.5 {
		t.Errorf("best bid/ask = %v/%v", snap.Bids[0].Price, snap.Asks[0].Price)
	}
}

func TestStreamedAccountState(t *testing.T) {
	v := newMockVenue(t)
	account, priv := testKeypair(t)
	cfg := v.config()
	cfg.Account = account
	cfg.PrivateKey = priv
	c, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	pos, err := c.GetPosition(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("GetPosition: %v", err)
	}
	if pos.Side != model.SideLong || pos.Size != 0.5 || pos.EntryPrice != 48000 {
		t.Errorf("position = %+v", pos)
	}

	flat, err := c.GetPosition(context.Background(), "DOGE")
	if err != nil {
		t.Fatalf("GetPosition flat: %v", err)
	}
	if flat.Side != model.SideFlat {
		t.Errorf("absent position side = %q, want flat", flat.Side)
	}

	orders, err := c.GetOpenOrders(context.Background(), "")
	if err != nil {
		t.Fatalf("GetOpenOrders: %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("orders = %d, want 1", len(orders))
	}
	o := orders[0]
	if o.OrderID != "9001" || o.Side != model.SideShort || o.FilledSize != 0.05 {
		t.Errorf("order = %+v", o)
	}
	if o.Status != model.OrderStatusPartiallyFilled {
		t.Errorf("status = %q, want partially_filled", o.Status)
	}

	coll, err := c.GetCollateral(context.Background())
	if err != nil {
		t.Fatalf("GetCollateral: %v", err)
	}
	if coll.Total != 2500.75 || coll.Available != 2000.5 {
		t.Errorf("collateral = %+v", coll)
	}
}

func TestCreateOrderAccepted(t *testing.T) {
	v := newMockVenue(t)
	account, priv := testKeypair(t)
	cfg := v.config()
	cfg.Account = account
	cfg.PrivateKey = priv
	c, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	ack, err := c.CreateOrder(context.Background(), model.OrderRequest{
		Symbol: "BTC",
		Side:   model.SideLong,
		Size:   0.0015,
		Price:  50000.3,
		Type:   model.OrderTypeLimit,
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if ack.OrderID != "4242" {
		t.Errorf("OrderID = %q, want 4242", ack.OrderID)
	}
	if ack.ClientOrderID == "" {
		t.Error("ClientOrderID not generated")
	}
	if ack.Status != model.OrderStatusNew {
		t.Errorf("Status = %q, want new", ack.Status)
	}
}

func TestCreateOrderRejected(t *testing.T) {
	v := newMockVenue(t)
	v.tradeError = "insufficient margin"
	account, priv := testKeypair(t)
	cfg := v.config()
	cfg.Account = account
	cfg.PrivateKey = priv
	c, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	_, err = c.CreateOrder(context.Background(), model.OrderRequest{
		Symbol: "BTC", Side: model.SideLong, Size: 0.01, Price: 50000, Type: model.OrderTypeLimit,
	})
	if !exchange.IsRejected(err) {
		t.Fatalf("err = %v, want rejection", err)
	}
	if !strings.Contains(err.Error(), "insufficient margin") {
		t.Errorf("rejection reason lost: %v", err)
	}
}

func TestCancelOrders(t *testing.T) {
	v := newMockVenue(t)
	account, priv := testKeypair(t)
	cfg := v.config()
	cfg.Account = account
	cfg.PrivateKey = priv
	c, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	results, err := c.CancelOrders(context.Background(), "BTC", []string{"9001", "not-a-number"})
	if err != nil {
		t.Fatalf("CancelOrders: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if !results[0].OK {
		t.Errorf("cancel 9001 failed: %s", results[0].Err)
	}
	if results[1].OK {
		t.Error("malformed id reported success")
	}
}

func TestUpdateLeverageBounds(t *testing.T) {
	v := newMockVenue(t)
	account, priv := testKeypair(t)
	cfg := v.config()
	cfg.Account = account
	cfg.PrivateKey = priv
	c, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	if err := c.UpdateLeverage(context.Background(), "BTC", 10, true); err != nil {
		t.Errorf("UpdateLeverage 10x: %v", err)
	}
	if err := c.UpdateLeverage(context.Background(), "BTC", 100, true); err == nil {
		t.Error("100x accepted above the 50x listing cap")
	}
}

func TestTradingRequiresKey(t *testing.T) {
	v := newMockVenue(t)
	c, err := New(context.Background(), v.config())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	_, err = c.CreateOrder(context.Background(), model.OrderRequest{
		Symbol: "BTC", Side: model.SideLong, Size: 1, Price: 50000, Type: model.OrderTypeLimit,
	})
	if !errors.Is(err, exchange.ErrNoCredentials) {
		t.Errorf("CreateOrder without key = %v, want ErrNoCredentials", err)
	}
}

func TestAccountRESTFallback(t *testing.T) {
	v := newMockVenue(t)
	v.muteAccount = true
	account, priv := testKeypair(t)
	cfg := v.config()
	cfg.Account = account
	cfg.PrivateKey = priv
	cfg.ReadyTimeout = 50 * time.Millisecond
	c, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	pos, err := c.GetPosition(context.Background(), "SOL")
	if err != nil {
		t.Fatalf("GetPosition: %v", err)
	}
	if pos.Side != model.SideShort || pos.Size != 10 {
		t.Errorf("position = %+v, want short 10 from REST", pos)
	}

	coll, err := c.GetCollateral(context.Background())
	if err != nil {
		t.Fatalf("GetCollateral: %v", err)
	}
	if coll.Total != 2500.75 {
		t.Errorf("Total = %v, want 2500.75", coll.Total)
	}
}
