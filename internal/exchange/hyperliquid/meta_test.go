package hyperliquid

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/taehong0-0/mpdex/internal/api"
	"github.com/taehong0-0/mpdex/internal/exchange"
)

func metaServer(t *testing.T, fetches *atomic.Int32) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req)
		switch req["type"] {
		case "meta":
			if req["dex"] == "unit" {
				fetches.Add(1)
				w.Write([]byte(`{"universe":[{"name":"UBTC","szDecimals":3,"maxLeverage":10}]}`))
				return
			}
			fetches.Add(1)
			w.Write([]byte(`{"universe":[{"name":"BTC","szDecimals":5,"maxLeverage":40},{"name":"ETH","szDecimals":4,"maxLeverage":25},{"name":"OLD","szDecimals":2,"isDelisted":true},{"name":"kPEPE","szDecimals":0,"maxLeverage":10}]}`))
		case "perpDexs":
			w.Write([]byte(`[null,{"name":"unit"}]`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCatalogLookup(t *testing.T) {
	var fetches atomic.Int32
	srv := metaServer(t, &fetches)
	cat := NewCatalog(api.NewClient(srv.URL), nil)

	a, err := cat.Lookup(context.Background(), "btc")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if a.ID != 0 || a.SzDecimals != 5 || a.PxDecimals != 1 {
		t.Errorf("BTC asset = %+v", a)
	}

	eth, err := cat.Lookup(context.Background(), "ETH")
	if err != nil {
		t.Fatalf("Lookup ETH: %v", err)
	}
	if eth.ID != 1 || eth.PxDecimals != 2 {
		t.Errorf("ETH asset = %+v", eth)
	}

	// Both lookups share one fetch.
	if got := fetches.Load(); got != 1 {
		t.Errorf("meta fetched %d times, want 1", got)
	}
}

func TestCatalogUnknownSymbol(t *testing.T) {
	var fetches atomic.Int32
	srv := metaServer(t, &fetches)
	cat := NewCatalog(api.NewClient(srv.URL), nil)

	if _, err := cat.Lookup(context.Background(), "NOPE"); !errors.Is(err, exchange.ErrUnknownSymbol) {
		t.Errorf("err = %v, want ErrUnknownSymbol", err)
	}
	// Delisted assets stay invisible.
	if _, err := cat.Lookup(context.Background(), "OLD"); !errors.Is(err, exchange.ErrUnknownSymbol) {
		t.Errorf("delisted lookup err = %v, want ErrUnknownSymbol", err)
	}
	// Misses after a load must not refetch.
	if got := fetches.Load(); got != 1 {
		t.Errorf("meta fetched %d times, want 1", got)
	}
}

func TestCatalogBuilderDexOffset(t *testing.T) {
	var fetches atomic.Int32
	srv := metaServer(t, &fetches)
	cat := NewCatalog(api.NewClient(srv.URL), nil)

	a, err := cat.Lookup(context.Background(), "unit:ubtc")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if want := builderDexBase + 1*10000 + 0; a.ID != want {
		t.Errorf("asset id = %d, want %d", a.ID, want)
	}
	if a.Coin != "UBTC" {
		t.Errorf("coin = %q, want UBTC", a.Coin)
	}
}

func TestCatalogConcurrentColdLookups(t *testing.T) {
	var fetches atomic.Int32
	srv := metaServer(t, &fetches)
	cat := NewCatalog(api.NewClient(srv.URL), nil)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cat.Lookup(context.Background(), "BTC"); err != nil {
				t.Errorf("Lookup: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := fetches.Load(); got != 1 {
		t.Errorf("meta fetched %d times under concurrency, want 1", got)
	}
}

func TestCatalogForceRefresh(t *testing.T) {
	var fetches atomic.Int32
	srv := metaServer(t, &fetches)
	cat := NewCatalog(api.NewClient(srv.URL), nil)

	if _, err := cat.Lookup(context.Background(), "BTC"); err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if err := cat.ForceRefresh(context.Background()); err != nil {
		t.Fatalf("ForceRefresh: %v", err)
	}
	if got := fetches.Load(); got != 2 {
		t.Errorf("meta fetched %d times, want 2 after refresh", got)
	}
}

func TestCatalogPreservesListingCase(t *testing.T) {
	var fetches atomic.Int32
	srv := metaServer(t, &fetches)
	cat := NewCatalog(api.NewClient(srv.URL), nil)

	a, err := cat.Lookup(context.Background(), "kpepe")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if a.Coin != "KPEPE" {
		t.Errorf("coin = %q, want KPEPE", a.Coin)
	}
	if a.Wire != "kPEPE" {
		t.Errorf("wire name = %q, want kPEPE", a.Wire)
	}
	if got := cat.WireName("KPEPE"); got != "kPEPE" {
		t.Errorf("WireName(KPEPE) = %q, want kPEPE", got)
	}
	// Unloaded keys fall back to the key itself.
	if got := cat.WireName("unit:UBTC"); got != "unit:UBTC" {
		t.Errorf("WireName(unit:UBTC) = %q, want passthrough", got)
	}
}

func TestSharedCatalogPerEndpoint(t *testing.T) {
	var fetches atomic.Int32
	srv := metaServer(t, &fetches)
	other := metaServer(t, &fetches)

	a := SharedCatalog(api.NewClient(srv.URL), nil)
	b := SharedCatalog(api.NewClient(srv.URL), nil)
	c := SharedCatalog(api.NewClient(other.URL), nil)

	if a != b {
		t.Error("same endpoint returned distinct catalogs")
	}
	if a == c {
		t.Error("distinct endpoints share one catalog")
	}

	// Lookups through either handle hit one shared fetch.
	if _, err := a.Lookup(context.Background(), "BTC"); err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if _, err := b.Lookup(context.Background(), "ETH"); err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got := fetches.Load(); got != 1 {
		t.Errorf("meta fetched %d times across shared handles, want 1", got)
	}
}
