package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/taehong0-0/mpdex/internal/model"
)

// Kind identifies a supported venue.
type Kind string

const (
	KindHyperliquid Kind = "hyperliquid"
	KindPacifica    Kind = "pacifica"
	KindBackpack    Kind = "backpack"
)

// Client is the unified trading surface over one venue connection. Read
// accessors answer from stream-maintained state and only fall back to REST
// when the stream has nothing yet. Symbol arguments take the coin form,
// optionally prefixed "dex:" on venues with multiple orderbook universes.
type Client interface {
	// Kind returns the venue this client talks to.
	Kind() Kind

	// GetMarkPrice returns the current mark/mid pricing for symbol.
	GetMarkPrice(ctx context.Context, symbol string) (model.Price, error)

	// GetOrderbook returns the current book truncated to depth levels per
	// side (0 means the venue cap).
	GetOrderbook(ctx context.Context, symbol string, depth int) (model.BookSnapshot, error)

	// GetPosition returns the account's position in symbol. A flat
	// position is returned with Side flat, not an error.
	GetPosition(ctx context.Context, symbol string) (model.Position, error)

	// GetOpenOrders returns resting orders, all symbols when symbol is
	// empty.
	GetOpenOrders(ctx context.Context, symbol string) ([]model.OpenOrder, error)

	// GetCollateral returns account equity and available balance.
	GetCollateral(ctx context.Context) (model.Collateral, error)

	// CreateOrder places an order and returns the venue acknowledgment.
	CreateOrder(ctx context.Context, req model.OrderRequest) (model.OrderAck, error)

	// CancelOrders cancels the given order IDs on symbol, reporting
	// per-order outcomes.
	CancelOrders(ctx context.Context, symbol string, orderIDs []string) ([]model.CancelResult, error)

	// UpdateLeverage sets the leverage used for symbol.
	UpdateLeverage(ctx context.Context, symbol string, leverage int, cross bool) error

	// Close tears down the venue connection.
	Close() error
}

// Config carries everything a venue adapter needs to come up.
type Config struct {
	WSURL   string
	RestURL string
	Proxy   string

	// Account identity: the public identifier (wallet address or public
	// key) and its signing secret. Both empty means public data only.
	Account    string
	PrivateKey string

	// Agent is an optional delegated signing key used instead of the
	// account key on venues that support it.
	Agent string

	// Builder attribution for venues with builder fee programs.
	BuilderCode    string
	BuilderFeeRate int
	// BuilderFeeRates overrides BuilderFeeRate per orderbook universe.
	// Keys are a dex name, "dex" (any non-default dex), or "base".
	BuilderFeeRates map[string]int

	// Dex selects a non-default orderbook universe where applicable.
	Dex string

	// ReadyTimeout bounds how long accessors wait for the first stream
	// payload before falling back or failing.
	ReadyTimeout time.Duration

	Logger *slog.Logger
}

// Constructor builds a connected venue client.
type Constructor func(ctx context.Context, cfg Config) (Client, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[Kind]Constructor)
)

// Register installs a venue constructor. Venue packages call this from
// init.
func Register(kind Kind, ctor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[kind] = ctor
}

// New builds a client for kind using its registered constructor.
func New(ctx context.Context, kind Kind, cfg Config) (Client, error) {
	registryMu.RLock()
	ctor, ok := registry[kind]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVenue, kind)
	}
	return ctor(ctx, cfg)
}

// Kinds returns the registered venue kinds, sorted.
func Kinds() []Kind {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]Kind, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
