// trade places or cancels a single order from the command line, useful
// for checking venue credentials and symbol metadata end to end.
//
//	go run ./cmd/trade --config configs/mpdex.yaml --venue pacifica --symbol SOL --side long --size 0.1 --price 150
//	go run ./cmd/trade --config configs/mpdex.yaml --venue pacifica --symbol SOL --cancel 9001,9002
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/taehong0-0/mpdex/internal/config"
	"github.com/taehong0-0/mpdex/internal/exchange"
	"github.com/taehong0-0/mpdex/internal/model"

	_ "github.com/taehong0-0/mpdex/internal/exchange/backpack"
	_ "github.com/taehong0-0/mpdex/internal/exchange/hyperliquid"
	_ "github.com/taehong0-0/mpdex/internal/exchange/pacifica"
)

func main() {
	configPath := flag.String("config", "configs/mpdex.yaml", "path to config file")
	venue := flag.String("venue", "", "venue to trade on")
	symbol := flag.String("symbol", "", "symbol to trade")
	side := flag.String("side", "long", "long or short")
	size := flag.Float64("size", 0, "order size in base units")
	price := flag.Float64("price", 0, "limit price (0 = market order)")
	slippage := flag.Float64("slippage", 0, "market order slippage fraction")
	reduceOnly := flag.Bool("reduce-only", false, "reduce-only order")
	cancel := flag.String("cancel", "", "comma-separated order ids to cancel instead of placing")
	flag.Parse()

	godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fatal("load config: %v", err)
	}
	if *venue == "" || *symbol == "" {
		fatal("--venue and --symbol are required")
	}

	kind := exchange.Kind(strings.ToLower(*venue))
	section, ok := cfg.Venue(kind)
	if !ok {
		fatal("venue %q not configured", kind)
	}
	venueCfg := section.ExchangeConfig()
	venueCfg.Logger = logger

	ctx, cancelCtx := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancelCtx()

	client, err := exchange.New(ctx, kind, venueCfg)
	if err != nil {
		fatal("connect %s: %v", kind, err)
	}
	defer client.Close()

	if *cancel != "" {
		ids := strings.Split(*cancel, ",")
		results, err := client.CancelOrders(ctx, *symbol, ids)
		if err != nil {
			fatal("cancel: %v", err)
		}
		for _, r := range results {
			if r.OK {
				fmt.Printf("cancelled %s\n", r.OrderID)
			} else {
				fmt.Printf("cancel %s failed: %s\n", r.OrderID, r.Err)
			}
		}
		return
	}

	if *size <= 0 {
		fatal("--size must be positive")
	}
	req := model.OrderRequest{
		Symbol:     *symbol,
		Side:       model.SideLong,
		Size:       *size,
		ReduceOnly: *reduceOnly,
	}
	if *side == "short" {
		req.Side = model.SideShort
	}
	if *price > 0 {
		req.Type = model.OrderTypeLimit
		req.Price = *price
	} else {
		req.Type = model.OrderTypeMarket
		req.Slippage = *slippage
	}

	ack, err := client.CreateOrder(ctx, req)
	if err != nil {
		if exchange.IsRejected(err) {
			fatal("order rejected: %v", err)
		}
		fatal("order failed: %v", err)
	}

	fmt.Printf("order %s (%s): status=%s", ack.OrderID, ack.ClientOrderID, ack.Status)
	if ack.FilledSize > 0 {
		fmt.Printf(" filled=%v avg=%v", ack.FilledSize, ack.AvgPrice)
	}
	fmt.Println()
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
