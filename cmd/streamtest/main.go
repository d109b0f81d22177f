// streamtest connects to a venue and streams cached market state to the
// console. Usage: go run ./cmd/streamtest --config configs/mpdex.yaml --venue hyperliquid --symbol BTC
//
// Credentials come from the config file; ${VAR} references resolve from
// the environment (a .env file is loaded when present), so account data
// appears only when keys are configured.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/taehong0-0/mpdex/internal/config"
	"github.com/taehong0-0/mpdex/internal/exchange"
	"github.com/taehong0-0/mpdex/internal/pool"

	_ "github.com/taehong0-0/mpdex/internal/exchange/backpack"
	_ "github.com/taehong0-0/mpdex/internal/exchange/hyperliquid"
	_ "github.com/taehong0-0/mpdex/internal/exchange/pacifica"
)

func main() {
	configPath := flag.String("config", "configs/mpdex.yaml", "path to config file")
	venue := flag.String("venue", "hyperliquid", "venue to connect to")
	symbol := flag.String("symbol", "BTC", "symbol to stream")
	interval := flag.Duration("interval", 2*time.Second, "print interval")
	flag.Parse()

	// A missing .env is fine; the config may not reference any vars.
	godotenv.Load()

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	kind := exchange.Kind(strings.ToLower(*venue))
	section, ok := cfg.Venue(kind)
	if !ok {
		logger.Error("venue not configured", "venue", kind, "known", exchange.Kinds())
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	venueCfg := section.ExchangeConfig()
	venueCfg.Logger = logger

	p := pool.New(logger)
	defer func() {
		if err := p.CloseAll(); err != nil {
			logger.Error("close clients", "error", err)
		}
	}()

	client, err := p.Acquire(ctx, kind, venueCfg)
	if err != nil {
		logger.Error("connect venue", "venue", kind, "error", err)
		os.Exit(1)
	}
	logger.Info("connected", "venue", kind, "symbol", *symbol,
		"account", venueCfg.Account != "")

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return
		case <-ticker.C:
			printState(ctx, client, *symbol, venueCfg.Account != "", logger)
		}
	}
}

func printState(ctx context.Context, client exchange.Client, symbol string, authed bool, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	price, err := client.GetMarkPrice(ctx, symbol)
	if err != nil {
		logger.Warn("mark price unavailable", "symbol", symbol, "error", err)
	} else {
		logger.Info("price", "symbol", symbol,
			"mark", price.Mark, "mid", price.Mid, "funding", price.Funding)
	}

	book, err := client.GetOrderbook(ctx, symbol, 5)
	if err != nil {
		logger.Warn("orderbook unavailable", "symbol", symbol, "error", err)
	} else if len(book.Bids) > 0 && len(book.Asks) > 0 {
		logger.Info("book", "symbol", symbol,
			"bid", book.Bids[0].Price, "bid_size", book.Bids[0].Size,
			"ask", book.Asks[0].Price, "ask_size", book.Asks[0].Size,
			"spread", book.Asks[0].Price-book.Bids[0].Price)
	}

	if !authed {
		return
	}

	pos, err := client.GetPosition(ctx, symbol)
	if err != nil {
		logger.Warn("position unavailable", "symbol", symbol, "error", err)
	} else {
		logger.Info("position", "symbol", symbol,
			"side", pos.Side, "size", pos.Size, "entry", pos.EntryPrice, "upnl", pos.UnrealizedPnL)
	}

	coll, err := client.GetCollateral(ctx)
	if err != nil {
		logger.Warn("collateral unavailable", "error", err)
	} else {
		logger.Info("collateral", "total", coll.Total, "available", coll.Available)
	}
}

func newLogger(lc config.LogConfig) *slog.Logger {
	var level slog.Level
	switch lc.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if lc.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
