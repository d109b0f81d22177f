package config

import (
	"errors"
	"fmt"
	"slices"

	"github.com/taehong0-0/mpdex/internal/exchange"
)

// Validate checks that all configured sections are usable.
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug/info/warn/error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	if len(c.Venues) == 0 {
		return errors.New("at least one venue section is required")
	}

	known := []exchange.Kind{exchange.KindHyperliquid, exchange.KindPacifica, exchange.KindBackpack}
	for name, v := range c.Venues {
		if !slices.Contains(known, exchange.Kind(name)) {
			return fmt.Errorf("venues.%s: unknown venue (known: %v)", name, known)
		}
		if err := v.validate("venues." + name); err != nil {
			return err
		}
	}
	return nil
}

func (v VenueConfig) validate(prefix string) error {
	// Credentials come as a pair: a public identity without its key (or
	// the reverse) is a misconfiguration, not a public-data setup.
	if (v.Account == "") != (v.PrivateKey == "") {
		return fmt.Errorf("%s: account and private_key must be set together", prefix)
	}
	if v.ReadyTimeout < 0 {
		return fmt.Errorf("%s.ready_timeout must be >= 0", prefix)
	}
	if v.BuilderFeeRate < 0 {
		return fmt.Errorf("%s.builder_fee_rate must be >= 0", prefix)
	}
	return nil
}
