package config

import (
	"time"

	"github.com/taehong0-0/mpdex/internal/exchange"
)

// Config is the root configuration.
type Config struct {
	Log    LogConfig              `yaml:"log"`
	Venues map[string]VenueConfig `yaml:"venues"`
}

// LogConfig holds structured logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// VenueConfig holds one venue's endpoints and credentials.
type VenueConfig struct {
	WSURL   string `yaml:"ws_url"`
	RestURL string `yaml:"rest_url"`
	Proxy   string `yaml:"proxy"`

	Account    string `yaml:"account"`
	PrivateKey string `yaml:"private_key"`
	Agent      string `yaml:"agent"`

	BuilderCode     string         `yaml:"builder_code"`
	BuilderFeeRate  int            `yaml:"builder_fee_rate"`
	BuilderFeeRates map[string]int `yaml:"builder_fee_rates"`
	Dex             string         `yaml:"dex"`

	ReadyTimeout time.Duration `yaml:"ready_timeout"`
}

// ExchangeConfig converts a venue section into the adapter's config.
// The logger is left for the caller to attach.
func (v VenueConfig) ExchangeConfig() exchange.Config {
	return exchange.Config{
		WSURL:           v.WSURL,
		RestURL:         v.RestURL,
		Proxy:           v.Proxy,
		Account:         v.Account,
		PrivateKey:      v.PrivateKey,
		Agent:           v.Agent,
		BuilderCode:     v.BuilderCode,
		BuilderFeeRate:  v.BuilderFeeRate,
		BuilderFeeRates: v.BuilderFeeRates,
		Dex:             v.Dex,
		ReadyTimeout:    v.ReadyTimeout,
	}
}

// Venue returns the section for kind, with ok reporting presence.
func (c *Config) Venue(kind exchange.Kind) (VenueConfig, bool) {
	v, ok := c.Venues[string(kind)]
	return v, ok
}
