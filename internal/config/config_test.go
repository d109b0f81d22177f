package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	yaml := `
log:
  level: debug
venues:
  hyperliquid:
    account: "0xabc"
    private_key: "0xdef"
    builder_code: myref
    builder_fee_rate: 25
  backpack:
    ws_url: wss://ws.backpack.exchange
`
	cfg, err := Load(writeTempFile(t, yaml))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
	hl := cfg.Venues["hyperliquid"]
	if hl.Account != "0xabc" || hl.BuilderFeeRate != 25 {
		t.Errorf("hyperliquid section = %+v", hl)
	}
	if cfg.Venues["backpack"].WSURL != "wss://ws.backpack.exchange" {
		t.Errorf("backpack ws_url = %q", cfg.Venues["backpack"].WSURL)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_PACIFICA_KEY", "secret123")

	yaml := `
venues:
  pacifica:
    account: pubkey
    private_key: ${TEST_PACIFICA_KEY}
`
	cfg, err := Load(writeTempFile(t, yaml))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := cfg.Venues["pacifica"].PrivateKey; got != "secret123" {
		t.Errorf("private_key = %q, want secret123", got)
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
venues:
  backpack: {}
`
	cfg, err := LoadWithDefaults(writeTempFile(t, yaml))
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}
	if cfg.Log.Level != DefaultLogLevel || cfg.Log.Format != DefaultLogFormat {
		t.Errorf("log defaults not applied: %+v", cfg.Log)
	}
	if got := cfg.Venues["backpack"].ReadyTimeout; got != DefaultReadyTimeout {
		t.Errorf("ready_timeout = %v, want %v", got, DefaultReadyTimeout)
	}
}

func TestValidateRejectsUnknownVenue(t *testing.T) {
	yaml := `
venues:
  binance: {}
`
	_, err := LoadAndValidate(writeTempFile(t, yaml))
	if err == nil || !strings.Contains(err.Error(), "unknown venue") {
		t.Errorf("err = %v, want unknown venue", err)
	}
}

func TestValidateRejectsHalfCredentials(t *testing.T) {
	yaml := `
venues:
  pacifica:
    account: pubkey
`
	_, err := LoadAndValidate(writeTempFile(t, yaml))
	if err == nil || !strings.Contains(err.Error(), "set together") {
		t.Errorf("err = %v, want credential pairing error", err)
	}
}

func TestValidateRequiresVenues(t *testing.T) {
	if _, err := LoadAndValidate(writeTempFile(t, "log:\n  level: info\n")); err == nil {
		t.Error("empty venue map accepted")
	}
}

func TestExchangeConfigMapping(t *testing.T) {
	v := VenueConfig{
		WSURL:        "wss://x",
		Account:      "acct",
		PrivateKey:   "key",
		Dex:          "unit",
		ReadyTimeout: 3 * time.Second,
	}
	ec := v.ExchangeConfig()
	if ec.WSURL != "wss://x" || ec.Account != "acct" || ec.Dex != "unit" || ec.ReadyTimeout != 3*time.Second {
		t.Errorf("mapped config = %+v", ec)
	}
}
