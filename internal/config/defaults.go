package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "text"
	DefaultReadyTimeout = 10 * time.Second
)

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}

	for name, v := range c.Venues {
		if v.ReadyTimeout == 0 {
			v.ReadyTimeout = DefaultReadyTimeout
		}
		c.Venues[name] = v
	}
}
