// Package config loads the YAML configuration for the trading clients.
// Values support ${VAR} environment expansion so key material can stay
// out of the file itself.
package config
