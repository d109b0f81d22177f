// Package api provides the shared REST client the exchange adapters build
// on: JSON requests with retries, rate limiting, optional proxy tunneling,
// and a per-request header hook for venue authentication schemes.
package api
