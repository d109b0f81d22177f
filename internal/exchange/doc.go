// Package exchange defines the venue-neutral trading interface and the
// registry the concrete adapters plug into. Accessors serve from locally
// maintained stream state; trading actions go out over the venue's
// lowest-latency signed path.
package exchange
