// Package backpack implements the Backpack venue adapter. Market data
// arrives over per-symbol depth and markPrice streams, with incremental
// depth deltas validated against update ids and reseeded from a REST
// snapshot on any gap. Private position and order streams authenticate
// with an ed25519 instruction signature; trading itself goes over REST
// with the same signature scheme, as the venue has no socket trading
// path.
package backpack
