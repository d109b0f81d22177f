// Package cache holds the in-memory state each exchange connection keeps
// current from its streams: keyed snapshot stores with last-write-wins
// semantics and readiness gates that let accessors wait for the first
// message on a channel.
package cache
