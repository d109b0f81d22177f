// Package hyperliquid implements the Hyperliquid venue adapter.
//
// Market and account data come from WebSocket subscriptions (allMids,
// l2Book, webData2) held in local caches; trading actions prefer the
// WebSocket post channel and fall back to the REST exchange endpoint.
// Builder-deployed perp universes are addressed with "dex:COIN" symbols.
package hyperliquid
