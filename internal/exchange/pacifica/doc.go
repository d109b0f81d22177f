// Package pacifica implements the Pacifica venue adapter.
//
// All market and account data arrives over one WebSocket (prices, book,
// account_info, account_positions, account_orders); trading requests are
// ed25519-signed and sent over the same socket with uuid-correlated
// responses, falling back to REST when the socket is down.
package pacifica
