// Package model defines the normalized records shared by every exchange
// adapter: prices, orderbooks, positions, open orders and collateral.
//
// Conventions:
//   - Prices and sizes: float64 in exchange display units
//   - Timestamps: int64 milliseconds since Unix epoch
//   - Symbols: uppercase coin names; composite "dex:COIN" for assets listed
//     on an auxiliary venue; "BASE/QUOTE" for spot pairs
package model
