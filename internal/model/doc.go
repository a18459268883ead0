// Package model defines shared data types used across the market maker.
//
// Conventions:
//   - Prices: float64 in (0, 1); quoted prices are rounded to $0.01 and
//     clamped to [0.01, 0.99]
//   - Sizes: float64 outcome shares
//   - IDs: opaque strings (token IDs, condition IDs, order IDs)
package model
