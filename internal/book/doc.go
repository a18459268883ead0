// Package book maintains a two-sided limit order book for one outcome
// token, built from feed snapshots and price-level deltas.
//
// Levels live in ordered B-tree maps keyed by price. Crossed books from
// the feed are represented as-is; callers decide whether to quote.
package book
