// Package archive is an optional Postgres sink for fills and price
// updates.
//
// Rows are buffered in channels, batched, and flushed on size or a
// ticker. The archive never blocks the strategy goroutine: when its
// buffer is full rows are dropped and counted.
package archive
