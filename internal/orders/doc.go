// Package orders tracks the lifecycle of our resting orders and, in
// paper mode, simulates executions by crossing them against the last
// known book.
//
// Live mode shares the same call surface; venue placement and
// cancellation are stubs to be backed by the venue REST adapter.
package orders
