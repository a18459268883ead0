// Package event defines the engine's event union and the blocking
// multi-producer single-consumer queue that feeds the strategy thread.
//
// Producers are the market-data feed goroutine (book events, and a
// shutdown once its reconnect budget is spent), the engine's timer
// goroutine (timer ticks), the strategy goroutine itself (paper fills)
// and Engine.Stop (shutdown). The strategy
// goroutine is the only consumer; events are delivered in strict
// enqueue order.
package event
