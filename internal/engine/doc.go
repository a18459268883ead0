// Package engine runs the strategy event loop.
//
// A single consumer goroutine owns the order books, market makers,
// metadata, position book and order manager; everything else reaches
// the engine through the event queue. Status sampling goroutines read
// aggregate counters behind a dedicated mutex.
package engine
