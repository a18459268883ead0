// Package feed consumes the venue's market-data websocket and turns
// book snapshots and price-change messages into engine events.
//
// The feed owns one connection, subscribes to the configured asset IDs
// and reconnects with linear backoff when the transport drops. After
// the attempt budget is exhausted it enqueues a Shutdown event; the
// engine treats that as a clean terminal condition.
package feed
