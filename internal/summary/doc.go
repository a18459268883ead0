// Package summary aggregates per-token market quality over rolling
// windows and periodically emits scored summary rows to
// market_summary.csv.
//
// The flush cadence adapts to time-to-event: active markets close to
// their event flush every 30s, distant ones every 30 minutes.
package summary
