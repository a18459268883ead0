// Package state persists positions and session aggregates to a single
// JSON file so a restarted engine can restore inventory.
//
// Saves write a temp file in the target directory and rename it into
// place, so a crash mid-write never leaves a truncated state file.
// A missing or malformed file loads as fresh empty state.
package state
