// Package adverse detects toxic order flow and widens quoted spreads in
// response.
//
// Each fill is tracked against the mid at fill time; the mid move 5 and
// 30 seconds later classifies the fill. Toxic fills ratchet a per-token
// spread multiplier up, favorable fills and a periodic decay bring it
// back toward 1. A volume clock scales the multiplier with the recent
// fill rate, and an inventory term prices unwind-side quotes tighter
// than accumulation-side ones.
package adverse
