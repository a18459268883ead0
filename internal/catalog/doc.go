// Package catalog fetches tradable events and markets from the venue's
// catalog HTTP API.
//
// The wire format nests JSON-encoded strings for token IDs and
// outcomes; conversion to model types happens here so the rest of the
// engine never sees the quirk.
package catalog
