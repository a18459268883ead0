package feed

import (
	"testing"

	"github.com/anoble/polymaker/internal/event"
)

func TestParseMessage_Book(t *testing.T) {
	raw := []byte(`{
		"event_type": "book",
		"asset_id": "tok1",
		"bids": [{"price": "0.48", "size": "1000"}, {"price": "0.47", "size": "500"}],
		"asks": [{"price": "0.54", "size": "800"}]
	}`)

	events, err := parseMessage(raw)
	if err != nil {
		t.Fatalf("parseMessage failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}

	snap, ok := events[0].(*event.BookSnapshot)
	if !ok {
		t.Fatalf("event type = %T, want *event.BookSnapshot", events[0])
	}
	if snap.Token != "tok1" {
		t.Errorf("Token = %q, want tok1", snap.Token)
	}
	if len(snap.Bids) != 2 || len(snap.Asks) != 1 {
		t.Fatalf("levels = %d/%d, want 2/1", len(snap.Bids), len(snap.Asks))
	}
	if snap.Bids[0].Price != 0.48 || snap.Bids[0].Size != 1000 {
		t.Errorf("first bid = %+v, want {0.48 1000}", snap.Bids[0])
	}
}

func TestParseMessage_PriceChange(t *testing.T) {
	raw := []byte(`{
		"event_type": "price_change",
		"price_changes": [
			{"asset_id": "tok1", "price": "0.48", "size": "0", "side": "BUY"},
			{"asset_id": "tok2", "price": "0.52", "size": "250", "side": "SELL"}
		]
	}`)

	events, err := parseMessage(raw)
	if err != nil {
		t.Fatalf("parseMessage failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("events = %d, want one per change", len(events))
	}

	first, ok := events[0].(*event.PriceLevelUpdate)
	if !ok {
		t.Fatalf("event type = %T, want *event.PriceLevelUpdate", events[0])
	}
	if first.Token != "tok1" {
		t.Errorf("Token = %q, want tok1", first.Token)
	}
	if len(first.Bids) != 1 || len(first.Asks) != 0 {
		t.Errorf("BUY change should land on the bid side, got %d/%d", len(first.Bids), len(first.Asks))
	}
	if first.Bids[0].Size != 0 {
		t.Errorf("size = %v, want 0 (level removal)", first.Bids[0].Size)
	}

	second := events[1].(*event.PriceLevelUpdate)
	if len(second.Asks) != 1 || len(second.Bids) != 0 {
		t.Errorf("SELL change should land on the ask side, got %d/%d", len(second.Bids), len(second.Asks))
	}
	if second.Asks[0].Price != 0.52 || second.Asks[0].Size != 250 {
		t.Errorf("ask level = %+v, want {0.52 250}", second.Asks[0])
	}
}

func TestParseMessage_ArrayOfFrames(t *testing.T) {
	raw := []byte(`[
		{"event_type": "book", "asset_id": "tok1", "bids": [{"price": "0.40", "size": "10"}], "asks": []},
		{"event_type": "book", "asset_id": "tok2", "bids": [], "asks": [{"price": "0.60", "size": "20"}]}
	]`)

	events, err := parseMessage(raw)
	if err != nil {
		t.Fatalf("parseMessage failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
}

func TestParseMessage_UnknownTypeSkipped(t *testing.T) {
	raw := []byte(`{"event_type": "last_trade_price", "asset_id": "tok1"}`)

	events, err := parseMessage(raw)
	if err != nil {
		t.Fatalf("parseMessage failed: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("events = %d, want unknown types skipped", len(events))
	}
}

func TestParseMessage_Malformed(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"bad json", `{not json`},
		{"bad price", `{"event_type": "book", "asset_id": "t", "bids": [{"price": "abc", "size": "1"}], "asks": []}`},
		{"bad array", `[{"event_type": "book"`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := parseMessage([]byte(tc.raw)); err == nil {
				t.Error("expected an error for malformed input")
			}
		})
	}
}

func TestParseMessage_Empty(t *testing.T) {
	events, err := parseMessage([]byte("  "))
	if err != nil {
		t.Fatalf("parseMessage failed: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("events = %d, want 0 for blank input", len(events))
	}
}
