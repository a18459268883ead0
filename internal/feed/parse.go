package feed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/anoble/polymaker/internal/event"
)

// parseMessage converts one raw frame into engine events. The venue
// sends either a single JSON object or an array of them; unknown
// event types are skipped.
func parseMessage(data []byte) ([]event.Event, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	var frames []json.RawMessage
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &frames); err != nil {
			return nil, fmt.Errorf("parse message array: %w", err)
		}
	} else {
		frames = []json.RawMessage{trimmed}
	}

	var events []event.Event
	for _, frame := range frames {
		evs, err := parseFrame(frame)
		if err != nil {
			return nil, err
		}
		events = append(events, evs...)
	}
	return events, nil
}

func parseFrame(frame json.RawMessage) ([]event.Event, error) {
	var head struct {
		EventType string `json:"event_type"`
	}
	if err := json.Unmarshal(frame, &head); err != nil {
		return nil, fmt.Errorf("parse frame header: %w", err)
	}

	switch head.EventType {
	case "book":
		return parseBook(frame)
	case "price_change":
		return parsePriceChange(frame)
	default:
		return nil, nil
	}
}

func parseBook(frame json.RawMessage) ([]event.Event, error) {
	var msg bookMessage
	if err := json.Unmarshal(frame, &msg); err != nil {
		return nil, fmt.Errorf("parse book message: %w", err)
	}
	if msg.AssetID == "" {
		return nil, nil
	}

	bids, err := parseLevels(msg.Bids)
	if err != nil {
		return nil, fmt.Errorf("parse book bids: %w", err)
	}
	asks, err := parseLevels(msg.Asks)
	if err != nil {
		return nil, fmt.Errorf("parse book asks: %w", err)
	}

	return []event.Event{event.NewBookSnapshot(msg.AssetID, bids, asks)}, nil
}

func parsePriceChange(frame json.RawMessage) ([]event.Event, error) {
	var msg priceChangeMessage
	if err := json.Unmarshal(frame, &msg); err != nil {
		return nil, fmt.Errorf("parse price_change message: %w", err)
	}

	var events []event.Event
	for _, change := range msg.PriceChanges {
		assetID := change.AssetID
		if assetID == "" {
			assetID = msg.AssetID
		}
		if assetID == "" {
			continue
		}

		level, err := parseLevel(change.Price, change.Size)
		if err != nil {
			return nil, fmt.Errorf("parse price change level: %w", err)
		}

		// The side names the book half the change applies to.
		if strings.EqualFold(change.Side, "BUY") {
			events = append(events, event.NewPriceLevelUpdate(assetID, []event.PriceLevel{level}, nil))
		} else {
			events = append(events, event.NewPriceLevelUpdate(assetID, nil, []event.PriceLevel{level}))
		}
	}
	return events, nil
}

func parseLevels(levels []wireLevel) ([]event.PriceLevel, error) {
	parsed := make([]event.PriceLevel, 0, len(levels))
	for _, lvl := range levels {
		pl, err := parseLevel(lvl.Price, lvl.Size)
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, pl)
	}
	return parsed, nil
}

// parseLevel converts wire decimal strings to a price level.
func parseLevel(priceStr, sizeStr string) (event.PriceLevel, error) {
	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return event.PriceLevel{}, fmt.Errorf("price %q: %w", priceStr, err)
	}
	size, err := decimal.NewFromString(sizeStr)
	if err != nil {
		return event.PriceLevel{}, fmt.Errorf("size %q: %w", sizeStr, err)
	}
	return event.PriceLevel{
		Price: price.InexactFloat64(),
		Size:  size.InexactFloat64(),
	}, nil
}
