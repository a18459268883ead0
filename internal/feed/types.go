package feed

import (
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no ping)")
	ErrAlreadyClosed   = errors.New("already closed")
)

// TimestampedMessage wraps raw message data with its receive timestamp.
type TimestampedMessage struct {
	Data       []byte
	ReceivedAt time.Time
}

// ClientConfig holds settings for a single websocket connection.
type ClientConfig struct {
	URL              string
	BufferSize       int
	WriteTimeout     time.Duration
	PingInterval     time.Duration
	PingTimeout      time.Duration
	HandshakeTimeout time.Duration
}

// DefaultClientConfig returns the standard connection settings.
func DefaultClientConfig(url string) ClientConfig {
	return ClientConfig{
		URL:              url,
		BufferSize:       10000,
		WriteTimeout:     5 * time.Second,
		PingInterval:     5 * time.Second,
		PingTimeout:      30 * time.Second,
		HandshakeTimeout: 10 * time.Second,
	}
}

// subscribeRequest is the market-channel subscription payload.
type subscribeRequest struct {
	Type      string   `json:"type"`
	AssetsIDs []string `json:"assets_ids"`
}

// wireLevel is one price level as it appears on the wire: decimal
// strings.
type wireLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// bookMessage is a full book snapshot for one asset.
type bookMessage struct {
	EventType string      `json:"event_type"`
	AssetID   string      `json:"asset_id"`
	Bids      []wireLevel `json:"bids"`
	Asks      []wireLevel `json:"asks"`
}

// wireChange is one level change inside a price_change message.
type wireChange struct {
	AssetID string `json:"asset_id"`
	Price   string `json:"price"`
	Size    string `json:"size"`
	Side    string `json:"side"`
}

// priceChangeMessage carries a batch of level changes.
type priceChangeMessage struct {
	EventType    string       `json:"event_type"`
	AssetID      string       `json:"asset_id"`
	PriceChanges []wireChange `json:"price_changes"`
}
