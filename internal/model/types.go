package model

import "time"

// -----------------------------------------------------------------------------
// Scalar Types
// -----------------------------------------------------------------------------

// Price is a binary outcome token price in (0, 1).
type Price = float64

// Size is a quantity of outcome shares.
type Size = float64

// TokenID identifies a single outcome token on the venue.
type TokenID = string

// OrderID identifies an order within one process ("ORD_<n>").
type OrderID = string

// Side is the direction of an order or fill.
type Side int

const (
	Buy Side = iota
	Sell
)

// String returns the audit-log spelling of the side.
func (s Side) String() string {
	if s == Buy {
		return "BUY"
	}
	return "SELL"
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// -----------------------------------------------------------------------------
// Orders & Quotes
// -----------------------------------------------------------------------------

// OrderStatus is the lifecycle state of an order.
type OrderStatus int

const (
	OrderOpen OrderStatus = iota
	OrderFilled
	OrderCancelled
)

func (s OrderStatus) String() string {
	switch s {
	case OrderOpen:
		return "OPEN"
	case OrderFilled:
		return "FILLED"
	default:
		return "CANCELLED"
	}
}

// Order is a resting limit order tracked by the order manager.
//
// Invariant: 0 <= FilledSize <= Size; status FILLED implies
// FilledSize >= Size.
type Order struct {
	ID         OrderID
	Token      TokenID
	Side       Side
	Price      Price
	Size       Size
	FilledSize Size
	Status     OrderStatus
	CreatedAt  time.Time
}

// Quote is a paired bid/ask produced by the market maker.
//
// Invariant: 0.01 <= BidPrice < AskPrice <= 0.99, both sizes at or
// above the minimum quote size, TTL > 0.
type Quote struct {
	BidPrice  Price
	BidSize   Size
	AskPrice  Price
	AskSize   Size
	TTL       time.Duration
	CreatedAt time.Time
}

// Expired reports whether the quote has outlived its TTL at the given
// instant.
func (q Quote) Expired(now time.Time) bool {
	return now.Sub(q.CreatedAt) >= q.TTL
}

// -----------------------------------------------------------------------------
// Market Metadata
// -----------------------------------------------------------------------------

// MarketPhase buckets a market by time remaining until its event ends.
type MarketPhase int

const (
	PreMatchEarly    MarketPhase = iota // >= 60 minutes out
	PreMatchLate                        // 10-60 minutes out
	PreMatchCritical                    // < 10 minutes out
	InPlay                              // past the scheduled end
)

func (p MarketPhase) String() string {
	switch p {
	case PreMatchEarly:
		return "PRE_MATCH_EARLY"
	case PreMatchLate:
		return "PRE_MATCH_LATE"
	case PreMatchCritical:
		return "PRE_MATCH_CRITICAL"
	default:
		return "IN_PLAY"
	}
}

// TTL returns the maximum quote lifetime for the phase.
func (p MarketPhase) TTL() time.Duration {
	switch p {
	case PreMatchEarly:
		return 90 * time.Second
	case PreMatchLate:
		return 45 * time.Second
	case PreMatchCritical:
		return 20 * time.Second
	default:
		return 3 * time.Second
	}
}

// RequoteInterval returns the recommended refresh cadence, half the TTL.
func (p MarketPhase) RequoteInterval() time.Duration {
	return p.TTL() / 2
}

// MarketMetadata describes the market an outcome token belongs to.
type MarketMetadata struct {
	Title       string  // e.g. "Aston Villa vs Bournemouth"
	Outcome     string  // e.g. "Villa Win"
	MarketID    string
	ConditionID string
	EventEnd    time.Time
	HasEventEnd bool
}

// Name returns the display name used in logs and audit rows.
func (m MarketMetadata) Name() string {
	if m.Title == "" {
		return m.Outcome
	}
	if m.Outcome == "" {
		return m.Title
	}
	return m.Title + " - " + m.Outcome
}

// Phase derives the market phase from minutes remaining until EventEnd.
// Markets with no known end time are treated as early pre-match.
func (m MarketMetadata) Phase(now time.Time) MarketPhase {
	if !m.HasEventEnd {
		return PreMatchEarly
	}
	remaining := m.EventEnd.Sub(now)
	switch {
	case remaining < 0:
		return InPlay
	case remaining < 10*time.Minute:
		return PreMatchCritical
	case remaining < time.Hour:
		return PreMatchLate
	default:
		return PreMatchEarly
	}
}

// HoursToEvent returns hours until EventEnd, or -1 when unknown.
func (m MarketMetadata) HoursToEvent(now time.Time) float64 {
	if !m.HasEventEnd {
		return -1
	}
	return m.EventEnd.Sub(now).Hours()
}

// -----------------------------------------------------------------------------
// Positions & Persisted State
// -----------------------------------------------------------------------------

// Position is the running per-token position book entry.
//
// Quantity is signed: positive long, negative short. Transitions through
// zero realize PnL and reset OpenedAt and EntrySide.
type Position struct {
	Quantity      Size
	AvgEntryPrice Price
	RealizedPnL   float64
	OpenedAt      time.Time
	LastUpdated   time.Time
	EntrySide     Side
	NumFills      int
}

// PositionState is the persisted slice of a position.
type PositionState struct {
	Quantity    float64 `json:"quantity"`
	AvgCost     float64 `json:"avg_cost"`
	RealizedPnL float64 `json:"realized_pnl"`
}

// TradingState is the crash-recoverable engine state written to disk.
type TradingState struct {
	Positions        map[TokenID]PositionState `json:"positions"`
	TotalRealizedPnL float64                   `json:"total_realized_pnl"`
	TotalTrades      int                       `json:"total_trades"`
	TotalVolume      float64                   `json:"total_volume"`
	LastSessionID    string                    `json:"last_session_id"`
	LastUpdated      int64                     `json:"last_updated"` // epoch seconds
}

// NewTradingState returns an empty state with an allocated position map.
func NewTradingState() TradingState {
	return TradingState{Positions: make(map[TokenID]PositionState)}
}

// -----------------------------------------------------------------------------
// Catalog Types
// -----------------------------------------------------------------------------

// MarketInfo is one tradeable market inside a catalog event.
type MarketInfo struct {
	MarketID    string
	ConditionID string
	Question    string
	Description string
	Slug        string
	Active      bool
	Volume      float64
	Liquidity   float64
	Tokens      []TokenID // parallel to Outcomes
	Outcomes    []string
}

// EventInfo is a catalog event with its markets.
type EventInfo struct {
	EventID     string
	Title       string
	Slug        string
	Description string
	StartDate   string
	EndDate     string
	Category    string
	Active      bool
	Closed      bool
	Volume      float64
	Liquidity   float64
	Markets     []MarketInfo
}
