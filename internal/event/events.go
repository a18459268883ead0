package event

import (
	"time"

	"github.com/anoble/polymaker/internal/model"
)

// Event is one entry in the engine's inbox. Concrete types are
// dispatched with a type switch; every variant carries the wall-clock
// time it was created.
type Event interface {
	// Timestamp returns the event creation time.
	Timestamp() time.Time
}

// PriceLevel is a single (price, size) pair in a book payload.
type PriceLevel struct {
	Price model.Price
	Size  model.Size
}

type base struct {
	At time.Time
}

func (b base) Timestamp() time.Time { return b.At }

// BookSnapshot replaces the full book for one token.
type BookSnapshot struct {
	base
	Token model.TokenID
	Bids  []PriceLevel
	Asks  []PriceLevel
}

// PriceLevelUpdate applies per-level deltas to one token's book.
// A zero size removes the level.
type PriceLevelUpdate struct {
	base
	Token model.TokenID
	Bids  []PriceLevel
	Asks  []PriceLevel
}

// OrderFill reports an execution against one of our resting orders.
type OrderFill struct {
	base
	OrderID model.OrderID
	Token   model.TokenID
	Price   model.Price
	Size    model.Size
	Side    model.Side
}

// OrderRejected reports a venue rejection of an order.
type OrderRejected struct {
	base
	OrderID model.OrderID
	Reason  string
}

// TimerTick nudges the consumer so housekeeping runs even when the
// feed is quiet.
type TimerTick struct {
	base
}

// Shutdown terminates the event loop. It is not an error.
type Shutdown struct {
	base
	Reason string
}

// NewBookSnapshot stamps and returns a BookSnapshot.
func NewBookSnapshot(token model.TokenID, bids, asks []PriceLevel) *BookSnapshot {
	return &BookSnapshot{base: now(), Token: token, Bids: bids, Asks: asks}
}

// NewPriceLevelUpdate stamps and returns a PriceLevelUpdate.
func NewPriceLevelUpdate(token model.TokenID, bids, asks []PriceLevel) *PriceLevelUpdate {
	return &PriceLevelUpdate{base: now(), Token: token, Bids: bids, Asks: asks}
}

// NewOrderFill stamps and returns an OrderFill.
func NewOrderFill(orderID model.OrderID, token model.TokenID, price model.Price, size model.Size, side model.Side) *OrderFill {
	return &OrderFill{base: now(), OrderID: orderID, Token: token, Price: price, Size: size, Side: side}
}

// NewOrderRejected stamps and returns an OrderRejected.
func NewOrderRejected(orderID model.OrderID, reason string) *OrderRejected {
	return &OrderRejected{base: now(), OrderID: orderID, Reason: reason}
}

// NewTimerTick stamps and returns a TimerTick.
func NewTimerTick() *TimerTick {
	return &TimerTick{base: now()}
}

// NewShutdown stamps and returns a Shutdown.
func NewShutdown(reason string) *Shutdown {
	return &Shutdown{base: now(), Reason: reason}
}

func now() base {
	return base{At: time.Now()}
}
