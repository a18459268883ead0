package orders

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/anoble/polymaker/internal/book"
	"github.com/anoble/polymaker/internal/event"
	"github.com/anoble/polymaker/internal/model"
)

// Mode selects simulated or live execution.
type Mode int

const (
	Paper Mode = iota
	Live
)

func (m Mode) String() string {
	if m == Paper {
		return "PAPER"
	}
	return "LIVE"
}

// CancelReason is recorded in the audit trail when an order is pulled.
type CancelReason string

const (
	ReasonQuoteUpdate    CancelReason = "QUOTE_UPDATE"
	ReasonTTLExpired     CancelReason = "TTL_EXPIRED"
	ReasonInventoryLimit CancelReason = "INVENTORY_LIMIT"
	ReasonShutdown       CancelReason = "SHUTDOWN"
	ReasonManual         CancelReason = "MANUAL"
	ReasonUnknown        CancelReason = "UNKNOWN"
)

// AuditLog receives order lifecycle rows. The audit package implements
// it; a nil log disables auditing.
type AuditLog interface {
	LogOrderPlaced(order model.Order, marketID string)
	LogOrderCancelled(order model.Order, marketID string, reason string)
}

// Manager owns the order map. It is driven only by the strategy
// goroutine; fills are emitted back through the event queue.
type Manager struct {
	queue  *event.Queue
	mode   Mode
	audit  AuditLog
	logger *slog.Logger

	orders map[model.OrderID]*model.Order
	nextID uint64

	books map[model.TokenID]*book.Book
}

// NewManager returns an order manager emitting fills into queue.
func NewManager(queue *event.Queue, mode Mode, audit AuditLog, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("order manager initialized", "mode", mode.String())
	return &Manager{
		queue:  queue,
		mode:   mode,
		audit:  audit,
		logger: logger,
		orders: make(map[model.OrderID]*model.Order),
		nextID: 1,
		books:  make(map[model.TokenID]*book.Book),
	}
}

// Mode returns the current trading mode.
func (m *Manager) Mode() Mode { return m.mode }

// IsPaper reports whether fills are simulated in-process.
func (m *Manager) IsPaper() bool { return m.mode == Paper }

// Place creates an OPEN order and returns its ID.
func (m *Manager) Place(token model.TokenID, side model.Side, price model.Price, size model.Size, marketID string) model.OrderID {
	id := fmt.Sprintf("ORD_%d", m.nextID)
	m.nextID++

	order := &model.Order{
		ID:        id,
		Token:     token,
		Side:      side,
		Price:     price,
		Size:      size,
		Status:    model.OrderOpen,
		CreatedAt: time.Now(),
	}
	m.orders[id] = order

	if m.audit != nil {
		m.audit.LogOrderPlaced(*order, marketID)
	}

	m.logger.Info("order placed",
		"mode", m.mode.String(),
		"order_id", id,
		"side", side.String(),
		"price", price,
		"size", size,
	)

	if m.mode == Live {
		m.placeLive(order)
	}
	return id
}

// Cancel marks an order cancelled and removes it. Cancelling an unknown
// order is a logged no-op returning false.
func (m *Manager) Cancel(orderID model.OrderID, marketID string, reason CancelReason) bool {
	order, ok := m.orders[orderID]
	if !ok {
		m.logger.Debug("cancel of unknown order", "order_id", orderID, "reason", string(reason))
		return false
	}

	order.Status = model.OrderCancelled
	if m.audit != nil {
		m.audit.LogOrderCancelled(*order, marketID, string(reason))
	}

	if m.mode == Live {
		m.cancelLive(orderID)
	}
	delete(m.orders, orderID)

	m.logger.Debug("order cancelled", "order_id", orderID, "reason", string(reason))
	return true
}

// CancelAllForToken cancels every order on one token.
func (m *Manager) CancelAllForToken(token model.TokenID, marketID string, reason CancelReason) {
	for _, order := range m.openOrdersFor(token) {
		m.Cancel(order.ID, marketID, reason)
	}
}

// CancelAll cancels every tracked order.
func (m *Manager) CancelAll(reason CancelReason) {
	ids := make([]model.OrderID, 0, len(m.orders))
	for id := range m.orders {
		ids = append(ids, id)
	}
	for _, id := range ids {
		m.Cancel(id, "", reason)
	}
}

// UpdateOrderBook replaces the cached book for a token. In paper mode
// the update immediately runs the crossing check.
func (m *Manager) UpdateOrderBook(token model.TokenID, b *book.Book) {
	m.books[token] = b
	if m.mode == Paper {
		m.checkForFills(token, b)
	}
}

// checkForFills crosses open orders against the book: a BUY fills when
// the market ask reaches down to our bid, a SELL when the market bid
// reaches up to our ask. Fills are whole-order at the order price.
func (m *Manager) checkForFills(token model.TokenID, b *book.Book) {
	var crossed []model.OrderID
	for id, order := range m.orders {
		if order.Token != token || order.Status != model.OrderOpen {
			continue
		}

		switch order.Side {
		case model.Buy:
			if ask := b.BestAsk(); ask > 0 && ask <= order.Price {
				m.logger.Debug("buy order crossed", "order_id", id, "market_ask", ask, "our_bid", order.Price)
				crossed = append(crossed, id)
			}
		case model.Sell:
			if bid := b.BestBid(); bid > 0 && bid >= order.Price {
				m.logger.Debug("sell order crossed", "order_id", id, "market_bid", bid, "our_ask", order.Price)
				crossed = append(crossed, id)
			}
		}
	}

	for _, id := range crossed {
		m.generateFill(id)
	}
}

// generateFill fills the whole order at its limit price and enqueues
// the fill event. Orders already erased by a cancel race are ignored.
func (m *Manager) generateFill(orderID model.OrderID) {
	order, ok := m.orders[orderID]
	if !ok {
		return
	}

	order.FilledSize = order.Size
	order.Status = model.OrderFilled

	m.logger.Info("paper fill",
		"order_id", orderID,
		"side", order.Side.String(),
		"size", order.Size,
		"price", order.Price,
	)

	m.queue.Push(event.NewOrderFill(orderID, order.Token, order.Price, order.Size, order.Side))
}

// OpenOrders returns the open orders for a token.
func (m *Manager) OpenOrders(token model.TokenID) []model.Order {
	var open []model.Order
	for _, order := range m.openOrdersFor(token) {
		if order.Status != model.OrderOpen {
			continue
		}
		open = append(open, *order)
	}
	return open
}

func (m *Manager) openOrdersFor(token model.TokenID) []*model.Order {
	var open []*model.Order
	for _, order := range m.orders {
		if order.Token == token {
			open = append(open, order)
		}
	}
	return open
}

// OpenOrderCount returns the number of tracked orders.
func (m *Manager) OpenOrderCount() int { return len(m.orders) }

// BidCount returns the number of open buy orders.
func (m *Manager) BidCount() int { return m.sideCount(model.Buy) }

// AskCount returns the number of open sell orders.
func (m *Manager) AskCount() int { return m.sideCount(model.Sell) }

func (m *Manager) sideCount(side model.Side) int {
	n := 0
	for _, order := range m.orders {
		if order.Side == side && order.Status == model.OrderOpen {
			n++
		}
	}
	return n
}

// Live-mode venue adapter stubs.
func (m *Manager) placeLive(order *model.Order) {
	m.logger.Warn("live order placement not implemented", "order_id", order.ID)
}

func (m *Manager) cancelLive(orderID model.OrderID) {
	m.logger.Warn("live order cancellation not implemented", "order_id", orderID)
}
