package maker

import (
	"log/slog"
	"math"
	"time"

	"github.com/anoble/polymaker/internal/book"
	"github.com/anoble/polymaker/internal/model"
)

// Pricing parameters. Prices quote in whole cents inside [0.01, 0.99].
const (
	DefaultSpreadPct   = 0.02
	DefaultMaxPosition = 1000.0
	DefaultGamma       = 0.1

	initialVolatility = 0.05
	minVolatility     = 0.01
	maxVolatility     = 0.50
	ewmaLambda        = 0.94

	// Inventory shares are normalized by this constant in the
	// reservation-price formula. It is independent of max position.
	inventoryNorm = 100.0

	imbalanceCoeff  = 0.005
	minMarketSpread = 0.01
	maxQuoteSize    = 100.0
	minQuoteSize    = 10.0

	baseMinProfit     = 0.015
	urgencyLossLimit  = -0.01 // accept up to 1% loss to exit
	highUrgency       = 0.9
	minVolUpdateSecs  = 0.1
	urgencyHorizonHrs = 24.0
)

// Maker holds per-token pricing and inventory state. It is owned by the
// strategy goroutine and is not safe for concurrent use.
type Maker struct {
	spreadPct   float64
	maxPosition float64
	gamma       float64

	volatility float64

	inventory        float64 // signed shares
	inventoryDollars float64
	avgCost          float64
	realizedPnL      float64

	lastMid        model.Price
	lastUpdateTime time.Time

	closeTime    time.Time
	hasCloseTime bool

	logger *slog.Logger
}

// New returns a maker with the given target spread fraction and maximum
// position in dollars.
func New(spreadPct, maxPosition float64, logger *slog.Logger) *Maker {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Maker{
		spreadPct:      spreadPct,
		maxPosition:    maxPosition,
		gamma:          DefaultGamma,
		volatility:     initialVolatility,
		lastUpdateTime: time.Now(),
		logger:         logger,
	}
	m.logger.Debug("maker initialized",
		"spread_pct", spreadPct,
		"max_position", maxPosition,
		"gamma", m.gamma,
	)
	return m
}

// Inventory returns the signed share inventory.
func (m *Maker) Inventory() float64 { return m.inventory }

// InventoryDollars returns the dollar value of the inventory at cost.
func (m *Maker) InventoryDollars() float64 { return m.inventoryDollars }

// AvgCost returns the average entry price, 0 when flat.
func (m *Maker) AvgCost() float64 { return m.avgCost }

// RealizedPnL returns realized profit since start or restore.
func (m *Maker) RealizedPnL() float64 { return m.realizedPnL }

// UnrealizedPnL marks the inventory against the given mid.
func (m *Maker) UnrealizedPnL(mid model.Price) float64 {
	return m.inventory * (mid - m.avgCost)
}

// SetCloseTime records the event end used for time urgency. Quote TTL
// comes from the metadata passed to GenerateQuote.
func (m *Maker) SetCloseTime(t time.Time) {
	m.closeTime = t
	m.hasCloseTime = true
}

// RestoreState seeds inventory from a persisted position.
func (m *Maker) RestoreState(inventory, avgCost, realizedPnL float64) {
	m.inventory = inventory
	m.avgCost = avgCost
	m.realizedPnL = realizedPnL
	m.inventoryDollars = inventory * avgCost
	m.logger.Info("maker state restored",
		"inventory", inventory,
		"avg_cost", avgCost,
		"realized_pnl", realizedPnL,
	)
}

// TimeUrgency returns 0 when the close time is unknown or more than 24
// hours away, 1 past the close, and a linear ramp in between.
func (m *Maker) TimeUrgency() float64 {
	if !m.hasCloseTime {
		return 0
	}
	hoursRemaining := time.Until(m.closeTime).Hours()
	if hoursRemaining < 0 {
		return 1
	}
	if hoursRemaining > urgencyHorizonHrs {
		return 0
	}
	return 1 - hoursRemaining/urgencyHorizonHrs
}

// GenerateQuote prices a paired bid/ask against the current book.
// It returns false when the market is too tight, the quotes collapse or
// would cross, or remaining position capacity is below the minimum
// quote size.
func (m *Maker) GenerateQuote(b *book.Book, meta *model.MarketMetadata, spreadMultiplier float64) (model.Quote, bool) {
	mid := b.Mid()
	marketSpread := b.Spread()

	if m.lastMid > 0 {
		elapsed := time.Since(m.lastUpdateTime).Seconds()
		if elapsed >= minVolUpdateSecs {
			m.updateVolatility(m.lastMid, mid, elapsed)
		}
	}
	m.lastMid = mid
	m.lastUpdateTime = time.Now()

	if marketSpread < minMarketSpread {
		m.logger.Debug("market spread too tight, not quoting", "spread", marketSpread)
		return model.Quote{}, false
	}

	targetSpread := mid * m.spreadPct * spreadMultiplier

	q := m.inventory / inventoryNorm
	sigmaSq := m.volatility * m.volatility

	reservationBid := mid - (q+1)*m.gamma*sigmaSq
	reservationAsk := mid + (q-1)*m.gamma*sigmaSq

	adjustment := b.Imbalance() * imbalanceCoeff
	ourBid := roundToCent(reservationBid - targetSpread/2 + adjustment)
	ourAsk := roundToCent(reservationAsk + targetSpread/2 + adjustment)

	// Minimum-profit ask floor for long inventory. The required profit
	// shrinks with time urgency and inventory risk; past 90% urgency we
	// accept a small loss to exit.
	if m.inventory > 0 && m.avgCost > 0 {
		inventoryRisk := math.Abs(m.inventoryDollars) / m.maxPosition
		urgency := math.Max(m.TimeUrgency(), inventoryRisk)
		minProfit := baseMinProfit * (1 - urgency)
		if urgency > highUrgency {
			minProfit = urgencyLossLimit
		}
		minAsk := m.avgCost * (1 + minProfit)
		if ourAsk < minAsk {
			m.logger.Debug("raising ask to cost floor",
				"ask", ourAsk,
				"floor", minAsk,
				"avg_cost", m.avgCost,
				"urgency", urgency,
			)
			ourAsk = ceilToCent(minAsk)
		}
	}

	ourBid = clampPrice(ourBid)
	ourAsk = clampPrice(ourAsk)

	if ourAsk <= ourBid {
		m.logger.Debug("quotes collapsed after clamping, not quoting", "bid", ourBid, "ask", ourAsk)
		return model.Quote{}, false
	}
	if ourBid >= b.BestAsk() || ourAsk <= b.BestBid() {
		m.logger.Debug("quotes would cross the market, not quoting", "bid", ourBid, "ask", ourAsk)
		return model.Quote{}, false
	}

	remaining := m.maxPosition - math.Abs(m.inventory)
	quoteSize := math.Min(maxQuoteSize, remaining/mid)
	if quoteSize < minQuoteSize {
		m.logger.Debug("near max position, not quoting", "remaining_capacity", remaining)
		return model.Quote{}, false
	}

	ttl := model.PreMatchEarly.TTL()
	if meta != nil {
		ttl = meta.Phase(time.Now()).TTL()
	}

	return model.Quote{
		BidPrice:  ourBid,
		BidSize:   quoteSize,
		AskPrice:  ourAsk,
		AskSize:   quoteSize,
		TTL:       ttl,
		CreatedAt: time.Now(),
	}, true
}

// UpdateInventory applies a fill to the inventory book. Same-direction
// fills volume-weight the average cost; opposite-direction fills
// realize PnL against it, flipping through zero when oversized.
func (m *Maker) UpdateInventory(side model.Side, size model.Size, price model.Price) {
	signed := size
	if side == model.Sell {
		signed = -size
	}

	switch {
	case m.inventory == 0 || sameSign(m.inventory, signed):
		total := math.Abs(m.inventory) + size
		m.avgCost = (math.Abs(m.inventory)*m.avgCost + size*price) / total
		m.inventory += signed

	case math.Abs(signed) >= math.Abs(m.inventory):
		// Full close, possibly flipping direction.
		pnl := m.inventory * (price - m.avgCost)
		m.realizedPnL += pnl
		m.inventory += signed
		if m.inventory != 0 {
			m.avgCost = price
		} else {
			m.avgCost = 0
		}
		m.logger.Debug("position closed", "pnl", pnl, "new_inventory", m.inventory)

	default:
		// Partial close.
		pnl := -signed * (price - m.avgCost)
		m.realizedPnL += pnl
		m.inventory += signed
		m.logger.Debug("position reduced", "pnl", pnl, "new_inventory", m.inventory)
	}

	if m.inventory == 0 {
		m.avgCost = 0
		m.inventoryDollars = 0
	} else {
		m.inventoryDollars = m.inventory * m.avgCost
	}

	m.logger.Info("inventory updated",
		"side", side.String(),
		"size", size,
		"price", price,
		"inventory", m.inventory,
		"inventory_dollars", m.inventoryDollars,
		"realized_pnl", m.realizedPnL,
	)
}

// updateVolatility folds an observed mid move into the EWMA estimate,
// annualized by sqrt(252*24*3600 / dt).
func (m *Maker) updateVolatility(oldMid, newMid model.Price, elapsedSecs float64) {
	if oldMid <= 0 || elapsedSecs <= 0 {
		return
	}
	ret := math.Abs(newMid-oldMid) / oldMid
	annualFactor := math.Sqrt(252 * 24 * 3600 / elapsedSecs)
	observed := ret * annualFactor

	m.volatility = ewmaLambda*m.volatility + (1-ewmaLambda)*observed
	m.volatility = math.Max(minVolatility, math.Min(maxVolatility, m.volatility))
}

// Volatility returns the current annualized EWMA estimate.
func (m *Maker) Volatility() float64 { return m.volatility }

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func roundToCent(p model.Price) model.Price {
	return math.Round(p*100) / 100
}

func ceilToCent(p model.Price) model.Price {
	return math.Ceil(p*100) / 100
}

func clampPrice(p model.Price) model.Price {
	return math.Max(0.01, math.Min(0.99, p))
}
