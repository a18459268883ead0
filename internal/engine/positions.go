package engine

import (
	"math"
	"time"

	"github.com/anoble/polymaker/internal/model"
)

// updatePosition applies a fill to the position book per the accounting
// rules: same-direction fills volume-weight the entry price, closing
// fills realize PnL against it, and crossing zero restarts the position
// at the fill price.
func (e *Engine) updatePosition(token model.TokenID, qty model.Size, price model.Price, side model.Side) {
	e.positionsMu.Lock()
	defer e.positionsMu.Unlock()

	now := time.Now()
	pos, ok := e.positions[token]
	if !ok {
		pos = &model.Position{OpenedAt: now, EntrySide: side}
		e.positions[token] = pos
	}

	signed := qty
	if side == model.Sell {
		signed = -qty
	}

	switch {
	case pos.Quantity == 0:
		pos.Quantity = signed
		pos.AvgEntryPrice = price
		pos.OpenedAt = now
		pos.EntrySide = side

	case (pos.Quantity > 0) == (signed > 0):
		// Adding to the position: volume-weighted average entry.
		totalCost := math.Abs(pos.Quantity)*pos.AvgEntryPrice + qty*price
		pos.Quantity += signed
		pos.AvgEntryPrice = totalCost / math.Abs(pos.Quantity)

	case math.Abs(signed) >= math.Abs(pos.Quantity):
		// Closing or flipping: realize the whole open slice.
		pos.RealizedPnL += pos.Quantity * (price - pos.AvgEntryPrice)
		pos.Quantity += signed
		if pos.Quantity != 0 {
			pos.AvgEntryPrice = price
			pos.OpenedAt = now
			pos.EntrySide = side
		} else {
			pos.AvgEntryPrice = 0
		}

	default:
		// Partial close: realize the closed slice proportionally.
		pos.RealizedPnL += -signed * (price - pos.AvgEntryPrice)
		pos.Quantity += signed
	}

	pos.LastUpdated = now
	pos.NumFills++

	e.logger.Info("position updated",
		"market", e.marketName(token),
		"quantity", pos.Quantity,
		"avg_entry", pos.AvgEntryPrice,
		"realized_pnl", pos.RealizedPnL,
	)
}

// snapshotPositions persists the trading state and writes position
// audit rows.
func (e *Engine) snapshotPositions() {
	e.positionsMu.Lock()
	defer e.positionsMu.Unlock()

	if e.stateStore != nil {
		st := model.NewTradingState()
		if e.auditLog != nil {
			st.LastSessionID = e.auditLog.SessionID()
		}
		st.LastUpdated = time.Now().Unix()
		st.TotalTrades = e.totalTrades
		st.TotalVolume = e.totalVolume

		for token, pos := range e.positions {
			st.Positions[token] = model.PositionState{
				Quantity:    pos.Quantity,
				AvgCost:     pos.AvgEntryPrice,
				RealizedPnL: pos.RealizedPnL,
			}
			st.TotalRealizedPnL += pos.RealizedPnL
		}

		// Persisted positions with no fills this session survive the
		// snapshot unchanged.
		for token, ps := range e.persisted.Positions {
			if _, ok := st.Positions[token]; !ok && ps.Quantity != 0 {
				st.Positions[token] = ps
				st.TotalRealizedPnL += ps.RealizedPnL
			}
		}

		if err := e.stateStore.Save(st); err != nil {
			e.logger.Warn("state snapshot failed", "error", err)
		}
	}

	if e.auditLog != nil {
		for token, pos := range e.positions {
			meta := e.metadata[token]
			e.auditLog.LogPosition(meta.MarketID, token, *pos)
		}
	}
}

// maybeLogInitialPositions logs held positions once, on the first book
// update after start, so restored inventory is visible in the session
// log.
func (e *Engine) maybeLogInitialPositions() {
	if e.initialPositionsLogged.Load() {
		return
	}

	hasHeld := false
	for _, ps := range e.persisted.Positions {
		if ps.Quantity != 0 {
			hasHeld = true
			break
		}
	}
	if !hasHeld {
		e.initialPositionsLogged.Store(true)
		return
	}
	if !e.initialPositionsLogged.CompareAndSwap(false, true) {
		return
	}

	for token, ps := range e.persisted.Positions {
		if ps.Quantity == 0 {
			continue
		}
		mid := 0.0
		if b, ok := e.books[token]; ok {
			mid = b.Mid()
		}
		e.logger.Info("carried position",
			"market", e.marketName(token),
			"quantity", ps.Quantity,
			"avg_cost", ps.AvgCost,
			"realized_pnl", ps.RealizedPnL,
			"current_mid", mid,
		)
	}
}

// pushFillMetrics appends a fill context record, bounding the history.
func (e *Engine) pushFillMetrics(fm *fillMetrics) {
	e.fillMu.Lock()
	defer e.fillMu.Unlock()

	e.fillHistory = append(e.fillHistory, fm)
	if len(e.fillHistory) > maxFillMetrics {
		e.fillHistory = e.fillHistory[len(e.fillHistory)-maxFillMetrics:]
	}
}

// checkPendingFillMetrics captures the mid 30s and 60s after each fill.
func (e *Engine) checkPendingFillMetrics(now time.Time) {
	e.fillMu.Lock()
	defer e.fillMu.Unlock()

	for _, fm := range e.fillHistory {
		if fm.MetricsComplete {
			continue
		}
		b, ok := e.books[fm.Token]
		if !ok {
			continue
		}
		elapsed := now.Sub(fm.FillTime)

		if elapsed >= 30*time.Second && fm.Mid30sAfter == 0 {
			fm.Mid30sAfter = b.Mid()
		}
		if elapsed >= 60*time.Second {
			fm.Mid60sAfter = b.Mid()
			fm.MetricsComplete = true
		}
	}
}

// logQuoteSummary emits one line per live quote on the 60s sweep.
func (e *Engine) logQuoteSummary() {
	e.quotesMu.Lock()
	defer e.quotesMu.Unlock()

	for token, quote := range e.activeQuotes {
		mid, spreadBps := 0.0, 0.0
		if b, ok := e.books[token]; ok {
			mid = b.Mid()
			if mid > 0 {
				spreadBps = b.Spread() / mid * 10000
			}
		}
		inventory := 0.0
		if mk, ok := e.makers[token]; ok {
			inventory = mk.Inventory()
		}
		e.logger.Info("active quote",
			"market", e.marketName(token),
			"bid", quote.BidPrice,
			"ask", quote.AskPrice,
			"mid", mid,
			"spread_bps", spreadBps,
			"inventory", inventory,
			"age", time.Since(quote.CreatedAt).Round(time.Second),
		)
	}
}
