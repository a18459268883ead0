package engine

import "math"

// refreshStats recomputes the sampler aggregates. Runs on the strategy
// goroutine during the 1s housekeeping sweep.
func (e *Engine) refreshStats() {
	var s Stats

	e.positionsMu.Lock()
	for token, pos := range e.positions {
		if math.Abs(pos.Quantity) > 0.001 {
			s.Positions++
			s.TotalInventory += math.Abs(pos.Quantity)
		}
		s.TotalPnL += pos.RealizedPnL

		if b, ok := e.books[token]; ok {
			if mid := b.Mid(); mid > 0 && math.Abs(pos.Quantity) > 0.001 {
				s.UnrealizedPnL += pos.Quantity * (mid - pos.AvgEntryPrice)
			}
		}
	}
	e.positionsMu.Unlock()

	s.ActiveMarkets = len(e.makers)
	s.ActiveOrders = e.orderMgr.OpenOrderCount()
	s.Bids = e.orderMgr.BidCount()
	s.Asks = e.orderMgr.AskCount()
	s.Fills = e.totalFills.Load()

	spreadSum, spreadCount := 0.0, 0
	for _, b := range e.books {
		if mid := b.Mid(); mid > 0 {
			spreadSum += b.Spread() / mid * 10000
			spreadCount++
		}
	}
	if spreadCount > 0 {
		s.AvgSpreadBps = spreadSum / float64(spreadCount)
	}

	e.statsMu.Lock()
	e.stats = s
	e.statsMu.Unlock()
}

// Stats returns the latest aggregate snapshot. Safe to call from the
// status sampler goroutine.
func (e *Engine) Stats() Stats {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	return e.stats
}

// FillCount returns the number of fills since start.
func (e *Engine) FillCount() uint64 { return e.totalFills.Load() }
