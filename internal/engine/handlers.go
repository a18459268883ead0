package engine

import (
	"time"

	"github.com/anoble/polymaker/internal/archive"
	"github.com/anoble/polymaker/internal/audit"
	"github.com/anoble/polymaker/internal/book"
	"github.com/anoble/polymaker/internal/event"
	"github.com/anoble/polymaker/internal/model"
	"github.com/anoble/polymaker/internal/orders"
	"github.com/anoble/polymaker/internal/summary"
)

// handleBookSnapshot rebuilds the token's book, advances fill metrics,
// forwards the book to the order manager (paper-fill check) and
// requotes registered tokens.
func (e *Engine) handleBookSnapshot(ev *event.BookSnapshot) {
	b := e.getOrCreateBook(ev.Token)
	b.Clear()
	for _, lvl := range ev.Bids {
		b.UpdateBid(lvl.Price, lvl.Size)
	}
	for _, lvl := range ev.Asks {
		b.UpdateAsk(lvl.Price, lvl.Size)
	}

	e.logger.Debug("book snapshot applied",
		"market", e.marketName(ev.Token),
		"bid_levels", b.BidLevelCount(),
		"ask_levels", b.AskLevelCount(),
		"best_bid", b.BestBid(),
		"best_ask", b.BestAsk(),
	)

	if mid := b.Mid(); mid > 0 {
		e.asMonitor.UpdateMetrics(ev.Token, mid)
	}

	e.maybeLogInitialPositions()
	e.feedSummary(ev.Token, b)

	e.orderMgr.UpdateOrderBook(ev.Token, b)

	if _, registered := e.makers[ev.Token]; registered {
		e.calculateQuotes(ev.Token, orders.ReasonQuoteUpdate)
	}
}

// handlePriceUpdate applies level deltas, emits the price_update audit
// row, feeds the summary aggregator and requotes registered tokens.
func (e *Engine) handlePriceUpdate(ev *event.PriceLevelUpdate) {
	prior, hadPrior := e.priceMarks[ev.Token]

	b := e.getOrCreateBook(ev.Token)
	for _, lvl := range ev.Bids {
		b.UpdateBid(lvl.Price, lvl.Size)
	}
	for _, lvl := range ev.Asks {
		b.UpdateAsk(lvl.Price, lvl.Size)
	}

	mid := b.Mid()
	if mid > 0 {
		e.asMonitor.UpdateMetrics(ev.Token, mid)
	}

	now := time.Now()
	changePct, changeAbs, sinceLast := 0.0, 0.0, 0.0
	if hadPrior && prior.mid > 0 {
		changeAbs = mid - prior.mid
		changePct = changeAbs / prior.mid * 100
		sinceLast = now.Sub(prior.at).Seconds()
	}
	e.priceMarks[ev.Token] = priceMark{mid: mid, at: now}

	spread := b.Spread()
	spreadBps := 0.0
	if mid > 0 {
		spreadBps = spread / mid * 10000
	}

	inventory := 0.0
	if m, ok := e.makers[ev.Token]; ok {
		inventory = m.Inventory()
	}
	meta := e.metadata[ev.Token]

	if e.auditLog != nil {
		bidVol := b.TotalBidVolume(book.VolumeLevels)
		askVol := b.TotalAskVolume(book.VolumeLevels)
		e.auditLog.LogPriceUpdate(audit.PriceUpdateRow{
			MarketID:        meta.MarketID,
			Token:           ev.Token,
			MidPrice:        mid,
			PriceChangePct:  changePct,
			PriceChangeAbs:  changeAbs,
			BestBid:         b.BestBid(),
			BestAsk:         b.BestAsk(),
			Spread:          spread,
			SpreadBps:       spreadBps,
			BidVolume:       bidVol,
			AskVolume:       askVol,
			TotalVolume:     bidVol + askVol,
			VolumeImbalance: b.Imbalance(),
			BidLevels:       b.BidLevelCount(),
			AskLevels:       b.AskLevelCount(),
			OurInventory:    inventory,
			HoursToEvent:    meta.HoursToEvent(now),
			SecsSinceUpdate: sinceLast,
		})
	}

	e.feedSummary(ev.Token, b)

	if e.archiveWriter != nil {
		sessionID := ""
		if e.auditLog != nil {
			sessionID = e.auditLog.SessionID()
		}
		bidVol := b.TotalBidVolume(book.VolumeLevels)
		askVol := b.TotalAskVolume(book.VolumeLevels)
		e.archiveWriter.WritePrice(archive.PriceRow{
			Time:      now,
			SessionID: sessionID,
			Token:     ev.Token,
			Mid:       mid,
			BestBid:   b.BestBid(),
			BestAsk:   b.BestAsk(),
			SpreadBps: spreadBps,
			BidVolume: bidVol,
			AskVolume: askVol,
			Imbalance: b.Imbalance(),
		})
	}

	if _, registered := e.makers[ev.Token]; registered {
		e.calculateQuotes(ev.Token, orders.ReasonQuoteUpdate)
	}
}

// handleOrderFill updates the position book and maker inventory,
// records the fill for adverse-selection analysis and requotes.
func (e *Engine) handleOrderFill(ev *event.OrderFill) {
	marketName := e.marketName(ev.Token)
	e.logger.Info("fill received",
		"order_id", ev.OrderID,
		"market", marketName,
		"side", ev.Side.String(),
		"size", ev.Size,
		"price", ev.Price,
	)

	b, hasBook := e.books[ev.Token]
	mid, spreadBps, imbalance := 0.0, 0.0, 0.0
	bestBid, bestAsk := 0.0, 0.0
	if hasBook {
		mid = b.Mid()
		bestBid, bestAsk = b.BestBid(), b.BestAsk()
		if mid > 0 {
			spreadBps = b.Spread() / mid * 10000
		}
		imbalance = b.Imbalance()
	}

	inventoryBefore, realizedBefore := 0.0, 0.0
	mk, hasMaker := e.makers[ev.Token]
	if hasMaker {
		inventoryBefore = mk.Inventory()
		realizedBefore = mk.RealizedPnL()
	}

	e.updatePosition(ev.Token, ev.Size, ev.Price, ev.Side)

	if hasMaker {
		mk.UpdateInventory(ev.Side, ev.Size, ev.Price)
	}

	e.asMonitor.RecordFill(ev.Token, ev.OrderID, ev.Side, ev.Price, mid, inventoryBefore)

	fm := &fillMetrics{
		FillTime:        time.Now(),
		Token:           ev.Token,
		OrderID:         ev.OrderID,
		Side:            ev.Side,
		FillPrice:       ev.Price,
		MidAtFill:       mid,
		BestBidAtFill:   bestBid,
		BestAskAtFill:   bestAsk,
		SpreadAtFill:    spreadBps,
		ImbalanceAtFill: imbalance,
		InventoryBefore: inventoryBefore,
	}
	if hasMaker {
		fm.InventoryAfter = mk.Inventory()
	}
	e.pushFillMetrics(fm)

	e.totalFills.Add(1)
	e.totalTrades++
	e.totalVolume += ev.Size * ev.Price

	if e.auditLog != nil {
		// The audit stats take the PnL realized by this fill alone.
		pnl := 0.0
		if hasMaker {
			pnl = mk.RealizedPnL() - realizedBefore
		}
		meta := e.metadata[ev.Token]
		e.auditLog.LogOrderFilled(meta.MarketID, ev.OrderID, ev.Token, ev.Price, ev.Size, ev.Side, pnl)

		e.positionsMu.Lock()
		if pos, ok := e.positions[ev.Token]; ok {
			e.auditLog.LogPosition(meta.MarketID, ev.Token, *pos)
		}
		e.positionsMu.Unlock()
	}

	if e.archiveWriter != nil {
		sessionID := ""
		if e.auditLog != nil {
			sessionID = e.auditLog.SessionID()
		}
		pnl := 0.0
		if hasMaker {
			pnl = mk.RealizedPnL()
		}
		meta := e.metadata[ev.Token]
		e.archiveWriter.WriteFill(archive.FillRow{
			Time:      time.Now(),
			SessionID: sessionID,
			MarketID:  meta.MarketID,
			OrderID:   ev.OrderID,
			Token:     ev.Token,
			Side:      ev.Side.String(),
			Price:     ev.Price,
			Size:      ev.Size,
			PnL:       pnl,
		})
	}

	e.calculateQuotes(ev.Token, orders.ReasonQuoteUpdate)
}

func (e *Engine) handleOrderRejected(ev *event.OrderRejected) {
	e.logger.Error("order rejected", "order_id", ev.OrderID, "reason", ev.Reason)
}

// calculateQuotes prices the token and reconciles resting orders.
// Tokens without a maker are observation-only and never quoted.
func (e *Engine) calculateQuotes(token model.TokenID, reason orders.CancelReason) {
	b, ok := e.books[token]
	if !ok || !b.HasValidBBO() {
		return
	}
	mk, ok := e.makers[token]
	if !ok {
		return
	}

	e.restoreOnce(token, mk)

	inventory := mk.Inventory()
	multBuy := e.asMonitor.SpreadMultiplier(token, model.Buy, inventory)
	multSell := e.asMonitor.SpreadMultiplier(token, model.Sell, inventory)
	mult := multBuy
	if multSell > mult {
		mult = multSell
	}

	var metaPtr *model.MarketMetadata
	if meta, ok := e.metadata[token]; ok {
		metaPtr = &meta
	}

	quote, ok := mk.GenerateQuote(b, metaPtr, mult)
	if !ok {
		return
	}

	hasBid, hasAsk := false, false
	for _, order := range e.orderMgr.OpenOrders(token) {
		if order.Side == model.Buy && within(order.Price, quote.BidPrice, quoteTolerance) {
			hasBid = true
		}
		if order.Side == model.Sell && within(order.Price, quote.AskPrice, quoteTolerance) {
			hasAsk = true
		}
	}
	if hasBid && hasAsk {
		return
	}

	meta := e.metadata[token]
	e.orderMgr.CancelAllForToken(token, meta.MarketID, reason)
	e.orderMgr.Place(token, model.Buy, quote.BidPrice, quote.BidSize, meta.MarketID)
	e.orderMgr.Place(token, model.Sell, quote.AskPrice, quote.AskSize, meta.MarketID)

	e.quotesMu.Lock()
	e.activeQuotes[token] = quote
	e.quotesMu.Unlock()

	e.logger.Info("quotes placed",
		"market", e.marketName(token),
		"bid", quote.BidPrice,
		"bid_size", quote.BidSize,
		"ask", quote.AskPrice,
		"ask_size", quote.AskSize,
		"ttl", quote.TTL,
		"spread_multiplier", mult,
	)
}

// checkExpiredQuotes requotes every token whose active quote outlived
// its TTL.
func (e *Engine) checkExpiredQuotes(now time.Time) {
	var expired []model.TokenID
	e.quotesMu.Lock()
	for token, quote := range e.activeQuotes {
		if quote.Expired(now) {
			expired = append(expired, token)
			delete(e.activeQuotes, token)
		}
	}
	e.quotesMu.Unlock()

	for _, token := range expired {
		e.logger.Debug("quote TTL expired, requoting", "market", e.marketName(token))
		meta := e.metadata[token]
		e.orderMgr.CancelAllForToken(token, meta.MarketID, orders.ReasonTTLExpired)
		e.calculateQuotes(token, orders.ReasonTTLExpired)
	}
}

// restoreOnce seeds maker inventory from the persisted state the first
// time a token is quoted after a restart.
func (e *Engine) restoreOnce(token model.TokenID, mk Restorable) {
	if e.restored[token] {
		return
	}
	e.restored[token] = true

	ps, ok := e.persisted.Positions[token]
	if !ok || ps.Quantity == 0 {
		return
	}

	mk.RestoreState(ps.Quantity, ps.AvgCost, ps.RealizedPnL)

	e.positionsMu.Lock()
	entrySide := model.Buy
	if ps.Quantity < 0 {
		entrySide = model.Sell
	}
	e.positions[token] = &model.Position{
		Quantity:      ps.Quantity,
		AvgEntryPrice: ps.AvgCost,
		RealizedPnL:   ps.RealizedPnL,
		OpenedAt:      time.Now(),
		LastUpdated:   time.Now(),
		EntrySide:     entrySide,
	}
	e.positionsMu.Unlock()

	e.logger.Info("position restored from previous session",
		"market", e.marketName(token),
		"quantity", ps.Quantity,
		"avg_cost", ps.AvgCost,
		"realized_pnl", ps.RealizedPnL,
	)
}

// Restorable is the slice of the maker the restore path needs.
type Restorable interface {
	RestoreState(inventory, avgCost, realizedPnL float64)
}

func (e *Engine) feedSummary(token model.TokenID, b *book.Book) {
	if e.summaryAgg == nil {
		return
	}
	mid := b.Mid()
	spreadBps := 0.0
	if mid > 0 {
		spreadBps = b.Spread() / mid * 10000
	}
	meta := e.metadata[token]
	e.summaryAgg.UpdateMarket(summary.Update{
		MarketName:  e.marketName(token),
		MarketID:    meta.MarketID,
		ConditionID: meta.ConditionID,
		Token:       token,
		MidPrice:    mid,
		SpreadBps:   spreadBps,
		BestBid:     b.BestBid(),
		BestAsk:     b.BestAsk(),
		BidVolume:   b.TotalBidVolume(book.VolumeLevels),
		AskVolume:   b.TotalAskVolume(book.VolumeLevels),
		BidLevels:   b.BidLevelCount(),
		AskLevels:   b.AskLevelCount(),
	})
}

func (e *Engine) getOrCreateBook(token model.TokenID) *book.Book {
	b, ok := e.books[token]
	if !ok {
		e.logger.Debug("creating order book", "market", e.marketName(token))
		b = book.New(token)
		e.books[token] = b
	}
	return b
}

func (e *Engine) marketName(token model.TokenID) string {
	if meta, ok := e.metadata[token]; ok {
		if name := meta.Name(); name != "" {
			return name
		}
	}
	return token
}

func within(a, b, tolerance float64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff < tolerance
}
