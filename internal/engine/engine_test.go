package engine

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/anoble/polymaker/internal/event"
	"github.com/anoble/polymaker/internal/model"
	"github.com/anoble/polymaker/internal/orders"
	"github.com/anoble/polymaker/internal/state"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	queue := event.NewQueue()
	store := state.NewStore(filepath.Join(t.TempDir(), "state.json"), nil)
	return New(queue, orders.Paper, DefaultConfig(), store, nil, nil)
}

func snapshot(token model.TokenID, bids, asks map[float64]float64) *event.BookSnapshot {
	var b, a []event.PriceLevel
	for price, size := range bids {
		b = append(b, event.PriceLevel{Price: price, Size: size})
	}
	for price, size := range asks {
		a = append(a, event.PriceLevel{Price: price, Size: size})
	}
	return event.NewBookSnapshot(token, b, a)
}

func TestPaperFillCycle(t *testing.T) {
	e := newTestEngine(t)
	e.RegisterMarket("T", "Match", "Yes", "mkt", "cond")

	// First snapshot: quotes go out around the 0.41/0.42 market.
	e.handleBookSnapshot(snapshot("T",
		map[float64]float64{0.41: 7000, 0.40: 6000},
		map[float64]float64{0.42: 1700, 0.43: 3700},
	))

	open := e.orderMgr.OpenOrders("T")
	if len(open) != 2 {
		t.Fatalf("open orders = %d, want paired bid/ask", len(open))
	}

	var bid, ask model.Order
	for _, o := range open {
		if o.Side == model.Buy {
			bid = o
		} else {
			ask = o
		}
	}
	if bid.Price != 0.41 {
		t.Errorf("bid price = %v, want 0.41", bid.Price)
	}
	if ask.Price != 0.42 {
		t.Errorf("ask price = %v, want 0.42", ask.Price)
	}

	e.quotesMu.Lock()
	if _, ok := e.activeQuotes["T"]; !ok {
		t.Error("active quote not recorded")
	}
	e.quotesMu.Unlock()

	// Second snapshot: the market bid lifts through our ask.
	e.handleBookSnapshot(snapshot("T",
		map[float64]float64{0.43: 5000},
		map[float64]float64{0.44: 3700},
	))

	var fill *event.OrderFill
	for !e.queue.Empty() {
		if f, ok := e.queue.Pop().(*event.OrderFill); ok {
			fill = f
			break
		}
	}
	if fill == nil {
		t.Fatal("expected a paper fill after the bid crossed our ask")
	}
	if fill.Side != model.Sell {
		t.Errorf("fill side = %v, want Sell", fill.Side)
	}
	if fill.Price != ask.Price {
		t.Errorf("fill price = %v, want our prior ask %v", fill.Price, ask.Price)
	}

	// Feeding the fill back updates position, maker and counters.
	e.handleOrderFill(fill)

	e.positionsMu.Lock()
	pos := e.positions["T"]
	e.positionsMu.Unlock()
	if pos == nil {
		t.Fatal("no position after fill")
	}
	if pos.Quantity != -fill.Size {
		t.Errorf("position quantity = %v, want %v", pos.Quantity, -fill.Size)
	}
	if got := e.makers["T"].Inventory(); got != -fill.Size {
		t.Errorf("maker inventory = %v, want %v", got, -fill.Size)
	}
	if got := e.FillCount(); got != 1 {
		t.Errorf("FillCount = %d, want 1", got)
	}
}

func TestObservationOnlyTokenIsNotQuoted(t *testing.T) {
	e := newTestEngine(t)
	e.RegisterMarketMetadata("T", model.MarketMetadata{Title: "Match", Outcome: "Yes"})

	e.handleBookSnapshot(snapshot("T",
		map[float64]float64{0.41: 7000},
		map[float64]float64{0.43: 3700},
	))

	if got := e.orderMgr.OpenOrderCount(); got != 0 {
		t.Errorf("open orders = %d, want 0 for observation-only token", got)
	}
}

func TestNoQuoteWithoutValidBBO(t *testing.T) {
	e := newTestEngine(t)
	e.RegisterMarket("T", "Match", "Yes", "mkt", "cond")

	e.handleBookSnapshot(snapshot("T", map[float64]float64{0.41: 7000}, nil))

	if got := e.orderMgr.OpenOrderCount(); got != 0 {
		t.Errorf("open orders = %d, want 0 without a valid BBO", got)
	}
}

func TestQuoteUnchangedWhenPricesMatch(t *testing.T) {
	e := newTestEngine(t)
	e.RegisterMarket("T", "Match", "Yes", "mkt", "cond")

	snap := snapshot("T",
		map[float64]float64{0.41: 7000, 0.40: 6000},
		map[float64]float64{0.42: 1700, 0.43: 3700},
	)
	e.handleBookSnapshot(snap)

	first := e.orderMgr.OpenOrders("T")
	if len(first) != 2 {
		t.Fatalf("open orders = %d, want 2", len(first))
	}

	// Same book again: target prices are unchanged, orders stand.
	e.handleBookSnapshot(snapshot("T",
		map[float64]float64{0.41: 7000, 0.40: 6000},
		map[float64]float64{0.42: 1700, 0.43: 3700},
	))

	second := e.orderMgr.OpenOrders("T")
	if len(second) != 2 {
		t.Fatalf("open orders = %d, want 2", len(second))
	}
	ids := map[model.OrderID]bool{}
	for _, o := range first {
		ids[o.ID] = true
	}
	for _, o := range second {
		if !ids[o.ID] {
			t.Errorf("order %s replaced although prices matched", o.ID)
		}
	}
}

func TestRestoreFromPersistedState(t *testing.T) {
	dir := t.TempDir()
	store := state.NewStore(filepath.Join(dir, "state.json"), nil)

	st := model.NewTradingState()
	st.Positions["T"] = model.PositionState{Quantity: 500, AvgCost: 0.55, RealizedPnL: 250}
	if err := store.Save(st); err != nil {
		t.Fatal(err)
	}

	e := New(event.NewQueue(), orders.Paper, DefaultConfig(), store, nil, nil)
	e.RegisterMarket("T", "Match", "Yes", "mkt", "cond")

	// First quote restores inventory before pricing.
	e.handleBookSnapshot(snapshot("T",
		map[float64]float64{0.55: 7000, 0.54: 6000},
		map[float64]float64{0.58: 3700, 0.59: 1700},
	))

	mk := e.makers["T"]
	if got := mk.Inventory(); got != 500 {
		t.Errorf("restored inventory = %v, want 500", got)
	}
	if got := mk.AvgCost(); got != 0.55 {
		t.Errorf("restored avg cost = %v, want 0.55", got)
	}
	if got := mk.RealizedPnL(); got != 250 {
		t.Errorf("restored realized pnl = %v, want 250", got)
	}

	e.positionsMu.Lock()
	pos := e.positions["T"]
	e.positionsMu.Unlock()
	if pos == nil || pos.Quantity != 500 {
		t.Errorf("position book not seeded from persisted state: %+v", pos)
	}
}

func TestSnapshotPositions_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := state.NewStore(filepath.Join(dir, "state.json"), nil)
	e := New(event.NewQueue(), orders.Paper, DefaultConfig(), store, nil, nil)
	e.RegisterMarket("T", "Match", "Yes", "mkt", "cond")

	e.updatePosition("T", 500, 0.55, model.Buy)
	e.totalTrades = 1
	e.totalVolume = 275
	e.snapshotPositions()

	reloaded := store.Load()
	ps, ok := reloaded.Positions["T"]
	if !ok {
		t.Fatal("persisted state missing position T")
	}
	if ps.Quantity != 500 || ps.AvgCost != 0.55 {
		t.Errorf("persisted position = %+v, want {500 0.55 0}", ps)
	}
	if reloaded.TotalTrades != 1 {
		t.Errorf("TotalTrades = %d, want 1", reloaded.TotalTrades)
	}
	if reloaded.TotalVolume != 275 {
		t.Errorf("TotalVolume = %v, want 275", reloaded.TotalVolume)
	}
}

func TestUpdatePosition_Accounting(t *testing.T) {
	e := newTestEngine(t)

	get := func() model.Position {
		e.positionsMu.Lock()
		defer e.positionsMu.Unlock()
		return *e.positions["T"]
	}

	e.updatePosition("T", 100, 0.50, model.Buy)
	e.updatePosition("T", 100, 0.60, model.Buy)
	if pos := get(); math.Abs(pos.AvgEntryPrice-0.55) > 1e-9 {
		t.Errorf("avg entry = %v, want 0.55 (volume weighted)", pos.AvgEntryPrice)
	}

	e.updatePosition("T", 50, 0.60, model.Sell)
	if pos := get(); math.Abs(pos.RealizedPnL-2.5) > 1e-9 {
		t.Errorf("realized = %v, want 2.5 after partial close", pos.RealizedPnL)
	}

	// Flip through zero: realize the rest, restart at the fill price.
	e.updatePosition("T", 250, 0.60, model.Sell)
	pos := get()
	if math.Abs(pos.RealizedPnL-(2.5+150*0.05)) > 1e-9 {
		t.Errorf("realized = %v, want 10.0 after flip", pos.RealizedPnL)
	}
	if pos.Quantity != -100 {
		t.Errorf("quantity = %v, want -100", pos.Quantity)
	}
	if pos.AvgEntryPrice != 0.60 {
		t.Errorf("avg entry = %v, want reset to 0.60", pos.AvgEntryPrice)
	}
	if pos.EntrySide != model.Sell {
		t.Errorf("entry side = %v, want Sell after flip", pos.EntrySide)
	}
	if pos.NumFills != 4 {
		t.Errorf("num fills = %d, want 4", pos.NumFills)
	}
}

func TestCheckExpiredQuotes_Requotes(t *testing.T) {
	e := newTestEngine(t)
	e.RegisterMarket("T", "Match", "Yes", "mkt", "cond")

	e.handleBookSnapshot(snapshot("T",
		map[float64]float64{0.41: 7000, 0.40: 6000},
		map[float64]float64{0.42: 1700, 0.43: 3700},
	))

	before := e.orderMgr.OpenOrders("T")
	if len(before) != 2 {
		t.Fatalf("open orders = %d, want 2", len(before))
	}

	// Age the active quote past its TTL.
	e.quotesMu.Lock()
	quote := e.activeQuotes["T"]
	quote.CreatedAt = time.Now().Add(-quote.TTL - time.Second)
	e.activeQuotes["T"] = quote
	e.quotesMu.Unlock()

	e.checkExpiredQuotes(time.Now())

	after := e.orderMgr.OpenOrders("T")
	if len(after) != 2 {
		t.Fatalf("open orders after requote = %d, want 2", len(after))
	}
	oldIDs := map[model.OrderID]bool{}
	for _, o := range before {
		oldIDs[o.ID] = true
	}
	for _, o := range after {
		if oldIDs[o.ID] {
			t.Errorf("order %s survived TTL expiry, want replacement", o.ID)
		}
	}

	e.quotesMu.Lock()
	refreshed := e.activeQuotes["T"]
	e.quotesMu.Unlock()
	if refreshed.Expired(time.Now()) {
		t.Error("requoted quote should have a fresh creation time")
	}
}

func TestSetEventEndTime_PropagatesToMakers(t *testing.T) {
	e := newTestEngine(t)
	e.RegisterMarket("T1", "Match", "Yes", "mkt", "cond")
	e.RegisterMarket("T2", "Match", "No", "mkt", "cond")
	e.RegisterMarket("T3", "Other", "Yes", "mkt2", "other_cond")

	end := time.Now().Add(30 * time.Minute)
	e.SetEventEndTime("cond", end)

	for _, token := range []model.TokenID{"T1", "T2"} {
		meta := e.metadata[token]
		if !meta.HasEventEnd || !meta.EventEnd.Equal(end) {
			t.Errorf("%s metadata end = %+v, want %v", token, meta, end)
		}
		if got := e.makers[token].TimeUrgency(); got <= 0.9 {
			t.Errorf("%s urgency = %v, want > 0.9 at 30m to close", token, got)
		}
	}
	if meta := e.metadata["T3"]; meta.HasEventEnd {
		t.Error("unrelated condition received an end time")
	}
}

func TestEngineStartStop(t *testing.T) {
	e := newTestEngine(t)
	e.RegisterMarket("T", "Match", "Yes", "mkt", "cond")

	e.Start()
	if !e.IsRunning() {
		t.Fatal("engine should be running after Start")
	}

	e.queue.Push(snapshot("T",
		map[float64]float64{0.41: 7000, 0.40: 6000},
		map[float64]float64{0.42: 1700, 0.43: 3700},
	))

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if e.Stats().ActiveOrders == 2 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if got := e.Stats().ActiveOrders; got != 2 {
		t.Errorf("ActiveOrders = %d, want 2 after the snapshot", got)
	}

	e.Stop()
	if e.IsRunning() {
		t.Error("engine should not be running after Stop")
	}
}
