package summary

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/anoble/polymaker/internal/model"
)

const (
	windowSpan = 5 * time.Minute

	// Quality score at or above which a market is considered
	// tradeable.
	tradeableScore = 50
)

// marketState accumulates one token's rolling metrics.
type marketState struct {
	token       model.TokenID
	marketName  string
	marketID    string
	conditionID string

	currentMid       model.Price
	currentSpreadBps float64
	currentBestBid   model.Price
	currentBestAsk   model.Price
	currentBidVolume float64
	currentAskVolume float64
	bidLevels        int
	askLevels        int

	midPrices  *rollingWindow
	spreadsBps *rollingWindow
	bidVolumes *rollingWindow
	askVolumes *rollingWindow

	lastBestBid model.Price
	lastBestAsk model.Price
	bidChanges  int
	askChanges  int
	updateCount int

	firstUpdate time.Time
	lastUpdate  time.Time

	eventEnd    time.Time
	hasEventEnd bool
}

// Update is one book observation fed to the aggregator.
type Update struct {
	MarketName  string
	MarketID    string
	ConditionID string
	Token       model.TokenID
	MidPrice    model.Price
	SpreadBps   float64
	BestBid     model.Price
	BestAsk     model.Price
	BidVolume   float64
	AskVolume   float64
	BidLevels   int
	AskLevels   int
}

// Row is one emitted summary line.
type Row struct {
	MarketName string
	MarketID   string
	Token      model.TokenID

	MidPrice  model.Price
	SpreadBps float64
	BestBid   model.Price
	BestAsk   model.Price

	MidPriceVolatility float64
	PriceTrend         float64
	MaxPriceMove       float64

	QuoteChangeRate   float64
	BidStabilityScore float64
	AskStabilityScore float64

	AvgSpreadBps   float64
	LiquidityScore float64
	DepthScore     float64

	UpdateFrequency float64
	VolumeTrend     float64

	HoursToEvent float64
	IsTradeable  bool
	QualityScore int
}

// Aggregator tracks rolling market quality and writes summary rows.
// UpdateMarket is called from the strategy goroutine; flushes also run
// there, so the mutex only guards the occasional status reader.
type Aggregator struct {
	mu     sync.Mutex
	states map[model.TokenID]*marketState
	ends   map[string]time.Time // condition ID -> event end

	file   *os.File
	csv    *csv.Writer
	logger *slog.Logger

	lastFlush time.Time
}

// NewAggregator creates the aggregator and opens market_summary.csv in
// sessionDir.
func NewAggregator(sessionDir string, logger *slog.Logger) (*Aggregator, error) {
	if logger == nil {
		logger = slog.Default()
	}

	f, err := os.Create(filepath.Join(sessionDir, "market_summary.csv"))
	if err != nil {
		return nil, fmt.Errorf("create market_summary.csv: %w", err)
	}
	w := csv.NewWriter(f)
	header := []string{
		"timestamp", "market_name", "market_id", "token_id",
		"mid_price", "spread_bps", "best_bid", "best_ask",
		"mid_price_volatility", "price_trend", "max_price_move",
		"quote_change_rate", "bid_stability_score", "ask_stability_score",
		"avg_spread_bps", "liquidity_score", "depth_score",
		"update_frequency", "volume_trend",
		"hours_to_event", "is_tradeable", "trading_quality_score",
	}
	if err := w.Write(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("write market_summary header: %w", err)
	}
	w.Flush()

	return &Aggregator{
		states:    make(map[model.TokenID]*marketState),
		ends:      make(map[string]time.Time),
		file:      f,
		csv:       w,
		logger:    logger,
		lastFlush: time.Now().Add(-time.Hour), // flush soon after start
	}, nil
}

// Close flushes and closes the summary file.
func (a *Aggregator) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file != nil {
		a.csv.Flush()
		a.file.Close()
		a.file = nil
	}
}

// UpdateMarket folds one book observation into the rolling state.
func (a *Aggregator) UpdateMarket(u Update) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()
	st, ok := a.states[u.Token]
	if !ok {
		st = &marketState{
			token:       u.Token,
			marketName:  u.MarketName,
			marketID:    u.MarketID,
			conditionID: u.ConditionID,
			midPrices:   newRollingWindow(windowSpan),
			spreadsBps:  newRollingWindow(windowSpan),
			bidVolumes:  newRollingWindow(windowSpan),
			askVolumes:  newRollingWindow(windowSpan),
			firstUpdate: now,
			lastBestBid: u.BestBid,
			lastBestAsk: u.BestAsk,
		}
		if end, ok := a.ends[u.ConditionID]; ok {
			st.eventEnd, st.hasEventEnd = end, true
		}
		a.states[u.Token] = st
	}

	if u.BestBid != st.lastBestBid {
		st.bidChanges++
		st.lastBestBid = u.BestBid
	}
	if u.BestAsk != st.lastBestAsk {
		st.askChanges++
		st.lastBestAsk = u.BestAsk
	}

	st.currentMid = u.MidPrice
	st.currentSpreadBps = u.SpreadBps
	st.currentBestBid = u.BestBid
	st.currentBestAsk = u.BestAsk
	st.currentBidVolume = u.BidVolume
	st.currentAskVolume = u.AskVolume
	st.bidLevels = u.BidLevels
	st.askLevels = u.AskLevels

	if u.MidPrice > 0 {
		st.midPrices.add(u.MidPrice, now)
	}
	if u.SpreadBps > 0 {
		st.spreadsBps.add(u.SpreadBps, now)
	}
	st.bidVolumes.add(u.BidVolume, now)
	st.askVolumes.add(u.AskVolume, now)

	st.updateCount++
	st.lastUpdate = now
}

// SetEventEndTime propagates an event end to all tokens under the
// condition.
func (a *Aggregator) SetEventEndTime(conditionID string, end time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.ends[conditionID] = end
	for _, st := range a.states {
		if st.conditionID == conditionID {
			st.eventEnd, st.hasEventEnd = end, true
		}
	}
}

// FlushInterval returns the adaptive interval given the closest event.
func (a *Aggregator) FlushInterval() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return adaptiveInterval(a.minHoursToEvent())
}

// ShouldFlush reports whether the adaptive interval has elapsed.
func (a *Aggregator) ShouldFlush() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return time.Since(a.lastFlush) >= adaptiveInterval(a.minHoursToEvent())
}

// Flush computes and writes one summary row per tracked token.
func (a *Aggregator) Flush() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.file == nil {
		return
	}

	now := time.Now()
	for _, st := range a.states {
		if st.updateCount == 0 {
			continue
		}
		st.midPrices.prune(now)
		st.spreadsBps.prune(now)
		st.bidVolumes.prune(now)
		st.askVolumes.prune(now)

		row := computeRow(st, now)
		a.writeRow(row)
	}
	a.csv.Flush()
	a.lastFlush = now

	a.logger.Debug("market summaries flushed", "markets", len(a.states))
}

// Rows computes current summaries without writing them (status use).
func (a *Aggregator) Rows() []Row {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()
	rows := make([]Row, 0, len(a.states))
	for _, st := range a.states {
		if st.updateCount == 0 {
			continue
		}
		rows = append(rows, computeRow(st, now))
	}
	return rows
}

func (a *Aggregator) minHoursToEvent() float64 {
	min := -1.0
	now := time.Now()
	for _, st := range a.states {
		if !st.hasEventEnd {
			continue
		}
		hours := st.eventEnd.Sub(now).Hours()
		if min < 0 || hours < min {
			min = hours
		}
	}
	return min
}

func adaptiveInterval(hoursToEvent float64) time.Duration {
	switch {
	case hoursToEvent < 0:
		return 300 * time.Second
	case hoursToEvent < 3:
		return 30 * time.Second
	case hoursToEvent < 6:
		return 60 * time.Second
	case hoursToEvent < 24:
		return 300 * time.Second
	case hoursToEvent < 48:
		return 600 * time.Second
	default:
		return 1800 * time.Second
	}
}

func computeRow(st *marketState, now time.Time) Row {
	row := Row{
		MarketName: st.marketName,
		MarketID:   st.marketID,
		Token:      st.token,
		MidPrice:   st.currentMid,
		SpreadBps:  st.currentSpreadBps,
		BestBid:    st.currentBestBid,
		BestAsk:    st.currentBestAsk,
	}

	if mean := st.midPrices.mean(); mean > 0 && st.midPrices.size() >= 2 {
		row.MidPriceVolatility = st.midPrices.stddev() / mean
		row.MaxPriceMove = (st.midPrices.max() - st.midPrices.min()) / mean
	}
	row.PriceTrend = st.midPrices.trend()

	minutes := math.Max(1, now.Sub(st.firstUpdate).Minutes())
	row.QuoteChangeRate = float64(st.bidChanges+st.askChanges) / minutes

	if st.updateCount > 0 {
		bidRatio := float64(st.bidChanges) / float64(st.updateCount)
		askRatio := float64(st.askChanges) / float64(st.updateCount)
		row.BidStabilityScore = math.Exp(-5 * bidRatio)
		row.AskStabilityScore = math.Exp(-5 * askRatio)
	}

	row.AvgSpreadBps = st.spreadsBps.mean()

	totalVolume := st.currentBidVolume + st.currentAskVolume
	if row.AvgSpreadBps > 0 {
		row.LiquidityScore = totalVolume / row.AvgSpreadBps
	}
	row.DepthScore = st.bidVolumes.mean() + st.askVolumes.mean()
	row.UpdateFrequency = float64(st.updateCount) / minutes

	recent := 0.0
	if st.bidVolumes.size() > 0 {
		recent = st.bidVolumes.values[st.bidVolumes.size()-1] + st.askVolumes.values[st.askVolumes.size()-1]
	}
	early := recent
	if st.bidVolumes.size() > 5 {
		early = st.bidVolumes.values[0] + st.askVolumes.values[0]
	}
	if early > 0 {
		row.VolumeTrend = (recent - early) / early
	}

	if st.hasEventEnd {
		row.HoursToEvent = st.eventEnd.Sub(now).Hours()
	} else {
		row.HoursToEvent = -1
	}

	row.QualityScore = qualityScore(row)
	row.IsTradeable = row.QualityScore >= tradeableScore
	return row
}

// qualityScore combines liquidity (40), spread (25), stability (20) and
// activity (15) into a 0-100 score.
func qualityScore(row Row) int {
	score := 0

	switch {
	case row.LiquidityScore > 5000:
		score += 40
	case row.LiquidityScore > 1000:
		score += int(20 + (row.LiquidityScore-1000)/4000*20)
	case row.LiquidityScore > 100:
		score += int(row.LiquidityScore / 1000 * 20)
	}

	switch {
	case row.AvgSpreadBps < 100:
		score += 25
	case row.AvgSpreadBps < 300:
		score += int(25 - (row.AvgSpreadBps-100)/200*10)
	case row.AvgSpreadBps < 500:
		score += int(15 - (row.AvgSpreadBps-300)/200*10)
	}

	avgStability := (row.BidStabilityScore + row.AskStabilityScore) / 2
	score += int(avgStability * 20)

	if row.UpdateFrequency > 1 {
		score += 15
	} else {
		score += int(row.UpdateFrequency * 15)
	}

	return int(math.Min(100, math.Max(0, float64(score))))
}

func (a *Aggregator) writeRow(row Row) {
	ts := time.Now().UTC().Format("2006-01-02T15:04:05Z")
	record := []string{
		ts, row.MarketName, row.MarketID, row.Token,
		ff(row.MidPrice), ff(row.SpreadBps), ff(row.BestBid), ff(row.BestAsk),
		ff(row.MidPriceVolatility), ff(row.PriceTrend), ff(row.MaxPriceMove),
		ff(row.QuoteChangeRate), ff(row.BidStabilityScore), ff(row.AskStabilityScore),
		ff(row.AvgSpreadBps), ff(row.LiquidityScore), ff(row.DepthScore),
		ff(row.UpdateFrequency), ff(row.VolumeTrend),
		ff(row.HoursToEvent), boolFlag(row.IsTradeable), strconv.Itoa(row.QualityScore),
	}
	if err := a.csv.Write(record); err != nil {
		a.logger.Warn("summary row write failed", "error", err)
	}
}

func ff(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
