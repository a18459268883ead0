package adverse

import (
	"log/slog"
	"math"
	"time"

	"github.com/anoble/polymaker/internal/model"
)

const (
	maxFillHistory = 50

	toxicThreshold     = -0.005 // 0.5% against us within 30s
	favorableThreshold = 0.005

	minMultiplier = 1.0
	maxMultiplier = 3.0
	decayRate     = 0.95

	volumeWindow     = 60 * time.Second
	baselineFillRate = 0.05 // fills per second in normal conditions
)

// FillQuality tracks one fill and the mid moves observed after it.
type FillQuality struct {
	Token           model.TokenID
	OrderID         model.OrderID
	Side            model.Side
	FillPrice       model.Price
	MidAtFill       model.Price
	FillTime        time.Time
	InventoryBefore float64
	InventoryAfter  float64

	PriceMove5s     float64
	PriceMove30s    float64
	IsToxic         bool
	MetricsCaptured bool
}

// volumeClock counts fills inside a rolling window.
type volumeClock struct {
	fills []time.Time
}

func (v *volumeClock) record(now time.Time) {
	v.fills = append(v.fills, now)
	cutoff := now.Add(-volumeWindow)
	for len(v.fills) > 0 && v.fills[0].Before(cutoff) {
		v.fills = v.fills[1:]
	}
}

func (v *volumeClock) fillRate() float64 {
	if len(v.fills) == 0 {
		return 0
	}
	return float64(len(v.fills)) / volumeWindow.Seconds()
}

// multiplier scales spread with fill rate: sqrt(rate/baseline), dropping
// to 0.8 when the market is very quiet.
func (v *volumeClock) multiplier() float64 {
	rate := v.fillRate()
	if rate < baselineFillRate*0.1 {
		return 0.8
	}
	return math.Sqrt(rate / baselineFillRate)
}

// Scores breaks a spread multiplier into its components.
type Scores struct {
	ToxicFlow     float64
	InventoryRisk float64
	VolumeClock   float64
	Total         float64
}

// Monitor holds per-token fill-quality state. It is owned by the
// strategy goroutine.
type Monitor struct {
	maxPosition float64

	fillHistory map[model.TokenID][]*FillQuality
	clocks      map[model.TokenID]*volumeClock
	multipliers map[model.TokenID]float64

	logger *slog.Logger
}

// NewMonitor returns an empty monitor. maxPosition normalizes the
// inventory term.
func NewMonitor(maxPosition float64, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		maxPosition: maxPosition,
		fillHistory: make(map[model.TokenID][]*FillQuality),
		clocks:      make(map[model.TokenID]*volumeClock),
		multipliers: make(map[model.TokenID]float64),
		logger:      logger,
	}
}

// RecordFill registers a fill for later quality assessment.
func (m *Monitor) RecordFill(token model.TokenID, orderID model.OrderID, side model.Side, fillPrice, midAtFill model.Price, inventoryBefore float64) {
	fq := &FillQuality{
		Token:           token,
		OrderID:         orderID,
		Side:            side,
		FillPrice:       fillPrice,
		MidAtFill:       midAtFill,
		FillTime:        time.Now(),
		InventoryBefore: inventoryBefore,
	}

	hist := append(m.fillHistory[token], fq)
	if len(hist) > maxFillHistory {
		hist = hist[1:]
	}
	m.fillHistory[token] = hist

	clock, ok := m.clocks[token]
	if !ok {
		clock = &volumeClock{}
		m.clocks[token] = clock
	}
	clock.record(fq.FillTime)

	m.logger.Debug("fill recorded for toxicity tracking",
		"token", token,
		"side", side.String(),
		"price", fillPrice,
	)
}

// UpdateMetrics advances pending fill records for a token against the
// current mid. Called on every book update for the token.
func (m *Monitor) UpdateMetrics(token model.TokenID, currentMid model.Price) {
	hist, ok := m.fillHistory[token]
	if !ok {
		return
	}

	now := time.Now()
	for _, fq := range hist {
		if fq.MetricsCaptured {
			continue
		}
		sinceFill := now.Sub(fq.FillTime)

		if sinceFill >= 5*time.Second && fq.PriceMove5s == 0 {
			fq.PriceMove5s = signedMove(fq, currentMid)
		}

		if sinceFill >= 30*time.Second {
			fq.PriceMove30s = signedMove(fq, currentMid)
			fq.IsToxic = fq.PriceMove30s < toxicThreshold
			fq.MetricsCaptured = true

			if fq.IsToxic {
				mult := math.Min(maxMultiplier, m.storedMultiplier(token)*1.2+0.1)
				m.multipliers[token] = mult
				m.logger.Warn("toxic fill detected",
					"token", token,
					"side", fq.Side.String(),
					"fill_price", fq.FillPrice,
					"move_30s", fq.PriceMove30s,
					"spread_multiplier", mult,
				)
			} else if fq.PriceMove30s > favorableThreshold {
				mult := math.Max(minMultiplier, m.storedMultiplier(token)*decayRate)
				m.multipliers[token] = mult
				m.logger.Debug("favorable fill", "token", token, "move_30s", fq.PriceMove30s)
			}
		}
	}
}

// signedMove converts a mid change to a signed move relative to the
// fill side; negative means the market moved against us.
func signedMove(fq *FillQuality, currentMid model.Price) float64 {
	if fq.MidAtFill <= 0 {
		return 0
	}
	change := (currentMid - fq.MidAtFill) / fq.MidAtFill
	if fq.Side == model.Sell {
		return -change
	}
	return change
}

// storedMultiplier returns the token's persistent multiplier, starting
// at the floor of 1.
func (m *Monitor) storedMultiplier(token model.TokenID) float64 {
	if mult, ok := m.multipliers[token]; ok && mult > 0 {
		return mult
	}
	return minMultiplier
}

// toxicFlowScore summarizes completed fills: the larger of a toxic-rate
// term and an adverse-magnitude term, both >= 1.
func (m *Monitor) toxicFlowScore(token model.TokenID) float64 {
	hist, ok := m.fillHistory[token]
	if !ok || len(hist) == 0 {
		return 1
	}

	toxic, total := 0, 0
	adverseSum := 0.0
	for _, fq := range hist {
		if !fq.MetricsCaptured {
			continue
		}
		total++
		if fq.IsToxic {
			toxic++
		}
		adverseSum += math.Min(0, fq.PriceMove30s)
	}
	if total == 0 {
		return 1
	}

	toxicScore := 1 + float64(toxic)/float64(total)
	magnitudeScore := 1 - (adverseSum/float64(total))*10
	magnitudeScore = math.Max(1, math.Min(2, magnitudeScore))

	return math.Max(toxicScore, magnitudeScore)
}

// inventoryRiskScore prices accumulation-side quotes wider than
// unwind-side ones, bounded to [0.8, 1.5].
func (m *Monitor) inventoryRiskScore(side model.Side, inventory float64) float64 {
	normalized := math.Abs(inventory) / m.maxPosition

	score := 1.0
	switch {
	case inventory > 0 && side == model.Sell:
		score = 1 + normalized*0.5
	case inventory < 0 && side == model.Buy:
		score = 1 + normalized*0.5
	case inventory > 0 && side == model.Buy:
		score = 1 - normalized*0.2
	case inventory < 0 && side == model.Sell:
		score = 1 - normalized*0.2
	}
	return math.Max(0.8, math.Min(1.5, score))
}

// SpreadMultiplier combines the stored token multiplier, the toxic-flow
// score, the inventory term for the quoted side, and the volume clock,
// clamped to [1, 3].
func (m *Monitor) SpreadMultiplier(token model.TokenID, side model.Side, inventory float64) float64 {
	total := m.storedMultiplier(token) * m.toxicFlowScore(token) * m.inventoryRiskScore(side, inventory)
	if clock, ok := m.clocks[token]; ok {
		total *= clock.multiplier()
	}

	return math.Max(minMultiplier, math.Min(maxMultiplier, total))
}

// GetScores exposes the multiplier components for monitoring.
func (m *Monitor) GetScores(token model.TokenID, side model.Side, inventory float64) Scores {
	s := Scores{
		ToxicFlow:     m.toxicFlowScore(token),
		InventoryRisk: m.inventoryRiskScore(side, inventory),
		VolumeClock:   1,
	}
	if clock, ok := m.clocks[token]; ok {
		s.VolumeClock = clock.multiplier()
	}
	s.Total = m.SpreadMultiplier(token, side, inventory)
	return s
}

// Decay walks every stored multiplier back toward 1. Called on the 60s
// housekeeping sweep.
func (m *Monitor) Decay() {
	for token, mult := range m.multipliers {
		if mult > minMultiplier {
			m.multipliers[token] = math.Max(minMultiplier, minMultiplier+(mult-minMultiplier)*decayRate)
		}
	}
}

// FillHistory returns the tracked fills for a token (tests and status).
func (m *Monitor) FillHistory(token model.TokenID) []*FillQuality {
	return m.fillHistory[token]
}
