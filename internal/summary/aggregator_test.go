package summary

import (
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestAggregator(t *testing.T) (*Aggregator, string) {
	t.Helper()
	dir := t.TempDir()
	agg, err := NewAggregator(dir, nil)
	if err != nil {
		t.Fatalf("NewAggregator failed: %v", err)
	}
	t.Cleanup(agg.Close)
	return agg, dir
}

func baseUpdate() Update {
	return Update{
		MarketName:  "Match - Yes",
		MarketID:    "mkt",
		ConditionID: "cond",
		Token:       "tok",
		MidPrice:    0.50,
		SpreadBps:   80,
		BestBid:     0.49,
		BestAsk:     0.51,
		BidVolume:   5000,
		AskVolume:   4000,
		BidLevels:   5,
		AskLevels:   4,
	}
}

func TestAdaptiveInterval(t *testing.T) {
	cases := []struct {
		hours float64
		want  time.Duration
	}{
		{-1, 300 * time.Second},
		{2, 30 * time.Second},
		{5, 60 * time.Second},
		{20, 300 * time.Second},
		{40, 600 * time.Second},
		{100, 1800 * time.Second},
	}
	for _, tc := range cases {
		if got := adaptiveInterval(tc.hours); got != tc.want {
			t.Errorf("adaptiveInterval(%v) = %v, want %v", tc.hours, got, tc.want)
		}
	}
}

func TestUpdateMarket_RowMetrics(t *testing.T) {
	agg, _ := newTestAggregator(t)

	for i := 0; i < 10; i++ {
		agg.UpdateMarket(baseUpdate())
	}

	rows := agg.Rows()
	if len(rows) != 1 {
		t.Fatalf("Rows = %d, want 1", len(rows))
	}
	row := rows[0]

	if row.MidPrice != 0.50 {
		t.Errorf("MidPrice = %v, want 0.50", row.MidPrice)
	}
	// Identical updates: no BBO changes, perfect stability.
	if row.BidStabilityScore != 1 || row.AskStabilityScore != 1 {
		t.Errorf("stability = %v/%v, want 1/1", row.BidStabilityScore, row.AskStabilityScore)
	}
	if row.MidPriceVolatility != 0 {
		t.Errorf("MidPriceVolatility = %v, want 0 for a constant mid", row.MidPriceVolatility)
	}
	if want := 9000.0 / 80.0; math.Abs(row.LiquidityScore-want) > 1e-9 {
		t.Errorf("LiquidityScore = %v, want %v", row.LiquidityScore, want)
	}
	if row.HoursToEvent != -1 {
		t.Errorf("HoursToEvent = %v, want -1 without an end time", row.HoursToEvent)
	}
}

func TestStabilityScore_DropsWithChanges(t *testing.T) {
	agg, _ := newTestAggregator(t)

	u := baseUpdate()
	for i := 0; i < 10; i++ {
		// Move the best bid every update.
		u.BestBid = 0.40 + float64(i)/100
		agg.UpdateMarket(u)
	}

	row := agg.Rows()[0]
	// 9 changes over 10 updates: e^(-5*0.9).
	want := math.Exp(-5 * 0.9)
	if math.Abs(row.BidStabilityScore-want) > 1e-9 {
		t.Errorf("BidStabilityScore = %v, want %v", row.BidStabilityScore, want)
	}
	if row.AskStabilityScore != 1 {
		t.Errorf("AskStabilityScore = %v, want 1 (ask never moved)", row.AskStabilityScore)
	}
}

func TestQualityScore_Bands(t *testing.T) {
	cases := []struct {
		name string
		row  Row
		min  int
		max  int
	}{
		{
			name: "excellent market",
			row: Row{
				LiquidityScore:    6000,
				AvgSpreadBps:      50,
				BidStabilityScore: 1, AskStabilityScore: 1,
				UpdateFrequency: 2,
			},
			min: 100, max: 100,
		},
		{
			// No liquidity, stability or activity: only the trivially
			// tight zero spread contributes.
			name: "dead market",
			row:  Row{},
			min:  25, max: 25,
		},
		{
			name: "wide spread loses spread points",
			row: Row{
				LiquidityScore:    6000,
				AvgSpreadBps:      600,
				BidStabilityScore: 1, AskStabilityScore: 1,
				UpdateFrequency: 2,
			},
			min: 75, max: 75,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := qualityScore(tc.row)
			if got < tc.min || got > tc.max {
				t.Errorf("qualityScore = %d, want in [%d, %d]", got, tc.min, tc.max)
			}
		})
	}
}

func TestSetEventEndTime_PropagatesToTokens(t *testing.T) {
	agg, _ := newTestAggregator(t)

	agg.UpdateMarket(baseUpdate())
	agg.SetEventEndTime("cond", time.Now().Add(2*time.Hour))

	row := agg.Rows()[0]
	if row.HoursToEvent < 1.9 || row.HoursToEvent > 2.0 {
		t.Errorf("HoursToEvent = %v, want ~2", row.HoursToEvent)
	}

	// Interval tightens once an imminent event is known.
	if got := agg.FlushInterval(); got != 30*time.Second {
		t.Errorf("FlushInterval = %v, want 30s at 2h to event", got)
	}
}

func TestFlush_WritesRows(t *testing.T) {
	agg, dir := newTestAggregator(t)

	agg.UpdateMarket(baseUpdate())
	if !agg.ShouldFlush() {
		t.Fatal("first flush should be due immediately")
	}
	agg.Flush()

	f, err := os.Open(filepath.Join(dir, "market_summary.csv"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("market_summary.csv has %d rows, want header + 1", len(rows))
	}
	if len(rows[0]) != 22 {
		t.Errorf("header has %d columns, want 22", len(rows[0]))
	}
	if rows[1][1] != "Match - Yes" {
		t.Errorf("market_name = %q, want Match - Yes", rows[1][1])
	}

	if agg.ShouldFlush() {
		t.Error("flush should not be due again immediately")
	}
}
