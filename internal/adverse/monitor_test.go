package adverse

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/anoble/polymaker/internal/model"
)

func approx(a, b, eps float64) bool {
	return math.Abs(a-b) < eps
}

func TestSpreadMultiplier_BaselineIsOne(t *testing.T) {
	m := NewMonitor(1000, nil)

	// No fills recorded: every component sits at its baseline.
	got := m.SpreadMultiplier("tok", model.Buy, 0)
	if got != 1.0 {
		t.Errorf("SpreadMultiplier = %v, want 1.0 with no history", got)
	}
}

func TestRecordFill_BoundedHistory(t *testing.T) {
	m := NewMonitor(1000, nil)

	for i := 0; i < 60; i++ {
		m.RecordFill("tok", model.OrderID(fmt.Sprintf("ORD_%d", i)), model.Buy, 0.50, 0.51, 0)
	}

	if got := len(m.FillHistory("tok")); got != 50 {
		t.Errorf("history length = %d, want capped at 50", got)
	}
}

func TestUpdateMetrics_ToxicFillRaisesMultiplier(t *testing.T) {
	m := NewMonitor(1000, nil)
	m.RecordFill("tok", "ORD_1", model.Buy, 0.50, 0.50, 0)

	// Age the fill past the 30s horizon.
	fq := m.FillHistory("tok")[0]
	fq.FillTime = time.Now().Add(-31 * time.Second)

	// Mid dropped 2% against a buy: toxic.
	m.UpdateMetrics("tok", 0.49)

	if !fq.MetricsCaptured {
		t.Fatal("metrics should be captured after 30s")
	}
	if !fq.IsToxic {
		t.Errorf("fill with move %v should be toxic", fq.PriceMove30s)
	}
	if got := m.multipliers["tok"]; !approx(got, 1.0*1.2+0.1, 1e-9) {
		t.Errorf("stored multiplier = %v, want 1.3 after first toxic fill", got)
	}
}

func TestUpdateMetrics_FavorableFillDecaysMultiplier(t *testing.T) {
	m := NewMonitor(1000, nil)
	m.multipliers["tok"] = 2.0

	m.RecordFill("tok", "ORD_1", model.Buy, 0.50, 0.50, 0)
	fq := m.FillHistory("tok")[0]
	fq.FillTime = time.Now().Add(-31 * time.Second)

	// Mid rose 2% in our favor.
	m.UpdateMetrics("tok", 0.51)

	if fq.IsToxic {
		t.Error("favorable fill marked toxic")
	}
	if got := m.multipliers["tok"]; !approx(got, 1.9, 1e-9) {
		t.Errorf("stored multiplier = %v, want 2.0*0.95", got)
	}
}

func TestUpdateMetrics_SellSideSignFlip(t *testing.T) {
	m := NewMonitor(1000, nil)
	m.RecordFill("tok", "ORD_1", model.Sell, 0.50, 0.50, 0)

	fq := m.FillHistory("tok")[0]
	fq.FillTime = time.Now().Add(-31 * time.Second)

	// Mid rose after we sold: adverse for the sell side.
	m.UpdateMetrics("tok", 0.51)

	if fq.PriceMove30s >= 0 {
		t.Errorf("PriceMove30s = %v, want negative for a sell into a rising mid", fq.PriceMove30s)
	}
	if !fq.IsToxic {
		t.Error("2% adverse move should be toxic")
	}
}

func TestUpdateMetrics_FiveSecondCapture(t *testing.T) {
	m := NewMonitor(1000, nil)
	m.RecordFill("tok", "ORD_1", model.Buy, 0.50, 0.50, 0)

	fq := m.FillHistory("tok")[0]
	fq.FillTime = time.Now().Add(-6 * time.Second)

	m.UpdateMetrics("tok", 0.495)

	if fq.MetricsCaptured {
		t.Error("metrics complete before 30s")
	}
	if !approx(fq.PriceMove5s, -0.01, 1e-9) {
		t.Errorf("PriceMove5s = %v, want -0.01", fq.PriceMove5s)
	}
}

func TestSpreadMultiplier_ClampedToMax(t *testing.T) {
	m := NewMonitor(1000, nil)
	m.multipliers["tok"] = 3.0

	// Saturate the toxic flow score with captured toxic fills.
	for i := 0; i < 10; i++ {
		m.RecordFill("tok", model.OrderID(fmt.Sprintf("ORD_%d", i)), model.Buy, 0.50, 0.50, 0)
	}
	for _, fq := range m.FillHistory("tok") {
		fq.FillTime = time.Now().Add(-40 * time.Second)
	}
	m.UpdateMetrics("tok", 0.45)

	got := m.SpreadMultiplier("tok", model.Sell, 900)
	if got != 3.0 {
		t.Errorf("SpreadMultiplier = %v, want clamped to 3.0", got)
	}
}

func TestInventoryRiskScore_Sides(t *testing.T) {
	m := NewMonitor(1000, nil)

	cases := []struct {
		name      string
		side      model.Side
		inventory float64
		want      float64
	}{
		{"long hit on ask adds risk", model.Sell, 800, 1.4},
		{"long hit on bid reduces", model.Buy, 800, 0.84},
		{"short hit on bid adds risk", model.Buy, -800, 1.4},
		{"short hit on ask reduces", model.Sell, -800, 0.84},
		{"flat is neutral", model.Buy, 0, 1.0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := m.inventoryRiskScore(tc.side, tc.inventory)
			if !approx(got, tc.want, 1e-9) {
				t.Errorf("inventoryRiskScore = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestVolumeClock(t *testing.T) {
	var v volumeClock

	if got := v.multiplier(); got != 0.8 {
		t.Errorf("quiet multiplier = %v, want 0.8", got)
	}

	// 6 fills in the 60s window: rate 0.1/s, twice baseline.
	now := time.Now()
	for i := 0; i < 6; i++ {
		v.record(now)
	}
	if got := v.multiplier(); !approx(got, math.Sqrt(2), 1e-9) {
		t.Errorf("multiplier = %v, want sqrt(2)", got)
	}

	// Old fills age out of the window.
	v.record(now.Add(2 * time.Minute))
	if got := len(v.fills); got != 1 {
		t.Errorf("fills in window = %d, want 1 after aging", got)
	}
}

func TestDecay(t *testing.T) {
	m := NewMonitor(1000, nil)
	m.multipliers["tok"] = 2.0

	m.Decay()

	want := 1 + (2.0-1)*0.95
	if got := m.multipliers["tok"]; !approx(got, want, 1e-9) {
		t.Errorf("multiplier after decay = %v, want %v", got, want)
	}

	// Repeated decay converges to the floor.
	for i := 0; i < 500; i++ {
		m.Decay()
	}
	if got := m.multipliers["tok"]; !approx(got, 1.0, 1e-6) {
		t.Errorf("multiplier after long decay = %v, want 1.0", got)
	}
}
