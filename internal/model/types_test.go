package model

import (
	"testing"
	"time"
)

func TestSide(t *testing.T) {
	if Buy.String() != "BUY" || Sell.String() != "SELL" {
		t.Errorf("Side strings = %q/%q, want BUY/SELL", Buy.String(), Sell.String())
	}
	if Buy.Opposite() != Sell || Sell.Opposite() != Buy {
		t.Error("Opposite not symmetric")
	}
}

func TestOrderStatusString(t *testing.T) {
	cases := []struct {
		status OrderStatus
		want   string
	}{
		{OrderOpen, "OPEN"},
		{OrderFilled, "FILLED"},
		{OrderCancelled, "CANCELLED"},
	}
	for _, tc := range cases {
		if got := tc.status.String(); got != tc.want {
			t.Errorf("String = %q, want %q", got, tc.want)
		}
	}
}

func TestMarketPhase_Thresholds(t *testing.T) {
	now := time.Now()

	cases := []struct {
		name string
		end  time.Time
		want MarketPhase
	}{
		{"3h out", now.Add(3 * time.Hour), PreMatchEarly},
		{"exactly 60m", now.Add(60 * time.Minute), PreMatchEarly},
		{"45m out", now.Add(45 * time.Minute), PreMatchLate},
		{"8m out", now.Add(8 * time.Minute), PreMatchCritical},
		{"5m past", now.Add(-5 * time.Minute), InPlay},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			meta := MarketMetadata{HasEventEnd: true, EventEnd: tc.end}
			if got := meta.Phase(now); got != tc.want {
				t.Errorf("Phase = %v, want %v", got, tc.want)
			}
		})
	}

	unknown := MarketMetadata{}
	if got := unknown.Phase(now); got != PreMatchEarly {
		t.Errorf("Phase without end time = %v, want PreMatchEarly", got)
	}
}

func TestMarketPhase_TTL(t *testing.T) {
	cases := []struct {
		phase   MarketPhase
		ttl     time.Duration
		requote time.Duration
	}{
		{PreMatchEarly, 90 * time.Second, 45 * time.Second},
		{PreMatchLate, 45 * time.Second, 22500 * time.Millisecond},
		{PreMatchCritical, 20 * time.Second, 10 * time.Second},
		{InPlay, 3 * time.Second, 1500 * time.Millisecond},
	}
	for _, tc := range cases {
		if got := tc.phase.TTL(); got != tc.ttl {
			t.Errorf("%v TTL = %v, want %v", tc.phase, got, tc.ttl)
		}
		if got := tc.phase.RequoteInterval(); got != tc.requote {
			t.Errorf("%v RequoteInterval = %v, want %v", tc.phase, got, tc.requote)
		}
	}
}

func TestQuoteExpired(t *testing.T) {
	q := Quote{TTL: 2 * time.Second, CreatedAt: time.Now()}

	if q.Expired(time.Now()) {
		t.Error("fresh quote should not be expired")
	}
	if !q.Expired(time.Now().Add(3 * time.Second)) {
		t.Error("quote past its TTL should be expired")
	}
}

func TestMetadataName(t *testing.T) {
	meta := MarketMetadata{Title: "Villa vs Bournemouth", Outcome: "Villa Win"}
	if got := meta.Name(); got != "Villa vs Bournemouth - Villa Win" {
		t.Errorf("Name = %q", got)
	}

	only := MarketMetadata{Title: "Villa vs Bournemouth"}
	if got := only.Name(); got != "Villa vs Bournemouth" {
		t.Errorf("Name = %q, want title only", got)
	}
}

func TestNewTradingState(t *testing.T) {
	st := NewTradingState()
	if st.Positions == nil {
		t.Error("Positions map must be allocated")
	}
}
