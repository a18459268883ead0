package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const eventsPayload = `[
	{
		"id": "ev1",
		"title": "Aston Villa vs Bournemouth",
		"slug": "avl-bou",
		"endDate": "2026-08-09T14:00:00Z",
		"active": true,
		"closed": false,
		"volume": 125000,
		"liquidity": 40000,
		"markets": [
			{
				"id": "mkt1",
				"conditionId": "cond1",
				"question": "Will Villa win?",
				"slug": "villa-win",
				"active": true,
				"volume": "90000.5",
				"liquidity": "30000.25",
				"clobTokenIds": "[\"tok_yes\",\"tok_no\"]",
				"outcomes": "[\"Yes\",\"No\"]"
			}
		]
	},
	{
		"id": "ev2",
		"title": "US Open Final",
		"slug": "us-open",
		"active": true,
		"closed": false,
		"volume": 50000,
		"liquidity": 10000,
		"markets": []
	}
]`

func testServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGetActiveEvents(t *testing.T) {
	srv := testServer(t, http.StatusOK, eventsPayload)
	client := NewClient(srv.URL)

	events, err := client.GetActiveEvents(context.Background(), 10)
	if err != nil {
		t.Fatalf("GetActiveEvents failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}

	ev := events[0]
	if ev.Title != "Aston Villa vs Bournemouth" {
		t.Errorf("Title = %q", ev.Title)
	}
	if ev.EndDate != "2026-08-09T14:00:00Z" {
		t.Errorf("EndDate = %q", ev.EndDate)
	}
	if len(ev.Markets) != 1 {
		t.Fatalf("markets = %d, want 1", len(ev.Markets))
	}

	mkt := ev.Markets[0]
	if mkt.Volume != 90000.5 {
		t.Errorf("market Volume = %v, want 90000.5 (string-encoded)", mkt.Volume)
	}
	if len(mkt.Tokens) != 2 || mkt.Tokens[0] != "tok_yes" || mkt.Tokens[1] != "tok_no" {
		t.Errorf("Tokens = %v, want decoded [tok_yes tok_no]", mkt.Tokens)
	}
	if len(mkt.Outcomes) != 2 || mkt.Outcomes[0] != "Yes" {
		t.Errorf("Outcomes = %v, want decoded [Yes No]", mkt.Outcomes)
	}
}

func TestSearchEvents(t *testing.T) {
	srv := testServer(t, http.StatusOK, eventsPayload)
	client := NewClient(srv.URL)

	matched, err := client.SearchEvents(context.Background(), "villa")
	if err != nil {
		t.Fatalf("SearchEvents failed: %v", err)
	}
	if len(matched) != 1 {
		t.Fatalf("matches = %d, want 1", len(matched))
	}
	if matched[0].EventID != "ev1" {
		t.Errorf("match = %q, want ev1", matched[0].EventID)
	}

	none, err := client.SearchEvents(context.Background(), "cricket")
	if err != nil {
		t.Fatalf("SearchEvents failed: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("matches = %d, want 0", len(none))
	}
}

func TestGet_ClientErrorNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(srv.URL, WithRetries(3, time.Millisecond))
	if _, err := client.GetActiveEvents(context.Background(), 10); err == nil {
		t.Fatal("expected an error on 404")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (4xx not retried)", calls)
	}
}

func TestGet_ServerErrorRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`[]`))
	}))
	t.Cleanup(srv.Close)

	client := NewClient(srv.URL, WithRetries(3, time.Millisecond))
	events, err := client.GetActiveEvents(context.Background(), 10)
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if len(events) != 0 {
		t.Errorf("events = %d, want 0", len(events))
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDecodeStringArray(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{`["a","b"]`, 2},
		{``, 0},
		{`not json`, 0},
	}
	for _, tc := range cases {
		if got := decodeStringArray(tc.in); len(got) != tc.want {
			t.Errorf("decodeStringArray(%q) = %v, want %d entries", tc.in, got, tc.want)
		}
	}
}
