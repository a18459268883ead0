package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anoble/polymaker/internal/model"
)

// wireEvent mirrors the catalog's event object.
type wireEvent struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Slug        string       `json:"slug"`
	Description string       `json:"description"`
	StartDate   string       `json:"startDate"`
	EndDate     string       `json:"endDate"`
	Category    string       `json:"category"`
	Active      bool         `json:"active"`
	Closed      bool         `json:"closed"`
	Volume      float64      `json:"volume"`
	Liquidity   float64      `json:"liquidity"`
	Markets     []wireMarket `json:"markets"`
}

// wireMarket mirrors the catalog's market object. ClobTokenIds and
// Outcomes are JSON arrays encoded as strings.
type wireMarket struct {
	ID           string  `json:"id"`
	ConditionID  string  `json:"conditionId"`
	Question     string  `json:"question"`
	Description  string  `json:"description"`
	Slug         string  `json:"slug"`
	Active       bool    `json:"active"`
	Volume       float64 `json:"volume,string"`
	Liquidity    float64 `json:"liquidity,string"`
	ClobTokenIds string  `json:"clobTokenIds"`
	Outcomes     string  `json:"outcomes"`
}

// GetActiveEvents returns up to limit active, unresolved events ordered
// by volume.
func (c *Client) GetActiveEvents(ctx context.Context, limit int) ([]model.EventInfo, error) {
	path := fmt.Sprintf("/events?limit=%d&active=true&closed=false&order=volume&ascending=false", limit)

	var wire []wireEvent
	if err := c.get(ctx, path, &wire); err != nil {
		return nil, err
	}

	events := make([]model.EventInfo, 0, len(wire))
	for _, we := range wire {
		events = append(events, convertEvent(we))
	}

	c.logger.Debug("fetched active events", "count", len(events))
	return events, nil
}

// SearchEvents returns active events whose title or slug contains the
// query, case-insensitively.
func (c *Client) SearchEvents(ctx context.Context, query string) ([]model.EventInfo, error) {
	events, err := c.GetActiveEvents(ctx, 200)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(query)
	var matched []model.EventInfo
	for _, ev := range events {
		if strings.Contains(strings.ToLower(ev.Title), needle) ||
			strings.Contains(strings.ToLower(ev.Slug), needle) {
			matched = append(matched, ev)
		}
	}

	c.logger.Debug("searched events", "query", query, "matches", len(matched))
	return matched, nil
}

func convertEvent(we wireEvent) model.EventInfo {
	ev := model.EventInfo{
		EventID:     we.ID,
		Title:       we.Title,
		Slug:        we.Slug,
		Description: we.Description,
		StartDate:   we.StartDate,
		EndDate:     we.EndDate,
		Category:    we.Category,
		Active:      we.Active,
		Closed:      we.Closed,
		Volume:      we.Volume,
		Liquidity:   we.Liquidity,
	}
	for _, wm := range we.Markets {
		ev.Markets = append(ev.Markets, convertMarket(wm))
	}
	return ev
}

func convertMarket(wm wireMarket) model.MarketInfo {
	mi := model.MarketInfo{
		MarketID:    wm.ID,
		ConditionID: wm.ConditionID,
		Question:    wm.Question,
		Description: wm.Description,
		Slug:        wm.Slug,
		Active:      wm.Active,
		Volume:      wm.Volume,
		Liquidity:   wm.Liquidity,
	}
	mi.Tokens = decodeStringArray(wm.ClobTokenIds)
	mi.Outcomes = decodeStringArray(wm.Outcomes)
	return mi
}

// decodeStringArray unwraps a JSON array encoded as a string, e.g.
// "[\"Yes\",\"No\"]". Malformed input yields nil.
func decodeStringArray(encoded string) []string {
	if encoded == "" {
		return nil
	}
	var values []string
	if err := json.Unmarshal([]byte(encoded), &values); err != nil {
		return nil
	}
	return values
}
