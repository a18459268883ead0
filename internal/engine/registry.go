package engine

import (
	"time"

	"github.com/anoble/polymaker/internal/maker"
	"github.com/anoble/polymaker/internal/model"
)

// RegisterMarket makes a token tradable: a market maker is created and
// the metadata stored. Must be called before Start.
func (e *Engine) RegisterMarket(token model.TokenID, title, outcome, marketID, conditionID string) {
	e.makers[token] = maker.New(e.cfg.SpreadPct, e.cfg.MaxPosition, e.logger)
	e.metadata[token] = model.MarketMetadata{
		Title:       title,
		Outcome:     outcome,
		MarketID:    marketID,
		ConditionID: conditionID,
	}
	e.logger.Debug("market registered", "market", title+" - "+outcome, "token", token)
}

// RegisterMarketMetadata stores metadata without creating a maker; the
// token is observed but never quoted.
func (e *Engine) RegisterMarketMetadata(token model.TokenID, meta model.MarketMetadata) {
	e.metadata[token] = meta
	e.logger.Debug("market metadata registered (observation only)", "market", meta.Name(), "token", token)
}

// SetEventEndTime propagates an event close time to every token under
// the condition, its maker and the summary aggregator.
func (e *Engine) SetEventEndTime(conditionID string, end time.Time) {
	for token, meta := range e.metadata {
		if meta.ConditionID != conditionID {
			continue
		}
		meta.EventEnd = end
		meta.HasEventEnd = true
		e.metadata[token] = meta

		if mk, ok := e.makers[token]; ok {
			mk.SetCloseTime(end)
		}
	}

	if e.summaryAgg != nil {
		e.summaryAgg.SetEventEndTime(conditionID, end)
	}

	e.logger.Debug("event end time set", "condition_id", conditionID, "end", end)
}

// RegisteredTokens returns the tokens with a maker, in no particular
// order.
func (e *Engine) RegisteredTokens() []model.TokenID {
	tokens := make([]model.TokenID, 0, len(e.makers))
	for token := range e.makers {
		tokens = append(tokens, token)
	}
	return tokens
}
