package book

import (
	"github.com/tidwall/btree"

	"github.com/anoble/polymaker/internal/model"
)

// VolumeLevels is the ladder depth used for volume and imbalance.
const VolumeLevels = 5

// Book is a per-token depth ladder. It is not safe for concurrent use;
// the strategy goroutine is its sole owner.
type Book struct {
	token model.TokenID
	bids  *btree.Map[float64, float64]
	asks  *btree.Map[float64, float64]
}

// New returns an empty book for the given token.
func New(token model.TokenID) *Book {
	return &Book{
		token: token,
		bids:  btree.NewMap[float64, float64](32),
		asks:  btree.NewMap[float64, float64](32),
	}
}

// Token returns the token this book belongs to.
func (b *Book) Token() model.TokenID { return b.token }

// UpdateBid sets the bid size at a price; size zero removes the level.
func (b *Book) UpdateBid(price model.Price, size model.Size) {
	if size == 0 {
		b.bids.Delete(price)
		return
	}
	b.bids.Set(price, size)
}

// UpdateAsk sets the ask size at a price; size zero removes the level.
func (b *Book) UpdateAsk(price model.Price, size model.Size) {
	if size == 0 {
		b.asks.Delete(price)
		return
	}
	b.asks.Set(price, size)
}

// Clear drops every level on both sides.
func (b *Book) Clear() {
	b.bids = btree.NewMap[float64, float64](32)
	b.asks = btree.NewMap[float64, float64](32)
}

// BestBid returns the highest bid price, or 0 when the side is empty.
func (b *Book) BestBid() model.Price {
	if price, _, ok := b.bids.Max(); ok {
		return price
	}
	return 0
}

// BestAsk returns the lowest ask price, or 0 when the side is empty.
func (b *Book) BestAsk() model.Price {
	if price, _, ok := b.asks.Min(); ok {
		return price
	}
	return 0
}

// HasValidBBO reports whether both sides are non-empty.
func (b *Book) HasValidBBO() bool {
	return b.bids.Len() > 0 && b.asks.Len() > 0
}

// Spread returns best ask minus best bid, or 0 without a valid BBO.
func (b *Book) Spread() model.Price {
	if !b.HasValidBBO() {
		return 0
	}
	return b.BestAsk() - b.BestBid()
}

// Mid returns the BBO midpoint, or 0 without a valid BBO.
func (b *Book) Mid() model.Price {
	if !b.HasValidBBO() {
		return 0
	}
	return (b.BestBid() + b.BestAsk()) / 2
}

// TotalBidVolume sums bid size over the top levels (best first).
func (b *Book) TotalBidVolume(levels int) model.Size {
	var total model.Size
	count := 0
	b.bids.Reverse(func(_, size float64) bool {
		total += size
		count++
		return count < levels
	})
	return total
}

// TotalAskVolume sums ask size over the top levels (best first).
func (b *Book) TotalAskVolume(levels int) model.Size {
	var total model.Size
	count := 0
	b.asks.Scan(func(_, size float64) bool {
		total += size
		count++
		return count < levels
	})
	return total
}

// Imbalance returns (bidVol - askVol) / (bidVol + askVol) over the top
// five levels, or 0 when both sides are empty.
func (b *Book) Imbalance() float64 {
	bidVol := b.TotalBidVolume(VolumeLevels)
	askVol := b.TotalAskVolume(VolumeLevels)
	total := bidVol + askVol
	if total == 0 {
		return 0
	}
	return (bidVol - askVol) / total
}

// BidLevelCount returns the number of bid levels.
func (b *Book) BidLevelCount() int { return b.bids.Len() }

// AskLevelCount returns the number of ask levels.
func (b *Book) AskLevelCount() int { return b.asks.Len() }
