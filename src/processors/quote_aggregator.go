package processors

import (
	"sort"

	"github.com/shopspring/decimal"
)

// PriceSample is one observed sale price for a variant, as returned by the
// market data provider. Samples are consumed immediately and never persisted
// individually.
type PriceSample struct {
	Title     string
	Price     decimal.Decimal
	Currency  string
	Condition string
	URL       string
}

// trimFraction is the share of samples dropped from each end of the sorted
// list before averaging, to suppress mispriced auctions and bundle listings.
const trimFraction = 0.15

// AggregateSamples smooths a batch of raw sale prices into a single quote
// using a two-sided trimmed mean: sort ascending, drop the lowest and highest
// 15% by count (integer floor), and average the remainder, rounded to cents.
//
// Returns ok=false when there are no samples, or when trimming leaves none;
// callers must not substitute a price of their own.
func AggregateSamples(samples []PriceSample) (decimal.Decimal, bool) {
	if len(samples) == 0 {
		return decimal.Zero, false
	}

	prices := make([]decimal.Decimal, len(samples))
	for i, s := range samples {
		prices[i] = s.Price
	}
	sort.Slice(prices, func(i, j int) bool { return prices[i].LessThan(prices[j]) })

	trim := int(float64(len(prices)) * trimFraction)
	trimmed := prices[trim : len(prices)-trim]
	if len(trimmed) == 0 {
		return decimal.Zero, false
	}

	sum := decimal.Zero
	for _, p := range trimmed {
		sum = sum.Add(p)
	}
	mean := sum.Div(decimal.NewFromInt(int64(len(trimmed)))).Round(2)
	return mean, true
}
