package processors

import "github.com/shopspring/decimal"

// BasisAllocation is the outcome of the settlement cash decision table: how
// much cost basis the received side inherits, and how the cash ledger moves.
type BasisAllocation struct {
	AllocatableBasis decimal.Decimal
	LedgerDelta      decimal.Decimal
}

// AllocateBasis decides basis and ledger movement for a trade.
//
//   - cashDelta > 0: the user added cash, which becomes extra basis; the
//     ledger drops by the cash spent.
//   - cashDelta < 0: the user received cash. If the received side is already
//     worth more than the surrendered side, the swap was favorable and all
//     cash in is pure gain. Otherwise basis shrinks by the market-value ratio
//     and only cash in excess of the value given up counts as gain.
//   - cashDelta == 0: basis carries over unchanged, ledger untouched.
func AllocateBasis(awayBasis, awayMarket, receivedMarket, cashDelta decimal.Decimal) BasisAllocation {
	switch {
	case cashDelta.IsPositive():
		return BasisAllocation{
			AllocatableBasis: awayBasis.Add(cashDelta),
			LedgerDelta:      cashDelta.Neg(),
		}
	case cashDelta.IsNegative():
		cashIn := cashDelta.Neg()
		if receivedMarket.GreaterThan(awayMarket) {
			return BasisAllocation{
				AllocatableBasis: awayBasis,
				LedgerDelta:      cashIn,
			}
		}
		ratio := decimal.Zero
		if awayMarket.IsPositive() {
			ratio = receivedMarket.Div(awayMarket)
		}
		excess := cashIn.Sub(awayMarket.Sub(receivedMarket))
		ledgerDelta := decimal.Zero
		if excess.IsPositive() {
			ledgerDelta = excess
		}
		return BasisAllocation{
			AllocatableBasis: awayBasis.Mul(ratio),
			LedgerDelta:      ledgerDelta,
		}
	default:
		return BasisAllocation{
			AllocatableBasis: awayBasis,
			LedgerDelta:      decimal.Zero,
		}
	}
}

// ReceivedValue is one received item's market exposure: quote times quantity.
type ReceivedValue struct {
	Quote    decimal.Decimal
	Quantity int
}

func (r ReceivedValue) MarketValue() decimal.Decimal {
	return r.Quote.Mul(decimal.NewFromInt(int64(r.Quantity)))
}

// SplitBasis distributes allocatable basis across received items in proportion
// to their share of received market value. When the received side has no
// market value at all, the basis is split evenly instead. Returned values are
// per-item totals (not per-unit), in input order.
func SplitBasis(allocatable decimal.Decimal, received []ReceivedValue) []decimal.Decimal {
	out := make([]decimal.Decimal, len(received))
	if len(received) == 0 {
		return out
	}

	totalMarket := decimal.Zero
	for _, r := range received {
		totalMarket = totalMarket.Add(r.MarketValue())
	}

	if totalMarket.IsPositive() {
		for i, r := range received {
			out[i] = allocatable.Mul(r.MarketValue()).Div(totalMarket)
		}
		return out
	}

	even := allocatable.Div(decimal.NewFromInt(int64(len(received))))
	for i := range received {
		out[i] = even
	}
	return out
}
