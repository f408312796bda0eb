package processors

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestAllocateBasis_EvenSwap(t *testing.T) {
	alloc := AllocateBasis(d(100), d(120), d(120), decimal.Zero)
	if !alloc.AllocatableBasis.Equal(d(100)) {
		t.Errorf("even swap should carry basis unchanged, got %s", alloc.AllocatableBasis)
	}
	if !alloc.LedgerDelta.IsZero() {
		t.Errorf("even swap should not move the ledger, got %s", alloc.LedgerDelta)
	}
}

func TestAllocateBasis_CashAdded(t *testing.T) {
	alloc := AllocateBasis(d(100), d(120), d(150), d(40))
	if !alloc.AllocatableBasis.Equal(d(140)) {
		t.Errorf("cash added should raise basis to 140, got %s", alloc.AllocatableBasis)
	}
	if !alloc.LedgerDelta.Equal(d(-40)) {
		t.Errorf("cash spent should drop the ledger by 40, got %s", alloc.LedgerDelta)
	}
}

func TestAllocateBasis_CashReceivedFavorableSwap(t *testing.T) {
	// Basis $100, surrendered value $120, received value $150, user also
	// receives $30: received side already worth more, so all cash is gain.
	alloc := AllocateBasis(d(100), d(120), d(150), d(-30))
	if !alloc.AllocatableBasis.Equal(d(100)) {
		t.Errorf("expected basis unchanged at 100, got %s", alloc.AllocatableBasis)
	}
	if !alloc.LedgerDelta.Equal(d(30)) {
		t.Errorf("expected ledger +30, got %s", alloc.LedgerDelta)
	}
}

func TestAllocateBasis_CashReceivedUnfavorableSwap(t *testing.T) {
	// Received value 90 < surrendered value 120, cash in 50:
	// ratio = 0.75 so basis shrinks to 75; the first 30 of cash just covers
	// the value given up, leaving 20 of gain.
	alloc := AllocateBasis(d(100), d(120), d(90), d(-50))
	if !alloc.AllocatableBasis.Equal(d(75)) {
		t.Errorf("expected basis 75, got %s", alloc.AllocatableBasis)
	}
	if !alloc.LedgerDelta.Equal(d(20)) {
		t.Errorf("expected ledger +20, got %s", alloc.LedgerDelta)
	}
}

func TestAllocateBasis_CashReceivedNoExcess(t *testing.T) {
	// Cash in does not cover the value given up: no gain is booked.
	alloc := AllocateBasis(d(100), d(120), d(90), d(-10))
	if !alloc.AllocatableBasis.Equal(d(75)) {
		t.Errorf("expected basis 75, got %s", alloc.AllocatableBasis)
	}
	if !alloc.LedgerDelta.IsZero() {
		t.Errorf("expected no ledger movement, got %s", alloc.LedgerDelta)
	}
}

func TestAllocateBasis_ZeroAwayMarket(t *testing.T) {
	// No market value surrendered: ratio is 0, basis collapses, and the
	// entire cash in lands in the excess branch.
	alloc := AllocateBasis(d(100), decimal.Zero, decimal.Zero, d(-50))
	if !alloc.AllocatableBasis.IsZero() {
		t.Errorf("expected basis 0 when awayMarket is 0, got %s", alloc.AllocatableBasis)
	}
	if !alloc.LedgerDelta.Equal(d(50)) {
		t.Errorf("expected ledger +50, got %s", alloc.LedgerDelta)
	}
}

func TestSplitBasis_Proportional(t *testing.T) {
	received := []ReceivedValue{
		{Quote: d(100), Quantity: 1}, // market 100
		{Quote: d(25), Quantity: 2},  // market 50
	}
	parts := SplitBasis(d(90), received)
	if len(parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(parts))
	}
	if !parts[0].Equal(d(60)) {
		t.Errorf("expected 60 for the 100-value item, got %s", parts[0])
	}
	if !parts[1].Equal(d(30)) {
		t.Errorf("expected 30 for the 50-value item, got %s", parts[1])
	}
}

func TestSplitBasis_ProportionalSumsToAllocatable(t *testing.T) {
	received := []ReceivedValue{
		{Quote: d(33.33), Quantity: 1},
		{Quote: d(66.67), Quantity: 1},
		{Quote: d(10), Quantity: 3},
	}
	allocatable := d(123.45)
	parts := SplitBasis(allocatable, received)
	sum := decimal.Zero
	for _, p := range parts {
		sum = sum.Add(p)
	}
	if diff := sum.Sub(allocatable).Abs(); diff.GreaterThan(d(0.0001)) {
		t.Errorf("split parts should sum to the allocatable basis, off by %s", diff)
	}
}

func TestSplitBasis_EvenWhenNoMarketValue(t *testing.T) {
	received := []ReceivedValue{
		{Quote: decimal.Zero, Quantity: 1},
		{Quote: decimal.Zero, Quantity: 1},
	}
	parts := SplitBasis(d(80), received)
	for i, p := range parts {
		if !p.Equal(d(40)) {
			t.Errorf("part %d: expected even split 40, got %s", i, p)
		}
	}
}

func TestSplitBasis_EvenSwapAllocatesExactBasis(t *testing.T) {
	// cashDelta = 0 and receivedMarket == awayMarket: the received side
	// inherits exactly the surrendered basis, split by market share.
	alloc := AllocateBasis(d(100), d(150), d(150), decimal.Zero)
	received := []ReceivedValue{
		{Quote: d(100), Quantity: 1},
		{Quote: d(50), Quantity: 1},
	}
	parts := SplitBasis(alloc.AllocatableBasis, received)
	total := parts[0].Add(parts[1])
	if !total.Equal(d(100)) {
		t.Errorf("expected allocated basis to equal surrendered basis 100, got %s", total)
	}
	if diff := parts[0].Sub(parts[1].Mul(d(2))).Abs(); diff.GreaterThan(d(0.0001)) {
		t.Errorf("expected allocation proportional to market share, off by %s: %s vs %s", diff, parts[0], parts[1])
	}
}

func TestSplitBasis_Empty(t *testing.T) {
	parts := SplitBasis(d(100), nil)
	if len(parts) != 0 {
		t.Errorf("expected no parts for no received items, got %d", len(parts))
	}
}
