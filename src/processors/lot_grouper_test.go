package processors

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/username/collectr/backend/src/models"
)

func rawLot(productID int64, condition string, qty int, price float64) models.LotWithProduct {
	return models.LotWithProduct{
		Lot: models.Lot{
			ProductID:     productID,
			Quantity:      qty,
			PurchasePrice: d(price),
			Condition:     condition,
			GradingStatus: models.GradingStatusRaw,
		},
		ProductName: "Charizard",
		ProductType: "card",
	}
}

func TestGroupLotsForDisplay_RawCardsMergeByCondition(t *testing.T) {
	lots := []models.LotWithProduct{
		rawLot(1, "Near Mint", 1, 10),
		rawLot(1, "near mint ", 2, 13),
	}
	groups := GroupLotsForDisplay(lots, nil)
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	g := groups[0]
	if g.Quantity != 3 {
		t.Errorf("expected quantity 3, got %d", g.Quantity)
	}
	if !g.MeanInvestment.Equal(d(12)) {
		t.Errorf("expected mean investment 12, got %s", g.MeanInvestment)
	}
	if !g.TotalInvestment.Equal(d(36)) {
		t.Errorf("expected total investment 36, got %s", g.TotalInvestment)
	}
}

func TestGroupLotsForDisplay_DifferentConditionsStaySeparate(t *testing.T) {
	lots := []models.LotWithProduct{
		rawLot(1, "Near Mint", 1, 10),
		rawLot(1, "Played", 1, 4),
	}
	groups := GroupLotsForDisplay(lots, nil)
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
}

func TestGroupLotsForDisplay_GradedGroupsByCompanyAndGrade(t *testing.T) {
	graded := func(company, grade string, qty int, price float64) models.LotWithProduct {
		lp := rawLot(1, "", qty, price)
		lp.GradingCompany = company
		lp.Grade = grade
		lp.GradingStatus = models.GradingStatusGraded
		return lp
	}
	lots := []models.LotWithProduct{
		graded("PSA", "10", 1, 500),
		graded("PSA", "10", 1, 600),
		graded("PSA", "9", 1, 200),
		graded("BGS", "10", 1, 450),
	}
	groups := GroupLotsForDisplay(lots, nil)
	if len(groups) != 3 {
		t.Fatalf("expected 3 groups (PSA 10, PSA 9, BGS 10), got %d", len(groups))
	}
	if groups[0].Quantity != 2 {
		t.Errorf("expected PSA 10 group quantity 2, got %d", groups[0].Quantity)
	}
	if !groups[0].MeanInvestment.Equal(d(550)) {
		t.Errorf("expected PSA 10 mean investment 550, got %s", groups[0].MeanInvestment)
	}
}

func TestGroupLotsForDisplay_SealedGroupsByProductAlone(t *testing.T) {
	sealed := func(condition string, qty int, price float64) models.LotWithProduct {
		lp := rawLot(7, condition, qty, price)
		lp.ProductType = "sealed_product"
		lp.Sealed = true
		return lp
	}
	lots := []models.LotWithProduct{
		sealed("", 1, 120),
		sealed("Sealed", 2, 110),
	}
	groups := GroupLotsForDisplay(lots, nil)
	if len(groups) != 1 {
		t.Fatalf("expected sealed lots to merge into 1 group, got %d", len(groups))
	}
	if groups[0].Quantity != 3 {
		t.Errorf("expected quantity 3, got %d", groups[0].Quantity)
	}
}

func TestGroupLotsForDisplay_CurrentValueFromQuote(t *testing.T) {
	lots := []models.LotWithProduct{rawLot(1, "Near Mint", 3, 10)}
	quotes := map[models.QuoteKey]decimal.Decimal{
		{ProductID: 1, Condition: "Near Mint"}: d(25),
	}
	groups := GroupLotsForDisplay(lots, quotes)
	g := groups[0]
	if !g.CurrentValue.Valid {
		t.Fatal("expected current value to be set")
	}
	if !g.CurrentValue.Decimal.Equal(d(75)) {
		t.Errorf("expected current value 75, got %s", g.CurrentValue.Decimal)
	}
}

func TestGroupLotsForDisplay_MissingQuoteIsNotZero(t *testing.T) {
	lots := []models.LotWithProduct{rawLot(1, "Near Mint", 3, 10)}
	groups := GroupLotsForDisplay(lots, map[models.QuoteKey]decimal.Decimal{})
	if groups[0].CurrentValue.Valid {
		t.Error("expected unknown current value when no quote exists for the key")
	}
}
