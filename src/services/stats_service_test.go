package services_test

import (
	"testing"
	"time"

	"github.com/username/collectr/backend/src/models"
	"github.com/username/collectr/backend/src/services"
)

func TestGetCollectionStats_TotalsAndAverage(t *testing.T) {
	db := newTestDB(t)
	userID := seedUser(t, db, "whitney")
	p1 := seedProduct(t, db, "Miltank")
	p2 := seedProduct(t, db, "Clefairy")
	seedLot(t, db, userID, p1, 2, 10)
	seedLot(t, db, userID, p2, 1, 40)

	svc := services.NewStatsService(db)
	stats, err := svc.GetCollectionStats(userID)
	if err != nil {
		t.Fatalf("GetCollectionStats failed: %v", err)
	}

	if stats.TotalCards != 3 {
		t.Errorf("expected 3 cards, got %d", stats.TotalCards)
	}
	// 2*10 + 1*40
	if !stats.TotalInvestment.Equal(d(60)) {
		t.Errorf("expected total investment 60, got %s", stats.TotalInvestment)
	}
	if !stats.AvgPurchasePrice.Equal(d(20)) {
		t.Errorf("expected avg purchase price 20, got %s", stats.AvgPurchasePrice)
	}
}

func TestGetCollectionStats_CachedUntilInvalidated(t *testing.T) {
	db := newTestDB(t)
	userID := seedUser(t, db, "jasmine")
	p1 := seedProduct(t, db, "Steelix")
	seedLot(t, db, userID, p1, 1, 100)

	svc := services.NewStatsService(db)
	first, err := svc.GetCollectionStats(userID)
	if err != nil {
		t.Fatalf("GetCollectionStats failed: %v", err)
	}

	seedLot(t, db, userID, seedProduct(t, db, "Magnemite"), 1, 5)

	cached, err := svc.GetCollectionStats(userID)
	if err != nil {
		t.Fatalf("GetCollectionStats failed: %v", err)
	}
	if !cached.TotalInvestment.Equal(first.TotalInvestment) {
		t.Error("expected cached stats before invalidation")
	}

	svc.InvalidateStatsCache(userID)
	refreshed, err := svc.GetCollectionStats(userID)
	if err != nil {
		t.Fatalf("GetCollectionStats failed: %v", err)
	}
	if !refreshed.TotalInvestment.Equal(d(105)) {
		t.Errorf("expected refreshed total investment 105, got %s", refreshed.TotalInvestment)
	}
}

func TestLogProfitLoss_AppendsPctAndValuePoints(t *testing.T) {
	db := newTestDB(t)
	userID := seedUser(t, db, "clair")
	p1 := seedProduct(t, db, "Kingdra")
	seedLot(t, db, userID, p1, 1, 100)
	seedQuote(t, db, p1, "Near Mint", 150)

	svc := services.NewStatsService(db)
	svc.LogProfitLoss(userID)

	pct, err := svc.GetStatHistory(userID, models.StatProfitLossPct, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("GetStatHistory failed: %v", err)
	}
	if len(pct) != 1 || !pct[0].Value.Equal(d(50)) {
		t.Fatalf("expected one pct point of 50, got %v", pct)
	}

	value, err := svc.GetStatHistory(userID, models.StatProfitLossValue, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("GetStatHistory failed: %v", err)
	}
	if len(value) != 1 || !value[0].Value.Equal(d(50)) {
		t.Fatalf("expected one value point of 50, got %v", value)
	}
}

func TestGetStatHistory_EmptyMetricReturnsAllMetrics(t *testing.T) {
	db := newTestDB(t)
	userID := seedUser(t, db, "karen")

	svc := services.NewStatsService(db)
	svc.LogStatChange(userID, models.StatLifetimeEarnings, d(100))
	svc.LogStatChange(userID, models.StatProfitLossValue, d(25))

	points, err := svc.GetStatHistory(userID, "", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("GetStatHistory failed: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("expected points for both metrics, got %d", len(points))
	}
	seen := map[string]bool{}
	for _, p := range points {
		seen[p.StatType] = true
	}
	if !seen[models.StatLifetimeEarnings] || !seen[models.StatProfitLossValue] {
		t.Errorf("expected both metrics in the series, got %v", seen)
	}
	for i := 1; i < len(points); i++ {
		if points[i].CreatedAt.Before(points[i-1].CreatedAt) {
			t.Error("expected points ordered ascending by time")
		}
	}
}

func TestGetStatHistory_UnknownMetricRejected(t *testing.T) {
	db := newTestDB(t)
	userID := seedUser(t, db, "will")

	svc := services.NewStatsService(db)
	if _, err := svc.GetStatHistory(userID, "bogus_metric", time.Time{}, time.Time{}); err == nil {
		t.Error("expected error for unknown metric")
	}
}
