package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/username/collectr/backend/src/models"
	"github.com/username/collectr/backend/src/processors"
	"github.com/username/collectr/backend/src/services"
	"golang.org/x/time/rate"
)

type fakeProvider struct {
	samples []processors.PriceSample
	err     error
	calls   int
}

func (f *fakeProvider) FetchSoldPrices(ctx context.Context, query services.SearchQuery) ([]processors.PriceSample, error) {
	f.calls++
	return f.samples, f.err
}

func samples(prices ...float64) []processors.PriceSample {
	out := make([]processors.PriceSample, len(prices))
	for i, p := range prices {
		out[i] = processors.PriceSample{Title: "listing", Price: d(p), Currency: "USD"}
	}
	return out
}

func TestShouldPersist(t *testing.T) {
	db := newTestDB(t)
	svc := services.NewQuoteService(db, &fakeProvider{}, time.Hour, rate.NewLimiter(rate.Inf, 1))

	now := time.Now()
	if !svc.ShouldPersist(now, time.Time{}) {
		t.Error("expected persist when no previous quote exists")
	}
	if svc.ShouldPersist(now, now.Add(-30*time.Minute)) {
		t.Error("expected no persist inside the freshness window")
	}
	if !svc.ShouldPersist(now, now.Add(-2*time.Hour)) {
		t.Error("expected persist once the window has elapsed")
	}
}

func TestGetProductPrice_FetchesWhenNoQuoteExists(t *testing.T) {
	db := newTestDB(t)
	productID := seedProduct(t, db, "Pikachu")
	provider := &fakeProvider{samples: samples(10, 20, 30)}
	svc := services.NewQuoteService(db, provider, time.Hour, rate.NewLimiter(rate.Inf, 1))

	result, err := svc.GetProductPrice(context.Background(), productID)
	if err != nil {
		t.Fatalf("GetProductPrice failed: %v", err)
	}
	if provider.calls != 1 {
		t.Errorf("expected 1 provider call, got %d", provider.calls)
	}
	if !result.CurrentPrice.Valid || !result.CurrentPrice.Decimal.Equal(d(20)) {
		t.Errorf("expected current price 20, got %v", result.CurrentPrice)
	}
	if result.UsedHistory {
		t.Error("expected UsedHistory=false after live fetch")
	}

	quote, err := models.GetLatestQuote(db, models.QuoteKey{ProductID: productID})
	if err != nil {
		t.Fatalf("expected quote persisted: %v", err)
	}
	if quote.SampleCount != 3 {
		t.Errorf("expected sample count 3, got %d", quote.SampleCount)
	}
}

func TestGetProductPrice_ServesFreshQuoteWithoutProviderCall(t *testing.T) {
	db := newTestDB(t)
	productID := seedProduct(t, db, "Raichu")
	seedQuote(t, db, productID, "", 42)
	provider := &fakeProvider{samples: samples(10, 20, 30)}
	svc := services.NewQuoteService(db, provider, time.Hour, rate.NewLimiter(rate.Inf, 1))

	result, err := svc.GetProductPrice(context.Background(), productID)
	if err != nil {
		t.Fatalf("GetProductPrice failed: %v", err)
	}
	if provider.calls != 0 {
		t.Errorf("expected no provider calls for a fresh quote, got %d", provider.calls)
	}
	if !result.CurrentPrice.Valid || !result.CurrentPrice.Decimal.Equal(d(42)) {
		t.Errorf("expected persisted price 42, got %v", result.CurrentPrice)
	}
	if !result.UsedHistory {
		t.Error("expected UsedHistory=true when serving the persisted quote")
	}
}

func TestGetProductPrice_FreshVariantQuoteGatesRefetch(t *testing.T) {
	db := newTestDB(t)
	productID := seedProduct(t, db, "Charizard")
	err := models.InsertQuote(db, &models.PriceQuote{
		ProductID:      productID,
		Source:         "test",
		Price:          d(250),
		Currency:       "USD",
		SampleCount:    10,
		GradingCompany: "PSA",
		Grade:          "10",
	})
	if err != nil {
		t.Fatalf("failed to seed graded quote: %v", err)
	}
	provider := &fakeProvider{samples: samples(10, 20, 30)}
	svc := services.NewQuoteService(db, provider, time.Hour, rate.NewLimiter(rate.Inf, 1))

	result, err := svc.GetProductPrice(context.Background(), productID)
	if err != nil {
		t.Fatalf("GetProductPrice failed: %v", err)
	}
	if provider.calls != 0 {
		t.Errorf("expected no provider calls while any variant quote is fresh, got %d", provider.calls)
	}
	if !result.CurrentPrice.Valid || !result.CurrentPrice.Decimal.Equal(d(250)) {
		t.Errorf("expected the fresh variant quote 250 served as current, got %v", result.CurrentPrice)
	}
}

func TestGetProductPrice_StaleQuoteRefetchedAndPersisted(t *testing.T) {
	db := newTestDB(t)
	productID := seedProduct(t, db, "Blastoise")
	_, err := db.Exec(`INSERT INTO price_history (product_id, source, price, currency, sample_count, date_recorded)
		VALUES (?, 'test', '42', 'USD', 10, datetime('now', '-2 hours'))`, productID)
	if err != nil {
		t.Fatalf("failed to seed stale quote: %v", err)
	}
	provider := &fakeProvider{samples: samples(10, 20, 30)}
	svc := services.NewQuoteService(db, provider, time.Hour, rate.NewLimiter(rate.Inf, 1))

	result, err := svc.GetProductPrice(context.Background(), productID)
	if err != nil {
		t.Fatalf("GetProductPrice failed: %v", err)
	}
	if provider.calls != 1 {
		t.Errorf("expected 1 provider call for a stale quote, got %d", provider.calls)
	}
	if !result.CurrentPrice.Valid || !result.CurrentPrice.Decimal.Equal(d(20)) {
		t.Errorf("expected refetched price 20, got %v", result.CurrentPrice)
	}
	if result.UsedHistory {
		t.Error("expected UsedHistory=false after live fetch")
	}

	quote, err := models.GetLatestQuote(db, models.QuoteKey{ProductID: productID})
	if err != nil {
		t.Fatalf("expected refetched quote persisted: %v", err)
	}
	if !quote.Price.Equal(d(20)) {
		t.Errorf("expected persisted price 20, got %s", quote.Price)
	}
	var rows int
	if err := db.QueryRow("SELECT COUNT(*) FROM price_history").Scan(&rows); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if rows != 2 {
		t.Errorf("expected the stale row plus the new quote, got %d rows", rows)
	}
}

func TestGetProductPrice_NotFound(t *testing.T) {
	db := newTestDB(t)
	svc := services.NewQuoteService(db, &fakeProvider{}, time.Hour, rate.NewLimiter(rate.Inf, 1))

	if _, err := svc.GetProductPrice(context.Background(), 12345); err == nil {
		t.Fatal("expected error for unknown product")
	}
}

func TestRefreshCollectionQuotes_UpdatesEachVariant(t *testing.T) {
	db := newTestDB(t)
	userID := seedUser(t, db, "red")
	p1 := seedProduct(t, db, "Mewtwo")
	p2 := seedProduct(t, db, "Mew")
	seedLot(t, db, userID, p1, 1, 100)
	seedLot(t, db, userID, p2, 1, 50)

	provider := &fakeProvider{samples: samples(10, 20, 30)}
	svc := services.NewQuoteService(db, provider, time.Hour, rate.NewLimiter(rate.Every(time.Millisecond), 1))

	updated, err := svc.RefreshCollectionQuotes(context.Background(), userID)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if updated != 2 {
		t.Errorf("expected 2 variants updated, got %d", updated)
	}
	if provider.calls != 2 {
		t.Errorf("expected 2 provider calls, got %d", provider.calls)
	}
}

func TestRefreshCollectionQuotes_ThrottleSkipsFreshVariants(t *testing.T) {
	db := newTestDB(t)
	userID := seedUser(t, db, "blue")
	p1 := seedProduct(t, db, "Alakazam")
	seedLot(t, db, userID, p1, 1, 100)
	seedQuote(t, db, p1, "Near Mint", 80)

	provider := &fakeProvider{samples: samples(10, 20, 30)}
	svc := services.NewQuoteService(db, provider, time.Hour, rate.NewLimiter(rate.Every(time.Millisecond), 1))

	updated, err := svc.RefreshCollectionQuotes(context.Background(), userID)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if updated != 0 {
		t.Errorf("expected 0 variants updated inside freshness window, got %d", updated)
	}
	var rows int
	if err := db.QueryRow("SELECT COUNT(*) FROM price_history").Scan(&rows); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if rows != 1 {
		t.Errorf("expected the seeded quote to remain the only row, got %d", rows)
	}
}

func TestRefreshCollectionQuotes_CancelledContextStopsBatch(t *testing.T) {
	db := newTestDB(t)
	userID := seedUser(t, db, "green")
	p1 := seedProduct(t, db, "Snorlax")
	seedLot(t, db, userID, p1, 1, 100)

	provider := &fakeProvider{samples: samples(10, 20, 30)}
	svc := services.NewQuoteService(db, provider, time.Hour, rate.NewLimiter(rate.Every(time.Millisecond), 1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	updated, err := svc.RefreshCollectionQuotes(ctx, userID)
	if err == nil {
		t.Fatal("expected error from cancelled context")
	}
	if updated != 0 {
		t.Errorf("expected no updates after cancellation, got %d", updated)
	}
	if provider.calls != 0 {
		t.Errorf("expected no provider calls after cancellation, got %d", provider.calls)
	}
}

func TestRefreshCollectionQuotes_ProviderFailureSkipsVariant(t *testing.T) {
	db := newTestDB(t)
	userID := seedUser(t, db, "silver")
	p1 := seedProduct(t, db, "Lugia")
	seedLot(t, db, userID, p1, 1, 100)

	provider := &fakeProvider{err: services.ErrProviderFailed}
	svc := services.NewQuoteService(db, provider, time.Hour, rate.NewLimiter(rate.Every(time.Millisecond), 1))

	updated, err := svc.RefreshCollectionQuotes(context.Background(), userID)
	if err != nil {
		t.Fatalf("per-variant failure must not fail the batch: %v", err)
	}
	if updated != 0 {
		t.Errorf("expected 0 updates when provider fails, got %d", updated)
	}
}

func TestSaveManualPrice_Validation(t *testing.T) {
	db := newTestDB(t)
	productID := seedProduct(t, db, "Ditto")
	svc := services.NewQuoteService(db, &fakeProvider{}, time.Hour, rate.NewLimiter(rate.Inf, 1))

	err := svc.SaveManualPrice(context.Background(), &models.PriceQuote{ProductID: productID, Price: d(-5)})
	if err == nil {
		t.Error("expected error for non-positive price")
	}

	err = svc.SaveManualPrice(context.Background(), &models.PriceQuote{ProductID: 9999, Price: d(5)})
	if err == nil {
		t.Error("expected error for unknown product")
	}

	quote := &models.PriceQuote{ProductID: productID, Price: d(12.5), Currency: "USD"}
	if err := svc.SaveManualPrice(context.Background(), quote); err != nil {
		t.Fatalf("expected manual save to succeed: %v", err)
	}
	if quote.Source != "manual" {
		t.Errorf("expected default source manual, got %q", quote.Source)
	}
}
