package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/collectr/backend/src/logger"
	"github.com/username/collectr/backend/src/models"
	"github.com/username/collectr/backend/src/processors"
	"golang.org/x/time/rate"
)

const ebaySource = "ebay_api"

type quoteServiceImpl struct {
	db        *sql.DB
	provider  MarketDataProvider
	freshness time.Duration
	limiter   *rate.Limiter
	now       func() time.Time
}

// NewQuoteService wires the quote pipeline: provider fetch, trimmed-mean
// aggregation, and throttled persistence. The limiter bounds outbound
// provider calls during batch refreshes.
func NewQuoteService(db *sql.DB, provider MarketDataProvider, freshness time.Duration, limiter *rate.Limiter) QuoteService {
	return &quoteServiceImpl{
		db:        db,
		provider:  provider,
		freshness: freshness,
		limiter:   limiter,
		now:       time.Now,
	}
}

// ShouldPersist reports whether a fresh quote for a key is due to be written,
// given when the previous one was recorded. A zero lastPersistedAt means no
// quote exists yet.
func (s *quoteServiceImpl) ShouldPersist(now, lastPersistedAt time.Time) bool {
	if lastPersistedAt.IsZero() {
		return true
	}
	return now.Sub(lastPersistedAt) >= s.freshness
}

// GetProductPrice serves a product's current price. The price is the newest
// persisted quote under any variant of the product, and that same recency
// decides both whether to go to the market and whether the fetched quote is
// persisted.
func (s *quoteServiceImpl) GetProductPrice(ctx context.Context, productID int64) (*ProductPriceResult, error) {
	product, err := models.GetProductByID(s.db, productID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: product %d", ErrNotFound, productID)
		}
		return nil, err
	}

	result := &ProductPriceResult{Product: product, UsedHistory: true}

	latest, err := models.GetLatestQuoteForProduct(s.db, productID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if latest != nil {
		result.CurrentPrice = decimal.NullDecimal{Decimal: latest.Price, Valid: true}
		t := latest.DateRecorded
		result.LastUpdated = &t
	}

	// Persisted quote missing or stale: go to the market now. The
	// product-level staleness check above already authorizes the persist.
	var lastRecorded time.Time
	if latest != nil {
		lastRecorded = latest.DateRecorded
	}
	if s.ShouldPersist(s.now(), lastRecorded) {
		key := models.QuoteKey{ProductID: productID}
		if quote, sampleCount, ok := s.fetchQuote(ctx, product, key); ok {
			if err := s.persistQuote(ctx, key, quote, sampleCount); err == nil {
				result.CurrentPrice = decimal.NullDecimal{Decimal: quote, Valid: true}
				now := s.now()
				result.LastUpdated = &now
				result.UsedHistory = false
			}
		}
	}

	history, err := models.GetQuoteHistory(s.db, productID, 30)
	if err != nil {
		return nil, err
	}
	result.PriceHistory = history
	if len(history) >= 2 {
		oldest := history[0].Price
		newest := history[len(history)-1].Price
		result.PriceChange = newest.Sub(oldest)
		if oldest.IsPositive() {
			result.PercentageChange = result.PriceChange.Div(oldest).Mul(decimal.NewFromInt(100))
		}
	}
	return result, nil
}

// collectionVariant is one distinct (product, grading, condition) held in a
// user's lots, with the product attributes the provider search needs.
type collectionVariant struct {
	ProductID      int64
	Name           string
	SetName        string
	CardNumber     string
	GradingCompany string
	Grade          string
	Condition      string
}

func (s *quoteServiceImpl) RefreshCollectionQuotes(ctx context.Context, userID int64) (int, error) {
	variants, err := s.collectionVariants(userID)
	if err != nil {
		return 0, err
	}

	log := logger.FromContext(ctx)
	log.Info("Starting collection quote refresh", "userID", userID, "variants", len(variants))

	updated := 0
	for _, v := range variants {
		// The limiter paces provider calls and is the batch's cancellation
		// point: a cancelled context stops the refresh between variants.
		if err := s.limiter.Wait(ctx); err != nil {
			log.Info("Collection quote refresh cancelled", "userID", userID, "updated", updated)
			return updated, err
		}

		product := &models.Product{
			ID:         v.ProductID,
			Name:       v.Name,
			SetName:    v.SetName,
			CardNumber: v.CardNumber,
		}
		key := models.QuoteKey{
			ProductID:      v.ProductID,
			GradingCompany: v.GradingCompany,
			Grade:          v.Grade,
			Condition:      v.Condition,
		}
		if _, ok := s.fetchAndPersist(ctx, product, key); ok {
			updated++
		}
	}

	log.Info("Collection quote refresh finished", "userID", userID, "updated", updated)
	return updated, nil
}

// fetchAndPersist fetches and aggregates one variant's quote, then persists
// it subject to the variant-key freshness throttle. The computed quote is
// returned even when persistence is skipped, so callers can display it.
// Failures are logged and reported as ok=false; they never abort a batch.
func (s *quoteServiceImpl) fetchAndPersist(ctx context.Context, product *models.Product, key models.QuoteKey) (decimal.Decimal, bool) {
	log := logger.FromContext(ctx)

	quote, sampleCount, ok := s.fetchQuote(ctx, product, key)
	if !ok {
		return decimal.Zero, false
	}

	var lastRecorded time.Time
	if latest, err := models.GetLatestQuote(s.db, key); err == nil {
		lastRecorded = latest.DateRecorded
	} else if !errors.Is(err, sql.ErrNoRows) {
		log.Warn("Failed to read last quote for throttle check", "productID", product.ID, "error", err)
		return quote, false
	}

	if !s.ShouldPersist(s.now(), lastRecorded) {
		log.Debug("Quote still fresh, skipping persist", "productID", product.ID, "lastRecorded", lastRecorded)
		return quote, false
	}

	if err := s.persistQuote(ctx, key, quote, sampleCount); err != nil {
		return quote, false
	}
	return quote, true
}

// fetchQuote pulls sold prices for one variant from the provider and smooths
// them into a quote. Returns the quote, the sample count behind it, and
// whether a usable quote was produced.
func (s *quoteServiceImpl) fetchQuote(ctx context.Context, product *models.Product, key models.QuoteKey) (decimal.Decimal, int, bool) {
	log := logger.FromContext(ctx)

	samples, err := s.provider.FetchSoldPrices(ctx, SearchQuery{
		Name:           product.Name,
		SetName:        product.SetName,
		CardNumber:     product.CardNumber,
		GradingCompany: key.GradingCompany,
		Grade:          key.Grade,
	})
	if err != nil {
		log.Warn("Market provider call failed", "productID", product.ID, "error", err)
		return decimal.Zero, 0, false
	}

	quote, ok := processors.AggregateSamples(samples)
	if !ok {
		log.Info("No usable samples for variant", "productID", product.ID, "name", product.Name)
		return decimal.Zero, 0, false
	}
	return quote, len(samples), true
}

func (s *quoteServiceImpl) persistQuote(ctx context.Context, key models.QuoteKey, quote decimal.Decimal, sampleCount int) error {
	record := &models.PriceQuote{
		ProductID:      key.ProductID,
		Source:         ebaySource,
		Price:          quote,
		Currency:       "USD",
		SampleCount:    sampleCount,
		URL:            "eBay Market Data",
		GradingCompany: key.GradingCompany,
		Grade:          key.Grade,
		Condition:      key.Condition,
	}
	if err := models.InsertQuote(s.db, record); err != nil {
		logger.FromContext(ctx).Error("Failed to persist quote", "productID", key.ProductID, "error", err)
		return err
	}
	logger.FromContext(ctx).Info("Persisted market quote", "productID", key.ProductID, "price", quote.String(), "samples", sampleCount)
	return nil
}

func (s *quoteServiceImpl) SaveManualPrice(ctx context.Context, quote *models.PriceQuote) error {
	if !quote.Price.IsPositive() {
		return fmt.Errorf("%w: price must be positive", ErrValidation)
	}
	if _, err := models.GetProductByID(s.db, quote.ProductID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: product %d", ErrNotFound, quote.ProductID)
		}
		return err
	}
	if quote.Source == "" {
		quote.Source = "manual"
	}
	return models.InsertQuote(s.db, quote)
}

func (s *quoteServiceImpl) collectionVariants(userID int64) ([]collectionVariant, error) {
	rows, err := s.db.Query(`SELECT DISTINCT p.id, p.name, p.set_name, p.card_number,
			l.grading_company, l.grade, l.condition
		FROM lots l
		JOIN products p ON l.product_id = p.id
		WHERE l.user_id = ?
		ORDER BY p.name, p.set_name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var variants []collectionVariant
	for rows.Next() {
		var v collectionVariant
		if err := rows.Scan(&v.ProductID, &v.Name, &v.SetName, &v.CardNumber,
			&v.GradingCompany, &v.Grade, &v.Condition); err != nil {
			return nil, err
		}
		variants = append(variants, v)
	}
	return variants, rows.Err()
}
