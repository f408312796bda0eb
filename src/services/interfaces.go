package services

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/collectr/backend/src/models"
	"github.com/username/collectr/backend/src/processors"
)

// Common service errors. Handlers map these onto HTTP statuses.
var (
	ErrValidation     = errors.New("validation failed")
	ErrNotFound       = errors.New("not found")
	ErrQuoteRequired  = errors.New("received item has no market quote")
	ErrProviderFailed = errors.New("market data provider call failed")
)

// SearchQuery describes a variant to the market data provider.
type SearchQuery struct {
	Name           string
	SetName        string
	CardNumber     string
	GradingCompany string
	Grade          string
}

// MarketDataProvider fetches raw sold-price samples for one variant.
// Implementations own their credentials and session renewal; callers only see
// samples or an error, and must tolerate either per call.
type MarketDataProvider interface {
	FetchSoldPrices(ctx context.Context, query SearchQuery) ([]processors.PriceSample, error)
}

// ProductPriceResult is the price view for one product: the current smoothed
// quote (if any), its recent history, and the change over that history.
type ProductPriceResult struct {
	Product          *models.Product     `json:"product"`
	CurrentPrice     decimal.NullDecimal `json:"current_price"`
	LastUpdated      *time.Time          `json:"last_updated,omitempty"`
	UsedHistory      bool                `json:"used_history"`
	PriceChange      decimal.Decimal     `json:"price_change"`
	PercentageChange decimal.Decimal     `json:"percentage_change"`
	PriceHistory     []models.PriceQuote `json:"price_history"`
}

// QuoteService owns quote computation, the persistence throttle, and batch
// refresh over a collection.
type QuoteService interface {
	// GetProductPrice serves the current quote for a product, fetching and
	// aggregating fresh samples when the persisted quote is missing or older
	// than the freshness window.
	GetProductPrice(ctx context.Context, productID int64) (*ProductPriceResult, error)

	// RefreshCollectionQuotes walks every distinct variant in the user's lots,
	// fetches samples behind the provider rate limiter, aggregates, and
	// persists quotes subject to the freshness throttle. Per-variant failures
	// are logged and skipped. Returns the number of variants updated. The
	// context cancels the batch between iterations.
	RefreshCollectionQuotes(ctx context.Context, userID int64) (int, error)

	// SaveManualPrice appends a caller-supplied price observation.
	SaveManualPrice(ctx context.Context, quote *models.PriceQuote) error

	// ShouldPersist reports whether a quote for a key whose previous record
	// was written at lastPersistedAt is due for another write at now.
	ShouldPersist(now, lastPersistedAt time.Time) bool
}

// TradedAwayInput references an existing lot and how many units to surrender.
type TradedAwayInput struct {
	LotID    int64 `json:"lot_id"`
	Quantity int   `json:"quantity"`
}

// ReceivedInput is an incoming item with its current market quote. The quote
// is required; settlement refuses to value received items at zero silently.
type ReceivedInput struct {
	ProductID      int64                `json:"product_id"`
	GradingCompany string               `json:"grading_company"`
	Grade          string               `json:"grade"`
	Condition      string               `json:"condition"`
	GradingStatus  models.GradingStatus `json:"grading_status"`
	Quantity       int                  `json:"quantity"`
	Quote          decimal.Decimal      `json:"quote"`
}

// SettlementRequest is a full trade: lots out, items in, and the cash moved.
// CashDelta > 0 means the user added cash; < 0 means the user received cash.
type SettlementRequest struct {
	TradedAway []TradedAwayInput `json:"traded_away"`
	Received   []ReceivedInput   `json:"received"`
	CashDelta  decimal.Decimal   `json:"cash_delta"`
}

// SettlementResult is the persisted trade plus the computed money movements.
type SettlementResult struct {
	Trade               *models.Trade   `json:"trade"`
	AllocatedBasis      decimal.Decimal `json:"allocated_basis"`
	LedgerDelta         decimal.Decimal `json:"ledger_delta"`
	AwayMarketValue     decimal.Decimal `json:"traded_away_market_value"`
	ReceivedMarketValue decimal.Decimal `json:"received_market_value"`
}

// SettlementService executes trades atomically: inventory, ledger, and the
// trade record move together or not at all.
type SettlementService interface {
	Settle(ctx context.Context, userID int64, req SettlementRequest) (*SettlementResult, error)
}

// CollectionStats is the cached headline view of a user's collection.
type CollectionStats struct {
	TotalCards       int             `json:"total_cards"`
	TotalSealed      int             `json:"total_quantity"`
	TotalInvestment  decimal.Decimal `json:"total_investment"`
	LifetimeEarnings decimal.Decimal `json:"lifetime_earnings"`
	AvgPurchasePrice decimal.Decimal `json:"avg_purchase_price"`
	ItemsForSale     int             `json:"items_for_sale"`
}

// StatsService is the stat history ledger plus derived collection metrics.
// Append operations are fire-and-forget: failures are logged, never returned
// to the triggering business operation.
type StatsService interface {
	LogStatChange(userID int64, statType string, value decimal.Decimal)
	LogProfitLoss(userID int64)
	GetStatHistory(userID int64, metric string, from, to time.Time) ([]models.StatPoint, error)
	GetCollectionStats(userID int64) (*CollectionStats, error)
	InvalidateStatsCache(userID int64)
}
