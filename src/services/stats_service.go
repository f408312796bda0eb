package services

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"github.com/username/collectr/backend/src/logger"
	"github.com/username/collectr/backend/src/models"
)

type statsServiceImpl struct {
	db         *sql.DB
	statsCache *cache.Cache
}

func NewStatsService(db *sql.DB) StatsService {
	return &statsServiceImpl{
		db:         db,
		statsCache: cache.New(5*time.Minute, 10*time.Minute),
	}
}

// LogStatChange appends one point to a user's stat history. Failures are
// logged and swallowed so the business operation that triggered the append is
// never failed by its bookkeeping.
func (s *statsServiceImpl) LogStatChange(userID int64, statType string, value decimal.Decimal) {
	if err := models.InsertStatPoint(s.db, userID, statType, value); err != nil {
		logger.L.Error("Failed to record stat point", "userID", userID, "statType", statType, "error", err)
	}
}

// LogProfitLoss snapshots the collection's unrealized position: market value
// against total invested, as both a percentage and an absolute value. Lots
// whose variant has no persisted quote contribute investment but no market
// value, so early snapshots skew low until quotes accumulate.
func (s *statsServiceImpl) LogProfitLoss(userID int64) {
	lots, err := models.GetLotsByUser(s.db, userID)
	if err != nil {
		logger.L.Error("Failed to load lots for profit/loss snapshot", "userID", userID, "error", err)
		return
	}
	if len(lots) == 0 {
		return
	}

	quotes, err := models.GetLatestQuotesForUser(s.db, userID)
	if err != nil {
		logger.L.Error("Failed to load quotes for profit/loss snapshot", "userID", userID, "error", err)
		return
	}

	totalInvestment := decimal.Zero
	marketValue := decimal.Zero
	for _, lot := range lots {
		qty := decimal.NewFromInt(int64(lot.Quantity))
		totalInvestment = totalInvestment.Add(lot.TotalBasis())
		key := models.QuoteKey{
			ProductID:      lot.ProductID,
			GradingCompany: lot.GradingCompany,
			Grade:          lot.Grade,
			Condition:      lot.Condition,
		}
		if quote, ok := quotes[key]; ok {
			marketValue = marketValue.Add(quote.Mul(qty))
		}
	}

	if !totalInvestment.IsPositive() {
		return
	}

	plValue := marketValue.Sub(totalInvestment)
	plPct := plValue.Div(totalInvestment).Mul(decimal.NewFromInt(100)).Round(2)

	s.LogStatChange(userID, models.StatProfitLossPct, plPct)
	s.LogStatChange(userID, models.StatProfitLossValue, plValue.Round(2))
}

// GetStatHistory returns a user's stat points ascending by time. An empty
// metric returns all metrics in one series; a non-empty metric must be one of
// the known stat types.
func (s *statsServiceImpl) GetStatHistory(userID int64, metric string, from, to time.Time) ([]models.StatPoint, error) {
	switch metric {
	case "", models.StatLifetimeEarnings, models.StatProfitLossPct, models.StatProfitLossValue:
	default:
		return nil, fmt.Errorf("%w: unknown stat metric %q", ErrValidation, metric)
	}
	return models.GetStatHistory(s.db, userID, metric, from, to)
}

// GetCollectionStats computes the headline numbers for a collection, cached
// for a few minutes per user. Writes that change the numbers call
// InvalidateStatsCache.
func (s *statsServiceImpl) GetCollectionStats(userID int64) (*CollectionStats, error) {
	cacheKey := statsCacheKey(userID)
	if cached, found := s.statsCache.Get(cacheKey); found {
		return cached.(*CollectionStats), nil
	}

	lots, err := models.GetLotsWithProducts(s.db, userID, "", "", "")
	if err != nil {
		return nil, err
	}

	user, err := models.GetUserByID(s.db, userID)
	if err != nil {
		return nil, err
	}

	stats := &CollectionStats{LifetimeEarnings: user.LifetimeEarnings}
	totalQuantity := 0
	for _, lot := range lots {
		totalQuantity += lot.Quantity
		if lot.Sealed {
			stats.TotalSealed += lot.Quantity
		} else {
			stats.TotalCards += lot.Quantity
		}
		stats.TotalInvestment = stats.TotalInvestment.Add(lot.TotalBasis())
		if lot.AskingPrice.Valid {
			stats.ItemsForSale += lot.Quantity
		}
	}
	if totalQuantity > 0 {
		stats.AvgPurchasePrice = stats.TotalInvestment.
			Div(decimal.NewFromInt(int64(totalQuantity))).Round(2)
	}

	s.statsCache.Set(cacheKey, stats, cache.DefaultExpiration)
	return stats, nil
}

func (s *statsServiceImpl) InvalidateStatsCache(userID int64) {
	s.statsCache.Delete(statsCacheKey(userID))
}

func statsCacheKey(userID int64) string {
	return fmt.Sprintf("collection_stats_%d", userID)
}
