package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/username/collectr/backend/src/logger"
	"github.com/username/collectr/backend/src/models"
	"github.com/username/collectr/backend/src/processors"
)

type settlementServiceImpl struct {
	db    *sql.DB
	stats StatsService
}

func NewSettlementService(db *sql.DB, stats StatsService) SettlementService {
	return &settlementServiceImpl{db: db, stats: stats}
}

// Settle executes a trade as one transaction: surrendered lots are
// decremented or deleted, received items merge into existing lots or create
// new ones with their allocated basis, the cash ledger moves, and the
// immutable trade record is written. Any failure rolls the whole trade back.
//
// Stat history points are appended after the commit; their failure never
// fails the trade.
func (s *settlementServiceImpl) Settle(ctx context.Context, userID int64, req SettlementRequest) (*SettlementResult, error) {
	if err := validateSettlementRequest(req); err != nil {
		return nil, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin settlement transaction: %w", err)
	}
	defer tx.Rollback()

	// Phase 1: load and validate everything before touching any row.
	awayRecords, awayBasis, awayMarket, err := s.loadTradedAway(tx, userID, req.TradedAway)
	if err != nil {
		return nil, err
	}

	receivedMarket := decimal.Zero
	for _, item := range req.Received {
		if _, err := models.GetProductByID(tx, item.ProductID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("%w: received product %d", ErrNotFound, item.ProductID)
			}
			return nil, err
		}
		receivedMarket = receivedMarket.Add(item.Quote.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	alloc := processors.AllocateBasis(awayBasis, awayMarket, receivedMarket, req.CashDelta)

	// Phase 2: apply inventory mutations.
	for i, input := range req.TradedAway {
		record := awayRecords[i]
		if record.heldQuantity > input.Quantity {
			err = models.SetLotQuantityAndBasis(tx, input.LotID, record.heldQuantity-input.Quantity, record.unitBasis)
		} else {
			err = models.DeleteLot(tx, input.LotID, userID)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to update surrendered lot %d: %w", input.LotID, err)
		}
	}

	receivedValues := make([]processors.ReceivedValue, len(req.Received))
	for i, item := range req.Received {
		receivedValues[i] = processors.ReceivedValue{Quote: item.Quote, Quantity: item.Quantity}
	}
	basisParts := processors.SplitBasis(alloc.AllocatableBasis, receivedValues)

	receivedRecords := make([]models.ReceivedRecord, 0, len(req.Received))
	for i, item := range req.Received {
		unitBasis := basisParts[i].Div(decimal.NewFromInt(int64(item.Quantity)))
		if err := s.mergeReceivedItem(tx, userID, item, unitBasis); err != nil {
			return nil, err
		}
		receivedRecords = append(receivedRecords, models.ReceivedRecord{
			ProductID:      item.ProductID,
			GradingCompany: item.GradingCompany,
			Grade:          item.Grade,
			Condition:      item.Condition,
			GradingStatus:  item.GradingStatus,
			Quantity:       item.Quantity,
			Quote:          item.Quote,
			AllocatedBasis: basisParts[i],
		})
	}

	// Phase 3: ledger and the immutable trade record, still inside the tx.
	if !alloc.LedgerDelta.IsZero() {
		if err := models.AdjustLifetimeEarnings(tx, userID, alloc.LedgerDelta); err != nil {
			return nil, fmt.Errorf("failed to update ledger: %w", err)
		}
	}

	trade := &models.Trade{
		Reference:   uuid.New().String(),
		UserID:      userID,
		TradedAway:  toTradedAwayRecords(awayRecords, req.TradedAway),
		Received:    receivedRecords,
		CashDelta:   req.CashDelta,
		LedgerDelta: alloc.LedgerDelta,
	}
	if trade.ID, err = models.InsertTrade(tx, trade); err != nil {
		return nil, fmt.Errorf("failed to record trade: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit settlement: %w", err)
	}

	logger.FromContext(ctx).Info("Trade settled",
		"userID", userID, "reference", trade.Reference,
		"ledgerDelta", alloc.LedgerDelta.String(), "allocatedBasis", alloc.AllocatableBasis.String())

	if !alloc.LedgerDelta.IsZero() {
		s.stats.LogStatChange(userID, models.StatLifetimeEarnings, alloc.LedgerDelta)
	}
	s.stats.LogProfitLoss(userID)
	s.stats.InvalidateStatsCache(userID)

	return &SettlementResult{
		Trade:               trade,
		AllocatedBasis:      alloc.AllocatableBasis,
		LedgerDelta:         alloc.LedgerDelta,
		AwayMarketValue:     awayMarket,
		ReceivedMarketValue: receivedMarket,
	}, nil
}

// awayLot is a surrendered lot's state captured at settlement time.
type awayLot struct {
	lot          *models.Lot
	heldQuantity int
	unitBasis    decimal.Decimal
	quote        decimal.Decimal
}

// loadTradedAway validates each surrendered reference and captures basis and
// current quote for the trade record. A lot with no persisted quote is valued
// at zero market; basis is still conserved.
func (s *settlementServiceImpl) loadTradedAway(tx models.DBTX, userID int64, inputs []TradedAwayInput) ([]awayLot, decimal.Decimal, decimal.Decimal, error) {
	records := make([]awayLot, 0, len(inputs))
	awayBasis := decimal.Zero
	awayMarket := decimal.Zero

	for _, input := range inputs {
		lot, err := models.GetLotByID(tx, input.LotID, userID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, decimal.Zero, decimal.Zero, fmt.Errorf("%w: lot %d", ErrNotFound, input.LotID)
			}
			return nil, decimal.Zero, decimal.Zero, err
		}
		if input.Quantity > lot.Quantity {
			return nil, decimal.Zero, decimal.Zero, fmt.Errorf(
				"%w: lot %d holds %d units, cannot surrender %d", ErrValidation, input.LotID, lot.Quantity, input.Quantity)
		}

		quote := decimal.Zero
		key := models.QuoteKey{
			ProductID:      lot.ProductID,
			GradingCompany: lot.GradingCompany,
			Grade:          lot.Grade,
			Condition:      lot.Condition,
		}
		if latest, err := models.GetLatestQuote(tx, key); err == nil {
			quote = latest.Price
		} else if !errors.Is(err, sql.ErrNoRows) {
			return nil, decimal.Zero, decimal.Zero, err
		}

		qty := decimal.NewFromInt(int64(input.Quantity))
		awayBasis = awayBasis.Add(lot.PurchasePrice.Mul(qty))
		awayMarket = awayMarket.Add(quote.Mul(qty))

		records = append(records, awayLot{
			lot:          lot,
			heldQuantity: lot.Quantity,
			unitBasis:    lot.PurchasePrice,
			quote:        quote,
		})
	}
	return records, awayBasis, awayMarket, nil
}

// mergeReceivedItem upserts a received item into the user's lots: merged via
// quantity-weighted average basis when the identity key already exists,
// created otherwise.
func (s *settlementServiceImpl) mergeReceivedItem(tx models.DBTX, userID int64, item ReceivedInput, unitBasis decimal.Decimal) error {
	key := models.LotKey{
		ProductID:      item.ProductID,
		GradingCompany: item.GradingCompany,
		Grade:          item.Grade,
		Condition:      item.Condition,
		GradingStatus:  item.GradingStatus,
	}

	existing, err := models.FindLotByKey(tx, userID, key)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		_, err = models.InsertLot(tx, &models.Lot{
			UserID:         userID,
			ProductID:      item.ProductID,
			Quantity:       item.Quantity,
			PurchasePrice:  unitBasis,
			GradingCompany: item.GradingCompany,
			Grade:          item.Grade,
			Condition:      item.Condition,
			GradingStatus:  item.GradingStatus,
		})
		if err != nil {
			return fmt.Errorf("failed to create lot for received product %d: %w", item.ProductID, err)
		}
		return nil
	}

	oldQty := decimal.NewFromInt(int64(existing.Quantity))
	newQty := decimal.NewFromInt(int64(item.Quantity))
	mergedQty := existing.Quantity + item.Quantity
	mergedBasis := existing.PurchasePrice.Mul(oldQty).
		Add(unitBasis.Mul(newQty)).
		Div(oldQty.Add(newQty))

	if err := models.SetLotQuantityAndBasis(tx, existing.ID, mergedQty, mergedBasis); err != nil {
		return fmt.Errorf("failed to merge received product %d into lot %d: %w", item.ProductID, existing.ID, err)
	}
	return nil
}

func validateSettlementRequest(req SettlementRequest) error {
	if len(req.TradedAway) == 0 && len(req.Received) == 0 {
		return fmt.Errorf("%w: trade must include surrendered lots or received items", ErrValidation)
	}
	for _, item := range req.TradedAway {
		if item.Quantity < 1 {
			return fmt.Errorf("%w: surrender quantity must be at least 1", ErrValidation)
		}
	}
	for _, item := range req.Received {
		if item.Quantity < 1 {
			return fmt.Errorf("%w: received quantity must be at least 1", ErrValidation)
		}
		if !item.Quote.IsPositive() {
			return fmt.Errorf("%w: received product %d: %s", ErrValidation, item.ProductID, ErrQuoteRequired)
		}
		if !item.GradingStatus.Valid() {
			return fmt.Errorf("%w: received product %d has invalid grading status %q", ErrValidation, item.ProductID, item.GradingStatus)
		}
		if item.GradingStatus == models.GradingStatusGraded && (item.GradingCompany == "" || item.Grade == "") {
			return fmt.Errorf("%w: received product %d marked graded requires grading_company and grade", ErrValidation, item.ProductID)
		}
	}
	return nil
}

func toTradedAwayRecords(records []awayLot, inputs []TradedAwayInput) []models.TradedAwayRecord {
	out := make([]models.TradedAwayRecord, len(records))
	for i, r := range records {
		out[i] = models.TradedAwayRecord{
			LotID:          inputs[i].LotID,
			ProductID:      r.lot.ProductID,
			GradingCompany: r.lot.GradingCompany,
			Grade:          r.lot.Grade,
			Condition:      r.lot.Condition,
			Quantity:       inputs[i].Quantity,
			CostBasis:      r.unitBasis,
			Quote:          r.quote,
		}
	}
	return out
}
