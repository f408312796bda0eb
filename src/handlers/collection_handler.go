package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/username/collectr/backend/src/database"
	"github.com/username/collectr/backend/src/logger"
	"github.com/username/collectr/backend/src/models"
	"github.com/username/collectr/backend/src/processors"
	"github.com/username/collectr/backend/src/security/validation"
	"github.com/username/collectr/backend/src/services"
)

type CollectionHandler struct {
	statsService services.StatsService
}

func NewCollectionHandler(statsService services.StatsService) *CollectionHandler {
	return &CollectionHandler{statsService: statsService}
}

type addLotRequest struct {
	ProductID      int64                `json:"product_id"`
	Quantity       int                  `json:"quantity"`
	PurchasePrice  decimal.Decimal      `json:"purchase_price"`
	PurchaseDate   string               `json:"purchase_date"`
	Notes          string               `json:"notes"`
	GradingCompany string               `json:"grading_company"`
	Grade          string               `json:"grade"`
	Condition      string               `json:"condition"`
	GradingStatus  models.GradingStatus `json:"grading_status"`
	RawCardCost    decimal.NullDecimal  `json:"raw_card_cost"`
	GradingCost    decimal.NullDecimal  `json:"grading_cost"`
}

func (req *addLotRequest) sanitizeAndValidate() error {
	req.Notes = validation.SanitizeText(strings.TrimSpace(req.Notes))
	req.Condition = validation.SanitizeText(strings.TrimSpace(req.Condition))
	req.GradingCompany = strings.ToUpper(strings.TrimSpace(req.GradingCompany))
	req.Grade = strings.TrimSpace(req.Grade)

	if req.ProductID <= 0 {
		return errors.New("product_id is required")
	}
	if req.Quantity < 1 {
		return errors.New("quantity must be at least 1")
	}
	if req.PurchasePrice.IsNegative() {
		return errors.New("purchase_price cannot be negative")
	}
	if err := validation.ValidateStringMaxLength(req.Notes, validation.MaxNotesLength, "Notes"); err != nil {
		return err
	}
	if err := validation.ValidateStringMaxLength(req.Condition, validation.MaxConditionLength, "Condition"); err != nil {
		return err
	}
	if err := validation.ValidateGradingCompany(req.GradingCompany); err != nil {
		return err
	}
	if err := validation.ValidateGrade(req.Grade); err != nil {
		return err
	}

	// The status is explicit at this boundary. An omitted status falls back to
	// raw only when no grading attributes were supplied.
	if req.GradingStatus == "" {
		if req.GradingCompany != "" && req.Grade != "" {
			req.GradingStatus = models.GradingStatusGraded
		} else {
			req.GradingStatus = models.GradingStatusRaw
		}
	}
	if !req.GradingStatus.Valid() {
		return errors.New("grading_status must be one of raw, grading, graded")
	}
	if req.GradingStatus == models.GradingStatusGraded && (req.GradingCompany == "" || req.Grade == "") {
		return errors.New("graded items require grading_company and grade")
	}
	return nil
}

// HandleAddToCollection acquires units of a product. Acquisitions of an
// identity key already held merge into the existing lot with a
// quantity-weighted average basis; the ledger decreases by the total cost.
func (h *CollectionHandler) HandleAddToCollection(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}
	ctxLogger := logger.FromContext(r.Context())

	var req addLotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := req.sanitizeAndValidate(); err != nil {
		sendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if _, err := models.GetProductByID(database.DB, req.ProductID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			sendJSONError(w, "Product not found", http.StatusNotFound)
			return
		}
		ctxLogger.Error("Product lookup failed", "productID", req.ProductID, "error", err)
		sendJSONError(w, "Failed to add to collection", http.StatusInternalServerError)
		return
	}

	lot := &models.Lot{
		UserID:         userID,
		ProductID:      req.ProductID,
		Quantity:       req.Quantity,
		PurchasePrice:  req.PurchasePrice,
		PurchaseDate:   req.PurchaseDate,
		Notes:          req.Notes,
		GradingCompany: req.GradingCompany,
		Grade:          req.Grade,
		Condition:      req.Condition,
		GradingStatus:  req.GradingStatus,
		RawCardCost:    req.RawCardCost,
		GradingCost:    req.GradingCost,
	}

	tx, err := database.DB.Begin()
	if err != nil {
		ctxLogger.Error("Failed to begin acquisition transaction", "error", err)
		sendJSONError(w, "Failed to add to collection", http.StatusInternalServerError)
		return
	}
	defer tx.Rollback()

	existing, err := models.FindLotByKey(tx, userID, lot.Key())
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		ctxLogger.Error("Lot lookup failed", "error", err)
		sendJSONError(w, "Failed to add to collection", http.StatusInternalServerError)
		return
	}

	if existing != nil {
		oldQty := decimal.NewFromInt(int64(existing.Quantity))
		newQty := decimal.NewFromInt(int64(req.Quantity))
		mergedBasis := existing.PurchasePrice.Mul(oldQty).
			Add(req.PurchasePrice.Mul(newQty)).
			Div(oldQty.Add(newQty))
		err = models.SetLotQuantityAndBasis(tx, existing.ID, existing.Quantity+req.Quantity, mergedBasis)
		lot.ID = existing.ID
	} else {
		lot.ID, err = models.InsertLot(tx, lot)
	}
	if err != nil {
		ctxLogger.Error("Failed to write lot", "error", err)
		sendJSONError(w, "Failed to add to collection", http.StatusInternalServerError)
		return
	}

	cost := lot.TotalBasis()
	if err := models.AdjustLifetimeEarnings(tx, userID, cost.Neg()); err != nil {
		ctxLogger.Error("Failed to update ledger for acquisition", "error", err)
		sendJSONError(w, "Failed to add to collection", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit(); err != nil {
		ctxLogger.Error("Failed to commit acquisition", "error", err)
		sendJSONError(w, "Failed to add to collection", http.StatusInternalServerError)
		return
	}

	ctxLogger.Info("Added to collection", "lotID", lot.ID, "productID", req.ProductID, "quantity", req.Quantity)

	h.statsService.LogStatChange(userID, models.StatLifetimeEarnings, cost.Neg())
	h.statsService.LogProfitLoss(userID)
	h.statsService.InvalidateStatsCache(userID)

	sendJSONResponse(w, http.StatusCreated, lot)
}

// HandleGetCollection lists the user's lots joined with catalog details,
// optionally filtered by search text, set name, and product type.
func (h *CollectionHandler) HandleGetCollection(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	search := validation.SanitizeText(r.URL.Query().Get("search"))
	setName := validation.SanitizeText(r.URL.Query().Get("set"))
	productType := validation.SanitizeText(r.URL.Query().Get("type"))

	lots, err := models.GetLotsWithProducts(database.DB, userID, search, setName, productType)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to load collection", "error", err)
		sendJSONError(w, "Failed to load collection", http.StatusInternalServerError)
		return
	}
	if lots == nil {
		lots = []models.LotWithProduct{}
	}
	sendJSONResponse(w, http.StatusOK, map[string]any{
		"items": lots,
		"count": len(lots),
	})
}

// HandleGetCollectionValuation serves the grouped display view: graded copies
// grouped by company+grade, sealed by product, raw by product+condition, each
// group valued at its variant's latest quote.
func (h *CollectionHandler) HandleGetCollectionValuation(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}
	ctxLogger := logger.FromContext(r.Context())

	lots, err := models.GetLotsWithProducts(database.DB, userID, "", "", "")
	if err != nil {
		ctxLogger.Error("Failed to load lots for valuation", "error", err)
		sendJSONError(w, "Failed to load collection", http.StatusInternalServerError)
		return
	}

	quotes, err := models.GetLatestQuotesForUser(database.DB, userID)
	if err != nil {
		ctxLogger.Error("Failed to load quotes for valuation", "error", err)
		sendJSONError(w, "Failed to load collection", http.StatusInternalServerError)
		return
	}

	groups := processors.GroupLotsForDisplay(lots, quotes)
	if groups == nil {
		groups = []processors.ValuationGroup{}
	}
	sendJSONResponse(w, http.StatusOK, map[string]any{"groups": groups})
}

func (h *CollectionHandler) HandleUpdateCollectionItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}
	ctxLogger := logger.FromContext(r.Context())

	lotID, err := strconv.ParseInt(chi.URLParam(r, "lotID"), 10, 64)
	if err != nil {
		sendJSONError(w, "Invalid lot id", http.StatusBadRequest)
		return
	}

	lot, err := models.GetLotByID(database.DB, lotID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			sendJSONError(w, "Lot not found", http.StatusNotFound)
			return
		}
		ctxLogger.Error("Lot lookup failed", "lotID", lotID, "error", err)
		sendJSONError(w, "Failed to update item", http.StatusInternalServerError)
		return
	}

	var req struct {
		Quantity      *int                 `json:"quantity"`
		PurchasePrice *decimal.Decimal     `json:"purchase_price"`
		Notes         *string              `json:"notes"`
		IsForSale     *bool                `json:"is_for_sale"`
		AskingPrice   *decimal.NullDecimal `json:"asking_price"`
		Condition     *string              `json:"condition"`
		GradingStatus *string              `json:"grading_status"`
		GradingCost   *decimal.NullDecimal `json:"grading_cost"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Quantity != nil {
		if *req.Quantity < 1 {
			sendJSONError(w, "quantity must be at least 1; remove the item instead", http.StatusBadRequest)
			return
		}
		lot.Quantity = *req.Quantity
	}
	if req.PurchasePrice != nil {
		if req.PurchasePrice.IsNegative() {
			sendJSONError(w, "purchase_price cannot be negative", http.StatusBadRequest)
			return
		}
		lot.PurchasePrice = *req.PurchasePrice
	}
	if req.Notes != nil {
		lot.Notes = validation.SanitizeText(strings.TrimSpace(*req.Notes))
	}
	if req.IsForSale != nil {
		lot.IsForSale = *req.IsForSale
	}
	if req.AskingPrice != nil {
		lot.AskingPrice = *req.AskingPrice
	}
	if req.Condition != nil {
		lot.Condition = validation.SanitizeText(strings.TrimSpace(*req.Condition))
	}
	if req.GradingStatus != nil {
		status := models.GradingStatus(*req.GradingStatus)
		if !status.Valid() {
			sendJSONError(w, "grading_status must be one of raw, grading, graded", http.StatusBadRequest)
			return
		}
		lot.GradingStatus = status
	}
	if req.GradingCost != nil {
		lot.GradingCost = *req.GradingCost
	}

	if err := models.UpdateLot(database.DB, lot); err != nil {
		ctxLogger.Error("Failed to update lot", "lotID", lotID, "error", err)
		sendJSONError(w, "Failed to update item", http.StatusInternalServerError)
		return
	}

	h.statsService.InvalidateStatsCache(userID)
	sendJSONResponse(w, http.StatusOK, lot)
}

// HandleRemoveFromCollection removes units of a lot. With a sold_price the
// removal is a sale and the ledger gains the proceeds; without one the units
// leave at cost and the ledger gains the basis back.
func (h *CollectionHandler) HandleRemoveFromCollection(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}
	ctxLogger := logger.FromContext(r.Context())

	lotID, err := strconv.ParseInt(chi.URLParam(r, "lotID"), 10, 64)
	if err != nil {
		sendJSONError(w, "Invalid lot id", http.StatusBadRequest)
		return
	}

	var req struct {
		Quantity  int                 `json:"quantity"`
		SoldPrice decimal.NullDecimal `json:"sold_price"`
	}
	if r.Body != nil && r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			sendJSONError(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	tx, err := database.DB.Begin()
	if err != nil {
		ctxLogger.Error("Failed to begin removal transaction", "error", err)
		sendJSONError(w, "Failed to remove item", http.StatusInternalServerError)
		return
	}
	defer tx.Rollback()

	lot, err := models.GetLotByID(tx, lotID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			sendJSONError(w, "Lot not found", http.StatusNotFound)
			return
		}
		ctxLogger.Error("Lot lookup failed", "lotID", lotID, "error", err)
		sendJSONError(w, "Failed to remove item", http.StatusInternalServerError)
		return
	}

	qty := req.Quantity
	if qty <= 0 {
		qty = lot.Quantity
	}
	if qty > lot.Quantity {
		sendJSONError(w, "Cannot remove more units than held", http.StatusBadRequest)
		return
	}

	qtyDec := decimal.NewFromInt(int64(qty))
	var ledgerDelta decimal.Decimal
	if req.SoldPrice.Valid {
		if req.SoldPrice.Decimal.IsNegative() {
			sendJSONError(w, "sold_price cannot be negative", http.StatusBadRequest)
			return
		}
		ledgerDelta = req.SoldPrice.Decimal.Mul(qtyDec)
	} else {
		ledgerDelta = lot.PurchasePrice.Mul(qtyDec)
	}

	if qty == lot.Quantity {
		err = models.DeleteLot(tx, lotID, userID)
	} else {
		err = models.SetLotQuantityAndBasis(tx, lotID, lot.Quantity-qty, lot.PurchasePrice)
	}
	if err != nil {
		ctxLogger.Error("Failed to remove units", "lotID", lotID, "error", err)
		sendJSONError(w, "Failed to remove item", http.StatusInternalServerError)
		return
	}

	if err := models.AdjustLifetimeEarnings(tx, userID, ledgerDelta); err != nil {
		ctxLogger.Error("Failed to update ledger for removal", "error", err)
		sendJSONError(w, "Failed to remove item", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit(); err != nil {
		ctxLogger.Error("Failed to commit removal", "error", err)
		sendJSONError(w, "Failed to remove item", http.StatusInternalServerError)
		return
	}

	ctxLogger.Info("Removed from collection", "lotID", lotID, "quantity", qty, "sold", req.SoldPrice.Valid)

	h.statsService.LogStatChange(userID, models.StatLifetimeEarnings, ledgerDelta)
	h.statsService.LogProfitLoss(userID)
	h.statsService.InvalidateStatsCache(userID)

	sendJSONResponse(w, http.StatusOK, map[string]any{
		"removed_quantity": qty,
		"ledger_delta":     ledgerDelta,
	})
}

func (h *CollectionHandler) HandleGetCollectionStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	stats, err := h.statsService.GetCollectionStats(userID)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to compute collection stats", "error", err)
		sendJSONError(w, "Failed to compute stats", http.StatusInternalServerError)
		return
	}
	sendJSONResponse(w, http.StatusOK, stats)
}

func (h *CollectionHandler) HandleGetStatHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	// An absent metric means all metrics in one ascending series.
	metric := r.URL.Query().Get("metric")
	days := 30
	if d, err := strconv.Atoi(r.URL.Query().Get("days")); err == nil && d > 0 {
		days = d
	}

	to := time.Now()
	from := to.AddDate(0, 0, -days)
	points, err := h.statsService.GetStatHistory(userID, metric, from, to)
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			sendJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		logger.FromContext(r.Context()).Error("Failed to load stat history", "metric", metric, "error", err)
		sendJSONError(w, "Failed to load stat history", http.StatusInternalServerError)
		return
	}
	if points == nil {
		points = []models.StatPoint{}
	}
	sendJSONResponse(w, http.StatusOK, map[string]any{"metric": metric, "points": points})
}

func (h *CollectionHandler) HandleGetCollectionSets(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	sets, err := models.GetCollectionSets(database.DB, userID)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to load collection sets", "error", err)
		sendJSONError(w, "Failed to load sets", http.StatusInternalServerError)
		return
	}
	if sets == nil {
		sets = []string{}
	}
	sendJSONResponse(w, http.StatusOK, map[string]any{"sets": sets})
}
