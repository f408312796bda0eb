package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/username/collectr/backend/src/database"
	"github.com/username/collectr/backend/src/logger"
	"github.com/username/collectr/backend/src/models"
	"github.com/username/collectr/backend/src/security/validation"
	"github.com/username/collectr/backend/src/services"
)

type PriceHandler struct {
	quoteService services.QuoteService
}

func NewPriceHandler(quoteService services.QuoteService) *PriceHandler {
	return &PriceHandler{quoteService: quoteService}
}

// HandleGetProductPrice serves the current quote for a product, hitting the
// market provider only when the persisted quote is missing or stale.
func (h *PriceHandler) HandleGetProductPrice(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil {
		sendJSONError(w, "Invalid product id", http.StatusBadRequest)
		return
	}

	result, err := h.quoteService.GetProductPrice(r.Context(), productID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			sendJSONError(w, "Product not found", http.StatusNotFound)
			return
		}
		logger.FromContext(r.Context()).Error("Failed to get product price", "productID", productID, "error", err)
		sendJSONError(w, "Failed to get product price", http.StatusInternalServerError)
		return
	}
	sendJSONResponse(w, http.StatusOK, result)
}

func (h *PriceHandler) HandleGetPriceHistory(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil {
		sendJSONError(w, "Invalid product id", http.StatusBadRequest)
		return
	}

	days := 30
	if d, err := strconv.Atoi(r.URL.Query().Get("days")); err == nil && d > 0 {
		days = d
	}

	history, err := models.GetQuoteHistory(database.DB, productID, days)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to load price history", "productID", productID, "error", err)
		sendJSONError(w, "Failed to load price history", http.StatusInternalServerError)
		return
	}
	if history == nil {
		history = []models.PriceQuote{}
	}
	sendJSONResponse(w, http.StatusOK, map[string]any{"product_id": productID, "history": history})
}

// HandleSavePrice appends a manual price observation for a variant.
func (h *PriceHandler) HandleSavePrice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID      int64           `json:"product_id"`
		Price          decimal.Decimal `json:"price"`
		Currency       string          `json:"currency"`
		Source         string          `json:"source"`
		GradingCompany string          `json:"grading_company"`
		Grade          string          `json:"grade"`
		Condition      string          `json:"condition"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Currency == "" {
		req.Currency = "USD"
	}
	quote := &models.PriceQuote{
		ProductID:      req.ProductID,
		Source:         validation.SanitizeText(strings.TrimSpace(req.Source)),
		Price:          req.Price,
		Currency:       strings.ToUpper(strings.TrimSpace(req.Currency)),
		SampleCount:    1,
		GradingCompany: strings.ToUpper(strings.TrimSpace(req.GradingCompany)),
		Grade:          strings.TrimSpace(req.Grade),
		Condition:      validation.SanitizeText(strings.TrimSpace(req.Condition)),
	}

	if err := h.quoteService.SaveManualPrice(r.Context(), quote); err != nil {
		switch {
		case errors.Is(err, services.ErrValidation):
			sendJSONError(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, services.ErrNotFound):
			sendJSONError(w, err.Error(), http.StatusNotFound)
		default:
			logger.FromContext(r.Context()).Error("Failed to save manual price", "error", err)
			sendJSONError(w, "Failed to save price", http.StatusInternalServerError)
		}
		return
	}
	sendJSONResponse(w, http.StatusCreated, map[string]string{"message": "Price saved"})
}

func (h *PriceHandler) HandleGetRecentPrices(w http.ResponseWriter, r *http.Request) {
	days := 7
	if d, err := strconv.Atoi(r.URL.Query().Get("days")); err == nil && d > 0 {
		days = d
	}
	limit := 20
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 && l <= 100 {
		limit = l
	}

	quotes, err := models.GetRecentQuotes(database.DB, days, limit)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to load recent prices", "error", err)
		sendJSONError(w, "Failed to load recent prices", http.StatusInternalServerError)
		return
	}
	if quotes == nil {
		quotes = []models.PriceQuote{}
	}
	sendJSONResponse(w, http.StatusOK, map[string]any{"prices": quotes})
}

// HandleRefreshCollectionPrices walks every variant in the user's collection
// and refreshes its quote behind the provider rate limiter. Runs inline with
// the request; the route carries a stricter rate limit for that reason.
func (h *PriceHandler) HandleRefreshCollectionPrices(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	updated, err := h.quoteService.RefreshCollectionQuotes(r.Context(), userID)
	if err != nil {
		logger.FromContext(r.Context()).Warn("Collection price refresh ended early", "updated", updated, "error", err)
		sendJSONResponse(w, http.StatusOK, map[string]any{
			"updated":  updated,
			"complete": false,
		})
		return
	}
	sendJSONResponse(w, http.StatusOK, map[string]any{
		"updated":  updated,
		"complete": true,
	})
}

// HandleSearchProducts is the read-side catalog lookup used by the frontend
// to pick a product before adding it to a collection or a trade.
func (h *PriceHandler) HandleSearchProducts(w http.ResponseWriter, r *http.Request) {
	query := validation.SanitizeText(strings.TrimSpace(r.URL.Query().Get("q")))
	if query == "" {
		sendJSONError(w, "Search query is required", http.StatusBadRequest)
		return
	}

	products, err := models.SearchProducts(database.DB, query, 50)
	if err != nil {
		logger.FromContext(r.Context()).Error("Product search failed", "error", err)
		sendJSONError(w, "Search failed", http.StatusInternalServerError)
		return
	}
	if products == nil {
		products = []models.Product{}
	}
	sendJSONResponse(w, http.StatusOK, map[string]any{"products": products})
}
