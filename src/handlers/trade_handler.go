package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/username/collectr/backend/src/database"
	"github.com/username/collectr/backend/src/logger"
	"github.com/username/collectr/backend/src/models"
	"github.com/username/collectr/backend/src/services"
)

type TradeHandler struct {
	settlementService services.SettlementService
}

func NewTradeHandler(settlementService services.SettlementService) *TradeHandler {
	return &TradeHandler{settlementService: settlementService}
}

// HandleSettleTrade executes a trade atomically. Received items must carry an
// explicit grading status; when omitted it is derived from the grading fields
// here, at the boundary, never deeper in.
func (h *TradeHandler) HandleSettleTrade(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}
	ctxLogger := logger.FromContext(r.Context())

	var req services.SettlementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	for i := range req.Received {
		if req.Received[i].GradingStatus == "" {
			if req.Received[i].GradingCompany != "" && req.Received[i].Grade != "" {
				req.Received[i].GradingStatus = models.GradingStatusGraded
			} else {
				req.Received[i].GradingStatus = models.GradingStatusRaw
			}
		}
	}

	result, err := h.settlementService.Settle(r.Context(), userID, req)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrValidation):
			sendJSONError(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, services.ErrNotFound):
			sendJSONError(w, err.Error(), http.StatusNotFound)
		default:
			ctxLogger.Error("Trade settlement failed", "error", err)
			sendJSONError(w, "Failed to settle trade", http.StatusInternalServerError)
		}
		return
	}

	sendJSONResponse(w, http.StatusCreated, result)
}

func (h *TradeHandler) HandleGetTrades(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	trades, err := models.GetTradesByUser(database.DB, userID)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to load trades", "error", err)
		sendJSONError(w, "Failed to load trades", http.StatusInternalServerError)
		return
	}
	if trades == nil {
		trades = []models.Trade{}
	}
	sendJSONResponse(w, http.StatusOK, map[string]any{"trades": trades})
}
