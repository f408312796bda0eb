package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// TradedAwayRecord captures a surrendered lot as it stood at settlement time.
type TradedAwayRecord struct {
	LotID          int64           `json:"lot_id"`
	ProductID      int64           `json:"product_id"`
	GradingCompany string          `json:"grading_company,omitempty"`
	Grade          string          `json:"grade,omitempty"`
	Condition      string          `json:"condition,omitempty"`
	Quantity       int             `json:"quantity"`
	CostBasis      decimal.Decimal `json:"cost_basis"`
	Quote          decimal.Decimal `json:"quote"`
}

// ReceivedRecord captures a received item with the basis allocated to it.
type ReceivedRecord struct {
	ProductID      int64           `json:"product_id"`
	GradingCompany string          `json:"grading_company,omitempty"`
	Grade          string          `json:"grade,omitempty"`
	Condition      string          `json:"condition,omitempty"`
	GradingStatus  GradingStatus   `json:"grading_status"`
	Quantity       int             `json:"quantity"`
	Quote          decimal.Decimal `json:"quote"`
	AllocatedBasis decimal.Decimal `json:"allocated_basis"`
}

// Trade is the immutable record of a settlement. Created once, never mutated.
type Trade struct {
	ID          int64              `json:"id"`
	Reference   string             `json:"reference"`
	UserID      int64              `json:"user_id"`
	TradedAway  []TradedAwayRecord `json:"traded_away"`
	Received    []ReceivedRecord   `json:"received"`
	CashDelta   decimal.Decimal    `json:"cash_delta"`
	LedgerDelta decimal.Decimal    `json:"ledger_delta"`
	CreatedAt   time.Time          `json:"created_at"`
}

func InsertTrade(db DBTX, t *Trade) (int64, error) {
	awayJSON, err := json.Marshal(t.TradedAway)
	if err != nil {
		return 0, err
	}
	receivedJSON, err := json.Marshal(t.Received)
	if err != nil {
		return 0, err
	}
	res, err := db.Exec(`INSERT INTO trades
		(reference, user_id, traded_away, received, cash_delta, ledger_delta)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.Reference, t.UserID, string(awayJSON), string(receivedJSON),
		t.CashDelta.String(), t.LedgerDelta.String())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetTradesByUser lists a user's settlements, newest first.
func GetTradesByUser(db DBTX, userID int64) ([]Trade, error) {
	rows, err := db.Query(`SELECT id, reference, user_id, traded_away, received, cash_delta, ledger_delta, created_at
		FROM trades WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []Trade
	for rows.Next() {
		var t Trade
		var awayJSON, receivedJSON, cashDelta, ledgerDelta string
		if err := rows.Scan(&t.ID, &t.Reference, &t.UserID, &awayJSON, &receivedJSON, &cashDelta, &ledgerDelta, &t.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(awayJSON), &t.TradedAway); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(receivedJSON), &t.Received); err != nil {
			return nil, err
		}
		if t.CashDelta, err = decimal.NewFromString(cashDelta); err != nil {
			return nil, err
		}
		if t.LedgerDelta, err = decimal.NewFromString(ledgerDelta); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}
