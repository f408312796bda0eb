package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Stat metric names recorded in user_stat_history.
const (
	StatLifetimeEarnings = "lifetime_earnings"
	StatProfitLossPct    = "profit_loss_pct"
	StatProfitLossValue  = "lifetime_profit_loss_value"
)

// StatPoint is one appended (metric, value, timestamp) observation.
type StatPoint struct {
	ID        int64           `json:"-"`
	UserID    int64           `json:"-"`
	StatType  string          `json:"stat_type"`
	Value     decimal.Decimal `json:"value"`
	CreatedAt time.Time       `json:"date"`
}

func InsertStatPoint(db DBTX, userID int64, statType string, value decimal.Decimal) error {
	_, err := db.Exec(`INSERT INTO user_stat_history (user_id, stat_type, value) VALUES (?, ?, ?)`,
		userID, statType, value.String())
	return err
}

// GetStatHistory returns a user's stat points ordered by timestamp ascending.
// metric filters to one stat type when non-empty; from/to bound the range when
// non-zero.
func GetStatHistory(db DBTX, userID int64, metric string, from, to time.Time) ([]StatPoint, error) {
	query := `SELECT id, user_id, stat_type, value, created_at FROM user_stat_history WHERE user_id = ?`
	args := []any{userID}
	if metric != "" {
		query += ` AND stat_type = ?`
		args = append(args, metric)
	}
	if !from.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, from.UTC())
	}
	if !to.IsZero() {
		query += ` AND created_at <= ?`
		args = append(args, to.UTC())
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []StatPoint
	for rows.Next() {
		var p StatPoint
		var value string
		if err := rows.Scan(&p.ID, &p.UserID, &p.StatType, &value, &p.CreatedAt); err != nil {
			return nil, err
		}
		if p.Value, err = decimal.NewFromString(value); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}
