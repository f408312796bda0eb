package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// QuoteKey identifies the market variant a smoothed price applies to. Grading
// fields are empty strings when absent so the key compares exactly.
type QuoteKey struct {
	ProductID      int64  `json:"product_id"`
	GradingCompany string `json:"grading_company"`
	Grade          string `json:"grade"`
	Condition      string `json:"condition"`
}

// PriceQuote is one persisted, timestamped smoothed price for a variant key.
// Rows are append-only; the current quote is the newest row per key.
type PriceQuote struct {
	ID             int64           `json:"id"`
	ProductID      int64           `json:"product_id"`
	Source         string          `json:"source"`
	Price          decimal.Decimal `json:"price"`
	Currency       string          `json:"currency"`
	SampleCount    int             `json:"sample_count"`
	URL            string          `json:"url,omitempty"`
	GradingCompany string          `json:"grading_company,omitempty"`
	Grade          string          `json:"grade,omitempty"`
	Condition      string          `json:"condition,omitempty"`
	DateRecorded   time.Time       `json:"date_recorded"`
}

func (q *PriceQuote) Key() QuoteKey {
	return QuoteKey{ProductID: q.ProductID, GradingCompany: q.GradingCompany, Grade: q.Grade, Condition: q.Condition}
}

const quoteColumns = `id, product_id, source, price, currency, sample_count, url, grading_company, grade, condition, date_recorded`

func scanQuote(scan func(dest ...any) error) (*PriceQuote, error) {
	var q PriceQuote
	var price string
	err := scan(&q.ID, &q.ProductID, &q.Source, &price, &q.Currency, &q.SampleCount, &q.URL,
		&q.GradingCompany, &q.Grade, &q.Condition, &q.DateRecorded)
	if err != nil {
		return nil, err
	}
	if q.Price, err = decimal.NewFromString(price); err != nil {
		return nil, err
	}
	return &q, nil
}

func InsertQuote(db DBTX, q *PriceQuote) error {
	_, err := db.Exec(`INSERT INTO price_history
		(product_id, source, price, currency, sample_count, url, grading_company, grade, condition)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ProductID, q.Source, q.Price.String(), q.Currency, q.SampleCount, q.URL,
		q.GradingCompany, q.Grade, q.Condition)
	return err
}

// GetLatestQuote returns the newest quote for a variant key, or sql.ErrNoRows.
func GetLatestQuote(db DBTX, key QuoteKey) (*PriceQuote, error) {
	row := db.QueryRow(`SELECT `+quoteColumns+` FROM price_history
		WHERE product_id = ? AND grading_company = ? AND grade = ? AND condition = ?
		ORDER BY date_recorded DESC, id DESC LIMIT 1`,
		key.ProductID, key.GradingCompany, key.Grade, key.Condition)
	return scanQuote(row.Scan)
}

// GetLatestQuoteForProduct ignores the grading identity and returns the newest
// quote recorded for the product under any variant.
func GetLatestQuoteForProduct(db DBTX, productID int64) (*PriceQuote, error) {
	row := db.QueryRow(`SELECT `+quoteColumns+` FROM price_history
		WHERE product_id = ? ORDER BY date_recorded DESC, id DESC LIMIT 1`, productID)
	return scanQuote(row.Scan)
}

// GetLatestQuotesForUser resolves the current quote for every variant key held
// in the user's lots, in one query.
func GetLatestQuotesForUser(db DBTX, userID int64) (map[QuoteKey]decimal.Decimal, error) {
	rows, err := db.Query(`SELECT ph.product_id, ph.grading_company, ph.grade, ph.condition, ph.price
		FROM price_history ph
		JOIN (
			SELECT product_id, grading_company, grade, condition, MAX(date_recorded) AS max_date
			FROM price_history GROUP BY product_id, grading_company, grade, condition
		) latest ON ph.product_id = latest.product_id
			AND ph.grading_company = latest.grading_company
			AND ph.grade = latest.grade
			AND ph.condition = latest.condition
			AND ph.date_recorded = latest.max_date
		WHERE ph.product_id IN (SELECT DISTINCT product_id FROM lots WHERE user_id = ?)`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	quotes := make(map[QuoteKey]decimal.Decimal)
	for rows.Next() {
		var key QuoteKey
		var price string
		if err := rows.Scan(&key.ProductID, &key.GradingCompany, &key.Grade, &key.Condition, &price); err != nil {
			return nil, err
		}
		d, err := decimal.NewFromString(price)
		if err != nil {
			return nil, err
		}
		quotes[key] = d
	}
	return quotes, rows.Err()
}

// GetQuoteHistory returns a product's quotes over the trailing day range,
// oldest first.
func GetQuoteHistory(db DBTX, productID int64, days int) ([]PriceQuote, error) {
	if days <= 0 {
		days = 30
	}
	rows, err := db.Query(`SELECT `+quoteColumns+` FROM price_history
		WHERE product_id = ? AND date_recorded >= datetime('now', ?)
		ORDER BY date_recorded ASC, id ASC`,
		productID, fmt.Sprintf("-%d days", days))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectQuotes(rows)
}

// GetRecentQuotes lists the newest persisted quotes across all products.
func GetRecentQuotes(db DBTX, days, limit int) ([]PriceQuote, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(`SELECT `+quoteColumns+` FROM price_history
		WHERE date_recorded >= datetime('now', ?)
		ORDER BY date_recorded DESC, id DESC LIMIT ?`,
		fmt.Sprintf("-%d days", days), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectQuotes(rows)
}

func collectQuotes(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]PriceQuote, error) {
	var quotes []PriceQuote
	for rows.Next() {
		q, err := scanQuote(rows.Scan)
		if err != nil {
			return nil, err
		}
		quotes = append(quotes, *q)
	}
	return quotes, rows.Err()
}
