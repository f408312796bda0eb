package models

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

// GradingStatus is the explicit lifecycle tag of a lot. It is chosen by the
// caller at the API boundary instead of being inferred from which optional
// fields happen to be set.
type GradingStatus string

const (
	GradingStatusRaw     GradingStatus = "raw"
	GradingStatusGrading GradingStatus = "grading"
	GradingStatusGraded  GradingStatus = "graded"
)

func (s GradingStatus) Valid() bool {
	switch s {
	case GradingStatusRaw, GradingStatusGrading, GradingStatusGraded:
		return true
	}
	return false
}

// Lot is a user's holding of one product under one grading/condition identity.
// PurchasePrice is the mean cost basis per unit. At most one lot exists per
// identity key per user; acquisitions of the same key merge into it.
type Lot struct {
	ID             int64               `json:"id"`
	UserID         int64               `json:"user_id"`
	ProductID      int64               `json:"product_id"`
	Quantity       int                 `json:"quantity"`
	PurchasePrice  decimal.Decimal     `json:"purchase_price"`
	PurchaseDate   string              `json:"purchase_date,omitempty"`
	Notes          string              `json:"notes,omitempty"`
	IsForSale      bool                `json:"is_for_sale"`
	AskingPrice    decimal.NullDecimal `json:"asking_price,omitempty"`
	GradingCompany string              `json:"grading_company,omitempty"`
	Grade          string              `json:"grade,omitempty"`
	Condition      string              `json:"condition,omitempty"`
	GradingStatus  GradingStatus       `json:"grading_status"`
	RawCardCost    decimal.NullDecimal `json:"raw_card_cost,omitempty"`
	GradingCost    decimal.NullDecimal `json:"grading_cost,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// LotKey is the identity under which acquisitions merge into one lot.
type LotKey struct {
	ProductID      int64
	GradingCompany string
	Grade          string
	Condition      string
	GradingStatus  GradingStatus
}

func (l *Lot) Key() LotKey {
	return LotKey{
		ProductID:      l.ProductID,
		GradingCompany: l.GradingCompany,
		Grade:          l.Grade,
		Condition:      l.Condition,
		GradingStatus:  l.GradingStatus,
	}
}

// TotalBasis is the lot's cost basis across all units, including the grading
// fee for lots that are mid-grading.
func (l *Lot) TotalBasis() decimal.Decimal {
	perUnit := l.PurchasePrice
	if l.GradingCost.Valid {
		perUnit = perUnit.Add(l.GradingCost.Decimal)
	}
	return perUnit.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// LotWithProduct joins a lot with its catalog entry for display.
type LotWithProduct struct {
	Lot
	ProductName string `json:"name"`
	ProductType string `json:"product_type"`
	SetName     string `json:"set_name"`
	CardNumber  string `json:"card_number"`
	ImageURL    string `json:"image_url"`
	Sealed      bool   `json:"sealed"`
}

const lotColumns = `l.id, l.user_id, l.product_id, l.quantity, l.purchase_price, l.purchase_date, l.notes,
	l.is_for_sale, l.asking_price, l.grading_company, l.grade, l.condition, l.grading_status,
	l.raw_card_cost, l.grading_cost, l.created_at, l.updated_at`

func scanLot(scan func(dest ...any) error) (*Lot, error) {
	var l Lot
	var price string
	var asking, rawCost, gradingCost sql.NullString
	err := scan(&l.ID, &l.UserID, &l.ProductID, &l.Quantity, &price, &l.PurchaseDate, &l.Notes,
		&l.IsForSale, &asking, &l.GradingCompany, &l.Grade, &l.Condition, &l.GradingStatus,
		&rawCost, &gradingCost, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if l.PurchasePrice, err = decimal.NewFromString(price); err != nil {
		return nil, err
	}
	if l.AskingPrice, err = nullDecimal(asking); err != nil {
		return nil, err
	}
	if l.RawCardCost, err = nullDecimal(rawCost); err != nil {
		return nil, err
	}
	if l.GradingCost, err = nullDecimal(gradingCost); err != nil {
		return nil, err
	}
	return &l, nil
}

func nullDecimal(s sql.NullString) (decimal.NullDecimal, error) {
	if !s.Valid || s.String == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}, nil
}

func nullString(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}

func GetLotByID(db DBTX, id, userID int64) (*Lot, error) {
	row := db.QueryRow(`SELECT `+lotColumns+` FROM lots l WHERE l.id = ? AND l.user_id = ?`, id, userID)
	return scanLot(row.Scan)
}

// FindLotByKey locates the single lot matching an identity key, if any.
func FindLotByKey(db DBTX, userID int64, key LotKey) (*Lot, error) {
	row := db.QueryRow(`SELECT `+lotColumns+` FROM lots l
		WHERE l.user_id = ? AND l.product_id = ? AND l.grading_company = ? AND l.grade = ?
		  AND l.condition = ? AND l.grading_status = ?`,
		userID, key.ProductID, key.GradingCompany, key.Grade, key.Condition, key.GradingStatus)
	return scanLot(row.Scan)
}

func GetLotsByUser(db DBTX, userID int64) ([]Lot, error) {
	rows, err := db.Query(`SELECT `+lotColumns+` FROM lots l WHERE l.user_id = ? ORDER BY l.created_at DESC, l.id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lots []Lot
	for rows.Next() {
		l, err := scanLot(rows.Scan)
		if err != nil {
			return nil, err
		}
		lots = append(lots, *l)
	}
	return lots, rows.Err()
}

// GetLotsWithProducts returns a user's lots joined with catalog details,
// optionally filtered by name/set search, set name, and product type.
func GetLotsWithProducts(db DBTX, userID int64, search, setName, productType string) ([]LotWithProduct, error) {
	query := `SELECT ` + lotColumns + `, p.name, p.product_type, p.set_name, p.card_number, p.image_url, p.sealed
		FROM lots l
		JOIN products p ON l.product_id = p.id
		WHERE l.user_id = ?`
	args := []any{userID}

	if search != "" {
		query += ` AND (p.name LIKE ? OR p.set_name LIKE ?)`
		args = append(args, "%"+search+"%", "%"+search+"%")
	}
	if setName != "" {
		query += ` AND p.set_name = ?`
		args = append(args, setName)
	}
	if productType != "" {
		query += ` AND p.product_type = ?`
		args = append(args, productType)
	}
	query += ` ORDER BY l.created_at DESC, l.id DESC`

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []LotWithProduct
	for rows.Next() {
		var lp LotWithProduct
		var price string
		var asking, rawCost, gradingCost sql.NullString
		err := rows.Scan(&lp.ID, &lp.UserID, &lp.ProductID, &lp.Quantity, &price, &lp.PurchaseDate, &lp.Notes,
			&lp.IsForSale, &asking, &lp.GradingCompany, &lp.Grade, &lp.Condition, &lp.GradingStatus,
			&rawCost, &gradingCost, &lp.CreatedAt, &lp.UpdatedAt,
			&lp.ProductName, &lp.ProductType, &lp.SetName, &lp.CardNumber, &lp.ImageURL, &lp.Sealed)
		if err != nil {
			return nil, err
		}
		if lp.PurchasePrice, err = decimal.NewFromString(price); err != nil {
			return nil, err
		}
		if lp.AskingPrice, err = nullDecimal(asking); err != nil {
			return nil, err
		}
		if lp.RawCardCost, err = nullDecimal(rawCost); err != nil {
			return nil, err
		}
		if lp.GradingCost, err = nullDecimal(gradingCost); err != nil {
			return nil, err
		}
		result = append(result, lp)
	}
	return result, rows.Err()
}

func InsertLot(db DBTX, l *Lot) (int64, error) {
	res, err := db.Exec(`INSERT INTO lots
		(user_id, product_id, quantity, purchase_price, purchase_date, notes, is_for_sale, asking_price,
		 grading_company, grade, condition, grading_status, raw_card_cost, grading_cost)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.UserID, l.ProductID, l.Quantity, l.PurchasePrice.String(), l.PurchaseDate, l.Notes,
		l.IsForSale, nullString(l.AskingPrice), l.GradingCompany, l.Grade, l.Condition,
		l.GradingStatus, nullString(l.RawCardCost), nullString(l.GradingCost))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// SetLotQuantityAndBasis rewrites a lot's quantity and mean cost basis after a
// merge or settlement.
func SetLotQuantityAndBasis(db DBTX, lotID int64, quantity int, basis decimal.Decimal) error {
	_, err := db.Exec(
		`UPDATE lots SET quantity = ?, purchase_price = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		quantity, basis.String(), lotID)
	return err
}

func UpdateLot(db DBTX, l *Lot) error {
	_, err := db.Exec(`UPDATE lots SET
		quantity = ?, purchase_price = ?, purchase_date = ?, notes = ?, is_for_sale = ?, asking_price = ?,
		grading_company = ?, grade = ?, condition = ?, grading_status = ?, raw_card_cost = ?, grading_cost = ?,
		updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND user_id = ?`,
		l.Quantity, l.PurchasePrice.String(), l.PurchaseDate, l.Notes, l.IsForSale, nullString(l.AskingPrice),
		l.GradingCompany, l.Grade, l.Condition, l.GradingStatus, nullString(l.RawCardCost), nullString(l.GradingCost),
		l.ID, l.UserID)
	return err
}

func DeleteLot(db DBTX, id, userID int64) error {
	_, err := db.Exec(`DELETE FROM lots WHERE id = ? AND user_id = ?`, id, userID)
	return err
}

// GetCollectionSets lists the distinct set names present in a user's lots.
func GetCollectionSets(db DBTX, userID int64) ([]string, error) {
	rows, err := db.Query(`SELECT DISTINCT p.set_name
		FROM lots l JOIN products p ON l.product_id = p.id
		WHERE l.user_id = ? AND p.set_name != ''
		ORDER BY p.set_name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sets []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		sets = append(sets, s)
	}
	return sets, rows.Err()
}
