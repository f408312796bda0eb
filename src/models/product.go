package models

import "time"

// Product is a catalog entity. This service only reads products; catalog
// editing belongs to the catalog collaborator.
type Product struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	ProductType string    `json:"product_type"`
	SetName     string    `json:"set_name"`
	SetCode     string    `json:"set_code"`
	CardNumber  string    `json:"card_number"`
	Rarity      string    `json:"rarity"`
	ImageURL    string    `json:"image_url"`
	Description string    `json:"description"`
	Sealed      bool      `json:"sealed"`
	CreatedAt   time.Time `json:"created_at"`
}

const productColumns = `id, name, product_type, set_name, set_code, card_number, rarity, image_url, description, sealed, created_at`

func GetProductByID(db DBTX, id int64) (*Product, error) {
	row := db.QueryRow(`SELECT `+productColumns+` FROM products WHERE id = ?`, id)
	var p Product
	if err := row.Scan(&p.ID, &p.Name, &p.ProductType, &p.SetName, &p.SetCode, &p.CardNumber,
		&p.Rarity, &p.ImageURL, &p.Description, &p.Sealed, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// SearchProducts returns catalog entries matching the name or set filter.
func SearchProducts(db DBTX, search string, limit int) ([]Product, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(
		`SELECT `+productColumns+` FROM products
		 WHERE name LIKE ? OR set_name LIKE ?
		 ORDER BY name LIMIT ?`,
		"%"+search+"%", "%"+search+"%", limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.ProductType, &p.SetName, &p.SetCode, &p.CardNumber,
			&p.Rarity, &p.ImageURL, &p.Description, &p.Sealed, &p.CreatedAt); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}
