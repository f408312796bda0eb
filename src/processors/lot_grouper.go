package processors

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/username/collectr/backend/src/models"
)

// ValuationGroup collapses raw lot rows into one display row. Quantity and
// investment aggregate over the constituents; CurrentValue is only set when a
// market quote exists for the group's variant key (absence is not zero).
type ValuationGroup struct {
	ProductID       int64                   `json:"product_id"`
	ProductName     string                  `json:"name"`
	ProductType     string                  `json:"product_type"`
	SetName         string                  `json:"set_name"`
	ImageURL        string                  `json:"image_url"`
	GradingCompany  string                  `json:"grading_company,omitempty"`
	Grade           string                  `json:"grade,omitempty"`
	Condition       string                  `json:"condition,omitempty"`
	Sealed          bool                    `json:"sealed"`
	Quantity        int                     `json:"quantity"`
	TotalInvestment decimal.Decimal         `json:"total_investment"`
	MeanInvestment  decimal.Decimal         `json:"mean_investment"`
	CurrentValue    decimal.NullDecimal     `json:"current_value,omitempty"`
	Lots            []models.LotWithProduct `json:"items"`
}

type groupKey struct {
	kind      string
	productID int64
	company   string
	grade     string
	condition string
}

// GroupLotsForDisplay collapses a user's lots into valuation groups.
// Key priority: graded lots (company and grade both present) group by
// (product, company, grade); sealed products group by product alone; raw
// cards group by (product, normalized condition).
func GroupLotsForDisplay(lots []models.LotWithProduct, quotes map[models.QuoteKey]decimal.Decimal) []ValuationGroup {
	groups := make(map[groupKey]*ValuationGroup)
	var order []groupKey

	for _, lot := range lots {
		var key groupKey
		switch {
		case lot.GradingCompany != "" && lot.Grade != "":
			key = groupKey{kind: "graded", productID: lot.ProductID, company: lot.GradingCompany, grade: lot.Grade}
		case lot.Sealed || lot.ProductType == "sealed_product":
			key = groupKey{kind: "sealed", productID: lot.ProductID}
		default:
			key = groupKey{kind: "raw", productID: lot.ProductID, condition: normalizeCondition(lot.Condition)}
		}

		g, ok := groups[key]
		if !ok {
			g = &ValuationGroup{
				ProductID:      lot.ProductID,
				ProductName:    lot.ProductName,
				ProductType:    lot.ProductType,
				SetName:        lot.SetName,
				ImageURL:       lot.ImageURL,
				GradingCompany: lot.GradingCompany,
				Grade:          lot.Grade,
				Condition:      lot.Condition,
				Sealed:         lot.Sealed,
			}
			groups[key] = g
			order = append(order, key)
		}

		g.Quantity += lot.Quantity
		g.TotalInvestment = g.TotalInvestment.Add(lot.PurchasePrice.Mul(decimal.NewFromInt(int64(lot.Quantity))))
		g.Lots = append(g.Lots, lot)
	}

	result := make([]ValuationGroup, 0, len(order))
	for _, key := range order {
		g := groups[key]
		if g.Quantity > 0 {
			g.MeanInvestment = g.TotalInvestment.Div(decimal.NewFromInt(int64(g.Quantity)))
		}
		quoteKey := models.QuoteKey{ProductID: g.ProductID}
		switch key.kind {
		case "graded":
			quoteKey.GradingCompany = g.GradingCompany
			quoteKey.Grade = g.Grade
		case "raw":
			quoteKey.Condition = g.Condition
		}
		if quote, ok := quotes[quoteKey]; ok {
			g.CurrentValue = decimal.NullDecimal{
				Decimal: quote.Mul(decimal.NewFromInt(int64(g.Quantity))),
				Valid:   true,
			}
		}
		result = append(result, *g)
	}
	return result
}

func normalizeCondition(c string) string {
	return strings.ToLower(strings.TrimSpace(c))
}
