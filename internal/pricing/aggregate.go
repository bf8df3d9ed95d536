package pricing

import (
	"github.com/shopspring/decimal"

	"quotedesk/internal/domain"
)

type Aggregation struct {
	PerCategory map[domain.Category]decimal.Decimal
	Subtotal    decimal.Decimal
}

// Aggregate sums line items per category in the quote's base currency.
// Absent categories contribute zero; every category key is always present.
func Aggregate(c domain.Components) Aggregation {
	per := make(map[domain.Category]decimal.Decimal, len(domain.Categories))
	for _, cat := range domain.Categories {
		per[cat] = decimal.Zero
	}
	for _, item := range c.All() {
		per[item.Category()] = per[item.Category()].Add(item.TotalCost())
	}
	sub := decimal.Zero
	for _, cat := range domain.Categories {
		sub = sub.Add(per[cat])
	}
	return Aggregation{PerCategory: per, Subtotal: sub}
}
