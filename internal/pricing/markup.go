package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"quotedesk/internal/domain"
)

var hundred = decimal.NewFromInt(100)

type MarkupResult struct {
	MarkupAmount decimal.Decimal
	GrandTotal   decimal.Decimal
}

// ApplyMarkup is a pure transform; negative inputs pass straight through.
func ApplyMarkup(subtotal decimal.Decimal, p domain.MarkupPolicy) (MarkupResult, error) {
	var m decimal.Decimal
	switch p.Type {
	case domain.MarkupPercentage:
		m = subtotal.Mul(p.Value).Div(hundred)
	case domain.MarkupFixed:
		m = p.Value
	default:
		return MarkupResult{}, fmt.Errorf("%w: type %q", domain.ErrInvalidMarkup, p.Type)
	}
	return MarkupResult{MarkupAmount: m, GrandTotal: subtotal.Add(m)}, nil
}
