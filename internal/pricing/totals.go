package pricing

import (
	"github.com/shopspring/decimal"

	"quotedesk/internal/domain"
)

type Engine struct{ rates *Table }

func NewEngine(t *Table) *Engine { return &Engine{rates: t} }

func (e *Engine) Rates() *Table { return e.rates }

// ComputeTotals aggregates, applies markup, then converts each amount from
// the base currency on its own. Converted per-category amounts can therefore
// miss the converted subtotal by up to one minor unit per category.
func (e *Engine) ComputeTotals(q domain.Quote, display string) (domain.QuoteTotals, error) {
	if _, err := e.rates.Lookup(q.BaseCurrency); err != nil {
		return domain.QuoteTotals{}, err
	}
	if _, err := e.rates.Lookup(display); err != nil {
		return domain.QuoteTotals{}, err
	}

	agg := Aggregate(q.Components)
	mk, err := ApplyMarkup(agg.Subtotal, q.Markup)
	if err != nil {
		return domain.QuoteTotals{}, err
	}

	conv := func(a decimal.Decimal) (decimal.Decimal, error) {
		return e.rates.Convert(a, q.BaseCurrency, display)
	}

	out := domain.QuoteTotals{
		PerCategory:     make(map[domain.Category]decimal.Decimal, len(agg.PerCategory)),
		BaseCurrency:    q.BaseCurrency,
		DisplayCurrency: display,
	}
	for cat, amt := range agg.PerCategory {
		v, err := conv(amt)
		if err != nil {
			return domain.QuoteTotals{}, err
		}
		out.PerCategory[cat] = v
	}
	if out.Subtotal, err = conv(agg.Subtotal); err != nil {
		return domain.QuoteTotals{}, err
	}
	if out.MarkupAmount, err = conv(mk.MarkupAmount); err != nil {
		return domain.QuoteTotals{}, err
	}
	if out.GrandTotal, err = conv(mk.GrandTotal); err != nil {
		return domain.QuoteTotals{}, err
	}
	return out, nil
}
