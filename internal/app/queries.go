package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"quotedesk/internal/adapters/observability"
	"quotedesk/internal/domain"
	"quotedesk/internal/pricing"
)

type TotalsService struct {
	quotes   domain.QuoteRepository
	engine   *pricing.Engine
	cache    domain.Cache // optional
	cacheTTL time.Duration
}

func NewTotalsService(q domain.QuoteRepository, e *pricing.Engine, c domain.Cache, ttl time.Duration) *TotalsService {
	return &TotalsService{quotes: q, engine: e, cache: c, cacheTTL: ttl}
}

// totalsKey covers every input of a snapshot: the quote revision and the
// rate set it was converted with.
func totalsKey(quoteID string, rev int64, rates, display string) string {
	return fmt.Sprintf("totals:%s:%d:%s:%s", quoteID, rev, rates, display)
}

// Totals returns the quote's totals in display. Cached snapshots are keyed
// by quote revision and rates version, so an entry can only ever describe
// the current inputs.
func (s *TotalsService) Totals(ctx context.Context, quoteID, display string) (domain.QuoteTotals, error) {
	if _, err := s.engine.Rates().Lookup(display); err != nil {
		observability.ObserveTotals(err)
		return domain.QuoteTotals{}, err
	}
	if s.cache != nil {
		rev, err := s.quotes.QuoteRevision(ctx, quoteID)
		if err != nil {
			observability.ObserveTotals(err)
			return domain.QuoteTotals{}, err
		}
		var qt domain.QuoteTotals
		if ok, _ := s.cache.Get(ctx, totalsKey(quoteID, rev, s.engine.Rates().Version(), display), &qt); ok {
			return qt, nil
		}
	}

	q, err := s.quotes.GetQuote(ctx, quoteID)
	if err != nil {
		observability.ObserveTotals(err)
		return domain.QuoteTotals{}, err
	}
	qt, err := s.engine.ComputeTotals(q, display)
	observability.ObserveTotals(err)
	if err != nil {
		log.Warn().Err(err).Str("quote_id", quoteID).Str("display", display).Msg("totals computation failed")
		return domain.QuoteTotals{}, err
	}
	if s.cache != nil {
		// key by the revision actually read, not the one probed above
		_ = s.cache.Set(ctx, totalsKey(quoteID, q.Revision, s.engine.Rates().Version(), display), qt, int(s.cacheTTL.Seconds()))
	}
	return qt, nil
}

type PricedOption struct {
	domain.QuoteHotelOption
	DisplayCurrency       string          `json:"display_currency"`
	DisplayPrice          decimal.Decimal `json:"display_price"`
	DisplayPriceFormatted string          `json:"display_price_formatted"`
}

// ListPriced lists options in creation order with prices in display.
func (s *OptionService) ListPriced(ctx context.Context, quoteID, display string) ([]PricedOption, error) {
	if _, err := s.rates.Lookup(display); err != nil {
		return nil, err
	}
	opts, err := s.options.ListOptions(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	out := make([]PricedOption, 0, len(opts))
	for _, o := range opts {
		p, err := s.rates.Convert(o.TotalPrice, o.CurrencyCode, display)
		if err != nil {
			return nil, fmt.Errorf("option %s: %w", o.ID, err)
		}
		out = append(out, PricedOption{
			QuoteHotelOption:      o,
			DisplayCurrency:       display,
			DisplayPrice:          p,
			DisplayPriceFormatted: s.rates.Format(p, display),
		})
	}
	return out, nil
}
