package rates

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"quotedesk/internal/pricing"
)

const fetchTimeout = 15 * time.Second

// LoadTable returns the built-in table refreshed from the feed at base.
// An empty base, an unreachable feed or a rejected payload all keep the
// built-in rates. Every binary that prices quotes loads rates through here
// so they agree on the rate set.
func LoadTable(ctx context.Context, base, key string, rps int) *pricing.Table {
	table := pricing.MustTable(pricing.DefaultCurrencies())
	if base == "" {
		return table
	}
	cl, err := New(base, key, rps)
	if err != nil {
		log.Warn().Err(err).Msg("rates client disabled")
		return table
	}
	fctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()
	fetched, err := cl.FetchUSDRates(fctx)
	if err != nil {
		log.Warn().Err(err).Msg("rates feed unavailable; using built-in rates")
		return table
	}
	next, ignored, err := table.WithRates(fetched)
	if err != nil {
		log.Warn().Err(err).Msg("rates feed rejected; using built-in rates")
		return table
	}
	log.Info().Int("ignored", len(ignored)).Str("version", next.Version()).Msg("exchange rates refreshed")
	return next
}
