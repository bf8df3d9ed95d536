package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"quotedesk/internal/app"
	"quotedesk/internal/domain"
	"quotedesk/internal/pricing"
	"quotedesk/internal/storage/memory"
)

// ---- fakes ----

// fakeCache round-trips through JSON like the redis adapter does.
type fakeCache struct {
	store map[string][]byte
	sets  int
}

func (c *fakeCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	b, ok := c.store[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}
func (c *fakeCache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	if c.store == nil {
		c.store = map[string][]byte{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.store[key] = b
	c.sets++
	return nil
}
func (c *fakeCache) Del(ctx context.Context, key string) error { delete(c.store, key); return nil }

// countingQuotes counts full quote loads.
type countingQuotes struct {
	*memory.Repo
	loads int
}

func (c *countingQuotes) GetQuote(ctx context.Context, id string) (domain.Quote, error) {
	c.loads++
	return c.Repo.GetQuote(ctx, id)
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func kesQuote() domain.Quote {
	return domain.Quote{
		ID:           "q1",
		BaseCurrency: "KES",
		Markup:       domain.MarkupPolicy{Type: domain.MarkupFixed, Value: d("7500")},
		Components: domain.Components{
			Rooms:     []domain.RoomArrangement{{RoomType: "double", Nights: 3, Rooms: 2, RatePerNight: d("10000")}},
			Transport: []domain.TransportItem{{Mode: "road", Passengers: 3, UnitCost: d("5000")}},
		},
	}
}

func newTotals(t *testing.T) (*app.TotalsService, *countingQuotes, *fakeCache) {
	t.Helper()
	repo := &countingQuotes{Repo: memory.New()}
	repo.PutQuote(kesQuote())
	cache := &fakeCache{}
	svc := app.NewTotalsService(repo, pricing.NewEngine(pricing.MustTable(pricing.DefaultCurrencies())), cache, 10*time.Minute)
	return svc, repo, cache
}

// ---- tests ----

func TestTotals_CacheMissThenHit(t *testing.T) {
	svc, repo, cache := newTotals(t)
	ctx := context.Background()

	qt, err := svc.Totals(ctx, "q1", "USD")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if !qt.GrandTotal.Equal(d("634.62")) {
		t.Fatalf("grand total: %s", qt.GrandTotal)
	}

	again, err := svc.Totals(ctx, "q1", "USD")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if repo.loads != 1 || cache.sets != 1 {
		t.Fatalf("want one load and one set, got loads=%d sets=%d", repo.loads, cache.sets)
	}
	if !again.GrandTotal.Equal(qt.GrandTotal) || !again.PerCategory[domain.CategoryTransport].Equal(d("115.38")) {
		t.Fatalf("cached snapshot differs: %+v", again)
	}
}

func TestTotals_RevisionChangeBypassesCache(t *testing.T) {
	svc, repo, _ := newTotals(t)
	ctx := context.Background()
	if _, err := svc.Totals(ctx, "q1", "KES"); err != nil {
		t.Fatalf("err: %v", err)
	}

	changed := kesQuote()
	changed.Markup = domain.MarkupPolicy{Type: domain.MarkupPercentage, Value: d("20")}
	repo.PutQuote(changed)

	qt, err := svc.Totals(ctx, "q1", "KES")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if !qt.MarkupAmount.Equal(d("15000")) || !qt.GrandTotal.Equal(d("90000")) {
		t.Fatalf("stale totals after edit: %+v", qt)
	}
	if repo.loads != 2 {
		t.Fatalf("want reload after revision change, loads=%d", repo.loads)
	}
}

func TestTotals_DifferentRateSetsNeverShareEntries(t *testing.T) {
	repo := memory.New()
	repo.PutQuote(kesQuote())
	cache := &fakeCache{}
	builtin := pricing.MustTable(pricing.DefaultCurrencies())
	fed, _, err := builtin.WithRates(map[string]decimal.Decimal{"KES": d("100")})
	if err != nil {
		t.Fatalf("WithRates: %v", err)
	}
	batch := app.NewTotalsService(repo, pricing.NewEngine(builtin), cache, time.Minute)
	api := app.NewTotalsService(repo, pricing.NewEngine(fed), cache, time.Minute)
	ctx := context.Background()

	if qt, err := batch.Totals(ctx, "q1", "USD"); err != nil || !qt.GrandTotal.Equal(d("634.62")) {
		t.Fatalf("builtin totals: %+v %v", qt, err)
	}
	qt, err := api.Totals(ctx, "q1", "USD")
	if err != nil {
		t.Fatalf("fed totals: %v", err)
	}
	if !qt.GrandTotal.Equal(d("825")) {
		t.Fatalf("served totals computed at other rates: %s", qt.GrandTotal)
	}
	if len(cache.store) != 2 {
		t.Fatalf("want one entry per rate set, got %d", len(cache.store))
	}
}

func TestTotals_DisplayCurrencyIsPartOfTheKey(t *testing.T) {
	svc, _, _ := newTotals(t)
	ctx := context.Background()
	usd, _ := svc.Totals(ctx, "q1", "USD")
	kes, err := svc.Totals(ctx, "q1", "KES")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if kes.DisplayCurrency != "KES" || !kes.GrandTotal.Equal(d("82500")) || usd.DisplayCurrency != "USD" {
		t.Fatalf("currency mixed up: usd=%+v kes=%+v", usd, kes)
	}
}

func TestTotals_UnsupportedCurrencyReturnsNothing(t *testing.T) {
	svc, repo, cache := newTotals(t)
	_, err := svc.Totals(context.Background(), "q1", "XXX")
	if !errors.Is(err, domain.ErrUnsupportedCurrency) {
		t.Fatalf("want ErrUnsupportedCurrency, got %v", err)
	}
	bad := kesQuote()
	bad.ID = "q2"
	bad.BaseCurrency = "XXX"
	repo.PutQuote(bad)
	if _, err := svc.Totals(context.Background(), "q2", "USD"); !errors.Is(err, domain.ErrUnsupportedCurrency) {
		t.Fatalf("base: want ErrUnsupportedCurrency, got %v", err)
	}
	if cache.sets != 0 {
		t.Fatalf("failed computations must not be cached")
	}
}

func TestTotals_UnknownQuote(t *testing.T) {
	svc, _, _ := newTotals(t)
	if _, err := svc.Totals(context.Background(), "nope", "USD"); !errors.Is(err, domain.ErrQuoteNotFound) {
		t.Fatalf("want ErrQuoteNotFound, got %v", err)
	}
}

func TestTotals_WorksWithoutCache(t *testing.T) {
	repo := memory.New()
	repo.PutQuote(kesQuote())
	svc := app.NewTotalsService(repo, pricing.NewEngine(pricing.MustTable(pricing.DefaultCurrencies())), nil, 0)
	qt, err := svc.Totals(context.Background(), "q1", "KES")
	if err != nil || !qt.Subtotal.Equal(d("75000")) {
		t.Fatalf("got %+v %v", qt, err)
	}
}

func TestListPriced_ConvertsEachOption(t *testing.T) {
	repo := memory.New()
	repo.PutQuote(kesQuote())
	svc := app.NewOptionService(repo, pricing.MustTable(pricing.DefaultCurrencies()))
	ctx := context.Background()
	price := d("13000")
	if _, err := svc.Create(ctx, app.NewOption{QuoteID: "q1", HotelID: "h1", OptionName: "Lodge", CurrencyCode: "KES", TotalPrice: &price}); err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := svc.ListPriced(ctx, "q1", "USD")
	if err != nil {
		t.Fatalf("ListPriced: %v", err)
	}
	if len(got) != 1 || !got[0].DisplayPrice.Equal(d("100")) || got[0].DisplayPriceFormatted != "$100.00" {
		t.Fatalf("got %+v", got)
	}
	if _, err := svc.ListPriced(ctx, "q1", "ABC"); !errors.Is(err, domain.ErrUnsupportedCurrency) {
		t.Fatalf("want ErrUnsupportedCurrency, got %v", err)
	}
}
