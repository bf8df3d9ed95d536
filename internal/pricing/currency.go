// Package pricing holds the pure pricing core: the currency table, cost
// aggregation, markup and the totals engine. Nothing here does I/O.
package pricing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"

	"github.com/shopspring/decimal"

	"quotedesk/internal/domain"
)

var codeRe = regexp.MustCompile(`^[A-Z]{3}$`)

// Table is an immutable set of supported currencies with USD-relative rates.
// Build a new Table to change rates; never mutate one in place.
type Table struct {
	order   []domain.Currency
	byCode  map[string]domain.Currency
	version string
}

func NewTable(cs []domain.Currency) (*Table, error) {
	if len(cs) == 0 {
		return nil, fmt.Errorf("currency table: no currencies")
	}
	t := &Table{
		order:  make([]domain.Currency, 0, len(cs)),
		byCode: make(map[string]domain.Currency, len(cs)),
	}
	for _, c := range cs {
		if !codeRe.MatchString(c.Code) {
			return nil, fmt.Errorf("currency table: bad code %q", c.Code)
		}
		if _, dup := t.byCode[c.Code]; dup {
			return nil, fmt.Errorf("currency table: duplicate code %s", c.Code)
		}
		if !c.RateToUSD.IsPositive() {
			return nil, fmt.Errorf("currency table: %s rate must be positive, got %s", c.Code, c.RateToUSD)
		}
		if c.Decimals < 0 {
			return nil, fmt.Errorf("currency table: %s decimals must be >= 0", c.Code)
		}
		t.order = append(t.order, c)
		t.byCode[c.Code] = c
	}
	t.version = fingerprint(t.order)
	return t, nil
}

// fingerprint hashes code, rate and decimals of every currency.
func fingerprint(cs []domain.Currency) string {
	h := sha256.New()
	for _, c := range cs {
		fmt.Fprintf(h, "%s=%s/%d;", c.Code, c.RateToUSD.String(), c.Decimals)
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Version identifies the rate set. Two tables share a version only when
// they convert and round identically.
func (t *Table) Version() string { return t.version }

// MustTable panics on an invalid set; meant for package-level defaults and tests.
func MustTable(cs []domain.Currency) *Table {
	t, err := NewTable(cs)
	if err != nil {
		panic(err)
	}
	return t
}

// DefaultCurrencies is the built-in reference set, in picker display order.
// Rates are indicative and are normally refreshed from the rates feed at startup.
func DefaultCurrencies() []domain.Currency {
	return []domain.Currency{
		{Code: "USD", Name: "US Dollar", Symbol: "$", RateToUSD: decimal.NewFromInt(1), Decimals: 2},
		{Code: "EUR", Name: "Euro", Symbol: "€", RateToUSD: decimal.RequireFromString("0.92"), Decimals: 2},
		{Code: "GBP", Name: "British Pound", Symbol: "£", RateToUSD: decimal.RequireFromString("0.79"), Decimals: 2},
		{Code: "KES", Name: "Kenyan Shilling", Symbol: "KSh ", RateToUSD: decimal.NewFromInt(130), Decimals: 2},
		{Code: "TZS", Name: "Tanzanian Shilling", Symbol: "TSh ", RateToUSD: decimal.NewFromInt(2500), Decimals: 2},
		{Code: "UGX", Name: "Ugandan Shilling", Symbol: "USh ", RateToUSD: decimal.NewFromInt(3700), Decimals: 0},
		{Code: "RWF", Name: "Rwandan Franc", Symbol: "FRw ", RateToUSD: decimal.NewFromInt(1300), Decimals: 0},
		{Code: "ZAR", Name: "South African Rand", Symbol: "R ", RateToUSD: decimal.RequireFromString("18.5"), Decimals: 2},
		{Code: "AED", Name: "UAE Dirham", Symbol: "AED ", RateToUSD: decimal.RequireFromString("3.67"), Decimals: 2},
		{Code: "JPY", Name: "Japanese Yen", Symbol: "¥", RateToUSD: decimal.NewFromInt(150), Decimals: 0},
	}
}

// ListSupported returns a copy of the currencies in display order.
func (t *Table) ListSupported() []domain.Currency {
	out := make([]domain.Currency, len(t.order))
	copy(out, t.order)
	return out
}

func (t *Table) Lookup(code string) (domain.Currency, error) {
	c, ok := t.byCode[code]
	if !ok {
		return domain.Currency{}, fmt.Errorf("%w: %q", domain.ErrUnsupportedCurrency, code)
	}
	return c, nil
}

// Convert pivots through USD and rounds to the target's minor unit.
// Same-currency conversion returns amount untouched.
func (t *Table) Convert(amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	src, err := t.Lookup(from)
	if err != nil {
		return decimal.Decimal{}, err
	}
	dst, err := t.Lookup(to)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if from == to {
		return amount, nil
	}
	usd := amount.Div(src.RateToUSD)
	return usd.Mul(dst.RateToUSD).Round(dst.Decimals), nil
}

// Format renders symbol plus the amount at the currency's precision.
// Unknown codes render the bare number.
func (t *Table) Format(amount decimal.Decimal, code string) string {
	c, ok := t.byCode[code]
	if !ok {
		return amount.String()
	}
	return c.Symbol + amount.StringFixed(c.Decimals)
}

// ExchangeRate is rate(to)/rate(from), unrounded.
func (t *Table) ExchangeRate(from, to string) (decimal.Decimal, error) {
	src, err := t.Lookup(from)
	if err != nil {
		return decimal.Decimal{}, err
	}
	dst, err := t.Lookup(to)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return dst.RateToUSD.Div(src.RateToUSD), nil
}

// WithRates returns a new Table where known codes take the given USD rates.
// Codes absent from the table are returned as ignored; USD stays pinned at 1.
func (t *Table) WithRates(rates map[string]decimal.Decimal) (*Table, []string, error) {
	next := t.ListSupported()
	var ignored []string
	for code, r := range rates {
		if _, ok := t.byCode[code]; !ok {
			ignored = append(ignored, code)
			continue
		}
		if !r.IsPositive() {
			return nil, nil, fmt.Errorf("rates: %s rate must be positive, got %s", code, r)
		}
	}
	for i := range next {
		if next[i].Code == "USD" {
			continue
		}
		if r, ok := rates[next[i].Code]; ok {
			next[i].RateToUSD = r
		}
	}
	sort.Strings(ignored)
	nt, err := NewTable(next)
	if err != nil {
		return nil, nil, err
	}
	return nt, ignored, nil
}
