package pricing_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"quotedesk/internal/domain"
	"quotedesk/internal/pricing"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func defaultTable(t *testing.T) *pricing.Table {
	t.Helper()
	tbl, err := pricing.NewTable(pricing.DefaultCurrencies())
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	return tbl
}

func TestConvert_SameCurrencyIsIdentity(t *testing.T) {
	tbl := defaultTable(t)
	for _, c := range tbl.ListSupported() {
		for _, a := range []string{"0", "1.23456789", "-42.5", "1000000.005"} {
			got, err := tbl.Convert(dec(a), c.Code, c.Code)
			if err != nil {
				t.Fatalf("convert %s %s: %v", a, c.Code, err)
			}
			if got.String() != dec(a).String() {
				t.Fatalf("%s->%s: want %s exactly, got %s", c.Code, c.Code, a, got)
			}
		}
	}
}

func TestConvert_RoundTripWithinMinorUnitTolerance(t *testing.T) {
	tbl := defaultTable(t)
	half := dec("0.5")
	eps := dec("0.000000001")
	amounts := []string{"0.01", "1", "10.37", "999.99", "123456.78"}
	for _, c1 := range tbl.ListSupported() {
		for _, c2 := range tbl.ListSupported() {
			unit1 := decimal.New(1, -c1.Decimals)
			unit2 := decimal.New(1, -c2.Decimals)
			// one rounding in c2, scaled back into c1, plus one rounding in c1
			tol := half.Mul(unit1).Add(half.Mul(unit2).Mul(c1.RateToUSD).Div(c2.RateToUSD)).Add(eps)
			for _, s := range amounts {
				a := dec(s)
				there, err := tbl.Convert(a, c1.Code, c2.Code)
				if err != nil {
					t.Fatalf("convert: %v", err)
				}
				back, err := tbl.Convert(there, c2.Code, c1.Code)
				if err != nil {
					t.Fatalf("convert back: %v", err)
				}
				if diff := back.Sub(a).Abs(); diff.GreaterThan(tol) {
					t.Fatalf("%s %s->%s->%s: got %s, diff %s > tol %s", s, c1.Code, c2.Code, c1.Code, back, diff, tol)
				}
			}
		}
	}
}

func TestConvert_KESToUSD(t *testing.T) {
	tbl := defaultTable(t)
	got, err := tbl.Convert(dec("82500"), "KES", "USD")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if !got.Equal(dec("634.62")) {
		t.Fatalf("want 634.62, got %s", got)
	}
}

func TestConvert_ZeroDecimalTargetRoundsToWholeUnits(t *testing.T) {
	tbl := defaultTable(t)
	got, err := tbl.Convert(dec("10.37"), "USD", "JPY")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	// 10.37 * 150 = 1555.5, half away from zero
	if !got.Equal(dec("1556")) {
		t.Fatalf("want 1556, got %s", got)
	}
}

func TestConvert_UnsupportedCurrency(t *testing.T) {
	tbl := defaultTable(t)
	cases := [][2]string{{"XXX", "USD"}, {"USD", "XXX"}, {"XXX", "XXX"}, {"usd", "USD"}}
	for _, c := range cases {
		if _, err := tbl.Convert(dec("1"), c[0], c[1]); !errors.Is(err, domain.ErrUnsupportedCurrency) {
			t.Fatalf("%s->%s: want ErrUnsupportedCurrency, got %v", c[0], c[1], err)
		}
	}
}

func TestFormat(t *testing.T) {
	tbl := defaultTable(t)
	if got := tbl.Format(dec("1234.5"), "KES"); got != "KSh 1234.50" {
		t.Fatalf("KES: got %q", got)
	}
	if got := tbl.Format(dec("634.615"), "USD"); got != "$634.62" {
		t.Fatalf("USD: got %q", got)
	}
	if got := tbl.Format(dec("1555.4"), "JPY"); got != "¥1555" {
		t.Fatalf("JPY: got %q", got)
	}
	if got := tbl.Format(dec("12.3"), "XXX"); got != "12.3" {
		t.Fatalf("unknown code should fall back to bare number, got %q", got)
	}
}

func TestExchangeRate(t *testing.T) {
	tbl := defaultTable(t)
	r, err := tbl.ExchangeRate("USD", "KES")
	if err != nil {
		t.Fatalf("rate: %v", err)
	}
	if !r.Equal(dec("130")) {
		t.Fatalf("want 130, got %s", r)
	}
	if _, err := tbl.ExchangeRate("USD", "ABC"); !errors.Is(err, domain.ErrUnsupportedCurrency) {
		t.Fatalf("want ErrUnsupportedCurrency for unknown code, got %v", err)
	}
}

func TestNewTable_RejectsBadSets(t *testing.T) {
	usd := domain.Currency{Code: "USD", Symbol: "$", RateToUSD: dec("1"), Decimals: 2}
	bad := map[string][]domain.Currency{
		"empty":     nil,
		"duplicate": {usd, usd},
		"code":      {{Code: "us", RateToUSD: dec("1")}},
		"rate":      {{Code: "EUR", RateToUSD: decimal.Zero}},
		"decimals":  {{Code: "EUR", RateToUSD: dec("1"), Decimals: -1}},
	}
	for name, cs := range bad {
		if _, err := pricing.NewTable(cs); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestListSupported_StableOrderAndCopy(t *testing.T) {
	tbl := defaultTable(t)
	a := tbl.ListSupported()
	a[0].Code = "ZZZ"
	b := tbl.ListSupported()
	if b[0].Code != "USD" {
		t.Fatalf("table mutated through returned slice: %s", b[0].Code)
	}
	seen := map[string]bool{}
	for i, c := range b {
		if seen[c.Code] {
			t.Fatalf("duplicate %s", c.Code)
		}
		seen[c.Code] = true
		if want := pricing.DefaultCurrencies()[i].Code; c.Code != want {
			t.Fatalf("order[%d]: want %s, got %s", i, want, c.Code)
		}
	}
}

func TestWithRates_BuildsNewTable(t *testing.T) {
	tbl := defaultTable(t)
	next, ignored, err := tbl.WithRates(map[string]decimal.Decimal{
		"KES": dec("129.5"),
		"USD": dec("2"),
		"XYZ": dec("9"),
	})
	if err != nil {
		t.Fatalf("WithRates: %v", err)
	}
	if len(ignored) != 1 || ignored[0] != "XYZ" {
		t.Fatalf("ignored: %v", ignored)
	}
	kes, _ := next.Lookup("KES")
	if !kes.RateToUSD.Equal(dec("129.5")) {
		t.Fatalf("KES rate not applied: %s", kes.RateToUSD)
	}
	usd, _ := next.Lookup("USD")
	if !usd.RateToUSD.Equal(dec("1")) {
		t.Fatalf("USD must stay pinned at 1, got %s", usd.RateToUSD)
	}
	old, _ := tbl.Lookup("KES")
	if !old.RateToUSD.Equal(dec("130")) {
		t.Fatalf("original table changed: %s", old.RateToUSD)
	}
	if _, _, err := tbl.WithRates(map[string]decimal.Decimal{"EUR": dec("-1")}); err == nil {
		t.Fatalf("expected error for negative rate")
	}
}

func TestVersion_TracksRates(t *testing.T) {
	a := defaultTable(t)
	b := pricing.MustTable(pricing.DefaultCurrencies())
	if a.Version() == "" || a.Version() != b.Version() {
		t.Fatalf("equal tables must share a version: %q vs %q", a.Version(), b.Version())
	}
	fed, _, err := a.WithRates(map[string]decimal.Decimal{"KES": dec("100")})
	if err != nil {
		t.Fatalf("WithRates: %v", err)
	}
	if fed.Version() == a.Version() {
		t.Fatalf("changed rates kept version %s", a.Version())
	}
	same, _, _ := a.WithRates(map[string]decimal.Decimal{"KES": dec("130")})
	if same.Version() != a.Version() {
		t.Fatalf("identical rates changed version")
	}
}
