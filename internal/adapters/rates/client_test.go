package rates_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"quotedesk/internal/adapters/rates"
	"quotedesk/internal/pricing"
)

func TestFetchUSDRates_RetriesThenSuccess(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/latest" || r.URL.Query().Get("base") != "USD" {
			t.Errorf("unexpected request %s", r.URL)
		}
		switch atomic.AddInt32(&hits, 1) {
		case 1:
			w.WriteHeader(http.StatusServiceUnavailable)
		case 2:
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"base":"USD","rates":{"kes":129.5,"EUR":"0.91","USD":1}}`))
		}
	}))
	defer ts.Close()

	cl, err := rates.New(ts.URL, "", 100)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	got, err := cl.FetchUSDRates(ctx)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got["KES"].String() != "129.5" || got["EUR"].String() != "0.91" {
		t.Fatalf("unexpected rates: %v", got)
	}
	if atomic.LoadInt32(&hits) != 3 {
		t.Fatalf("expected 3 calls due to retries, got %d", hits)
	}
}

func TestFetchUSDRates_404(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	cl, _ := rates.New(ts.URL, "k", 100)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if _, err := cl.FetchUSDRates(ctx); !errors.Is(err, rates.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFetchUSDRates_WrongBase(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"base":"EUR","rates":{"USD":1.08}}`))
	}))
	defer ts.Close()

	cl, _ := rates.New(ts.URL, "", 100)
	if _, err := cl.FetchUSDRates(context.Background()); !errors.Is(err, rates.ErrUnexpectedBase) {
		t.Fatalf("expected ErrUnexpectedBase, got %v", err)
	}
}

func TestNew_RequiresBaseURL(t *testing.T) {
	if _, err := rates.New("  ", "", 1); err == nil {
		t.Fatalf("expected error for empty base URL")
	}
}

func TestLoadTable(t *testing.T) {
	builtin := pricing.MustTable(pricing.DefaultCurrencies())
	ctx := context.Background()

	if got := rates.LoadTable(ctx, "", "", 1); got.Version() != builtin.Version() {
		t.Fatalf("no feed configured should keep built-in rates")
	}

	down := httptest.NewServer(http.NotFoundHandler())
	defer down.Close()
	if got := rates.LoadTable(ctx, down.URL, "", 100); got.Version() != builtin.Version() {
		t.Fatalf("failed feed should keep built-in rates")
	}

	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"base":"USD","rates":{"KES":100,"XYZ":7}}`))
	}))
	defer feed.Close()
	a := rates.LoadTable(ctx, feed.URL, "", 100)
	b := rates.LoadTable(ctx, feed.URL, "", 100)
	if a.Version() == builtin.Version() || a.Version() != b.Version() {
		t.Fatalf("fed tables: a=%s b=%s builtin=%s", a.Version(), b.Version(), builtin.Version())
	}
	kes, _ := a.Lookup("KES")
	if kes.RateToUSD.String() != "100" {
		t.Fatalf("KES rate: %s", kes.RateToUSD)
	}
}
