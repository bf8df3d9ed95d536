// Command reprice computes totals for the given quote ids concurrently and
// logs one line per quote. It warms the totals cache when Redis is set.
//
//	reprice [-currency USD] quote-id...
package main

import (
	"context"
	"database/sql"
	"flag"
	"os"
	"sync"
	"sync/atomic"

	_ "github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"quotedesk/internal/adapters/observability"
	"quotedesk/internal/adapters/rates"
	redisad "quotedesk/internal/adapters/redis"
	"quotedesk/internal/app"
	"quotedesk/internal/domain"
	"quotedesk/internal/pricing"
	"quotedesk/internal/shared"
	mysqlrepo "quotedesk/internal/storage/mysql"
)

func main() {
	_ = godotenv.Load()
	ctx := context.Background()
	cfg := shared.Load()

	// initialize global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv)

	currency := flag.String("currency", cfg.DefaultCurrency, "display currency")
	flag.Parse()
	ids := flag.Args()
	if len(ids) == 0 {
		log.Fatal().Msg("usage: reprice [-currency CODE] quote-id...")
	}

	log.Info().Int("quotes", len(ids)).Int("workers", cfg.RepriceWorkers).Str("currency", *currency).Msg("reprice starting")

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	repo := mysqlrepo.New(db)

	var cache domain.Cache
	if cfg.RedisAddr != "" {
		cache = redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	}
	// same rate source as the API, so cached snapshots line up
	table := rates.LoadTable(ctx, cfg.RatesBase, cfg.RatesKey, cfg.RatesRPS)
	svc := app.NewTotalsService(repo, pricing.NewEngine(table), cache, cfg.CacheTTL)

	sem := semaphore.NewWeighted(int64(cfg.RepriceWorkers))
	var (
		wg     sync.WaitGroup
		failed atomic.Int32
	)
	for _, id := range ids {
		// acquire before launching the goroutine; release inside it
		if err := sem.Acquire(ctx, 1); err != nil {
			log.Fatal().Err(err).Msg("semaphore acquire failed")
		}
		wg.Add(1)
		go func(quoteID string) {
			defer wg.Done()
			defer sem.Release(1)

			qt, err := svc.Totals(ctx, quoteID, *currency)
			if err != nil {
				failed.Add(1)
				log.Warn().Str("quote_id", quoteID).Err(err).Msg("reprice failed")
				return
			}
			log.Info().
				Str("quote_id", quoteID).
				Str("subtotal", qt.Subtotal.String()).
				Str("markup", qt.MarkupAmount.String()).
				Str("grand_total", qt.GrandTotal.String()).
				Str("currency", qt.DisplayCurrency).
				Msg("reprice ok")
		}(id)
	}
	wg.Wait()

	if n := failed.Load(); n > 0 {
		log.Error().Int32("failed", n).Msg("reprice completed with failures")
		os.Exit(1)
	}
	log.Info().Msg("reprice completed")
}
