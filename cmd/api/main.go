package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	amqpad "quotedesk/internal/adapters/amqp"
	server "quotedesk/internal/adapters/http_server"
	"quotedesk/internal/adapters/observability"
	"quotedesk/internal/adapters/rates"
	redisad "quotedesk/internal/adapters/redis"
	"quotedesk/internal/app"
	"quotedesk/internal/domain"
	"quotedesk/internal/pricing"
	"quotedesk/internal/shared"
	"quotedesk/internal/storage/memory"
	mysqlrepo "quotedesk/internal/storage/mysql"
)

type store interface {
	domain.QuoteRepository
	domain.OptionRepository
}

func main() {
	_ = godotenv.Load() // .env is optional
	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo := openStore(cfg)

	table := rates.LoadTable(ctx, cfg.RatesBase, cfg.RatesKey, cfg.RatesRPS)
	if _, err := table.Lookup(cfg.DefaultCurrency); err != nil {
		log.Fatal().Err(err).Msg("DEFAULT_DISPLAY_CURRENCY is not in the currency table")
	}

	var cache domain.Cache
	if cfg.RedisAddr != "" {
		rc := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
		if err := rc.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("redis unreachable; totals cache disabled")
		} else {
			cache = rc
			defer rc.Close()
		}
	}

	var pub domain.SelectionPublisher = amqpad.Noop{}
	if cfg.AMQPURL != "" {
		p := amqpad.New(cfg.AMQPURL)
		defer p.Close()
		pub = p
	}

	// deferred after the publisher, so queued events drain before it closes
	selection := app.NewSelectionManager(repo, pub)
	defer selection.Close()

	h := &server.Handlers{
		Totals:          app.NewTotalsService(repo, pricing.NewEngine(table), cache, cfg.CacheTTL),
		Selection:       selection,
		Options:         app.NewOptionService(repo, table),
		Rates:           table,
		DefaultCurrency: cfg.DefaultCurrency,
	}

	// http
	srv := server.New()
	reg := observability.InitRegistry()
	observability.Serve(cfg.MetricsAddr, reg)
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(h, server.RateLimit(cfg.SubmitRPS, cfg.SubmitBurst))

	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Mux(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdown)
	}()

	log.Info().Str("addr", cfg.HTTPAddr).Str("store", cfg.Store).Msg("API listening")
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("http server failed")
	}
	log.Info().Msg("API stopped")
}

func openStore(cfg shared.Config) store {
	if cfg.Store == "memory" {
		r := memory.New()
		memory.SeedDemo(r)
		log.Warn().Msg("using in-memory store with demo data")
		return r
	}
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("database connection ok")
	return mysqlrepo.New(db)
}
