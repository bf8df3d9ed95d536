package shared

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

type Config struct {
	AppEnv          string
	HTTPAddr        string
	MetricsAddr     string
	Store           string // mysql|memory
	MySQLDSN        string
	RedisAddr       string // empty disables the totals cache
	RedisDB         int
	RedisPass       string
	CacheTTL        time.Duration
	AMQPURL         string // empty drops selection events
	RatesBase       string // empty keeps the built-in table
	RatesKey        string
	RatesRPS        int
	SubmitRPS       float64
	SubmitBurst     int
	RepriceWorkers  int
	DefaultCurrency string
}

func Load() Config {
	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
			log.Warn().Str("key", k).Str("value", v).Msg("ignoring non-integer config value")
		}
		return def
	}
	atof := func(k string, def float64) float64 {
		if v := os.Getenv(k); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return f
			}
			log.Warn().Str("key", k).Str("value", v).Msg("ignoring non-numeric config value")
		}
		return def
	}
	c := Config{
		AppEnv:          env("APP_ENV", "prod"),
		HTTPAddr:        env("HTTP_ADDR", ":8080"),
		MetricsAddr:     env("METRICS_ADDR", ":9100"),
		Store:           strings.ToLower(env("STORE", "mysql")),
		MySQLDSN:        env("MYSQL_DSN", "root:root@tcp(localhost:3306)/quotedesk?parseTime=true&charset=utf8mb4,utf8&loc=UTC"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		RedisPass:       env("REDIS_PASSWORD", ""),
		RedisDB:         atoi("REDIS_DB", 0),
		CacheTTL:        time.Duration(atoi("CACHE_TTL_SECONDS", 900)) * time.Second,
		AMQPURL:         os.Getenv("AMQP_URL"),
		RatesBase:       os.Getenv("RATES_BASE_URL"),
		RatesKey:        os.Getenv("RATES_API_KEY"),
		RatesRPS:        atoi("RATES_RPS", 2),
		SubmitRPS:       atof("SUBMIT_RPS", 1),
		SubmitBurst:     atoi("SUBMIT_BURST", 5),
		RepriceWorkers:  atoi("REPRICE_WORKERS", 8),
		DefaultCurrency: strings.ToUpper(env("DEFAULT_DISPLAY_CURRENCY", "USD")),
	}
	if c.Store != "mysql" && c.Store != "memory" {
		log.Warn().Str("store", c.Store).Msg("unknown STORE, using mysql")
		c.Store = "mysql"
	}
	if c.RepriceWorkers <= 0 {
		c.RepriceWorkers = 1
	}
	return c
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
