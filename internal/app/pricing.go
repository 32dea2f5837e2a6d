package app

import (
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/printworks/storefront/internal/history"
	"github.com/printworks/storefront/internal/platform/db"
	"github.com/printworks/storefront/internal/pricing"
	"github.com/printworks/storefront/internal/pricing/importer"
)

const defaultCacheTTL = 10 * time.Minute

// Pricing bundles the pricing components shared by the server, the worker
// and pricectl.
type Pricing struct {
	Store    *pricing.Store
	Cache    *pricing.Cache
	Source   *pricing.CachedSource
	Engine   *pricing.Engine
	History  *history.Recorder
	Admin    *pricing.Admin
	Importer *importer.Importer
}

// NewPricing wires the pricing stack over a database pool. A nil redis
// client disables caching; quotes then read straight from postgres.
func NewPricing(pool db.Pool, redisClient *redis.Client, cfg *Config, logger *slog.Logger) *Pricing {
	if logger == nil {
		logger = slog.Default()
	}
	ttl := defaultCacheTTL
	if cfg != nil && cfg.PricingCacheTTL > 0 {
		ttl = cfg.PricingCacheTTL
	}

	store := pricing.NewStore(pricing.NewRepository(pool))
	cache := pricing.NewCache(redisClient, ttl)
	source := pricing.NewCachedSource(cache, store, logger.With(slog.String("component", "pricing_cache")))
	recorder := history.NewRecorder(history.NewRepository(pool), logger)
	admin := pricing.NewAdmin(store, recorder, cache, logger.With(slog.String("component", "pricing_admin")))

	return &Pricing{
		Store:    store,
		Cache:    cache,
		Source:   source,
		Engine:   pricing.NewEngine(source),
		History:  recorder,
		Admin:    admin,
		Importer: importer.New(store, admin, logger.With(slog.String("component", "importer"))),
	}
}
