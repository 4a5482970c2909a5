package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/23skdu/field/internal/api"
	"github.com/23skdu/field/internal/breaker"
	"github.com/23skdu/field/internal/claim"
	"github.com/23skdu/field/internal/health"
	"github.com/23skdu/field/internal/kv"
	"github.com/23skdu/field/internal/limiter"
	"github.com/23skdu/field/internal/publish"
	"github.com/23skdu/field/internal/pubsub"
	"github.com/23skdu/field/internal/round"
	"github.com/23skdu/field/internal/score"
	"github.com/23skdu/field/internal/security"
	"github.com/23skdu/field/internal/storage"
)

// daemon owns every long-lived component of one field node.
type daemon struct {
	cfg    Config
	logger zerolog.Logger

	store     kv.Store
	redis     *kv.RedisStore
	rounds    *round.Registry
	cache     *round.RistrettoCache
	hub       *pubsub.Hub
	bus       *pubsub.RedisBus
	publisher *publish.Publisher
	server    *api.Server
}

func newDaemon(cfg Config, logger zerolog.Logger) (*daemon, error) {
	d := &daemon{cfg: cfg, logger: logger}
	hm := health.NewHealthManager(cfg.Version, logger)

	switch cfg.KV {
	case "redis":
		d.redis = kv.NewRedisStore(kv.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			PoolSize: cfg.RedisPoolSize,
		})
		d.store = d.redis
		d.bus = pubsub.NewRedisBus(d.redis.Client(), logger)
		hm.RegisterChecker(health.NewPingChecker("redis", cfg.HealthCheckTimeout, d.redis.Ping))
	default:
		d.store = kv.NewMemoryStore()
	}

	cache, err := round.NewRistrettoCache(cfg.RoundCacheEntries, cfg.RoundCacheTTL)
	if err != nil {
		return nil, err
	}
	d.cache = cache
	d.rounds = round.NewRegistry(d.store, cache, logger)
	scores := score.NewEngine(d.store, cfg.LeaderboardTTL, logger)

	var (
		uploader storage.Uploader
		blobs    http.Handler
	)
	switch cfg.Blobs {
	case "s3":
		s3, err := storage.NewS3Backend(&storage.S3Config{
			Endpoint:        cfg.S3Endpoint,
			Bucket:          cfg.S3Bucket,
			Prefix:          cfg.S3Prefix,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			Region:          cfg.S3Region,
			UsePathStyle:    cfg.S3UsePathStyle,
			CacheControl:    cfg.S3CacheControl,
		})
		if err != nil {
			cache.Close()
			return nil, err
		}
		uploader = s3
	default:
		mem := storage.NewMemoryStore()
		uploader, blobs = mem, mem
	}
	uploader = storage.NewGuardedUploader(uploader, breaker.NewCircuitBreaker(breaker.Settings{
		Name:    "blob_uploads",
		Timeout: cfg.UploadBreakerOpen,
		ReadyToTrip: func(c breaker.Counts) bool {
			return c.ConsecutiveFailures >= cfg.UploadBreakerAfter
		},
		OnStateChange: func(name string, from, to breaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state changed")
		},
	}))

	d.hub = pubsub.NewHub()
	var notify pubsub.Publisher = d.hub
	if d.bus != nil {
		notify = d.bus
	}
	d.publisher = publish.NewPublisher(publish.Config{
		Interval:    cfg.PublishInterval,
		Parallelism: cfg.PublishParallelism,
	}, d.store, d.rounds, uploader, notify, scores, logger)
	if cfg.Publisher {
		hm.RegisterChecker(health.NewFreshnessChecker("publisher", 5*cfg.PublishInterval, d.publisher.LastTick))
	}

	d.server = api.NewServer(api.Deps{
		Rounds:    d.rounds,
		Claims:    claim.NewService(d.store, d.rounds, d.publisher.DeltaLog(), logger),
		Settler:   claim.NewSettler(d.store, logger),
		Scores:    scores,
		Sequences: d.store,
		WS:        pubsub.NewWSHandler(d.hub, logger),
		Blobs:     blobs,
		Health:    hm,
		Limiter:   limiter.NewRateLimiter(cfg.Config),
		Audit:     security.NewAuditLogger(logger),
		Logger:    logger,
	})
	return d, nil
}

// run serves until ctx is done. The publication tick and the Redis relay
// run alongside the HTTP server.
func (d *daemon) run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d.logger.Info().Str("address", d.cfg.ListenAddr).Msg("Field API listening")
		return d.server.ListenAndServe(ctx, d.cfg.ListenAddr)
	})
	if d.cfg.Publisher {
		g.Go(func() error { return d.publisher.Run(ctx) })
	}
	if d.bus != nil {
		g.Go(func() error { return d.relay(ctx) })
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// relay feeds the local websocket hub from Redis, reconnecting on failure.
func (d *daemon) relay(ctx context.Context) error {
	for {
		err := d.bus.Relay(ctx, d.hub)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d.logger.Warn().Err(err).Msg("Notification relay lost, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

func (d *daemon) close() {
	d.hub.Close()
	d.cache.Close()
	if d.redis != nil {
		if err := d.redis.Close(); err != nil {
			d.logger.Warn().Err(err).Msg("Closing redis failed")
		}
	}
}
