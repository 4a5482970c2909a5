package round

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/23skdu/field/internal/core"
	fielderrors "github.com/23skdu/field/internal/errors"
	"github.com/23skdu/field/internal/kv"
)

// Registry creates rounds and resolves round ids to configs, reading through
// an injectable cache.
type Registry struct {
	store  kv.Store
	cache  ConfigCache
	logger zerolog.Logger
	now    func() time.Time
}

func NewRegistry(store kv.Store, cache ConfigCache, logger zerolog.Logger) *Registry {
	if cache == nil {
		cache = NopCache{}
	}
	return &Registry{store: store, cache: cache, logger: logger, now: time.Now}
}

// NewID returns a fresh round id.
func NewID() string {
	return uuid.NewString()
}

// Create validates cfg, assigns an id and seed when missing, stores it and
// makes it the current round.
func (r *Registry) Create(ctx context.Context, cfg Config) (Config, error) {
	cfg = cfg.WithDefaults()
	if cfg.ID == "" {
		cfg.ID = NewID()
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	if cfg.Seed == 0 {
		cfg.Seed = xxhash.Sum64String(cfg.ID)
	}
	cfg.CreatedAt = r.now().UTC()
	cfg.Ended = false
	cfg.Winner = nil

	if err := r.put(ctx, cfg); err != nil {
		return Config{}, err
	}
	if err := r.store.Set(ctx, kv.CurrentRoundKey, []byte(cfg.ID)); err != nil {
		return Config{}, fielderrors.WrapStorageError(err, "round.create", "set current round")
	}
	r.logger.Info().
		Str("round", cfg.ID).
		Int("size", cfg.Size).
		Int("partition_size", cfg.PartitionSize).
		Int("mine_density", cfg.MineDensity).
		Msg("Round created")
	return cfg, nil
}

func (r *Registry) put(ctx context.Context, cfg Config) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := r.store.Set(ctx, kv.RoundKey(cfg.ID), raw); err != nil {
		return fielderrors.WrapStorageError(err, "round.put", "store round config")
	}
	r.cache.Set(cfg)
	return nil
}

// Get resolves a round id.
func (r *Registry) Get(ctx context.Context, id string) (Config, error) {
	if cfg, ok := r.cache.Get(id); ok {
		return cfg, nil
	}
	raw, err := r.store.Get(ctx, kv.RoundKey(id))
	if errors.Is(err, kv.ErrNotFound) {
		return Config{}, core.NewNotFoundError("round", id)
	}
	if err != nil {
		return Config{}, fielderrors.WrapStorageError(err, "round.get", "load round config")
	}
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode round %s: %w", id, err)
	}
	r.cache.Set(cfg)
	return cfg, nil
}

// Current returns the most recently created round.
func (r *Registry) Current(ctx context.Context) (Config, error) {
	id, err := r.store.Get(ctx, kv.CurrentRoundKey)
	if errors.Is(err, kv.ErrNotFound) {
		return Config{}, core.NewNotFoundError("round", "current")
	}
	if err != nil {
		return Config{}, fielderrors.WrapStorageError(err, "round.current", "load current round")
	}
	return r.Get(ctx, string(id))
}

// End marks a round finished with its winner. Ending twice keeps the first winner.
func (r *Registry) End(ctx context.Context, id string, winner core.Team) (Config, error) {
	cfg, err := r.Get(ctx, id)
	if err != nil {
		return Config{}, err
	}
	if cfg.Ended {
		return cfg, nil
	}
	cfg.Ended = true
	cfg.Winner = &winner
	r.cache.Invalidate(id)
	if err := r.put(ctx, cfg); err != nil {
		return Config{}, err
	}
	r.logger.Info().Str("round", id).Uint8("winner", uint8(winner)).Msg("Round ended")
	return cfg, nil
}
