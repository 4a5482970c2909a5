package score

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/23skdu/field/internal/cache"
	"github.com/23skdu/field/internal/core"
	fielderrors "github.com/23skdu/field/internal/errors"
	"github.com/23skdu/field/internal/kv"
	"github.com/23skdu/field/internal/round"
)

// DefaultLeaderboardTTL is how long Fast serves a cached leaderboard.
const DefaultLeaderboardTTL = 2 * time.Second

// Engine scores rounds from the tallies kept by claim settlement.
type Engine struct {
	store  kv.Store
	boards *cache.TTLCache[[]core.TeamScore]
	logger zerolog.Logger
}

func NewEngine(store kv.Store, ttl time.Duration, logger zerolog.Logger) *Engine {
	if ttl <= 0 {
		ttl = DefaultLeaderboardTTL
	}
	return &Engine{
		store:  store,
		boards: cache.NewTTLCache[[]core.TeamScore](64, ttl, "leaderboard"),
		logger: logger,
	}
}

// Precise sums the authoritative per-partition tallies of every partition.
func (e *Engine) Precise(ctx context.Context, cfg round.Config) (Snapshot, error) {
	totals := make([]int64, cfg.Teams)
	for _, pxy := range cfg.Layout().Partitions() {
		tally, err := e.store.HGetAll(ctx, kv.TallyKey(cfg.ID, pxy))
		if err != nil {
			return Snapshot{}, fielderrors.WrapStorageError(err, "score.precise", "partition "+pxy.String())
		}
		e.accumulate(cfg, tally, totals)
	}
	return Decide(teamScores(totals), cfg.Size)
}

// Fast reads the rolling leaderboard, served from cache for a short TTL.
func (e *Engine) Fast(ctx context.Context, cfg round.Config) (Snapshot, error) {
	key := cache.Key("leaderboard", cfg.ID)
	if scores, ok := e.boards.Get(key); ok {
		return Decide(scores, cfg.Size)
	}

	board, err := e.store.HGetAll(ctx, kv.LeaderboardKey(cfg.ID))
	if err != nil {
		return Snapshot{}, fielderrors.WrapStorageError(err, "score.fast", "leaderboard")
	}
	totals := make([]int64, cfg.Teams)
	e.accumulate(cfg, board, totals)
	scores := teamScores(totals)
	e.boards.Put(key, scores)
	return Decide(scores, cfg.Size)
}

func (e *Engine) accumulate(cfg round.Config, tally map[string]int64, totals []int64) {
	for field, n := range tally {
		team, err := strconv.Atoi(field)
		if err != nil || team < 0 || team >= len(totals) {
			e.logger.Warn().Str("round", cfg.ID).Str("field", field).Msg("Ignoring unknown tally field")
			continue
		}
		totals[team] += n
	}
}

func teamScores(totals []int64) []core.TeamScore {
	out := make([]core.TeamScore, len(totals))
	for i, n := range totals {
		out[i] = core.TeamScore{Team: core.Team(i), Score: n}
	}
	return out
}
