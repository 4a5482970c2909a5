package claim

import (
	"context"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/23skdu/field/internal/core"
	fielderrors "github.com/23skdu/field/internal/errors"
	"github.com/23skdu/field/internal/kv"
	"github.com/23skdu/field/internal/metrics"
	"github.com/23skdu/field/internal/round"
)

// Outcome summarizes what a settled claim changed.
type Outcome struct {
	Claimed    int  `json:"claimed"`
	Mines      int  `json:"mines"`
	Eliminated bool `json:"eliminated"`
}

// Settler consumes the deltas of a claim: it credits team tallies and
// eliminates players who revealed a mine. A revealed mine still counts toward
// the revealing team's area.
type Settler struct {
	store  kv.Store
	logger zerolog.Logger
}

func NewSettler(store kv.Store, logger zerolog.Logger) *Settler {
	return &Settler{store: store, logger: logger}
}

type tallyKey struct {
	pxy  core.PartitionXY
	team core.Team
}

func (s *Settler) Settle(ctx context.Context, userID string, cfg round.Config, deltas []core.Delta) (Outcome, error) {
	var out Outcome
	if len(deltas) == 0 {
		return out, nil
	}

	layout := cfg.Layout()
	tallies := make(map[tallyKey]int64)
	teams := make(map[core.Team]int64)
	for _, d := range deltas {
		pxy, _, err := layout.Locate(d.XY)
		if err != nil {
			return out, fielderrors.WrapValidationError(err, "settle", "delta outside round")
		}
		tallies[tallyKey{pxy: pxy, team: d.Team}]++
		teams[d.Team]++
		out.Claimed++
		if d.IsMine {
			out.Mines++
		}
	}

	for k, n := range tallies {
		if _, err := s.store.HIncrBy(ctx, kv.TallyKey(cfg.ID, k.pxy), strconv.Itoa(int(k.team)), n); err != nil {
			return out, fielderrors.WrapStorageError(err, "settle", "partition tally")
		}
	}
	for team, n := range teams {
		if _, err := s.store.HIncrBy(ctx, kv.LeaderboardKey(cfg.ID), strconv.Itoa(int(team)), n); err != nil {
			return out, fielderrors.WrapStorageError(err, "settle", "leaderboard")
		}
	}

	if out.Mines > 0 {
		if err := s.store.SAdd(ctx, kv.EliminatedKey(cfg.ID), userID); err != nil {
			return out, fielderrors.WrapStorageError(err, "settle", "eliminate player")
		}
		out.Eliminated = true
		metrics.MinesRevealedTotal.Add(float64(out.Mines))
		s.logger.Info().Str("round", cfg.ID).Str("user", userID).Int("mines", out.Mines).Msg("Player revealed a mine")
	}
	return out, nil
}
