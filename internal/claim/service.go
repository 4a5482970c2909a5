// Package claim implements race-safe cell claims on the partitioned store.
//
// The store only offers "set a cell and return its previous value" inside an
// atomic, order-preserving batch, so a claim runs in two phases. Phase 1
// writes a placeholder to every candidate and captures the previous values;
// a cell is won by exactly the one batch that saw it unvisited. Phase 2
// overwrites the placeholders of won cells with the owning team.
package claim

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/23skdu/field/internal/core"
	fielderrors "github.com/23skdu/field/internal/errors"
	"github.com/23skdu/field/internal/grid"
	"github.com/23skdu/field/internal/kv"
	"github.com/23skdu/field/internal/metrics"
	"github.com/23skdu/field/internal/round"
)

var (
	ErrRoundOver     = errors.New("claim: round is over")
	ErrEliminated    = errors.New("claim: player revealed a mine this round")
	ErrNoCoords      = errors.New("claim: no coordinates")
	ErrTooManyCoords = errors.New("claim: too many coordinates")
)

// MaxCoords bounds one claim request.
const MaxCoords = 1024

// RoundSource resolves round ids.
type RoundSource interface {
	Get(ctx context.Context, id string) (round.Config, error)
}

// DeltaSink receives the deltas of won cells for later publication.
type DeltaSink interface {
	Append(ctx context.Context, roundID string, pxy core.PartitionXY, deltas []core.Delta) error
}

// Service is the field claim service.
type Service struct {
	store  kv.Store
	rounds RoundSource
	sink   DeltaSink
	logger zerolog.Logger
}

func NewService(store kv.Store, rounds RoundSource, sink DeltaSink, logger zerolog.Logger) *Service {
	return &Service{store: store, rounds: rounds, sink: sink, logger: logger}
}

type candidate struct {
	order int
	xy    core.XY
	local int
}

type partitionBatch struct {
	pxy   core.PartitionXY
	cands []candidate
}

// groupByPartition keeps partitions in first-seen order and candidates in
// request order within each partition.
func groupByPartition(layout grid.Layout, coords []core.XY) ([]*partitionBatch, error) {
	var batches []*partitionBatch
	index := make(map[core.PartitionXY]*partitionBatch)
	for i, xy := range coords {
		pxy, local, err := layout.Locate(xy)
		if err != nil {
			return nil, err
		}
		b, ok := index[pxy]
		if !ok {
			b = &partitionBatch{pxy: pxy}
			index[pxy] = b
			batches = append(batches, b)
		}
		b.cands = append(b.cands, candidate{order: i, xy: xy, local: local})
	}
	return batches, nil
}

// Claim attempts to claim coords for userID in roundID. Cells that were
// already claimed produce no delta; losing every race returns an empty list.
// Any out-of-bounds coordinate fails the whole call before the store is touched.
func (s *Service) Claim(ctx context.Context, userID, roundID string, coords []core.XY) ([]core.Delta, error) {
	start := time.Now()
	defer func() {
		metrics.ClaimDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	if len(coords) == 0 {
		return nil, fielderrors.WrapValidationError(ErrNoCoords, "claim", "empty request")
	}
	if len(coords) > MaxCoords {
		return nil, fielderrors.WrapValidationError(ErrTooManyCoords, "claim", "request too large")
	}

	cfg, err := s.rounds.Get(ctx, roundID)
	if err != nil {
		return nil, err
	}
	if cfg.Ended {
		return nil, fielderrors.WrapStateError(ErrRoundOver, "claim", "round "+roundID)
	}

	batches, err := groupByPartition(cfg.Layout(), coords)
	if err != nil {
		metrics.ClaimRequestsTotal.WithLabelValues("invalid").Inc()
		return nil, fielderrors.WrapValidationError(err, "claim", "coordinate out of bounds")
	}

	eliminated, err := s.store.SIsMember(ctx, kv.EliminatedKey(roundID), userID)
	if err != nil {
		return nil, fielderrors.WrapStorageError(err, "claim", "check elimination")
	}
	if eliminated {
		metrics.ClaimRequestsTotal.WithLabelValues("eliminated").Inc()
		return nil, fielderrors.WrapStateError(ErrEliminated, "claim", "user "+userID)
	}

	team := round.TeamFor(userID, cfg.Teams)
	mines := cfg.Mines()

	won := make([]core.Delta, 0, len(coords))
	orders := make([]int, 0, len(coords))
	for _, b := range batches {
		deltas, err := s.claimPartition(ctx, roundID, b, team, mines)
		if err != nil {
			return nil, err
		}
		for _, d := range deltas {
			won = append(won, d.delta)
			orders = append(orders, d.order)
		}
		if len(deltas) > 0 && s.sink != nil {
			out := make([]core.Delta, len(deltas))
			for i, d := range deltas {
				out[i] = d.delta
			}
			if err := s.sink.Append(ctx, roundID, b.pxy, out); err != nil {
				// The cells are already written; the next replace snapshot
				// still carries them to viewers.
				s.logger.Error().Err(err).
					Str("round", roundID).
					Str("partition", b.pxy.String()).
					Msg("Failed to append deltas")
			}
		}
	}

	sortByOrder(won, orders)
	metrics.CellsClaimedTotal.Add(float64(len(won)))
	metrics.ClaimConflictsTotal.Add(float64(len(coords) - len(won)))
	metrics.ClaimRequestsTotal.WithLabelValues("ok").Inc()
	return won, nil
}

type orderedDelta struct {
	order int
	delta core.Delta
}

func (s *Service) claimPartition(ctx context.Context, roundID string, b *partitionBatch, team core.Team, mines round.MineField) ([]orderedDelta, error) {
	key := kv.CellsKey(roundID, b.pxy)

	// Phase 1: placeholder everywhere; the previous values decide the winners.
	ops := make([]kv.BitOp, len(b.cands))
	for i, c := range b.cands {
		ops[i] = kv.SetOp(c.local, grid.Placeholder)
	}
	prev, err := s.store.Bitfield(ctx, key, grid.FieldWidth, ops)
	if err != nil {
		return nil, fielderrors.WrapStorageError(err, "claim.phase1", key)
	}

	var fresh []candidate
	for i, c := range b.cands {
		if !grid.IsVisited(prev[i]) {
			fresh = append(fresh, c)
		}
	}
	if len(fresh) == 0 {
		return nil, nil
	}

	// Phase 2: write the real owner, then read it back in the same batch.
	ops = ops[:0]
	for _, c := range fresh {
		v := grid.PackDelta(core.Delta{Team: team, IsMine: mines.IsMine(c.xy)})
		ops = append(ops, kv.SetOp(c.local, v), kv.GetOp(c.local))
	}
	res, err := s.store.Bitfield(ctx, key, grid.FieldWidth, ops)
	if err != nil {
		s.release(ctx, roundID, b.pxy, key, fresh)
		return nil, fielderrors.WrapStorageError(err, "claim.phase2", key)
	}

	out := make([]orderedDelta, len(fresh))
	for i, c := range fresh {
		out[i] = orderedDelta{order: c.order, delta: grid.DeltaFromValue(c.xy, res[2*i+1])}
	}
	return out, nil
}

// releaseTimeout bounds the rollback of a failed phase 2.
const releaseTimeout = 2 * time.Second

// release clears the placeholders of cells won in phase 1 whose owner could
// not be written, so they can be claimed again. Only the phase 1 winner ever
// writes a placeholder cell, so clearing it cannot undo another claim.
func (s *Service) release(ctx context.Context, roundID string, pxy core.PartitionXY, key string, cells []candidate) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	ops := make([]kv.BitOp, len(cells))
	for i, c := range cells {
		ops[i] = kv.SetOp(c.local, 0)
	}
	logger := s.logger.With().Str("round", roundID).Str("partition", pxy.String()).Int("cells", len(cells)).Logger()
	if _, err := s.store.Bitfield(ctx, key, grid.FieldWidth, ops); err != nil {
		metrics.ClaimRequestsTotal.WithLabelValues("stranded").Inc()
		logger.Error().Err(err).Msg("Claim phase 2 failed and placeholders could not be released")
		return
	}
	logger.Warn().Msg("Claim phase 2 failed, placeholders released")
}
