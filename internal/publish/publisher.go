package publish

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/23skdu/field/internal/codec"
	"github.com/23skdu/field/internal/core"
	"github.com/23skdu/field/internal/grid"
	"github.com/23skdu/field/internal/kv"
	"github.com/23skdu/field/internal/metrics"
	"github.com/23skdu/field/internal/pool"
	"github.com/23skdu/field/internal/pubsub"
	"github.com/23skdu/field/internal/round"
	"github.com/23skdu/field/internal/score"
	"github.com/23skdu/field/internal/storage"
)

// Rounds is the slice of the round registry the publisher needs.
type Rounds interface {
	RoundSource
	Current(ctx context.Context) (round.Config, error)
	End(ctx context.Context, id string, winner core.Team) (round.Config, error)
}

// Scorer decides whether a round is over.
type Scorer interface {
	Precise(ctx context.Context, cfg round.Config) (score.Snapshot, error)
}

// Config tunes the publication tick.
type Config struct {
	Interval    time.Duration
	Parallelism int
}

// Publisher runs the periodic publication tick. Failures are logged and
// counted; the next tick republishes from the authoritative store.
type Publisher struct {
	cfg      Config
	store    kv.Store
	rounds   Rounds
	log      *DeltaLog
	uploader storage.Uploader
	notify   pubsub.Publisher
	scorer   Scorer
	buffers  *pool.BytePool
	logger   zerolog.Logger

	lastTick atomic.Int64
}

func NewPublisher(cfg Config, store kv.Store, rounds Rounds, uploader storage.Uploader, notify pubsub.Publisher, scorer Scorer, logger zerolog.Logger) *Publisher {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 4
	}
	return &Publisher{
		cfg:      cfg,
		store:    store,
		rounds:   rounds,
		log:      NewDeltaLog(store, rounds),
		uploader: uploader,
		notify:   notify,
		scorer:   scorer,
		buffers:  pool.NewBytePool(1 << 20),
		logger:   logger.With().Str("component", "publisher").Logger(),
	}
}

// DeltaLog returns the log claims should append to.
func (p *Publisher) DeltaLog() *DeltaLog { return p.log }

// LastTick returns when the last tick completed, idle ticks included.
func (p *Publisher) LastTick() time.Time {
	ns := p.lastTick.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Run ticks until ctx is done.
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.Tick(ctx); err != nil && ctx.Err() == nil {
				p.logger.Warn().Err(err).Msg("Publication tick failed")
			}
		}
	}
}

// Tick publishes every partition of the current round once.
func (p *Publisher) Tick(ctx context.Context) error {
	cfg, err := p.rounds.Current(ctx)
	var nf *core.ErrNotFound
	if errors.As(err, &nf) {
		metrics.PublishTicksTotal.WithLabelValues("idle").Inc()
		p.lastTick.Store(time.Now().UnixNano())
		return nil
	}
	if err != nil {
		metrics.PublishTicksTotal.WithLabelValues("error").Inc()
		return err
	}
	if cfg.Ended {
		metrics.PublishTicksTotal.WithLabelValues("idle").Inc()
		p.lastTick.Store(time.Now().UnixNano())
		return nil
	}
	return p.TickRound(ctx, cfg)
}

// TickRound publishes every partition of cfg once, then checks for a winner.
func (p *Publisher) TickRound(ctx context.Context, cfg round.Config) error {
	layout := cfg.Layout()
	g, err := grid.NewWithLayout(layout, grid.FieldWidth)
	if err != nil {
		metrics.PublishTicksTotal.WithLabelValues("error").Inc()
		return err
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(p.cfg.Parallelism)
	for _, pxy := range layout.Partitions() {
		eg.Go(func() error {
			p.publishPartition(egCtx, cfg, g, pxy)
			return nil
		})
	}
	_ = eg.Wait()
	if err := ctx.Err(); err != nil {
		metrics.PublishTicksTotal.WithLabelValues("cancelled").Inc()
		return err
	}

	p.checkScore(ctx, cfg)
	metrics.PublishTicksTotal.WithLabelValues("ok").Inc()
	p.lastTick.Store(time.Now().UnixNano())
	return nil
}

func (p *Publisher) publishPartition(ctx context.Context, cfg round.Config, g *grid.PackedGrid, pxy core.PartitionXY) {
	logger := p.logger.With().Str("round", cfg.ID).Str("partition", pxy.String()).Logger()

	seq, err := p.store.Incr(ctx, kv.SequenceKey(cfg.ID, pxy))
	if err != nil {
		p.fail(logger, "sequence", err)
		return
	}

	patch, err := p.log.Drain(ctx, cfg.ID, pxy)
	if err != nil {
		p.fail(logger, "drain", err)
		return
	}
	noChange := len(patch) == 0
	if !noChange {
		key := storage.BlobKey{Round: cfg.ID, Partition: pxy, Seq: seq, Kind: core.KindPatch}
		if err := p.uploader.Upload(ctx, key, patch); err != nil {
			// The drained deltas are gone; the next replace carries them.
			p.fail(logger.With().Int64("seq", seq).Logger(), "upload", err)
			return
		}
		metrics.BlobBytesTotal.WithLabelValues(string(core.KindPatch)).Add(float64(len(patch)))
	}
	p.announce(ctx, logger, core.Notification{
		Kind: core.KindPatch, Round: cfg.ID, Partition: pxy, SequenceNumber: seq, NoChange: noChange,
	})

	if seq%int64(cfg.PartitionPeriod) != 0 {
		return
	}
	if err := p.publishReplace(ctx, cfg, g, pxy, seq); err != nil {
		p.fail(logger.With().Int64("seq", seq).Logger(), "replace", err)
		return
	}
	p.announce(ctx, logger, core.Notification{
		Kind: core.KindReplace, Round: cfg.ID, Partition: pxy, SequenceNumber: seq,
	})
}

func (p *Publisher) publishReplace(ctx context.Context, cfg round.Config, g *grid.PackedGrid, pxy core.PartitionXY, seq int64) error {
	raw, err := p.store.Bytes(ctx, kv.CellsKey(cfg.ID, pxy))
	if err != nil {
		return err
	}
	if err := g.LoadPartition(pxy, raw); err != nil {
		return err
	}
	cells, err := g.Cells(pxy)
	if err != nil {
		return err
	}

	buf := p.buffers.Get()
	defer p.buffers.Put(buf)

	start := time.Now()
	if err := codec.EncodeSnapshotTo(ctx, buf, cells); err != nil {
		return err
	}
	metrics.EncodeDurationSeconds.WithLabelValues(string(core.KindReplace)).Observe(time.Since(start).Seconds())

	key := storage.BlobKey{Round: cfg.ID, Partition: pxy, Seq: seq, Kind: core.KindReplace}
	if err := p.uploader.Upload(ctx, key, buf.Bytes()); err != nil {
		return err
	}
	metrics.BlobBytesTotal.WithLabelValues(string(core.KindReplace)).Add(float64(buf.Len()))
	return nil
}

func (p *Publisher) announce(ctx context.Context, logger zerolog.Logger, n core.Notification) {
	if err := p.notify.Publish(ctx, n); err != nil {
		p.fail(logger.With().Int64("seq", n.SequenceNumber).Str("kind", string(n.Kind)).Logger(), "announce", err)
	}
}

func (p *Publisher) fail(logger zerolog.Logger, stage string, err error) {
	metrics.PublishFailuresTotal.WithLabelValues(stage).Inc()
	logger.Error().Err(err).Str("stage", stage).Msg("Publication step failed")
}

func (p *Publisher) checkScore(ctx context.Context, cfg round.Config) {
	if p.scorer == nil {
		return
	}
	snap, err := p.scorer.Precise(ctx, cfg)
	if err != nil {
		p.fail(p.logger.With().Str("round", cfg.ID).Logger(), "score", err)
		return
	}
	if !snap.IsOver || snap.Winner == nil {
		return
	}
	if _, err := p.rounds.End(ctx, cfg.ID, *snap.Winner); err != nil {
		p.fail(p.logger.With().Str("round", cfg.ID).Logger(), "end", err)
		return
	}
	metrics.RoundsEndedTotal.Inc()
	p.logger.Info().
		Str("round", cfg.ID).
		Uint8("winner", uint8(*snap.Winner)).
		Int64("remaining", snap.Remaining).
		Msg("Round over")
	p.archiveRound(ctx, cfg)
}
