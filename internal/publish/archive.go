package publish

import (
	"context"

	"github.com/23skdu/field/internal/archive"
	"github.com/23skdu/field/internal/core"
	"github.com/23skdu/field/internal/grid"
	"github.com/23skdu/field/internal/kv"
	"github.com/23skdu/field/internal/metrics"
	"github.com/23skdu/field/internal/round"
	"github.com/23skdu/field/internal/storage"
)

// archiveRound stores a Parquet archive of every partition of an ended round,
// keyed by the partition's last sequence number.
func (p *Publisher) archiveRound(ctx context.Context, cfg round.Config) {
	layout := cfg.Layout()
	g, err := grid.NewWithLayout(layout, grid.FieldWidth)
	if err != nil {
		p.fail(p.logger.With().Str("round", cfg.ID).Logger(), "archive", err)
		return
	}
	for _, pxy := range layout.Partitions() {
		if err := p.archivePartition(ctx, cfg, g, pxy); err != nil {
			p.fail(p.logger.With().Str("round", cfg.ID).Str("partition", pxy.String()).Logger(), "archive", err)
		}
	}
}

func (p *Publisher) archivePartition(ctx context.Context, cfg round.Config, g *grid.PackedGrid, pxy core.PartitionXY) error {
	seq, err := p.store.Counter(ctx, kv.SequenceKey(cfg.ID, pxy))
	if err != nil {
		return err
	}
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
	if err := archive.Write(buf, archive.Records(pxy, cfg.PartitionSize, cells)); err != nil {
		return err
	}
	key := storage.BlobKey{Round: cfg.ID, Partition: pxy, Seq: seq, Kind: core.KindArchive}
	if err := p.uploader.Upload(ctx, key, buf.Bytes()); err != nil {
		return err
	}
	metrics.BlobBytesTotal.WithLabelValues(string(core.KindArchive)).Add(float64(buf.Len()))
	return nil
}
