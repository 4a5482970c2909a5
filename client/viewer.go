package client

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/23skdu/field/internal/core"
	"github.com/23skdu/field/internal/grid"
	"github.com/23skdu/field/internal/partsync"
	"github.com/23skdu/field/internal/pubsub"
	"github.com/23skdu/field/internal/storage"
)

// Viewer keeps a local render grid of one round in sync: notifications
// arrive over a websocket, blobs are fetched over HTTP, and the partition
// sync client decides what to fetch.
type Viewer struct {
	c      *Client
	round  string
	sync   *partsync.Client
	sub    *pubsub.Subscriber
	logger zerolog.Logger
}

// ViewerConfig tunes a viewer session.
type ViewerConfig struct {
	Sync           partsync.Config
	ReconnectDelay time.Duration
}

// NewViewer opens a session on roundID ("current" is resolved once, here).
func (c *Client) NewViewer(ctx context.Context, roundID string, cfg ViewerConfig, logger zerolog.Logger) (*Viewer, error) {
	info, err := c.Round(ctx, roundID)
	if err != nil {
		return nil, err
	}
	rc := info.Round
	fetcher := storage.NewHTTPFetcher(c.blobBaseURL, c.blobPrefix, c.httpClient)
	sc, err := partsync.NewClient(cfg.Sync, partsync.Round{
		ID:              rc.ID,
		Size:            rc.Size,
		PartitionSize:   rc.PartitionSize,
		PartitionPeriod: rc.PartitionPeriod,
	}, fetcher, logger)
	if err != nil {
		return nil, err
	}
	sub := pubsub.NewSubscriber(c.wsURL(rc.ID), logger)
	if cfg.ReconnectDelay > 0 {
		sub = sub.WithReconnectDelay(cfg.ReconnectDelay)
	}
	return &Viewer{
		c:      c,
		round:  rc.ID,
		sync:   sc,
		sub:    sub,
		logger: logger.With().Str("component", "viewer").Str("round", rc.ID).Logger(),
	}, nil
}

// RoundID is the resolved round id.
func (v *Viewer) RoundID() string { return v.round }

// Grid is the local render grid.
func (v *Viewer) Grid() *grid.PackedGrid { return v.sync.Grid() }

// Cells decodes one partition of the render grid.
func (v *Viewer) Cells(pxy core.PartitionXY) ([]core.Cell, error) {
	return v.sync.Grid().Cells(pxy)
}

// SetVisible selects the partitions kept up to date.
func (v *Viewer) SetVisible(pxys []core.PartitionXY) { v.sync.SetVisible(pxys) }

// ShowAll makes every partition visible.
func (v *Viewer) ShowAll() { v.sync.SetVisible(v.sync.Grid().Layout().Partitions()) }

// Sync exposes the underlying partition sync client.
func (v *Viewer) Sync() *partsync.Client { return v.sync }

// Run syncs until ctx is done. After every (re)connect the published
// sequence numbers are reloaded, so nothing announced while disconnected is
// missed for long.
func (v *Viewer) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return v.sync.Run(ctx) })
	g.Go(func() error {
		return v.sub.Run(ctx, v.sync.Notify, func() {
			if err := v.reseed(ctx); err != nil && ctx.Err() == nil {
				v.logger.Warn().Err(err).Msg("Reloading sequence numbers failed")
			}
		})
	})
	return g.Wait()
}

func (v *Viewer) reseed(ctx context.Context) error {
	info, err := v.c.Round(ctx, v.round)
	if err != nil {
		return err
	}
	for _, p := range info.Partitions {
		if p.SequenceNumber <= 0 {
			continue
		}
		if err := v.sync.Seed(ctx, p.Partition, p.SequenceNumber); err != nil {
			return err
		}
	}
	return nil
}
