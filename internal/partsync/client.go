package partsync

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/23skdu/field/internal/codec"
	"github.com/23skdu/field/internal/core"
	"github.com/23skdu/field/internal/grid"
	"github.com/23skdu/field/internal/metrics"
	"github.com/23skdu/field/internal/storage"
)

// Config tunes reconciliation. Zero fields take the defaults.
type Config struct {
	MaxInflight              int           `envconfig:"MAX_INFLIGHT" default:"4"`
	PollInterval             time.Duration `envconfig:"POLL_INTERVAL" default:"1s"`
	GuessAfter               time.Duration `envconfig:"GUESS_AFTER" default:"5s"`
	GuessOffset              time.Duration `envconfig:"GUESS_OFFSET" default:"500ms"`
	GuessCadence             time.Duration `envconfig:"GUESS_CADENCE" default:"1s"`
	MaxPatchesWithoutReplace int64         `envconfig:"MAX_PATCHES_WITHOUT_REPLACE" default:"120"`
	MaxDroppedPatches        int64         `envconfig:"MAX_DROPPED_PATCHES" default:"3"`
	RingSize                 int           `envconfig:"RING_SIZE" default:"8"`
	NotifyBuffer             int           `envconfig:"NOTIFY_BUFFER" default:"256"`
}

func (c Config) withDefaults() Config {
	if c.MaxInflight <= 0 {
		c.MaxInflight = 4
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.GuessAfter <= 0 {
		c.GuessAfter = 5 * time.Second
	}
	if c.GuessCadence <= 0 {
		c.GuessCadence = time.Second
	}
	if c.MaxPatchesWithoutReplace <= 0 {
		c.MaxPatchesWithoutReplace = 120
	}
	if c.MaxDroppedPatches < 0 {
		c.MaxDroppedPatches = 0
	}
	if c.RingSize <= 0 {
		c.RingSize = 8
	}
	if c.NotifyBuffer <= 0 {
		c.NotifyBuffer = 256
	}
	return c
}

// Round describes the round a session follows.
type Round struct {
	ID              string
	Size            int
	PartitionSize   int
	PartitionPeriod int
}

type result struct {
	fetch Fetch
	err   error
}

type seed struct {
	pxy core.PartitionXY
	seq int64
}

type stateQuery struct {
	pxy   core.PartitionXY
	reply chan stateReply
}

type stateReply struct {
	state State
	ok    bool
}

// Client reconciles one round session. All state is owned by the Run loop;
// the other methods hand work to it over channels. Fetches run on a bounded
// group that is cancelled as a whole when Run returns.
type Client struct {
	cfg     Config
	round   Round
	fetcher storage.Fetcher
	grid    *grid.PackedGrid
	logger  zerolog.Logger
	now     func() time.Time

	notes   chan core.Notification
	seeds   chan seed
	visible chan []core.PartitionXY
	queries chan stateQuery
	results chan result

	// Owned by the Run loop.
	states   map[core.PartitionXY]*State
	shown    map[core.PartitionXY]bool
	inflight int
}

func NewClient(cfg Config, rnd Round, fetcher storage.Fetcher, logger zerolog.Logger) (*Client, error) {
	cfg = cfg.withDefaults()
	if rnd.PartitionPeriod < 1 {
		return nil, core.NewInvalidArgumentError("partitionPeriod", "must be >= 1")
	}
	g, err := grid.New(rnd.Size, rnd.PartitionSize, grid.FieldWidth)
	if err != nil {
		return nil, err
	}
	return &Client{
		cfg:     cfg,
		round:   rnd,
		fetcher: fetcher,
		grid:    g,
		logger:  logger.With().Str("component", "partsync").Str("round", rnd.ID).Logger(),
		now:     time.Now,
		notes:   make(chan core.Notification, cfg.NotifyBuffer),
		seeds:   make(chan seed, 64),
		visible: make(chan []core.PartitionXY, 1),
		queries: make(chan stateQuery),
		results: make(chan result, cfg.MaxInflight),
		states:  make(map[core.PartitionXY]*State),
		shown:   make(map[core.PartitionXY]bool),
	}, nil
}

// WithClock replaces the time source. Call before Run.
func (c *Client) WithClock(now func() time.Time) *Client {
	c.now = now
	return c
}

// Grid is the render grid blobs are applied to.
func (c *Client) Grid() *grid.PackedGrid { return c.grid }

// Notify hands over a notification. It never blocks; when the queue is full
// the notification is lost like any other dropped message.
func (c *Client) Notify(n core.Notification) {
	if n.Round != "" && n.Round != c.round.ID {
		return
	}
	select {
	case c.notes <- n:
	default:
		metrics.PubsubMessagesTotal.WithLabelValues("dropped").Inc()
	}
}

// Seed provides a known published sequence for a partition.
func (c *Client) Seed(ctx context.Context, pxy core.PartitionXY, seq int64) error {
	select {
	case c.seeds <- seed{pxy: pxy, seq: seq}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetVisible replaces the set of partitions in the viewport. Only the latest
// call matters.
func (c *Client) SetVisible(pxys []core.PartitionXY) {
	cp := append([]core.PartitionXY(nil), pxys...)
	for {
		select {
		case c.visible <- cp:
			return
		default:
		}
		select {
		case <-c.visible:
		default:
		}
	}
}

// State returns a copy of a partition's state, read through the loop.
func (c *Client) State(ctx context.Context, pxy core.PartitionXY) (State, bool, error) {
	q := stateQuery{pxy: pxy, reply: make(chan stateReply, 1)}
	select {
	case c.queries <- q:
	case <-ctx.Done():
		return State{}, false, ctx.Err()
	}
	select {
	case r := <-q.reply:
		return r.state, r.ok, nil
	case <-ctx.Done():
		return State{}, false, ctx.Err()
	}
}

// Run drives reconciliation until ctx is done and waits for in-flight
// fetches to stop.
func (c *Client) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	var fetches errgroup.Group
	fetches.SetLimit(c.cfg.MaxInflight)
	defer func() {
		cancel()
		_ = fetches.Wait()
		metrics.SyncInflightFetches.Sub(float64(c.inflight))
		c.inflight = 0
	}()

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n := <-c.notes:
			c.observe(n)
		case s := <-c.seeds:
			c.state(s.pxy).Seed(s.seq, c.now())
		case v := <-c.visible:
			c.shown = make(map[core.PartitionXY]bool, len(v))
			for _, pxy := range v {
				c.shown[pxy] = true
				c.state(pxy)
			}
		case r := <-c.results:
			c.complete(r)
		case q := <-c.queries:
			var reply stateReply
			if st, ok := c.states[q.pxy]; ok {
				reply = stateReply{state: *st, ok: true}
				reply.state.ring = nil
				if st.Avail != nil {
					a := *st.Avail
					reply.state.Avail = &a
				}
			}
			q.reply <- reply
			continue
		case <-ticker.C:
		}
		c.schedule(ctx, &fetches)
	}
}

func (c *Client) state(pxy core.PartitionXY) *State {
	st, ok := c.states[pxy]
	if !ok {
		st = newState(c.cfg.RingSize)
		c.states[pxy] = st
	}
	return st
}

func (c *Client) observe(n core.Notification) {
	if !c.grid.Layout().ContainsPartition(n.Partition) {
		c.logger.Debug().Str("partition", n.Partition.String()).Msg("Ignoring notification outside the field")
		return
	}
	if dropped := c.state(n.Partition).Observe(n, c.now()); dropped > 0 {
		metrics.SyncDroppedPatchesTotal.Add(float64(dropped))
	}
}

// schedule starts fetches for visible partitions while capacity remains.
func (c *Client) schedule(ctx context.Context, fetches *errgroup.Group) {
	now := c.now()
	period := int64(c.round.PartitionPeriod)
	for pxy := range c.shown {
		if c.inflight >= c.cfg.MaxInflight {
			return
		}
		st := c.state(pxy)
		f, ok := st.Plan(pxy, c.cfg, period, now)
		if !ok {
			continue
		}
		if !fetches.TryGo(func() error {
			c.fetch(ctx, f)
			return nil
		}) {
			return
		}
		st.Start(f)
		c.inflight++
		metrics.SyncInflightFetches.Inc()
	}
}

func (c *Client) fetch(ctx context.Context, f Fetch) {
	key := storage.BlobKey{Round: c.round.ID, Partition: f.Partition, Seq: f.Seq, Kind: f.Kind}
	data, err := c.fetcher.Fetch(ctx, key)
	if err == nil {
		err = c.apply(f, data)
	}
	select {
	case c.results <- result{fetch: f, err: err}:
	case <-ctx.Done():
	}
}

func (c *Client) apply(f Fetch, data []byte) error {
	if f.Kind == core.KindReplace {
		return codec.DecodeInto(c.grid, f.Partition, data)
	}
	deltas, err := codec.DecodeDeltas(f.Partition, c.round.PartitionSize, data)
	if err != nil {
		return err
	}
	return c.grid.ApplyDeltas(deltas)
}

func (c *Client) complete(r result) {
	c.inflight--
	metrics.SyncInflightFetches.Dec()

	st := c.state(r.fetch.Partition)
	logger := c.logger.With().
		Str("partition", r.fetch.Partition.String()).
		Str("kind", string(r.fetch.Kind)).
		Int64("seq", r.fetch.Seq).
		Logger()

	switch {
	case r.err == nil:
		st.Succeed(r.fetch)
		metrics.SyncFetchesTotal.WithLabelValues(string(r.fetch.Kind), "ok").Inc()
	case errors.Is(r.err, storage.ErrNotFound):
		st.Fail(r.fetch, true)
		metrics.SyncFetchesTotal.WithLabelValues(string(r.fetch.Kind), "not_found").Inc()
	default:
		st.Fail(r.fetch, false)
		metrics.SyncFetchesTotal.WithLabelValues(string(r.fetch.Kind), "error").Inc()
		logger.Warn().Err(r.err).Bool("guessed", r.fetch.Guessed).Msg("Partition fetch failed")
	}
}
