package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/23skdu/field/client"
	"github.com/23skdu/field/internal/core"
	"github.com/23skdu/field/internal/round"
)

var (
	addr        = flag.String("addr", "http://127.0.0.1:8080", "Base URL of the field API")
	duration    = flag.Duration("duration", 10*time.Second, "Duration of the benchmark")
	concurrency = flag.Int("concurrency", 1, "Number of concurrent workers")
	mode        = flag.String("mode", "claim", "Benchmark mode: 'claim' or 'score'")
	batchSize   = flag.Int("batch-size", 16, "Number of coordinates per claim (claim mode)")
	create      = flag.Int("create", 0, "Create a round of this size before starting (0 uses the current round)")
)

func main() {
	flag.Parse()

	fmt.Printf("Starting benchmark:\n")
	fmt.Printf("  Mode:        %s\n", *mode)
	fmt.Printf("  Address:     %s\n", *addr)
	fmt.Printf("  Concurrency: %d\n", *concurrency)
	fmt.Printf("  Duration:    %s\n", *duration)
	fmt.Printf("  Batch Size:  %d\n", *batchSize)

	ctx, cancel := context.WithTimeout(context.Background(), *duration+5*time.Second)
	defer cancel()

	admin := client.New(*addr, client.WithUser("bench-admin"))
	cfg, err := target(ctx, admin)
	if err != nil {
		log.Fatalf("No round to benchmark: %v", err)
	}
	fmt.Printf("  Round:       %s (%dx%d)\n", cfg.ID, cfg.Size, cfg.Size)

	var ops atomic.Int64
	var errors atomic.Int64
	var throttled atomic.Int64
	var claimed atomic.Int64
	var latency sumLatency

	start := time.Now()
	var wg sync.WaitGroup

	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()

			rng := rand.New(rand.NewSource(int64(id) + start.UnixNano()))
			c := client.New(*addr, client.WithUser(uuid.NewString()))
			endTime := start.Add(*duration)

			for time.Now().Before(endTime) {
				t0 := time.Now()
				var err error

				switch *mode {
				case "claim":
					var n int
					n, err = runClaim(ctx, c, cfg, rng)
					claimed.Add(int64(n))
				case "score":
					_, err = c.Score(ctx, cfg.ID, false)
				default:
					log.Printf("Unknown mode: %s", *mode)
					return
				}

				latency.Record(time.Since(t0))

				switch {
				case err == nil:
					ops.Add(1)
				case client.IsEliminated(err):
					// A mine took this player out; carry on as someone new.
					c = client.New(*addr, client.WithUser(uuid.NewString()))
					ops.Add(1)
				case client.IsRateLimited(err):
					throttled.Add(1)
				case client.IsRoundOver(err):
					log.Printf("Worker %d: round %s is over", id, cfg.ID)
					return
				default:
					errors.Add(1)
				}
			}
		}(i)
	}

	wg.Wait()
	printResults(time.Since(start), ops.Load(), errors.Load(), &latency)
	fmt.Printf("Throttled:   %d\n", throttled.Load())
	if *mode == "claim" {
		fmt.Printf("Claimed:     %d cells\n", claimed.Load())
	}
}

func target(ctx context.Context, c *client.Client) (round.Config, error) {
	if *create > 0 {
		ps := *create
		if ps%4 == 0 {
			ps /= 4
		}
		return c.CreateRound(ctx, round.Config{Size: *create, PartitionSize: ps})
	}
	resp, err := c.Round(ctx, "current")
	return resp.Round, err
}

// runClaim claims a batch of random coordinates and returns how many were won.
func runClaim(ctx context.Context, c *client.Client, cfg round.Config, rng *rand.Rand) (int, error) {
	coords := make([]core.XY, *batchSize)
	for i := range coords {
		coords[i] = core.XY{X: rng.Intn(cfg.Size), Y: rng.Intn(cfg.Size)}
	}
	resp, err := c.Claim(ctx, cfg.ID, coords)
	if err != nil {
		return 0, err
	}
	return resp.Claimed, nil
}

// Latency tracking
type sumLatency struct {
	totalNs atomic.Int64
	count   atomic.Int64
	maxNs   atomic.Int64
}

func (l *sumLatency) Record(d time.Duration) {
	ns := d.Nanoseconds()
	l.totalNs.Add(ns)
	l.count.Add(1)

	for {
		current := l.maxNs.Load()
		if ns <= current {
			break
		}
		if l.maxNs.CompareAndSwap(current, ns) {
			break
		}
	}
}

func printResults(d time.Duration, ops int64, errs int64, l *sumLatency) {
	seconds := d.Seconds()
	throughput := float64(ops) / seconds

	var avgLatency time.Duration
	if count := l.count.Load(); count > 0 {
		avgLatency = time.Duration(l.totalNs.Load() / count)
	}
	maxLatency := time.Duration(l.maxNs.Load())

	fmt.Println("\n--- Results ---")
	fmt.Printf("Elapsed:     %.2fs\n", seconds)
	fmt.Printf("Total Ops:   %d\n", ops)
	fmt.Printf("Errors:      %d\n", errs)
	fmt.Printf("Throughput:  %.2f ops/sec\n", throughput)
	fmt.Printf("Avg Latency: %v\n", avgLatency)
	fmt.Printf("Max Latency: %v\n", maxLatency)
}
