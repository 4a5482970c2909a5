package score

import (
	"context"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/field/internal/core"
	"github.com/23skdu/field/internal/kv"
	"github.com/23skdu/field/internal/round"
)

func ts(pairs ...int64) []core.TeamScore {
	out := make([]core.TeamScore, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, core.TeamScore{Team: core.Team(pairs[i]), Score: pairs[i+1]})
	}
	return out
}

func TestDecide(t *testing.T) {
	team := func(t core.Team) *core.Team { return &t }

	tests := []struct {
		name      string
		scores    []core.TeamScore
		size      int
		over      bool
		winner    *core.Team
		remaining int64
		pct       int
	}{
		{"all zero", ts(0, 0, 1, 0), 10, false, nil, 100, 100},
		{"unreachable lead", ts(0, 60, 1, 5), 10, true, team(0), 35, 35},
		{"lead below remaining", ts(0, 40, 1, 20), 10, false, nil, 40, 40},
		{"tie at zero remaining", ts(0, 50, 1, 50), 10, true, team(0), 0, 0},
		{"tie picks lower team regardless of input order", ts(3, 8, 2, 8), 4, true, team(2), 0, 0},
		{"second team leads", ts(0, 1, 1, 3, 2, 0), 2, true, team(1), 0, 0},
		{"rounding", ts(0, 1, 1, 0), 3, false, nil, 8, 89},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, err := Decide(tt.scores, tt.size)
			require.NoError(t, err)
			assert.Equal(t, tt.over, snap.IsOver)
			assert.Equal(t, tt.winner, snap.Winner)
			assert.Equal(t, tt.remaining, snap.Remaining)
			assert.Equal(t, tt.pct, snap.RemainingPercentage)
		})
	}
}

func TestDecide_TooFewTeams(t *testing.T) {
	_, err := Decide(ts(0, 5), 10)
	assert.ErrorIs(t, err, ErrTooFewTeams)
	_, err = Decide(nil, 10)
	assert.ErrorIs(t, err, ErrTooFewTeams)
}

func TestDecide_DoesNotReorderInput(t *testing.T) {
	in := ts(1, 1, 0, 9)
	_, err := Decide(in, 10)
	require.NoError(t, err)
	assert.Equal(t, core.Team(1), in[0].Team)
}

func TestDecide_Properties(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	properties := gopter.NewProperties(params)

	properties.Property("winner set iff over, ranking sorted", prop.ForAll(
		func(a, b, c uint16) bool {
			size := 300
			snap, err := Decide(ts(0, int64(a), 1, int64(b), 2, int64(c)), size)
			if err != nil {
				return false
			}
			for i := 1; i < len(snap.Scores); i++ {
				if snap.Scores[i-1].Score < snap.Scores[i].Score {
					return false
				}
			}
			if (snap.Winner != nil) != snap.IsOver {
				return false
			}
			return snap.RemainingPercentage >= 0 && snap.RemainingPercentage <= 100
		},
		gen.UInt16Range(0, 30000),
		gen.UInt16Range(0, 30000),
		gen.UInt16Range(0, 30000),
	))

	properties.TestingRun(t)
}

func seedTallies(t *testing.T, store kv.Store, cfg round.Config, tallies map[core.PartitionXY]map[string]int64) {
	t.Helper()
	ctx := context.Background()
	for pxy, m := range tallies {
		for field, n := range m {
			_, err := store.HIncrBy(ctx, kv.TallyKey(cfg.ID, pxy), field, n)
			require.NoError(t, err)
		}
	}
}

func TestEngine_Precise(t *testing.T) {
	store := kv.NewMemoryStore()
	cfg := round.Config{ID: "r1", Size: 4, PartitionSize: 2, Teams: 2}
	seedTallies(t, store, cfg, map[core.PartitionXY]map[string]int64{
		{X: 0, Y: 0}: {"0": 4},
		{X: 1, Y: 0}: {"0": 3, "1": 1},
		{X: 1, Y: 1}: {"1": 2, "bogus": 7},
	})

	e := NewEngine(store, time.Second, zerolog.Nop())
	snap, err := e.Precise(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, ts(0, 7, 1, 3), snap.Scores)
	assert.Equal(t, int64(6), snap.Remaining)
	assert.False(t, snap.IsOver)

	seedTallies(t, store, cfg, map[core.PartitionXY]map[string]int64{{X: 0, Y: 1}: {"0": 3}})
	snap, err = e.Precise(context.Background(), cfg)
	require.NoError(t, err)
	assert.True(t, snap.IsOver)
	assert.Equal(t, core.Team(0), *snap.Winner)
}

func TestEngine_FastIsCached(t *testing.T) {
	store := kv.NewMemoryStore()
	ctx := context.Background()
	cfg := round.Config{ID: "r2", Size: 10, PartitionSize: 10, Teams: 4}
	_, err := store.HIncrBy(ctx, kv.LeaderboardKey(cfg.ID), "2", 5)
	require.NoError(t, err)

	e := NewEngine(store, time.Hour, zerolog.Nop())
	snap, err := e.Fast(ctx, cfg)
	require.NoError(t, err)
	require.Len(t, snap.Scores, 4)
	assert.Equal(t, core.TeamScore{Team: 2, Score: 5}, snap.Scores[0])

	_, err = store.HIncrBy(ctx, kv.LeaderboardKey(cfg.ID), "1", 50)
	require.NoError(t, err)
	snap, err = e.Fast(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, core.Team(2), snap.Scores[0].Team, "served from cache")

	precise, err := e.Precise(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, int64(0), precise.Scores[0].Score, "no partition tallies were written")
}
