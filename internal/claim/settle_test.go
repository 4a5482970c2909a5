package claim

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/field/internal/core"
	"github.com/23skdu/field/internal/kv"
	"github.com/23skdu/field/internal/round"
)

func TestSettle_TalliesAndElimination(t *testing.T) {
	store := kv.NewMemoryStore()
	settler := NewSettler(store, zerolog.Nop())
	ctx := context.Background()
	cfg := round.Config{ID: "r1", Size: 8, PartitionSize: 4, Teams: 4, PartitionPeriod: 1}

	out, err := settler.Settle(ctx, "u1", cfg, []core.Delta{
		{XY: core.XY{X: 0, Y: 0}, Team: 1},
		{XY: core.XY{X: 1, Y: 0}, Team: 1},
		{XY: core.XY{X: 5, Y: 5}, Team: 1, IsMine: true},
	})
	require.NoError(t, err)
	assert.Equal(t, Outcome{Claimed: 3, Mines: 1, Eliminated: true}, out)

	t00, _ := store.HGetAll(ctx, kv.TallyKey("r1", core.PartitionXY{}))
	assert.Equal(t, map[string]int64{"1": 2}, t00)
	t11, _ := store.HGetAll(ctx, kv.TallyKey("r1", core.PartitionXY{X: 1, Y: 1}))
	assert.Equal(t, map[string]int64{"1": 1}, t11)
	lb, _ := store.HGetAll(ctx, kv.LeaderboardKey("r1"))
	assert.Equal(t, map[string]int64{"1": 3}, lb)

	gone, _ := store.SIsMember(ctx, kv.EliminatedKey("r1"), "u1")
	assert.True(t, gone)
}

func TestSettle_Empty(t *testing.T) {
	settler := NewSettler(kv.NewMemoryStore(), zerolog.Nop())
	out, err := settler.Settle(context.Background(), "u", round.Config{ID: "r", Size: 2, PartitionSize: 2}, nil)
	require.NoError(t, err)
	assert.Zero(t, out)
}

func TestSettle_RejectsForeignDelta(t *testing.T) {
	settler := NewSettler(kv.NewMemoryStore(), zerolog.Nop())
	_, err := settler.Settle(context.Background(), "u", round.Config{ID: "r", Size: 2, PartitionSize: 2},
		[]core.Delta{{XY: core.XY{X: 9, Y: 9}}})
	assert.Error(t, err)
}
