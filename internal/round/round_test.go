package round

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/field/internal/core"
	fielderrors "github.com/23skdu/field/internal/errors"
	"github.com/23skdu/field/internal/kv"
)

func validConfig() Config {
	return Config{Size: 2, PartitionSize: 2, MineDensity: 0, PartitionPeriod: 5, Teams: 4}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"max layout", func(c *Config) { c.Size, c.PartitionSize = 5792, 1448 }, false},
		{"size zero", func(c *Config) { c.Size = 0 }, true},
		{"partition zero", func(c *Config) { c.PartitionSize = 0 }, true},
		{"partition too large", func(c *Config) { c.Size, c.PartitionSize = 2898, 1449 }, true},
		{"partition exceeds size", func(c *Config) { c.PartitionSize = 4 }, true},
		{"not divisible", func(c *Config) { c.Size, c.PartitionSize = 9, 2 }, true},
		{"five per side", func(c *Config) { c.Size, c.PartitionSize = 10, 2 }, true},
		{"density negative", func(c *Config) { c.MineDensity = -1 }, true},
		{"density over 100", func(c *Config) { c.MineDensity = 101 }, true},
		{"density 100", func(c *Config) { c.MineDensity = 100 }, false},
		{"period zero", func(c *Config) { c.PartitionPeriod = 0 }, true},
		{"one team", func(c *Config) { c.Teams = 1 }, true},
		{"bad id", func(c *Config) { c.ID = "a/b" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, fielderrors.IsType(err, fielderrors.ErrorTypeValidation))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMaxArea(t *testing.T) {
	assert.Equal(t, int64(5792*5792), MaxArea)
}

func TestMineField(t *testing.T) {
	none := NewMineField(1, 0)
	all := NewMineField(1, 100)
	half := NewMineField(42, 50)

	mines := 0
	for x := 0; x < 100; x++ {
		for y := 0; y < 100; y++ {
			xy := core.XY{X: x, Y: y}
			assert.False(t, none.IsMine(xy))
			assert.True(t, all.IsMine(xy))
			if half.IsMine(xy) {
				mines++
			}
			assert.Equal(t, half.IsMine(xy), NewMineField(42, 50).IsMine(xy))
		}
	}
	assert.InDelta(t, 5000, mines, 500)
}

func TestTeamFor(t *testing.T) {
	assert.Equal(t, TeamFor("alice", 4), TeamFor("alice", 4))
	for _, u := range []string{"a", "b", "c", "d", "e"} {
		assert.Less(t, uint8(TeamFor(u, 2)), uint8(2))
	}
	assert.Less(t, uint8(TeamFor("x", 0)), uint8(core.MaxTeams))
}

func TestRegistry_CreateGetEnd(t *testing.T) {
	store := kv.NewMemoryStore()
	cache, err := NewRistrettoCache(16, time.Minute)
	require.NoError(t, err)
	defer cache.Close()

	reg := NewRegistry(store, cache, zerolog.Nop())
	ctx := context.Background()

	cfg, err := reg.Create(ctx, Config{Size: 4, PartitionSize: 2})
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.ID)
	assert.NotZero(t, cfg.Seed)
	assert.Equal(t, DefaultPartitionPeriod, cfg.PartitionPeriod)
	assert.Equal(t, core.MaxTeams, cfg.Teams)

	got, err := reg.Get(ctx, cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, cfg.ID, got.ID)

	// A registry without cache reads through to the store.
	cold := NewRegistry(store, nil, zerolog.Nop())
	cur, err := cold.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, cfg.ID, cur.ID)
	assert.Equal(t, cfg.Seed, cur.Seed)

	ended, err := reg.End(ctx, cfg.ID, 2)
	require.NoError(t, err)
	assert.True(t, ended.Ended)
	require.NotNil(t, ended.Winner)
	assert.Equal(t, core.Team(2), *ended.Winner)

	again, err := reg.End(ctx, cfg.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, core.Team(2), *again.Winner)

	fromStore, err := cold.Get(ctx, cfg.ID)
	require.NoError(t, err)
	assert.True(t, fromStore.Ended)
}

func TestRegistry_Errors(t *testing.T) {
	reg := NewRegistry(kv.NewMemoryStore(), nil, zerolog.Nop())
	ctx := context.Background()

	_, err := reg.Get(ctx, "missing")
	var nf *core.ErrNotFound
	assert.ErrorAs(t, err, &nf)

	_, err = reg.Current(ctx)
	assert.ErrorAs(t, err, &nf)

	_, err = reg.Create(ctx, Config{Size: 3, PartitionSize: 2})
	assert.True(t, fielderrors.IsType(err, fielderrors.ErrorTypeValidation))
}
