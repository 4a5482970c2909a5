package round

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"

	"github.com/23skdu/field/internal/core"
)

// MineField decides which cells hide a mine. The decision is a pure function
// of the round seed and the coordinate, so every process agrees without
// storing the layout.
type MineField struct {
	seed    uint64
	density int
}

// NewMineField builds a layout where roughly density percent of cells are mines.
func NewMineField(seed uint64, density int) MineField {
	return MineField{seed: seed, density: density}
}

func (m MineField) IsMine(xy core.XY) bool {
	if m.density <= 0 {
		return false
	}
	if m.density >= 100 {
		return true
	}
	var b [24]byte
	binary.LittleEndian.PutUint64(b[0:], m.seed)
	binary.LittleEndian.PutUint64(b[8:], uint64(xy.X))
	binary.LittleEndian.PutUint64(b[16:], uint64(xy.Y))
	return xxhash.Sum64(b[:])%100 < uint64(m.density)
}

// TeamFor assigns a user to one of teams teams.
func TeamFor(userID string, teams int) core.Team {
	if teams < 1 {
		teams = core.MaxTeams
	}
	return core.Team(xxhash.Sum64String(userID) % uint64(teams))
}
