package grid

import (
	"github.com/23skdu/field/internal/core"
)

// Field cells are 4 bits wide: visited, mine, then a 2-bit team.
const (
	FieldWidth = 4

	visitedBit uint8 = 1 << 3
	mineBit    uint8 = 1 << 2
	teamMask   uint8 = 0b11
)

// Placeholder marks a cell visited before its owner is known.
const Placeholder = visitedBit

// IsVisited reports whether a packed field value has been claimed.
func IsVisited(v uint8) bool {
	return v&visitedBit != 0
}

// PackCell encodes a cell into a FieldWidth value.
func PackCell(c core.Cell) uint8 {
	switch c.State {
	case core.CellClaimed:
		return visitedBit | uint8(c.Team)&teamMask
	case core.CellMine:
		return visitedBit | mineBit | uint8(c.Team)&teamMask
	default:
		return 0
	}
}

// UnpackCell decodes a FieldWidth value.
func UnpackCell(v uint8) core.Cell {
	if !IsVisited(v) {
		return core.Cell{}
	}
	c := core.Cell{State: core.CellClaimed, Team: core.Team(v & teamMask)}
	if v&mineBit != 0 {
		c.State = core.CellMine
	}
	return c
}

// PackDelta returns the value a delta writes into the field.
func PackDelta(d core.Delta) uint8 {
	state := core.CellClaimed
	if d.IsMine {
		state = core.CellMine
	}
	return PackCell(core.Cell{State: state, Team: d.Team})
}

// DeltaFromValue builds the delta for a cell whose packed value is v.
func DeltaFromValue(xy core.XY, v uint8) core.Delta {
	c := UnpackCell(v)
	return core.Delta{XY: xy, Team: c.Team, IsMine: c.State == core.CellMine}
}

// Cells decodes every cell of a partition in row-major order.
// The grid must use FieldWidth.
func (g *PackedGrid) Cells(pxy core.PartitionXY) ([]core.Cell, error) {
	buf, err := g.Partition(pxy)
	if err != nil {
		return nil, err
	}
	return CellsFromBytes(buf, g.layout.CellsPerPartition()), nil
}

// CellsFromBytes decodes n FieldWidth cells from raw partition bytes. Missing
// trailing bytes read as hidden cells.
func CellsFromBytes(buf []byte, n int) []core.Cell {
	full := make([]byte, ByteLen(n, FieldWidth))
	copy(full, buf)
	cells := make([]core.Cell, n)
	for i := range cells {
		cells[i] = UnpackCell(ReadBits(full, i, FieldWidth))
	}
	return cells
}

// ApplyCells overwrites a whole partition with decoded cells.
func (g *PackedGrid) ApplyCells(pxy core.PartitionXY, cells []core.Cell) error {
	if len(cells) != g.layout.CellsPerPartition() {
		return core.NewInvalidArgumentError("cells", "length does not match partition")
	}
	buf := make([]byte, ByteLen(len(cells), g.width))
	for i, c := range cells {
		WriteBits(buf, i, g.width, PackCell(c))
	}
	return g.LoadPartition(pxy, buf)
}

// ApplyDeltas writes each delta into the grid.
func (g *PackedGrid) ApplyDeltas(deltas []core.Delta) error {
	for _, d := range deltas {
		if err := g.Set(d.XY, PackDelta(d)); err != nil {
			return err
		}
	}
	return nil
}
