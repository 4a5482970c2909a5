package grid

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/field/internal/core"
)

// TestBitsProperties checks set-then-get for every width and that neighbours survive.
func TestBitsProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("WriteBits then ReadBits round-trips and leaves neighbours", prop.ForAll(
		func(w int, idx int, raw uint8, fill uint8) bool {
			const cells = 64
			buf := make([]byte, ByteLen(cells, w))
			mask := uint8(1<<w - 1)
			for i := 0; i < cells; i++ {
				WriteBits(buf, i, w, fill&mask)
			}
			v := raw & mask
			WriteBits(buf, idx, w, v)
			if ReadBits(buf, idx, w) != v {
				return false
			}
			for i := 0; i < cells; i++ {
				if i != idx && ReadBits(buf, i, w) != fill&mask {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, MaxWidth),
		gen.IntRange(0, 63),
		gen.UInt8(),
		gen.UInt8(),
	))

	properties.TestingRun(t)
}

func TestWriteBits_ReturnsPrevious(t *testing.T) {
	buf := make([]byte, ByteLen(10, 3))
	assert.Equal(t, uint8(0), WriteBits(buf, 5, 3, 6))
	assert.Equal(t, uint8(6), WriteBits(buf, 5, 3, 1))
	assert.Equal(t, uint8(1), ReadBits(buf, 5, 3))
}

func TestBits_LastCellInFinalByte(t *testing.T) {
	// 3 cells of width 5 occupy 15 bits; the final cell ends inside byte 1.
	buf := make([]byte, ByteLen(3, 5))
	require.Len(t, buf, 2)
	WriteBits(buf, 2, 5, 0b10101)
	assert.Equal(t, uint8(0b10101), ReadBits(buf, 2, 5))
	assert.Equal(t, uint8(0), ReadBits(buf, 1, 5))
}

func TestPackedGrid_GetSet(t *testing.T) {
	for w := 1; w <= MaxWidth; w++ {
		g, err := New(12, 4, w)
		require.NoError(t, err)

		top := uint8(1<<w - 1)
		require.NoError(t, g.Set(core.XY{X: 5, Y: 7}, top))
		v, err := g.Get(core.XY{X: 5, Y: 7})
		require.NoError(t, err)
		assert.Equal(t, top, v, "width %d", w)

		for _, n := range []core.XY{{X: 4, Y: 7}, {X: 6, Y: 7}, {X: 5, Y: 6}, {X: 5, Y: 8}} {
			v, err := g.Get(n)
			require.NoError(t, err)
			assert.Zero(t, v, "width %d neighbour %s", w, n)
		}
	}
}

func TestPackedGrid_OutOfBounds(t *testing.T) {
	g, err := New(8, 4, FieldWidth)
	require.NoError(t, err)

	for _, xy := range []core.XY{{X: -1, Y: 0}, {X: 0, Y: -1}, {X: 8, Y: 0}, {X: 0, Y: 8}} {
		_, err := g.Get(xy)
		var oob *core.ErrOutOfBounds
		assert.ErrorAs(t, err, &oob, "get %s", xy)
		assert.ErrorAs(t, g.Set(xy, 1), &oob, "set %s", xy)
	}
}

func TestPackedGrid_RejectsWideValue(t *testing.T) {
	g, err := New(4, 4, 2)
	require.NoError(t, err)
	assert.Error(t, g.Set(core.XY{}, 4))
}

func TestPackedGrid_InvalidWidth(t *testing.T) {
	_, err := New(4, 4, 0)
	assert.Error(t, err)
	_, err = New(4, 4, 9)
	assert.Error(t, err)
}

func TestPackedGrid_PartitionRoundTrip(t *testing.T) {
	g, err := New(8, 4, FieldWidth)
	require.NoError(t, err)
	require.NoError(t, g.Set(core.XY{X: 6, Y: 5}, 9))

	pxy := core.PartitionXY{X: 1, Y: 1}
	buf, err := g.Partition(pxy)
	require.NoError(t, err)

	other, err := New(8, 4, FieldWidth)
	require.NoError(t, err)
	require.NoError(t, other.LoadPartition(pxy, buf[:len(buf)-1]))
	v, err := other.Get(core.XY{X: 6, Y: 5})
	require.NoError(t, err)
	assert.Equal(t, uint8(9), v)

	assert.Error(t, other.LoadPartition(pxy, make([]byte, len(buf)+1)))
	_, err = other.Partition(core.PartitionXY{X: 2, Y: 0})
	assert.Error(t, err)
}

func TestLayout_Validation(t *testing.T) {
	tests := []struct {
		name         string
		size, partSz int
		wantErr      bool
	}{
		{"single cell", 1, 1, false},
		{"2x2 grid", 2, 2, false},
		{"four per side", 5792, 1448, false},
		{"zero size", 0, 1, true},
		{"zero partition", 4, 0, true},
		{"partition too big", 2000, 1449, true},
		{"partition exceeds size", 4, 8, true},
		{"not divisible", 10, 3, true},
		{"five per side", 10, 2, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLayout(tt.size, tt.partSz)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLayout_Locate(t *testing.T) {
	l, err := NewLayout(1600, 800)
	require.NoError(t, err)

	pxy, local, err := l.Locate(core.XY{X: 801, Y: 2})
	require.NoError(t, err)
	assert.Equal(t, core.PartitionXY{X: 1, Y: 0}, pxy)
	assert.Equal(t, 2*800+1, local)
	assert.Equal(t, core.XY{X: 801, Y: 2}, l.XYAt(pxy, local))
	assert.Equal(t, core.XY{X: 800, Y: 0}, l.Origin(pxy))
	assert.Len(t, l.Partitions(), 4)
	assert.Equal(t, int64(1600*1600), l.Area())
}

func TestCellPacking(t *testing.T) {
	cells := []core.Cell{
		{},
		{State: core.CellClaimed, Team: 0},
		{State: core.CellClaimed, Team: 3},
		{State: core.CellMine, Team: 2},
	}
	for _, c := range cells {
		assert.Equal(t, c, UnpackCell(PackCell(c)))
	}
	assert.True(t, IsVisited(Placeholder))
	assert.Equal(t, core.Cell{State: core.CellClaimed, Team: 0}, UnpackCell(Placeholder))

	d := core.Delta{XY: core.XY{X: 1, Y: 1}, Team: 2, IsMine: true}
	assert.Equal(t, d, DeltaFromValue(d.XY, PackDelta(d)))
}

func TestPackedGrid_ApplyCellsAndDeltas(t *testing.T) {
	g, err := New(4, 2, FieldWidth)
	require.NoError(t, err)

	pxy := core.PartitionXY{X: 1, Y: 0}
	cells := []core.Cell{{}, {State: core.CellClaimed, Team: 1}, {State: core.CellMine, Team: 3}, {}}
	require.NoError(t, g.ApplyCells(pxy, cells))
	got, err := g.Cells(pxy)
	require.NoError(t, err)
	assert.Equal(t, cells, got)

	require.NoError(t, g.ApplyDeltas([]core.Delta{{XY: core.XY{X: 0, Y: 3}, Team: 2}}))
	v, err := g.Get(core.XY{X: 0, Y: 3})
	require.NoError(t, err)
	assert.Equal(t, core.Cell{State: core.CellClaimed, Team: 2}, UnpackCell(v))

	assert.Error(t, g.ApplyCells(pxy, cells[:3]))
}
