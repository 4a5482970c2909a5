package codec

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/field/internal/core"
	"github.com/23skdu/field/internal/grid"
)

func claimed(team core.Team) core.Cell { return core.Cell{State: core.CellClaimed, Team: team} }
func mine(team core.Team) core.Cell    { return core.Cell{State: core.CellMine, Team: team} }

func repeat(c core.Cell, n int) []core.Cell {
	out := make([]core.Cell, n)
	for i := range out {
		out[i] = c
	}
	return out
}

func roundTrip(t *testing.T, cells []core.Cell) []byte {
	t.Helper()
	buf, err := EncodeSnapshot(context.Background(), cells)
	require.NoError(t, err)
	out, err := DecodeSnapshot(buf)
	require.NoError(t, err)
	require.Equal(t, len(cells), len(out))
	assert.Equal(t, cells, out)
	return buf
}

func TestSnapshot_ExactBytes(t *testing.T) {
	tests := []struct {
		name  string
		cells []core.Cell
		want  []byte
	}{
		{
			name:  "empty",
			cells: []core.Cell{},
			want:  []byte{0, 0, 0, 0, 0, 0},
		},
		{
			name:  "group first cell least significant",
			cells: []core.Cell{claimed(1), {}, mine(2)},
			want:  []byte{0, 0, 3, 0, 0, 1, 1 + 2*9, 0b01_10_0000},
		},
		{
			name:  "short run of six claimed",
			cells: repeat(claimed(3), 6),
			want:  []byte{0, 0, 6, 0, 0, 1, 244 + 3, 0xFF, 0xF0},
		},
		{
			name:  "short run of eight mines",
			cells: repeat(mine(0), 8),
			want:  []byte{0, 0, 8, 0, 0, 1, 244 + 6 + 2, 0, 0},
		},
		{
			name:  "long run of nine hidden",
			cells: repeat(core.Cell{}, 9),
			want:  []byte{0, 0, 9, 0, 0, 2, 253, 0},
		},
		{
			name:  "five hidden is a group",
			cells: repeat(core.Cell{}, 5),
			want:  []byte{0, 0, 5, 0, 0, 1, 0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := roundTrip(t, tt.cells)
			assert.Equal(t, tt.want, buf)
		})
	}
}

func TestSnapshot_RunBoundaries(t *testing.T) {
	for _, n := range []int{1, 4, 5, 6, 7, 8, 9, 10, 263, 264, 265, 528, 529, 1000} {
		for _, c := range []core.Cell{{}, claimed(2), mine(1)} {
			roundTrip(t, repeat(c, n))

			// Surround the run with different cells so groups and runs interleave.
			mixed := append([]core.Cell{claimed(0), mine(3)}, repeat(c, n)...)
			mixed = append(mixed, claimed(1), core.Cell{}, mine(2))
			roundTrip(t, mixed)
		}
	}
}

func TestSnapshot_RunLengthBytes(t *testing.T) {
	buf := roundTrip(t, repeat(claimed(1), 264))
	assert.Equal(t, []byte{254, 255}, buf[6:8])

	// 265 identical cells: a capped run of 264 then a one-cell group.
	buf = roundTrip(t, repeat(core.Cell{}, 265))
	assert.Equal(t, []byte{0, 0, 3}, buf[3:6])
	assert.Equal(t, []byte{253, 255, 0}, buf[6:9])
}

func TestSnapshot_TeamBreaksRun(t *testing.T) {
	cells := append(repeat(claimed(1), 3), repeat(claimed(2), 3)...)
	buf := roundTrip(t, cells)
	// No run of six identical (trit, team) pairs: two groups.
	assert.Equal(t, []byte{0, 0, 2}, buf[3:6])
}

func TestSnapshot_HiddenTeamIgnored(t *testing.T) {
	cells := []core.Cell{{Team: 3}, {Team: 1}, {}, {}, {}, {}}
	buf, err := EncodeSnapshot(context.Background(), cells)
	require.NoError(t, err)
	out, err := DecodeSnapshot(buf)
	require.NoError(t, err)
	assert.Equal(t, repeat(core.Cell{}, 6), out)
	assert.Equal(t, byte(244), buf[6])
}

func TestSnapshot_StrictDecode(t *testing.T) {
	valid, err := EncodeSnapshot(context.Background(), []core.Cell{claimed(1), {}, mine(2), claimed(3)})
	require.NoError(t, err)

	tests := []struct {
		name string
		buf  []byte
		want error
	}{
		{"short header", []byte{0, 0, 1}, ErrTruncated},
		{"section 1 past end", []byte{0, 0, 1, 0, 0, 5, 0}, ErrTruncated},
		{"section 1 ends early", []byte{0, 0, 10, 0, 0, 1, 0}, ErrTruncated},
		{"missing long run length", []byte{0, 0, 20, 0, 0, 1, 253}, ErrTruncated},
		{"reserved byte", []byte{0, 0, 5, 0, 0, 1, 243}, ErrMalformed},
		{"run overflows count", []byte{0, 0, 3, 0, 0, 1, 244}, ErrMalformed},
		{"trailing section 1", []byte{0, 0, 1, 0, 0, 2, 0, 0}, ErrMalformed},
		{"group beyond count", []byte{0, 0, 1, 0, 0, 1, 3}, ErrMalformed},
		{"missing teams", valid[:len(valid)-1], ErrTruncated},
		{"extra team bytes", append(append([]byte{}, valid...), 0), ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeSnapshot(tt.buf)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSnapshot_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := EncodeSnapshot(ctx, repeat(claimed(1), 3*yieldEvery))
	assert.ErrorIs(t, err, context.Canceled)

	// Small partitions never reach a cancellation check.
	_, err = EncodeSnapshot(ctx, repeat(claimed(1), 10))
	assert.NoError(t, err)
}

func TestSnapshot_PartitionRoundTrip(t *testing.T) {
	src, err := grid.New(8, 4, grid.FieldWidth)
	require.NoError(t, err)
	require.NoError(t, src.ApplyDeltas([]core.Delta{
		{XY: core.XY{X: 4, Y: 0}, Team: 1},
		{XY: core.XY{X: 7, Y: 3}, Team: 2, IsMine: true},
	}))
	pxy := core.PartitionXY{X: 1, Y: 0}

	buf, err := EncodePartition(context.Background(), src, pxy)
	require.NoError(t, err)

	dst, err := grid.New(8, 4, grid.FieldWidth)
	require.NoError(t, err)
	require.NoError(t, DecodeInto(dst, pxy, buf))

	want, _ := src.Partition(pxy)
	got, _ := dst.Partition(pxy)
	assert.Equal(t, want, got)

	small, err := EncodeSnapshot(context.Background(), repeat(core.Cell{}, 4))
	require.NoError(t, err)
	assert.ErrorIs(t, DecodeInto(dst, pxy, small), ErrMalformed)
}

func genCells() gopter.Gen {
	// Long stretches of one cell mixed with noise exercise both groups and runs.
	segment := gen.Struct(reflectSegment, map[string]gopter.Gen{
		"State":  gen.UInt8Range(0, 2),
		"Team":   gen.UInt8Range(0, 3),
		"Length": gen.OneGenOf(gen.IntRange(1, 5), gen.IntRange(6, 9), gen.IntRange(250, 600)),
	})
	return gen.SliceOf(segment)
}

func TestSnapshotProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 150
	properties := gopter.NewProperties(parameters)

	properties.Property("decode(encode(cells)) == cells", prop.ForAll(
		func(segments []segment) bool {
			var cells []core.Cell
			for _, s := range segments {
				cells = append(cells, repeat(s.cell(), s.Length)...)
			}
			buf, err := EncodeSnapshot(context.Background(), cells)
			if err != nil {
				return false
			}
			out, err := DecodeSnapshot(buf)
			if err != nil || len(out) != len(cells) {
				return false
			}
			for i := range cells {
				if out[i] != cells[i] {
					return false
				}
			}
			return true
		},
		genCells(),
	))

	properties.TestingRun(t)
}
