package archive

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/field/internal/core"
)

func TestRecords_GlobalCoordinates(t *testing.T) {
	cells := make([]core.Cell, 9)
	cells[1] = core.Cell{State: core.CellClaimed, Team: 2}
	cells[7] = core.Cell{State: core.CellMine, Team: 1}

	got := Records(core.PartitionXY{X: 1, Y: 2}, 3, cells)
	assert.Equal(t, []CellRecord{
		{X: 4, Y: 6, Team: 2},
		{X: 4, Y: 8, Team: 1, Mine: true},
	}, got)
}

func TestWriteRead(t *testing.T) {
	records := []CellRecord{
		{X: 0, Y: 0, Team: 3},
		{X: 5, Y: 1, Team: 0, Mine: true},
		{X: 2, Y: 7, Team: 1},
	}
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, records))

	got, err := Read(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	assert.Equal(t, records, got)
}

func TestWriteRead_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, nil))
	assert.NotZero(t, buf.Len())

	got, err := Read(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRead_Garbage(t *testing.T) {
	data := []byte("not a parquet file")
	_, err := Read(bytes.NewReader(data), int64(len(data)))
	assert.Error(t, err)
}
