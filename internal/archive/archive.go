// Package archive writes the final state of a round partition as Parquet so
// ended rounds can be analysed offline.
package archive

import (
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"

	"github.com/23skdu/field/internal/core"
)

// CellRecord is one claimed cell of an archived partition.
type CellRecord struct {
	X    int32 `parquet:"x"`
	Y    int32 `parquet:"y"`
	Team int32 `parquet:"team"`
	Mine bool  `parquet:"mine"`
}

// Records lists the non-hidden cells of a partition in row-major order, with
// global coordinates.
func Records(pxy core.PartitionXY, partitionSize int, cells []core.Cell) []CellRecord {
	ox, oy := pxy.X*partitionSize, pxy.Y*partitionSize
	var out []CellRecord
	for i, c := range cells {
		if c.State == core.CellHidden {
			continue
		}
		out = append(out, CellRecord{
			X:    int32(ox + i%partitionSize),
			Y:    int32(oy + i/partitionSize),
			Team: int32(c.Team),
			Mine: c.State == core.CellMine,
		})
	}
	return out
}

// Write writes records as a single Zstd-compressed Parquet file.
func Write(w io.Writer, records []CellRecord) error {
	pw := parquet.NewGenericWriter[CellRecord](w, parquet.Compression(&parquet.Zstd))
	if len(records) > 0 {
		if _, err := pw.Write(records); err != nil {
			_ = pw.Close()
			return fmt.Errorf("archive: write rows: %w", err)
		}
	}
	return pw.Close()
}

// Read reads back a file produced by Write.
func Read(r io.ReaderAt, size int64) ([]CellRecord, error) {
	pf, err := parquet.OpenFile(r, size)
	if err != nil {
		return nil, fmt.Errorf("archive: open: %w", err)
	}
	pr := parquet.NewGenericReader[CellRecord](pf)
	defer pr.Close()

	rows := make([]CellRecord, pr.NumRows())
	if len(rows) == 0 {
		return rows, nil
	}
	n, err := pr.Read(rows)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("archive: read rows: %w", err)
	}
	return rows[:n], nil
}
