package grid

import (
	"fmt"

	"github.com/23skdu/field/internal/core"
)

const (
	// MaxPartitionSize keeps a local cell offset within the 21 bits of a patch record.
	MaxPartitionSize = 1448
	// MaxPartitionsPerSide bounds the partition fan-out of one round.
	MaxPartitionsPerSide = 4
)

// Layout describes how a square field of Size×Size cells is tiled into
// square partitions of PartitionSize cells per side.
type Layout struct {
	Size          int
	PartitionSize int
}

// NewLayout validates the tiling constraints.
func NewLayout(size, partitionSize int) (Layout, error) {
	switch {
	case size < 1:
		return Layout{}, core.NewInvalidArgumentError("size", fmt.Sprintf("must be >= 1, got %d", size))
	case partitionSize < 1 || partitionSize > MaxPartitionSize:
		return Layout{}, core.NewInvalidArgumentError("partitionSize",
			fmt.Sprintf("must be in [1,%d], got %d", MaxPartitionSize, partitionSize))
	case partitionSize > size:
		return Layout{}, core.NewInvalidArgumentError("partitionSize",
			fmt.Sprintf("%d exceeds field size %d", partitionSize, size))
	case size%partitionSize != 0:
		return Layout{}, core.NewInvalidArgumentError("partitionSize",
			fmt.Sprintf("%d does not evenly divide field size %d", partitionSize, size))
	case size/partitionSize > MaxPartitionsPerSide:
		return Layout{}, core.NewInvalidArgumentError("partitionSize",
			fmt.Sprintf("%d partitions per side exceeds %d", size/partitionSize, MaxPartitionsPerSide))
	}
	return Layout{Size: size, PartitionSize: partitionSize}, nil
}

// PartitionsPerSide returns the number of partitions along one axis.
func (l Layout) PartitionsPerSide() int {
	return l.Size / l.PartitionSize
}

// CellsPerPartition returns PartitionSize².
func (l Layout) CellsPerPartition() int {
	return l.PartitionSize * l.PartitionSize
}

// Area returns Size².
func (l Layout) Area() int64 {
	return int64(l.Size) * int64(l.Size)
}

// Contains reports whether xy lies inside the field.
func (l Layout) Contains(xy core.XY) bool {
	return xy.X >= 0 && xy.Y >= 0 && xy.X < l.Size && xy.Y < l.Size
}

// ContainsPartition reports whether pxy addresses an existing partition.
func (l Layout) ContainsPartition(pxy core.PartitionXY) bool {
	n := l.PartitionsPerSide()
	return pxy.X >= 0 && pxy.Y >= 0 && pxy.X < n && pxy.Y < n
}

// Locate returns the partition holding xy and the row-major cell index within it.
func (l Layout) Locate(xy core.XY) (core.PartitionXY, int, error) {
	if !l.Contains(xy) {
		return core.PartitionXY{}, 0, core.NewOutOfBoundsError(xy, l.Size)
	}
	pxy := core.PartitionXY{X: xy.X / l.PartitionSize, Y: xy.Y / l.PartitionSize}
	local := (xy.Y%l.PartitionSize)*l.PartitionSize + xy.X%l.PartitionSize
	return pxy, local, nil
}

// Origin returns the global coordinate of the partition's top-left cell.
func (l Layout) Origin(pxy core.PartitionXY) core.XY {
	return core.XY{X: pxy.X * l.PartitionSize, Y: pxy.Y * l.PartitionSize}
}

// XYAt converts a local cell index back to a global coordinate.
func (l Layout) XYAt(pxy core.PartitionXY, local int) core.XY {
	o := l.Origin(pxy)
	return core.XY{X: o.X + local%l.PartitionSize, Y: o.Y + local/l.PartitionSize}
}

// Partitions lists every partition in row-major order.
func (l Layout) Partitions() []core.PartitionXY {
	n := l.PartitionsPerSide()
	out := make([]core.PartitionXY, 0, n*n)
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			out = append(out, core.PartitionXY{X: x, Y: y})
		}
	}
	return out
}
