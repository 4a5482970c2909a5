package grid

import (
	"fmt"
	"sync"

	"github.com/23skdu/field/internal/core"
)

// PackedGrid stores fixed-width cells for a whole field, one bit-packed buffer
// per partition. It is safe for concurrent use.
type PackedGrid struct {
	mu     sync.RWMutex
	layout Layout
	width  int
	parts  [][]byte
}

// New allocates an empty grid. width is fixed for the grid's lifetime.
func New(size, partitionSize, width int) (*PackedGrid, error) {
	layout, err := NewLayout(size, partitionSize)
	if err != nil {
		return nil, err
	}
	return NewWithLayout(layout, width)
}

// NewWithLayout allocates an empty grid over an already validated layout.
func NewWithLayout(layout Layout, width int) (*PackedGrid, error) {
	if width < 1 || width > MaxWidth {
		return nil, core.NewInvalidArgumentError("width", fmt.Sprintf("must be in [1,%d], got %d", MaxWidth, width))
	}
	n := layout.PartitionsPerSide()
	parts := make([][]byte, n*n)
	for i := range parts {
		parts[i] = make([]byte, ByteLen(layout.CellsPerPartition(), width))
	}
	return &PackedGrid{layout: layout, width: width, parts: parts}, nil
}

func (g *PackedGrid) Layout() Layout { return g.layout }
func (g *PackedGrid) Width() int     { return g.width }

func (g *PackedGrid) partIndex(pxy core.PartitionXY) int {
	return pxy.Y*g.layout.PartitionsPerSide() + pxy.X
}

// Get returns the value of the cell at xy.
func (g *PackedGrid) Get(xy core.XY) (uint8, error) {
	pxy, local, err := g.layout.Locate(xy)
	if err != nil {
		return 0, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return ReadBits(g.parts[g.partIndex(pxy)], local, g.width), nil
}

// Set stores v at xy.
func (g *PackedGrid) Set(xy core.XY, v uint8) error {
	_, err := g.Swap(xy, v)
	return err
}

// Swap stores v at xy and returns the previous value.
func (g *PackedGrid) Swap(xy core.XY, v uint8) (uint8, error) {
	if int(v) >= 1<<g.width {
		return 0, core.NewInvalidArgumentError("value", fmt.Sprintf("%d does not fit in %d bits", v, g.width))
	}
	pxy, local, err := g.layout.Locate(xy)
	if err != nil {
		return 0, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return WriteBits(g.parts[g.partIndex(pxy)], local, g.width, v), nil
}

// Partition returns a copy of the packed bytes of one partition.
func (g *PackedGrid) Partition(pxy core.PartitionXY) ([]byte, error) {
	if !g.layout.ContainsPartition(pxy) {
		return nil, core.NewInvalidArgumentError("partition", pxy.String()+" outside field")
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	src := g.parts[g.partIndex(pxy)]
	out := make([]byte, len(src))
	copy(out, src)
	return out, nil
}

// LoadPartition replaces one partition's packed bytes. A short buffer is
// zero-extended, matching a sparse key in the backing store.
func (g *PackedGrid) LoadPartition(pxy core.PartitionXY, buf []byte) error {
	if !g.layout.ContainsPartition(pxy) {
		return core.NewInvalidArgumentError("partition", pxy.String()+" outside field")
	}
	want := ByteLen(g.layout.CellsPerPartition(), g.width)
	if len(buf) > want {
		return core.NewInvalidArgumentError("partition", fmt.Sprintf("%d bytes exceeds %d", len(buf), want))
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	dst := g.parts[g.partIndex(pxy)]
	n := copy(dst, buf)
	clear(dst[n:])
	return nil
}
