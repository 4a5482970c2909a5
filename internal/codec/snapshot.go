package codec

import (
	"bytes"
	"context"
	"fmt"

	"github.com/23skdu/field/internal/core"
	"github.com/23skdu/field/internal/grid"
)

// Snapshot layout:
//
//	[3] cell count, big-endian
//	[3] section 1 length, big-endian
//	section 1: run-length encoded trits (0 hidden, 1 claimed, 2 mine)
//	section 2: 2-bit team codes for every non-hidden cell, high bits first
//
// A section 1 byte below 243 is a group of up to five trits, the first cell in
// the least significant base-3 digit. 244..252 is a run of 6..8 identical
// cells, (b-244)/3 the trit and (b-244)%3+6 the length. 253..255 is a run of
// trit b-253 whose length-9 follows in the next byte.
const (
	headerSize = 6

	groupSize = 5

	shortRunBase = 244
	longRunBase  = 253

	minRun      = 6
	maxShortRun = 8
	maxRun      = 9 + 255

	maxCells = 1<<24 - 1

	// yieldEvery is how many cells are encoded between cancellation checks.
	yieldEvery = 16384
)

func trit(c core.Cell) byte {
	switch c.State {
	case core.CellClaimed:
		return 1
	case core.CellMine:
		return 2
	default:
		return 0
	}
}

func sameCell(a, b core.Cell) bool {
	ta := trit(a)
	if ta != trit(b) {
		return false
	}
	return ta == 0 || a.Team&0b11 == b.Team&0b11
}

// runLengths returns, for each index, the length of the run of identical
// cells starting there, capped at maxRun.
func runLengths(cells []core.Cell) []int {
	runs := make([]int, len(cells))
	for i := len(cells) - 1; i >= 0; i-- {
		runs[i] = 1
		if i+1 < len(cells) && sameCell(cells[i], cells[i+1]) {
			runs[i] = min(runs[i+1]+1, maxRun)
		}
	}
	return runs
}

type teamWriter struct {
	buf []byte
	n   int
}

func (w *teamWriter) write(t core.Team) {
	if w.n%4 == 0 {
		w.buf = append(w.buf, 0)
	}
	shift := 6 - 2*(w.n%4)
	w.buf[len(w.buf)-1] |= byte(t&0b11) << shift
	w.n++
}

// EncodeSnapshot encodes every cell of a partition, in row-major order.
func EncodeSnapshot(ctx context.Context, cells []core.Cell) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeSnapshotTo(ctx, &buf, cells); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeSnapshotTo appends the snapshot encoding of cells to buf. The context
// is checked periodically so large partitions can be abandoned.
func EncodeSnapshotTo(ctx context.Context, buf *bytes.Buffer, cells []core.Cell) error {
	if len(cells) > maxCells {
		return fmt.Errorf("%w: %d cells exceeds %d", ErrMalformed, len(cells), maxCells)
	}
	start := buf.Len()
	buf.Write([]byte{byte(len(cells) >> 16), byte(len(cells) >> 8), byte(len(cells)), 0, 0, 0})

	runs := runLengths(cells)
	var teams teamWriter
	nextYield := yieldEvery
	for i := 0; i < len(cells); {
		if i >= nextYield {
			if err := ctx.Err(); err != nil {
				return err
			}
			nextYield = i + yieldEvery
		}

		if n := runs[i]; n >= minRun {
			t := trit(cells[i])
			if n <= maxShortRun {
				buf.WriteByte(shortRunBase + t*3 + byte(n-minRun))
			} else {
				buf.WriteByte(longRunBase + t)
				buf.WriteByte(byte(n - 9))
			}
			if t != 0 {
				for k := 0; k < n; k++ {
					teams.write(cells[i].Team)
				}
			}
			i += n
			continue
		}

		n := min(groupSize, len(cells)-i)
		var b, pow byte = 0, 1
		for k := 0; k < n; k++ {
			c := cells[i+k]
			t := trit(c)
			b += t * pow
			pow *= 3
			if t != 0 {
				teams.write(c.Team)
			}
		}
		buf.WriteByte(b)
		i += n
	}

	s1 := buf.Len() - start - headerSize
	if s1 > maxCells {
		return fmt.Errorf("%w: section 1 of %d bytes exceeds header capacity", ErrMalformed, s1)
	}
	hdr := buf.Bytes()[start+3 : start+headerSize]
	hdr[0], hdr[1], hdr[2] = byte(s1>>16), byte(s1>>8), byte(s1)
	buf.Write(teams.buf)
	return nil
}

func readUint24(b []byte) int {
	return int(b[0])<<16 | int(b[1])<<8 | int(b[2])
}

// DecodeSnapshot decodes a snapshot produced by EncodeSnapshot. Any mismatch
// between headers and sections is reported as ErrMalformed or ErrTruncated.
func DecodeSnapshot(buf []byte) ([]core.Cell, error) {
	if len(buf) < headerSize {
		return nil, fmt.Errorf("%w: %d byte snapshot shorter than header", ErrTruncated, len(buf))
	}
	count := readUint24(buf[0:3])
	s1len := readUint24(buf[3:6])
	if headerSize+s1len > len(buf) {
		return nil, fmt.Errorf("%w: section 1 needs %d bytes, have %d", ErrTruncated, s1len, len(buf)-headerSize)
	}
	s1 := buf[headerSize : headerSize+s1len]
	s2 := buf[headerSize+s1len:]

	cells := make([]core.Cell, 0, count)
	codes := 0
	nextTeam := func() (core.Team, error) {
		b := codes / 4
		if b >= len(s2) {
			return 0, fmt.Errorf("%w: team section exhausted after %d codes", ErrTruncated, codes)
		}
		t := core.Team(s2[b]>>(6-2*(codes%4))) & 0b11
		codes++
		return t, nil
	}
	emit := func(t byte) error {
		c := core.Cell{}
		if t != 0 {
			team, err := nextTeam()
			if err != nil {
				return err
			}
			c.State, c.Team = core.CellClaimed, team
			if t == 2 {
				c.State = core.CellMine
			}
		}
		cells = append(cells, c)
		return nil
	}

	p := 0
	for len(cells) < count {
		if p >= len(s1) {
			return nil, fmt.Errorf("%w: section 1 ended after %d of %d cells", ErrTruncated, len(cells), count)
		}
		b := s1[p]
		p++

		switch {
		case b >= longRunBase:
			if p >= len(s1) {
				return nil, fmt.Errorf("%w: missing run length byte", ErrTruncated)
			}
			n := int(s1[p]) + 9
			p++
			if err := expandRun(&cells, count, b-longRunBase, n, emit); err != nil {
				return nil, err
			}
		case b >= shortRunBase:
			v := b - shortRunBase
			if err := expandRun(&cells, count, v/3, int(v%3)+minRun, emit); err != nil {
				return nil, err
			}
		case b > 242:
			return nil, fmt.Errorf("%w: reserved byte %d in section 1", ErrMalformed, b)
		default:
			n := min(groupSize, count-len(cells))
			for k := 0; k < n; k++ {
				if err := emit(b % 3); err != nil {
					return nil, err
				}
				b /= 3
			}
			if b != 0 {
				return nil, fmt.Errorf("%w: group carries trits beyond the final cell", ErrMalformed)
			}
		}
	}

	if p != len(s1) {
		return nil, fmt.Errorf("%w: %d unread bytes in section 1", ErrMalformed, len(s1)-p)
	}
	if want := (codes + 3) / 4; len(s2) != want {
		return nil, fmt.Errorf("%w: team section is %d bytes, want %d", ErrMalformed, len(s2), want)
	}
	return cells, nil
}

func expandRun(cells *[]core.Cell, count int, t byte, n int, emit func(byte) error) error {
	if t > 2 {
		return fmt.Errorf("%w: run trit %d", ErrMalformed, t)
	}
	if len(*cells)+n > count {
		return fmt.Errorf("%w: run of %d overflows cell count %d", ErrMalformed, n, count)
	}
	for k := 0; k < n; k++ {
		if err := emit(t); err != nil {
			return err
		}
	}
	return nil
}

// EncodePartition encodes one partition of a FieldWidth grid.
func EncodePartition(ctx context.Context, g *grid.PackedGrid, pxy core.PartitionXY) ([]byte, error) {
	cells, err := g.Cells(pxy)
	if err != nil {
		return nil, err
	}
	return EncodeSnapshot(ctx, cells)
}

// DecodeInto decodes a snapshot and overwrites the partition pxy of g with it.
func DecodeInto(g *grid.PackedGrid, pxy core.PartitionXY, buf []byte) error {
	cells, err := DecodeSnapshot(buf)
	if err != nil {
		return err
	}
	if want := g.Layout().CellsPerPartition(); len(cells) != want {
		return fmt.Errorf("%w: snapshot has %d cells, partition has %d", ErrMalformed, len(cells), want)
	}
	return g.ApplyCells(pxy, cells)
}
