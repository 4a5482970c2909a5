package codec

import (
	"fmt"

	"github.com/23skdu/field/internal/core"
)

// DeltaRecordSize is the encoded size of one delta.
const DeltaRecordSize = 3

const maxLocalOffset = 1<<21 - 1

// EncodeDeltas packs deltas of one partition into 3-byte records:
//
//	byte 0: team(2) | mine(1) | offset bits 20..16
//	byte 1: offset bits 15..8
//	byte 2: offset bits 7..0
//
// where offset = localY*partitionSize + localX.
func EncodeDeltas(pxy core.PartitionXY, partitionSize int, deltas []core.Delta) ([]byte, error) {
	out := make([]byte, 0, len(deltas)*DeltaRecordSize)
	return AppendDeltas(out, pxy, partitionSize, deltas)
}

// AppendDeltas is EncodeDeltas appending to dst.
func AppendDeltas(dst []byte, pxy core.PartitionXY, partitionSize int, deltas []core.Delta) ([]byte, error) {
	ox, oy := pxy.X*partitionSize, pxy.Y*partitionSize
	for _, d := range deltas {
		lx, ly := d.XY.X-ox, d.XY.Y-oy
		if lx < 0 || ly < 0 || lx >= partitionSize || ly >= partitionSize {
			return nil, fmt.Errorf("%w: %s not in partition %s", ErrOutsidePartition, d.XY, pxy)
		}
		pos := ly*partitionSize + lx
		if pos > maxLocalOffset {
			return nil, fmt.Errorf("%w: offset %d exceeds 21 bits", ErrOutsidePartition, pos)
		}
		b0 := byte(d.Team&0b11)<<6 | byte(pos>>16)&0x1f
		if d.IsMine {
			b0 |= 1 << 5
		}
		dst = append(dst, b0, byte(pos>>8), byte(pos))
	}
	return dst, nil
}

// DecodeDeltas reverses EncodeDeltas. An empty buffer decodes to an empty list.
func DecodeDeltas(pxy core.PartitionXY, partitionSize int, buf []byte) ([]core.Delta, error) {
	if len(buf)%DeltaRecordSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a whole number of delta records", ErrTruncated, len(buf))
	}
	ox, oy := pxy.X*partitionSize, pxy.Y*partitionSize
	cells := partitionSize * partitionSize
	deltas := make([]core.Delta, 0, len(buf)/DeltaRecordSize)
	for i := 0; i < len(buf); i += DeltaRecordSize {
		b0 := buf[i]
		pos := int(b0&0x1f)<<16 | int(buf[i+1])<<8 | int(buf[i+2])
		if pos >= cells {
			return nil, fmt.Errorf("%w: offset %d beyond partition of %d cells", ErrMalformed, pos, cells)
		}
		deltas = append(deltas, core.Delta{
			XY:     core.XY{X: ox + pos%partitionSize, Y: oy + pos/partitionSize},
			Team:   core.Team(b0 >> 6),
			IsMine: b0&(1<<5) != 0,
		})
	}
	return deltas, nil
}
