package grid

// MaxWidth is the widest cell supported. A cell of at most 8 bits never spans
// more than two bytes, so a 16-bit window always covers it.
const MaxWidth = 8

// ByteLen returns the number of bytes needed to hold cells cells of width bits.
func ByteLen(cells, width int) int {
	return (cells*width + 7) / 8
}

func window(buf []byte, b int) uint16 {
	w := uint16(buf[b]) << 8
	if b+1 < len(buf) {
		w |= uint16(buf[b+1])
	}
	return w
}

// ReadBits returns cell i of width w from a big-endian bit-packed buffer.
func ReadBits(buf []byte, i, w int) uint8 {
	offset := i * w
	b := offset >> 3
	shift := 16 - offset&7 - w
	mask := uint16(1)<<w - 1
	return uint8(window(buf, b) >> shift & mask)
}

// WriteBits stores v into cell i of width w and returns the previous value.
// v must already fit in w bits.
func WriteBits(buf []byte, i, w int, v uint8) uint8 {
	offset := i * w
	b := offset >> 3
	shift := 16 - offset&7 - w
	mask := uint16(1)<<w - 1

	win := window(buf, b)
	prev := uint8(win >> shift & mask)
	win = win&^(mask<<shift) | (uint16(v)&mask)<<shift

	buf[b] = byte(win >> 8)
	if b+1 < len(buf) {
		buf[b+1] = byte(win)
	}
	return prev
}
