// Package colorcode implements the command list's per-slot color encoding
// (§4.E): unchanged (no bytes), a "no color" sentinel (transparent), a
// per-byte nibble-delta form, or a full form with low-order zero bytes
// trimmed.
//
// The exact nibble/5-6-5 packing of the delta form is not pinned down by any
// external format this package must interoperate with (the source system's
// gx_color_index packing varies by device color depth); this package defines
// one self-consistent scheme documented in DESIGN.md and verified by its
// round-trip tests, following the shape spec.md describes.
package colorcode

import "github.com/bandspool/clist/opcode"

// Color is a device color index, up to 8 bytes wide.
type Color uint64

// Family names the set/delta opcode pair for one color slot (color0 or
// color1). Tile colors reuse these families, each one preceded by a
// set_tile_color opcode that package page writes; no package in this module
// writes devn colors. colorcode itself only knows about the nibble encoding.
type Family struct {
	SetOp   opcode.Op
	DeltaOp opcode.Op
}

var (
	Color0 = Family{opcode.SetColor0, opcode.DeltaColor0}
	Color1 = Family{opcode.SetColor1, opcode.DeltaColor1}
)

// Encode appends the minimal byte sequence that updates the band's slot from
// (prev, prevNone) to (next, nextNone), given the color's width in bytes
// (typically 1, 2, 3, 4 or 8). It returns dst unchanged if next already
// equals prev.
func Encode(dst []byte, fam Family, prev Color, prevNone bool, next Color, nextNone bool, colorBytes int) []byte {
	out, _ := appendBest(dst, fam, prev, prevNone, next, nextNone, colorBytes)
	return out
}

// appendBest appends the smallest valid encoding and reports which form was
// used ("unchanged", "nocolor", "delta" or "full"), for tests that want to
// assert on the chosen form.
func appendBest(dst []byte, fam Family, prev Color, prevNone bool, next Color, nextNone bool, colorBytes int) ([]byte, string) {
	if !prevNone && !nextNone && prev == next {
		return dst, "unchanged"
	}
	if nextNone {
		return append(dst, byte(fam.SetOp)|opcode.NoColorNibble), "nocolor"
	}
	if !prevNone {
		if packed, ok := encodeDelta(prev, next, colorBytes); ok {
			dst = append(dst, byte(fam.DeltaOp))
			dst = append(dst, packed...)
			return dst, "delta"
		}
	}
	return encodeFull(dst, fam.SetOp, next, colorBytes), "full"
}

func bytesOf(c Color, n int) []byte {
	b := make([]byte, n)
	v := uint64(c)
	for i := n - 1; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}

func colorFromBytes(b []byte) Color {
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return Color(v)
}

// encodeFull trims low-order (least significant) zero bytes from the
// colorBytes-wide big-endian representation of c, per the source format's
// "+n = number of low order zero bytes" convention (gxcldev.h), and appends
// opcode|n followed by the remaining non-zero-trimmed prefix, written
// big-endian (most significant byte first).
func encodeFull(dst []byte, op opcode.Op, c Color, colorBytes int) []byte {
	b := bytesOf(c, colorBytes)
	trim := 0
	for trim < colorBytes-1 && b[colorBytes-1-trim] == 0 {
		trim++
	}
	dst = append(dst, byte(op)|byte(trim))
	return append(dst, b[:colorBytes-trim]...)
}

func decodeFull(nibble byte, src []byte, colorBytes int) (Color, int) {
	m := colorBytes - int(nibble)
	if m < 0 {
		m = 0
	}
	c := colorFromBytes(src[:m]) << (8 * uint(nibble))
	return c, m
}

// packedLen returns the number of bytes encodeDelta produces for a color of
// the given width: ceil(colorBytes/2), matching §4.E.
func packedLen(colorBytes int) int {
	if colorBytes <= 0 {
		return 0
	}
	if colorBytes == 1 {
		return 1
	}
	if colorBytes%2 == 0 {
		return colorBytes / 2
	}
	return (colorBytes-3)/2 + 2
}

// encodeDelta packs the per-byte signed delta between prev and next into
// packedLen(colorBytes) bytes: pairs of bytes each hold two signed 4-bit
// nibble deltas, except that an odd byte count packs its top three bytes
// into a 5/6/5-bit word (two bytes) instead, to allow larger deltas on those
// bytes. It reports ok=false if any per-byte delta does not fit.
func encodeDelta(prev, next Color, colorBytes int) ([]byte, bool) {
	pb, nb := bytesOf(prev, colorBytes), bytesOf(next, colorBytes)
	deltas := make([]int32, colorBytes)
	for i := range deltas {
		deltas[i] = int32(nb[i]) - int32(pb[i])
	}
	return packDeltas(deltas)
}

func packDeltas(deltas []int32) ([]byte, bool) {
	n := len(deltas)
	switch {
	case n == 0:
		return nil, true
	case n == 1:
		d := deltas[0]
		if d < -128 || d > 127 {
			return nil, false
		}
		return []byte{byte(int8(d))}, true
	case n%2 == 0:
		out := make([]byte, 0, n/2)
		for i := 0; i < n; i += 2 {
			a, b := deltas[i], deltas[i+1]
			if a < -8 || a > 7 || b < -8 || b > 7 {
				return nil, false
			}
			out = append(out, byte(a+8)<<4|byte(b+8))
		}
		return out, true
	default:
		bottom := deltas[:n-3]
		top := deltas[n-3:]
		out, ok := packDeltas(bottom)
		if !ok {
			return nil, false
		}
		lo, mid, hi := top[0], top[1], top[2]
		if lo < -16 || lo > 15 || mid < -32 || mid > 31 || hi < -16 || hi > 15 {
			return nil, false
		}
		word := uint16(lo+16) | uint16(mid+32)<<5 | uint16(hi+16)<<11
		out = append(out, byte(word), byte(word>>8))
		return out, true
	}
}

func unpackDeltas(buf []byte, n int) []int32 {
	deltas := make([]int32, n)
	switch {
	case n == 0:
		return deltas
	case n == 1:
		deltas[0] = int32(int8(buf[0]))
		return deltas
	case n%2 == 0:
		for i := 0; i < n; i += 2 {
			b := buf[i/2]
			deltas[i] = int32(b>>4) - 8
			deltas[i+1] = int32(b&0x0f) - 8
		}
		return deltas
	default:
		bottomN := n - 3
		bottom := unpackDeltas(buf[:bottomN/2], bottomN)
		copy(deltas, bottom)
		word := uint16(buf[len(buf)-2]) | uint16(buf[len(buf)-1])<<8
		deltas[n-3] = int32(word&0x1f) - 16
		deltas[n-2] = int32((word>>5)&0x3f) - 32
		deltas[n-1] = int32((word>>11)&0x1f) - 16
		return deltas
	}
}

// Decode reads one color opcode for the given family from src (op already
// peeled off the front), and returns the resulting color/none state plus the
// number of bytes consumed from src (not counting op).
func Decode(fam Family, op opcode.Op, src []byte, prev Color, prevNone bool, colorBytes int) (next Color, none bool, consumed int) {
	nibble := byte(op & 0x0f)
	base := op &^ 0x0f
	switch {
	case base == fam.SetOp:
		if nibble == opcode.NoColorNibble {
			return prev, true, 0
		}
		c, n := decodeFull(nibble, src, colorBytes)
		return c, false, n
	case op == fam.DeltaOp:
		n := packedLen(colorBytes)
		deltas := unpackDeltas(src[:n], colorBytes)
		pb := bytesOf(prev, colorBytes)
		nbBytes := make([]byte, colorBytes)
		for i := range nbBytes {
			nbBytes[i] = byte(int32(pb[i]) + deltas[i])
		}
		return colorFromBytes(nbBytes), false, n
	}
	return prev, prevNone, 0
}
