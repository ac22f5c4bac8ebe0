// Package varint implements the clist command list's variable-length integer
// encoding: low-order septet first, continuation bit (0x80) set on every byte
// except the last.
//
// This is deliberately not the same shape as encoding/binary's Uvarint
// (which is also 7-bits-per-byte, continuation-bit encoded, and would in
// fact be byte-compatible) because the clist format additionally fast-paths
// 1- and 2-byte encodings inline at every call site that packs a varint next
// to other fields in a fixed-size opcode, and because signed values are
// written by bit-pattern reinterpretation rather than zig-zag, matching the
// source format's cmd_putw/cmd_put_w split.
package varint

// MaxBytes is the largest number of bytes Encode can produce for a uint64.
const MaxBytes = 10

// Size returns the number of bytes Encode(v) would produce.
func Size(v uint64) int {
	if v < 1<<7 {
		return 1
	}
	if v < 1<<14 {
		return 2
	}
	n := 2
	v >>= 14
	for v != 0 {
		n++
		v >>= 7
	}
	return n
}

// Encode appends the varint encoding of v to dst and returns the result.
func Encode(dst []byte, v uint64) []byte {
	// Fast paths for the two sizes the format special-cases.
	switch {
	case v < 1<<7:
		return append(dst, byte(v))
	case v < 1<<14:
		return append(dst, byte(v)|0x80, byte(v>>7))
	}
	for v >= 0x80 {
		dst = append(dst, byte(v)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}

// Decode reads a varint from the front of src, returning the value and the
// number of bytes consumed. It returns (0, 0) if src does not contain a
// complete varint (i.e. every byte has its continuation bit set).
func Decode(src []byte) (uint64, int) {
	var v uint64
	var shift uint
	for i, b := range src {
		v |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return v, i + 1
		}
		shift += 7
		if shift >= 64 {
			return 0, 0
		}
	}
	return 0, 0
}

// EncodeSigned appends the varint encoding of a signed value to dst. Per the
// source format, signed integers are written by reinterpreting their bit
// pattern as unsigned (not zig-zag), so small negative numbers encode as a
// full-width varint; short and tiny rectangle/color deltas therefore use
// dedicated signed-byte forms (see package rectcode and colorcode) instead of
// a varint.
func EncodeSigned(dst []byte, v int32) []byte {
	return Encode(dst, uint64(uint32(v)))
}

// DecodeSigned is the inverse of EncodeSigned: it decodes a varint and
// reinterprets the low 32 bits as a signed value.
func DecodeSigned(src []byte) (int32, int) {
	v, n := Decode(src)
	return int32(uint32(v)), n
}

// Encode2 appends the varint encodings of wx and wy, using the same 2-byte
// fast path as the source's cmd_put2w when both values fit in 7 bits.
func Encode2(dst []byte, wx, wy uint64) []byte {
	if wx|wy < 1<<7 {
		return append(dst, byte(wx), byte(wy))
	}
	dst = Encode(dst, wx)
	return Encode(dst, wy)
}

// Size2 returns the number of bytes Encode2(wx, wy) would produce.
func Size2(wx, wy uint64) int {
	if wx|wy < 1<<7 {
		return 2
	}
	return Size(wx) + Size(wy)
}
