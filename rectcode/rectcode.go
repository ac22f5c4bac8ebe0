// Package rectcode implements the command list's rectangle delta encoding
// (§4.D): given a new rectangle and a band's previously-emitted rectangle,
// it picks the most compact of five encodings (tiny-pure, tiny, short,
// medium, full) and appends the chosen bytes to a buffer. Decoding inverts
// the selection by inspecting the opcode byte.
package rectcode

import (
	"github.com/bandspool/clist/clerr"
	"github.com/bandspool/clist/opcode"
	"github.com/bandspool/clist/varint"
)

// Rect is a device-space rectangle. W and H are normally non-negative, but
// are carried as signed so that CTM-flipped callers can hand in either
// convention; the encoder never inspects their sign itself.
type Rect struct {
	X, Y, W, H int32
}

// Family names the three opcode bases a rectangle family (fill_rect or
// tile_rect) uses for its full, short and tiny forms.
type Family struct {
	Full, Short, Tiny opcode.Op
}

var (
	// FillRect is the opcode family used by fill_rect commands.
	FillRect = Family{opcode.FillRectFull, opcode.FillRectShort, opcode.FillRectTiny}
	// TileRect is the opcode family used by tile_rect commands.
	TileRect = Family{opcode.TileRectFull, opcode.TileRectShort, opcode.TileRectTiny}
)

const (
	minDxyTiny = -8
	maxDxyTiny = 7
	minDwTiny  = -4
	maxDwTiny  = 3
	minShort   = -128
	maxShort   = 127
	minMedium  = -2
	maxMedium  = 1

	pureFlag = 0x08
)

func inRange(v, lo, hi int32) bool { return v >= lo && v <= hi }

// forbiddenSum is the one excluded (dy, dh) combination carried over from
// the source format for both the medium and the 5-byte short forms: dy+dh
// == -4 is reserved so that a medium-form nibble of zero (which would
// otherwise arise only from dy==dh==-2) never collides with the full form's
// "nibble == 0 means four varints follow" marker. See DESIGN.md (rectcode)
// for the resolution of this as an Open Question.
func forbiddenSum(dy, dh int32) bool { return dy+dh == -4 }

// Encode appends the chosen encoding of r (relative to prev) to dst and
// returns the extended slice. If sawRect is false (the band has not yet
// emitted a rectangle), the full form is always used, per the invariant
// that a band's first rectangle opcode must be a full-form encoding.
func Encode(dst []byte, fam Family, prev, r Rect, sawRect bool) []byte {
	if !sawRect {
		return encodeFull(dst, fam, r)
	}

	dx := r.X - prev.X
	dy := r.Y - prev.Y
	dw := r.W - prev.W
	dh := r.H - prev.H

	// 1. Tiny-pure: the new x offset exactly matches the previous width, so
	// dx need not be stored at all.
	if dh == 0 && dy == 0 && inRange(dw, minDwTiny, maxDwTiny) && dx == prev.W {
		b := byte(fam.Tiny) | pureFlag | byte(dw-minDwTiny)
		return append(dst, b)
	}

	// 2. Tiny: dh==0, dx/dy/dw all fit a signed nibble pair.
	if dh == 0 && inRange(dx, minDxyTiny, maxDxyTiny) && inRange(dy, minDxyTiny, maxDxyTiny) && inRange(dw, minDwTiny, maxDwTiny) {
		b0 := byte(fam.Tiny) | byte(dw-minDwTiny)
		b1 := packNibbles(dx, dy)
		return append(dst, b0, b1)
	}

	// 3. Short, 3-byte sub-form: dy==0, dh tiny (excluding the forbidden
	// sum), dx/dw fit a signed byte.
	if dy == 0 && inRange(dh, minDwTiny, maxDwTiny) && !forbiddenSum(dy, dh) &&
		inRange(dx, minShort, maxShort) && inRange(dw, minShort, maxShort) {
		b0 := byte(fam.Short) | byte(dh-minDwTiny)
		return append(dst, b0, int8ToByte(dx), int8ToByte(dw))
	}

	// 3. Short, 5-byte sub-form: all four deltas fit a signed byte.
	if inRange(dx, minShort, maxShort) && inRange(dy, minShort, maxShort) &&
		inRange(dw, minShort, maxShort) && inRange(dh, minShort, maxShort) && !forbiddenSum(dy, dh) {
		b0 := byte(fam.Short) | pureFlag
		return append(dst, b0, int8ToByte(dy), int8ToByte(dh), int8ToByte(dx), int8ToByte(dw))
	}

	// 4. Medium: dy, dh small, x and w as varints.
	if inRange(dy, minMedium, maxMedium) && inRange(dh, minMedium, maxMedium) && !forbiddenSum(dy, dh) {
		nibble := byte((dy-minMedium)<<2) | byte(dh-minMedium)
		if nibble != 0 { // nibble==0 is reserved for the all-varint full form.
			dst = append(dst, byte(fam.Full)|nibble)
			dst = varint.EncodeSigned(dst, r.X)
			return varint.EncodeSigned(dst, r.W)
		}
	}

	// 5. Full.
	return encodeFull(dst, fam, r)
}

func encodeFull(dst []byte, fam Family, r Rect) []byte {
	dst = append(dst, byte(fam.Full))
	dst = varint.EncodeSigned(dst, r.X)
	dst = varint.EncodeSigned(dst, r.Y)
	dst = varint.EncodeSigned(dst, r.W)
	return varint.EncodeSigned(dst, r.H)
}

// EncodePageFill appends the page-fill sentinel: a 0x0 rectangle written in
// the full encoding explicitly, which the reader recognizes as "whole page"
// rather than a literal empty rectangle.
func EncodePageFill(dst []byte, fam Family) []byte {
	return encodeFull(dst, fam, Rect{})
}

func packNibbles(dx, dy int32) byte {
	return byte((dx-minDxyTiny)<<4) | byte(dy-minDxyTiny)
}

func unpackNibbles(b byte) (dx, dy int32) {
	dx = int32(b>>4) + minDxyTiny
	dy = int32(b&0x0f) + minDxyTiny
	return
}

func int8ToByte(v int32) byte { return byte(int8(v)) }
func byteToInt8(b byte) int32 { return int32(int8(b)) }

// Decode reads one rectangle opcode (and its operands) from src, given the
// opcode byte op already peeled off the front, and returns the decoded
// rectangle, the number of additional bytes consumed (not counting op
// itself), and whether op belonged to this family at all.
//
// isPageFill is true only for the page-fill sentinel (a full-form 0x0
// rectangle).
func Decode(fam Family, op opcode.Op, src []byte, prev Rect, sawRect bool) (r Rect, consumed int, isPageFill bool, err error) {
	base := op &^ 0x0f
	nibble := byte(op & 0x0f)

	switch base {
	case fam.Full:
		if nibble == 0 {
			x, n1 := varint.DecodeSigned(src)
			y, n2 := varint.DecodeSigned(src[n1:])
			w, n3 := varint.DecodeSigned(src[n1+n2:])
			h, n4 := varint.DecodeSigned(src[n1+n2+n3:])
			r = Rect{x, y, w, h}
			consumed = n1 + n2 + n3 + n4
			isPageFill = x == 0 && y == 0 && w == 0 && h == 0
			return r, consumed, isPageFill, nil
		}
		if !sawRect {
			return Rect{}, 0, false, clerr.Bug("rectcode.Decode", "medium form before any full-form rectangle")
		}
		dy := int32(nibble>>2) + minMedium
		dh := int32(nibble&3) + minMedium
		x, n1 := varint.DecodeSigned(src)
		w, n2 := varint.DecodeSigned(src[n1:])
		r = Rect{X: x, Y: prev.Y + dy, W: w, H: prev.H + dh}
		return r, n1 + n2, false, nil

	case fam.Short:
		if !sawRect {
			return Rect{}, 0, false, clerr.Bug("rectcode.Decode", "short form before any full-form rectangle")
		}
		if nibble&pureFlag == 0 {
			dh := int32(nibble&0x07) + minDwTiny
			dx := byteToInt8(src[0])
			dw := byteToInt8(src[1])
			r = Rect{X: prev.X + dx, Y: prev.Y, W: prev.W + dw, H: prev.H + dh}
			return r, 2, false, nil
		}
		dy := byteToInt8(src[0])
		dh := byteToInt8(src[1])
		dx := byteToInt8(src[2])
		dw := byteToInt8(src[3])
		r = Rect{X: prev.X + dx, Y: prev.Y + dy, W: prev.W + dw, H: prev.H + dh}
		return r, 4, false, nil

	case fam.Tiny:
		if !sawRect {
			return Rect{}, 0, false, clerr.Bug("rectcode.Decode", "tiny form before any full-form rectangle")
		}
		dw := int32(nibble&0x07) + minDwTiny
		if nibble&pureFlag != 0 {
			r = Rect{X: prev.X + prev.W, Y: prev.Y, W: prev.W + dw, H: prev.H}
			return r, 0, false, nil
		}
		dx, dy := unpackNibbles(src[0])
		r = Rect{X: prev.X + dx, Y: prev.Y + dy, W: prev.W + dw, H: prev.H}
		return r, 1, false, nil
	}

	return Rect{}, 0, false, clerr.Bug("rectcode.Decode", "opcode 0x%02x is not in this rectangle family", byte(op))
}
