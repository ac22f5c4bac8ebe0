// Package fax implements a CCITT Group 4 style bi-level bitmap codec (§4.F,
// §4.Q): two-dimensional (Modified READ) predictive coding of each scanline
// against its predecessor, using the standard pass/vertical/horizontal mode
// decision tree described by ITU-T T.6.
//
// This is algorithmically T.6-shaped but not bit-compatible with a real
// ITU-T G4 bitstream: mode selection follows the standard pass/vertical/
// horizontal decision tree, but tokens are serialized with this package's
// own varint-based framing instead of the ITU's Huffman code tables, since
// nothing outside this module ever needs to read the bytes it produces. See
// DESIGN.md.
package fax

import "github.com/bandspool/clist/varint"

const (
	modePass = 0
	modeVert = 1
	modeHoriz = 2
)

// Encode compresses a bi-level bitmap: height rows of widthBits pixels each,
// packed MSB-first, raster bytes per row (raster may exceed
// ceil(widthBits/8) if the caller has not stripped row padding).
func Encode(data []byte, widthBits, height, raster int) []byte {
	var out []byte
	ref := []int{widthBits, widthBits, widthBits}
	for y := 0; y < height; y++ {
		row := unpackRow(data, y, widthBits, raster)
		coding := rowChanges(row, widthBits)
		out = encodeRow(out, ref, coding, widthBits)
		ref = coding
	}
	return out
}

// Decode inverts Encode, reconstructing the packed bi-level bitmap (tight
// rows, ceil(widthBits/8) bytes each, zero-padded to the byte boundary).
func Decode(enc []byte, widthBits, height int) []byte {
	tightRaster := (widthBits + 7) / 8
	out := make([]byte, tightRaster*height)
	ref := []int{widthBits, widthBits, widthBits}
	pos := 0
	for y := 0; y < height; y++ {
		coding, n := decodeRow(enc[pos:], ref, widthBits)
		pos += n
		packRow(out, y, widthBits, tightRaster, coding)
		ref = coding
	}
	return out
}

func unpackRow(data []byte, y, widthBits, raster int) []bool {
	row := make([]bool, widthBits)
	base := y * raster
	for x := 0; x < widthBits; x++ {
		byteIdx := base + x/8
		bit := 7 - uint(x%8)
		row[x] = (data[byteIdx]>>bit)&1 != 0
	}
	return row
}

func packRow(out []byte, y, widthBits, raster int, changes []int) {
	base := y * raster
	color := false
	ci := 0
	for x := 0; x < widthBits; x++ {
		for ci < len(changes) && changes[ci] <= x && changes[ci] < widthBits {
			color = !color
			ci++
		}
		if color {
			out[base+x/8] |= 1 << (7 - uint(x%8))
		}
	}
}

// rowChanges returns the column positions where row changes color, scanning
// left to right with an implicit white pixel before column 0, plus three
// width sentinels so b2 lookups never run off the end, even when b1 is
// skipped forward past the first sentinel.
func rowChanges(row []bool, width int) []int {
	var changes []int
	prev := false
	for i := 0; i < width; i++ {
		if row[i] != prev {
			changes = append(changes, i)
			prev = row[i]
		}
	}
	return append(changes, width, width, width)
}

// colorAt reports the color (true = black) that begins at changes[idx]: the
// first change is always white-to-black.
func colorAt(idx int) bool { return idx%2 == 0 }

func indexGreaterThan(changes []int, v int) int {
	for i, c := range changes {
		if c > v {
			return i
		}
	}
	return len(changes) - 1
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func encodeRow(dst []byte, ref, coding []int, width int) []byte {
	a0 := -1
	a0color := false
	cidx := 0
	for a0 < width {
		idx := indexGreaterThan(ref, a0)
		if colorAt(idx) == a0color {
			idx++
		}
		b1 := ref[idx]
		b2 := ref[idx+1]

		for cidx < len(coding) && coding[cidx] <= a0 {
			cidx++
		}
		a1 := coding[cidx]
		a2 := coding[cidx+1]

		switch {
		case b2 < a1:
			dst = append(dst, modePass)
			a0 = b2
		case abs(a1-b1) <= 3:
			dst = append(dst, modeVert, byte(int8(a1-b1)))
			a0 = a1
			a0color = !a0color
		default:
			effA0 := a0
			if effA0 < 0 {
				effA0 = 0
			}
			run1 := a1 - effA0
			run2 := a2 - a1
			dst = append(dst, modeHoriz)
			dst = varint.Encode(dst, uint64(run1))
			dst = varint.Encode(dst, uint64(run2))
			a0 = a2
		}
	}
	return dst
}

// decodeRow reads tokens from enc until the row's coding line reaches width,
// returning the row's changing-element list and the number of bytes of enc
// consumed.
func decodeRow(enc []byte, ref []int, width int) ([]int, int) {
	var coding []int
	a0 := -1
	a0color := false
	pos := 0
	for a0 < width {
		idx := indexGreaterThan(ref, a0)
		if colorAt(idx) == a0color {
			idx++
		}
		b1 := ref[idx]
		b2 := ref[idx+1]

		mode := enc[pos]
		pos++
		switch mode {
		case modePass:
			a0 = b2
		case modeVert:
			delta := int(int8(enc[pos]))
			pos++
			a1 := b1 + delta
			coding = append(coding, a1)
			a0 = a1
			a0color = !a0color
		case modeHoriz:
			run1, n1 := varint.Decode(enc[pos:])
			pos += n1
			run2, n2 := varint.Decode(enc[pos:])
			pos += n2
			effA0 := a0
			if effA0 < 0 {
				effA0 = 0
			}
			a1 := effA0 + int(run1)
			a2 := a1 + int(run2)
			coding = append(coding, a1, a2)
			a0 = a2
		}
	}
	return append(coding, width, width, width), pos
}
