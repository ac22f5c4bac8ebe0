// Package bitmapcodec implements the bitmap compression selection of §4.F:
// given a bitmap and a mask of allowed compressed forms, it tries each
// allowed form, picks the smallest result, and reports a LimitCheck error if
// even the best choice exceeds the caller's per-command size limit (so the
// caller can split the transfer and retry).
package bitmapcodec

import (
	"github.com/bandspool/clist/clerr"
	"github.com/bandspool/clist/fax"
	"github.com/bandspool/clist/opcode"
)

// Mask selects which compressed forms the codec is allowed to try; raw is
// always available as the fallback.
type Mask uint8

const (
	AllowRLE      Mask = 1 << 0
	AllowG4       Mask = 1 << 1
	AllowConstant Mask = 1 << 2
	AllowAll      Mask = AllowRLE | AllowG4 | AllowConstant
)

// Bitmap is the raw input: height rows of widthBits pixels, raster bytes per
// row (raster >= ceil(widthBits*depth/8)), depth bits per pixel.
type Bitmap struct {
	Data      []byte
	WidthBits uint32
	Height    uint32
	Raster    uint32
	Depth     uint8
}

// Encoded is the chosen compressed (or raw) result. Raster records the row
// stride the bytes were packed at (needed to invert RLE/G4, which may have
// been fed padded rows per the padding-keeping exception in §4.F).
type Encoded struct {
	Type   opcode.CompressionType
	Data   []byte
	Raster int
}

// Encode picks the smallest of the forms allowed by mask, stripping row
// padding first unless the keep-padding exception applies (compressed,
// raster > 6 bytes, height > 1, !replication). It returns a LimitCheck error
// if the smallest result still exceeds limit bytes (limit <= 0 disables the
// check).
func Encode(b Bitmap, mask Mask, replication bool, limit int) (Encoded, error) {
	rawData, rawRaster := stripOrKeep(b, false, replication)
	best := Encoded{Type: opcode.CompressRaw, Data: rawData, Raster: rawRaster}

	if mask&AllowConstant != 0 {
		if c, ok := tryConstant(b); ok && len(c) < len(best.Data) {
			best = Encoded{Type: opcode.CompressConstant, Data: c, Raster: tightRaster(b.WidthBits, b.Depth)}
		}
	}
	if mask&AllowRLE != 0 {
		packed, raster := stripOrKeep(b, true, replication)
		if r := rlePack(packed); len(r) < len(best.Data) {
			best = Encoded{Type: opcode.CompressRLE, Data: r, Raster: raster}
		}
	}
	if mask&AllowG4 != 0 && b.Depth == 1 {
		// G4's changing-element coding never reads past widthBits per row,
		// so keeping row padding (the exception that benefits RLE/raw) buys
		// it nothing; always feed it tight rows, matching what fax.Decode
		// always reconstructs.
		packed, raster := stripOrKeep(b, false, replication)
		g := fax.Encode(packed, int(b.WidthBits), int(b.Height), raster)
		if len(g) < len(best.Data) {
			best = Encoded{Type: opcode.CompressG4, Data: g, Raster: raster}
		}
	}

	if limit > 0 && len(best.Data) > limit {
		return Encoded{}, clerr.New(clerr.KindLimitCheck, "bitmapcodec.Encode", "compressed bitmap exceeds per-command size limit")
	}
	return best, nil
}

// Decode inverts Encode for the given compression type.
func Decode(enc Encoded, widthBits, height, depth uint32) []byte {
	raster := enc.Raster
	if raster == 0 {
		raster = tightRaster(widthBits, uint8(depth))
	}
	switch enc.Type {
	case opcode.CompressRaw:
		return enc.Data
	case opcode.CompressRLE:
		return rleUnpack(enc.Data, raster*int(height))
	case opcode.CompressG4:
		// G4 only ever operates on tight (padding-stripped per-row) data:
		// its changing-element coding has no notion of inter-row padding
		// bytes, so Encode always feeds it a widthBits-exact row even when
		// the padding-keeping exception applies to raw/RLE.
		return fax.Decode(enc.Data, int(widthBits), int(height))
	case opcode.CompressConstant:
		out := make([]byte, raster*int(height))
		if len(enc.Data) > 0 {
			fill := enc.Data[0]
			for i := range out {
				out[i] = fill
			}
		}
		return out
	}
	return nil
}

func tightRaster(widthBits uint32, depth uint8) int {
	bits := int(widthBits) * int(depth)
	return (bits + 7) / 8
}

// stripOrKeep removes trailing row padding (repacking each row to
// ceil(widthBits*depth/8) bytes) unless compressed && raster > 6 bytes &&
// height > 1 && !replication, in which case the original raster-strided
// bytes are kept as-is. It returns the bytes and the row stride they are
// packed at.
func stripOrKeep(b Bitmap, compressed, replication bool) ([]byte, int) {
	if compressed && b.Raster > 6 && b.Height > 1 && !replication {
		return b.Data, int(b.Raster)
	}
	tight := tightRaster(b.WidthBits, b.Depth)
	if tight == int(b.Raster) {
		return b.Data, tight
	}
	out := make([]byte, tight*int(b.Height))
	for y := 0; y < int(b.Height); y++ {
		src := b.Data[y*int(b.Raster) : y*int(b.Raster)+tight]
		copy(out[y*tight:(y+1)*tight], src)
	}
	return out, tight
}

// tryConstant succeeds only if every byte of the (padding-stripped) bitmap
// is identical, representing a single-color fill.
func tryConstant(b Bitmap) ([]byte, bool) {
	data, _ := stripOrKeep(b, false, false)
	if len(data) == 0 {
		return nil, false
	}
	first := data[0]
	for _, v := range data[1:] {
		if v != first {
			return nil, false
		}
	}
	return []byte{first}, true
}

// rlePack is a PackBits-style byte-oriented run-length codec: a control byte
// n in [0,127] introduces n+1 literal bytes; n in [129,255] (read as a
// signed byte -127..-1) introduces 257-n... actually -n+1... repeats of the
// following single byte 1-n times; n == 128 is a no-op padding byte.
func rlePack(data []byte) []byte {
	var out []byte
	i := 0
	for i < len(data) {
		// Try a repeat run first.
		j := i + 1
		for j < len(data) && j-i < 128 && data[j] == data[i] {
			j++
		}
		runLen := j - i
		if runLen >= 2 {
			out = append(out, byte(257-runLen), data[i])
			i = j
			continue
		}
		// Literal run: extend until the next repeat run of >=2 would start.
		k := i + 1
		for k < len(data) && k-i < 128 {
			if k+1 < len(data) && data[k] == data[k+1] {
				break
			}
			k++
		}
		out = append(out, byte(k-i-1))
		out = append(out, data[i:k]...)
		i = k
	}
	return out
}

func rleUnpack(enc []byte, wantLen int) []byte {
	out := make([]byte, 0, wantLen)
	i := 0
	for i < len(enc) {
		n := int8(enc[i])
		i++
		switch {
		case n >= 0:
			count := int(n) + 1
			out = append(out, enc[i:i+count]...)
			i += count
		case n == -128:
			// no-op
		default:
			count := 1 - int(n)
			b := enc[i]
			i++
			for k := 0; k < count; k++ {
				out = append(out, b)
			}
		}
	}
	return out
}
