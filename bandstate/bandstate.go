// Package bandstate implements the per-band state table (§4.C): writer-side
// memory of each band's last emitted color, tile, phase, clip and rectangle
// values, enabling the delta encoders in rectcode/colorcode, plus the
// RectEnum step iterator that walks the bands a y-range overlaps.
package bandstate

import (
	"github.com/bandspool/clist/colorcode"
	"github.com/bandspool/clist/rectcode"
)

// Tri is a three-valued flag: off, on, or "use the device default".
type Tri int

const (
	TriOff Tri = iota
	TriOn
	TriDefault
)

// NoTileIndex and NoBitmapID mark "no tile selected" in a fresh BandState.
const (
	NoTileIndex uint32 = ^uint32(0)
	NoBitmapID  uint64 = ^uint64(0)
)

// Known-bit layout: the drawing API claims bits from the high end, the path
// API from the low end, so the two APIs can set bits independently without
// colliding (§4.C).
const (
	KnownColor0       uint32 = 1 << 31
	KnownColor1       uint32 = 1 << 30
	KnownTile         uint32 = 1 << 29
	KnownTilePhase    uint32 = 1 << 28
	KnownScreenPhase0 uint32 = 1 << 27
	KnownScreenPhase1 uint32 = 1 << 26
	KnownTileColor0   uint32 = 1 << 25
	KnownTileColor1   uint32 = 1 << 24
	KnownLop          uint32 = 1 << 23
	KnownClip         uint32 = 1 << 22
	KnownColorIsDevn  uint32 = 1 << 21

	KnownRect       uint32 = 1 << 0
	KnownFillAdjust uint32 = 1 << 1
	KnownCTM        uint32 = 1 << 2
	KnownDash       uint32 = 1 << 3
)

// Point is an integer 2-vector, used for tile and screen phase.
type Point struct{ X, Y int32 }

// ColorUsage tracks, per band, which color components a page's drawing
// touched and whether transparency processing can be skipped for it.
type ColorUsage struct {
	OrMask    uint32
	SlowROP   bool
	TransBBox rectcode.Rect
}

// State is one band's writer-side memory.
type State struct {
	Colors     [2]colorcode.Color
	ColorsNone [2]bool

	TileIndex uint32
	TileID    uint64

	TilePhase   Point
	ScreenPhase [2]Point

	TileColors     [2]colorcode.Color
	TileColorsNone [2]bool

	Rect    rectcode.Rect
	SawRect bool

	Lop         uint32
	LopEnabled  Tri
	ClipEnabled Tri

	ColorIsAlpha bool
	ColorIsDevn  bool

	Known uint32
	Usage ColorUsage
}

// New returns a band's state at page-open: no tile selected, both color
// slots at "no color", no rectangle seen yet, no known bits set.
func New() *State {
	return &State{
		TileIndex:      NoTileIndex,
		TileID:         NoBitmapID,
		ColorsNone:     [2]bool{true, true},
		TileColorsNone: [2]bool{true, true},
	}
}

// Reset returns the state to its page-open values, as happens on every page
// commit.
func (s *State) Reset() { *s = *New() }

func (s *State) SetKnown(bit uint32)    { s.Known |= bit }
func (s *State) ClearKnown(bit uint32)  { s.Known &^= bit }
func (s *State) IsKnown(bit uint32) bool { return s.Known&bit != 0 }

// Table is the array of per-band State, indexed 0..N-1, plus the band
// geometry needed by RectEnum.
type Table struct {
	Bands      []State
	BandHeight int32
	PageHeight int32
}

// NewTable allocates a table of n bands (n = ceil(pageHeight/bandHeight)),
// each at its page-open state.
func NewTable(n int, bandHeight, pageHeight int32) *Table {
	bands := make([]State, n)
	for i := range bands {
		bands[i] = *New()
	}
	return &Table{Bands: bands, BandHeight: bandHeight, PageHeight: pageHeight}
}

// ResetAll returns every band to its page-open state, as happens on page
// commit.
func (t *Table) ResetAll() {
	for i := range t.Bands {
		t.Bands[i].Reset()
	}
}

// NumBands returns ceil(pageHeight/bandHeight), the band count for a page of
// the given height.
func NumBands(pageHeight, bandHeight int32) int {
	if bandHeight <= 0 {
		return 0
	}
	n := pageHeight / bandHeight
	if pageHeight%bandHeight != 0 {
		n++
	}
	return int(n)
}

// RectEnum steps through the bands a vertical span [y, y+height) overlaps,
// in increasing band order, yielding on each step the band index and the
// span clipped to that band's y-range. Callers iterate until Next reports
// ok == false (y has reached yend).
type RectEnum struct {
	y, yend, bandHeight int32
}

// NewRectEnum starts an enumeration over [y, y+height) given the page's
// band height.
func NewRectEnum(y, height, bandHeight int32) *RectEnum {
	return &RectEnum{y: y, yend: y + height, bandHeight: bandHeight}
}

// Next returns the next band touched and the y-range (clipY0, clipY1)
// clipped to it. ok is false once the enumeration is exhausted.
func (e *RectEnum) Next() (band int32, clipY0, clipY1 int32, ok bool) {
	if e.y >= e.yend {
		return 0, 0, 0, false
	}
	band = e.y / e.bandHeight
	bandEnd := (band + 1) * e.bandHeight
	clipY0 = e.y
	clipY1 = e.yend
	if clipY1 > bandEnd {
		clipY1 = bandEnd
	}
	e.y = clipY1
	return band, clipY0, clipY1, true
}

// ClipRect returns r with its vertical extent replaced by [y0, y1), keeping
// r's X and W unchanged, for use with the span RectEnum yields.
func ClipRect(r rectcode.Rect, y0, y1 int32) rectcode.Rect {
	return rectcode.Rect{X: r.X, Y: y0, W: r.W, H: y1 - y0}
}
