package bandstate

import (
	"testing"

	"github.com/bandspool/clist/rectcode"
)

func TestNewStateDefaults(t *testing.T) {
	s := New()
	if s.TileIndex != NoTileIndex || s.TileID != NoBitmapID {
		t.Fatal("expected no tile selected")
	}
	if !s.ColorsNone[0] || !s.ColorsNone[1] {
		t.Fatal("expected both colors to start as no-color")
	}
	if s.Known != 0 {
		t.Fatal("expected no known bits set")
	}
}

func TestKnownBitsDrawingAndPathAPIsDontCollide(t *testing.T) {
	drawing := []uint32{KnownColor0, KnownColor1, KnownTile, KnownTilePhase,
		KnownScreenPhase0, KnownScreenPhase1, KnownTileColor0, KnownTileColor1,
		KnownLop, KnownClip, KnownColorIsDevn}
	path := []uint32{KnownRect, KnownFillAdjust, KnownCTM, KnownDash}
	for _, d := range drawing {
		for _, p := range path {
			if d&p != 0 {
				t.Fatalf("drawing bit %#x collides with path bit %#x", d, p)
			}
		}
	}
}

func TestResetClearsState(t *testing.T) {
	s := New()
	s.SetKnown(KnownColor0 | KnownRect)
	s.Rect = rectcode.Rect{X: 1, Y: 2, W: 3, H: 4}
	s.SawRect = true
	s.Reset()
	if s.Known != 0 || s.SawRect {
		t.Fatal("expected reset to clear known bits and SawRect")
	}
}

func TestNumBands(t *testing.T) {
	cases := []struct{ page, band int32; want int }{
		{100, 100, 1},
		{101, 100, 2},
		{0, 100, 0},
		{250, 100, 3},
	}
	for _, c := range cases {
		if got := NumBands(c.page, c.band); got != c.want {
			t.Errorf("NumBands(%d,%d) = %d, want %d", c.page, c.band, got, c.want)
		}
	}
}

func TestRectEnumSingleBand(t *testing.T) {
	e := NewRectEnum(10, 20, 100) // y in [10,30), band height 100 -> all in band 0
	band, y0, y1, ok := e.Next()
	if !ok || band != 0 || y0 != 10 || y1 != 30 {
		t.Fatalf("got band=%d y0=%d y1=%d ok=%v", band, y0, y1, ok)
	}
	if _, _, _, ok := e.Next(); ok {
		t.Fatal("expected enumeration to be exhausted")
	}
}

func TestRectEnumMultiBand(t *testing.T) {
	e := NewRectEnum(90, 40, 100) // spans [90,130): band 0 [90,100), band 1 [100,130)
	band, y0, y1, ok := e.Next()
	if !ok || band != 0 || y0 != 90 || y1 != 100 {
		t.Fatalf("step1: band=%d y0=%d y1=%d ok=%v", band, y0, y1, ok)
	}
	band, y0, y1, ok = e.Next()
	if !ok || band != 1 || y0 != 100 || y1 != 130 {
		t.Fatalf("step2: band=%d y0=%d y1=%d ok=%v", band, y0, y1, ok)
	}
	if _, _, _, ok := e.Next(); ok {
		t.Fatal("expected enumeration to be exhausted")
	}
}
