package rectcode

import (
	"testing"

	"github.com/bandspool/clist/opcode"
)

func decodeOne(t *testing.T, fam Family, buf []byte, prev Rect, sawRect bool) (Rect, int) {
	t.Helper()
	r, n, _, err := Decode(fam, opcode.Op(buf[0]), buf[1:], prev, sawRect)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return r, n + 1
}

func TestRoundTripSequence(t *testing.T) {
	seq := []Rect{
		{10, 5, 30, 20},
		{10, 5, 30, 20}, // unchanged -> tiny form with all-zero deltas
		{0, 0, 10, 10},
		{10, 0, 10, 10}, // S2: abuts previous rect -> tiny-pure
		{500, 500, 10, 10},
		{505, 480, 1000, 2000}, // forces full or medium/short
		{0, 0, 0, 0},           // would-be page fill shape, but not via EncodePageFill here
	}

	prev := Rect{}
	sawRect := false
	for i, r := range seq {
		buf := Encode(nil, FillRect, prev, r, sawRect)
		got, n := decodeOne(t, FillRect, buf, prev, sawRect)
		if n != len(buf) {
			t.Fatalf("case %d: decode consumed %d bytes, want %d", i, n, len(buf))
		}
		if got != r {
			t.Fatalf("case %d: decoded %+v, want %+v", i, got, r)
		}
		prev = r
		sawRect = true
	}
}

func TestFirstRectMustBeFull(t *testing.T) {
	buf := Encode(nil, FillRect, Rect{}, Rect{10, 5, 30, 20}, false)
	if opcode.Op(buf[0])&^0x0f != FillRect.Full {
		t.Fatalf("first rectangle opcode family = 0x%02x, want full (0x%02x)", buf[0], FillRect.Full)
	}
	if len(buf) < 2 {
		t.Fatalf("full form too short: %d bytes", len(buf))
	}
}

func TestS2TinyPureCompression(t *testing.T) {
	prev := Rect{0, 0, 10, 10}
	next := Rect{10, 0, 10, 10}
	buf := Encode(nil, FillRect, prev, next, true)
	if len(buf) != 1 {
		t.Fatalf("expected 1-byte tiny-pure form, got %d bytes: %x", len(buf), buf)
	}
	if opcode.Op(buf[0])&^0x0f != FillRect.Tiny {
		t.Fatalf("opcode family = 0x%02x, want tiny (0x%02x)", buf[0], FillRect.Tiny)
	}
}

func TestPageFillSentinel(t *testing.T) {
	buf := EncodePageFill(nil, FillRect)
	r, _, isPageFill, err := Decode(FillRect, opcode.Op(buf[0]), buf[1:], Rect{}, true)
	if err != nil {
		t.Fatal(err)
	}
	if !isPageFill {
		t.Fatal("expected isPageFill true")
	}
	if r != (Rect{}) {
		t.Fatalf("expected zero rect, got %+v", r)
	}
}

func TestForbiddenSumFallsBackToFull(t *testing.T) {
	// dy=-2, dh=-2 sums to -4: must not produce a medium-form nibble of 0.
	prev := Rect{100, 100, 50, 50}
	next := Rect{100, 98, 50, 48}
	buf := Encode(nil, FillRect, prev, next, true)
	got, n := decodeOne(t, FillRect, buf, prev, true)
	if n != len(buf) || got != next {
		t.Fatalf("round trip failed: got %+v, want %+v (consumed %d of %d)", got, next, n, len(buf))
	}
	// Must not be a medium form (a full-family opcode with a non-zero nibble).
	if opcode.Op(buf[0])&^0x0f == FillRect.Full && buf[0]&0x0f != 0 {
		t.Fatalf("forbidden sum produced a non-full, non-zero-nibble medium form: %x", buf)
	}
}

func TestTileRectFamilyIndependentOpcodes(t *testing.T) {
	buf := Encode(nil, TileRect, Rect{}, Rect{1, 2, 3, 4}, false)
	if opcode.Op(buf[0])&^0x0f != TileRect.Full {
		t.Fatalf("opcode 0x%02x not in tile_rect full family", buf[0])
	}
}
