package varint

import "testing"

func TestRoundTrip(t *testing.T) {
	values := []uint64{
		0, 1, 2, 63, 127, 128, 129, 16383, 16384, 16385,
		1 << 20, 1 << 21, 1<<35 + 7, ^uint64(0), ^uint64(0) - 1,
	}
	for _, v := range values {
		enc := Encode(nil, v)
		if got := Size(v); got != len(enc) {
			t.Errorf("Size(%d) = %d, want %d", v, got, len(enc))
		}
		got, n := Decode(enc)
		if n != len(enc) {
			t.Errorf("Decode consumed %d bytes, want %d", n, len(enc))
		}
		if got != v {
			t.Errorf("Decode(Encode(%d)) = %d", v, got)
		}
	}
}

func TestFastPathSizes(t *testing.T) {
	for v := uint64(0); v < 128; v++ {
		if n := len(Encode(nil, v)); n != 1 {
			t.Errorf("Encode(%d) produced %d bytes, want 1", v, n)
		}
	}
	for _, v := range []uint64{128, 200, 16383} {
		if n := len(Encode(nil, v)); n != 2 {
			t.Errorf("Encode(%d) produced %d bytes, want 2", v, n)
		}
	}
}

func TestDecodeIncomplete(t *testing.T) {
	// A single byte with the continuation bit set is not a complete varint.
	if v, n := Decode([]byte{0x80}); n != 0 || v != 0 {
		t.Errorf("Decode(incomplete) = (%d, %d), want (0, 0)", v, n)
	}
}

func TestSignedRoundTrip(t *testing.T) {
	for _, v := range []int32{0, 1, -1, 1000, -1000, 1 << 20, -(1 << 20)} {
		enc := EncodeSigned(nil, v)
		got, n := DecodeSigned(enc)
		if n != len(enc) || got != v {
			t.Errorf("DecodeSigned(EncodeSigned(%d)) = (%d, %d)", v, got, n)
		}
	}
}

func TestEncode2FastPath(t *testing.T) {
	enc := Encode2(nil, 3, 4)
	if len(enc) != 2 {
		t.Fatalf("Encode2(3,4) produced %d bytes, want 2", len(enc))
	}
	x, n := Decode(enc)
	if x != 3 || n != 1 {
		t.Fatalf("first varint = (%d,%d), want (3,1)", x, n)
	}
	y, n2 := Decode(enc[n:])
	if y != 4 || n2 != 1 {
		t.Fatalf("second varint = (%d,%d), want (4,1)", y, n2)
	}
}
