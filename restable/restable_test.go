package restable

import (
	"testing"

	"github.com/bandspool/clist/bandstate"
	"github.com/bandspool/clist/rectcode"
)

func TestICCInternDedupesByContent(t *testing.T) {
	tbl := NewICCTable()
	i1, isNew1 := tbl.Intern([]byte("profile-a"))
	i2, isNew2 := tbl.Intern([]byte("profile-b"))
	i3, isNew3 := tbl.Intern([]byte("profile-a"))
	if !isNew1 || !isNew2 {
		t.Fatal("expected first two interns to be new")
	}
	if isNew3 {
		t.Fatal("expected duplicate content to not create a new entry")
	}
	if i1 != i3 {
		t.Fatalf("expected same index for duplicate content, got %d and %d", i1, i3)
	}
	if tbl.Len() != 2 {
		t.Fatalf("got %d entries, want 2", tbl.Len())
	}
	_ = i2
}

func TestICCSerializePayloadAssignsOffsetsInOrder(t *testing.T) {
	tbl := NewICCTable()
	tbl.Intern([]byte("aaa"))
	tbl.Intern([]byte("bbbb"))
	payload, newOffset := tbl.SerializePayload(100)
	if tbl.Entry(0).PayloadOffset != 100 {
		t.Fatalf("first entry offset = %d, want 100", tbl.Entry(0).PayloadOffset)
	}
	if tbl.Entry(1).PayloadOffset <= 100 {
		t.Fatal("second entry offset should be after first")
	}
	if newOffset != 100+int64(len(payload)) {
		t.Fatalf("newOffset %d doesn't match payload length", newOffset)
	}
}

func TestICCDescriptorRoundTrips(t *testing.T) {
	tbl := NewICCTable()
	tbl.Intern([]byte("hello"))
	tbl.Intern([]byte("world!!"))
	tbl.SerializePayload(0)
	desc := tbl.DescriptorBytes()
	got := DecodeICCDescriptor(desc)
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}
	if got[0].Hash != tbl.Entry(0).Hash || got[1].Hash != tbl.Entry(1).Hash {
		t.Fatal("hash mismatch after decode")
	}
	if len(got[1].Data) != len(tbl.Entry(1).Data) {
		t.Fatal("decoded placeholder size should match original length")
	}
}

func TestColorUsageSetAccumulatesAcrossWrites(t *testing.T) {
	tbl := NewColorUsageTable(3)
	tbl.Set(1, bandstate.ColorUsage{OrMask: 0x01, TransBBox: rectcode.Rect{X: 0, Y: 0, W: 10, H: 10}})
	tbl.Set(1, bandstate.ColorUsage{OrMask: 0x02, SlowROP: true, TransBBox: rectcode.Rect{X: 5, Y: 5, W: 10, H: 10}})
	got := tbl.Get(1)
	if got.OrMask != 0x03 {
		t.Fatalf("or_mask = %#x, want 0x03", got.OrMask)
	}
	if !got.SlowROP {
		t.Fatal("expected slow_rop to be sticky true")
	}
	want := rectcode.Rect{X: 0, Y: 0, W: 15, H: 15}
	if got.TransBBox != want {
		t.Fatalf("trans_bbox = %+v, want %+v", got.TransBBox, want)
	}
}

func TestColorUsageBandRoundTrips(t *testing.T) {
	tbl := NewColorUsageTable(2)
	tbl.Set(0, bandstate.ColorUsage{OrMask: 7, TransBBox: rectcode.Rect{X: 1, Y: 2, W: 3, H: 4}})
	tbl.Set(1, bandstate.ColorUsage{OrMask: 0, SlowROP: true})
	enc := tbl.SerializeBand()
	got := DecodeColorUsageBand(enc)
	if got.Get(0) != tbl.Get(0) {
		t.Fatalf("band 0 mismatch: got %+v want %+v", got.Get(0), tbl.Get(0))
	}
	if got.Get(1) != tbl.Get(1) {
		t.Fatalf("band 1 mismatch: got %+v want %+v", got.Get(1), tbl.Get(1))
	}
}

func TestColorUsageResetClears(t *testing.T) {
	tbl := NewColorUsageTable(1)
	tbl.Set(0, bandstate.ColorUsage{OrMask: 9})
	tbl.Reset()
	if tbl.Get(0) != (bandstate.ColorUsage{}) {
		t.Fatal("expected reset to clear accumulated usage")
	}
}

func TestICCResetClearsDedup(t *testing.T) {
	tbl := NewICCTable()
	tbl.Intern([]byte("x"))
	tbl.Reset()
	if tbl.Len() != 0 {
		t.Fatal("expected reset to clear entries")
	}
	_, isNew := tbl.Intern([]byte("x"))
	if !isNew {
		t.Fatal("expected content seen before reset to be new again")
	}
}

func TestUnionRectIgnoresEmptyOperand(t *testing.T) {
	a := rectcode.Rect{}
	b := rectcode.Rect{X: 1, Y: 1, W: 2, H: 2}
	if got := unionRect(a, b); got != b {
		t.Fatalf("got %+v, want %+v", got, b)
	}
	if got := unionRect(b, a); got != b {
		t.Fatalf("got %+v, want %+v", got, b)
	}
}
