// Package restable implements the per-page resource tables of §4.H: the
// ICC-profile table (a content-addressed linked list serialized as payload
// entries plus a descriptor pseudo-band) and the color-usage array (one
// entry per band, serialized as a single pseudo-band). Both are written
// after the band terminator at page end, consumed by the reader once per
// page before any band replays.
package restable

import (
	"hash/fnv"

	"github.com/bandspool/clist/bandstate"
	"github.com/bandspool/clist/rectcode"
	"github.com/bandspool/clist/varint"
)

// ICCEntry is one interned ICC profile: its content hash (for dedup), the
// raw bytes, and the payload-file offset it was written at (filled in by
// SerializePayload).
type ICCEntry struct {
	Hash          uint64
	Data          []byte
	PayloadOffset int64
}

// ICCTable interns ICC profiles by content hash across a page, so that a
// profile referenced by multiple bands is stored once.
type ICCTable struct {
	entries []*ICCEntry
	byHash  map[uint64]int
}

// NewICCTable returns an empty table.
func NewICCTable() *ICCTable {
	return &ICCTable{byHash: make(map[uint64]int)}
}

func hashOf(data []byte) uint64 {
	h := fnv.New64a()
	h.Write(data)
	return h.Sum64()
}

// Intern returns the index of data's entry, appending a new one if this
// exact content hasn't been seen yet on this page. isNew reports whether a
// new entry was appended.
func (t *ICCTable) Intern(data []byte) (index int, isNew bool) {
	hash := hashOf(data)
	if i, ok := t.byHash[hash]; ok {
		return i, false
	}
	i := len(t.entries)
	t.entries = append(t.entries, &ICCEntry{Hash: hash, Data: data})
	t.byHash[hash] = i
	return i, true
}

// Len returns the number of interned profiles.
func (t *ICCTable) Len() int { return len(t.entries) }

// Entry returns the i'th interned profile.
func (t *ICCTable) Entry(i int) *ICCEntry { return t.entries[i] }

// Reset clears the table for a new page.
func (t *ICCTable) Reset() {
	t.entries = nil
	t.byHash = make(map[uint64]int)
}

// SerializePayload assigns each entry's PayloadOffset in table order,
// starting at startOffset, and returns the concatenated
// (header,raw-bytes) payload bytes to append to the payload file, plus the
// offset immediately following them.
func (t *ICCTable) SerializePayload(startOffset int64) (payload []byte, newOffset int64) {
	offset := startOffset
	var out []byte
	for _, e := range t.entries {
		e.PayloadOffset = offset
		header := encodeICCHeader(e)
		out = append(out, header...)
		out = append(out, e.Data...)
		offset += int64(len(header) + len(e.Data))
	}
	return out, offset
}

// encodeICCHeader writes one profile's header: hash, size, payload offset.
// SerializePayload must have already assigned e.PayloadOffset.
func encodeICCHeader(e *ICCEntry) []byte {
	var buf []byte
	buf = varint.Encode(buf, e.Hash)
	buf = varint.Encode(buf, uint64(len(e.Data)))
	buf = varint.Encode(buf, uint64(e.PayloadOffset))
	return buf
}

// DescriptorBytes builds the ICC table descriptor pseudo-band content:
// count followed by each entry's header (hash, size, payload offset), so
// the reader can locate profile bytes without rescanning the payload file.
func (t *ICCTable) DescriptorBytes() []byte {
	var out []byte
	out = varint.Encode(out, uint64(len(t.entries)))
	for _, e := range t.entries {
		out = append(out, encodeICCHeader(e)...)
	}
	return out
}

// DecodeICCHeader parses one profile's inline header (hash, size, payload
// offset) from the front of data, returning the number of bytes consumed.
// Package reader uses this to recover a profile's size directly from the
// payload file, without trusting the descriptor's copy of the same fields.
func DecodeICCHeader(data []byte) (hash, size uint64, offset int64, n int) {
	h, n1 := varint.Decode(data)
	data = data[n1:]
	sz, n2 := varint.Decode(data)
	data = data[n2:]
	off, n3 := varint.Decode(data)
	return h, sz, int64(off), n1 + n2 + n3
}

// DecodeICCDescriptor parses a descriptor pseudo-band's content back into a
// slice of entries (without their raw Data, which the reader fetches
// lazily from the payload file by PayloadOffset/size on demand).
func DecodeICCDescriptor(data []byte) []*ICCEntry {
	count, n := varint.Decode(data)
	data = data[n:]
	entries := make([]*ICCEntry, 0, count)
	for i := uint64(0); i < count; i++ {
		hash, n1 := varint.Decode(data)
		data = data[n1:]
		size, n2 := varint.Decode(data)
		data = data[n2:]
		off, n3 := varint.Decode(data)
		data = data[n3:]
		entries = append(entries, &ICCEntry{Hash: hash, PayloadOffset: int64(off), Data: make([]byte, size)})
	}
	return entries
}

// ColorUsageTable is the page's per-band color-usage array: one entry per
// band, filled in as bands are written and serialized as a single
// pseudo-band at page end.
type ColorUsageTable struct {
	entries []bandstate.ColorUsage
}

// NewColorUsageTable returns a table with numBands zero-valued entries.
func NewColorUsageTable(numBands int) *ColorUsageTable {
	return &ColorUsageTable{entries: make([]bandstate.ColorUsage, numBands)}
}

// Set records band's accumulated color usage, ORing into any prior value so
// that multiple writes to the same band accumulate rather than clobber.
func (c *ColorUsageTable) Set(band int, u bandstate.ColorUsage) {
	cur := &c.entries[band]
	cur.OrMask |= u.OrMask
	cur.SlowROP = cur.SlowROP || u.SlowROP
	cur.TransBBox = unionRect(cur.TransBBox, u.TransBBox)
}

// Reset clears every band's accumulated usage for a new page.
func (c *ColorUsageTable) Reset() {
	for i := range c.entries {
		c.entries[i] = bandstate.ColorUsage{}
	}
}

// Get returns band's accumulated color usage.
func (c *ColorUsageTable) Get(band int) bandstate.ColorUsage { return c.entries[band] }

// unionRect returns the smallest rectangle containing both a and b,
// treating a zero-valued (W==0 && H==0) rectangle as empty and ignoring it.
func unionRect(a, b rectcode.Rect) rectcode.Rect {
	if a.W == 0 && a.H == 0 {
		return b
	}
	if b.W == 0 && b.H == 0 {
		return a
	}
	x0, y0 := min32(a.X, b.X), min32(a.Y, b.Y)
	x1, y1 := max32(a.X+a.W, b.X+b.W), max32(a.Y+a.H, b.Y+b.H)
	return rectcode.Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

func min32(a, b int32) int32 {
	if a < b {
		return a
	}
	return b
}

func max32(a, b int32) int32 {
	if a > b {
		return a
	}
	return b
}

// SerializeBand encodes the full color-usage array as the pseudo-band
// content written at page end: N entries of {or_mask, slow_rop,
// trans_bbox}.
func (c *ColorUsageTable) SerializeBand() []byte {
	var out []byte
	out = varint.Encode(out, uint64(len(c.entries)))
	for _, u := range c.entries {
		out = varint.Encode(out, uint64(u.OrMask))
		if u.SlowROP {
			out = append(out, 1)
		} else {
			out = append(out, 0)
		}
		out = varint.EncodeSigned(out, u.TransBBox.X)
		out = varint.EncodeSigned(out, u.TransBBox.Y)
		out = varint.EncodeSigned(out, u.TransBBox.W)
		out = varint.EncodeSigned(out, u.TransBBox.H)
	}
	return out
}

// DecodeColorUsageBand parses the color-usage pseudo-band content back into
// a ColorUsageTable.
func DecodeColorUsageBand(data []byte) *ColorUsageTable {
	n, adv := varint.Decode(data)
	data = data[adv:]
	t := &ColorUsageTable{entries: make([]bandstate.ColorUsage, n)}
	for i := range t.entries {
		orMask, a1 := varint.Decode(data)
		data = data[a1:]
		slowROP := data[0] != 0
		data = data[1:]
		x, a2 := varint.DecodeSigned(data)
		data = data[a2:]
		y, a3 := varint.DecodeSigned(data)
		data = data[a3:]
		w, a4 := varint.DecodeSigned(data)
		data = data[a4:]
		h, a5 := varint.DecodeSigned(data)
		data = data[a5:]
		t.entries[i] = bandstate.ColorUsage{
			OrMask:    uint32(orMask),
			SlowROP:   slowROP,
			TransBBox: rectcode.Rect{X: x, Y: y, W: w, H: h},
		}
	}
	return t
}
