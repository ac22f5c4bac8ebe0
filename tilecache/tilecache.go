// Package tilecache implements the writer's tile bitmap cache (§4.G): a
// power-of-two open-addressed hash table over a byte arena, content
// addressed by BitmapId, with per-band "known" tracking and approximate-LRU
// (clock) eviction.
package tilecache

import "github.com/bandspool/clist/clerr"

// BitmapId identifies a tile's content; NoBitmapID marks "no tile selected".
type BitmapId = uint64

const NoBitmapID BitmapId = ^BitmapId(0)

const (
	minTableSize = 256
	maxTableSize = 4096
)

// BitVec is a per-band bitmask wide enough for any band count.
type BitVec []uint64

func NewBitVec(numBands int) BitVec {
	return make(BitVec, (numBands+63)/64)
}

func (v BitVec) Set(band int)   { v[band/64] |= 1 << uint(band%64) }
func (v BitVec) Clear(band int) { v[band/64] &^= 1 << uint(band%64) }
func (v BitVec) Test(band int) bool {
	if band/64 >= len(v) {
		return false
	}
	return v[band/64]&(1<<uint(band%64)) != 0
}
func (v BitVec) ClearAll() {
	for i := range v {
		v[i] = 0
	}
}

type slotState byte

const (
	slotEmpty slotState = iota
	slotOccupied
	slotTombstone
)

// Entry mirrors spec.md's TileCacheEntry: identity, raster geometry, the
// per-band known mask and the tile's byte range within the cache's arena.
type Entry struct {
	state     slotState
	ID        BitmapId
	Raster    uint32
	WidthBits uint32
	Height    uint32
	Depth     uint8
	BandKnown BitVec
	Offset    uint32
	Length    uint32
	clockRef  bool
}

// Cache is the hash table plus its backing arena. Not safe for concurrent
// use.
type Cache struct {
	entries   []Entry
	mask      uint64
	numBands  int
	arena     []byte
	arenaUsed uint32
	clockHand int
}

// clampPow2 rounds hint up to a power of two clamped to [minTableSize,
// maxTableSize], approximating "average glyph size at current resolution"
// sizing from §4.G with a simple doubling search.
func clampPow2(hint int) int {
	size := minTableSize
	for size < hint && size < maxTableSize {
		size *= 2
	}
	if size > maxTableSize {
		size = maxTableSize
	}
	return size
}

// New creates a cache sized from tableSizeHint (e.g. an estimate of live
// tile count), with an arena of arenaBytes, tracking known-ness across
// numBands bands.
func New(tableSizeHint, arenaBytes, numBands int) *Cache {
	size := clampPow2(tableSizeHint)
	return &Cache{
		entries:  make([]Entry, size),
		mask:     uint64(size - 1),
		numBands: numBands,
		arena:    make([]byte, arenaBytes),
	}
}

// hash is a 64-bit multiplicative (Fibonacci) hash of the bitmap id.
func hash(id BitmapId) uint64 {
	return id * 0x9e3779b97f4a7c15
}

// Lookup probes for id, returning its entry on a hit. A hit refreshes the
// entry's clock reference bit.
func (c *Cache) Lookup(id BitmapId) (*Entry, bool) {
	n := len(c.entries)
	start := int(hash(id) & c.mask)
	for probe := 0; probe < n; probe++ {
		slot := (start + probe) % n
		e := &c.entries[slot]
		switch e.state {
		case slotEmpty:
			return nil, false
		case slotOccupied:
			if e.ID == id {
				e.clockRef = true
				return e, true
			}
		}
	}
	return nil, false
}

// Insert installs a new tile (after a Lookup miss), evicting
// approximate-LRU entries if necessary to make room in the table or the
// arena. protect is the id of the tile currently being installed (never
// evicted even if, implausibly, already present as a stale slot).
func (c *Cache) Insert(id BitmapId, raster, widthBits, height uint32, depth uint8, data []byte, protect BitmapId) (*Entry, error) {
	if len(data) > len(c.arena) {
		return nil, clerr.New(clerr.KindRangeCheck, "tilecache.Insert", "tile too large to fit in cache arena")
	}
	if c.arenaUsed+uint32(len(data)) > uint32(len(c.arena)) {
		c.evictForSpace(uint32(len(data)), protect)
	}
	if c.arenaUsed+uint32(len(data)) > uint32(len(c.arena)) {
		return nil, clerr.New(clerr.KindOutOfMemory, "tilecache.Insert", "no room in cache arena after eviction")
	}

	n := len(c.entries)
	start := int(hash(id) & c.mask)
	slot := -1
	for probe := 0; probe < n; probe++ {
		s := (start + probe) % n
		st := c.entries[s].state
		if st == slotEmpty || st == slotTombstone {
			slot = s
			break
		}
	}
	if slot == -1 {
		c.evictOne(protect)
		for probe := 0; probe < n; probe++ {
			s := (start + probe) % n
			st := c.entries[s].state
			if st == slotEmpty || st == slotTombstone {
				slot = s
				break
			}
		}
		if slot == -1 {
			return nil, clerr.New(clerr.KindOutOfMemory, "tilecache.Insert", "tile cache table full")
		}
	}

	off := c.arenaUsed
	copy(c.arena[off:off+uint32(len(data))], data)
	c.arenaUsed += uint32(len(data))

	c.entries[slot] = Entry{
		state:     slotOccupied,
		ID:        id,
		Raster:    raster,
		WidthBits: widthBits,
		Height:    height,
		Depth:     depth,
		BandKnown: NewBitVec(c.numBands),
		Offset:    off,
		Length:    uint32(len(data)),
	}
	return &c.entries[slot], nil
}

// evictOne frees one occupied slot via an approximated clock sweep: entries
// with clockRef set are given a second chance (cleared) and skipped once;
// the first entry found with clockRef already false is evicted.
func (c *Cache) evictOne(protect BitmapId) bool {
	n := len(c.entries)
	for i := 0; i < 2*n; i++ {
		e := &c.entries[c.clockHand]
		c.clockHand = (c.clockHand + 1) % n
		if e.state != slotOccupied || e.ID == protect {
			continue
		}
		if e.clockRef {
			e.clockRef = false
			continue
		}
		e.state = slotTombstone
		return true
	}
	return false
}

// evictForSpace evicts entries (compacting the arena afterward) until at
// least need free bytes are available.
func (c *Cache) evictForSpace(need uint32, protect BitmapId) {
	for c.arenaUsed+need > uint32(len(c.arena)) {
		if !c.evictOne(protect) {
			break
		}
		c.compact()
	}
}

// compact rewrites the arena keeping only occupied entries' bytes, in
// ascending offset order, and updates their offsets accordingly.
func (c *Cache) compact() {
	type live struct {
		idx int
		off uint32
	}
	var lives []live
	for i := range c.entries {
		if c.entries[i].state == slotOccupied {
			lives = append(lives, live{i, c.entries[i].Offset})
		}
	}
	// Stable order by original offset so content doesn't get shuffled
	// unnecessarily.
	for i := 1; i < len(lives); i++ {
		for j := i; j > 0 && lives[j].off < lives[j-1].off; j-- {
			lives[j], lives[j-1] = lives[j-1], lives[j]
		}
	}
	newArena := make([]byte, len(c.arena))
	var used uint32
	for _, l := range lives {
		e := &c.entries[l.idx]
		copy(newArena[used:used+e.Length], c.arena[e.Offset:e.Offset+e.Length])
		e.Offset = used
		used += e.Length
	}
	c.arena = newArena
	c.arenaUsed = used
}

// MarkBandKnown flips the known bit for band on id's entry.
func (c *Cache) MarkBandKnown(id BitmapId, band int) {
	if e, ok := c.Lookup(id); ok {
		e.BandKnown.Set(band)
	}
}

// ClearBandKnownExcept clears the known bit for every band except keepBand
// (the band currently (re-)writing the tile), as happens when a tile is
// changed or re-emitted.
func (c *Cache) ClearBandKnownExcept(id BitmapId, keepBand int) {
	e, ok := c.Lookup(id)
	if !ok {
		return
	}
	kept := e.BandKnown.Test(keepBand)
	e.BandKnown.ClearAll()
	if kept {
		e.BandKnown.Set(keepBand)
	}
}

// Data returns the arena bytes backing entry e.
func (c *Cache) Data(e *Entry) []byte {
	return c.arena[e.Offset : e.Offset+e.Length]
}
