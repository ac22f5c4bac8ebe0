// Package cmdbuf implements the writer's in-memory command buffer (§4.B): a
// fixed-size byte arena holding serialized opcodes, keyed by band or band
// range, until a flush writes each band's queued bytes out as one
// CommandBlock.
//
// Chunks are tracked as (offset, length) pairs into the arena rather than
// as pointer-linked header structs embedded in the buffer itself — the
// arena-offset re-architecture described in SPEC_FULL.md §9 Design Notes,
// which replaces the source's in-buffer `cmd_prefix{size,next}` pointer
// chain with a plain Go slice of chunk records per band.
package cmdbuf

import (
	"sort"

	"github.com/bandspool/clist/clerr"
)

const DefaultCapacity = 4096

// BandKey identifies either a single band (Min == Max) or an inclusive
// range of bands that a state-changing opcode broadcasts to.
type BandKey struct {
	Min, Max int32
}

// Flusher receives one band's (or range's) accumulated bytes at flush time.
type Flusher interface {
	FlushBlock(key BandKey, data []byte) error
}

type chunk struct {
	offset, length int
	id             uint64
}

type bandList struct {
	chunks []chunk
}

// Buffer is the fixed-capacity arena. It is not safe for concurrent use;
// the writer owns exactly one.
type Buffer struct {
	arena    []byte
	used     int
	lists    map[BandKey]*bandList
	order    []BandKey
	lastKey  BandKey
	haveLast bool
	nextID   uint64
	flusher  Flusher
	permErr  error
}

// New creates a buffer with the given capacity (DefaultCapacity if <= 0)
// that flushes completed blocks to flusher.
func New(capacity int, flusher Flusher) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		arena:   make([]byte, capacity),
		lists:   make(map[BandKey]*bandList),
		flusher: flusher,
	}
}

// PermanentError returns the sticky error set by a failed flush, if any.
func (b *Buffer) PermanentError() error { return b.permErr }

// Reserve returns a writable slice of exactly n bytes owned by key's chunk
// list. If the arena lacks room, it flushes first; if n alone exceeds the
// arena's capacity even when empty, it fails with an out-of-memory error.
func (b *Buffer) Reserve(key BandKey, n int) ([]byte, error) {
	if b.permErr != nil {
		return nil, b.permErr
	}
	if b.used+n > len(b.arena) {
		if err := b.Flush(); err != nil {
			return nil, err
		}
	}
	if n > len(b.arena) {
		return nil, clerr.New(clerr.KindOutOfMemory, "cmdbuf.Reserve", "allocation larger than buffer capacity")
	}
	off := b.used
	b.used += n
	list := b.lists[key]
	if list == nil {
		list = &bandList{}
		b.lists[key] = list
		b.order = append(b.order, key)
	}
	if b.haveLast && b.lastKey == key && len(list.chunks) > 0 {
		last := &list.chunks[len(list.chunks)-1]
		if last.offset+last.length == off {
			last.length += n
			return b.arena[off : off+n], nil
		}
	}
	list.chunks = append(list.chunks, chunk{offset: off, length: n, id: b.nextID})
	b.nextID++
	b.lastKey = key
	b.haveLast = true
	return b.arena[off : off+n], nil
}

// Shorten retracts the most recent allocation (from any band) by delta
// bytes, for when a variable-length opcode turned out smaller than the
// worst-case size it reserved.
func (b *Buffer) Shorten(delta int) {
	if delta <= 0 || !b.haveLast {
		return
	}
	list := b.lists[b.lastKey]
	if list == nil || len(list.chunks) == 0 {
		return
	}
	last := &list.chunks[len(list.chunks)-1]
	if delta > last.length {
		delta = last.length
	}
	last.length -= delta
	b.used -= delta
}

// Flush writes every band's (and band range's) queued bytes out as one
// CommandBlock each, in ascending (Min, Max) order so index records land in
// band order, then empties the buffer. On I/O failure it enters the
// permanent-error state: every later call returns the same error until
// ResetForNewPage.
func (b *Buffer) Flush() error {
	if b.permErr != nil {
		return b.permErr
	}
	keys := append([]BandKey(nil), b.order...)
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Min != keys[j].Min {
			return keys[i].Min < keys[j].Min
		}
		return keys[i].Max < keys[j].Max
	})
	for _, key := range keys {
		list := b.lists[key]
		if list == nil || len(list.chunks) == 0 {
			continue
		}
		var data []byte
		for _, c := range list.chunks {
			data = append(data, b.arena[c.offset:c.offset+c.length]...)
		}
		if err := b.flusher.FlushBlock(key, data); err != nil {
			b.permErr = err
			return err
		}
	}
	b.reset()
	return nil
}

func (b *Buffer) reset() {
	b.used = 0
	b.lists = make(map[BandKey]*bandList)
	b.order = nil
	b.haveLast = false
}

// ResetForNewPage clears the permanent-error state and any queued data,
// called when the page controller begins a fresh page.
func (b *Buffer) ResetForNewPage() {
	b.permErr = nil
	b.reset()
}
