// Package reader implements the reader bootstrap of §4.L: it parses the
// index file into IndexRecords, locates which payload offsets apply to a
// given band (or were broadcast to a range covering it), and replays each
// band's CommandBlocks in file order. The two resource-table pseudo-bands
// (ICC profiles, color usage) are parsed once at construction time, before
// any band replay, per §4.L's "pseudo-band records are read once per page"
// rule.
//
// Actually executing the decoded command bytes into pixels is outside this
// package — the rasterizer is an external collaborator, per the format's
// own scope (spec.md's Non-goals exclude "the actual band rasterizer").
package reader

import (
	"io"
	"runtime"
	"sync"

	"github.com/bandspool/clist/bandstate"
	"github.com/bandspool/clist/bandwriter"
	"github.com/bandspool/clist/clerr"
	"github.com/bandspool/clist/page"
	"github.com/bandspool/clist/restable"
	"github.com/bandspool/clist/varint"
)

// ClistReader is package page's counterpart name for Reader, matching the
// writer/reader split a page file pair is read and written through.
type ClistReader = Reader

// Reader parses a page's index file and replays bands from its read-only
// payload file.
type Reader struct {
	records  []bandwriter.IndexRecord
	numBands int32
	payload  io.ReaderAt

	icc   []*restable.ICCEntry
	usage *restable.ColorUsageTable

	info page.PageInfo
}

// New parses idx (the full contents of a page's index file) into
// IndexRecords, reading until the end-of-page record, binds payload as the
// read-only source for CommandBlock bytes, and loads the ICC and
// color-usage pseudo-bands so they're ready before any band is replayed.
// numBands is the page's real band count N; the pseudo-band offsets N
// (color usage) and N+page.ICCTableOffset (ICC descriptor) are as written
// by package page's EndPage.
func New(idx []byte, payload io.ReaderAt, numBands int32) (*Reader, error) {
	records, err := parseIndex(idx)
	if err != nil {
		return nil, err
	}
	r := &Reader{records: records, numBands: numBands, payload: payload}
	if err := r.loadResourceTables(); err != nil {
		return nil, err
	}
	return r, nil
}

func parseIndex(idx []byte) ([]bandwriter.IndexRecord, error) {
	var records []bandwriter.IndexRecord
	for len(idx) > 0 {
		rec, n, ok := bandwriter.DecodeIndexRecord(idx)
		if !ok {
			return nil, clerr.New(clerr.KindSyntaxError, "reader.parseIndex", "truncated index record")
		}
		records = append(records, rec)
		idx = idx[n:]
		if rec.EndOfPage() {
			return records, nil
		}
	}
	return nil, clerr.New(clerr.KindSyntaxError, "reader.parseIndex", "index file missing its end-of-page record")
}

func (r *Reader) loadResourceTables() error {
	colorOffset := r.numBands
	iccOffset := r.numBands + page.ICCTableOffset

	for _, rec := range r.records {
		if rec.EndOfPage() || rec.BandMin != rec.BandMax {
			continue
		}
		switch rec.BandMin {
		case colorOffset:
			data, err := r.readBlock(rec.PayloadOffset)
			if err != nil {
				return err
			}
			r.usage = restable.DecodeColorUsageBand(data)
		case iccOffset:
			data, err := r.readBlock(rec.PayloadOffset)
			if err != nil {
				return err
			}
			r.icc = restable.DecodeICCDescriptor(data)
		}
	}
	if r.usage == nil {
		r.usage = restable.NewColorUsageTable(int(r.numBands))
	}
	return nil
}

// readBlock reads one CommandBlock at offset: a varint size prefix
// followed by that many data bytes (§3's CommandBlock encoding).
func (r *Reader) readBlock(offset int64) ([]byte, error) {
	head := make([]byte, varint.MaxBytes)
	n, err := r.payload.ReadAt(head, offset)
	if err != nil && err != io.EOF {
		return nil, clerr.Wrap(clerr.KindIO, "reader.readBlock", err)
	}
	size, hn := varint.Decode(head[:n])
	if hn == 0 {
		return nil, clerr.New(clerr.KindSyntaxError, "reader.readBlock", "unreadable command block size prefix")
	}
	buf := make([]byte, size)
	if size > 0 {
		sr := io.NewSectionReader(r.payload, offset+int64(hn), int64(size))
		if _, err := io.ReadFull(sr, buf); err != nil {
			return nil, clerr.Wrap(clerr.KindIO, "reader.readBlock", err)
		}
	}
	return buf, nil
}

// NumBands returns the page's real band count N (excluding pseudo-bands).
func (r *Reader) NumBands() int32 { return r.numBands }

// SetInfo attaches the page's fixed geometry and color model — normally
// the page.Controller.Info() of the writer that produced this page, or one
// reconstructed from a page.SavedPage when loading a saved page — so a
// reader carries the same PageInfo descriptor SPEC_FULL.md §3 describes as
// shared between ClistWriter and ClistReader, without needing its own
// band-replay-derived guess at the page's dimensions.
func (r *Reader) SetInfo(info page.PageInfo) { r.info = info }

// Info returns the PageInfo last attached with SetInfo, or its zero value
// if SetInfo was never called.
func (r *Reader) Info() page.PageInfo { return r.info }

// Records returns a copy of every IndexRecord parsed from the index file,
// in file order, including the closing end-of-page record. Exposed for
// cmd/clistdump's raw index dump; ReplayBand/BandOffsets are the normal way
// to consume a page's contents.
func (r *Reader) Records() []bandwriter.IndexRecord {
	out := make([]bandwriter.IndexRecord, len(r.records))
	copy(out, r.records)
	return out
}

// BandOffsets returns, in file order, the payload offsets of every
// CommandBlock whose band range contains band — both blocks keyed to
// exactly this band and any all-band-range broadcasts that cover it.
func (r *Reader) BandOffsets(band int32) []int64 {
	var offsets []int64
	for _, rec := range r.records {
		if rec.EndOfPage() {
			continue
		}
		if rec.BandMin >= r.numBands || rec.BandMax >= r.numBands {
			continue // pseudo-band record, not real band data
		}
		if band >= rec.BandMin && band <= rec.BandMax {
			offsets = append(offsets, rec.PayloadOffset)
		}
	}
	return offsets
}

// ReplayBand returns, in file order, the decoded command bytes for band's
// CommandBlocks. File order already satisfies §5's ordering guarantee that
// an all-band broadcast executes before any band-specific command that
// follows it, since the writer flushes in ascending (band_min, band_max)
// order every time.
func (r *Reader) ReplayBand(band int32) ([][]byte, error) {
	offsets := r.BandOffsets(band)
	blocks := make([][]byte, 0, len(offsets))
	for _, off := range offsets {
		data, err := r.readBlock(off)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, data)
	}
	return blocks, nil
}

// BandResult pairs a band index with its replayed command blocks (or the
// error that interrupted replaying it), delivered off ReplayAllBands's
// result channel.
type BandResult struct {
	Band   int32
	Blocks [][]byte
	Err    error
}

// ReplayAllBands replays every band concurrently, one goroutine per band up
// to runtime.NumCPU() at a time. Grounded on the teacher's ConcReader
// worker-pool shape (lib/rac/conc_reader.go), simplified from a single
// ordered decompression stream to clist's independent per-band replay: each
// worker reads from the same read-only payload ReaderAt with its own
// offsets, so no synchronization beyond the work queue is needed. Results
// arrive in completion order, not band order, since §5 guarantees no
// ordering between bands.
func (r *Reader) ReplayAllBands() <-chan BandResult {
	results := make(chan BandResult, r.numBands)
	bands := make(chan int32, r.numBands)
	for b := int32(0); b < r.numBands; b++ {
		bands <- b
	}
	close(bands)

	workers := runtime.NumCPU()
	if int32(workers) > r.numBands {
		workers = int(r.numBands)
	}
	if workers < 1 {
		workers = 1
	}

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for band := range bands {
				blocks, err := r.ReplayBand(band)
				results <- BandResult{Band: band, Blocks: blocks, Err: err}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()
	return results
}

// NumICCProfiles returns the number of ICC profiles interned on this page.
func (r *Reader) NumICCProfiles() int { return len(r.icc) }

// ICCProfile reads the i'th interned ICC profile's raw bytes from the
// payload file, using the profile's own inline header (hash, size, offset)
// rather than trusting the descriptor's copy of those fields for anything
// beyond locating it.
func (r *Reader) ICCProfile(i int) ([]byte, error) {
	e := r.icc[i]
	head := make([]byte, 3*varint.MaxBytes)
	n, err := r.payload.ReadAt(head, e.PayloadOffset)
	if err != nil && err != io.EOF {
		return nil, clerr.Wrap(clerr.KindIO, "reader.ICCProfile", err)
	}
	_, size, _, hn := restable.DecodeICCHeader(head[:n])
	if hn == 0 {
		return nil, clerr.New(clerr.KindSyntaxError, "reader.ICCProfile", "unreadable ICC profile header")
	}
	buf := make([]byte, size)
	if size > 0 {
		sr := io.NewSectionReader(r.payload, e.PayloadOffset+int64(hn), int64(size))
		if _, err := io.ReadFull(sr, buf); err != nil {
			return nil, clerr.Wrap(clerr.KindIO, "reader.ICCProfile", err)
		}
	}
	return buf, nil
}

// ColorUsage returns band's accumulated color-usage record, parsed once
// from the color-usage pseudo-band at construction time.
func (r *Reader) ColorUsage(band int32) bandstate.ColorUsage {
	return r.usage.Get(int(band))
}

// Rasterizer is the external collaborator that turns one band's replayed
// CommandBlocks into pixels. Decoding the opcode bytes into drawing
// operations and painting them is out of this package's scope; Render only
// hands each band its blocks in file order and its accumulated
// color-usage record.
type Rasterizer interface {
	RenderBand(band int32, commands [][]byte, usage bandstate.ColorUsage) error
}

// Render replays every band concurrently and calls raz.RenderBand once per
// band as its blocks become available, off the single goroutine that calls
// Render — so a Rasterizer implementation doesn't need its own locking even
// though bands are decoded out of order.
func (r *Reader) Render(raz Rasterizer) error {
	var firstErr error
	for res := range r.ReplayAllBands() {
		if res.Err != nil {
			if firstErr == nil {
				firstErr = res.Err
			}
			continue
		}
		if err := raz.RenderBand(res.Band, res.Blocks, r.ColorUsage(res.Band)); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

