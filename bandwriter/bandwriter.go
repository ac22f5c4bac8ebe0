// Package bandwriter implements §4.I: it receives flushed command blocks
// from package cmdbuf (satisfying cmdbuf.Flusher) and turns each into one
// CommandBlock written to the payload file (a varint size prefix followed
// by the block's bytes) plus one index record pointing at it, and appends
// the run/page terminator byte that marks the end of a flush's blocks.
package bandwriter

import (
	"io"

	"github.com/bandspool/clist/clerr"
	"github.com/bandspool/clist/cmdbuf"
	"github.com/bandspool/clist/diag"
	"github.com/bandspool/clist/opcode"
	"github.com/bandspool/clist/varint"
)

// IndexRecord is one entry of the index file (bfile): the inclusive band
// range a chunk applies to, and its offset in the payload file (cfile).
// BandMin == BandMax == -1 marks end-of-page.
type IndexRecord struct {
	BandMin, BandMax int32
	PayloadOffset    int64
}

// EndOfPage reports whether rec is the page's closing index record.
func (rec IndexRecord) EndOfPage() bool { return rec.BandMin == -1 && rec.BandMax == -1 }

// Encode appends rec's wire form (band_min, band_max, payload_offset as
// varints) to dst.
func (rec IndexRecord) Encode(dst []byte) []byte {
	dst = varint.EncodeSigned(dst, rec.BandMin)
	dst = varint.EncodeSigned(dst, rec.BandMax)
	return varint.Encode(dst, uint64(rec.PayloadOffset))
}

// DecodeIndexRecord reads one IndexRecord from the front of src, returning
// it and the number of bytes consumed. ok is false if src doesn't contain a
// complete record.
func DecodeIndexRecord(src []byte) (rec IndexRecord, n int, ok bool) {
	min, n1 := varint.DecodeSigned(src)
	if n1 == 0 {
		return IndexRecord{}, 0, false
	}
	src = src[n1:]
	max, n2 := varint.DecodeSigned(src)
	if n2 == 0 {
		return IndexRecord{}, 0, false
	}
	src = src[n2:]
	off, n3 := varint.Decode(src)
	if n3 == 0 {
		return IndexRecord{}, 0, false
	}
	return IndexRecord{BandMin: min, BandMax: max, PayloadOffset: int64(off)}, n1 + n2 + n3, true
}

// Writer is the band writer: one payload stream (cfile) and one index
// stream (bfile). It implements cmdbuf.Flusher.
type Writer struct {
	payload    io.Writer
	payloadPos int64
	index      io.Writer
	permErr    error
	log        *diag.Logger
}

// New returns a Writer over the given payload and index streams.
func New(payload, index io.Writer) *Writer {
	return &Writer{payload: payload, index: index}
}

// SetLogger directs the writer's diagnostic events (the sticky permanent
// write error, once it first occurs) to l.
func (w *Writer) SetLogger(l *diag.Logger) { w.log = l }

// PermanentError returns the sticky error left by a failed write, if any.
func (w *Writer) PermanentError() error { return w.permErr }

// setPermErr records err as the sticky permanent error and logs it, once.
func (w *Writer) setPermErr(err error) error {
	w.permErr = err
	if w.log != nil {
		w.log.Error("payload write failed, writer is now permanently broken", diag.F("err", err))
	}
	return w.permErr
}

// PayloadOffset returns the current write position in the payload stream.
func (w *Writer) PayloadOffset() int64 { return w.payloadPos }

// FlushBlock implements cmdbuf.Flusher: it writes data to the payload
// stream as a CommandBlock (a varint size prefix followed by data) at the
// current offset, and records one IndexRecord for key's band range
// pointing at the block's start.
func (w *Writer) FlushBlock(key cmdbuf.BandKey, data []byte) error {
	if w.permErr != nil {
		return w.permErr
	}
	offset := w.payloadPos
	header := varint.Encode(nil, uint64(len(data)))
	if _, err := w.payload.Write(header); err != nil {
		return w.setPermErr(clerr.Wrap(clerr.KindIO, "bandwriter.FlushBlock", err))
	}
	w.payloadPos += int64(len(header))
	if len(data) > 0 {
		if _, err := w.payload.Write(data); err != nil {
			return w.setPermErr(clerr.Wrap(clerr.KindIO, "bandwriter.FlushBlock", err))
		}
		w.payloadPos += int64(len(data))
	}
	return w.writeIndexRecord(IndexRecord{BandMin: key.Min, BandMax: key.Max, PayloadOffset: offset})
}

// WritePseudoBand writes data (an ICC descriptor or color-usage blob) as a
// pseudo-band at the given band offset, recording it with an index record
// whose band_min == band_max == that offset, per §4.H.
func (w *Writer) WritePseudoBand(bandOffset int32, data []byte) error {
	return w.FlushBlock(cmdbuf.BandKey{Min: bandOffset, Max: bandOffset}, data)
}

func (w *Writer) writeIndexRecord(rec IndexRecord) error {
	if w.permErr != nil {
		return w.permErr
	}
	buf := rec.Encode(nil)
	if _, err := w.index.Write(buf); err != nil {
		return w.setPermErr(clerr.Wrap(clerr.KindIO, "bandwriter.writeIndexRecord", err))
	}
	return nil
}

// DecodeCommandBlock reads one CommandBlock (a varint size prefix followed
// by that many bytes) from the front of src, returning the block's data and
// the total number of bytes consumed including the size prefix. ok is false
// if src doesn't contain a complete block.
func DecodeCommandBlock(src []byte) (data []byte, n int, ok bool) {
	size, sn := varint.Decode(src)
	if sn == 0 {
		return nil, 0, false
	}
	if uint64(len(src)-sn) < size {
		return nil, 0, false
	}
	return src[sn : sn+int(size)], sn + int(size), true
}

// EndRun appends a mid-page terminator to the payload stream, marking the
// end of the current flush's command bytes without closing the page.
func (w *Writer) EndRun() error {
	return w.appendTerminator(opcode.EndRun)
}

// EndPage appends the page-closing terminator to the payload stream. The
// caller (package page) still owes the resource-table pseudo-bands and the
// final (-1,-1,payload_offset) index record (CloseIndex) before the page is
// actually complete, per §4.J's end_page ordering.
func (w *Writer) EndPage() error {
	return w.appendTerminator(opcode.EndPage)
}

// CloseIndex writes the final (-1,-1,payload_offset) index record that
// marks end-of-page, once every band and pseudo-band has been flushed.
func (w *Writer) CloseIndex() error {
	return w.writeIndexRecord(IndexRecord{BandMin: -1, BandMax: -1, PayloadOffset: w.payloadPos})
}

// WriteRawPayload appends data to the payload stream without recording an
// index entry, returning the offset it was written at. Used for ICC
// profile bytes (§4.H), which are located via the ICC descriptor
// pseudo-band rather than an index record of their own.
func (w *Writer) WriteRawPayload(data []byte) (int64, error) {
	if w.permErr != nil {
		return 0, w.permErr
	}
	offset := w.payloadPos
	if _, err := w.payload.Write(data); err != nil {
		return 0, w.setPermErr(clerr.Wrap(clerr.KindIO, "bandwriter.WriteRawPayload", err))
	}
	w.payloadPos += int64(len(data))
	return offset, nil
}

func (w *Writer) appendTerminator(op opcode.Op) error {
	if w.permErr != nil {
		return w.permErr
	}
	if _, err := w.payload.Write([]byte{byte(op)}); err != nil {
		return w.setPermErr(clerr.Wrap(clerr.KindIO, "bandwriter.appendTerminator", err))
	}
	w.payloadPos++
	return nil
}

// Rewind seeks the payload and index streams back to the start and
// truncates them (if they support it), for reusing the same scratch files
// on the next page. It also clears any sticky permanent error.
func (w *Writer) Rewind() error {
	if err := rewindStream(w.payload); err != nil {
		return clerr.Wrap(clerr.KindIO, "bandwriter.Rewind", err)
	}
	if err := rewindStream(w.index); err != nil {
		return clerr.Wrap(clerr.KindIO, "bandwriter.Rewind", err)
	}
	w.payloadPos = 0
	w.permErr = nil
	return nil
}

// SeekToEnd seeks both streams to their current end, for the copy-page case
// where the next page's data is appended rather than overwriting.
func (w *Writer) SeekToEnd() error {
	pos, err := seekStreamEnd(w.payload)
	if err != nil {
		return clerr.Wrap(clerr.KindIO, "bandwriter.SeekToEnd", err)
	}
	w.payloadPos = pos
	if _, err := seekStreamEnd(w.index); err != nil {
		return clerr.Wrap(clerr.KindIO, "bandwriter.SeekToEnd", err)
	}
	return nil
}

func rewindStream(s io.Writer) error {
	seeker, ok := s.(io.Seeker)
	if !ok {
		return nil
	}
	if _, err := seeker.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if t, ok := s.(interface{ Truncate(int64) error }); ok {
		return t.Truncate(0)
	}
	return nil
}

func seekStreamEnd(s io.Writer) (int64, error) {
	seeker, ok := s.(io.Seeker)
	if !ok {
		return 0, nil
	}
	return seeker.Seek(0, io.SeekEnd)
}
