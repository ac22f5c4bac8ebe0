package reader

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	"github.com/bandspool/clist/bandstate"
	"github.com/bandspool/clist/bandwriter"
	"github.com/bandspool/clist/bitmapcodec"
	"github.com/bandspool/clist/cmdbuf"
	"github.com/bandspool/clist/colorcode"
	"github.com/bandspool/clist/opcode"
	"github.com/bandspool/clist/page"
	"github.com/bandspool/clist/rectcode"
	"github.com/bandspool/clist/varint"
)

func buildTestPage(t *testing.T) (cfilePath, bfilePath string, numBands int32) {
	t.Helper()
	dir := t.TempDir()
	cfilePath = filepath.Join(dir, "c.bin")
	bfilePath = filepath.Join(dir, "b.bin")

	c := page.New()
	ci := page.ColorInfo{Depth: 24, NumComponents: 3, MaxGrayLevel: 255, MaxColorLevel: 255}
	res := page.Resolution{XDPI: 600, YDPI: 600}
	bp := page.BandParams{BandHeight: 64, BufferSpace: 16}
	if err := c.Open("testdev", ci, res, bp, 100, 200, cfilePath, bfilePath, 4096, 1<<16, 256); err != nil {
		t.Fatal(err)
	}
	if err := c.BeginPage(); err != nil {
		t.Fatal(err)
	}
	numBands = int32(c.NumBands())

	own, err := c.Buffer().Reserve(cmdbuf.BandKey{Min: 0, Max: 0}, 3)
	if err != nil {
		t.Fatal(err)
	}
	copy(own, []byte{10, 20, 30})

	broadcast, err := c.Buffer().Reserve(cmdbuf.BandKey{Min: 0, Max: numBands - 1}, 2)
	if err != nil {
		t.Fatal(err)
	}
	copy(broadcast, []byte{99, 98})

	c.ICCTable().Intern([]byte("fake icc profile"))
	c.ColorUsage().Set(0, bandstate.ColorUsage{OrMask: 0x3})

	if err := c.EndPage(); err != nil {
		t.Fatal(err)
	}
	if err := c.FinishPage(false); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	return cfilePath, bfilePath, numBands
}

func openTestReader(t *testing.T, cfilePath, bfilePath string, numBands int32) *Reader {
	t.Helper()
	cfile, err := os.Open(cfilePath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { cfile.Close() })
	idx, err := os.ReadFile(bfilePath)
	if err != nil {
		t.Fatal(err)
	}
	r, err := New(idx, cfile, numBands)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestReplayBandIncludesOwnAndBroadcastBlocks(t *testing.T) {
	cfilePath, bfilePath, numBands := buildTestPage(t)
	r := openTestReader(t, cfilePath, bfilePath, numBands)

	blocks, err := r.ReplayBand(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(blocks) != 2 {
		t.Fatalf("got %d blocks, want 2", len(blocks))
	}
	if !bytes.Equal(blocks[0], []byte{10, 20, 30}) {
		t.Fatalf("band-specific block = %v", blocks[0])
	}
	if !bytes.Equal(blocks[1], []byte{99, 98}) {
		t.Fatalf("broadcast block = %v", blocks[1])
	}
}

func TestReplayBandOtherBandOnlyGetsBroadcast(t *testing.T) {
	cfilePath, bfilePath, numBands := buildTestPage(t)
	if numBands < 2 {
		t.Fatal("test needs at least 2 bands")
	}
	r := openTestReader(t, cfilePath, bfilePath, numBands)

	blocks, err := r.ReplayBand(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(blocks) != 1 {
		t.Fatalf("got %d blocks, want 1", len(blocks))
	}
	if !bytes.Equal(blocks[0], []byte{99, 98}) {
		t.Fatalf("broadcast block = %v", blocks[0])
	}
}

func TestResourceTablesLoadFromPseudoBands(t *testing.T) {
	cfilePath, bfilePath, numBands := buildTestPage(t)
	r := openTestReader(t, cfilePath, bfilePath, numBands)

	if r.NumICCProfiles() != 1 {
		t.Fatalf("got %d ICC profiles, want 1", r.NumICCProfiles())
	}
	data, err := r.ICCProfile(0)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "fake icc profile" {
		t.Fatalf("got %q, want %q", data, "fake icc profile")
	}

	u := r.ColorUsage(0)
	if u.OrMask != 0x3 {
		t.Fatalf("or_mask = %#x, want 0x3", u.OrMask)
	}
}

func TestReplayAllBandsCoversEveryBandExactlyOnce(t *testing.T) {
	cfilePath, bfilePath, numBands := buildTestPage(t)
	r := openTestReader(t, cfilePath, bfilePath, numBands)

	seen := make(map[int32]bool)
	for res := range r.ReplayAllBands() {
		if res.Err != nil {
			t.Fatal(res.Err)
		}
		if seen[res.Band] {
			t.Fatalf("band %d replayed twice", res.Band)
		}
		seen[res.Band] = true
	}
	if int32(len(seen)) != numBands {
		t.Fatalf("got %d distinct bands, want %d", len(seen), numBands)
	}
}

type recordingRasterizer struct {
	mu    sync.Mutex
	bands map[int32]int
}

func (rr *recordingRasterizer) RenderBand(band int32, commands [][]byte, usage bandstate.ColorUsage) error {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	if rr.bands == nil {
		rr.bands = make(map[int32]int)
	}
	rr.bands[band] = len(commands)
	return nil
}

func TestRenderCallsRasterizerOncePerBand(t *testing.T) {
	cfilePath, bfilePath, numBands := buildTestPage(t)
	r := openTestReader(t, cfilePath, bfilePath, numBands)

	raz := &recordingRasterizer{}
	if err := r.Render(raz); err != nil {
		t.Fatal(err)
	}
	if int32(len(raz.bands)) != numBands {
		t.Fatalf("got %d bands rendered, want %d", len(raz.bands), numBands)
	}
	if raz.bands[0] != 2 {
		t.Fatalf("band 0 got %d command blocks, want 2", raz.bands[0])
	}
}

// TestSaveLoadPageReplaysIdentically covers the save/load identity
// property: load(save(page_files)) must replay the same opcode stream,
// band for band, as a fresh read of the original page files.
func TestSaveLoadPageReplaysIdentically(t *testing.T) {
	dir := t.TempDir()
	cfilePath := filepath.Join(dir, "c.bin")
	bfilePath := filepath.Join(dir, "b.bin")

	c := page.New()
	ci := page.ColorInfo{Depth: 24, NumComponents: 3, MaxGrayLevel: 255, MaxColorLevel: 255}
	res := page.Resolution{XDPI: 600, YDPI: 600}
	bp := page.BandParams{BandHeight: 64, BufferSpace: 16}
	if err := c.Open("testdev", ci, res, bp, 100, 200, cfilePath, bfilePath, 4096, 1<<16, 256); err != nil {
		t.Fatal(err)
	}
	if err := c.BeginPage(); err != nil {
		t.Fatal(err)
	}
	numBands := int32(c.NumBands())

	own, err := c.Buffer().Reserve(cmdbuf.BandKey{Min: 1, Max: 1}, 3)
	if err != nil {
		t.Fatal(err)
	}
	copy(own, []byte{1, 2, 3})
	broadcast, err := c.Buffer().Reserve(cmdbuf.BandKey{Min: 0, Max: numBands - 1}, 1)
	if err != nil {
		t.Fatal(err)
	}
	copy(broadcast, []byte{7})
	c.ICCTable().Intern([]byte("round trip profile"))
	c.ColorUsage().Set(1, bandstate.ColorUsage{OrMask: 0x5})

	if err := c.EndPage(); err != nil {
		t.Fatal(err)
	}
	if err := c.FinishPage(false); err != nil {
		t.Fatal(err)
	}

	// Fresh read, straight from the files the writer produced.
	freshCFile, err := os.Open(cfilePath)
	if err != nil {
		t.Fatal(err)
	}
	defer freshCFile.Close()
	freshIdx, err := os.ReadFile(bfilePath)
	if err != nil {
		t.Fatal(err)
	}
	freshReader, err := New(freshIdx, freshCFile, numBands)
	if err != nil {
		t.Fatal(err)
	}

	// Detach, save, then load into a brand new controller.
	sp, err := c.SavePage(true)
	if err != nil {
		t.Fatal(err)
	}
	c2 := page.New()
	if err := c2.LoadPage(sp); err != nil {
		t.Fatal(err)
	}
	defer c2.Close()

	loadedIdx, err := io.ReadAll(c2.BFile())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c2.BFile().Seek(0, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	loadedReader, err := New(loadedIdx, c2.CFile(), numBands)
	if err != nil {
		t.Fatal(err)
	}

	for b := int32(0); b < numBands; b++ {
		freshBlocks, err := freshReader.ReplayBand(b)
		if err != nil {
			t.Fatal(err)
		}
		loadedBlocks, err := loadedReader.ReplayBand(b)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(freshBlocks, loadedBlocks) {
			t.Fatalf("band %d: fresh=%v, loaded=%v", b, freshBlocks, loadedBlocks)
		}
		if freshReader.ColorUsage(b) != loadedReader.ColorUsage(b) {
			t.Fatalf("band %d: color usage diverged between fresh and loaded reads", b)
		}
	}
	if freshReader.NumICCProfiles() != loadedReader.NumICCProfiles() {
		t.Fatal("ICC profile count diverged between fresh and loaded reads")
	}
}

// nonBroadcastBlock picks the block carrying a band's own drawing opcode out
// of its replayed blocks, skipping the set_color_space broadcast that
// InternICCProfile sends to every band.
func nonBroadcastBlock(t *testing.T, blocks [][]byte) []byte {
	t.Helper()
	for _, b := range blocks {
		if len(b) > 0 && opcode.Op(b[0]) != opcode.SetColorSpace {
			return b
		}
	}
	t.Fatal("no non-broadcast block found")
	return nil
}

// TestDrawingCallsRoundTripThroughEncodersAndReader exercises the
// composition layer (FillRect, TileRect, CopyMono, InternICCProfile) end to
// end: real opcode bytes produced by rectcode/colorcode/bitmapcodec are
// written through cmdbuf and bandwriter, then read back and decoded with
// the same packages' Decode functions, rather than replaying hand-authored
// raw bytes.
func TestDrawingCallsRoundTripThroughEncodersAndReader(t *testing.T) {
	dir := t.TempDir()
	cfilePath := filepath.Join(dir, "c.bin")
	bfilePath := filepath.Join(dir, "b.bin")

	c := page.New()
	ci := page.ColorInfo{Depth: 24, NumComponents: 3, MaxGrayLevel: 255, MaxColorLevel: 255}
	res := page.Resolution{XDPI: 600, YDPI: 600}
	bp := page.BandParams{BandHeight: 8, BufferSpace: 16}
	if err := c.Open("testdev", ci, res, bp, 64, 32, cfilePath, bfilePath, 4096, 1<<16, 256); err != nil {
		t.Fatal(err)
	}
	if err := c.BeginPage(); err != nil {
		t.Fatal(err)
	}
	numBands := int32(c.NumBands())
	if numBands != 4 {
		t.Fatalf("got %d bands, want 4", numBands)
	}

	fillColor := colorcode.Color(0x123456)
	if err := c.FillRect(0, rectcode.Rect{X: 1, Y: 2, W: 5, H: 10}, fillColor, false, 3); err != nil {
		t.Fatal(err)
	}

	tileData := []byte{0x0f, 0x00, 0xff, 0x0f}
	tileColor0, tileColor1 := colorcode.Color(0x01), colorcode.Color(0x02)
	if err := c.TileRect(rectcode.Rect{X: 0, Y: 16, W: 4, H: 4}, 42,
		bitmapcodec.Bitmap{Data: tileData, WidthBits: 4, Height: 4, Raster: 1, Depth: 1},
		tileColor0, tileColor1, false, false, 1, bitmapcodec.AllowAll, 0); err != nil {
		t.Fatal(err)
	}

	copyData := []byte{0xaa, 0x55}
	copyColor0, copyColor1 := colorcode.Color(0x03), colorcode.Color(0x04)
	if err := c.CopyMono(rectcode.Rect{X: 3, Y: 26, W: 8, H: 2},
		bitmapcodec.Bitmap{Data: copyData, WidthBits: 8, Height: 2, Raster: 1, Depth: 1},
		copyColor0, copyColor1, false, false, 1, bitmapcodec.AllowAll, 0); err != nil {
		t.Fatal(err)
	}

	iccData := []byte("round trip icc profile")
	if _, err := c.InternICCProfile(iccData); err != nil {
		t.Fatal(err)
	}

	if err := c.EndPage(); err != nil {
		t.Fatal(err)
	}
	if err := c.FinishPage(false); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}

	r := openTestReader(t, cfilePath, bfilePath, numBands)

	if r.NumICCProfiles() != 1 {
		t.Fatalf("got %d ICC profiles, want 1", r.NumICCProfiles())
	}
	profile, err := r.ICCProfile(0)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(profile, iccData) {
		t.Fatalf("ICC profile = %q, want %q", profile, iccData)
	}

	// Band 0: FillRect's first (full-form) color and rectangle, clipped to
	// [2,8).
	blocks0, err := r.ReplayBand(0)
	if err != nil {
		t.Fatal(err)
	}
	data0 := nonBroadcastBlock(t, blocks0)
	pos := 0
	op := opcode.Op(data0[pos])
	color, none, n := colorcode.Decode(colorcode.Color0, op, data0[pos+1:], 0, true, 3)
	pos += 1 + n
	if color != fillColor || none {
		t.Fatalf("band0 color = %#x none=%v, want %#x none=false", color, none, fillColor)
	}
	op = opcode.Op(data0[pos])
	rect, n, _, err := rectcode.Decode(rectcode.FillRect, op, data0[pos+1:], rectcode.Rect{}, false)
	if err != nil {
		t.Fatal(err)
	}
	pos += 1 + n
	if pos != len(data0) {
		t.Fatalf("band0 block left %d unconsumed bytes", len(data0)-pos)
	}
	want := rectcode.Rect{X: 1, Y: 2, W: 5, H: 6}
	if rect != want {
		t.Fatalf("band0 rect = %+v, want %+v", rect, want)
	}

	// Band 1: the same FillRect call's contribution clipped to [8,12).
	blocks1, err := r.ReplayBand(1)
	if err != nil {
		t.Fatal(err)
	}
	data1 := nonBroadcastBlock(t, blocks1)
	pos = 0
	op = opcode.Op(data1[pos])
	color, none, n = colorcode.Decode(colorcode.Color0, op, data1[pos+1:], 0, true, 3)
	pos += 1 + n
	if color != fillColor || none {
		t.Fatalf("band1 color = %#x none=%v, want %#x none=false", color, none, fillColor)
	}
	op = opcode.Op(data1[pos])
	rect, n, _, err = rectcode.Decode(rectcode.FillRect, op, data1[pos+1:], rectcode.Rect{}, false)
	if err != nil {
		t.Fatal(err)
	}
	pos += 1 + n
	if pos != len(data1) {
		t.Fatalf("band1 block left %d unconsumed bytes", len(data1)-pos)
	}
	want = rectcode.Rect{X: 1, Y: 8, W: 5, H: 4}
	if rect != want {
		t.Fatalf("band1 rect = %+v, want %+v", rect, want)
	}

	// Band 2: TileRect's tile index, both set_tile_color-framed colors, and
	// rectangle.
	blocks2, err := r.ReplayBand(2)
	if err != nil {
		t.Fatal(err)
	}
	data2 := nonBroadcastBlock(t, blocks2)
	pos = 0
	if opcode.Op(data2[pos]) != opcode.SetTileIndex {
		t.Fatalf("band2 tile opcode = %#x, want set_tile_index", data2[pos])
	}
	pos++
	idx, n := varint.Decode(data2[pos:])
	pos += n
	if idx != 0 {
		t.Fatalf("band2 tile index = %d, want 0", idx)
	}
	if opcode.Op(data2[pos]) != opcode.SetTileColor {
		t.Fatalf("band2 byte %d = %#x, want set_tile_color before color0", pos, data2[pos])
	}
	pos++
	op = opcode.Op(data2[pos])
	c0, none0, n := colorcode.Decode(colorcode.Color0, op, data2[pos+1:], 0, true, 1)
	pos += 1 + n
	if opcode.Op(data2[pos]) != opcode.SetTileColor {
		t.Fatalf("band2 byte %d = %#x, want set_tile_color before color1", pos, data2[pos])
	}
	pos++
	op = opcode.Op(data2[pos])
	c1, none1, n := colorcode.Decode(colorcode.Color1, op, data2[pos+1:], 0, true, 1)
	pos += 1 + n
	if c0 != tileColor0 || none0 || c1 != tileColor1 || none1 {
		t.Fatalf("band2 colors = (%#x,%v) (%#x,%v), want (%#x,false) (%#x,false)", c0, none0, c1, none1, tileColor0, tileColor1)
	}
	op = opcode.Op(data2[pos])
	rect, n, _, err = rectcode.Decode(rectcode.TileRect, op, data2[pos+1:], rectcode.Rect{}, false)
	if err != nil {
		t.Fatal(err)
	}
	pos += 1 + n
	if pos != len(data2) {
		t.Fatalf("band2 block left %d unconsumed bytes", len(data2)-pos)
	}
	want = rectcode.Rect{X: 0, Y: 16, W: 4, H: 4}
	if rect != want {
		t.Fatalf("band2 rect = %+v, want %+v", rect, want)
	}

	// Band 3: CopyMono's colors and compressed raster, decoded back through
	// bitmapcodec.Decode.
	blocks3, err := r.ReplayBand(3)
	if err != nil {
		t.Fatal(err)
	}
	data3 := nonBroadcastBlock(t, blocks3)
	pos = 0
	op = opcode.Op(data3[pos])
	c0, none0, n = colorcode.Decode(colorcode.Color0, op, data3[pos+1:], 0, true, 1)
	pos += 1 + n
	op = opcode.Op(data3[pos])
	c1, none1, n = colorcode.Decode(colorcode.Color1, op, data3[pos+1:], 0, true, 1)
	pos += 1 + n
	if c0 != copyColor0 || none0 || c1 != copyColor1 || none1 {
		t.Fatalf("band3 colors = (%#x,%v) (%#x,%v), want (%#x,false) (%#x,false)", c0, none0, c1, none1, copyColor0, copyColor1)
	}
	cbyte := data3[pos]
	pos++
	compType := opcode.CompressionType(cbyte & 0x07)
	x, n := varint.DecodeSigned(data3[pos:])
	pos += n
	y, n := varint.DecodeSigned(data3[pos:])
	pos += n
	widthBits, n := varint.Decode(data3[pos:])
	pos += n
	height, n := varint.Decode(data3[pos:])
	pos += n
	raster, n := varint.Decode(data3[pos:])
	pos += n
	dataLen, n := varint.Decode(data3[pos:])
	pos += n
	encData := data3[pos : pos+int(dataLen)]
	pos += int(dataLen)
	if pos != len(data3) {
		t.Fatalf("band3 block left %d unconsumed bytes", len(data3)-pos)
	}
	if x != 3 || y != 26 || widthBits != 8 || height != 2 {
		t.Fatalf("band3 copy header = x=%d y=%d width=%d height=%d, want 3,26,8,2", x, y, widthBits, height)
	}
	decoded := bitmapcodec.Decode(bitmapcodec.Encoded{Type: compType, Data: encData, Raster: int(raster)}, uint32(widthBits), uint32(height), 1)
	if !bytes.Equal(decoded, copyData) {
		t.Fatalf("band3 decoded bitmap = %v, want %v", decoded, copyData)
	}
}

// TestPageInfoSharedBetweenWriterAndReader covers SPEC_FULL.md §3's
// PageInfo addition: the same fixed-geometry descriptor the writer reports
// from Open is the one a reader is given, rather than each side keeping an
// independent (and potentially diverging) notion of the page's shape.
func TestPageInfoSharedBetweenWriterAndReader(t *testing.T) {
	cfilePath, bfilePath, numBands := buildTestPage(t)

	c := page.New()
	ci := page.ColorInfo{Depth: 24, NumComponents: 3, MaxGrayLevel: 255, MaxColorLevel: 255}
	res := page.Resolution{XDPI: 600, YDPI: 600}
	bp := page.BandParams{BandHeight: 64, BufferSpace: 16}
	dir := t.TempDir()
	if err := c.Open("infodev", ci, res, bp, 100, 200, filepath.Join(dir, "c2.bin"), filepath.Join(dir, "b2.bin"), 4096, 1<<16, 256); err != nil {
		t.Fatal(err)
	}
	want := c.Info()
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}

	r := openTestReader(t, cfilePath, bfilePath, numBands)
	if got := r.Info(); !reflect.DeepEqual(got, page.PageInfo{}) {
		t.Fatalf("Info() before SetInfo = %+v, want zero value", got)
	}
	r.SetInfo(want)
	if got := r.Info(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Info() after SetInfo = %+v, want %+v", got, want)
	}
}

func TestParseIndexErrorsOnMissingEndOfPage(t *testing.T) {
	idx := (bandwriter.IndexRecord{BandMin: 0, BandMax: 0, PayloadOffset: 0}).Encode(nil)
	if _, err := parseIndex(idx); err == nil {
		t.Fatal("expected error for index missing its end-of-page record")
	}
}

func TestParseIndexErrorsOnTruncatedRecord(t *testing.T) {
	if _, err := parseIndex([]byte{0x80}); err == nil {
		t.Fatal("expected error for a truncated index record")
	}
}
