package page

import (
	"github.com/bandspool/clist/bandstate"
	"github.com/bandspool/clist/bitmapcodec"
	"github.com/bandspool/clist/clerr"
	"github.com/bandspool/clist/cmdbuf"
	"github.com/bandspool/clist/colorcode"
	"github.com/bandspool/clist/opcode"
	"github.com/bandspool/clist/rectcode"
	"github.com/bandspool/clist/tilecache"
	"github.com/bandspool/clist/varint"
)

// This file is the drawing-call composition layer of §4.J: it turns a
// device-level drawing request into per-band opcode bytes, walking the
// bands a rectangle's y-extent touches with bandstate.RectEnum, consulting
// and updating each band's bandstate.State for delta selection, encoding
// through rectcode/colorcode/bitmapcodec (and, for 1-bit G4 tiles,
// transitively through fax), and appending the result to the shared
// cmdbuf.Buffer. It is the only place production code calls into those
// encoders; everything upstream of here (a device wanting to paint
// something) only ever goes through these methods.

func colorFamily(slot int) colorcode.Family {
	if slot == 0 {
		return colorcode.Color0
	}
	return colorcode.Color1
}

func colorKnownBit(slot int) uint32 {
	if slot == 0 {
		return bandstate.KnownColor0
	}
	return bandstate.KnownColor1
}

func (c *Controller) checkInPage(op string) error {
	if c.state != StateInPage {
		return clerr.Bug(op, "called outside in_page state (state=%s)", c.state)
	}
	return nil
}

// FillRect paints rect in slot's color (0 or 1), band by band. colorBytes is
// the device's color representation width, as colorcode.Encode expects.
func (c *Controller) FillRect(slot int, rect rectcode.Rect, color colorcode.Color, colorNone bool, colorBytes int) error {
	if err := c.checkInPage("page.FillRect"); err != nil {
		return err
	}
	fam := colorFamily(slot)
	known := colorKnownBit(slot)

	e := bandstate.NewRectEnum(rect.Y, rect.H, c.bands.BandHeight)
	for {
		band, y0, y1, ok := e.Next()
		if !ok {
			break
		}
		if int(band) >= len(c.bands.Bands) {
			break
		}
		st := &c.bands.Bands[band]
		clipped := bandstate.ClipRect(rect, y0, y1)

		var buf []byte
		buf = colorcode.Encode(buf, fam, st.Colors[slot], st.ColorsNone[slot], color, colorNone, colorBytes)
		buf = rectcode.Encode(buf, rectcode.FillRect, st.Rect, clipped, st.SawRect)

		if err := c.appendBand(band, buf); err != nil {
			return err
		}

		st.Colors[slot] = color
		st.ColorsNone[slot] = colorNone
		st.Rect = clipped
		st.SawRect = true
		st.SetKnown(known)
		st.SetKnown(bandstate.KnownRect)

		c.usage.Set(int(band), bandstate.ColorUsage{OrMask: 1 << uint(slot), TransBBox: clipped})
	}
	return nil
}

// internTile ensures id's bitmap is present in the tile cache (encoding and
// inserting it on a miss) and returns its page-local tile index, assigning a
// fresh one the first time this page sees it. isNewContent reports whether
// the cache entry was (re)written, meaning every band's "known" bit for this
// tile is now stale except whichever band writes it first.
func (c *Controller) internTile(id tilecache.BitmapId, bmp bitmapcodec.Bitmap, mask bitmapcodec.Mask, limit int) (idx uint32, isNewContent bool, err error) {
	if _, hit := c.tiles.Lookup(id); hit {
		return c.tileIndex[id], false, nil
	}
	enc, err := bitmapcodec.Encode(bmp, mask, false, limit)
	if err != nil {
		return 0, false, err
	}
	if _, err := c.tiles.Insert(id, bmp.Raster, bmp.WidthBits, bmp.Height, bmp.Depth, enc.Data, id); err != nil {
		return 0, false, err
	}
	idx, ok := c.tileIndex[id]
	if !ok {
		idx = c.nextTileIndex
		c.nextTileIndex++
		c.tileIndex[id] = idx
	}
	return idx, true, nil
}

func encodeTileIndex(dst []byte, haveDelta bool, prevIdx, idx uint32) []byte {
	if haveDelta {
		dst = append(dst, byte(opcode.DeltaTileIndex))
		return varint.EncodeSigned(dst, int32(idx)-int32(prevIdx))
	}
	dst = append(dst, byte(opcode.SetTileIndex))
	return varint.Encode(dst, uint64(idx))
}

// TileRect paints rect with tile id's bitmap, band by band, selecting
// set_tile_index or delta_tile_index only for bands that don't already know
// the tile and (re-)populating the tile cache's per-band known tracking as
// each band picks it up.
func (c *Controller) TileRect(rect rectcode.Rect, id tilecache.BitmapId, bmp bitmapcodec.Bitmap, color0, color1 colorcode.Color, color0None, color1None bool, colorBytes int, mask bitmapcodec.Mask, limit int) error {
	if err := c.checkInPage("page.TileRect"); err != nil {
		return err
	}
	idx, isNewContent, err := c.internTile(id, bmp, mask, limit)
	if err != nil {
		return err
	}
	clearedKnown := !isNewContent

	e := bandstate.NewRectEnum(rect.Y, rect.H, c.bands.BandHeight)
	for {
		band, y0, y1, ok := e.Next()
		if !ok {
			break
		}
		if int(band) >= len(c.bands.Bands) {
			break
		}
		if !clearedKnown {
			c.tiles.ClearBandKnownExcept(id, int(band))
			clearedKnown = true
		}
		st := &c.bands.Bands[band]
		clipped := bandstate.ClipRect(rect, y0, y1)
		entry, _ := c.tiles.Lookup(id)

		var buf []byte
		if st.TileID != id || !entry.BandKnown.Test(int(band)) {
			buf = encodeTileIndex(buf, st.IsKnown(bandstate.KnownTile), st.TileIndex, idx)
			c.tiles.MarkBandKnown(id, int(band))
		}
		// Each changed tile color is preceded by set_tile_color.
		if tc := colorcode.Encode(nil, colorcode.Color0, st.TileColors[0], st.TileColorsNone[0], color0, color0None, colorBytes); len(tc) > 0 {
			buf = append(append(buf, byte(opcode.SetTileColor)), tc...)
		}
		if tc := colorcode.Encode(nil, colorcode.Color1, st.TileColors[1], st.TileColorsNone[1], color1, color1None, colorBytes); len(tc) > 0 {
			buf = append(append(buf, byte(opcode.SetTileColor)), tc...)
		}
		buf = rectcode.Encode(buf, rectcode.TileRect, st.Rect, clipped, st.SawRect)

		if err := c.appendBand(band, buf); err != nil {
			return err
		}

		st.TileIndex = idx
		st.TileID = id
		st.TileColors[0], st.TileColors[1] = color0, color1
		st.TileColorsNone[0], st.TileColorsNone[1] = color0None, color1None
		st.Rect = clipped
		st.SawRect = true
		st.SetKnown(bandstate.KnownTile)

		c.usage.Set(int(band), bandstate.ColorUsage{OrMask: 3, TransBBox: clipped})
	}
	return nil
}

// CopyMono paints rect from a caller-supplied raster, compressing each
// band's row slice through bitmapcodec (which reaches into package fax for
// the G4 branch on 1-bit data) rather than transferring raw rows.
func (c *Controller) CopyMono(rect rectcode.Rect, bmp bitmapcodec.Bitmap, color0, color1 colorcode.Color, color0None, color1None bool, colorBytes int, mask bitmapcodec.Mask, limit int) error {
	if err := c.checkInPage("page.CopyMono"); err != nil {
		return err
	}
	e := bandstate.NewRectEnum(rect.Y, rect.H, c.bands.BandHeight)
	for {
		band, y0, y1, ok := e.Next()
		if !ok {
			break
		}
		if int(band) >= len(c.bands.Bands) {
			break
		}
		st := &c.bands.Bands[band]
		clipped := bandstate.ClipRect(rect, y0, y1)

		rowLo, rowHi := y0-rect.Y, y1-rect.Y
		raster := int(bmp.Raster)
		sub := bitmapcodec.Bitmap{
			Data:      bmp.Data[int(rowLo)*raster : int(rowHi)*raster],
			WidthBits: bmp.WidthBits,
			Height:    uint32(rowHi - rowLo),
			Raster:    bmp.Raster,
			Depth:     bmp.Depth,
		}
		enc, err := bitmapcodec.Encode(sub, mask, false, limit)
		if err != nil {
			return err
		}

		var buf []byte
		buf = colorcode.Encode(buf, colorcode.Color0, st.Colors[0], st.ColorsNone[0], color0, color0None, colorBytes)
		buf = colorcode.Encode(buf, colorcode.Color1, st.Colors[1], st.ColorsNone[1], color1, color1None, colorBytes)
		buf = append(buf, byte(opcode.CopyMonoPlanes)|byte(enc.Type))
		buf = varint.EncodeSigned(buf, clipped.X)
		buf = varint.EncodeSigned(buf, clipped.Y)
		buf = varint.Encode(buf, uint64(bmp.WidthBits))
		buf = varint.Encode(buf, uint64(sub.Height))
		buf = varint.Encode(buf, uint64(enc.Raster))
		buf = varint.Encode(buf, uint64(len(enc.Data)))
		buf = append(buf, enc.Data...)

		if err := c.appendBand(band, buf); err != nil {
			return err
		}

		st.Colors[0], st.Colors[1] = color0, color1
		st.ColorsNone[0], st.ColorsNone[1] = color0None, color1None
		st.Rect = clipped
		st.SawRect = true

		c.usage.Set(int(band), bandstate.ColorUsage{OrMask: 3, TransBBox: clipped})
	}
	return nil
}

// InternICCProfile interns data into the page's ICC table and, on a new
// profile, broadcasts a set_color_space opcode carrying its table index to
// every band. It returns the profile's index whether or not it was new.
func (c *Controller) InternICCProfile(data []byte) (int, error) {
	if err := c.checkInPage("page.InternICCProfile"); err != nil {
		return 0, err
	}
	idx, isNew := c.icc.Intern(data)
	if !isNew {
		return idx, nil
	}
	var buf []byte
	buf = append(buf, byte(opcode.SetColorSpace))
	buf = varint.Encode(buf, uint64(idx))
	if err := c.appendBroadcast(buf); err != nil {
		return 0, err
	}
	return idx, nil
}

func (c *Controller) appendBand(band int32, buf []byte) error {
	dst, err := c.buf.Reserve(cmdbuf.BandKey{Min: band, Max: band}, len(buf))
	if err != nil {
		return err
	}
	copy(dst, buf)
	return nil
}

func (c *Controller) appendBroadcast(buf []byte) error {
	dst, err := c.buf.Reserve(cmdbuf.BandKey{Min: 0, Max: int32(c.NumBands()) - 1}, len(buf))
	if err != nil {
		return err
	}
	copy(dst, buf)
	return nil
}
