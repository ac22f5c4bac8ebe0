// Package page implements the page controller of §4.J: the per-device
// lifecycle state machine (closed -> open,no_page -> in_page -> committing
// -> open,no_page -> closed) that owns the shared writer buffers (tile
// cache, band state table, command buffer) and the two scratch files
// (payload "cfile", index "bfile"), plus save-page/load-page device-state
// capture and restore.
package page

import (
	"io"
	"os"

	"github.com/bandspool/clist/bandstate"
	"github.com/bandspool/clist/bandwriter"
	"github.com/bandspool/clist/clerr"
	"github.com/bandspool/clist/cmdbuf"
	"github.com/bandspool/clist/diag"
	"github.com/bandspool/clist/paramlist"
	"github.com/bandspool/clist/restable"
	"github.com/bandspool/clist/tilecache"
)

// State is one of the page controller's lifecycle states.
type State int

const (
	StateClosed State = iota
	StateOpen         // "open, no_page"
	StateInPage
	StateCommitting
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open,no_page"
	case StateInPage:
		return "in_page"
	case StateCommitting:
		return "committing"
	default:
		return "unknown"
	}
}

// ColorInfo captures a device's color model, part of save/load-page state.
type ColorInfo struct {
	Depth          int
	NumComponents  int
	MaxGrayLevel   uint32
	MaxColorLevel  uint32
}

// Resolution is a device's horizontal/vertical resolution in dots per inch.
type Resolution struct{ XDPI, YDPI float64 }

// BandParams controls the page's band geometry and per-flush buffer size.
type BandParams struct {
	BandHeight  int32
	BufferSpace int
}

// ICCTableOffset is added to the band count N to form the pseudo-band
// offset of the ICC table descriptor; the color-usage array sits at the
// plain band-count offset N (§4.H).
const ICCTableOffset = 1 << 20

// Controller is the page lifecycle state machine.
type Controller struct {
	state State

	deviceName            string
	colorInfo              ColorInfo
	resolution             Resolution
	bandParams             BandParams
	pageWidth, pageHeight  int32
	deviceParams           *paramlist.List
	separationNames        []string

	cfile, bfile           *os.File
	cfilePath, bfilePath   string

	tiles *tilecache.Cache
	bands *bandstate.Table
	buf   *cmdbuf.Buffer
	bw    *bandwriter.Writer
	icc   *restable.ICCTable
	usage *restable.ColorUsageTable

	tileIndex     map[tilecache.BitmapId]uint32
	nextTileIndex uint32

	log *diag.Logger
}

// ClistWriter is package reader's counterpart name for Controller, matching
// the writer/reader split a page file pair is read and written through.
type ClistWriter = Controller

// PageInfo summarizes a page's fixed geometry and color model: the values
// established once at Open and unchanged for the rest of the page's
// lifetime, as opposed to the band-by-band state bandstate.Table tracks.
type PageInfo struct {
	DeviceName      string
	ColorInfo       ColorInfo
	Resolution      Resolution
	PageWidth       int32
	PageHeight      int32
	BandHeight      int32
	NumBands        int
	SeparationNames []string
}

// Info returns the page's fixed geometry and color model.
func (c *Controller) Info() PageInfo {
	return PageInfo{
		DeviceName:      c.deviceName,
		ColorInfo:       c.colorInfo,
		Resolution:      c.resolution,
		PageWidth:       c.pageWidth,
		PageHeight:      c.pageHeight,
		BandHeight:      c.bandParams.BandHeight,
		NumBands:        c.NumBands(),
		SeparationNames: append([]string(nil), c.separationNames...),
	}
}

// New returns a controller in the closed state. Diagnostic events are
// discarded until SetLogger is called.
func New() *Controller { return &Controller{state: StateClosed, log: diag.New(io.Discard)} }

// SetLogger directs the controller's diagnostic events (page lifecycle
// transitions, and the band writer's sticky write error) to l.
func (c *Controller) SetLogger(l *diag.Logger) {
	c.log = l
	if c.bw != nil {
		c.bw.SetLogger(l)
	}
}

// State reports the controller's current lifecycle state.
func (c *Controller) State() State { return c.state }

// Open allocates buffers and opens cfilePath/bfilePath as the payload and
// index scratch files, transitioning closed -> open,no_page.
func (c *Controller) Open(
	deviceName string, colorInfo ColorInfo, resolution Resolution, bandParams BandParams,
	pageWidth, pageHeight int32, cfilePath, bfilePath string,
	bufCapacity, tileArenaSize, tileTableHint int,
) error {
	if c.state != StateClosed {
		return clerr.Bug("page.Open", "open called outside closed state (state=%s)", c.state)
	}
	cfile, err := os.Create(cfilePath)
	if err != nil {
		return clerr.Wrap(clerr.KindIO, "page.Open", err)
	}
	bfile, err := os.Create(bfilePath)
	if err != nil {
		cfile.Close()
		return clerr.Wrap(clerr.KindIO, "page.Open", err)
	}

	numBands := bandstate.NumBands(pageHeight, bandParams.BandHeight)
	c.deviceName = deviceName
	c.colorInfo = colorInfo
	c.resolution = resolution
	c.bandParams = bandParams
	c.pageWidth, c.pageHeight = pageWidth, pageHeight
	c.cfile, c.bfile = cfile, bfile
	c.cfilePath, c.bfilePath = cfilePath, bfilePath
	c.bands = bandstate.NewTable(numBands, bandParams.BandHeight, pageHeight)
	c.tiles = tilecache.New(tileTableHint, tileArenaSize, numBands)
	c.bw = bandwriter.New(cfile, bfile)
	c.bw.SetLogger(c.log)
	c.buf = cmdbuf.New(bufCapacity, c.bw)
	c.icc = restable.NewICCTable()
	c.usage = restable.NewColorUsageTable(numBands)
	c.tileIndex = make(map[tilecache.BitmapId]uint32)
	c.state = StateOpen
	c.log.Info("page opened", diag.F("device", deviceName), diag.F("bands", numBands))
	return nil
}

// SetDeviceParams records the device parameter list that SavePage should
// capture.
func (c *Controller) SetDeviceParams(dp *paramlist.List) { c.deviceParams = dp }

// DeviceParams returns the device parameter list previously set.
func (c *Controller) DeviceParams() *paramlist.List { return c.deviceParams }

// BeginPage resets every band's state (colors, tile index, known flags,
// rectangle memory) and the page's resource tables, transitioning
// open,no_page -> in_page.
func (c *Controller) BeginPage() error {
	if c.state != StateOpen {
		return clerr.Bug("page.BeginPage", "begin_page called outside open state (state=%s)", c.state)
	}
	c.bands.ResetAll()
	c.icc.Reset()
	c.usage.Reset()
	c.buf.ResetForNewPage()
	c.tileIndex = make(map[tilecache.BitmapId]uint32)
	c.nextTileIndex = 0
	c.state = StateInPage
	c.log.Info("begin_page")
	return nil
}

// Buffer returns the shared command buffer that drawing opcodes are
// written into via Reserve.
func (c *Controller) Buffer() *cmdbuf.Buffer { return c.buf }

// Bands returns the per-band state table used by the rectangle/color delta
// encoders.
func (c *Controller) Bands() *bandstate.Table { return c.bands }

// Tiles returns the tile bitmap cache.
func (c *Controller) Tiles() *tilecache.Cache { return c.tiles }

// ICCTable returns the page's ICC profile table.
func (c *Controller) ICCTable() *restable.ICCTable { return c.icc }

// ColorUsage returns the page's per-band color-usage accumulator.
func (c *Controller) ColorUsage() *restable.ColorUsageTable { return c.usage }

// NumBands returns the number of bands in the current page.
func (c *Controller) NumBands() int { return len(c.bands.Bands) }

// CFile and BFile expose the underlying scratch file handles, e.g. for
// package reader to read from once a page has been loaded.
func (c *Controller) CFile() *os.File { return c.cfile }
func (c *Controller) BFile() *os.File { return c.bfile }

// EndPage flushes the command buffer with its terminator, writes the ICC
// and color-usage pseudo-bands, and writes the closing index record,
// transitioning in_page -> committing.
func (c *Controller) EndPage() error {
	if c.state != StateInPage {
		return clerr.Bug("page.EndPage", "end_page called outside in_page state (state=%s)", c.state)
	}
	if err := c.buf.Flush(); err != nil {
		return err
	}
	if err := c.bw.EndPage(); err != nil {
		return err
	}

	n := int32(c.NumBands())
	if c.icc.Len() > 0 {
		payload, _ := c.icc.SerializePayload(c.bw.PayloadOffset())
		if _, err := c.bw.WriteRawPayload(payload); err != nil {
			return err
		}
		if err := c.bw.WritePseudoBand(n+ICCTableOffset, c.icc.DescriptorBytes()); err != nil {
			return err
		}
	}
	if err := c.bw.WritePseudoBand(n, c.usage.SerializeBand()); err != nil {
		return err
	}
	if err := c.bw.CloseIndex(); err != nil {
		return err
	}
	c.state = StateCommitting
	c.log.Info("end_page", diag.F("icc_profiles", c.icc.Len()))
	return nil
}

// FinishPage completes the commit, transitioning committing ->
// open,no_page. flush=true rewinds both scratch files for the next page;
// flush=false (copy-page) seeks to the end so the next page's data is
// appended rather than overwritten.
func (c *Controller) FinishPage(flush bool) error {
	if c.state != StateCommitting {
		return clerr.Bug("page.FinishPage", "finish_page called outside committing state (state=%s)", c.state)
	}
	var err error
	if flush {
		err = c.bw.Rewind()
	} else {
		err = c.bw.SeekToEnd()
	}
	if err != nil {
		return err
	}
	c.state = StateOpen
	c.log.Info("finish_page", diag.F("flush", flush))
	return nil
}

// Close closes the scratch files, transitioning open,no_page -> closed.
func (c *Controller) Close() error {
	if c.state != StateOpen {
		return clerr.Bug("page.Close", "close called outside open state (state=%s)", c.state)
	}
	var firstErr error
	if c.cfile != nil {
		if err := c.cfile.Close(); err != nil && firstErr == nil {
			firstErr = clerr.Wrap(clerr.KindIO, "page.Close", err)
		}
	}
	if c.bfile != nil {
		if err := c.bfile.Close(); err != nil && firstErr == nil {
			firstErr = clerr.Wrap(clerr.KindIO, "page.Close", err)
		}
	}
	c.cfile, c.bfile = nil, nil
	c.state = StateClosed
	if firstErr != nil {
		c.log.Error("close failed", diag.F("err", firstErr))
	} else {
		c.log.Info("page closed")
	}
	return firstErr
}

// SavedPage captures everything save-page needs to later restore a
// device's identifying state and reopen its scratch files.
type SavedPage struct {
	DeviceName            string
	ColorInfo             ColorInfo
	Resolution            Resolution
	BandParams            BandParams
	PageWidth, PageHeight int32
	DeviceParams          *paramlist.List
	SeparationNames       []string
	CFilePath, BFilePath  string

	cfile, bfile *os.File // non-nil only if the handles were detached
}

// SavePage captures the controller's device-identifying state. If detach is
// true, it takes ownership of the open scratch file handles (the
// controller returns to the closed state as if Close had been called
// without closing the files); if false, only the paths are recorded and
// the controller keeps using its open handles.
func (c *Controller) SavePage(detach bool) (*SavedPage, error) {
	if c.state != StateOpen {
		return nil, clerr.Bug("page.SavePage", "save_page called outside open state (state=%s)", c.state)
	}
	sp := &SavedPage{
		DeviceName:      c.deviceName,
		ColorInfo:       c.colorInfo,
		Resolution:      c.resolution,
		BandParams:      c.bandParams,
		PageWidth:       c.pageWidth,
		PageHeight:      c.pageHeight,
		DeviceParams:    c.deviceParams,
		SeparationNames: append([]string(nil), c.separationNames...),
		CFilePath:       c.cfilePath,
		BFilePath:       c.bfilePath,
	}
	if detach {
		sp.cfile, sp.bfile = c.cfile, c.bfile
		c.cfile, c.bfile = nil, nil
		c.state = StateClosed
	}
	return sp, nil
}

// LoadPage reverses SavePage: it restores a closed controller's
// device-identifying state from sp and reopens (or reuses the detached)
// scratch files read-only, leaving the controller in the open state ready
// for package reader to replay bands from.
func (c *Controller) LoadPage(sp *SavedPage) error {
	if c.state != StateClosed {
		return clerr.Bug("page.LoadPage", "load_page called outside closed state (state=%s)", c.state)
	}
	var cfile, bfile *os.File
	if sp.cfile != nil && sp.bfile != nil {
		cfile, bfile = sp.cfile, sp.bfile
		for _, f := range []*os.File{cfile, bfile} {
			if _, err := f.Seek(0, io.SeekStart); err != nil {
				return clerr.Wrap(clerr.KindIO, "page.LoadPage", err)
			}
		}
	} else {
		var err error
		cfile, err = os.Open(sp.CFilePath)
		if err != nil {
			return clerr.Wrap(clerr.KindIO, "page.LoadPage", err)
		}
		bfile, err = os.Open(sp.BFilePath)
		if err != nil {
			cfile.Close()
			return clerr.Wrap(clerr.KindIO, "page.LoadPage", err)
		}
	}
	c.deviceName = sp.DeviceName
	c.colorInfo = sp.ColorInfo
	c.resolution = sp.Resolution
	c.bandParams = sp.BandParams
	c.pageWidth, c.pageHeight = sp.PageWidth, sp.PageHeight
	c.deviceParams = sp.DeviceParams
	c.separationNames = append([]string(nil), sp.SeparationNames...)
	c.cfile, c.bfile = cfile, bfile
	c.cfilePath, c.bfilePath = sp.CFilePath, sp.BFilePath
	c.state = StateOpen
	return nil
}
