// Package opcode defines the single-byte command-list opcode set (§6 of the
// specification) and the tile-depth encoding table.
//
// Opcodes partition the byte range 0x00-0xff by high nibble into families:
// misc (0x0_), set-color (0x1_/0x2_), fill-rect (0x3_/0x4_/0x5_), tile-rect
// (0x6_/0x7_/0x8_), raster copy (0x9_/0xa_), tile index (0xb_/0xc_), misc2 +
// extensions (0xd_), path segments (0xe_), path ops (0xf_).
package opcode

// Op is a single command-list opcode byte.
type Op byte

// 0x0_: misc, no embedded operand bits.
const (
	EndRun          Op = 0x00
	SetTileSize     Op = 0x01
	SetTilePhase    Op = 0x02
	SetTileBits     Op = 0x03
	SetBits         Op = 0x04
	SetTileColor    Op = 0x05
	SetMisc         Op = 0x06
	EnableLop       Op = 0x07
	DisableLop      Op = 0x08
	SetScreenPhaseT Op = 0x09
	SetScreenPhaseS Op = 0x0a
	EndPage         Op = 0x0b
	DeltaColor0     Op = 0x0c
	DeltaColor1     Op = 0x0d
	SetCopyColor    Op = 0x0e
	SetCopyAlpha    Op = 0x0f
)

// SetMisc sub-selectors, packed into the top two bits of the byte following
// SetMisc.
const (
	SetMiscLop       = 0 << 6
	SetMiscDataX     = 1 << 6
	SetMiscMap       = 2 << 6
	SetMiscHalftone  = 3 << 6
	SetMiscSelMask   = 3 << 6
	SetMiscValueMask = 0x3f
)

// 0x1_/0x2_: set-color, low nibble = count of trailing zero bytes trimmed
// from the full form, or NoColorNibble for "no color" (transparent).
const (
	SetColor0     Op = 0x10
	SetColor1     Op = 0x20
	NoColorNibble byte = 15
)

// 0x3_-0x5_: fill-rect, 0x6_-0x8_: tile-rect. Each family has a full, short
// and tiny form; see package rectcode for the selection and bit layouts.
const (
	FillRectFull  Op = 0x30
	FillRectShort Op = 0x40
	FillRectTiny  Op = 0x50
	TileRectFull  Op = 0x60
	TileRectShort Op = 0x70
	TileRectTiny  Op = 0x80
)

// 0x9_: copy_mono_planes, low 3 bits = compression type, +8 = use-tile.
// 0xa_: copy_color_alpha, same operand shape.
const (
	CopyMonoPlanes Op = 0x90
	CopyUseTile        = 0x08
	CopyColorAlpha Op = 0xa0
)

// CompressionType is the low-nibble compression selector on raster copy
// opcodes: 0 = raw, 1 = RLE, 2 = CCITT G4, 3 = constant color.
type CompressionType byte

const (
	CompressRaw      CompressionType = 0
	CompressRLE      CompressionType = 1
	CompressG4       CompressionType = 2
	CompressConstant CompressionType = 3
)

// 0xb_/0xc_: tile index delta/absolute.
const (
	DeltaTileIndex Op = 0xb0
	SetTileIndex   Op = 0xc0
)

// 0xd_: misc2 and the extension-prefix opcode.
const (
	SetBitsPlanar  Op = 0xd0
	FillRectHL     Op = 0xd1
	SetFillAdjust  Op = 0xd2
	SetCTM         Op = 0xd3
	SetColorSpace  Op = 0xd4
	SetMisc2       Op = 0xd5
	SetDash        Op = 0xd6
	EnableClip     Op = 0xd7
	DisableClip    Op = 0xd8
	BeginClip      Op = 0xd9
	EndClip        Op = 0xda
	BeginImageRect Op = 0xdb
	BeginImage     Op = 0xdc
	ImageData      Op = 0xdd
	ImagePlaneData Op = 0xde
	Extend         Op = 0xdf
)

// ExtOp is the second byte following the Extend opcode prefix.
type ExtOp byte

const (
	ExtPutParams         ExtOp = 0x00
	ExtComposite         ExtOp = 0x01
	ExtPutHalftone       ExtOp = 0x02
	ExtPutHtSeg          ExtOp = 0x03
	ExtPutFillDColor     ExtOp = 0x04
	ExtPutStrokeDColor   ExtOp = 0x05
	ExtTileRectHL        ExtOp = 0x06
	ExtPutTileDevnColor0 ExtOp = 0x07
	ExtPutTileDevnColor1 ExtOp = 0x08
	ExtSetColorIsDevn    ExtOp = 0x09
	ExtUnsetColorIsDevn  ExtOp = 0x0a
)

// 0xe_: path segments.
const (
	RMoveTo    Op = 0xe0
	RLineTo    Op = 0xe1
	HLineTo    Op = 0xe2
	VLineTo    Op = 0xe3
	RMLineTo   Op = 0xe4
	RM2LineTo  Op = 0xe5
	RM3LineTo  Op = 0xe6
	RRCurveTo  Op = 0xe7
	HVCurveTo  Op = 0xe8
	VHCurveTo  Op = 0xe9
	NRCurveTo  Op = 0xea
	RNCurveTo  Op = 0xeb
	VQCurveTo  Op = 0xec
	HQCurveTo  Op = 0xed
	SCurveTo   Op = 0xee
	ClosePath  Op = 0xef
)

// 0xf_: path ops. rgapto is specified only loosely ("relative gap-to"); the
// reader treats it as a no-stroke moveto for replay purposes (§9 Open
// Questions).
const (
	Fill          Op = 0xf0
	RGapTo        Op = 0xf1
	LockPattern   Op = 0xf2
	EOFill        Op = 0xf3
	FillStroke    Op = 0xf4
	EOFillStroke  Op = 0xf5
	Stroke        Op = 0xf6
	PolyFill      Op = 0xf9
	FillTrapezoid Op = 0xfc
)

var miscNames = map[Op]string{
	EndRun: "end_run", SetTileSize: "set_tile_size", SetTilePhase: "set_tile_phase",
	SetTileBits: "set_tile_bits", SetBits: "set_bits", SetTileColor: "set_tile_color",
	SetMisc: "set_misc", EnableLop: "enable_lop", DisableLop: "disable_lop",
	SetScreenPhaseT: "set_screen_phase_t", SetScreenPhaseS: "set_screen_phase_s",
	EndPage: "end_page", DeltaColor0: "delta_color0", DeltaColor1: "delta_color1",
	SetCopyColor: "set_copy_color", SetCopyAlpha: "set_copy_alpha",
}

var misc2Names = map[Op]string{
	SetBitsPlanar: "set_bits_planar", FillRectHL: "fill_rect_hl", SetFillAdjust: "set_fill_adjust",
	SetCTM: "set_ctm", SetColorSpace: "set_color_space", SetMisc2: "set_misc2",
	SetDash: "set_dash", EnableClip: "enable_clip", DisableClip: "disable_clip",
	BeginClip: "begin_clip", EndClip: "end_clip", BeginImageRect: "begin_image_rect",
	BeginImage: "begin_image", ImageData: "image_data", ImagePlaneData: "image_plane_data",
	Extend: "extend",
}

var pathNames = map[Op]string{
	RMoveTo: "rmoveto", RLineTo: "rlineto", HLineTo: "hlineto", VLineTo: "vlineto",
	RMLineTo: "rmlineto", RM2LineTo: "rm2lineto", RM3LineTo: "rm3lineto",
	RRCurveTo: "rrcurveto", HVCurveTo: "hvcurveto", VHCurveTo: "vhcurveto",
	NRCurveTo: "nrcurveto", RNCurveTo: "rncurveto", VQCurveTo: "vqcurveto",
	HQCurveTo: "hqcurveto", SCurveTo: "scurveto", ClosePath: "closepath",
}

var pathOpNames = map[Op]string{
	Fill: "fill", RGapTo: "rgapto", LockPattern: "lock_pattern", EOFill: "eofill",
	FillStroke: "fillstroke", EOFillStroke: "eofillstroke", Stroke: "stroke",
	PolyFill: "polyfill", FillTrapezoid: "fill_trapezoid",
}

// Name returns a short mnemonic for b, grouped by nibble family the same way
// the package doc comment partitions the opcode space. Used by cmd/clistdump
// to disassemble a band's replayed command bytes; it is not part of the wire
// format itself.
func Name(b byte) string {
	op := Op(b)
	switch {
	case b <= 0x0f:
		return miscNames[op]
	case b <= 0x2f:
		return "set_color" // low nibble: trailing-zero-byte count, or no_color
	case b <= 0x8f:
		switch {
		case b <= 0x3f:
			return "fill_rect_full"
		case b <= 0x4f:
			return "fill_rect_short"
		case b <= 0x5f:
			return "fill_rect_tiny"
		case b <= 0x6f:
			return "tile_rect_full"
		case b <= 0x7f:
			return "tile_rect_short"
		default:
			return "tile_rect_tiny"
		}
	case b <= 0x9f:
		return "copy_mono_planes"
	case b <= 0xaf:
		return "copy_color_alpha"
	case b <= 0xbf:
		return "delta_tile_index"
	case b <= 0xcf:
		return "set_tile_index"
	case b <= 0xdf:
		return misc2Names[op]
	case b <= 0xef:
		return pathNames[op]
	default:
		if name, ok := pathOpNames[op]; ok {
			return name
		}
		return "reserved"
	}
}

// DepthToCode encodes a bitmap/tile depth per the table in §6: depths 1-8 map
// directly (code = depth-1); depths above 8 (12,16,24,32,...,64) map to
// 8|((depth-5)>>3).
func DepthToCode(depth int) byte {
	if depth > 8 {
		return byte(8 | ((depth - 5) >> 3))
	}
	return byte(depth - 1)
}

// CodeToDepth is the inverse of DepthToCode.
func CodeToDepth(code byte) int {
	if code&8 == 0 {
		return int(code&7) + 1
	}
	if code&7 == 0 {
		return 12
	}
	return (int(code&7) << 3) + 8
}
