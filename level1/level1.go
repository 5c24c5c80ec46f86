// Package level1 implements C3, the Level-1 formatter: it streams a raw
// page's odd-parity bytes through a per-row spacing-attribute state machine
// into a cell.Page grid.
package level1

import (
	"fmt"

	"github.com/bdwalton/ttxfmt/cell"
	"github.com/bdwalton/ttxfmt/charset"
	"github.com/bdwalton/ttxfmt/raw"
)

const (
	mosaicContiguous = 0xEE20
	mosaicSeparated  = 0xEE00
)

// rowState is the per-row spacing-attribute state the control-code table of
// spec §4.2 mutates.
type rowState struct {
	fg, bg     uint8
	opacity    cell.Opacity
	size       cell.Size
	flash      bool
	conceal    bool
	underline  bool
	font       int // 0 primary, 1 alternate
	mosaic     bool
	contiguous bool
	hold       bool
	held       rune
}

func newRowState() rowState {
	return rowState{fg: 7, bg: 0, opacity: cell.Opaque, contiguous: true, held: ' '}
}

// stripParity returns b with its parity bit removed, or (0x20, false) if the
// byte fails its odd-parity check (spec §4.2: "on parity failure substitute
// 0x20").
func stripParity(b byte) (byte, bool) {
	ones := 0
	for i := 0; i < 8; i++ {
		if b&(1<<i) != 0 {
			ones++
		}
	}
	if ones%2 == 0 {
		return 0x20, false
	}
	return b & 0x7F, true
}

// Format renders rp's Level-1 raw bytes into pg using the resolved
// (primary, alternate) character-set descriptors and font table. It writes
// the full 25-row grid, including the double-height/double-size
// continuation-row replication pass.
func Format(pg *cell.Page, rp *raw.Page, font *charset.Font, primary, alternate uint8) {
	if font == nil {
		font = charset.DefaultFont
	}

	for r := 0; r < cell.Rows; r++ {
		formatRow(pg, rp, r, font, primary, alternate)
	}

	writeHeader(pg, rp.Pgno, rp.Subno)

	propagateDoubleHeight(pg)
}

func formatRow(pg *cell.Page, rp *raw.Page, row int, font *charset.Font, primary, alternate uint8) {
	st := newRowState()

	for col := 0; col < cell.Cols; col++ {
		b, ok := stripParity(rp.Level1[row][col])
		if !ok {
			b = 0x20
		}

		var out cell.Cell
		if b < 0x20 {
			out = applyControl(&st, b, row, col)
		} else {
			out = glyphCell(&st, b, font, descriptorFor(&st, primary, alternate))
		}

		*pg.At(row, col) = out

		if out.Size&cell.DoubleWidth != 0 && col+1 < cell.Cols {
			*pg.At(row, col+1) = cell.Cell{Code: ' ', Foreground: out.Foreground, Background: out.Background, Opacity: out.Opacity, Size: cell.OverTop}
			col++
		}
	}
}

func descriptorFor(st *rowState, primary, alternate uint8) uint8 {
	if st.font == 1 {
		return alternate
	}
	return primary
}

// applyControl interprets a control code (< 0x20) under the set-at/set-after
// rules of spec §4.2 and returns the cell the control byte itself occupies
// (always a space). row and col are the byte's grid position: double-height
// and double-size are only honoured for rows 1..22, and double-width/size
// only for columns < 39 (the original's header/footer/last-column guard).
func applyControl(st *rowState, code byte, row, col int) cell.Cell {
	render := func() cell.Cell {
		return cell.Cell{
			Code:       ' ',
			Foreground: st.fg,
			Background: st.bg,
			Opacity:    st.opacity,
			Flash:      st.flash,
			Conceal:    st.conceal,
			Underline:  st.underline,
		}
	}

	switch {
	case code <= 0x07: // alpha + foreground colour: set-AFTER
		out := render()
		st.fg = code
		st.mosaic = false
		return out
	case code == 0x08: // flash on: set-AFTER
		out := render()
		st.flash = true
		return out
	case code == 0x09: // steady: set-AT
		st.flash = false
		return render()
	case code == 0x0A, code == 0x0B: // end/start box: set-AFTER (no boxed-opacity model here)
		return render()
	case code == 0x0C: // normal size: set-AT
		st.size = cell.Normal
		return render()
	case code == 0x0D: // double height: set-AFTER, rows 1..22 only
		out := render()
		if row >= 1 && row <= 22 {
			st.size = cell.DoubleHeight
		}
		return out
	case code == 0x0E: // double width: set-AFTER, columns < 39 only
		out := render()
		if col < cell.Cols-1 {
			st.size = cell.DoubleWidth
		}
		return out
	case code == 0x0F: // double size: set-AFTER, rows 1..22 and columns < 39 only
		out := render()
		if row >= 1 && row <= 22 && col < cell.Cols-1 {
			st.size = cell.DoubleSize
		}
		return out
	case code >= 0x10 && code <= 0x17: // mosaic + foreground colour: set-AFTER
		out := render()
		st.fg = code & 0x07
		st.mosaic = true
		return out
	case code == 0x18: // conceal: set-AT
		st.conceal = true
		return render()
	case code == 0x19: // contiguous mosaic: set-AT
		st.contiguous = true
		return render()
	case code == 0x1A: // separated mosaic: set-AT
		st.contiguous = false
		return render()
	case code == 0x1B: // ESC: set-AFTER, toggles font slot
		out := render()
		st.font ^= 1
		return out
	case code == 0x1C: // black background: set-AT
		st.bg = 0
		return render()
	case code == 0x1D: // new background: set-AT
		st.bg = st.fg
		return render()
	case code == 0x1E: // hold mosaic: set-AT
		st.hold = true
		return render()
	case code == 0x1F: // release mosaic: set-AFTER
		out := render()
		st.hold = false
		return out
	default:
		return render()
	}
}

func glyphCell(st *rowState, b byte, font *charset.Font, descriptor uint8) cell.Cell {
	var code rune
	if st.mosaic && b < 0x40 {
		base := mosaicSeparated
		if st.contiguous {
			base = mosaicContiguous
		}
		code = rune(base + int(b-0x20))
		st.held = code
	} else {
		if st.mosaic && st.hold {
			code = st.held
		} else {
			code = font.Lookup(descriptor, b)
		}
	}

	return cell.Cell{
		Code:       code,
		Foreground: st.fg,
		Background: st.bg,
		Opacity:    st.opacity,
		Size:       st.size,
		Flash:      st.flash,
		Conceal:    st.conceal,
		Underline:  st.underline,
	}
}

// writeHeader overwrites row 0 columns 0..7 with the literal STX pgno.subno
// BEL string, per spec §4.2.
func writeHeader(pg *cell.Page, pgno, subno int) {
	s := fmt.Sprintf("\x02%03x.%02x\x07", pgno, subno&0xFF)
	for i, r := range []byte(s) {
		if i >= 8 {
			break
		}
		c := pg.At(0, i)
		c.Code = rune(r)
		c.Foreground = 7
		c.Background = 0
		c.Opacity = cell.Opaque
		c.Size = cell.Normal
	}
}

// propagateDoubleHeight replicates any row carrying a double-height or
// double-size glyph into the row below, rewriting sizes to their
// continuation variants. Spec §4.2: "Rows carrying any double-height/
// double-size glyph replicate themselves into the next row..."
func propagateDoubleHeight(pg *cell.Page) {
	for r := 0; r < cell.Rows-1; r++ {
		hasDouble := false
		for c := 0; c < cell.Cols; c++ {
			sz := pg.Grid[r][c].Size
			if sz == cell.DoubleHeight || sz == cell.DoubleSize {
				hasDouble = true
				break
			}
		}
		if !hasDouble {
			continue
		}
		for c := 0; c < cell.Cols; c++ {
			src := pg.Grid[r][c]
			dst := pg.At(r+1, c)
			switch src.Size {
			case cell.DoubleHeight:
				*dst = cell.Cell{Code: ' ', Foreground: src.Foreground, Background: src.Background, Opacity: src.Opacity, Size: cell.DoubleHeightLower}
			case cell.DoubleSize:
				*dst = cell.Cell{Code: ' ', Foreground: src.Foreground, Background: src.Background, Opacity: src.Opacity, Size: cell.DoubleSizeLower}
				if c+1 < cell.Cols {
					*pg.At(r+1, c+1) = cell.Cell{Code: ' ', Foreground: src.Foreground, Background: src.Background, Opacity: src.Opacity, Size: cell.OverBottom}
				}
			default:
				*dst = cell.Cell{Code: ' ', Foreground: 7, Background: 0, Opacity: cell.Opaque, Size: cell.Normal}
			}
		}
	}
}
