// Package nav implements C8, navigation synthesis: the FLOF fastext bar and
// coloured-link post-processing, the TOP navigation bar, and the TOP index
// virtual page (pgno 0x900).
package nav

import (
	"fmt"

	"github.com/bdwalton/ttxfmt/cache"
	"github.com/bdwalton/ttxfmt/cell"
	"github.com/bdwalton/ttxfmt/raw"
)

// flofPalette is the fixed four-colour order used for the FLOF bar's link
// slots: red, green, yellow, cyan.
var flofPalette = [4]uint8{1, 2, 3, 6}

const lastRow = cell.Rows - 1

// FlofBar paints the bottom row with the four fastext link page numbers in
// their fixed palette, and records each span's nav slot.
func FlofBar(pg *cell.Page, links [4]cell.PageRef) {
	for c := 0; c < cell.Cols; c++ {
		pg.Grid[lastRow][c] = cell.Cell{Code: ' ', Foreground: 7, Background: 0, Opacity: cell.Opaque}
		pg.NavIndex[lastRow][c] = -1
	}

	for i, ref := range links {
		pg.NavLink[i] = ref
		if ref.Pgno == 0xFFF || ref.Pgno == 0 {
			continue
		}
		label := fmt.Sprintf("%03x", ref.Pgno)
		base := i*10 + 3
		for k, r := range label {
			col := base + k
			if col >= cell.Cols {
				break
			}
			c := &pg.Grid[lastRow][col]
			c.Code = r
			c.Foreground = flofPalette[i]
			c.Link = true
			pg.NavIndex[lastRow][col] = int8(i)
		}
	}
}

// FlofColourLinks post-processes a last row the Level-1 formatter already
// drew: runs of a FLOF palette colour become links if the corresponding
// slot is live.
func FlofColourLinks(pg *cell.Page, links [4]cell.PageRef) {
	for i, ref := range links {
		pg.NavLink[i] = ref
	}

	c := 0
	for c < cell.Cols {
		fg := pg.Grid[lastRow][c].Foreground
		slot := paletteSlot(fg)
		if slot < 0 {
			c++
			continue
		}
		start := c
		for c < cell.Cols && pg.Grid[lastRow][c].Foreground == fg {
			c++
		}
		end := c
		for start < end && pg.Grid[lastRow][start].Code == ' ' {
			start++
		}
		for end > start && pg.Grid[lastRow][end-1].Code == ' ' {
			end--
		}
		if links[slot].Pgno == 0xFFF {
			continue
		}
		for k := start; k < end; k++ {
			pg.Grid[lastRow][k].Link = true
			pg.NavIndex[lastRow][k] = int8(slot)
		}
	}
}

func paletteSlot(fg uint8) int {
	for i, p := range flofPalette {
		if p == fg {
			return i
		}
	}
	return -1
}

// topLabelSlot is one of the three TOP bar label positions.
type topLabelSlot struct {
	col    int
	colour uint8
	suffix string
}

var topSlots = [3]topLabelSlot{
	{col: 1, colour: 7, suffix: ""},
	{col: 14, colour: 2, suffix: ">"},
	{col: 27, colour: 3, suffix: ">>"},
}

// TopBar fills the last row with up to three labels at columns 1, 14 and 27,
// taken from the AIT titles of the first three type-2 BTT links (see
// topLabels). Labels are written left-aligned in their slot.
func TopBar(pg *cell.Page, store cache.Store, btt [8]raw.BTTLink, ait *raw.Page) {
	for c := 0; c < cell.Cols; c++ {
		pg.Grid[lastRow][c] = cell.Cell{Code: ' ', Foreground: 7, Background: 0, Opacity: cell.Opaque}
	}

	labels := topLabels(btt, ait)
	for i, label := range labels {
		if label == "" {
			continue
		}
		slot := topSlots[i]
		text := label + slot.suffix
		for k := 0; k < len(text) && slot.col+k < cell.Cols; k++ {
			c := &pg.Grid[lastRow][slot.col+k]
			c.Code = rune(text[k])
			c.Foreground = slot.colour
		}
	}
}

// topLabels returns the AIT titles of the first three type-2 entries of btt,
// in btt order. It does not look at the current page, so the labels are not
// its preceding BLOCK/GROUP, next GROUP and next BLOCK neighbours.
func topLabels(btt [8]raw.BTTLink, ait *raw.Page) [3]string {
	var out [3]string
	if ait == nil {
		return out
	}
	idx := 0
	for _, link := range btt {
		if link.Type != 2 {
			continue
		}
		if idx >= len(out) {
			break
		}
		out[idx] = titleFor(ait, link.Pgno)
		idx++
	}
	return out
}

func titleFor(ait *raw.Page, pgno int) string {
	for _, e := range ait.AIT {
		if e.Page.Pgno == pgno {
			return trimTitle(e.Title)
		}
	}
	return ""
}

func trimTitle(title [12]byte) string {
	end := len(title)
	for end > 0 && (title[end-1] == ' ' || title[end-1] == 0) {
		end--
	}
	return string(title[:end])
}

// topIndexPgno is the reserved virtual page the format driver intercepts
// before cache lookup.
const topIndexPgno = 0x900

// topIndexRowsPerSubpage is how many AIT entries fit below the header on
// one sub-page of the synthesized TOP index.
const topIndexRowsPerSubpage = 17

// TopIndex synthesizes the virtual TOP index page for the given subno: a
// double-size "TOP Index" header followed by up to 17 AIT entries, dot-padded
// to the page number. Entries whose subno is 0 are indented by 1 column, all
// others by 3; the BLOCK/GROUP type of a page is not consulted.
func TopIndex(ait *raw.Page, subno int) *cell.Page {
	pg := cell.NewPage()
	pg.Pgno, pg.Subno = topIndexPgno, subno

	header := "TOP Index"
	for i, r := range header {
		if i >= cell.Cols {
			break
		}
		c := pg.At(1, i)
		c.Code = r
		c.Size = cell.DoubleSize
	}

	if ait == nil {
		return pg
	}

	skip := subno * topIndexRowsPerSubpage
	row := 4
	shown := 0
	for i, e := range ait.AIT {
		if i < skip {
			continue
		}
		if shown >= topIndexRowsPerSubpage || row >= cell.Rows {
			break
		}
		writeIndexRow(pg, row, e)
		row++
		shown++
	}
	return pg
}

func writeIndexRow(pg *cell.Page, row int, e raw.AITEntry) {
	indent := 3
	if e.Page.Subno == 0 {
		indent = 1
	}
	title := trimTitle(e.Title)
	col := indent
	for _, r := range title {
		if col >= cell.Cols-4 {
			break
		}
		pg.At(row, col).Code = r
		col++
	}
	for col < cell.Cols-4 {
		pg.At(row, col).Code = '.'
		col++
	}
	pgStr := fmt.Sprintf("%03x", e.Page.Pgno)
	for _, r := range pgStr {
		if col >= cell.Cols {
			break
		}
		c := pg.At(row, col)
		c.Code = r
		c.Link = true
		col++
	}
}
