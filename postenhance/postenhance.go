// Package postenhance implements C6, the post-enhance fixup pass:
// transparency resolution and double-height/width/size continuation-cell
// propagation, run once after C5 succeeds at implementation level >= 2.5.
package postenhance

import "github.com/bdwalton/ttxfmt/cell"

const transparentBlack = cell.TransparentBlack

// Run applies the fixup pass to rows [0, displayRows) of pg.
func Run(pg *cell.Page, displayRows int) {
	if displayRows > cell.Rows {
		displayRows = cell.Rows
	}

	for r := 0; r < displayRows; r++ {
		for c := 0; c < cell.Cols; c++ {
			resolveTransparency(pg.At(r, c))
		}
	}

	for r := 0; r < displayRows; r++ {
		for c := 0; c < cell.Cols; c++ {
			propagateSize(pg, r, c, displayRows)
		}
	}

	cleanOrphans(pg, displayRows)
}

// resolveTransparency implements spec §4.5: both colours transparent-black
// => transparent-space with a space glyph; background alone =>
// semi-transparent. Foreground-only transparency is explicitly left
// unimplemented upstream (design note), so it is not handled here either.
func resolveTransparency(c *cell.Cell) {
	fgTransparent := c.Foreground == transparentColourIndex
	bgTransparent := c.Background == transparentColourIndex
	switch {
	case fgTransparent && bgTransparent:
		c.Opacity = cell.TransparentSpace
		c.Code = ' '
	case bgTransparent:
		c.Opacity = cell.SemiTransparent
	}
}

// transparentColourIndex is the CLUT slot reserved for "transparent black"
// in the 40-entry colour map (spec §3's colour-map collaborator assigns it;
// by convention entry 8).
const transparentColourIndex = 8

func propagateSize(pg *cell.Page, r, c, displayRows int) {
	cur := pg.Grid[r][c]
	switch cur.Size {
	case cell.DoubleHeight:
		if r+1 < displayRows {
			*pg.At(r+1, c) = cell.Cell{Code: ' ', Foreground: cur.Foreground, Background: cur.Background, Opacity: cur.Opacity, Size: cell.DoubleHeightLower}
		}
	case cell.DoubleSize:
		if r+1 < displayRows {
			*pg.At(r+1, c) = cell.Cell{Code: ' ', Foreground: cur.Foreground, Background: cur.Background, Opacity: cur.Opacity, Size: cell.DoubleSizeLower}
			if c+1 < cell.Cols {
				*pg.At(r+1, c+1) = cell.Cell{Code: ' ', Foreground: cur.Foreground, Background: cur.Background, Opacity: cur.Opacity, Size: cell.OverBottom}
			}
		}
	}
	if (cur.Size == cell.DoubleWidth || cur.Size == cell.DoubleSize) && c+1 < cell.Cols {
		right := pg.At(r, c+1)
		*right = cell.Cell{Code: ' ', Foreground: cur.Foreground, Background: cur.Background, Opacity: cur.Opacity, Size: cell.OverTop}
	}
}

// cleanOrphans converts a continuation cell whose parent above it is not
// itself a sized origin back into a plain normal-size space, per spec §4.5's
// orphaned-continuation cleanup.
func cleanOrphans(pg *cell.Page, displayRows int) {
	for r := 1; r < displayRows; r++ {
		for c := 0; c < cell.Cols; c++ {
			cur := pg.At(r, c)
			if cur.Size != cell.DoubleHeightLower && cur.Size != cell.DoubleSizeLower {
				continue
			}
			above := pg.Grid[r-1][c]
			if above.Size != cell.DoubleHeight && above.Size != cell.DoubleSize {
				cur.Size = cell.Normal
				cur.Code = ' '
			}
		}
	}
}
