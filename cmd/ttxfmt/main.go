// Command ttxfmt is a small demo driver: it builds a single fixture LOP
// page, formats it, and prints the resulting grid as plain text.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/bdwalton/ttxfmt/cache"
	"github.com/bdwalton/ttxfmt/cell"
	"github.com/bdwalton/ttxfmt/format"
	"github.com/bdwalton/ttxfmt/raw"
)

func main() {
	pgno := flag.Int("page", 0x100, "page number to format (hex digits read as decimal; use e.g. 256 for page 100)")
	subno := flag.Int("subno", 0, "subpage number")
	level := flag.Float64("level", 1.5, "max implementation level: 1, 1.5, 2.5 or 3.5")
	rows := flag.Int("rows", cell.Rows, "number of display rows to format")
	nav := flag.Bool("nav", false, "run link scanning and navigation synthesis")
	flag.Parse()

	store := cache.NewMemStore()
	store.Put(fixturePage(*pgno, *subno))

	f := format.New()
	pg, ok := f.Format(store, *pgno, *subno, format.Options{
		MaxLevel:    format.Level(*level),
		DisplayRows: *rows,
		Navigation:  *nav,
	})
	if !ok {
		log.Fatalf("page %03x.%02x did not format", *pgno, *subno)
	}

	printPage(os.Stdout, pg)
}

func fixturePage(pgno, subno int) *raw.Page {
	p := &raw.Page{Pgno: pgno, Subno: subno, Function: raw.LOP}
	for r := 0; r < 25; r++ {
		for c := 0; c < 40; c++ {
			p.Level1[r][c] = parityByte(' ')
		}
	}
	msg := "Hello, Teletext"
	for c, r := range msg {
		p.Level1[1][c] = parityByte(byte(r))
	}
	return p
}

func parityByte(v byte) byte {
	ones := 0
	for i := 0; i < 7; i++ {
		if v&(1<<i) != 0 {
			ones++
		}
	}
	if ones%2 == 0 {
		return v | 0x80
	}
	return v
}

func printPage(w *os.File, pg *cell.Page) {
	for r := 0; r < cell.Rows; r++ {
		for c := 0; c < cell.Cols; c++ {
			ch := pg.Grid[r][c].Code
			if ch == 0 {
				ch = ' '
			}
			fmt.Fprintf(w, "%c", ch)
		}
		fmt.Fprintln(w)
	}
}
