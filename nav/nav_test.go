package nav

import (
	"testing"

	"github.com/bdwalton/ttxfmt/cell"
	"github.com/bdwalton/ttxfmt/raw"
)

// TestFlofBar is scenario S3 from the source material.
func TestFlofBar(t *testing.T) {
	pg := cell.NewPage()
	links := [4]cell.PageRef{
		{Pgno: 0x123}, {Pgno: 0x456}, {Pgno: 0x789}, {Pgno: 0xFFF},
	}

	FlofBar(pg, links)

	wantColours := [4]uint8{1, 2, 3, 6}
	for i := 0; i < 3; i++ {
		col := i*10 + 3
		got := pg.Grid[cell.Rows-1][col]
		if got.Foreground != wantColours[i] {
			t.Errorf("slot %d colour = %d, want %d", i, got.Foreground, wantColours[i])
		}
		if !got.Link {
			t.Errorf("slot %d should be a link", i)
		}
	}

	// slot 3 (0xFFF, dead) should not be marked as a link.
	deadCol := 3*10 + 3
	if pg.Grid[cell.Rows-1][deadCol].Link {
		t.Errorf("dead link slot 3 (0xFFF) should not be marked link")
	}
}

func TestTopIndexHeaderAndFirstRow(t *testing.T) {
	ait := &raw.Page{}
	ait.AIT[0] = raw.AITEntry{Page: raw.PageLink{Pgno: 0x100, Subno: 0}}
	copy(ait.AIT[0].Title[:], "NEWS")
	ait.AIT[1] = raw.AITEntry{Page: raw.PageLink{Pgno: 0x200, Subno: 0}}
	copy(ait.AIT[1].Title[:], "SPORT")

	pg := TopIndex(ait, 0)

	header := "TOP Index"
	for i, r := range header {
		if pg.Grid[1][i].Code != r {
			t.Fatalf("header col %d = %q, want %q", i, pg.Grid[1][i].Code, r)
		}
		if pg.Grid[1][i].Size != cell.DoubleSize {
			t.Errorf("header should be double-size at col %d", i)
		}
	}

	row4 := pg.Grid[4]
	if row4[1].Code != 'N' || row4[2].Code != 'E' || row4[3].Code != 'W' || row4[4].Code != 'S' {
		t.Errorf("row 4 should start with NEWS, got %q%q%q%q", row4[1].Code, row4[2].Code, row4[3].Code, row4[4].Code)
	}
}
