package linkscan

import (
	"testing"

	"github.com/bdwalton/ttxfmt/cell"
)

func writeRow(pg *cell.Page, row int, s string) {
	for c := 0; c < cell.Cols; c++ {
		if c < len(s) {
			pg.Grid[row][c] = cell.Cell{Code: rune(s[c]), Opacity: cell.Opaque}
		} else {
			pg.Grid[row][c] = cell.Cell{Code: ' ', Opacity: cell.Opaque}
		}
	}
}

// TestWWWLink is scenario S5 from the source material.
func TestWWWLink(t *testing.T) {
	pg := cell.NewPage()
	writeRow(pg, 2, "visit www.example.com today")

	matches := Scan(pg, 2, 0x100)

	found := false
	for _, m := range matches {
		if m.Kind == HTTP && m.URL == "http://www.example.com" {
			found = true
			if !pg.Grid[2][6].Link {
				t.Errorf("first character of the matched span should be flagged link")
			}
		}
	}
	if !found {
		t.Fatalf("expected to find an http link for www.example.com, matches=%+v", matches)
	}
}

func TestPageNumberMatch(t *testing.T) {
	pg := cell.NewPage()
	writeRow(pg, 3, "see page 456 for more")

	matches := Scan(pg, 3, 0x100)

	found := false
	for _, m := range matches {
		if m.Kind == Page && m.Pgno == 0x456 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a page-number match for 456, matches=%+v", matches)
	}
}

func TestFourDigitRunIsNotAPageNumber(t *testing.T) {
	pg := cell.NewPage()
	writeRow(pg, 4, "year 2024 was fine")

	matches := Scan(pg, 4, 0x100)

	for _, m := range matches {
		if m.Kind == Page {
			t.Fatalf("a 4-digit run should not be recognised as a 3-digit page number, got %+v", m)
		}
	}
}

func TestEmailBackwardScan(t *testing.T) {
	pg := cell.NewPage()
	writeRow(pg, 5, "contact jane.doe@example.com now")

	matches := Scan(pg, 5, 0x100)

	found := false
	for _, m := range matches {
		if m.Kind == Email && m.URL == "mailto:jane.doe@example.com" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an email match, matches=%+v", matches)
	}
}
