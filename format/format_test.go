package format

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bdwalton/ttxfmt/cache"
	"github.com/bdwalton/ttxfmt/cell"
	"github.com/bdwalton/ttxfmt/raw"
)

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

func blankLOP(pgno, subno int) *raw.Page {
	p := &raw.Page{Pgno: pgno, Subno: subno, Function: raw.LOP}
	for r := 0; r < 25; r++ {
		for c := 0; c < 40; c++ {
			p.Level1[r][c] = parityByte(' ')
		}
	}
	return p
}

// TestFormatLevel1Only is scenario S1 from the source material.
func TestFormatLevel1Only(t *testing.T) {
	store := cache.NewMemStore()
	rp := blankLOP(0x100, 0)
	for c, r := range "ABC" {
		rp.Level1[1][c] = parityByte(byte(r))
	}
	store.Put(rp)

	f := New()
	pg, ok := f.Format(store, 0x100, 0, Options{MaxLevel: Level1_0, DisplayRows: 25})
	if !ok {
		t.Fatalf("Format failed on a well-formed LOP page")
	}

	want := "\x02100.00\x07"
	for i, r := range []byte(want) {
		if pg.Grid[0][i].Code != rune(r) {
			t.Errorf("header col %d = %q, want %q", i, pg.Grid[0][i].Code, rune(r))
		}
	}
	if pg.Grid[1][0].Code != 'A' || pg.Grid[1][1].Code != 'B' || pg.Grid[1][2].Code != 'C' {
		t.Errorf("row 1 = %q%q%q, want ABC", pg.Grid[1][0].Code, pg.Grid[1][1].Code, pg.Grid[1][2].Code)
	}
}

func TestFormatRejectsNonLOP(t *testing.T) {
	store := cache.NewMemStore()
	store.Put(&raw.Page{Pgno: 0x200, Function: raw.POP})

	f := New()
	if _, ok := f.Format(store, 0x200, 0, Options{MaxLevel: Level1_0, DisplayRows: 25}); ok {
		t.Fatalf("Format should reject a page typed as POP")
	}
}

func TestFormatMissingPage(t *testing.T) {
	store := cache.NewMemStore()
	f := New()
	if _, ok := f.Format(store, 0x300, 0, Options{MaxLevel: Level1_0, DisplayRows: 25}); ok {
		t.Fatalf("Format should fail on a cache miss")
	}
}

// TestEnhancementRollback is scenario/property 3 from the source material:
// a structurally invalid enhancement stream must leave the Level-1 result
// intact.
func TestEnhancementRollback(t *testing.T) {
	store := cache.NewMemStore()
	rp := blankLOP(0x400, 0)
	for c, r := range "HELLO" {
		rp.Level1[1][c] = parityByte(byte(r))
	}
	// a PDC minute triplet with no pending hour: structurally invalid.
	rp.Triplets[0][0] = raw.Triplet{Address: 5, Mode: 0x06, Data: 30}
	rp.TripletCount[0] = 1
	store.Put(rp)

	f := New()
	pg, ok := f.Format(store, 0x400, 0, Options{MaxLevel: Level2_5, DisplayRows: 25})
	if !ok {
		t.Fatalf("Format should still succeed with a Level-1 fallback")
	}
	if pg.Grid[1][0].Code != 'H' || pg.Grid[1][4].Code != 'O' {
		t.Errorf("row 1 should still read HELLO after enhancement rollback, got %q..%q", pg.Grid[1][0].Code, pg.Grid[1][4].Code)
	}
}

// TestLevel1PurityIsDeterministic is property 2 from the source material:
// formatting the same raw page at max_level=1.0 twice must yield
// byte-identical cell grids. go-cmp gives a field-and-index-precise diff
// instead of a bare boolean, which matters for a 25x41 grid of structs.
func TestLevel1PurityIsDeterministic(t *testing.T) {
	store := cache.NewMemStore()
	rp := blankLOP(0x600, 0)
	for c, r := range "REPEATABLE" {
		rp.Level1[3][c] = parityByte(byte(r))
	}
	store.Put(rp)

	f := New()
	opts := Options{MaxLevel: Level1_0, DisplayRows: cell.Rows}

	first, ok := f.Format(store, 0x600, 0, opts)
	if !ok {
		t.Fatal("first format failed")
	}
	second, ok := f.Format(store, 0x600, 0, opts)
	if !ok {
		t.Fatal("second format failed")
	}

	if diff := cmp.Diff(first.Grid, second.Grid); diff != "" {
		t.Errorf("Level-1 formatting is not deterministic (-first +second):\n%s", diff)
	}
}

func TestHeaderOnlyMatchesFullRender(t *testing.T) {
	store := cache.NewMemStore()
	rp := blankLOP(0x500, 0)
	store.Put(rp)

	f := New()
	full, ok := f.Format(store, 0x500, 0, Options{MaxLevel: Level1_0, DisplayRows: cell.Rows})
	if !ok {
		t.Fatal("full format failed")
	}
	headerOnly, ok := f.Format(store, 0x500, 0, Options{MaxLevel: Level1_0, DisplayRows: 1})
	if !ok {
		t.Fatal("header-only format failed")
	}
	for c := 0; c < cell.Cols; c++ {
		if full.Grid[0][c].Code != headerOnly.Grid[0][c].Code {
			t.Errorf("col %d differs between full and header-only render", c)
		}
	}
}
