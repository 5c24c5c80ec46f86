package enhance

import (
	"testing"

	"github.com/bdwalton/ttxfmt/cache"
	"github.com/bdwalton/ttxfmt/cell"
	"github.com/bdwalton/ttxfmt/object"
	"github.com/bdwalton/ttxfmt/raw"
)

// testRawPage returns a minimal raw.Page carrying no X/27/4 override links,
// enough to exercise the tests below that don't need the MOT chain.
func testRawPage(pgno int) *raw.Page {
	return &raw.Page{Pgno: pgno}
}

// TestSetActivePositionThenChar is scenario S6 from the source material: a
// set-active-position row triplet followed by a G0 character invocation and
// a termination marker should place exactly one glyph and change nothing
// else.
func TestSetActivePositionThenChar(t *testing.T) {
	pg := cell.NewPage()
	store := cache.NewMemStore()
	in := New(store, pg, testRawPage(0x100), nil, 0x100, false, false)

	err := in.Run([]raw.Triplet{
		{Address: 40 + 5, Mode: 0x04, Data: 10}, // row 5, col 10
		{Address: 10, Mode: 0x09, Data: 'X' & 0x7F},
		{Address: 11, Mode: 0x00, Data: 7}, // bound the flush to column 10 alone
		{Address: 40, Mode: 0x1F},
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if got := pg.Grid[5][10].Code; got != rune('X') {
		t.Errorf("cell (5,10) code = %q, want 'X'", got)
	}
	if got := pg.Grid[5][9].Code; got != ' ' {
		t.Errorf("cell (5,9) should be untouched, got %q", got)
	}
}

func TestOriginModifierTooLargeFails(t *testing.T) {
	pg := cell.NewPage()
	store := cache.NewMemStore()
	in := New(store, pg, testRawPage(0x100), nil, 0x100, false, false)

	err := in.Run([]raw.Triplet{
		{Address: 40, Mode: 0x10, Data: 100},
	})
	if err == nil {
		t.Fatalf("origin modifier column > 71 should fail structurally")
	}
}

func TestPriorityViolationFails(t *testing.T) {
	pg := cell.NewPage()
	store := cache.NewMemStore()
	in := New(store, pg, testRawPage(0x100), nil, 0x100, false, false)
	in.objType = object.Active

	err := in.Run([]raw.Triplet{
		{Address: 40, Mode: 0x11, Data: 0x20}, // invoke Active (0x11 -> type 1) from Active
	})
	if err == nil {
		t.Fatalf("an Active object invoking another Active object should violate priority ordering")
	}
}

func TestPDCMinuteWithoutPendingHourFails(t *testing.T) {
	pg := cell.NewPage()
	store := cache.NewMemStore()
	in := New(store, pg, testRawPage(0x100), nil, 0x100, false, false)

	err := in.Run([]raw.Triplet{
		{Address: 5, Mode: 0x06, Data: 30},
	})
	if err == nil {
		t.Fatalf("a PDC minute triplet with no pending hour should fail structurally")
	}
}

func TestForegroundColourFlushesOnAdvance(t *testing.T) {
	pg := cell.NewPage()
	store := cache.NewMemStore()
	in := New(store, pg, testRawPage(0x100), nil, 0x100, false, false)

	err := in.Run([]raw.Triplet{
		{Address: 0, Mode: 0x00, Data: 3}, // foreground = 3 starting column 0
		{Address: 5, Mode: 0x09, Data: 'Y' & 0x7F},
		{Address: 40, Mode: 0x1F},
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if pg.Grid[0][5].Foreground != 3 {
		t.Errorf("cell (0,5) foreground = %d, want 3", pg.Grid[0][5].Foreground)
	}
}

// TestDRCSInvocationResolvesGlyph exercises mode 0x0D (DRCS invocation): the
// page's own X/27/4 link 25 names the normal-DRCS page, the DRCS-mode-select
// triplet (0x18) picks subpage 0 of it, and the character triplet's
// normal/offset split (data>>6, data&0x3F) must land on bank 16, offset 5.
func TestDRCSInvocationResolvesGlyph(t *testing.T) {
	pg := cell.NewPage()
	store := cache.NewMemStore()

	var glyph [12]uint16
	for i := range glyph {
		glyph[i] = 0x1234
	}
	store.Put(&raw.Page{
		Pgno:     0x180,
		Subno:    0,
		Function: raw.DRCS,
		DRCSGlyphs: func() [48][12]uint16 {
			var g [48][12]uint16
			g[5] = glyph
			return g
		}(),
	})

	rp := &raw.Page{Pgno: 0x100}
	rp.Links[25] = raw.PageLink{Pgno: 0x180}

	in := New(store, pg, rp, nil, 0x100, false, false)

	err := in.Run([]raw.Triplet{
		{Address: 40, Mode: 0x18, Data: 0x40}, // drcs mode: normal bank, s1 = 0
		{Address: 10, Mode: 0x0D, Data: 0x45}, // normal=1, offset=5 -> bank 16
		{Address: 40, Mode: 0x1F},
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	const wantCode = rune(0xF000 + (16 << 6) + 5)
	if got := pg.Grid[0][10].Code; got != wantCode {
		t.Errorf("cell (0,10) code = %#x, want %#x", got, wantCode)
	}

	bank := pg.DRCSBanks[16]
	if bank == nil {
		t.Fatalf("DRCSBanks[16] was never populated")
	}
	if len(bank) != 24 {
		t.Fatalf("DRCSBanks[16] length = %d, want 24", len(bank))
	}
	if bank[0] != 0x34 || bank[1] != 0x12 {
		t.Errorf("DRCSBanks[16] row 0 = %02x %02x, want 34 12", bank[0], bank[1])
	}
}
