// Package enhance implements C5, the X/26 enhancement interpreter: a
// recursive triplet virtual machine that mutates a cell.Page grid with
// set-at/set-after spacing semantics, object invocation, DRCS invocation and
// PDC capture.
//
// Per the source material's design notes, the VM's nested flush/flush_row
// helpers are modelled as methods on Interpreter, not as closures.
package enhance

import (
	"fmt"

	"github.com/bdwalton/ttxfmt/cache"
	"github.com/bdwalton/ttxfmt/cell"
	"github.com/bdwalton/ttxfmt/object"
	"github.com/bdwalton/ttxfmt/raw"
)

// maxTriplets bounds total triplets interpreted by one Interpreter built with
// New and every object it invokes (spec §5: "cap total triplets
// interpreted... to make the VM trivially terminating"). Each default object
// run by DefaultObjectInvocation gets a budget of its own.
const maxTriplets = 16 * 13 * 4

// pending is the bitmask of ac fields modified since the last flush.
type pending uint16

const (
	pendForeground pending = 1 << iota
	pendBackground
	pendSize
	pendOpacity
	pendConceal
	pendUnderline
	pendFlash
	pendCode
	pendFontStyle
)

// pdcTape captures Programme Delivery Control fields as they stream past;
// Method A (a second, documented-incomplete extraction path) is not
// implemented, per the source material's own instruction.
type pdcTape struct {
	havePendingHour bool
	pendingIsStart  bool
	startHour       int
	endHour         int
	minutes         int
}

// Interpreter is the X/26 VM's machine state for one invocation (one Run
// call corresponds to one object or the page's own local triplets).
type Interpreter struct {
	store   cache.Store
	pgno    int
	rp      *raw.Page     // invoking page, for its X/27/4 override links
	mag     *raw.Magazine // invoking page's magazine, for the MOT pop/drcs tables
	level35 bool

	budget *int // shared triplet budget across the whole recursive call tree

	page *cell.Page

	ac  cell.Cell
	mac pending

	activeRow, activeCol int
	cursorRow, cursorCol int

	invRow, invBase int

	rowColour     uint8
	pendingColour int8 // -1 = none

	font int

	drcsNormal, drcsGlobal int

	originCol, originRow int

	pdc *pdcTape

	objType object.Type

	headerOnly bool
}

// New returns an Interpreter ready to run the page's local (Type Local)
// enhancement stream, starting at row 0, column 0. rp and mag ground the
// MOT/X-27-4 page-resolution chain object and DRCS invocation need; mag may
// be nil if the magazine table hasn't been cached, in which case any
// invocation that must fall back to it fails structurally.
func New(store cache.Store, pg *cell.Page, rp *raw.Page, mag *raw.Magazine, pgno int, headerOnly, level35 bool) *Interpreter {
	budget := maxTriplets
	return &Interpreter{
		store:         store,
		pgno:          pgno,
		rp:            rp,
		mag:           mag,
		level35:       level35,
		budget:        &budget,
		page:          pg,
		ac:            cell.Cell{Foreground: 7, Background: 0, Opacity: cell.Opaque},
		pendingColour: -1,
		objType:       object.Local,
		headerOnly:    headerOnly,
	}
}

// child builds a nested Interpreter for an object invocation, sharing the
// triplet budget and page but carrying its own machine state and a fresh
// origin base (inv_row/inv_col).
func (in *Interpreter) child(objType object.Type, invRow, invCol int) *Interpreter {
	return &Interpreter{
		store:         in.store,
		pgno:          in.pgno,
		rp:            in.rp,
		mag:           in.mag,
		level35:       in.level35,
		budget:        in.budget,
		page:          in.page,
		ac:            in.ac,
		activeRow:     invRow,
		activeCol:     invCol,
		cursorRow:     invRow,
		cursorCol:     invCol,
		invRow:        invRow,
		invBase:       invCol,
		rowColour:     in.rowColour,
		pendingColour: -1,
		font:          in.font,
		objType:       objType,
		pdc:           in.pdc,
	}
}

// Run interprets triplets, a designation's worth of X/26 instructions (up to
// 13), returning an error on any structural violation (spec §7: these abort
// the enclosing format call's enhancement pass entirely).
func (in *Interpreter) Run(triplets []raw.Triplet) error {
	for _, t := range triplets {
		if *in.budget <= 0 {
			return fmt.Errorf("enhance: triplet budget exhausted")
		}
		*in.budget--

		if t.IsRowAddress() {
			done, err := in.rowAddress(t)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
		} else {
			if err := in.columnAddress(t); err != nil {
				return err
			}
		}
	}
	return nil
}

// rowAddress dispatches a row-address triplet (address >= 40). done==true
// means the stream terminated normally (object header / explicit
// termination) and the caller should stop.
func (in *Interpreter) rowAddress(t raw.Triplet) (done bool, err error) {
	row := int(t.Address) - 40
	switch t.Mode {
	case 0x00: // full-screen colour
		in.page.ScreenColour = t.Data & 0x1F
		return false, nil
	case 0x01, 0x07: // full row colour
		in.rowColour = t.Data & 0x1F
		return false, nil
	case 0x04: // set active position
		in.flushRow()
		in.activeRow = row
		in.activeCol = int(t.Data) & 0x3F
		in.cursorRow, in.cursorCol = in.activeRow, in.activeCol
		if in.headerOnly && in.activeRow != 0 {
			// header-only mode does not skip here: triplets for rows other
			// than 0 are still interpreted as in a full render.
			return false, nil
		}
		return false, nil
	case 0x0A: // PDC: start hour
		in.ensurePDC()
		in.pdc.havePendingHour = true
		in.pdc.pendingIsStart = true
		in.pdc.startHour = int(t.Data) & 0x1F
		return false, nil
	case 0x0B: // PDC: end hour
		in.ensurePDC()
		in.pdc.havePendingHour = true
		in.pdc.pendingIsStart = false
		in.pdc.endHour = int(t.Data) & 0x1F
		return false, nil
	case 0x08, 0x09, 0x0C, 0x0D: // PDC: CNI / month-day / local offset / series id
		return false, nil
	case 0x10: // origin modifier
		col := int(t.Data) & 0x7F
		if col > 71 {
			return false, fmt.Errorf("enhance: origin modifier column %d exceeds 71", col)
		}
		in.originCol = col
		in.originRow = row
		return false, nil
	case 0x11, 0x12, 0x13: // object invocation
		target := object.Type(t.Mode - 0x10)
		if target <= in.objType {
			return false, fmt.Errorf("enhance: object type %d cannot invoke type %d (priority violation)", in.objType, target)
		}
		// source lives in bits 3-4 of the triplet's own address field;
		// this triplet carries no row of its own (the invocation is
		// placed at the current cursor position instead).
		source := (t.Address >> 3) & 0x3
		if err := in.invoke(target, source, t); err != nil {
			return false, err
		}
		in.originCol, in.originRow = 0, 0
		return false, nil
	case 0x15, 0x16, 0x17: // object definition header: terminate normally
		in.flushRow()
		return true, nil
	case 0x18: // DRCS mode: drcs_s1[data>>6] = data & 15 (0=global, 1=normal)
		s1 := int(t.Data & 0x0F)
		if t.Data>>6 == 0 {
			in.drcsGlobal = s1
		} else {
			in.drcsNormal = s1
		}
		return false, nil
	case 0x1F: // termination marker
		in.flushRow()
		return true, nil
	default:
		return false, nil
	}
}

// invoke resolves and recursively runs an object invocation. t is the whole
// invocation triplet; its (address<<7 | data) forms the combined object
// address object.Resolve expects.
func (in *Interpreter) invoke(target object.Type, source uint8, t raw.Triplet) error {
	switch source {
	case 0:
		return nil // illegal source, ignored
	case 1:
		// Local: invoke from the page's own X/26 triplets is handled by the
		// caller feeding a local designation through Run directly; nothing
		// further to resolve here.
		return nil
	case 2, 3:
		want := raw.POP
		if source == 3 {
			want = raw.GPOP
		}
		pgno, ok := in.resolveObjectPage(source)
		if !ok {
			return fmt.Errorf("enhance: no MOT link for object invocation (source %d)", source)
		}
		body, ok := object.Resolve(in.store, target, pgno, t, want)
		if !ok {
			return fmt.Errorf("enhance: failed to resolve object invocation (source %d, target %v)", source, target)
		}
		child := in.child(target, in.invRow+in.cursorRow+in.originRow, in.invBase+in.cursorCol+in.originCol)
		if err := child.Run(body); err != nil {
			return err
		}
		return nil
	default:
		return fmt.Errorf("enhance: invalid object source %d", source)
	}
}

// noPage reports whether a MOT-resolved page number is a "no link (yet)"
// placeholder.
func noPage(pgno int) bool {
	return pgno == 0 || pgno == 0xFFF
}

// resolveObjectPage chases the MOT/X-27-4 link chain to find which page
// holds the POP (source 2) or GPOP (source 3) object pool an invocation
// targets: the invoking page's own X/27/4 override link if present,
// otherwise the magazine's MOT pop_lut/pop_link table (with the
// Level-3.5 replacement link preferred when available), per
// teletext.c's object-invocation page resolution.
func (in *Interpreter) resolveObjectPage(source uint8) (int, bool) {
	if source == 3 {
		pgno := in.rp.Links[24].Pgno
		if !noPage(pgno) {
			return pgno, true
		}
		if in.mag == nil {
			return 0, false
		}
		if in.level35 {
			if p := in.mag.PopLink[8].Pgno; !noPage(p) {
				return p, true
			}
		}
		if p := in.mag.PopLink[0].Pgno; !noPage(p) {
			return p, true
		}
		return 0, false
	}

	pgno := in.rp.Links[25].Pgno
	if !noPage(pgno) {
		return pgno, true
	}
	if in.mag == nil {
		return 0, false
	}
	i := int(in.mag.PopLUT[in.rp.Pgno&0xFF])
	if i == 0 {
		return 0, false
	}
	if in.level35 {
		if p := in.mag.PopLink[i+8].Pgno; !noPage(p) {
			return p, true
		}
	}
	if p := in.mag.PopLink[i].Pgno; !noPage(p) {
		return p, true
	}
	return 0, false
}

func (in *Interpreter) ensurePDC() {
	if in.pdc == nil {
		in.pdc = &pdcTape{}
	}
}

// columnAddress dispatches a column-address triplet (address < 40). When the
// triplet's column is beyond the active column, the interval is flushed
// first.
func (in *Interpreter) columnAddress(t raw.Triplet) error {
	col := int(t.Address)
	if col > in.activeCol {
		in.flush(col)
	}

	switch t.Mode {
	case 0x00: // foreground
		in.ac.Foreground = t.Data & 0x1F
		in.mac |= pendForeground
	case 0x03: // background
		in.ac.Background = t.Data & 0x1F
		in.mac |= pendBackground
	case 0x01: // G1 block mosaic
		if t.Data&0x20 != 0 {
			in.ac.Code = rune(0xEE20 + int(t.Data&0x1F))
		} else {
			in.ac.Code = rune(0x20 + int(t.Data&0x1F))
		}
		in.mac |= pendCode
	case 0x02, 0x0B: // G3 smooth mosaic / line drawing
		in.ac.Code = rune(0xEF00 + int(t.Data))
		in.mac |= pendCode
	case 0x06: // PDC minutes, completes the pending hour
		if in.pdc == nil || !in.pdc.havePendingHour {
			return fmt.Errorf("enhance: PDC minute triplet with no pending hour")
		}
		in.pdc.minutes = int(t.Data) & 0x3F
		in.pdc.havePendingHour = false
	case 0x07: // flash function
		in.ac.Flash = t.Data&0x3 == 1
		in.mac |= pendFlash
	case 0x08: // modified G0/G2 designation
		in.font = int(t.Data) & 0x7
	case 0x09, 0x0F: // G0 / G2 character
		in.ac.Code = rune(t.Data)
		in.mac |= pendCode
	case 0x0C: // display attributes
		size := (t.Data >> 0) & 0x3
		switch size {
		case 1:
			in.ac.Size = cell.DoubleHeight
		case 2:
			in.ac.Size = cell.DoubleWidth
		case 3:
			in.ac.Size = cell.DoubleSize
		default:
			in.ac.Size = cell.Normal
		}
		in.mac |= pendSize
		in.ac.Conceal = t.Data&0x04 != 0
		in.ac.Underline = t.Data&0x08 != 0
		in.mac |= pendConceal | pendUnderline
		if t.Data&0x10 != 0 {
			in.ac.Opacity = cell.SemiTransparent
		}
		in.mac |= pendOpacity
	case 0x0D: // DRCS invocation
		code, ok := in.resolveDRCS(t)
		if !ok {
			return fmt.Errorf("enhance: DRCS invocation failed")
		}
		in.ac.Code = code
		in.mac |= pendCode
	case 0x0E: // font-style run
		in.ac.Bold = t.Data&0x01 != 0
		in.ac.Italic = t.Data&0x02 != 0
		in.ac.Prop = t.Data&0x04 != 0
		in.mac |= pendFontStyle
	default:
		if t.Mode >= 0x10 {
			// composed/diacritic character: best-effort passthrough of the
			// base code point (full G2 dead-key table is out of scope).
			in.ac.Code = rune(t.Data)
			in.mac |= pendCode
		}
	}
	return nil
}

// resolveDRCS implements mode 0x0D (teletext.c's "drcs character
// invocation" case): normal selects the global (0) or normal (1) DRCS bank,
// offset is the in-bank glyph index (invalid at 48 or above). The resolved
// page is fetched via the same MOT/X-27-4 chase as object invocation, typed
// DRCS or GDRCS, and its glyph bitmap is installed into the rendered page's
// DRCS bank table.
func (in *Interpreter) resolveDRCS(t raw.Triplet) (rune, bool) {
	normal := int(t.Data >> 6)
	offset := int(t.Data & 0x3F)
	if offset >= 48 {
		return 0, false
	}

	want := raw.GDRCS
	linkIdx := 26
	s1 := in.drcsGlobal
	if normal != 0 {
		want = raw.DRCS
		linkIdx = 25
		s1 = in.drcsNormal
	}
	bank := normal*16 + s1

	pgno, ok := in.resolveDRCSPage(normal, linkIdx)
	if !ok {
		return 0, false
	}

	dp, ok := in.store.Get(pgno, s1)
	if !ok {
		return 0, false
	}
	if dp.Function == raw.Unknown {
		dp, ok = in.store.Coerce(pgno, s1, want)
		if !ok {
			return 0, false
		}
	} else if dp.Function != want {
		return 0, false
	}
	if dp.InvalidMask&(1<<uint(offset)) != 0 {
		return 0, false
	}

	glyph := dp.DRCSGlyphs[offset]
	buf := make([]byte, 0, len(glyph)*2)
	for _, row := range glyph {
		buf = append(buf, byte(row), byte(row>>8))
	}
	if bank >= 0 && bank < len(in.page.DRCSBanks) {
		in.page.DRCSBanks[bank] = buf
	}

	return rune(0xF000 + (bank << 6) + offset), true
}

// resolveDRCSPage is resolveObjectPage's DRCS/GDRCS counterpart: linkIdx is
// 25 (DRCS, normal) or 26 (GDRCS, global) in the invoking page's own
// X/27/4 link array.
func (in *Interpreter) resolveDRCSPage(normal, linkIdx int) (int, bool) {
	pgno := in.rp.Links[linkIdx].Pgno
	if !noPage(pgno) {
		return pgno, true
	}
	if in.mag == nil {
		return 0, false
	}
	if normal == 0 {
		if in.level35 {
			if p := in.mag.DRCSLink[8].Pgno; !noPage(p) {
				return p, true
			}
		}
		if p := in.mag.DRCSLink[0].Pgno; !noPage(p) {
			return p, true
		}
		return 0, false
	}

	i := int(in.mag.DRCSLut[in.rp.Pgno&0xFF])
	if i == 0 {
		return 0, false
	}
	if in.level35 {
		if p := in.mag.DRCSLink[i+8].Pgno; !noPage(p) {
			return p, true
		}
	}
	if p := in.mag.DRCSLink[i].Pgno; !noPage(p) {
		return p, true
	}
	return 0, false
}

// DefaultObjectInvocation runs a page's default POP object(s), resolved via
// the magazine's MOT pop_lut, when the page carries no local X/26
// enhancement data of its own: the lower-priority default object invokes
// first, then the higher-priority one (spec.md §4.8 step 5, teletext.c's
// default_object_invocation).
func DefaultObjectInvocation(store cache.Store, pg *cell.Page, rp *raw.Page, mag *raw.Magazine, pgno int, headerOnly, level35 bool) error {
	if mag == nil {
		return fmt.Errorf("enhance: no magazine data for default object lookup")
	}
	i := int(mag.PopLUT[pgno&0xFF])
	if i == 0 {
		return fmt.Errorf("enhance: no MOT pop_lut entry for default object")
	}

	pop := mag.PopLink[i+8]
	if !level35 || noPage(pop.Pgno) {
		pop = mag.PopLink[i]
		if noPage(pop.Pgno) {
			return fmt.Errorf("enhance: dead MOT pop link %d", i)
		}
	}

	order := 0
	if pop.DefaultObj[0].Type > pop.DefaultObj[1].Type {
		order = 1
	}

	for k := 0; k < 2; k++ {
		obj := pop.DefaultObj[k^order]
		if !obj.Present {
			continue
		}
		addr := raw.Triplet{Address: uint8(obj.Address >> 7), Data: uint8(obj.Address & 0x7F)}
		body, ok := object.Resolve(store, object.Type(obj.Type), pop.Pgno, addr, raw.POP)
		if !ok {
			return fmt.Errorf("enhance: failed to resolve default object %d", k)
		}
		child := New(store, pg, rp, mag, pgno, headerOnly, level35)
		child.objType = object.Type(obj.Type)
		if err := child.Run(body); err != nil {
			return err
		}
	}
	return nil
}

// flush applies pending modifications to cells in [activeCol, col),
// honouring the object-type-dependent flush width.
func (in *Interpreter) flush(col int) {
	end := col
	switch in.objType {
	case object.Passive:
		end = in.activeCol + 1
	case object.Adaptive:
		// extends only to the requested column; no widening.
	default:
		if col >= cell.Cols {
			end = cell.Cols
		}
	}

	for c := in.activeCol; c < end && c < cell.Cols; c++ {
		cur := in.page.At(in.activeRow, c)
		in.applyPending(cur)
		in.mac &^= pendCode // a character triplet places one glyph only
	}

	in.activeCol = col
	if in.objType == object.Active {
		if col >= cell.Cols {
			in.mac = 0
		}
	}
}

func (in *Interpreter) applyPending(cur *cell.Cell) {
	if in.mac&pendForeground != 0 {
		cur.Foreground = in.ac.Foreground
	}
	if in.mac&pendBackground != 0 {
		cur.Background = in.ac.Background
	}
	if in.mac&pendSize != 0 {
		cur.Size = in.ac.Size
	}
	if in.mac&pendOpacity != 0 {
		cur.Opacity = in.ac.Opacity
	}
	if in.mac&pendConceal != 0 {
		cur.Conceal = in.ac.Conceal
	}
	if in.mac&pendUnderline != 0 {
		cur.Underline = in.ac.Underline
	}
	if in.mac&pendFlash != 0 {
		cur.Flash = in.ac.Flash
	}
	if in.mac&pendFontStyle != 0 {
		cur.Bold, cur.Italic, cur.Prop = in.ac.Bold, in.ac.Italic, in.ac.Prop
	}
	if in.mac&pendCode != 0 {
		cur.Code = in.ac.Code
	}
}

// flushRow flushes the remainder of the active row out to column 40 and
// clears all pending modifications, used when a row-address triplet moves
// the cursor to a new row.
func (in *Interpreter) flushRow() {
	in.flush(cell.Cols)
	in.mac = 0
}
