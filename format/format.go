// Package format implements C9, the format driver: it orchestrates C2
// (charset) through C8 (navigation) into one rendered page, handling
// header/subtitle opacity policy and the enhancement rollback-on-failure
// rule.
package format

import (
	"log/slog"

	"github.com/bdwalton/ttxfmt/cache"
	"github.com/bdwalton/ttxfmt/cell"
	"github.com/bdwalton/ttxfmt/charset"
	"github.com/bdwalton/ttxfmt/enhance"
	"github.com/bdwalton/ttxfmt/level1"
	"github.com/bdwalton/ttxfmt/linkscan"
	"github.com/bdwalton/ttxfmt/nav"
	"github.com/bdwalton/ttxfmt/postenhance"
	"github.com/bdwalton/ttxfmt/raw"
)

// Level is the caller-specified implementation level to format at.
type Level float32

const (
	Level1_0 Level = 1.0
	Level1_5 Level = 1.5
	Level2_5 Level = 2.5
	Level3_5 Level = 3.5
)

// Options controls one Format call.
type Options struct {
	MaxLevel    Level
	DisplayRows int
	Navigation  bool
}

// Formatter wires the pipeline stages together. The zero value is usable;
// Logger may be set to receive debug traces (spec §7: behind a debug flag,
// no functional effect).
type Formatter struct {
	Logger *slog.Logger
}

// New returns a Formatter with a no-op (discard) logger.
func New() *Formatter {
	return &Formatter{Logger: slog.New(slog.NewTextHandler(discard{}, nil))}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// Format renders (pgno, subno) from store at the requested options. It
// returns (nil, false) if the source page is not formattable.
func (f *Formatter) Format(store cache.Store, pgno, subno int, opts Options) (*cell.Page, bool) {
	if pgno == topIndexPgno {
		return f.formatTopIndex(store, subno)
	}

	rp, ok := store.Get(pgno, subno)
	if !ok {
		f.log("cache miss", "pgno", pgno, "subno", subno)
		return nil, false
	}
	if rp.Function != raw.LOP && rp.Function != raw.Trigger {
		f.log("not formattable", "pgno", pgno, "function", rp.Function)
		return nil, false
	}

	displayRows := opts.DisplayRows
	if displayRows < 1 {
		displayRows = 1
	}
	if displayRows > cell.Rows {
		displayRows = cell.Rows
	}

	magIdx := 0
	if opts.MaxLevel > Level1_5 {
		magIdx = (pgno >> 8) & 0x7
	}
	mag, _ := store.Magazine(magIdx)

	ext := magazineExtension(mag)
	if rp.HasExt {
		ext = rp.Ext
	}

	pg := cell.NewPage()
	pg.Pgno, pg.Subno = pgno, subno

	applyOpacityPolicy(pg, rp, mag, ext)

	primary, alternate := charset.Resolve(&ext, rp.National)
	level1.Format(pg, rp, charset.DefaultFont, primary, alternate)

	if rp.LOPFlags.SuppressHeader {
		for c := 0; c < cell.Cols; c++ {
			pg.At(0, c).Opacity = cell.TransparentSpace
		}
	}

	if opts.MaxLevel >= Level1_5 && displayRows > 0 {
		level35 := opts.MaxLevel >= Level3_5
		if f.runEnhancement(store, pg, rp, mag, pgno, displayRows == 1, level35) && opts.MaxLevel >= Level2_5 {
			postenhance.Run(pg, displayRows)
		}
	}

	if opts.Navigation {
		f.runNavigation(store, pg, rp, displayRows)
	}

	return pg, true
}

func magazineExtension(mag *raw.Magazine) raw.Extension {
	if mag == nil {
		return raw.Extension{}
	}
	return mag.Default
}

func applyOpacityPolicy(pg *cell.Page, rp *raw.Page, mag *raw.Magazine, ext raw.Extension) {
	pg.PageOpacity = [2]cell.Opacity{cell.Opaque, cell.Opaque}
	pg.BoxedOpacity = [2]cell.Opacity{cell.Opaque, cell.Opaque}
	pg.ScreenColour = ext.ScreenColour

	if rp.LOPFlags.Newsflash || rp.LOPFlags.Subtitle {
		pg.ScreenOpacity = cell.TransparentSpace
	}
	if rp.LOPFlags.InhibitDisplay {
		pg.PageOpacity[0] = cell.TransparentSpace
		pg.PageOpacity[1] = cell.TransparentSpace
	}
}

// runEnhancement runs C5 on the page's own X/26 triplets, or, if the page
// carries none, invokes its MOT-resolved default object(s) instead. Either
// way the Level-1 result is snapshotted first and restored verbatim on
// structural failure (spec §7: enhancement is all-or-nothing). It reports
// whether the enhancement pass succeeded.
func (f *Formatter) runEnhancement(store cache.Store, pg *cell.Page, rp *raw.Page, mag *raw.Magazine, pgno int, headerOnly, level35 bool) bool {
	snapshot := pg.Clone()

	hasLocal := false
	for d := 0; d < 16; d++ {
		if rp.TripletCount[d] > 0 {
			hasLocal = true
			break
		}
	}

	var runErr error
	if hasLocal {
		in := enhance.New(store, pg, rp, mag, pgno, headerOnly, level35)
		for d := 0; d < 16 && runErr == nil; d++ {
			n := rp.TripletCount[d]
			if n == 0 {
				continue
			}
			runErr = in.Run(rp.Triplets[d][:n])
		}
	} else {
		runErr = enhance.DefaultObjectInvocation(store, pg, rp, mag, pgno, headerOnly, level35)
	}

	if runErr != nil {
		f.log("enhancement failed, rolling back", "pgno", pgno, "err", runErr.Error())
		*pg = *snapshot
		return false
	}
	return true
}

func (f *Formatter) runNavigation(store cache.Store, pg *cell.Page, rp *raw.Page, displayRows int) {
	pg.NavLink[5] = cell.PageRef{Pgno: rp.Links[5].Pgno, Subno: rp.Links[5].Subno}

	for r := 1; r < displayRows-1 && r < cell.Rows-1; r++ {
		linkscan.Scan(pg, r, pg.Pgno)
	}

	if displayRows < cell.Rows {
		return
	}

	if rp.LOPFlags.FlofPresent {
		var links [4]cell.PageRef
		for i := 0; i < 4; i++ {
			links[i] = cell.PageRef{Pgno: rp.Links[i].Pgno, Subno: rp.Links[i].Subno}
		}
		if rp.LOPFlags.FlofColourLinks {
			nav.FlofColourLinks(pg, links)
		} else {
			nav.FlofBar(pg, links)
		}
	} else if rp.LOPFlags.HasTopMeta {
		bttPage, ok := store.Get(rp.Pgno&0xFF00, 0) // BTT conventionally lives at magazine's .00 page; simplified lookup
		var btt [8]raw.BTTLink
		var aitPage *raw.Page
		if ok {
			btt = bttPage.BTT
		}
		aitPage, _ = findAIT(store, btt)
		nav.TopBar(pg, store, btt, aitPage)
	}
}

func findAIT(store cache.Store, btt [8]raw.BTTLink) (*raw.Page, bool) {
	for _, l := range btt {
		if l.Type == 2 {
			if p, ok := store.Get(l.Pgno, l.Subno); ok && p.Function == raw.AIT {
				return p, true
			}
		}
	}
	return nil, false
}

const topIndexPgno = 0x900

func (f *Formatter) formatTopIndex(store cache.Store, subno int) (*cell.Page, bool) {
	btt, ok := store.Get(0, 0)
	var ait *raw.Page
	if ok {
		a, found := findAIT(store, btt.BTT)
		if found {
			ait = a
		}
	}
	pg := nav.TopIndex(ait, subno)
	postenhance.Run(pg, cell.Rows)
	for r := 1; r < cell.Rows-1; r++ {
		linkscan.Scan(pg, r, pg.Pgno)
	}
	return pg, true
}

func (f *Formatter) log(msg string, args ...any) {
	if f.Logger != nil {
		f.Logger.Debug(msg, args...)
	}
}
