// Package charset resolves the primary/alternate character-set descriptors
// for a page (C2). The actual G0/G1/G2/G3 code point tables are an external
// collaborator (spec Non-goals); this package only does descriptor-index
// resolution, plus a small built-in table so the rest of the pipeline has
// something to look glyphs up in during tests and the demo CLI.
package charset

import "github.com/bdwalton/ttxfmt/raw"

// Override, when non-negative, pins both character-set slots to a fixed
// descriptor index. It exists for development builds only (spec §6/§9); set
// it in source or from a test, never from page data.
var Override int8 = -1

// MaxDescriptor bounds the valid descriptor index space of the built-in
// table.
const MaxDescriptor = 16

// validDescriptor reports whether the global table has a non-null entry at
// index i.
func validDescriptor(i uint8) bool {
	return i < MaxDescriptor
}

// Resolve returns the (primary, alternate) descriptor pair for a page given
// its magazine/page-local extension. For each slot: start from the
// extension's default; if mixing in the page's national-option bits yields
// a valid descriptor, prefer that.
func Resolve(ext *raw.Extension, national uint8) (primary, alternate uint8) {
	if Override >= 0 {
		return uint8(Override), uint8(Override)
	}

	resolve := func(base uint8) uint8 {
		national3 := national & 0x07
		candidate := (base &^ 0x07) | national3
		if validDescriptor(candidate) {
			return candidate
		}
		if validDescriptor(base) {
			return base
		}
		return 0
	}

	primary = resolve(ext.CharSet[0])
	alternate = resolve(ext.CharSet[1])
	return primary, alternate
}

// Font is a minimal stand-in for the external G0/G2 code point table: it
// maps (descriptor, raw byte) to a rune so the rest of the pipeline (C3, C5)
// has something concrete to call during tests, without claiming to be a
// real national-subset table.
type Font struct {
	// G0 overrides the ASCII range 0x20..0x7F for a handful of national
	// subset code points; absent entries fall back to plain ASCII.
	G0 map[uint8]rune
}

// Lookup returns the glyph for raw byte b under descriptor d. b is expected
// to already have its parity bit stripped and be in 0x20..0x7F.
func (f *Font) Lookup(d uint8, b byte) rune {
	if f != nil && f.G0 != nil {
		if r, ok := f.G0[b]; ok {
			return r
		}
	}
	return rune(b)
}

// DefaultFont is a plain-ASCII font used when no national table is wired in.
var DefaultFont = &Font{}
