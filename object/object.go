// Package object implements C4, the object address resolver: given a
// target object type and an address triplet, it locates and type-checks the
// referenced POP/GPOP object's triplet body.
package object

import (
	"github.com/bdwalton/ttxfmt/cache"
	"github.com/bdwalton/ttxfmt/raw"
)

// Type is the enhancement object-type/priority level. Only strictly higher
// types may be invoked from a lower one (spec §4.4).
type Type uint8

const (
	Local Type = iota
	Active
	Adaptive
	Passive
)

// Mode byte each Type corresponds to in the object-definition-header triplet
// (mode == int(t) + 0x14, so Active==1 maps to 0x15 and Passive to 0x17).
func (t Type) headerMode() uint8 { return uint8(t) + 0x14 }

const poolBound = 506

// Resolve looks up the object referenced by addr on page pgno, expecting
// function want (POP or GPOP). It returns the object body's triplets (the
// slice starting just after the object-definition header) and true on
// success.
func Resolve(store cache.Store, objType Type, pgno int, addr raw.Triplet, want raw.Function) ([]raw.Triplet, bool) {
	address := uint16(addr.Address)<<7 | uint16(addr.Data)

	// s1 (the source page's subpage) comes from the combined address's low
	// 4 bits, which are driven entirely by addr.Data: addr.Address<<7
	// never contributes below bit 7.
	s1 := address & 0x0F
	page, ok := store.Get(pgno, int(s1))
	if !ok {
		return nil, false
	}
	if page.Function == raw.Unknown {
		page, ok = store.Coerce(pgno, int(s1), want)
		if !ok {
			return nil, false
		}
	} else if page.Function != want {
		return nil, false
	}

	packet := (address >> 7) & 3
	sub := (address >> 5) & 3
	typeIdx := uint16(objType)
	i := sub*3 + typeIdx
	pointerIdx := packet*24 + i*2 + ((address >> 4) & 1)
	if int(pointerIdx) >= len(page.POPPointers) {
		return nil, false
	}
	pointer := page.POPPointers[pointerIdx]
	if pointer > poolBound {
		return nil, false
	}

	header := page.Pool[pointer]
	if header.Mode != objType.headerMode() {
		return nil, false
	}
	if (uint16(header.Address)<<7^uint16(header.Data)^address)&0x1FF != 0 {
		return nil, false
	}

	body := page.Pool[pointer+1:]
	return body, true
}
