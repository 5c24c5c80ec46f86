// Package linkscan implements C7, the link scanner: it flattens rendered
// rows into text and recognises page numbers, subpage references, URLs and
// e-mail addresses, annotating the matched cells as links.
package linkscan

import (
	"fmt"

	"github.com/bdwalton/ttxfmt/cell"
)

// Kind classifies a recognised link.
type Kind int

const (
	None Kind = iota
	Page
	Subpage
	HTTP
	FTP
	Email
)

// Match describes one recognised span within a flattened row.
type Match struct {
	Kind       Kind
	Start, End int // [Start, End) column range within the flattened buffer
	Pgno       int
	Subno      int
	URL        string
}

const urlBodyChars = "%&/=?+-~:;@_."

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func isURLBody(b byte) bool {
	if b >= 'A' && b <= 'Z' || b >= 'a' && b <= 'z' || isDigit(b) {
		return true
	}
	for i := 0; i < len(urlBodyChars); i++ {
		if urlBodyChars[i] == b {
			return true
		}
	}
	return false
}

func isEmailLocal(b byte) bool {
	if b >= 'A' && b <= 'Z' || b >= 'a' && b <= 'z' || isDigit(b) {
		return true
	}
	switch b {
	case '.', '_', '~', '-':
		return true
	}
	return false
}

// Flatten renders row r (1-indexed, as a rendered page row) of pg into a
// 40-character ASCII-ish buffer, skipping over-top/over-bottom continuation
// cells (they carry no independent glyph).
func Flatten(pg *cell.Page, row int) []byte {
	buf := make([]byte, cell.Cols)
	for c := 0; c < cell.Cols; c++ {
		ce := pg.Grid[row][c]
		if ce.Size == cell.OverTop || ce.Size == cell.OverBottom {
			buf[c] = ' '
			continue
		}
		if ce.Code >= 0x20 && ce.Code < 0x80 {
			buf[c] = byte(ce.Code)
		} else {
			buf[c] = ' '
		}
	}
	return buf
}

// keyword scans buf starting at i for a recognisable pattern, returning the
// match and the index to resume scanning from. It preserves the source
// material's documented 3-vs-4-digit adjacency quirk verbatim (a 3-digit
// run is a page number only when NOT immediately followed by a 4th digit).
func keyword(buf []byte, i int, curPgno int) (Match, int) {
	n := len(buf)

	if isDigit(buf[i]) {
		start := i
		j := i
		for j < n && isDigit(buf[j]) && j-start < 4 {
			j++
		}
		run := j - start
		if run == 3 {
			if j < n && isDigit(buf[j]) {
				return Match{}, j // 4th digit present: not a page number, skip the whole run
			}
			val := (int(buf[start]-'0') << 8) | (int(buf[start+1]-'0') << 4) | int(buf[start+2]-'0')
			if val >= 0x100 && val <= 0x899 {
				// check for a /ss or :ss subpage suffix
				if j < n && (buf[j] == '/' || buf[j] == ':') && j+2 <= n && isDigit(buf[j+1]) {
					k := j + 1
					for k < n && isDigit(buf[k]) {
						k++
					}
					ss := 0
					for _, d := range buf[j+1 : k] {
						ss = ss*10 + int(d-'0')
					}
					if val == curPgno {
						sub := ss + 1
						if ss == val&0xFF {
							sub = 1
						}
						return Match{Kind: Subpage, Start: start, End: k, Pgno: curPgno, Subno: sub}, k
					}
				}
				return Match{Kind: Page, Start: start, End: j, Pgno: val}, j
			}
			return Match{}, j // not in range: still skip the whole disqualified run
		}
		return Match{}, j // run != 3 (too short or hit the 4-digit cap): skip the whole run
	}

	if matchPrefix(buf, i, "http://") || matchPrefix(buf, i, "https://") || matchPrefix(buf, i, "ftp://") {
		end := scanURLBody(buf, i)
		url := string(buf[i:end])
		kind := HTTP
		if matchPrefix(buf, i, "ftp://") {
			kind = FTP
		}
		return Match{Kind: kind, Start: i, End: end, URL: url}, end
	}

	if matchPrefix(buf, i, "www.") {
		end := scanURLBody(buf, i)
		if hasValidHost(buf[i:end]) {
			return Match{Kind: HTTP, Start: i, End: end, URL: "http://" + string(buf[i:end])}, end
		}
		return Match{}, i + 1
	}

	if buf[i] == '@' || buf[i] == 0xA7 {
		local := scanEmailLocalBackwards(buf, i)
		end := scanURLBody(buf, i+1)
		host := buf[i+1 : end]
		if local < i && hasValidHost(host) {
			addr := fmt.Sprintf("mailto:%s@%s", buf[local:i], host)
			return Match{Kind: Email, Start: local, End: end, URL: addr}, end
		}
		return Match{}, i + 1
	}

	return Match{}, i + 1
}

func matchPrefix(buf []byte, i int, prefix string) bool {
	if i+len(prefix) > len(buf) {
		return false
	}
	for k := 0; k < len(prefix); k++ {
		a, b := buf[i+k], prefix[k]
		if a >= 'A' && a <= 'Z' {
			a += 'a' - 'A'
		}
		if a != b {
			return false
		}
	}
	return true
}

func scanURLBody(buf []byte, i int) int {
	j := i
	for j < len(buf) && isURLBody(buf[j]) {
		j++
	}
	return j
}

func scanEmailLocalBackwards(buf []byte, at int) int {
	i := at
	for i > 0 && isEmailLocal(buf[i-1]) {
		i--
	}
	return i
}

// hasValidHost requires at least one dot with an alphanumeric run on each
// side of some dot in host.
func hasValidHost(host []byte) bool {
	alnum := func(b byte) bool {
		return b >= 'A' && b <= 'Z' || b >= 'a' && b <= 'z' || isDigit(b)
	}
	for i, b := range host {
		if b == '.' && i > 0 && i < len(host)-1 && alnum(host[i-1]) && alnum(host[i+1]) {
			return true
		}
	}
	return false
}

// Scan repeatedly calls keyword over a flattened row and returns every
// match found, marking the spanned cells as links on pg.
func Scan(pg *cell.Page, row int, pgno int) []Match {
	buf := Flatten(pg, row)
	var matches []Match
	for i := 0; i < len(buf); {
		m, next := keyword(buf, i, pgno)
		if m.Kind != None {
			matches = append(matches, m)
			for c := m.Start; c < m.End && c < cell.Cols; c++ {
				pg.Grid[row][c].Link = true
			}
		}
		i = next
	}
	return matches
}

// ResolveLink re-runs the scan starting from col; if nothing is found there,
// it retries from the nearest '@' to the left (spec's email fallback), and
// on the last row reads directly from the nav table instead of rescanning.
func ResolveLink(pg *cell.Page, row, col int) (Match, bool) {
	if row == cell.Rows-1 {
		idx := pg.NavIndex[row][col]
		if idx >= 0 {
			ref := pg.NavLink[idx]
			return Match{Kind: Page, Pgno: ref.Pgno, Subno: ref.Subno}, true
		}
	}

	buf := Flatten(pg, row)
	m, _ := keyword(buf, col, pg.Pgno)
	if m.Kind != None {
		return m, true
	}
	for i := col - 1; i >= 0; i-- {
		if buf[i] == '@' {
			m, _ := keyword(buf, i, pg.Pgno)
			if m.Kind != None {
				return m, true
			}
			break
		}
	}
	return Match{}, false
}

// ResolveHome returns the magazine's initial page, the slot reserved at nav
// index 5.
func ResolveHome(pg *cell.Page) cell.PageRef {
	return pg.NavLink[5]
}
