// Package scanner provides the byte-level script reader used by the
// parser: single-character lookahead, whitespace and line-break
// normalization, symbol-string interning, and numeric literal reads.
// The '#' filter handles "#!" line comments and the "#Q" quit marker.
package scanner

import (
	"fmt"
	"os"
	"strconv"
)

// Characters returned after filtering. Also used for comparisons.
const (
	// EOF is returned at end of input, or after close.
	EOF byte = 0
	// Space is returned for a run of spaces and tabs.
	Space byte = ' '
	// Lnbrk is returned for a line break (LF, CR, or either pair).
	Lnbrk byte = '\n'
)

// Whitespace filtering levels.
const (
	// WsAll returns Space and Lnbrk characters.
	WsAll uint8 = iota
	// WsNone silently consumes all whitespace, for use inside
	// numeric expressions.
	WsNone
)

// NumConstFunc reads a named numeric constant from the raw byte
// stream, returning the value and the number of bytes consumed
// (0 if not matched; consumed bytes must then be ungotten).
type NumConstFunc func(sc *Scanner) (val float64, n int)

type scanFrame struct {
	pos, line, lineStart int
}

// Scanner reads a script from a file or string.
type Scanner struct {
	SymTab *SymTab
	// Data is free for use by filter callbacks and constant parsers.
	Data any

	src    []byte
	name   string
	opened bool

	cur  scanFrame
	prev scanFrame

	wsLevel uint8
}

// New creates a scanner using the given symbol table.
func New(st *SymTab) *Scanner {
	return &Scanner{SymTab: st}
}

// Open prepares the scanner for reading a script. If isPath is
// true, arg names a file to read; otherwise arg is the script text
// itself and the name becomes a quoted excerpt.
func (sc *Scanner) Open(arg string, isPath bool) error {
	if isPath {
		src, err := os.ReadFile(arg)
		if err != nil {
			return fmt.Errorf("cannot open script: %w", err)
		}
		sc.src = src
		sc.name = arg
	} else {
		sc.src = []byte(arg)
		name := arg
		if len(name) > 24 {
			name = name[:24] + "..."
		}
		sc.name = fmt.Sprintf("string: \"%s\"", name)
	}
	sc.opened = true
	sc.cur = scanFrame{}
	sc.prev = scanFrame{}
	sc.wsLevel = WsAll
	return nil
}

// Close ends reading; further reads return EOF.
func (sc *Scanner) Close() {
	sc.opened = false
}

// Name returns the name of the open script.
func (sc *Scanner) Name() string {
	return sc.name
}

// SetWsLevel sets the whitespace filtering level,
// returning the old level.
func (sc *Scanner) SetWsLevel(level uint8) uint8 {
	old := sc.wsLevel
	sc.wsLevel = level
	return old
}

// WsLevel returns the current whitespace filtering level.
func (sc *Scanner) WsLevel() uint8 {
	return sc.wsLevel
}

func (sc *Scanner) rawByte() (byte, bool) {
	if !sc.opened || sc.cur.pos >= len(sc.src) {
		return 0, false
	}
	c := sc.src[sc.cur.pos]
	sc.cur.pos++
	return c, true
}

// Getc returns the next character after filtering. Runs of blanks
// collapse into one Space; line endings normalize into one Lnbrk;
// with WsNone both are consumed silently.
func (sc *Scanner) Getc() byte {
	for {
		start := sc.cur
		c, ok := sc.rawByte()
		if !ok {
			sc.prev = start
			return EOF
		}
		switch c {
		case ' ', '\t':
			for sc.cur.pos < len(sc.src) {
				c = sc.src[sc.cur.pos]
				if c != ' ' && c != '\t' {
					break
				}
				sc.cur.pos++
			}
			if sc.wsLevel == WsNone {
				continue
			}
			sc.prev = start
			return Space
		case '\n':
			if sc.cur.pos < len(sc.src) && sc.src[sc.cur.pos] == '\r' {
				sc.cur.pos++
			}
			sc.cur.line++
			sc.cur.lineStart = sc.cur.pos
			if sc.wsLevel == WsNone {
				continue
			}
			sc.prev = start
			return Lnbrk
		case '\r':
			if sc.cur.pos < len(sc.src) && sc.src[sc.cur.pos] == '\n' {
				sc.cur.pos++
			}
			sc.cur.line++
			sc.cur.lineStart = sc.cur.pos
			if sc.wsLevel == WsNone {
				continue
			}
			sc.prev = start
			return Lnbrk
		case '#':
			if sc.cur.pos < len(sc.src) {
				switch sc.src[sc.cur.pos] {
				case '!':
					for sc.cur.pos < len(sc.src) {
						c = sc.src[sc.cur.pos]
						if c == '\n' || c == '\r' {
							break
						}
						sc.cur.pos++
					}
					continue
				case 'Q':
					sc.Close()
					sc.prev = start
					return EOF
				}
			}
			sc.prev = start
			return '#'
		default:
			sc.prev = start
			return c
		}
	}
}

// Ungetc reverts the last Getc. Only one step of undo is kept.
func (sc *Scanner) Ungetc() {
	sc.cur = sc.prev
}

// Tryc consumes the next character if it equals c,
// returning whether it did.
func (sc *Scanner) Tryc(c byte) bool {
	got := sc.Getc()
	if got == c {
		return true
	}
	sc.Ungetc()
	return false
}

// RawGetc reads one unfiltered byte, or EOF at end of input.
// For use by numeric constant parsers.
func (sc *Scanner) RawGetc() byte {
	c, ok := sc.rawByte()
	if !ok {
		return EOF
	}
	return c
}

// RawUnget steps the raw read position back n bytes.
func (sc *Scanner) RawUnget(n int) {
	sc.cur.pos -= n
	if sc.cur.pos < 0 {
		sc.cur.pos = 0
	}
}

func isSymChar(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9') || c == '_'
}

// GetSymStr reads an identifier and returns its interned entry,
// or nil if no identifier follows.
func (sc *Scanner) GetSymStr() *SymStr {
	start := sc.cur.pos
	for sc.cur.pos < len(sc.src) && isSymChar(sc.src[sc.cur.pos]) {
		sc.cur.pos++
	}
	if sc.cur.pos == start {
		return nil
	}
	return sc.SymTab.Get(string(sc.src[start:sc.cur.pos]))
}

// Getd reads an unsigned numeric literal, trying the optional
// constant parser first. Returns the value and the number of bytes
// read; a zero count means no number was present.
func (sc *Scanner) Getd(numconst NumConstFunc) (float64, int) {
	if numconst != nil {
		if val, n := numconst(sc); n > 0 {
			return val, n
		}
	}
	start := sc.cur.pos
	dot := false
	for sc.cur.pos < len(sc.src) {
		c := sc.src[sc.cur.pos]
		if c >= '0' && c <= '9' {
			sc.cur.pos++
			continue
		}
		if c == '.' && !dot {
			dot = true
			sc.cur.pos++
			continue
		}
		break
	}
	if sc.cur.pos == start || (dot && sc.cur.pos == start+1) {
		sc.cur.pos = start
		return 0, 0
	}
	str := string(sc.src[start:sc.cur.pos])
	if str[len(str)-1] == '.' {
		str += "0"
	}
	val, err := strconv.ParseFloat(str, 64)
	if err != nil {
		sc.cur.pos = start
		return 0, 0
	}
	return val, sc.cur.pos - start
}

// Geti reads an unsigned integer literal. Returns the value and the
// number of bytes read; a zero count means no digits were present.
func (sc *Scanner) Geti() (int32, int) {
	start := sc.cur.pos
	var val int32
	for sc.cur.pos < len(sc.src) {
		c := sc.src[sc.cur.pos]
		if c < '0' || c > '9' {
			break
		}
		val = val*10 + int32(c-'0')
		sc.cur.pos++
	}
	return val, sc.cur.pos - start
}

// Line returns the current 1-based line number.
func (sc *Scanner) Line() int {
	return sc.cur.line + 1
}

// Char returns the current 1-based character position on the line.
func (sc *Scanner) Char() int {
	return sc.cur.pos - sc.cur.lineStart + 1
}

// Warning prints a diagnostic message with the current position
// to stderr. Warnings never abort reading.
func (sc *Scanner) Warning(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "warning: %s [line %d, char %d]: %s\n",
		sc.name, sc.Line(), sc.Char(), fmt.Sprintf(format, args...))
}

// Error prints an error message with the current position to stderr.
func (sc *Scanner) Error(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: %s [line %d, char %d]: %s\n",
		sc.name, sc.Line(), sc.Char(), fmt.Sprintf(format, args...))
}
