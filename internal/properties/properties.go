// Package properties reads and writes key/value tables in the Java
// properties text format.
//
// The codec works on UTF-16 code units, the same unit the format was
// defined against, so characters outside the basic multilingual plane are
// written as a pair of \u escapes and surrogate pairs are recombined on
// read. Output is pure ASCII: every character outside 0x20..0x7e is
// written as an uppercase \uXXXX escape.
package properties

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf16"
)

// ErrMalformed is returned for input that is not a valid properties file.
var ErrMalformed = errors.New("properties: malformed input")

// Pair is one key/value entry.
type Pair struct {
	Key   string
	Value string
}

const hexDigits = "0123456789ABCDEF"

// EscapeKey escapes s for use as a key. All spaces are escaped.
func EscapeKey(s string) string { return escape(s, true) }

// EscapeValue escapes s for use as a value. Only a leading space is escaped.
func EscapeValue(s string) string { return escape(s, false) }

func escape(s string, escapeSpace bool) string {
	var b strings.Builder
	for x, c := range utf16.Encode([]rune(s)) {
		if c > 61 && c < 127 {
			if c == '\\' {
				b.WriteString(`\\`)
				continue
			}
			b.WriteByte(byte(c))
			continue
		}
		switch c {
		case ' ':
			if x == 0 || escapeSpace {
				b.WriteByte('\\')
			}
			b.WriteByte(' ')
		case '\t':
			b.WriteString(`\t`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\f':
			b.WriteString(`\f`)
		case '=', ':', '#', '!':
			b.WriteByte('\\')
			b.WriteByte(byte(c))
		default:
			if c < 0x20 || c > 0x7e {
				b.WriteString(`\u`)
				b.WriteByte(hexDigits[(c>>12)&0xF])
				b.WriteByte(hexDigits[(c>>8)&0xF])
				b.WriteByte(hexDigits[(c>>4)&0xF])
				b.WriteByte(hexDigits[c&0xF])
			} else {
				b.WriteByte(byte(c))
			}
		}
	}
	return b.String()
}

// Write writes pairs in the given order. A non-empty header is written
// first as a comment line. w is not closed.
func Write(w io.Writer, header string, pairs []Pair) error {
	bw := bufio.NewWriter(w)
	if header != "" {
		if _, err := bw.WriteString("#" + escapeComment(header) + "\n"); err != nil {
			return err
		}
	}
	for _, p := range pairs {
		if _, err := bw.WriteString(EscapeKey(p.Key) + "=" + EscapeValue(p.Value) + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func escapeComment(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	return strings.ReplaceAll(s, "\n", "\n#")
}

// Read parses every entry of a properties file. Later duplicates of a key
// are returned as separate pairs; callers decide how to merge them.
func Read(r io.Reader) ([]Pair, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	lr := newLineReader(utf16.Encode([]rune(string(data))))

	var pairs []Pair
	for {
		line, lineNo, ok := lr.next()
		if !ok {
			return pairs, nil
		}
		p, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformed, lineNo, err)
		}
		pairs = append(pairs, p)
	}
}

func isSpace(c uint16) bool { return c == ' ' || c == '\t' || c == '\f' }

func parseLine(line []uint16) (Pair, error) {
	limit := len(line)
	keyLen := 0
	valueStart := limit
	hasSep := false
	backslash := false
	for keyLen < limit {
		c := line[keyLen]
		if (c == '=' || c == ':') && !backslash {
			valueStart = keyLen + 1
			hasSep = true
			break
		}
		if isSpace(c) && !backslash {
			valueStart = keyLen + 1
			break
		}
		if c == '\\' {
			backslash = !backslash
		} else {
			backslash = false
		}
		keyLen++
	}
	for valueStart < limit {
		c := line[valueStart]
		if !isSpace(c) {
			if hasSep || (c != '=' && c != ':') {
				break
			}
			hasSep = true
		}
		valueStart++
	}

	key, err := unescape(line[:keyLen])
	if err != nil {
		return Pair{}, err
	}
	value, err := unescape(line[valueStart:])
	if err != nil {
		return Pair{}, err
	}
	return Pair{Key: key, Value: value}, nil
}

func unescape(in []uint16) (string, error) {
	out := make([]uint16, 0, len(in))
	for i := 0; i < len(in); i++ {
		c := in[i]
		if c != '\\' || i+1 >= len(in) {
			out = append(out, c)
			continue
		}
		i++
		c = in[i]
		switch c {
		case 'u':
			if i+4 >= len(in) {
				return "", fmt.Errorf("truncated \\u escape")
			}
			var v uint16
			for _, h := range in[i+1 : i+5] {
				d, ok := hexValue(h)
				if !ok {
					return "", fmt.Errorf("invalid \\u escape %q", string(utf16.Decode(in[i-1:i+5])))
				}
				v = v<<4 | d
			}
			out = append(out, v)
			i += 4
		case 't':
			out = append(out, '\t')
		case 'r':
			out = append(out, '\r')
		case 'n':
			out = append(out, '\n')
		case 'f':
			out = append(out, '\f')
		default:
			out = append(out, c)
		}
	}
	return string(utf16.Decode(out)), nil
}

func hexValue(c uint16) (uint16, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// lineReader splits input into logical lines: comment and blank lines are
// dropped, leading whitespace is trimmed and a line ending in an odd
// number of backslashes continues on the next natural line.
type lineReader struct {
	lines [][]uint16
	pos   int
}

func newLineReader(buf []uint16) *lineReader {
	r := &lineReader{}
	start := 0
	for i := 0; i < len(buf); i++ {
		switch buf[i] {
		case '\n':
			r.lines = append(r.lines, buf[start:i])
			start = i + 1
		case '\r':
			r.lines = append(r.lines, buf[start:i])
			if i+1 < len(buf) && buf[i+1] == '\n' {
				i++
			}
			start = i + 1
		}
	}
	if start < len(buf) {
		r.lines = append(r.lines, buf[start:])
	}
	return r
}

// next returns the next logical line and the number of its first natural line.
func (r *lineReader) next() ([]uint16, int, bool) {
	for r.pos < len(r.lines) {
		line := trimLeft(r.lines[r.pos])
		r.pos++
		lineNo := r.pos
		if len(line) == 0 || line[0] == '#' || line[0] == '!' {
			continue
		}
		out := append([]uint16(nil), line...)
		for continues(out) {
			out = out[:len(out)-1]
			if r.pos >= len(r.lines) {
				break
			}
			out = append(out, trimLeft(r.lines[r.pos])...)
			r.pos++
		}
		return out, lineNo, true
	}
	return nil, 0, false
}

func trimLeft(line []uint16) []uint16 {
	for len(line) > 0 && isSpace(line[0]) {
		line = line[1:]
	}
	return line
}

func continues(line []uint16) bool {
	n := 0
	for i := len(line) - 1; i >= 0 && line[i] == '\\'; i-- {
		n++
	}
	return n%2 == 1
}
