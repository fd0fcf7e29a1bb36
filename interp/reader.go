// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package interp

import (
	"fmt"
	"strings"

	"github.com/qyqx/arcueid/value"
)

// A minimal s-expression reader, enough to feed the compiler: symbols,
// numbers (through the numeric tower's string parser), strings with
// escapes, #\ characters, quote family sugar, dotted pairs, and ;
// comments. The full reader is an external collaborator; this one
// exists so the runtime core is usable stand-alone.

type reader struct {
	ic   *Interp
	src  []rune
	pos  int
	line int
}

// ReadAll parses every form in src.
func (ic *Interp) ReadAll(src string) ([]value.Value, error) {
	r := &reader{ic: ic, src: []rune(src), line: 1}
	var out []value.Value
	for {
		r.skipSpace()
		if r.eof() {
			return out, nil
		}
		v, err := r.read()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
}

// ReadOne parses the first form in src.
func (ic *Interp) ReadOne(src string) (value.Value, error) {
	forms, err := ic.ReadAll(src)
	if err != nil {
		return value.Nil, err
	}
	if len(forms) == 0 {
		return value.Nil, fmt.Errorf("read: empty input")
	}
	return forms[0], nil
}

func (r *reader) eof() bool { return r.pos >= len(r.src) }

func (r *reader) peek() rune { return r.src[r.pos] }

func (r *reader) next() rune {
	c := r.src[r.pos]
	r.pos++
	if c == '\n' {
		r.line++
	}
	return c
}

func (r *reader) skipSpace() {
	for !r.eof() {
		c := r.peek()
		switch {
		case c == ';':
			for !r.eof() && r.peek() != '\n' {
				r.next()
			}
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			r.next()
		default:
			return
		}
	}
}

func (r *reader) read() (value.Value, error) {
	r.skipSpace()
	if r.eof() {
		return value.Nil, fmt.Errorf("read: unexpected end of input at line %d", r.line)
	}
	switch c := r.peek(); {
	case c == '(':
		r.next()
		return r.readList()
	case c == ')':
		return value.Nil, fmt.Errorf("read: unbalanced ) at line %d", r.line)
	case c == '\'':
		r.next()
		return r.readWrapped(r.ic.sym.quote)
	case c == '`':
		r.next()
		return r.readWrapped(r.ic.sym.qquote)
	case c == ',':
		r.next()
		sym := r.ic.sym.unquote
		if !r.eof() && r.peek() == '@' {
			r.next()
			sym = r.ic.sym.unquoteSp
		}
		return r.readWrapped(sym)
	case c == '"':
		r.next()
		return r.readString()
	case c == '#':
		return r.readHash()
	default:
		return r.readAtom()
	}
}

func (r *reader) readWrapped(sym value.Value) (value.Value, error) {
	v, err := r.read()
	if err != nil {
		return value.Nil, err
	}
	return r.ic.list(sym, v), nil
}

func (r *reader) readList() (value.Value, error) {
	var elems []value.Value
	tail := value.Nil
	for {
		r.skipSpace()
		if r.eof() {
			return value.Nil, fmt.Errorf("read: unterminated list at line %d", r.line)
		}
		if r.peek() == ')' {
			r.next()
			break
		}
		if r.peek() == '.' && r.dotBreaks() {
			r.next()
			v, err := r.read()
			if err != nil {
				return value.Nil, err
			}
			tail = v
			r.skipSpace()
			if r.eof() || r.peek() != ')' {
				return value.Nil, fmt.Errorf("read: bad dotted pair at line %d", r.line)
			}
			r.next()
			break
		}
		v, err := r.read()
		if err != nil {
			return value.Nil, err
		}
		elems = append(elems, v)
	}
	out := tail
	for i := len(elems) - 1; i >= 0; i-- {
		out = r.ic.cons(elems[i], out)
	}
	return out, nil
}

// dotBreaks reports whether the dot at the cursor is a pair dot rather
// than the start of a number or symbol like .5 or ...
func (r *reader) dotBreaks() bool {
	if r.pos+1 >= len(r.src) {
		return true
	}
	c := r.src[r.pos+1]
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '(' || c == ')'
}

func (r *reader) readString() (value.Value, error) {
	var sb strings.Builder
	for {
		if r.eof() {
			return value.Nil, fmt.Errorf("read: unterminated string at line %d", r.line)
		}
		c := r.next()
		if c == '"' {
			return r.ic.mkStringStr(sb.String()), nil
		}
		if c == '\\' {
			if r.eof() {
				return value.Nil, fmt.Errorf("read: unterminated escape at line %d", r.line)
			}
			switch e := r.next(); e {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case '"', '\\':
				sb.WriteRune(e)
			default:
				return value.Nil, fmt.Errorf("read: bad escape \\%c at line %d", e, r.line)
			}
			continue
		}
		sb.WriteRune(c)
	}
}

func (r *reader) readHash() (value.Value, error) {
	r.next() // '#'
	if r.eof() {
		return value.Nil, fmt.Errorf("read: lone # at line %d", r.line)
	}
	if r.peek() != '\\' {
		return value.Nil, fmt.Errorf("read: unsupported # syntax at line %d", r.line)
	}
	r.next()
	if r.eof() {
		return value.Nil, fmt.Errorf("read: lone #\\ at line %d", r.line)
	}
	// named characters, else a literal one
	start := r.pos
	for !r.eof() && !r.breakChar(r.peek()) {
		r.next()
	}
	name := string(r.src[start:r.pos])
	switch name {
	case "newline":
		return r.ic.mkChar('\n'), nil
	case "space":
		return r.ic.mkChar(' '), nil
	case "tab":
		return r.ic.mkChar('\t'), nil
	case "":
		return r.ic.mkChar(r.next()), nil
	default:
		rs := []rune(name)
		if len(rs) == 1 {
			return r.ic.mkChar(rs[0]), nil
		}
		return value.Nil, fmt.Errorf("read: unknown character #\\%s at line %d", name, r.line)
	}
}

func (r *reader) breakChar(c rune) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '(', ')', '"', ';':
		return true
	}
	return false
}

func (r *reader) readAtom() (value.Value, error) {
	line := r.line
	start := r.pos
	for !r.eof() && !r.breakChar(r.peek()) {
		r.next()
	}
	text := string(r.src[start:r.pos])
	if text == "" {
		return value.Nil, fmt.Errorf("read: empty atom at line %d", line)
	}
	if looksNumeric(text) {
		if n, ok := r.ic.string2num(text, 10); ok {
			return n, nil
		}
	}
	return r.ic.Intern(text), nil
}

// looksNumeric weeds out symbols like - and /: a numeric atom starts
// with a digit, or a sign/dot followed by a digit.
func looksNumeric(s string) bool {
	rs := []rune(s)
	if rs[0] >= '0' && rs[0] <= '9' {
		return true
	}
	if (rs[0] == '-' || rs[0] == '+' || rs[0] == '.') && len(rs) > 1 {
		return rs[1] >= '0' && rs[1] <= '9' || rs[1] == '.'
	}
	return false
}
