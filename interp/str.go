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
	"encoding/binary"

	"github.com/qyqx/arcueid/value"
)

// Strings are sequences of UCS-4 code points: slot 0 holds the length
// as a fixnum, followed by one 32-bit code point per character packed
// into the remaining payload.

func (ic *Interp) mkString(rs []rune) value.Value {
	v := ic.alloc(8+4*len(rs), value.TString)
	ic.setSlot(v, 0, value.Fixnum(int64(len(rs))))
	p := ic.payload(v)
	for i, r := range rs {
		binary.LittleEndian.PutUint32(p[8+4*i:], uint32(r))
	}
	return v
}

func (ic *Interp) mkStringStr(s string) value.Value {
	return ic.mkString([]rune(s))
}

func (ic *Interp) strLen(v value.Value) int {
	return int(ic.slot(v, 0).Int())
}

func (ic *Interp) strIndex(v value.Value, i int) rune {
	if i < 0 || i >= ic.strLen(v) {
		ic.signal(ErrType, "string index %d out of range [0, %d)", i, ic.strLen(v))
	}
	p := ic.payload(v)
	return rune(binary.LittleEndian.Uint32(p[8+4*i:]))
}

func (ic *Interp) strSetIndex(v value.Value, i int, r rune) {
	if i < 0 || i >= ic.strLen(v) {
		ic.signal(ErrType, "string index %d out of range [0, %d)", i, ic.strLen(v))
	}
	p := ic.payload(v)
	binary.LittleEndian.PutUint32(p[8+4*i:], uint32(r))
}

// strRunes copies the string's code points into a Go rune slice.
func (ic *Interp) strRunes(v value.Value) []rune {
	n := ic.strLen(v)
	p := ic.payload(v)
	out := make([]rune, n)
	for i := 0; i < n; i++ {
		out[i] = rune(binary.LittleEndian.Uint32(p[8+4*i:]))
	}
	return out
}

// strGo renders the string as a Go (UTF-8) string.
func (ic *Interp) strGo(v value.Value) string { return string(ic.strRunes(v)) }

// strEqual compares two strings code point by code point.
func (ic *Interp) strEqual(a, b value.Value) bool {
	na, nb := ic.strLen(a), ic.strLen(b)
	if na != nb {
		return false
	}
	for i := 0; i < na; i++ {
		if ic.strIndex(a, i) != ic.strIndex(b, i) {
			return false
		}
	}
	return true
}

// strCat concatenates two strings into a fresh one.
func (ic *Interp) strCat(a, b value.Value) value.Value {
	return ic.mkString(append(ic.strRunes(a), ic.strRunes(b)...))
}

// mkChar boxes a single code point.
func (ic *Interp) mkChar(r rune) value.Value {
	v := ic.alloc(8, value.TChar)
	ic.setSlot(v, 0, value.Fixnum(int64(r)))
	return v
}

func (ic *Interp) charOf(v value.Value) rune {
	return rune(ic.slot(v, 0).Int())
}
