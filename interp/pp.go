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
	"strings"

	"github.com/qyqx/arcueid/value"
)

// WriteRepr renders v the way write does: strings quoted and escaped,
// chars in #\ notation. Cyclic structure prints "(...)" at the second
// visit instead of recursing forever.
func (ic *Interp) WriteRepr(v value.Value) string {
	return ic.repr(v, true, make(map[value.Value]bool))
}

// DispRepr renders v the way disp does: strings and chars raw.
func (ic *Interp) DispRepr(v value.Value) string {
	return ic.repr(v, false, make(map[value.Value]bool))
}

func (ic *Interp) repr(v value.Value, write bool, visiting map[value.Value]bool) string {
	switch value.TagOf(v) {
	case value.TagNil:
		return "nil"
	case value.TagTrue:
		return "t"
	case value.TagUndef:
		return "#<undef>"
	case value.TagUnbound:
		return "#<unbound>"
	case value.TagFixnum:
		return ic.num2string(v, 10)
	case value.TagSymbol:
		if n := ic.SymName(v); n != "" {
			return n
		}
		return "#<sym>"
	case value.TagHeap:
		return ic.reprHeap(v, write, visiting)
	}
	return "#<immediate>"
}

func (ic *Interp) reprHeap(v value.Value, write bool, visiting map[value.Value]bool) string {
	switch ic.typeOf(v) {
	case value.TCons:
		if visiting[v] {
			return "(...)"
		}
		visiting[v] = true
		defer delete(visiting, v)
		var sb strings.Builder
		sb.WriteByte('(')
		first := true
		cur := v
		for {
			if !first {
				sb.WriteByte(' ')
			}
			first = false
			sb.WriteString(ic.repr(ic.car(cur), write, visiting))
			next := ic.cdr(cur)
			if next == value.Nil {
				break
			}
			if !ic.consp(next) {
				sb.WriteString(" . ")
				sb.WriteString(ic.repr(next, write, visiting))
				break
			}
			if visiting[next] {
				sb.WriteString(" (...)")
				break
			}
			visiting[next] = true
			defer delete(visiting, next)
			cur = next
		}
		sb.WriteByte(')')
		return sb.String()
	case value.TString:
		if write {
			return quoteString(ic.strGo(v))
		}
		return ic.strGo(v)
	case value.TChar:
		if write {
			return "#\\" + string(ic.charOf(v))
		}
		return string(ic.charOf(v))
	case value.TBignum, value.TRational, value.TFlonum, value.TComplex:
		return ic.num2string(v, 10)
	case value.TVector:
		if visiting[v] {
			return "(...)"
		}
		visiting[v] = true
		defer delete(visiting, v)
		var sb strings.Builder
		sb.WriteString("#(")
		for i := 0; i < ic.vecLen(v); i++ {
			if i > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(ic.repr(ic.vecRef(v, i), write, visiting))
		}
		sb.WriteByte(')')
		return sb.String()
	case value.TTable, value.TWeakTable:
		if visiting[v] {
			return "(...)"
		}
		visiting[v] = true
		defer delete(visiting, v)
		var sb strings.Builder
		sb.WriteString("#hash(")
		first := true
		ic.tableEach(v, func(k, val value.Value) {
			if !first {
				sb.WriteByte(' ')
			}
			first = false
			sb.WriteByte('(')
			sb.WriteString(ic.repr(k, write, visiting))
			sb.WriteString(" . ")
			sb.WriteString(ic.repr(val, write, visiting))
			sb.WriteByte(')')
		})
		sb.WriteByte(')')
		return sb.String()
	case value.TTagged:
		return "#<tagged " + ic.repr(ic.slot(v, 0), write, visiting) + ">"
	case value.TException:
		return "#<exception: " + ic.excMessage(v) + ">"
	case value.TClosure:
		return "#<procedure>"
	case value.TForeignCode:
		if ff, ok := ic.handleOf(v).(*Foreign); ok {
			return "#<procedure: " + ff.Name + ">"
		}
		return "#<procedure>"
	case value.TCode:
		return "#<code>"
	case value.TContinuation:
		return "#<continuation>"
	case value.TEnvFrame:
		return "#<env>"
	case value.TThread:
		return "#<thread>"
	case value.TInputPort, value.TOutputPort:
		return "#<port>"
	default:
		vt := ic.typefn(ic.typeOf(v))
		if vt != nil && vt.Print != nil {
			return vt.Print(v, visiting)
		}
		return "#<" + ic.typeOf(v).String() + ">"
	}
}

func quoteString(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\t':
			sb.WriteString(`\t`)
		case '\r':
			sb.WriteString(`\r`)
		default:
			sb.WriteRune(r)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}
