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

import "github.com/qyqx/arcueid/value"

// typeName names v's runtime type for error messages.
func (ic *Interp) typeName(v value.Value) string {
	switch value.TagOf(v) {
	case value.TagFixnum:
		return "fixnum"
	case value.TagSymbol:
		return "sym"
	case value.TagNil:
		return "nil"
	case value.TagTrue:
		return "t"
	case value.TagHeap:
		return ic.typeOf(v).String()
	}
	return "immediate"
}

// iso is deep (isomorphism) equality: structural over conses, vectors
// and strings, numeric over the tower, identity otherwise.
func (ic *Interp) iso(a, b value.Value) bool {
	return ic.isoRec(a, b, nil)
}

type valuePair struct{ a, b value.Value }

func (ic *Interp) isoRec(a, b value.Value, seen map[valuePair]bool) bool {
	if a == b {
		return true
	}
	if value.TagOf(a) != value.TagHeap || value.TagOf(b) != value.TagHeap {
		return false
	}
	ta, tb := ic.typeOf(a), ic.typeOf(b)
	if ta != tb {
		// numbers of different representation may still be =
		if ic.numRank(a) >= 0 && ic.numRank(b) >= 0 {
			return ic.numEqual(a, b)
		}
		return false
	}
	switch ta {
	case value.TBignum, value.TRational, value.TFlonum, value.TComplex:
		return ic.numEqual(a, b)
	case value.TString:
		return ic.strEqual(a, b)
	case value.TChar:
		return ic.charOf(a) == ic.charOf(b)
	case value.TCons:
		// guard against cyclic structure
		pr := valuePair{a, b}
		if seen[pr] {
			return true
		}
		if seen == nil {
			seen = make(map[valuePair]bool)
		}
		seen[pr] = true
		return ic.isoRec(ic.car(a), ic.car(b), seen) &&
			ic.isoRec(ic.cdr(a), ic.cdr(b), seen)
	case value.TVector:
		na, nb := ic.vecLen(a), ic.vecLen(b)
		if na != nb {
			return false
		}
		pr := valuePair{a, b}
		if seen[pr] {
			return true
		}
		if seen == nil {
			seen = make(map[valuePair]bool)
		}
		seen[pr] = true
		for i := 0; i < na; i++ {
			if !ic.isoRec(ic.vecRef(a, i), ic.vecRef(b, i), seen) {
				return false
			}
		}
		return true
	default:
		vt := ic.typefn(ta)
		if vt != nil && vt.DeepEq != nil {
			return vt.DeepEq(a, b)
		}
		return false
	}
}

// arcIs implements shallow "is" equality: identity, except that
// strings and boxed numbers of the same type compare by contents.
func (ic *Interp) arcIs(a, b value.Value) bool {
	if a == b {
		return true
	}
	if value.TagOf(a) != value.TagHeap || value.TagOf(b) != value.TagHeap {
		return false
	}
	ta := ic.typeOf(a)
	if ta != ic.typeOf(b) {
		return false
	}
	switch ta {
	case value.TString:
		return ic.strEqual(a, b)
	case value.TChar:
		return ic.charOf(a) == ic.charOf(b)
	case value.TBignum, value.TRational, value.TFlonum, value.TComplex:
		return ic.numEqual(a, b)
	}
	return false
}
