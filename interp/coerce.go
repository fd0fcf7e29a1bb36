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
	"math"
	"math/big"

	"github.com/qyqx/arcueid/value"
)

// coerce implements the conversion matrix: (coerce obj target [base]).
// target is a symbol naming the destination type family.
func (ic *Interp) coerce(obj, target value.Value, base int) value.Value {
	if base == 0 {
		base = 10
	}
	tname := ic.SymName(target)
	switch tname {
	case "int":
		return ic.coerceInt(obj, base)
	case "num":
		return ic.coerceNum(obj, base)
	case "flonum":
		return ic.mkFlonum(ic.coerceFlo(obj))
	case "rational":
		return ic.mkRational(ic.toRat(ic.coerceNum(obj, base)))
	case "char":
		return ic.coerceChar(obj)
	case "string":
		return ic.coerceString(obj, base)
	case "sym":
		return ic.coerceSym(obj)
	case "cons":
		return ic.coerceCons(obj)
	case "vector":
		return ic.coerceVector(obj)
	case "re":
		return ic.mkFlonum(real(ic.toCpx(obj)))
	case "im":
		return ic.mkFlonum(imag(ic.toCpx(obj)))
	}
	ic.signal(ErrArith, "coerce: unknown target type %q", tname)
	return value.Nil
}

func (ic *Interp) coerceInt(obj value.Value, base int) value.Value {
	switch {
	case value.TagOf(obj) == value.TagFixnum, ic.is(obj, value.TBignum):
		return obj
	case ic.is(obj, value.TRational):
		r := ic.ratOf(obj)
		q := new(big.Int).Quo(r.Num(), r.Denom())
		return ic.mkBignum(q)
	case ic.is(obj, value.TFlonum):
		f := ic.floOf(obj)
		return value.Fixnum(int64(math.Trunc(f)))
	case ic.is(obj, value.TChar):
		return value.Fixnum(int64(ic.charOf(obj)))
	case ic.is(obj, value.TString):
		n, ok := ic.string2num(ic.strGo(obj), base)
		if !ok {
			ic.signal(ErrArith, "coerce: %q does not parse as a number", ic.strGo(obj))
		}
		return ic.coerceInt(n, base)
	}
	ic.signal(ErrArith, "coerce: cannot convert %s to int", ic.typeName(obj))
	return value.Nil
}

func (ic *Interp) coerceNum(obj value.Value, base int) value.Value {
	if ic.numRank(obj) >= 0 {
		return obj
	}
	switch {
	case ic.is(obj, value.TString):
		n, ok := ic.string2num(ic.strGo(obj), base)
		if !ok {
			ic.signal(ErrArith, "coerce: %q does not parse as a number", ic.strGo(obj))
		}
		return n
	case ic.is(obj, value.TChar):
		return value.Fixnum(int64(ic.charOf(obj)))
	}
	ic.signal(ErrArith, "coerce: cannot convert %s to num", ic.typeName(obj))
	return value.Nil
}

func (ic *Interp) coerceFlo(obj value.Value) float64 {
	if ic.numRank(obj) >= 0 {
		return ic.toFlo(obj)
	}
	if ic.is(obj, value.TString) {
		n, ok := ic.string2num(ic.strGo(obj), 10)
		if !ok {
			ic.signal(ErrArith, "coerce: %q does not parse as a number", ic.strGo(obj))
		}
		return ic.toFlo(n)
	}
	ic.signal(ErrArith, "coerce: cannot convert %s to flonum", ic.typeName(obj))
	return 0
}

func (ic *Interp) coerceChar(obj value.Value) value.Value {
	switch {
	case ic.is(obj, value.TChar):
		return obj
	case value.TagOf(obj) == value.TagFixnum:
		return ic.mkChar(rune(obj.Int()))
	case ic.is(obj, value.TString) && ic.strLen(obj) == 1:
		return ic.mkChar(ic.strIndex(obj, 0))
	}
	ic.signal(ErrArith, "coerce: cannot convert %s to char", ic.typeName(obj))
	return value.Nil
}

func (ic *Interp) coerceString(obj value.Value, base int) value.Value {
	switch {
	case ic.is(obj, value.TString):
		return obj
	case ic.numRank(obj) >= 0:
		return ic.mkStringStr(ic.num2string(obj, base))
	case value.TagOf(obj) == value.TagSymbol:
		return ic.mkStringStr(ic.SymName(obj))
	case ic.is(obj, value.TChar):
		return ic.mkString([]rune{ic.charOf(obj)})
	case obj == value.Nil:
		return ic.mkString(nil)
	case ic.consp(obj):
		// a list of chars or strings flattens into one string
		var rs []rune
		for v := obj; ic.consp(v); v = ic.cdr(v) {
			el := ic.car(v)
			switch {
			case ic.is(el, value.TChar):
				rs = append(rs, ic.charOf(el))
			case ic.is(el, value.TString):
				rs = append(rs, ic.strRunes(el)...)
			default:
				ic.signal(ErrArith, "coerce: list element %s not char or string", ic.typeName(el))
			}
		}
		return ic.mkString(rs)
	}
	ic.signal(ErrArith, "coerce: cannot convert %s to string", ic.typeName(obj))
	return value.Nil
}

func (ic *Interp) coerceSym(obj value.Value) value.Value {
	switch {
	case value.TagOf(obj) == value.TagSymbol:
		return obj
	case ic.is(obj, value.TString):
		return ic.Intern(ic.strGo(obj))
	case ic.is(obj, value.TChar):
		return ic.Intern(string(ic.charOf(obj)))
	}
	ic.signal(ErrArith, "coerce: cannot convert %s to sym", ic.typeName(obj))
	return value.Nil
}

func (ic *Interp) coerceCons(obj value.Value) value.Value {
	switch {
	case ic.consp(obj), obj == value.Nil:
		return obj
	case ic.is(obj, value.TString):
		out := value.Nil
		rs := ic.strRunes(obj)
		for i := len(rs) - 1; i >= 0; i-- {
			out = ic.cons(ic.mkChar(rs[i]), out)
		}
		return out
	case ic.is(obj, value.TVector):
		out := value.Nil
		for i := ic.vecLen(obj) - 1; i >= 0; i-- {
			out = ic.cons(ic.vecRef(obj, i), out)
		}
		return out
	}
	ic.signal(ErrArith, "coerce: cannot convert %s to cons", ic.typeName(obj))
	return value.Nil
}

func (ic *Interp) coerceVector(obj value.Value) value.Value {
	switch {
	case ic.is(obj, value.TVector):
		return obj
	case obj == value.Nil:
		return ic.mkVector(0, value.Nil)
	case ic.consp(obj):
		return ic.vecFromSlice(ic.listSlice(obj))
	case ic.is(obj, value.TString):
		rs := ic.strRunes(obj)
		vs := make([]value.Value, len(rs))
		for i, r := range rs {
			vs[i] = ic.mkChar(r)
		}
		return ic.vecFromSlice(vs)
	}
	ic.signal(ErrArith, "coerce: cannot convert %s to vector", ic.typeName(obj))
	return value.Nil
}
