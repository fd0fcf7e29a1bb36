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
	"math/big"

	"github.com/qyqx/arcueid/value"
)

// Binary arithmetic with automatic promotion up the tower
// (fixnum < bignum < rational < flonum < complex) and demotion of
// exact-representable results back down. Conses and strings
// participate in + only: list concatenation and string building.

// add2 implements +.
func (ic *Interp) add2(a, b value.Value) value.Value {
	// nil is the identity for whatever the other operand is
	if a == value.Nil {
		return b
	}
	if b == value.Nil {
		return a
	}
	if ic.consp(a) && ic.consp(b) {
		return ic.listAppend(a, b)
	}
	if ic.addStringy(a) && ic.addStringy(b) {
		return ic.strCat(ic.asAddString(a), ic.asAddString(b))
	}
	ra, rb := ic.numRank(a), ic.numRank(b)
	if ra < 0 || rb < 0 {
		ic.signal(ErrType, "+: cannot add %s and %s", ic.typeName(a), ic.typeName(b))
	}
	switch maxRank(ra, rb) {
	case rankFixnum:
		s := a.Int() + b.Int()
		if value.FixnumFits(s) {
			return value.Fixnum(s)
		}
		return ic.mkBignum(new(big.Int).Add(big.NewInt(a.Int()), big.NewInt(b.Int())))
	case rankBignum:
		return ic.mkBignum(new(big.Int).Add(ic.toBig(a), ic.toBig(b)))
	case rankRational:
		return ic.mkRational(new(big.Rat).Add(ic.toRat(a), ic.toRat(b)))
	case rankFlonum:
		return ic.mkFlonum(ic.toFlo(a) + ic.toFlo(b))
	default:
		return ic.demoteCpx(ic.toCpx(a) + ic.toCpx(b))
	}
}

// addStringy reports whether v may participate in string-building +.
func (ic *Interp) addStringy(v value.Value) bool {
	return ic.is(v, value.TString) || ic.is(v, value.TChar)
}

func (ic *Interp) asAddString(v value.Value) value.Value {
	if ic.is(v, value.TChar) {
		return ic.mkString([]rune{ic.charOf(v)})
	}
	return v
}

// sub2 implements -.
func (ic *Interp) sub2(a, b value.Value) value.Value {
	ra, rb := ic.mustNum(a, "-"), ic.mustNum(b, "-")
	switch maxRank(ra, rb) {
	case rankFixnum:
		d := a.Int() - b.Int()
		if value.FixnumFits(d) {
			return value.Fixnum(d)
		}
		return ic.mkBignum(new(big.Int).Sub(big.NewInt(a.Int()), big.NewInt(b.Int())))
	case rankBignum:
		return ic.mkBignum(new(big.Int).Sub(ic.toBig(a), ic.toBig(b)))
	case rankRational:
		return ic.mkRational(new(big.Rat).Sub(ic.toRat(a), ic.toRat(b)))
	case rankFlonum:
		return ic.mkFlonum(ic.toFlo(a) - ic.toFlo(b))
	default:
		return ic.demoteCpx(ic.toCpx(a) - ic.toCpx(b))
	}
}

// mul2 implements *.
func (ic *Interp) mul2(a, b value.Value) value.Value {
	ra, rb := ic.mustNum(a, "*"), ic.mustNum(b, "*")
	switch maxRank(ra, rb) {
	case rankFixnum:
		ai, bi := a.Int(), b.Int()
		p := ai * bi
		if ai == 0 || (p/ai == bi && value.FixnumFits(p)) {
			return value.Fixnum(p)
		}
		return ic.mkBignum(new(big.Int).Mul(big.NewInt(ai), big.NewInt(bi)))
	case rankBignum:
		return ic.mkBignum(new(big.Int).Mul(ic.toBig(a), ic.toBig(b)))
	case rankRational:
		return ic.mkRational(new(big.Rat).Mul(ic.toRat(a), ic.toRat(b)))
	case rankFlonum:
		return ic.mkFlonum(ic.toFlo(a) * ic.toFlo(b))
	default:
		return ic.demoteCpx(ic.toCpx(a) * ic.toCpx(b))
	}
}

// div2 implements /. Division of exact integers that does not divide
// evenly yields a rational.
func (ic *Interp) div2(a, b value.Value) value.Value {
	ra, rb := ic.mustNum(a, "/"), ic.mustNum(b, "/")
	switch maxRank(ra, rb) {
	case rankFixnum, rankBignum:
		bb := ic.toBig(b)
		if bb.Sign() == 0 {
			ic.signal(ErrArith, "/: division by zero")
		}
		ab := ic.toBig(a)
		q, r := new(big.Int).QuoRem(ab, bb, new(big.Int))
		if r.Sign() == 0 {
			return ic.mkBignum(q)
		}
		return ic.mkRational(new(big.Rat).SetFrac(ab, bb))
	case rankRational:
		rb := ic.toRat(b)
		if rb.Sign() == 0 {
			ic.signal(ErrArith, "/: division by zero")
		}
		return ic.mkRational(new(big.Rat).Quo(ic.toRat(a), rb))
	case rankFlonum:
		fb := ic.toFlo(b)
		if fb == 0 {
			ic.signal(ErrArith, "/: division by zero")
		}
		return ic.mkFlonum(ic.toFlo(a) / fb)
	default:
		cb := ic.toCpx(b)
		if cb == 0 {
			ic.signal(ErrArith, "/: division by zero")
		}
		return ic.demoteCpx(ic.toCpx(a) / cb)
	}
}

// demoteCpx collapses a complex with zero imaginary part to a flonum.
func (ic *Interp) demoteCpx(c complex128) value.Value {
	if imag(c) == 0 {
		return ic.mkFlonum(real(c))
	}
	return ic.mkComplex(real(c), imag(c))
}

func (ic *Interp) mustNum(v value.Value, op string) int {
	r := ic.numRank(v)
	if r < 0 {
		ic.signal(ErrType, "%s: expected number, got %s", op, ic.typeName(v))
	}
	return r
}

func maxRank(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// numEqual compares two numbers for = semantics, promoting as needed.
func (ic *Interp) numEqual(a, b value.Value) bool {
	ra, rb := ic.numRank(a), ic.numRank(b)
	if ra < 0 || rb < 0 {
		return false
	}
	switch maxRank(ra, rb) {
	case rankFixnum:
		return a.Int() == b.Int()
	case rankBignum:
		return ic.toBig(a).Cmp(ic.toBig(b)) == 0
	case rankRational:
		return ic.toRat(a).Cmp(ic.toRat(b)) == 0
	case rankFlonum:
		return ic.toFlo(a) == ic.toFlo(b)
	default:
		return ic.toCpx(a) == ic.toCpx(b)
	}
}
