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

// The numeric tower's heap-boxed members. Flonum and complex pack
// their float bits directly into the cell; bignum and rational wrap a
// math/big value through the handle table, and their sweepers drop the
// handle -- the Go analog of mpz_clear/mpq_clear in the GMP-backed
// original.

func (ic *Interp) mkFlonum(f float64) value.Value {
	v := ic.alloc(8, value.TFlonum)
	ic.setSlot(v, 0, value.Value(math.Float64bits(f)))
	return v
}

func (ic *Interp) floOf(v value.Value) float64 {
	return math.Float64frombits(uint64(ic.slot(v, 0)))
}

func (ic *Interp) mkComplex(re, im float64) value.Value {
	v := ic.alloc(2*8, value.TComplex)
	ic.setSlot(v, 0, value.Value(math.Float64bits(re)))
	ic.setSlot(v, 1, value.Value(math.Float64bits(im)))
	return v
}

func (ic *Interp) cpxOf(v value.Value) complex128 {
	re := math.Float64frombits(uint64(ic.slot(v, 0)))
	im := math.Float64frombits(uint64(ic.slot(v, 1)))
	return complex(re, im)
}

// mkBignum boxes z, demoting to a fixnum when it fits. Callers may
// hand over ownership of z; it is not copied.
func (ic *Interp) mkBignum(z *big.Int) value.Value {
	if z.IsInt64() {
		if i := z.Int64(); value.FixnumFits(i) {
			return value.Fixnum(i)
		}
	}
	return ic.mkHandleCell(value.TBignum, z)
}

func (ic *Interp) bigOf(v value.Value) *big.Int {
	return ic.handleOf(v).(*big.Int)
}

// mkRational boxes r, collapsing denominator-1 rationals down the
// tower per the demotion rule.
func (ic *Interp) mkRational(r *big.Rat) value.Value {
	if r.IsInt() {
		return ic.mkBignum(new(big.Int).Set(r.Num()))
	}
	return ic.mkHandleCell(value.TRational, r)
}

func (ic *Interp) ratOf(v value.Value) *big.Rat {
	return ic.handleOf(v).(*big.Rat)
}

// numRank ranks a value in the promotion order; non-numbers return -1.
const (
	rankFixnum = iota
	rankBignum
	rankRational
	rankFlonum
	rankComplex
)

func (ic *Interp) numRank(v value.Value) int {
	switch value.TagOf(v) {
	case value.TagFixnum:
		return rankFixnum
	case value.TagHeap:
		switch ic.typeOf(v) {
		case value.TBignum:
			return rankBignum
		case value.TRational:
			return rankRational
		case value.TFlonum:
			return rankFlonum
		case value.TComplex:
			return rankComplex
		}
	}
	return -1
}

// toBig, toRat, toFlo, toCpx widen a numeric value to the requested
// representation. They assume numRank(v) is at most the target rank.

func (ic *Interp) toBig(v value.Value) *big.Int {
	if value.TagOf(v) == value.TagFixnum {
		return big.NewInt(v.Int())
	}
	return ic.bigOf(v)
}

func (ic *Interp) toRat(v value.Value) *big.Rat {
	switch ic.numRank(v) {
	case rankFixnum:
		return new(big.Rat).SetInt64(v.Int())
	case rankBignum:
		return new(big.Rat).SetInt(ic.bigOf(v))
	}
	return ic.ratOf(v)
}

func (ic *Interp) toFlo(v value.Value) float64 {
	switch ic.numRank(v) {
	case rankFixnum:
		return float64(v.Int())
	case rankBignum:
		f, _ := new(big.Float).SetInt(ic.bigOf(v)).Float64()
		return f
	case rankRational:
		f, _ := ic.ratOf(v).Float64()
		return f
	}
	return ic.floOf(v)
}

func (ic *Interp) toCpx(v value.Value) complex128 {
	if ic.numRank(v) == rankComplex {
		return ic.cpxOf(v)
	}
	return complex(ic.toFlo(v), 0)
}
