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
	"testing"

	"github.com/qyqx/arcueid/value"
)

func TestFixnumAddInRange(t *testing.T) {
	ic := testInterp(t)
	cases := []struct{ a, b, want int64 }{
		{2, 3, 5},
		{-7, 7, 0},
		{1 << 40, 1 << 40, 1 << 41},
	}
	for _, tc := range cases {
		got := ic.add2(value.Fixnum(tc.a), value.Fixnum(tc.b))
		if got != value.Fixnum(tc.want) {
			t.Errorf("add(%d, %d) = %s", tc.a, tc.b, ic.WriteRepr(got))
		}
	}
}

func TestFixnumOverflowPromotes(t *testing.T) {
	ic := testInterp(t)
	got := ic.add2(value.Fixnum(value.FixnumMax), value.Fixnum(1))
	if !ic.is(got, value.TBignum) {
		t.Fatalf("overflow result is %s, want bignum", ic.typeName(got))
	}
	want := new(big.Int).Add(big.NewInt(value.FixnumMax), big.NewInt(1))
	if ic.bigOf(got).Cmp(want) != 0 {
		t.Errorf("overflow add = %s, want %s", ic.bigOf(got), want)
	}

	got = ic.mul2(value.Fixnum(value.FixnumMax), value.Fixnum(value.FixnumMax))
	if !ic.is(got, value.TBignum) {
		t.Errorf("overflow mul is %s, want bignum", ic.typeName(got))
	}
}

func TestBignumDemotion(t *testing.T) {
	ic := testInterp(t)
	big1 := ic.add2(value.Fixnum(value.FixnumMax), value.Fixnum(1))
	back := ic.sub2(big1, value.Fixnum(1))
	if back != value.Fixnum(value.FixnumMax) {
		t.Errorf("bignum-1 did not demote: %s", ic.WriteRepr(back))
	}
}

func TestRationalArith(t *testing.T) {
	ic := testInterp(t)
	third := ic.div2(value.Fixnum(1), value.Fixnum(3))
	if !ic.is(third, value.TRational) {
		t.Fatalf("1/3 is %s, want rational", ic.typeName(third))
	}
	twoThirds := ic.div2(value.Fixnum(2), value.Fixnum(3))
	one := ic.add2(third, twoThirds)
	if one != value.Fixnum(1) {
		t.Errorf("1/3 + 2/3 = %s, want fixnum 1", ic.WriteRepr(one))
	}
	// (p/q) + (p'/q') == (pq' + p'q) / qq'
	a := ic.div2(value.Fixnum(3), value.Fixnum(4))
	b := ic.div2(value.Fixnum(5), value.Fixnum(6))
	sum := ic.add2(a, b)
	want := big.NewRat(3*6+5*4, 4*6)
	if !ic.is(sum, value.TRational) || ic.ratOf(sum).Cmp(want) != 0 {
		t.Errorf("3/4 + 5/6 = %s, want %s", ic.WriteRepr(sum), want)
	}
}

func TestRationalDemotesThroughMul(t *testing.T) {
	ic := testInterp(t)
	half := ic.div2(value.Fixnum(1), value.Fixnum(2))
	got := ic.mul2(half, value.Fixnum(2))
	if got != value.Fixnum(1) {
		t.Errorf("1/2 * 2 = %s, want fixnum 1", ic.WriteRepr(got))
	}
}

func TestDivideSelfIsOne(t *testing.T) {
	ic := testInterp(t)
	vals := []value.Value{
		value.Fixnum(7),
		ic.div2(value.Fixnum(2), value.Fixnum(3)),
		ic.mkFlonum(2.5),
		ic.add2(value.Fixnum(value.FixnumMax), value.Fixnum(2)),
	}
	for _, v := range vals {
		got := ic.div2(v, v)
		if !ic.numEqual(got, value.Fixnum(1)) {
			t.Errorf("%s / itself = %s, want 1", ic.WriteRepr(v), ic.WriteRepr(got))
		}
	}
}

func TestFlonumContagion(t *testing.T) {
	ic := testInterp(t)
	got := ic.add2(value.Fixnum(1), ic.mkFlonum(0.5))
	if !ic.is(got, value.TFlonum) || ic.floOf(got) != 1.5 {
		t.Errorf("1 + 0.5 = %s, want 1.5", ic.WriteRepr(got))
	}
}

func TestComplexDemotion(t *testing.T) {
	ic := testInterp(t)
	a := ic.mkComplex(1, 2)
	b := ic.mkComplex(1, -2)
	got := ic.add2(a, b)
	if !ic.is(got, value.TFlonum) || ic.floOf(got) != 2 {
		t.Errorf("(1+2i) + (1-2i) = %s, want flonum 2", ic.WriteRepr(got))
	}
}

func TestAddListsAndStrings(t *testing.T) {
	ic := testInterp(t)
	l1 := ic.list(value.Fixnum(1), value.Fixnum(2))
	l2 := ic.list(value.Fixnum(3))
	got := ic.add2(l1, l2)
	if !ic.iso(got, ic.list(value.Fixnum(1), value.Fixnum(2), value.Fixnum(3))) {
		t.Errorf("list + list = %s", ic.WriteRepr(got))
	}
	// nil is the identity
	if ic.add2(value.Nil, l2) != l2 {
		t.Error("nil + list did not preserve the list")
	}
	s := ic.add2(ic.mkStringStr("遠"), ic.mkStringStr("野"))
	if ic.strGo(s) != "遠野" {
		t.Errorf("string + string = %q", ic.strGo(s))
	}
	cs := ic.add2(ic.mkChar('a'), ic.mkStringStr("bc"))
	if ic.strGo(cs) != "abc" {
		t.Errorf("char + string = %q", ic.strGo(cs))
	}
}

func TestString2Num(t *testing.T) {
	ic := testInterp(t)
	cases := []struct {
		src  string
		base int
		chk  func(v value.Value) bool
	}{
		{"42", 10, func(v value.Value) bool { return v == value.Fixnum(42) }},
		{"-17", 10, func(v value.Value) bool { return v == value.Fixnum(-17) }},
		{"ff", 16, func(v value.Value) bool { return v == value.Fixnum(255) }},
		{"100", 2, func(v value.Value) bool { return v == value.Fixnum(4) }},
		{"zz", 36, func(v value.Value) bool { return v == value.Fixnum(35*36+35) }},
		{"1/2", 10, func(v value.Value) bool {
			return ic.is(v, value.TRational) && ic.ratOf(v).Cmp(big.NewRat(1, 2)) == 0
		}},
		{"3.25", 10, func(v value.Value) bool {
			return ic.is(v, value.TFlonum) && ic.floOf(v) == 3.25
		}},
		{"1e3", 10, func(v value.Value) bool {
			return ic.is(v, value.TFlonum) && ic.floOf(v) == 1000
		}},
		{"5&2", 10, func(v value.Value) bool {
			return ic.is(v, value.TFlonum) && ic.floOf(v) == 500
		}},
		{"1+2i", 10, func(v value.Value) bool {
			return ic.is(v, value.TComplex) && ic.cpxOf(v) == complex(1, 2)
		}},
		{"3i", 10, func(v value.Value) bool {
			return ic.is(v, value.TComplex) && ic.cpxOf(v) == complex(0, 3)
		}},
	}
	for _, tc := range cases {
		v, ok := ic.string2num(tc.src, tc.base)
		if !ok {
			t.Errorf("string2num(%q, %d) failed to parse", tc.src, tc.base)
			continue
		}
		if !tc.chk(v) {
			t.Errorf("string2num(%q, %d) = %s", tc.src, tc.base, ic.WriteRepr(v))
		}
	}
	if _, ok := ic.string2num("not-a-number", 10); ok {
		t.Error("junk parsed as a number")
	}
}

func TestCoerceRoundTrip(t *testing.T) {
	ic := testInterp(t)
	numSym := ic.Intern("num")
	strSym := ic.Intern("string")
	vals := []value.Value{
		value.Fixnum(42),
		value.Fixnum(-1),
		ic.div2(value.Fixnum(7), value.Fixnum(3)),
		ic.mkFlonum(3.5),
	}
	for _, v := range vals {
		s := ic.coerce(v, strSym, 10)
		back := ic.coerce(s, numSym, 10)
		if !ic.numEqual(v, back) {
			t.Errorf("roundtrip %s -> %q -> %s", ic.WriteRepr(v), ic.strGo(s), ic.WriteRepr(back))
		}
	}
}

func TestCoerceCharFixnum(t *testing.T) {
	ic := testInterp(t)
	c := ic.coerce(value.Fixnum(0x9060), ic.Intern("char"), 10)
	if !ic.is(c, value.TChar) || ic.charOf(c) != '遠' {
		t.Errorf("fixnum->char = %s", ic.WriteRepr(c))
	}
	n := ic.coerce(c, ic.Intern("int"), 10)
	if n != value.Fixnum(0x9060) {
		t.Errorf("char->int = %s", ic.WriteRepr(n))
	}
}

func TestCoerceConsStringSym(t *testing.T) {
	ic := testInterp(t)
	s := ic.mkStringStr("abc")
	l := ic.coerce(s, ic.Intern("cons"), 10)
	if ic.listLen(l) != 3 || ic.charOf(ic.car(l)) != 'a' {
		t.Errorf("string->cons = %s", ic.WriteRepr(l))
	}
	back := ic.coerce(l, ic.Intern("string"), 10)
	if ic.strGo(back) != "abc" {
		t.Errorf("cons->string = %q", ic.strGo(back))
	}
	sym := ic.coerce(s, ic.Intern("sym"), 10)
	if sym != ic.Intern("abc") {
		t.Errorf("string->sym = %s", ic.WriteRepr(sym))
	}
	vec := ic.coerce(l, ic.Intern("vector"), 10)
	if !ic.is(vec, value.TVector) || ic.vecLen(vec) != 3 {
		t.Errorf("cons->vector = %s", ic.WriteRepr(vec))
	}
}

func TestComplexComponents(t *testing.T) {
	ic := testInterp(t)
	c := ic.mkComplex(1.5, -2.5)
	re := ic.coerce(c, ic.Intern("re"), 10)
	im := ic.coerce(c, ic.Intern("im"), 10)
	if ic.floOf(re) != 1.5 || ic.floOf(im) != -2.5 {
		t.Errorf("components = %s, %s", ic.WriteRepr(re), ic.WriteRepr(im))
	}
}
