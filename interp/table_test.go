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
	"testing"

	"github.com/qyqx/arcueid/value"
)

func TestTableInsertLookup(t *testing.T) {
	ic := testInterp(t)
	tbl := ic.mkTable(3) // deliberately small to force growth
	ic.tableInsert(ic.genv, ic.Intern("test-tbl"), tbl)

	for i := 0; i < 100; i++ {
		ic.tableInsert(tbl, value.Fixnum(int64(i)), value.Fixnum(int64(i*i)))
	}
	if n := ic.tableCount(tbl); n != 100 {
		t.Fatalf("count = %d, want 100", n)
	}
	for i := 0; i < 100; i++ {
		got := ic.tableLookup(tbl, value.Fixnum(int64(i)))
		if got != value.Fixnum(int64(i*i)) {
			t.Errorf("lookup %d = %s, want %d", i, ic.WriteRepr(got), i*i)
		}
	}
	if got := ic.tableLookup(tbl, value.Fixnum(1000)); got != value.Unbound {
		t.Errorf("missing key = %s, want unbound", ic.WriteRepr(got))
	}
}

func TestTableStringKeysCompareByContents(t *testing.T) {
	ic := testInterp(t)
	tbl := ic.mkTable(4)
	k1 := ic.mkStringStr("the-key")
	k2 := ic.mkStringStr("the-key") // distinct heap object, equal contents
	ic.tableInsert(tbl, k1, value.Fixnum(5))
	if got := ic.tableLookup(tbl, k2); got != value.Fixnum(5) {
		t.Errorf("content-equal key lookup = %s, want 5", ic.WriteRepr(got))
	}
	ic.tableInsert(tbl, k2, value.Fixnum(9))
	if got := ic.tableLookup(tbl, k1); got != value.Fixnum(9) {
		t.Errorf("reinsert through equal key = %s, want 9", ic.WriteRepr(got))
	}
	if n := ic.tableCount(tbl); n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
}

func TestTableDelete(t *testing.T) {
	ic := testInterp(t)
	tbl := ic.mkTable(4)
	k := ic.Intern("doomed")
	ic.tableInsert(tbl, k, value.True)
	ic.tableDelete(tbl, k)
	if got := ic.tableLookup(tbl, k); got != value.Unbound {
		t.Errorf("deleted key = %s, want unbound", ic.WriteRepr(got))
	}
	if n := ic.tableCount(tbl); n != 0 {
		t.Errorf("count after delete = %d, want 0", n)
	}
}

func TestTableCompositeKeys(t *testing.T) {
	ic := testInterp(t)
	tbl := ic.mkTable(4)
	k1 := ic.list(value.Fixnum(1), value.Fixnum(2))
	k2 := ic.list(value.Fixnum(1), value.Fixnum(2))
	ic.tableInsert(tbl, k1, ic.Intern("found"))
	if got := ic.tableLookup(tbl, k2); got != ic.Intern("found") {
		t.Errorf("iso list key lookup = %s", ic.WriteRepr(got))
	}
}

func TestBucketSweepClearsParentSlot(t *testing.T) {
	ic := testInterp(t)
	// root the table, then delete a binding: the dead bucket is swept
	// and must not resurrect or dangle
	tbl := ic.mkTable(4)
	ic.tableInsert(ic.genv, ic.Intern("sweep-tbl"), tbl)
	k := ic.Intern("sweep-key")
	ic.tableInsert(tbl, k, value.Fixnum(1))
	ic.tableDelete(tbl, k)
	start := ic.gc.Epoch()
	for ic.gc.Epoch() < start+4 {
		ic.gc.Slice()
	}
	if got := ic.tableLookup(tbl, k); got != value.Unbound {
		t.Errorf("lookup after sweep = %s, want unbound", ic.WriteRepr(got))
	}
	// the table itself is still fully usable
	ic.tableInsert(tbl, value.Fixnum(5), value.Fixnum(25))
	if got := ic.tableLookup(tbl, value.Fixnum(5)); got != value.Fixnum(25) {
		t.Errorf("insert after sweep = %s, want 25", ic.WriteRepr(got))
	}
}

func TestSymbolInternBijection(t *testing.T) {
	ic := testInterp(t)
	names := []string{"alpha", "beta", "gamma", "delta"}
	for _, n := range names {
		s := ic.Intern(n)
		if ic.SymName(s) != n {
			t.Errorf("reverse[%s] = %q", n, ic.SymName(s))
		}
		if ic.Intern(ic.SymName(s)) != s {
			t.Errorf("forward[reverse[%s]] != %s", n, n)
		}
	}
	// interning is idempotent
	if ic.Intern("alpha") != ic.Intern("alpha") {
		t.Error("intern not idempotent")
	}
	// symbol indices grow monotonically
	a := ic.Intern("mono-1")
	b := ic.Intern("mono-2")
	if b.AsSymbol() <= a.AsSymbol() {
		t.Errorf("lastsym not monotonic: %d then %d", a.AsSymbol(), b.AsSymbol())
	}
}

func TestManySymbols(t *testing.T) {
	ic := testInterp(t)
	syms := make([]value.Value, 500)
	for i := range syms {
		syms[i] = ic.Intern(fmt.Sprintf("bulk-sym-%d", i))
	}
	for i, s := range syms {
		if want := fmt.Sprintf("bulk-sym-%d", i); ic.SymName(s) != want {
			t.Fatalf("sym %d name = %q, want %q", i, ic.SymName(s), want)
		}
	}
}

func TestWeakTableDropsValues(t *testing.T) {
	ic := testInterp(t)
	wt := ic.mkWeakTable(4)
	ic.tableInsert(ic.genv, ic.Intern("weak-tbl"), wt)
	key := ic.Intern("weak-key")
	ic.tableInsert(wt, key, ic.cons(value.Fixnum(1), value.Nil))
	start := ic.gc.Epoch()
	for ic.gc.Epoch() < start+4 {
		ic.gc.Slice()
	}
	// the value was reachable only through the weak table, so lookup
	// must no longer produce it
	if got := ic.tableLookup(wt, key); got != value.Unbound {
		t.Errorf("weak value survived: %s", ic.WriteRepr(got))
	}
}

func TestVectorOps(t *testing.T) {
	ic := testInterp(t)
	v := ic.mkVector(5, value.Nil)
	if ic.vecLen(v) != 5 {
		t.Fatalf("len = %d", ic.vecLen(v))
	}
	ic.vecSet(v, 2, value.Fixnum(9))
	if ic.vecRef(v, 2) != value.Fixnum(9) {
		t.Errorf("vecRef = %s", ic.WriteRepr(ic.vecRef(v, 2)))
	}
}

func TestStringOps(t *testing.T) {
	ic := testInterp(t)
	s := ic.mkStringStr("遠野物語")
	if ic.strLen(s) != 4 {
		t.Fatalf("len = %d, want 4 code points", ic.strLen(s))
	}
	if ic.strIndex(s, 1) != '野' {
		t.Errorf("index 1 = %c", ic.strIndex(s, 1))
	}
	ic.strSetIndex(s, 3, '集')
	if ic.strGo(s) != "遠野物集" {
		t.Errorf("after set = %q", ic.strGo(s))
	}
	if !ic.strEqual(ic.mkStringStr("abc"), ic.mkStringStr("abc")) {
		t.Error("equal strings compare unequal")
	}
}
