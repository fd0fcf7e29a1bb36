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
	"testing"

	"github.com/qyqx/arcueid/value"
)

func testInterp(t *testing.T) *Interp {
	t.Helper()
	ic, err := New(Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { ic.Close() })
	return ic
}

// runCode wraps a hand-assembled code object in a closure, runs it on
// a fresh thread, and returns the thread for register inspection.
func runCode(t *testing.T, ic *Interp, ctx *cctx) *Thread {
	t.Helper()
	code := ic.cctx2code(ctx)
	thr, err := ic.Spawn(ic.mkClosure(code, value.Nil))
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	if err := ic.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	return thr
}

func TestLdiHlt(t *testing.T) {
	ic := testInterp(t)
	ctx := newCctx()
	ctx.emit1(opLdi, value.Fixnum(31337))
	ctx.emit(opHlt)
	thr := runCode(t, ic, ctx)
	if thr.state != Trelease {
		t.Errorf("state = %v, want release", thr.state)
	}
	if thr.valr != value.Fixnum(31337) {
		t.Errorf("valr = %v, want 31337", thr.valr)
	}
}

func TestPushPop(t *testing.T) {
	ic := testInterp(t)
	ctx := newCctx()
	ctx.emit(opNil)
	ctx.emit(opPush)
	ctx.emit(opTrue)
	ctx.emit(opPush)
	ctx.emit1(opLdi, value.Fixnum(31337))
	ctx.emit(opPush)
	ctx.emit(opPop)
	ctx.emit(opHlt)
	thr := runCode(t, ic, ctx)
	if thr.valr != value.Fixnum(31337) {
		t.Errorf("valr = %v, want 31337", thr.valr)
	}
	if thr.top() != value.True {
		t.Errorf("stack top = %v, want t", thr.top())
	}
}

func TestPushPopPreservesValr(t *testing.T) {
	ic := testInterp(t)
	ctx := newCctx()
	ctx.emit1(opLdi, value.Fixnum(7))
	ctx.emit(opPush)
	ctx.emit(opPop)
	ctx.emit(opHlt)
	if thr := runCode(t, ic, ctx); thr.valr != value.Fixnum(7) {
		t.Errorf("valr = %v, want 7", thr.valr)
	}
}

func TestArithOps(t *testing.T) {
	cases := []struct {
		op   opcode
		a, b int64
		want int64
	}{
		{opAdd, 2, 3, 5},
		{opSub, 10, 4, 6},
		{opMul, 6, 7, 42},
		{opDiv, 12, 4, 3},
	}
	ic := testInterp(t)
	for _, tc := range cases {
		ctx := newCctx()
		ctx.emit1(opLdi, value.Fixnum(tc.a))
		ctx.emit(opPush)
		ctx.emit1(opLdi, value.Fixnum(tc.b))
		ctx.emit(tc.op)
		ctx.emit(opHlt)
		thr := runCode(t, ic, ctx)
		if thr.valr != value.Fixnum(tc.want) {
			t.Errorf("%v %d %d: valr = %v, want %d", tc.op, tc.a, tc.b, thr.valr, tc.want)
		}
	}
}

func TestConsCarCdrOps(t *testing.T) {
	ic := testInterp(t)
	ctx := newCctx()
	ctx.emit1(opLdi, value.Fixnum(1))
	ctx.emit(opPush)
	ctx.emit1(opLdi, value.Fixnum(2))
	ctx.emit(opCons) // (1 . 2)
	ctx.emit(opCar)
	ctx.emit(opHlt)
	if thr := runCode(t, ic, ctx); thr.valr != value.Fixnum(1) {
		t.Errorf("car(cons 1 2) = %v, want 1", thr.valr)
	}
}

func eval(t *testing.T, ic *Interp, src string) value.Value {
	t.Helper()
	v, err := ic.EvalString(src)
	if err != nil {
		t.Fatalf("eval %q: %v", src, err)
	}
	return v
}

func TestEvalArith(t *testing.T) {
	ic := testInterp(t)
	cases := []struct {
		src  string
		want int64
	}{
		{"(+ 2 3)", 5},
		{"(+ 1 2 3 4 5 6 7 8 9 10)", 55},
		{"(- 10 4)", 6},
		{"(* 3 4 5)", 60},
		{"(/ 12 4)", 3},
		{"(+ (* 2 3) (- 10 4))", 12},
	}
	for _, tc := range cases {
		if got := eval(t, ic, tc.src); got != value.Fixnum(tc.want) {
			t.Errorf("%s = %s, want %d", tc.src, ic.WriteRepr(got), tc.want)
		}
	}
}

func TestEvalIf(t *testing.T) {
	ic := testInterp(t)
	if got := eval(t, ic, "(if t 1 2)"); got != value.Fixnum(1) {
		t.Errorf("(if t 1 2) = %s", ic.WriteRepr(got))
	}
	if got := eval(t, ic, "(if nil 1 2)"); got != value.Fixnum(2) {
		t.Errorf("(if nil 1 2) = %s", ic.WriteRepr(got))
	}
	if got := eval(t, ic, "(if nil 1)"); got != value.Nil {
		t.Errorf("(if nil 1) = %s", ic.WriteRepr(got))
	}
	if got := eval(t, ic, "(if nil 1 nil 2 3)"); got != value.Fixnum(3) {
		t.Errorf("elif chain = %s", ic.WriteRepr(got))
	}
}

func TestEvalFn(t *testing.T) {
	ic := testInterp(t)
	if got := eval(t, ic, "((fn (x y) (+ x y)) 2 3)"); got != value.Fixnum(5) {
		t.Errorf("fn apply = %s", ic.WriteRepr(got))
	}
	// implicit do: only the last body value remains
	if got := eval(t, ic, "((fn (x) 1 2 (+ x 1)) 41)"); got != value.Fixnum(42) {
		t.Errorf("implicit do = %s", ic.WriteRepr(got))
	}
}

func TestClosureCapture(t *testing.T) {
	ic := testInterp(t)
	got := eval(t, ic, "(let ((x 10)) (let ((f (fn (y) (+ x y)))) (f 5)))")
	if got != value.Fixnum(15) {
		t.Errorf("closure capture = %s, want 15", ic.WriteRepr(got))
	}
}

func TestRestArgs(t *testing.T) {
	ic := testInterp(t)
	got := eval(t, ic, "((fn args args) 1 2 3)")
	want := ic.list(value.Fixnum(1), value.Fixnum(2), value.Fixnum(3))
	if !ic.iso(got, want) {
		t.Errorf("rest args = %s, want (1 2 3)", ic.WriteRepr(got))
	}
	got = eval(t, ic, "((fn (a . rest) rest) 1 2 3)")
	want = ic.list(value.Fixnum(2), value.Fixnum(3))
	if !ic.iso(got, want) {
		t.Errorf("dotted rest = %s, want (2 3)", ic.WriteRepr(got))
	}
}

func TestOptionalArgs(t *testing.T) {
	ic := testInterp(t)
	if got := eval(t, ic, "((fn (a (o b 10)) (+ a b)) 1)"); got != value.Fixnum(11) {
		t.Errorf("optional default = %s, want 11", ic.WriteRepr(got))
	}
	if got := eval(t, ic, "((fn (a (o b 10)) (+ a b)) 1 2)"); got != value.Fixnum(3) {
		t.Errorf("optional given = %s, want 3", ic.WriteRepr(got))
	}
}

func TestQuote(t *testing.T) {
	ic := testInterp(t)
	got := eval(t, ic, "'(1 2 3)")
	want := ic.list(value.Fixnum(1), value.Fixnum(2), value.Fixnum(3))
	if !ic.iso(got, want) {
		t.Errorf("quote = %s", ic.WriteRepr(got))
	}
	if got := eval(t, ic, "'x"); got != ic.Intern("x") {
		t.Errorf("quoted symbol = %s", ic.WriteRepr(got))
	}
}

func TestQuasiquote(t *testing.T) {
	ic := testInterp(t)
	got := eval(t, ic, "`(1 ,(+ 1 1) ,@(list 3 4) 5)")
	want := ic.list(value.Fixnum(1), value.Fixnum(2), value.Fixnum(3),
		value.Fixnum(4), value.Fixnum(5))
	if !ic.iso(got, want) {
		t.Errorf("quasiquote = %s, want (1 2 3 4 5)", ic.WriteRepr(got))
	}
}

func TestAssign(t *testing.T) {
	ic := testInterp(t)
	if got := eval(t, ic, "(assign x 42) x"); got != value.Fixnum(42) {
		t.Errorf("global assign = %s", ic.WriteRepr(got))
	}
	if got := eval(t, ic, "((fn (x) (assign x 5) x) 1)"); got != value.Fixnum(5) {
		t.Errorf("lexical assign = %s", ic.WriteRepr(got))
	}
	// the lexical assign must not leak into the global
	if got := eval(t, ic, "x"); got != value.Fixnum(42) {
		t.Errorf("global x after lexical assign = %s", ic.WriteRepr(got))
	}
}

func TestGlobalRecursion(t *testing.T) {
	ic := testInterp(t)
	got := eval(t, ic, `
		(assign fact (fn (n) (if (is n 0) 1 (* n (fact (- n 1))))))
		(fact 10)`)
	if got != value.Fixnum(3628800) {
		t.Errorf("(fact 10) = %s, want 3628800", ic.WriteRepr(got))
	}
}

func TestUnboundSymbol(t *testing.T) {
	ic := testInterp(t)
	if _, err := ic.EvalString("no-such-binding"); err == nil {
		t.Error("expected unbound symbol error")
	}
}

func TestCoerceBase2(t *testing.T) {
	ic := testInterp(t)
	if got := eval(t, ic, `(coerce "100" 'int 2)`); got != value.Fixnum(4) {
		t.Errorf("(coerce \"100\" 'int 2) = %s, want 4", ic.WriteRepr(got))
	}
}

func TestWriteStringPort(t *testing.T) {
	ic := testInterp(t)
	eval(t, ic, `(assign out (outstring)) (write "遠野" out)`)
	got := eval(t, ic, "(inside out)")
	if ic.strGo(got) != `"遠野"` {
		t.Errorf("inside = %q, want %q", ic.strGo(got), `"遠野"`)
	}
	// disp emits the raw code points
	eval(t, ic, `(assign out2 (outstring)) (disp "遠野" out2)`)
	got = eval(t, ic, "(inside out2)")
	if ic.strGo(got) != "遠野" {
		t.Errorf("disp inside = %q, want %q", ic.strGo(got), "遠野")
	}
}

func TestStringAsFunction(t *testing.T) {
	ic := testInterp(t)
	got := eval(t, ic, `("abc" 1)`)
	if !ic.is(got, value.TChar) || ic.charOf(got) != 'b' {
		t.Errorf("string index = %s, want #\\b", ic.WriteRepr(got))
	}
}

func TestTableAsFunction(t *testing.T) {
	ic := testInterp(t)
	got := eval(t, ic, `
		(assign tbl (table))
		(sref tbl 99 'k)
		(tbl 'k)`)
	if got != value.Fixnum(99) {
		t.Errorf("table lookup = %s, want 99", ic.WriteRepr(got))
	}
	if got := eval(t, ic, "(tbl 'missing 7)"); got != value.Fixnum(7) {
		t.Errorf("table default = %s, want 7", ic.WriteRepr(got))
	}
}

func TestOnErr(t *testing.T) {
	ic := testInterp(t)
	got := eval(t, ic, `(on-err (fn (e) 99) (fn () (err "boom")))`)
	if got != value.Fixnum(99) {
		t.Errorf("on-err = %s, want 99", ic.WriteRepr(got))
	}
	// the handler receives the exception value
	got = eval(t, ic, `(on-err (fn (e) (details e)) (fn () (err "boom")))`)
	if ic.strGo(got) != "boom" {
		t.Errorf("details = %q, want boom", ic.strGo(got))
	}
	// normal path: no handler involvement
	got = eval(t, ic, `(on-err (fn (e) 99) (fn () 42))`)
	if got != value.Fixnum(42) {
		t.Errorf("on-err normal = %s, want 42", ic.WriteRepr(got))
	}
}

func TestUnhandledError(t *testing.T) {
	ic := testInterp(t)
	if _, err := ic.EvalString(`(err "fatal")`); err == nil {
		t.Error("expected unhandled error to surface")
	}
}

func TestDivisionByZero(t *testing.T) {
	ic := testInterp(t)
	if _, err := ic.EvalString("(/ 1 0)"); err == nil {
		t.Error("expected division by zero error")
	}
	got := eval(t, ic, `(on-err (fn (e) 'caught) (fn () (/ 1 0)))`)
	if got != ic.Intern("caught") {
		t.Errorf("recovered = %s, want caught", ic.WriteRepr(got))
	}
}

func TestSleepTimer(t *testing.T) {
	ic := testInterp(t)
	// exercises IOWait + the deadline heap: the thread suspends and the
	// scheduler wakes it after the timeout
	if got := eval(t, ic, "(sleep 5) 'done"); got != ic.Intern("done") {
		t.Errorf("sleep = %s, want done", ic.WriteRepr(got))
	}
}

func TestYield(t *testing.T) {
	ic := testInterp(t)
	if got := eval(t, ic, "(yield) 17"); got != value.Fixnum(17) {
		t.Errorf("yield = %s, want 17", ic.WriteRepr(got))
	}
}

func TestApplyPrimitive(t *testing.T) {
	ic := testInterp(t)
	if got := eval(t, ic, "(apply + (list 1 2 3))"); got != value.Fixnum(6) {
		t.Errorf("(apply + (1 2 3)) = %s, want 6", ic.WriteRepr(got))
	}
	if got := eval(t, ic, "(apply (fn (a b) (* a b)) (list 6 7))"); got != value.Fixnum(42) {
		t.Errorf("(apply fn) = %s, want 42", ic.WriteRepr(got))
	}
}

func TestQuantumPreemption(t *testing.T) {
	ic := testInterp(t)
	ic.cfg.Quantum = 10 // tiny timeslices force many scheduler passes
	got := eval(t, ic, `
		(assign count (fn (n) (if (is n 0) 'ok (count (- n 1)))))
		(count 100)`)
	if got != ic.Intern("ok") {
		t.Errorf("preempted loop = %s, want ok", ic.WriteRepr(got))
	}
}

func TestMacroExpansion(t *testing.T) {
	ic := testInterp(t)
	got := eval(t, ic, `
		(assign double (annotate 'mac (fn (x) (list '+ x x))))
		(double 21)`)
	if got != value.Fixnum(42) {
		t.Errorf("macro = %s, want 42", ic.WriteRepr(got))
	}
}

func TestConsLoopHeapSettles(t *testing.T) {
	ic := testInterp(t)
	// allocate a pile of garbage conses, then drive full epochs; the
	// chunk count must not keep growing once collection catches up
	for i := 0; i < 10000; i++ {
		ic.cons(value.Fixnum(int64(i)), value.Nil)
		if i%100 == 0 {
			ic.gc.Slice()
		}
	}
	start := ic.gc.Epoch()
	for ic.gc.Epoch() < start+3 {
		ic.gc.Slice()
	}
	before := ic.gc.Heap.NumChunks()
	for i := 0; i < 10000; i++ {
		ic.cons(value.Fixnum(int64(i)), value.Nil)
		if i%100 == 0 {
			ic.gc.Slice()
		}
	}
	for ic.gc.Epoch() < start+8 {
		ic.gc.Slice()
	}
	after := ic.gc.Heap.NumChunks()
	if after > before+1 {
		t.Errorf("heap kept growing: %d -> %d chunks", before, after)
	}
}

func TestSymbolRetention(t *testing.T) {
	ic := testInterp(t)
	keep := ic.Intern("keep-me-around")
	ic.tableInsert(ic.genv, keep, value.Fixnum(1)) // referenced from a root
	drop := ic.Intern("drop-me-now")
	_ = drop
	start := ic.gc.Epoch()
	for ic.gc.Epoch() < start+5 {
		ic.gc.Slice()
	}
	if !ic.symInterned(keep) {
		t.Error("referenced symbol was collected")
	}
	if ic.symInterned(drop) {
		t.Error("unreferenced symbol survived collection")
	}
	// re-interning after collection yields a fresh, distinct index
	re := ic.Intern("drop-me-now")
	if re == drop {
		t.Error("symbol index was recycled")
	}
}

func TestPrettyPrintCycle(t *testing.T) {
	ic := testInterp(t)
	a := ic.cons(value.Fixnum(1), value.Nil)
	ic.scdr(a, a)
	s := ic.WriteRepr(a)
	if len(s) > 100 {
		t.Errorf("cyclic print did not terminate compactly: %q", s)
	}
}
