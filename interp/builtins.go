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

// defineBuiltins populates the special-form table and binds the
// primitive functions into the global environment. Every primitive
// goes through the foreign-function coroutine protocol, suspending or
// not as it needs.
func (ic *Interp) defineBuiltins() {
	for _, s := range []value.Value{
		ic.sym.if_, ic.sym.fn, ic.sym.quote, ic.sym.qquote, ic.sym.assign,
	} {
		ic.tableInsert(ic.splforms, s, value.True)
	}
	// the other pinned symbols live in the builtin table so the cached
	// copies in ic.sym can never go stale under collection
	for _, s := range []value.Value{
		ic.sym.t, ic.sym.nil_, ic.sym.unquote, ic.sym.unquoteSp,
		ic.sym.o, ic.sym.mac, ic.sym.let, ic.sym.complex_,
	} {
		ic.tableInsert(ic.builtin, s, value.True)
	}

	ic.defPrim("+", 0, 0, func(ic *Interp, t *Thread, a *AFF) int {
		acc := value.Nil
		for i := 0; i < a.Argc(); i++ {
			acc = ic.add2(acc, a.Arg(i))
		}
		return a.Return(acc)
	})
	ic.defPrim("-", 1, 0, func(ic *Interp, t *Thread, a *AFF) int {
		if a.Argc() == 1 {
			return a.Return(ic.sub2(value.Fixnum(0), a.Arg(0)))
		}
		acc := a.Arg(0)
		for i := 1; i < a.Argc(); i++ {
			acc = ic.sub2(acc, a.Arg(i))
		}
		return a.Return(acc)
	})
	ic.defPrim("*", 0, 0, func(ic *Interp, t *Thread, a *AFF) int {
		acc := value.Value(value.Fixnum(1))
		for i := 0; i < a.Argc(); i++ {
			acc = ic.mul2(acc, a.Arg(i))
		}
		return a.Return(acc)
	})
	ic.defPrim("/", 1, 0, func(ic *Interp, t *Thread, a *AFF) int {
		if a.Argc() == 1 {
			return a.Return(ic.div2(value.Fixnum(1), a.Arg(0)))
		}
		acc := a.Arg(0)
		for i := 1; i < a.Argc(); i++ {
			acc = ic.div2(acc, a.Arg(i))
		}
		return a.Return(acc)
	})

	ic.defPrim("cons", 2, 0, func(ic *Interp, t *Thread, a *AFF) int {
		return a.Return(ic.cons(a.Arg(0), a.Arg(1)))
	})
	ic.defPrim("car", 1, 0, func(ic *Interp, t *Thread, a *AFF) int {
		return a.Return(ic.car(a.Arg(0)))
	})
	ic.defPrim("cdr", 1, 0, func(ic *Interp, t *Thread, a *AFF) int {
		return a.Return(ic.cdr(a.Arg(0)))
	})
	ic.defPrim("scar", 2, 0, func(ic *Interp, t *Thread, a *AFF) int {
		if !ic.consp(a.Arg(0)) {
			ic.signal(ErrType, "scar: expected cons")
		}
		ic.scar(a.Arg(0), a.Arg(1))
		return a.Return(a.Arg(1))
	})
	ic.defPrim("scdr", 2, 0, func(ic *Interp, t *Thread, a *AFF) int {
		if !ic.consp(a.Arg(0)) {
			ic.signal(ErrType, "scdr: expected cons")
		}
		ic.scdr(a.Arg(0), a.Arg(1))
		return a.Return(a.Arg(1))
	})
	ic.defPrim("list", 0, 0, func(ic *Interp, t *Thread, a *AFF) int {
		out := value.Nil
		for i := a.Argc() - 1; i >= 0; i-- {
			out = ic.cons(a.Arg(i), out)
		}
		return a.Return(out)
	})
	ic.defPrim("len", 1, 0, func(ic *Interp, t *Thread, a *AFF) int {
		v := a.Arg(0)
		switch {
		case v == value.Nil:
			return a.Return(value.Fixnum(0))
		case ic.consp(v):
			return a.Return(value.Fixnum(int64(ic.listLen(v))))
		case ic.is(v, value.TString):
			return a.Return(value.Fixnum(int64(ic.strLen(v))))
		case ic.is(v, value.TVector):
			return a.Return(value.Fixnum(int64(ic.vecLen(v))))
		case ic.is(v, value.TTable) || ic.is(v, value.TWeakTable):
			return a.Return(value.Fixnum(int64(ic.tableCount(v))))
		}
		ic.signal(ErrType, "len: cannot measure %s", ic.typeName(v))
		return 0
	})

	ic.defPrim("is", 2, 0, func(ic *Interp, t *Thread, a *AFF) int {
		return a.Return(ic.bool2v(ic.arcIs(a.Arg(0), a.Arg(1))))
	})
	ic.defPrim("iso", 2, 0, func(ic *Interp, t *Thread, a *AFF) int {
		return a.Return(ic.bool2v(ic.iso(a.Arg(0), a.Arg(1))))
	})
	ic.defPrim("<", 2, 0, func(ic *Interp, t *Thread, a *AFF) int {
		return a.Return(ic.bool2v(ic.numLess(a.Arg(0), a.Arg(1))))
	})
	ic.defPrim(">", 2, 0, func(ic *Interp, t *Thread, a *AFF) int {
		return a.Return(ic.bool2v(ic.numLess(a.Arg(1), a.Arg(0))))
	})

	ic.defPrim("type", 1, 0, func(ic *Interp, t *Thread, a *AFF) int {
		return a.Return(ic.Intern(ic.typeName(a.Arg(0))))
	})
	ic.defPrim("annotate", 2, 0, func(ic *Interp, t *Thread, a *AFF) int {
		tv := ic.alloc(2*8, value.TTagged)
		ic.setSlot(tv, 0, a.Arg(0))
		ic.setSlot(tv, 1, a.Arg(1))
		return a.Return(tv)
	})
	ic.defPrim("rep", 1, 0, func(ic *Interp, t *Thread, a *AFF) int {
		if !ic.is(a.Arg(0), value.TTagged) {
			return a.Return(a.Arg(0))
		}
		return a.Return(ic.slot(a.Arg(0), 1))
	})

	ic.defPrim("coerce", 2, 0, func(ic *Interp, t *Thread, a *AFF) int {
		base := 0
		if a.Argc() > 2 {
			b := a.Arg(2)
			if value.TagOf(b) != value.TagFixnum {
				ic.signal(ErrType, "coerce: base must be a fixnum")
			}
			base = int(b.Int())
		}
		return a.Return(ic.coerce(a.Arg(0), a.Arg(1), base))
	})

	ic.defPrim("table", 0, 0, func(ic *Interp, t *Thread, a *AFF) int {
		return a.Return(ic.mkTable(4))
	})
	ic.defPrim("sref", 3, 0, func(ic *Interp, t *Thread, a *AFF) int {
		col, v, k := a.Arg(0), a.Arg(1), a.Arg(2)
		switch {
		case ic.is(col, value.TTable) || ic.is(col, value.TWeakTable):
			ic.tableInsert(col, k, v)
		case ic.is(col, value.TString):
			if !ic.is(v, value.TChar) {
				ic.signal(ErrType, "sref: string element must be a char")
			}
			ic.strSetIndex(col, int(k.Int()), ic.charOf(v))
		case ic.is(col, value.TVector):
			ic.vecSet(col, int(k.Int()), v)
		case ic.consp(col):
			cur := col
			for i := int(k.Int()); i > 0; i-- {
				cur = ic.cdr(cur)
			}
			ic.scar(cur, v)
		default:
			ic.signal(ErrType, "sref: cannot set into %s", ic.typeName(col))
		}
		return a.Return(v)
	})

	ic.defPrim("err", 1, 0, func(ic *Interp, t *Thread, a *AFF) int {
		msg := a.Arg(0)
		payload := value.Nil
		if a.Argc() > 1 {
			payload = a.Arg(1)
		}
		text := ""
		if ic.is(msg, value.TString) {
			text = ic.strGo(msg)
		} else {
			text = ic.DispRepr(msg)
		}
		ic.signalv(ErrUser, payload, "%s", text)
		return 0
	})
	ic.defPrim("details", 1, 0, func(ic *Interp, t *Thread, a *AFF) int {
		if !ic.is(a.Arg(0), value.TException) {
			ic.signal(ErrType, "details: expected exception")
		}
		return a.Return(ic.mkStringStr(ic.excMessage(a.Arg(0))))
	})

	// (on-err handler body-fn): run body-fn with an error continuation
	// installed; on an exception, call handler with the exception value.
	// Locals: 0 = saved previous error continuation.
	ic.defPrim("on-err", 2, 1, func(ic *Interp, t *Thread, a *AFF) int {
		switch a.Label() {
		case 0:
			a.SetLocal(0, t.econt)
			t.econt = ic.mkForeignContCapture(t, 2, a.fv, a.env)
			return a.Call(1, a.Arg(1))
		case 1:
			// body returned normally
			t.econt = a.Local(0)
			return a.Return(t.valr)
		case 2:
			// raise unwound to here with the exception in the value
			// register; the raise path already popped our econt
			t.econt = a.Local(0)
			return a.Call(3, a.Arg(0), t.valr)
		default:
			return a.Return(t.valr)
		}
	})

	// I/O primitives over the port interface
	ic.defPrim("outstring", 0, 0, func(ic *Interp, t *Thread, a *AFF) int {
		return a.Return(ic.MkOutputString())
	})
	ic.defPrim("instring", 1, 0, func(ic *Interp, t *Thread, a *AFF) int {
		if !ic.is(a.Arg(0), value.TString) {
			ic.signal(ErrType, "instring: expected string")
		}
		return a.Return(ic.MkInputString(ic.strGo(a.Arg(0))))
	})
	ic.defPrim("inside", 1, 0, func(ic *Interp, t *Thread, a *AFF) int {
		return a.Return(ic.mkStringStr(ic.Inside(a.Arg(0))))
	})
	ic.defPrim("write", 1, 0, func(ic *Interp, t *Thread, a *AFF) int {
		out := ic.stdOut(t, a, 1)
		ic.writeBytes(out, ic.WriteRepr(a.Arg(0)))
		return a.Return(a.Arg(0))
	})
	ic.defPrim("disp", 1, 0, func(ic *Interp, t *Thread, a *AFF) int {
		out := ic.stdOut(t, a, 1)
		ic.writeBytes(out, ic.DispRepr(a.Arg(0)))
		return a.Return(a.Arg(0))
	})
	ic.defPrim("readb", 1, 0, func(ic *Interp, t *Thread, a *AFF) int {
		switch a.Label() {
		case 0:
			p := ic.portOf(a.Arg(0))
			ready, err := p.Ready()
			if err != nil {
				ic.signal(ErrResource, "readb: %v", err)
			}
			if !ready && p.Fd() >= 0 {
				return a.IOWait(0, p.Fd(), false, 0)
			}
			b, eof, err := p.GetB()
			if err != nil {
				ic.signal(ErrResource, "readb: %v", err)
			}
			if eof {
				return a.Return(value.Nil)
			}
			return a.Return(value.Fixnum(int64(b)))
		}
		return a.Return(value.Nil)
	})
	ic.defPrim("writeb", 2, 0, func(ic *Interp, t *Thread, a *AFF) int {
		switch a.Label() {
		case 0:
			p := ic.portOf(a.Arg(1))
			ready, err := p.WReady()
			if err != nil {
				ic.signal(ErrResource, "writeb: %v", err)
			}
			if !ready && p.Fd() >= 0 {
				return a.IOWait(0, p.Fd(), true, 0)
			}
			if err := p.PutB(byte(a.Arg(0).Int())); err != nil {
				ic.signal(ErrResource, "writeb: %v", err)
			}
			return a.Return(a.Arg(0))
		}
		return a.Return(a.Arg(0))
	})
	ic.defPrim("close", 1, 0, func(ic *Interp, t *Thread, a *AFF) int {
		if err := ic.portOf(a.Arg(0)).Close(); err != nil {
			ic.signal(ErrResource, "close: %v", err)
		}
		return a.Return(value.Nil)
	})

	// (sleep ms) suspends the thread on the timer wheel
	ic.defPrim("sleep", 1, 0, func(ic *Interp, t *Thread, a *AFF) int {
		switch a.Label() {
		case 0:
			ms := int(a.Arg(0).Int())
			if ms <= 0 {
				return a.Return(value.Nil)
			}
			return a.IOWait(1, -1, false, ms)
		}
		return a.Return(value.Nil)
	})

	// cooperative yield
	ic.defPrim("yield", 0, 0, func(ic *Interp, t *Thread, a *AFF) int {
		switch a.Label() {
		case 0:
			return a.Yield(1)
		}
		return a.Return(value.Nil)
	})

	// (apply f arglist)
	ic.defPrim("apply", 2, 0, func(ic *Interp, t *Thread, a *AFF) int {
		switch a.Label() {
		case 0:
			return a.Call(1, a.Arg(0), ic.listSlice(a.Arg(1))...)
		}
		return a.Return(t.valr)
	})

	ic.defineLetMacro()
}

// defPrim registers a foreign primitive in both the builtin table and
// the global environment.
func (ic *Interp) defPrim(name string, minargs, locals int, fn ForeignFn) {
	sym := ic.Intern(name)
	fv := ic.mkForeign(&Foreign{Name: name, MinArgs: minargs, Locals: locals, Fn: fn})
	ic.tableInsert(ic.builtin, sym, fv)
	ic.tableInsert(ic.genv, sym, fv)
}

func (ic *Interp) bool2v(b bool) value.Value {
	if b {
		return value.True
	}
	return value.Nil
}

// numLess compares two reals; complex values cannot be ordered.
func (ic *Interp) numLess(a, b value.Value) bool {
	ra, rb := ic.mustNum(a, "<"), ic.mustNum(b, "<")
	if ra == rankComplex || rb == rankComplex {
		ic.signal(ErrArith, "<: complex values are unordered")
	}
	switch maxRank(ra, rb) {
	case rankFixnum:
		return a.Int() < b.Int()
	case rankBignum:
		return ic.toBig(a).Cmp(ic.toBig(b)) < 0
	case rankRational:
		return ic.toRat(a).Cmp(ic.toRat(b)) < 0
	default:
		return ic.toFlo(a) < ic.toFlo(b)
	}
}

// stdOut picks the output port argument at index i, defaulting to the
// thread's standard output handle.
func (ic *Interp) stdOut(t *Thread, a *AFF, i int) value.Value {
	if a.Argc() > i {
		return a.Arg(i)
	}
	if t.stdh[1] != value.Nil {
		return t.stdh[1]
	}
	ic.signal(ErrResource, "no output port")
	return value.Nil
}

// defineLetMacro installs let as a macro over fn application,
// accepting both ((name val)...) binding lists and the flat
// (let name val body...) form.
func (ic *Interp) defineLetMacro() {
	expander := ic.mkForeign(&Foreign{Name: "let-expander", MinArgs: 1, Fn: func(ic *Interp, t *Thread, a *AFF) int {
		bindings := a.Arg(0)
		body := value.Nil
		for i := a.Argc() - 1; i >= 1; i-- {
			body = ic.cons(a.Arg(i), body)
		}
		names, vals := value.Nil, value.Nil
		if ic.consp(bindings) && ic.consp(ic.car(bindings)) {
			for b := bindings; b != value.Nil; b = ic.cdr(b) {
				names = ic.cons(ic.car(ic.car(b)), names)
				vals = ic.cons(ic.car(ic.cdr(ic.car(b))), vals)
			}
			names = ic.nreverse(names)
			vals = ic.nreverse(vals)
		} else {
			// (let var val body...)
			names = ic.cons(bindings, value.Nil)
			vals = ic.cons(ic.car(body), value.Nil)
			body = ic.cdr(body)
		}
		fn := ic.cons(ic.sym.fn, ic.cons(names, body))
		return a.Return(ic.cons(fn, vals))
	}})
	mac := ic.alloc(2*8, value.TTagged)
	ic.setSlot(mac, 0, ic.sym.mac)
	ic.setSlot(mac, 1, expander)
	ic.tableInsert(ic.genv, ic.sym.let, mac)
}
