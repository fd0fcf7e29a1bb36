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

// The VM: a register-light stack machine dispatching fixnum-encoded
// instructions out of the current code object. One call to vmengine
// runs a thread until its quantum is exhausted, it suspends on I/O, or
// it reaches a terminal state; the scheduler trampolines between
// threads and GC slices around it.

// codeWords gives random access to a code object's bytecode vector
// without re-decoding the vector on every fetch. The underlying bytes
// stay valid because the code object is reachable from funr for as
// long as the reader is in use.
type codeWords struct {
	p []byte
	n int
}

func (ic *Interp) codeWordsOf(code value.Value) codeWords {
	bc := ic.slot(code, codeBytecodeSlot)
	return codeWords{p: ic.payload(bc), n: ic.vecLen(bc)}
}

func (cw codeWords) at(i int) value.Value {
	return value.Value(binary.LittleEndian.Uint64(cw.p[(i+1)*8:]))
}

// vmengine dispatches instructions for t until the quantum runs out or
// the thread leaves the Running state. Errors signalled anywhere below
// are caught here and routed to the thread's error continuation.
func (ic *Interp) vmengine(t *Thread) {
	defer func() {
		if r := recover(); r != nil {
			e, ok := r.(*Error)
			if !ok {
				panic(r)
			}
			ic.raise(t, e)
		}
	}()

	if t.resumeCont {
		// waking from a foreign suspension: deliver the wait result and
		// re-enter the primitive through the continuation on the stack
		t.resumeCont = false
		if t.ioTimedOut {
			t.ioTimedOut = false
			t.valr = value.Nil
		} else {
			t.valr = value.True
		}
		ic.doRet(t)
	}

	curFun := value.Nil
	var cw codeWords
	for t.state == Trunning {
		if t.quanta <= 0 {
			t.state = Tready
			return
		}
		if t.funr != curFun {
			if !ic.is(t.funr, value.TCode) {
				ic.signal(ErrType, "thread %d: function register holds %s, not code",
					t.ID, ic.typeName(t.funr))
			}
			curFun = t.funr
			cw = ic.codeWordsOf(curFun)
		}
		if t.ip < 0 || t.ip >= cw.n {
			ic.signal(ErrType, "thread %d: instruction pointer %d out of range", t.ID, t.ip)
		}
		t.quanta--
		instaddr := t.ip
		op := opcode(cw.at(t.ip).Int())
		t.ip++
		switch op {
		case opNop:
		case opLdi:
			t.valr = cw.at(t.ip)
			t.ip++
		case opLdl:
			t.valr = ic.codeLiteral(curFun, int(cw.at(t.ip).Int()))
			t.ip++
		case opLdg:
			sym := ic.codeLiteral(curFun, int(cw.at(t.ip).Int()))
			t.ip++
			v := ic.tableLookup(ic.genv, sym)
			if v == value.Unbound {
				ic.signal(ErrEnv, "unbound symbol %s", ic.SymName(sym))
			}
			t.valr = v
		case opStg:
			sym := ic.codeLiteral(curFun, int(cw.at(t.ip).Int()))
			t.ip++
			ic.tableInsert(ic.genv, sym, t.valr)
		case opLde:
			lvl := int(cw.at(t.ip).Int())
			off := int(cw.at(t.ip + 1).Int())
			t.ip += 2
			t.valr = ic.envRef(t.envr, lvl, off)
		case opSte:
			lvl := int(cw.at(t.ip).Int())
			off := int(cw.at(t.ip + 1).Int())
			t.ip += 2
			ic.envSet(t.envr, lvl, off, t.valr)
		case opTrue:
			t.valr = value.True
		case opNil:
			t.valr = value.Nil
		case opHlt:
			t.state = Trelease
		case opPush:
			t.push(ic, t.valr)
		case opPop:
			t.valr = t.pop(ic)
		case opDup:
			t.push(ic, t.top())
		case opJmp:
			t.ip = instaddr + int(cw.at(t.ip).Int())
		case opJt:
			off := int(cw.at(t.ip).Int())
			t.ip++
			if t.valr != value.Nil {
				t.ip = instaddr + off
			}
		case opJf:
			off := int(cw.at(t.ip).Int())
			t.ip++
			if t.valr == value.Nil {
				t.ip = instaddr + off
			}
		case opCont:
			off := int(cw.at(t.ip).Int())
			t.ip++
			t.conr = ic.mkCont(t, instaddr+off)
			t.push(ic, t.conr)
		case opEnv:
			size := int(cw.at(t.ip).Int())
			t.ip++
			t.envr = ic.mkEnv(size, t.envr)
		case opApply:
			nargs := int(cw.at(t.ip).Int())
			t.ip++
			ic.doApply(t, nargs)
		case opRet:
			ic.doRet(t)
		case opCls:
			t.valr = ic.mkClosure(t.valr, t.envr)
		case opMvarg:
			k := int(cw.at(t.ip).Int())
			t.ip++
			if t.argc <= 0 {
				ic.signal(ErrEnv, "too few arguments")
			}
			ic.envSet(t.envr, 0, k, t.pop(ic))
			t.argc--
		case opMvoarg:
			k := int(cw.at(t.ip).Int())
			t.ip++
			if t.argc > 0 {
				ic.envSet(t.envr, 0, k, t.pop(ic))
				t.argc--
			} else {
				ic.envSet(t.envr, 0, k, value.Nil)
			}
		case opMvrarg:
			k := int(cw.at(t.ip).Int())
			t.ip++
			rest := value.Nil
			elems := make([]value.Value, 0, t.argc)
			for ; t.argc > 0; t.argc-- {
				elems = append(elems, t.pop(ic))
			}
			for i := len(elems) - 1; i >= 0; i-- {
				rest = ic.cons(elems[i], rest)
			}
			ic.envSet(t.envr, 0, k, rest)
		case opAdd:
			t.valr = ic.add2(t.pop(ic), t.valr)
		case opSub:
			t.valr = ic.sub2(t.pop(ic), t.valr)
		case opMul:
			t.valr = ic.mul2(t.pop(ic), t.valr)
		case opDiv:
			t.valr = ic.div2(t.pop(ic), t.valr)
		case opCons:
			t.valr = ic.cons(t.pop(ic), t.valr)
		case opCar:
			t.valr = ic.car(t.valr)
		case opCdr:
			t.valr = ic.cdr(t.valr)
		case opIs:
			if ic.arcIs(t.pop(ic), t.valr) {
				t.valr = value.True
			} else {
				t.valr = value.Nil
			}
		default:
			ic.signal(ErrType, "thread %d: bad opcode %d at %d", t.ID, int(op), instaddr)
		}
	}
}

// doApply applies the value register to the nargs arguments on the
// stack (argument 0 on top).
func (ic *Interp) doApply(t *Thread, nargs int) {
	fn := t.valr
	t.argc = nargs
	if value.TagOf(fn) != value.TagHeap {
		ic.signal(ErrType, "apply of non-callable %s", ic.typeName(fn))
	}
	switch ic.typeOf(fn) {
	case value.TClosure:
		t.funr = ic.closCode(fn)
		t.envr = ic.closEnv(fn)
		t.ip = 0
	case value.TForeignCode:
		ic.applyForeign(t, fn)
	case value.TContinuation:
		// first-class continuation: discard the current stack state and
		// resume the snapshot with the argument as the value
		v := value.Nil
		if nargs > 0 {
			v = t.pop(ic)
		}
		for i := 1; i < nargs; i++ {
			t.pop(ic)
		}
		if ic.contIsForeign(fn) {
			ic.restoreContState(t, fn)
			t.valr = v
			ic.enterForeignCont(t, fn)
			return
		}
		ic.restoreContState(t, fn)
		t.valr = v
	case value.TTable, value.TWeakTable:
		key := t.pop(ic)
		t.argc--
		def := value.Nil
		if t.argc > 0 {
			def = t.pop(ic)
			t.argc--
		}
		v := ic.tableLookup(fn, key)
		if v == value.Unbound {
			v = def
		}
		t.valr = v
		ic.doRet(t)
	case value.TString:
		idx := t.pop(ic)
		t.argc--
		if value.TagOf(idx) != value.TagFixnum {
			ic.signal(ErrType, "string index must be a fixnum")
		}
		t.valr = ic.mkChar(ic.strIndex(fn, int(idx.Int())))
		ic.doRet(t)
	case value.TVector:
		idx := t.pop(ic)
		t.argc--
		if value.TagOf(idx) != value.TagFixnum {
			ic.signal(ErrType, "vector index must be a fixnum")
		}
		t.valr = ic.vecRef(fn, int(idx.Int()))
		ic.doRet(t)
	default:
		vt := ic.typefn(ic.typeOf(fn))
		if vt != nil && vt.Apply != nil {
			args := make([]value.Value, nargs)
			for i := 0; i < nargs; i++ {
				args[i] = t.pop(ic)
			}
			t.argc = 0
			res, err := vt.Apply(args)
			if err != nil {
				ic.signal(ErrType, "%v", err)
			}
			t.valr = res
			ic.doRet(t)
			return
		}
		ic.signal(ErrType, "apply of non-callable %s", ic.typeName(fn))
	}
}

// doRet returns to the continuation on top of the stack. An empty
// stack means the continuation chain has drained and the thread is
// finished.
func (ic *Interp) doRet(t *Thread) {
	if t.stackEmpty() {
		t.state = Tfinished
		return
	}
	k := t.pop(ic)
	if !ic.is(k, value.TContinuation) {
		ic.signal(ErrType, "ret: stack top is %s, not a continuation", ic.typeName(k))
	}
	ic.restoreContState(t, k)
	if ic.contIsForeign(k) {
		ic.enterForeignCont(t, k)
	}
}

// raise routes e to the thread's error continuation, or kills the
// thread when none is installed.
func (ic *Interp) raise(t *Thread, e *Error) {
	e.Backtrace = ic.backtrace(t)
	exc := ic.mkException(e)
	if t.econt != value.Nil {
		h := t.econt
		t.econt = value.Nil
		t.valr = exc
		ic.restoreContState(t, h)
		if ic.contIsForeign(h) {
			// entering the handler primitive may itself signal; let the
			// scheduler's next pass pick that up normally
			t.valr = exc
			func() {
				defer func() {
					if r := recover(); r != nil {
						if e2, ok := r.(*Error); ok {
							ic.raise(t, e2)
							return
						}
						panic(r)
					}
				}()
				ic.enterForeignCont(t, h)
			}()
		}
		if t.state == Trunning {
			t.state = Tready
		}
		return
	}
	t.exc = exc
	t.state = Tfinished
	ic.lastErr = e
	errorf("thread %d: unhandled %s", t.ID, e.Error())
}

// backtrace derives source lines from the current position plus every
// continuation on the stack, innermost first.
func (ic *Interp) backtrace(t *Thread) []int {
	var bt []int
	if ic.is(t.funr, value.TCode) {
		if l := ic.codeLine(t.funr, t.ip); l > 0 {
			bt = append(bt, l)
		}
	}
	for _, v := range t.used() {
		if ic.is(v, value.TContinuation) && !ic.contIsForeign(v) {
			fun := ic.slot(v, contFunSlot)
			if ic.is(fun, value.TCode) {
				if l := ic.codeLine(fun, int(ic.slot(v, contIPSlot).Int())); l > 0 {
					bt = append(bt, l)
				}
			}
		}
	}
	return bt
}
