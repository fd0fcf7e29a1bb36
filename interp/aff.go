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
	"github.com/qyqx/arcueid/sched"
	"github.com/qyqx/arcueid/value"
)

// Foreign-function coroutines. A foreign primitive is a Go function
// written as a state machine over explicit resume labels. It may
// suspend only at the AFF verbs (Call, Yield, IOWait) and must keep any
// state it needs across a suspension in its environment frame, never in
// Go locals: the Go frame is gone by the time the primitive resumes.
//
// The status codes a primitive returns to the trampoline:
const (
	appRET   = 1 // suspended; return control to the scheduler
	appRC    = 3 // done; restore the caller's continuation
	appFNAPP = 5 // apply the value register, then resume at the saved label
)

// ForeignFn is the body of a foreign primitive. It must begin by
// switching on aff.Label() and return one of the app* codes, normally
// via the AFF verb that produced it.
type ForeignFn func(ic *Interp, t *Thread, aff *AFF) int

// Foreign describes one registered primitive.
type Foreign struct {
	Name    string
	MinArgs int // arity floor, checked at apply
	Locals  int // environment slots reserved beyond the arguments
	Fn      ForeignFn
}

// AFF is the per-entry view of a foreign invocation: which labels and
// environment the current activation has. The struct itself never
// survives a suspension; everything durable lives in the environment
// frame and the foreign continuation.
type AFF struct {
	ic    *Interp
	t     *Thread
	fv    value.Value // the foreign-code cell
	env   value.Value // argument + locals frame
	label int
	nargs int // pending Call arity, consumed by the trampoline
}

// Label is the resume point: 0 on first entry, whatever the suspending
// verb recorded afterward.
func (a *AFF) Label() int { return a.label }

// Argc is the number of arguments this invocation received.
func (a *AFF) Argc() int {
	ff := a.ic.foreignOf(a.fv)
	return a.ic.envCount(a.env) - ff.Locals
}

// Arg reads positional argument i.
func (a *AFF) Arg(i int) value.Value {
	return a.ic.envRef(a.env, 0, i)
}

// Local reads suspension-safe local slot i (beyond the arguments).
func (a *AFF) Local(i int) value.Value {
	return a.ic.envRef(a.env, 0, a.Argc()+i)
}

// SetLocal writes suspension-safe local slot i.
func (a *AFF) SetLocal(i int, v value.Value) {
	a.ic.envSet(a.env, 0, a.Argc()+i, v)
}

// Return finishes the invocation with result v.
func (a *AFF) Return(v value.Value) int {
	a.t.valr = v
	return appRC
}

// Call invokes fn (interpreted or foreign) with args; when it returns,
// the primitive resumes at label with the result in the value register
// (readable as t.valr).
func (a *AFF) Call(label int, fn value.Value, args ...value.Value) int {
	k := a.ic.mkForeignContCapture(a.t, label, a.fv, a.env)
	a.t.push(a.ic, k)
	for i := len(args) - 1; i >= 0; i-- {
		a.t.push(a.ic, args[i])
	}
	a.t.valr = fn
	a.nargs = len(args)
	return appFNAPP
}

// Yield relinquishes the rest of the quantum; the primitive resumes at
// label on the thread's next timeslice.
func (a *AFF) Yield(label int) int {
	k := a.ic.mkForeignContCapture(a.t, label, a.fv, a.env)
	a.t.push(a.ic, k)
	a.t.state = Tready
	a.t.resumeCont = true
	return appRET
}

// IOWait blocks the thread until fd is readable (or writable when
// write is set), or until timeoutMs elapses when positive. On resume
// at label the value register holds t on readiness and nil on timeout.
func (a *AFF) IOWait(label, fd int, write bool, timeoutMs int) int {
	k := a.ic.mkForeignContCapture(a.t, label, a.fv, a.env)
	a.t.push(a.ic, k)
	a.t.state = Tiowait
	a.t.resumeCont = true
	a.ic.waitq.Add(sched.Wait{
		Tid:      a.t.ID,
		Fd:       fd,
		Write:    write,
		Deadline: a.t.waitDeadline(timeoutMs),
	})
	a.ic.tableInsert(a.ic.iowait, value.Fixnum(int64(fd)), a.t.tv)
	return appRET
}

// mkForeignContCapture snapshots the stack as well, so that unwinding
// through an error continuation lands on a consistent stack.
func (ic *Interp) mkForeignContCapture(t *Thread, label int, fv, env value.Value) value.Value {
	seg := ic.vecFromSlice(t.used())
	k := ic.mkForeignCont(label, fv, env)
	ic.setSlot(k, contStackSlot, seg)
	return k
}

func (ic *Interp) foreignOf(v value.Value) *Foreign {
	return ic.handleOf(v).(*Foreign)
}

// mkForeign boxes a primitive as a heap foreign-code cell.
func (ic *Interp) mkForeign(ff *Foreign) value.Value {
	return ic.mkHandleCell(value.TForeignCode, ff)
}

// applyForeign begins a fresh invocation: arity check, argument frame,
// first entry at label 0.
func (ic *Interp) applyForeign(t *Thread, fv value.Value) {
	ff := ic.foreignOf(fv)
	if t.argc < ff.MinArgs {
		ic.signal(ErrEnv, "%s: expected at least %d arguments, got %d",
			ff.Name, ff.MinArgs, t.argc)
	}
	env := ic.mkEnv(t.argc+ff.Locals, value.Nil)
	n := t.argc
	for i := 0; i < n; i++ {
		ic.envSet(env, 0, i, t.pop(ic))
	}
	t.argc = 0
	ic.runForeign(t, fv, env, 0)
}

// enterForeignCont resumes a suspended primitive through its foreign
// continuation; the thread's registers were already rewound by
// restoreContState.
func (ic *Interp) enterForeignCont(t *Thread, k value.Value) {
	fv := ic.slot(k, contFunSlot)
	env := ic.slot(k, contEnvSlot)
	label := int(ic.slot(k, contIPSlot).Int())
	ic.runForeign(t, fv, env, label)
}

// runForeign performs one activation of the primitive and dispatches
// on its status code. Primitives run atomically between suspension
// points; no quantum accounting happens here.
func (ic *Interp) runForeign(t *Thread, fv, env value.Value, label int) {
	ff := ic.foreignOf(fv)
	aff := &AFF{ic: ic, t: t, fv: fv, env: env, label: label}
	switch rc := ff.Fn(ic, t, aff); rc {
	case appRC:
		ic.doRet(t)
	case appFNAPP:
		ic.doApply(t, aff.nargs)
	case appRET:
		// suspended; the verb already arranged the thread state
	default:
		ic.signal(ErrType, "%s: bad foreign status %d", ff.Name, rc)
	}
}
