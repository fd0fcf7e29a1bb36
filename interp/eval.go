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
	"time"

	"github.com/qyqx/arcueid/value"
)

// The scheduler: a round-robin ring of cooperative threads. Each pass
// gives every Ready thread one quantum of instructions, runs one GC
// slice after each thread, then polls the I/O-wait table with a
// timeout derived from the nearest deadline.

// Spawn registers a new thread that will run clos (a closure of no
// arguments) to completion.
func (ic *Interp) Spawn(clos value.Value) (t *Thread, err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(*Error); ok {
				t, err = nil, e
				return
			}
			panic(r)
		}
	}()
	t = ic.mkThread()
	t.valr = clos
	ic.doApply(t, 0)
	if t.state == Trunning {
		t.state = Tready
	}
	return t, nil
}

// Run drives scheduler passes until every thread is terminal. It
// returns the most recent unhandled error any thread died with during
// this run, if any.
func (ic *Interp) Run() error {
	ic.lastErr = nil
	for {
		ran := false
		// snapshot: primitives may spawn threads mid-pass
		snap := make([]*Thread, len(ic.threads))
		copy(snap, ic.threads)
		for _, t := range snap {
			if t.state != Tready {
				continue
			}
			ran = true
			t.state = Trunning
			t.quanta = ic.cfg.Quantum
			ic.vmengine(t)
			if t.state == Trunning {
				t.state = Tready
			}
			ic.gc.Slice()
		}
		ic.pollIOWait()
		ic.reapThreads()
		if len(ic.threads) == 0 {
			break
		}
		if !ran && ic.waitq.Empty() {
			// nothing runnable and nothing waited on: the remaining
			// threads can never progress
			for _, t := range ic.threads {
				t.state = Tfinished
			}
			ic.reapThreads()
			break
		}
	}
	if ic.lastErr != nil {
		return ic.lastErr
	}
	return nil
}

// pollIOWait wakes threads whose descriptors became ready or whose
// deadlines passed.
func (ic *Interp) pollIOWait() {
	if ic.waitq.Empty() {
		return
	}
	wakeups, err := ic.waitq.Poll(time.Now())
	if err != nil {
		errorf("iowait poll: %v", err)
		return
	}
	for _, w := range wakeups {
		for _, t := range ic.threads {
			if t.ID == w.Tid && t.state == Tiowait {
				t.state = Tready
				t.ioTimedOut = w.TimedOut
			}
		}
	}
	// rebuild the fd -> thread root table to match the wait queue
	old := ic.iowait
	ic.iowait = ic.mkTable(4)
	ic.tableEach(old, func(fd, tv value.Value) {
		if t, ok := ic.handleOf(tv).(*Thread); ok && t.state == Tiowait {
			ic.tableInsert(ic.iowait, fd, tv)
		}
	})
}

// reapThreads drops terminal threads from the ring. Their heap cells
// stop being roots and become collectable.
func (ic *Interp) reapThreads() {
	kept := ic.threads[:0]
	for _, t := range ic.threads {
		if !t.state.Terminal() {
			kept = append(kept, t)
		}
	}
	ic.threads = kept
}

// Kill moves a thread to Finished from outside; the scheduler will
// never resume it and the collector reclaims its resources.
func (ic *Interp) Kill(t *Thread) {
	if !t.state.Terminal() {
		t.state = Tfinished
		ic.waitq.Remove(t.ID)
	}
}

// Apply synchronously applies fn to args on a private thread, running
// it to completion outside the scheduler. Used by macro expansion and
// embedders; the applied function must not block on I/O.
func (ic *Interp) Apply(fn value.Value, args ...value.Value) value.Value {
	t := ic.mkThread()
	defer func() {
		// pull it back out of the ring no matter how we exit
		t.state = Tfinished
		ic.reapThreads()
	}()
	for i := len(args) - 1; i >= 0; i-- {
		t.push(ic, args[i])
	}
	t.valr = fn
	t.state = Trunning
	ic.doApply(t, len(args))
	for !t.state.Terminal() {
		t.quanta = ic.cfg.Quantum
		if t.state == Tready {
			t.state = Trunning
		}
		if t.state == Tiowait {
			ic.signal(ErrType, "apply: function suspended on I/O outside the scheduler")
		}
		ic.vmengine(t)
	}
	if t.exc != value.Nil {
		ic.signalv(ErrUser, ic.excPayload(t.exc), "%s", ic.excMessage(t.exc))
	}
	return t.valr
}

// EvalForm compiles and runs a single expression under the scheduler
// and returns its value.
func (ic *Interp) EvalForm(expr value.Value) (value.Value, error) {
	code, err := ic.Compile(expr)
	if err != nil {
		return value.Nil, err
	}
	if Debugf != nil {
		debugf("compiled %s:\n%s", ic.WriteRepr(expr), ic.disasm(code))
	}
	clos := ic.mkClosure(code, value.Nil)
	t, err := ic.Spawn(clos)
	if err != nil {
		return value.Nil, err
	}
	if err := ic.Run(); err != nil {
		return value.Nil, err
	}
	if t.exc != value.Nil {
		return value.Nil, fmt.Errorf("unhandled exception: %s", ic.excMessage(t.exc))
	}
	return t.valr, nil
}

// EvalString reads, compiles and runs every form in src, returning the
// last form's value.
func (ic *Interp) EvalString(src string) (value.Value, error) {
	forms, err := ic.ReadAll(src)
	if err != nil {
		return value.Nil, err
	}
	// pin the pending forms: running an earlier form drives GC slices,
	// and the later forms are otherwise reachable only from Go
	pin := value.Nil
	for i := len(forms) - 1; i >= 0; i-- {
		pin = ic.cons(forms[i], pin)
	}
	ic.Protect(pin)
	defer ic.Unprotect()
	out := value.Nil
	for _, f := range forms {
		out, err = ic.EvalForm(f)
		if err != nil {
			return value.Nil, err
		}
	}
	return out, nil
}
