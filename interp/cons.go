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

// cons allocates a fresh pair.
func (ic *Interp) cons(car, cdr value.Value) value.Value {
	v := ic.alloc(2*8, value.TCons)
	ic.setSlot(v, 0, car)
	ic.setSlot(v, 1, cdr)
	return v
}

func (ic *Interp) car(v value.Value) value.Value {
	if v == value.Nil {
		return value.Nil
	}
	if !ic.is(v, value.TCons) {
		ic.signal(ErrType, "car: expected cons, got %s", ic.typeName(v))
	}
	return ic.slot(v, 0)
}

func (ic *Interp) cdr(v value.Value) value.Value {
	if v == value.Nil {
		return value.Nil
	}
	if !ic.is(v, value.TCons) {
		ic.signal(ErrType, "cdr: expected cons, got %s", ic.typeName(v))
	}
	return ic.slot(v, 1)
}

func (ic *Interp) scar(v, x value.Value) { ic.setSlot(v, 0, x) }
func (ic *Interp) scdr(v, x value.Value) { ic.setSlot(v, 1, x) }

// consp reports whether v is a pair.
func (ic *Interp) consp(v value.Value) bool { return ic.is(v, value.TCons) }

// list builds a proper list from vs.
func (ic *Interp) list(vs ...value.Value) value.Value {
	out := value.Nil
	for i := len(vs) - 1; i >= 0; i-- {
		out = ic.cons(vs[i], out)
	}
	return out
}

// listLen walks a proper list and returns its length.
func (ic *Interp) listLen(v value.Value) int {
	n := 0
	for ic.consp(v) {
		n++
		v = ic.slot(v, 1)
	}
	return n
}

// listSlice spills a proper list into a Go slice.
func (ic *Interp) listSlice(v value.Value) []value.Value {
	var out []value.Value
	for ic.consp(v) {
		out = append(out, ic.slot(v, 0))
		v = ic.slot(v, 1)
	}
	return out
}

// listAppend concatenates two lists, copying a but sharing b, the
// semantics + uses for cons operands.
func (ic *Interp) listAppend(a, b value.Value) value.Value {
	if a == value.Nil {
		return b
	}
	head := ic.cons(ic.car(a), value.Nil)
	tail := head
	for v := ic.cdr(a); ic.consp(v); v = ic.cdr(v) {
		nc := ic.cons(ic.car(v), value.Nil)
		ic.scdr(tail, nc)
		tail = nc
	}
	ic.scdr(tail, b)
	return head
}

// nreverse destructively reverses a list, the compiler's argument-order
// trick.
func (ic *Interp) nreverse(v value.Value) value.Value {
	prev := value.Nil
	for v != value.Nil {
		next := ic.cdr(v)
		ic.scdr(v, prev)
		prev = v
		v = next
	}
	return prev
}
