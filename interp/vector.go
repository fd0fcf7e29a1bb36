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

// mkVector allocates a vector of n slots, each initialized to fill.
// The length lives in slot 0 as a fixnum; elements follow.
func (ic *Interp) mkVector(n int, fill value.Value) value.Value {
	v := ic.alloc((n+1)*8, value.TVector)
	ic.setSlot(v, 0, value.Fixnum(int64(n)))
	for i := 0; i < n; i++ {
		ic.setSlot(v, i+1, fill)
	}
	return v
}

func (ic *Interp) vecLen(v value.Value) int {
	return int(ic.slot(v, 0).Int())
}

func (ic *Interp) vecRef(v value.Value, i int) value.Value {
	if i < 0 || i >= ic.vecLen(v) {
		ic.signal(ErrType, "vector index %d out of range [0, %d)", i, ic.vecLen(v))
	}
	return ic.slot(v, i+1)
}

func (ic *Interp) vecSet(v value.Value, i int, x value.Value) {
	if i < 0 || i >= ic.vecLen(v) {
		ic.signal(ErrType, "vector index %d out of range [0, %d)", i, ic.vecLen(v))
	}
	ic.setSlot(v, i+1, x)
}

// vecFromSlice builds a vector holding vs.
func (ic *Interp) vecFromSlice(vs []value.Value) value.Value {
	v := ic.mkVector(len(vs), value.Nil)
	for i, x := range vs {
		ic.setSlot(v, i+1, x)
	}
	return v
}

// vecSlice copies the vector's elements into a Go slice.
func (ic *Interp) vecSlice(v value.Value) []value.Value {
	n := ic.vecLen(v)
	out := make([]value.Value, n)
	for i := 0; i < n; i++ {
		out[i] = ic.slot(v, i+1)
	}
	return out
}
