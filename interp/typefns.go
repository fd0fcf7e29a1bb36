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

// registerTypes installs the per-type dispatch records the collector
// and printer consult. Markers enumerate inner values; sweepers
// release what the block itself does not cover (handle-table entries,
// open ports, the hash-bucket back-pointer protocol).
func (ic *Interp) registerTypes() {
	noSweep := func(value.Value) {}
	dropHandle := func(v value.Value) { ic.dropHandle(v) }

	set := func(t value.HeapType, vt value.VTable) {
		if vt.Sweeper == nil {
			vt.Sweeper = noSweep
		}
		cp := vt
		ic.typefns[t] = &cp
	}

	set(value.TCons, value.VTable{
		Marker: func(v value.Value, mark func(value.Value)) {
			mark(ic.slot(v, 0))
			mark(ic.slot(v, 1))
		},
	})

	vecMark := func(v value.Value, mark func(value.Value)) {
		n := ic.vecLen(v)
		for i := 0; i < n; i++ {
			mark(ic.slot(v, i+1))
		}
	}
	set(value.TVector, value.VTable{Marker: vecMark})

	leafMark := func(value.Value, func(value.Value)) {}
	set(value.TString, value.VTable{Marker: leafMark})
	set(value.TChar, value.VTable{Marker: leafMark})
	set(value.TFlonum, value.VTable{Marker: leafMark})
	set(value.TComplex, value.VTable{Marker: leafMark})
	set(value.TBignum, value.VTable{Marker: leafMark, Sweeper: dropHandle})
	set(value.TRational, value.VTable{Marker: leafMark, Sweeper: dropHandle})

	set(value.TTable, value.VTable{
		Marker: func(v value.Value, mark func(value.Value)) {
			mark(ic.slot(v, tblIndexSlot))
		},
	})
	// weak tables keep their keys alive but not their values
	set(value.TWeakTable, value.VTable{
		Marker: func(v value.Value, mark func(value.Value)) {
			ivec := ic.slot(v, tblIndexSlot)
			mark(ivec)
			size := int(ic.slot(v, tblSizeSlot).Int())
			for i := 0; i < size; i++ {
				b := ic.vecRef(ivec, i)
				if b != value.Unbound {
					mark(ic.slot(b, bktKeySlot))
				}
			}
		},
	})
	set(value.THashBucket, value.VTable{
		Marker: func(v value.Value, mark func(value.Value)) {
			parent := ic.slot(v, bktParentSlot)
			mark(ic.slot(v, bktKeySlot))
			if value.TagOf(parent) == value.TagHeap && ic.typeOf(parent) == value.TWeakTable {
				return
			}
			mark(ic.slot(v, bktValueSlot))
		},
		// clearing the parent's index slot preserves the no-dangling-
		// pointer invariant when a bucket dies before its table
		Sweeper: func(v value.Value) {
			parent := ic.slot(v, bktParentSlot)
			if !ic.liveValue(parent) {
				return
			}
			ivec := ic.slot(parent, tblIndexSlot)
			idx := int(ic.slot(v, bktIndexSlot).Int())
			if ic.liveValue(ivec) && idx < ic.vecLen(ivec) && ic.vecRef(ivec, idx) == v {
				ic.vecSet(ivec, idx, value.Unbound)
				ic.setSlot(parent, tblNentSlot,
					value.Fixnum(ic.slot(parent, tblNentSlot).Int()-1))
			}
		},
	})

	set(value.TTagged, value.VTable{
		Marker: func(v value.Value, mark func(value.Value)) {
			mark(ic.slot(v, 0))
			mark(ic.slot(v, 1))
		},
	})

	set(value.TEnvFrame, value.VTable{
		Marker: func(v value.Value, mark func(value.Value)) {
			mark(ic.slot(v, envParentSlot))
			n := ic.envCount(v)
			for i := 0; i < n; i++ {
				mark(ic.slot(v, envFirstSlot+i))
			}
		},
	})

	set(value.TClosure, value.VTable{
		Marker: func(v value.Value, mark func(value.Value)) {
			mark(ic.slot(v, 0))
			mark(ic.slot(v, 1))
		},
	})

	set(value.TCode, value.VTable{
		Marker: func(v value.Value, mark func(value.Value)) {
			mark(ic.slot(v, codeBytecodeSlot))
			mark(ic.slot(v, codeLitsSlot))
			mark(ic.slot(v, codeSrcSlot))
		},
	})

	set(value.TContinuation, value.VTable{
		Marker: func(v value.Value, mark func(value.Value)) {
			mark(ic.slot(v, contFunSlot))
			mark(ic.slot(v, contEnvSlot))
			mark(ic.slot(v, contStackSlot))
		},
	})

	set(value.TException, value.VTable{
		Marker: func(v value.Value, mark func(value.Value)) {
			mark(ic.slot(v, 0))
			mark(ic.slot(v, 1))
			mark(ic.slot(v, 2))
		},
	})

	set(value.TThread, value.VTable{
		Marker: func(v value.Value, mark func(value.Value)) {
			if t, ok := ic.handleOf(v).(*Thread); ok {
				ic.markThread(t, mark)
			}
		},
		Sweeper: dropHandle,
	})

	set(value.TForeignCode, value.VTable{Marker: leafMark, Sweeper: dropHandle})
	set(value.TCustom, value.VTable{Marker: leafMark, Sweeper: dropHandle})
	set(value.TTypeDesc, value.VTable{
		Marker: func(v value.Value, mark func(value.Value)) { mark(ic.slot(v, 0)) },
	})

	portSweep := func(v value.Value) {
		if p, ok := ic.handleOf(v).(Port); ok {
			p.Close()
		}
		ic.dropHandle(v)
	}
	set(value.TInputPort, value.VTable{Marker: leafMark, Sweeper: portSweep})
	set(value.TOutputPort, value.VTable{Marker: leafMark, Sweeper: portSweep})

	set(value.TChannel, value.VTable{
		Marker: func(v value.Value, mark func(value.Value)) {
			mark(ic.slot(v, 0)) // queued values
			mark(ic.slot(v, 1)) // waiting threads
		},
	})
}

// RegisterCustom lets an embedder install a vtable for the custom
// type slot, overriding the default opaque treatment. Marker and
// Sweeper are mandatory, as for every built-in type.
func (ic *Interp) RegisterCustom(vt value.VTable) {
	if vt.Marker == nil || vt.Sweeper == nil {
		panic("interp: custom vtable must supply Marker and Sweeper")
	}
	cp := vt
	ic.typefns[value.TCustom] = &cp
}
