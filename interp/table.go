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
	"math"

	"github.com/dchest/siphash"

	"github.com/qyqx/arcueid/memheap"
	"github.com/qyqx/arcueid/value"
)

// Hash tables are open-addressing, power-of-two sized. The table cell
// holds {index vector, size, nentries, loadlimit}; every occupied index
// slot holds a hash-bucket cell {parent, index, key, value}. Empty
// slots hold unbound. When the collector sweeps a bucket it writes
// unbound back into the parent's slot, which keeps the table free of
// dangling references without the sweeper knowing anything about
// probing.

const (
	tblIndexSlot = 0
	tblSizeSlot  = 1
	tblNentSlot  = 2
	tblLimitSlot = 3

	bktParentSlot = 0
	bktIndexSlot  = 1
	bktKeySlot    = 2
	bktValueSlot  = 3
)

// mkTable creates a hash table with 1<<bits slots.
func (ic *Interp) mkTable(bits int) value.Value {
	return ic.mkTableTyped(bits, value.TTable)
}

// mkWeakTable creates the weak variant: during marking its keys are
// treated as roots but its values are not.
func (ic *Interp) mkWeakTable(bits int) value.Value {
	return ic.mkTableTyped(bits, value.TWeakTable)
}

func (ic *Interp) mkTableTyped(bits int, t value.HeapType) value.Value {
	size := 1 << bits
	tbl := ic.alloc(4*8, t)
	// allocate the index vector after the table cell so a GC-visible
	// partially built table never exists
	idx := ic.mkVector(size, value.Unbound)
	ic.setSlot(tbl, tblIndexSlot, idx)
	ic.setSlot(tbl, tblSizeSlot, value.Fixnum(int64(size)))
	ic.setSlot(tbl, tblNentSlot, value.Fixnum(0))
	ic.setSlot(tbl, tblLimitSlot, value.Fixnum(int64(size-size/4)))
	return tbl
}

// hashValue computes the keyed content hash used for table placement.
// Heap types with structural equality (strings, numbers, conses) hash
// their contents so that iso-equal keys collide; everything else hashes
// its identity word.
func (ic *Interp) hashValue(v value.Value) uint64 {
	var buf []byte
	switch value.TagOf(v) {
	case value.TagHeap:
		switch ic.typeOf(v) {
		case value.TString:
			buf = append([]byte{byte(value.TString)}, []byte(ic.strGo(v))...)
		case value.TChar:
			buf = ic.hashWord(byte(value.TChar), uint64(ic.charOf(v)))
		case value.TFlonum:
			buf = ic.hashWord(byte(value.TFlonum), math.Float64bits(ic.floOf(v)))
		case value.TBignum:
			buf = append([]byte{byte(value.TBignum)}, ic.bigOf(v).Bytes()...)
		case value.TRational:
			r := ic.ratOf(v)
			buf = append([]byte{byte(value.TRational)}, r.Num().Bytes()...)
			buf = append(buf, 0xff)
			buf = append(buf, r.Denom().Bytes()...)
		case value.TCons:
			h := ic.hashValue(ic.car(v)) ^ (ic.hashValue(ic.cdr(v)) * 0x9e3779b97f4a7c15)
			buf = ic.hashWord(byte(value.TCons), h)
		default:
			vt := ic.typefn(ic.typeOf(v))
			if vt != nil && vt.Hash != nil {
				buf = ic.hashWord(byte(ic.typeOf(v)), vt.Hash(v))
			} else {
				buf = ic.hashWord(0xfe, uint64(v))
			}
		}
	default:
		buf = ic.hashWord(0xff, uint64(v))
	}
	return siphash.Hash(ic.sipk0, ic.sipk1, buf)
}

func (ic *Interp) hashWord(tag byte, w uint64) []byte {
	var b [9]byte
	b[0] = tag
	binary.LittleEndian.PutUint64(b[1:], w)
	return b[:]
}

// lookupSlot probes for key. It returns the slot index holding the
// matching bucket, or the first empty slot if the key is absent.
func (ic *Interp) lookupSlot(tbl, key value.Value) (idx int, found bool) {
	size := int(ic.slot(tbl, tblSizeSlot).Int())
	ivec := ic.slot(tbl, tblIndexSlot)
	mask := size - 1
	i := int(ic.hashValue(key)) & mask
	for probes := 0; probes < size; probes++ {
		b := ic.vecRef(ivec, i)
		if b == value.Unbound {
			return i, false
		}
		if ic.iso(ic.slot(b, bktKeySlot), key) {
			return i, true
		}
		i = (i + 1) & mask
	}
	return -1, false
}

// tableLookupBucket returns the bucket cell for key, or unbound.
func (ic *Interp) tableLookupBucket(tbl, key value.Value) value.Value {
	idx, found := ic.lookupSlot(tbl, key)
	if !found {
		return value.Unbound
	}
	return ic.vecRef(ic.slot(tbl, tblIndexSlot), idx)
}

// tableLookup returns the value bound to key, or unbound.
func (ic *Interp) tableLookup(tbl, key value.Value) value.Value {
	b := ic.tableLookupBucket(tbl, key)
	if b == value.Unbound {
		return value.Unbound
	}
	if ic.typeOf(tbl) == value.TWeakTable && !ic.liveValue(ic.slot(b, bktValueSlot)) {
		return value.Unbound
	}
	return ic.slot(b, bktValueSlot)
}

// liveValue reports whether v still addresses an allocated block; weak
// tables use it to hide values the sweeper already reclaimed.
func (ic *Interp) liveValue(v value.Value) bool {
	if value.TagOf(v) != value.TagHeap {
		return true
	}
	ref := v.AsRef()
	blk := ic.gc.Heap.Block(ref.Chunk(), ref.Offset())
	return blk.Magic() == memheap.MagicAllocated
}

// tableInsert binds key to val, replacing any existing binding.
func (ic *Interp) tableInsert(tbl, key, val value.Value) {
	idx, found := ic.lookupSlot(tbl, key)
	if found {
		b := ic.vecRef(ic.slot(tbl, tblIndexSlot), idx)
		ic.setSlot(b, bktValueSlot, val)
		return
	}
	nent := ic.slot(tbl, tblNentSlot).Int() + 1
	if nent > ic.slot(tbl, tblLimitSlot).Int() {
		ic.tableGrow(tbl)
		idx, _ = ic.lookupSlot(tbl, key)
	}
	b := ic.alloc(4*8, value.THashBucket)
	ic.setSlot(b, bktParentSlot, tbl)
	ic.setSlot(b, bktIndexSlot, value.Fixnum(int64(idx)))
	ic.setSlot(b, bktKeySlot, key)
	ic.setSlot(b, bktValueSlot, val)
	ic.vecSet(ic.slot(tbl, tblIndexSlot), idx, b)
	ic.setSlot(tbl, tblNentSlot, value.Fixnum(nent))
}

// tableDelete unbinds key. The bucket cell becomes garbage for the
// collector to find.
func (ic *Interp) tableDelete(tbl, key value.Value) {
	idx, found := ic.lookupSlot(tbl, key)
	if !found {
		return
	}
	ic.vecSet(ic.slot(tbl, tblIndexSlot), idx, value.Unbound)
	ic.setSlot(tbl, tblNentSlot, value.Fixnum(ic.slot(tbl, tblNentSlot).Int()-1))
}

// tableGrow doubles the index vector and rehashes every bucket,
// updating each bucket's recorded slot index.
func (ic *Interp) tableGrow(tbl value.Value) {
	old := ic.slot(tbl, tblIndexSlot)
	oldSize := int(ic.slot(tbl, tblSizeSlot).Int())
	size := oldSize * 2
	nvec := ic.mkVector(size, value.Unbound)
	ic.setSlot(tbl, tblIndexSlot, nvec)
	ic.setSlot(tbl, tblSizeSlot, value.Fixnum(int64(size)))
	ic.setSlot(tbl, tblLimitSlot, value.Fixnum(int64(size-size/4)))
	mask := size - 1
	for i := 0; i < oldSize; i++ {
		b := ic.vecRef(old, i)
		if b == value.Unbound {
			continue
		}
		j := int(ic.hashValue(ic.slot(b, bktKeySlot))) & mask
		for ic.vecRef(nvec, j) != value.Unbound {
			j = (j + 1) & mask
		}
		ic.setSlot(b, bktIndexSlot, value.Fixnum(int64(j)))
		ic.vecSet(nvec, j, b)
	}
}

// tableEach invokes fn for every (key, value) binding.
func (ic *Interp) tableEach(tbl value.Value, fn func(k, v value.Value)) {
	ivec := ic.slot(tbl, tblIndexSlot)
	size := int(ic.slot(tbl, tblSizeSlot).Int())
	for i := 0; i < size; i++ {
		b := ic.vecRef(ivec, i)
		if b != value.Unbound {
			fn(ic.slot(b, bktKeySlot), ic.slot(b, bktValueSlot))
		}
	}
}

// tableCount reports the number of live bindings.
func (ic *Interp) tableCount(tbl value.Value) int {
	return int(ic.slot(tbl, tblNentSlot).Int())
}
