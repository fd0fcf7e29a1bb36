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

// Package interp is the Arcueid runtime core: container types, the
// numeric tower, symbol interning, the bytecode compiler, the virtual
// machine, foreign-function coroutines and the cooperative scheduler,
// all layered over the gc and memheap packages.
package interp

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/google/uuid"

	"github.com/qyqx/arcueid/gc"
	"github.com/qyqx/arcueid/sched"
	"github.com/qyqx/arcueid/value"
)

// Config collects every tunable the runtime core exposes. The zero
// value selects the same defaults the original shipped with.
type Config struct {
	GC         gc.Config
	Quantum    int // instructions per scheduler timeslice
	StackWords int // value stack size for new threads
}

const (
	defaultQuantum    = 4096
	defaultStackWords = 2048
)

// Interp is one interpreter instance. Instances share nothing; the
// cooperative scheduler serializes all mutation within one instance, so
// none of the methods here are safe for concurrent use.
type Interp struct {
	// ID distinguishes this instance in logs and in the compiled-code
	// wire header.
	ID uuid.UUID

	gc  *gc.GC
	cfg Config

	// handle table: heap cells that wrap Go-side state (big.Ints,
	// ports, threads, foreign code) store an index into this map; the
	// type's sweeper releases the entry.
	handles    map[uint64]any
	nexthandle uint64

	// siphash key for hash tables, drawn once per instance
	sipk0, sipk1 uint64

	// symbol tables: name string -> symbol and symbol -> name string.
	// Not GC roots; see the symbol-survival rule in the gc package.
	symtable  value.Value
	rsymtable value.Value
	lastsym   value.Symbol

	genv     value.Value // global environment
	builtin  value.Value // builtin table
	splforms value.Value // special-form symbols
	inlfuncs value.Value // inlinable-function table
	iowait   value.Value // I/O-wait table (fd -> thread)

	typefns [int(value.TWeakTable) + 1]*value.VTable

	threads  []*Thread
	tidNonce int64
	waitq    *sched.Waitq
	lastErr  *Error // most recent unhandled error, for the embedder

	// protected pins values held only from the Go side (pending
	// top-level forms, embedder temporaries) into the rootset.
	protected value.Value

	// interned symbols the compiler and VM consult on hot paths
	sym struct {
		t, nil_, if_, fn, quote, qquote, unquote, unquoteSp value.Value
		assign, o, mac, let, complex_                       value.Value
	}
}

// New creates and bootstraps an interpreter instance: heap, collector,
// vtables, symbol tables, global environment, and builtins.
func New(cfg Config) (*Interp, error) {
	if cfg.Quantum <= 0 {
		cfg.Quantum = defaultQuantum
	}
	if cfg.StackWords <= 0 {
		cfg.StackWords = defaultStackWords
	}
	ic := &Interp{
		ID:      uuid.New(),
		gc:      gc.New(cfg.GC),
		cfg:     cfg,
		handles: make(map[uint64]any),
		waitq:   sched.NewWaitq(),
	}
	var seed [16]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return nil, err
	}
	ic.sipk0 = binary.LittleEndian.Uint64(seed[0:8])
	ic.sipk1 = binary.LittleEndian.Uint64(seed[8:16])

	ic.registerTypes()
	ic.gc.SetTypeFns(ic.typefn)

	// symbol tables first; everything else needs interning
	ic.symtable = ic.mkTable(10)
	ic.rsymtable = ic.mkTable(10)
	ic.internBasics()

	ic.genv = ic.mkTable(10)
	ic.builtin = ic.mkTable(6)
	ic.splforms = ic.mkTable(4)
	ic.inlfuncs = ic.mkTable(4)
	ic.iowait = ic.mkTable(4)

	ic.gc.SetRoots(ic.roots)
	ic.gc.SetSymbolMarker(ic.markSymbolBuckets)

	ic.defineBuiltins()
	return ic, nil
}

// Close unmaps the heap. The instance must not be used afterward.
func (ic *Interp) Close() error {
	return ic.gc.Heap.Close()
}

// GC exposes the instance's collector for embedders that want to drive
// slices or read stats directly.
func (ic *Interp) GC() *gc.GC { return ic.gc }

func (ic *Interp) typefn(t value.HeapType) *value.VTable {
	if int(t) < len(ic.typefns) {
		return ic.typefns[t]
	}
	return nil
}

// roots supplies the collector's rootset: the global tables and every
// non-terminal thread. The symbol tables are deliberately absent.
func (ic *Interp) roots() []value.Value {
	rs := []value.Value{ic.genv, ic.builtin, ic.splforms, ic.inlfuncs, ic.iowait, ic.protected}
	for _, t := range ic.threads {
		rs = append(rs, t.tv)
	}
	return rs
}

// Protect pins v (and everything reachable from it) into the rootset
// until the matching Unprotect. Embedders holding heap values only in
// Go variables across scheduler work must pin them this way.
func (ic *Interp) Protect(v value.Value) {
	ic.protected = ic.cons(v, ic.protected)
}

// Unprotect releases the most recent Protect.
func (ic *Interp) Unprotect() {
	ic.protected = ic.cdr(ic.protected)
}

// alloc obtains a typed heap cell, signalling out-of-memory through the
// error machinery on failure.
func (ic *Interp) alloc(size int, t value.HeapType) value.Value {
	v, err := ic.gc.Alloc(size, t)
	if err != nil {
		ic.signal(ErrResource, "out of memory: %v", err)
	}
	return v
}

// payload returns the backing bytes of a heap cell.
func (ic *Interp) payload(v value.Value) []byte { return ic.gc.Payload(v) }

// typeOf reports the heap type of v; callers must know v is a heap
// value.
func (ic *Interp) typeOf(v value.Value) value.HeapType {
	ref := v.AsRef()
	return value.HeapType(ic.gc.Heap.Block(ref.Chunk(), ref.Offset()).TypeTag())
}

// is reports whether v is a heap object of type t.
func (ic *Interp) is(v value.Value, t value.HeapType) bool {
	return value.TagOf(v) == value.TagHeap && ic.typeOf(v) == t
}

// slot helpers: heap cell payloads are arrays of 8-byte value words.

func (ic *Interp) slot(v value.Value, i int) value.Value {
	p := ic.payload(v)
	return value.Value(binary.LittleEndian.Uint64(p[i*8:]))
}

func (ic *Interp) setSlot(v value.Value, i int, x value.Value) {
	p := ic.payload(v)
	binary.LittleEndian.PutUint64(p[i*8:], uint64(x))
}

// handle-table plumbing

func (ic *Interp) newHandle(x any) uint64 {
	ic.nexthandle++
	ic.handles[ic.nexthandle] = x
	return ic.nexthandle
}

func (ic *Interp) handleOf(v value.Value) any {
	return ic.handles[uint64(ic.slot(v, 0))]
}

func (ic *Interp) dropHandle(v value.Value) {
	delete(ic.handles, uint64(ic.slot(v, 0)))
}

// mkHandleCell allocates a one-slot cell of type t wrapping x.
func (ic *Interp) mkHandleCell(t value.HeapType, x any) value.Value {
	v := ic.alloc(8, t)
	ic.setSlot(v, 0, value.Value(ic.newHandle(x)))
	return v
}
