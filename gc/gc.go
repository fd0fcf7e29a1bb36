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

// Package gc implements VCGC, the incremental tri-color mark-and-sweep
// collector interleaved with the mutator: the Huelsbergen-Winterbottom
// collector the original C source names in its comments. It owns the
// memheap.Heap's color bits and is the only place "SETMARK" (the write
// barrier) is invoked.
package gc

import (
	"github.com/qyqx/arcueid/memheap"
	"github.com/qyqx/arcueid/value"
)

// propagator is the fourth pseudo-color: a block the linear heap walk
// must still visit and mark, distinct from the three real
// mutator/marker/sweeper roles.
const propagator memheap.Color = 3

const maxMarkRecursion = 64

// Config tunes the adaptive quantum and initial heap sizing.
type Config struct {
	MinQuanta int
	MaxQuanta int
	Heap      memheap.Config
}

const (
	defaultMinQuanta = 50
	defaultMaxQuanta = 15 * defaultMinQuanta
)

// Stats reports cumulative collector activity as plain counters that
// embedders read through (*GC).Stats rather than a metrics library,
// matching the teacher's avoidance of a metrics dependency inside the
// hot path. The collector does not log them.
type Stats struct {
	Epochs    uint64
	Runs      uint64
	Swept     uint64
	Allocated uint64
}

// RootsFunc supplies the rootset: the thread list, global environment,
// built-in table, special-forms table, inline-function table, and
// I/O-wait table. The symbol tables are deliberately excluded, per
// spec.md's "symbol tables are not roots" invariant.
type RootsFunc func() []value.Value

// SymbolMarkFunc implements the spec's symbol-survival rule: given a
// symbol value, locate and mark its reverse-table bucket, then the
// forward-table bucket reachable from it. Supplied by the symbol table
// owner (the interp package) via SetSymbolMarker to avoid an import
// cycle (interp depends on gc, not the reverse).
type SymbolMarkFunc func(sym value.Value, mark func(value.Value))

// TypeFnsFunc resolves the vtable for a heap type tag. The default is
// the value package's global registry; an interpreter instance installs
// its own per-instance table so that two instances in one process never
// see each other's markers.
type TypeFnsFunc func(value.HeapType) *value.VTable

// GC is one interpreter instance's collector. It is not safe for
// concurrent use; the scheduler invokes Slice between mutator threads.
type GC struct {
	Heap *memheap.Heap
	cfg  Config

	roots        RootsFunc
	symbolMarker SymbolMarkFunc
	typefns      TypeFnsFunc

	epoch   uint64
	mutator memheap.Color
	marker  memheap.Color
	sweeper memheap.Color

	quanta            int
	pendingPropagator bool

	cursorChunk uint32
	cursorOff   int

	// gce counts swept blocks minus propagator blocks marked, and gct
	// the allocated blocks visited, for the current epoch; both feed the
	// adaptive quantum formula.
	gce, gct int

	stats Stats
}

// New creates a collector bound to a fresh heap. Call SetRoots (and
// SetSymbolMarker once the symbol table exists) before the first Slice.
func New(cfg Config) *GC {
	if cfg.MinQuanta <= 0 {
		cfg.MinQuanta = defaultMinQuanta
	}
	if cfg.MaxQuanta <= 0 {
		cfg.MaxQuanta = defaultMaxQuanta
	}
	g := &GC{
		Heap:    memheap.New(cfg.Heap),
		cfg:     cfg,
		typefns: value.VTableFor,
		epoch:   3, // matches arc_set_memmgr's initial gccolor=3
		quanta:  cfg.MinQuanta,
		gct:     1,
	}
	g.rotateColors()
	return g
}

func (g *GC) rotateColors() {
	g.mutator = memheap.Color(g.epoch % 3)
	g.marker = memheap.Color((g.epoch + 2) % 3)  // (epoch-1) mod 3
	g.sweeper = memheap.Color((g.epoch + 1) % 3) // (epoch-2) mod 3
}

// SetRoots installs the rootset provider. Must be called before the
// first epoch rotation propagates roots.
func (g *GC) SetRoots(f RootsFunc) { g.roots = f }

// SetSymbolMarker installs the symbol-survival hook.
func (g *GC) SetSymbolMarker(f SymbolMarkFunc) { g.symbolMarker = f }

// SetTypeFns installs a per-instance vtable resolver, replacing the
// global registry default.
func (g *GC) SetTypeFns(f TypeFnsFunc) { g.typefns = f }

// Stats returns a snapshot of cumulative collector counters.
func (g *GC) Stats() Stats { return g.stats }

// Alloc allocates a typeTag'd heap object of size bytes, colored
// mutator -- the allocator's coloring rule is the collector's write
// barrier: nothing needs to mark a value the mutator itself just
// created. This is the sole entry point container/numeric types use to
// obtain heap cells.
func (g *GC) Alloc(size int, typeTag value.HeapType) (value.Value, error) {
	b, err := g.Heap.Alloc(size, g.mutator, uint8(typeTag))
	if err != nil {
		return value.Nil, err
	}
	g.stats.Allocated++
	ref := value.MakeRef(b.ChunkIndex(), b.Offset())
	return value.HeapValue(ref), nil
}

// Payload returns the raw backing bytes for a heap value previously
// returned by Alloc. The slice is only valid until the next Slice call
// that could sweep it.
func (g *GC) Payload(v value.Value) []byte {
	ref := v.AsRef()
	return g.Heap.Block(ref.Chunk(), ref.Offset()).Payload()
}

// blockOf resolves a heap Value to its backing block.
func (g *GC) blockOf(v value.Value) memheap.Block {
	ref := v.AsRef()
	return g.Heap.Block(ref.Chunk(), ref.Offset())
}

// setmark is the write barrier: SETMARK(h) in the original source. It
// is invoked only from within rootset propagation and recursive
// marking, never on an ordinary mutator store, because VCGC re-scans
// the rootset every epoch instead of tracking individual writes.
func (g *GC) setmark(b memheap.Block) {
	if b.Color() != g.mutator {
		b.SetColor(propagator)
		g.pendingPropagator = true
	}
}

// propagateRoots colors the rootset (and, transitively through the
// symbol hook, referenced symbols) propagator at an epoch boundary.
func (g *GC) propagateRoots() {
	if g.roots == nil {
		return
	}
	for _, v := range g.roots() {
		g.markRoot(v)
	}
}

// markRoot applies setmark to a single root value without recursing;
// the recursive descent happens lazily as Slice encounters propagator
// blocks during its linear walk, exactly like the original rootset().
func (g *GC) markRoot(v value.Value) {
	if value.Immediate(v) {
		return
	}
	g.setmark(g.blockOf(v))
}
