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

package gc

import (
	"github.com/qyqx/arcueid/memheap"
	"github.com/qyqx/arcueid/value"
)

// Slice runs one increment of collector work: a linear walk over up to
// quanta Allocated blocks starting at the saved cursor. Propagator
// blocks are marked (recursively, through the type's Marker); sweeper
// blocks are swept and freed; everything else is left alone. The
// scheduler calls this between mutator threads.
func (g *GC) Slice() {
	g.stats.Runs++
	visit := g.quanta
	walked := false
	for visit > 0 {
		b, nc, noff, done := g.Heap.StepBlock(g.cursorChunk, g.cursorOff)
		if done {
			walked = g.Heap.NumChunks() > 0
			break
		}
		g.cursorChunk, g.cursorOff = nc, noff
		if b.Magic() != memheap.MagicAllocated {
			continue
		}
		visit--
		g.gct++
		switch b.Color() {
		case propagator:
			g.gce--
			v := value.HeapValue(value.MakeRef(b.ChunkIndex(), b.Offset()))
			b.SetColor(g.mutator)
			g.markContents(v, b)
		case g.sweeper:
			g.gce++
			g.sweep(b)
		}
	}

	g.adaptQuanta()

	if !walked {
		return // ran out of quanta mid-heap; resume from the cursor next time
	}
	g.cursorChunk, g.cursorOff = 0, 0
	if g.pendingPropagator {
		// marking has not reached fixed point; another pass over the
		// heap is needed before the epoch may advance
		g.pendingPropagator = false
		return
	}
	g.stats.Epochs++
	g.epoch++
	g.rotateColors()
	g.propagateRoots()
	g.gce = 0
	g.gct = 1
}

// markContents descends into a block whose color was just flipped from
// propagator to mutator, marking its slots through the registered
// Marker. The top-level color flip has already happened, so mark() is
// applied to the children, not to v itself.
func (g *GC) markContents(v value.Value, b memheap.Block) {
	vt := g.typefns(value.HeapType(b.TypeTag()))
	if vt == nil || vt.Marker == nil {
		return
	}
	vt.Marker(v, func(inner value.Value) {
		g.mark(inner, 1)
	})
}

// sweep releases auxiliary resources through the type's Sweeper, then
// returns the block to the free list. Sweepers must not allocate or
// signal; errors inside a GC slice are fatal by specification.
func (g *GC) sweep(b memheap.Block) {
	vt := g.typefns(value.HeapType(b.TypeTag()))
	if vt != nil && vt.Sweeper != nil {
		v := value.HeapValue(value.MakeRef(b.ChunkIndex(), b.Offset()))
		vt.Sweeper(v)
	}
	g.Heap.Free(b)
	g.stats.Swept++
}

// adaptQuanta recomputes the next slice's budget by linear
// interpolation between the configured bounds, driven by the ratio of
// gce (swept minus marked) to gct (visited) this epoch: the more
// garbage a slice observes, the harder the next slice works.
func (g *GC) adaptQuanta() {
	min, max := g.cfg.MinQuanta, g.cfg.MaxQuanta
	q := (max+min)/2 + ((max-min)/20)*((100*g.gce)/g.gct)
	if q < min {
		q = min
	}
	if q > max {
		q = max
	}
	g.quanta = q
}

// MarkValue force-marks a single value and everything reachable from
// it, as if it had been found propagator during a slice. It exists for
// the symbol-survival path and for tests that need deterministic
// marking without driving a whole epoch.
func (g *GC) MarkValue(v value.Value) { g.mark(v, 0) }

// Colors reports the current epoch's color assignment, for tests and
// diagnostics.
func (g *GC) Colors() (mutator, marker, sweeper memheap.Color) {
	return g.mutator, g.marker, g.sweeper
}

// Epoch reports the epoch counter. It starts at 3 and advances by one
// each time an epoch completes.
func (g *GC) Epoch() uint64 { return g.epoch }
