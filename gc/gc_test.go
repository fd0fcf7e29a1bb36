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
	"encoding/binary"
	"testing"

	"github.com/qyqx/arcueid/memheap"
	"github.com/qyqx/arcueid/value"
)

// The tests build their own two-slot pair type rather than importing
// the interp package's container types, so that the collector is exercised against
// nothing but the vtable contract.

func pairSlots(g *GC, v value.Value) (value.Value, value.Value) {
	p := g.Payload(v)
	return value.Value(binary.LittleEndian.Uint64(p[0:8])),
		value.Value(binary.LittleEndian.Uint64(p[8:16]))
}

func setPairSlots(g *GC, v, car, cdr value.Value) {
	p := g.Payload(v)
	binary.LittleEndian.PutUint64(p[0:8], uint64(car))
	binary.LittleEndian.PutUint64(p[8:16], uint64(cdr))
}

func testGC(t *testing.T) *GC {
	t.Helper()
	g := New(Config{})
	value.Register(value.TCons, value.VTable{
		Marker: func(v value.Value, mark func(value.Value)) {
			car, cdr := pairSlots(g, v)
			mark(car)
			mark(cdr)
		},
		Sweeper: func(value.Value) {},
	})
	t.Cleanup(func() { g.Heap.Close() })
	return g
}

func mkpair(t *testing.T, g *GC, car, cdr value.Value) value.Value {
	t.Helper()
	v, err := g.Alloc(16, value.TCons)
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	setPairSlots(g, v, car, cdr)
	return v
}

// driveEpochs runs slices until n full epochs have elapsed.
func driveEpochs(g *GC, n uint64) {
	target := g.Epoch() + n
	for g.Epoch() < target {
		g.Slice()
	}
}

func TestUnreachableSwept(t *testing.T) {
	g := testGC(t)
	var root value.Value = value.Nil
	g.SetRoots(func() []value.Value {
		if root == value.Nil {
			return nil
		}
		return []value.Value{root}
	})

	live := mkpair(t, g, value.Fixnum(1), value.Nil)
	root = live
	for i := 0; i < 100; i++ {
		mkpair(t, g, value.Fixnum(int64(i)), value.Nil) // garbage
	}

	// drive enough epochs that the garbage rotates through
	// mutator -> marker -> sweeper color
	before := g.Stats().Swept
	driveEpochs(g, 4)
	swept := g.Stats().Swept - before
	if swept < 100 {
		t.Errorf("expected >= 100 blocks swept, got %d", swept)
	}

	// the rooted pair must have survived with its contents intact
	car, cdr := pairSlots(g, live)
	if car != value.Fixnum(1) || cdr != value.Nil {
		t.Errorf("live pair corrupted: car=%v cdr=%v", car, cdr)
	}
}

func TestCycleCollected(t *testing.T) {
	g := testGC(t)
	g.SetRoots(func() []value.Value { return nil })

	// a two-node cycle with no external references
	a := mkpair(t, g, value.Nil, value.Nil)
	b := mkpair(t, g, value.Nil, a)
	setPairSlots(g, a, value.Fixnum(1), b)

	before := g.Stats().Swept
	driveEpochs(g, 4)
	if got := g.Stats().Swept - before; got < 2 {
		t.Errorf("cycle not collected: %d blocks swept", got)
	}
}

func TestLiveChainSurvives(t *testing.T) {
	g := testGC(t)
	var root value.Value
	g.SetRoots(func() []value.Value { return []value.Value{root} })

	// a list long enough to exceed the bounded mark recursion depth,
	// forcing the left-propagator resume path
	root = value.Nil
	for i := 199; i >= 0; i-- {
		root = mkpair(t, g, value.Fixnum(int64(i)), root)
	}
	driveEpochs(g, 6)

	cur := root
	for i := 0; i < 200; i++ {
		car, cdr := pairSlots(g, cur)
		if car != value.Fixnum(int64(i)) {
			t.Fatalf("node %d: car = %v", i, car)
		}
		cur = cdr
	}
	if cur != value.Nil {
		t.Fatalf("list not nil-terminated after sweep")
	}
}

func TestNoPropagatorAfterRotation(t *testing.T) {
	g := testGC(t)
	var root value.Value = value.Nil
	g.SetRoots(func() []value.Value { return []value.Value{root} })
	root = mkpair(t, g, value.Fixnum(42), value.Nil)
	driveEpochs(g, 3)

	// at the instant the epoch advanced, the previous epoch's marking
	// had reached fixed point: nothing except the freshly re-propagated
	// rootset may be propagator
	rootRef := root.AsRef()
	count := 0
	g.Heap.Walk(0, 0, func(b memheap.Block) bool {
		if b.Magic() == memheap.MagicAllocated && b.Color() == propagator {
			if b.ChunkIndex() != rootRef.Chunk() || b.Offset() != rootRef.Offset() {
				count++
			}
		}
		return true
	})
	if count != 0 {
		t.Errorf("%d non-root propagator blocks after epoch rotation", count)
	}
}

func TestAdaptiveQuantaBounded(t *testing.T) {
	g := testGC(t)
	g.SetRoots(func() []value.Value { return nil })
	for i := 0; i < 1000; i++ {
		mkpair(t, g, value.Fixnum(int64(i)), value.Nil)
		if i%10 == 0 {
			g.Slice()
		}
	}
	driveEpochs(g, 5)
	if g.quanta < g.cfg.MinQuanta || g.quanta > g.cfg.MaxQuanta {
		t.Errorf("quanta %d outside [%d, %d]", g.quanta, g.cfg.MinQuanta, g.cfg.MaxQuanta)
	}
}
