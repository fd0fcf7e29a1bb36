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

package memheap

import "testing"

func newTestHeap() *Heap {
	return New(Config{MinExpansion: 4096, OverPercent: 10})
}

func TestAllocAlignmentAndSize(t *testing.T) {
	h := newTestHeap()
	defer h.Close()

	sizes := []int{1, 7, 16, 17, 100, 4096}
	for _, sz := range sizes {
		b, err := h.Alloc(sz, 0, 0)
		if err != nil {
			t.Fatalf("Alloc(%d): %v", sz, err)
		}
		if b.Size() < sz {
			t.Fatalf("Alloc(%d): block too small: %d", sz, b.Size())
		}
		if b.Offset()%Align != 0 {
			t.Fatalf("Alloc(%d): payload offset %d not %d-aligned", sz, b.Offset(), Align)
		}
		if b.Magic() != MagicAllocated {
			t.Fatalf("Alloc(%d): block not marked Allocated", sz)
		}
	}
}

func TestFreeCoalescesToSingleBlock(t *testing.T) {
	h := newTestHeap()
	defer h.Close()

	var blocks []Block
	for i := 0; i < 16; i++ {
		b, err := h.Alloc(64, 0, 0)
		if err != nil {
			t.Fatalf("Alloc: %v", err)
		}
		blocks = append(blocks, b)
	}
	for _, b := range blocks {
		h.Free(b)
	}

	// Every allocation came from chunk 0 (MinExpansion covers it), so
	// freeing all of them should coalesce down to exactly one free
	// block per chunk.
	nFree := 0
	h.Walk(0, 0, func(b Block) bool {
		if b.Magic() == MagicFree {
			nFree++
		}
		return true
	})
	if nFree != h.NumChunks() {
		t.Fatalf("expected %d coalesced free blocks (one per chunk), got %d", h.NumChunks(), nFree)
	}
}

func TestNoAdjacentFreeBlocks(t *testing.T) {
	h := newTestHeap()
	defer h.Close()

	var blocks []Block
	for i := 0; i < 8; i++ {
		b, err := h.Alloc(32, 0, 0)
		if err != nil {
			t.Fatalf("Alloc: %v", err)
		}
		blocks = append(blocks, b)
	}
	// free every other block, leaving gaps, then free the rest.
	for i := 0; i < len(blocks); i += 2 {
		h.Free(blocks[i])
	}
	for i := 1; i < len(blocks); i += 2 {
		h.Free(blocks[i])
	}

	var prev *Block
	h.Walk(0, 0, func(b Block) bool {
		if b.Magic() == MagicFree {
			if prev != nil && prev.Magic() == MagicFree {
				t.Fatalf("two adjacent free blocks at chunk %d offsets %d,%d", b.ChunkIndex(), prev.off, b.off)
			}
			cp := b
			prev = &cp
		} else {
			prev = nil
		}
		return true
	})
}

func TestShrinkDecommitsFreeChunks(t *testing.T) {
	h := newTestHeap()
	defer h.Close()

	var blocks []Block
	for i := 0; i < 8; i++ {
		b, err := h.Alloc(128, 0, 0)
		if err != nil {
			t.Fatalf("Alloc: %v", err)
		}
		blocks = append(blocks, b)
	}
	for _, b := range blocks {
		h.Free(b)
	}
	n, err := h.Shrink()
	if err != nil {
		t.Fatalf("Shrink: %v", err)
	}
	if n != h.NumChunks() {
		t.Fatalf("decommitted %d of %d chunks", n, h.NumChunks())
	}
	// the chunk must still be formatted and usable afterward
	b, err := h.Alloc(64, 0, 0)
	if err != nil {
		t.Fatalf("Alloc after Shrink: %v", err)
	}
	if b.Magic() != MagicAllocated {
		t.Fatal("block after Shrink not marked Allocated")
	}
}

func TestExpandHeapOnExhaustion(t *testing.T) {
	h := New(Config{MinExpansion: 256, OverPercent: 0})
	defer h.Close()

	_, err := h.Alloc(4096, 0, 0)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if h.NumChunks() != 1 {
		t.Fatalf("expected heap to expand to cover a large allocation, got %d chunks", h.NumChunks())
	}
}
