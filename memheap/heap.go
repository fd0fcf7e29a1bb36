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

import "fmt"

// Config tunes heap expansion policy; zero value uses the defaults the
// original allocator shipped with.
type Config struct {
	// MinExpansion is the smallest number of bytes a single
	// expand_heap call will request, regardless of how small the
	// triggering allocation was.
	MinExpansion int
	// OverPercent is how much extra headroom (as a percentage of the
	// triggering request) expand_heap asks for, to amortize the cost
	// of future small allocations.
	OverPercent int
}

const (
	defaultMinExpansion = 256 * 1024
	defaultOverPercent  = 50
)

// Heap is a free-list allocator over a growing set of mmap'd chunks.
// It is not safe for concurrent use; callers (the gc package, the
// scheduler) serialize access the same way the cooperative scheduler
// serializes all mutator activity.
type Heap struct {
	cfg    Config
	chunks []*chunk
	// freeHead addresses the first block of the address-ordered free
	// list, or ok=false if the list is empty.
	freeHeadChunk uint32
	freeHeadOff   uint32
	freeHeadOK    bool
}

// New creates an empty heap. No chunks are mapped until the first
// allocation forces expansion.
func New(cfg Config) *Heap {
	if cfg.MinExpansion <= 0 {
		cfg.MinExpansion = defaultMinExpansion
	}
	if cfg.OverPercent <= 0 {
		cfg.OverPercent = defaultOverPercent
	}
	return &Heap{cfg: cfg}
}

func (h *Heap) blockFor(chunkIdx, headerOff uint32) Block {
	return h.chunks[chunkIdx].blockAt(int(headerOff))
}

func (h *Heap) freeHead() (Block, bool) {
	if !h.freeHeadOK {
		return Block{}, false
	}
	return h.blockFor(h.freeHeadChunk, h.freeHeadOff), true
}

func (h *Heap) setFreeHead(b Block, ok bool) {
	h.freeHeadOK = ok
	if ok {
		h.freeHeadChunk = b.ChunkIndex()
		h.freeHeadOff = uint32(b.off)
	}
}

func addrKey(b Block) uint64 {
	return uint64(b.ChunkIndex())<<32 | uint64(b.off)
}

// Alloc returns a payload of at least size bytes, 16-byte aligned, with
// its header initialized to Allocated/color/typeTag. It expands the
// heap (mapping a new chunk) if no free block is large enough.
func (h *Heap) Alloc(size int, color Color, typeTag uint8) (Block, error) {
	size = round(size)
	if size < 8 {
		size = 8 // must hold the overlapped free-list next pointer
	}
	b, ok := h.flAlloc(size)
	if !ok {
		nb, err := h.expandHeap(size)
		if err != nil {
			return Block{}, err
		}
		h.flFree(nb)
		b, ok = h.flAlloc(size)
		if !ok {
			return Block{}, fmt.Errorf("memheap: allocation of %d bytes failed after heap expansion", size)
		}
	}
	writeMagic(b.hdr(), MagicAllocated)
	writeColor(b.hdr(), color)
	writeTypeTag(b.hdr(), typeTag)
	return b, nil
}

// flAlloc implements the first-fit-with-carving search over the free
// list described in spec.md's allocator algorithm.
func (h *Heap) flAlloc(size int) (Block, bool) {
	head, ok := h.freeHead()
	if !ok {
		return Block{}, false
	}
	if head.Size() >= size && head.Size() <= size+headerSize {
		nc, noff, nok := head.freeNext()
		if nok {
			h.setFreeHead(h.blockFor(nc, noff), true)
		} else {
			h.setFreeHead(Block{}, false)
		}
		return head, true
	}
	if head.Size() > size+headerSize {
		return h.carve(head, size), true
	}

	prev := head
	for {
		chunkIdx, off, ok := prev.freeNext()
		if !ok {
			return Block{}, false
		}
		cur := h.blockFor(chunkIdx, off)
		if cur.Size() >= size && cur.Size() <= size+headerSize {
			cc, co, cok := cur.freeNext()
			if cok {
				prev.setFreeNext(cc, co)
			} else {
				prev.clearFreeNext()
			}
			return cur, true
		}
		if cur.Size() > size+headerSize {
			return h.carve(cur, size), true
		}
		prev = cur
	}
}

// carve shrinks free block head by (size+headerSize) and returns a
// fresh block of exactly size bytes taken from its high end, as
// spec.md's algorithm step 4 describes.
func (h *Heap) carve(head Block, size int) Block {
	newFreeSize := head.Size() - (size + headerSize)
	writeSize(head.hdr(), newFreeSize)
	carved := head.chunk.blockAt(head.off + headerSize + newFreeSize)
	writeSize(carved.hdr(), size)
	return carved
}

// Free returns blk to the allocator, coalescing with address-adjacent
// free neighbors in the same chunk.
func (h *Heap) Free(blk Block) {
	writeMagic(blk.hdr(), MagicFree)
	h.flFree(blk)
}

func (h *Heap) flFree(blk Block) {
	head, ok := h.freeHead()
	if !ok {
		blk.clearFreeNext()
		h.setFreeHead(blk, true)
		return
	}

	var prev Block
	havePrev := false
	cur := head
	for {
		if sameChunk(blk, cur) && blk.next().off == cur.off {
			// blk immediately precedes cur: absorb cur into blk.
			cc, co, cok := cur.freeNext()
			newSize := blk.Size() + headerSize + cur.Size()
			writeSize(blk.hdr(), newSize)
			if cok {
				blk.setFreeNext(cc, co)
			} else {
				blk.clearFreeNext()
			}
			if havePrev {
				prev.setFreeNext(blk.ChunkIndex(), uint32(blk.off))
			} else {
				h.setFreeHead(blk, true)
			}
			cur = blk
			if cok {
				cur = h.blockFor(cc, co)
				continue
			}
			return
		}

		if sameChunk(cur, blk) && cur.next().off == blk.off {
			// cur immediately precedes blk: absorb blk into cur.
			newSize := cur.Size() + headerSize + blk.Size()
			writeSize(cur.hdr(), newSize)
			blk = cur
			cc, co, cok := cur.freeNext()
			if cok {
				cur = h.blockFor(cc, co)
				continue
			}
			return
		}

		if havePrev && addrKey(prev) < addrKey(blk) && addrKey(cur) > addrKey(blk) {
			blk.setFreeNext(cur.ChunkIndex(), uint32(cur.off))
			prev.setFreeNext(blk.ChunkIndex(), uint32(blk.off))
			return
		}
		if !havePrev && addrKey(cur) > addrKey(blk) {
			blk.setFreeNext(cur.ChunkIndex(), uint32(cur.off))
			h.setFreeHead(blk, true)
			return
		}

		nc, no, ok := cur.freeNext()
		if !ok {
			blk.clearFreeNext()
			cur.setFreeNext(blk.ChunkIndex(), uint32(blk.off))
			return
		}
		prev = cur
		havePrev = true
		cur = h.blockFor(nc, no)
	}
}

func sameChunk(a, b Block) bool { return a.ChunkIndex() == b.ChunkIndex() }

// expandHeap maps a new chunk sized to satisfy request plus headroom,
// per spec.md's heap-expansion formula.
func (h *Heap) expandHeap(request int) (Block, error) {
	over := request + (request*h.cfg.OverPercent)/100 + 2*headerSize
	if over < h.cfg.MinExpansion {
		over = h.cfg.MinExpansion
	}
	idx := uint32(len(h.chunks))
	c, err := mmapChunk(over, idx)
	if err != nil {
		return Block{}, fmt.Errorf("memheap: expand heap: %w", err)
	}
	h.chunks = append(h.chunks, c)
	return c.formatFresh(), nil
}

// Bytes returns the payload bytes at ref, the actual addressable
// memory backing a heap cell. Callers must not retain the slice past
// the next GC sweep that could free the block.
func (h *Heap) Bytes(chunkIdx, offset uint32) []byte {
	c := h.chunks[chunkIdx]
	return c.mem[offset:]
}

// Block returns the block whose payload begins at (chunkIdx, offset).
func (h *Heap) Block(chunkIdx, offset uint32) Block {
	return h.chunks[chunkIdx].blockAt(int(offset) - headerSize)
}

// Walker is invoked once per block (free or allocated) encountered
// while walking the heap linearly, in (chunk, offset) order. It returns
// false to stop the walk early.
type Walker func(b Block) bool

// Walk visits blocks starting at (startChunk, startOff) and continuing
// until the Walker returns false or the heap is exhausted. It crosses
// chunk boundaries at EndOfChunk sentinels, matching the GC slice's
// linear sweep.
func (h *Heap) Walk(startChunk uint32, startOff int, fn Walker) {
	if int(startChunk) >= len(h.chunks) {
		return
	}
	ci := startChunk
	off := startOff
	for {
		c := h.chunks[ci]
		b := c.blockAt(off)
		if b.Magic() == MagicEnd {
			ci++
			if int(ci) >= len(h.chunks) {
				return
			}
			off = 0
			continue
		}
		if !fn(b) {
			return
		}
		off = b.off + headerSize + b.Size()
	}
}

// StepBlock returns the block at (chunkIdx, headerOff) together with the
// cursor position of the block that follows it, crossing chunk
// boundaries at EndOfChunk sentinels. done is true when the heap has no
// block at that cursor (either no chunks exist yet, or the cursor has
// walked off the end of the last chunk); callers should treat done as
// "nothing to visit right now", not an error.
func (h *Heap) StepBlock(chunkIdx uint32, headerOff int) (b Block, nextChunk uint32, nextOff int, done bool) {
	for {
		if int(chunkIdx) >= len(h.chunks) {
			return Block{}, chunkIdx, headerOff, true
		}
		c := h.chunks[chunkIdx]
		blk := c.blockAt(headerOff)
		if blk.Magic() == MagicEnd {
			chunkIdx++
			headerOff = 0
			continue
		}
		return blk, chunkIdx, blk.off + headerSize + blk.Size(), false
	}
}

// NumChunks reports how many chunks have been mapped so far.
func (h *Heap) NumChunks() int { return len(h.chunks) }

// Shrink hands wholly-free chunks back to the OS without unmapping
// them: a chunk whose first block is Free and spans the entire usable
// region is decommitted in place. Returns how many chunks were
// decommitted.
func (h *Heap) Shrink() (int, error) {
	n := 0
	for _, c := range h.chunks {
		b := c.firstBlock()
		if b.Magic() != MagicFree {
			continue
		}
		if b.next().Magic() != MagicEnd {
			continue
		}
		if err := c.decommit(); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Close unmaps every chunk. The heap must not be used afterward.
func (h *Heap) Close() error {
	var firstErr error
	for _, c := range h.chunks {
		if err := c.unmap(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	h.chunks = nil
	return firstErr
}
