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

import "golang.org/x/sys/unix"

// chunk is a contiguous, page-aligned region obtained from the OS via
// mmap. Chunks are never moved or resized; growth always allocates a
// new chunk and links it in.
type chunk struct {
	mem   []byte
	index uint32
}

// mmapChunk reserves size bytes (rounded up to the system page size) of
// anonymous, private memory, matching the "page-aligned mmap" allocation
// the spec calls for (vm/malloc.go in the teacher repo reserves a single
// large arena this way at startup; we instead mmap growable chunks on
// demand as expand_heap requires).
func mmapChunk(size int, index uint32) (*chunk, error) {
	pageSize := unix.Getpagesize()
	size = (size + pageSize - 1) &^ (pageSize - 1)
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, err
	}
	return &chunk{mem: mem, index: index}, nil
}

func (c *chunk) unmap() error {
	return unix.Munmap(c.mem)
}

// decommit returns the chunk's pages to the OS while keeping the
// mapping (and the block formatting) intact; the pages fault back in
// zero-filled-on-write if the chunk is ever carved up again, so this
// is only called when the chunk is one whole free block.
func (c *chunk) decommit() error {
	page := unix.Getpagesize()
	// keep the first page (free-block header + overlapped next pointer)
	// and the last page (EndOfChunk sentinel) resident
	lo := page
	hi := (len(c.mem) - 2*headerSize) &^ (page - 1)
	if hi <= lo {
		return nil
	}
	return unix.Madvise(c.mem[lo:hi], unix.MADV_DONTNEED)
}

// firstBlock returns the chunk's initial (whole-chunk) free block.
func (c *chunk) firstBlock() Block { return Block{chunk: c, off: 0} }

// formatFresh lays out a brand-new chunk as one big Free block followed
// by an EndOfChunk sentinel, per expand_heap's contract.
func (c *chunk) formatFresh() Block {
	total := len(c.mem)
	payload := total - 2*headerSize
	b := Block{chunk: c, off: 0}
	writeMagic(b.hdr(), MagicFree)
	writeColor(b.hdr(), 0)
	writeSize(b.hdr(), payload)
	b.clearFreeNext()

	end := Block{chunk: c, off: headerSize + payload}
	writeMagic(end.hdr(), MagicEnd)
	writeSize(end.hdr(), 0)
	return b
}

func (c *chunk) blockAt(headerOff int) Block { return Block{chunk: c, off: headerOff} }
