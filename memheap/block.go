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

// Package memheap implements Arcueid's free-list heap allocator: a
// collection of mmap'd chunks, each holding contiguously laid out
// blocks, plus an address-ordered free list that coalesces neighbors.
// It knows nothing about Arc values; the gc package layers tri-color
// bookkeeping and type dispatch on top of the raw blocks it hands out.
package memheap

import "encoding/binary"

// Magic identifies a block's allocation state.
type Magic uint8

const (
	MagicFree Magic = iota
	MagicAllocated
	MagicEnd // sentinel marking the end of a chunk
)

// Color is the tri-color (plus propagator) mark used by the incremental
// collector. memheap itself never interprets colors beyond storing and
// returning them; gc.GC owns their meaning.
type Color uint8

// Align is the allocation granularity; every payload address is a
// multiple of Align bytes from the start of its chunk (chunks
// themselves are page-aligned), satisfying the "16-byte alignment"
// invariant the spec requires.
const Align = 16

// headerSize is fixed so that header+rounded-payload stays a multiple
// of Align, by induction from a 16-aligned chunk start.
const headerSize = 16

// blockHeader is the fixed-layout prefix of every block:
//
//	byte 0:    magic
//	byte 1:    color
//	byte 2:    heap type tag (meaningful only while Allocated)
//	byte 3:    reserved
//	bytes 4-7: payload size in bytes (rounded to Align)
//	bytes 8-15: reserved (padding out to headerSize)
//
// When a block is free, the free-list's "next" pointer is written into
// the first 8 bytes of the *payload*, overlapping it exactly as the
// spec's free-list description calls for.
type blockHeader struct{}

func round(size int) int {
	return (size + Align - 1) &^ (Align - 1)
}

func readMagic(b []byte) Magic       { return Magic(b[0]) }
func writeMagic(b []byte, m Magic)   { b[0] = byte(m) }
func readColor(b []byte) Color       { return Color(b[1]) }
func writeColor(b []byte, c Color)   { b[1] = byte(c) }
func readTypeTag(b []byte) uint8     { return b[2] }
func writeTypeTag(b []byte, t uint8) { b[2] = t }
func readSize(b []byte) int          { return int(binary.LittleEndian.Uint32(b[4:8])) }
func writeSize(b []byte, n int)      { binary.LittleEndian.PutUint32(b[4:8], uint32(n)) }

// Block is a lightweight handle to a block header + payload living
// inside a chunk's backing byte slice. It is only valid for as long as
// the owning chunk is not unmapped.
type Block struct {
	chunk *chunk
	off   int // offset of the header within chunk.mem
}

func (b Block) hdr() []byte { return b.chunk.mem[b.off : b.off+headerSize] }

// Magic, Color, Size and TypeTag read the block's header fields.
func (b Block) Magic() Magic       { return readMagic(b.hdr()) }
func (b Block) Color() Color       { return readColor(b.hdr()) }
func (b Block) Size() int          { return readSize(b.hdr()) }
func (b Block) TypeTag() uint8     { return readTypeTag(b.hdr()) }
func (b Block) SetColor(c Color)   { writeColor(b.hdr(), c) }
func (b Block) SetTypeTag(t uint8) { writeTypeTag(b.hdr(), t) }

// Payload returns the usable bytes of the block (excluding the header).
func (b Block) Payload() []byte {
	start := b.off + headerSize
	return b.chunk.mem[start : start+b.Size()]
}

// ChunkIndex and Offset identify the block's location for Value Ref
// encoding; Offset is the *payload* offset, matching what Alloc returns.
func (b Block) ChunkIndex() uint32 { return b.chunk.index }
func (b Block) Offset() uint32     { return uint32(b.off + headerSize) }

func (b Block) next() Block {
	return Block{chunk: b.chunk, off: b.off + headerSize + b.Size()}
}

// freeListEndChunk is the sentinel chunk index stored in a free block's
// overlapped next pointer meaning "last block in the free list".
const freeListEndChunk = ^uint32(0)

// freeNext reads the (chunk, offset) pair overlapping the first 8 bytes
// of payload, written there only while the block is free.
func (b Block) freeNext() (chunkIdx, off uint32, ok bool) {
	p := b.Payload()
	chunkIdx = binary.LittleEndian.Uint32(p[0:4])
	off = binary.LittleEndian.Uint32(p[4:8])
	return chunkIdx, off, chunkIdx != freeListEndChunk
}

func (b Block) setFreeNext(chunkIdx, off uint32) {
	p := b.Payload()
	binary.LittleEndian.PutUint32(p[0:4], chunkIdx)
	binary.LittleEndian.PutUint32(p[4:8], off)
}

func (b Block) clearFreeNext() {
	b.setFreeNext(freeListEndChunk, 0)
}
