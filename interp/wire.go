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
	"fmt"
	"math/big"

	"github.com/klauspost/compress/zstd"

	"github.com/qyqx/arcueid/value"
)

func newBigFromBytes(b []byte, neg bool) *big.Int {
	z := new(big.Int).SetBytes(b)
	if neg {
		z.Neg(z)
	}
	return z
}

// Compiled-code wire format: a fixed header carrying the opcode-table
// fingerprint and the producing instance's ID, followed by a
// zstd-compressed body holding the instruction stream, the literal
// pool (recursively, for nested code objects), and the source map.
// Loading against a VM whose opcode table hashes differently is
// refused outright.

var wireMagic = [4]byte{'A', 'R', 'C', 'O'}

const wireVersion = 1

const (
	wtNil = iota
	wtTrue
	wtFixnum
	wtSymbol
	wtString
	wtChar
	wtFlonum
	wtComplex
	wtBignum
	wtRational
	wtCode
	wtCons
)

// MarshalCode serializes a code object.
func (ic *Interp) MarshalCode(code value.Value) ([]byte, error) {
	if !ic.is(code, value.TCode) {
		return nil, fmt.Errorf("marshal: not a code object")
	}
	var body []byte
	body = ic.marshalCodeBody(body, code)

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	compressed := enc.EncodeAll(body, nil)

	fp := opsFingerprint()
	out := make([]byte, 0, len(compressed)+64)
	out = append(out, wireMagic[:]...)
	out = append(out, wireVersion)
	out = append(out, fp[:]...)
	out = append(out, ic.ID[:]...)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(compressed)))
	out = append(out, compressed...)
	return out, nil
}

func (ic *Interp) marshalCodeBody(dst []byte, code value.Value) []byte {
	bc := ic.slot(code, codeBytecodeSlot)
	n := ic.vecLen(bc)
	dst = binary.AppendUvarint(dst, uint64(n))
	for i := 0; i < n; i++ {
		dst = binary.AppendUvarint(dst, uint64(ic.slot(bc, i+1)))
	}
	lits := ic.slot(code, codeLitsSlot)
	nl := ic.vecLen(lits)
	dst = binary.AppendUvarint(dst, uint64(nl))
	for i := 0; i < nl; i++ {
		dst = ic.marshalValue(dst, ic.vecRef(lits, i))
	}
	src := ic.slot(code, codeSrcSlot)
	if src == value.Nil {
		dst = binary.AppendUvarint(dst, 0)
	} else {
		dst = binary.AppendUvarint(dst, uint64(ic.tableCount(src)))
		ic.tableEach(src, func(k, v value.Value) {
			dst = binary.AppendUvarint(dst, uint64(k.Int()))
			dst = binary.AppendUvarint(dst, uint64(v.Int()))
		})
	}
	return dst
}

// marshalValue serializes one literal. Only the types the compiler
// actually places in a literal pool are representable.
func (ic *Interp) marshalValue(dst []byte, v value.Value) []byte {
	switch value.TagOf(v) {
	case value.TagNil:
		return append(dst, wtNil)
	case value.TagTrue:
		return append(dst, wtTrue)
	case value.TagFixnum:
		dst = append(dst, wtFixnum)
		return binary.AppendVarint(dst, v.Int())
	case value.TagSymbol:
		dst = append(dst, wtSymbol)
		return appendWireString(dst, ic.SymName(v))
	case value.TagHeap:
		switch ic.typeOf(v) {
		case value.TString:
			dst = append(dst, wtString)
			return appendWireString(dst, ic.strGo(v))
		case value.TChar:
			dst = append(dst, wtChar)
			return binary.AppendVarint(dst, int64(ic.charOf(v)))
		case value.TFlonum:
			dst = append(dst, wtFlonum)
			return binary.LittleEndian.AppendUint64(dst, uint64(ic.slot(v, 0)))
		case value.TComplex:
			dst = append(dst, wtComplex)
			dst = binary.LittleEndian.AppendUint64(dst, uint64(ic.slot(v, 0)))
			return binary.LittleEndian.AppendUint64(dst, uint64(ic.slot(v, 1)))
		case value.TBignum:
			dst = append(dst, wtBignum)
			b := ic.bigOf(v)
			sign := byte(0)
			if b.Sign() < 0 {
				sign = 1
			}
			dst = append(dst, sign)
			return appendWireBytes(dst, b.Bytes())
		case value.TRational:
			dst = append(dst, wtRational)
			r := ic.ratOf(v)
			sign := byte(0)
			if r.Sign() < 0 {
				sign = 1
			}
			dst = append(dst, sign)
			dst = appendWireBytes(dst, r.Num().Bytes())
			return appendWireBytes(dst, r.Denom().Bytes())
		case value.TCode:
			dst = append(dst, wtCode)
			return ic.marshalCodeBody(dst, v)
		case value.TCons:
			dst = append(dst, wtCons)
			dst = ic.marshalValue(dst, ic.car(v))
			return ic.marshalValue(dst, ic.cdr(v))
		}
	}
	panic(&Error{Kind: ErrType, Msg: fmt.Sprintf("marshal: unsupported literal %s", ic.typeName(v))})
}

func appendWireString(dst []byte, s string) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(s)))
	return append(dst, s...)
}

func appendWireBytes(dst, b []byte) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(b)))
	return append(dst, b...)
}

// UnmarshalCode loads a serialized code object, validating the header
// against this VM's opcode table.
func (ic *Interp) UnmarshalCode(data []byte) (value.Value, error) {
	if len(data) < 4+1+32+16+4 {
		return value.Nil, fmt.Errorf("unmarshal: truncated header")
	}
	if [4]byte(data[:4]) != wireMagic {
		return value.Nil, fmt.Errorf("unmarshal: bad magic")
	}
	if data[4] != wireVersion {
		return value.Nil, fmt.Errorf("unmarshal: wire version %d, want %d", data[4], wireVersion)
	}
	fp := opsFingerprint()
	if string(data[5:37]) != string(fp[:]) {
		return value.Nil, fmt.Errorf("unmarshal: opcode table fingerprint mismatch")
	}
	clen := binary.LittleEndian.Uint32(data[53:57])
	if int(clen) != len(data)-57 {
		return value.Nil, fmt.Errorf("unmarshal: body length mismatch")
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return value.Nil, err
	}
	defer dec.Close()
	body, err := dec.DecodeAll(data[57:], nil)
	if err != nil {
		return value.Nil, fmt.Errorf("unmarshal: %w", err)
	}
	r := &wireReader{buf: body}
	code := ic.unmarshalCodeBody(r)
	if r.err != nil {
		return value.Nil, r.err
	}
	return code, nil
}

type wireReader struct {
	buf []byte
	pos int
	err error
}

func (r *wireReader) fail(f string, args ...any) {
	if r.err == nil {
		r.err = fmt.Errorf(f, args...)
	}
}

func (r *wireReader) uvarint() uint64 {
	v, n := binary.Uvarint(r.buf[r.pos:])
	if n <= 0 {
		r.fail("unmarshal: bad uvarint at %d", r.pos)
		return 0
	}
	r.pos += n
	return v
}

func (r *wireReader) varint() int64 {
	v, n := binary.Varint(r.buf[r.pos:])
	if n <= 0 {
		r.fail("unmarshal: bad varint at %d", r.pos)
		return 0
	}
	r.pos += n
	return v
}

func (r *wireReader) byte() byte {
	if r.pos >= len(r.buf) {
		r.fail("unmarshal: truncated at %d", r.pos)
		return 0
	}
	b := r.buf[r.pos]
	r.pos++
	return b
}

func (r *wireReader) bytes(n int) []byte {
	if r.pos+n > len(r.buf) {
		r.fail("unmarshal: truncated at %d", r.pos)
		return nil
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *wireReader) str() string {
	n := int(r.uvarint())
	return string(r.bytes(n))
}

func (ic *Interp) unmarshalCodeBody(r *wireReader) value.Value {
	n := int(r.uvarint())
	bc := ic.mkVector(n, value.Nil)
	for i := 0; i < n; i++ {
		ic.setSlot(bc, i+1, value.Value(r.uvarint()))
	}
	nl := int(r.uvarint())
	lits := ic.mkVector(nl, value.Nil)
	for i := 0; i < nl; i++ {
		ic.vecSet(lits, i, ic.unmarshalValue(r))
	}
	src := value.Nil
	if ns := int(r.uvarint()); ns > 0 {
		src = ic.mkTable(4)
		for i := 0; i < ns; i++ {
			off := r.uvarint()
			line := r.uvarint()
			ic.tableInsert(src, value.Fixnum(int64(off)), value.Fixnum(int64(line)))
		}
	}
	code := ic.alloc(3*8, value.TCode)
	ic.setSlot(code, codeBytecodeSlot, bc)
	ic.setSlot(code, codeLitsSlot, lits)
	ic.setSlot(code, codeSrcSlot, src)
	return code
}

func (ic *Interp) unmarshalValue(r *wireReader) value.Value {
	switch tag := r.byte(); tag {
	case wtNil:
		return value.Nil
	case wtTrue:
		return value.True
	case wtFixnum:
		return value.Fixnum(r.varint())
	case wtSymbol:
		return ic.Intern(r.str())
	case wtString:
		return ic.mkStringStr(r.str())
	case wtChar:
		return ic.mkChar(rune(r.varint()))
	case wtFlonum:
		b := r.bytes(8)
		if b == nil {
			return value.Nil
		}
		v := ic.alloc(8, value.TFlonum)
		ic.setSlot(v, 0, value.Value(binary.LittleEndian.Uint64(b)))
		return v
	case wtComplex:
		b := r.bytes(16)
		if b == nil {
			return value.Nil
		}
		v := ic.alloc(2*8, value.TComplex)
		ic.setSlot(v, 0, value.Value(binary.LittleEndian.Uint64(b[:8])))
		ic.setSlot(v, 1, value.Value(binary.LittleEndian.Uint64(b[8:])))
		return v
	case wtBignum:
		neg := r.byte() == 1
		z := newBigFromBytes(r.bytes(int(r.uvarint())), neg)
		return ic.mkBignum(z)
	case wtRational:
		neg := r.byte() == 1
		num := newBigFromBytes(r.bytes(int(r.uvarint())), neg)
		den := newBigFromBytes(r.bytes(int(r.uvarint())), false)
		return ic.mkRational(new(big.Rat).SetFrac(num, den))
	case wtCode:
		return ic.unmarshalCodeBody(r)
	case wtCons:
		car := ic.unmarshalValue(r)
		cdr := ic.unmarshalValue(r)
		return ic.cons(car, cdr)
	default:
		r.fail("unmarshal: unknown literal tag %d", tag)
		return value.Nil
	}
}
