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
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// opcode is the VM instruction set. The enumeration is part of the
// compiled-code wire format; do not renumber without bumping the wire
// version. The opcode-table fingerprint below turns an accidental
// renumbering into a load-time error rather than silent corruption.
type opcode uint8

const (
	opNop opcode = iota
	opLdi
	opLdl
	opLdg
	opStg
	opLde
	opSte
	opTrue
	opNil
	opHlt
	opPush
	opPop
	opDup
	opJmp
	opJt
	opJf
	opCont
	opEnv
	opApply
	opRet
	opCls
	opMvarg
	opMvoarg
	opMvrarg
	opAdd
	opSub
	opMul
	opDiv
	opCons
	opCar
	opCdr
	opIs

	opCount
)

// opinfo describes one opcode's static properties: its mnemonic and
// how many operand words follow it in the instruction stream.
type opinfo struct {
	text  string
	nargs int
}

var opinfoTable = [opCount]opinfo{
	opNop:    {"nop", 0},
	opLdi:    {"ldi", 1},
	opLdl:    {"ldl", 1},
	opLdg:    {"ldg", 1},
	opStg:    {"stg", 1},
	opLde:    {"lde", 2},
	opSte:    {"ste", 2},
	opTrue:   {"true", 0},
	opNil:    {"nil", 0},
	opHlt:    {"hlt", 0},
	opPush:   {"push", 0},
	opPop:    {"pop", 0},
	opDup:    {"dup", 0},
	opJmp:    {"jmp", 1},
	opJt:     {"jt", 1},
	opJf:     {"jf", 1},
	opCont:   {"cont", 1},
	opEnv:    {"env", 1},
	opApply:  {"apply", 1},
	opRet:    {"ret", 0},
	opCls:    {"cls", 0},
	opMvarg:  {"mvarg", 1},
	opMvoarg: {"mvoarg", 1},
	opMvrarg: {"mvrarg", 1},
	opAdd:    {"add", 0},
	opSub:    {"sub", 0},
	opMul:    {"mul", 0},
	opDiv:    {"div", 0},
	opCons:   {"cons", 0},
	opCar:    {"car", 0},
	opCdr:    {"cdr", 0},
	opIs:     {"is", 0},
}

func (o opcode) String() string {
	if o < opCount {
		return opinfoTable[o].text
	}
	return fmt.Sprintf("op%d", int(o))
}

// opsFingerprint digests the opcode numbering and operand counts.
// Compiled code carries it in its wire header; a mismatch at load time
// means the VM's instruction set changed underneath the compiler.
func opsFingerprint() [blake2b.Size256]byte {
	h, _ := blake2b.New256(nil)
	for op := opcode(0); op < opCount; op++ {
		fmt.Fprintf(h, "%d:%s/%d;", int(op), opinfoTable[op].text, opinfoTable[op].nargs)
	}
	var out [blake2b.Size256]byte
	h.Sum(out[:0])
	return out
}
