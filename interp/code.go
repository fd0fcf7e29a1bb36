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
	"strings"

	"golang.org/x/exp/slices"

	"github.com/qyqx/arcueid/value"
)

// A code object is a three-slot heap cell: the bytecode vector (one
// fixnum-encoded word per opcode or operand), the literals vector, and
// the source map (offset -> line hash table, or nil when the compiler
// was not instrumenting).
const (
	codeBytecodeSlot = 0
	codeLitsSlot     = 1
	codeSrcSlot      = 2
)

// cctx is a compilation context. Unlike the code object it produces, a
// cctx lives on the Go side: the compiler runs to completion between
// scheduler passes, so no GC slice can run while one is live, and its
// vectors grow by ordinary append doubling.
type cctx struct {
	code []value.Value // instruction stream under construction
	lits []value.Value // literal pool, ordered by first reference
	src  map[int]int   // bytecode offset -> source line, nil when off
	line int           // current source line being compiled
}

func newCctx() *cctx { return &cctx{} }

// instrument turns on source-map recording.
func (ctx *cctx) instrument() { ctx.src = make(map[int]int) }

func (ctx *cctx) lninfo() {
	if ctx.src != nil && ctx.line > 0 {
		ctx.src[len(ctx.code)] = ctx.line
	}
}

// emit appends a no-operand instruction.
func (ctx *cctx) emit(op opcode) {
	ctx.lninfo()
	ctx.code = append(ctx.code, value.Fixnum(int64(op)))
}

// emit1 appends a one-operand instruction. Operands are stored as
// whole value words, so ldi can embed any immediate directly.
func (ctx *cctx) emit1(op opcode, arg value.Value) {
	ctx.lninfo()
	ctx.code = append(ctx.code, value.Fixnum(int64(op)), arg)
}

// emit2 appends a two-operand instruction.
func (ctx *cctx) emit2(op opcode, arg1, arg2 value.Value) {
	ctx.lninfo()
	ctx.code = append(ctx.code, value.Fixnum(int64(op)), arg1, arg2)
}

// here is the current fill pointer, the target of jump patching.
func (ctx *cctx) here() int { return len(ctx.code) }

// patch overwrites the operand at off with a relative displacement
// from the instruction at instaddr to the current fill pointer.
func (ctx *cctx) patch(instaddr, off int) {
	ctx.code[off] = value.Fixnum(int64(ctx.here() - instaddr))
}

// literal appends lit to the pool and returns its index.
func (ctx *cctx) literal(lit value.Value) int {
	ctx.lits = append(ctx.lits, lit)
	return len(ctx.lits) - 1
}

// findLiteral returns the pool index of a literal iso-equal to lit,
// adding it when absent, so equal constants share one slot.
func (ic *Interp) findLiteral(ctx *cctx, lit value.Value) int {
	if i := slices.IndexFunc(ctx.lits, func(x value.Value) bool {
		return ic.iso(x, lit)
	}); i >= 0 {
		return i
	}
	return ctx.literal(lit)
}

// cctx2code freezes a compilation context into a heap code object.
func (ic *Interp) cctx2code(ctx *cctx) value.Value {
	bc := ic.vecFromSlice(ctx.code)
	lits := ic.vecFromSlice(ctx.lits)
	src := value.Nil
	if ctx.src != nil {
		src = ic.mkTable(4)
		for off, line := range ctx.src {
			ic.tableInsert(src, value.Fixnum(int64(off)), value.Fixnum(int64(line)))
		}
	}
	code := ic.alloc(3*8, value.TCode)
	ic.setSlot(code, codeBytecodeSlot, bc)
	ic.setSlot(code, codeLitsSlot, lits)
	ic.setSlot(code, codeSrcSlot, src)
	return code
}

// codeLiteral fetches literal idx of a code object.
func (ic *Interp) codeLiteral(code value.Value, idx int) value.Value {
	return ic.vecRef(ic.slot(code, codeLitsSlot), idx)
}

// codeLine maps a bytecode offset back to a source line, or 0.
func (ic *Interp) codeLine(code value.Value, off int) int {
	src := ic.slot(code, codeSrcSlot)
	if src == value.Nil {
		return 0
	}
	l := ic.tableLookup(src, value.Fixnum(int64(off)))
	if l == value.Unbound {
		return 0
	}
	return int(l.Int())
}

// mkClosure pairs a code object with a captured environment chain.
func (ic *Interp) mkClosure(code, env value.Value) value.Value {
	v := ic.alloc(2*8, value.TClosure)
	ic.setSlot(v, 0, code)
	ic.setSlot(v, 1, env)
	return v
}

func (ic *Interp) closCode(v value.Value) value.Value { return ic.slot(v, 0) }
func (ic *Interp) closEnv(v value.Value) value.Value  { return ic.slot(v, 1) }

// disasm renders a code object's instruction stream for diagnostics.
func (ic *Interp) disasm(code value.Value) string {
	bc := ic.slot(code, codeBytecodeSlot)
	n := ic.vecLen(bc)
	var sb strings.Builder
	for i := 0; i < n; {
		op := opcode(ic.vecRef(bc, i).Int())
		sb.WriteString(op.String())
		na := 0
		if op < opCount {
			na = opinfoTable[op].nargs
		}
		for j := 1; j <= na; j++ {
			sb.WriteByte(' ')
			sb.WriteString(ic.vecRef(bc, i+j).String())
		}
		sb.WriteByte('\n')
		i += 1 + na
	}
	return sb.String()
}
