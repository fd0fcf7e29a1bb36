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

import "github.com/qyqx/arcueid/value"

// The compiler: s-expressions to bytecode. Compilation environments
// are lists of hash tables, one per lexical frame, mapping names to
// slot indices; the runtime environment frames the compiled code
// builds with env/mvarg line up with them index for index.

// Compile compiles one top-level expression into a code object that
// ends with hlt. Spawning a closure over it runs the expression.
func (ic *Interp) Compile(expr value.Value) (code value.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(*Error); ok {
				code, err = value.Nil, e
				return
			}
			panic(r)
		}
	}()
	ctx := newCctx()
	ic.compile(expr, ctx, value.Nil, false)
	ctx.emit(opHlt)
	return ic.cctx2code(ctx), nil
}

// macex expands a macro application at the head of e until the head is
// no longer a macro. Only global macro bindings are expanded.
func (ic *Interp) macex(e value.Value) value.Value {
	for ic.consp(e) {
		op := ic.car(e)
		if value.TagOf(op) != value.TagSymbol {
			return e
		}
		b := ic.tableLookup(ic.genv, op)
		if !ic.is(b, value.TTagged) || ic.slot(b, 0) != ic.sym.mac {
			return e
		}
		e = ic.Apply(ic.slot(b, 1), ic.listSlice(ic.cdr(e))...)
	}
	return e
}

// compile dispatches on the shape of expr. cont set means "emit a ret
// after the value is in the value register" -- the tail of a function
// body.
func (ic *Interp) compile(expr value.Value, ctx *cctx, env value.Value, cont bool) {
	expr = ic.macex(expr)
	switch value.TagOf(expr) {
	case value.TagSymbol:
		switch expr {
		case ic.sym.nil_:
			ic.compileLiteral(value.Nil, ctx, cont)
		case ic.sym.t:
			ic.compileLiteral(value.True, ctx, cont)
		default:
			ic.compileIdent(expr, ctx, env, cont)
		}
	case value.TagHeap:
		if ic.consp(expr) {
			ic.compileList(expr, ctx, env, cont)
			return
		}
		ic.compileLiteral(expr, ctx, cont)
	default:
		ic.compileLiteral(expr, ctx, cont)
	}
}

func (ic *Interp) compileContinuation(ctx *cctx, cont bool) {
	if cont {
		ctx.emit(opRet)
	}
}

func (ic *Interp) compileLiteral(lit value.Value, ctx *cctx, cont bool) {
	switch {
	case lit == value.Nil:
		ctx.emit(opNil)
	case lit == value.True:
		ctx.emit(opTrue)
	case value.TagOf(lit) == value.TagFixnum:
		ctx.emit1(opLdi, lit)
	default:
		ctx.emit1(opLdl, value.Fixnum(int64(ic.findLiteral(ctx, lit))))
	}
	ic.compileContinuation(ctx, cont)
}

// findVar resolves ident against the compile-time environment chain.
func (ic *Interp) findVar(ident, env value.Value) (level, idx int, ok bool) {
	for lvl := 0; env != value.Nil; env, lvl = ic.cdr(env), lvl+1 {
		if v := ic.tableLookup(ic.car(env), ident); v != value.Unbound {
			return lvl, int(v.Int()), true
		}
	}
	return 0, 0, false
}

func (ic *Interp) compileIdent(ident value.Value, ctx *cctx, env value.Value, cont bool) {
	if lvl, idx, ok := ic.findVar(ident, env); ok {
		ctx.emit2(opLde, value.Fixnum(int64(lvl)), value.Fixnum(int64(idx)))
	} else {
		ctx.emit1(opLdg, value.Fixnum(int64(ic.findLiteral(ctx, ident))))
	}
	ic.compileContinuation(ctx, cont)
}

func (ic *Interp) compileList(expr value.Value, ctx *cctx, env value.Value, cont bool) {
	head := ic.car(expr)
	if value.TagOf(head) == value.TagSymbol &&
		ic.tableLookup(ic.splforms, head) != value.Unbound {
		switch head {
		case ic.sym.if_:
			ic.compileIf(ic.cdr(expr), ctx, env, cont)
		case ic.sym.fn:
			ic.compileFn(ic.cdr(expr), ctx, env, cont)
		case ic.sym.quote:
			ic.compileQuote(ic.cdr(expr), ctx, cont)
		case ic.sym.qquote:
			ic.compileQuasiquote(ic.cdr(expr), ctx, env, cont)
		case ic.sym.assign:
			ic.compileAssign(ic.cdr(expr), ctx, env, cont)
		}
		return
	}
	ic.compileApply(expr, ctx, env, cont)
}

// compileIf lays out condition / jf / then / jmp / else chains,
// patching the jumps as the targets become known.
func (ic *Interp) compileIf(args value.Value, ctx *cctx, env value.Value, cont bool) {
	if args == value.Nil {
		// out of clauses: the value is nil
		ctx.emit(opNil)
		ic.compileContinuation(ctx, cont)
		return
	}
	if ic.cdr(args) == value.Nil {
		// a lone tail expression
		ic.compile(ic.car(args), ctx, env, false)
		ic.compileContinuation(ctx, cont)
		return
	}
	ic.compile(ic.car(args), ctx, env, false)
	jfaddr := ctx.here()
	ctx.emit1(opJf, value.Fixnum(0))
	ic.compile(ic.car(ic.cdr(args)), ctx, env, false)
	jmpaddr := ctx.here()
	ctx.emit1(opJmp, value.Fixnum(0))
	ctx.patch(jfaddr, jfaddr+1)
	ic.compileIf(ic.cdr(ic.cdr(args)), ctx, env, cont)
	ctx.patch(jmpaddr, jmpaddr+1)
	ic.compileContinuation(ctx, cont)
}

// addEnvFrame prepends a compile-time frame holding names to env.
func (ic *Interp) addEnvFrame(names, env value.Value) value.Value {
	frame := ic.mkTable(3)
	idx := 0
	for v := names; v != value.Nil; v = ic.cdr(v) {
		ic.tableInsert(frame, ic.car(v), value.Fixnum(int64(idx)))
		idx++
	}
	return ic.cons(frame, env)
}

// compileArgs emits the env/mvarg/mvoarg/mvrarg prologue for an
// argument list and returns the extended compile-time environment.
// Handles plain names, (o name [default]) optionals, a rest name after
// a dot, and a bare symbol as the whole list (all-rest).
func (ic *Interp) compileArgs(args value.Value, ctx *cctx, env value.Value) value.Value {
	if args == value.Nil {
		return env
	}
	if value.TagOf(args) == value.TagSymbol {
		ctx.emit1(opEnv, value.Fixnum(1))
		ctx.emit1(opMvrarg, value.Fixnum(0))
		return ic.addEnvFrame(ic.cons(args, value.Nil), env)
	}
	if !ic.consp(args) {
		ic.signal(ErrType, "fn: invalid argument list")
	}
	envaddr := ctx.here()
	ctx.emit1(opEnv, value.Fixnum(0))

	names := value.Nil
	nargs := 0
	type pendingDefault struct {
		slot int
		expr value.Value
	}
	var defaults []pendingDefault
	for {
		a := ic.car(args)
		switch {
		case value.TagOf(a) == value.TagSymbol:
			names = ic.cons(a, names)
			ctx.emit1(opMvarg, value.Fixnum(int64(nargs)))
			nargs++
		case ic.consp(a) && ic.car(a) == ic.sym.o:
			// optional: (o name [default])
			name := ic.car(ic.cdr(a))
			names = ic.cons(name, names)
			ctx.emit1(opMvoarg, value.Fixnum(int64(nargs)))
			if ic.cdr(ic.cdr(a)) != value.Nil {
				defaults = append(defaults, pendingDefault{nargs, ic.car(ic.cdr(ic.cdr(a)))})
			}
			nargs++
		default:
			ic.signal(ErrType, "fn: invalid argument form")
		}
		rest := ic.cdr(args)
		if value.TagOf(rest) == value.TagSymbol {
			names = ic.cons(rest, names)
			ctx.emit1(opMvrarg, value.Fixnum(int64(nargs)))
			nargs++
			break
		}
		if rest == value.Nil {
			break
		}
		args = rest
	}
	ctx.code[envaddr+1] = value.Fixnum(int64(nargs))
	nenv := ic.addEnvFrame(ic.nreverse(names), env)

	// default expressions run after the frame is live: a slot still nil
	// means the caller omitted the optional
	for _, d := range defaults {
		ctx.emit2(opLde, value.Fixnum(0), value.Fixnum(int64(d.slot)))
		jt := ctx.here()
		ctx.emit1(opJt, value.Fixnum(0))
		ic.compile(d.expr, ctx, nenv, false)
		ctx.emit2(opSte, value.Fixnum(0), value.Fixnum(int64(d.slot)))
		ctx.patch(jt, jt+1)
	}
	return nenv
}

// compileFn compiles (fn args body...) into a fresh code object and
// emits ldl+cls in the enclosing context to close over the current
// environment.
func (ic *Interp) compileFn(expr value.Value, ctx *cctx, env value.Value, cont bool) {
	args := ic.car(expr)
	body := ic.cdr(expr)
	nctx := newCctx()
	if ctx.src != nil {
		nctx.instrument()
		nctx.line = ctx.line
	}
	nenv := ic.compileArgs(args, nctx, env)
	if body == value.Nil {
		nctx.emit(opNil)
	}
	for ; body != value.Nil; body = ic.cdr(body) {
		ic.compile(ic.car(body), nctx, nenv, false)
	}
	nctx.emit(opRet)
	newcode := ic.cctx2code(nctx)
	ctx.emit1(opLdl, value.Fixnum(int64(ic.findLiteral(ctx, newcode))))
	ctx.emit(opCls)
	ic.compileContinuation(ctx, cont)
}

// compileQuote: quoted data is self-evaluating; the datum itself
// becomes a literal.
func (ic *Interp) compileQuote(args value.Value, ctx *cctx, cont bool) {
	ic.compileLiteral(ic.car(args), ctx, cont)
}

// compileQuasiquote rewrites the template into cons and + calls at
// depth 1, honoring nested quasiquotes, and compiles the rewrite.
func (ic *Interp) compileQuasiquote(args value.Value, ctx *cctx, env value.Value, cont bool) {
	ic.compile(ic.qqExpand(ic.car(args), 1), ctx, env, cont)
}

// qqExpand implements the nesting rules: unquote at depth 1 splices in
// live code, deeper unquotes are rebuilt as data with the depth
// decremented, and inner quasiquotes increment it.
func (ic *Interp) qqExpand(tmpl value.Value, depth int) value.Value {
	if !ic.consp(tmpl) {
		return ic.list(ic.sym.quote, tmpl)
	}
	head := ic.car(tmpl)
	if head == ic.sym.unquote {
		if depth == 1 {
			return ic.car(ic.cdr(tmpl))
		}
		return ic.list(ic.Intern("cons"), ic.list(ic.sym.quote, ic.sym.unquote),
			ic.qqExpand(ic.cdr(tmpl), depth-1))
	}
	if head == ic.sym.qquote {
		return ic.list(ic.Intern("cons"), ic.list(ic.sym.quote, ic.sym.qquote),
			ic.qqExpand(ic.cdr(tmpl), depth+1))
	}
	if ic.consp(head) && ic.car(head) == ic.sym.unquoteSp {
		if depth == 1 {
			// (+ spliced (rest...)): + concatenates lists
			return ic.list(ic.Intern("+"), ic.car(ic.cdr(head)),
				ic.qqExpand(ic.cdr(tmpl), depth))
		}
		return ic.list(ic.Intern("cons"),
			ic.list(ic.Intern("cons"), ic.list(ic.sym.quote, ic.sym.unquoteSp),
				ic.qqExpand(ic.cdr(head), depth-1)),
			ic.qqExpand(ic.cdr(tmpl), depth))
	}
	return ic.list(ic.Intern("cons"), ic.qqExpand(head, depth),
		ic.qqExpand(ic.cdr(tmpl), depth))
}

// compileAssign resolves each target lexically first (ste) and falls
// back to a global store (stg).
func (ic *Interp) compileAssign(args value.Value, ctx *cctx, env value.Value, cont bool) {
	for ; args != value.Nil; args = ic.cdr(ic.cdr(args)) {
		name := ic.car(args)
		if value.TagOf(name) != value.TagSymbol {
			ic.signal(ErrType, "assign: target must be a symbol")
		}
		if ic.cdr(args) == value.Nil {
			ic.signal(ErrType, "assign: missing value for %s", ic.SymName(name))
		}
		ic.compile(ic.car(ic.cdr(args)), ctx, env, false)
		if lvl, idx, ok := ic.findVar(name, env); ok {
			ctx.emit2(opSte, value.Fixnum(int64(lvl)), value.Fixnum(int64(idx)))
		} else {
			ctx.emit1(opStg, value.Fixnum(int64(ic.findLiteral(ctx, name))))
		}
	}
	ic.compileContinuation(ctx, cont)
}

// compileApply: reserve a continuation, push arguments in reverse so
// argument 0 lands on top, load the callee, apply, then patch the
// continuation to resume here.
func (ic *Interp) compileApply(expr value.Value, ctx *cctx, env value.Value, cont bool) {
	fname := ic.car(expr)
	args := ic.listSlice(ic.cdr(expr))
	contaddr := ctx.here()
	ctx.emit1(opCont, value.Fixnum(0))
	for i := len(args) - 1; i >= 0; i-- {
		ic.compile(args[i], ctx, env, false)
		ctx.emit(opPush)
	}
	ic.compile(fname, ctx, env, false)
	ctx.emit1(opApply, value.Fixnum(int64(len(args))))
	ctx.patch(contaddr, contaddr+1)
	ic.compileContinuation(ctx, cont)
}
