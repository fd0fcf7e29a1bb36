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

// Symbol interning. Two hash tables: name string -> symbol value and
// symbol value -> name string. Symbol indices are never recycled; the
// lastsym counter only grows. The tables are not GC roots -- a symbol
// survives an epoch only if something live references it, at which
// point the marker walks both its buckets (markSymbolBuckets below).

// Intern returns the symbol for name, creating it on first sight.
func (ic *Interp) Intern(name string) value.Value {
	nstr := ic.mkStringStr(name)
	if s := ic.tableLookup(ic.symtable, nstr); s != value.Unbound {
		return s
	}
	ic.lastsym++
	sym := value.SymbolValue(ic.lastsym)
	ic.tableInsert(ic.symtable, nstr, sym)
	ic.tableInsert(ic.rsymtable, sym, nstr)
	return sym
}

// SymName returns the name of an interned symbol, or "" if the symbol
// has been collected or never existed.
func (ic *Interp) SymName(sym value.Value) string {
	nstr := ic.tableLookup(ic.rsymtable, sym)
	if nstr == value.Unbound {
		return ""
	}
	return ic.strGo(nstr)
}

// symInterned reports whether sym currently has a live intern entry.
func (ic *Interp) symInterned(sym value.Value) bool {
	return ic.tableLookup(ic.rsymtable, sym) != value.Unbound
}

// markSymbolBuckets is the collector's symbol-survival hook: mark the
// reverse-table bucket for sym, then follow its value (the name
// string) to the forward-table bucket and mark that as well. Anything
// not reached this way is garbage come sweep time, and the bucket
// sweepers will clear the table slots.
func (ic *Interp) markSymbolBuckets(sym value.Value, mark func(value.Value)) {
	rb := ic.tableLookupBucket(ic.rsymtable, sym)
	if rb == value.Unbound {
		return
	}
	mark(rb)
	name := ic.slot(rb, bktValueSlot)
	fb := ic.tableLookupBucket(ic.symtable, name)
	if fb != value.Unbound {
		mark(fb)
	}
}

// internBasics pins the symbols the compiler and VM look up on hot
// paths. Interning them here also keeps them alive for the life of the
// instance, since the special-form table references them.
func (ic *Interp) internBasics() {
	ic.sym.t = ic.Intern("t")
	ic.sym.nil_ = ic.Intern("nil")
	ic.sym.if_ = ic.Intern("if")
	ic.sym.fn = ic.Intern("fn")
	ic.sym.quote = ic.Intern("quote")
	ic.sym.qquote = ic.Intern("quasiquote")
	ic.sym.unquote = ic.Intern("unquote")
	ic.sym.unquoteSp = ic.Intern("unquote-splicing")
	ic.sym.assign = ic.Intern("assign")
	ic.sym.o = ic.Intern("o")
	ic.sym.mac = ic.Intern("mac")
	ic.sym.let = ic.Intern("let")
	ic.sym.complex_ = ic.Intern("complex")
}
