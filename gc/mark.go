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

import "github.com/qyqx/arcueid/value"

// mark colors v (and, budget and depth permitting, everything reachable
// from it) mutator, delegating to the type's registered Marker for
// composite slots.
//
// A block already colored mutator is left alone without recursing into
// it again: apart from blocks Alloc created this epoch (colored mutator
// without any walk), a block becomes mutator only when its children are
// descended into immediately (here, or in Slice's propagator case), so
// revisiting an already-mutator block on a later call (including around
// a cycle) means its subtree was already walked this epoch or it was
// freshly allocated. That makes mark
// naturally cycle-safe without a separate visited set, the way
// tri-color marking is meant to.
//
// Recursion is bounded at maxMarkRecursion; objects reached past that
// depth are left propagator (via setmark) so a later Slice call's
// linear heap walk resumes marking from there.
func (g *GC) mark(v value.Value, reclevel int) {
	if value.TagOf(v) == value.TagSymbol {
		g.markSymbol(v)
		return
	}
	if value.Immediate(v) {
		return
	}

	b := g.blockOf(v)
	wasMutator := b.Color() == g.mutator
	g.setmark(b)
	if wasMutator {
		return
	}
	if reclevel >= maxMarkRecursion {
		return // left propagator; next slice resumes marking from here
	}
	b.SetColor(g.mutator)

	vt := g.typefns(value.HeapType(b.TypeTag()))
	if vt == nil || vt.Marker == nil {
		return
	}
	vt.Marker(v, func(inner value.Value) {
		g.mark(inner, reclevel+1)
	})
}

// markSymbol implements the spec's symbol-survival rule: find the
// symbol's reverse-table bucket and mark it, then follow that bucket's
// value to the forward-table bucket and mark that too. This is how
// symbols stay alive only when referenced from live structure, since
// the symbol tables themselves are not roots.
func (g *GC) markSymbol(sym value.Value) {
	if g.symbolMarker == nil {
		return
	}
	g.symbolMarker(sym, func(bucket value.Value) {
		g.mark(bucket, 0)
	})
}
