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

// Environment frames: a parent pointer, a slot count, then the slots.
// Frames chain lexically; lde/ste walk the chain by level.
const (
	envParentSlot = 0
	envCountSlot  = 1
	envFirstSlot  = 2
)

func (ic *Interp) mkEnv(size int, parent value.Value) value.Value {
	v := ic.alloc((size+2)*8, value.TEnvFrame)
	ic.setSlot(v, envParentSlot, parent)
	ic.setSlot(v, envCountSlot, value.Fixnum(int64(size)))
	for i := 0; i < size; i++ {
		ic.setSlot(v, envFirstSlot+i, value.Unbound)
	}
	return v
}

func (ic *Interp) envParent(env value.Value) value.Value {
	return ic.slot(env, envParentSlot)
}

func (ic *Interp) envCount(env value.Value) int {
	return int(ic.slot(env, envCountSlot).Int())
}

// envRef reads slot idx at the given chain depth.
func (ic *Interp) envRef(env value.Value, level, idx int) value.Value {
	for ; level > 0; level-- {
		env = ic.envParent(env)
		if env == value.Nil {
			ic.signal(ErrEnv, "environment level %d out of reach", level)
		}
	}
	if idx < 0 || idx >= ic.envCount(env) {
		ic.signal(ErrEnv, "environment slot %d out of range", idx)
	}
	return ic.slot(env, envFirstSlot+idx)
}

// envSet writes slot idx at the given chain depth.
func (ic *Interp) envSet(env value.Value, level, idx int, x value.Value) {
	for ; level > 0; level-- {
		env = ic.envParent(env)
		if env == value.Nil {
			ic.signal(ErrEnv, "environment level %d out of reach", level)
		}
	}
	if idx < 0 || idx >= ic.envCount(env) {
		ic.signal(ErrEnv, "environment slot %d out of range", idx)
	}
	ic.setSlot(env, envFirstSlot+idx, x)
}
