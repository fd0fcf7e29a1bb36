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

	"github.com/qyqx/arcueid/value"
)

// Kind partitions runtime errors into the taxonomy the error-handling
// design names.
type Kind int

const (
	ErrArith    Kind = iota // division by zero, unrepresentable, bad coercion
	ErrType                 // type mismatch, apply of non-callable
	ErrResource             // out of memory, stack overflow, I/O failure
	ErrEnv                  // unbound symbol, arity mismatch
	ErrUser                 // raised by the err primitive
)

func (k Kind) String() string {
	switch k {
	case ErrArith:
		return "arithmetic"
	case ErrType:
		return "type"
	case ErrResource:
		return "resource"
	case ErrEnv:
		return "environment"
	case ErrUser:
		return "user"
	}
	return "unknown"
}

// Error is a runtime error on its way to becoming an Arc exception
// value. It satisfies the error interface so embedders receive it from
// the public entry points when no handler is installed.
type Error struct {
	Kind    Kind
	Msg     string
	Payload value.Value // optional value carried by the err primitive
	// Backtrace holds source lines derived from the continuation
	// chain at raise time, innermost first.
	Backtrace []int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error: %s", e.Kind, e.Msg)
}

// signal raises an error by panicking; the VM dispatch loop and the
// public entry points recover it and route it to the thread's error
// continuation or back to the embedder. Runtime code between
// suspension points may call signal freely; GC slices may not.
func (ic *Interp) signal(k Kind, f string, args ...any) {
	panic(&Error{Kind: k, Msg: fmt.Sprintf(f, args...)})
}

func (ic *Interp) signalv(k Kind, payload value.Value, f string, args ...any) {
	panic(&Error{Kind: k, Msg: fmt.Sprintf(f, args...), Payload: payload})
}

// mkException reifies e as a heap exception value: message string,
// payload, and backtrace list.
func (ic *Interp) mkException(e *Error) value.Value {
	bt := value.Nil
	for i := len(e.Backtrace) - 1; i >= 0; i-- {
		bt = ic.cons(value.Fixnum(int64(e.Backtrace[i])), bt)
	}
	exc := ic.alloc(3*8, value.TException)
	ic.setSlot(exc, 0, ic.mkString([]rune(e.Msg)))
	ic.setSlot(exc, 1, e.Payload)
	ic.setSlot(exc, 2, bt)
	return exc
}

// excMessage extracts the message string of an exception value.
func (ic *Interp) excMessage(exc value.Value) string {
	return string(ic.strRunes(ic.slot(exc, 0)))
}

// excPayload extracts the payload of an exception value.
func (ic *Interp) excPayload(exc value.Value) value.Value {
	return ic.slot(exc, 1)
}
