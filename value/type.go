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

package value

// HeapType enumerates the closed set of heap object variants a cell's
// header byte may carry. Values mirror the enum ordering of the
// original arc_types table, extended with the weak-table variant the
// spec calls out.
type HeapType uint8

const (
	TCons HeapType = iota
	TVector
	TString
	TChar
	TBignum
	TRational
	TFlonum
	TComplex
	TTable
	THashBucket
	TTagged
	TInputPort
	TOutputPort
	TException
	TThread
	TContinuation
	TClosure
	TCode
	TEnvFrame
	TForeignCode
	TCustom
	TChannel
	TTypeDesc
	TWeakTable

	typeCount
)

var typeNames = [typeCount]string{
	TCons:         "cons",
	TVector:       "vector",
	TString:       "string",
	TChar:         "char",
	TBignum:       "bignum",
	TRational:     "rational",
	TFlonum:       "flonum",
	TComplex:      "complex",
	TTable:        "table",
	THashBucket:   "hash-bucket",
	TTagged:       "tagged",
	TInputPort:    "input-port",
	TOutputPort:   "output-port",
	TException:    "exception",
	TThread:       "thread",
	TContinuation: "continuation",
	TClosure:      "closure",
	TCode:         "code",
	TEnvFrame:     "env-frame",
	TForeignCode:  "foreign-code",
	TCustom:       "custom",
	TChannel:      "channel",
	TTypeDesc:     "type-descriptor",
	TWeakTable:    "weak-table",
}

func (t HeapType) String() string {
	if int(t) < len(typeNames) && typeNames[t] != "" {
		return typeNames[t]
	}
	return "unknown"
}

// Marker enumerates the values directly reachable from a heap object so
// the garbage collector can recurse into them. It is called once per
// slot; markfn should be invoked immediately rather than buffered.
type Marker func(v Value, markfn func(Value))

// Sweeper releases any resource beyond the block itself that a heap
// object owns (GMP-equivalent big.Int/big.Rat need none of this in Go,
// but ports and custom types do).
type Sweeper func(v Value)

// Printer renders v. visiting tracks cycle detection across a single
// top-level print; Printer must consult and update it to emit "(...)"
// on a repeat visit rather than recursing forever.
type Printer func(v Value, visiting map[Value]bool) string

// Hasher computes a hash of v's contents consistent with Equal.
type Hasher func(v Value) uint64

// Equal performs shallow (pointer/bitwise) or deep (isomorphism)
// comparison depending on which table entry is consulted.
type Equal func(a, b Value) bool

// Applicator implements "calling" a value of this type, e.g. invoking a
// closure, indexing a string with an integer, or using a hash table as
// a function. It returns the application's result, or a non-nil error
// when the application fails.
type Applicator func(args []Value) (Value, error)

// VTable is the per-type dispatch record every heap object type
// registers exactly once during interpreter startup.
type VTable struct {
	Marker    Marker  // mandatory
	Sweeper   Sweeper // mandatory
	Print     Printer
	Hash      Hasher
	ShallowEq Equal
	DeepEq    Equal
	Apply     Applicator
}

var registry [typeCount]*VTable

// defaultPrint, defaultHash and defaultShallowEq supply the identity
// semantics the spec promises when an embedder leaves a vtable slot nil:
// opaque printing and pointer equality.
func defaultPrint(v Value, _ map[Value]bool) string { return v.String() }
func defaultHash(v Value) uint64                    { return uint64(v) }
func defaultShallowEq(a, b Value) bool              { return a == b }

// Register installs the vtable for t. Marker and Sweeper must be
// non-nil; any other nil field is backed by the core's default.
func Register(t HeapType, vt VTable) {
	if vt.Marker == nil || vt.Sweeper == nil {
		panic("value: vtable for " + t.String() + " must supply Marker and Sweeper")
	}
	if vt.Print == nil {
		vt.Print = defaultPrint
	}
	if vt.Hash == nil {
		vt.Hash = defaultHash
	}
	if vt.ShallowEq == nil {
		vt.ShallowEq = defaultShallowEq
	}
	if vt.DeepEq == nil {
		vt.DeepEq = vt.ShallowEq
	}
	cp := vt
	registry[t] = &cp
}

// VTableFor returns the registered vtable for t, or nil if none has been
// registered yet.
func VTableFor(t HeapType) *VTable {
	return registry[t]
}
