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
	"testing"

	"github.com/qyqx/arcueid/value"
)

func compileSrc(t *testing.T, ic *Interp, src string) value.Value {
	t.Helper()
	form, err := ic.ReadOne(src)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	code, err := ic.Compile(form)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	return code
}

func TestWireRoundTrip(t *testing.T) {
	ic := testInterp(t)
	code := compileSrc(t, ic, `(+ 1 2 (car '(4 5)) (len "遠野"))`)
	buf, err := ic.MarshalCode(code)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	loaded, err := ic.UnmarshalCode(buf)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	thr, err := ic.Spawn(ic.mkClosure(loaded, value.Nil))
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	if err := ic.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	if thr.valr != value.Fixnum(9) {
		t.Errorf("loaded code result = %s, want 9", ic.WriteRepr(thr.valr))
	}
}

func TestWireNestedCode(t *testing.T) {
	ic := testInterp(t)
	code := compileSrc(t, ic, "((fn (x y) (* x y)) 6 7)")
	buf, err := ic.MarshalCode(code)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	loaded, err := ic.UnmarshalCode(buf)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	thr, err := ic.Spawn(ic.mkClosure(loaded, value.Nil))
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	if err := ic.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	if thr.valr != value.Fixnum(42) {
		t.Errorf("nested code result = %s, want 42", ic.WriteRepr(thr.valr))
	}
}

func TestWireFingerprintMismatch(t *testing.T) {
	ic := testInterp(t)
	code := compileSrc(t, ic, "(+ 1 2)")
	buf, err := ic.MarshalCode(code)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	// corrupt one fingerprint byte; the loader must refuse
	buf[10] ^= 0xff
	if _, err := ic.UnmarshalCode(buf); err == nil {
		t.Error("tampered fingerprint was accepted")
	}
}

func TestWireTruncated(t *testing.T) {
	ic := testInterp(t)
	code := compileSrc(t, ic, "(+ 1 2)")
	buf, err := ic.MarshalCode(code)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, n := range []int{0, 4, 40, len(buf) - 1} {
		if _, err := ic.UnmarshalCode(buf[:n]); err == nil {
			t.Errorf("truncation to %d bytes was accepted", n)
		}
	}
}

func TestWireBadMagic(t *testing.T) {
	ic := testInterp(t)
	code := compileSrc(t, ic, "nil")
	buf, err := ic.MarshalCode(code)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	buf[0] = 'X'
	if _, err := ic.UnmarshalCode(buf); err == nil {
		t.Error("bad magic was accepted")
	}
}
