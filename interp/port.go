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
	"io"

	"github.com/qyqx/arcueid/value"
)

// Port is what the core requires of an I/O backend. Byte-level only;
// the rune layer is built on top by the read/write primitives. All
// port operations are invoked from foreign primitives, so backends
// that need to block can report not-ready and let the primitive
// suspend with IOWait.
type Port interface {
	Closed() bool
	Ready() (bool, error)  // a byte can be read without blocking
	WReady() (bool, error) // a byte can be written without blocking
	GetB() (b byte, eof bool, err error)
	PutB(b byte) error
	Seek(off int64, whence int) (int64, error)
	Tell() (int64, error)
	Close() error
	// Fd returns the pollable descriptor, or -1 for memory-backed
	// ports that are always ready.
	Fd() int
}

// stringPort is the in-memory backend: input ports iterate over a
// fixed byte string, output ports accumulate. It is always ready and
// never suspends.
type stringPort struct {
	buf    []byte
	pos    int64
	closed bool
	out    bool
}

func (p *stringPort) Closed() bool { return p.closed }

func (p *stringPort) Ready() (bool, error) {
	if p.closed {
		return false, fmt.Errorf("port is closed")
	}
	return !p.out, nil
}

func (p *stringPort) WReady() (bool, error) {
	if p.closed {
		return false, fmt.Errorf("port is closed")
	}
	return p.out, nil
}

func (p *stringPort) GetB() (byte, bool, error) {
	if p.closed {
		return 0, false, fmt.Errorf("read on closed port")
	}
	if p.pos >= int64(len(p.buf)) {
		return 0, true, nil
	}
	b := p.buf[p.pos]
	p.pos++
	return b, false, nil
}

func (p *stringPort) PutB(b byte) error {
	if p.closed {
		return fmt.Errorf("write on closed port")
	}
	if p.pos == int64(len(p.buf)) {
		p.buf = append(p.buf, b)
	} else {
		p.buf[p.pos] = b
	}
	p.pos++
	return nil
}

func (p *stringPort) Seek(off int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = p.pos
	case io.SeekEnd:
		base = int64(len(p.buf))
	default:
		return 0, fmt.Errorf("seek: bad whence %d", whence)
	}
	n := base + off
	if n < 0 || n > int64(len(p.buf)) {
		return 0, fmt.Errorf("seek: offset %d out of range", n)
	}
	p.pos = n
	return n, nil
}

func (p *stringPort) Tell() (int64, error) { return p.pos, nil }

func (p *stringPort) Close() error {
	p.closed = true
	return nil
}

func (p *stringPort) Fd() int { return -1 }

// MkInputString creates an input port reading the UTF-8 encoding of s.
func (ic *Interp) MkInputString(s string) value.Value {
	return ic.mkHandleCell(value.TInputPort, &stringPort{buf: []byte(s)})
}

// MkOutputString creates an accumulating output port.
func (ic *Interp) MkOutputString() value.Value {
	return ic.mkHandleCell(value.TOutputPort, &stringPort{out: true})
}

// portOf extracts the backend from a port value.
func (ic *Interp) portOf(v value.Value) Port {
	if !ic.is(v, value.TInputPort) && !ic.is(v, value.TOutputPort) {
		ic.signal(ErrType, "expected port, got %s", ic.typeName(v))
	}
	return ic.handleOf(v).(Port)
}

// Inside returns the accumulated contents of an output string port.
func (ic *Interp) Inside(v value.Value) string {
	p, ok := ic.portOf(v).(*stringPort)
	if !ok {
		ic.signal(ErrType, "inside: not a string port")
	}
	return string(p.buf)
}

// writeBytes pushes every byte of s through the port interface.
func (ic *Interp) writeBytes(port value.Value, s string) {
	p := ic.portOf(port)
	for _, b := range []byte(s) {
		if err := p.PutB(b); err != nil {
			ic.signal(ErrResource, "write: %v", err)
		}
	}
}
