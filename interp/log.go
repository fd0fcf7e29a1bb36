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

// Errorf is a global diagnostic function that can be set during init()
// to capture additional diagnostic information from the interpreter:
// unhandled thread errors and I/O-wait poll failures.
var Errorf func(f string, args ...any)

func errorf(f string, args ...any) {
	if Errorf != nil {
		Errorf(f, args...)
	}
}

// Debugf is like Errorf but for high-volume trace output (the
// disassembly of each compiled expression). Leave nil in production.
var Debugf func(f string, args ...any)

func debugf(f string, args ...any) {
	if Debugf != nil {
		Debugf(f, args...)
	}
}
