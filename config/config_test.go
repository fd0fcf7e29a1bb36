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

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.GC.MinQuanta != 0 || c.Scheduler.Quantum != 0 {
		t.Errorf("missing file should yield zero config, got %+v", c)
	}
}

func TestLoadParsesKnobs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arcueid.yaml")
	doc := `
heap:
  minExpansionBytes: 65536
  overPercent: 25
gc:
  minQuanta: 100
  maxQuanta: 900
scheduler:
  quantum: 2048
  stackWords: 4096
`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Heap.MinExpansionBytes != 65536 || c.Heap.OverPercent != 25 {
		t.Errorf("heap = %+v", c.Heap)
	}
	if c.GC.MinQuanta != 100 || c.GC.MaxQuanta != 900 {
		t.Errorf("gc = %+v", c.GC)
	}
	if c.Scheduler.Quantum != 2048 || c.Scheduler.StackWords != 4096 {
		t.Errorf("scheduler = %+v", c.Scheduler)
	}
}

func TestLoadRejectsBadQuanta(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arcueid.yaml")
	doc := "gc:\n  minQuanta: 500\n  maxQuanta: 100\n"
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("inverted quanta accepted")
	}
}
