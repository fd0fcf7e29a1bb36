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

// Package config loads the optional runtime tuning file. Every knob
// has a default; a missing file or empty document is not an error.
package config

import (
	"fmt"
	"os"

	"sigs.k8s.io/yaml"
)

// Config is the schema of arcueid.yaml.
type Config struct {
	Heap struct {
		// MinExpansionBytes is the smallest chunk a heap expansion maps.
		MinExpansionBytes int `json:"minExpansionBytes"`
		// OverPercent is the expansion headroom percentage.
		OverPercent int `json:"overPercent"`
	} `json:"heap"`
	GC struct {
		MinQuanta int `json:"minQuanta"`
		MaxQuanta int `json:"maxQuanta"`
	} `json:"gc"`
	Scheduler struct {
		// Quantum is the instruction budget per timeslice.
		Quantum int `json:"quantum"`
		// StackWords is the value-stack size for new threads.
		StackWords int `json:"stackWords"`
	} `json:"scheduler"`
}

// Default returns the zero configuration; the runtime fills in its own
// defaults for any zero field.
func Default() *Config { return &Config{} }

// Load reads and parses path. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("config: %w", err)
	}
	c := Default()
	if err := yaml.Unmarshal(buf, c); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return c, nil
}

func (c *Config) validate() error {
	if c.Heap.OverPercent < 0 || c.Heap.OverPercent > 1000 {
		return fmt.Errorf("heap.overPercent %d out of range", c.Heap.OverPercent)
	}
	if c.GC.MinQuanta < 0 || c.GC.MaxQuanta < 0 {
		return fmt.Errorf("gc quanta must be non-negative")
	}
	if c.GC.MaxQuanta > 0 && c.GC.MinQuanta > c.GC.MaxQuanta {
		return fmt.Errorf("gc.minQuanta %d exceeds gc.maxQuanta %d", c.GC.MinQuanta, c.GC.MaxQuanta)
	}
	if c.Scheduler.StackWords < 0 {
		return fmt.Errorf("scheduler.stackWords must be non-negative")
	}
	return nil
}
