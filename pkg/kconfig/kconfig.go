/*
Copyright 2011 Google Inc.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package kconfig is avrix's boot-time configuration: the compiled-in
// defaults from spec.md §6 and a JSON loader built on go4.org's
// jsonconfig.Obj, the same config-object idiom the teacher's own
// blobserver package uses for its handler configuration.
package kconfig

import (
	"encoding/json"
	"os"

	"go4.org/jsonconfig"
)

// Config holds every boot-time tunable in spec.md §6, plus the
// feature flags that turn optional kernel behavior on or off.
type Config struct {
	MaxTasks  int `json:"maxTasks"`
	StackSize int `json:"stackSize"`
	QuantumMS int `json:"quantumMS"`
	TickHz    int `json:"tickHz"`

	HeapSize int `json:"heapSize"`

	DoorSlots    int `json:"doorSlots"`
	DoorSlabSize int `json:"doorSlabSize"`

	EnableQlock   bool `json:"enableQlock"`
	EnableLattice bool `json:"enableLattice"`
	EnableDAG     bool `json:"enableDAG"`
	OptStackGuard bool `json:"optStackGuard"`

	// LatticeWidth selects klock.Width16 or klock.Width32 for any
	// lattice-fairness lock the board layer constructs; kept as a
	// plain int here so this package does not need to import klock.
	LatticeWidth int `json:"latticeWidth"`
}

// Default returns spec.md §6's compiled-in defaults. HeapSize and
// LatticeWidth default to the 32-bit column (2048 bytes, width 32)
// since simhal's native word size is the host pointer size.
func Default() Config {
	return Config{
		MaxTasks:  8,
		StackSize: 128,
		QuantumMS: 10,
		TickHz:    1000,

		HeapSize: 2048,

		DoorSlots:    15,
		DoorSlabSize: 128,

		EnableQlock:   true,
		EnableLattice: true,
		EnableDAG:     false,
		OptStackGuard: true,

		LatticeWidth: 32,
	}
}

// Load reads obj over Default, so a boot config JSON file only needs
// to mention the keys it overrides.
func Load(obj jsonconfig.Obj) Config {
	c := Default()
	c.MaxTasks = obj.OptionalInt("maxTasks", c.MaxTasks)
	c.StackSize = obj.OptionalInt("stackSize", c.StackSize)
	c.QuantumMS = obj.OptionalInt("quantumMS", c.QuantumMS)
	c.TickHz = obj.OptionalInt("tickHz", c.TickHz)
	c.HeapSize = obj.OptionalInt("heapSize", c.HeapSize)
	c.DoorSlots = obj.OptionalInt("doorSlots", c.DoorSlots)
	c.DoorSlabSize = obj.OptionalInt("doorSlabSize", c.DoorSlabSize)
	c.EnableQlock = obj.OptionalBool("enableQlock", c.EnableQlock)
	c.EnableLattice = obj.OptionalBool("enableLattice", c.EnableLattice)
	c.EnableDAG = obj.OptionalBool("enableDAG", c.EnableDAG)
	c.OptStackGuard = obj.OptionalBool("optStackGuard", c.OptStackGuard)
	c.LatticeWidth = obj.OptionalInt("latticeWidth", c.LatticeWidth)
	return c
}

// LoadFile reads and parses a JSON boot config file, applying it over
// Default. A missing file is not an error; Default is returned as-is,
// matching a board with no override file flashed.
func LoadFile(path string) (Config, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, err
	}
	defer f.Close()

	var raw map[string]any
	if err := json.NewDecoder(f).Decode(&raw); err != nil {
		return Config{}, err
	}
	obj := jsonconfig.Obj(raw)
	c := Load(obj)
	return c, obj.Validate()
}
