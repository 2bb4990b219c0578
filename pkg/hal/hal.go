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

// Package hal defines the portable hardware abstraction layer consumed
// by every other avrix kernel package: system/reset, interrupts, the
// periodic tick timer, context switching, raw memory access and
// atomics. A conforming port provides one implementation of HAL; this
// module ships a single host-native one, pkg/hal/simhal, since Go has
// no portable way to target bare AVR/Cortex-M silicon directly.
package hal

import "avrix.dev/avrix/pkg/kerr"

// ResetReason reports why the core last came out of reset.
type ResetReason int

const (
	ResetUnknown ResetReason = iota
	ResetPowerOn
	ResetExternal
	ResetWatchdog
	ResetSoftware
	ResetBrownout
)

func (r ResetReason) String() string {
	switch r {
	case ResetPowerOn:
		return "power-on"
	case ResetExternal:
		return "external"
	case ResetWatchdog:
		return "watchdog"
	case ResetSoftware:
		return "software"
	case ResetBrownout:
		return "brownout"
	default:
		return "unknown"
	}
}

// Capabilities reports the fixed hardware facts a port exposes.
type Capabilities struct {
	HasMPU   bool
	HasFPU   bool
	Cores    int
	CPUHz    uint32
	WordSize int // bytes: 1, 2 or 4 on real targets; host pointer size in simhal
}

// IRQState is the opaque prior interrupt-mask state returned by
// IRQSave and consumed by IRQRestore. Callers must treat it as opaque.
type IRQState struct{ mask bool }

// Context holds the state needed to resume a task. Its fields are
// owned entirely by the HAL implementation that created them via
// ContextInit; no other package may read or write into impl.
type Context struct {
	// SP is a HAL-opaque saved stack pointer. Real ports store an
	// actual stack pointer value here; simhal leaves it as a
	// diagnostic placeholder since a goroutine's stack is managed by
	// the Go runtime, not by avrix.
	SP uintptr

	impl any
}

// HAL is the hardware abstraction layer contract. See spec §4.1.
type HAL interface {
	// System
	Init() error
	Reset(reason ResetReason) // never returns
	Idle()                    // wait-for-interrupt
	ResetReason() ResetReason
	Capabilities() Capabilities

	// Interrupts
	IRQEnable()
	IRQDisable()
	IRQSave() IRQState
	IRQRestore(IRQState)

	// Timer
	TimerInit(freqHz uint32, tick func())
	TimerTicks() uint64
	DelayUS(us uint32)
	DelayMS(ms uint32)

	// Context switch
	ContextInit(ctx *Context, entry func(), stack []byte) error
	ContextSwitch(from, to *Context)

	// Memory
	MemoryBarrier()
	PgmReadByte(rom []byte, offset int) byte
	MemcpyFromROM(dst, rom []byte, offset int) int
	EEPROMAvailable() bool
	EEPROMReadByte(addr int) (byte, bool)
	EEPROMUpdateByte(addr int, v byte) bool

	// Panic halts the core after logging reason; never returns.
	Panic(reason kerr.FatalReason)
}
