/*
Copyright 2013 The Camlistore Authors.

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

package hal

import "go.uber.org/atomic"

// AtomicU8 is an 8-bit-wide atomic memory cell. Real ports implement
// this directly in hardware or fall back to IRQSave/IRQRestore; the
// host has no byte-wide atomic instruction, so it is backed by a
// 32-bit atomic word masked to the low byte on every access.
type AtomicU8 struct {
	word atomic.Uint32
}

func (a *AtomicU8) Load() uint8 { return uint8(a.word.Load()) }

func (a *AtomicU8) Store(v uint8) { a.word.Store(uint32(v)) }

// Exchange atomically stores v and returns the previous value.
func (a *AtomicU8) Exchange(v uint8) uint8 { return uint8(a.word.Swap(uint32(v))) }

// CompareExchange is the strong CAS: stores newV iff the current value
// equals old, returning whether it did.
func (a *AtomicU8) CompareExchange(old, newV uint8) bool {
	return a.word.CompareAndSwap(uint32(old), uint32(newV))
}

// TestAndSet sets the cell to 1 and reports whether it was clear (0)
// beforehand — "lock acquired" in flock terms.
func (a *AtomicU8) TestAndSet() bool { return a.word.Swap(1) == 0 }

// FetchAdd atomically adds delta and returns the prior value.
func (a *AtomicU8) FetchAdd(delta uint8) uint8 {
	for {
		old := a.word.Load()
		if a.word.CompareAndSwap(old, uint32(uint8(old)+delta)) {
			return uint8(old)
		}
	}
}

// AtomicU16 is a 16-bit-wide atomic memory cell, used by TicketLock's
// head/tail pair and the lattice ticket counters.
type AtomicU16 struct {
	word atomic.Uint32
}

func (a *AtomicU16) Load() uint16 { return uint16(a.word.Load()) }

func (a *AtomicU16) Store(v uint16) { a.word.Store(uint32(v)) }

func (a *AtomicU16) Exchange(v uint16) uint16 { return uint16(a.word.Swap(uint32(v))) }

func (a *AtomicU16) CompareExchange(old, newV uint16) bool {
	return a.word.CompareAndSwap(uint32(old), uint32(newV))
}

func (a *AtomicU16) TestAndSet() bool { return a.word.Swap(1) == 0 }

// FetchAdd atomically adds delta and returns the prior value, wrapping
// modulo 2^16 the way a real 16-bit register would.
func (a *AtomicU16) FetchAdd(delta uint16) uint16 {
	for {
		old := a.word.Load()
		if a.word.CompareAndSwap(old, uint32(uint16(old)+delta)) {
			return uint16(old)
		}
	}
}

// AtomicU32 is a 32-bit-wide atomic memory cell.
type AtomicU32 struct {
	word atomic.Uint32
}

func (a *AtomicU32) Load() uint32 { return a.word.Load() }

func (a *AtomicU32) Store(v uint32) { a.word.Store(v) }

func (a *AtomicU32) Exchange(v uint32) uint32 { return a.word.Swap(v) }

func (a *AtomicU32) CompareExchange(old, newV uint32) bool {
	return a.word.CompareAndSwap(old, newV)
}

func (a *AtomicU32) TestAndSet() bool { return a.word.Swap(1) == 0 }

func (a *AtomicU32) FetchAdd(delta uint32) uint32 { return a.word.Add(delta) - delta }
