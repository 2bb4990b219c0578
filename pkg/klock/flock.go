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

// Package klock implements avrix's composable spinlock family: the
// one-byte fast lock, the FIFO ticket lock, the golden-ratio-fair
// smart lock and the composite lock that layers BKL ordering and a
// real-time bypass on top of a smart lock. All of them are spinlocks:
// none park the calling goroutine, matching the "no blocking syscalls
// inside a critical section" discipline of the embedded target this
// models.
package klock

import "avrix.dev/avrix/pkg/hal"

// FastLock is the one-byte spinlock: 0 free, 1 held.
type FastLock struct {
	v hal.AtomicU8
}

// Lock spins until the lock is acquired.
func (l *FastLock) Lock(h hal.HAL) {
	for !l.v.TestAndSet() {
	}
	h.MemoryBarrier()
}

// TryLock makes a single acquisition attempt and reports success.
func (l *FastLock) TryLock(h hal.HAL) bool {
	ok := l.v.TestAndSet()
	if ok {
		h.MemoryBarrier()
	}
	return ok
}

// Unlock releases the lock.
func (l *FastLock) Unlock(h hal.HAL) {
	l.v.Exchange(0)
	h.MemoryBarrier()
}
