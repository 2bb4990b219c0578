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

import "avrix.dev/avrix/pkg/hal"

// BKL is the Big Kernel Lock: exactly one process-wide smart lock
// that serializes every non-real-time CompositeLock critical section.
// Lattice fairness is enabled unconditionally since the BKL is the
// single most contended lock in the kernel and is exactly the case
// starvation-free service is meant for; its DAG bitmap is unused.
type BKL struct {
	lock *SmartLock
}

// NewBKL constructs the process-wide BKL singleton. Callers should
// construct exactly one and share it across every CompositeLock.
func NewBKL(width Width) *BKL {
	return &BKL{lock: NewSmartLock(width, true, false)}
}

func (b *BKL) Acquire(h hal.HAL) { b.lock.Lock(h) }

func (b *BKL) TryAcquire(h hal.HAL) bool { return b.lock.TryLock(h) }

func (b *BKL) Release(h hal.HAL) { b.lock.Unlock(h) }
