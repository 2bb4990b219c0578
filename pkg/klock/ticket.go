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

// TicketLock serves waiters in strict FIFO order via a head/tail pair.
// Its feature flag is ENABLE_QLOCK (kconfig.Config.EnableQlock); the
// type is always compiled in and nothing in this package reads that
// flag, callers do.
type TicketLock struct {
	head, tail hal.AtomicU16
}

// Lock reserves a ticket and spins until it is being served.
func (q *TicketLock) Lock(h hal.HAL) {
	my := q.tail.FetchAdd(1)
	for q.head.Load() != my {
	}
	h.MemoryBarrier()
}

// Unlock advances service to the next ticket.
func (q *TicketLock) Unlock(h hal.HAL) {
	h.MemoryBarrier()
	q.head.FetchAdd(1)
}
