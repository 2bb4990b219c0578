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

package klock_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"avrix.dev/avrix/pkg/hal/simhal"
	"avrix.dev/avrix/pkg/klock"
)

// TestFastLockCounter is spec.md §8 scenario S1: two concurrent
// increments of a shared counter serialized by a FastLock must total
// exactly the sum of both contributions, with no lost updates.
func TestFastLockCounter(t *testing.T) {
	h := simhal.New(0.001)
	var lock klock.FastLock
	counter := 0

	var g errgroup.Group
	for i := 0; i < 2; i++ {
		g.Go(func() error {
			for j := 0; j < 1000; j++ {
				lock.Lock(h)
				counter++
				lock.Unlock(h)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, 2000, counter)
}

func TestFastLockTryLock(t *testing.T) {
	h := simhal.New(0.001)
	var lock klock.FastLock

	require.True(t, lock.TryLock(h))
	assert.False(t, lock.TryLock(h), "already held")
	lock.Unlock(h)
	assert.True(t, lock.TryLock(h), "free again after unlock")
}

// TestTicketLockServesEveryWaiter runs n contending waiters through a
// TicketLock and checks that each one is served exactly once. The
// order in which the goroutines reserve their tickets is not
// controlled here, so the serving order itself is not asserted.
func TestTicketLockServesEveryWaiter(t *testing.T) {
	h := simhal.New(0.001)
	var lock klock.TicketLock
	const n = 8

	order := make([]int, 0, n)
	var mu sync.Mutex
	start := make(chan struct{})
	var g errgroup.Group

	for i := 0; i < n; i++ {
		g.Go(func() error {
			<-start
			lock.Lock(h)
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			lock.Unlock(h)
			return nil
		})
	}
	close(start)
	require.NoError(t, g.Wait())

	require.Len(t, order, n)
	assert.ElementsMatch(t, []int{0, 1, 2, 3, 4, 5, 6, 7}, order)
}

func TestSmartLockMutualExclusion(t *testing.T) {
	h := simhal.New(0.001)
	lock := klock.NewSmartLock(klock.Width16, true, false)
	counter := 0

	var g errgroup.Group
	for i := 0; i < 4; i++ {
		g.Go(func() error {
			for j := 0; j < 250; j++ {
				lock.Lock(h)
				counter++
				lock.Unlock(h)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, 1000, counter)
}

func TestSmartLockTryLockUncontended(t *testing.T) {
	h := simhal.New(0.001)
	lock := klock.NewSmartLock(klock.Width32, true, false)
	require.True(t, lock.TryLock(h))
	lock.Unlock(h)
	require.True(t, lock.TryLock(h))
	lock.Unlock(h)
}

func TestSmartLockDagMask(t *testing.T) {
	lock := klock.NewSmartLock(klock.Width16, false, true)
	assert.Equal(t, uint8(0), lock.DagMask())
	lock.SetDagMask(0b0101)
	assert.Equal(t, uint8(0b0101), lock.DagMask())
}

// TestCompositeLockRequiresBKL is spec.md §8 invariant 4: every
// composite-lock holder in non-RT mode also holds the BKL.
func TestCompositeLockRequiresBKL(t *testing.T) {
	h := simhal.New(0.001)
	bkl := klock.NewBKL(klock.Width16)
	core := klock.NewSmartLock(klock.Width16, false, true)
	c := klock.NewCompositeLock(core, bkl)

	c.Lock(h, 0)
	// The BKL is held: a second, independent composite lock sharing the
	// same BKL cannot acquire it.
	core2 := klock.NewSmartLock(klock.Width16, false, false)
	other := klock.NewCompositeLock(core2, bkl)
	assert.False(t, other.TryLock(h, 0))
	c.Unlock(h)
	assert.True(t, other.TryLock(h, 0))
	other.Unlock(h)
}

func TestCompositeLockRTBypassesBKL(t *testing.T) {
	h := simhal.New(0.001)
	bkl := klock.NewBKL(klock.Width16)
	core := klock.NewSmartLock(klock.Width16, false, false)
	c := klock.NewCompositeLock(core, bkl)

	c.LockRT(h)
	// RT mode never touched the BKL, so it is still free.
	assert.True(t, bkl.TryAcquire(h))
	bkl.Release(h)
	c.UnlockRT(h)
}

func TestCompositeLockModeMismatchIsFatal(t *testing.T) {
	h := simhal.New(0.001)
	bkl := klock.NewBKL(klock.Width16)
	core := klock.NewSmartLock(klock.Width16, false, false)
	c := klock.NewCompositeLock(core, bkl)

	c.Lock(h, 0)
	assert.Panics(t, func() {
		c.UnlockRT(h) // acquired non-RT, released RT: programming error
	})
}
