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

// Package simhal is the host-native hal.HAL implementation used by
// avrix's tests, its simulator CLI and its FUSE/ROMFS tooling. It
// models a single-core target on top of goroutines, channels and
// go.uber.org/atomic rather than real memory-mapped registers.
package simhal

import (
	"sync"
	"time"
	"unsafe"

	"avrix.dev/avrix/internal/klog"
	"avrix.dev/avrix/pkg/hal"
	"avrix.dev/avrix/pkg/kerr"
)

// simContext is the impl payload stashed inside hal.Context.impl. Only
// simhal ever reads or writes it.
type simContext struct {
	baton   chan struct{}
	entry   func()
	started bool
}

// HAL is simhal's HAL implementation. The zero value is not usable;
// construct with New.
type HAL struct {
	mu sync.Mutex // stands in for the hardware interrupt mask

	irqDisabled bool
	resetReason hal.ResetReason
	ticks       AtomicTicks

	tickFn   func()
	ticker   *time.Ticker
	stopTick chan struct{}

	// timeScale shrinks simulated delays so scheduler tests don't run
	// at real microcontroller tick rates; 1.0 means real time.
	timeScale float64
}

// AtomicTicks is the monotonic tick counter, guarded by its own mutex
// so TimerTicks can read it without a data race.
type AtomicTicks struct {
	mu sync.Mutex
	v  uint64
}

func (t *AtomicTicks) add() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.v++
	return t.v
}

func (t *AtomicTicks) load() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.v
}

// New constructs a simhal instance. timeScale multiplies real
// delay_us / delay_ms durations and the timer tick period, so a value
// below 1.0 (tests pass 0.001) makes them run fast; pass 1.0 for real
// time.
func New(timeScale float64) *HAL {
	if timeScale <= 0 {
		timeScale = 1
	}
	return &HAL{
		resetReason: hal.ResetPowerOn,
		timeScale:   timeScale,
	}
}

func (h *HAL) Init() error {
	h.resetReason = hal.ResetPowerOn
	return nil
}

func (h *HAL) Reset(reason hal.ResetReason) {
	klog.Named("hal").Warnw("reset", "reason", reason.String())
	panic("avrix: hal.Reset is non-returning: " + reason.String())
}

func (h *HAL) Idle() {
	// Wait-for-interrupt on real hardware; here, yield the host
	// scheduler briefly so the tick goroutine gets a turn.
	time.Sleep(time.Microsecond)
}

func (h *HAL) ResetReason() hal.ResetReason { return h.resetReason }

func (h *HAL) Capabilities() hal.Capabilities {
	return hal.Capabilities{
		HasMPU:   false,
		HasFPU:   false,
		Cores:    1,
		CPUHz:    1_000_000_000,
		WordSize: int(unsafe.Sizeof(uintptr(0))),
	}
}

func (h *HAL) IRQEnable() {
	h.mu.Lock()
	h.irqDisabled = false
	h.mu.Unlock()
}

func (h *HAL) IRQDisable() {
	h.mu.Lock()
	h.irqDisabled = true
	h.mu.Unlock()
}

func (h *HAL) IRQSave() hal.IRQState {
	h.mu.Lock()
	prior := h.irqDisabled
	h.irqDisabled = true
	h.mu.Unlock()
	return hal.IRQState{mask: prior}
}

func (h *HAL) IRQRestore(s hal.IRQState) {
	h.mu.Lock()
	h.irqDisabled = s.mask
	h.mu.Unlock()
}

func (h *HAL) TimerInit(freqHz uint32, tick func()) {
	if freqHz == 0 {
		freqHz = 1000
	}
	h.tickFn = tick
	period := time.Duration(float64(time.Second) / float64(freqHz) * h.timeScale)
	if period <= 0 {
		period = time.Microsecond
	}
	h.ticker = time.NewTicker(period)
	h.stopTick = make(chan struct{})
	go func() {
		for {
			select {
			case <-h.ticker.C:
				h.ticks.add()
				h.mu.Lock()
				disabled := h.irqDisabled
				h.mu.Unlock()
				if !disabled && h.tickFn != nil {
					h.tickFn()
				}
			case <-h.stopTick:
				return
			}
		}
	}()
}

// StopTimer halts the periodic tick goroutine. Not part of hal.HAL
// (real hardware timers are never torn down); it exists so tests and
// cmd/avrixsim can shut a simulated core down cleanly.
func (h *HAL) StopTimer() {
	if h.ticker != nil {
		h.ticker.Stop()
	}
	if h.stopTick != nil {
		close(h.stopTick)
		h.stopTick = nil
	}
}

func (h *HAL) TimerTicks() uint64 { return h.ticks.load() }

func (h *HAL) DelayUS(us uint32) {
	time.Sleep(time.Duration(float64(us) * float64(time.Microsecond) * h.timeScale))
}

func (h *HAL) DelayMS(ms uint32) {
	time.Sleep(time.Duration(float64(ms) * float64(time.Millisecond) * h.timeScale))
}

// ContextInit prepares ctx so that the first ContextSwitch into it
// begins executing entry with interrupts enabled. entry is expected to already include
// whatever "task exited" bookkeeping the scheduler needs if it
// returns; simhal itself does not interpret entry's return.
func (h *HAL) ContextInit(ctx *hal.Context, entry func(), stack []byte) error {
	if entry == nil {
		return kerr.ErrInvalidArg
	}
	if len(stack) < 64 {
		return kerr.ErrInvalidStack
	}
	sc := &simContext{baton: make(chan struct{}), entry: entry}
	ctx.impl = sc
	if len(stack) > 0 {
		ctx.SP = uintptr(unsafe.Pointer(&stack[len(stack)-1]))
	}
	go func() {
		<-sc.baton // park until the first directed switch-in
		h.IRQEnable()
		sc.entry()
		// entry returning with no further switch is a logic error in
		// the caller (the scheduler always wraps entry to end in
		// task_exit, which itself calls ContextSwitch and never
		// returns here); stay parked to avoid leaking a runnable
		// goroutine that races the next switch.
		<-sc.baton
	}()
	return nil
}

// ContextSwitch hands control from the calling task's context to to's,
// and parks the caller until it is switched back into. Both sides must
// have been prepared by ContextInit.
func (h *HAL) ContextSwitch(from, to *hal.Context) {
	toImpl, ok := to.impl.(*simContext)
	if !ok {
		panic("avrix: hal.ContextSwitch: target context not initialized")
	}
	fromImpl, ok := from.impl.(*simContext)
	if !ok {
		panic("avrix: hal.ContextSwitch: source context not initialized")
	}
	toImpl.baton <- struct{}{}
	<-fromImpl.baton
}

func (h *HAL) MemoryBarrier() {
	// sync/atomic operations already establish the necessary
	// happens-before edges on every supported host; this call exists
	// so call sites read the same as a real port's explicit fence.
}

func (h *HAL) PgmReadByte(rom []byte, offset int) byte {
	if offset < 0 || offset >= len(rom) {
		return 0
	}
	return rom[offset]
}

func (h *HAL) MemcpyFromROM(dst, rom []byte, offset int) int {
	if offset < 0 || offset >= len(rom) {
		return 0
	}
	n := copy(dst, rom[offset:])
	return n
}

func (h *HAL) EEPROMAvailable() bool { return true }

func (h *HAL) EEPROMReadByte(addr int) (byte, bool) {
	// simhal has no on-chip EEPROM of its own; pkg/eepfs owns its byte
	// image directly via a Backing implementation instead of routing
	// through the HAL, so this path exists only for API completeness
	// and always reports "not available at this address".
	return 0, false
}

func (h *HAL) EEPROMUpdateByte(addr int, v byte) bool { return false }

func (h *HAL) Panic(reason kerr.FatalReason) {
	klog.Named("hal").Errorw("fatal", "reason", string(reason))
	h.IRQDisable()
	panic(kerr.NewFatal(reason))
}

var _ hal.HAL = (*HAL)(nil)
