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

// Package sched implements avrix's preemptive, priority-first,
// round-robin-among-equals scheduler with optional DAG dependency
// gating, on top of pkg/hal's Context primitives. See spec.md §4.3.
//
// Task 0 is a reserved idle task created by New: it sits in
// StateReady whenever it is not running, its priority (255) sorts after every application
// priority (0-63), so find_next only ever selects it when no real
// task is ready. This turns "else enter idle" into a degenerate case
// of ordinary priority selection instead of a special branch.
package sched

import (
	"sync"

	"avrix.dev/avrix/internal/klog"
	"avrix.dev/avrix/pkg/hal"
	"avrix.dev/avrix/pkg/kerr"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// TaskID identifies a task. TaskID 0 is the reserved idle task; real
// tasks are assigned 1, 2, ... in task_create order. This is a newtype
// over uint8 per spec.md §9's redesign flag, so a bare int can't be
// passed where a TaskID is expected.
type TaskID uint8

// State is a TCB's position in the scheduler's state machine.
type State int

const (
	StateReady State = iota
	StateRunning
	StateSleeping
	StateBlocked
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateSleeping:
		return "sleeping"
	case StateBlocked:
		return "blocked"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

const idlePriority = 255

const canaryByte = 0xA5

// TCB is a task's scheduler-owned record. Everything but ID, Priority
// and State is mutated only by the scheduler itself and by the task's
// own syscalls.
type TCB struct {
	ID         TaskID
	ctx        *hal.Context
	stack      []byte
	State      State
	Priority   uint8
	SleepTicks uint32
	Deps       uint8
}

// Config holds the scheduler's boot-time tuning knobs. See
// pkg/kconfig for the compiled-in defaults and JSON overrides.
type Config struct {
	MaxTasks   int
	QuantumMS  int
	TickHz     int
	EnableDAG  bool
	StackGuard bool
}

// Scheduler is avrix's single-core task scheduler. The zero value is
// not usable; construct with New.
type Scheduler struct {
	h   hal.HAL
	cfg Config
	log *zap.SugaredLogger

	mu           sync.Mutex
	tasks        []*TCB
	current      int
	quantumTicks int
	quantumLeft  int

	preemptPending atomic.Bool
	bootCtx        *hal.Context
}

// New constructs a Scheduler over h, with the idle task already
// created at index 0. Call Init before Run.
func New(h hal.HAL, cfg Config) *Scheduler {
	if cfg.MaxTasks <= 0 {
		cfg.MaxTasks = 8
	}
	if cfg.QuantumMS <= 0 {
		cfg.QuantumMS = 10
	}
	if cfg.TickHz <= 0 {
		cfg.TickHz = 1000
	}
	quantumTicks := cfg.QuantumMS * cfg.TickHz / 1000
	if quantumTicks <= 0 {
		quantumTicks = 1
	}
	s := &Scheduler{
		h:            h,
		cfg:          cfg,
		log:          klog.Named("sched"),
		quantumTicks: quantumTicks,
	}
	idle := &TCB{ID: 0, stack: make([]byte, 64), State: StateReady, Priority: idlePriority}
	s.paintCanary(idle)
	s.tasks = append(s.tasks, idle)
	return s
}

// Init programs the idle task's context and the HAL tick timer. It
// must be called exactly once, before Run.
func (s *Scheduler) Init() error {
	idle := s.tasks[0]
	idle.ctx = &hal.Context{}
	if err := s.h.ContextInit(idle.ctx, s.idleEntry, idle.stack); err != nil {
		return err
	}
	bootStack := make([]byte, 64)
	s.bootCtx = &hal.Context{}
	if err := s.h.ContextInit(s.bootCtx, func() { select {} }, bootStack); err != nil {
		return err
	}
	s.quantumLeft = s.quantumTicks
	s.h.TimerInit(uint32(s.cfg.TickHz), s.tick)
	return nil
}

func (s *Scheduler) idleEntry() {
	for {
		s.h.Idle()
		s.CheckPreempt()
	}
}

func (s *Scheduler) paintCanary(t *TCB) {
	if len(t.stack) == 0 {
		return
	}
	t.stack[0] = canaryByte
	t.stack[len(t.stack)-1] = canaryByte
}

func (s *Scheduler) checkCanary(t *TCB) {
	if len(t.stack) == 0 {
		return
	}
	if t.stack[0] != canaryByte || t.stack[len(t.stack)-1] != canaryByte {
		s.h.Panic(kerr.FatalCanaryMismatch)
	}
}

// TaskCreate allocates a new task running entry on stack, at the
// given priority (0 highest, 63 lowest application priority). It
// returns the new task's id, or a typed error per spec.md §4.3.
func (s *Scheduler) TaskCreate(entry func(), stack []byte, priority uint8) (TaskID, error) {
	if entry == nil {
		return 0, kerr.ErrInvalidEntry
	}
	if len(stack) < 64 {
		return 0, kerr.ErrInvalidStack
	}

	s.mu.Lock()
	if len(s.tasks)-1 >= s.cfg.MaxTasks {
		s.mu.Unlock()
		return 0, kerr.ErrTooManyTasks
	}
	id := TaskID(len(s.tasks))
	s.mu.Unlock()

	// ContextInit runs before the TCB is published, so the scheduler
	// can never select a task whose context isn't ready yet.
	wrapped := func() {
		entry()
		s.taskExit(id)
	}
	ctx := &hal.Context{}
	if err := s.h.ContextInit(ctx, wrapped, stack); err != nil {
		return 0, err
	}
	t := &TCB{ID: id, ctx: ctx, stack: stack, State: StateReady, Priority: priority}
	s.paintCanary(t)

	s.mu.Lock()
	s.tasks = append(s.tasks, t)
	s.mu.Unlock()

	s.log.Debugw("task created", "id", id, "priority", priority)
	return id, nil
}

// Run enables interrupts and begins scheduling. It never returns: the
// calling goroutine is parked as the scheduler's discarded boot
// context once the first real context switch happens, the same way a
// real port abandons its reset stack once the first task runs.
func (s *Scheduler) Run() error {
	s.mu.Lock()
	s.current = 0 // idle, until find_next picks a real task below
	next := s.findNext()
	nxt := s.tasks[next]
	nxt.State = StateRunning
	s.current = next
	s.quantumLeft = s.quantumTicks
	s.mu.Unlock()

	s.h.IRQEnable()
	s.h.ContextSwitch(s.bootCtx, nxt.ctx)
	return nil
}

// findNext implements spec.md §4.3's find_next. Callers must hold mu.
func (s *Scheduler) findNext() int {
	n := len(s.tasks)
	start := (s.current + 1) % n
	best := -1
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		t := s.tasks[idx]
		if t.State != StateReady {
			continue
		}
		if s.cfg.EnableDAG && t.Deps != 0 {
			continue
		}
		if best == -1 || t.Priority < s.tasks[best].Priority {
			best = idx
		}
	}
	if best != -1 {
		return best
	}
	if s.tasks[s.current].State == StateRunning {
		return s.current
	}
	return 0
}

// reschedule re-evaluates find_next and, if a different task wins,
// performs the context switch. Called from task context only (tick,
// the interrupt-context caller, only sets preemptPending).
func (s *Scheduler) reschedule() {
	irq := s.h.IRQSave()
	s.mu.Lock()
	cur := s.current
	next := s.findNext()
	if next == cur {
		s.quantumLeft = s.quantumTicks
		s.preemptPending.Store(false)
		s.mu.Unlock()
		s.h.IRQRestore(irq)
		return
	}
	fromT, toT := s.tasks[cur], s.tasks[next]
	if fromT.State == StateRunning {
		fromT.State = StateReady
	}
	if s.cfg.StackGuard {
		s.checkCanary(fromT)
	}
	toT.State = StateRunning
	s.current = next
	s.quantumLeft = s.quantumTicks
	s.preemptPending.Store(false)
	fromCtx, toCtx := fromT.ctx, toT.ctx
	s.mu.Unlock()

	s.h.ContextSwitch(fromCtx, toCtx)
	s.h.IRQRestore(irq)
}

// CheckPreempt performs the pending tick-expiry reschedule, if any.
// Real hardware interrupts any instruction; a goroutine cannot be
// halted mid-execution by a library, so simhal-targeted task bodies
// that run loops without an intervening Yield/Sleep/door call are
// expected to call CheckPreempt at each loop iteration to receive the
// same scheduling behavior a tick-preempted port would give them.
func (s *Scheduler) CheckPreempt() {
	if s.preemptPending.Load() {
		s.reschedule() // clears preemptPending itself, win or lose the reselect
	}
}

// Yield voluntarily gives up the remainder of the current quantum.
func (s *Scheduler) Yield() {
	s.mu.Lock()
	s.quantumLeft = 0
	s.mu.Unlock()
	s.reschedule()
}

// Sleep blocks the calling task for at least ms milliseconds.
// Sleep(0) is equivalent to Yield, per spec.md §8's boundary behavior.
func (s *Scheduler) Sleep(ms uint32) {
	if ms == 0 {
		s.Yield()
		return
	}
	ticks := uint32(s.cfg.TickHz)*ms/1000 + 1 // "at least N ms"
	s.mu.Lock()
	t := s.tasks[s.current]
	t.State = StateSleeping
	t.SleepTicks = ticks
	s.quantumLeft = 0
	s.mu.Unlock()
	s.reschedule()
}

// CurrentTID returns the id of the Running task.
func (s *Scheduler) CurrentTID() TaskID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks[s.current].ID
}

// Task looks up a TCB by id. Used by pkg/door to validate a target
// before a directed switch.
func (s *Scheduler) Task(id TaskID) (*TCB, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(id) >= len(s.tasks) {
		return nil, false
	}
	return s.tasks[id], true
}

// SwitchTo performs a directed switch to tid, bypassing find_next.
// pkg/door uses this for its synchronous call/return. An invalid or
// non-Ready tid is silently ignored, per spec.md §4.3's failure
// semantics for invalid tids.
func (s *Scheduler) SwitchTo(tid TaskID) {
	s.mu.Lock()
	if int(tid) >= len(s.tasks) {
		s.mu.Unlock()
		return
	}
	toT := s.tasks[tid]
	if toT.State != StateReady {
		s.mu.Unlock()
		return
	}
	fromT := s.tasks[s.current]
	if fromT.State == StateRunning {
		fromT.State = StateReady
	}
	if s.cfg.StackGuard {
		s.checkCanary(fromT)
	}
	toT.State = StateRunning
	s.current = int(tid)
	s.quantumLeft = s.quantumTicks
	fromCtx, toCtx := fromT.ctx, toT.ctx
	s.mu.Unlock()
	s.h.ContextSwitch(fromCtx, toCtx)
}

// taskExit marks id Terminated and reschedules. It never returns to
// its caller, matching spec.md's "entry returning is treated as exit".
func (s *Scheduler) taskExit(id TaskID) {
	s.mu.Lock()
	s.tasks[id].State = StateTerminated
	s.quantumLeft = 0
	s.mu.Unlock()
	s.log.Debugw("task exit", "id", id)
	s.reschedule() // never switches back into a Terminated task's context
}

// TaskExit is the syscall surface for a task that wants to exit
// itself explicitly rather than by returning from entry.
func (s *Scheduler) TaskExit() {
	s.taskExit(s.CurrentTID())
}

// DepWait blocks the calling task until k dep_signal calls have been
// received. It is a no-op unless Config.EnableDAG is set.
func (s *Scheduler) DepWait(k uint8) {
	if !s.cfg.EnableDAG || k == 0 {
		return
	}
	s.mu.Lock()
	t := s.tasks[s.current]
	t.Deps = k
	t.State = StateBlocked
	s.quantumLeft = 0
	s.mu.Unlock()
	s.reschedule()
}

// DepSignal decrements id's pending-dependency count, transitioning it
// to Ready once it reaches zero. A no-op unless Config.EnableDAG is
// set, or if id is invalid or has no pending dependency.
func (s *Scheduler) DepSignal(id TaskID) {
	if !s.cfg.EnableDAG {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(id) >= len(s.tasks) {
		return
	}
	t := s.tasks[id]
	if t.Deps == 0 {
		return
	}
	t.Deps--
	if t.Deps == 0 && t.State == StateBlocked {
		t.State = StateReady
	}
}

// tick is the HAL timer callback: interrupt context. It updates sleep
// timers and, on quantum expiry, marks a reschedule pending for the
// running task's next CheckPreempt (see CheckPreempt's doc comment).
func (s *Scheduler) tick() {
	s.mu.Lock()
	for _, t := range s.tasks {
		if t.State == StateSleeping {
			if t.SleepTicks > 0 {
				t.SleepTicks--
			}
			if t.SleepTicks == 0 {
				t.State = StateReady
			}
		}
	}
	s.quantumLeft--
	expired := s.quantumLeft <= 0
	s.mu.Unlock()
	if expired {
		s.preemptPending.Store(true)
	}
}
