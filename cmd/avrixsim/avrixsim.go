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

// Command avrixsim boots simhal, wires up a default kconfig, and runs
// one of the concrete scenarios from spec.md §8 on command, logging
// scheduling decisions as structured (zap) fields. Grounded on
// pkg/cmdmain's flag-based subcommand harness.
package main

import (
	"flag"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/atomic"

	"avrix.dev/avrix/internal/klog"
	"avrix.dev/avrix/pkg/door"
	"avrix.dev/avrix/pkg/eepfs"
	"avrix.dev/avrix/pkg/hal/simhal"
	"avrix.dev/avrix/pkg/kconfig"
	"avrix.dev/avrix/pkg/klock"
	"avrix.dev/avrix/pkg/sched"
)

var scenario = flag.String("scenario", "s1", "which spec.md §8 scenario to run: s1, s2, s4, s5")

func usage() {
	fmt.Fprint(os.Stderr, "usage: avrixsim -scenario={s1,s2,s4,s5}\n")
	flag.PrintDefaults()
	os.Exit(2)
}

func main() {
	flag.Usage = usage
	flag.Parse()

	cfg := kconfig.Default()
	log := klog.Named("avrixsim")
	log.Infow("boot", "config", cfg)

	switch *scenario {
	case "s1":
		runFastLockCounter(cfg)
	case "s2":
		runSleepResume(cfg)
	case "s4":
		runDoorCall(cfg)
	case "s5":
		runEepromLog()
	default:
		usage()
	}
}

// runFastLockCounter is scenario S1: two tasks increment a shared
// counter through a FastLock; the total must equal the sum of both
// contributions.
func runFastLockCounter(cfg kconfig.Config) {
	h := simhal.New(0.001)
	defer h.StopTimer()
	s := sched.New(h, sched.Config{MaxTasks: cfg.MaxTasks, QuantumMS: cfg.QuantumMS, TickHz: cfg.TickHz})
	must(s.Init())

	var lock klock.FastLock
	var mu sync.Mutex
	counter := 0
	var wg sync.WaitGroup
	wg.Add(2)

	body := func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			lock.Lock(h)
			mu.Lock()
			counter++
			mu.Unlock()
			lock.Unlock(h)
			s.CheckPreempt()
		}
	}
	must2(s.TaskCreate(body, make([]byte, 256), 1))
	must2(s.TaskCreate(body, make([]byte, 256), 2))

	go s.Run()
	wg.Wait()
	klog.Named("avrixsim").Infow("s1 done", "counter", counter)
}

// runSleepResume is scenario S2: a sleeping task is not rescheduled
// until its sleep timer expires, while a lower-priority task spins.
func runSleepResume(cfg kconfig.Config) {
	h := simhal.New(0.001)
	defer h.StopTimer()
	s := sched.New(h, sched.Config{MaxTasks: cfg.MaxTasks, QuantumMS: cfg.QuantumMS, TickHz: cfg.TickHz})
	must(s.Init())

	var stop atomic.Bool
	woke := make(chan struct{})
	start := time.Now()

	sleeper := func() {
		s.Sleep(20)
		close(woke)
		stop.Store(true)
	}
	spinner := func() {
		for !stop.Load() {
			s.CheckPreempt()
		}
	}
	must2(s.TaskCreate(sleeper, make([]byte, 256), 1))
	must2(s.TaskCreate(spinner, make([]byte, 256), 2))

	go s.Run()
	<-woke
	klog.Named("avrixsim").Infow("s2 done", "elapsed", time.Since(start))
}

// runDoorCall is scenario S4: task A calls task B with a CRC-enabled
// Door descriptor; B reverses the payload bytes and returns.
func runDoorCall(cfg kconfig.Config) {
	h := simhal.New(0.001)
	defer h.StopTimer()
	s := sched.New(h, sched.Config{MaxTasks: cfg.MaxTasks, QuantumMS: cfg.QuantumMS, TickHz: cfg.TickHz})
	must(s.Init())

	dr := door.New(s, cfg.DoorSlots, cfg.DoorSlabSize)
	buf := make([]byte, 32)
	for i := range buf {
		buf[i] = byte(i + 1)
	}

	var bTid sched.TaskID
	done := make(chan struct{})

	callee := func() {
		msg := dr.Message()
		payload := msg[:len(msg)-1]
		for i, j := 0, len(payload)-1; i < j; i, j = i+1, j-1 {
			payload[i], payload[j] = payload[j], payload[i]
		}
		dr.Return()
	}
	caller := func() {
		dr.Register(s.CurrentTID(), 0, door.Descriptor{Target: bTid, Words: 4, Flags: door.FlagCRC})
		dr.Call(s.CurrentTID(), 0, buf)
		close(done)
	}

	id := must2(s.TaskCreate(callee, make([]byte, 256), 2))
	bTid = id
	must2(s.TaskCreate(caller, make([]byte, 256), 1))

	go s.Run()
	<-done
	klog.Named("avrixsim").Infow("s4 done", "reversed", buf)
}

// runEepromLog is scenario S5: put/put/put/del on a mounted TinyLog-4
// log, then two lookups confirming the tombstone and the live value.
func runEepromLog() {
	cfg := eepfs.DefaultConfig()
	l, err := eepfs.Mount(cfg, eepfs.NewMemBacking(cfg))
	must(err)
	must(l.Put(42, 7))
	must(l.Put(42, 9))
	must(l.Put(100, 3))
	must(l.Del(42))

	_, err42 := l.Get(42)
	v100, err100 := l.Get(100)
	klog.Named("avrixsim").Infow("s5 done", "get42_err", err42, "get100", v100, "get100_err", err100)
}

func must(err error) {
	if err != nil {
		klog.Named("avrixsim").Fatalw("fatal", "err", err)
	}
}

func must2[T any](v T, err error) T {
	must(err)
	return v
}
