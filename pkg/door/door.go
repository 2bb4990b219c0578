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

// Package door implements avrix's zero-copy synchronous Door RPC:
// a per-task table of call descriptors and one process-wide slab,
// with the actual transfer of control done by pkg/sched's directed
// switch_to. See spec.md §4.5.
package door

import (
	"sync"

	"avrix.dev/avrix/internal/klog"
	"avrix.dev/avrix/pkg/crc8"
	"avrix.dev/avrix/pkg/sched"
	"go.uber.org/zap"
)

// FlagCRC marks a descriptor whose payload carries a Dallas/Maxim
// CRC-8 trailer. The other three flag bits are reserved.
const FlagCRC uint8 = 0x1

// MaxSlots is the largest legal per-task descriptor table size: the
// wire format's target-tid and word-count nibbles are 4 bits each, so
// an index and a task id must each fit in one nibble.
const MaxSlots = 15

// Descriptor is one registered call: where it goes, how many 8-byte
// words it carries, and its flag nibble.
type Descriptor struct {
	Target sched.TaskID
	Words  uint8 // 8-byte words, 1-15
	Flags  uint8 // 4-bit nibble; bit 0 is FlagCRC
}

// Pack encodes d into spec.md §6's normative two-byte wire layout:
// {tgt_tid:4, words:4, flags:4, reserved:4}.
func (d Descriptor) Pack() [2]byte {
	return [2]byte{
		byte(d.Target&0xF)<<4 | byte(d.Words&0xF),
		byte(d.Flags&0xF) << 4,
	}
}

// Unpack decodes the wire layout Pack produces.
func Unpack(b [2]byte) Descriptor {
	return Descriptor{
		Target: sched.TaskID(b[0] >> 4),
		Words:  b[0] & 0xF,
		Flags:  b[1] >> 4,
	}
}

// Door is avrix's single process-wide Door: every task's descriptor
// table plus the one shared payload slab. The zero value is not
// usable; construct with New.
type Door struct {
	sc    *sched.Scheduler
	slots int
	slab  []byte
	log   *zap.SugaredLogger

	mu          sync.Mutex
	tables      map[sched.TaskID][]Descriptor
	callerTid   sched.TaskID
	active      []byte
	activeWords uint8
	activeFlags uint8
}

// New constructs a Door with slots per-task descriptor slots and a
// slabSize-byte shared payload slab.
func New(sc *sched.Scheduler, slots, slabSize int) *Door {
	if slots <= 0 || slots > MaxSlots {
		slots = MaxSlots
	}
	if slabSize <= 0 {
		slabSize = 128
	}
	return &Door{
		sc:     sc,
		slots:  slots,
		slab:   make([]byte, slabSize),
		log:    klog.Named("door"),
		tables: make(map[sched.TaskID][]Descriptor),
	}
}

// Register installs d at idx in task's descriptor table. Per spec.md
// §4.5, a malformed registration (idx out of range, zero words, or a
// payload too large for the slab) is silently ignored rather than
// returning an error.
func (d *Door) Register(task sched.TaskID, idx int, desc Descriptor) {
	if idx < 0 || idx >= d.slots || desc.Words == 0 || int(desc.Words)*8 > len(d.slab) {
		d.log.Debugw("register ignored", "task", task, "idx", idx)
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	tbl := d.tables[task]
	for len(tbl) <= idx {
		tbl = append(tbl, Descriptor{})
	}
	tbl[idx] = desc
	d.tables[task] = tbl
}

// Call performs a synchronous Door call from caller's slot idx. If
// the descriptor is empty it returns immediately. Otherwise it
// publishes buf (copying it into the slab and appending a CRC-8
// trailer only when the descriptor's CRC flag is set; with the flag
// clear, the callee operates directly on buf, the "zero-copy" case),
// switches to the target task, and on resume copies the slab's reply
// back into buf when a copy was made in the first place.
func (d *Door) Call(caller sched.TaskID, idx int, buf []byte) {
	d.mu.Lock()
	tbl := d.tables[caller]
	if idx < 0 || idx >= len(tbl) {
		d.mu.Unlock()
		return
	}
	desc := tbl[idx]
	d.mu.Unlock()
	if desc.Words == 0 {
		return
	}

	length := int(desc.Words) * 8
	useCRC := desc.Flags&FlagCRC != 0

	var active []byte
	switch {
	case useCRC:
		if length >= len(d.slab) {
			return
		}
		n := copy(d.slab, buf[:min(length, len(buf))])
		d.slab[n] = crc8.Checksum(d.slab[:n])
		active = d.slab[:n+1]
	default:
		if length > len(buf) {
			return
		}
		active = buf[:length]
	}

	d.mu.Lock()
	d.callerTid = caller
	d.active = active
	d.activeWords = desc.Words
	d.activeFlags = desc.Flags
	d.mu.Unlock()

	d.log.Debugw("call", "caller", caller, "target", desc.Target, "words", desc.Words)
	d.sc.SwitchTo(desc.Target)

	if useCRC {
		copy(buf, d.slab[:length])
	}
}

// Return switches back to caller. Per spec.md §4.5 the callee has
// already written its reply into Message()'s slice before calling
// Return; there is no separate result value.
func (d *Door) Return() {
	d.mu.Lock()
	caller := d.callerTid
	d.mu.Unlock()
	d.sc.SwitchTo(caller)
}

// Message returns the active call's payload slice: the slab (with its
// CRC-8 trailer, if any) when the descriptor requested CRC, or the
// caller's own buffer otherwise.
func (d *Door) Message() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// Words returns the active call's published word count.
func (d *Door) Words() uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.activeWords
}

// Flags returns the active call's published flag nibble.
func (d *Door) Flags() uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.activeFlags
}

// VerifyCRC reports whether the active call's CRC-8 trailer matches
// its payload. It is a semantic check the callee is expected to make
// itself; the RPC core never rejects a call on CRC failure (spec.md
// §4.5: "CRC failures are reported by the callee at semantic level").
func (d *Door) VerifyCRC() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.activeFlags&FlagCRC == 0 {
		return true
	}
	n := len(d.active)
	if n == 0 {
		return false
	}
	payload, got := d.active[:n-1], d.active[n-1]
	return crc8.Checksum(payload) == got
}
