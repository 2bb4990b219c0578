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

package door_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"avrix.dev/avrix/pkg/crc8"
	"avrix.dev/avrix/pkg/door"
	"avrix.dev/avrix/pkg/hal/simhal"
	"avrix.dev/avrix/pkg/sched"
)

func TestDescriptorPackUnpackRoundTrip(t *testing.T) {
	d := door.Descriptor{Target: 7, Words: 4, Flags: 0x1}
	got := door.Unpack(d.Pack())
	assert.Equal(t, d, got)
}

func TestRegisterIgnoresMalformedEntries(t *testing.T) {
	h := simhal.New(0.001)
	s := sched.New(h, sched.Config{})
	require.NoError(t, s.Init())
	t.Cleanup(h.StopTimer)
	dr := door.New(s, 4, 32)

	dr.Register(1, 0, door.Descriptor{Target: 2, Words: 0}) // zero words
	dr.Register(1, 99, door.Descriptor{Target: 2, Words: 1}) // idx out of range
	dr.Register(1, 1, door.Descriptor{Target: 2, Words: 255}) // too big for slab

	dr.Call(1, 0, make([]byte, 8)) // must be a silent no-op, not a panic
	dr.Call(1, 1, make([]byte, 8))
}

// TestCallReturnReversesBuffer is spec.md §8 scenario S4: task A calls
// task B with a 4-word, CRC-enabled descriptor; B verifies the CRC,
// reverses the bytes, and A observes the reversed buffer on return.
func TestCallReturnReversesBuffer(t *testing.T) {
	h := simhal.New(0.001)
	s := sched.New(h, sched.Config{MaxTasks: 4, QuantumMS: 1, TickHz: 1000})
	require.NoError(t, s.Init())
	t.Cleanup(h.StopTimer)

	dr := door.New(s, 4, 64)

	buf := make([]byte, 32)
	for i := range buf {
		buf[i] = byte(i + 1) // 0x01..0x20
	}

	var bTid sched.TaskID
	done := make(chan struct{})
	var sawCRC bool

	callee := func() {
		msg := dr.Message()
		sawCRC = dr.VerifyCRC()
		payload := msg[:len(msg)-1] // strip CRC trailer
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

	id, err := s.TaskCreate(callee, make([]byte, 256), 2)
	require.NoError(t, err)
	bTid = id
	_, err = s.TaskCreate(caller, make([]byte, 256), 1)
	require.NoError(t, err)

	go s.Run()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("door call never completed")
	}

	assert.True(t, sawCRC)
	want := make([]byte, 32)
	for i := range want {
		want[i] = byte(32 - i)
	}
	assert.Equal(t, want, buf)
}

func TestCRCChecksumIsDeterministic(t *testing.T) {
	a := crc8.Checksum([]byte{0x01, 0x02, 0x03})
	b := crc8.Checksum([]byte{0x01, 0x02, 0x03})
	assert.Equal(t, a, b)
	c := crc8.Checksum([]byte{0x01, 0x02, 0x04})
	assert.NotEqual(t, a, c)
}
