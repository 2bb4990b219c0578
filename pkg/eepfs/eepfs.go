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

// Package eepfs is TinyLog-4, avrix's wear-leveled key-value log over
// the device EEPROM: fixed-size rows of four-byte CRC-checked
// records, rolled over as they fill. See spec.md §4.8.
package eepfs

import (
	"avrix.dev/avrix/internal/klog"
	"avrix.dev/avrix/pkg/crc8"
	"avrix.dev/avrix/pkg/kerr"
	"go.uber.org/zap"
)

const (
	tagPut = 0x01
	tagDel = 0x02

	tagRow = 0x7F

	blockSize   = 4
	trailerSize = 2
	maxKey      = 1 << 11 // 2048
	maxValue    = 1 << 5  // 32
)

// Config tunes the row layout. Defaults match spec.md §4.8.
type Config struct {
	Rows    int // ROWS
	RowSize int // ROW_SIZE
}

// DefaultConfig returns ROWS=16, ROW_SIZE=64.
func DefaultConfig() Config {
	return Config{Rows: 16, RowSize: 64}
}

func (c Config) recordsPerRow() int {
	return (c.RowSize - trailerSize) / blockSize
}

// Backing is the byte-addressable storage TinyLog-4 runs over. A real
// port implements it directly against EEPROM; this module ships
// MemBacking (RAM array, the real-device default) and LevelDBBacking
// (goleveldb-persisted, for host "simulate a reboot" testing).
type Backing interface {
	ReadAt(buf []byte, offset int) (int, error)
	WriteAt(buf []byte, offset int) error
	Erase(row int) error
}

// Log is a mounted TinyLog-4 filesystem.
type Log struct {
	cfg     Config
	backing Backing
	log     *zap.SugaredLogger

	current  int
	sequence byte
	cursor   int
}

// Mount scans every row's trailer to find the current row (the valid
// trailer with the greatest sequence number in modulo-256 circular
// order) and locates its write cursor: the first data block whose CRC
// does not verify. If the current row is already full, it is rolled
// over to a freshly erased row before Mount returns.
func Mount(cfg Config, b Backing) (*Log, error) {
	l := &Log{cfg: cfg, backing: b, log: klog.Named("eepfs")}

	foundAny := false
	for row := 0; row < cfg.Rows; row++ {
		seq, ok := l.readTrailer(row)
		if !ok {
			continue
		}
		if !foundAny || seqAfter(seq, l.sequence) {
			l.current = row
			l.sequence = seq
			foundAny = true
		}
	}
	if !foundAny {
		l.current = 0
		l.sequence = 0
	}

	l.cursor = l.scanCursor(l.current)
	if l.cursor >= l.cfg.recordsPerRow() {
		if err := l.rollover(); err != nil {
			return nil, err
		}
	}
	l.log.Debugw("mount", "current", l.current, "sequence", l.sequence, "cursor", l.cursor)
	return l, nil
}

// readTrailer reads row's two-byte trailer and reports its sequence
// number, ok=false if the trailer's tag byte isn't TAG_ROW.
func (l *Log) readTrailer(row int) (byte, bool) {
	buf := make([]byte, trailerSize)
	off := row*l.cfg.RowSize + l.cfg.RowSize - trailerSize
	if _, err := l.backing.ReadAt(buf, off); err != nil {
		return 0, false
	}
	if buf[1] != tagRow {
		return 0, false
	}
	return buf[0], true
}

// seqAfter reports whether a comes after b in signed circular
// (modulo-256) order.
func seqAfter(a, b byte) bool {
	return int8(a-b) > 0
}

// scanCursor returns the index of the first record in row whose CRC
// does not verify, or recordsPerRow() if every record verifies (row
// is full).
func (l *Log) scanCursor(row int) int {
	n := l.cfg.recordsPerRow()
	for i := 0; i < n; i++ {
		buf := make([]byte, blockSize)
		off := row*l.cfg.RowSize + i*blockSize
		if _, err := l.backing.ReadAt(buf, off); err != nil {
			return i
		}
		if crc8.Checksum(buf[:3]) != buf[3] {
			return i
		}
	}
	return n
}

// rollover erases the next row, writes its trailer with the next
// sequence number, and makes it the current row with an empty cursor.
func (l *Log) rollover() error {
	next := (l.current + 1) % l.cfg.Rows
	if err := l.backing.Erase(next); err != nil {
		return err
	}
	seq := l.sequence + 1
	trailer := [trailerSize]byte{seq, tagRow}
	off := next*l.cfg.RowSize + l.cfg.RowSize - trailerSize
	if err := l.backing.WriteAt(trailer[:], off); err != nil {
		return err
	}
	l.current = next
	l.sequence = seq
	l.cursor = 0
	l.log.Debugw("rollover", "row", next, "sequence", seq)
	return nil
}

func packRecord(tag byte, key, value int) [blockSize]byte {
	packed := uint16(key)<<5 | uint16(value)
	d0, d1 := byte(packed>>8), byte(packed)
	var rec [blockSize]byte
	rec[0], rec[1], rec[2] = tag, d0, d1
	rec[3] = crc8.Checksum(rec[:3])
	return rec
}

func unpackKeyValue(d0, d1 byte) (key, value int) {
	packed := uint16(d0)<<8 | uint16(d1)
	return int(packed >> 5), int(packed & 0x1F)
}

// appendRecord writes rec at the current cursor, verifies the CRC
// byte reads back correctly, and advances the cursor — rolling to a
// freshly-erased row once the current one fills. It never advances
// the cursor on a verify failure.
func (l *Log) appendRecord(rec [blockSize]byte) error {
	if l.cursor >= l.cfg.recordsPerRow() {
		if err := l.rollover(); err != nil {
			return err
		}
	}
	off := l.current*l.cfg.RowSize + l.cursor*blockSize
	if err := l.backing.WriteAt(rec[:], off); err != nil {
		return err
	}
	readback := make([]byte, blockSize)
	if _, err := l.backing.ReadAt(readback, off); err != nil {
		return err
	}
	for i := range rec {
		if readback[i] != rec[i] {
			return kerr.ErrIO
		}
	}
	l.cursor++
	if l.cursor >= l.cfg.recordsPerRow() {
		return l.rollover()
	}
	return nil
}

// Put stores value under key, returning kerr.ErrInvalidArg if either
// is out of range and kerr.ErrIO if the write-back verification fails
// (the cursor does not advance in that case).
func (l *Log) Put(key, value int) error {
	if key < 0 || key >= maxKey || value < 0 || value >= maxValue {
		return kerr.ErrInvalidArg
	}
	return l.appendRecord(packRecord(tagPut, key, value))
}

// Del appends a tombstone for key.
func (l *Log) Del(key int) error {
	if key < 0 || key >= maxKey {
		return kerr.ErrInvalidArg
	}
	return l.appendRecord(packRecord(tagDel, key, 0))
}

// Get walks backward from the write cursor across every row, stopping
// at the first invalid CRC or after one full revolution, returning
// the most recently written value for key (kerr.ErrNotFound if the
// most recent record for key is a tombstone, or if key was never
// written within the scanned range).
func (l *Log) Get(key int) (int, error) {
	n := l.cfg.recordsPerRow()
	row, idx := l.current, l.cursor-1
	for visited := 0; visited < l.cfg.Rows*n; visited++ {
		if idx < 0 {
			row = (row - 1 + l.cfg.Rows) % l.cfg.Rows
			idx = n - 1
			if row == l.current {
				break // one full revolution
			}
			continue
		}
		buf := make([]byte, blockSize)
		off := row*l.cfg.RowSize + idx*blockSize
		if _, err := l.backing.ReadAt(buf, off); err != nil {
			break
		}
		if crc8.Checksum(buf[:3]) != buf[3] {
			break // invalid CRC stops the scan
		}
		k, v := unpackKeyValue(buf[1], buf[2])
		if k == key {
			if buf[0] == tagDel {
				return 0, kerr.ErrNotFound
			}
			return v, nil
		}
		idx--
	}
	return 0, kerr.ErrNotFound
}

// GC compacts the current row: it rewrites every live (non-tombstoned,
// non-superseded-within-the-row) key into a freshly erased row and
// retires the old one. See the Open Question decision recorded in
// DESIGN.md: GC is a real compaction pass, not a placeholder.
func (l *Log) GC() error {
	type liveEntry struct {
		key, value int
		tombstone  bool
	}
	live := map[int]liveEntry{}
	order := make([]int, 0, l.cursor)
	for i := 0; i < l.cursor; i++ {
		buf := make([]byte, blockSize)
		off := l.current*l.cfg.RowSize + i*blockSize
		if _, err := l.backing.ReadAt(buf, off); err != nil {
			return err
		}
		if crc8.Checksum(buf[:3]) != buf[3] {
			continue
		}
		k, v := unpackKeyValue(buf[1], buf[2])
		if _, seen := live[k]; !seen {
			order = append(order, k)
		}
		live[k] = liveEntry{key: k, value: v, tombstone: buf[0] == tagDel}
	}

	if err := l.rollover(); err != nil {
		return err
	}
	for _, k := range order {
		e := live[k]
		if e.tombstone {
			continue
		}
		if err := l.Put(e.key, e.value); err != nil {
			return err
		}
	}
	l.log.Debugw("gc", "row", l.current, "kept", len(order))
	return nil
}

// CurrentRow reports the mount's current row index, for diagnostics
// and tests.
func (l *Log) CurrentRow() int { return l.current }
