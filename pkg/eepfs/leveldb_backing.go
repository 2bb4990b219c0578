/*
Copyright 2013 The Perkeep Authors.

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

package eepfs

import (
	"github.com/syndtr/goleveldb/leveldb"

	"avrix.dev/avrix/pkg/kerr"
)

var imageKey = []byte("eepfs-image")

// LevelDBBacking persists the EEPROM byte image as a single value
// under a single key in a goleveldb database, so a host test (or
// cmd/avrixfuse, cmd/avrixrom) can reopen the same on-disk directory
// and see the log exactly as it was left — a "simulate a reboot"
// backing, unlike MemBacking which a process restart always erases.
// Grounded on cmd/pk-put's KvHaveCache.
type LevelDBBacking struct {
	cfg   Config
	db    *leveldb.DB
	image []byte
}

// NewLevelDBBacking opens (or creates) a goleveldb database at dir and
// loads its stored image, or a freshly erased one if dir is new.
func NewLevelDBBacking(cfg Config, dir string) (*LevelDBBacking, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, err
	}
	size := cfg.Rows * cfg.RowSize
	stored, err := db.Get(imageKey, nil)
	var image []byte
	switch {
	case err == leveldb.ErrNotFound:
		image = make([]byte, size)
		for i := range image {
			image[i] = 0xFF
		}
		if err := db.Put(imageKey, image, nil); err != nil {
			db.Close()
			return nil, err
		}
	case err != nil:
		db.Close()
		return nil, err
	default:
		image = make([]byte, size)
		copy(image, stored)
	}
	return &LevelDBBacking{cfg: cfg, db: db, image: image}, nil
}

func (l *LevelDBBacking) ReadAt(buf []byte, offset int) (int, error) {
	if offset < 0 || offset+len(buf) > len(l.image) {
		return 0, kerr.ErrInvalidArg
	}
	return copy(buf, l.image[offset:offset+len(buf)]), nil
}

func (l *LevelDBBacking) WriteAt(buf []byte, offset int) error {
	if offset < 0 || offset+len(buf) > len(l.image) {
		return kerr.ErrInvalidArg
	}
	copy(l.image[offset:offset+len(buf)], buf)
	return l.db.Put(imageKey, l.image, nil)
}

func (l *LevelDBBacking) Erase(row int) error {
	if row < 0 || row >= l.cfg.Rows {
		return kerr.ErrInvalidArg
	}
	start := row * l.cfg.RowSize
	for i := start; i < start+l.cfg.RowSize; i++ {
		l.image[i] = 0xFF
	}
	return l.db.Put(imageKey, l.image, nil)
}

// Close releases the underlying goleveldb handle.
func (l *LevelDBBacking) Close() error {
	return l.db.Close()
}
