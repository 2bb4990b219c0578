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

package eepfs_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"avrix.dev/avrix/pkg/eepfs"
	"avrix.dev/avrix/pkg/kerr"
)

// TestPutDelGetSequence is spec.md §8 scenario S5: mount an EEPROM log
// initialized to 0xFF, put(42,7), put(42,9), put(100,3), del(42); then
// get(42) is NotFound (tombstoned) and get(100) is 3.
func TestPutDelGetSequence(t *testing.T) {
	cfg := eepfs.DefaultConfig()
	b := eepfs.NewMemBacking(cfg)
	l, err := eepfs.Mount(cfg, b)
	require.NoError(t, err)

	require.NoError(t, l.Put(42, 7))
	require.NoError(t, l.Put(42, 9))
	require.NoError(t, l.Put(100, 3))
	require.NoError(t, l.Del(42))

	_, err = l.Get(42)
	assert.ErrorIs(t, err, kerr.ErrNotFound)

	v, err := l.Get(100)
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}

// TestRemountOverSameImageReproducesState simulates a reboot: a fresh
// *Log mounted over the same backing image sees identical results.
func TestRemountOverSameImageReproducesState(t *testing.T) {
	cfg := eepfs.DefaultConfig()
	b := eepfs.NewMemBacking(cfg)
	l, err := eepfs.Mount(cfg, b)
	require.NoError(t, err)
	require.NoError(t, l.Put(42, 7))
	require.NoError(t, l.Put(42, 9))
	require.NoError(t, l.Put(100, 3))
	require.NoError(t, l.Del(42))

	l2, err := eepfs.Mount(cfg, b)
	require.NoError(t, err)

	_, err = l2.Get(42)
	assert.ErrorIs(t, err, kerr.ErrNotFound)
	v, err := l2.Get(100)
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}

func TestPutRejectsOutOfRangeKeyOrValue(t *testing.T) {
	cfg := eepfs.DefaultConfig()
	l, err := eepfs.Mount(cfg, eepfs.NewMemBacking(cfg))
	require.NoError(t, err)

	assert.ErrorIs(t, l.Put(2048, 1), kerr.ErrInvalidArg)
	assert.ErrorIs(t, l.Put(1, 32), kerr.ErrInvalidArg)
	assert.ErrorIs(t, l.Put(-1, 1), kerr.ErrInvalidArg)
}

func TestGetMissingKeyIsNotFound(t *testing.T) {
	cfg := eepfs.DefaultConfig()
	l, err := eepfs.Mount(cfg, eepfs.NewMemBacking(cfg))
	require.NoError(t, err)
	_, err = l.Get(5)
	assert.ErrorIs(t, err, kerr.ErrNotFound)
}

// TestRowRolloverAcrossManyPuts writes enough records to roll over
// several rows and checks the log stays internally consistent: each
// key's last write always wins regardless of which row it landed in.
func TestRowRolloverAcrossManyPuts(t *testing.T) {
	cfg := eepfs.Config{Rows: 4, RowSize: 64} // 15 records/row, 4 rows
	l, err := eepfs.Mount(cfg, eepfs.NewMemBacking(cfg))
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		require.NoError(t, l.Put(1, i%32))
	}
	v, err := l.Get(1)
	require.NoError(t, err)
	assert.Equal(t, 49%32, v)
}

// TestGCCompactsCurrentRowKeepingLatestValues exercises the Open
// Question decision that GC is a real compaction pass: after GC,
// superseded and tombstoned records are gone but the latest live
// value for each key is still retrievable.
func TestGCCompactsCurrentRowKeepingLatestValues(t *testing.T) {
	cfg := eepfs.DefaultConfig()
	l, err := eepfs.Mount(cfg, eepfs.NewMemBacking(cfg))
	require.NoError(t, err)

	require.NoError(t, l.Put(1, 1))
	require.NoError(t, l.Put(1, 2))
	require.NoError(t, l.Put(2, 5))
	require.NoError(t, l.Del(2))
	require.NoError(t, l.Put(3, 9))

	beforeRow := l.CurrentRow()
	require.NoError(t, l.GC())
	assert.NotEqual(t, beforeRow, l.CurrentRow())

	v, err := l.Get(1)
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	_, err = l.Get(2)
	assert.ErrorIs(t, err, kerr.ErrNotFound)

	v, err = l.Get(3)
	require.NoError(t, err)
	assert.Equal(t, 9, v)
}

func TestLevelDBBackingPersistsAcrossReopen(t *testing.T) {
	cfg := eepfs.DefaultConfig()
	dir := filepath.Join(t.TempDir(), "eepfs.leveldb")

	b, err := eepfs.NewLevelDBBacking(cfg, dir)
	require.NoError(t, err)
	l, err := eepfs.Mount(cfg, b)
	require.NoError(t, err)
	require.NoError(t, l.Put(7, 1))
	require.NoError(t, b.Close())

	b2, err := eepfs.NewLevelDBBacking(cfg, dir)
	require.NoError(t, err)
	defer b2.Close()
	l2, err := eepfs.Mount(cfg, b2)
	require.NoError(t, err)

	v, err := l2.Get(7)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}
