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

package vfs_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"avrix.dev/avrix/pkg/eepfs"
	"avrix.dev/avrix/pkg/kerr"
	"avrix.dev/avrix/pkg/vfs"
)

func TestEepfsFSWriteThenReadThroughVFS(t *testing.T) {
	cfg := eepfs.DefaultConfig()
	l, err := eepfs.Mount(cfg, eepfs.NewMemBacking(cfg))
	require.NoError(t, err)

	v := vfs.New(4)
	require.NoError(t, v.Mount("/ee", vfs.TagEepfs, vfs.NewEepfsFS(l)))

	fd, err := v.Open("/ee/42")
	require.NoError(t, err)

	n, err := v.Write(fd, []byte{7}, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	buf := make([]byte, 1)
	n, err = v.Read(fd, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, byte(7), buf[0])
}

func TestEepfsFSReadOfUnwrittenKeyIsNotFound(t *testing.T) {
	cfg := eepfs.DefaultConfig()
	l, err := eepfs.Mount(cfg, eepfs.NewMemBacking(cfg))
	require.NoError(t, err)

	v := vfs.New(4)
	require.NoError(t, v.Mount("/ee", vfs.TagEepfs, vfs.NewEepfsFS(l)))

	fd, err := v.Open("/ee/5")
	require.NoError(t, err)

	buf := make([]byte, 1)
	_, err = v.Read(fd, buf, 0)
	assert.ErrorIs(t, err, kerr.ErrNotFound)
}
