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

package romfs_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"avrix.dev/avrix/pkg/hal/simhal"
	"avrix.dev/avrix/pkg/romfs"
)

// buildTestImage builds /etc/config/version.txt containing "1.0\n",
// mirroring spec.md §8 scenario S6.
func buildTestImage() *romfs.FileTable {
	ft := &romfs.FileTable{
		Dirs: []romfs.Dir{
			{Entries: []romfs.Entry{{Name: "etc", Kind: romfs.KindDir, Index: 1}}},          // 0: root
			{Entries: []romfs.Entry{{Name: "config", Kind: romfs.KindDir, Index: 2}}},        // 1: /etc
			{Entries: []romfs.Entry{{Name: "version.txt", Kind: romfs.KindFile, Index: 0}}}, // 2: /etc/config
		},
		Files: []romfs.File{
			{Name: "version.txt", Data: []byte("1.0\n")},
		},
		Root: 0,
	}
	return ft
}

func TestOpenReadVersionFile(t *testing.T) {
	ft := buildTestImage()
	h := simhal.New(0.001)

	handle, ok := ft.Open("/etc/config/version.txt")
	require.True(t, ok)
	assert.Equal(t, 4, handle.Size)

	buf := make([]byte, 16)
	n := ft.Read(h, handle, 0, buf)
	assert.Equal(t, 4, n)
	assert.Equal(t, "1.0\n", string(buf[:n]))
}

func TestReadAtEOFReturnsZero(t *testing.T) {
	ft := buildTestImage()
	h := simhal.New(0.001)
	handle, ok := ft.Open("/etc/config/version.txt")
	require.True(t, ok)

	buf := make([]byte, 16)
	n := ft.Read(h, handle, 4, buf)
	assert.Equal(t, 0, n)
}

func TestOpenUnknownPathFails(t *testing.T) {
	ft := buildTestImage()
	_, ok := ft.Open("/etc/config/missing.txt")
	assert.False(t, ok)
}

func TestOpenDirectoryPathFails(t *testing.T) {
	ft := buildTestImage()
	_, ok := ft.Open("/etc/config")
	assert.False(t, ok)
}

func TestReadClampsToFileSize(t *testing.T) {
	ft := buildTestImage()
	h := simhal.New(0.001)
	handle, ok := ft.Open("/etc/config/version.txt")
	require.True(t, ok)

	buf := make([]byte, 2)
	n := ft.Read(h, handle, 0, buf)
	assert.Equal(t, 2, n)
	assert.Equal(t, "1.", string(buf[:n]))
}
