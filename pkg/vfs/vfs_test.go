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

	"avrix.dev/avrix/pkg/kerr"
	"avrix.dev/avrix/pkg/vfs"
)

// memFS is a minimal in-memory vfs.FileSystem used only to exercise
// the dispatch layer, independent of any real backing filesystem.
type memFS struct {
	files map[string][]byte
	open  map[int]string
	next  int
}

func newMemFS(files map[string][]byte) *memFS {
	return &memFS{files: files, open: map[int]string{}}
}

func (m *memFS) Open(path string) (int, int, error) {
	data, ok := m.files[path]
	if !ok {
		return 0, 0, kerr.ErrNotFound
	}
	h := m.next
	m.next++
	m.open[h] = path
	return h, len(data), nil
}

func (m *memFS) Read(handle int, buf []byte, offset int) (int, error) {
	path, ok := m.open[handle]
	if !ok {
		return 0, kerr.ErrInvalidArg
	}
	data := m.files[path]
	if offset >= len(data) {
		return 0, nil
	}
	n := copy(buf, data[offset:])
	return n, nil
}

func (m *memFS) Write(handle int, buf []byte, offset int) (int, error) {
	path, ok := m.open[handle]
	if !ok {
		return 0, kerr.ErrInvalidArg
	}
	data := m.files[path]
	end := offset + len(buf)
	if end > len(data) {
		grown := make([]byte, end)
		copy(grown, data)
		data = grown
	}
	copy(data[offset:], buf)
	m.files[path] = data
	return len(buf), nil
}

func (m *memFS) Close(handle int) error {
	if _, ok := m.open[handle]; !ok {
		return kerr.ErrInvalidArg
	}
	delete(m.open, handle)
	return nil
}

func (m *memFS) List(string) ([]string, error) {
	var names []string
	for name := range m.files {
		names = append(names, name)
	}
	return names, nil
}

func TestMountRejectsDuplicatePath(t *testing.T) {
	v := vfs.New(4)
	fs := newMemFS(nil)
	require.NoError(t, v.Mount("/data", vfs.TagOther, fs))
	assert.ErrorIs(t, v.Mount("/data", vfs.TagOther, fs), kerr.ErrInvalidArg)
}

func TestLongestPrefixMatchPicksMoreSpecificMount(t *testing.T) {
	v := vfs.New(4)
	root := newMemFS(map[string][]byte{"only-root.txt": []byte("root")})
	sub := newMemFS(map[string][]byte{"file.txt": []byte("sub")})
	require.NoError(t, v.Mount("/", vfs.TagOther, root))
	require.NoError(t, v.Mount("/data", vfs.TagOther, sub))

	fd, err := v.Open("/data/file.txt")
	require.NoError(t, err)
	buf := make([]byte, 8)
	n, err := v.Read(fd, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "sub", string(buf[:n]))

	fd2, err := v.Open("/only-root.txt")
	require.NoError(t, err)
	n, err = v.Read(fd2, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "root", string(buf[:n]))
}

func TestOpenUnknownPathFails(t *testing.T) {
	v := vfs.New(4)
	require.NoError(t, v.Mount("/data", vfs.TagOther, newMemFS(nil)))
	_, err := v.Open("/data/missing.txt")
	assert.ErrorIs(t, err, kerr.ErrNotFound)
}

func TestOpenWithNoMountFails(t *testing.T) {
	v := vfs.New(4)
	_, err := v.Open("/anything")
	assert.ErrorIs(t, err, kerr.ErrNotFound)
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	v := vfs.New(4)
	require.NoError(t, v.Mount("/data", vfs.TagOther, newMemFS(map[string][]byte{"f.txt": nil})))
	fd, err := v.Open("/data/f.txt")
	require.NoError(t, err)

	n, err := v.Write(fd, []byte("hello"), 0)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	buf := make([]byte, 5)
	n, err = v.Read(fd, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))
}

func TestFdExhaustionReturnsNoSpace(t *testing.T) {
	v := vfs.New(1)
	require.NoError(t, v.Mount("/data", vfs.TagOther, newMemFS(map[string][]byte{
		"a": []byte("a"), "b": []byte("b"),
	})))
	_, err := v.Open("/data/a")
	require.NoError(t, err)
	_, err = v.Open("/data/b")
	assert.ErrorIs(t, err, kerr.ErrNoSpace)
}

func TestCloseFreesFdSlotForReuse(t *testing.T) {
	v := vfs.New(1)
	require.NoError(t, v.Mount("/data", vfs.TagOther, newMemFS(map[string][]byte{
		"a": []byte("a"), "b": []byte("b"),
	})))
	fd, err := v.Open("/data/a")
	require.NoError(t, err)
	require.NoError(t, v.Close(fd))

	fd2, err := v.Open("/data/b")
	require.NoError(t, err)
	assert.Equal(t, fd, fd2)
}

func TestCloseOfUnknownFdIsError(t *testing.T) {
	v := vfs.New(4)
	assert.ErrorIs(t, v.Close(3), kerr.ErrInvalidArg)
}

func TestUnmountRemovesMountAndRejectsUnknownPath(t *testing.T) {
	v := vfs.New(4)
	require.NoError(t, v.Mount("/data", vfs.TagOther, newMemFS(nil)))
	require.NoError(t, v.Unmount("/data"))
	assert.ErrorIs(t, v.Unmount("/data"), kerr.ErrNotFound)

	_, err := v.Open("/data/f.txt")
	assert.ErrorIs(t, err, kerr.ErrNotFound)
}

func TestListDispatchesToResolvedMount(t *testing.T) {
	v := vfs.New(4)
	require.NoError(t, v.Mount("/data", vfs.TagOther, newMemFS(map[string][]byte{"f.txt": []byte("x")})))
	names, err := v.List("/data")
	require.NoError(t, err)
	assert.Contains(t, names, "f.txt")
}
