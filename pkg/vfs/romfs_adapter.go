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

package vfs

import (
	"path"
	"sync"

	"avrix.dev/avrix/pkg/kerr"
	"avrix.dev/avrix/pkg/romfs"
)

// RomfsFS adapts a romfs.FileTable to the vfs.FileSystem interface.
// It is entirely read-only: Write always fails with kerr.ErrReadOnly.
type RomfsFS struct {
	ft  *romfs.FileTable
	hal romfs.HAL

	mu      sync.Mutex
	handles []romfs.Handle
	used    []bool
}

// NewRomfsFS wraps ft for mounting into a VFS.
func NewRomfsFS(ft *romfs.FileTable, h romfs.HAL) *RomfsFS {
	return &RomfsFS{ft: ft, hal: h}
}

func (r *RomfsFS) Open(p string) (int, int, error) {
	h, ok := r.ft.Open(p)
	if !ok {
		return 0, 0, kerr.ErrNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, u := range r.used {
		if !u {
			r.handles[i] = h
			r.used[i] = true
			return i, h.Size, nil
		}
	}
	r.handles = append(r.handles, h)
	r.used = append(r.used, true)
	return len(r.handles) - 1, h.Size, nil
}

func (r *RomfsFS) Read(handle int, buf []byte, offset int) (int, error) {
	r.mu.Lock()
	if handle < 0 || handle >= len(r.used) || !r.used[handle] {
		r.mu.Unlock()
		return 0, kerr.ErrInvalidArg
	}
	h := r.handles[handle]
	r.mu.Unlock()
	return r.ft.Read(r.hal, h, offset, buf), nil
}

func (r *RomfsFS) Write(int, []byte, int) (int, error) {
	return 0, kerr.ErrReadOnly
}

func (r *RomfsFS) Close(handle int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if handle < 0 || handle >= len(r.used) || !r.used[handle] {
		return kerr.ErrInvalidArg
	}
	r.used[handle] = false
	return nil
}

func (r *RomfsFS) List(p string) ([]string, error) {
	if _, ok := r.ft.Open(p); ok {
		return nil, kerr.ErrInvalidArg // p names a file, not a directory
	}
	dirIdx, ok := r.dirIndex(p)
	if !ok {
		return nil, kerr.ErrNotFound
	}
	names := make([]string, 0, len(r.ft.Dirs[dirIdx].Entries))
	for _, e := range r.ft.Dirs[dirIdx].Entries {
		names = append(names, e.Name)
	}
	return names, nil
}

// dirIndex re-walks path's directory components only, since
// romfs.FileTable.Open rejects a path that resolves to a directory.
func (r *RomfsFS) dirIndex(p string) (int, bool) {
	p = path.Clean("/" + p)
	if p == "/" {
		return r.ft.Root, true
	}
	segs := splitClean(p)
	idx := r.ft.Root
	for _, seg := range segs {
		dir := r.ft.Dirs[idx]
		found := false
		for _, e := range dir.Entries {
			if e.Name == seg && e.Kind == romfs.KindDir {
				idx = int(e.Index)
				found = true
				break
			}
		}
		if !found {
			return 0, false
		}
	}
	return idx, true
}

func splitClean(p string) []string {
	var segs []string
	cur := ""
	for _, c := range p {
		if c == '/' {
			if cur != "" {
				segs = append(segs, cur)
				cur = ""
			}
			continue
		}
		cur += string(c)
	}
	if cur != "" {
		segs = append(segs, cur)
	}
	return segs
}
