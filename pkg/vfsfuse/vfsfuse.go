/*
Copyright 2014 The Perkeep Authors

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

// Package vfsfuse bridges a vfs.VFS onto a read-only bazil.org/fuse
// mount, so a developer can ls/cat the simulated tree from the host
// shell. Directories are discovered only through vfs.VFS.List: a mount
// whose backend does not support List (the EEPROM adapter reports
// kerr.ErrUnsupported) is not reachable as a directory, and the FUSE
// root can be listed only when the VFS has a root ("/") mount. It is
// host tooling, not part of the kernel core. Grounded on
// pkg/fs/rover.go's context-based Attr/Lookup/ReadDirAll node shape.
package vfsfuse

import (
	"context"
	"os"
	"path"
	"time"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"

	"avrix.dev/avrix/pkg/vfs"
)

// FS is the fuse.FS root for a mounted vfs.VFS.
type FS struct {
	v *vfs.VFS
}

// New wraps v for serving over FUSE.
func New(v *vfs.VFS) *FS { return &FS{v: v} }

func (f *FS) Root() (fusefs.Node, error) {
	return &dir{fs: f, path: ""}, nil
}

// dir is a fuse directory backed by vfs.VFS.List at path.
type dir struct {
	fs   *FS
	path string
}

func (d *dir) Attr(ctx context.Context, a *fuse.Attr) error {
	a.Mode = os.ModeDir | 0555
	a.Valid = time.Second
	return nil
}

func (d *dir) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	names, err := d.fs.v.List(d.path)
	if err != nil {
		return nil, fuse.ENOENT
	}
	ents := make([]fuse.Dirent, 0, len(names))
	for _, name := range names {
		ents = append(ents, fuse.Dirent{Name: name, Type: fuse.DT_Unknown})
	}
	return ents, nil
}

func (d *dir) Lookup(ctx context.Context, name string) (fusefs.Node, error) {
	child := path.Join(d.path, name)
	if _, err := d.fs.v.List(child); err == nil {
		return &dir{fs: d.fs, path: child}, nil
	}
	fd, err := d.fs.v.Open(child)
	if err != nil {
		return nil, fuse.ENOENT
	}
	d.fs.v.Close(fd)
	return &file{fs: d.fs, path: child}, nil
}

// file is a fuse regular file backed by vfs.VFS.Open/Read. It is
// read-only; writes are rejected at the mount layer entirely (this
// bridge exposes no Write node interface).
type file struct {
	fs   *FS
	path string
}

func (f *file) Attr(ctx context.Context, a *fuse.Attr) error {
	a.Mode = 0444
	a.Valid = time.Second
	data, err := f.ReadAll(ctx)
	if err != nil {
		return err
	}
	a.Size = uint64(len(data))
	return nil
}

func (f *file) ReadAll(ctx context.Context) ([]byte, error) {
	fd, err := f.fs.v.Open(f.path)
	if err != nil {
		return nil, fuse.ENOENT
	}
	defer f.fs.v.Close(fd)

	const chunk = 4096
	var out []byte
	buf := make([]byte, chunk)
	offset := 0
	for {
		n, err := f.fs.v.Read(fd, buf, offset)
		if n > 0 {
			out = append(out, buf[:n]...)
			offset += n
		}
		if err != nil || n == 0 {
			break
		}
	}
	return out, nil
}
