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
	"strconv"
	"strings"

	"avrix.dev/avrix/pkg/eepfs"
	"avrix.dev/avrix/pkg/kerr"
)

// EepfsFS adapts a mounted eepfs.Log to the vfs.FileSystem interface,
// presenting each numeric key as a single-byte file named by its
// decimal value (e.g. "/ee/42" is key 42). It is stateless between
// Open and Close: the "handle" returned by Open is the key itself, so
// no open-file table is needed here (the VFS layer above already
// tracks the fd).
type EepfsFS struct {
	log *eepfs.Log
}

// NewEepfsFS wraps log for mounting into a VFS.
func NewEepfsFS(log *eepfs.Log) *EepfsFS {
	return &EepfsFS{log: log}
}

func parseKeyPath(path string) (int, error) {
	path = strings.TrimPrefix(path, "/")
	key, err := strconv.Atoi(path)
	if err != nil {
		return 0, kerr.ErrBadPath
	}
	return key, nil
}

// Open accepts any syntactically valid key, whether or not it
// currently holds a value: Write acts as create-or-update, matching a
// KV store's usual semantics. Read on a key with no live value fails
// with kerr.ErrNotFound.
func (e *EepfsFS) Open(path string) (int, int, error) {
	key, err := parseKeyPath(path)
	if err != nil {
		return 0, 0, err
	}
	v, err := e.log.Get(key)
	switch {
	case err == kerr.ErrNotFound:
		return key, 0, nil
	case err != nil:
		return 0, 0, err
	default:
		_ = v
		return key, 1, nil
	}
}

func (e *EepfsFS) Read(handle int, buf []byte, offset int) (int, error) {
	if offset != 0 || len(buf) == 0 {
		return 0, nil
	}
	v, err := e.log.Get(handle)
	if err != nil {
		return 0, err
	}
	buf[0] = byte(v)
	return 1, nil
}

func (e *EepfsFS) Write(handle int, buf []byte, offset int) (int, error) {
	if offset != 0 || len(buf) == 0 {
		return 0, kerr.ErrInvalidArg
	}
	if err := e.log.Put(handle, int(buf[0])); err != nil {
		return 0, err
	}
	return 1, nil
}

func (e *EepfsFS) Close(int) error { return nil }

func (e *EepfsFS) List(string) ([]string, error) {
	return nil, kerr.ErrUnsupported
}
