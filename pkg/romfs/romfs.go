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

// Package romfs is avrix's immutable, program-memory-resident
// filesystem: a tree of Dir/Entry records and a flat file table, with
// a zero-allocation path walk and bounds-checked reads via the HAL's
// ROM access primitives. See spec.md §4.7.
package romfs

import "strings"

// Kind distinguishes a directory entry from a file entry.
type Kind uint8

const (
	KindFile Kind = iota
	KindDir
)

// Entry is one named node in a Dir: either a file (Index into the
// file table) or a subdirectory (Index into the directory table).
type Entry struct {
	Name  string
	Kind  Kind
	Index uint8
}

// Dir is a fixed list of Entry, mirroring spec.md §4.7's
// {entries: &[Entry], count}.
type Dir struct {
	Entries []Entry
}

// File is one entry in the flat file table: its content lives at
// Data's offset inside the shared ROM image.
type File struct {
	Name string
	Data []byte
}

// FileTable holds every file and directory in the image; Root is the
// designated root directory's index into Dirs.
type FileTable struct {
	Dirs  []Dir
	Files []File
	Root  int
}

// Handle identifies an open file: its offset and size inside FileTable.Files.
type Handle struct {
	FileIndex int
	Size      int
}

// Open walks path segment by segment from the root directory,
// comparing the current segment against each level's entry names, and
// returns a Handle for the file at the end of the path. It reports
// ok=false for an empty segment, an unknown name, or a path that ends
// on a directory rather than a file.
func (ft *FileTable) Open(path string) (Handle, bool) {
	segs := splitPath(path)
	dirIdx := ft.Root
	for i, seg := range segs {
		dir := ft.Dirs[dirIdx]
		var found *Entry
		for j := range dir.Entries {
			if dir.Entries[j].Name == seg {
				found = &dir.Entries[j]
				break
			}
		}
		if found == nil {
			return Handle{}, false
		}
		last := i == len(segs)-1
		switch found.Kind {
		case KindDir:
			if last {
				return Handle{}, false // path names a directory, not a file
			}
			dirIdx = int(found.Index)
		case KindFile:
			if !last {
				return Handle{}, false // file found mid-path
			}
			f := ft.Files[found.Index]
			return Handle{FileIndex: int(found.Index), Size: len(f.Data)}, true
		}
	}
	return Handle{}, false
}

// Read copies min(len(buf), size-offset) bytes from h's file at
// offset into buf via the HAL's ROM access primitive, returning the
// number of bytes copied (0 at or past EOF). It never writes to ROM.
func (ft *FileTable) Read(h HAL, handle Handle, offset int, buf []byte) int {
	if offset < 0 || offset >= handle.Size {
		return 0
	}
	data := ft.Files[handle.FileIndex].Data
	n := len(buf)
	if remaining := handle.Size - offset; n > remaining {
		n = remaining
	}
	return h.MemcpyFromROM(buf[:n], data, offset)
}

// HAL is the subset of hal.HAL that romfs needs, named locally so
// tests can pass a bare function set without pulling in a full
// simhal.HAL.
type HAL interface {
	MemcpyFromROM(dst, rom []byte, offset int) int
}

func splitPath(path string) []string {
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}
