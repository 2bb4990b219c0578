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

// Command avrixrom packs a host directory tree into a romfs.FileTable
// image, the moral equivalent of a flash-image build step: the kernel
// core only ever reads a finished image, so producing one is host
// tooling rather than part of the core itself. Grounded on the
// teacher's misc/ build-tooling convention (no single file to adapt;
// new tool written in the teacher's idiom).
package main

import (
	"encoding/gob"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"avrix.dev/avrix/pkg/romfs"
)

func usage() {
	fmt.Fprint(os.Stderr, "usage: avrixrom <src-dir> <out-image>\n")
	flag.PrintDefaults()
	os.Exit(2)
}

func main() {
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() != 2 {
		usage()
	}
	srcDir, outPath := flag.Arg(0), flag.Arg(1)

	ft, err := buildImage(srcDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "avrixrom: %v\n", err)
		os.Exit(1)
	}

	out, err := os.Create(outPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "avrixrom: %v\n", err)
		os.Exit(1)
	}
	defer out.Close()
	if err := gob.NewEncoder(out).Encode(ft); err != nil {
		fmt.Fprintf(os.Stderr, "avrixrom: %v\n", err)
		os.Exit(1)
	}
}

// buildImage walks srcDir and builds a romfs.FileTable whose root is
// srcDir itself. Directory entries are visited in sorted order so a
// rebuild from the same tree always produces byte-identical output.
func buildImage(srcDir string) (*romfs.FileTable, error) {
	ft := &romfs.FileTable{Root: 0}
	ft.Dirs = append(ft.Dirs, romfs.Dir{}) // placeholder at index 0, dropped after the walk

	var walk func(dir string) (int, error)
	walk = func(dir string) (int, error) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return 0, err
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

		dirIdx := len(ft.Dirs)
		ft.Dirs = append(ft.Dirs, romfs.Dir{})

		var out romfs.Dir
		for _, e := range entries {
			childPath := filepath.Join(dir, e.Name())
			if e.IsDir() {
				childIdx, err := walk(childPath)
				if err != nil {
					return 0, err
				}
				out.Entries = append(out.Entries, romfs.Entry{
					Name: e.Name(), Kind: romfs.KindDir, Index: uint8(childIdx),
				})
				continue
			}
			data, err := os.ReadFile(childPath)
			if err != nil {
				return 0, err
			}
			fileIdx := len(ft.Files)
			ft.Files = append(ft.Files, romfs.File{Name: e.Name(), Data: data})
			out.Entries = append(out.Entries, romfs.Entry{
				Name: e.Name(), Kind: romfs.KindFile, Index: uint8(fileIdx),
			})
		}
		ft.Dirs[dirIdx] = out
		return dirIdx, nil
	}

	rootIdx, err := walk(srcDir)
	if err != nil {
		return nil, err
	}
	ft.Dirs = ft.Dirs[1:] // drop the unused placeholder at index 0
	ft.Root = rootIdx - 1
	for i := range ft.Dirs {
		for j := range ft.Dirs[i].Entries {
			if ft.Dirs[i].Entries[j].Kind == romfs.KindDir {
				ft.Dirs[i].Entries[j].Index--
			}
		}
	}
	return ft, nil
}
