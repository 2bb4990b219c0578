//go:build linux || darwin
// +build linux darwin

/*
Copyright 2011 The Perkeep Authors

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

// Command avrixfuse builds a small demo VFS in-process (an in-memory
// ROMFS at /rom and an empty EEPROM log at /ee) and mounts it
// read-only over FUSE through pkg/vfsfuse, so a developer can ls/cat
// the ROMFS files from the host shell. It does not attach to a
// separately running simulator. Grounded on cmd/pk-mount.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"

	"avrix.dev/avrix/pkg/eepfs"
	"avrix.dev/avrix/pkg/hal/simhal"
	"avrix.dev/avrix/pkg/romfs"
	"avrix.dev/avrix/pkg/vfs"
	"avrix.dev/avrix/pkg/vfsfuse"
)

var debug = flag.Bool("debug", false, "print debugging messages")

func usage() {
	fmt.Fprint(os.Stderr, "usage: avrixfuse [opts] <mountpoint>\n")
	flag.PrintDefaults()
	os.Exit(2)
}

func main() {
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() != 1 {
		usage()
	}
	mountPoint := flag.Arg(0)

	v := buildDemoVFS()

	if *debug {
		fuse.Debug = func(msg interface{}) { log.Print(msg) }
	}

	conn, err := fuse.Mount(mountPoint, fuse.VolumeName(filepath.Base(mountPoint)), fuse.ReadOnly())
	if err != nil {
		log.Fatalf("mount: %v", err)
	}
	defer conn.Close()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	doneServe := make(chan error, 1)
	go func() { doneServe <- fusefs.Serve(conn, vfsfuse.New(v)) }()

	select {
	case err := <-doneServe:
		log.Printf("fuse Serve returned: %v", err)
	case sig := <-sigc:
		log.Printf("signal %s received, unmounting", sig)
	}
	if err := fuse.Unmount(mountPoint); err != nil {
		log.Printf("unmount: %v", err)
	}
}

// buildDemoVFS wires a VFS with a small in-memory ROMFS and an empty
// EEPROM log mounted side by side, so the command is immediately
// useful without a separate boot step.
func buildDemoVFS() *vfs.VFS {
	h := simhal.New(0.001)
	ft := &romfs.FileTable{
		Dirs: []romfs.Dir{
			{Entries: []romfs.Entry{{Name: "version.txt", Kind: romfs.KindFile, Index: 0}}},
		},
		Files: []romfs.File{{Name: "version.txt", Data: []byte("avrix simulator\n")}},
		Root:  0,
	}

	cfg := eepfs.DefaultConfig()
	eeLog, err := eepfs.Mount(cfg, eepfs.NewMemBacking(cfg))
	if err != nil {
		panic(err)
	}

	v := vfs.New(32)
	if err := v.Mount("/rom", vfs.TagRomfs, vfs.NewRomfsFS(ft, h)); err != nil {
		panic(err)
	}
	if err := v.Mount("/ee", vfs.TagEepfs, vfs.NewEepfsFS(eeLog)); err != nil {
		panic(err)
	}
	return v
}
