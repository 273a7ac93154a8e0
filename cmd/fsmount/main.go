//go:build fuse

// Command fsmount mounts a blockfs device file as a real directory tree
// using FUSE, for interactive use with standard OS tools.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	blockfs "github.com/Mmoniot1/filesystem"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s <device-file> <mountpoint>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 2 {
		flag.Usage()
		os.Exit(1)
	}

	fsHandle, err := blockfs.Mount(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "mount: %s\n", err)
		os.Exit(1)
	}

	server, err := blockfs.MountFuse(fsHandle, flag.Arg(1))
	if err != nil {
		fmt.Fprintf(os.Stderr, "fuse mount: %s\n", err)
		fsHandle.Unmount()
		os.Exit(1)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		server.Unmount()
	}()

	server.Wait()
	if err := fsHandle.Unmount(); err != nil {
		fmt.Fprintf(os.Stderr, "unmount: %s\n", err)
		os.Exit(1)
	}
}
