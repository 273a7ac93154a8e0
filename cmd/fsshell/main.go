// Command fsshell is a line-oriented shell exercising the blockfs API. It
// is a thin collaborator: no path parsing, no line editing, just a
// buffered-stdin prompt dispatching one command per line.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	blockfs "github.com/Mmoniot1/filesystem"
)

const usage = `Commands:
  newfs <filename> <capacity>   create a new device (capacity in bytes, >= 1 MiB)
  usefs <filename>              mount an existing device
  closefs                       unmount the current device
  ls                            list the current directory
  cd <name>                     descend into a subdirectory
  mkdir <name>                  create a subdirectory
  touch <name>                  create an empty file
  pipe <name> <data>            write data to a file, creating it if needed
  cat <name>                    print a file's contents
  home                          return to the root directory
  help                          show this message
  q                             quit`

const minCapacity = 1 << 20 // 1 MiB

type shell struct {
	fs  *blockfs.FS
	cwd *blockfs.Node
	out *bufio.Writer
}

func main() {
	sh := &shell{out: bufio.NewWriter(os.Stdout)}
	defer sh.out.Flush()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Fprint(sh.out, "> ")
		sh.out.Flush()
		if !scanner.Scan() {
			break
		}
		if !sh.dispatch(strings.Fields(scanner.Text())) {
			break
		}
	}

	if sh.fs != nil {
		if err := sh.fs.Unmount(); err != nil {
			fmt.Fprintf(os.Stderr, "unmount: %s\n", err)
			os.Exit(1)
		}
	}
}

// dispatch runs one command line and reports whether the shell should keep
// reading more commands.
func (sh *shell) dispatch(args []string) bool {
	if len(args) == 0 {
		return true
	}

	switch args[0] {
	case "newfs":
		sh.cmdNewfs(args[1:])
	case "usefs":
		sh.cmdUsefs(args[1:])
	case "closefs":
		sh.cmdClosefs()
	case "ls":
		sh.cmdLs()
	case "cd":
		sh.cmdCd(args[1:])
	case "mkdir":
		sh.cmdMkdir(args[1:])
	case "touch":
		sh.cmdTouch(args[1:])
	case "pipe":
		sh.cmdPipe(args[1:])
	case "cat":
		sh.cmdCat(args[1:])
	case "home":
		sh.cmdHome()
	case "help":
		fmt.Fprintln(sh.out, usage)
	case "q":
		return false
	default:
		fmt.Fprintf(sh.out, "unknown command %q; try 'help'\n", args[0])
	}
	return true
}

func (sh *shell) requireMount() bool {
	if sh.fs == nil {
		fmt.Fprintln(sh.out, "no filesystem mounted; use newfs or usefs")
		return false
	}
	return true
}

func (sh *shell) cmdNewfs(args []string) {
	if len(args) != 2 {
		fmt.Fprintln(sh.out, "usage: newfs <filename> <capacity>")
		return
	}
	capacity, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || capacity < minCapacity {
		fmt.Fprintf(sh.out, "capacity must be an integer >= %d bytes\n", minCapacity)
		return
	}
	const blockSize = 4096
	blocksTotal := capacity / blockSize

	if sh.fs != nil {
		sh.fs.Unmount()
	}
	fsHandle, err := blockfs.Init(args[0], blockSize, blocksTotal)
	if err != nil {
		fmt.Fprintf(sh.out, "newfs: %s\n", err)
		return
	}
	sh.fs = fsHandle
	sh.cwd = fsHandle.Root()
}

func (sh *shell) cmdUsefs(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(sh.out, "usage: usefs <filename>")
		return
	}
	if sh.fs != nil {
		sh.fs.Unmount()
	}
	fsHandle, err := blockfs.Mount(args[0])
	if err != nil {
		fmt.Fprintf(sh.out, "usefs: %s\n", err)
		return
	}
	sh.fs = fsHandle
	sh.cwd = fsHandle.Root()
}

func (sh *shell) cmdClosefs() {
	if !sh.requireMount() {
		return
	}
	if err := sh.fs.Unmount(); err != nil {
		fmt.Fprintf(sh.out, "closefs: %s\n", err)
	}
	sh.fs = nil
	sh.cwd = nil
}

func (sh *shell) cmdLs() {
	if !sh.requireMount() {
		return
	}
	children, err := sh.fs.Children(sh.cwd)
	if err != nil {
		fmt.Fprintf(sh.out, "ls: %s\n", err)
		return
	}
	for _, c := range children {
		kind := "f"
		if c.IsDir() {
			kind = "d"
		}
		fmt.Fprintf(sh.out, "%s %8d %s\n", kind, c.Size(), c.Name)
	}
}

func (sh *shell) cmdCd(args []string) {
	if !sh.requireMount() || len(args) != 1 {
		fmt.Fprintln(sh.out, "usage: cd <name>")
		return
	}
	dir, err := sh.fs.GetDir(sh.cwd, args[0])
	if err != nil {
		fmt.Fprintf(sh.out, "cd: %s\n", err)
		return
	}
	if dir == nil {
		fmt.Fprintf(sh.out, "cd: no such directory %q\n", args[0])
		return
	}
	sh.cwd = dir
}

func (sh *shell) cmdMkdir(args []string) {
	if !sh.requireMount() || len(args) != 1 {
		fmt.Fprintln(sh.out, "usage: mkdir <name>")
		return
	}
	if _, err := sh.fs.OpenDir(sh.cwd, args[0]); err != nil {
		if errors.Is(err, blockfs.ErrNameExists) {
			fmt.Fprintf(sh.out, "mkdir: %q already exists\n", args[0])
			return
		}
		fmt.Fprintf(sh.out, "mkdir: %s\n", err)
	}
}

func (sh *shell) cmdTouch(args []string) {
	if !sh.requireMount() || len(args) != 1 {
		fmt.Fprintln(sh.out, "usage: touch <name>")
		return
	}
	if _, err := sh.fs.OpenFile(sh.cwd, args[0]); err != nil {
		if errors.Is(err, blockfs.ErrNameExists) {
			fmt.Fprintf(sh.out, "touch: %q already exists\n", args[0])
			return
		}
		fmt.Fprintf(sh.out, "touch: %s\n", err)
	}
}

func (sh *shell) cmdPipe(args []string) {
	if !sh.requireMount() || len(args) < 2 {
		fmt.Fprintln(sh.out, "usage: pipe <name> <data>")
		return
	}
	data := []byte(strings.Join(args[1:], " "))
	file, err := sh.fs.OpenFile(sh.cwd, args[0])
	if err != nil {
		if errors.Is(err, blockfs.ErrNameExists) {
			fmt.Fprintf(sh.out, "pipe: %q is a directory\n", args[0])
			return
		}
		fmt.Fprintf(sh.out, "pipe: %s\n", err)
		return
	}
	if err := sh.fs.WriteAt(file, 0, data); err != nil {
		fmt.Fprintf(sh.out, "pipe: %s\n", err)
	}
}

func (sh *shell) cmdCat(args []string) {
	if !sh.requireMount() || len(args) != 1 {
		fmt.Fprintln(sh.out, "usage: cat <name>")
		return
	}
	file, err := sh.fs.GetFile(sh.cwd, args[0])
	if err != nil {
		fmt.Fprintf(sh.out, "cat: %s\n", err)
		return
	}
	if file == nil {
		fmt.Fprintf(sh.out, "cat: no such file %q\n", args[0])
		return
	}
	buf := make([]byte, file.Size())
	if err := sh.fs.ReadAt(file, 0, buf); err != nil {
		fmt.Fprintf(sh.out, "cat: %s\n", err)
		return
	}
	sh.out.Write(buf)
	fmt.Fprintln(sh.out)
}

func (sh *shell) cmdHome() {
	if !sh.requireMount() {
		return
	}
	sh.cwd = sh.fs.Root()
}
