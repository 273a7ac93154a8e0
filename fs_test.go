package blockfs_test

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	blockfs "github.com/Mmoniot1/filesystem"
)

func TestFsCreateWriteReadBack(t *testing.T) {
	name := filepath.Join(t.TempDir(), "fs.img")
	fsHandle, err := blockfs.Init(name, 512, 8192)
	if err != nil {
		t.Fatalf("Init: %s", err)
	}
	defer fsHandle.Unmount()

	file, err := fsHandle.OpenFile(fsHandle.Root(), "a")
	if err != nil {
		t.Fatalf("OpenFile: %s", err)
	}
	if err := fsHandle.WriteAt(file, 0, []byte("hello")); err != nil {
		t.Fatalf("WriteAt: %s", err)
	}
	buf := make([]byte, 5)
	if err := fsHandle.ReadAt(file, 0, buf); err != nil {
		t.Fatalf("ReadAt: %s", err)
	}
	if string(buf) != "hello" {
		t.Fatalf("read %q, want %q", buf, "hello")
	}
	if file.Size() != 5 {
		t.Fatalf("Size = %d, want 5", file.Size())
	}
}

func TestFsPersistsAcrossUnmount(t *testing.T) {
	name := filepath.Join(t.TempDir(), "fs.img")
	fsHandle, err := blockfs.Init(name, 512, 8192)
	if err != nil {
		t.Fatalf("Init: %s", err)
	}
	file, err := fsHandle.OpenFile(fsHandle.Root(), "a")
	if err != nil {
		t.Fatalf("OpenFile: %s", err)
	}
	if err := fsHandle.WriteAt(file, 0, []byte("hello")); err != nil {
		t.Fatalf("WriteAt: %s", err)
	}
	if err := fsHandle.Unmount(); err != nil {
		t.Fatalf("Unmount: %s", err)
	}

	reopened, err := blockfs.Mount(name)
	if err != nil {
		t.Fatalf("Mount: %s", err)
	}
	defer reopened.Unmount()

	got, err := reopened.GetFile(reopened.Root(), "a")
	if err != nil {
		t.Fatalf("GetFile: %s", err)
	}
	if got == nil {
		t.Fatalf("file %q did not survive unmount/mount", "a")
	}
	buf := make([]byte, 5)
	if err := reopened.ReadAt(got, 0, buf); err != nil {
		t.Fatalf("ReadAt: %s", err)
	}
	if string(buf) != "hello" {
		t.Fatalf("read %q after remount, want %q", buf, "hello")
	}
}

func TestFsDirectoryListing(t *testing.T) {
	name := filepath.Join(t.TempDir(), "fs.img")
	fsHandle, err := blockfs.Init(name, 512, 8192)
	if err != nil {
		t.Fatalf("Init: %s", err)
	}
	defer fsHandle.Unmount()

	for _, n := range []string{"x", "y"} {
		if _, err := fsHandle.OpenDir(fsHandle.Root(), n); err != nil {
			t.Fatalf("OpenDir(%q): %s", n, err)
		}
	}
	if _, err := fsHandle.OpenFile(fsHandle.Root(), "z"); err != nil {
		t.Fatalf("OpenFile(z): %s", err)
	}

	children, err := fsHandle.Children(fsHandle.Root())
	if err != nil {
		t.Fatalf("Children: %s", err)
	}
	if len(children) != 3 {
		t.Fatalf("got %d children, want 3", len(children))
	}
	seen := map[string]bool{}
	for _, c := range children {
		seen[c.Name] = true
	}
	for _, want := range []string{"x", "y", "z"} {
		if !seen[want] {
			t.Fatalf("missing child %q in %v", want, seen)
		}
	}
}

func TestFsDuplicateNameRejected(t *testing.T) {
	name := filepath.Join(t.TempDir(), "fs.img")
	fsHandle, err := blockfs.Init(name, 512, 8192)
	if err != nil {
		t.Fatalf("Init: %s", err)
	}
	defer fsHandle.Unmount()

	if _, err := fsHandle.OpenFile(fsHandle.Root(), "dup"); err != nil {
		t.Fatalf("OpenFile: %s", err)
	}
	_, err = fsHandle.OpenDir(fsHandle.Root(), "dup")
	if !errors.Is(err, blockfs.ErrNameExists) {
		t.Fatalf("OpenDir on existing file name: got err %v, want ErrNameExists", err)
	}
}

func TestFsSparseGrow(t *testing.T) {
	name := filepath.Join(t.TempDir(), "fs.img")
	fsHandle, err := blockfs.Init(name, 512, 8192)
	if err != nil {
		t.Fatalf("Init: %s", err)
	}
	defer fsHandle.Unmount()

	file, err := fsHandle.OpenFile(fsHandle.Root(), "sparse")
	if err != nil {
		t.Fatalf("OpenFile: %s", err)
	}
	if err := fsHandle.SetSize(file, 100_000); err != nil {
		t.Fatalf("SetSize: %s", err)
	}
	buf := make([]byte, 100)
	if err := fsHandle.ReadAt(file, 50_000, buf); err != nil {
		t.Fatalf("ReadAt: %s", err)
	}
	if !bytes.Equal(buf, make([]byte, 100)) {
		t.Fatalf("sparse read returned non-zero bytes")
	}
}

func TestFsRemoveReclaimsName(t *testing.T) {
	name := filepath.Join(t.TempDir(), "fs.img")
	fsHandle, err := blockfs.Init(name, 512, 8192)
	if err != nil {
		t.Fatalf("Init: %s", err)
	}
	defer fsHandle.Unmount()

	if _, err := fsHandle.OpenFile(fsHandle.Root(), "gone"); err != nil {
		t.Fatalf("OpenFile: %s", err)
	}
	if err := fsHandle.Remove(fsHandle.Root(), "gone"); err != nil {
		t.Fatalf("Remove: %s", err)
	}
	again, err := fsHandle.OpenFile(fsHandle.Root(), "gone")
	if err != nil {
		t.Fatalf("OpenFile after remove: %s", err)
	}
	if again == nil || again.Size() != 0 {
		t.Fatalf("expected a fresh empty file after remove+recreate")
	}
}
