package blockfs_test

import (
	"path/filepath"
	"testing"
	"testing/fstest"

	blockfs "github.com/Mmoniot1/filesystem"
)

func TestImportWalksHostFilesystem(t *testing.T) {
	src := fstest.MapFS{
		"a.txt":        {Data: []byte("top level")},
		"sub/b.txt":    {Data: []byte("nested")},
		"sub/deep/c.txt": {Data: []byte("deeper still")},
	}

	name := filepath.Join(t.TempDir(), "fs.img")
	fsHandle, err := blockfs.Init(name, 512, 8192)
	if err != nil {
		t.Fatalf("Init: %s", err)
	}
	defer fsHandle.Unmount()

	if err := blockfs.Import(fsHandle, fsHandle.Root(), src); err != nil {
		t.Fatalf("Import: %s", err)
	}

	a, err := fsHandle.GetFile(fsHandle.Root(), "a.txt")
	if err != nil || a == nil {
		t.Fatalf("GetFile(a.txt): node=%v err=%v", a, err)
	}
	buf := make([]byte, a.Size())
	if err := fsHandle.ReadAt(a, 0, buf); err != nil {
		t.Fatalf("ReadAt: %s", err)
	}
	if string(buf) != "top level" {
		t.Fatalf("a.txt content = %q, want %q", buf, "top level")
	}

	sub, err := fsHandle.GetDir(fsHandle.Root(), "sub")
	if err != nil || sub == nil {
		t.Fatalf("GetDir(sub): node=%v err=%v", sub, err)
	}
	b, err := fsHandle.GetFile(sub, "b.txt")
	if err != nil || b == nil {
		t.Fatalf("GetFile(sub/b.txt): node=%v err=%v", b, err)
	}
	buf = make([]byte, b.Size())
	if err := fsHandle.ReadAt(b, 0, buf); err != nil {
		t.Fatalf("ReadAt: %s", err)
	}
	if string(buf) != "nested" {
		t.Fatalf("sub/b.txt content = %q, want %q", buf, "nested")
	}

	deep, err := fsHandle.GetDir(sub, "deep")
	if err != nil || deep == nil {
		t.Fatalf("GetDir(sub/deep): node=%v err=%v", deep, err)
	}
	c, err := fsHandle.GetFile(deep, "c.txt")
	if err != nil || c == nil {
		t.Fatalf("GetFile(sub/deep/c.txt): node=%v err=%v", c, err)
	}
}
