package blockfs

import (
	"io"
	"io/fs"
	"path"
	"strings"
)

// Import walks a host filesystem and copies every regular file and
// directory it finds into dst starting at dir, mirroring the walker-style
// Add(path, d, err) callback the teacher codebase's image writer builds its
// tree with, adapted here to call straight through to the live filesystem
// instead of buffering an image in memory.
func Import(dst *FS, dir *Node, src fs.FS) error {
	imp := &importer{dst: dst, src: src, root: dir}
	return fs.WalkDir(src, ".", imp.add)
}

type importer struct {
	dst  *FS
	src  fs.FS
	root *Node
}

func (imp *importer) add(p string, d fs.DirEntry, err error) error {
	if err != nil {
		return err
	}
	if p == "." {
		return nil
	}

	parent, err := imp.parentOf(p)
	if err != nil {
		return err
	}
	name := path.Base(p)

	if d.IsDir() {
		_, err := imp.dst.OpenDir(parent, name)
		return err
	}

	node, err := imp.dst.OpenFile(parent, name)
	if err != nil {
		return err
	}
	return imp.copyFile(p, node)
}

// parentOf resolves every directory component of p except the last,
// creating none of them (they were already visited by WalkDir in
// depth-first pre-order, so each parent directory exists by the time its
// children are visited).
func (imp *importer) parentOf(p string) (*Node, error) {
	dir := path.Dir(p)
	if dir == "." {
		return imp.root, nil
	}
	cur := imp.root
	for _, part := range strings.Split(dir, "/") {
		next, err := imp.dst.GetDir(cur, part)
		if err != nil {
			return nil, err
		}
		if next == nil {
			return nil, ErrInconsistent
		}
		cur = next
	}
	return cur, nil
}

func (imp *importer) copyFile(p string, node *Node) error {
	f, err := imp.src.Open(p)
	if err != nil {
		return err
	}
	defer f.Close()

	buf := make([]byte, imp.dst.Device().BlockSize())
	var offset int64
	for {
		n, readErr := f.Read(buf)
		if n > 0 {
			if err := imp.dst.WriteAt(node, offset, buf[:n]); err != nil {
				return err
			}
			offset += int64(n)
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return readErr
		}
	}
}
