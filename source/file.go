package source

import (
	"context"
	"net/url"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// NewFile creates new file-based source serving files below root directory.
func NewFile(root string) *File {
	return &File{root: root}
}

// File serves content from files. Locator is either a file:// URL or a path relative to root.
type File struct {
	root string
}

// Fetch reads the file pointed by the locator.
func (f *File) Fetch(ctx context.Context, locator string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.WithStack(err)
	}

	path, err := f.path(locator)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrNotFound, "file %q", path)
		}
		return nil, errors.WithStack(err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if info.IsDir() {
		return nil, errors.Errorf("%q is a directory", path)
	}
	if info.Size() == 0 {
		return []byte{}, nil
	}

	mapped, err := unix.Mmap(int(file.Fd()), 0, int(info.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, errors.Wrapf(err, "mapping file %q failed", path)
	}
	defer func() {
		_ = unix.Munmap(mapped)
	}()

	data := make([]byte, len(mapped))
	copy(data, mapped)
	return data, nil
}

func (f *File) path(locator string) (string, error) {
	u, err := url.Parse(locator)
	if err != nil {
		return "", errors.Wrapf(err, "invalid locator %q", locator)
	}
	p := u.Path
	if u.Scheme == "" {
		p = locator
	}
	return filepath.Join(f.root, filepath.Clean("/"+p)), nil
}
