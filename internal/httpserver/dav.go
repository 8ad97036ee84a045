package httpserver

import (
	"context"
	"os"

	"golang.org/x/net/webdav"

	"lanshare/internal/fsutil"
)

// davFS exposes the share to the webdav handler with the same containment
// guarantees as the tree routes. webdav.Dir only path-cleans names and then
// follows symlinks, so it would serve a symlink pointing outside the root;
// here every open and stat goes through fsutil.Resolve instead, and the
// write half of the interface is refused outright.
type davFS struct {
	root string
}

func (d davFS) resolve(name string) (fsutil.Target, error) {
	t := fsutil.Resolve(d.root, name)
	switch t.Kind {
	case fsutil.Dir, fsutil.File:
		return t, nil
	case fsutil.Missing:
		return t, os.ErrNotExist
	default:
		return t, os.ErrPermission
	}
}

func (d davFS) OpenFile(ctx context.Context, name string, flag int, perm os.FileMode) (webdav.File, error) {
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_APPEND|os.O_CREATE|os.O_TRUNC) != 0 {
		return nil, os.ErrPermission
	}
	t, err := d.resolve(name)
	if err != nil {
		return nil, err
	}
	// Open the canonical path, not the raw name: opening the name would
	// re-follow whatever symlink Resolve just vetted.
	return os.Open(t.Abs)
}

func (d davFS) Stat(ctx context.Context, name string) (os.FileInfo, error) {
	t, err := d.resolve(name)
	if err != nil {
		return nil, err
	}
	return t.Info, nil
}

func (davFS) Mkdir(context.Context, string, os.FileMode) error { return os.ErrPermission }

func (davFS) RemoveAll(context.Context, string) error { return os.ErrPermission }

func (davFS) Rename(context.Context, string, string) error { return os.ErrPermission }
