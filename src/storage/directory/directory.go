package directory

import (
	"context"
	"os"
	"path/filepath"
	"slices"

	"github.com/go-faster/errors"
	"github.com/spf13/afero"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/Blackdeer1524/xalog/src"
	"github.com/Blackdeer1524/xalog/src/bufferpool"
)

// Directory holds index files under one path. Inputs read through the shared
// page cache; outputs write straight to the filesystem.
type Directory struct {
	fs    afero.Fs
	path  string
	cache *bufferpool.Manager
	locks *LockTable
	log   src.Logger
}

func Open(
	fs afero.Fs,
	path string,
	cache *bufferpool.Manager,
	locks *LockTable,
	log src.Logger,
) (*Directory, error) {
	if err := fs.MkdirAll(path, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create directory %s", path)
	}

	return &Directory{
		fs:    fs,
		path:  filepath.Clean(path),
		cache: cache,
		locks: locks,
		log:   log,
	}, nil
}

func (d *Directory) Path() string {
	return d.path
}

func (d *Directory) resolve(name string) string {
	return filepath.Join(d.path, name)
}

// ListAll returns the names of every entry, sorted.
func (d *Directory) ListAll() ([]string, error) {
	entries, err := afero.ReadDir(d.fs, d.path)
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", d.path)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	slices.Sort(names)

	return names, nil
}

func (d *Directory) FileLength(name string) (int64, error) {
	info, err := d.fs.Stat(d.resolve(name))
	if err != nil {
		return 0, errors.Wrapf(err, "stat %s", name)
	}
	return info.Size(), nil
}

// DeleteFile removes name. A file that is missing or could not be removed is
// an error.
func (d *Directory) DeleteFile(name string) error {
	path := d.resolve(name)

	if err := d.fs.Remove(path); err != nil {
		return errors.Wrapf(err, "delete %s", path)
	}
	if _, err := d.fs.Stat(path); err == nil {
		return errors.Errorf("delete %s: file is still present", path)
	}

	return nil
}

// Rename atomically replaces to with from and syncs the directory entry.
func (d *Directory) Rename(from, to string) error {
	if err := d.fs.Rename(d.resolve(from), d.resolve(to)); err != nil {
		return errors.Wrapf(err, "rename %s to %s", from, to)
	}
	if err := d.cache.RefreshPath(d.resolve(to)); err != nil {
		return err
	}

	return d.SyncMetaData()
}

// Sync fsyncs the named files in parallel.
func (d *Directory) Sync(ctx context.Context, names []string) error {
	eg, ctx := errgroup.WithContext(ctx)

	for _, name := range names {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return syncPath(d.fs, d.resolve(name), os.O_RDWR)
		})
	}

	return eg.Wait()
}

// SyncMetaData fsyncs the directory itself so renames and creations persist.
func (d *Directory) SyncMetaData() error {
	return syncPath(d.fs, d.path, os.O_RDONLY)
}

func syncPath(fs afero.Fs, path string, flag int) (err error) {
	f, err := fs.OpenFile(path, flag, 0)
	if err != nil {
		return errors.Wrapf(err, "open %s for sync", path)
	}
	defer func() {
		err = multierr.Append(err, f.Close())
	}()

	if err := f.Sync(); err != nil {
		return errors.Wrapf(err, "sync %s", path)
	}
	return nil
}

// OpenInput maps name into the page cache and returns a root view over it.
func (d *Directory) OpenInput(name string) (*Input, error) {
	pf, err := d.cache.MapFile(d.resolve(name))
	if err != nil {
		return nil, errors.Wrapf(err, "open input %s", name)
	}

	in, err := newRootInput(name, cachedFile{pf})
	if err != nil {
		return nil, multierr.Append(err, pf.Close())
	}

	return in, nil
}

// CreateOutput creates name, truncating an existing file. Closing the output
// refreshes pages of the file already cached.
func (d *Directory) CreateOutput(name string) (*Output, error) {
	path := d.resolve(name)

	f, err := d.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "create output %s", name)
	}

	return newOutput(name, f, func() error {
		return d.cache.RefreshPath(path)
	}), nil
}

// ObtainLock takes the named lock in this directory or fails with
// ErrLockObtainFailed.
func (d *Directory) ObtainLock(name string) (*Lock, error) {
	l, err := obtainLock(d.fs, d.locks, d.resolve(name))
	if err != nil {
		return nil, err
	}
	d.log.Debugw("lock obtained", "path", l.path)

	return l, nil
}
