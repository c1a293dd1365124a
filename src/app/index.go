package app

import (
	"context"
	"fmt"
	"io"

	"github.com/go-faster/errors"
	"github.com/spf13/afero"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/Blackdeer1524/xalog/src/bufferpool"
	"github.com/Blackdeer1524/xalog/src/storage/directory"
	"github.com/Blackdeer1524/xalog/src/storage/disk"
)

// IndexDumpEntrypoint reads the head of an index file through the page cache
// while holding the file's lock.
type IndexDumpEntrypoint struct {
	base

	Dir   string
	File  string
	Longs int
	Out   io.Writer
	Fs    afero.Fs

	// Follow keeps running after the first dump and prints the file again
	// whenever it changes on disk.
	Follow bool

	cache *bufferpool.Manager
	dir   *directory.Directory
}

func (e *IndexDumpEntrypoint) Init(_ context.Context) error {
	if e.File == "" {
		return errors.New("file name is required")
	}
	if e.Longs < 0 {
		return errors.Errorf("negative long count %d", e.Longs)
	}

	if err := e.init(); err != nil {
		return err
	}

	if e.Fs == nil {
		e.Fs = afero.NewOsFs()
	}
	if e.Dir == "" {
		e.Dir = e.cfg.DataDir
	}

	cache, err := bufferpool.New(
		e.cfg.CachePages,
		bufferpool.NewLRUReplacer(),
		disk.New(e.Fs, e.cfg.PageSize),
		e.cfg.FlushWorkers,
	)
	if err != nil {
		return err
	}
	e.cache = cache

	dir, err := directory.Open(e.Fs, e.Dir, cache, directory.NewLockTable(), e.log)
	if err != nil {
		return multierr.Append(err, cache.Close())
	}
	e.dir = dir

	return nil
}

func (e *IndexDumpEntrypoint) Run(ctx context.Context) (err error) {
	lock, err := e.dir.ObtainLock(e.File + ".lock")
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, lock.Close()) }()

	if err := e.dump(); err != nil {
		return err
	}
	if e.Follow {
		if err := e.follow(ctx); err != nil {
			return err
		}
	}

	return lock.EnsureValid()
}

func (e *IndexDumpEntrypoint) dump() (err error) {
	in, err := e.dir.OpenInput(e.File)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, in.Close()) }()

	if _, err := fmt.Fprintf(e.Out, "%s: %d bytes\n", in, in.Length()); err != nil {
		return err
	}

	for i := 0; i < e.Longs && in.FilePointer()+8 <= in.Length(); i++ {
		pos := in.FilePointer()

		v, err := in.ReadLong()
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(e.Out, "%8d: %d\n", pos, v); err != nil {
			return err
		}
	}

	return nil
}

func (e *IndexDumpEntrypoint) follow(ctx context.Context) (err error) {
	changed := make(chan struct{}, 1)
	w, err := e.dir.Watch(func(name string) {
		if name != e.File {
			return
		}
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, w.Close()) }()

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return w.Run(ctx)
	})
	eg.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-changed:
				if err := e.dump(); err != nil {
					return err
				}
			}
		}
	})

	return eg.Wait()
}

func (e *IndexDumpEntrypoint) Close() error {
	var err error
	if e.cache != nil {
		err = e.cache.Close()
		e.cache = nil
	}

	return e.syncLog(err)
}
