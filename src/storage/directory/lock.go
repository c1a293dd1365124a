package directory

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/spf13/afero"
	"go.uber.org/multierr"
	"golang.org/x/sys/unix"
)

// LockTable is the set of lock paths held by this process. Create one at
// startup and share it between every Directory.
type LockTable struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLockTable() *LockTable {
	return &LockTable{held: make(map[string]struct{})}
}

func (t *LockTable) claim(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.held[path]; ok {
		return false
	}
	t.held[path] = struct{}{}

	return true
}

func (t *LockTable) contains(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, ok := t.held[path]
	return ok
}

func (t *LockTable) release(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, ok := t.held[path]
	delete(t.held, path)

	return ok
}

func (t *LockTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.held)
}

type fdFile interface {
	Fd() uintptr
}

// Lock is an exclusive advisory lock on a file.
type Lock struct {
	fs    afero.Fs
	table *LockTable
	path  string

	mu       sync.Mutex
	file     afero.File
	fd       int
	info     os.FileInfo
	acquired time.Time
	closed   bool
}

func obtainLock(fs afero.Fs, table *LockTable, path string) (*Lock, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve lock path %s", path)
	}

	f, err := fs.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "open lock file %s", path)
	}

	fder, ok := f.(fdFile)
	if !ok {
		_ = f.Close()
		return nil, errors.Wrapf(ErrNoFileLocks, "lock %s", path)
	}
	fd := int(fder.Fd()) //nolint:gosec

	if !table.claim(path) {
		_ = f.Close()
		return nil, errors.Wrapf(ErrLockObtainFailed, "lock %s held by this process", path)
	}

	if err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		table.release(path)
		_ = f.Close()
		return nil, errors.Wrapf(ErrLockObtainFailed, "lock %s held by another program: %v", path, err)
	}

	abandon := func(err error) (*Lock, error) {
		_ = unix.Flock(fd, unix.LOCK_UN)
		table.release(path)
		_ = f.Close()
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		return abandon(errors.Wrapf(err, "stat lock file %s", path))
	}
	// a lock file always stays empty, content means someone wrote into it
	if info.Size() != 0 {
		return abandon(errors.Wrapf(
			ErrLockObtainFailed,
			"lock file %s has unexpected size %d",
			path,
			info.Size(),
		))
	}

	return &Lock{
		fs:       fs,
		table:    table,
		path:     path,
		file:     f,
		fd:       fd,
		info:     info,
		acquired: info.ModTime(),
	}, nil
}

func (l *Lock) Path() string {
	return l.path
}

// EnsureValid reports whether the lock is still held and untouched.
func (l *Lock) EnsureValid() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.ensureValidAssumeLocked()
}

func (l *Lock) ensureValidAssumeLocked() error {
	if l.closed {
		return errors.Wrapf(ErrLockReleased, "lock %s", l.path)
	}
	if !l.table.contains(l.path) {
		return errors.Wrapf(ErrLockInvalidated, "lock %s was cleared from the lock table", l.path)
	}

	info, err := l.fs.Stat(l.path)
	if err != nil {
		return errors.Wrapf(ErrLockInvalidated, "lock file %s: %v", l.path, err)
	}
	if !os.SameFile(info, l.info) {
		return errors.Wrapf(ErrLockInvalidated, "lock file %s was replaced", l.path)
	}
	if info.Size() != 0 {
		return errors.Wrapf(ErrLockInvalidated, "unexpected size %d of lock file %s", info.Size(), l.path)
	}
	if !info.ModTime().Equal(l.acquired) {
		return errors.Wrapf(
			ErrLockInvalidated,
			"lock file %s modified at %s, acquired at %s",
			l.path,
			info.ModTime(),
			l.acquired,
		)
	}

	return nil
}

// Close releases the lock. Tampering found while closing is reported, but the
// lock is released regardless. Closing twice is a no-op.
func (l *Lock) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}

	err := l.ensureValidAssumeLocked()
	l.closed = true

	l.table.release(l.path)
	if unlockErr := unix.Flock(l.fd, unix.LOCK_UN); unlockErr != nil {
		err = multierr.Append(err, errors.Wrapf(unlockErr, "unlock %s", l.path))
	}
	err = multierr.Append(err, l.file.Close())

	return err
}
