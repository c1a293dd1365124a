package directory

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLock_Contention(t *testing.T) {
	d := newTestDirectory(t, afero.NewOsFs(), t.TempDir())

	first, err := d.ObtainLock("write.lock")
	require.NoError(t, err)
	require.NoError(t, first.EnsureValid())

	_, err = d.ObtainLock("write.lock")
	require.ErrorIs(t, err, ErrLockObtainFailed)

	require.NoError(t, first.Close())
	require.ErrorIs(t, first.EnsureValid(), ErrLockReleased)
	require.NoError(t, first.Close())

	second, err := d.ObtainLock("write.lock")
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestLock_HeldByAnotherTable(t *testing.T) {
	dir := t.TempDir()
	fs := afero.NewOsFs()

	// separate tables stand in for separate processes: flock still conflicts
	first := newTestDirectory(t, fs, dir)
	second := newTestDirectory(t, fs, dir)

	l, err := first.ObtainLock("write.lock")
	require.NoError(t, err)

	_, err = second.ObtainLock("write.lock")
	require.ErrorIs(t, err, ErrLockObtainFailed)
	assert.Equal(t, 0, second.locks.Len())

	require.NoError(t, l.Close())

	l, err = second.ObtainLock("write.lock")
	require.NoError(t, err)
	require.NoError(t, l.Close())
}

func TestLock_DifferentNamesDoNotConflict(t *testing.T) {
	d := newTestDirectory(t, afero.NewOsFs(), t.TempDir())

	a, err := d.ObtainLock("a.lock")
	require.NoError(t, err)
	b, err := d.ObtainLock("b.lock")
	require.NoError(t, err)
	assert.Equal(t, 2, d.locks.Len())

	require.NoError(t, a.Close())
	require.NoError(t, b.Close())
	assert.Equal(t, 0, d.locks.Len())
}

func TestLock_TamperedSize(t *testing.T) {
	d := newTestDirectory(t, afero.NewOsFs(), t.TempDir())

	l, err := d.ObtainLock("write.lock")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(l.Path(), []byte("oops"), 0o644))

	require.ErrorIs(t, l.EnsureValid(), ErrLockInvalidated)
	require.ErrorIs(t, l.Close(), ErrLockInvalidated)

	// released despite the error, but the file stays untrusted
	assert.Equal(t, 0, d.locks.Len())
	_, err = d.ObtainLock("write.lock")
	require.ErrorIs(t, err, ErrLockObtainFailed)
	assert.Equal(t, 0, d.locks.Len())

	require.NoError(t, os.Remove(l.Path()))
	l, err = d.ObtainLock("write.lock")
	require.NoError(t, err)
	require.NoError(t, l.Close())
}

func TestLock_NonEmptyFileRefused(t *testing.T) {
	dir := t.TempDir()
	d := newTestDirectory(t, afero.NewOsFs(), dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "write.lock"), []byte("x"), 0o644))

	_, err := d.ObtainLock("write.lock")
	require.ErrorIs(t, err, ErrLockObtainFailed)
	assert.Equal(t, 0, d.locks.Len())

	// the failed attempt released the OS lock too
	require.NoError(t, os.Truncate(filepath.Join(dir, "write.lock"), 0))
	l, err := d.ObtainLock("write.lock")
	require.NoError(t, err)
	require.NoError(t, l.EnsureValid())
	require.NoError(t, l.Close())
}

func TestLock_TamperedModTime(t *testing.T) {
	d := newTestDirectory(t, afero.NewOsFs(), t.TempDir())

	l, err := d.ObtainLock("write.lock")
	require.NoError(t, err)

	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(l.Path(), later, later))

	require.ErrorIs(t, l.EnsureValid(), ErrLockInvalidated)
	require.Error(t, l.Close())
}

func TestLock_FileReplaced(t *testing.T) {
	dir := t.TempDir()
	d := newTestDirectory(t, afero.NewOsFs(), dir)

	l, err := d.ObtainLock("write.lock")
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(dir, "write.lock")))
	require.ErrorIs(t, l.EnsureValid(), ErrLockInvalidated)

	f, err := os.Create(filepath.Join(dir, "write.lock"))
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.ErrorIs(t, l.EnsureValid(), ErrLockInvalidated)

	require.Error(t, l.Close())
}

func TestLock_ClearedFromTable(t *testing.T) {
	d := newTestDirectory(t, afero.NewOsFs(), t.TempDir())

	l, err := d.ObtainLock("write.lock")
	require.NoError(t, err)

	d.locks.release(l.Path())
	require.ErrorIs(t, l.EnsureValid(), ErrLockInvalidated)
	require.Error(t, l.Close())
}

func TestLock_UnsupportedFs(t *testing.T) {
	d := newTestDirectory(t, afero.NewMemMapFs(), "/idx")

	_, err := d.ObtainLock("write.lock")
	require.ErrorIs(t, err, ErrNoFileLocks)
	assert.Equal(t, 0, d.locks.Len())
}
