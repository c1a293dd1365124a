package bufferpool

import (
	"path/filepath"
	"sync/atomic"

	"github.com/go-faster/errors"

	"github.com/Blackdeer1524/xalog/src/pkg/common"
)

var ErrFileUnmapped = errors.New("paged file is unmapped")

// mapping is the cache-side state of one file, shared by every PagedFile
// handle returned for its path.
type mapping struct {
	path     string
	fileID   common.FileID
	refCount int
	size     atomic.Int64
}

// PagedFile is one handle onto a file mapped in the page cache.
type PagedFile struct {
	m      *Manager
	mp     *mapping
	closed atomic.Bool
}

// MapFile maps path into the cache. Mapping the same path twice shares the
// cached pages; each returned handle must be closed on its own.
func (m *Manager) MapFile(path string) (*PagedFile, error) {
	path = filepath.Clean(path)

	m.filesMu.Lock()
	defer m.filesMu.Unlock()

	mp, ok := m.files[path]
	if !ok {
		mp = &mapping{
			path:   path,
			fileID: m.nextFileID,
		}
		m.diskManager.Register(mp.fileID, path)

		size, err := m.diskManager.FileSize(mp.fileID)
		if err != nil {
			m.diskManager.Unregister(mp.fileID)
			return nil, errors.Wrapf(err, "map %s", path)
		}
		mp.size.Store(size)

		m.nextFileID++
		m.files[path] = mp
	}
	mp.refCount++

	return &PagedFile{m: m, mp: mp}, nil
}

func (f *PagedFile) FileID() common.FileID {
	return f.mp.fileID
}

func (f *PagedFile) Path() string {
	return f.mp.path
}

func (f *PagedFile) PageSize() int {
	return f.m.pageSize
}

// Size is the file length observed when it was mapped or last refreshed.
func (f *PagedFile) Size() int64 {
	return f.mp.size.Load()
}

// Refresh re-reads the file length and reloads its cached pages.
func (f *PagedFile) Refresh() error {
	if f.closed.Load() {
		return ErrFileUnmapped
	}

	size, err := f.m.diskManager.FileSize(f.mp.fileID)
	if err != nil {
		return err
	}
	f.mp.size.Store(size)

	return f.m.InvalidateFile(f.mp.fileID)
}

// RefreshPath refreshes path if it is currently mapped.
func (m *Manager) RefreshPath(path string) error {
	m.filesMu.Lock()
	mp, ok := m.files[filepath.Clean(path)]
	m.filesMu.Unlock()

	if !ok {
		return nil
	}

	size, err := m.diskManager.FileSize(mp.fileID)
	if err != nil {
		return err
	}
	mp.size.Store(size)

	return m.InvalidateFile(mp.fileID)
}

// Cursor opens a new page cursor on this file. Cursors are not safe for
// concurrent use.
func (f *PagedFile) Cursor() (*Cursor, error) {
	if f.closed.Load() {
		return nil, ErrFileUnmapped
	}

	return &Cursor{file: f}, nil
}

// Close releases this handle. The last handle of a path drops its pages from
// the cache. Closing twice is a no-op.
func (f *PagedFile) Close() error {
	if !f.closed.CompareAndSwap(false, true) {
		return nil
	}

	m := f.m
	m.filesMu.Lock()
	defer m.filesMu.Unlock()

	f.mp.refCount--
	if f.mp.refCount > 0 {
		return nil
	}

	delete(m.files, f.mp.path)

	err := m.dropFile(f.mp.fileID)
	m.diskManager.Unregister(f.mp.fileID)

	return errors.Wrapf(err, "unmap %s", f.mp.path)
}
