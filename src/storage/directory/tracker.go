package directory

import (
	"sync"
	"sync/atomic"

	"github.com/Blackdeer1524/xalog/src/bufferpool"
	"github.com/Blackdeer1524/xalog/src/pkg/common"
)

// PageCursor is the page access an Input needs from the cache.
type PageCursor interface {
	Next(pageID common.PageID) (bool, error)
	GetByte(offset int) byte
	GetShort(offset int) int16
	GetInt(offset int) int32
	GetLong(offset int) int64
	GetBytes(offset int, dst []byte)
	ShouldRetry() bool
	CheckAndClearBoundsFlag() bool
	Close() error
}

// MappedFile is a file mapped into the page cache.
type MappedFile interface {
	PageSize() int
	Size() int64
	OpenCursor() (PageCursor, error)
	Close() error
}

type cachedFile struct {
	*bufferpool.PagedFile
}

func (f cachedFile) OpenCursor() (PageCursor, error) {
	c, err := f.Cursor()
	if err != nil {
		return nil, err
	}
	return c, nil
}

// tracker is shared by a root Input and every view derived from it. Clone
// cursors live in slots of an arena owned by the tracker; views only keep
// their slot index.
type tracker struct {
	file MappedFile

	mu     sync.Mutex
	closed atomic.Bool
	slots  []PageCursor
	free   []int
}

func newTracker(file MappedFile) *tracker {
	return &tracker{file: file}
}

func (t *tracker) openClone() (int, PageCursor, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed.Load() {
		return 0, nil, ErrIndexClosed
	}

	c, err := t.file.OpenCursor()
	if err != nil {
		return 0, nil, err
	}

	if n := len(t.free); n > 0 {
		slot := t.free[n-1]
		t.free = t.free[:n-1]
		t.slots[slot] = c
		return slot, c, nil
	}
	t.slots = append(t.slots, c)

	return len(t.slots) - 1, c, nil
}

// releaseClone closes the cursor in slot unless the root close already
// took it.
func (t *tracker) releaseClone(slot int) error {
	t.mu.Lock()
	if t.closed.Load() {
		t.mu.Unlock()
		return nil
	}
	c := t.slots[slot]
	t.slots[slot] = nil
	if c != nil {
		t.free = append(t.free, slot)
	}
	t.mu.Unlock()

	if c == nil {
		return nil
	}
	return c.Close()
}

// drain marks the tracker closed and hands back every live clone cursor.
func (t *tracker) drain() []PageCursor {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed.Store(true)

	live := make([]PageCursor, 0, len(t.slots))
	for _, c := range t.slots {
		if c != nil {
			live = append(live, c)
		}
	}
	t.slots = nil
	t.free = nil

	return live
}
