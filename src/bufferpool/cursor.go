package bufferpool

import (
	"runtime"

	"github.com/Blackdeer1524/xalog/src/pkg/common"
	"github.com/Blackdeer1524/xalog/src/storage/page"
)

// Cursor is a movable window onto one page of a PagedFile.
//
// Each single read is consistent, but a sequence of reads may straddle a
// concurrent reload: callers check ShouldRetry after the sequence and redo it
// if it returns true. Out-of-page accesses and accesses to pages past the end of
// the file don't panic, they raise a flag that callers check with
// CheckAndClearBoundsFlag.
type Cursor struct {
	file *PagedFile

	pageID  common.PageID
	frameID uint64
	pg      *page.Page
	stamp   uint64

	outOfBounds bool
	closed      bool
}

func (c *Cursor) CurrentPageID() (common.PageID, bool) {
	return c.pageID, c.pg != nil
}

// Next moves the cursor to pageID. It returns false without error when the
// page lies past the end of the file.
func (c *Cursor) Next(pageID common.PageID) (bool, error) {
	if c.closed {
		return false, ErrFileUnmapped
	}

	if c.pg != nil && c.pageID == pageID {
		return true, nil
	}

	c.release()

	pageSize := int64(c.file.PageSize())
	//nolint:gosec
	if int64(pageID)*pageSize >= c.file.Size() {
		c.pageID = pageID
		return false, nil
	}

	frameID, pg, err := c.file.m.getPage(common.PageIdentity{
		FileID: c.file.FileID(),
		PageID: pageID,
	})
	if err != nil {
		return false, err
	}

	c.pageID = pageID
	c.frameID = frameID
	c.pg = pg
	c.stamp = c.stableStamp()

	return true, nil
}

func (c *Cursor) stableStamp() uint64 {
	for {
		s := c.pg.StartOptimisticRead()
		if s&1 == 0 {
			return s
		}
		runtime.Gosched()
	}
}

// ShouldRetry reports whether the page changed since the last stamp. A true
// result re-arms the cursor for the retried read.
func (c *Cursor) ShouldRetry() bool {
	if c.pg == nil || c.pg.Validate(c.stamp) {
		return false
	}

	c.stamp = c.stableStamp()
	return true
}

func (c *Cursor) CheckAndClearBoundsFlag() bool {
	res := c.outOfBounds
	c.outOfBounds = false
	return res
}

func (c *Cursor) inBounds(offset, width int) bool {
	if c.pg == nil || offset < 0 || offset+width > c.pg.Size() {
		c.outOfBounds = true
		return false
	}
	return true
}

func (c *Cursor) GetByte(offset int) byte {
	if !c.inBounds(offset, 1) {
		return 0
	}
	c.pg.RLock()
	defer c.pg.RUnlock()

	return c.pg.Byte(offset)
}

func (c *Cursor) GetShort(offset int) int16 {
	if !c.inBounds(offset, 2) {
		return 0
	}
	c.pg.RLock()
	defer c.pg.RUnlock()

	//nolint:gosec
	return int16(c.pg.Uint16(offset))
}

func (c *Cursor) GetInt(offset int) int32 {
	if !c.inBounds(offset, 4) {
		return 0
	}
	c.pg.RLock()
	defer c.pg.RUnlock()

	//nolint:gosec
	return int32(c.pg.Uint32(offset))
}

func (c *Cursor) GetLong(offset int) int64 {
	if !c.inBounds(offset, 8) {
		return 0
	}
	c.pg.RLock()
	defer c.pg.RUnlock()

	//nolint:gosec
	return int64(c.pg.Uint64(offset))
}

// GetBytes fills dst from offset. dst must fit in the page.
func (c *Cursor) GetBytes(offset int, dst []byte) {
	if !c.inBounds(offset, len(dst)) {
		return
	}
	c.pg.RLock()
	c.pg.CopyTo(offset, dst)
	c.pg.RUnlock()
}

func (c *Cursor) release() {
	if c.pg == nil {
		return
	}
	c.file.m.unpin(c.frameID)
	c.pg = nil
}

// Close unpins the current page. Closing twice is a no-op.
func (c *Cursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.release()

	return nil
}
