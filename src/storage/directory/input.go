package directory

import (
	"sync/atomic"

	"github.com/go-faster/errors"
	"go.uber.org/multierr"

	"github.com/Blackdeer1524/xalog/src/pkg/common"
)

const rootSlot = -1

// Input is a read view over a file mapped in the page cache.
//
// A root Input owns the mapping. Slices and clones share the root's tracker
// and have their own cursor and bounds. An Input is not safe for concurrent
// use; independent clones are.
type Input struct {
	desc    string
	tracker *tracker
	slot    int
	cursor  PageCursor

	pageSize int64
	start    int64
	length   int64

	// cursor position as an absolute (page, offset) pair
	pageID common.PageID
	offset int64

	lastPageID common.PageID
	lastOffset int64

	closed atomic.Bool
}

func newRootInput(desc string, file MappedFile) (*Input, error) {
	c, err := file.OpenCursor()
	if err != nil {
		return nil, errors.Wrapf(err, "open cursor for %s", desc)
	}

	return newInput(desc, newTracker(file), rootSlot, c, 0, file.Size()), nil
}

func newInput(
	desc string,
	t *tracker,
	slot int,
	c PageCursor,
	start, length int64,
) *Input {
	pageSize := int64(t.file.PageSize())
	end := start + length

	in := &Input{
		desc:       desc,
		tracker:    t,
		slot:       slot,
		cursor:     c,
		pageSize:   pageSize,
		start:      start,
		length:     length,
		lastPageID: common.PageID(end / pageSize), //nolint:gosec
		lastOffset: end % pageSize,
	}
	in.pageID, in.offset = in.locate(start)

	return in
}

func (in *Input) String() string {
	return in.desc
}

func (in *Input) Length() int64 {
	return in.length
}

// FilePointer is the cursor position relative to the start of this view.
func (in *Input) FilePointer() int64 {
	return int64(in.pageID)*in.pageSize + in.offset - in.start //nolint:gosec
}

func (in *Input) locate(abs int64) (common.PageID, int64) {
	return common.PageID(abs / in.pageSize), abs % in.pageSize //nolint:gosec
}

func (in *Input) beyondEnd(pageID common.PageID, offset int64) bool {
	return pageID > in.lastPageID || (pageID == in.lastPageID && offset >= in.lastOffset)
}

func (in *Input) ensureOpen() error {
	if in.closed.Load() || in.tracker.closed.Load() {
		return errors.Wrap(ErrIndexClosed, in.desc)
	}
	return nil
}

// Seek moves the cursor to pos relative to the start of this view. Targets at
// or past the end fail with io.EOF instead of being clamped.
func (in *Input) Seek(pos int64) error {
	if err := in.ensureOpen(); err != nil {
		return err
	}
	if pos < 0 {
		return errors.Wrapf(ErrIllegalArgument, "negative seek position %d on %s", pos, in.desc)
	}

	pageID, offset := in.locate(in.start + pos)
	if in.beyondEnd(pageID, offset) {
		return eofError(in.desc, pos)
	}
	in.pageID, in.offset = pageID, offset

	return nil
}

func (in *Input) Skip(n int64) error {
	if n < 0 {
		return errors.Wrapf(ErrIllegalArgument, "negative skip %d on %s", n, in.desc)
	}
	return in.Seek(in.FilePointer() + n)
}

// access runs read against pageID until it observes a stable page, then
// reports an out-of-bounds access as EOF.
func (in *Input) access(pageID common.PageID, pos int64, read func(c PageCursor)) error {
	if _, err := in.cursor.Next(pageID); err != nil {
		return errors.Wrapf(err, "load page %d of %s", pageID, in.desc)
	}

	for {
		read(in.cursor)
		if !in.cursor.ShouldRetry() {
			break
		}
	}

	if in.cursor.CheckAndClearBoundsFlag() {
		return eofError(in.desc, pos)
	}
	return nil
}

// readNumber reads a big-endian value of width bytes at view position pos.
func (in *Input) readNumber(pos int64, width int64) (uint64, error) {
	if err := in.ensureOpen(); err != nil {
		return 0, err
	}
	if pos < 0 || pos+width > in.length {
		return 0, eofError(in.desc, pos)
	}

	abs := in.start + pos
	pageID, offset := in.locate(abs)

	var v uint64
	if offset+width > in.pageSize {
		for i := range width {
			p, o := in.locate(abs + i)

			var b byte
			err := in.access(p, pos+i, func(c PageCursor) {
				b = c.GetByte(int(o))
			})
			if err != nil {
				return 0, err
			}
			v = v<<8 | uint64(b)
		}

		return v, nil
	}

	o := int(offset)
	err := in.access(pageID, pos, func(c PageCursor) {
		switch width {
		case 1:
			v = uint64(c.GetByte(o))
		case 2:
			v = uint64(uint16(c.GetShort(o))) //nolint:gosec
		case 4:
			v = uint64(uint32(c.GetInt(o))) //nolint:gosec
		default:
			v = uint64(c.GetLong(o)) //nolint:gosec
		}
	})

	return v, err
}

func (in *Input) readNext(width int64) (uint64, error) {
	pos := in.FilePointer()

	v, err := in.readNumber(pos, width)
	if err != nil {
		return 0, err
	}
	in.pageID, in.offset = in.locate(in.start + pos + width)

	return v, nil
}

func (in *Input) ReadByte() (byte, error) {
	v, err := in.readNext(1)
	return byte(v), err
}

func (in *Input) ReadShort() (int16, error) {
	v, err := in.readNext(2)
	return int16(v), err //nolint:gosec
}

func (in *Input) ReadInt() (int32, error) {
	v, err := in.readNext(4)
	return int32(v), err //nolint:gosec
}

func (in *Input) ReadLong() (int64, error) {
	v, err := in.readNext(8)
	return int64(v), err //nolint:gosec
}

func (in *Input) ReadByteAt(pos int64) (byte, error) {
	v, err := in.readNumber(pos, 1)
	return byte(v), err
}

func (in *Input) ReadShortAt(pos int64) (int16, error) {
	v, err := in.readNumber(pos, 2)
	return int16(v), err //nolint:gosec
}

func (in *Input) ReadIntAt(pos int64) (int32, error) {
	v, err := in.readNumber(pos, 4)
	return int32(v), err //nolint:gosec
}

func (in *Input) ReadLongAt(pos int64) (int64, error) {
	v, err := in.readNumber(pos, 8)
	return int64(v), err //nolint:gosec
}

// ReadBytes fills dst[offset:offset+length] from the cursor and advances it.
func (in *Input) ReadBytes(dst []byte, offset, length int) error {
	if err := in.ensureOpen(); err != nil {
		return err
	}
	if offset < 0 || length < 0 || offset+length > len(dst) {
		return errors.Wrapf(
			ErrIllegalArgument,
			"range [%d, %d) out of buffer of %d bytes",
			offset,
			offset+length,
			len(dst),
		)
	}

	pos := in.FilePointer()
	if pos+int64(length) > in.length {
		return eofError(in.desc, pos)
	}

	for length > 0 {
		pageID, pageOffset := in.locate(in.start + pos)
		n := min(int64(length), in.pageSize-pageOffset)
		segment := dst[offset : offset+int(n)]

		err := in.access(pageID, pos, func(c PageCursor) {
			c.GetBytes(int(pageOffset), segment)
		})
		if err != nil {
			return err
		}

		pos += n
		offset += int(n)
		length -= int(n)
		in.pageID, in.offset = in.locate(in.start + pos)
	}

	return nil
}

// Slice returns a view over [offset, offset+length) of this view with its
// cursor at the slice start.
func (in *Input) Slice(desc string, offset, length int64) (*Input, error) {
	if err := in.ensureOpen(); err != nil {
		return nil, err
	}
	if offset < 0 || length < 0 || offset+length > in.length {
		return nil, errors.Wrapf(
			ErrIllegalArgument,
			"slice(offset=%d, length=%d) is out of bounds of %s (length %d)",
			offset,
			length,
			in.desc,
			in.length,
		)
	}

	slot, c, err := in.tracker.openClone()
	if err != nil {
		return nil, errors.Wrapf(err, "slice %s of %s", desc, in.desc)
	}

	return newInput(desc, in.tracker, slot, c, in.start+offset, length), nil
}

// Clone returns a full-length view positioned where this one is.
func (in *Input) Clone() (*Input, error) {
	clone, err := in.Slice(in.desc, 0, in.length)
	if err != nil {
		return nil, err
	}
	clone.pageID, clone.offset = in.pageID, in.offset

	return clone, nil
}

// Close of a root closes every clone still open, its own cursor and then the
// mapped file. All of them are attempted; the errors are combined in order.
// Close of a clone only closes its cursor.
func (in *Input) Close() error {
	if !in.closed.CompareAndSwap(false, true) {
		return nil
	}

	if in.slot != rootSlot {
		return in.tracker.releaseClone(in.slot)
	}

	var err error
	for _, c := range in.tracker.drain() {
		err = multierr.Append(err, c.Close())
	}
	err = multierr.Append(err, in.cursor.Close())
	err = multierr.Append(err, in.tracker.file.Close())

	return err
}
