package recovery

import (
	"bufio"
	"io"

	"github.com/go-faster/errors"
)

type countingReader struct {
	r   *bufio.Reader
	pos int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.pos += int64(n)
	return n, err
}

// EntryIter walks the entries of a log body. It stops at the end of the
// stream, at a zero tag and at the first incomplete entry; none of these is
// an error. An unknown tag is.
type EntryIter struct {
	r       *countingReader
	codec   CommandCodec
	scratch []byte

	entry Entry
	end   int64
	err   error
	done  bool

	// Truncated is set when the walk stopped inside an entry.
	Truncated bool
}

// NewEntryIter reads entries from r, which is positioned at offset start of
// the log file.
func NewEntryIter(r io.Reader, start int64, codec CommandCodec) *EntryIter {
	return &EntryIter{
		r:       &countingReader{r: bufio.NewReader(r), pos: start},
		codec:   codec,
		scratch: make([]byte, 256),
		end:     start,
	}
}

// Next decodes the following entry. It returns false when the walk is over;
// Err tells whether it ended on a failure.
func (it *EntryIter) Next() bool {
	if it.done {
		return false
	}

	tag, err := it.r.r.ReadByte()
	if err != nil {
		it.done = true
		if !errors.Is(err, io.EOF) {
			it.err = err
		}
		return false
	}
	it.r.pos++

	if EntryTag(tag) == TagEmpty {
		it.done = true
		return false
	}

	e := Entry{Tag: EntryTag(tag), Position: it.end}
	if err := e.unmarshalBody(it.r, it.codec, it.scratch); err != nil {
		it.done = true
		if errors.Is(err, errIncomplete) {
			it.Truncated = true
		} else {
			it.err = err
		}
		return false
	}

	it.entry = e
	it.end = it.r.pos

	return true
}

func (it *EntryIter) Entry() Entry {
	return it.entry
}

// End is the offset just past the last complete entry.
func (it *EntryIter) End() int64 {
	return it.end
}

func (it *EntryIter) Err() error {
	return it.err
}
