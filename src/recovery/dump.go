package recovery

import (
	"encoding/binary"
	"io"
	"time"

	"github.com/go-faster/errors"
	"github.com/spf13/afero"
)

// DumpSummary describes a log walked by Dump.
type DumpSummary struct {
	CreatedAt time.Time
	Entries   int
	// End is the offset just past the last complete entry.
	End       int64
	Truncated bool
}

// Dump walks the log at path without modifying it and hands every complete
// entry to fn. Returning an error from fn stops the walk.
func Dump(
	fs afero.Fs,
	path string,
	codec CommandCodec,
	fn func(Entry) error,
) (DumpSummary, error) {
	f, err := fs.Open(path)
	if err != nil {
		return DumpSummary{}, err
	}
	defer f.Close()

	var header [HeaderSize]byte
	if _, err := io.ReadFull(f, header[:]); err != nil {
		return DumpSummary{}, errors.Wrapf(err, "read header of %s", path)
	}

	summary := DumpSummary{
		CreatedAt: time.UnixMilli(int64(binary.BigEndian.Uint64(header[:]))), //nolint:gosec
	}

	it := NewEntryIter(f, HeaderSize, codec)
	for it.Next() {
		if err := fn(it.Entry()); err != nil {
			return summary, err
		}
		summary.Entries++
	}
	summary.End = it.End()
	summary.Truncated = it.Truncated

	return summary, it.Err()
}
