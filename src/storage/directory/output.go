package directory

import (
	"encoding/binary"

	"github.com/go-faster/errors"
	"github.com/spf13/afero"
	"go.uber.org/multierr"
)

// ChunkSize bounds every write handed to the filesystem.
const ChunkSize = 8 * 1024

// Output is a forward-only writer. Bytes are staged in a ChunkSize buffer and
// reach the file one chunk at a time.
type Output struct {
	desc    string
	file    afero.File
	buf     []byte
	scratch [8]byte
	written int64

	onClose func() error
	closed  bool
}

func newOutput(desc string, file afero.File, onClose func() error) *Output {
	return &Output{
		desc:    desc,
		file:    file,
		buf:     make([]byte, 0, ChunkSize),
		onClose: onClose,
	}
}

func (o *Output) String() string {
	return o.desc
}

// FilePointer is the number of bytes written so far, buffered or not.
func (o *Output) FilePointer() int64 {
	return o.written + int64(len(o.buf))
}

func (o *Output) WriteByte(b byte) error {
	if o.closed {
		return errors.Wrap(ErrIndexClosed, o.desc)
	}
	if len(o.buf) == ChunkSize {
		if err := o.Flush(); err != nil {
			return err
		}
	}
	o.buf = append(o.buf, b)

	return nil
}

func (o *Output) WriteShort(v int16) error {
	binary.BigEndian.PutUint16(o.scratch[:], uint16(v)) //nolint:gosec
	return o.WriteBytes(o.scratch[:2])
}

func (o *Output) WriteInt(v int32) error {
	binary.BigEndian.PutUint32(o.scratch[:], uint32(v)) //nolint:gosec
	return o.WriteBytes(o.scratch[:4])
}

func (o *Output) WriteLong(v int64) error {
	binary.BigEndian.PutUint64(o.scratch[:], uint64(v)) //nolint:gosec
	return o.WriteBytes(o.scratch[:8])
}

func (o *Output) WriteBytes(p []byte) error {
	if o.closed {
		return errors.Wrap(ErrIndexClosed, o.desc)
	}

	for len(p) > 0 {
		if len(o.buf) == ChunkSize {
			if err := o.Flush(); err != nil {
				return err
			}
		}
		n := min(len(p), ChunkSize-len(o.buf))
		o.buf = append(o.buf, p[:n]...)
		p = p[n:]
	}

	return nil
}

// Write makes Output an io.Writer.
func (o *Output) Write(p []byte) (int, error) {
	if err := o.WriteBytes(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Flush hands the staged chunk to the filesystem.
func (o *Output) Flush() error {
	if len(o.buf) == 0 {
		return nil
	}

	n, err := o.file.Write(o.buf)
	o.written += int64(n)
	if err != nil {
		o.buf = append(o.buf[:0], o.buf[n:]...)
		return errors.Wrapf(err, "write %s", o.desc)
	}
	o.buf = o.buf[:0]

	return nil
}

// Force flushes and waits for the file contents to reach stable storage.
func (o *Output) Force() error {
	if o.closed {
		return errors.Wrap(ErrIndexClosed, o.desc)
	}
	if err := o.Flush(); err != nil {
		return err
	}
	if err := o.file.Sync(); err != nil {
		return errors.Wrapf(err, "sync %s", o.desc)
	}

	return nil
}

func (o *Output) Close() error {
	if o.closed {
		return nil
	}
	o.closed = true

	err := o.Flush()
	err = multierr.Append(err, o.file.Close())
	if o.onClose != nil {
		err = multierr.Append(err, o.onClose())
	}

	return err
}
