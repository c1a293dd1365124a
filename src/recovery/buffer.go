package recovery

import (
	"bufio"

	"github.com/spf13/afero"
)

const logBufferSize = 64 * 1024

// logBuffer stages appends in memory and tracks the file offset of the next
// appended byte.
type logBuffer struct {
	file afero.File
	w    *bufio.Writer
	pos  int64
}

func newLogBuffer(file afero.File, pos int64) *logBuffer {
	return &logBuffer{
		file: file,
		w:    bufio.NewWriterSize(file, logBufferSize),
		pos:  pos,
	}
}

// Write appends p whole or reports an error. After an error the buffer
// refuses every further write.
func (b *logBuffer) Write(p []byte) (int, error) {
	n, err := b.w.Write(p)
	b.pos += int64(n)
	return n, err
}

func (b *logBuffer) Position() int64 {
	return b.pos
}

func (b *logBuffer) Flush() error {
	return b.w.Flush()
}

// Force flushes and waits for stable storage.
func (b *logBuffer) Force() error {
	if err := b.w.Flush(); err != nil {
		return err
	}
	return b.file.Sync()
}
