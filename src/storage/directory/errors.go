package directory

import (
	"io"

	"github.com/go-faster/errors"
)

var (
	ErrIllegalArgument  = errors.New("illegal argument")
	ErrIndexClosed      = errors.New("index has been closed")
	ErrLockObtainFailed = errors.New("lock obtain failed")
	ErrLockReleased     = errors.New("lock instance already released")
	ErrLockInvalidated  = errors.New("lock is no longer valid")
	ErrNoFileLocks      = errors.New("filesystem does not support advisory locks")
)

func eofError(desc string, pos int64) error {
	return errors.Wrapf(io.EOF, "read past EOF: %s at position %d", desc, pos)
}
