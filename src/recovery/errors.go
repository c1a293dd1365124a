package recovery

import (
	"fmt"

	"github.com/go-faster/errors"
)

var (
	ErrUnknownIdentifier = errors.New("unknown identifier")
	ErrCorruptLog        = errors.New("corrupt logical log")
	ErrLogClosed         = errors.New("logical log is closed")
	ErrScanIncomplete    = errors.New("recovery scan has not completed")
)

// LogError is returned by every log operation. Identifier is NoIdentifier
// when the operation isn't about a single transaction.
type LogError struct {
	Op         string
	Identifier Identifier
	Err        error
}

func (e *LogError) Error() string {
	if e.Identifier == NoIdentifier {
		return fmt.Sprintf("logical log %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("logical log %s(%d): %v", e.Op, e.Identifier, e.Err)
}

func (e *LogError) Unwrap() error {
	return e.Err
}

func opError(op string, id Identifier, err error) error {
	if err == nil {
		return nil
	}
	return &LogError{Op: op, Identifier: id, Err: err}
}
