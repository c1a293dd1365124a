package recovery

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/go-faster/errors"

	"github.com/Blackdeer1524/xalog/src/pkg/optional"
)

// Command is an opaque unit of work recorded for a transaction.
type Command interface {
	MarkRecovered()
	IsRecovered() bool
}

// CommandCodec owns the framing of command payloads. Read returns None when
// the stream ends before a whole command could be read.
type CommandCodec interface {
	Write(cmd Command, w io.Writer, scratch []byte) error
	Read(r io.Reader, scratch []byte) (optional.Optional[Command], error)
}

// MaxBytesCommandSize caps a single BytesCommand payload.
const MaxBytesCommandSize = 64 << 20

type BytesCommand struct {
	Payload   []byte
	recovered bool
}

func NewBytesCommand(payload []byte) *BytesCommand {
	return &BytesCommand{Payload: payload}
}

func (c *BytesCommand) MarkRecovered() {
	c.recovered = true
}

func (c *BytesCommand) IsRecovered() bool {
	return c.recovered
}

func (c *BytesCommand) String() string {
	return fmt.Sprintf("bytes(%d)", len(c.Payload))
}

// BytesCodec frames a BytesCommand as a big-endian u32 length and the
// payload.
type BytesCodec struct{}

var _ CommandCodec = BytesCodec{}

func (BytesCodec) Write(cmd Command, w io.Writer, scratch []byte) error {
	bc, ok := cmd.(*BytesCommand)
	if !ok {
		return errors.Errorf("bytes codec can't encode %T", cmd)
	}
	if len(bc.Payload) > MaxBytesCommandSize {
		return errors.Errorf("command payload of %d bytes is too large", len(bc.Payload))
	}

	if len(scratch) < 4 {
		scratch = make([]byte, 4)
	}
	binary.BigEndian.PutUint32(scratch, uint32(len(bc.Payload))) //nolint:gosec

	if _, err := w.Write(scratch[:4]); err != nil {
		return err
	}
	_, err := w.Write(bc.Payload)

	return err
}

func (BytesCodec) Read(r io.Reader, scratch []byte) (optional.Optional[Command], error) {
	if len(scratch) < 4 {
		scratch = make([]byte, 4)
	}

	if _, err := io.ReadFull(r, scratch[:4]); err != nil {
		return incomplete(err)
	}

	size := binary.BigEndian.Uint32(scratch)
	if size > MaxBytesCommandSize {
		return optional.None[Command](), errors.Wrapf(
			ErrCorruptLog,
			"command payload of %d bytes",
			size,
		)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return incomplete(err)
	}

	return optional.Some[Command](NewBytesCommand(payload)), nil
}

func incomplete(err error) (optional.Optional[Command], error) {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return optional.None[Command](), nil
	}
	return optional.None[Command](), err
}
