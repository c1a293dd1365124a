package recovery

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/go-faster/errors"

	"github.com/Blackdeer1524/xalog/src/pkg/common"
)

// marshal appends the encoded entry to buf. COMMAND payloads are encoded by
// codec.
func (e *Entry) marshal(buf *bytes.Buffer, codec CommandCodec, scratch []byte) error {
	buf.WriteByte(byte(e.Tag))

	switch e.Tag {
	case TagStart:
		gid, bid := e.Xid.GlobalID(), e.Xid.BranchID()
		buf.WriteByte(byte(len(gid)))
		buf.WriteByte(byte(len(bid)))
		buf.Write(gid)
		buf.Write(bid)

		if err := binary.Write(buf, binary.BigEndian, int32(e.Identifier)); err != nil {
			return err
		}
		return binary.Write(buf, binary.BigEndian, e.Xid.FormatID())
	case TagPrepare, TagDone, TagOnePhaseCommit:
		return binary.Write(buf, binary.BigEndian, int32(e.Identifier))
	case TagCommand:
		if err := binary.Write(buf, binary.BigEndian, int32(e.Identifier)); err != nil {
			return err
		}
		return codec.Write(e.Command, buf, scratch)
	default:
		return errors.Errorf("can't marshal entry with tag %s", e.Tag)
	}
}

// errIncomplete marks an entry cut short by the end of the stream.
var errIncomplete = errors.New("incomplete entry")

func shortRead(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return errIncomplete
	}
	return err
}

// unmarshalBody reads the part of an entry that follows its tag.
func (e *Entry) unmarshalBody(r io.Reader, codec CommandCodec, scratch []byte) error {
	switch e.Tag {
	case TagStart:
		return e.unmarshalStart(r)
	case TagPrepare, TagDone, TagOnePhaseCommit:
		var id int32
		if err := binary.Read(r, binary.BigEndian, &id); err != nil {
			return shortRead(err)
		}
		e.Identifier = Identifier(id)

		return nil
	case TagCommand:
		var id int32
		if err := binary.Read(r, binary.BigEndian, &id); err != nil {
			return shortRead(err)
		}
		e.Identifier = Identifier(id)

		cmd, err := codec.Read(r, scratch)
		if err != nil {
			return err
		}
		c, ok := cmd.Get()
		if !ok {
			return errIncomplete
		}
		e.Command = c

		return nil
	default:
		return errors.Wrapf(ErrCorruptLog, "unknown entry tag %d at position %d", byte(e.Tag), e.Position)
	}
}

func (e *Entry) unmarshalStart(r io.Reader) error {
	var lengths [2]byte
	if _, err := io.ReadFull(r, lengths[:]); err != nil {
		return shortRead(err)
	}

	gid := make([]byte, lengths[0])
	if _, err := io.ReadFull(r, gid); err != nil {
		return shortRead(err)
	}
	bid := make([]byte, lengths[1])
	if _, err := io.ReadFull(r, bid); err != nil {
		return shortRead(err)
	}

	var id, formatID int32
	if err := binary.Read(r, binary.BigEndian, &id); err != nil {
		return shortRead(err)
	}
	if err := binary.Read(r, binary.BigEndian, &formatID); err != nil {
		return shortRead(err)
	}

	xid, err := common.NewXid(formatID, gid, bid)
	if err != nil {
		return errors.Wrapf(ErrCorruptLog, "start entry at position %d: %v", e.Position, err)
	}

	e.Identifier = Identifier(id)
	e.Xid = xid

	return nil
}
