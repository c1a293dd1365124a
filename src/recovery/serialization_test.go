package recovery

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Blackdeer1524/xalog/src/pkg/common"
)

func encodeEntries(t *testing.T, entries ...Entry) []byte {
	t.Helper()

	var buf bytes.Buffer
	scratch := make([]byte, 16)
	for i := range entries {
		require.NoError(t, entries[i].marshal(&buf, BytesCodec{}, scratch))
	}

	return buf.Bytes()
}

func TestStartEntryLayout(t *testing.T) {
	xid, err := common.NewXid(0x1234, []byte("g"), []byte("bq"))
	require.NoError(t, err)

	data := encodeEntries(t, Entry{Tag: TagStart, Identifier: 7, Xid: xid})

	expected := []byte{
		byte(TagStart),
		1, 2,
		'g', 'b', 'q',
		0, 0, 0, 7,
		0, 0, 0x12, 0x34,
	}
	assert.Equal(t, expected, data)
}

func TestFixedEntryLayout(t *testing.T) {
	data := encodeEntries(
		t,
		Entry{Tag: TagPrepare, Identifier: 2},
		Entry{Tag: TagOnePhaseCommit, Identifier: 3},
		Entry{Tag: TagDone, Identifier: 0x01020304},
	)

	expected := []byte{
		byte(TagPrepare), 0, 0, 0, 2,
		byte(TagOnePhaseCommit), 0, 0, 0, 3,
		byte(TagDone), 1, 2, 3, 4,
	}
	assert.Equal(t, expected, data)
}

func TestCommandEntryLayout(t *testing.T) {
	data := encodeEntries(t, Entry{
		Tag:        TagCommand,
		Identifier: 5,
		Command:    NewBytesCommand([]byte("abc")),
	})

	expected := []byte{
		byte(TagCommand), 0, 0, 0, 5,
		0, 0, 0, 3,
		'a', 'b', 'c',
	}
	assert.Equal(t, expected, data)
}

func TestEntryRoundTrip(t *testing.T) {
	xid := testXid(t, 1)
	entries := []Entry{
		{Tag: TagStart, Identifier: 2, Xid: xid},
		{Tag: TagCommand, Identifier: 2, Command: NewBytesCommand([]byte("payload"))},
		{Tag: TagCommand, Identifier: 2, Command: NewBytesCommand(nil)},
		{Tag: TagPrepare, Identifier: 2},
		{Tag: TagOnePhaseCommit, Identifier: 2},
		{Tag: TagDone, Identifier: 2},
	}
	data := encodeEntries(t, entries...)

	it := NewEntryIter(bytes.NewReader(data), 0, BytesCodec{})
	for i, expected := range entries {
		require.True(t, it.Next(), "entry %d", i)

		actual := it.Entry()
		assert.Equal(t, expected.Tag, actual.Tag)
		assert.Equal(t, expected.Identifier, actual.Identifier)

		switch expected.Tag {
		case TagStart:
			assert.True(t, expected.Xid.Equal(actual.Xid))
		case TagCommand:
			cmd, ok := actual.Command.(*BytesCommand)
			require.True(t, ok)
			assert.Equal(
				t,
				len(expected.Command.(*BytesCommand).Payload),
				len(cmd.Payload),
			)
			assert.True(t, bytes.Equal(expected.Command.(*BytesCommand).Payload, cmd.Payload))
			assert.False(t, cmd.IsRecovered())
		}
	}
	require.False(t, it.Next())
	require.NoError(t, it.Err())
	assert.False(t, it.Truncated)
	assert.Equal(t, int64(len(data)), it.End())
}

func TestStartEntryWithEmptyXidParts(t *testing.T) {
	xid, err := common.NewXid(-1, nil, nil)
	require.NoError(t, err)

	data := encodeEntries(t, Entry{Tag: TagStart, Identifier: 9, Xid: xid})

	it := NewEntryIter(bytes.NewReader(data), 0, BytesCodec{})
	require.True(t, it.Next())
	assert.Equal(t, int32(-1), it.Entry().Xid.FormatID())
	assert.Empty(t, it.Entry().Xid.GlobalID())
	assert.Empty(t, it.Entry().Xid.BranchID())
}

func TestStartEntryWithOversizedXidIsCorrupt(t *testing.T) {
	data := []byte{byte(TagStart), common.MaxGlobalIDSize + 1, 0}
	data = append(data, make([]byte, common.MaxGlobalIDSize+1)...)
	data = append(data, 0, 0, 0, 2, 0, 0, 0, 1)

	it := NewEntryIter(bytes.NewReader(data), 0, BytesCodec{})
	require.False(t, it.Next())
	require.ErrorIs(t, it.Err(), ErrCorruptLog)
}

func TestMarshalRejectsEmptyTag(t *testing.T) {
	var buf bytes.Buffer
	e := Entry{Tag: TagEmpty}
	require.Error(t, e.marshal(&buf, BytesCodec{}, nil))
}

func TestBytesCodecShortInputIsIncomplete(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, BytesCodec{}.Write(NewBytesCommand([]byte("hello")), &buf, nil))
	data := buf.Bytes()

	for cut := range len(data) {
		cmd, err := BytesCodec{}.Read(bytes.NewReader(data[:cut]), make([]byte, 4))
		require.NoError(t, err, "cut at %d", cut)
		assert.True(t, cmd.IsNone(), "cut at %d", cut)
	}

	cmd, err := BytesCodec{}.Read(bytes.NewReader(data), nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), cmd.Unwrap().(*BytesCommand).Payload)
}

func TestBytesCodecRejectsHugeLength(t *testing.T) {
	data := []byte{0xff, 0xff, 0xff, 0xff}

	_, err := BytesCodec{}.Read(bytes.NewReader(data), nil)
	require.ErrorIs(t, err, ErrCorruptLog)
}

type otherCommand struct{}

func (otherCommand) MarkRecovered()    {}
func (otherCommand) IsRecovered() bool { return false }

func TestBytesCodecRejectsForeignCommand(t *testing.T) {
	var buf bytes.Buffer
	err := BytesCodec{}.Write(otherCommand{}, &buf, nil)
	require.Error(t, err)
	assert.Zero(t, buf.Len())
}
