package recovery

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEntries(t *testing.T) []Entry {
	return []Entry{
		{Tag: TagStart, Identifier: 2, Xid: testXid(t, 2)},
		{Tag: TagCommand, Identifier: 2, Command: NewBytesCommand([]byte("first"))},
		{Tag: TagStart, Identifier: 3, Xid: testXid(t, 3)},
		{Tag: TagCommand, Identifier: 3, Command: NewBytesCommand([]byte("second"))},
		{Tag: TagPrepare, Identifier: 2},
		{Tag: TagOnePhaseCommit, Identifier: 3},
		{Tag: TagDone, Identifier: 2},
		{Tag: TagDone, Identifier: 3},
	}
}

// boundaries returns the offset just past every entry.
func boundaries(t *testing.T, entries []Entry) []int {
	res := make([]int, 0, len(entries))
	total := 0
	for i := range entries {
		total += len(encodeEntries(t, entries[i]))
		res = append(res, total)
	}
	return res
}

func TestIterPositions(t *testing.T) {
	entries := sampleEntries(t)
	data := encodeEntries(t, entries...)
	ends := boundaries(t, entries)

	it := NewEntryIter(bytes.NewReader(data), HeaderSize, BytesCodec{})

	prev := int64(HeaderSize)
	for i := range entries {
		require.True(t, it.Next())
		assert.Equal(t, prev, it.Entry().Position)
		assert.Equal(t, int64(HeaderSize+ends[i]), it.End())
		prev = it.End()
	}
	require.False(t, it.Next())
	require.False(t, it.Next())
	require.NoError(t, it.Err())
}

func TestIterStopsAtZeroTag(t *testing.T) {
	entries := sampleEntries(t)[:2]
	data := encodeEntries(t, entries...)
	end := len(data)
	data = append(data, make([]byte, 100)...)

	it := NewEntryIter(bytes.NewReader(data), 0, BytesCodec{})
	require.True(t, it.Next())
	require.True(t, it.Next())
	require.False(t, it.Next())

	require.NoError(t, it.Err())
	assert.False(t, it.Truncated)
	assert.Equal(t, int64(end), it.End())
}

func TestIterToleratesCutAnywhere(t *testing.T) {
	entries := sampleEntries(t)
	data := encodeEntries(t, entries...)
	ends := boundaries(t, entries)

	for cut := 0; cut <= len(data); cut++ {
		complete := 0
		lastEnd := 0
		for _, end := range ends {
			if end <= cut {
				complete++
				lastEnd = end
			}
		}

		it := NewEntryIter(bytes.NewReader(data[:cut]), 0, BytesCodec{})
		read := 0
		for it.Next() {
			read++
		}

		require.NoError(t, it.Err(), "cut at %d", cut)
		assert.Equal(t, complete, read, "cut at %d", cut)
		assert.Equal(t, int64(lastEnd), it.End(), "cut at %d", cut)
		assert.Equal(t, cut != lastEnd, it.Truncated, "cut at %d", cut)
	}
}

func TestIterUnknownTagIsCorrupt(t *testing.T) {
	data := encodeEntries(t, sampleEntries(t)[0])
	data = append(data, 0x2a, 0, 0, 0, 2)

	it := NewEntryIter(bytes.NewReader(data), 0, BytesCodec{})
	require.True(t, it.Next())
	require.False(t, it.Next())
	require.ErrorIs(t, it.Err(), ErrCorruptLog)
	assert.False(t, it.Truncated)
}
