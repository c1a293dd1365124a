package page

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypedAccessIsBigEndian(t *testing.T) {
	p := New(64)
	p.Lock()
	p.SetData(append(make([]byte, 8), 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08))
	p.Unlock()

	assert.Equal(t, byte(0x01), p.Byte(8))
	assert.Equal(t, uint16(0x0102), p.Uint16(8))
	assert.Equal(t, uint32(0x01020304), p.Uint32(8))
	assert.Equal(t, uint64(0x0102030405060708), p.Uint64(8))

	dst := make([]byte, 3)
	require.Equal(t, 3, p.CopyTo(9, dst))
	assert.Equal(t, []byte{0x02, 0x03, 0x04}, dst)
}

func TestSetDataZeroFillsTail(t *testing.T) {
	p := New(16)
	p.Lock()
	p.SetData([]byte("0123456789abcdef"))
	p.SetData([]byte("xy"))
	p.Unlock()

	assert.Equal(t, byte('x'), p.Byte(0))
	assert.Equal(t, byte('y'), p.Byte(1))
	for i := 2; i < 16; i++ {
		assert.Zero(t, p.Byte(i))
	}
}

func TestOptimisticReadValidation(t *testing.T) {
	p := New(16)

	stamp := p.StartOptimisticRead()
	assert.True(t, p.Validate(stamp))

	p.Invalidate()
	assert.False(t, p.Validate(stamp), "stamp taken before a write must fail")

	stamp = p.StartOptimisticRead()
	p.BeginWrite()
	inFlight := p.StartOptimisticRead()
	assert.False(t, p.Validate(inFlight), "stamp taken during a write must fail")
	p.EndWrite()
	assert.False(t, p.Validate(stamp))
	assert.True(t, p.Validate(p.StartOptimisticRead()))
}

func TestNestedWritePanics(t *testing.T) {
	p := New(16)
	p.BeginWrite()
	assert.Panics(t, func() { p.BeginWrite() })
}
