package common

import (
	"bytes"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewXidBounds(t *testing.T) {
	_, err := NewXid(1, bytes.Repeat([]byte{1}, MaxGlobalIDSize), []byte("b"))
	require.NoError(t, err)

	_, err = NewXid(1, bytes.Repeat([]byte{1}, MaxGlobalIDSize+1), nil)
	require.True(t, errors.Is(err, ErrXidTooLong))

	_, err = NewXid(1, nil, bytes.Repeat([]byte{1}, MaxBranchIDSize+1))
	require.True(t, errors.Is(err, ErrXidTooLong))
}

func TestXidIsImmutable(t *testing.T) {
	gid := []byte("global")
	x, err := NewXid(7, gid, []byte("branch"))
	require.NoError(t, err)

	gid[0] = 'X'
	assert.Equal(t, []byte("global"), x.GlobalID())

	out := x.BranchID()
	out[0] = 'X'
	assert.Equal(t, []byte("branch"), x.BranchID())
}

func TestXidEqualAndKey(t *testing.T) {
	a, err := NewXid(7, []byte("g"), []byte("b"))
	require.NoError(t, err)
	b, err := NewXid(7, []byte("g"), []byte("b"))
	require.NoError(t, err)
	c, err := NewXid(8, []byte("g"), []byte("b"))
	require.NoError(t, err)

	assert.True(t, a.Equal(b))
	assert.Equal(t, a.Key(), b.Key())
	assert.False(t, a.Equal(c))
	assert.NotEqual(t, a.Key(), c.Key())
}
