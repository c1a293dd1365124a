package directory

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func longBytes(v uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, v)
}

func TestWatcher_RefreshesExternallyRewrittenFile(t *testing.T) {
	root := t.TempDir()
	d := newTestDirectory(t, afero.NewOsFs(), root)

	path := filepath.Join(root, "segments_1")
	require.NoError(t, os.WriteFile(path, longBytes(1), 0o600))

	in, err := d.OpenInput("segments_1")
	require.NoError(t, err)
	defer func() { assert.NoError(t, in.Close()) }()

	v, err := in.ReadLongAt(0)
	require.NoError(t, err)
	require.Equal(t, int64(1), v)

	refreshed := make(chan string, 16)
	w, err := d.Watch(func(name string) {
		select {
		case refreshed <- name:
		default:
		}
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.NoError(t, os.WriteFile(path, longBytes(2), 0o600))

	require.Eventually(t, func() bool {
		v, err := in.ReadLongAt(0)
		return err == nil && v == 2
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "segments_1", <-refreshed)

	cancel()
	require.NoError(t, <-done)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
}

func TestWatcher_IgnoresUnmappedFiles(t *testing.T) {
	root := t.TempDir()
	d := newTestDirectory(t, afero.NewOsFs(), root)

	w, err := d.Watch(nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()

	require.NoError(t, os.WriteFile(filepath.Join(root, "stray"), []byte{1}, 0o600))

	require.NoError(t, w.Close())
	require.NoError(t, <-done)
}

func TestWatcher_MissingDirectory(t *testing.T) {
	root := t.TempDir()
	d := newTestDirectory(t, afero.NewOsFs(), filepath.Join(root, "idx"))
	require.NoError(t, os.Remove(d.Path()))

	_, err := d.Watch(nil)
	require.Error(t, err)
}
