package app

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Blackdeer1524/xalog/src/pkg/common"
	"github.com/Blackdeer1524/xalog/src/recovery"
	"github.com/Blackdeer1524/xalog/src/transactions"
)

const testLogPath = "/data/tm_tx_log.1"

type nopApplier struct{}

func (nopApplier) Apply(context.Context, common.Xid, []recovery.Command) error {
	return nil
}

// leavePrepared leaves one prepared transaction behind in a dirty log.
func leavePrepared(t *testing.T, fs afero.Fs) common.Xid {
	t.Helper()
	ctx := context.Background()

	m, err := transactions.NewManager(
		fs,
		testLogPath,
		nopApplier{},
		recovery.BytesCodec{},
		zaptest.NewLogger(t).Sugar(),
	)
	require.NoError(t, err)
	require.NoError(t, m.Open(ctx))

	xid, err := common.NewXid(1, []byte("gid"), []byte("bid"))
	require.NoError(t, err)

	tx, err := m.Begin(ctx, xid)
	require.NoError(t, err)
	require.NoError(t, tx.AddCommand(recovery.NewBytesCommand([]byte{0xca, 0xfe})))
	require.NoError(t, tx.Prepare(ctx))
	require.NoError(t, m.Close())

	return xid
}

func TestInspect(t *testing.T) {
	fs := afero.NewMemMapFs()
	leavePrepared(t, fs)

	var out bytes.Buffer
	e := &InspectEntrypoint{LogPath: testLogPath, Out: &out, Fs: fs}
	require.NoError(t, Run(context.Background(), e))

	assert.Contains(t, out.String(), "START id=2")
	assert.Contains(t, out.String(), "COMMAND id=2")
	assert.Contains(t, out.String(), "PREPARE id=2")
	assert.Contains(t, out.String(), "3 entries")
	assert.Contains(t, out.String(), "truncated tail: false")
}

func TestInspectMissingLog(t *testing.T) {
	e := &InspectEntrypoint{LogPath: testLogPath, Out: &bytes.Buffer{}, Fs: afero.NewMemMapFs()}
	require.Error(t, Run(context.Background(), e))
}

func TestRecoverList(t *testing.T) {
	fs := afero.NewMemMapFs()
	leavePrepared(t, fs)

	var out bytes.Buffer
	e := &RecoverEntrypoint{LogPath: testLogPath, Out: &out, Fs: fs}
	require.NoError(t, Run(context.Background(), e))

	assert.Contains(t, out.String(), "1 prepared transactions pending")
	assert.NotContains(t, out.String(), "apply")

	exists, err := afero.Exists(fs, testLogPath)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRecoverCommit(t *testing.T) {
	fs := afero.NewMemMapFs()
	xid := leavePrepared(t, fs)

	var out bytes.Buffer
	e := &RecoverEntrypoint{LogPath: testLogPath, Decision: DecisionCommit, Out: &out, Fs: fs}
	require.NoError(t, Run(context.Background(), e))

	assert.Contains(t, out.String(), "pending "+xid.String())
	assert.Contains(t, out.String(), "apply "+xid.String()+": 1 commands")
	assert.Contains(t, out.String(), "cafe")

	exists, err := afero.Exists(fs, testLogPath)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRecoverRollback(t *testing.T) {
	fs := afero.NewMemMapFs()
	leavePrepared(t, fs)

	var out bytes.Buffer
	e := &RecoverEntrypoint{LogPath: testLogPath, Decision: DecisionRollback, Out: &out, Fs: fs}
	require.NoError(t, Run(context.Background(), e))

	assert.NotContains(t, out.String(), "apply")

	exists, err := afero.Exists(fs, testLogPath)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRecoverRejectsUnknownDecision(t *testing.T) {
	e := &RecoverEntrypoint{Decision: "maybe", Out: &bytes.Buffer{}, Fs: afero.NewMemMapFs()}
	require.Error(t, Run(context.Background(), e))
}

func TestIndexDump(t *testing.T) {
	dir := t.TempDir()

	data := make([]byte, 0, 24+3)
	for _, v := range []int64{1, -2, 1 << 40} {
		data = binary.BigEndian.AppendUint64(data, uint64(v))
	}
	data = append(data, 1, 2, 3)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "segments_1"), data, 0o600))

	var out bytes.Buffer
	e := &IndexDumpEntrypoint{Dir: dir, File: "segments_1", Longs: 10, Out: &out}
	require.NoError(t, Run(context.Background(), e))

	assert.Contains(t, out.String(), "27 bytes")
	assert.Contains(t, out.String(), "       0: 1\n")
	assert.Contains(t, out.String(), "       8: -2\n")
	assert.Contains(t, out.String(), "      16: 1099511627776\n")
	assert.NotContains(t, out.String(), "24:")
}

func TestIndexDumpRequiresFile(t *testing.T) {
	e := &IndexDumpEntrypoint{Dir: t.TempDir(), Out: &bytes.Buffer{}}
	require.Error(t, Run(context.Background(), e))
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestIndexDumpFollow(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "segments_1")
	require.NoError(t, os.WriteFile(path, binary.BigEndian.AppendUint64(nil, 7), 0o600))

	out := &syncBuffer{}
	e := &IndexDumpEntrypoint{Dir: dir, File: "segments_1", Longs: 1, Out: out, Follow: true}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, e) }()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "       0: 7\n")
	}, 5*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		// the watcher may not be registered yet, so keep rewriting
		if err := os.WriteFile(path, binary.BigEndian.AppendUint64(nil, 9), 0o600); err != nil {
			return false
		}
		return strings.Contains(out.String(), "       0: 9\n")
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
