package recovery

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Blackdeer1524/xalog/src/pkg/common"
)

const testLogPath = "/data/tm_tx_log.1"

type MockResourceManager struct {
	mock.Mock
}

var _ ResourceManager = &MockResourceManager{}

func (m *MockResourceManager) InjectStart(tx *RecoveredTransaction) error {
	args := m.Called(tx)
	return args.Error(0)
}

func (m *MockResourceManager) InjectCommand(tx *RecoveredTransaction, cmd Command) error {
	args := m.Called(tx, cmd)
	return args.Error(0)
}

func (m *MockResourceManager) InjectPrepare(tx *RecoveredTransaction) (bool, error) {
	args := m.Called(tx)
	return args.Bool(0), args.Error(1)
}

func (m *MockResourceManager) InjectOnePhaseCommit(tx *RecoveredTransaction) error {
	args := m.Called(tx)
	return args.Error(0)
}

func (m *MockResourceManager) PruneXid(xid common.Xid) error {
	args := m.Called(xid)
	return args.Error(0)
}

func (m *MockResourceManager) Reconcile(
	pending []*RecoveredTransaction,
	done func(Identifier) error,
) error {
	args := m.Called(pending, done)
	return args.Error(0)
}

// recordingRM writes down what recovery told it. reconcile, when set,
// decides the fate of the pending transactions.
type recordingRM struct {
	mu        sync.Mutex
	events    []string
	pruned    []common.Xid
	pending   []*RecoveredTransaction
	readOnly  map[Identifier]bool
	reconcile func(pending []*RecoveredTransaction, done func(Identifier) error) error
}

func newRecordingRM() *recordingRM {
	return &recordingRM{readOnly: map[Identifier]bool{}}
}

func (r *recordingRM) record(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, fmt.Sprintf(format, args...))
}

func (r *recordingRM) InjectStart(tx *RecoveredTransaction) error {
	r.record("start %d", tx.Identifier)
	return nil
}

func (r *recordingRM) InjectCommand(tx *RecoveredTransaction, _ Command) error {
	r.record("command %d", tx.Identifier)
	return nil
}

func (r *recordingRM) InjectPrepare(tx *RecoveredTransaction) (bool, error) {
	r.record("prepare %d", tx.Identifier)
	return r.readOnly[tx.Identifier], nil
}

func (r *recordingRM) InjectOnePhaseCommit(tx *RecoveredTransaction) error {
	r.record("1pc %d", tx.Identifier)
	return nil
}

func (r *recordingRM) PruneXid(xid common.Xid) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pruned = append(r.pruned, xid)
	return nil
}

func (r *recordingRM) Reconcile(
	pending []*RecoveredTransaction,
	done func(Identifier) error,
) error {
	r.mu.Lock()
	r.pending = pending
	r.mu.Unlock()

	if r.reconcile != nil {
		return r.reconcile(pending, done)
	}
	return nil
}

func testXid(t *testing.T, n int) common.Xid {
	t.Helper()

	xid, err := common.NewXid(0x1234, []byte(fmt.Sprintf("gtrid-%d", n)), []byte("bqual"))
	require.NoError(t, err)

	return xid
}

func newTestLog(t *testing.T, fs afero.Fs, rm ResourceManager) *LogicalLog {
	t.Helper()

	l, err := New(fs, testLogPath, rm, BytesCodec{}, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)

	return l
}

func openTestLog(t *testing.T, fs afero.Fs, rm ResourceManager) *LogicalLog {
	t.Helper()

	l := newTestLog(t, fs, rm)
	require.NoError(t, l.Open(context.Background()))

	return l
}

// crash abandons the log the way a killed process would after the OS got
// the buffered bytes: nothing is forced, nothing is deleted.
func crash(t *testing.T, l *LogicalLog) {
	t.Helper()

	l.mu.Lock()
	defer l.mu.Unlock()

	require.NoError(t, l.buf.Flush())
	require.NoError(t, l.file.Close())
	l.file, l.buf = nil, nil
	l.closed = true
}

func readLogFile(t *testing.T, fs afero.Fs) []byte {
	t.Helper()

	data, err := afero.ReadFile(fs, testLogPath)
	require.NoError(t, err)

	return data
}
