package transactions

import (
	"context"
	"sync"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/Blackdeer1524/xalog/src"
	"github.com/Blackdeer1524/xalog/src/pkg/common"
	"github.com/Blackdeer1524/xalog/src/recovery"
)

// Manager drives transactions over a logical log and applies their commands
// through an Applier once they commit.
type Manager struct {
	log     *recovery.LogicalLog
	rm      *ResourceManager
	applier Applier
	logger  src.Logger

	mu     sync.Mutex
	active map[string]*Tx
}

func NewManager(
	fs afero.Fs,
	path string,
	applier Applier,
	codec recovery.CommandCodec,
	logger src.Logger,
) (*Manager, error) {
	rm := NewResourceManager(applier, logger)

	l, err := recovery.New(fs, path, rm, codec, logger)
	if err != nil {
		return nil, err
	}

	return &Manager{
		log:     l,
		rm:      rm,
		applier: applier,
		logger:  logger,
		active:  map[string]*Tx{},
	}, nil
}

// Open opens the log. Recovery runs before it returns.
func (m *Manager) Open(ctx context.Context) error {
	return m.log.Open(ctx)
}

func (m *Manager) Log() *recovery.LogicalLog {
	return m.log
}

// Begin starts a transaction. It is refused until the recovery scan is
// complete.
func (m *Manager) Begin(ctx context.Context, xid common.Xid) (*Tx, error) {
	if !m.log.ScanIsComplete() {
		return nil, recovery.ErrScanIncomplete
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.active[xid.Key()]; ok || m.rm.isPending(xid) {
		return nil, errors.Wrapf(ErrDuplicateXid, "begin %s", xid)
	}

	id, err := m.log.Start(xid)
	if err != nil {
		return nil, err
	}

	tx := &Tx{
		m:     m,
		xid:   xid,
		id:    id,
		key:   uuid.New(),
		state: txActive,
	}
	m.active[xid.Key()] = tx
	m.logger.Debugw("transaction started", "xid", xid.String(), "id", id)

	return tx, nil
}

func (m *Manager) forget(tx *Tx) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.active, tx.xid.Key())
}

// Pending lists the prepared transactions recovery left undecided.
func (m *Manager) Pending() []common.Xid {
	txs := m.rm.Pending()

	res := make([]common.Xid, 0, len(txs))
	for _, tx := range txs {
		res = append(res, tx.Xid)
	}
	return res
}

// CommitRecovered applies the recovered commands of a pending transaction and
// finishes it.
func (m *Manager) CommitRecovered(ctx context.Context, xid common.Xid) error {
	tx, err := m.rm.take(xid)
	if err != nil {
		return err
	}

	if err := m.applyBound(ctx, tx.Identifier, xid, tx.Commands); err != nil {
		m.rm.putBack(tx)
		return err
	}
	if err := m.log.Done(tx.Identifier); err != nil {
		return err
	}
	m.logger.Infow("recovered transaction committed", "xid", xid.String())

	return nil
}

// RollbackRecovered discards the recovered commands of a pending transaction.
func (m *Manager) RollbackRecovered(_ context.Context, xid common.Xid) error {
	tx, err := m.rm.take(xid)
	if err != nil {
		return err
	}

	if err := m.log.Done(tx.Identifier); err != nil {
		m.rm.putBack(tx)
		return err
	}
	m.logger.Infow("recovered transaction rolled back", "xid", xid.String())

	return nil
}

// applyBound binds id to a fresh key for the duration of the apply, so the
// applier can look the transaction up through the log.
func (m *Manager) applyBound(
	ctx context.Context,
	id recovery.Identifier,
	xid common.Xid,
	cmds []recovery.Command,
) error {
	key := uuid.New()
	m.log.Bindings().Register(key, id)
	defer m.log.Bindings().Unregister(key)

	return m.applier.Apply(recovery.WithBindingKey(ctx, key), xid, cmds)
}

// Close closes the log. The log file survives when transactions are still
// open.
func (m *Manager) Close() error {
	m.mu.Lock()
	n := len(m.active)
	m.mu.Unlock()

	if n > 0 {
		m.logger.Warnw("closing with active transactions", "count", n)
	}

	return m.log.Close()
}
