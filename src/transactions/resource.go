package transactions

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/go-faster/errors"

	"github.com/Blackdeer1524/xalog/src"
	"github.com/Blackdeer1524/xalog/src/pkg/common"
	"github.com/Blackdeer1524/xalog/src/recovery"
)

var (
	ErrUnknownXid    = errors.New("unknown xid")
	ErrDuplicateXid  = errors.New("xid is already in use")
	ErrTxFinished    = errors.New("transaction is finished")
	ErrTxPrepared    = errors.New("transaction is prepared")
	ErrTxNotPrepared = errors.New("transaction is not prepared")
)

// Applier makes committed commands visible in the resource.
type Applier interface {
	Apply(ctx context.Context, xid common.Xid, cmds []recovery.Command) error
}

// ResourceManager rebuilds transactions from the recovery scan. At the end of
// the scan one-phase committed transactions are applied again, transactions
// that never prepared are rolled back and prepared ones wait for a decision.
type ResourceManager struct {
	applier Applier
	log     src.Logger

	mu        sync.Mutex
	recovered map[string]*recovery.RecoveredTransaction
	pending   map[string]*recovery.RecoveredTransaction
}

var _ recovery.ResourceManager = &ResourceManager{}

func NewResourceManager(applier Applier, log src.Logger) *ResourceManager {
	return &ResourceManager{
		applier:   applier,
		log:       log,
		recovered: map[string]*recovery.RecoveredTransaction{},
		pending:   map[string]*recovery.RecoveredTransaction{},
	}
}

func (rm *ResourceManager) InjectStart(tx *recovery.RecoveredTransaction) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.recovered[tx.Xid.Key()] = tx
	rm.log.Debugw("recovered start", "id", tx.Identifier, "xid", tx.Xid.String())

	return nil
}

func (rm *ResourceManager) InjectCommand(tx *recovery.RecoveredTransaction, _ recovery.Command) error {
	rm.log.Debugw("recovered command", "id", tx.Identifier, "commands", len(tx.Commands))
	return nil
}

// InjectPrepare treats a transaction without commands as read-only.
func (rm *ResourceManager) InjectPrepare(tx *recovery.RecoveredTransaction) (bool, error) {
	readOnly := len(tx.Commands) == 0
	if readOnly {
		rm.mu.Lock()
		delete(rm.recovered, tx.Xid.Key())
		rm.mu.Unlock()
	}
	rm.log.Debugw("recovered prepare", "id", tx.Identifier, "read_only", readOnly)

	return readOnly, nil
}

func (rm *ResourceManager) InjectOnePhaseCommit(tx *recovery.RecoveredTransaction) error {
	rm.log.Debugw("recovered one phase commit", "id", tx.Identifier)
	return nil
}

func (rm *ResourceManager) PruneXid(xid common.Xid) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	delete(rm.recovered, xid.Key())
	return nil
}

func (rm *ResourceManager) Reconcile(
	pending []*recovery.RecoveredTransaction,
	done func(recovery.Identifier) error,
) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	for _, tx := range pending {
		switch {
		case tx.OnePhaseCommitted:
			if err := rm.applier.Apply(context.Background(), tx.Xid, tx.Commands); err != nil {
				return errors.Wrapf(err, "redo %s", tx.Xid)
			}
			if err := done(tx.Identifier); err != nil {
				return err
			}
			rm.log.Infow("redid one phase committed transaction", "xid", tx.Xid.String())
		case tx.Prepared:
			rm.pending[tx.Xid.Key()] = tx
			rm.log.Infow("prepared transaction awaits a decision", "xid", tx.Xid.String())
		default:
			if err := done(tx.Identifier); err != nil {
				return err
			}
			rm.log.Infow("rolled back unprepared transaction", "xid", tx.Xid.String())
		}
	}
	clear(rm.recovered)

	return nil
}

// Pending lists the recovered prepared transactions ordered by identifier.
func (rm *ResourceManager) Pending() []*recovery.RecoveredTransaction {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	res := make([]*recovery.RecoveredTransaction, 0, len(rm.pending))
	for _, tx := range rm.pending {
		res = append(res, tx)
	}
	slices.SortFunc(res, func(a, b *recovery.RecoveredTransaction) int {
		return cmp.Compare(a.Identifier, b.Identifier)
	})

	return res
}

func (rm *ResourceManager) isPending(xid common.Xid) bool {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	_, ok := rm.pending[xid.Key()]
	return ok
}

// take removes a pending transaction so exactly one caller decides it.
func (rm *ResourceManager) take(xid common.Xid) (*recovery.RecoveredTransaction, error) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	tx, ok := rm.pending[xid.Key()]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownXid, "%s is not pending", xid)
	}
	delete(rm.pending, xid.Key())

	return tx, nil
}

func (rm *ResourceManager) putBack(tx *recovery.RecoveredTransaction) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.pending[tx.Xid.Key()] = tx
}
