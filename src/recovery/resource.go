package recovery

import "github.com/Blackdeer1524/xalog/src/pkg/common"

// ResourceManager is told about every transaction the recovery scan replays.
type ResourceManager interface {
	InjectStart(tx *RecoveredTransaction) error
	InjectCommand(tx *RecoveredTransaction, cmd Command) error
	// InjectPrepare reports whether tx is read-only. Read-only transactions
	// are forgotten right away.
	InjectPrepare(tx *RecoveredTransaction) (readOnly bool, err error)
	InjectOnePhaseCommit(tx *RecoveredTransaction) error
	PruneXid(xid common.Xid) error

	// Reconcile receives the transactions that started but never finished.
	// done appends a DONE entry for an identifier without validating it and
	// may only be called before Reconcile returns.
	Reconcile(pending []*RecoveredTransaction, done func(Identifier) error) error
}
