package transactions

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/Blackdeer1524/xalog/src/pkg/common"
	"github.com/Blackdeer1524/xalog/src/recovery"
)

type txState int

const (
	txActive txState = iota
	txPrepared
	txFinished
)

// Tx is one transaction started by a Manager. A Tx is not safe for
// concurrent use.
type Tx struct {
	m   *Manager
	xid common.Xid
	id  recovery.Identifier
	key uuid.UUID

	commands []recovery.Command
	written  int // leading commands already in the log
	state    txState
}

func (tx *Tx) Xid() common.Xid {
	return tx.xid
}

func (tx *Tx) Identifier() recovery.Identifier {
	return tx.id
}

// AddCommand buffers cmd. Commands reach the log on Prepare or Commit.
func (tx *Tx) AddCommand(cmd recovery.Command) error {
	switch tx.state {
	case txPrepared:
		return ErrTxPrepared
	case txFinished:
		return ErrTxFinished
	}

	tx.commands = append(tx.commands, cmd)
	return nil
}

// writeCommands appends the commands not yet in the log, so a Commit or
// Prepare retried after a failed force doesn't log them twice.
func (tx *Tx) writeCommands() error {
	for _, cmd := range tx.commands[tx.written:] {
		if err := tx.m.log.WriteCommand(cmd, tx.id); err != nil {
			return err
		}
		tx.written++
	}
	return nil
}

// Commit commits in one phase: the commands and a forced ONE_PHASE_COMMIT go
// to the log before anything is applied.
func (tx *Tx) Commit(ctx context.Context) error {
	switch tx.state {
	case txPrepared:
		return errors.Wrap(ErrTxPrepared, "use CommitPrepared")
	case txFinished:
		return ErrTxFinished
	}

	if err := tx.writeCommands(); err != nil {
		return err
	}
	if err := tx.m.log.CommitOnePhase(tx.id); err != nil {
		return err
	}

	return tx.apply(ctx)
}

// Prepare writes the commands and a forced PREPARE. After Prepare the
// transaction survives a crash until CommitPrepared or Rollback.
func (tx *Tx) Prepare(_ context.Context) error {
	switch tx.state {
	case txPrepared:
		return ErrTxPrepared
	case txFinished:
		return ErrTxFinished
	}

	if err := tx.writeCommands(); err != nil {
		return err
	}
	if err := tx.m.log.Prepare(tx.id); err != nil {
		return err
	}
	tx.state = txPrepared

	return nil
}

func (tx *Tx) CommitPrepared(ctx context.Context) error {
	switch tx.state {
	case txActive:
		return ErrTxNotPrepared
	case txFinished:
		return ErrTxFinished
	}

	return tx.apply(ctx)
}

// apply runs the commands and records DONE. A failed apply leaves the
// transaction open in the log so recovery sees it again.
func (tx *Tx) apply(ctx context.Context) error {
	tx.state = txFinished
	defer tx.m.forget(tx)

	bindings := tx.m.log.Bindings()
	bindings.Register(tx.key, tx.id)
	defer bindings.Unregister(tx.key)

	err := tx.m.applier.Apply(recovery.WithBindingKey(ctx, tx.key), tx.xid, tx.commands)
	if err != nil {
		return errors.Wrapf(err, "apply %s", tx.xid)
	}

	return tx.m.log.Done(tx.id)
}

// Rollback discards the commands and records DONE.
func (tx *Tx) Rollback(_ context.Context) error {
	if tx.state == txFinished {
		return ErrTxFinished
	}
	tx.state = txFinished
	defer tx.m.forget(tx)

	return tx.m.log.Done(tx.id)
}
