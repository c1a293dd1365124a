package app

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"path/filepath"

	"github.com/go-faster/errors"
	"github.com/spf13/afero"

	"github.com/Blackdeer1524/xalog/src/pkg/common"
	"github.com/Blackdeer1524/xalog/src/recovery"
	"github.com/Blackdeer1524/xalog/src/transactions"
)

type Decision string

const (
	DecisionList     Decision = "list"
	DecisionCommit   Decision = "commit"
	DecisionRollback Decision = "rollback"
)

// RecoverEntrypoint runs recovery over a logical log and applies one decision
// to every prepared transaction left pending.
type RecoverEntrypoint struct {
	base

	LogPath  string
	Decision Decision
	Out      io.Writer
	Fs       afero.Fs

	m *transactions.Manager
}

type printingApplier struct {
	out io.Writer
}

func (a printingApplier) Apply(_ context.Context, xid common.Xid, cmds []recovery.Command) error {
	if _, err := fmt.Fprintf(a.out, "apply %s: %d commands\n", xid, len(cmds)); err != nil {
		return err
	}

	for _, cmd := range cmds {
		bc, ok := cmd.(*recovery.BytesCommand)
		if !ok {
			return errors.Errorf("unexpected command %T", cmd)
		}
		if _, err := fmt.Fprintf(a.out, "  %s\n", hex.EncodeToString(bc.Payload)); err != nil {
			return err
		}
	}

	return nil
}

func (e *RecoverEntrypoint) Init(ctx context.Context) error {
	switch e.Decision {
	case "":
		e.Decision = DecisionList
	case DecisionList, DecisionCommit, DecisionRollback:
	default:
		return errors.Errorf("unknown decision %q", e.Decision)
	}

	if err := e.init(); err != nil {
		return err
	}

	if e.Fs == nil {
		e.Fs = afero.NewOsFs()
	}
	if e.LogPath == "" {
		e.LogPath = e.cfg.LogPath()
	}
	if err := e.Fs.MkdirAll(filepath.Dir(e.LogPath), 0o755); err != nil {
		return err
	}

	m, err := transactions.NewManager(
		e.Fs,
		e.LogPath,
		printingApplier{out: e.Out},
		recovery.BytesCodec{},
		e.log,
	)
	if err != nil {
		return err
	}
	if err := m.Open(ctx); err != nil {
		return err
	}
	e.m = m

	return nil
}

func (e *RecoverEntrypoint) Run(ctx context.Context) error {
	pending := e.m.Pending()
	if _, err := fmt.Fprintf(e.Out, "%d prepared transactions pending\n", len(pending)); err != nil {
		return err
	}

	for _, xid := range pending {
		if _, err := fmt.Fprintf(e.Out, "pending %s\n", xid); err != nil {
			return err
		}

		switch e.Decision {
		case DecisionCommit:
			if err := e.m.CommitRecovered(ctx, xid); err != nil {
				return err
			}
		case DecisionRollback:
			if err := e.m.RollbackRecovered(ctx, xid); err != nil {
				return err
			}
		}
	}

	return nil
}

func (e *RecoverEntrypoint) Close() error {
	var err error
	if e.m != nil {
		err = e.m.Close()
		e.m = nil
	}

	return e.syncLog(err)
}
