package recovery

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"
	"github.com/spf13/afero"
	"go.uber.org/multierr"

	"github.com/Blackdeer1524/xalog/src"
	"github.com/Blackdeer1524/xalog/src/pkg/assert"
	"github.com/Blackdeer1524/xalog/src/pkg/common"
)

// LogicalLog is an append-only record of transaction boundaries and
// commands. Every mutating call is serialized by the log mutex.
type LogicalLog struct {
	fs       afero.Fs
	path     string
	rm       ResourceManager
	codec    CommandCodec
	log      src.Logger
	metrics  *logMetrics
	bindings *Bindings

	mu        sync.Mutex
	file      afero.File
	buf       *logBuffer
	encoded   bytes.Buffer
	scratch   []byte
	createdAt time.Time
	nextIdent Identifier
	active    ActiveTransactionsTable
	recovered map[Identifier]*RecoveredTransaction
	closed    bool

	scanComplete atomic.Bool
}

func New(
	fs afero.Fs,
	path string,
	rm ResourceManager,
	codec CommandCodec,
	log src.Logger,
) (*LogicalLog, error) {
	metrics, err := newLogMetrics()
	if err != nil {
		return nil, errors.Wrap(err, "init log metrics")
	}

	return &LogicalLog{
		fs:        fs,
		path:      path,
		rm:        rm,
		codec:     codec,
		log:       log,
		metrics:   metrics,
		bindings:  NewBindings(),
		scratch:   make([]byte, 256),
		nextIdent: 1,
		active:    NewATT(),
		recovered: make(map[Identifier]*RecoveredTransaction),
	}, nil
}

func (l *LogicalLog) Path() string {
	return l.path
}

func (l *LogicalLog) Bindings() *Bindings {
	return l.bindings
}

// ScanIsComplete reports whether recovery has finished. New transactions
// must not start before it has.
func (l *LogicalLog) ScanIsComplete() bool {
	return l.scanComplete.Load()
}

// Open creates the log, or runs recovery over an existing non-empty one.
func (l *LogicalLog) Open(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return opError("open", NoIdentifier, ErrLogClosed)
	}
	if l.file != nil {
		return opError("open", NoIdentifier, errors.New("already open"))
	}

	f, err := l.fs.OpenFile(l.path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return opError("open", NoIdentifier, err)
	}

	info, err := f.Stat()
	if err != nil {
		return opError("open", NoIdentifier, multierr.Append(err, f.Close()))
	}

	if info.Size() == 0 {
		return opError("open", NoIdentifier, l.initFreshAssumeLocked(f))
	}
	return opError("open", NoIdentifier, l.recoverAssumeLocked(ctx, f))
}

func (l *LogicalLog) initFreshAssumeLocked(f afero.File) error {
	l.createdAt = time.UnixMilli(time.Now().UnixMilli())

	var header [HeaderSize]byte
	binary.BigEndian.PutUint64(header[:], uint64(l.createdAt.UnixMilli())) //nolint:gosec

	buf := newLogBuffer(f, 0)
	if _, err := buf.Write(header[:]); err != nil {
		return multierr.Append(err, f.Close())
	}
	if err := buf.Force(); err != nil {
		return multierr.Append(err, f.Close())
	}

	l.file = f
	l.buf = buf
	l.scanComplete.Store(true)

	return nil
}

func (l *LogicalLog) recoverAssumeLocked(ctx context.Context, f afero.File) error {
	l.log.Infow("non clean shutdown detected, recovery started", "path", l.path)

	ctx, span := l.metrics.startScan(ctx, l.path)
	entries := 0
	fail := func(err error) error {
		endScan(span, entries, 0, err)
		l.file = nil
		l.buf = nil
		l.nextIdent = 1
		l.active = NewATT()
		clear(l.recovered)
		return multierr.Append(err, f.Close())
	}

	var header [HeaderSize]byte
	if _, err := io.ReadFull(f, header[:]); err != nil {
		if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			return fail(err)
		}
		endScan(span, 0, 0, nil)
		return l.quarantineAssumeLocked(f)
	}
	l.createdAt = time.UnixMilli(int64(binary.BigEndian.Uint64(header[:]))) //nolint:gosec

	it := NewEntryIter(f, HeaderSize, l.codec)
	for it.Next() {
		if err := l.replayAssumeLocked(it.Entry()); err != nil {
			return fail(err)
		}
		entries++
	}
	if err := it.Err(); err != nil {
		return fail(err)
	}

	end := it.End()
	if it.Truncated {
		l.log.Warnw("log ends inside an entry, dropping the tail", "path", l.path, "position", end)
	}
	if err := f.Truncate(end); err != nil {
		return fail(errors.Wrap(err, "truncate tail"))
	}
	if _, err := f.Seek(end, io.SeekStart); err != nil {
		return fail(err)
	}
	l.file = f
	l.buf = newLogBuffer(f, end)

	pending := make([]*RecoveredTransaction, 0, l.active.Len())
	for _, id := range l.active.Identifiers() {
		tx, ok := l.recovered[id]
		assert.Assert(ok, "active identifier %d has no recovered transaction", id)
		pending = append(pending, tx)
	}
	l.metrics.recovered.Add(ctx, int64(len(pending)))

	if err := l.rm.Reconcile(pending, l.doneInternalAssumeLocked); err != nil {
		return fail(errors.Wrap(err, "reconcile"))
	}
	if err := l.buf.Flush(); err != nil {
		return fail(err)
	}
	clear(l.recovered)

	l.scanComplete.Store(true)
	endScan(span, entries, l.active.Len(), nil)

	l.log.Infow(
		"recovery completed",
		"path", l.path,
		"entries", entries,
		"pending", l.active.Len(),
	)
	for _, id := range l.active.Identifiers() {
		e, _ := l.active.Get(id)
		l.log.Infow("transaction awaits a decision", "path", l.path, "id", id, "xid", e.xid.String())
	}

	return nil
}

// quarantineAssumeLocked moves a log whose header is unreadable aside and
// starts a fresh one in its place.
func (l *LogicalLog) quarantineAssumeLocked(f afero.File) error {
	if err := f.Close(); err != nil {
		return err
	}

	target := fmt.Sprintf("%s_unknown_timestamp_%d.log", l.path, time.Now().UnixMilli())
	l.log.Warnw("unable to read log header, moving the log aside", "path", l.path, "target", target)

	if err := l.fs.Rename(l.path, target); err != nil {
		return errors.Wrapf(err, "move %s aside", l.path)
	}

	nf, err := l.fs.OpenFile(l.path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}

	return l.initFreshAssumeLocked(nf)
}

func (l *LogicalLog) recoveredTxAssumeLocked(e Entry) (*RecoveredTransaction, error) {
	tx, ok := l.recovered[e.Identifier]
	if !ok {
		return nil, errors.Wrapf(
			ErrCorruptLog,
			"%s entry at position %d for unknown identifier %d",
			e.Tag,
			e.Position,
			e.Identifier,
		)
	}
	return tx, nil
}

func (l *LogicalLog) replayAssumeLocked(e Entry) error {
	switch e.Tag {
	case TagStart:
		if l.active.Contains(e.Identifier) {
			return errors.Wrapf(
				ErrCorruptLog,
				"second START for identifier %d at position %d",
				e.Identifier,
				e.Position,
			)
		}
		if e.Identifier > l.nextIdent {
			l.nextIdent = e.Identifier
		}

		tx := &RecoveredTransaction{
			Identifier:    e.Identifier,
			Xid:           e.Xid,
			StartPosition: e.Position,
		}
		l.active.Insert(e.Identifier, e.Xid, e.Position)
		l.recovered[e.Identifier] = tx

		return l.rm.InjectStart(tx)
	case TagPrepare:
		tx, err := l.recoveredTxAssumeLocked(e)
		if err != nil {
			return err
		}
		tx.Prepared = true

		readOnly, err := l.rm.InjectPrepare(tx)
		if err != nil {
			return err
		}
		if readOnly {
			l.active.Remove(e.Identifier)
			delete(l.recovered, e.Identifier)
		}

		return nil
	case TagOnePhaseCommit:
		tx, err := l.recoveredTxAssumeLocked(e)
		if err != nil {
			return err
		}
		tx.OnePhaseCommitted = true

		return l.rm.InjectOnePhaseCommit(tx)
	case TagCommand:
		tx, err := l.recoveredTxAssumeLocked(e)
		if err != nil {
			return err
		}
		tx.addCommand(e.Command)

		return l.rm.InjectCommand(tx, e.Command)
	case TagDone:
		start, ok := l.active.Get(e.Identifier)
		if !ok {
			// read-only transactions are forgotten at PREPARE
			l.log.Debugw("skipping DONE for unknown identifier", "id", e.Identifier, "position", e.Position)
			return nil
		}
		if err := l.rm.PruneXid(start.xid); err != nil {
			return err
		}
		l.active.Remove(e.Identifier)
		delete(l.recovered, e.Identifier)

		return nil
	default:
		return errors.Wrapf(ErrCorruptLog, "unexpected tag %s", e.Tag)
	}
}

func (l *LogicalLog) nextIdentifierAssumeLocked() Identifier {
	for {
		l.nextIdent++
		if l.nextIdent <= 0 {
			l.nextIdent = 1
		}
		if !l.active.Contains(l.nextIdent) {
			return l.nextIdent
		}
	}
}

func (l *LogicalLog) checkOpenAssumeLocked() error {
	if l.closed {
		return ErrLogClosed
	}
	if l.buf == nil {
		return errors.Wrap(ErrLogClosed, "log is not open")
	}
	return nil
}

func (l *LogicalLog) checkActiveAssumeLocked(id Identifier) error {
	if err := l.checkOpenAssumeLocked(); err != nil {
		return err
	}
	if !l.active.Contains(id) {
		return ErrUnknownIdentifier
	}
	return nil
}

func (l *LogicalLog) appendAssumeLocked(e *Entry) error {
	l.encoded.Reset()
	if err := e.marshal(&l.encoded, l.codec, l.scratch); err != nil {
		return err
	}
	if _, err := l.buf.Write(l.encoded.Bytes()); err != nil {
		return err
	}
	l.metrics.entryAppended(e.Tag)

	return nil
}

func (l *LogicalLog) forceAssumeLocked() error {
	if err := l.buf.Force(); err != nil {
		return err
	}
	l.metrics.forced()

	return nil
}

// Start records the beginning of a transaction and returns its identifier.
func (l *LogicalLog) Start(xid common.Xid) (Identifier, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkOpenAssumeLocked(); err != nil {
		return NoIdentifier, opError("start", NoIdentifier, err)
	}

	id := l.nextIdentifierAssumeLocked()
	e := Entry{
		Tag:        TagStart,
		Identifier: id,
		Xid:        xid,
		Position:   l.buf.Position(),
	}
	if err := l.appendAssumeLocked(&e); err != nil {
		return NoIdentifier, opError("start", id, err)
	}
	l.active.Insert(id, xid, e.Position)

	return id, nil
}

// Prepare records that the transaction is prepared and forces the log.
func (l *LogicalLog) Prepare(id Identifier) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkActiveAssumeLocked(id); err != nil {
		return opError("prepare", id, err)
	}

	e := Entry{Tag: TagPrepare, Identifier: id}
	if err := l.appendAssumeLocked(&e); err != nil {
		return opError("prepare", id, err)
	}

	return opError("prepare", id, l.forceAssumeLocked())
}

// CommitOnePhase records a one-phase commit and forces the log.
func (l *LogicalLog) CommitOnePhase(id Identifier) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkActiveAssumeLocked(id); err != nil {
		return opError("commit one phase", id, err)
	}

	e := Entry{Tag: TagOnePhaseCommit, Identifier: id}
	if err := l.appendAssumeLocked(&e); err != nil {
		return opError("commit one phase", id, err)
	}

	return opError("commit one phase", id, l.forceAssumeLocked())
}

func (l *LogicalLog) WriteCommand(cmd Command, id Identifier) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkActiveAssumeLocked(id); err != nil {
		return opError("write command", id, err)
	}

	e := Entry{Tag: TagCommand, Identifier: id, Command: cmd}

	return opError("write command", id, l.appendAssumeLocked(&e))
}

// Done records that the transaction is finished and forgets its identifier.
// DONE is not forced: losing it only makes recovery hand the transaction to
// the resource manager again.
func (l *LogicalLog) Done(id Identifier) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkActiveAssumeLocked(id); err != nil {
		return opError("done", id, err)
	}

	e := Entry{Tag: TagDone, Identifier: id}
	if err := l.appendAssumeLocked(&e); err != nil {
		return opError("done", id, err)
	}
	l.active.Remove(id)

	return nil
}

// doneInternalAssumeLocked is Done for reconciliation: no validation, and
// the recovered transaction is dropped too.
func (l *LogicalLog) doneInternalAssumeLocked(id Identifier) error {
	e := Entry{Tag: TagDone, Identifier: id}
	if err := l.appendAssumeLocked(&e); err != nil {
		return opError("done", id, err)
	}
	l.active.Remove(id)
	delete(l.recovered, id)

	return nil
}

// CurrentTxIdentifier returns the identifier bound to the binding key
// carried by ctx, or NoIdentifier.
func (l *LogicalLog) CurrentTxIdentifier(ctx context.Context) Identifier {
	key, ok := BindingKeyFrom(ctx)
	if !ok {
		return NoIdentifier
	}
	return l.bindings.CurrentTxIdentifier(key)
}

func (l *LogicalLog) Xid(id Identifier) (common.Xid, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.active.Get(id)
	return e.xid, ok
}

// PendingIdentifiers lists the transactions that started and aren't done.
func (l *LogicalLog) PendingIdentifiers() []Identifier {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.active.Identifiers()
}

// Position is the file offset the next entry will be written at.
func (l *LogicalLog) Position() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.buf == nil {
		return 0
	}
	return l.buf.Position()
}

func (l *LogicalLog) CreatedAt() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.createdAt
}

// Close forces the log. With transactions still open the file is kept for
// recovery on the next Open; otherwise it is deleted.
func (l *LogicalLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed || l.file == nil {
		l.log.Infow("logical log already closed", "path", l.path)
		return nil
	}
	l.closed = true

	f, buf := l.file, l.buf
	l.file, l.buf = nil, nil

	if n := l.active.Len(); n > 0 {
		l.log.Infow("close invoked with running transactions", "path", l.path, "count", n)

		err := buf.Force()
		err = multierr.Append(err, f.Close())
		l.log.Warnw("dirty log closed, recovery will run on next open", "path", l.path)

		return opError("close", NoIdentifier, err)
	}

	err := buf.Force()
	err = multierr.Append(err, f.Close())
	if err != nil {
		return opError("close", NoIdentifier, err)
	}

	if _, err := l.fs.Stat(l.path); err != nil {
		return opError("close", NoIdentifier, errors.Wrapf(err, "log file %s is gone", l.path))
	}
	if err := l.fs.Remove(l.path); err != nil {
		return opError("close", NoIdentifier, errors.Wrapf(err, "delete %s", l.path))
	}

	return nil
}
