package recovery

import (
	"fmt"

	"github.com/Blackdeer1524/xalog/src/pkg/common"
)

// Identifier names an open transaction inside one log session.
type Identifier int32

const NoIdentifier Identifier = -1

type EntryTag byte

// A zero byte is a zero-filled tail, not an entry.
const (
	TagEmpty EntryTag = iota
	TagStart
	TagPrepare
	TagCommand
	TagDone
	TagOnePhaseCommit
)

func (t EntryTag) String() string {
	switch t {
	case TagEmpty:
		return "EMPTY"
	case TagStart:
		return "START"
	case TagPrepare:
		return "PREPARE"
	case TagCommand:
		return "COMMAND"
	case TagDone:
		return "DONE"
	case TagOnePhaseCommit:
		return "ONE_PHASE_COMMIT"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", byte(t))
	}
}

// HeaderSize is the size of the creation timestamp every log starts with.
const HeaderSize = 8

// Entry is one decoded log entry. Xid is set for START only, Command for
// COMMAND only.
type Entry struct {
	Tag        EntryTag
	Identifier Identifier
	Xid        common.Xid
	Command    Command

	// Position is the file offset of the entry's tag byte.
	Position int64
}

func (e Entry) String() string {
	switch e.Tag {
	case TagStart:
		return fmt.Sprintf("%d %s id=%d xid=%s", e.Position, e.Tag, e.Identifier, e.Xid)
	case TagCommand:
		return fmt.Sprintf("%d %s id=%d %v", e.Position, e.Tag, e.Identifier, e.Command)
	default:
		return fmt.Sprintf("%d %s id=%d", e.Position, e.Tag, e.Identifier)
	}
}

// RecoveredTransaction accumulates what the scan found for one identifier.
// It is handed to the ResourceManager at each step and, if the transaction
// is still open at the end of the scan, once more for reconciliation.
type RecoveredTransaction struct {
	Identifier    Identifier
	Xid           common.Xid
	StartPosition int64

	Commands          []Command
	Prepared          bool
	OnePhaseCommitted bool
}

func (tx *RecoveredTransaction) addCommand(cmd Command) {
	cmd.MarkRecovered()
	tx.Commands = append(tx.Commands, cmd)
}
