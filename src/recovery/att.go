package recovery

import (
	"slices"

	"github.com/Blackdeer1524/xalog/src/pkg/common"
)

type startEntry struct {
	xid      common.Xid
	position int64
}

// ActiveTransactionsTable maps the identifiers of transactions that started
// but aren't done to their xid and START position.
type ActiveTransactionsTable struct {
	table map[Identifier]startEntry
}

func NewATT() ActiveTransactionsTable {
	return ActiveTransactionsTable{
		table: map[Identifier]startEntry{},
	}
}

func (att *ActiveTransactionsTable) Insert(id Identifier, xid common.Xid, position int64) {
	att.table[id] = startEntry{xid: xid, position: position}
}

func (att *ActiveTransactionsTable) Get(id Identifier) (startEntry, bool) {
	e, ok := att.table[id]
	return e, ok
}

func (att *ActiveTransactionsTable) Contains(id Identifier) bool {
	_, ok := att.table[id]
	return ok
}

// Remove reports whether id was present.
func (att *ActiveTransactionsTable) Remove(id Identifier) bool {
	_, ok := att.table[id]
	delete(att.table, id)
	return ok
}

func (att *ActiveTransactionsTable) Len() int {
	return len(att.table)
}

// Identifiers returns the active identifiers in ascending order.
func (att *ActiveTransactionsTable) Identifiers() []Identifier {
	ids := make([]Identifier, 0, len(att.table))
	for id := range att.table {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	return ids
}
