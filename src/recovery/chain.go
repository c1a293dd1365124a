package recovery

import (
	"github.com/go-faster/errors"

	"github.com/Blackdeer1524/xalog/src/pkg/common"
)

// Chain appends a sequence of entries for one transaction at a time. The
// first failure sticks: later calls do nothing and Err reports it.
type Chain struct {
	log *LogicalLog
	id  Identifier

	err error
}

func NewChain(log *LogicalLog) *Chain {
	return &Chain{
		log: log,
		id:  NoIdentifier,
	}
}

// SwitchIdentifier makes the following calls act on id.
func (c *Chain) SwitchIdentifier(id Identifier) *Chain {
	if c.err != nil {
		return c
	}

	c.id = id
	return c
}

func (c *Chain) Start(xid common.Xid) *Chain {
	if c.err != nil {
		return c
	}

	c.id, c.err = c.log.Start(xid)

	return c
}

func (c *Chain) Command(cmd Command) *Chain {
	if c.err != nil {
		return c
	}
	if c.id == NoIdentifier {
		c.err = errors.New("no transaction started in chain")
		return c
	}

	c.err = c.log.WriteCommand(cmd, c.id)

	return c
}

func (c *Chain) Prepare() *Chain {
	if c.err != nil {
		return c
	}
	if c.id == NoIdentifier {
		c.err = errors.New("no transaction started in chain")
		return c
	}

	c.err = c.log.Prepare(c.id)

	return c
}

func (c *Chain) CommitOnePhase() *Chain {
	if c.err != nil {
		return c
	}
	if c.id == NoIdentifier {
		c.err = errors.New("no transaction started in chain")
		return c
	}

	c.err = c.log.CommitOnePhase(c.id)

	return c
}

func (c *Chain) Done() *Chain {
	if c.err != nil {
		return c
	}
	if c.id == NoIdentifier {
		c.err = errors.New("no transaction started in chain")
		return c
	}

	c.err = c.log.Done(c.id)

	return c
}

// Identifier is the transaction the chain currently acts on.
func (c *Chain) Identifier() Identifier {
	return c.id
}

func (c *Chain) Err() error {
	return c.err
}
