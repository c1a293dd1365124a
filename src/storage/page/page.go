package page

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/Blackdeer1524/xalog/src/pkg/assert"
)

const DefaultPageSize = 8192

// Page is a fixed-size cache frame.
//
// Content changes are bracketed by BeginWrite/EndWrite while holding the
// latch. Each bracket moves the sequence counter from even to odd and back, so
// a reader can take a stamp with StartOptimisticRead, read without the latch
// and check with Validate that no writer touched the page meanwhile.
type Page struct {
	latch sync.RWMutex
	seq   atomic.Uint64

	data []byte
}

func New(size int) *Page {
	assert.Assert(size > 0 && size%8 == 0, "bad page size %d", size)

	return &Page{
		data: make([]byte, size),
	}
}

func (p *Page) Size() int {
	return len(p.data)
}

func (p *Page) Lock() {
	p.latch.Lock()
}

func (p *Page) Unlock() {
	p.latch.Unlock()
}

func (p *Page) RLock() {
	p.latch.RLock()
}

func (p *Page) RUnlock() {
	p.latch.RUnlock()
}

// SetData replaces the content and zero-fills whatever d doesn't cover.
// Callers hold the write latch.
func (p *Page) SetData(d []byte) {
	p.BeginWrite()
	n := copy(p.data, d)
	clear(p.data[n:])
	p.EndWrite()
}

func (p *Page) BeginWrite() {
	s := p.seq.Add(1)
	assert.Assert(s&1 == 1, "nested page write")
}

func (p *Page) EndWrite() {
	s := p.seq.Add(1)
	assert.Assert(s&1 == 0, "unbalanced page write")
}

// Invalidate makes every outstanding optimistic stamp fail validation.
func (p *Page) Invalidate() {
	p.BeginWrite()
	p.EndWrite()
}

func (p *Page) StartOptimisticRead() uint64 {
	return p.seq.Load()
}

// Validate reports whether a read that started with stamp saw a stable page.
func (p *Page) Validate(stamp uint64) bool {
	return stamp&1 == 0 && p.seq.Load() == stamp
}

func (p *Page) Byte(offset int) byte {
	return p.data[offset]
}

func (p *Page) Uint16(offset int) uint16 {
	return binary.BigEndian.Uint16(p.data[offset:])
}

func (p *Page) Uint32(offset int) uint32 {
	return binary.BigEndian.Uint32(p.data[offset:])
}

func (p *Page) Uint64(offset int) uint64 {
	return binary.BigEndian.Uint64(p.data[offset:])
}

// CopyTo copies page bytes starting at offset into dst and returns the count.
func (p *Page) CopyTo(offset int, dst []byte) int {
	return copy(dst, p.data[offset:])
}
