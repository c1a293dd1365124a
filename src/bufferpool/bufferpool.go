package bufferpool

import (
	"sync"

	"github.com/go-faster/errors"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/multierr"

	"github.com/Blackdeer1524/xalog/src/pkg/assert"
	"github.com/Blackdeer1524/xalog/src/pkg/common"
	"github.com/Blackdeer1524/xalog/src/storage/page"
)

var ErrNoFreeFrame = errors.New("every frame of the page cache is pinned")

type Replacer interface {
	Pin(frameID uint64)
	Unpin(frameID uint64)
	ChooseVictim() (uint64, error)
	GetSize() uint64
}

type DiskManager interface {
	PageSize() int
	Register(fileID common.FileID, path string)
	Unregister(fileID common.FileID)
	ReadPageAssumeLocked(pg *page.Page, pageIdent common.PageIdentity) error
	FileSize(fileID common.FileID) (int64, error)
}

type frame struct {
	page      *page.Page
	pinCount  int
	pageIdent common.PageIdentity
	inUse     bool
}

// Manager is a fixed-size read cache shared by every mapped file. Pages are
// never written back: files change through the filesystem and the cached
// pages of a changed file are reloaded with InvalidateFile.
type Manager struct {
	pageSize    int
	poolSize    uint64
	frames      []frame
	pageToFrame map[common.PageIdentity]uint64
	emptyFrames []uint64

	replacer    Replacer
	diskManager DiskManager
	workers     *ants.Pool

	// fastPath guards the frame table. slowPath serializes page loads and
	// evictions so that a page is never read into two frames.
	fastPath sync.Mutex
	slowPath sync.Mutex

	filesMu    sync.Mutex
	nextFileID common.FileID
	files      map[string]*mapping
}

func New(
	poolSize uint64,
	replacer Replacer,
	diskManager DiskManager,
	flushWorkers int,
) (*Manager, error) {
	assert.Assert(poolSize > 0, "pool size must be greater than zero")

	workers, err := ants.NewPool(flushWorkers)
	if err != nil {
		return nil, errors.Wrap(err, "start cache workers")
	}

	pageSize := diskManager.PageSize()
	frames := make([]frame, poolSize)
	emptyFrames := make([]uint64, poolSize)
	for i := range poolSize {
		frames[i].page = page.New(pageSize)
		emptyFrames[i] = i
	}

	return &Manager{
		pageSize:    pageSize,
		poolSize:    poolSize,
		frames:      frames,
		pageToFrame: make(map[common.PageIdentity]uint64),
		emptyFrames: emptyFrames,
		replacer:    replacer,
		diskManager: diskManager,
		workers:     workers,
		nextFileID:  1,
		files:       make(map[string]*mapping),
	}, nil
}

func (m *Manager) PageSize() int {
	return m.pageSize
}

// Close releases the cache workers. Mapped files must be closed first.
func (m *Manager) Close() error {
	m.filesMu.Lock()
	open := len(m.files)
	m.filesMu.Unlock()

	m.workers.Release()
	if open != 0 {
		return errors.Errorf("page cache closed with %d mapped files", open)
	}

	return nil
}

func (m *Manager) unpin(frameID uint64) {
	m.fastPath.Lock()
	defer m.fastPath.Unlock()

	f := &m.frames[frameID]
	assert.Assert(f.pinCount > 0, "invalid pin count for frame %d", frameID)

	f.pinCount--
	if f.pinCount == 0 {
		m.replacer.Unpin(frameID)
	}
}

func (m *Manager) pinAssumeLocked(frameID uint64) {
	m.frames[frameID].pinCount++
	m.replacer.Pin(frameID)
}

// getPage pins the page and returns the frame holding it, loading it from
// disk if it isn't cached yet.
func (m *Manager) getPage(pIdent common.PageIdentity) (uint64, *page.Page, error) {
	m.fastPath.Lock()
	if frameID, ok := m.pageToFrame[pIdent]; ok {
		m.pinAssumeLocked(frameID)
		m.fastPath.Unlock()

		return frameID, m.frames[frameID].page, nil
	}
	m.fastPath.Unlock()

	m.slowPath.Lock()
	defer m.slowPath.Unlock()

	m.fastPath.Lock()
	if frameID, ok := m.pageToFrame[pIdent]; ok {
		m.pinAssumeLocked(frameID)
		m.fastPath.Unlock()

		return frameID, m.frames[frameID].page, nil
	}

	frameID, err := m.reserveFrameAssumeLocked()
	m.fastPath.Unlock()
	if err != nil {
		return 0, nil, err
	}

	f := &m.frames[frameID]
	f.page.Lock()
	err = m.diskManager.ReadPageAssumeLocked(f.page, pIdent)
	f.page.Unlock()

	m.fastPath.Lock()
	defer m.fastPath.Unlock()

	if err != nil {
		f.inUse = false
		f.pinCount = 0
		m.emptyFrames = append(m.emptyFrames, frameID)
		return 0, nil, err
	}

	f.pageIdent = pIdent
	f.inUse = true
	m.pageToFrame[pIdent] = frameID

	return frameID, f.page, nil
}

// reserveFrameAssumeLocked takes a free frame or evicts a victim. The
// returned frame is already pinned and unreachable through pageToFrame.
func (m *Manager) reserveFrameAssumeLocked() (uint64, error) {
	if len(m.emptyFrames) > 0 {
		id := m.emptyFrames[len(m.emptyFrames)-1]
		m.emptyFrames = m.emptyFrames[:len(m.emptyFrames)-1]
		m.frames[id].pinCount = 1
		m.replacer.Pin(id)

		return id, nil
	}

	victimID, err := m.replacer.ChooseVictim()
	if err != nil {
		return 0, errors.Wrapf(ErrNoFreeFrame, "choose victim: %v", err)
	}

	victim := &m.frames[victimID]
	assert.Assert(victim.pinCount == 0, "victim frame %d is pinned", victimID)
	delete(m.pageToFrame, victim.pageIdent)
	victim.pinCount = 1

	return victimID, nil
}

// InvalidateFile reloads every cached page of fileID from disk. Readers
// holding optimistic stamps on those pages observe the change and retry.
func (m *Manager) InvalidateFile(fileID common.FileID) error {
	return m.forEachFrame(
		func(ident common.PageIdentity) bool { return ident.FileID == fileID },
		func(frameID uint64) error {
			f := &m.frames[frameID]
			f.page.Lock()
			defer f.page.Unlock()

			return m.diskManager.ReadPageAssumeLocked(f.page, f.pageIdent)
		},
	)
}

func (m *Manager) dropFile(fileID common.FileID) error {
	m.fastPath.Lock()
	defer m.fastPath.Unlock()

	for ident, frameID := range m.pageToFrame {
		if ident.FileID != fileID {
			continue
		}

		f := &m.frames[frameID]
		if f.pinCount != 0 {
			return errors.Errorf("page %v is still pinned", ident)
		}

		delete(m.pageToFrame, ident)
		m.replacer.Pin(frameID)
		f.inUse = false
		f.page.Lock()
		f.page.Invalidate()
		f.page.Unlock()
		m.emptyFrames = append(m.emptyFrames, frameID)
	}

	return nil
}

// forEachFrame pins the matching frames, runs fn for each on the worker pool
// and unpins them again. Every error is reported.
func (m *Manager) forEachFrame(
	match func(common.PageIdentity) bool,
	fn func(frameID uint64) error,
) error {
	m.fastPath.Lock()
	selected := make([]uint64, 0)
	for ident, frameID := range m.pageToFrame {
		if match(ident) {
			m.pinAssumeLocked(frameID)
			selected = append(selected, frameID)
		}
	}
	m.fastPath.Unlock()

	var (
		wg     sync.WaitGroup
		errMu  sync.Mutex
		result error
	)

	for _, frameID := range selected {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			defer m.unpin(frameID)

			err := func() (err error) {
				defer func() {
					if r := recover(); r != nil {
						err = errors.Errorf("frame %d: %v", frameID, r)
					}
				}()
				return fn(frameID)
			}()
			if err != nil {
				errMu.Lock()
				result = multierr.Append(result, err)
				errMu.Unlock()
			}
		}

		if err := m.workers.Submit(task); err != nil {
			task()
		}
	}
	wg.Wait()

	return result
}
