package disk

import (
	"io"
	"path/filepath"
	"sync"

	"github.com/go-faster/errors"
	"github.com/spf13/afero"

	"github.com/Blackdeer1524/xalog/src/pkg/common"
	"github.com/Blackdeer1524/xalog/src/storage/page"
)

var ErrUnknownFile = errors.New("file id is not registered")

// Manager loads whole pages of files on an afero.Fs into cache frames.
type Manager struct {
	fs       afero.Fs
	pageSize int

	mu           sync.RWMutex
	fileIDToPath map[common.FileID]string
}

func New(fs afero.Fs, pageSize int) *Manager {
	return &Manager{
		fs:           fs,
		pageSize:     pageSize,
		fileIDToPath: make(map[common.FileID]string),
	}
}

func (m *Manager) PageSize() int {
	return m.pageSize
}

func (m *Manager) Register(fileID common.FileID, path string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.fileIDToPath[fileID] = filepath.Clean(path)
}

func (m *Manager) Unregister(fileID common.FileID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.fileIDToPath, fileID)
}

func (m *Manager) path(fileID common.FileID) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	path, ok := m.fileIDToPath[fileID]
	if !ok {
		return "", errors.Wrapf(ErrUnknownFile, "fileID %d", fileID)
	}

	return path, nil
}

// ReadPageAssumeLocked loads the page identified by pageIdent into pg.
// Bytes past the end of the file read as zeroes.
func (m *Manager) ReadPageAssumeLocked(
	pg *page.Page,
	pageIdent common.PageIdentity,
) error {
	path, err := m.path(pageIdent.FileID)
	if err != nil {
		return err
	}

	file, err := m.fs.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer file.Close()

	//nolint:gosec
	offset := int64(pageIdent.PageID) * int64(m.pageSize)
	data := make([]byte, m.pageSize)

	// afero's in-memory files report a read starting past the end as
	// ErrUnexpectedEOF, os files as EOF
	n, err := file.ReadAt(data, offset)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return errors.Wrapf(err, "read page %v of %s", pageIdent, path)
	}

	pg.SetData(data[:n])

	return nil
}

func (m *Manager) FileSize(fileID common.FileID) (int64, error) {
	path, err := m.path(fileID)
	if err != nil {
		return 0, err
	}

	info, err := m.fs.Stat(path)
	if err != nil {
		return 0, errors.Wrapf(err, "stat %s", path)
	}

	return info.Size(), nil
}
