package bufferpool

import (
	"github.com/stretchr/testify/mock"

	"github.com/Blackdeer1524/xalog/src/pkg/common"
	"github.com/Blackdeer1524/xalog/src/storage/page"
)

type MockDiskManager struct {
	mock.Mock
}

func (m *MockDiskManager) PageSize() int {
	args := m.Called()
	return args.Int(0)
}

func (m *MockDiskManager) Register(fileID common.FileID, path string) {
	m.Called(fileID, path)
}

func (m *MockDiskManager) Unregister(fileID common.FileID) {
	m.Called(fileID)
}

func (m *MockDiskManager) ReadPageAssumeLocked(
	pg *page.Page,
	pageIdent common.PageIdentity,
) error {
	args := m.Called(pg, pageIdent)
	return args.Error(0)
}

func (m *MockDiskManager) FileSize(fileID common.FileID) (int64, error) {
	args := m.Called(fileID)
	return args.Get(0).(int64), args.Error(1)
}

type MockReplacer struct {
	mock.Mock
}

func (m *MockReplacer) Pin(frameID uint64) {
	m.Called(frameID)
}

func (m *MockReplacer) Unpin(frameID uint64) {
	m.Called(frameID)
}

func (m *MockReplacer) ChooseVictim() (uint64, error) {
	args := m.Called()
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockReplacer) GetSize() uint64 {
	args := m.Called()
	return args.Get(0).(uint64)
}
