package mocks

import (
	"context"
	"encoding/json"
	"io"

	"github.com/stretchr/testify/mock"

	"planstore/internal/model"
)

type MockPlannerService struct {
	mock.Mock
}

func (m *MockPlannerService) GetStorage(ctx context.Context) (json.RawMessage, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(json.RawMessage), args.Error(1)
}

func (m *MockPlannerService) PutStorage(ctx context.Context, doc json.RawMessage) error {
	args := m.Called(ctx, doc)
	return args.Error(0)
}

func (m *MockPlannerService) GetRegistry(ctx context.Context, name string) ([]json.RawMessage, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]json.RawMessage), args.Error(1)
}

func (m *MockPlannerService) UploadDeviceFile(ctx context.Context, deviceID, displayName, mimeType string, r io.Reader, size int64) (*model.FileReference, error) {
	args := m.Called(ctx, deviceID, displayName, mimeType, r, size)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.FileReference), args.Error(1)
}

func (m *MockPlannerService) ReadDeviceFile(ctx context.Context, rel string, download bool) (*model.FileContent, error) {
	args := m.Called(ctx, rel, download)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.FileContent), args.Error(1)
}

func (m *MockPlannerService) RenameDeviceFile(ctx context.Context, rel, name string) (*model.FileReference, error) {
	args := m.Called(ctx, rel, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.FileReference), args.Error(1)
}

func (m *MockPlannerService) DeleteDeviceFile(ctx context.Context, rel string) error {
	args := m.Called(ctx, rel)
	return args.Error(0)
}

func (m *MockPlannerService) ExportArchive(ctx context.Context) (*model.ExportedArchive, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ExportedArchive), args.Error(1)
}

func (m *MockPlannerService) ImportArchive(ctx context.Context, r io.Reader, size int64) (*model.ImportResult, error) {
	args := m.Called(ctx, r, size)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ImportResult), args.Error(1)
}

func (m *MockPlannerService) BackupArchive(ctx context.Context) (*model.BackupResult, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.BackupResult), args.Error(1)
}

func (m *MockPlannerService) UpdateDeviceName(ctx context.Context, id, name string) (json.RawMessage, error) {
	args := m.Called(ctx, id, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(json.RawMessage), args.Error(1)
}

func (m *MockPlannerService) UpdateDeviceArea(ctx context.Context, id, areaID string) (json.RawMessage, error) {
	args := m.Called(ctx, id, areaID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(json.RawMessage), args.Error(1)
}

func (m *MockPlannerService) ListDataFiles(ctx context.Context) ([]model.DataFileInfo, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.DataFileInfo), args.Error(1)
}

func (m *MockPlannerService) PreviewDataFile(ctx context.Context, name string) (*model.DataFilePreview, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DataFilePreview), args.Error(1)
}

func (m *MockPlannerService) Runtime(ctx context.Context) model.RuntimeInfo {
	args := m.Called(ctx)
	return args.Get(0).(model.RuntimeInfo)
}
