package mocks

import (
	"context"
	"encoding/json"

	"github.com/stretchr/testify/mock"
)

type MockUpdater struct {
	mock.Mock
}

func (m *MockUpdater) UpdateName(ctx context.Context, id, name string) (json.RawMessage, error) {
	args := m.Called(ctx, id, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(json.RawMessage), args.Error(1)
}

func (m *MockUpdater) UpdateArea(ctx context.Context, id, areaID string) (json.RawMessage, error) {
	args := m.Called(ctx, id, areaID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(json.RawMessage), args.Error(1)
}
