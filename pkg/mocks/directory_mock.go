package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockDirectory is a mock implementation of workflow.Directory interface.
type MockDirectory struct {
	mock.Mock
}

func (m *MockDirectory) RoleMembers(ctx context.Context, roleID string) ([]string, error) {
	args := m.Called(ctx, roleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]string), args.Error(1)
}

func (m *MockDirectory) DepartmentOwners(ctx context.Context, departmentID string) ([]string, error) {
	args := m.Called(ctx, departmentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]string), args.Error(1)
}

func (m *MockDirectory) UserName(ctx context.Context, userID string) (string, error) {
	args := m.Called(ctx, userID)

	return args.String(0), args.Error(1)
}
