package mocks

import (
	"context"

	"github.com/prismpsa/prism-workflow/pkg/models"
	"github.com/prismpsa/prism-workflow/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockStepLister is a mock implementation of sweeper.StepLister.
type MockStepLister struct {
	mock.Mock
}

func (m *MockStepLister) OpenSteps(ctx context.Context, filter persistence.StepFilter) ([]*models.StepView, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.StepView), args.Error(1)
}
