package mocks

import (
	"context"

	"github.com/prismpsa/prism-workflow/pkg/models"
	"github.com/prismpsa/prism-workflow/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockTemplateRepository is a mock implementation of persistence.TemplateRepository interface.
type MockTemplateRepository struct {
	mock.Mock
}

func (m *MockTemplateRepository) List(ctx context.Context, opts persistence.ListTemplatesOptions) ([]*models.WorkflowTemplate, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.WorkflowTemplate), args.Error(1)
}

func (m *MockTemplateRepository) GetByID(ctx context.Context, id string) (*models.WorkflowTemplate, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowTemplate), args.Error(1)
}

func (m *MockTemplateRepository) Save(ctx context.Context, template *models.WorkflowTemplate) error {
	args := m.Called(ctx, template)

	return args.Error(0)
}

func (m *MockTemplateRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

// MockInstanceRepository is a mock implementation of persistence.InstanceRepository interface.
type MockInstanceRepository struct {
	mock.Mock
}

func (m *MockInstanceRepository) Create(ctx context.Context, state *models.InstanceState) error {
	args := m.Called(ctx, state)

	return args.Error(0)
}

func (m *MockInstanceRepository) GetByID(ctx context.Context, id string) (*models.InstanceState, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.InstanceState), args.Error(1)
}

func (m *MockInstanceRepository) Update(ctx context.Context, id string, fn persistence.UpdateFunc) error {
	args := m.Called(ctx, id, fn)

	return args.Error(0)
}

func (m *MockInstanceRepository) ListByProject(ctx context.Context, projectID string) ([]*models.WorkflowInstance, error) {
	args := m.Called(ctx, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.WorkflowInstance), args.Error(1)
}

func (m *MockInstanceRepository) ListOpenSteps(ctx context.Context, filter persistence.StepFilter) ([]*models.StepView, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.StepView), args.Error(1)
}

// MockPersistence is a mock implementation of persistence.Persistence interface.
type MockPersistence struct {
	mock.Mock

	templateRepo *MockTemplateRepository
	instanceRepo *MockInstanceRepository
}

// NewMockPersistence creates a new MockPersistence with all mock repositories.
func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		templateRepo: &MockTemplateRepository{},
		instanceRepo: &MockInstanceRepository{},
	}
}

// GetMockTemplateRepository returns the underlying mock template repository for setting up expectations.
func (m *MockPersistence) GetMockTemplateRepository() *MockTemplateRepository {
	return m.templateRepo
}

// GetMockInstanceRepository returns the underlying mock instance repository for setting up expectations.
func (m *MockPersistence) GetMockInstanceRepository() *MockInstanceRepository {
	return m.instanceRepo
}

func (m *MockPersistence) TemplateRepository() persistence.TemplateRepository {
	return m.templateRepo
}

func (m *MockPersistence) InstanceRepository() persistence.InstanceRepository {
	return m.instanceRepo
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
