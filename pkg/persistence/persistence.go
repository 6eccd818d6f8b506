// Package persistence provides the storage abstraction for templates and workflow instances.
package persistence

import (
	"context"
	"time"

	"github.com/prismpsa/prism-workflow/pkg/models"
)

type Persistence interface {
	TemplateRepository() TemplateRepository
	InstanceRepository() InstanceRepository
	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}

// ListTemplatesOptions filters template listings.
type ListTemplatesOptions struct {
	ActiveOnly     bool
	IncludeDeleted bool
}

// TemplateRepository stores editable workflow templates.
type TemplateRepository interface {
	List(ctx context.Context, opts ListTemplatesOptions) ([]*models.WorkflowTemplate, error)
	// GetByID returns nil without error when the template does not exist.
	GetByID(ctx context.Context, id string) (*models.WorkflowTemplate, error)
	Save(ctx context.Context, template *models.WorkflowTemplate) error
	// Delete soft deletes; instances keep their snapshots.
	Delete(ctx context.Context, id string) error
}

// UpdateFunc mutates an instance aggregate in place. Returning an error discards every change.
type UpdateFunc func(state *models.InstanceState) error

// StepFilter narrows open step listings.
type StepFilter struct {
	UserID        string
	ProjectID     string
	Unassigned    bool
	CreatedBefore *time.Time
}

// InstanceRepository stores workflow instances together with their steps, assignments and history.
type InstanceRepository interface {
	// Create persists a new aggregate atomically.
	Create(ctx context.Context, state *models.InstanceState) error
	// GetByID returns nil without error when the instance does not exist.
	GetByID(ctx context.Context, id string) (*models.InstanceState, error)
	// Update applies fn to the latest aggregate and persists the result atomically.
	// Concurrent updates of the same instance are serialized; history and assignments
	// are only ever appended.
	Update(ctx context.Context, id string, fn UpdateFunc) error
	ListByProject(ctx context.Context, projectID string) ([]*models.WorkflowInstance, error)
	// ListOpenSteps lists active and waiting steps of active instances.
	ListOpenSteps(ctx context.Context, filter StepFilter) ([]*models.StepView, error)
}
