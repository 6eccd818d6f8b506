package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prismpsa/prism-workflow/pkg/models"
	"github.com/prismpsa/prism-workflow/pkg/persistence"
	"github.com/prismpsa/prism-workflow/pkg/registry"
	"github.com/prismpsa/prism-workflow/pkg/workflow"
)

type Template struct {
	persistence persistence.Persistence
	registry    *registry.Registry
}

// NewTemplate creates a new template service.
func NewTemplate(persistence persistence.Persistence, registry *registry.Registry) *Template {
	return &Template{
		persistence: persistence,
		registry:    registry,
	}
}

// HealthCheck checks the health of the persistence layer.
func (s *Template) HealthCheck(ctx context.Context) (string, bool) {
	if s.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := s.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// ListTemplatesRequest contains options for listing templates.
type ListTemplatesRequest struct {
	ActiveOnly bool
}

// List returns the templates that were not deleted, ordered by name.
func (s *Template) List(ctx context.Context, req ListTemplatesRequest) ([]*models.WorkflowTemplate, error) {
	templates, err := s.persistence.TemplateRepository().List(ctx, persistence.ListTemplatesOptions{
		ActiveOnly: req.ActiveOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}

	return templates, nil
}

// FetchByID retrieves a template by its ID. Deleted templates are reported as not found.
func (s *Template) FetchByID(ctx context.Context, id string) (*models.WorkflowTemplate, error) {
	template, err := s.persistence.TemplateRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if template == nil || template.IsDeleted() {
		return nil, persistence.NewTemplateError("fetch", id, ErrTemplateNotFound)
	}

	return template, nil
}

// Create validates and stores a new template.
func (s *Template) Create(ctx context.Context, template *models.WorkflowTemplate) (*models.WorkflowTemplate, error) {
	if err := s.check("create", template); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	template.ID = uuid.Must(uuid.NewV7()).String()
	template.CreatedAt = now
	template.UpdatedAt = now
	template.DeletedAt = nil

	err := s.persistence.TemplateRepository().Save(ctx, template)
	if err != nil {
		return nil, fmt.Errorf("failed to create template: %w", err)
	}

	return template, nil
}

// Update replaces the definition of an existing template. Running instances keep the snapshot they started from.
func (s *Template) Update(
	ctx context.Context,
	templateID string,
	template *models.WorkflowTemplate,
) (*models.WorkflowTemplate, error) {
	if err := s.check("update", template); err != nil {
		return nil, err
	}

	existing, err := s.persistence.TemplateRepository().GetByID(ctx, templateID)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		return nil, persistence.NewTemplateError("update", templateID, ErrTemplateNotFound)
	}

	if existing.IsDeleted() {
		return nil, persistence.NewTemplateError("update", templateID, ErrTemplateDeleted)
	}

	template.ID = templateID
	template.CreatedAt = existing.CreatedAt
	template.UpdatedAt = time.Now().UTC()
	template.DeletedAt = nil

	if template.CreatedBy == "" {
		template.CreatedBy = existing.CreatedBy
	}

	err = s.persistence.TemplateRepository().Save(ctx, template)
	if err != nil {
		return nil, fmt.Errorf("failed to update template: %w", err)
	}

	return template, nil
}

// Delete soft deletes a template by its ID.
func (s *Template) Delete(ctx context.Context, templateID string) error {
	existing, err := s.persistence.TemplateRepository().GetByID(ctx, templateID)
	if err != nil {
		return err
	}

	if existing == nil || existing.IsDeleted() {
		return persistence.NewTemplateError("delete", templateID, ErrTemplateNotFound)
	}

	err = s.persistence.TemplateRepository().Delete(ctx, templateID)
	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}

	return nil
}

// Validate checks a template without storing it.
func (s *Template) Validate(template *models.WorkflowTemplate) error {
	return s.check("validate", template)
}

func (s *Template) check(op string, template *models.WorkflowTemplate) error {
	if template == nil {
		return ErrTemplateNil
	}

	if strings.TrimSpace(template.Name) == "" {
		return NewValidationError(op, "TEMPLATE_NAME_REQUIRED", "template name is required", ErrTemplateNameRequired)
	}

	if len(template.Nodes) == 0 {
		return NewValidationError(op, "NODES_REQUIRED", "template must have at least one node", ErrNodesRequired)
	}

	if err := workflow.Validate(s.registry, template.Nodes, template.Connections); err != nil {
		return &ServiceError{Op: op, Code: "TEMPLATE_INVALID", Err: err}
	}

	return nil
}
