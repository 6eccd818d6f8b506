package file

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/prismpsa/prism-workflow/pkg/models"
	"github.com/prismpsa/prism-workflow/pkg/persistence"
)

// TemplateRepository stores one json document per template under <root>/templates.
type TemplateRepository struct {
	root string
	mu   sync.Mutex
}

func NewTemplateRepository(root string) *TemplateRepository {
	return &TemplateRepository{root: filepath.Join(root, "templates")}
}

func (tr *TemplateRepository) path(id string) string {
	return filepath.Join(tr.root, id+".json")
}

// List returns templates sorted by name.
func (tr *TemplateRepository) List(ctx context.Context, opts persistence.ListTemplatesOptions) ([]*models.WorkflowTemplate, error) {
	ids, err := listIDs(tr.root)
	if err != nil {
		return nil, fmt.Errorf("failed to list template files: %w", err)
	}

	templates := make([]*models.WorkflowTemplate, 0, len(ids))

	for _, id := range ids {
		template, err := tr.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if template == nil {
			continue
		}

		if template.IsDeleted() && !opts.IncludeDeleted {
			continue
		}

		if opts.ActiveOnly && !template.Active {
			continue
		}

		templates = append(templates, template)
	}

	sort.Slice(templates, func(i, j int) bool {
		if templates[i].Name == templates[j].Name {
			return templates[i].ID < templates[j].ID
		}

		return templates[i].Name < templates[j].Name
	})

	return templates, nil
}

// GetByID retrieves a template by its ID from the file system.
func (tr *TemplateRepository) GetByID(_ context.Context, id string) (*models.WorkflowTemplate, error) {
	var template models.WorkflowTemplate

	found, err := readJSON(tr.path(id), &template)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch template %s: %w", id, err)
	}

	if !found {
		return nil, nil
	}

	return &template, nil
}

// Save creates or replaces a template, stamping its timestamps.
func (tr *TemplateRepository) Save(_ context.Context, template *models.WorkflowTemplate) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	now := time.Now().UTC()
	if template.CreatedAt.IsZero() {
		template.CreatedAt = now
	}

	template.UpdatedAt = now

	if err := writeJSON(tr.path(template.ID), template); err != nil {
		return fmt.Errorf("failed to save template %s: %w", template.ID, err)
	}

	return nil
}

// Delete marks a template deleted. The document is kept so instances can still name it.
func (tr *TemplateRepository) Delete(ctx context.Context, id string) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	template, err := tr.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if template == nil || template.IsDeleted() {
		return persistence.NewTemplateError("delete", id, persistence.ErrTemplateNotFound)
	}

	now := time.Now().UTC()
	template.DeletedAt = &now
	template.Active = false
	template.UpdatedAt = now

	if err := writeJSON(tr.path(id), template); err != nil {
		return fmt.Errorf("failed to delete template %s: %w", id, err)
	}

	return nil
}
