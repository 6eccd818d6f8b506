// Package web provides HTTP request and response types for the workflow API.
package web

import (
	"github.com/prismpsa/prism-workflow/pkg/models"
	"github.com/prismpsa/prism-workflow/pkg/workflow"
)

// TemplateRequest represents the request body for creating or replacing a template.
type TemplateRequest struct {
	Name        string                       `json:"name"        validate:"required,min=3"`
	Description string                       `json:"description"`
	Active      *bool                        `json:"active,omitempty"`
	Nodes       []*models.WorkflowNode       `json:"nodes"       validate:"required,min=1,dive"`
	Connections []*models.WorkflowConnection `json:"connections" validate:"dive"`
	CreatedBy   string                       `json:"created_by,omitempty"`
}

// Template converts the request into a template. Templates are active unless stated otherwise.
func (r TemplateRequest) Template() *models.WorkflowTemplate {
	active := true
	if r.Active != nil {
		active = *r.Active
	}

	return &models.WorkflowTemplate{
		Name:        r.Name,
		Description: r.Description,
		Active:      active,
		Nodes:       r.Nodes,
		Connections: r.Connections,
		CreatedBy:   r.CreatedBy,
	}
}

// StartWorkflowRequest represents the request body for starting a workflow on a project.
type StartWorkflowRequest struct {
	TemplateID string `json:"template_id" validate:"required"`
}

// AdvanceStepRequest represents the request body for completing a step.
type AdvanceStepRequest struct {
	Decision string `json:"decision,omitempty" validate:"omitempty,max=200"`
}

// AssigneeRequest represents the request body for reassigning a step.
type AssigneeRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

// AdvanceResponse is the outcome of completing a step.
type AdvanceResponse struct {
	Instance  *models.WorkflowInstance `json:"instance"`
	NewSteps  []*models.ActiveStep     `json:"new_steps"`
	Waiting   []*models.ActiveStep     `json:"waiting"`
	Closed    []*models.ActiveStep     `json:"closed"`
	History   []*models.HistoryEntry   `json:"history"`
	Completed bool                     `json:"completed"`
}

// TransformAdvanceResult maps an engine result onto its response, never returning null lists.
func TransformAdvanceResult(result *workflow.AdvanceResult) AdvanceResponse {
	return AdvanceResponse{
		Instance:  result.Instance,
		NewSteps:  orEmpty(result.NewSteps),
		Waiting:   orEmpty(result.Waiting),
		Closed:    orEmpty(result.Closed),
		History:   orEmpty(result.History),
		Completed: result.Completed,
	}
}

// ValidationResponse reports the outcome of a dry-run template validation.
type ValidationResponse struct {
	Valid    bool     `json:"valid"`
	Problems []string `json:"problems"`
}

func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}

	return items
}
