// Package web provides HTTP handlers and REST API endpoints for templates and workflow instances.
package web

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/prismpsa/prism-workflow/pkg/persistence"
	"github.com/prismpsa/prism-workflow/pkg/registry"
	"github.com/prismpsa/prism-workflow/pkg/services"
	"github.com/prismpsa/prism-workflow/pkg/workflow"
)

type APIHandlers struct {
	templateService *services.Template
	manager         *workflow.Manager
	validator       *validator.Validate
	registry        *registry.Registry
}

func NewAPIHandlers(
	templateService *services.Template,
	manager *workflow.Manager,
	validator *validator.Validate,
	registry *registry.Registry,
) *APIHandlers {
	return &APIHandlers{
		templateService: templateService,
		manager:         manager,
		validator:       validator,
		registry:        registry,
	}
}

// Templates

func (h *APIHandlers) GetTemplates(c fiber.Ctx) error {
	req := services.ListTemplatesRequest{}

	if activeStr := c.Query("active"); activeStr != "" {
		active, err := strconv.ParseBool(activeStr)
		if err != nil {
			return badRequest(c, "Invalid query parameters: "+err.Error())
		}

		req.ActiveOnly = active
	}

	templates, err := h.templateService.List(c.Context(), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(templates)
}

func (h *APIHandlers) GetTemplate(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Template ID is required")
	}

	template, err := h.templateService.FetchByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(template)
}

func (h *APIHandlers) CreateTemplate(c fiber.Ctx) error {
	var req TemplateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.templateService.Create(c.Context(), req.Template())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateTemplate(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Template ID is required")
	}

	var req TemplateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.templateService.Update(c.Context(), id, req.Template())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteTemplate(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Template ID is required")
	}

	if err := h.templateService.Delete(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// ValidateTemplate checks a template graph without storing it.
func (h *APIHandlers) ValidateTemplate(c fiber.Ctx) error {
	var req TemplateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	err := h.templateService.Validate(req.Template())
	if err == nil {
		return c.JSON(ValidationResponse{Valid: true, Problems: []string{}})
	}

	var validationErr *workflow.ValidationError
	if errors.As(err, &validationErr) {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(ValidationResponse{Problems: validationErr.Problems})
	}

	if services.IsValidationError(err) {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(ValidationResponse{Problems: []string{err.Error()}})
	}

	return handleServiceError(c, err)
}

// Projects

func (h *APIHandlers) StartWorkflow(c fiber.Ctx) error {
	projectID := c.Params("projectId")
	if projectID == "" {
		return badRequest(c, "Project ID is required")
	}

	var req StartWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	state, err := h.manager.Start(c.Context(), projectID, req.TemplateID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(state)
}

func (h *APIHandlers) GetProjectWorkflows(c fiber.Ctx) error {
	projectID := c.Params("projectId")
	if projectID == "" {
		return badRequest(c, "Project ID is required")
	}

	instances, err := h.manager.ProjectInstances(c.Context(), projectID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(orEmpty(instances))
}

func (h *APIHandlers) GetProjectParticipants(c fiber.Ctx) error {
	projectID := c.Params("projectId")
	if projectID == "" {
		return badRequest(c, "Project ID is required")
	}

	participants, err := h.manager.ProjectParticipants(c.Context(), projectID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"project_id":   projectID,
		"participants": participants,
	})
}

// Workflow instances

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	state, err := h.manager.State(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(state)
}

func (h *APIHandlers) AdvanceStep(c fiber.Ctx) error {
	var req AdvanceStepRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.manager.Advance(c.Context(), workflow.AdvanceRequest{
		InstanceID: c.Params("id"),
		StepID:     c.Params("stepId"),
		Decision:   req.Decision,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(TransformAdvanceResult(result))
}

func (h *APIHandlers) ReassignStep(c fiber.Ctx) error {
	var req AssigneeRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	step, err := h.manager.Reassign(c.Context(), workflow.ReassignRequest{
		InstanceID: c.Params("id"),
		StepID:     c.Params("stepId"),
		UserID:     req.UserID,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(step)
}

func (h *APIHandlers) CancelWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	instance, err := h.manager.Cancel(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(instance)
}

// CompleteWorkflow rebuilds the completed snapshot of a finished instance when it is missing.
func (h *APIHandlers) CompleteWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	snapshot, err := h.manager.Complete(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(snapshot)
}

// Steps

func (h *APIHandlers) GetSteps(c fiber.Ctx) error {
	filter, err := parseStepFilter(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	steps, err := h.manager.OpenSteps(c.Context(), *filter)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(orEmpty(steps))
}

// parseStepFilter reads user_id, project_id, unassigned and older_than (a Go duration).
func parseStepFilter(c fiber.Ctx) (*persistence.StepFilter, error) {
	filter := &persistence.StepFilter{
		UserID:    c.Query("user_id"),
		ProjectID: c.Query("project_id"),
	}

	if unassignedStr := c.Query("unassigned"); unassignedStr != "" {
		unassigned, err := strconv.ParseBool(unassignedStr)
		if err != nil {
			return nil, err
		}

		filter.Unassigned = unassigned
	}

	if olderThanStr := c.Query("older_than"); olderThanStr != "" {
		olderThan, err := time.ParseDuration(olderThanStr)
		if err != nil {
			return nil, err
		}

		cutoff := time.Now().UTC().Add(-olderThan)
		filter.CreatedBefore = &cutoff
	}

	return filter, nil
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	registryCheck, regOk := h.registry.HealthCheck()
	repositoryCheck, repOk := h.templateService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "PRISM workflow API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if regOk && repOk {
		status = "healthy"
		message = "PRISM workflow API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"registry":   registryCheck,
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}
