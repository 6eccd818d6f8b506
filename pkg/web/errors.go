package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
	"github.com/prismpsa/prism-workflow/pkg/persistence"
	"github.com/prismpsa/prism-workflow/pkg/services"
	"github.com/prismpsa/prism-workflow/pkg/workflow"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func problem(c fiber.Ctx, status int, kind, detail string) error {
	p := problems.NewStatusProblem(status).
		WithInstance(c.Path()).
		WithType(kind).
		WithDetail(detail)

	return c.Status(status).JSON(p)
}

// handleServiceError maps engine, service and persistence errors onto problem responses.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, workflow.ErrTemplateInvalid):
		return problem(c, fiber.StatusUnprocessableEntity, "template_invalid", err.Error())

	case services.IsValidationError(err), errors.Is(err, workflow.ErrDecisionRequired):
		return badRequest(c, err.Error())

	case errors.Is(err, workflow.ErrNoMatchingRoute), errors.Is(err, workflow.ErrCycleDetected):
		return problem(c, fiber.StatusUnprocessableEntity, "routing_error", err.Error())

	case errors.Is(err, workflow.ErrTemplateNotFound), persistence.IsTemplateNotFound(err):
		return problem(c, fiber.StatusNotFound, "template_not_found", "template not found")

	case errors.Is(err, workflow.ErrInstanceNotFound), persistence.IsInstanceNotFound(err):
		return problem(c, fiber.StatusNotFound, "workflow_not_found", "workflow not found")

	case errors.Is(err, workflow.ErrStepNotFound):
		return problem(c, fiber.StatusConflict, "step_not_found", err.Error())

	case errors.Is(err, workflow.ErrInstanceNotActive),
		errors.Is(err, workflow.ErrInstanceNotCompleted),
		persistence.IsConcurrentUpdate(err),
		services.IsConflictError(err):
		return problem(c, fiber.StatusConflict, "conflict", err.Error())

	default:
		p := problems.NewStatusProblem(500).
			WithInstance(c.Path()).
			WithType("internal_error").
			WithError(err)

		return c.Status(fiber.StatusInternalServerError).JSON(p)
	}
}
