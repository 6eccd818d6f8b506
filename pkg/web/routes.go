package web

import "github.com/gofiber/fiber/v3"

// Routes mounts every workflow endpoint on router.
func (h *APIHandlers) Routes(router fiber.Router) {
	t := router.Group("/templates")
	t.Get("/", h.GetTemplates)
	t.Post("/", h.CreateTemplate)
	t.Post("/validate", h.ValidateTemplate)
	t.Get("/:id", h.GetTemplate)
	t.Put("/:id", h.UpdateTemplate)
	t.Delete("/:id", h.DeleteTemplate)

	p := router.Group("/projects/:projectId")
	p.Post("/workflows", h.StartWorkflow)
	p.Get("/workflows", h.GetProjectWorkflows)
	p.Get("/participants", h.GetProjectParticipants)

	w := router.Group("/workflows")
	w.Get("/:id", h.GetWorkflow)
	w.Post("/:id/cancel", h.CancelWorkflow)
	w.Post("/:id/complete", h.CompleteWorkflow)
	w.Post("/:id/steps/:stepId/advance", h.AdvanceStep)
	w.Put("/:id/steps/:stepId/assignee", h.ReassignStep)

	router.Get("/steps", h.GetSteps)
	router.Get("/health", h.HealthCheck)
}
