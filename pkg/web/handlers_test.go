package web_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/prismpsa/prism-workflow/pkg/directory"
	"github.com/prismpsa/prism-workflow/pkg/models"
	"github.com/prismpsa/prism-workflow/pkg/persistence/file"
	"github.com/prismpsa/prism-workflow/pkg/registry"
	"github.com/prismpsa/prism-workflow/pkg/services"
	"github.com/prismpsa/prism-workflow/pkg/testutil"
	"github.com/prismpsa/prism-workflow/pkg/web"
	"github.com/prismpsa/prism-workflow/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestApp(t *testing.T) *fiber.App {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	persistence := file.NewPersistence(t.TempDir())

	registryInstance := registry.NewRegistry(logger)
	registryInstance.RegisterDefaultNodes()

	dir := directory.NewStatic(directory.Config{
		Users: []directory.User{{ID: "u-1", Name: "Mia Manager"}},
		Roles: map[string][]string{"role-manager": {"u-1"}},
	})

	handlers := web.NewAPIHandlers(
		services.NewTemplate(persistence, registryInstance),
		workflow.NewManager(logger, persistence, registryInstance, dir),
		validator.New(validator.WithRequiredStructEnabled()),
		registryInstance,
	)

	app := fiber.New()
	handlers.Routes(app)

	return app
}

func doRequest(t *testing.T, app *fiber.App, method, path string, payload any) (int, []byte) {
	t.Helper()

	var body io.Reader

	switch p := payload.(type) {
	case nil:
	case string:
		body = bytes.NewBufferString(p)
	default:
		encoded, err := json.Marshal(p)
		require.NoError(t, err)

		body = bytes.NewBuffer(encoded)
	}

	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, raw
}

func decode[T any](t *testing.T, raw []byte) T {
	t.Helper()

	var value T
	require.NoError(t, json.Unmarshal(raw, &value), string(raw))

	return value
}

func templateRequest(template *models.WorkflowTemplate) web.TemplateRequest {
	return web.TemplateRequest{
		Name:        "Onboarding",
		Description: "Client onboarding",
		Nodes:       template.Nodes,
		Connections: template.Connections,
		CreatedBy:   "admin",
	}
}

func createTemplate(t *testing.T, app *fiber.App, template *models.WorkflowTemplate) string {
	t.Helper()

	status, raw := doRequest(t, app, http.MethodPost, "/templates", templateRequest(template))
	require.Equal(t, http.StatusCreated, status, string(raw))

	return decode[models.WorkflowTemplate](t, raw).ID
}

func openStep(t *testing.T, state models.InstanceState, nodeID string) *models.ActiveStep {
	t.Helper()

	step, ok := state.OpenStepAt(nodeID)
	require.True(t, ok, "no open step at %s", nodeID)

	return step
}

func TestAPIHandlers_CreateTemplate(t *testing.T) {
	t.Parallel()

	noEnd := templateRequest(testutil.LinearTemplate("t", "a"))
	noEnd.Nodes = noEnd.Nodes[:2]
	noEnd.Connections = noEnd.Connections[:1]

	tests := []struct {
		name           string
		requestBody    any
		expectedStatus int
		expectedType   string
	}{
		{
			name:           "successful creation",
			requestBody:    templateRequest(testutil.ManagerApprovalTemplate("t", false)),
			expectedStatus: http.StatusCreated,
		},
		{
			name: "validation error - name too short",
			requestBody: web.TemplateRequest{
				Name:  "On",
				Nodes: testutil.LinearTemplate("t", "a").Nodes,
			},
			expectedStatus: http.StatusBadRequest,
			expectedType:   "validation_error",
		},
		{
			name:           "validation error - missing nodes",
			requestBody:    web.TemplateRequest{Name: "Onboarding"},
			expectedStatus: http.StatusBadRequest,
			expectedType:   "validation_error",
		},
		{
			name:           "invalid graph",
			requestBody:    noEnd,
			expectedStatus: http.StatusUnprocessableEntity,
			expectedType:   "template_invalid",
		},
		{
			name:           "invalid JSON",
			requestBody:    "invalid-json",
			expectedStatus: http.StatusBadRequest,
			expectedType:   "validation_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			app := setupTestApp(t)

			status, raw := doRequest(t, app, http.MethodPost, "/templates", tt.requestBody)
			assert.Equal(t, tt.expectedStatus, status, string(raw))

			if tt.expectedStatus == http.StatusCreated {
				created := decode[models.WorkflowTemplate](t, raw)
				assert.NotEmpty(t, created.ID)
				assert.True(t, created.Active)
				assert.Equal(t, "admin", created.CreatedBy)
				assert.Len(t, created.Nodes, 4)

				return
			}

			problem := decode[map[string]any](t, raw)
			assert.Equal(t, tt.expectedType, problem["type"])
		})
	}
}

func TestAPIHandlers_TemplateLifecycle(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)
	id := createTemplate(t, app, testutil.LinearTemplate("t", "intake"))

	status, raw := doRequest(t, app, http.MethodGet, "/templates/"+id, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Onboarding", decode[models.WorkflowTemplate](t, raw).Name)

	update := templateRequest(testutil.LinearTemplate("t", "intake", "review"))
	update.Name = "Onboarding v2"
	active := false
	update.Active = &active

	status, raw = doRequest(t, app, http.MethodPut, "/templates/"+id, update)
	require.Equal(t, http.StatusOK, status, string(raw))

	updated := decode[models.WorkflowTemplate](t, raw)
	assert.Equal(t, "Onboarding v2", updated.Name)
	assert.False(t, updated.Active)

	status, raw = doRequest(t, app, http.MethodGet, "/templates?active=true", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, decode[[]models.WorkflowTemplate](t, raw))

	status, raw = doRequest(t, app, http.MethodGet, "/templates", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]models.WorkflowTemplate](t, raw), 1)

	status, _ = doRequest(t, app, http.MethodGet, "/templates?active=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = doRequest(t, app, http.MethodDelete, "/templates/"+id, nil)
	require.Equal(t, http.StatusNoContent, status)

	status, raw = doRequest(t, app, http.MethodGet, "/templates/"+id, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "template_not_found", decode[map[string]any](t, raw)["type"])

	status, _ = doRequest(t, app, http.MethodPut, "/templates/"+id, update)
	assert.Equal(t, http.StatusConflict, status)

	status, _ = doRequest(t, app, http.MethodDelete, "/templates/"+id, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPIHandlers_ValidateTemplate(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)

	status, raw := doRequest(t, app, http.MethodPost, "/templates/validate",
		templateRequest(testutil.ParallelTemplate("t", true)))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, web.ValidationResponse{Valid: true, Problems: []string{}}, decode[web.ValidationResponse](t, raw))

	invalid := templateRequest(testutil.LinearTemplate("t", "a"))
	invalid.Nodes = append(invalid.Nodes, testutil.Node("b", models.NodeTypeForm))
	invalid.Connections = append(invalid.Connections, testutil.Connect("start", "b"))

	status, raw = doRequest(t, app, http.MethodPost, "/templates/validate", invalid)
	require.Equal(t, http.StatusUnprocessableEntity, status)

	response := decode[web.ValidationResponse](t, raw)
	assert.False(t, response.Valid)
	assert.Contains(t, response.Problems, "node 'b' has no outgoing connection")

	status, raw = doRequest(t, app, http.MethodGet, "/templates", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, decode[[]models.WorkflowTemplate](t, raw))
}

func TestAPIHandlers_WorkflowLifecycle(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)
	templateID := createTemplate(t, app, testutil.ManagerApprovalTemplate("t", false))

	status, raw := doRequest(t, app, http.MethodPost, "/projects/p-1/workflows", web.StartWorkflowRequest{TemplateID: templateID})
	require.Equal(t, http.StatusCreated, status, string(raw))

	state := decode[models.InstanceState](t, raw)
	instanceID := state.Instance.ID
	assert.Equal(t, models.InstanceStatusActive, state.Instance.Status)
	assert.Equal(t, "p-1", state.Instance.ProjectID)

	manager := openStep(t, state, "manager")
	require.NotNil(t, manager.AssignedUserID)
	assert.Equal(t, "u-1", *manager.AssignedUserID)

	status, raw = doRequest(t, app, http.MethodGet, "/steps?user_id=u-1", nil)
	require.Equal(t, http.StatusOK, status)

	steps := decode[[]models.StepView](t, raw)
	require.Len(t, steps, 1)
	assert.Equal(t, "Manager", steps[0].NodeLabel)
	assert.Equal(t, "p-1", steps[0].ProjectID)

	status, raw = doRequest(t, app, http.MethodPost, "/workflows/"+instanceID+"/steps/"+manager.ID+"/advance", nil)
	require.Equal(t, http.StatusOK, status, string(raw))

	advanced := decode[web.AdvanceResponse](t, raw)
	require.Len(t, advanced.NewSteps, 1)
	assert.Equal(t, "approval", advanced.NewSteps[0].NodeID)
	assert.Empty(t, advanced.Waiting)
	assert.False(t, advanced.Completed)

	approvalID := advanced.NewSteps[0].ID
	advancePath := "/workflows/" + instanceID + "/steps/" + approvalID + "/advance"

	status, raw = doRequest(t, app, http.MethodPost, advancePath, web.AdvanceStepRequest{})
	assert.Equal(t, http.StatusBadRequest, status, string(raw))

	status, raw = doRequest(t, app, http.MethodPost, advancePath, web.AdvanceStepRequest{Decision: "approved"})
	require.Equal(t, http.StatusOK, status, string(raw))
	assert.True(t, decode[web.AdvanceResponse](t, raw).Completed)

	status, raw = doRequest(t, app, http.MethodPost, advancePath, web.AdvanceStepRequest{Decision: "approved"})
	assert.Equal(t, http.StatusConflict, status, string(raw))

	status, raw = doRequest(t, app, http.MethodGet, "/workflows/"+instanceID, nil)
	require.Equal(t, http.StatusOK, status)

	final := decode[models.InstanceState](t, raw)
	assert.Equal(t, models.InstanceStatusCompleted, final.Instance.Status)
	require.NotNil(t, final.Instance.CompletedSnapshot)
	assert.Equal(t, "Mia Manager", final.Instance.CompletedSnapshot.NodeAssignments["manager"].UserName)

	status, raw = doRequest(t, app, http.MethodPost, "/workflows/"+instanceID+"/complete", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Mia Manager", decode[models.CompletedSnapshot](t, raw).NodeAssignments["approval"].UserName)

	status, _ = doRequest(t, app, http.MethodPost, "/workflows/"+instanceID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, status)

	status, raw = doRequest(t, app, http.MethodGet, "/projects/p-1/participants", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []any{"u-1"}, decode[map[string]any](t, raw)["participants"])

	status, raw = doRequest(t, app, http.MethodGet, "/projects/p-1/workflows", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]models.WorkflowInstance](t, raw), 1)
}

func TestAPIHandlers_StartWorkflow_Errors(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)

	status, _ := doRequest(t, app, http.MethodPost, "/projects/p-1/workflows", web.StartWorkflowRequest{})
	assert.Equal(t, http.StatusBadRequest, status)

	status, raw := doRequest(t, app, http.MethodPost, "/projects/p-1/workflows", web.StartWorkflowRequest{TemplateID: "missing"})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "template_not_found", decode[map[string]any](t, raw)["type"])

	status, raw = doRequest(t, app, http.MethodGet, "/workflows/missing", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "workflow_not_found", decode[map[string]any](t, raw)["type"])
}

func TestAPIHandlers_ReassignAndCancel(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)
	templateID := createTemplate(t, app, testutil.ParallelTemplate("t", true))

	status, raw := doRequest(t, app, http.MethodPost, "/projects/p-2/workflows", web.StartWorkflowRequest{TemplateID: templateID})
	require.Equal(t, http.StatusCreated, status, string(raw))

	state := decode[models.InstanceState](t, raw)
	instanceID := state.Instance.ID
	fork := openStep(t, state, "fork")

	status, raw = doRequest(t, app, http.MethodGet, "/steps?unassigned=true&project_id=p-2", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]models.StepView](t, raw), 1)

	assigneePath := "/workflows/" + instanceID + "/steps/" + fork.ID + "/assignee"

	status, _ = doRequest(t, app, http.MethodPut, assigneePath, web.AssigneeRequest{})
	assert.Equal(t, http.StatusBadRequest, status)

	status, raw = doRequest(t, app, http.MethodPut, assigneePath, web.AssigneeRequest{UserID: "u-7"})
	require.Equal(t, http.StatusOK, status, string(raw))

	step := decode[models.ActiveStep](t, raw)
	require.NotNil(t, step.AssignedUserID)
	assert.Equal(t, "u-7", *step.AssignedUserID)

	status, raw = doRequest(t, app, http.MethodGet, "/steps?unassigned=true", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, decode[[]models.StepView](t, raw))

	status, raw = doRequest(t, app, http.MethodGet, "/steps?user_id=u-7", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]models.StepView](t, raw), 1)

	status, _ = doRequest(t, app, http.MethodGet, "/steps?older_than=soon", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, raw = doRequest(t, app, http.MethodPut, "/workflows/"+instanceID+"/steps/unknown/assignee", web.AssigneeRequest{UserID: "u-7"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "step_not_found", decode[map[string]any](t, raw)["type"])

	status, raw = doRequest(t, app, http.MethodPost, "/workflows/"+instanceID+"/cancel", nil)
	require.Equal(t, http.StatusOK, status, string(raw))
	assert.Equal(t, models.InstanceStatusCancelled, decode[models.WorkflowInstance](t, raw).Status)

	status, raw = doRequest(t, app, http.MethodGet, "/steps?project_id=p-2", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, decode[[]models.StepView](t, raw))

	status, _ = doRequest(t, app, http.MethodPost, "/workflows/"+instanceID+"/steps/"+fork.ID+"/advance", nil)
	assert.Equal(t, http.StatusConflict, status)
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)

	status, raw := doRequest(t, app, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, status)

	body := decode[map[string]any](t, raw)
	assert.Equal(t, "healthy", body["status"])
	assert.Contains(t, body, "checkers")
}
