package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/prismpsa/prism-workflow/pkg/metrics"
	"github.com/prismpsa/prism-workflow/pkg/models"
	"github.com/prismpsa/prism-workflow/pkg/persistence"
	"github.com/prismpsa/prism-workflow/pkg/persistence/file"
	"github.com/prismpsa/prism-workflow/pkg/registry"
	"github.com/prismpsa/prism-workflow/pkg/testutil"
	"github.com/prismpsa/prism-workflow/pkg/workflow"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestApp(t *testing.T) (*fiber.App, persistence.Persistence) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := file.NewPersistence(t.TempDir())

	registryInstance := registry.NewRegistry(logger)
	registryInstance.RegisterDefaultNodes()

	reg := prometheus.NewRegistry()
	manager := workflow.NewManager(logger, store, registryInstance, nil, workflow.WithMetrics(metrics.New(reg)))

	return NewAPI(logger, store, registryInstance, manager, reg).App(), store
}

func get(t *testing.T, app *fiber.App, path string) (int, string) {
	t.Helper()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
	require.NoError(t, err)

	defer func() {
		if err := resp.Body.Close(); err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, string(body)
}

func TestAPI_RootEndpoint(t *testing.T) {
	app, _ := setupTestApp(t)

	status, body := get(t, app, "/")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "PRISM Workflow API", body)
}

func TestAPI_HealthChecks(t *testing.T) {
	app, _ := setupTestApp(t)

	for _, path := range []string{"/livez", "/readyz", "/health"} {
		t.Run(path, func(t *testing.T) {
			status, _ := get(t, app, path)
			assert.Equal(t, http.StatusOK, status)
		})
	}
}

func TestAPI_MetricsAfterStart(t *testing.T) {
	app, store := setupTestApp(t)

	template := testutil.LinearTemplate("tpl-1", "intake")
	require.NoError(t, store.TemplateRepository().Save(context.Background(), template))

	req := httptest.NewRequest(http.MethodPost, "/projects/p-1/workflows",
		bytes.NewBufferString(`{"template_id":"tpl-1"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	status, body := get(t, app, "/metrics")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "prism_workflow_instances_started_total 1")
}

func TestValidateTemplates(t *testing.T) {
	ctx := context.Background()
	store := file.NewPersistence(t.TempDir())

	require.NoError(t, store.TemplateRepository().Save(ctx, testutil.LinearTemplate("tpl-ok", "intake")))

	var out bytes.Buffer

	require.NoError(t, validateTemplates(ctx, &out, store, false))
	assert.Contains(t, out.String(), "OK      tpl-ok")

	broken := testutil.CreateTestTemplate("tpl-broken", []*models.WorkflowNode{
		testutil.Node("start", models.NodeTypeStart),
		testutil.Node("review", models.NodeTypeForm),
	}, testutil.Connect("start", "review"))
	require.NoError(t, store.TemplateRepository().Save(ctx, broken))

	out.Reset()

	err := validateTemplates(ctx, &out, store, false)
	require.ErrorIs(t, err, ErrInvalidTemplates)
	assert.Contains(t, err.Error(), "1 of 2")

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, out.String(), "INVALID tpl-broken")
}
