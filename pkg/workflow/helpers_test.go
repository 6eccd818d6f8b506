package workflow

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prismpsa/prism-workflow/pkg/models"
	"github.com/prismpsa/prism-workflow/pkg/persistence"
	"github.com/prismpsa/prism-workflow/pkg/persistence/file"
	"github.com/prismpsa/prism-workflow/pkg/registry"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRegistry() *registry.Registry {
	reg := registry.NewRegistry(discardLogger())
	reg.RegisterDefaultNodes()

	return reg
}

func sequentialIDs() func() string {
	var counter atomic.Int64

	return func() string {
		return fmt.Sprintf("id-%d", counter.Add(1))
	}
}

// staticDirectory answers lookups from fixed maps.
type staticDirectory struct {
	roles       map[string][]string
	departments map[string][]string
	names       map[string]string
}

func (d staticDirectory) RoleMembers(_ context.Context, roleID string) ([]string, error) {
	return d.roles[roleID], nil
}

func (d staticDirectory) DepartmentOwners(_ context.Context, departmentID string) ([]string, error) {
	return d.departments[departmentID], nil
}

func (d staticDirectory) UserName(_ context.Context, userID string) (string, error) {
	return d.names[userID], nil
}

type harness struct {
	manager     *Manager
	persistence persistence.Persistence
}

func newHarness(t *testing.T, directory Directory, opts ...Option) *harness {
	t.Helper()

	p := file.NewPersistence(t.TempDir())

	base := []Option{
		WithClock(func() time.Time { return testNow }),
		WithIDGenerator(sequentialIDs()),
	}

	return &harness{
		manager:     NewManager(discardLogger(), p, testRegistry(), directory, append(base, opts...)...),
		persistence: p,
	}
}

func (h *harness) save(t *testing.T, template *models.WorkflowTemplate) {
	t.Helper()

	require.NoError(t, h.persistence.TemplateRepository().Save(context.Background(), template))
}

func (h *harness) start(t *testing.T, templateID string) *models.InstanceState {
	t.Helper()

	state, err := h.manager.Start(context.Background(), "project-1", templateID)
	require.NoError(t, err)

	return state
}

func (h *harness) state(t *testing.T, instanceID string) *models.InstanceState {
	t.Helper()

	state, err := h.manager.State(context.Background(), instanceID)
	require.NoError(t, err)

	return state
}

// advance completes the only open step at nodeID.
func (h *harness) advance(t *testing.T, instanceID, nodeID, decision string) *AdvanceResult {
	t.Helper()

	step := openStepAt(t, h.state(t, instanceID), nodeID)

	result, err := h.manager.Advance(context.Background(), AdvanceRequest{
		InstanceID: instanceID,
		StepID:     step.ID,
		Decision:   decision,
	})
	require.NoError(t, err)

	return result
}

func openStepAt(t *testing.T, state *models.InstanceState, nodeID string) *models.ActiveStep {
	t.Helper()

	step, ok := state.OpenStepAt(nodeID)
	require.True(t, ok, "no open step at %s", nodeID)

	return step
}

func openNodes(state *models.InstanceState) []string {
	var nodes []string
	for _, step := range state.OpenSteps() {
		nodes = append(nodes, step.NodeID)
	}

	return nodes
}

type handoff struct {
	from, to string
}

func handoffs(state *models.InstanceState) []handoff {
	pairs := make([]handoff, 0, len(state.History))
	for _, entry := range state.History {
		pairs = append(pairs, handoff{from: entry.FromNodeID, to: entry.To()})
	}

	return pairs
}

func withHandle(conn *models.WorkflowConnection, handle string) *models.WorkflowConnection {
	conn.SourceHandle = handle

	return conn
}
