package postgresql_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/prismpsa/prism-workflow/pkg/models"
	"github.com/prismpsa/prism-workflow/pkg/persistence"
	"github.com/prismpsa/prism-workflow/pkg/persistence/postgresql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	// Children first, parents last
	for _, table := range []string{
		"workflow_history",
		"workflow_node_assignments",
		"workflow_active_steps",
		"workflow_instances",
		"workflow_template_connections",
		"workflow_template_nodes",
		"workflow_templates",
		"schema_migrations",
	} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("prism_test"),
			postgres.WithUsername("prism"),
			postgres.WithPassword("prism"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = p.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return p, ctx, databaseURL
}

func ptr(s string) *string {
	return &s
}

func newTemplate(id, name string, active bool) *models.WorkflowTemplate {
	return &models.WorkflowTemplate{
		ID:          id,
		Name:        name,
		Description: "routes " + name,
		Active:      active,
		Nodes: []*models.WorkflowNode{
			{ID: "start", Label: "Start", Type: models.NodeTypeStart},
			{
				ID:        "review",
				Label:     "Review",
				Type:      models.NodeTypeApproval,
				EntityID:  ptr("role-pm"),
				Settings:  map[string]any{models.SettingRequiresDecision: true},
				PositionX: 120,
				PositionY: 40,
			},
			{ID: "end", Label: "End", Type: models.NodeTypeEnd},
		},
		Connections: []*models.WorkflowConnection{
			{ID: "c1", FromNodeID: "start", ToNodeID: "review"},
			{ID: "c2", FromNodeID: "review", ToNodeID: "end", Condition: "If Approved", SourceHandle: "approved"},
		},
	}
}

func newState(id, projectID string, startedAt time.Time) *models.InstanceState {
	return &models.InstanceState{
		Instance: &models.WorkflowInstance{
			ID:                 id,
			ProjectID:          projectID,
			WorkflowTemplateID: "tpl",
			Status:             models.InstanceStatusActive,
			CurrentNodeID:      "review",
			StartedSnapshot:    newTemplate("tpl", "Approval", true).Snapshot(startedAt),
			StartedAt:          startedAt,
			Version:            1,
		},
		Steps: []*models.ActiveStep{
			{
				ID:                 id + "-s1",
				WorkflowInstanceID: id,
				NodeID:             "review",
				BranchID:           "b1",
				Status:             models.StepStatusActive,
				AssignedUserID:     ptr("u-1"),
				RouteLabel:         "Continue",
				CreatedAt:          startedAt,
			},
		},
		Assignments: []*models.NodeAssignment{
			{ID: id + "-a1", WorkflowInstanceID: id, NodeID: "review", UserID: "u-1", AssignedAt: startedAt},
		},
		History: []*models.HistoryEntry{
			{ID: id + "-h1", WorkflowInstanceID: id, Sequence: 1, FromNodeID: "start", ToNodeID: ptr("review"), HandedOffAt: startedAt},
		},
	}
}

func TestNewPersistence_Migrations(t *testing.T) {
	p, ctx, databaseURL := setupTestDB(t)

	require.NoError(t, p.HealthCheck(ctx))

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() { _ = db.Close() }()

	var version int

	err = db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 2, version)
}

func TestTemplateRepository(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.TemplateRepository()

	got, err := repo.GetByID(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, repo.Save(ctx, newTemplate("t-b", "Billing", true)))
	require.NoError(t, repo.Save(ctx, newTemplate("t-a", "Approval", false)))

	got, err = repo.GetByID(ctx, "t-b")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Billing", got.Name)
	require.Len(t, got.Nodes, 3)
	assert.Equal(t, "review", got.Nodes[1].ID)
	assert.Equal(t, "role-pm", got.Nodes[1].Entity())
	assert.Equal(t, true, got.Nodes[1].Settings[models.SettingRequiresDecision])
	assert.Equal(t, 120, got.Nodes[1].PositionX)
	require.Len(t, got.Connections, 2)
	assert.Equal(t, "If Approved", got.Connections[1].Condition)
	assert.Equal(t, "approved", got.Connections[1].SourceHandle)
	assert.Empty(t, got.Connections[0].Condition)

	t.Run("save replaces the graph", func(t *testing.T) {
		updated := got.Clone()
		updated.Name = "Billing v2"
		updated.Nodes = updated.Nodes[:2]
		updated.Connections = updated.Connections[:1]

		require.NoError(t, repo.Save(ctx, updated))

		reloaded, err := repo.GetByID(ctx, "t-b")
		require.NoError(t, err)
		assert.Equal(t, "Billing v2", reloaded.Name)
		assert.Len(t, reloaded.Nodes, 2)
		assert.Len(t, reloaded.Connections, 1)
		assert.True(t, reloaded.CreatedAt.Equal(got.CreatedAt))
	})

	t.Run("list", func(t *testing.T) {
		all, err := repo.List(ctx, persistence.ListTemplatesOptions{})
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "t-a", all[0].ID)

		active, err := repo.List(ctx, persistence.ListTemplatesOptions{ActiveOnly: true})
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, "t-b", active[0].ID)
	})

	t.Run("soft delete", func(t *testing.T) {
		require.NoError(t, repo.Delete(ctx, "t-a"))
		assert.True(t, persistence.IsTemplateNotFound(repo.Delete(ctx, "t-a")))
		assert.True(t, persistence.IsTemplateNotFound(repo.Delete(ctx, "missing")))

		deleted, err := repo.GetByID(ctx, "t-a")
		require.NoError(t, err)
		require.NotNil(t, deleted)
		assert.True(t, deleted.IsDeleted())
		assert.Len(t, deleted.Nodes, 3)

		all, err := repo.List(ctx, persistence.ListTemplatesOptions{})
		require.NoError(t, err)
		assert.Len(t, all, 1)

		all, err = repo.List(ctx, persistence.ListTemplatesOptions{IncludeDeleted: true})
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})
}

func TestInstanceRepository_CreateAndGet(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.InstanceRepository()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Create(ctx, newState("i-1", "p-1", now)))

	err := repo.Create(ctx, newState("i-1", "p-1", now))
	require.ErrorIs(t, err, persistence.ErrInstanceAlreadyExists)

	state, err := repo.GetByID(ctx, "i-1")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, "p-1", state.Instance.ProjectID)
	assert.True(t, state.Instance.StartedAt.Equal(now))
	require.NotNil(t, state.Instance.StartedSnapshot)
	assert.Len(t, state.Instance.StartedSnapshot.Nodes, 3)
	assert.Nil(t, state.Instance.CompletedSnapshot)

	require.Len(t, state.Steps, 1)
	assert.Equal(t, "u-1", *state.Steps[0].AssignedUserID)
	assert.Equal(t, "Continue", state.Steps[0].RouteLabel)
	assert.Nil(t, state.Steps[0].CompletedAt)

	require.Len(t, state.Assignments, 1)
	assert.Equal(t, "u-1", state.Assignments[0].UserID)

	require.Len(t, state.History, 1)
	assert.Equal(t, "review", state.History[0].To())
	assert.Nil(t, state.History[0].ApprovalDecision)

	missing, err := repo.GetByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestInstanceRepository_Update(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.InstanceRepository()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	later := now.Add(time.Hour)

	require.NoError(t, repo.Create(ctx, newState("i-1", "p-1", now)))

	err := repo.Update(ctx, "i-1", func(state *models.InstanceState) error {
		state.Steps[0].Status = models.StepStatusCompleted
		state.Steps[0].CompletedAt = &later
		state.Instance.Status = models.InstanceStatusCompleted
		state.Instance.CurrentNodeID = "end"
		state.Instance.CompletedAt = &later
		state.Instance.CompletedSnapshot = &models.CompletedSnapshot{
			Snapshot:        *state.Instance.StartedSnapshot.Clone(),
			NodeAssignments: map[string]models.NodeAssignee{"review": {UserID: "u-1", UserName: "Ada"}},
		}
		state.History = append(state.History, &models.HistoryEntry{
			ID:               "i-1-h2",
			Sequence:         2,
			FromNodeID:       "review",
			ToNodeID:         ptr("end"),
			ApprovalDecision: &models.Approved,
			HandedOffAt:      later,
		})

		return nil
	})
	require.NoError(t, err)

	state, err := repo.GetByID(ctx, "i-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), state.Instance.Version)
	assert.Equal(t, models.InstanceStatusCompleted, state.Instance.Status)
	assert.Equal(t, "end", state.Instance.CurrentNodeID)
	require.NotNil(t, state.Instance.CompletedAt)
	require.NotNil(t, state.Instance.CompletedSnapshot)
	assert.Equal(t, "Ada", state.Instance.CompletedSnapshot.NodeAssignments["review"].UserName)
	assert.Equal(t, models.StepStatusCompleted, state.Steps[0].Status)
	require.NotNil(t, state.Steps[0].CompletedAt)
	require.Len(t, state.History, 2)
	require.NotNil(t, state.History[1].ApprovalDecision)
	assert.Equal(t, models.DecisionApproved, state.History[1].ApprovalDecision.Kind)

	t.Run("failed update writes nothing", func(t *testing.T) {
		boom := errors.New("boom")

		err := repo.Update(ctx, "i-1", func(state *models.InstanceState) error {
			state.Instance.Status = models.InstanceStatusCancelled

			return boom
		})
		require.ErrorIs(t, err, boom)

		state, err := repo.GetByID(ctx, "i-1")
		require.NoError(t, err)
		assert.Equal(t, models.InstanceStatusCompleted, state.Instance.Status)
		assert.Equal(t, int64(2), state.Instance.Version)
	})

	t.Run("history cannot be rewritten", func(t *testing.T) {
		err := repo.Update(ctx, "i-1", func(state *models.InstanceState) error {
			state.History = state.History[:1]

			return nil
		})
		require.ErrorIs(t, err, persistence.ErrHistoryRewritten)
	})

	t.Run("missing instance", func(t *testing.T) {
		err := repo.Update(ctx, "nope", func(*models.InstanceState) error { return nil })
		assert.True(t, persistence.IsInstanceNotFound(err))
	})
}

func TestInstanceRepository_ConcurrentUpdatesAreSerialized(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.InstanceRepository()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Create(ctx, newState("i-1", "p-1", now)))

	var wg sync.WaitGroup

	for range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			assert.NoError(t, repo.Update(ctx, "i-1", func(state *models.InstanceState) error {
				state.History = append(state.History, &models.HistoryEntry{
					ID:          fmt.Sprintf("h%d", state.NextSequence()),
					Sequence:    state.NextSequence(),
					FromNodeID:  "review",
					HandedOffAt: now,
				})

				return nil
			}))
		}()
	}

	wg.Wait()

	state, err := repo.GetByID(ctx, "i-1")
	require.NoError(t, err)
	assert.Equal(t, int64(9), state.Instance.Version)
	require.Len(t, state.History, 9)

	for i, entry := range state.History {
		assert.Equal(t, i+1, entry.Sequence)
	}
}

func TestInstanceRepository_Listings(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.InstanceRepository()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Create(ctx, newState("i-2", "p-1", base.Add(time.Hour))))
	require.NoError(t, repo.Create(ctx, newState("i-1", "p-1", base)))
	require.NoError(t, repo.Create(ctx, newState("i-3", "p-2", base)))

	unassigned := newState("i-4", "p-2", base.Add(2*time.Hour))
	unassigned.Steps[0].AssignedUserID = nil
	unassigned.Assignments = nil
	require.NoError(t, repo.Create(ctx, unassigned))

	cancelled := newState("i-5", "p-1", base)
	cancelled.Instance.Status = models.InstanceStatusCancelled
	require.NoError(t, repo.Create(ctx, cancelled))

	instances, err := repo.ListByProject(ctx, "p-1")
	require.NoError(t, err)
	require.Len(t, instances, 3)
	assert.Equal(t, "i-2", instances[2].ID)

	steps, err := repo.ListOpenSteps(ctx, persistence.StepFilter{UserID: "u-1"})
	require.NoError(t, err)
	assert.Len(t, steps, 3)

	steps, err = repo.ListOpenSteps(ctx, persistence.StepFilter{ProjectID: "p-2"})
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, "Review", steps[0].NodeLabel)
	assert.Equal(t, models.NodeTypeApproval, steps[0].NodeType)
	assert.Equal(t, "p-2", steps[0].ProjectID)

	steps, err = repo.ListOpenSteps(ctx, persistence.StepFilter{Unassigned: true})
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, "i-4", steps[0].WorkflowInstanceID)

	cutoff := base.Add(30 * time.Minute)
	steps, err = repo.ListOpenSteps(ctx, persistence.StepFilter{CreatedBefore: &cutoff})
	require.NoError(t, err)
	assert.Len(t, steps, 2)
}
