package persistence

import (
	"testing"
	"time"

	"github.com/prismpsa/prism-workflow/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestCheckAppendOnly(t *testing.T) {
	base := &models.InstanceState{
		Instance: &models.WorkflowInstance{ID: "i"},
		History: []*models.HistoryEntry{
			{ID: "h1", Sequence: 1},
			{ID: "h2", Sequence: 2},
		},
		Assignments: []*models.NodeAssignment{{ID: "a1"}},
	}

	appended := base.Clone()
	appended.History = append(appended.History, &models.HistoryEntry{ID: "h3", Sequence: 3})
	appended.Assignments = append(appended.Assignments, &models.NodeAssignment{ID: "a2"})

	dropped := base.Clone()
	dropped.History = dropped.History[:1]

	altered := base.Clone()
	altered.History[1].Sequence = 7

	reassigned := base.Clone()
	reassigned.Assignments = nil

	tests := []struct {
		name    string
		after   *models.InstanceState
		wantErr bool
	}{
		{"unchanged", base.Clone(), false},
		{"appended", appended, false},
		{"dropped history", dropped, true},
		{"altered history", altered, true},
		{"dropped assignment", reassigned, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckAppendOnly(base, tt.after)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrHistoryRewritten)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStepFilter_Matches(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	user := "u-1"
	earlier := now.Add(-time.Hour)

	assigned := &models.ActiveStep{ID: "s1", Status: models.StepStatusActive, AssignedUserID: &user, CreatedAt: now}
	unassigned := &models.ActiveStep{ID: "s2", Status: models.StepStatusActive, CreatedAt: earlier}
	waiting := &models.ActiveStep{ID: "s3", Status: models.StepStatusWaiting, CreatedAt: earlier}

	tests := []struct {
		name   string
		filter StepFilter
		step   *models.ActiveStep
		want   bool
	}{
		{"empty filter", StepFilter{}, assigned, true},
		{"user matches", StepFilter{UserID: "u-1"}, assigned, true},
		{"user differs", StepFilter{UserID: "u-2"}, assigned, false},
		{"user on unassigned", StepFilter{UserID: "u-1"}, unassigned, false},
		{"unassigned active", StepFilter{Unassigned: true}, unassigned, true},
		{"unassigned skips assigned", StepFilter{Unassigned: true}, assigned, false},
		{"unassigned skips waiting", StepFilter{Unassigned: true}, waiting, false},
		{"created before", StepFilter{CreatedBefore: &now}, unassigned, true},
		{"created at bound", StepFilter{CreatedBefore: &now}, assigned, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(tt.step))
		})
	}
}

func TestNewStepView(t *testing.T) {
	instance := &models.WorkflowInstance{
		ID:        "i",
		ProjectID: "p",
		StartedSnapshot: &models.Snapshot{
			Nodes: []*models.WorkflowNode{{ID: "review", Label: "Review", Type: models.NodeTypeApproval}},
		},
	}

	view := NewStepView(instance, &models.ActiveStep{ID: "s", NodeID: "review"})

	assert.Equal(t, "p", view.ProjectID)
	assert.Equal(t, "Review", view.NodeLabel)
	assert.Equal(t, models.NodeTypeApproval, view.NodeType)
	assert.Equal(t, "s", view.ID)
}
