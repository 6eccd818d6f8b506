package persistence

import (
	"errors"
	"fmt"

	"github.com/prismpsa/prism-workflow/pkg/models"
)

// ErrHistoryRewritten is returned when an update drops or alters recorded history or assignments.
var ErrHistoryRewritten = errors.New("history and assignments are append-only")

// CheckAppendOnly verifies that after keeps every history entry and assignment of before, in order.
func CheckAppendOnly(before, after *models.InstanceState) error {
	if len(after.History) < len(before.History) {
		return fmt.Errorf("%w: %d history entries dropped", ErrHistoryRewritten, len(before.History)-len(after.History))
	}

	for i, entry := range before.History {
		if after.History[i].ID != entry.ID || after.History[i].Sequence != entry.Sequence {
			return fmt.Errorf("%w: history entry %s changed", ErrHistoryRewritten, entry.ID)
		}
	}

	if len(after.Assignments) < len(before.Assignments) {
		return fmt.Errorf("%w: assignments dropped", ErrHistoryRewritten)
	}

	for i, assignment := range before.Assignments {
		if after.Assignments[i].ID != assignment.ID {
			return fmt.Errorf("%w: assignment %s changed", ErrHistoryRewritten, assignment.ID)
		}
	}

	return nil
}

// Matches applies the step-level criteria of the filter. ProjectID is checked by the caller.
func (f StepFilter) Matches(step *models.ActiveStep) bool {
	if f.UserID != "" && (step.AssignedUserID == nil || *step.AssignedUserID != f.UserID) {
		return false
	}

	if f.Unassigned && (step.IsAssigned() || step.Status != models.StepStatusActive) {
		return false
	}

	if f.CreatedBefore != nil && !step.CreatedAt.Before(*f.CreatedBefore) {
		return false
	}

	return true
}

// NewStepView enriches an open step with its project and node details.
func NewStepView(instance *models.WorkflowInstance, step *models.ActiveStep) *models.StepView {
	view := &models.StepView{
		ActiveStep: *step.Clone(),
		ProjectID:  instance.ProjectID,
	}

	if instance.StartedSnapshot != nil {
		if node, ok := instance.StartedSnapshot.NodeByID(step.NodeID); ok {
			view.NodeLabel = node.Label
			view.NodeType = node.Type
		}
	}

	return view
}
