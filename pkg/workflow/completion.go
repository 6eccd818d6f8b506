package workflow

import (
	"context"
	"time"

	"github.com/prismpsa/prism-workflow/pkg/models"
)

// completedSnapshot freezes the started snapshot together with the final assignee of every node.
// The assignee of a node is the user on its latest step, else its latest recorded assignment.
func (r *Resolver) completedSnapshot(ctx context.Context, state *models.InstanceState, takenAt time.Time) (*models.CompletedSnapshot, error) {
	snapshot := &models.CompletedSnapshot{
		Snapshot:        *state.Instance.StartedSnapshot.Clone(),
		NodeAssignments: make(map[string]models.NodeAssignee),
	}
	snapshot.TakenAt = takenAt

	assignees := make(map[string]string)

	for _, assignment := range state.Assignments {
		assignees[assignment.NodeID] = assignment.UserID
	}

	for _, step := range state.Steps {
		if step.IsAssigned() {
			assignees[step.NodeID] = *step.AssignedUserID
		}
	}

	names := make(map[string]string)

	for nodeID, userID := range assignees {
		name, cached := names[userID]
		if !cached {
			var err error

			name, err = r.userName(ctx, userID)
			if err != nil {
				return nil, err
			}

			names[userID] = name
		}

		snapshot.NodeAssignments[nodeID] = models.NodeAssignee{UserID: userID, UserName: name}
	}

	return snapshot, nil
}

// completeInstance writes the completed snapshot of a completed instance once.
func (r *Resolver) completeInstance(ctx context.Context, state *models.InstanceState, now time.Time) error {
	instance := state.Instance
	if instance.Status != models.InstanceStatusCompleted {
		return ErrInstanceNotCompleted
	}

	if instance.CompletedSnapshot != nil {
		return nil
	}

	snapshot, err := r.completedSnapshot(ctx, state, now)
	if err != nil {
		return err
	}

	instance.CompletedSnapshot = snapshot

	return nil
}
