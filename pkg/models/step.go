package models

import "time"

// StepStatus is the state of an active step.
type StepStatus string

const (
	StepStatusActive    StepStatus = "active"
	StepStatusWaiting   StepStatus = "waiting" // Blocked on sibling branches at a join
	StepStatusCompleted StepStatus = "completed"
)

// IsOpen reports whether the step is part of the current frontier.
func (s StepStatus) IsOpen() bool {
	return s == StepStatusActive || s == StepStatusWaiting
}

// ActiveStep is one position of the execution frontier.
type ActiveStep struct {
	ID                 string     `json:"id"`
	WorkflowInstanceID string     `json:"workflow_instance_id"`
	NodeID             string     `json:"node_id"`
	BranchID           string     `json:"branch_id"`
	Status             StepStatus `json:"status"`
	AssignedUserID     *string    `json:"assigned_user_id"`
	RouteLabel         string     `json:"route_label,omitempty"` // Label of the route that reached the node
	CreatedAt          time.Time  `json:"created_at"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
}

// IsAssigned reports whether the step has a resolved assignee.
func (s *ActiveStep) IsAssigned() bool {
	return s.AssignedUserID != nil && *s.AssignedUserID != ""
}

// Clone returns a deep copy of the step.
func (s *ActiveStep) Clone() *ActiveStep {
	clone := *s
	clone.AssignedUserID = cloneString(s.AssignedUserID)
	clone.CompletedAt = cloneTime(s.CompletedAt)

	return &clone
}

// StepView is an open step enriched for listing across instances.
type StepView struct {
	ActiveStep

	ProjectID string   `json:"project_id"`
	NodeLabel string   `json:"node_label"`
	NodeType  NodeType `json:"node_type"`
}

// NodeAssignment records that a user was assigned to a node of an instance.
type NodeAssignment struct {
	ID                 string    `json:"id"`
	WorkflowInstanceID string    `json:"workflow_instance_id"`
	NodeID             string    `json:"node_id"`
	UserID             string    `json:"user_id"`
	AssignedAt         time.Time `json:"assigned_at"`
}
