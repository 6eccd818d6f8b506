package models

import (
	"slices"
	"time"
)

// InstanceStatus is the lifecycle state of a workflow instance.
type InstanceStatus string

const (
	InstanceStatusActive    InstanceStatus = "active"
	InstanceStatusCompleted InstanceStatus = "completed" // Terminal
	InstanceStatusCancelled InstanceStatus = "cancelled" // Terminal
)

// IsTerminal reports whether no further transitions are allowed.
func (s InstanceStatus) IsTerminal() bool {
	return s == InstanceStatusCompleted || s == InstanceStatusCancelled
}

// Snapshot is a deep copy of a template graph taken at a given instant.
type Snapshot struct {
	TemplateID   string                `json:"template_id"`
	TemplateName string                `json:"template_name"`
	Nodes        []*WorkflowNode       `json:"nodes"`
	Connections  []*WorkflowConnection `json:"connections"`
	TakenAt      time.Time             `json:"taken_at"`
}

// NodeByID finds a node of the snapshot.
func (s *Snapshot) NodeByID(id string) (*WorkflowNode, bool) {
	for _, node := range s.Nodes {
		if node.ID == id {
			return node, true
		}
	}

	return nil, false
}

// StartNodes returns every node typed as start.
func (s *Snapshot) StartNodes() []*WorkflowNode {
	return startNodes(s.Nodes)
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}

	clone := *s
	clone.Nodes = cloneNodes(s.Nodes)
	clone.Connections = cloneConnections(s.Connections)

	return &clone
}

// NodeAssignee is the frozen assignee of a node in a completed snapshot.
type NodeAssignee struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
}

// CompletedSnapshot freezes the graph together with who handled each node.
type CompletedSnapshot struct {
	Snapshot

	NodeAssignments map[string]NodeAssignee `json:"node_assignments"`
}

// Clone returns a deep copy of the completed snapshot.
func (s *CompletedSnapshot) Clone() *CompletedSnapshot {
	if s == nil {
		return nil
	}

	clone := &CompletedSnapshot{
		Snapshot:        *s.Snapshot.Clone(),
		NodeAssignments: make(map[string]NodeAssignee, len(s.NodeAssignments)),
	}

	for nodeID, assignee := range s.NodeAssignments {
		clone.NodeAssignments[nodeID] = assignee
	}

	return clone
}

// WorkflowInstance is one execution of a template against a project.
type WorkflowInstance struct {
	ID                 string             `json:"id"`
	ProjectID          string             `json:"project_id"            validate:"required"`
	WorkflowTemplateID string             `json:"workflow_template_id"  validate:"required"`
	Status             InstanceStatus     `json:"status"                validate:"required"`
	CurrentNodeID      string             `json:"current_node_id"`
	HasParallelPaths   bool               `json:"has_parallel_paths"`
	StartedSnapshot    *Snapshot          `json:"started_snapshot"`
	CompletedSnapshot  *CompletedSnapshot `json:"completed_snapshot,omitempty"`
	StartedAt          time.Time          `json:"started_at"`
	CompletedAt        *time.Time         `json:"completed_at,omitempty"`
	CancelledAt        *time.Time         `json:"cancelled_at,omitempty"`
	Version            int64              `json:"version"` // Bumped on every committed mutation
}

// InstanceState is the aggregate of an instance and every record it owns.
type InstanceState struct {
	Instance    *WorkflowInstance `json:"instance"`
	Steps       []*ActiveStep     `json:"steps"`
	Assignments []*NodeAssignment `json:"assignments"`
	History     []*HistoryEntry   `json:"history"`
}

// StepByID finds a step of the instance.
func (s *InstanceState) StepByID(id string) (*ActiveStep, bool) {
	for _, step := range s.Steps {
		if step.ID == id {
			return step, true
		}
	}

	return nil, false
}

// OpenSteps returns the steps that are active or waiting.
func (s *InstanceState) OpenSteps() []*ActiveStep {
	open := make([]*ActiveStep, 0, len(s.Steps))

	for _, step := range s.Steps {
		if step.Status.IsOpen() {
			open = append(open, step)
		}
	}

	return open
}

// OpenStepAt returns the open step positioned on the node, if any.
func (s *InstanceState) OpenStepAt(nodeID string) (*ActiveStep, bool) {
	for _, step := range s.Steps {
		if step.NodeID == nodeID && step.Status.IsOpen() {
			return step, true
		}
	}

	return nil, false
}

// HasAssignment reports whether the user was already assigned to the node.
func (s *InstanceState) HasAssignment(nodeID, userID string) bool {
	return slices.ContainsFunc(s.Assignments, func(a *NodeAssignment) bool {
		return a.NodeID == nodeID && a.UserID == userID
	})
}

// NextSequence returns the ordinal the next history entry receives.
func (s *InstanceState) NextSequence() int {
	if len(s.History) == 0 {
		return 1
	}

	return s.History[len(s.History)-1].Sequence + 1
}

// Participants returns the distinct users assigned anywhere in the instance.
func (s *InstanceState) Participants() []string {
	users := make([]string, 0, len(s.Assignments))

	for _, assignment := range s.Assignments {
		if !slices.Contains(users, assignment.UserID) {
			users = append(users, assignment.UserID)
		}
	}

	for _, step := range s.Steps {
		if step.AssignedUserID != nil && !slices.Contains(users, *step.AssignedUserID) {
			users = append(users, *step.AssignedUserID)
		}
	}

	slices.Sort(users)

	return users
}

// Clone returns a deep copy of the aggregate.
func (s *InstanceState) Clone() *InstanceState {
	if s == nil {
		return nil
	}

	instance := *s.Instance
	instance.StartedSnapshot = s.Instance.StartedSnapshot.Clone()
	instance.CompletedSnapshot = s.Instance.CompletedSnapshot.Clone()
	instance.CompletedAt = cloneTime(s.Instance.CompletedAt)
	instance.CancelledAt = cloneTime(s.Instance.CancelledAt)

	clone := &InstanceState{
		Instance:    &instance,
		Steps:       make([]*ActiveStep, 0, len(s.Steps)),
		Assignments: make([]*NodeAssignment, 0, len(s.Assignments)),
		History:     make([]*HistoryEntry, 0, len(s.History)),
	}

	for _, step := range s.Steps {
		clone.Steps = append(clone.Steps, step.Clone())
	}

	for _, assignment := range s.Assignments {
		a := *assignment
		clone.Assignments = append(clone.Assignments, &a)
	}

	for _, entry := range s.History {
		clone.History = append(clone.History, entry.Clone())
	}

	return clone
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}

	clone := *t

	return &clone
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}

	clone := *s

	return &clone
}
