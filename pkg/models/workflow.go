// Package models defines the core domain models for approval-routing workflows
package models

import "time"

// WorkflowTemplate is the editable directed graph that instances are started from.
type WorkflowTemplate struct {
	ID          string                `json:"id"`
	Name        string                `json:"name"                  validate:"required,min=3"`
	Description string                `json:"description"`
	Active      bool                  `json:"active"`
	Nodes       []*WorkflowNode       `json:"nodes"                 validate:"dive"`
	Connections []*WorkflowConnection `json:"connections"           validate:"dive"`
	CreatedBy   string                `json:"created_by,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
	DeletedAt   *time.Time            `json:"deleted_at,omitempty"`
}

// IsDeleted reports whether the template was soft deleted.
func (t *WorkflowTemplate) IsDeleted() bool {
	return t.DeletedAt != nil
}

// StartNodes returns every node typed as start.
func (t *WorkflowTemplate) StartNodes() []*WorkflowNode {
	return startNodes(t.Nodes)
}

// Snapshot deep-copies the graph of the template.
func (t *WorkflowTemplate) Snapshot(takenAt time.Time) *Snapshot {
	return &Snapshot{
		TemplateID:   t.ID,
		TemplateName: t.Name,
		Nodes:        cloneNodes(t.Nodes),
		Connections:  cloneConnections(t.Connections),
		TakenAt:      takenAt,
	}
}

// Clone returns a deep copy of the template.
func (t *WorkflowTemplate) Clone() *WorkflowTemplate {
	if t == nil {
		return nil
	}

	clone := *t
	clone.Nodes = cloneNodes(t.Nodes)
	clone.Connections = cloneConnections(t.Connections)

	if t.DeletedAt != nil {
		deletedAt := *t.DeletedAt
		clone.DeletedAt = &deletedAt
	}

	return &clone
}

func startNodes(nodes []*WorkflowNode) []*WorkflowNode {
	starts := make([]*WorkflowNode, 0, 1)

	for _, node := range nodes {
		if node.Type == NodeTypeStart {
			starts = append(starts, node)
		}
	}

	return starts
}
