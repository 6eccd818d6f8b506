// Package models defines core node and connection models for workflow graphs
package models

import (
	"maps"
	"slices"
)

// NodeType is the closed set of node kinds a template may contain.
type NodeType string

const (
	NodeTypeStart       NodeType = "start"
	NodeTypeDepartment  NodeType = "department"
	NodeTypeRole        NodeType = "role"
	NodeTypeApproval    NodeType = "approval"
	NodeTypeForm        NodeType = "form"
	NodeTypeClient      NodeType = "client"
	NodeTypeSync        NodeType = "sync"        // Hidden: joins parallel branches
	NodeTypeConditional NodeType = "conditional" // Hidden: routes by decision label
	NodeTypeEnd         NodeType = "end"
)

// NodeTypes lists every known node type.
func NodeTypes() []NodeType {
	return []NodeType{
		NodeTypeStart,
		NodeTypeDepartment,
		NodeTypeRole,
		NodeTypeApproval,
		NodeTypeForm,
		NodeTypeClient,
		NodeTypeSync,
		NodeTypeConditional,
		NodeTypeEnd,
	}
}

// Valid reports whether t is a known node type.
func (t NodeType) Valid() bool {
	return slices.Contains(NodeTypes(), t)
}

// IsHidden reports whether the scheduler passes through nodes of this type without creating a step.
func (t NodeType) IsHidden() bool {
	return t == NodeTypeSync || t == NodeTypeConditional
}

// IsActionable reports whether nodes of this type become active steps.
func (t NodeType) IsActionable() bool {
	return t.Valid() && !t.IsHidden() && t != NodeTypeStart && t != NodeTypeEnd
}

// WorkflowNode is a typed step of a template graph.
type WorkflowNode struct {
	ID        string         `json:"id"                  validate:"required"`
	Label     string         `json:"label"               validate:"required,min=1"`
	Type      NodeType       `json:"node_type"           validate:"required"`
	EntityID  *string        `json:"entity_id,omitempty"`
	Settings  map[string]any `json:"settings,omitempty"`
	PositionX int            `json:"position_x"`
	PositionY int            `json:"position_y"`
}

// Entity returns the referenced role/department/form id, or an empty string.
func (n *WorkflowNode) Entity() string {
	if n.EntityID == nil {
		return ""
	}

	return *n.EntityID
}

// Clone returns a deep copy of the node.
func (n *WorkflowNode) Clone() *WorkflowNode {
	clone := *n

	if n.EntityID != nil {
		entityID := *n.EntityID
		clone.EntityID = &entityID
	}

	clone.Settings = cloneSettings(n.Settings)

	return &clone
}

// WorkflowConnection is a directed, optionally labeled edge between two nodes.
type WorkflowConnection struct {
	ID           string `json:"id"                      validate:"required"`
	FromNodeID   string `json:"from_node_id"            validate:"required"`
	ToNodeID     string `json:"to_node_id"              validate:"required"`
	Condition    string `json:"condition,omitempty"`     // Decision label or free text
	SourceHandle string `json:"source_handle,omitempty"` // Output handle on multi-output nodes
}

func cloneNodes(nodes []*WorkflowNode) []*WorkflowNode {
	clones := make([]*WorkflowNode, 0, len(nodes))
	for _, node := range nodes {
		clones = append(clones, node.Clone())
	}

	return clones
}

func cloneConnections(connections []*WorkflowConnection) []*WorkflowConnection {
	clones := make([]*WorkflowConnection, 0, len(connections))

	for _, connection := range connections {
		clone := *connection
		clones = append(clones, &clone)
	}

	return clones
}

func cloneSettings(settings map[string]any) map[string]any {
	if settings == nil {
		return nil
	}

	clone := make(map[string]any, len(settings))
	for key, value := range settings {
		clone[key] = cloneValue(value)
	}

	return clone
}

func cloneValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return cloneSettings(typed)
	case []any:
		clone := make([]any, len(typed))
		for i, item := range typed {
			clone[i] = cloneValue(item)
		}

		return clone
	case []string:
		return slices.Clone(typed)
	case map[string]string:
		return maps.Clone(typed)
	default:
		return value
	}
}
