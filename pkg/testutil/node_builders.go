// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/prismpsa/prism-workflow/pkg/models"
)

// CreateTestNode creates a test WorkflowNode with default values that can be overridden.
func CreateTestNode(overrides ...func(*models.WorkflowNode)) *models.WorkflowNode {
	node := &models.WorkflowNode{
		ID:        uuid.New().String(),
		Type:      models.NodeTypeForm,
		Label:     "Test Node",
		PositionX: 100,
		PositionY: 200,
	}

	for _, override := range overrides {
		override(node)
	}

	return node
}

// WithID sets the node ID.
func WithID(id string) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.ID = id
	}
}

// WithType sets the node type.
func WithType(nodeType models.NodeType) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Type = nodeType
	}
}

// WithLabel sets the node label.
func WithLabel(label string) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Label = label
	}
}

// WithEntity sets the role, department or form the node refers to.
func WithEntity(entityID string) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.EntityID = &entityID
	}
}

// WithSetting sets one settings key.
func WithSetting(key string, value any) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		if n.Settings == nil {
			n.Settings = make(map[string]any)
		}

		n.Settings[key] = value
	}
}

// WithPosition sets the node position.
func WithPosition(x, y int) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.PositionX = x
		n.PositionY = y
	}
}

// Node is a shorthand for CreateTestNode with an id and a type.
func Node(id string, nodeType models.NodeType, overrides ...func(*models.WorkflowNode)) *models.WorkflowNode {
	base := []func(*models.WorkflowNode){WithID(id), WithType(nodeType), WithLabel(id)}

	return CreateTestNode(append(base, overrides...)...)
}

// Connect creates a connection between two nodes, optionally labeled with a condition.
func Connect(from, to string, condition ...string) *models.WorkflowConnection {
	conn := &models.WorkflowConnection{
		ID:         fmt.Sprintf("%s->%s", from, to),
		FromNodeID: from,
		ToNodeID:   to,
	}

	if len(condition) > 0 {
		conn.Condition = condition[0]
		conn.ID += ":" + condition[0]
	}

	return conn
}

// CreateTestTemplate creates an active template from nodes and connections.
func CreateTestTemplate(id string, nodes []*models.WorkflowNode, connections ...*models.WorkflowConnection) *models.WorkflowTemplate {
	return &models.WorkflowTemplate{
		ID:          id,
		Name:        "Template " + id,
		Description: "A template for testing",
		Active:      true,
		Nodes:       nodes,
		Connections: connections,
		CreatedBy:   "test-user",
	}
}

// LinearTemplate chains start, the given form nodes and end.
func LinearTemplate(id string, steps ...string) *models.WorkflowTemplate {
	nodes := []*models.WorkflowNode{Node("start", models.NodeTypeStart)}
	connections := make([]*models.WorkflowConnection, 0, len(steps)+1)

	previous := "start"
	for _, step := range steps {
		nodes = append(nodes, Node(step, models.NodeTypeForm))
		connections = append(connections, Connect(previous, step))
		previous = step
	}

	nodes = append(nodes, Node("end", models.NodeTypeEnd))
	connections = append(connections, Connect(previous, "end"))

	return CreateTestTemplate(id, nodes, connections...)
}

// ManagerApprovalTemplate is start, a manager role step and an approval that loops back on rejection.
func ManagerApprovalTemplate(id string, autoAdvance bool) *models.WorkflowTemplate {
	return CreateTestTemplate(id,
		[]*models.WorkflowNode{
			Node("start", models.NodeTypeStart),
			Node("manager", models.NodeTypeRole,
				WithLabel("Manager"),
				WithEntity("role-manager"),
				WithSetting(models.SettingAutoAdvance, autoAdvance)),
			Node("approval", models.NodeTypeApproval, WithLabel("Approval"), WithEntity("role-manager")),
			Node("end", models.NodeTypeEnd),
		},
		Connect("start", "manager"),
		Connect("manager", "approval"),
		Connect("approval", "end", "approved"),
		Connect("approval", "manager", "rejected"),
	)
}

// ParallelTemplate forks after start into two form steps that join on a sync node before review.
func ParallelTemplate(id string, requireAll bool) *models.WorkflowTemplate {
	return CreateTestTemplate(id,
		[]*models.WorkflowNode{
			Node("start", models.NodeTypeStart),
			Node("fork", models.NodeTypeForm),
			Node("legal", models.NodeTypeForm),
			Node("finance", models.NodeTypeForm),
			Node("join", models.NodeTypeSync, WithSetting(models.SettingRequireAll, requireAll)),
			Node("review", models.NodeTypeForm),
			Node("end", models.NodeTypeEnd),
		},
		Connect("start", "fork"),
		Connect("fork", "legal"),
		Connect("fork", "finance"),
		Connect("legal", "join"),
		Connect("finance", "join"),
		Connect("join", "review"),
		Connect("review", "end"),
	)
}
