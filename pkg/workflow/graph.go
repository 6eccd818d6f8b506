package workflow

import (
	"fmt"

	"github.com/prismpsa/prism-workflow/pkg/models"
)

// graph indexes a template or snapshot for traversal.
type graph struct {
	nodes    map[string]*models.WorkflowNode
	order    []*models.WorkflowNode
	outgoing map[string][]*models.WorkflowConnection
	incoming map[string][]*models.WorkflowConnection
}

func newGraph(nodes []*models.WorkflowNode, connections []*models.WorkflowConnection) *graph {
	g := &graph{
		nodes:    make(map[string]*models.WorkflowNode, len(nodes)),
		order:    nodes,
		outgoing: make(map[string][]*models.WorkflowConnection),
		incoming: make(map[string][]*models.WorkflowConnection),
	}

	for _, node := range nodes {
		g.nodes[node.ID] = node
	}

	for _, conn := range connections {
		g.outgoing[conn.FromNodeID] = append(g.outgoing[conn.FromNodeID], conn)
		g.incoming[conn.ToNodeID] = append(g.incoming[conn.ToNodeID], conn)
	}

	return g
}

func snapshotGraph(snapshot *models.Snapshot) *graph {
	return newGraph(snapshot.Nodes, snapshot.Connections)
}

func (g *graph) node(id string) (*models.WorkflowNode, bool) {
	node, ok := g.nodes[id]

	return node, ok
}

func (g *graph) start() (*models.WorkflowNode, error) {
	var starts []*models.WorkflowNode

	for _, node := range g.order {
		if node.Type == models.NodeTypeStart {
			starts = append(starts, node)
		}
	}

	if len(starts) != 1 {
		return nil, fmt.Errorf("%w: expected exactly one start node, found %d", ErrTemplateInvalid, len(starts))
	}

	return starts[0], nil
}

// reachable returns every node reachable from the given node, itself included.
func (g *graph) reachable(from string) map[string]bool {
	seen := map[string]bool{from: true}
	queue := []string{from}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, conn := range g.outgoing[current] {
			if !seen[conn.ToNodeID] {
				seen[conn.ToNodeID] = true
				queue = append(queue, conn.ToNodeID)
			}
		}
	}

	return seen
}

// visiblePredecessors walks backward from a node through hidden nodes and returns
// the ids of the first non-hidden nodes found, in discovery order.
func (g *graph) visiblePredecessors(nodeID string) []string {
	var result []string

	seen := map[string]bool{nodeID: true}
	queue := []string{nodeID}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, conn := range g.incoming[current] {
			from := conn.FromNodeID
			if seen[from] {
				continue
			}

			seen[from] = true

			node, ok := g.nodes[from]
			if !ok {
				continue
			}

			if node.Type.IsHidden() {
				queue = append(queue, from)

				continue
			}

			result = append(result, from)
		}
	}

	return result
}
