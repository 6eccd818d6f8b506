package workflow

import (
	"fmt"
	"strings"

	"github.com/prismpsa/prism-workflow/pkg/models"
	"github.com/prismpsa/prism-workflow/pkg/registry"
)

// Validate checks that a template graph can be executed. Every problem is collected into a
// *ValidationError, which matches ErrTemplateInvalid.
func Validate(reg *registry.Registry, nodes []*models.WorkflowNode, connections []*models.WorkflowConnection) error {
	var problems []string

	addProblem := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if len(nodes) == 0 {
		return &ValidationError{Problems: []string{"template has no nodes"}}
	}

	ids := make(map[string]bool, len(nodes))
	decisionNodes := make(map[string]bool)
	starts := 0

	for _, node := range nodes {
		if node.ID == "" {
			addProblem("node without id")

			continue
		}

		if ids[node.ID] {
			addProblem("duplicate node id '%s'", node.ID)
		}

		ids[node.ID] = true

		if node.Type == models.NodeTypeStart {
			starts++
		}

		if !node.Type.Valid() {
			addProblem("node '%s' has unknown type '%s'", node.ID, node.Type)

			continue
		}

		if reg != nil {
			if err := reg.ValidateSettings(node.Type, node.Settings); err != nil {
				addProblem("node '%s': %v", node.ID, err)

				continue
			}
		}

		settings, err := node.ParseSettings()
		if err != nil {
			addProblem("node '%s': %v", node.ID, err)

			continue
		}

		if requiresDecision(reg, node.Type, settings) {
			decisionNodes[node.ID] = true
		}

		for _, source := range settings.RequiredSources {
			if !containsNode(nodes, source) {
				addProblem("sync node '%s' requires unknown source '%s'", node.ID, source)
			}
		}
	}

	if starts != 1 {
		addProblem("expected exactly one start node, found %d", starts)
	}

	connIDs := make(map[string]bool, len(connections))
	unconditioned := make(map[string]int)

	for _, conn := range connections {
		if decisionNodes[conn.FromNodeID] && strings.TrimSpace(routeCondition(conn)) == "" {
			unconditioned[conn.FromNodeID]++
		}

		if conn.ID != "" {
			if connIDs[conn.ID] {
				addProblem("duplicate connection id '%s'", conn.ID)
			}

			connIDs[conn.ID] = true
		}

		if !ids[conn.FromNodeID] {
			addProblem("connection '%s' starts at unknown node '%s'", conn.ID, conn.FromNodeID)
		}

		if !ids[conn.ToNodeID] {
			addProblem("connection '%s' ends at unknown node '%s'", conn.ID, conn.ToNodeID)
		}
	}

	// At most one unconditioned route, the fallback, per decision node.
	for _, node := range nodes {
		if count := unconditioned[node.ID]; count > 1 {
			addProblem("decision node '%s' has %d outgoing connections without a condition or source handle", node.ID, count)
		}
	}

	if starts == 1 {
		problems = append(problems, reachabilityProblems(newGraph(nodes, connections))...)
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}

	return nil
}

// reachabilityProblems requires an end reachable from start and no dead ends on the way.
func reachabilityProblems(g *graph) []string {
	var problems []string

	start, err := g.start()
	if err != nil {
		return nil
	}

	reachable := g.reachable(start.ID)
	endReachable := false

	for _, node := range g.order {
		if !reachable[node.ID] {
			continue
		}

		if node.Type == models.NodeTypeEnd {
			endReachable = true

			continue
		}

		if len(g.outgoing[node.ID]) == 0 {
			problems = append(problems, fmt.Sprintf("node '%s' has no outgoing connection", node.ID))
		}
	}

	if !endReachable {
		problems = append(problems, "no end node reachable from start")
	}

	return problems
}

func requiresDecision(reg *registry.Registry, nodeType models.NodeType, settings models.NodeSettings) bool {
	if settings.RequiresDecision != nil && *settings.RequiresDecision {
		return true
	}

	if reg == nil {
		return nodeType == models.NodeTypeApproval
	}

	descriptor, ok := reg.Node(nodeType)

	return ok && descriptor.RequiresDecision
}

func containsNode(nodes []*models.WorkflowNode, id string) bool {
	for _, node := range nodes {
		if node.ID == id {
			return true
		}
	}

	return false
}
