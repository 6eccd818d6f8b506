package workflow

import (
	"fmt"
	"slices"
	"strings"

	"github.com/prismpsa/prism-workflow/pkg/models"
)

// Upper bound on worklist items per traversal, relative to the connection count.
const traversalFactor = 64

// target is a visible node reached from a completed node.
type target struct {
	node       *models.WorkflowNode
	routeLabel string
	join       *models.WorkflowNode // nearest sync node on the path, if any
}

type routeItem struct {
	conn   *models.WorkflowConnection
	label  string
	handle string
	join   *models.WorkflowNode
	hidden []string // hidden nodes already crossed on this path
}

// selectRoutes filters the outgoing connections of a branching point. Without a decision every
// connection is taken. With one, matching conditions win, then unconditioned connections.
// A connection without a condition is matched on its source handle.
func selectRoutes(conns []*models.WorkflowConnection, decision *models.Decision) []*models.WorkflowConnection {
	if decision == nil {
		return conns
	}

	var matched, fallback []*models.WorkflowConnection

	for _, conn := range conns {
		condition, ok := models.ParseDecision(routeCondition(conn))
		if !ok {
			fallback = append(fallback, conn)

			continue
		}

		if condition.Matches(*decision) {
			matched = append(matched, conn)
		}
	}

	if len(matched) > 0 {
		return matched
	}

	return fallback
}

// routeCondition is the connection's condition, or its source handle for multi-output nodes.
func routeCondition(conn *models.WorkflowConnection) string {
	if strings.TrimSpace(conn.Condition) != "" {
		return conn.Condition
	}

	return conn.SourceHandle
}

// resolveTargets follows the routes leaving a node through any hidden nodes and returns the
// visible nodes they lead to, deduplicated, in traversal order.
func (g *graph) resolveTargets(fromID string, decision *models.Decision) ([]target, error) {
	return g.traverse(fromID, selectRoutes(g.outgoing[fromID], decision), decision)
}

// traverse walks the given routes out of fromID. Conditional nodes on the way still filter by decision.
func (g *graph) traverse(fromID string, routes []*models.WorkflowConnection, decision *models.Decision) ([]target, error) {
	if len(routes) == 0 {
		return nil, ErrNoMatchingRoute
	}

	worklist := make([]routeItem, 0, len(routes))
	for _, conn := range routes {
		worklist = append(worklist, routeItem{conn: conn, label: conn.Condition, handle: conn.SourceHandle})
	}

	budget := traversalFactor * (g.connections() + 1)
	seen := make(map[string]bool)

	var targets []target

	for len(worklist) > 0 {
		item := worklist[0]
		worklist = worklist[1:]

		budget--
		if budget < 0 {
			return nil, fmt.Errorf("%w: traversal from %s does not terminate", ErrCycleDetected, fromID)
		}

		node, ok := g.nodes[item.conn.ToNodeID]
		if !ok {
			return nil, fmt.Errorf("%w: connection %s targets unknown node %s", ErrTemplateInvalid, item.conn.ID, item.conn.ToNodeID)
		}

		if !node.Type.IsHidden() {
			if seen[node.ID] {
				continue
			}

			seen[node.ID] = true
			targets = append(targets, target{
				node:       node,
				routeLabel: item.routeLabel(decision),
				join:       item.join,
			})

			continue
		}

		if slices.Contains(item.hidden, node.ID) {
			return nil, fmt.Errorf("%w: hidden node %s revisited", ErrCycleDetected, node.ID)
		}

		next := g.outgoing[node.ID]
		if node.Type == models.NodeTypeConditional {
			next = selectRoutes(next, decision)
		}

		if len(next) == 0 {
			return nil, fmt.Errorf("%w: at %s node %s", ErrNoMatchingRoute, node.Type, node.ID)
		}

		path := append(slices.Clone(item.hidden), node.ID)

		join := item.join
		if node.Type == models.NodeTypeSync {
			join = node
		}

		for _, conn := range next {
			label := conn.Condition
			if label == "" {
				label = item.label
			}

			handle := conn.SourceHandle
			if handle == "" {
				handle = item.handle
			}

			worklist = append(worklist, routeItem{conn: conn, label: label, handle: handle, join: join, hidden: path})
		}
	}

	return targets, nil
}

func (i routeItem) routeLabel(decision *models.Decision) string {
	if i.label != "" {
		return i.label
	}

	if decision != nil {
		return decision.RouteLabel()
	}

	return i.handle
}

func (g *graph) connections() int {
	total := 0
	for _, conns := range g.outgoing {
		total += len(conns)
	}

	return total
}
