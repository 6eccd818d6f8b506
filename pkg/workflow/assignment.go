package workflow

import (
	"context"
	"fmt"
	"slices"

	"github.com/prismpsa/prism-workflow/pkg/models"
)

// Directory answers organisation questions the engine does not own.
type Directory interface {
	// RoleMembers returns the ids of the users holding a role.
	RoleMembers(ctx context.Context, roleID string) ([]string, error)
	// DepartmentOwners returns the ids of the users owning a department.
	DepartmentOwners(ctx context.Context, departmentID string) ([]string, error)
	// UserName returns the display name of a user, or "" when the user is unknown.
	UserName(ctx context.Context, userID string) (string, error)
}

// Resolver picks the assignee of a node.
type Resolver struct {
	directory Directory
}

// NewResolver returns a resolver backed by directory. A nil directory only honours fixed assignees.
func NewResolver(directory Directory) *Resolver {
	return &Resolver{directory: directory}
}

type candidateSource func(ctx context.Context) ([]string, error)

// Resolve returns the user to assign to the node, or "" when nobody qualifies.
func (r *Resolver) Resolve(ctx context.Context, node *models.WorkflowNode, state *models.InstanceState) (string, error) {
	settings, err := node.ParseSettings()
	if err != nil {
		return "", err
	}

	for _, source := range r.sources(node, settings) {
		candidates, err := source(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to resolve assignee of node %s: %w", node.ID, err)
		}

		if len(candidates) > 0 {
			return pickCandidate(candidates, node.ID, state), nil
		}
	}

	return "", nil
}

// sources lists the candidate lookups in precedence order; the first non-empty one wins.
func (r *Resolver) sources(node *models.WorkflowNode, settings models.NodeSettings) []candidateSource {
	var sources []candidateSource

	if settings.AssignedUserID != "" {
		sources = append(sources, func(context.Context) ([]string, error) {
			return []string{settings.AssignedUserID}, nil
		})
	}

	if r.directory == nil {
		return sources
	}

	entity := node.Entity()

	if node.Type == models.NodeTypeRole && entity != "" {
		sources = append(sources, r.roleMembers(entity))
	}

	if node.Type == models.NodeTypeDepartment && entity != "" {
		sources = append(sources, r.departmentOwners(entity))
	}

	if settings.RoleID != "" {
		sources = append(sources, r.roleMembers(settings.RoleID))
	}

	if settings.DepartmentID != "" {
		sources = append(sources, r.departmentOwners(settings.DepartmentID))
	}

	if node.Type == models.NodeTypeApproval && entity != "" {
		sources = append(sources, r.roleMembers(entity))
	}

	return sources
}

func (r *Resolver) roleMembers(roleID string) candidateSource {
	return func(ctx context.Context) ([]string, error) {
		return r.directory.RoleMembers(ctx, roleID)
	}
}

func (r *Resolver) departmentOwners(departmentID string) candidateSource {
	return func(ctx context.Context) ([]string, error) {
		return r.directory.DepartmentOwners(ctx, departmentID)
	}
}

// userName returns "" for unknown users or without a directory.
func (r *Resolver) userName(ctx context.Context, userID string) (string, error) {
	if r.directory == nil {
		return "", nil
	}

	return r.directory.UserName(ctx, userID)
}

// pickCandidate prefers the user most recently assigned to the node in this instance,
// then the smallest id.
func pickCandidate(candidates []string, nodeID string, state *models.InstanceState) string {
	if state != nil {
		for i := len(state.Assignments) - 1; i >= 0; i-- {
			assignment := state.Assignments[i]
			if assignment.NodeID == nodeID && slices.Contains(candidates, assignment.UserID) {
				return assignment.UserID
			}
		}
	}

	return slices.Min(candidates)
}
