package registry

import "github.com/prismpsa/prism-workflow/pkg/models"

// DefaultNodes returns the descriptors of the built-in node types.
func DefaultNodes() []NodeDescriptor {
	return []NodeDescriptor{
		{
			Type:           models.NodeTypeStart,
			Description:    "Entry point, routes unconditionally to its successor",
			SettingsSchema: emptySettingsSchema(),
		},
		{
			Type:           models.NodeTypeDepartment,
			Description:    "Work handled by a department owner",
			Actionable:     true,
			AutoAdvance:    true,
			SettingsSchema: actionableSettingsSchema(true),
		},
		{
			Type:           models.NodeTypeRole,
			Description:    "Work handled by a holder of a role",
			Actionable:     true,
			AutoAdvance:    true,
			SettingsSchema: actionableSettingsSchema(true),
		},
		{
			Type:             models.NodeTypeApproval,
			Description:      "Approval decision routed by its outcome",
			Actionable:       true,
			RequiresDecision: true,
			SettingsSchema:   actionableSettingsSchema(false),
		},
		{
			Type:           models.NodeTypeForm,
			Description:    "Form to be filled in",
			Actionable:     true,
			AutoAdvance:    true,
			SettingsSchema: actionableSettingsSchema(true),
		},
		{
			Type:           models.NodeTypeClient,
			Description:    "Client-facing review",
			Actionable:     true,
			AutoAdvance:    true,
			SettingsSchema: actionableSettingsSchema(true),
		},
		{
			Type:           models.NodeTypeSync,
			Description:    "Joins parallel branches",
			Hidden:         true,
			SettingsSchema: syncSettingsSchema(),
		},
		{
			Type:           models.NodeTypeConditional,
			Description:    "Routes by the decision carried from upstream",
			Hidden:         true,
			SettingsSchema: emptySettingsSchema(),
		},
		{
			Type:           models.NodeTypeEnd,
			Description:    "Completes the workflow",
			SettingsSchema: emptySettingsSchema(),
		},
	}
}

// RegisterDefaultNodes registers all built-in node types with the registry.
func (r *Registry) RegisterDefaultNodes() {
	for _, descriptor := range DefaultNodes() {
		if err := r.RegisterNode(descriptor); err != nil {
			panic(err)
		}
	}
}
