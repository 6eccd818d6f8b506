package models

import (
	"encoding/json"
	"fmt"
)

// Node settings keys understood by the engine.
const (
	SettingAssignedUserID   = "assigned_user_id"
	SettingRoleID           = "role_id"
	SettingDepartmentID     = "department_id"
	SettingAutoAdvance      = "auto_advance"
	SettingRequiresDecision = "requires_decision"
	SettingRequireAll       = "require_all"
	SettingRequiredSources  = "required_sources"
)

// NodeSettings is the typed view of WorkflowNode.Settings.
type NodeSettings struct {
	AssignedUserID   string   `json:"assigned_user_id,omitempty"`
	RoleID           string   `json:"role_id,omitempty"`
	DepartmentID     string   `json:"department_id,omitempty"`
	AutoAdvance      bool     `json:"auto_advance,omitempty"`
	RequiresDecision *bool    `json:"requires_decision,omitempty"`
	RequireAll       bool     `json:"require_all,omitempty"`      // sync nodes only
	RequiredSources  []string `json:"required_sources,omitempty"` // sync nodes only
}

// ParseSettings decodes the settings map of a node. Unknown keys are ignored.
func (n *WorkflowNode) ParseSettings() (NodeSettings, error) {
	var settings NodeSettings
	if len(n.Settings) == 0 {
		return settings, nil
	}

	data, err := json.Marshal(n.Settings)
	if err != nil {
		return settings, fmt.Errorf("failed to encode settings of node %s: %w", n.ID, err)
	}

	err = json.Unmarshal(data, &settings)
	if err != nil {
		return settings, fmt.Errorf("failed to decode settings of node %s: %w", n.ID, err)
	}

	return settings, nil
}
