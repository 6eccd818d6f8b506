package registry

import (
	"log/slog"
	"testing"

	"github.com/prismpsa/prism-workflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()

	registry := NewRegistry(slog.Default())
	registry.RegisterDefaultNodes()

	return registry
}

func TestRegistry_DefaultNodes(t *testing.T) {
	registry := newTestRegistry(t)

	for _, nodeType := range models.NodeTypes() {
		descriptor, ok := registry.Node(nodeType)
		require.True(t, ok, "node type %s should be registered", nodeType)
		assert.Equal(t, nodeType.IsHidden(), descriptor.Hidden, nodeType)
		assert.Equal(t, nodeType.IsActionable(), descriptor.Actionable, nodeType)
	}

	approval, _ := registry.Node(models.NodeTypeApproval)
	assert.True(t, approval.RequiresDecision)
	assert.False(t, approval.AutoAdvance)

	message, ok := registry.HealthCheck()
	assert.True(t, ok)
	assert.Equal(t, "9 node types registered", message)
	assert.Len(t, registry.Nodes(), 9)
}

func TestRegistry_HealthCheck_Missing(t *testing.T) {
	registry := NewRegistry(slog.Default())

	message, ok := registry.HealthCheck()
	assert.False(t, ok)
	assert.Contains(t, message, "start")
}

func TestRegistry_ValidateSettings(t *testing.T) {
	registry := newTestRegistry(t)

	tests := []struct {
		name      string
		nodeType  models.NodeType
		settings  map[string]any
		expectErr bool
	}{
		{
			name:     "nil settings are valid",
			nodeType: models.NodeTypeRole,
			settings: nil,
		},
		{
			name:     "role with auto advance",
			nodeType: models.NodeTypeRole,
			settings: map[string]any{"auto_advance": true, "assigned_user_id": "user-1"},
		},
		{
			name:      "auto advance must be boolean",
			nodeType:  models.NodeTypeRole,
			settings:  map[string]any{"auto_advance": "yes"},
			expectErr: true,
		},
		{
			name:      "approval cannot auto advance",
			nodeType:  models.NodeTypeApproval,
			settings:  map[string]any{"auto_advance": true},
			expectErr: true,
		},
		{
			name:     "sync join settings",
			nodeType: models.NodeTypeSync,
			settings: map[string]any{"require_all": true, "required_sources": []any{"a", "b"}},
		},
		{
			name:      "sync sources must be unique",
			nodeType:  models.NodeTypeSync,
			settings:  map[string]any{"required_sources": []any{"a", "a"}},
			expectErr: true,
		},
		{
			name:      "empty assignee is rejected",
			nodeType:  models.NodeTypeForm,
			settings:  map[string]any{"assigned_user_id": ""},
			expectErr: true,
		},
		{
			name:      "unknown node type",
			nodeType:  models.NodeType("webhook"),
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := registry.ValidateSettings(tt.nodeType, tt.settings)
			if tt.expectErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRegistry_RegisterNode_InvalidSchema(t *testing.T) {
	registry := NewRegistry(slog.Default())

	err := registry.RegisterNode(NodeDescriptor{
		Type:           models.NodeTypeRole,
		SettingsSchema: map[string]any{"type": 42},
	})
	assert.Error(t, err)
}
