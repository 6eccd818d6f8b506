// Package registry describes the node types a workflow template may use.
package registry

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/prismpsa/prism-workflow/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

// NodeDescriptor declares how the scheduler treats a node type.
type NodeDescriptor struct {
	Type             models.NodeType
	Description      string
	Hidden           bool           // Traversed without creating a step
	Actionable       bool           // Materialized as an active step
	RequiresDecision bool           // Completing a step needs a decision
	AutoAdvance      bool           // May complete itself right after assignment
	SettingsSchema   map[string]any // JSON schema for WorkflowNode.Settings
}

type Registry struct {
	logger      *slog.Logger
	mu          sync.RWMutex
	descriptors map[models.NodeType]NodeDescriptor
	schemas     map[models.NodeType]*gojsonschema.Schema
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:      log,
		descriptors: make(map[models.NodeType]NodeDescriptor),
		schemas:     make(map[models.NodeType]*gojsonschema.Schema),
	}
}

// RegisterNode adds or replaces a node descriptor, compiling its settings schema.
func (r *Registry) RegisterNode(descriptor NodeDescriptor) error {
	var compiled *gojsonschema.Schema

	if descriptor.SettingsSchema != nil {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(descriptor.SettingsSchema))
		if err != nil {
			return fmt.Errorf("invalid settings schema for node type '%s': %w", descriptor.Type, err)
		}

		compiled = schema
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.descriptors[descriptor.Type] = descriptor
	r.schemas[descriptor.Type] = compiled

	r.logger.Debug("Registered node type", "node_type", descriptor.Type)

	return nil
}

// Node returns the descriptor for a node type.
func (r *Registry) Node(nodeType models.NodeType) (NodeDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	descriptor, ok := r.descriptors[nodeType]

	return descriptor, ok
}

// Nodes returns every registered descriptor ordered by type.
func (r *Registry) Nodes() []NodeDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	descriptors := make([]NodeDescriptor, 0, len(r.descriptors))
	for _, descriptor := range r.descriptors {
		descriptors = append(descriptors, descriptor)
	}

	slices.SortFunc(descriptors, func(a, b NodeDescriptor) int {
		return strings.Compare(string(a.Type), string(b.Type))
	})

	return descriptors
}

// ValidateSettings checks node settings against the schema of its type.
func (r *Registry) ValidateSettings(nodeType models.NodeType, settings map[string]any) error {
	r.mu.RLock()
	schema, known := r.schemas[nodeType]
	r.mu.RUnlock()

	if !known {
		return fmt.Errorf("node type '%s' not registered", nodeType)
	}

	if schema == nil {
		return nil
	}

	if settings == nil {
		settings = map[string]any{}
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(settings))
	if err != nil {
		return fmt.Errorf("failed to validate settings: %w", err)
	}

	if !result.Valid() {
		errors := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			errors = append(errors, desc.String())
		}

		return fmt.Errorf("validation errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

// HealthCheck reports whether the built-in node types are available.
func (r *Registry) HealthCheck() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, nodeType := range models.NodeTypes() {
		if _, ok := r.descriptors[nodeType]; !ok {
			return "Node type '" + string(nodeType) + "' is not registered", false
		}
	}

	return fmt.Sprintf("%d node types registered", len(r.descriptors)), true
}
