package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prismpsa/prism-workflow/pkg/models"
	"github.com/prismpsa/prism-workflow/pkg/persistence"
)

// TemplateRepository stores templates with their nodes and connections in separate tables.
type TemplateRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewTemplateRepository(db *sql.DB, logger *slog.Logger) *TemplateRepository {
	return &TemplateRepository{db: db, logger: logger}
}

const templateColumns = `
	id
  , name
  , description
  , active
  , created_by
  , created_at
  , updated_at
  , deleted_at
`

func (r *TemplateRepository) List(ctx context.Context, opts persistence.ListTemplatesOptions) ([]*models.WorkflowTemplate, error) {
	var conditions []string

	if !opts.IncludeDeleted {
		conditions = append(conditions, "deleted_at IS NULL")
	}

	if opts.ActiveOnly {
		conditions = append(conditions, "active")
	}

	query := "SELECT " + templateColumns + " FROM workflow_templates"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY name, id"

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}

	defer func() { _ = rows.Close() }()

	templates := make([]*models.WorkflowTemplate, 0)

	for rows.Next() {
		template, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}

		templates = append(templates, template)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate templates: %w", err)
	}

	for _, template := range templates {
		if err := r.loadGraph(ctx, template); err != nil {
			return nil, err
		}
	}

	return templates, nil
}

// GetByID returns soft-deleted templates too; callers check IsDeleted.
func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*models.WorkflowTemplate, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+templateColumns+" FROM workflow_templates WHERE id = $1", id)

	template, err := scanTemplate(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, err
	}

	if err := r.loadGraph(ctx, template); err != nil {
		return nil, err
	}

	return template, nil
}

// Save saves a template with its graph, replacing any previous graph.
func (r *TemplateRepository) Save(ctx context.Context, template *models.WorkflowTemplate) (err error) {
	now := time.Now().UTC()

	if template.CreatedAt.IsZero() {
		template.CreatedAt = now
	}

	template.UpdatedAt = now

	if template.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate template ID: %w", err)
		}

		template.ID = id.String()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO workflow_templates (id, name, description, active, created_by, created_at, updated_at, deleted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			active = EXCLUDED.active,
			created_by = EXCLUDED.created_by,
			updated_at = EXCLUDED.updated_at,
			deleted_at = EXCLUDED.deleted_at
	`,
		template.ID,
		template.Name,
		template.Description,
		template.Active,
		emptyAsNull(template.CreatedBy),
		template.CreatedAt,
		template.UpdatedAt,
		template.DeletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save template base: %w", err)
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM workflow_template_connections WHERE template_id = $1", template.ID)
	if err != nil {
		return fmt.Errorf("failed to delete existing connections: %w", err)
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM workflow_template_nodes WHERE template_id = $1", template.ID)
	if err != nil {
		return fmt.Errorf("failed to delete existing nodes: %w", err)
	}

	for i, node := range template.Nodes {
		settings, err := json.Marshal(node.Settings)
		if err != nil {
			return fmt.Errorf("failed to marshal settings of node %s: %w", node.ID, err)
		}

		if node.Settings == nil {
			settings = []byte("{}")
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO workflow_template_nodes
				(template_id, id, ordinal, label, node_type, entity_id, settings, position_x, position_y)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, template.ID, node.ID, i, node.Label, string(node.Type), nullString(node.EntityID), settings, node.PositionX, node.PositionY)
		if err != nil {
			return fmt.Errorf("failed to save node %s: %w", node.ID, err)
		}
	}

	for i, conn := range template.Connections {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO workflow_template_connections
				(template_id, id, ordinal, from_node_id, to_node_id, condition, source_handle)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, template.ID, conn.ID, i, conn.FromNodeID, conn.ToNodeID, emptyAsNull(conn.Condition), emptyAsNull(conn.SourceHandle))
		if err != nil {
			return fmt.Errorf("failed to save connection %s: %w", conn.ID, err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Delete soft deletes a template by setting deleted_at timestamp.
func (r *TemplateRepository) Delete(ctx context.Context, id string) error {
	now := time.Now().UTC()

	result, err := r.db.ExecContext(ctx, `
		UPDATE workflow_templates SET deleted_at = $2, updated_at = $2, active = false
		WHERE id = $1 AND deleted_at IS NULL
	`, id, now)
	if err != nil {
		return fmt.Errorf("failed to delete template %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete template %s: %w", id, err)
	}

	if affected == 0 {
		return persistence.NewTemplateError("delete", id, persistence.ErrTemplateNotFound)
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row scanner) (*models.WorkflowTemplate, error) {
	var (
		template  models.WorkflowTemplate
		createdBy sql.NullString
		deletedAt sql.NullTime
	)

	err := row.Scan(
		&template.ID,
		&template.Name,
		&template.Description,
		&template.Active,
		&createdBy,
		&template.CreatedAt,
		&template.UpdatedAt,
		&deletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}

		return nil, fmt.Errorf("failed to scan template: %w", err)
	}

	template.CreatedBy = createdBy.String

	if deletedAt.Valid {
		template.DeletedAt = &deletedAt.Time
	}

	return &template, nil
}

func (r *TemplateRepository) loadGraph(ctx context.Context, template *models.WorkflowTemplate) error {
	nodes, err := r.db.QueryContext(ctx, `
		SELECT id, label, node_type, entity_id, settings, position_x, position_y
		FROM workflow_template_nodes WHERE template_id = $1 ORDER BY ordinal
	`, template.ID)
	if err != nil {
		return fmt.Errorf("failed to query nodes of template %s: %w", template.ID, err)
	}

	defer func() { _ = nodes.Close() }()

	template.Nodes = make([]*models.WorkflowNode, 0)

	for nodes.Next() {
		var (
			node     models.WorkflowNode
			nodeType string
			entityID sql.NullString
			settings []byte
		)

		if err := nodes.Scan(&node.ID, &node.Label, &nodeType, &entityID, &settings, &node.PositionX, &node.PositionY); err != nil {
			return fmt.Errorf("failed to scan node: %w", err)
		}

		node.Type = models.NodeType(nodeType)
		node.EntityID = stringPtr(entityID)

		if err := json.Unmarshal(settings, &node.Settings); err != nil {
			return fmt.Errorf("failed to unmarshal settings of node %s: %w", node.ID, err)
		}

		if len(node.Settings) == 0 {
			node.Settings = nil
		}

		template.Nodes = append(template.Nodes, &node)
	}

	if err := nodes.Err(); err != nil {
		return fmt.Errorf("failed to iterate nodes: %w", err)
	}

	conns, err := r.db.QueryContext(ctx, `
		SELECT id, from_node_id, to_node_id, condition, source_handle
		FROM workflow_template_connections WHERE template_id = $1 ORDER BY ordinal
	`, template.ID)
	if err != nil {
		return fmt.Errorf("failed to query connections of template %s: %w", template.ID, err)
	}

	defer func() { _ = conns.Close() }()

	template.Connections = make([]*models.WorkflowConnection, 0)

	for conns.Next() {
		var (
			conn         models.WorkflowConnection
			condition    sql.NullString
			sourceHandle sql.NullString
		)

		if err := conns.Scan(&conn.ID, &conn.FromNodeID, &conn.ToNodeID, &condition, &sourceHandle); err != nil {
			return fmt.Errorf("failed to scan connection: %w", err)
		}

		conn.Condition = condition.String
		conn.SourceHandle = sourceHandle.String

		template.Connections = append(template.Connections, &conn)
	}

	if err := conns.Err(); err != nil {
		return fmt.Errorf("failed to iterate connections: %w", err)
	}

	return nil
}
