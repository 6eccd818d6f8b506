package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prismpsa/prism-workflow/pkg/models"
	"github.com/prismpsa/prism-workflow/pkg/persistence"
)

// InstanceRepository stores an instance aggregate across four tables. History and
// assignments are insert-only.
type InstanceRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewInstanceRepository(db *sql.DB, logger *slog.Logger) *InstanceRepository {
	return &InstanceRepository{db: db, logger: logger}
}

const instanceColumns = `
	id
  , project_id
  , workflow_template_id
  , status
  , current_node_id
  , has_parallel_paths
  , started_snapshot
  , completed_snapshot
  , started_at
  , completed_at
  , cancelled_at
  , version
`

func (r *InstanceRepository) Create(ctx context.Context, state *models.InstanceState) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	instance := state.Instance

	started, err := json.Marshal(instance.StartedSnapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal started snapshot: %w", err)
	}

	completed, err := marshalCompleted(instance.CompletedSnapshot)
	if err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO workflow_instances (`+instanceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING
	`,
		instance.ID,
		instance.ProjectID,
		instance.WorkflowTemplateID,
		string(instance.Status),
		instance.CurrentNodeID,
		instance.HasParallelPaths,
		started,
		completed,
		instance.StartedAt,
		instance.CompletedAt,
		instance.CancelledAt,
		instance.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to insert instance %s: %w", instance.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to insert instance %s: %w", instance.ID, err)
	}

	if affected == 0 {
		err = persistence.NewInstanceError("create", instance.ID, persistence.ErrInstanceAlreadyExists)

		return err
	}

	err = writeChildren(ctx, tx, &models.InstanceState{Instance: instance}, state)
	if err != nil {
		return err
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (r *InstanceRepository) GetByID(ctx context.Context, id string) (*models.InstanceState, error) {
	return loadState(ctx, r.db, id, false)
}

// Update locks the instance row, applies fn and writes the difference. The version column
// is compared and bumped so writers that bypass the row lock are detected.
func (r *InstanceRepository) Update(ctx context.Context, id string, fn persistence.UpdateFunc) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	current, err := loadState(ctx, tx, id, true)
	if err != nil {
		return err
	}

	if current == nil {
		err = persistence.NewInstanceError("update", id, persistence.ErrInstanceNotFound)

		return err
	}

	working := current.Clone()

	err = fn(working)
	if err != nil {
		return err
	}

	err = persistence.CheckAppendOnly(current, working)
	if err != nil {
		err = persistence.NewInstanceError("update", id, err)

		return err
	}

	instance := working.Instance

	completed, err := marshalCompleted(instance.CompletedSnapshot)
	if err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE workflow_instances SET
			status = $3,
			current_node_id = $4,
			has_parallel_paths = $5,
			completed_snapshot = $6,
			completed_at = $7,
			cancelled_at = $8,
			version = version + 1
		WHERE id = $1 AND version = $2
	`,
		id,
		current.Instance.Version,
		string(instance.Status),
		instance.CurrentNodeID,
		instance.HasParallelPaths,
		completed,
		instance.CompletedAt,
		instance.CancelledAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update instance %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update instance %s: %w", id, err)
	}

	if affected == 0 {
		err = persistence.NewInstanceError("update", id, persistence.ErrConcurrentUpdate)

		return err
	}

	err = writeChildren(ctx, tx, current, working)
	if err != nil {
		return err
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	instance.Version = current.Instance.Version + 1

	return nil
}

func (r *InstanceRepository) ListByProject(ctx context.Context, projectID string) ([]*models.WorkflowInstance, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+instanceColumns+" FROM workflow_instances WHERE project_id = $1 ORDER BY started_at, id", projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query instances: %w", err)
	}

	defer func() { _ = rows.Close() }()

	instances := make([]*models.WorkflowInstance, 0)

	for rows.Next() {
		instance, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}

		instances = append(instances, instance)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate instances: %w", err)
	}

	return instances, nil
}

func (r *InstanceRepository) ListOpenSteps(ctx context.Context, filter persistence.StepFilter) ([]*models.StepView, error) {
	conditions := []string{
		"i.status = 'active'",
		"s.status IN ('active', 'waiting')",
	}

	var args []any

	addCondition := func(format string, value any) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(format, len(args)))
	}

	if filter.ProjectID != "" {
		addCondition("i.project_id = $%d", filter.ProjectID)
	}

	if filter.UserID != "" {
		addCondition("s.assigned_user_id = $%d", filter.UserID)
	}

	if filter.Unassigned {
		conditions = append(conditions, "s.status = 'active'", "(s.assigned_user_id IS NULL OR s.assigned_user_id = '')")
	}

	if filter.CreatedBefore != nil {
		addCondition("s.created_at < $%d", *filter.CreatedBefore)
	}

	query := `
		SELECT ` + stepColumns("s") + `, i.project_id, i.started_snapshot
		FROM workflow_active_steps s
		JOIN workflow_instances i ON i.id = s.workflow_instance_id
		WHERE ` + strings.Join(conditions, " AND ") + `
		ORDER BY s.created_at, s.id
	`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query open steps: %w", err)
	}

	defer func() { _ = rows.Close() }()

	views := make([]*models.StepView, 0)
	snapshots := make(map[string]*models.Snapshot)

	for rows.Next() {
		var (
			row       stepRow
			projectID string
			snapshot  []byte
		)

		if err := rows.Scan(append(row.dest(), &projectID, &snapshot)...); err != nil {
			return nil, fmt.Errorf("failed to scan open step: %w", err)
		}

		step := row.activeStep()

		started, ok := snapshots[step.WorkflowInstanceID]
		if !ok {
			started = &models.Snapshot{}
			if err := json.Unmarshal(snapshot, started); err != nil {
				return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
			}

			snapshots[step.WorkflowInstanceID] = started
		}

		views = append(views, persistence.NewStepView(&models.WorkflowInstance{
			ID:              step.WorkflowInstanceID,
			ProjectID:       projectID,
			StartedSnapshot: started,
		}, step))
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate open steps: %w", err)
	}

	return views, nil
}

// loadState reads an aggregate; forUpdate takes the row lock inside a transaction.
func loadState(ctx context.Context, q queryer, id string, forUpdate bool) (*models.InstanceState, error) {
	query := "SELECT " + instanceColumns + " FROM workflow_instances WHERE id = $1"
	if forUpdate {
		query += " FOR UPDATE"
	}

	instance, err := scanInstance(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, err
	}

	state := &models.InstanceState{
		Instance:    instance,
		Steps:       make([]*models.ActiveStep, 0),
		Assignments: make([]*models.NodeAssignment, 0),
		History:     make([]*models.HistoryEntry, 0),
	}

	if err := loadSteps(ctx, q, state); err != nil {
		return nil, err
	}

	if err := loadAssignments(ctx, q, state); err != nil {
		return nil, err
	}

	if err := loadHistory(ctx, q, state); err != nil {
		return nil, err
	}

	return state, nil
}

func scanInstance(row scanner) (*models.WorkflowInstance, error) {
	var (
		instance    models.WorkflowInstance
		status      string
		started     []byte
		completed   []byte
		completedAt sql.NullTime
		cancelledAt sql.NullTime
	)

	err := row.Scan(
		&instance.ID,
		&instance.ProjectID,
		&instance.WorkflowTemplateID,
		&status,
		&instance.CurrentNodeID,
		&instance.HasParallelPaths,
		&started,
		&completed,
		&instance.StartedAt,
		&completedAt,
		&cancelledAt,
		&instance.Version,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}

		return nil, fmt.Errorf("failed to scan instance: %w", err)
	}

	instance.Status = models.InstanceStatus(status)

	if err := json.Unmarshal(started, &instance.StartedSnapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal started snapshot: %w", err)
	}

	if len(completed) > 0 {
		if err := json.Unmarshal(completed, &instance.CompletedSnapshot); err != nil {
			return nil, fmt.Errorf("failed to unmarshal completed snapshot: %w", err)
		}
	}

	if completedAt.Valid {
		instance.CompletedAt = &completedAt.Time
	}

	if cancelledAt.Valid {
		instance.CancelledAt = &cancelledAt.Time
	}

	return &instance, nil
}

func stepColumns(alias string) string {
	columns := []string{
		"id", "workflow_instance_id", "node_id", "branch_id", "status",
		"assigned_user_id", "route_label", "created_at", "completed_at",
	}

	for i, column := range columns {
		columns[i] = alias + "." + column
	}

	return strings.Join(columns, ", ")
}

// stepRow holds the scan destinations matching stepColumns.
type stepRow struct {
	step        models.ActiveStep
	status      string
	assigned    sql.NullString
	completedAt sql.NullTime
}

func (r *stepRow) dest() []any {
	return []any{
		&r.step.ID,
		&r.step.WorkflowInstanceID,
		&r.step.NodeID,
		&r.step.BranchID,
		&r.status,
		&r.assigned,
		&r.step.RouteLabel,
		&r.step.CreatedAt,
		&r.completedAt,
	}
}

func (r *stepRow) activeStep() *models.ActiveStep {
	step := r.step
	step.Status = models.StepStatus(r.status)
	step.AssignedUserID = stringPtr(r.assigned)

	if r.completedAt.Valid {
		completedAt := r.completedAt.Time
		step.CompletedAt = &completedAt
	}

	return &step
}

func loadSteps(ctx context.Context, q queryer, state *models.InstanceState) error {
	rows, err := q.QueryContext(ctx,
		"SELECT "+stepColumns("s")+" FROM workflow_active_steps s WHERE s.workflow_instance_id = $1 ORDER BY s.ordinal",
		state.Instance.ID)
	if err != nil {
		return fmt.Errorf("failed to query steps: %w", err)
	}

	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var row stepRow
		if err := rows.Scan(row.dest()...); err != nil {
			return fmt.Errorf("failed to scan step: %w", err)
		}

		state.Steps = append(state.Steps, row.activeStep())
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate steps: %w", err)
	}

	return nil
}

func loadAssignments(ctx context.Context, q queryer, state *models.InstanceState) error {
	rows, err := q.QueryContext(ctx, `
		SELECT id, workflow_instance_id, node_id, user_id, assigned_at
		FROM workflow_node_assignments WHERE workflow_instance_id = $1 ORDER BY ordinal
	`, state.Instance.ID)
	if err != nil {
		return fmt.Errorf("failed to query assignments: %w", err)
	}

	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var assignment models.NodeAssignment

		err := rows.Scan(
			&assignment.ID,
			&assignment.WorkflowInstanceID,
			&assignment.NodeID,
			&assignment.UserID,
			&assignment.AssignedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to scan assignment: %w", err)
		}

		state.Assignments = append(state.Assignments, &assignment)
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate assignments: %w", err)
	}

	return nil
}

func loadHistory(ctx context.Context, q queryer, state *models.InstanceState) error {
	rows, err := q.QueryContext(ctx, `
		SELECT id, workflow_instance_id, sequence, from_node_id, to_node_id, approval_decision, handed_off_at
		FROM workflow_history WHERE workflow_instance_id = $1 ORDER BY sequence
	`, state.Instance.ID)
	if err != nil {
		return fmt.Errorf("failed to query history: %w", err)
	}

	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			entry    models.HistoryEntry
			toNodeID sql.NullString
			decision sql.NullString
		)

		err := rows.Scan(
			&entry.ID,
			&entry.WorkflowInstanceID,
			&entry.Sequence,
			&entry.FromNodeID,
			&toNodeID,
			&decision,
			&entry.HandedOffAt,
		)
		if err != nil {
			return fmt.Errorf("failed to scan history entry: %w", err)
		}

		entry.ToNodeID = stringPtr(toNodeID)

		if parsed, ok := models.ParseDecision(decision.String); ok {
			entry.ApprovalDecision = &parsed
		}

		state.History = append(state.History, &entry)
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate history: %w", err)
	}

	return nil
}

// writeChildren upserts every step of after and inserts the history entries and
// assignments after holds beyond before.
func writeChildren(ctx context.Context, tx *sql.Tx, before, after *models.InstanceState) error {
	for i, step := range after.Steps {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO workflow_active_steps
				(id, workflow_instance_id, ordinal, node_id, branch_id, status, assigned_user_id, route_label, created_at, completed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (id) DO UPDATE SET
				status = EXCLUDED.status,
				assigned_user_id = EXCLUDED.assigned_user_id,
				completed_at = EXCLUDED.completed_at
		`,
			step.ID,
			after.Instance.ID,
			i,
			step.NodeID,
			step.BranchID,
			string(step.Status),
			nullString(step.AssignedUserID),
			step.RouteLabel,
			step.CreatedAt,
			step.CompletedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to save step %s: %w", step.ID, err)
		}
	}

	for i := len(before.Assignments); i < len(after.Assignments); i++ {
		assignment := after.Assignments[i]

		_, err := tx.ExecContext(ctx, `
			INSERT INTO workflow_node_assignments (id, workflow_instance_id, ordinal, node_id, user_id, assigned_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT DO NOTHING
		`, assignment.ID, after.Instance.ID, i, assignment.NodeID, assignment.UserID, assignment.AssignedAt)
		if err != nil {
			return fmt.Errorf("failed to save assignment %s: %w", assignment.ID, err)
		}
	}

	for i := len(before.History); i < len(after.History); i++ {
		entry := after.History[i]

		var decision sql.NullString
		if entry.ApprovalDecision != nil {
			decision = sql.NullString{String: entry.ApprovalDecision.String(), Valid: true}
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO workflow_history
				(id, workflow_instance_id, sequence, from_node_id, to_node_id, approval_decision, handed_off_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT DO NOTHING
		`, entry.ID, after.Instance.ID, entry.Sequence, entry.FromNodeID, nullString(entry.ToNodeID), decision, entry.HandedOffAt)
		if err != nil {
			return fmt.Errorf("failed to save history entry %s: %w", entry.ID, err)
		}
	}

	return nil
}

func marshalCompleted(snapshot *models.CompletedSnapshot) ([]byte, error) {
	if snapshot == nil {
		return nil, nil
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal completed snapshot: %w", err)
	}

	return data, nil
}
