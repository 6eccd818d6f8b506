// Package workflow runs workflow instances: it validates templates, starts instances from
// snapshots, advances their step frontier and records their history.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/prismpsa/prism-workflow/pkg/eventbus"
	"github.com/prismpsa/prism-workflow/pkg/lock"
	"github.com/prismpsa/prism-workflow/pkg/metrics"
	"github.com/prismpsa/prism-workflow/pkg/models"
	"github.com/prismpsa/prism-workflow/pkg/otelhelper"
	"github.com/prismpsa/prism-workflow/pkg/persistence"
	"github.com/prismpsa/prism-workflow/pkg/registry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// CancelledDecision is recorded on the history entries written when an instance is cancelled.
var CancelledDecision = models.Decision{Kind: models.DecisionCustom, Label: "cancelled"}

type Manager struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	resolver    *Resolver
	locker      lock.Locker
	publisher   eventbus.EventPublisher
	tracer      trace.Tracer
	metrics     *metrics.Metrics
	now         func() time.Time
	newID       func() string
}

type Option func(*Manager)

// WithLocker replaces the in-process locker, e.g. with lock.Redis when several processes share a store.
func WithLocker(locker lock.Locker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(m *Manager) {
		m.publisher = eventbus.OrDiscard(publisher)
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(m *Manager) {
		m.tracer = tracer
	}
}

func WithMetrics(metrics *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

func WithIDGenerator(newID func() string) Option {
	return func(m *Manager) {
		m.newID = newID
	}
}

func NewManager(
	logger *slog.Logger,
	persistence persistence.Persistence,
	registry *registry.Registry,
	directory Directory,
	opts ...Option,
) *Manager {
	m := &Manager{
		logger:      logger.With("module", "workflow_manager"),
		persistence: persistence,
		registry:    registry,
		resolver:    NewResolver(directory),
		locker:      lock.NewMemory(),
		publisher:   eventbus.Discard,
		tracer:      otelhelper.NoopTracer(),
		now:         func() time.Time { return time.Now().UTC() },
		newID:       func() string { return uuid.Must(uuid.NewV7()).String() },
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

func (m *Manager) newScheduler(ctx context.Context, op string, state *models.InstanceState) *scheduler {
	return &scheduler{
		ctx:      ctx,
		op:       op,
		graph:    snapshotGraph(state.Instance.StartedSnapshot),
		registry: m.registry,
		resolver: m.resolver,
		state:    state,
		now:      m.now(),
		newID:    m.newID,
		result:   &AdvanceResult{Instance: state.Instance},
	}
}

// Validate checks a template graph against the registered node types.
func (m *Manager) Validate(template *models.WorkflowTemplate) error {
	return Validate(m.registry, template.Nodes, template.Connections)
}

// Start creates an instance of a template for a project and routes it past its start node.
func (m *Manager) Start(ctx context.Context, projectID, templateID string) (state *models.InstanceState, err error) {
	ctx, span := otelhelper.StartSpan(ctx, m.tracer, "workflow.start",
		attribute.String(otelhelper.ProjectIDKey, projectID),
		attribute.String(otelhelper.TemplateIDKey, templateID),
	)
	defer span.End()

	began := time.Now()

	defer func() {
		otelhelper.SetError(span, err)
		m.metrics.ObserveOperation("start", began, err)
	}()

	template, err := m.persistence.TemplateRepository().GetByID(ctx, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to get template %s: %w", templateID, err)
	}

	if template == nil || template.IsDeleted() {
		return nil, newError("start", "", "", fmt.Errorf("%w: %s", ErrTemplateNotFound, templateID))
	}

	if !template.Active {
		return nil, newError("start", "", "", fmt.Errorf("%w: template %s is inactive", ErrTemplateInvalid, templateID))
	}

	if err := m.Validate(template); err != nil {
		return nil, newError("start", "", "", err)
	}

	now := m.now()
	snapshot := template.Snapshot(now)

	startNode, err := snapshotGraph(snapshot).start()
	if err != nil {
		return nil, newError("start", "", "", err)
	}

	state = &models.InstanceState{
		Instance: &models.WorkflowInstance{
			ID:                 m.newID(),
			ProjectID:          projectID,
			WorkflowTemplateID: template.ID,
			Status:             models.InstanceStatusActive,
			CurrentNodeID:      startNode.ID,
			StartedSnapshot:    snapshot,
			StartedAt:          now,
			Version:            1,
		},
	}

	span.SetAttributes(attribute.String(otelhelper.InstanceIDKey, state.Instance.ID))

	sched := m.newScheduler(ctx, "start", state)
	if err := sched.start(); err != nil {
		return nil, err
	}

	if err := m.persistence.InstanceRepository().Create(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to create instance: %w", err)
	}

	m.logger.InfoContext(ctx, "Workflow instance started",
		"instance_id", state.Instance.ID,
		"project_id", projectID,
		"template_id", templateID,
		"open_steps", len(state.OpenSteps()))

	m.metrics.InstanceStarted()
	m.publish(ctx, state.Instance, eventsForStart(state.Instance)...)
	m.publishResult(ctx, sched.result)

	return state, nil
}

// AdvanceRequest completes one active step.
type AdvanceRequest struct {
	InstanceID string `json:"instance_id" validate:"required"`
	StepID     string `json:"step_id"     validate:"required"`
	// Decision is "approved", "rejected", "needs_changes" or a custom route label. Blank means none.
	Decision string `json:"decision,omitempty"`
}

// Advance completes an active step and moves the instance forward.
func (m *Manager) Advance(ctx context.Context, req AdvanceRequest) (result *AdvanceResult, err error) {
	ctx, span := otelhelper.StartSpan(ctx, m.tracer, "workflow.advance",
		attribute.String(otelhelper.InstanceIDKey, req.InstanceID),
		attribute.String(otelhelper.StepIDKey, req.StepID),
		attribute.String(otelhelper.DecisionKey, req.Decision),
	)
	defer span.End()

	began := time.Now()

	defer func() {
		otelhelper.SetError(span, err)
		m.metrics.ObserveOperation("advance", began, err)
	}()

	var decision *models.Decision
	if parsed, ok := models.ParseDecision(req.Decision); ok {
		decision = &parsed
	}

	err = m.mutate(ctx, "advance", req.InstanceID, func(state *models.InstanceState) error {
		sched := m.newScheduler(ctx, "advance", state)
		if err := sched.advance(req.StepID, decision); err != nil {
			return err
		}

		result = sched.result

		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.InfoContext(ctx, "Workflow step advanced",
		"instance_id", req.InstanceID,
		"step_id", req.StepID,
		"decision", req.Decision,
		"new_steps", len(result.NewSteps),
		"waiting", len(result.Waiting),
		"completed", result.Completed)

	m.publishResult(ctx, result)

	return result, nil
}

// Cancel stops an active instance and closes its open steps.
func (m *Manager) Cancel(ctx context.Context, instanceID string) (instance *models.WorkflowInstance, err error) {
	ctx, span := otelhelper.StartSpan(ctx, m.tracer, "workflow.cancel",
		attribute.String(otelhelper.InstanceIDKey, instanceID),
	)
	defer span.End()

	began := time.Now()

	defer func() {
		otelhelper.SetError(span, err)
		m.metrics.ObserveOperation("cancel", began, err)
	}()

	var closed []*models.ActiveStep

	err = m.mutate(ctx, "cancel", instanceID, func(state *models.InstanceState) error {
		if state.Instance.Status != models.InstanceStatusActive {
			return fmt.Errorf("%w: status is %s", ErrInstanceNotActive, state.Instance.Status)
		}

		sched := m.newScheduler(ctx, "cancel", state)
		decision := CancelledDecision

		for _, step := range state.OpenSteps() {
			sched.closeStep(step, &decision)
			sched.appendHistory(step.NodeID, nil, &decision)
		}

		now := sched.now
		state.Instance.Status = models.InstanceStatusCancelled
		state.Instance.CancelledAt = &now

		instance = state.Instance
		closed = sched.result.Closed

		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.InfoContext(ctx, "Workflow instance cancelled", "instance_id", instanceID, "closed_steps", len(closed))

	m.metrics.InstanceFinished(string(models.InstanceStatusCancelled))
	m.metrics.StepTransition(string(models.StepStatusCompleted), len(closed))
	m.publish(ctx, instance, eventsForCancel(instance, closed)...)

	return instance, nil
}

// ReassignRequest hands an open step to another user.
type ReassignRequest struct {
	InstanceID string `json:"instance_id" validate:"required"`
	StepID     string `json:"step_id"     validate:"required"`
	UserID     string `json:"user_id"     validate:"required"`
}

// Reassign sets the assignee of an open step and records the node assignment.
func (m *Manager) Reassign(ctx context.Context, req ReassignRequest) (step *models.ActiveStep, err error) {
	ctx, span := otelhelper.StartSpan(ctx, m.tracer, "workflow.reassign",
		attribute.String(otelhelper.InstanceIDKey, req.InstanceID),
		attribute.String(otelhelper.StepIDKey, req.StepID),
		attribute.String(otelhelper.UserIDKey, req.UserID),
	)
	defer span.End()

	defer func() { otelhelper.SetError(span, err) }()

	var instance *models.WorkflowInstance

	err = m.mutate(ctx, "reassign", req.InstanceID, func(state *models.InstanceState) error {
		if state.Instance.Status != models.InstanceStatusActive {
			return fmt.Errorf("%w: status is %s", ErrInstanceNotActive, state.Instance.Status)
		}

		found, ok := state.StepByID(req.StepID)
		if !ok || !found.Status.IsOpen() {
			return fmt.Errorf("%w: %s", ErrStepNotFound, req.StepID)
		}

		sched := m.newScheduler(ctx, "reassign", state)
		sched.assign(found, req.UserID)

		step = found
		instance = state.Instance

		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.InfoContext(ctx, "Workflow step reassigned", "instance_id", req.InstanceID, "step_id", req.StepID, "user_id", req.UserID)

	if step.Status == models.StepStatusActive {
		m.publish(ctx, instance, stepActivated(instance, step))
	}

	return step, nil
}

// Complete writes the completed snapshot of a completed instance. It is a no-op when the
// snapshot already exists.
func (m *Manager) Complete(ctx context.Context, instanceID string) (*models.CompletedSnapshot, error) {
	current, err := m.State(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	if current.Instance.CompletedSnapshot != nil {
		return current.Instance.CompletedSnapshot, nil
	}

	var snapshot *models.CompletedSnapshot

	err = m.mutate(ctx, "complete", instanceID, func(state *models.InstanceState) error {
		if err := m.resolver.completeInstance(ctx, state, m.now()); err != nil {
			return err
		}

		snapshot = state.Instance.CompletedSnapshot

		return nil
	})
	if err != nil {
		return nil, err
	}

	return snapshot, nil
}

// State returns the aggregate of an instance without taking its lock.
func (m *Manager) State(ctx context.Context, instanceID string) (*models.InstanceState, error) {
	state, err := m.persistence.InstanceRepository().GetByID(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get instance %s: %w", instanceID, err)
	}

	if state == nil {
		return nil, newError("state", instanceID, "", ErrInstanceNotFound)
	}

	return state, nil
}

// OpenSteps lists active and waiting steps across instances.
func (m *Manager) OpenSteps(ctx context.Context, filter persistence.StepFilter) ([]*models.StepView, error) {
	return m.persistence.InstanceRepository().ListOpenSteps(ctx, filter)
}

// ProjectInstances lists every instance of a project.
func (m *Manager) ProjectInstances(ctx context.Context, projectID string) ([]*models.WorkflowInstance, error) {
	return m.persistence.InstanceRepository().ListByProject(ctx, projectID)
}

// ProjectParticipants returns the distinct users assigned in any instance of a project.
func (m *Manager) ProjectParticipants(ctx context.Context, projectID string) ([]string, error) {
	instances, err := m.ProjectInstances(ctx, projectID)
	if err != nil {
		return nil, err
	}

	participants := make([]string, 0)

	for _, instance := range instances {
		state, err := m.State(ctx, instance.ID)
		if err != nil {
			return nil, err
		}

		for _, userID := range state.Participants() {
			if !slices.Contains(participants, userID) {
				participants = append(participants, userID)
			}
		}
	}

	slices.Sort(participants)

	return participants, nil
}

// mutate runs fn under the instance lock inside one atomic repository update.
func (m *Manager) mutate(ctx context.Context, op, instanceID string, fn persistence.UpdateFunc) error {
	release, err := m.locker.Lock(ctx, lock.InstanceKey(instanceID))
	if err != nil {
		return newError(op, instanceID, "", err)
	}

	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			m.logger.WarnContext(ctx, "Failed to release instance lock", "instance_id", instanceID, "error", err)
		}
	}()

	err = m.persistence.InstanceRepository().Update(ctx, instanceID, fn)
	if err == nil {
		return nil
	}

	if persistence.IsInstanceNotFound(err) {
		return newError(op, instanceID, "", ErrInstanceNotFound)
	}

	var wfErr *Error
	if errors.As(err, &wfErr) {
		return wfErr
	}

	return newError(op, instanceID, "", err)
}
