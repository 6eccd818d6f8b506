// Package sweeper periodically reports open steps that need an operator: active steps nobody
// is assigned to and steps that have been open for too long.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prismpsa/prism-workflow/pkg/eventbus"
	"github.com/prismpsa/prism-workflow/pkg/events"
	"github.com/prismpsa/prism-workflow/pkg/metrics"
	"github.com/prismpsa/prism-workflow/pkg/models"
	"github.com/prismpsa/prism-workflow/pkg/persistence"
	"github.com/robfig/cron/v3"
)

const DefaultSchedule = "*/5 * * * *"

const DefaultStaleAfter = 72 * time.Hour

var ErrAlreadyStarted = errors.New("sweeper already started")

// StepLister lists open steps; workflow.Manager satisfies it.
type StepLister interface {
	OpenSteps(ctx context.Context, filter persistence.StepFilter) ([]*models.StepView, error)
}

// Report is the outcome of one sweep.
type Report struct {
	Unassigned []*models.StepView
	Stale      []*models.StepView
}

type Sweeper struct {
	steps      StepLister
	publisher  eventbus.EventPublisher
	metrics    *metrics.Metrics
	logger     *slog.Logger
	staleAfter time.Duration
	now        func() time.Time

	mutex sync.Mutex
	cron  *cron.Cron
}

type Option func(*Sweeper)

func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(s *Sweeper) {
		s.publisher = eventbus.OrDiscard(publisher)
	}
}

func WithMetrics(metrics *metrics.Metrics) Option {
	return func(s *Sweeper) {
		s.metrics = metrics
	}
}

func WithStaleAfter(staleAfter time.Duration) Option {
	return func(s *Sweeper) {
		s.staleAfter = staleAfter
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) {
		s.now = now
	}
}

func New(steps StepLister, logger *slog.Logger, opts ...Option) *Sweeper {
	s := &Sweeper{
		steps:      steps,
		publisher:  eventbus.Discard,
		logger:     logger.With("module", "sweeper"),
		staleAfter: DefaultStaleAfter,
		now:        func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Sweep lists unassigned and stale steps, publishes one event per step and updates the gauges.
func (s *Sweeper) Sweep(ctx context.Context) (*Report, error) {
	unassigned, err := s.steps.OpenSteps(ctx, persistence.StepFilter{Unassigned: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list unassigned steps: %w", err)
	}

	cutoff := s.now().Add(-s.staleAfter)

	stale, err := s.steps.OpenSteps(ctx, persistence.StepFilter{CreatedBefore: &cutoff})
	if err != nil {
		return nil, fmt.Errorf("failed to list stale steps: %w", err)
	}

	report := &Report{
		Unassigned: make([]*models.StepView, 0, len(unassigned)),
		Stale:      stale,
	}

	// Waiting steps are blocked on a join, nobody can act on them yet.
	for _, step := range unassigned {
		if step.Status == models.StepStatusActive {
			report.Unassigned = append(report.Unassigned, step)
		}
	}

	for _, step := range report.Unassigned {
		s.publish(ctx, step, events.StepUnassigned{
			BaseEvent: events.NewBaseEvent(events.StepUnassignedEvent, step.WorkflowInstanceID, step.ProjectID),
			StepID:    step.ID,
			NodeID:    step.NodeID,
		})
	}

	for _, step := range report.Stale {
		s.publish(ctx, step, events.StepStale{
			BaseEvent: events.NewBaseEvent(events.StepStaleEvent, step.WorkflowInstanceID, step.ProjectID),
			StepID:    step.ID,
			NodeID:    step.NodeID,
			OpenSince: step.CreatedAt,
		})
	}

	s.metrics.SetSweepResult(len(report.Unassigned), len(report.Stale))

	s.logger.InfoContext(ctx, "Sweep finished",
		"unassigned_steps", len(report.Unassigned),
		"stale_steps", len(report.Stale))

	return report, nil
}

func (s *Sweeper) publish(ctx context.Context, step *models.StepView, event eventbus.Event) {
	if err := s.publisher.Publish(ctx, step.WorkflowInstanceID, event); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish sweep event",
			"instance_id", step.WorkflowInstanceID,
			"step_id", step.ID,
			"event_type", event.GetType(),
			"error", err)
	}
}

// Start runs Sweep on a standard five-field cron schedule until Stop is called or ctx is done.
func (s *Sweeper) Start(ctx context.Context, schedule string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.cron != nil {
		return ErrAlreadyStarted
	}

	c := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	entryID, err := c.AddFunc(schedule, func() {
		if _, err := s.Sweep(ctx); err != nil {
			s.logger.ErrorContext(ctx, "Sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid sweep schedule '%s': %w", schedule, err)
	}

	c.Start()
	s.cron = c

	s.logger.InfoContext(ctx, "Sweeper started", "schedule", schedule, "entry_id", entryID, "stale_after", s.staleAfter)

	return nil
}

// Stop halts the schedule and waits for a running sweep to return.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mutex.Lock()
	c := s.cron
	s.cron = nil
	s.mutex.Unlock()

	if c == nil {
		return nil
	}

	select {
	case <-c.Stop().Done():
		s.logger.InfoContext(ctx, "Sweeper stopped")

		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
