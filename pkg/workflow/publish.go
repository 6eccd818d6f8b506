package workflow

import (
	"context"

	"github.com/prismpsa/prism-workflow/pkg/eventbus"
	"github.com/prismpsa/prism-workflow/pkg/events"
	"github.com/prismpsa/prism-workflow/pkg/models"
)

func (m *Manager) publish(ctx context.Context, instance *models.WorkflowInstance, evs ...eventbus.Event) {
	for _, event := range evs {
		if err := m.publisher.Publish(ctx, instance.ID, event); err != nil {
			m.logger.ErrorContext(ctx, "Failed to publish event",
				"instance_id", instance.ID,
				"event_type", event.GetType(),
				"error", err)
		}
	}
}

// publishResult records metrics and events for a committed scheduler result.
func (m *Manager) publishResult(ctx context.Context, result *AdvanceResult) {
	instance := result.Instance

	m.metrics.StepTransition(string(models.StepStatusActive), len(result.activated))
	m.metrics.StepTransition(string(models.StepStatusWaiting), len(result.Waiting))
	m.metrics.StepTransition(string(models.StepStatusCompleted), len(result.Closed))

	if result.Completed {
		m.metrics.InstanceFinished(string(models.InstanceStatusCompleted))
	}

	m.publish(ctx, instance, eventsForResult(result)...)
}

func eventsForStart(instance *models.WorkflowInstance) []eventbus.Event {
	return []eventbus.Event{
		events.InstanceStarted{
			BaseEvent:     events.NewBaseEvent(events.InstanceStartedEvent, instance.ID, instance.ProjectID),
			TemplateID:    instance.WorkflowTemplateID,
			CurrentNodeID: instance.CurrentNodeID,
		},
	}
}

func eventsForResult(result *AdvanceResult) []eventbus.Event {
	instance := result.Instance

	var evs []eventbus.Event

	for _, step := range result.Closed {
		completed := events.StepCompleted{
			BaseEvent: events.NewBaseEvent(events.StepCompletedEvent, instance.ID, instance.ProjectID),
			StepID:    step.ID,
			NodeID:    step.NodeID,
		}

		if decision, ok := result.decisions[step.ID]; ok {
			completed.Decision = decision.String()
		}

		evs = append(evs, completed)
	}

	for _, step := range result.activated {
		evs = append(evs, stepActivated(instance, step))
	}

	for _, step := range result.Waiting {
		evs = append(evs, events.StepWaiting{
			BaseEvent: events.NewBaseEvent(events.StepWaitingEvent, instance.ID, instance.ProjectID),
			StepID:    step.ID,
			NodeID:    step.NodeID,
			BranchID:  step.BranchID,
		})
	}

	for _, step := range result.activated {
		if step.Status == models.StepStatusActive && !step.IsAssigned() {
			evs = append(evs, events.StepUnassigned{
				BaseEvent: events.NewBaseEvent(events.StepUnassignedEvent, instance.ID, instance.ProjectID),
				StepID:    step.ID,
				NodeID:    step.NodeID,
			})
		}
	}

	if result.Completed {
		completed := events.InstanceCompleted{
			BaseEvent: events.NewBaseEvent(events.InstanceCompletedEvent, instance.ID, instance.ProjectID),
			EndNodeID: instance.CurrentNodeID,
		}

		if instance.CompletedAt != nil {
			completed.CompletedAt = *instance.CompletedAt
		}

		evs = append(evs, completed)
	}

	return evs
}

func eventsForCancel(instance *models.WorkflowInstance, closed []*models.ActiveStep) []eventbus.Event {
	cancelled := events.InstanceCancelled{
		BaseEvent:   events.NewBaseEvent(events.InstanceCancelledEvent, instance.ID, instance.ProjectID),
		ClosedSteps: len(closed),
	}

	if instance.CancelledAt != nil {
		cancelled.CancelledAt = *instance.CancelledAt
	}

	return []eventbus.Event{cancelled}
}

func stepActivated(instance *models.WorkflowInstance, step *models.ActiveStep) events.StepActivated {
	activated := events.StepActivated{
		BaseEvent:  events.NewBaseEvent(events.StepActivatedEvent, instance.ID, instance.ProjectID),
		StepID:     step.ID,
		NodeID:     step.NodeID,
		BranchID:   step.BranchID,
		RouteLabel: step.RouteLabel,
	}

	if step.AssignedUserID != nil {
		activated.AssignedUserID = *step.AssignedUserID
	}

	return activated
}
