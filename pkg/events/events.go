// Package events defines the lifecycle notifications published by the workflow engine.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic carries every workflow lifecycle event.
const Topic = "prism.workflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Instance lifecycle events.
	InstanceStartedEvent   EventType = "workflow.instance.started"
	InstanceCompletedEvent EventType = "workflow.instance.completed"
	InstanceCancelledEvent EventType = "workflow.instance.cancelled"

	// Step frontier events.
	StepActivatedEvent  EventType = "workflow.step.activated"
	StepWaitingEvent    EventType = "workflow.step.waiting"
	StepCompletedEvent  EventType = "workflow.step.completed"
	StepUnassignedEvent EventType = "workflow.step.unassigned"
	StepStaleEvent      EventType = "workflow.step.stale"
)

// EventTypes lists every event type the engine publishes.
func EventTypes() []EventType {
	return []EventType{
		InstanceStartedEvent,
		InstanceCompletedEvent,
		InstanceCancelledEvent,
		StepActivatedEvent,
		StepWaitingEvent,
		StepCompletedEvent,
		StepUnassignedEvent,
		StepStaleEvent,
	}
}

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	InstanceID string         `json:"instance_id"`
	ProjectID  string         `json:"project_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// NewBaseEvent stamps a new event of the given type.
func NewBaseEvent(eventType EventType, instanceID, projectID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		InstanceID: instanceID,
		ProjectID:  projectID,
	}
}

type InstanceStarted struct {
	BaseEvent

	TemplateID    string `json:"template_id"`
	CurrentNodeID string `json:"current_node_id"`
}

func (e InstanceStarted) GetType() EventType {
	return InstanceStartedEvent
}

type InstanceCompleted struct {
	BaseEvent

	EndNodeID   string    `json:"end_node_id"`
	CompletedAt time.Time `json:"completed_at"`
}

func (e InstanceCompleted) GetType() EventType {
	return InstanceCompletedEvent
}

type InstanceCancelled struct {
	BaseEvent

	CancelledAt time.Time `json:"cancelled_at"`
	ClosedSteps int       `json:"closed_steps"`
}

func (e InstanceCancelled) GetType() EventType {
	return InstanceCancelledEvent
}

type StepActivated struct {
	BaseEvent

	StepID         string `json:"step_id"`
	NodeID         string `json:"node_id"`
	BranchID       string `json:"branch_id"`
	AssignedUserID string `json:"assigned_user_id,omitempty"`
	RouteLabel     string `json:"route_label,omitempty"`
}

func (e StepActivated) GetType() EventType {
	return StepActivatedEvent
}

type StepWaiting struct {
	BaseEvent

	StepID   string `json:"step_id"`
	NodeID   string `json:"node_id"`
	BranchID string `json:"branch_id"`
}

func (e StepWaiting) GetType() EventType {
	return StepWaitingEvent
}

type StepCompleted struct {
	BaseEvent

	StepID   string `json:"step_id"`
	NodeID   string `json:"node_id"`
	Decision string `json:"decision,omitempty"`
}

func (e StepCompleted) GetType() EventType {
	return StepCompletedEvent
}

type StepUnassigned struct {
	BaseEvent

	StepID string `json:"step_id"`
	NodeID string `json:"node_id"`
}

func (e StepUnassigned) GetType() EventType {
	return StepUnassignedEvent
}

type StepStale struct {
	BaseEvent

	StepID    string    `json:"step_id"`
	NodeID    string    `json:"node_id"`
	OpenSince time.Time `json:"open_since"`
}

func (e StepStale) GetType() EventType {
	return StepStaleEvent
}
