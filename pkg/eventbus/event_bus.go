// Package eventbus publishes workflow lifecycle events over watermill.
package eventbus

import (
	"context"

	"github.com/prismpsa/prism-workflow/pkg/events"
)

// Event is anything carrying a lifecycle event type; see package events.
type Event interface {
	GetType() events.EventType
}

// EventPublisher is what the instance manager and the sweeper emit through.
type EventPublisher interface {
	// Publish sends an event; key groups events of the same instance on one partition.
	Publish(ctx context.Context, key string, event Event) error
}

// EventHandler receives a pointer to the decoded event, e.g. *events.StepActivated.
type EventHandler func(ctx context.Context, event any) error

// EventSubscriber feeds notification consumers.
type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	// Subscribe dispatches messages in the background until ctx is done.
	Subscribe(ctx context.Context) error
}

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
}

// Discard drops every event. Components default to it when no bus is configured.
var Discard EventPublisher = discard{}

type discard struct{}

func (discard) Publish(context.Context, string, Event) error { return nil }

// OrDiscard returns publisher, or Discard when it is nil.
func OrDiscard(publisher EventPublisher) EventPublisher {
	if publisher == nil {
		return Discard
	}

	return publisher
}
