package eventbus

import (
	"context"
	"testing"

	"github.com/prismpsa/prism-workflow/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrDiscard(t *testing.T) {
	publisher := OrDiscard(nil)
	assert.Equal(t, Discard, publisher)

	event := events.StepStale{BaseEvent: events.NewBaseEvent(events.StepStaleEvent, "i-1", "p-1")}
	require.NoError(t, publisher.Publish(context.Background(), "i-1", event))

	bus := NewWatermillEventBus(nil, nil)
	assert.Same(t, bus, OrDiscard(bus))
}
