package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDispatcherInvokesSubscribedHandlers(t *testing.T) {
	dispatcher := NewInMemoryDispatcher(zap.NewNop())

	var seen []string
	dispatcher.Subscribe(EventChangeApplied, func(ctx context.Context, event Event) error {
		seen = append(seen, event.EntityID)
		return nil
	})
	dispatcher.Subscribe(EventConflictDetected, func(ctx context.Context, event Event) error {
		t.Fatal("wrong event type delivered")
		return nil
	})

	require.NoError(t, dispatcher.Publish(context.Background(), Event{
		Type:     EventChangeApplied,
		EntityID: "entity-1",
	}))
	assert.Equal(t, []string{"entity-1"}, seen)
}

func TestDispatcherHandlerErrorDoesNotStopOthers(t *testing.T) {
	dispatcher := NewInMemoryDispatcher(zap.NewNop())

	var calls int
	dispatcher.Subscribe(EventChangeApplied, func(ctx context.Context, event Event) error {
		calls++
		return errors.New("handler failed")
	})
	dispatcher.Subscribe(EventChangeApplied, func(ctx context.Context, event Event) error {
		calls++
		return nil
	})

	require.NoError(t, dispatcher.Publish(context.Background(), Event{Type: EventChangeApplied}))
	assert.Equal(t, 2, calls)
}

func TestDispatcherNoSubscribers(t *testing.T) {
	dispatcher := NewInMemoryDispatcher(zap.NewNop())
	assert.NoError(t, dispatcher.Publish(context.Background(), Event{Type: EventBulkCompleted}))
}
