package hooks

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/ensemble/agent"
)

func TestBusPublishFanOut(t *testing.T) {
	bus := NewBus()
	ctx := context.Background()

	var received []EventType
	sub := SubscriberFunc(func(_ context.Context, event Event) error {
		received = append(received, event.Type())
		return nil
	})
	_, err := bus.Register(sub)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, NewTurnStartedEvent("s1", agent.TriggerTurnBased, 1)))
	require.NoError(t, bus.Publish(ctx, NewTurnEndedEvent("s1", &agent.Response{}, 0)))

	assert.Equal(t, []EventType{TurnStarted, TurnEnded}, received)
}

func TestBusRegisterNil(t *testing.T) {
	bus := NewBus()
	_, err := bus.Register(nil)
	assert.Error(t, err)
}

func TestBusStopsAtFirstSubscriberError(t *testing.T) {
	bus := NewBus()
	boom := errors.New("boom")

	_, err := bus.Register(SubscriberFunc(func(context.Context, Event) error { return boom }))
	require.NoError(t, err)

	err = bus.Publish(context.Background(), NewChainFailedEvent("s1", errors.New("fault")))
	assert.ErrorIs(t, err, boom)
}

func TestSubscriptionClose(t *testing.T) {
	bus := NewBus()
	ctx := context.Background()

	count := 0
	sub, err := bus.Register(SubscriberFunc(func(context.Context, Event) error {
		count++
		return nil
	}))
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, NewPhaseStartedEvent("s1", 1, []string{"coach"})))
	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close()) // idempotent
	require.NoError(t, bus.Publish(ctx, NewPhaseEndedEvent("s1", 1, nil)))

	assert.Equal(t, 1, count)
}

func TestEventAccessors(t *testing.T) {
	evt := NewAgentSkippedEvent("s1", "coach", "Coach", SkipConditionsNotMet)

	assert.Equal(t, AgentSkipped, evt.Type())
	assert.Equal(t, "s1", evt.SessionID())
	assert.NotZero(t, evt.Timestamp())
	assert.Equal(t, SkipConditionsNotMet, evt.Reason)
}
