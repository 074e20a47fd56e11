package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"goa.design/ensemble/agent"
	"goa.design/ensemble/blackboard"
)

// The fan-out must not leak goroutines once every agent has reported.
func TestProcessTurnLeaksNoGoroutines(t *testing.T) {
	defer goleak.VerifyNone(t)

	e := New()
	for _, name := range []string{"A", "B", "C"} {
		require.NoError(t, e.RegisterAgent(&stubAgent{
			cfg: agent.Config{Name: name},
			eval: func(context.Context, *agent.Context) (*agent.Response, error) {
				return &agent.Response{Events: []blackboard.Event{{Name: "ping"}}}, nil
			},
		}))
	}
	require.NoError(t, e.RegisterAgent(&stubAgent{
		cfg: agent.Config{Name: "Sub", TriggerTypes: []agent.TriggerType{agent.TriggerEvent},
			SubscribedEvents: []string{"ping"}},
	}))

	for i := 0; i < 5; i++ {
		turn := turnContext()
		turn.TurnCount = i
		e.ProcessTurn(context.Background(), turn)
	}
}
