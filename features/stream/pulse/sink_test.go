package pulse

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	streamopts "goa.design/pulse/streaming/options"

	"goa.design/ensemble/agent"
	clientspulse "goa.design/ensemble/features/stream/pulse/clients/pulse"
	"goa.design/ensemble/hooks"
)

type fakeClient struct {
	lastName string
	stream   clientspulse.Stream
	err      error
	closed   bool
}

func (f *fakeClient) Stream(name string, _ ...streamopts.Stream) (clientspulse.Stream, error) {
	f.lastName = name
	return f.stream, f.err
}

func (f *fakeClient) Close(context.Context) error {
	f.closed = true
	return nil
}

type fakeStream struct {
	lastEvent   string
	lastPayload []byte
	err         error
}

func (f *fakeStream) Add(_ context.Context, event string, payload []byte) (string, error) {
	f.lastEvent = event
	f.lastPayload = payload
	if f.err != nil {
		return "", f.err
	}
	return "1-0", nil
}

func (f *fakeStream) NewSink(context.Context, string, ...streamopts.Sink) (clientspulse.Sink, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeStream) Destroy(context.Context) error { return nil }

func TestNewSinkRequiresClient(t *testing.T) {
	_, err := NewSink(Options{})
	require.Error(t, err)
}

func TestHandleEventPublishesEnvelope(t *testing.T) {
	str := &fakeStream{}
	cli := &fakeClient{stream: str}
	sink, err := NewSink(Options{Client: cli})
	require.NoError(t, err)

	evt := hooks.NewAgentFinishedEvent("sess-1", "coach", "Coach",
		&agent.Response{Insights: []agent.Insight{{Content: "hi"}}}, 25*time.Millisecond)
	require.NoError(t, sink.HandleEvent(context.Background(), evt))

	assert.Equal(t, "session/sess-1", cli.lastName)
	assert.Equal(t, "agent_finished", str.lastEvent)

	var env Envelope
	require.NoError(t, json.Unmarshal(str.lastPayload, &env))
	assert.Equal(t, "agent_finished", env.Type)
	assert.Equal(t, "sess-1", env.SessionID)
	assert.Equal(t, "coach", env.Payload["agent_id"])
	assert.Equal(t, true, env.Payload["responded"])
	assert.EqualValues(t, 1, env.Payload["insights"])
	assert.EqualValues(t, 25, env.Payload["duration_ms"])
}

func TestHandleEventMissingSessionID(t *testing.T) {
	sink, err := NewSink(Options{Client: &fakeClient{stream: &fakeStream{}}})
	require.NoError(t, err)

	evt := hooks.NewTurnStartedEvent("", agent.TriggerTurnBased, 1)
	require.Error(t, sink.HandleEvent(context.Background(), evt))
}

func TestHandleEventCustomStreamID(t *testing.T) {
	str := &fakeStream{}
	cli := &fakeClient{stream: str}
	sink, err := NewSink(Options{
		Client:   cli,
		StreamID: func(hooks.Event) (string, error) { return "dashboard", nil },
	})
	require.NoError(t, err)

	evt := hooks.NewTurnEndedEvent("sess-1", &agent.Response{}, time.Second)
	require.NoError(t, sink.HandleEvent(context.Background(), evt))
	assert.Equal(t, "dashboard", cli.lastName)
}

func TestHandleEventPropagatesAddErrors(t *testing.T) {
	str := &fakeStream{err: errors.New("redis down")}
	sink, err := NewSink(Options{Client: &fakeClient{stream: str}})
	require.NoError(t, err)

	evt := hooks.NewAgentSkippedEvent("sess-1", "coach", "Coach", hooks.SkipCooldownActive)
	require.Error(t, sink.HandleEvent(context.Background(), evt))
}

func TestPayloadSummaries(t *testing.T) {
	skip := payloadFor(hooks.NewAgentSkippedEvent("s", "a", "A", hooks.SkipConditionsNotMet))
	assert.Equal(t, hooks.SkipConditionsNotMet, skip["reason"])

	failed := payloadFor(hooks.NewAgentFailedEvent("s", "a", "A", errors.New("boom")))
	assert.Equal(t, "boom", failed["error"])

	phase := payloadFor(hooks.NewPhaseStartedEvent("s", 2, []string{"A", "B"}))
	assert.Equal(t, 2, phase["phase"])

	chain := payloadFor(hooks.NewChainFailedEvent("s", nil))
	assert.Equal(t, "", chain["error"])
}

func TestClose(t *testing.T) {
	cli := &fakeClient{stream: &fakeStream{}}
	sink, err := NewSink(Options{Client: cli})
	require.NoError(t, err)
	require.NoError(t, sink.Close(context.Background()))
	assert.True(t, cli.closed)
}
