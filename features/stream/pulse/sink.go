// Package pulse exposes a hooks.Subscriber that publishes turn
// telemetry to goa.design/pulse streams. Hosts build a Redis client,
// pass it to the Pulse client, register the sink on the engine's hook
// bus, and consume the per-session streams from their dashboards.
package pulse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"goa.design/ensemble/features/stream/pulse/clients/pulse"
	"goa.design/ensemble/hooks"
)

type (
	// Options configures the telemetry sink.
	Options struct {
		// Client is the Pulse client used to publish events. Required.
		Client pulse.Client
		// StreamID derives the target Pulse stream from an event.
		// Defaults to "session/<SessionID>".
		StreamID func(hooks.Event) (string, error)
		// MarshalEnvelope overrides envelope serialization, primarily
		// for tests.
		MarshalEnvelope func(Envelope) ([]byte, error)
	}

	// Sink publishes hook events into Pulse streams. Safe for
	// concurrent HandleEvent calls.
	Sink struct {
		client  pulse.Client
		stream  func(hooks.Event) (string, error)
		marshal func(Envelope) ([]byte, error)
	}

	// Envelope is the wire form of one telemetry entry.
	Envelope struct {
		// Type is the hook event type, e.g. "agent_finished".
		Type string `json:"type"`
		// SessionID links the entry to a session.
		SessionID string `json:"session_id"`
		// Timestamp records when the event was created (UTC).
		Timestamp time.Time `json:"timestamp"`
		// Payload carries the event-specific summary.
		Payload map[string]any `json:"payload,omitempty"`
	}
)

// NewSink constructs a Pulse-backed telemetry sink.
func NewSink(opts Options) (*Sink, error) {
	if opts.Client == nil {
		return nil, errors.New("pulse client is required")
	}
	s := &Sink{
		client:  opts.Client,
		stream:  defaultStreamID,
		marshal: defaultMarshal,
	}
	if opts.StreamID != nil {
		s.stream = opts.StreamID
	}
	if opts.MarshalEnvelope != nil {
		s.marshal = opts.MarshalEnvelope
	}
	return s, nil
}

// HandleEvent publishes the event to the derived Pulse stream. It
// implements hooks.Subscriber; errors are surfaced to the engine, which
// logs them without interrupting the turn.
func (s *Sink) HandleEvent(ctx context.Context, evt hooks.Event) error {
	streamID, err := s.stream(evt)
	if err != nil {
		return err
	}
	handle, err := s.client.Stream(streamID)
	if err != nil {
		return err
	}
	env := Envelope{
		Type:      string(evt.Type()),
		SessionID: evt.SessionID(),
		Timestamp: time.Unix(0, evt.Timestamp()).UTC(),
		Payload:   payloadFor(evt),
	}
	payload, err := s.marshal(env)
	if err != nil {
		return err
	}
	_, err = handle.Add(ctx, env.Type, payload)
	return err
}

// Close releases resources owned by the sink.
func (s *Sink) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}

func defaultStreamID(evt hooks.Event) (string, error) {
	if evt.SessionID() == "" {
		return "", errors.New("hook event missing session id")
	}
	return fmt.Sprintf("session/%s", evt.SessionID()), nil
}

func defaultMarshal(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}

// payloadFor summarizes an event for dashboard consumption. Full agent
// responses stay in process; the stream carries counts and identifiers.
func payloadFor(evt hooks.Event) map[string]any {
	switch e := evt.(type) {
	case *hooks.TurnStartedEvent:
		return map[string]any{
			"trigger_type": string(e.TriggerType),
			"turn_count":   e.TurnCount,
		}
	case *hooks.TurnEndedEvent:
		p := map[string]any{"duration_ms": e.Duration.Milliseconds()}
		if e.Response != nil {
			p["insights"] = len(e.Response.Insights)
			p["events"] = len(e.Response.Events)
			p["facts"] = len(e.Response.Facts)
		}
		return p
	case *hooks.PhaseStartedEvent:
		return map[string]any{"phase": e.Phase, "agents": e.AgentNames}
	case *hooks.PhaseEndedEvent:
		return map[string]any{"phase": e.Phase, "events": e.EventNames}
	case *hooks.AgentStartedEvent:
		return map[string]any{
			"agent_id":   e.AgentID,
			"agent_name": e.AgentName,
			"phase":      e.Phase,
		}
	case *hooks.AgentFinishedEvent:
		p := map[string]any{
			"agent_id":    e.AgentID,
			"agent_name":  e.AgentName,
			"duration_ms": e.Duration.Milliseconds(),
			"responded":   e.Response != nil,
		}
		if e.Response != nil {
			p["insights"] = len(e.Response.Insights)
		}
		return p
	case *hooks.AgentFailedEvent:
		return map[string]any{
			"agent_id":   e.AgentID,
			"agent_name": e.AgentName,
			"error":      errText(e.Error),
		}
	case *hooks.AgentSkippedEvent:
		return map[string]any{
			"agent_id":   e.AgentID,
			"agent_name": e.AgentName,
			"reason":     e.Reason,
		}
	case *hooks.ChainFailedEvent:
		return map[string]any{"error": errText(e.Error)}
	default:
		return nil
	}
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
