package hooks

import (
	"time"

	"goa.design/ensemble/agent"
)

// EventType enumerates the lifecycle events broadcast on the hook bus.
type EventType string

const (
	// TurnStarted fires when ProcessTurn begins, after the engine has
	// stamped the context but before any agent is selected.
	TurnStarted EventType = "turn_started"

	// TurnEnded fires when ProcessTurn returns, carrying the aggregate
	// response and the wall-clock duration of the turn.
	TurnEnded EventType = "turn_ended"

	// PhaseStarted fires before a phase fans out, naming the agents
	// about to run.
	PhaseStarted EventType = "phase_started"

	// PhaseEnded fires after a phase has merged, naming the events the
	// phase emitted.
	PhaseEnded EventType = "phase_ended"

	// AgentStarted fires just before an agent's Evaluate is invoked.
	AgentStarted EventType = "agent_started"

	// AgentFinished fires when Evaluate returns successfully, carrying
	// the response and the run duration.
	AgentFinished EventType = "agent_finished"

	// AgentFailed fires when Evaluate returns an error or panics. The
	// agent's response is discarded.
	AgentFailed EventType = "agent_failed"

	// AgentSkipped fires when an agent is not run, with the reason.
	AgentSkipped EventType = "agent_skipped"

	// ChainFailed fires when the engine itself recovers from an
	// unexpected fault during a turn.
	ChainFailed EventType = "chain_failed"
)

// Skip reasons reported by AgentSkippedEvent.
const (
	SkipNotInAllowList      = "not_in_allow_list"
	SkipTriggerTypeMismatch = "trigger_type_mismatch"
	SkipConditionsNotMet    = "conditions_not_met"
	SkipCooldownActive      = "cooldown_active"
)

type (
	// Event is the interface all hook events implement. Subscribers use
	// type switches to access event-specific fields:
	//
	//	func (s *sink) HandleEvent(ctx context.Context, evt hooks.Event) error {
	//	    switch e := evt.(type) {
	//	    case *hooks.AgentFinishedEvent:
	//	        log.Printf("%s took %v", e.AgentName, e.Duration)
	//	    case *hooks.AgentFailedEvent:
	//	        log.Printf("%s failed: %v", e.AgentName, e.Error)
	//	    }
	//	    return nil
	//	}
	Event interface {
		Type() EventType
		SessionID() string
		Timestamp() int64
	}

	// TurnStartedEvent fires when a turn begins.
	TurnStartedEvent struct {
		baseEvent
		// TriggerType says why the turn ran.
		TriggerType agent.TriggerType
		// TurnCount is the host-supplied turn number.
		TurnCount int
	}

	// TurnEndedEvent fires when a turn completes.
	TurnEndedEvent struct {
		baseEvent
		// Response is the aggregate turn response.
		Response *agent.Response
		// Duration is the wall-clock time the turn took.
		Duration time.Duration
	}

	// PhaseStartedEvent fires before a phase fans out.
	PhaseStartedEvent struct {
		baseEvent
		// Phase is 1 for the primary fan-out, 2 for event subscribers.
		Phase int
		// AgentNames lists the agents selected for the phase.
		AgentNames []string
	}

	// PhaseEndedEvent fires after a phase has merged.
	PhaseEndedEvent struct {
		baseEvent
		Phase int
		// EventNames lists the distinct names of events the phase
		// emitted, in first-emission order.
		EventNames []string
	}

	// AgentStartedEvent fires before an agent runs.
	AgentStartedEvent struct {
		baseEvent
		AgentID   string
		AgentName string
		Phase     int
	}

	// AgentFinishedEvent fires after an agent returns successfully.
	AgentFinishedEvent struct {
		baseEvent
		AgentID   string
		AgentName string
		// Response is the agent's contribution. Nil when the agent
		// declined to respond.
		Response *agent.Response
		Duration time.Duration
	}

	// AgentFailedEvent fires when an agent's Evaluate errors or panics.
	AgentFailedEvent struct {
		baseEvent
		AgentID   string
		AgentName string
		Error     error
	}

	// AgentSkippedEvent fires when an agent is excluded from a phase or
	// declined by its lifecycle checks.
	AgentSkippedEvent struct {
		baseEvent
		AgentID   string
		AgentName string
		// Reason is one of the Skip* constants.
		Reason string
	}

	// ChainFailedEvent fires when the engine recovers from an internal
	// fault. The turn still returns whatever merged before the fault.
	ChainFailedEvent struct {
		baseEvent
		Error error
	}

	// baseEvent holds the fields shared by all event types. Embedded
	// anonymously in each concrete event.
	baseEvent struct {
		eventType EventType
		sessionID string
		timestamp int64
	}
)

// Type returns the event's type tag.
func (e baseEvent) Type() EventType { return e.eventType }

// SessionID returns the session the event belongs to.
func (e baseEvent) SessionID() string { return e.sessionID }

// Timestamp returns the event creation time in Unix nanoseconds.
func (e baseEvent) Timestamp() int64 { return e.timestamp }

func newBaseEvent(t EventType, sessionID string) baseEvent {
	return baseEvent{eventType: t, sessionID: sessionID, timestamp: time.Now().UnixNano()}
}

// NewTurnStartedEvent constructs a TurnStartedEvent.
func NewTurnStartedEvent(sessionID string, tt agent.TriggerType, turnCount int) *TurnStartedEvent {
	return &TurnStartedEvent{
		baseEvent:   newBaseEvent(TurnStarted, sessionID),
		TriggerType: tt,
		TurnCount:   turnCount,
	}
}

// NewTurnEndedEvent constructs a TurnEndedEvent.
func NewTurnEndedEvent(sessionID string, resp *agent.Response, d time.Duration) *TurnEndedEvent {
	return &TurnEndedEvent{
		baseEvent: newBaseEvent(TurnEnded, sessionID),
		Response:  resp,
		Duration:  d,
	}
}

// NewPhaseStartedEvent constructs a PhaseStartedEvent.
func NewPhaseStartedEvent(sessionID string, phase int, agentNames []string) *PhaseStartedEvent {
	return &PhaseStartedEvent{
		baseEvent:  newBaseEvent(PhaseStarted, sessionID),
		Phase:      phase,
		AgentNames: agentNames,
	}
}

// NewPhaseEndedEvent constructs a PhaseEndedEvent.
func NewPhaseEndedEvent(sessionID string, phase int, eventNames []string) *PhaseEndedEvent {
	return &PhaseEndedEvent{
		baseEvent:  newBaseEvent(PhaseEnded, sessionID),
		Phase:      phase,
		EventNames: eventNames,
	}
}

// NewAgentStartedEvent constructs an AgentStartedEvent.
func NewAgentStartedEvent(sessionID, agentID, agentName string, phase int) *AgentStartedEvent {
	return &AgentStartedEvent{
		baseEvent: newBaseEvent(AgentStarted, sessionID),
		AgentID:   agentID,
		AgentName: agentName,
		Phase:     phase,
	}
}

// NewAgentFinishedEvent constructs an AgentFinishedEvent.
func NewAgentFinishedEvent(sessionID, agentID, agentName string, resp *agent.Response, d time.Duration) *AgentFinishedEvent {
	return &AgentFinishedEvent{
		baseEvent: newBaseEvent(AgentFinished, sessionID),
		AgentID:   agentID,
		AgentName: agentName,
		Response:  resp,
		Duration:  d,
	}
}

// NewAgentFailedEvent constructs an AgentFailedEvent.
func NewAgentFailedEvent(sessionID, agentID, agentName string, err error) *AgentFailedEvent {
	return &AgentFailedEvent{
		baseEvent: newBaseEvent(AgentFailed, sessionID),
		AgentID:   agentID,
		AgentName: agentName,
		Error:     err,
	}
}

// NewAgentSkippedEvent constructs an AgentSkippedEvent.
func NewAgentSkippedEvent(sessionID, agentID, agentName, reason string) *AgentSkippedEvent {
	return &AgentSkippedEvent{
		baseEvent: newBaseEvent(AgentSkipped, sessionID),
		AgentID:   agentID,
		AgentName: agentName,
		Reason:    reason,
	}
}

// NewChainFailedEvent constructs a ChainFailedEvent.
func NewChainFailedEvent(sessionID string, err error) *ChainFailedEvent {
	return &ChainFailedEvent{
		baseEvent: newBaseEvent(ChainFailed, sessionID),
		Error:     err,
	}
}
