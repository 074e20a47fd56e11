package agent

import (
	"goa.design/ensemble/blackboard"
)

// InsightType classifies an insight for host-side rendering.
type InsightType string

const (
	InsightSuggestion  InsightType = "suggestion"
	InsightWarning     InsightType = "warning"
	InsightOpportunity InsightType = "opportunity"
	InsightFact        InsightType = "fact"
	InsightPraise      InsightType = "praise"
	InsightError       InsightType = "error"
)

// DefaultInsightExpiry is the display lifetime in seconds applied by
// NewInsight.
const DefaultInsightExpiry = 15

type (
	// TranscriptSegment is a single piece of speech from the
	// conversation. Immutable once appended.
	TranscriptSegment struct {
		// Speaker identifies who spoke, e.g. "USER".
		Speaker string `json:"speaker"`
		// Text is the transcribed content.
		Text string `json:"text"`
		// Timestamp is seconds since session start.
		Timestamp float64 `json:"timestamp"`
		// IsFinal marks segments the transcriber will not revise.
		IsFinal bool `json:"is_final"`
	}

	// Insight is a single piece of user-visible advice produced by an
	// agent.
	Insight struct {
		AgentID   string      `json:"agent_id"`
		AgentName string      `json:"agent_name"`
		Type      InsightType `json:"type"`
		// Content is the advice text.
		Content string `json:"content"`
		// Confidence is in [0, 1].
		Confidence float64 `json:"confidence"`
		// Expiry is how long the host should display the insight, in
		// seconds.
		Expiry int `json:"expiry"`
		// ActionLabel is optional button text.
		ActionLabel string `json:"action_label,omitempty"`
		// Metadata carries rendering hints such as zone or color.
		Metadata map[string]any `json:"metadata,omitempty"`
	}

	// Context is the read view handed to each agent invocation. Board is
	// a snapshot isolated to the phase; mutating it has no effect on the
	// session.
	Context struct {
		SessionID string
		// RecentSegments is the sliding window of conversation.
		RecentSegments []TranscriptSegment
		// SharedState is the legacy flat view of board variables,
		// refreshed by the engine before agents run.
		SharedState map[string]any
		// RAGDocs are retrieved reference chunks, if the host uses
		// retrieval.
		RAGDocs []string
		// TriggerType and TriggerMetadata say why this turn ran. Set by
		// the engine, not the host.
		TriggerType     TriggerType
		TriggerMetadata map[string]any
		// LanguageDirective optionally pins the output language.
		LanguageDirective string
		// UserContext optionally describes the user to the agent.
		UserContext string
		// Board is the phase snapshot of the session blackboard.
		Board *blackboard.Blackboard
		// TurnCount is the current turn number, supplied by the host.
		TurnCount int
		// Phase is 1 for the primary fan-out, 2 for event subscribers.
		Phase int
		// Overrides adjusts individual agents for this turn, keyed by
		// agent ID.
		Overrides map[string]Override
	}

	// Response is an agent's contribution to a turn. All containers are
	// optional; the engine treats nil maps and slices as empty.
	Response struct {
		// Insights are surfaced to the user in merge order.
		Insights []Insight `json:"insights,omitempty"`
		// VariableUpdates are applied to the board's variables.
		VariableUpdates map[string]any `json:"variable_updates,omitempty"`
		// QueuePushes appends items to named queues in order.
		QueuePushes map[string][]any `json:"queue_pushes,omitempty"`
		// Facts are added through the board's deduplication rule.
		Facts []blackboard.Fact `json:"facts,omitempty"`
		// MemoryUpdates merge into the emitting agent's private memory.
		MemoryUpdates map[string]any `json:"memory_updates,omitempty"`
		// Events are dispatched to Phase 2 subscribers.
		Events []blackboard.Event `json:"events,omitempty"`
		// Data is a free-form sidecar for host payloads such as UI
		// actions.
		Data map[string]any `json:"data,omitempty"`
		// StateUpdates is the legacy variable map. When VariableUpdates
		// is empty the engine routes these entries to variables, except
		// for "memory_<agent_id>" map entries which land in that
		// agent's memory.
		StateUpdates map[string]any `json:"state_updates,omitempty"`
		// DebugInfo carries tracing data such as raw prompts. Never
		// serialized and never merged.
		DebugInfo map[string]any `json:"-"`
	}
)

// NewInsight builds an insight attributed to the configured agent with
// the default display expiry.
func (c Config) NewInsight(typ InsightType, content string, confidence float64) Insight {
	return Insight{
		AgentID:    c.ID,
		AgentName:  c.Name,
		Type:       typ,
		Content:    content,
		Confidence: confidence,
		Expiry:     DefaultInsightExpiry,
	}
}
