// Package dynamic implements a declarative, model-backed agent. A
// Definition supplies the persona instructions, the transcript window
// and an output format (response schema plus a field mapping); the agent
// renders the prompt, calls the injected model client and translates the
// JSON reply into engine contributions.
package dynamic

import (
	"goa.design/ensemble/agent"
)

// DefaultContextTurns is the transcript window applied when a definition
// does not set one. Negative means the whole transcript.
const DefaultContextTurns = 6

type (
	// Definition declares a dynamic agent. Definitions typically come
	// from a roster file or a database rather than code.
	Definition struct {
		// Config is the engine-facing agent configuration.
		Config agent.Config `json:"config" yaml:"config"`

		// Instructions is the persona prompt. It is parsed as a Go text
		// template with access to .State (board variables), .Memory (the
		// agent's private memory), .UserContext, .SessionID and
		// .TurnCount.
		Instructions string `json:"instructions" yaml:"instructions"`

		// ContextTurns bounds the transcript window handed to the model.
		// Zero applies DefaultContextTurns; negative means no bound.
		ContextTurns int `json:"context_turns,omitempty" yaml:"context_turns,omitempty"`

		// Format describes the reply the model must produce and how to
		// translate it. The zero value selects DefaultFormat.
		Format Format `json:"format,omitempty" yaml:"format,omitempty"`
	}

	// Format couples the JSON instruction given to the model with the
	// schema used to validate replies and the mapping that routes reply
	// fields into the agent response.
	Format struct {
		// Instruction is appended to the system prompt and tells the
		// model what JSON shape to produce.
		Instruction string `json:"instruction,omitempty" yaml:"instruction,omitempty"`

		// Schema is an optional JSON Schema document; when set, replies
		// that fail validation abort the run with an error.
		Schema map[string]any `json:"schema,omitempty" yaml:"schema,omitempty"`

		// Mapping routes reply fields into the agent response.
		Mapping Mapping `json:"mapping,omitempty" yaml:"mapping,omitempty"`
	}

	// Mapping names the reply fields the agent reads. Empty fields fall
	// back to conventional names or disable the corresponding extraction.
	Mapping struct {
		// RootKey selects a nested object holding the insight fields.
		// Empty reads them from the reply root.
		RootKey string `json:"root_key,omitempty" yaml:"root_key,omitempty"`
		// CheckField is a boolean gating whether the agent speaks. Empty
		// means the presence of content decides.
		CheckField string `json:"check_field,omitempty" yaml:"check_field,omitempty"`
		// ContentField holds the insight text. Defaults to "content".
		ContentField string `json:"content_field,omitempty" yaml:"content_field,omitempty"`
		// TypeField holds the insight type. Defaults to "type".
		TypeField string `json:"type_field,omitempty" yaml:"type_field,omitempty"`
		// ConfidenceField holds the confidence. Defaults to "confidence".
		ConfidenceField string `json:"confidence_field,omitempty" yaml:"confidence_field,omitempty"`
		// MetadataField optionally holds insight rendering metadata.
		MetadataField string `json:"metadata_field,omitempty" yaml:"metadata_field,omitempty"`
		// StateField names a reply-root object of state writes. The
		// conventional name "memory_updates" routes to the agent's
		// private memory; any other name routes to board variables.
		StateField string `json:"state_field,omitempty" yaml:"state_field,omitempty"`
		// FactsField names a reply-root list of fact objects with
		// "type", "key", "value" and "confidence" entries.
		FactsField string `json:"facts_field,omitempty" yaml:"facts_field,omitempty"`
		// EventsField names a reply-root list of event names or objects
		// with "name" and "payload" entries.
		EventsField string `json:"events_field,omitempty" yaml:"events_field,omitempty"`
		// DataField names a reply-root value copied into the response
		// data sidecar under DataKey (or DataField when DataKey is
		// empty).
		DataField string `json:"data_field,omitempty" yaml:"data_field,omitempty"`
		DataKey   string `json:"data_key,omitempty" yaml:"data_key,omitempty"`
	}
)

// DefaultFormat returns the conventional response format: the model
// reports whether it has something to say, the message text, its type
// and confidence, and optional memory updates.
func DefaultFormat() Format {
	return Format{
		Instruction: `IMPORTANT: Respond with a single JSON object of the form ` +
			`{"has_insight": <boolean>, "message": "<advice text>", "type": "suggestion", ` +
			`"confidence": <0.0-1.0>, "memory_updates": {<optional scratchpad writes>}}. ` +
			`Set "has_insight" to false when you have nothing valuable to add.`,
		Mapping: Mapping{
			CheckField:      "has_insight",
			ContentField:    "message",
			TypeField:       "type",
			ConfidenceField: "confidence",
			StateField:      "memory_updates",
		},
	}
}

func (f Format) isZero() bool {
	return f.Instruction == "" && len(f.Schema) == 0 && f.Mapping == (Mapping{})
}
