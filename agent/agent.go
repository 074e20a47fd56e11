// Package agent defines the contract between the engine and the units it
// schedules: the Agent interface, its configuration, and the context and
// response types that cross the boundary on every run.
package agent

import (
	"context"
	"strings"

	"goa.design/ensemble/conditions"
)

// TriggerType identifies what caused a turn or an agent run.
type TriggerType string

const (
	// TriggerTurnBased runs after a conversation turn completes.
	TriggerTurnBased TriggerType = "turn_based"
	// TriggerKeyword runs when the host detects a configured keyword.
	TriggerKeyword TriggerType = "keyword"
	// TriggerSilence runs when the host detects prolonged silence.
	TriggerSilence TriggerType = "silence"
	// TriggerInterval runs on a periodic schedule.
	TriggerInterval TriggerType = "interval"
	// TriggerEvent runs in response to a blackboard event subscription.
	TriggerEvent TriggerType = "event"
	// TriggerForce is a host-initiated run that bypasses the trigger
	// type check, the cooldown and the trigger conditions, but never the
	// host's allow-list.
	TriggerForce TriggerType = "force"
)

// DefaultModel is used when a config does not name a model.
const DefaultModel = "gpt-4o-mini"

// DefaultCooldown is the cooldown in seconds applied by WithDefaults
// when a config leaves Cooldown unset.
const DefaultCooldown = 10

// MinEffectiveCooldown is the floor in seconds for a cooldown adjusted by
// a per-turn override, no matter how negative the modifier is.
const MinEffectiveCooldown = 5

type (
	// Config describes an agent to the engine. The engine interprets the
	// trigger fields, Cooldown and Priority; Model, OutputFormat and
	// TriggerKeywords are transparent data for the agent implementation
	// and host-side detection.
	Config struct {
		// Name is the human-readable agent name.
		Name string `json:"name" yaml:"name"`
		// ID is the stable identifier used for allow-lists, memory
		// namespaces and overrides. Derived from Name when empty.
		ID string `json:"id,omitempty" yaml:"id,omitempty"`
		// TriggerTypes lists the trigger types the agent responds to.
		// Empty means turn_based only.
		TriggerTypes []TriggerType `json:"trigger_types,omitempty" yaml:"trigger_types,omitempty"`
		// TriggerKeywords are matched by the host against transcript
		// text; a hit runs the agent with TriggerKeyword.
		TriggerKeywords []string `json:"trigger_keywords,omitempty" yaml:"trigger_keywords,omitempty"`
		// SubscribedEvents are the event names whose emission makes this
		// agent a Phase 2 candidate.
		SubscribedEvents []string `json:"subscribed_events,omitempty" yaml:"subscribed_events,omitempty"`
		// TriggerConditions gate execution; nil means always eligible.
		TriggerConditions *conditions.Expression `json:"trigger_conditions,omitempty" yaml:"trigger_conditions,omitempty"`
		// Cooldown is the minimum delay in seconds between runs. Nil
		// means unset and defaults to DefaultCooldown; an explicit zero
		// disables the cooldown.
		Cooldown *int `json:"cooldown,omitempty" yaml:"cooldown,omitempty"`
		// TriggerInterval is the period in seconds for interval-driven
		// hosts. The engine does not schedule it; it is host data.
		TriggerInterval int `json:"trigger_interval,omitempty" yaml:"trigger_interval,omitempty"`
		// SilenceThreshold is the silence duration in seconds after
		// which the host should trigger this agent. Zero means never.
		SilenceThreshold int `json:"silence_threshold,omitempty" yaml:"silence_threshold,omitempty"`
		// Priority orders merges: higher priority writes later and wins
		// conflicts. May be negative.
		Priority int `json:"priority,omitempty" yaml:"priority,omitempty"`
		// Model names the language model the agent should use.
		Model string `json:"model,omitempty" yaml:"model,omitempty"`
		// OutputFormat selects the agent's response schema.
		OutputFormat string `json:"output_format,omitempty" yaml:"output_format,omitempty"`
	}

	// Override adjusts one agent's behavior for a single turn. The
	// engine applies CooldownModifier; the remaining fields are
	// interpreted by the agent implementation.
	Override struct {
		// CooldownModifier shifts the agent's cooldown in seconds.
		// Positive slows the agent down, negative speeds it up. The
		// effective cooldown never drops below MinEffectiveCooldown.
		CooldownModifier *int `json:"cooldown_modifier,omitempty" yaml:"cooldown_modifier,omitempty"`
		// ContextTurnsModifier widens or narrows how much transcript
		// the agent considers. Zero or less means all of it.
		ContextTurnsModifier *int `json:"context_turns_modifier,omitempty" yaml:"context_turns_modifier,omitempty"`
		// InstructionsAppend is extra prompt text for the agent.
		InstructionsAppend string `json:"instructions_append,omitempty" yaml:"instructions_append,omitempty"`
	}
)

// Agent is a unit the engine schedules. Config must be stable for the
// lifetime of the registration. Evaluate receives a per-phase context
// whose Board is an isolated snapshot; it returns the agent's
// contribution, or nil when the agent has nothing to add.
type Agent interface {
	Config() Config
	Evaluate(ctx context.Context, turn *Context) (*Response, error)
}

// WithDefaults returns a copy of the config with derived defaults
// applied: a missing ID comes from the lowercased name with spaces
// replaced by underscores, missing trigger types default to turn_based,
// an unset cooldown becomes DefaultCooldown, and Model and OutputFormat
// fall back to their defaults.
func (c Config) WithDefaults() Config {
	if c.ID == "" {
		c.ID = strings.ReplaceAll(strings.ToLower(c.Name), " ", "_")
	}
	if len(c.TriggerTypes) == 0 {
		c.TriggerTypes = []TriggerType{TriggerTurnBased}
	}
	if c.Cooldown == nil {
		d := DefaultCooldown
		c.Cooldown = &d
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.OutputFormat == "" {
		c.OutputFormat = "default"
	}
	return c
}

// CooldownSeconds resolves the effective base cooldown: DefaultCooldown
// when unset, otherwise the configured value. Zero or negative disables
// the cooldown.
func (c Config) CooldownSeconds() int {
	if c.Cooldown == nil {
		return DefaultCooldown
	}
	return *c.Cooldown
}

// RespondsTo reports whether the config lists the given trigger type.
func (c Config) RespondsTo(t TriggerType) bool {
	for _, tt := range c.TriggerTypes {
		if tt == t {
			return true
		}
	}
	return false
}

// SubscribesTo reports whether the config subscribes to any of the given
// event names.
func (c Config) SubscribesTo(names []string) bool {
	for _, sub := range c.SubscribedEvents {
		for _, name := range names {
			if sub == name {
				return true
			}
		}
	}
	return false
}
