package engine

import (
	"time"

	"goa.design/ensemble/agent"
	"goa.design/ensemble/hooks"
	"goa.design/ensemble/model"
	"goa.design/ensemble/telemetry"
)

type (
	// Options configures an Engine. Nil dependencies are substituted with
	// no-op implementations by New, so a zero Options is fully usable.
	Options struct {
		// Logger receives engine diagnostics.
		Logger telemetry.Logger
		// Metrics receives turn, agent and skip counters.
		Metrics telemetry.Metrics
		// Tracer creates spans per turn, phase and agent run.
		Tracer telemetry.Tracer
		// Hooks is the lifecycle event bus. A fresh in-memory bus is
		// created when nil.
		Hooks hooks.Bus
		// Model is the language model client injected into agents that
		// implement model.Consumer. May be nil when no agent needs one.
		Model model.Client
		// ModelFactory rebuilds the model client when UpdateAPIKey is
		// called. Required for credential rotation, otherwise optional.
		ModelFactory model.Factory
		// APIKey is handed to ModelFactory at construction when Model is
		// nil.
		APIKey string
		// MaxPhases bounds event dispatch. Defaults to 2: events emitted
		// in the final phase are recorded but not dispatched.
		MaxPhases int
		// Clock supplies the current time for cooldown tracking. Tests
		// inject a fake; defaults to time.Now.
		Clock func() time.Time
	}

	// Option customizes engine construction.
	Option func(*Options)

	// TurnOption customizes a single ProcessTurn call.
	TurnOption func(*turnInput)

	turnInput struct {
		allowedIDs  []string
		allowedSet  bool
		triggerType agent.TriggerType
		metadata    map[string]any
	}
)

// WithLogger sets the engine logger.
func WithLogger(l telemetry.Logger) Option { return func(o *Options) { o.Logger = l } }

// WithMetrics sets the engine metrics recorder.
func WithMetrics(m telemetry.Metrics) Option { return func(o *Options) { o.Metrics = m } }

// WithTracer sets the engine tracer.
func WithTracer(t telemetry.Tracer) Option { return func(o *Options) { o.Tracer = t } }

// WithHooks sets the lifecycle event bus.
func WithHooks(b hooks.Bus) Option { return func(o *Options) { o.Hooks = b } }

// WithModel sets the model client injected into registered agents.
func WithModel(c model.Client) Option { return func(o *Options) { o.Model = c } }

// WithModelFactory sets the factory used by UpdateAPIKey to rebuild the
// model client.
func WithModelFactory(f model.Factory) Option { return func(o *Options) { o.ModelFactory = f } }

// WithAPIKey sets the initial API key passed to the model factory.
func WithAPIKey(key string) Option { return func(o *Options) { o.APIKey = key } }

// WithMaxPhases bounds how many phases a turn may run. Values below 1
// are treated as 1.
func WithMaxPhases(n int) Option { return func(o *Options) { o.MaxPhases = n } }

// WithClock injects the time source used for cooldown tracking.
func WithClock(now func() time.Time) Option { return func(o *Options) { o.Clock = now } }

// WithAllowedAgents restricts the turn to the listed agent IDs. Passing
// nil allows every agent; passing an empty non-nil slice allows none.
// The allow-list is never bypassed, not even by the force trigger.
func WithAllowedAgents(ids []string) TurnOption {
	return func(in *turnInput) {
		in.allowedIDs = ids
		in.allowedSet = true
	}
}

// WithTriggerType sets why the turn ran. Defaults to turn_based.
func WithTriggerType(tt agent.TriggerType) TurnOption {
	return func(in *turnInput) { in.triggerType = tt }
}

// WithTriggerMetadata attaches host metadata to the turn, e.g. the
// matched keyword for keyword triggers.
func WithTriggerMetadata(meta map[string]any) TurnOption {
	return func(in *turnInput) { in.metadata = meta }
}
