// Package engine implements the turn-driven scheduler at the heart of
// the runtime. The engine dispatches registered agents against a shared
// blackboard in bulk-synchronous turns: it selects the eligible agents,
// snapshots the board, fans the agents out in parallel against the
// snapshot, merges their responses by priority, dispatches emitted
// events to a second phase of subscribers, and isolates failures so a
// broken agent can never corrupt the board.
//
// The engine owns all blackboard writes. Agents only read from their
// per-phase snapshot and hand updates back in their response; the merge
// step applies them in (priority ascending, registration ascending)
// order, so the highest-priority agent writes last and wins conflicts.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"goa.design/ensemble/agent"
	"goa.design/ensemble/conditions"
	"goa.design/ensemble/hooks"
	"goa.design/ensemble/model"
	"goa.design/ensemble/telemetry"
)

type (
	// Engine schedules agents over a session blackboard. All public
	// methods are safe for concurrent use; ProcessTurn additionally
	// serializes turns so at most one runs at a time per engine.
	Engine struct {
		logger    telemetry.Logger
		metrics   telemetry.Metrics
		tracer    telemetry.Tracer
		bus       hooks.Bus
		evaluator *conditions.Evaluator
		maxPhases int
		now       func() time.Time

		modelFactory model.Factory

		mu     sync.RWMutex
		agents []*registration
		byID   map[string]*registration
		client model.Client

		turnMu sync.Mutex
	}

	// registration pairs an agent with its resolved config, registration
	// index and cooldown bookkeeping. lastRun is engine-owned so agent
	// implementations stay stateless.
	registration struct {
		agent agent.Agent
		cfg   agent.Config
		index int

		mu      sync.Mutex
		lastRun time.Time
		hasRun  bool
	}
)

// New constructs an Engine. Nil dependencies default to no-ops and a
// fresh in-memory hook bus, so engine.New() alone yields a working
// scheduler.
func New(opts ...Option) *Engine {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = telemetry.NewNoopLogger()
	}
	if o.Metrics == nil {
		o.Metrics = telemetry.NewNoopMetrics()
	}
	if o.Tracer == nil {
		o.Tracer = telemetry.NewNoopTracer()
	}
	if o.Hooks == nil {
		o.Hooks = hooks.NewBus()
	}
	if o.MaxPhases < 1 {
		o.MaxPhases = 2
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	client := o.Model
	if client == nil && o.ModelFactory != nil && o.APIKey != "" {
		client = o.ModelFactory(o.APIKey)
	}
	return &Engine{
		logger:       o.Logger,
		metrics:      o.Metrics,
		tracer:       o.Tracer,
		bus:          o.Hooks,
		evaluator:    conditions.NewEvaluator(o.Logger),
		maxPhases:    o.MaxPhases,
		now:          o.Clock,
		modelFactory: o.ModelFactory,
		byID:         make(map[string]*registration),
		client:       client,
	}
}

// RegisterAgent adds an agent to the engine's roster. The registration
// index is the tie-breaker for merge ordering within equal priority, so
// hosts control conflict resolution through registration order. Agents
// implementing model.Consumer receive the engine's model client.
func (e *Engine) RegisterAgent(a agent.Agent) error {
	if a == nil {
		return fmt.Errorf("engine: agent is required")
	}
	cfg := a.Config().WithDefaults()
	if cfg.ID == "" {
		return fmt.Errorf("engine: agent name or ID is required")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.byID[cfg.ID]; ok {
		return fmt.Errorf("engine: agent %q already registered", cfg.ID)
	}
	reg := &registration{agent: a, cfg: cfg, index: len(e.agents)}
	e.agents = append(e.agents, reg)
	e.byID[cfg.ID] = reg

	if consumer, ok := a.(model.Consumer); ok && e.client != nil {
		consumer.SetModel(e.client)
	}
	return nil
}

// UpdateAPIKey rebuilds the model client with the new credentials and
// re-injects it into every registered agent that consumes one. It is a
// no-op without a configured model factory.
func (e *Engine) UpdateAPIKey(key string) {
	if e.modelFactory == nil {
		e.logger.Warn(context.Background(), "api key update ignored: no model factory configured")
		return
	}
	client := e.modelFactory(key)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.client = client
	for _, reg := range e.agents {
		if consumer, ok := reg.agent.(model.Consumer); ok {
			consumer.SetModel(client)
		}
	}
}

// Hooks returns the engine's lifecycle event bus so hosts can register
// observers.
func (e *Engine) Hooks() hooks.Bus { return e.bus }

// Agents returns the registered agent configs in registration order.
func (e *Engine) Agents() []agent.Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]agent.Config, len(e.agents))
	for i, reg := range e.agents {
		out[i] = reg.cfg
	}
	return out
}

// AgentsByTriggerType returns the configs of agents that respond to the
// given trigger type, in registration order.
func (e *Engine) AgentsByTriggerType(tt agent.TriggerType) []agent.Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []agent.Config
	for _, reg := range e.agents {
		if reg.cfg.RespondsTo(tt) {
			out = append(out, reg.cfg)
		}
	}
	return out
}

// EventSubscribers returns the configs of agents subscribed to at least
// one of the given event names, in registration order.
func (e *Engine) EventSubscribers(names []string) []agent.Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []agent.Config
	for _, reg := range e.agents {
		if reg.cfg.SubscribesTo(names) {
			out = append(out, reg.cfg)
		}
	}
	return out
}

// snapshotRegs returns the registrations in registration order. The
// slice is a copy; the registrations themselves are shared.
func (e *Engine) snapshotRegs() []*registration {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*registration, len(e.agents))
	copy(out, e.agents)
	return out
}

// publish delivers a hook event, containing observer errors and panics
// so they can never influence the turn.
func (e *Engine) publish(ctx context.Context, evt hooks.Event) {
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Error(ctx, "hook subscriber panicked", "event", evt.Type(), "panic", rec)
		}
	}()
	if err := e.bus.Publish(ctx, evt); err != nil {
		e.logger.Error(ctx, "hook subscriber failed", "event", evt.Type(), "error", err)
	}
}
