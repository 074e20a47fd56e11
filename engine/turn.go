package engine

import (
	"context"
	"fmt"
	"time"

	"goa.design/ensemble/agent"
	"goa.design/ensemble/blackboard"
	"goa.design/ensemble/hooks"
)

// ProcessTurn runs one end-to-end turn: stamp the context, select the
// eligible agents, fan them out against a board snapshot, merge their
// responses, dispatch emitted events to subscribers as a second phase,
// and finalize. It never panics and never returns an error; severe
// issues surface as error-typed insights on the aggregate response.
//
// Turns are serialized per engine. Cross-session serialization is the
// host's responsibility: one engine instance serves one session.
func (e *Engine) ProcessTurn(ctx context.Context, turn *agent.Context, opts ...TurnOption) (resp *agent.Response) {
	in := turnInput{triggerType: agent.TriggerTurnBased}
	for _, opt := range opts {
		opt(&in)
	}
	if in.triggerType == "" {
		in.triggerType = agent.TriggerTurnBased
	}
	if turn == nil {
		turn = &agent.Context{}
	}
	if turn.Board == nil {
		turn.Board = blackboard.New()
	}

	e.turnMu.Lock()
	defer e.turnMu.Unlock()

	start := time.Now()
	agg := newAggregate()
	resp = agg

	ctx, span := e.tracer.Start(ctx, "ensemble.turn")
	defer span.End()

	// finalize is registered first so it still runs after the recover
	// below has handled an engine fault.
	defer e.finalizeTurn(ctx, turn, agg, start)
	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("engine fault: %v", rec)
			e.logger.Error(ctx, "turn recovered from engine fault", "session_id", turn.SessionID, "error", err)
			e.publish(ctx, hooks.NewChainFailedEvent(turn.SessionID, err))
			agg.Insights = append(agg.Insights, agent.Insight{
				AgentID:    "engine",
				AgentName:  "Engine",
				Type:       agent.InsightError,
				Content:    fmt.Sprintf("engine error: %v", rec),
				Confidence: 1,
				Expiry:     agent.DefaultInsightExpiry,
			})
		}
	}()

	e.runTurn(ctx, turn, &in, agg)
	return resp
}

// runTurn executes the selection/fan-out/merge cycle for up to maxPhases
// phases.
func (e *Engine) runTurn(ctx context.Context, turn *agent.Context, in *turnInput, agg *agent.Response) {
	tt := in.triggerType
	board := turn.Board

	// Stamp the context before anything observes it.
	turn.TriggerType = tt
	turn.TriggerMetadata = in.metadata
	board.SetVar("sys.turn_count", turn.TurnCount)
	board.SetVar("sys.session_id", turn.SessionID)
	board.SetVar("sys.trigger_type", string(tt))
	turn.SharedState = board.Variables()

	e.publish(ctx, hooks.NewTurnStartedEvent(turn.SessionID, tt, turn.TurnCount))

	regs := e.snapshotRegs()
	allowed := in.allowedAgents()

	// Phase hooks fire only when the phase actually ran agents, so an
	// empty selection leaves no phase trace for observers.
	selected := e.selectPhase1(ctx, regs, allowed, tt, turn)
	results := e.runPhase(ctx, turn, selected, 1, tt)
	emitted := e.merge(ctx, turn, results, agg)
	if len(selected) > 0 {
		e.publish(ctx, hooks.NewPhaseEndedEvent(turn.SessionID, 1, emitted))
	}

	if len(emitted) == 0 || e.maxPhases < 2 {
		return
	}

	// Phase 2: agents subscribed to any Phase-1 event, evaluated against
	// the post-merge board. Subscription implies eligibility: the agent's
	// declared trigger types are not consulted here.
	turn.SharedState = board.Variables()
	subscribers := e.selectPhase2(ctx, regs, allowed, emitted, turn)
	if len(subscribers) == 0 {
		return
	}
	results = e.runPhase(ctx, turn, subscribers, 2, tt)
	names := e.merge(ctx, turn, results, agg)
	e.publish(ctx, hooks.NewPhaseEndedEvent(turn.SessionID, 2, names))
	// Events emitted in the final phase stay on the aggregate for
	// telemetry but are not dispatched.
}

// selectPhase1 applies the allow-list, trigger-type and condition gates.
// Cooldown is deliberately left to the agent lifecycle so observers see
// a lifecycle skip rather than silent non-selection.
func (e *Engine) selectPhase1(ctx context.Context, regs []*registration, allowed map[string]struct{}, tt agent.TriggerType, turn *agent.Context) []*registration {
	meta := turnMeta(turn, 1, tt)
	var selected []*registration
	for _, reg := range regs {
		cfg := reg.cfg
		if allowed != nil {
			if _, ok := allowed[cfg.ID]; !ok {
				e.skip(ctx, turn.SessionID, cfg, hooks.SkipNotInAllowList)
				continue
			}
		}
		if tt != agent.TriggerForce && !cfg.RespondsTo(tt) {
			e.skip(ctx, turn.SessionID, cfg, hooks.SkipTriggerTypeMismatch)
			continue
		}
		if tt != agent.TriggerForce && !e.evaluator.Evaluate(ctx, cfg.TriggerConditions, turn.Board, meta, cfg.ID) {
			e.skip(ctx, turn.SessionID, cfg, hooks.SkipConditionsNotMet)
			continue
		}
		selected = append(selected, reg)
	}
	return selected
}

// selectPhase2 picks the subscribers of the Phase-1 events. Agents not
// subscribed to any emitted event are simply not candidates; candidates
// failing the allow-list or their conditions are reported as skips.
func (e *Engine) selectPhase2(ctx context.Context, regs []*registration, allowed map[string]struct{}, eventNames []string, turn *agent.Context) []*registration {
	meta := turnMeta(turn, 2, turn.TriggerType)
	var selected []*registration
	for _, reg := range regs {
		cfg := reg.cfg
		if !cfg.SubscribesTo(eventNames) {
			continue
		}
		if allowed != nil {
			if _, ok := allowed[cfg.ID]; !ok {
				e.skip(ctx, turn.SessionID, cfg, hooks.SkipNotInAllowList)
				continue
			}
		}
		if !e.evaluator.Evaluate(ctx, cfg.TriggerConditions, turn.Board, meta, cfg.ID) {
			e.skip(ctx, turn.SessionID, cfg, hooks.SkipConditionsNotMet)
			continue
		}
		selected = append(selected, reg)
	}
	return selected
}

// runPhase snapshots the board and fans the selected agents out
// concurrently. The merge barrier is the collection loop: the phase
// returns when every launched agent has reported or the context is
// canceled, in which case unfinished agents are abandoned and contribute
// nothing.
func (e *Engine) runPhase(ctx context.Context, turn *agent.Context, regs []*registration, phase int, tt agent.TriggerType) []*phaseResult {
	if len(regs) == 0 {
		return nil
	}
	names := make([]string, len(regs))
	for i, reg := range regs {
		names[i] = reg.cfg.Name
	}
	e.publish(ctx, hooks.NewPhaseStartedEvent(turn.SessionID, phase, names))

	ctx, span := e.tracer.Start(ctx, fmt.Sprintf("ensemble.phase%d", phase))
	defer span.End()

	snap := turn.Board.Snapshot()
	out := make(chan *phaseResult, len(regs))
	for _, reg := range regs {
		tc := *turn
		tc.Board = snap
		tc.Phase = phase
		tc.SharedState = snap.Variables()
		go func(reg *registration, tc agent.Context) {
			out <- e.runAgent(ctx, reg, &tc, tt)
		}(reg, tc)
	}

	var results []*phaseResult
	for range regs {
		select {
		case r := <-out:
			if r != nil {
				results = append(results, r)
			}
		case <-ctx.Done():
			e.logger.Warn(ctx, "turn canceled, abandoning unfinished agents",
				"session_id", turn.SessionID, "phase", phase, "error", ctx.Err())
			return results
		}
	}
	return results
}

// finalizeTurn clears transient events, fills the legacy state view and
// publishes the turn end. It runs even when the turn recovered from a
// fault.
func (e *Engine) finalizeTurn(ctx context.Context, turn *agent.Context, agg *agent.Response, start time.Time) {
	turn.Board.ClearEvents()
	for k, v := range agg.VariableUpdates {
		agg.StateUpdates[k] = v
	}
	d := time.Since(start)
	e.metrics.IncCounter("ensemble.turns", 1, "trigger_type", string(turn.TriggerType))
	e.metrics.RecordTimer("ensemble.turn.duration", d)
	e.publish(ctx, hooks.NewTurnEndedEvent(turn.SessionID, agg, d))
}

func (e *Engine) skip(ctx context.Context, sessionID string, cfg agent.Config, reason string) {
	e.publish(ctx, hooks.NewAgentSkippedEvent(sessionID, cfg.ID, cfg.Name, reason))
	e.metrics.IncCounter("ensemble.agent.skips", 1, "agent_id", cfg.ID, "reason", reason)
}

// turnMeta is the execution metadata condition rules resolve with the
// meta source.
func turnMeta(turn *agent.Context, phase int, tt agent.TriggerType) map[string]any {
	return map[string]any{
		"turn_count":   turn.TurnCount,
		"phase":        phase,
		"trigger_type": string(tt),
		"session_id":   turn.SessionID,
	}
}

// allowedAgents converts the allow-list into a set. A nil return allows
// every agent; an empty set allows none.
func (in *turnInput) allowedAgents() map[string]struct{} {
	if !in.allowedSet || in.allowedIDs == nil {
		return nil
	}
	set := make(map[string]struct{}, len(in.allowedIDs))
	for _, id := range in.allowedIDs {
		set[id] = struct{}{}
	}
	return set
}

func newAggregate() *agent.Response {
	return &agent.Response{
		VariableUpdates: make(map[string]any),
		QueuePushes:     make(map[string][]any),
		MemoryUpdates:   make(map[string]any),
		Data:            make(map[string]any),
		StateUpdates:    make(map[string]any),
	}
}
