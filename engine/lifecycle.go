package engine

import (
	"context"
	"fmt"
	"time"

	"goa.design/ensemble/agent"
	"goa.design/ensemble/hooks"
)

// phaseResult is one agent's outcome within a phase. Exactly one of resp
// and err is meaningful; a nil resp with a nil err means the agent
// declined to respond.
type phaseResult struct {
	reg      *registration
	resp     *agent.Response
	err      error
	duration time.Duration
}

// runAgent wraps one Evaluate call in the agent lifecycle: cooldown
// check, start hook, panic-safe invocation, lastRun bookkeeping and
// finish or error hook. A nil return means the agent was skipped.
func (e *Engine) runAgent(ctx context.Context, reg *registration, tc *agent.Context, tt agent.TriggerType) *phaseResult {
	cfg := reg.cfg
	if tt != agent.TriggerForce && !e.cooldownElapsed(reg, tc.Overrides[cfg.ID]) {
		e.skip(ctx, tc.SessionID, cfg, hooks.SkipCooldownActive)
		return nil
	}

	e.publish(ctx, hooks.NewAgentStartedEvent(tc.SessionID, cfg.ID, cfg.Name, tc.Phase))
	ctx, span := e.tracer.Start(ctx, "ensemble.agent."+cfg.ID)
	defer span.End()

	start := time.Now()
	resp, err := safeEvaluate(ctx, reg.agent, tc)
	d := time.Since(start)

	if err != nil {
		e.logger.Error(ctx, "agent evaluation failed",
			"session_id", tc.SessionID, "agent_id", cfg.ID, "phase", tc.Phase, "error", err)
		e.publish(ctx, hooks.NewAgentFailedEvent(tc.SessionID, cfg.ID, cfg.Name, err))
		e.metrics.IncCounter("ensemble.agent.errors", 1, "agent_id", cfg.ID)
		return &phaseResult{reg: reg, err: err, duration: d}
	}

	reg.mu.Lock()
	reg.lastRun = e.now()
	reg.hasRun = true
	reg.mu.Unlock()

	e.publish(ctx, hooks.NewAgentFinishedEvent(tc.SessionID, cfg.ID, cfg.Name, resp, d))
	e.metrics.IncCounter("ensemble.agent.runs", 1, "agent_id", cfg.ID)
	e.metrics.RecordTimer("ensemble.agent.duration", d, "agent_id", cfg.ID)
	return &phaseResult{reg: reg, resp: resp, duration: d}
}

// safeEvaluate invokes Evaluate, converting a panic into an error so a
// crashing agent is indistinguishable from one that failed cleanly.
func safeEvaluate(ctx context.Context, a agent.Agent, tc *agent.Context) (resp *agent.Response, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			resp = nil
			err = fmt.Errorf("agent panicked: %v", rec)
		}
	}()
	return a.Evaluate(ctx, tc)
}

// cooldownElapsed reports whether the agent may run again. With a
// cooldown-modifying override the effective cooldown is
// max(MinEffectiveCooldown, base + modifier); without one it is the base
// cooldown (DefaultCooldown when unset), and an explicit zero disables
// the check entirely.
func (e *Engine) cooldownElapsed(reg *registration, ov agent.Override) bool {
	cooldown := reg.cfg.CooldownSeconds()
	if ov.CooldownModifier != nil {
		cooldown += *ov.CooldownModifier
		if cooldown < agent.MinEffectiveCooldown {
			cooldown = agent.MinEffectiveCooldown
		}
	}
	if cooldown <= 0 {
		return true
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	if !reg.hasRun {
		return true
	}
	return e.now().Sub(reg.lastRun) >= time.Duration(cooldown)*time.Second
}
