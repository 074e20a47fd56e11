package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"goa.design/ensemble/agent"
	"goa.design/ensemble/blackboard"
)

// merge applies phase results to the live board and the aggregate
// response in (priority ascending, registration ascending) order, so the
// highest-priority agent writes last and wins conflicts under
// last-write-wins. Failed agents contribute exactly one error insight
// and nothing else. merge returns the distinct names of the events the
// phase emitted, in first-emission order.
func (e *Engine) merge(ctx context.Context, turn *agent.Context, results []*phaseResult, agg *agent.Response) []string {
	sort.SliceStable(results, func(i, j int) bool {
		pi, pj := results[i].reg.cfg.Priority, results[j].reg.cfg.Priority
		if pi != pj {
			return pi < pj
		}
		return results[i].reg.index < results[j].reg.index
	})

	var eventNames []string
	seen := make(map[string]bool)
	for _, r := range results {
		cfg := r.reg.cfg
		if r.err != nil {
			// Atomic failure: the response, if any, is discarded whole.
			agg.Insights = append(agg.Insights, cfg.NewInsight(
				agent.InsightError,
				fmt.Sprintf("%s failed: %v", cfg.Name, r.err),
				1,
			))
			continue
		}
		if r.resp == nil {
			continue
		}
		e.mergeResponse(ctx, turn.Board, cfg.ID, r.resp, agg, &eventNames, seen)
	}
	return eventNames
}

// mergeResponse folds one successful response into the board and the
// aggregate.
func (e *Engine) mergeResponse(ctx context.Context, board *blackboard.Blackboard, agentID string, resp *agent.Response, agg *agent.Response, eventNames *[]string, seen map[string]bool) {
	agg.Insights = append(agg.Insights, resp.Insights...)

	for k, v := range e.variableWrites(ctx, board, agentID, resp) {
		board.SetVar(k, v)
		agg.VariableUpdates[k] = v
	}

	for name, items := range resp.QueuePushes {
		board.PushQueueItems(name, items)
		agg.QueuePushes[name] = append(agg.QueuePushes[name], items...)
	}

	for _, f := range resp.Facts {
		if f.SourceAgent == "" {
			f.SourceAgent = agentID
		}
		board.AddFact(f)
		agg.Facts = append(agg.Facts, f)
	}

	if len(resp.MemoryUpdates) > 0 {
		board.UpdateMemory(agentID, resp.MemoryUpdates)
		for k, v := range resp.MemoryUpdates {
			agg.MemoryUpdates[k] = v
		}
	}

	for _, ev := range resp.Events {
		if ev.SourceAgent == "" {
			ev.SourceAgent = agentID
		}
		board.Emit(ev)
		agg.Events = append(agg.Events, ev)
		if !seen[ev.Name] {
			seen[ev.Name] = true
			*eventNames = append(*eventNames, ev.Name)
		}
	}

	mergeData(agg.Data, resp.Data)
}

// variableWrites resolves the variable map to apply, honoring the v1
// schema: when VariableUpdates is empty, legacy StateUpdates entries are
// treated as variable writes, except "memory_<agent_id>" map entries
// which route to that agent's memory namespace instead.
func (e *Engine) variableWrites(ctx context.Context, board *blackboard.Blackboard, agentID string, resp *agent.Response) map[string]any {
	if len(resp.VariableUpdates) > 0 || len(resp.StateUpdates) == 0 {
		return resp.VariableUpdates
	}

	writes := make(map[string]any, len(resp.StateUpdates))
	for k, v := range resp.StateUpdates {
		if id, ok := strings.CutPrefix(k, "memory_"); ok && id != "" {
			if mem, isMap := v.(map[string]any); isMap {
				board.UpdateMemory(id, mem)
				continue
			}
		}
		writes[k] = v
	}
	if len(writes) < len(resp.StateUpdates) {
		e.logger.Debug(ctx, "routed legacy memory state updates", "agent_id", agentID)
	}
	return writes
}

// mergeData folds a response's free-form sidecar into the aggregate's:
// new keys are copied, list-valued conflicts concatenate, and anything
// else is last-writer-wins.
func mergeData(dst, src map[string]any) {
	for k, v := range src {
		existing, ok := dst[k]
		if !ok {
			dst[k] = v
			continue
		}
		el, elOK := existing.([]any)
		vl, vlOK := v.([]any)
		if elOK && vlOK {
			merged := make([]any, 0, len(el)+len(vl))
			merged = append(merged, el...)
			merged = append(merged, vl...)
			dst[k] = merged
			continue
		}
		dst[k] = v
	}
}
